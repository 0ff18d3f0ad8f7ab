// Package param provides declarative, validated, watchable parameters for Go.
//
// # Overview
//
// Param organizes code around three core concepts:
//
//  1. Parameters: typed attribute declarations with validation metadata
//  2. Classes and Instances: declaration sets resolved through inheritance,
//     with per-instance overrides layered over shared defaults
//  3. Watchers: callbacks fired on value or metadata changes, with batching,
//     dependency paths, and precedence ordering
//
// # Basic Usage
//
// Declare a class with validated parameters:
//
//	account := param.NewClass("Account",
//	    param.Declare("owner", param.String()),
//	    param.Declare("balance", param.Number(param.Bounds(param.F(0), nil))),
//	)
//
//	acct, err := account.New(param.Values{"owner": "alice"})
//	if err != nil { ... }
//
//	err = acct.Set("balance", 250.0) // validated against the declaration
//
// Values not overridden on an instance fall back to the class default, so a
// class-level write is observed by every instance without an override:
//
//	account.Set("balance", 10.0)
//	v, _ := acct.Get("balance") // 10.0 unless acct overrode it
//
// # Watchers
//
// Register callbacks on value changes:
//
//	w, err := acct.Watch(func(events ...param.Event) error {
//	    for _, e := range events {
//	        fmt.Println(e.Name, e.Old, "->", e.New)
//	    }
//	    return nil
//	}, []string{"balance"})
//
//	acct.Unwatch(w) // idempotent; a removed watcher never fires again
//
// Batch writes so watchers observe one settled transition:
//
//	acct.Batch(func() error {
//	    acct.Set("balance", 1.0)
//	    return acct.Set("balance", 2.0)
//	}) // one event: old 10.0, new 2.0
//
// # Declared Methods and Dependencies
//
// Methods declared with dependency specifications re-run when their inputs
// change, including through sub-object paths that are rewired when an
// intermediate parameter is reassigned:
//
//	clazz := param.NewClass("Dashboard",
//	    param.Declare("source", param.New(param.KindParameter)),
//	    param.Define("refresh", func(in *param.Instance, _ ...param.Event) error {
//	        ...
//	    }, param.Depends("source.data", "source.rate:bounds"), param.Watch(), param.OnInit()),
//	)
//
// # Error Handling
//
// Validation failures surface synchronously from Set; watcher failures are
// aggregated into a DispatchError after the cascade settles, and never roll
// back the write that caused them.
package param
