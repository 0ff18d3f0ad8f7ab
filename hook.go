package param

// OperationKind discriminates the operations hooks can observe.
type OperationKind string

const (
	// OpSet covers instance and class-level value writes.
	OpSet OperationKind = "set"
	// OpTrigger covers explicit watcher triggering without a value change.
	OpTrigger OperationKind = "trigger"
)

// Operation describes one in-flight operation for hooks. Instance is nil
// for class-level writes.
type Operation struct {
	Kind     OperationKind
	Name     string
	Instance *Instance
	Class    *Class
}

// Hook wraps set and trigger operations on a class and its instances.
// Hooks from the whole ancestry apply, ordered by Order (lower runs
// outermost); within one operation each hook's Wrap surrounds the next.
type Hook interface {
	// Name identifies the hook in logs.
	Name() string
	// Order sorts hooks; lower values wrap closer to the caller.
	Order() int
	// Wrap runs around the operation. Implementations must call next
	// exactly once unless they intend to veto the operation by returning
	// an error without it.
	Wrap(next func() error, op *Operation) error
	// OnError observes an operation's failure after the chain unwinds.
	OnError(err error, op *Operation)
}

// BaseHook is a no-op Hook for embedding, so implementations override only
// what they need.
type BaseHook struct {
	HookName  string
	HookOrder int
}

func (b BaseHook) Name() string { return b.HookName }

func (b BaseHook) Order() int { return b.HookOrder }

func (b BaseHook) Wrap(next func() error, _ *Operation) error { return next() }

func (b BaseHook) OnError(error, *Operation) {}
