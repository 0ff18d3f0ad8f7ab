package param

import (
	"log/slog"
	"sync/atomic"
)

// DeclarationPolicy controls how class-definition integrity violations are
// reported. Declaration problems (e.g. an inherited default that fails the
// resolved constraints) default to a logged warning because hard failures at
// definition time are maximally disruptive, but the invalid state is real
// and some applications prefer to fail fast.
type DeclarationPolicy int

const (
	// DeclarationWarn logs declaration problems at warning level.
	DeclarationWarn DeclarationPolicy = iota
	// DeclarationFail panics with a *DeclarationError.
	DeclarationFail
)

var (
	pkgLogger         atomic.Pointer[slog.Logger]
	declarationPolicy atomic.Int32
)

// SetLogger replaces the package logger. Passing nil restores slog.Default.
func SetLogger(l *slog.Logger) {
	pkgLogger.Store(l)
}

func logger() *slog.Logger {
	if l := pkgLogger.Load(); l != nil {
		return l
	}
	return slog.Default()
}

// SetDeclarationPolicy switches declaration problems between warn and fail.
func SetDeclarationPolicy(p DeclarationPolicy) {
	declarationPolicy.Store(int32(p))
}

// reportDeclaration surfaces a class-definition integrity violation according
// to the active policy.
func reportDeclaration(err *DeclarationError) {
	if DeclarationPolicy(declarationPolicy.Load()) == DeclarationFail {
		panic(err)
	}
	logger().Warn("invalid parameter declaration",
		"class", err.Class,
		"parameter", err.Attribute,
		"error", err.Err,
	)
}
