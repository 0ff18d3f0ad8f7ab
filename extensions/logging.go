package extensions

import (
	"log/slog"
	"time"

	param "github.com/param-fn/param-go"
)

// LoggingHook logs all set and trigger operations
type LoggingHook struct {
	param.BaseHook
	logger *slog.Logger
}

// NewLoggingHook creates a new logging hook
func NewLoggingHook(handler slog.Handler) *LoggingHook {
	return &LoggingHook{
		BaseHook: param.BaseHook{HookName: "logging"},
		logger:   slog.New(handler),
	}
}

func (h *LoggingHook) Wrap(next func() error, op *param.Operation) error {
	start := time.Now()
	err := next()
	duration := time.Since(start)

	attrs := []any{
		"operation", string(op.Kind),
		"parameter", op.Name,
		"class", op.Class.Name(),
		"duration", duration,
	}
	if op.Instance != nil {
		attrs = append(attrs, "instance", op.Instance.Name())
	}
	if err != nil {
		h.logger.Error("operation failed", append(attrs, "error", err)...)
	} else {
		h.logger.Debug("operation completed", attrs...)
	}
	return err
}
