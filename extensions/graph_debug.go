package extensions

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/m1gwings/treedrawer/tree"
	param "github.com/param-fn/param-go"
)

// GraphDebugHook logs the watcher dependency wiring when an operation fails.
//
// Usage:
//
//	// Human-readable formatted output (with line breaks)
//	handler := extensions.NewHumanHandler(os.Stdout, slog.LevelError)
//	hook := extensions.NewGraphDebugHook(handler)
//
//	// Structured JSON logging (compact, machine-readable)
//	handler := slog.NewJSONHandler(os.Stdout, nil)
//	hook := extensions.NewGraphDebugHook(handler)
//
//	// Silent (for testing)
//	hook := extensions.NewGraphDebugHook(extensions.NewSilentHandler())
//
// The hook logs at ERROR level with the failed parameter, the error, and a
// rendered tree of the class's method dependencies.
type GraphDebugHook struct {
	param.BaseHook
	logger *slog.Logger
}

// NewGraphDebugHook creates a new graph debug hook.
// logHandler: slog.Handler for logging (use HumanHandler for formatted output, or any other slog.Handler)
func NewGraphDebugHook(logHandler slog.Handler) *GraphDebugHook {
	return &GraphDebugHook{
		BaseHook: param.BaseHook{HookName: "graph-debug"},
		logger:   slog.New(logHandler),
	}
}

// OnError logs the dependency tree when a set or trigger fails
func (h *GraphDebugHook) OnError(err error, op *param.Operation) {
	h.logger.Error("Operation Error",
		"class", op.Class.Name(),
		"parameter", op.Name,
		"operation", string(op.Kind),
		"error", err.Error(),
		"dependency_graph", RenderDependencyTree(op.Class),
	)
}

// RenderDependencyTree draws the class's watching methods and their
// dependency specifications as an ASCII tree.
func RenderDependencyTree(c *param.Class) string {
	specs := c.DependencySpecs()
	if len(specs) == 0 {
		return "\n(no declared method dependencies)"
	}

	root := tree.NewTree(tree.NodeString(c.Name()))
	methods := make([]string, 0, len(specs))
	for name := range specs {
		methods = append(methods, name)
	}
	sort.Strings(methods)

	for i, method := range methods {
		root.AddChild(tree.NodeString(method))
		child, err := root.Child(i)
		if err != nil {
			continue
		}
		deps := specs[method]
		if len(deps) == 0 {
			child.AddChild(tree.NodeString("(all parameters)"))
			continue
		}
		for _, dep := range deps {
			child.AddChild(tree.NodeString(dep))
		}
	}
	return "\n" + root.String()
}

// SilentHandler is a slog.Handler that discards all log output
// Useful for testing when you don't want log output
type SilentHandler struct{}

// NewSilentHandler creates a new silent log handler
func NewSilentHandler() *SilentHandler {
	return &SilentHandler{}
}

func (h *SilentHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return false // Never enabled, discards everything
}

func (h *SilentHandler) Handle(ctx context.Context, record slog.Record) error {
	return nil // Do nothing
}

func (h *SilentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h // Return self, no state to modify
}

func (h *SilentHandler) WithGroup(name string) slog.Handler {
	return h // Return self, no state to modify
}

// HumanHandler is a slog.Handler that formats logs for human readability
// with proper line breaks and visual formatting (especially for dependency graphs)
type HumanHandler struct {
	writer io.Writer
	level  slog.Level
}

// NewHumanHandler creates a new human-readable log handler
func NewHumanHandler(writer io.Writer, level slog.Level) *HumanHandler {
	return &HumanHandler{
		writer: writer,
		level:  level,
	}
}

func (h *HumanHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *HumanHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Message == "Operation Error" {
		return h.handleOperationError(record)
	}

	// Default formatting for other messages
	if _, err := fmt.Fprintf(h.writer, "[%s] %s\n", record.Level, record.Message); err != nil {
		return err
	}
	var writeErr error
	record.Attrs(func(a slog.Attr) bool {
		if _, err := fmt.Fprintf(h.writer, "  %s: %v\n", a.Key, a.Value); err != nil {
			writeErr = err
			return false
		}
		return true
	})
	return writeErr
}

func (h *HumanHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h // Return self, attrs are read from each record
}

func (h *HumanHandler) WithGroup(name string) slog.Handler {
	return h // Return self, no grouping in human output
}

func (h *HumanHandler) handleOperationError(record slog.Record) error {
	var class, parameter, operation, errorMsg, graph string

	record.Attrs(func(a slog.Attr) bool {
		switch a.Key {
		case "class":
			class = a.Value.String()
		case "parameter":
			parameter = a.Value.String()
		case "operation":
			operation = a.Value.String()
		case "error":
			errorMsg = a.Value.String()
		case "dependency_graph":
			graph = a.Value.String()
		}
		return true
	})

	writes := []func() error{
		func() error { _, err := fmt.Fprintln(h.writer); return err },
		func() error { _, err := fmt.Fprintln(h.writer, strings.Repeat("=", 70)); return err },
		func() error { _, err := fmt.Fprintln(h.writer, "[GraphDebug] Operation Error"); return err },
		func() error { _, err := fmt.Fprintln(h.writer, strings.Repeat("=", 70)); return err },
		func() error { _, err := fmt.Fprintf(h.writer, "\nClass: %s\n", class); return err },
		func() error { _, err := fmt.Fprintf(h.writer, "Parameter: %s\n", parameter); return err },
		func() error { _, err := fmt.Fprintf(h.writer, "Operation: %s\n", operation); return err },
		func() error { _, err := fmt.Fprintf(h.writer, "Error: %s\n", errorMsg); return err },
		func() error { _, err := fmt.Fprintf(h.writer, "\nDependency Graph:%s\n", graph); return err },
		func() error { _, err := fmt.Fprintln(h.writer, strings.Repeat("=", 70)); return err },
	}
	for _, write := range writes {
		if err := write(); err != nil {
			return err
		}
	}
	return nil
}
