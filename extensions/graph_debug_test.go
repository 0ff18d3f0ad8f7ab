package extensions

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	param "github.com/param-fn/param-go"
)

var (
	_ slog.Handler = (*HumanHandler)(nil)
	_ slog.Handler = (*SilentHandler)(nil)
)

func debugClass(hooks ...param.Hook) *param.Class {
	opts := []param.ClassOption{
		param.Declare("x", param.Number(param.Default(0.0), param.Bounds(param.F(0), param.F(10)))),
		param.Declare("y", param.Number(param.Default(0.0))),
		param.Define("react", func(in *param.Instance, _ ...param.Event) error {
			return nil
		}, param.Depends("x"), param.Watch()),
	}
	for _, h := range hooks {
		opts = append(opts, param.WithHook(h))
	}
	return param.NewClass("Debugged", opts...)
}

func TestRenderDependencyTree(t *testing.T) {
	out := RenderDependencyTree(debugClass())
	if !strings.Contains(out, "react") {
		t.Errorf("expected the method in the rendered tree, got %q", out)
	}
	if !strings.Contains(out, "x") {
		t.Errorf("expected the dependency in the rendered tree, got %q", out)
	}
}

func TestRenderDependencyTreeEmpty(t *testing.T) {
	c := param.NewClass("Bare", param.Declare("x", param.Number(param.Default(0.0))))
	out := RenderDependencyTree(c)
	if !strings.Contains(out, "no declared method dependencies") {
		t.Errorf("expected the empty marker, got %q", out)
	}
}

func TestGraphDebugHookLogsOnError(t *testing.T) {
	var buf bytes.Buffer
	hook := NewGraphDebugHook(NewHumanHandler(&buf, slog.LevelError))

	c := debugClass(hook)
	in, err := c.New(nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := in.Set("x", 50.0); err == nil {
		t.Fatal("expected the out-of-bounds write to fail")
	}

	out := buf.String()
	if !strings.Contains(out, "Operation Error") {
		t.Errorf("expected a formatted error report, got %q", out)
	}
	if !strings.Contains(out, "Debugged") {
		t.Errorf("expected the class name in the report, got %q", out)
	}
}

func TestSilentHandlerDiscardsEverything(t *testing.T) {
	h := NewSilentHandler()
	if h.Enabled(context.Background(), slog.LevelError) {
		t.Error("expected the silent handler to be disabled at every level")
	}

	hook := NewGraphDebugHook(h)
	c := debugClass(hook)
	in, _ := c.New(nil)
	if err := in.Set("x", 50.0); err == nil {
		t.Fatal("expected the out-of-bounds write to fail")
	}
}

func TestLoggingHookObservesOperations(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	hook := NewLoggingHook(handler)

	c := debugClass(hook)
	in, err := c.New(nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := in.Set("x", 5.0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "operation completed") {
		t.Errorf("expected a debug record for the set, got %q", out)
	}
	if !strings.Contains(out, "parameter=x") {
		t.Errorf("expected the parameter attribute, got %q", out)
	}
}
