package tools

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func echoTool() *Tool {
	return &Tool{
		Name:        "echo",
		Description: "Echoes back its message.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{"type": "string"},
				"count":   map[string]any{"type": "integer"},
				"loud":    map[string]any{"type": "boolean"},
			},
			"required": []string{"message"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return map[string]any{"echo": args["message"]}, nil
		},
	}
}

func TestDispatchSuccess(t *testing.T) {
	r := NewRegistry(testLogger())
	r.Register(echoTool())

	out := r.Dispatch(context.Background(), "echo", map[string]any{"message": "hi"})
	if !out.OK() {
		t.Fatalf("dispatch failed: %s (%s)", out.Error, out.Category)
	}
	res, ok := out.Result.(map[string]any)
	if !ok || res["echo"] != "hi" {
		t.Errorf("result = %v", out.Result)
	}
}

func TestDispatchUnknownOperation(t *testing.T) {
	r := NewRegistry(testLogger())
	r.Register(echoTool())

	out := r.Dispatch(context.Background(), "vanish", nil)
	if out.OK() {
		t.Fatal("unknown operation should fail")
	}
	if out.Category != CategoryUnknownOperation {
		t.Errorf("category = %q, want %q", out.Category, CategoryUnknownOperation)
	}
	if !strings.Contains(out.Error, `unknown operation "vanish"`) {
		t.Errorf("error = %q", out.Error)
	}
}

func TestDispatchInvalidArguments(t *testing.T) {
	r := NewRegistry(testLogger())
	r.Register(echoTool())

	tests := []struct {
		name    string
		args    map[string]any
		wantErr string
	}{
		{"missing required", map[string]any{}, `missing required argument "message"`},
		{"unexpected key", map[string]any{"message": "hi", "volume": 11}, `unexpected argument "volume"`},
		{"wrong type", map[string]any{"message": 42}, `argument "message" must be a string`},
		{"fractional integer", map[string]any{"message": "hi", "count": 1.5}, `argument "count" must be a whole number`},
		{"wrong boolean", map[string]any{"message": "hi", "loud": "yes"}, `argument "loud" must be a boolean`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := r.Dispatch(context.Background(), "echo", tt.args)
			if out.OK() {
				t.Fatal("invalid arguments should fail")
			}
			if out.Category != CategoryInvalidArguments {
				t.Errorf("category = %q, want %q", out.Category, CategoryInvalidArguments)
			}
			if out.Error != tt.wantErr {
				t.Errorf("error = %q, want %q", out.Error, tt.wantErr)
			}
		})
	}
}

func TestDispatchWholeFloatInteger(t *testing.T) {
	r := NewRegistry(testLogger())
	r.Register(echoTool())

	// JSON decoding hands integers to handlers as float64.
	out := r.Dispatch(context.Background(), "echo", map[string]any{"message": "hi", "count": float64(3)})
	if !out.OK() {
		t.Errorf("whole float64 rejected: %s", out.Error)
	}
}

func TestDispatchHandlerError(t *testing.T) {
	r := NewRegistry(testLogger())
	r.Register(&Tool{
		Name:       "broken",
		Parameters: map[string]any{"type": "object", "properties": map[string]any{}},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return nil, errors.New("backend unreachable")
		},
	})

	out := r.Dispatch(context.Background(), "broken", nil)
	if out.OK() {
		t.Fatal("handler error should fail")
	}
	if out.Category != CategoryExecutionError {
		t.Errorf("category = %q, want %q", out.Category, CategoryExecutionError)
	}
	if out.Error != "backend unreachable" {
		t.Errorf("error = %q", out.Error)
	}
}

func TestDispatchRecoversPanic(t *testing.T) {
	r := NewRegistry(testLogger())
	r.Register(&Tool{
		Name:       "boom",
		Parameters: map[string]any{"type": "object", "properties": map[string]any{}},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			panic("nil map write")
		},
	})

	out := r.Dispatch(context.Background(), "boom", nil)
	if out.OK() {
		t.Fatal("panicking handler should produce a failed outcome")
	}
	if out.Category != CategoryExecutionError {
		t.Errorf("category = %q, want %q", out.Category, CategoryExecutionError)
	}
	if !strings.Contains(out.Error, "nil map write") {
		t.Errorf("error = %q, want panic value included", out.Error)
	}
}

func TestDispatchDegradesUnserializableResult(t *testing.T) {
	r := NewRegistry(testLogger())
	r.Register(&Tool{
		Name:       "weird",
		Parameters: map[string]any{"type": "object", "properties": map[string]any{}},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return map[string]any{"fn": func() {}}, nil
		},
	})

	out := r.Dispatch(context.Background(), "weird", nil)
	if !out.OK() {
		t.Fatalf("dispatch failed: %s", out.Error)
	}
	if _, err := json.Marshal(out); err != nil {
		t.Errorf("outcome still not serializable: %v", err)
	}
	if _, ok := out.Result.(string); !ok {
		t.Errorf("result = %T, want degraded string", out.Result)
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	r := NewRegistry(testLogger())
	r.Register(echoTool())

	defer func() {
		if recover() == nil {
			t.Error("duplicate registration should panic")
		}
	}()
	r.Register(echoTool())
}

func TestDeclarationsMatchRegistered(t *testing.T) {
	r := NewRegistry(testLogger())
	r.Register(echoTool())
	r.Register(&Tool{
		Name:       "aaa_first",
		Parameters: map[string]any{"type": "object", "properties": map[string]any{}},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return nil, nil
		},
	})

	decls := r.Declarations()
	names := r.Names()
	if len(decls) != len(names) {
		t.Fatalf("%d declarations, %d names", len(decls), len(names))
	}
	for i, d := range decls {
		if d["name"] != names[i] {
			t.Errorf("declaration %d = %v, want %s", i, d["name"], names[i])
		}
	}
	// Sorted order is what the model sees on every call.
	if names[0] != "aaa_first" || names[1] != "echo" {
		t.Errorf("names = %v, want sorted", names)
	}
}
