// Package tools defines the operations exposed to the model and the
// dispatch table that executes them.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
)

// Failure categories carried on an [Outcome]. The model sees these
// verbatim and can decide whether a semantic retry makes sense.
const (
	CategoryUnknownOperation = "unknown_operation"
	CategoryInvalidArguments = "invalid_arguments"
	CategoryExecutionError   = "execution_error"
)

// Handler executes one operation. Returning an error produces an
// execution_error outcome; it never aborts the surrounding turn.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Tool is one callable operation: the schema declared to the model
// plus its bound implementation.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Handler     Handler        `json:"-"`
}

// Outcome is the structured result of one dispatch. It is always
// JSON-serializable so it can be appended to conversation history.
type Outcome struct {
	Name     string `json:"name"`
	Result   any    `json:"result,omitempty"`
	Error    string `json:"error,omitempty"`
	Category string `json:"category,omitempty"`
}

// OK reports whether the dispatch succeeded.
func (o Outcome) OK() bool { return o.Error == "" }

// Registry is the dispatch table. Constructed once; the registered set
// is exactly the declared set by construction.
type Registry struct {
	logger *slog.Logger
	tools  map[string]*Tool
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger: logger.With("component", "tools"),
		tools:  make(map[string]*Tool),
	}
}

// Register adds a tool. Registering a duplicate name panics: the tool
// set is static and a collision is a programming error.
func (r *Registry) Register(t *Tool) {
	if _, ok := r.tools[t.Name]; ok {
		panic(fmt.Sprintf("tool %q registered twice", t.Name))
	}
	r.tools[t.Name] = t
}

// Names returns all registered operation names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Declarations renders the schema list sent to the model. Every entry
// here has a bound handler and vice versa.
func (r *Registry) Declarations() []map[string]any {
	var out []map[string]any
	for _, name := range r.Names() {
		t := r.tools[name]
		out = append(out, map[string]any{
			"name":        t.Name,
			"description": t.Description,
			"parameters":  t.Parameters,
		})
	}
	return out
}

// Dispatch executes one requested operation. It never returns an
// error or panics outward; every failure mode becomes a structured
// Outcome fed back to the model.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) (out Outcome) {
	out = Outcome{Name: name}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool panicked", "tool", name, "panic", rec)
			out = Outcome{
				Name:     name,
				Error:    fmt.Sprintf("internal error executing %s: %v", name, rec),
				Category: CategoryExecutionError,
			}
		}
	}()

	t, ok := r.tools[name]
	if !ok {
		out.Error = fmt.Sprintf("unknown operation %q", name)
		out.Category = CategoryUnknownOperation
		return out
	}

	if err := validateArgs(t.Parameters, args); err != nil {
		out.Error = err.Error()
		out.Category = CategoryInvalidArguments
		return out
	}

	result, err := t.Handler(ctx, args)
	if err != nil {
		out.Error = err.Error()
		out.Category = CategoryExecutionError
		return out
	}

	// A result the engine could not serialize would poison the whole
	// history; degrade it to a string here instead.
	if _, err := json.Marshal(result); err != nil {
		r.logger.Warn("tool result not JSON-serializable", "tool", name, "error", err)
		result = fmt.Sprintf("%v", result)
	}

	out.Result = result
	return out
}

// validateArgs checks the argument mapping against the declared schema:
// every required key must be present, and present values must match the
// declared type class.
func validateArgs(schema map[string]any, args map[string]any) error {
	props, _ := schema["properties"].(map[string]any)

	if required, ok := schema["required"].([]string); ok {
		for _, key := range required {
			if _, present := args[key]; !present {
				return fmt.Errorf("missing required argument %q", key)
			}
		}
	}

	for key, val := range args {
		decl, ok := props[key].(map[string]any)
		if !ok {
			return fmt.Errorf("unexpected argument %q", key)
		}
		declType, _ := decl["type"].(string)
		if val == nil {
			continue
		}
		if err := checkType(key, declType, val); err != nil {
			return err
		}
	}
	return nil
}

// checkType enforces the scalar/array type classes used by the schema.
// JSON numbers arrive as float64 regardless of the declared integer
// type, so "integer" additionally requires a whole value.
func checkType(key, declType string, val any) error {
	switch declType {
	case "string":
		if _, ok := val.(string); !ok {
			return fmt.Errorf("argument %q must be a string", key)
		}
	case "integer":
		f, ok := val.(float64)
		if !ok {
			if _, isInt := val.(int); isInt {
				return nil
			}
			if _, isInt64 := val.(int64); isInt64 {
				return nil
			}
			return fmt.Errorf("argument %q must be an integer", key)
		}
		if f != float64(int64(f)) {
			return fmt.Errorf("argument %q must be a whole number", key)
		}
	case "number":
		switch val.(type) {
		case float64, int, int64:
		default:
			return fmt.Errorf("argument %q must be a number", key)
		}
	case "boolean":
		if _, ok := val.(bool); !ok {
			return fmt.Errorf("argument %q must be a boolean", key)
		}
	case "array":
		if _, ok := val.([]any); !ok {
			return fmt.Errorf("argument %q must be an array", key)
		}
	case "object":
		if _, ok := val.(map[string]any); !ok {
			return fmt.Errorf("argument %q must be an object", key)
		}
	}
	return nil
}

// Argument accessors for handlers. JSON numbers decode as float64, so
// the integer accessors convert.

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func intArg(args map[string]any, key string) int64 {
	switch v := args[key].(type) {
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	}
	return 0
}

func boolArg(args map[string]any, key string, fallback bool) bool {
	if b, ok := args[key].(bool); ok {
		return b
	}
	return fallback
}
