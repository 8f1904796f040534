package llm

import "context"

// Client is the model interface the engine talks to. tools carries the
// declaration list rendered by the tool registry.
type Client interface {
	Chat(ctx context.Context, messages []Message, tools []map[string]any) (*ChatResponse, error)
}
