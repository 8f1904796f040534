// Package llm provides the generative model client.
package llm

import "errors"

// Message roles. The engine builds history from exactly these; wire
// format conversion happens at the provider boundary (gemini.go).
const (
	RoleSystem = "system"
	RoleUser   = "user"
	RoleModel  = "model"
	RoleTool   = "tool"
)

// ErrProtocol marks a structurally invalid model reply (no candidates,
// empty content). Callers treat it as unrecoverable for the current
// exchange and resynchronize by trimming history.
var ErrProtocol = errors.New("model protocol error")

// ToolCall is one operation the model asked to invoke. Gemini
// correlates calls and results by name, so there is no call id.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult feeds the outcome of one call back to the model.
type ToolResult struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// Message is one turn of conversation in provider-neutral form.
type Message struct {
	Role        string       `json:"role"`
	Content     string       `json:"content,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
}

// ChatResponse is the unified reply from the model. The message can
// carry free text, tool calls, or both.
type ChatResponse struct {
	Model   string
	Message Message

	InputTokens  int
	OutputTokens int
}

// HasToolCalls reports whether the model requested any operations.
func (r *ChatResponse) HasToolCalls() bool {
	return len(r.Message.ToolCalls) > 0
}
