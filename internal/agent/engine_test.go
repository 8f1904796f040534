package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/quillpad/quillpad-agent/internal/identity"
	"github.com/quillpad/quillpad-agent/internal/llm"
	"github.com/quillpad/quillpad-agent/internal/tools"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedModel replays a fixed sequence of replies and errors and
// records every message batch it was sent.
type scriptedModel struct {
	script []func() (*llm.ChatResponse, error)
	calls  int
	sent   [][]llm.Message
}

func (m *scriptedModel) Chat(ctx context.Context, messages []llm.Message, decls []map[string]any) (*llm.ChatResponse, error) {
	m.sent = append(m.sent, messages)
	if m.calls >= len(m.script) {
		return nil, errors.New("script exhausted")
	}
	step := m.script[m.calls]
	m.calls++
	return step()
}

func reply(text string, calls ...llm.ToolCall) func() (*llm.ChatResponse, error) {
	return func() (*llm.ChatResponse, error) {
		return &llm.ChatResponse{
			Message: llm.Message{Role: llm.RoleModel, Content: text, ToolCalls: calls},
		}, nil
	}
}

func fail(msg string) func() (*llm.ChatResponse, error) {
	return func() (*llm.ChatResponse, error) { return nil, errors.New(msg) }
}

func testRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry(testLogger())
	r.Register(&tools.Tool{
		Name:        "note",
		Description: "Records a note.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{"type": "string"},
			},
			"required": []string{"text"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return map[string]any{"noted": args["text"]}, nil
		},
	})
	return r
}

func newTestEngine(t *testing.T, model llm.Client, opts Options) *Engine {
	t.Helper()
	sessions, err := identity.NewRegistry(nil, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	return NewEngine(model, testRegistry(t), sessions, nil, opts, testLogger())
}

func TestTriggerPlainReply(t *testing.T) {
	model := &scriptedModel{script: []func() (*llm.ChatResponse, error){
		reply("Nothing to do right now."),
	}}
	e := newTestEngine(t, model, Options{})

	if err := e.Trigger(context.Background()); err != nil {
		t.Fatal(err)
	}

	hist := e.History()
	if len(hist) != 2 {
		t.Fatalf("history = %d turns, want 2", len(hist))
	}
	if hist[0].Role != llm.RoleUser || hist[1].Role != llm.RoleModel {
		t.Errorf("roles = %s, %s", hist[0].Role, hist[1].Role)
	}
	if hist[1].Text != "Nothing to do right now." {
		t.Errorf("model turn = %q", hist[1].Text)
	}
}

func TestTriggerComposesUserTurn(t *testing.T) {
	model := &scriptedModel{script: []func() (*llm.ChatResponse, error){
		reply("ok"),
	}}
	e := newTestEngine(t, model, Options{})

	if err := e.Trigger(context.Background()); err != nil {
		t.Fatal(err)
	}

	user := e.History()[0].Text
	if !strings.HasPrefix(user, "Date: ") {
		t.Errorf("user turn missing date: %q", user)
	}
	if !strings.Contains(user, "Logged-in users: none") {
		t.Errorf("user turn missing session state: %q", user)
	}
	if !strings.HasSuffix(user, "What action to take?") {
		t.Errorf("user turn missing prompt: %q", user)
	}
}

func TestTriggerResolvesToolCalls(t *testing.T) {
	model := &scriptedModel{script: []func() (*llm.ChatResponse, error){
		reply("", llm.ToolCall{Name: "note", Arguments: map[string]any{"text": "hello"}},
			llm.ToolCall{Name: "vanish", Arguments: map[string]any{}}),
		reply("Noted hello, vanish is not a thing."),
	}}
	e := newTestEngine(t, model, Options{})

	if err := e.Trigger(context.Background()); err != nil {
		t.Fatal(err)
	}

	hist := e.History()
	// user, model+calls, tool, final model
	if len(hist) != 4 {
		t.Fatalf("history = %d turns, want 4", len(hist))
	}

	toolTurn := hist[2]
	if toolTurn.Role != llm.RoleTool || len(toolTurn.Results) != 2 {
		t.Fatalf("tool turn = %+v", toolTurn)
	}
	if !toolTurn.Results[0].OK() {
		t.Errorf("note outcome failed: %s", toolTurn.Results[0].Error)
	}
	if toolTurn.Results[1].OK() || toolTurn.Results[1].Category != tools.CategoryUnknownOperation {
		t.Errorf("vanish outcome = %+v", toolTurn.Results[1])
	}

	// The second model exchange must have seen both outcomes.
	last := model.sent[1]
	foundResults := false
	for _, msg := range last {
		if msg.Role == llm.RoleTool && len(msg.ToolResults) == 2 {
			foundResults = true
			if msg.ToolResults[1].Response["category"] != tools.CategoryUnknownOperation {
				t.Errorf("resubmitted outcome = %v", msg.ToolResults[1].Response)
			}
		}
	}
	if !foundResults {
		t.Error("tool outcomes were not resubmitted to the model")
	}
}

func TestTriggerSystemPromptFirst(t *testing.T) {
	model := &scriptedModel{script: []func() (*llm.ChatResponse, error){
		reply("ok"),
	}}
	e := newTestEngine(t, model, Options{})
	e.Trigger(context.Background())

	first := model.sent[0][0]
	if first.Role != llm.RoleSystem || first.Content == "" {
		t.Errorf("first message = %+v, want system prompt", first)
	}
}

func TestTriggerCycleLimit(t *testing.T) {
	endless := func() (*llm.ChatResponse, error) {
		return reply("", llm.ToolCall{Name: "note", Arguments: map[string]any{"text": "again"}})()
	}
	model := &scriptedModel{script: []func() (*llm.ChatResponse, error){
		endless, endless, endless, endless,
	}}
	e := newTestEngine(t, model, Options{MaxToolCycles: 2})

	if err := e.Trigger(context.Background()); err != nil {
		t.Fatalf("hitting the cycle limit is not an error: %v", err)
	}
	if model.calls != 3 {
		t.Errorf("model called %d times, want 3 (initial + 2 cycles)", model.calls)
	}

	// The pending model turn with unexecuted calls is not kept; history
	// must end on a tool turn so every recorded call has its outcomes.
	hist := e.History()
	if hist[len(hist)-1].Role != llm.RoleTool {
		t.Errorf("last turn role = %s, want tool", hist[len(hist)-1].Role)
	}
	for i, turn := range hist {
		if turn.Role == llm.RoleModel && len(turn.Calls) > 0 {
			if i+1 >= len(hist) || hist[i+1].Role != llm.RoleTool {
				t.Errorf("turn %d has calls without a following tool turn", i)
			}
		}
	}
}

func TestTriggerRewindsOnModelError(t *testing.T) {
	// Seed one good exchange.
	model := &scriptedModel{script: []func() (*llm.ChatResponse, error){
		reply("first summary"),
		reply("", llm.ToolCall{Name: "note", Arguments: map[string]any{"text": "x"}}),
		fail("boom"),
	}}
	e := newTestEngine(t, model, Options{RetryAttempts: 0})

	if err := e.Trigger(context.Background()); err != nil {
		t.Fatal(err)
	}
	goodLen := len(e.History())

	err := e.Trigger(context.Background())
	if err == nil {
		t.Fatal("model failure should surface")
	}
	if !strings.Contains(err.Error(), "model call failed after 1 attempts") {
		t.Errorf("err = %v", err)
	}
	if got := len(e.History()); got != goodLen {
		t.Errorf("history = %d turns after failed trigger, want %d", got, goodLen)
	}
}

func TestChatRetriesBounded(t *testing.T) {
	model := &scriptedModel{script: []func() (*llm.ChatResponse, error){
		fail("one"), fail("two"), reply("third time lucky"),
	}}
	e := newTestEngine(t, model, Options{RetryAttempts: 2, RetryDelay: time.Millisecond})

	if err := e.Trigger(context.Background()); err != nil {
		t.Fatalf("retry should have recovered: %v", err)
	}
	if model.calls != 3 {
		t.Errorf("model called %d times, want 3", model.calls)
	}
}

func TestChatRetriesExhausted(t *testing.T) {
	model := &scriptedModel{script: []func() (*llm.ChatResponse, error){
		fail("one"), fail("two"), fail("three"),
	}}
	e := newTestEngine(t, model, Options{RetryAttempts: 2, RetryDelay: time.Millisecond})

	err := e.Trigger(context.Background())
	if err == nil {
		t.Fatal("exhausted retries should fail")
	}
	if !strings.Contains(err.Error(), "after 3 attempts") || !strings.Contains(err.Error(), "three") {
		t.Errorf("err = %v, want final attempt count and last error", err)
	}
}

func TestChatRetryStopsOnContextCancel(t *testing.T) {
	model := &scriptedModel{script: []func() (*llm.ChatResponse, error){
		fail("one"),
	}}
	e := newTestEngine(t, model, Options{RetryAttempts: 5, RetryDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Trigger(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("trigger did not stop on cancellation")
	}
	if model.calls != 1 {
		t.Errorf("model called %d times after cancel, want 1", model.calls)
	}
}

func TestTriggerEmptySummary(t *testing.T) {
	model := &scriptedModel{script: []func() (*llm.ChatResponse, error){
		reply("   "),
	}}
	e := newTestEngine(t, model, Options{})

	if err := e.Trigger(context.Background()); err != nil {
		t.Fatalf("empty summary is not an error: %v", err)
	}
	if len(e.History()) != 2 {
		t.Errorf("history = %d turns, want 2", len(e.History()))
	}
}

func TestComposeListsActiveSessions(t *testing.T) {
	sessions, err := identity.NewRegistry(nil, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	e := NewEngine(&scriptedModel{}, testRegistry(t), sessions, nil, Options{}, testLogger())

	sessions.Add(identity.Identity{ID: 3, Username: "ana", Password: "p"})

	// No sessions yet.
	if got := e.compose("p"); !strings.Contains(got, "Logged-in users: none") {
		t.Errorf("compose = %q", got)
	}
}
