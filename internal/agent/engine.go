// Package agent implements the conversational turn engine: one trigger
// prompts the model, resolves any requested tool calls, feeds the
// results back, and logs the model's final summary.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quillpad/quillpad-agent/internal/actionlog"
	"github.com/quillpad/quillpad-agent/internal/identity"
	"github.com/quillpad/quillpad-agent/internal/llm"
	"github.com/quillpad/quillpad-agent/internal/tools"
)

// Turn is one entry of conversation history. The closed role set and
// typed payloads mean history never needs re-parsing: a model turn
// carries text and/or calls, a tool turn carries the outcomes of the
// calls in the model turn directly before it.
type Turn struct {
	Role    string
	Text    string
	Calls   []llm.ToolCall
	Results []tools.Outcome
}

// Options bound the engine's loop and retry behavior.
type Options struct {
	// MaxToolCycles caps tool-call rounds within one trigger.
	MaxToolCycles int
	// RetryAttempts is how many times a failed model call is retried
	// before the trigger gives up (bounded policy: the final failure
	// is returned, never retried forever).
	RetryAttempts int
	// RetryDelay is the fixed pause between model call retries.
	RetryDelay time.Duration
}

// Engine owns the conversation history and drives triggers. It is not
// safe for concurrent use; the scheduler serializes triggers.
type Engine struct {
	logger   *slog.Logger
	model    llm.Client
	registry *tools.Registry
	sessions *identity.Registry
	actions  *actionlog.Logger
	opts     Options

	history []Turn
}

// NewEngine wires the engine. All collaborators are required except
// actions, which may be nil to discard summaries.
func NewEngine(model llm.Client, registry *tools.Registry, sessions *identity.Registry, actions *actionlog.Logger, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxToolCycles <= 0 {
		opts.MaxToolCycles = 6
	}
	if opts.RetryAttempts < 0 {
		opts.RetryAttempts = 0
	}
	if actions == nil {
		actions = actionlog.New("", logger)
	}
	return &Engine{
		logger:   logger.With("component", "agent"),
		model:    model,
		registry: registry,
		sessions: sessions,
		actions:  actions,
		opts:     opts,
	}
}

// History returns a copy of the conversation history.
func (e *Engine) History() []Turn {
	out := make([]Turn, len(e.history))
	copy(out, e.history)
	return out
}

// Trigger runs one full prompt-and-resolve cycle with the standard
// recurring prompt.
func (e *Engine) Trigger(ctx context.Context) error {
	return e.TriggerWith(ctx, defaultPrompt)
}

// TriggerWith runs one cycle with a custom prompt body (used for the
// launch announcement). On an unrecoverable model error the exchange
// started by this trigger is dropped from history so the next trigger
// resumes from known-good state.
func (e *Engine) TriggerWith(ctx context.Context, prompt string) error {
	trigger := uuid.NewString()[:8]
	log := e.logger.With("trigger", trigger)
	base := len(e.history)

	e.history = append(e.history, Turn{Role: llm.RoleUser, Text: e.compose(prompt)})

	resp, err := e.chat(ctx, log)
	if err != nil {
		e.rewind(base, log)
		return err
	}

	cycles := 0
	for resp.HasToolCalls() {
		if cycles >= e.opts.MaxToolCycles {
			log.Warn("tool cycle limit reached, ending trigger",
				"cycles", cycles, "pending_calls", len(resp.Message.ToolCalls))
			e.actions.Warning(fmt.Sprintf("trigger %s ended after %d tool cycles with calls still pending", trigger, cycles))
			return nil
		}
		cycles++

		e.history = append(e.history, Turn{
			Role:  llm.RoleModel,
			Text:  resp.Message.Content,
			Calls: resp.Message.ToolCalls,
		})

		// Dispatch the batch in reply order; outcomes land in one tool
		// turn in the same order.
		outcomes := make([]tools.Outcome, 0, len(resp.Message.ToolCalls))
		for _, call := range resp.Message.ToolCalls {
			log.Info("dispatching tool", "tool", call.Name)
			out := e.registry.Dispatch(ctx, call.Name, call.Arguments)
			if !out.OK() {
				log.Warn("tool failed", "tool", call.Name, "category", out.Category, "error", out.Error)
			}
			outcomes = append(outcomes, out)
		}
		e.history = append(e.history, Turn{Role: llm.RoleTool, Results: outcomes})

		resp, err = e.chat(ctx, log)
		if err != nil {
			e.rewind(base, log)
			return err
		}
	}

	e.history = append(e.history, Turn{
		Role: llm.RoleModel,
		Text: resp.Message.Content,
	})

	text := strings.TrimSpace(resp.Message.Content)
	if text == "" {
		log.Warn("model produced no summary text", "cycles", cycles)
		e.actions.Warning(fmt.Sprintf("trigger %s finished %d tool cycles without a summary", trigger, cycles))
		return nil
	}

	e.actions.Record(text)
	log.Debug("trigger complete", "cycles", cycles, "summary_len", len(text))
	return nil
}

// compose builds the recurring user turn: timestamp, who is logged in,
// and the prompt body. Giving the model the active sessions on every
// turn keeps it from acting as users who are not logged in.
func (e *Engine) compose(prompt string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Date: %s\n", time.Now().Format(time.RFC3339))

	active := e.sessions.ActiveIDs()
	if len(active) == 0 {
		b.WriteString("Logged-in users: none\n")
	} else {
		b.WriteString("Logged-in users:")
		for _, id := range active {
			if ident, ok := e.sessions.Get(id); ok {
				fmt.Fprintf(&b, " %s(id=%d)", ident.Username, id)
			} else {
				fmt.Fprintf(&b, " id=%d", id)
			}
		}
		b.WriteByte('\n')
	}

	b.WriteString(prompt)
	return b.String()
}

// chat sends the full history to the model with bounded retry and a
// fixed delay between attempts. Only the model exchange is retried
// here, never tool dispatch.
func (e *Engine) chat(ctx context.Context, log *slog.Logger) (*llm.ChatResponse, error) {
	var lastErr error
	attempts := e.opts.RetryAttempts + 1

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			timer := time.NewTimer(e.opts.RetryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		resp, err := e.model.Chat(ctx, e.messages(), e.registry.Declarations())
		if err == nil {
			return resp, nil
		}
		lastErr = err
		log.Warn("model call failed", "attempt", attempt, "of", attempts, "error", err)

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("model call failed after %d attempts: %w", attempts, lastErr)
}

// rewind drops everything this trigger added so history ends at the
// last completed exchange.
func (e *Engine) rewind(base int, log *slog.Logger) {
	dropped := len(e.history) - base
	e.history = e.history[:base]
	log.Warn("dropped broken exchange from history", "turns", dropped)
}

// messages renders history for the model, prefixed with the system
// prompt. Tool outcomes are wrapped the way the backend of the
// conversation expects: a result object on success, an error object
// otherwise.
func (e *Engine) messages() []llm.Message {
	out := make([]llm.Message, 0, len(e.history)+1)
	out = append(out, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})

	for _, turn := range e.history {
		switch turn.Role {
		case llm.RoleUser:
			out = append(out, llm.Message{Role: llm.RoleUser, Content: turn.Text})

		case llm.RoleModel:
			out = append(out, llm.Message{
				Role:      llm.RoleModel,
				Content:   turn.Text,
				ToolCalls: turn.Calls,
			})

		case llm.RoleTool:
			results := make([]llm.ToolResult, 0, len(turn.Results))
			for _, o := range turn.Results {
				var response map[string]any
				if o.OK() {
					response = map[string]any{"result": o.Result}
				} else {
					response = map[string]any{
						"error":    o.Error,
						"category": o.Category,
					}
				}
				results = append(results, llm.ToolResult{Name: o.Name, Response: response})
			}
			out = append(out, llm.Message{Role: llm.RoleTool, ToolResults: results})
		}
	}
	return out
}
