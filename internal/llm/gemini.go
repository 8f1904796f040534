package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/quillpad/quillpad-agent/internal/config"
	"github.com/quillpad/quillpad-agent/internal/httpkit"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiClient is a client for the Gemini generateContent API.
type GeminiClient struct {
	apiKey      string
	model       string
	temperature float64
	baseURL     string
	httpClient  *http.Client
	logger      *slog.Logger
}

// GeminiOption configures the client.
type GeminiOption func(*GeminiClient)

// WithBaseURL overrides the API host (tests).
func WithBaseURL(u string) GeminiOption {
	return func(c *GeminiClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient overrides the underlying HTTP client (tests).
func WithHTTPClient(h *http.Client) GeminiOption {
	return func(c *GeminiClient) { c.httpClient = h }
}

// NewGeminiClient creates a client for the given model. Model replies
// can take a while before headers arrive, so the transport gets a
// generous response header timeout.
func NewGeminiClient(apiKey, model string, temperature float64, logger *slog.Logger, opts ...GeminiOption) *GeminiClient {
	if logger == nil {
		logger = slog.Default()
	}
	t := httpkit.NewTransport()
	t.ResponseHeaderTimeout = 120 * time.Second

	c := &GeminiClient{
		apiKey:      apiKey,
		model:       model,
		temperature: temperature,
		baseURL:     geminiBaseURL,
		logger:      logger.With("provider", "gemini"),
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(0),
			httpkit.WithTransport(t),
		),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Gemini request/response wire types.

type geminiRequest struct {
	SystemInstruction *geminiContent        `json:"system_instruction,omitempty"`
	Contents          []geminiContent       `json:"contents"`
	Tools             []geminiTool          `json:"tools,omitempty"`
	GenerationConfig  *geminiGenerationConf `json:"generationConfig,omitempty"`
}

type geminiGenerationConf struct {
	Temperature float64 `json:"temperature"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text             string                  `json:"text,omitempty"`
	FunctionCall     *geminiFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResponse `json:"functionResponse,omitempty"`
}

type geminiFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type geminiFunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiTool struct {
	FunctionDeclarations []map[string]any `json:"functionDeclarations"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// Chat sends the conversation and returns the model's reply.
func (c *GeminiClient) Chat(ctx context.Context, messages []Message, tools []map[string]any) (*ChatResponse, error) {
	req := geminiRequest{
		GenerationConfig: &geminiGenerationConf{Temperature: c.temperature},
	}

	contents, system := convertToGemini(messages)
	req.Contents = contents
	if system != "" {
		req.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: system}},
		}
	}
	if len(tools) > 0 {
		req.Tools = []geminiTool{{FunctionDeclarations: tools}}
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Debug("preparing request",
		"model", c.model,
		"contents", len(req.Contents),
		"tools", len(tools),
	)
	c.logger.Log(ctx, config.LevelTrace, "request payload", "json", string(jsonData))

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
	httpReq, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		c.logger.Error("API error", "status", resp.StatusCode, "body", errBody)
		return nil, fmt.Errorf("gemini API error %d: %s", resp.StatusCode, errBody)
	}

	var wire geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	result, err := convertFromGemini(&wire, c.model)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("response received",
		"input_tokens", result.InputTokens,
		"output_tokens", result.OutputTokens,
		"tool_calls", len(result.Message.ToolCalls),
		"content_len", len(result.Message.Content),
	)
	c.logger.Log(ctx, config.LevelTrace, "response content", "content", result.Message.Content)

	return result, nil
}

// convertToGemini maps neutral messages onto the wire format. System
// messages are collected into the system instruction; tool results
// become functionResponse parts on user-role contents.
func convertToGemini(messages []Message) ([]geminiContent, string) {
	var systemParts []string
	var out []geminiContent

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			systemParts = append(systemParts, msg.Content)

		case RoleModel:
			var parts []geminiPart
			if msg.Content != "" {
				parts = append(parts, geminiPart{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				args := tc.Arguments
				if args == nil {
					args = map[string]any{}
				}
				parts = append(parts, geminiPart{
					FunctionCall: &geminiFunctionCall{Name: tc.Name, Args: args},
				})
			}
			if len(parts) > 0 {
				out = append(out, geminiContent{Role: "model", Parts: parts})
			}

		case RoleTool:
			var parts []geminiPart
			for _, tr := range msg.ToolResults {
				parts = append(parts, geminiPart{
					FunctionResponse: &geminiFunctionResponse{
						Name:     tr.Name,
						Response: tr.Response,
					},
				})
			}
			if len(parts) > 0 {
				out = append(out, geminiContent{Role: "user", Parts: parts})
			}

		case RoleUser:
			out = append(out, geminiContent{
				Role:  "user",
				Parts: []geminiPart{{Text: msg.Content}},
			})
		}
	}

	return out, strings.Join(systemParts, "\n\n")
}

// convertFromGemini validates and maps the wire reply. A reply with no
// candidate content is a protocol error, not an empty answer.
func convertFromGemini(wire *geminiResponse, model string) (*ChatResponse, error) {
	if len(wire.Candidates) == 0 {
		return nil, fmt.Errorf("%w: reply contains no candidates", ErrProtocol)
	}

	cand := wire.Candidates[0]
	msg := Message{Role: RoleModel}
	for _, part := range cand.Content.Parts {
		switch {
		case part.FunctionCall != nil:
			args := part.FunctionCall.Args
			if args == nil {
				args = map[string]any{}
			}
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{
				Name:      part.FunctionCall.Name,
				Arguments: args,
			})
		case part.Text != "":
			if msg.Content != "" {
				msg.Content += "\n"
			}
			msg.Content += part.Text
		}
	}

	if msg.Content == "" && len(msg.ToolCalls) == 0 {
		return nil, fmt.Errorf("%w: candidate has neither text nor function calls (finish reason %q)",
			ErrProtocol, cand.FinishReason)
	}

	return &ChatResponse{
		Model:        model,
		Message:      msg,
		InputTokens:  wire.UsageMetadata.PromptTokenCount,
		OutputTokens: wire.UsageMetadata.CandidatesTokenCount,
	}, nil
}
