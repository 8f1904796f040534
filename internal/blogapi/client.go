// Package blogapi is the HTTP client for the Quillpad blog REST
// backend. It normalizes every exchange into a [Result] envelope and
// keeps authentication tokens inside the client/registry boundary.
package blogapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/quillpad/quillpad-agent/internal/config"
	"github.com/quillpad/quillpad-agent/internal/httpkit"
)

// AuthRejectFunc is invoked when the server rejects a token-bearing
// request with 401. The session registry hooks this to drop the stale
// token so it is not reused on the next call.
type AuthRejectFunc func(token string)

// Client talks to the blog backend.
type Client struct {
	baseURL      string
	http         *http.Client
	logger       *slog.Logger
	onAuthReject AuthRejectFunc
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying http.Client (tests).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithAuthRejectHook registers the callback fired on server-side 401
// for authenticated calls.
func WithAuthRejectHook(fn AuthRejectFunc) Option {
	return func(c *Client) { c.onAuthReject = fn }
}

// New creates a client for the given API root, e.g.
// "http://localhost:8000/api".
func New(baseURL string, timeout time.Duration, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With("component", "blogapi"),
		http: httpkit.NewClient(
			httpkit.WithTimeout(timeout),
			httpkit.WithRetry(2, time.Second),
			httpkit.WithLogger(logger),
		),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// fileAttachment is one file part of a multipart submission.
type fileAttachment struct {
	field    string
	filename string
	content  io.Reader
}

// request describes one API exchange. A request carries at most one of
// {jsonBody, form+files}; when form or files are present the JSON body
// is ignored, so a call is never ambiguously both.
type request struct {
	method   string
	path     string
	query    url.Values
	jsonBody any
	form     map[string]string
	files    []fileAttachment
	token    string
	auth     bool
}

// do executes the request and folds every outcome into the envelope.
func (c *Client) do(ctx context.Context, r request) Result {
	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	if r.auth && r.token == "" {
		// Fail locally: no point sending a request the server will
		// reject, and the caller clearly forgot to log in first.
		return failure(http.StatusUnauthorized, nil, "authentication required, but no auth token available")
	}

	var body io.Reader
	contentType := ""
	switch {
	case len(r.files) > 0 || len(r.form) > 0:
		buf := &bytes.Buffer{}
		w := multipart.NewWriter(buf)
		for k, v := range r.form {
			if err := w.WriteField(k, v); err != nil {
				return failure(0, nil, fmt.Sprintf("build form: %v", err))
			}
		}
		for _, f := range r.files {
			part, err := w.CreateFormFile(f.field, f.filename)
			if err != nil {
				return failure(0, nil, fmt.Sprintf("build form file: %v", err))
			}
			if _, err := io.Copy(part, f.content); err != nil {
				return failure(0, nil, fmt.Sprintf("read attachment %s: %v", f.filename, err))
			}
		}
		if err := w.Close(); err != nil {
			return failure(0, nil, fmt.Sprintf("finish form: %v", err))
		}
		body = buf
		contentType = w.FormDataContentType()
	case r.jsonBody != nil:
		data, err := json.Marshal(r.jsonBody)
		if err != nil {
			return failure(0, nil, fmt.Sprintf("encode request body: %v", err))
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return failure(0, nil, fmt.Sprintf("create request: %v", err))
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if r.auth {
		req.Header.Set("Authorization", "Token "+r.token)
	}

	c.logger.Debug("api request", "method", r.method, "url", u, "auth", r.auth)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("api request failed", "method", r.method, "url", u, "error", err)
		return failure(0, nil, fmt.Sprintf("network request error: %v", err))
	}
	defer httpkit.DrainAndClose(resp.Body, 64*1024)

	if r.auth && resp.StatusCode == http.StatusUnauthorized && c.onAuthReject != nil {
		// Stale or revoked token. Tell the registry before reporting
		// the failure so the next call doesn't reuse it.
		c.onAuthReject(r.token)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return failure(resp.StatusCode, nil, fmt.Sprintf("read response: %v", err))
	}

	c.logger.Log(ctx, config.LevelTrace, "api response",
		"status", resp.StatusCode, "body", string(raw))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if resp.StatusCode == http.StatusNoContent || len(raw) == 0 {
			return succeed(resp.StatusCode, nil)
		}
		var data any
		if err := json.Unmarshal(raw, &data); err != nil {
			return failure(resp.StatusCode, string(raw), "failed to decode JSON response from server")
		}
		return succeed(resp.StatusCode, data)
	}

	// Error status: keep the decoded error body when the server sent
	// JSON, raw text otherwise, so the model sees the field errors.
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		data = string(raw)
	}
	return failure(resp.StatusCode, data, fmt.Sprintf("HTTP error %d", resp.StatusCode))
}

// openAttachment resolves a local image path into a file part.
func openAttachment(field, path string) (fileAttachment, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return fileAttachment{}, nil, fmt.Errorf("open image file: %w", err)
	}
	return fileAttachment{
		field:    field,
		filename: filepath.Base(path),
		content:  f,
	}, func() { f.Close() }, nil
}
