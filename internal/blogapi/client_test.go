package blogapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithHTTPClient(srv.Client())}, opts...)
	return New(srv.URL, 5*time.Second, testLogger(), opts...)
}

func TestAuthWithoutTokenFailsLocally(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	res := c.Logout(context.Background(), "")

	if res.Success {
		t.Error("logout without token should fail")
	}
	if res.Status != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", res.Status)
	}
	if !strings.Contains(res.Err, "no auth token available") {
		t.Errorf("error = %q, want token hint", res.Err)
	}
	if n := hits.Load(); n != 0 {
		t.Errorf("server hit %d times, want 0", n)
	}
}

func TestAuthRejectHookFiresOn401(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"detail": "Invalid token."})
	}))
	defer srv.Close()

	var rejected string
	c := testClient(t, srv, WithAuthRejectHook(func(token string) { rejected = token }))

	res := c.Profile(context.Background(), "stale-token")
	if res.Success {
		t.Error("401 response should fail")
	}
	if rejected != "stale-token" {
		t.Errorf("rejected token = %q, want %q", rejected, "stale-token")
	}
}

func TestAuthRejectHookNotFiredOnPublic401(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	fired := false
	c := testClient(t, srv, WithAuthRejectHook(func(string) { fired = true }))

	c.ListTags(context.Background())
	if fired {
		t.Error("hook fired for an unauthenticated call")
	}
}

func TestTokenHeader(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	res := c.Logout(context.Background(), "abc123")

	if !res.Success {
		t.Fatalf("logout failed: %s", res.Err)
	}
	if got != "Token abc123" {
		t.Errorf("Authorization = %q, want %q", got, "Token abc123")
	}
}

func TestNoContentSucceedsWithNilData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	res := c.RecordView(context.Background(), "hello-world")

	if !res.Success {
		t.Fatalf("expected success, got %s", res.Err)
	}
	if res.Data != nil {
		t.Errorf("data = %v, want nil", res.Data)
	}
}

func TestUndecodableSuccessBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>not json</html>")
	}))
	defer srv.Close()

	c := testClient(t, srv)
	res := c.ListPosts(context.Background(), PostFilter{})

	if res.Success {
		t.Error("undecodable 2xx body should fail")
	}
	if !strings.Contains(res.Err, "failed to decode JSON response") {
		t.Errorf("error = %q, want decode failure", res.Err)
	}
}

func TestErrorBodyPreserved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"title": []string{"This field is required."}})
	}))
	defer srv.Close()

	c := testClient(t, srv)
	res := c.CreatePost(context.Background(), "tok", NewPost{Content: "body"})

	if res.Success {
		t.Error("400 should fail")
	}
	if res.Err != "HTTP error 400" {
		t.Errorf("error = %q, want %q", res.Err, "HTTP error 400")
	}
	body, ok := res.Data.(map[string]any)
	if !ok {
		t.Fatalf("data = %T, want decoded object", res.Data)
	}
	if _, ok := body["title"]; !ok {
		t.Error("field errors from server were dropped")
	}
}

func TestNetworkErrorStatusZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c := New(srv.URL, time.Second, testLogger(), WithHTTPClient(&http.Client{Timeout: time.Second}))
	res := c.ListTags(context.Background())

	if res.Success {
		t.Error("unreachable server should fail")
	}
	if res.Status != 0 {
		t.Errorf("status = %d, want 0", res.Status)
	}
	if !strings.Contains(res.Err, "network request error") {
		t.Errorf("error = %q, want network error", res.Err)
	}
}

func TestLoginValidatesBody(t *testing.T) {
	tests := []struct {
		name    string
		body    map[string]any
		wantErr string
	}{
		{
			name: "complete",
			body: map[string]any{
				"token": "t1", "user_id": 7, "username": "ana", "role": "member",
			},
		},
		{
			name:    "missing token and role",
			body:    map[string]any{"user_id": 7, "username": "ana"},
			wantErr: "login response missing fields: token, role",
		},
		{
			name:    "missing everything",
			body:    map[string]any{},
			wantErr: "login response missing fields: token, user_id, username, role",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(tt.body)
			}))
			defer srv.Close()

			c := testClient(t, srv)
			data, res := c.Login(context.Background(), "ana", "pw")

			if tt.wantErr == "" {
				if !res.Success {
					t.Fatalf("login failed: %s", res.Err)
				}
				if data.Token != "t1" || data.UserID != 7 || data.Username != "ana" || data.Role != "member" {
					t.Errorf("parsed login data = %+v", data)
				}
				return
			}
			if res.Success {
				t.Fatal("incomplete login body should fail")
			}
			if res.Err != tt.wantErr {
				t.Errorf("error = %q, want %q", res.Err, tt.wantErr)
			}
		})
	}
}

func TestCreatePostJSONBody(t *testing.T) {
	var gotType string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id": 1}`)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	res := c.CreatePost(context.Background(), "tok", NewPost{
		Title:       "Hello",
		Content:     "World",
		Tags:        []string{"go", "testing"},
		IsPublished: true,
	})

	if !res.Success {
		t.Fatalf("create failed: %s", res.Err)
	}
	if gotType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotType)
	}
	if gotBody["title"] != "Hello" || gotBody["is_published"] != true {
		t.Errorf("body = %v", gotBody)
	}
	tags, _ := gotBody["tags"].([]any)
	if len(tags) != 2 {
		t.Errorf("tags = %v, want 2 entries", gotBody["tags"])
	}
}

func TestCreatePostWithImageIsMultipart(t *testing.T) {
	img := filepath.Join(t.TempDir(), "cover.png")
	if err := os.WriteFile(img, []byte("fakepng"), 0600); err != nil {
		t.Fatal(err)
	}

	var gotType string
	var gotTitle, gotFile string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Content-Type")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		gotTitle = r.FormValue("title")
		if _, hdr, err := r.FormFile("featured_image"); err == nil {
			gotFile = hdr.Filename
		}
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id": 2}`)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	res := c.CreatePost(context.Background(), "tok", NewPost{
		Title:     "With image",
		Content:   "body",
		ImagePath: img,
	})

	if !res.Success {
		t.Fatalf("create failed: %s", res.Err)
	}
	if !strings.HasPrefix(gotType, "multipart/form-data") {
		t.Errorf("Content-Type = %q, want multipart", gotType)
	}
	if gotTitle != "With image" {
		t.Errorf("title = %q", gotTitle)
	}
	if gotFile != "cover.png" {
		t.Errorf("attached file = %q, want cover.png", gotFile)
	}
}

func TestPostFilterQuery(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.RawQuery
		io.WriteString(w, `{"results": []}`)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	c.ListPosts(context.Background(), PostFilter{
		Limit:  10,
		Tag:    "golang",
		Search: "scheduler",
	})

	for _, want := range []string{"limit=10", "offset=0", "tags__name=golang", "search=scheduler"} {
		if !strings.Contains(got, want) {
			t.Errorf("query %q missing %q", got, want)
		}
	}
	if strings.Contains(got, "category=") {
		t.Errorf("query %q contains empty category", got)
	}
}

func TestCreateCommentReplyParent(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id": 5}`)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	parent := int64(3)
	c.CreateComment(context.Background(), "tok", 12, "nice post", &parent)

	if gotBody["post"] != float64(12) {
		t.Errorf("post = %v, want 12", gotBody["post"])
	}
	if gotBody["parent"] != float64(3) {
		t.Errorf("parent = %v, want 3", gotBody["parent"])
	}

	c.CreateComment(context.Background(), "tok", 12, "top level", nil)
	if gotBody["parent"] != nil {
		t.Errorf("parent = %v, want null", gotBody["parent"])
	}
}

func TestResultJSONShape(t *testing.T) {
	raw, err := json.Marshal(failure(404, map[string]any{"detail": "Not found."}, "HTTP error 404"))
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"success", "status", "data", "error"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("envelope missing %q key", key)
		}
	}
	if decoded["success"] != false {
		t.Errorf("success = %v, want false", decoded["success"])
	}
}
