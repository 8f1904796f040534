package identity

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/quillpad/quillpad-agent/internal/blogapi"
)

// Registry is the single source of truth for "is this identity
// currently authenticated". It holds at most one token per identity;
// a new login replaces, never stacks, the prior token. Tokens never
// leave this package except inside requests built by the API client.
type Registry struct {
	logger *slog.Logger
	store  *Store

	mu     sync.Mutex
	api    *blogapi.Client
	idents map[int64]Identity
	tokens map[int64]string
}

// NewRegistry builds a registry preloaded from the store. Store may be
// nil for an in-memory registry (tests).
func NewRegistry(store *Store, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		logger: logger.With("component", "identity"),
		store:  store,
		idents: make(map[int64]Identity),
		tokens: make(map[int64]string),
	}
	if store != nil {
		all, err := store.All()
		if err != nil {
			return nil, fmt.Errorf("load identities: %w", err)
		}
		for _, ident := range all {
			r.idents[ident.ID] = ident
		}
		r.logger.Info("identities loaded", "count", len(all))
	}
	return r, nil
}

// Bind attaches the API client used for login/logout exchanges. Done
// post-construction because the client's auth-reject hook points back
// at this registry.
func (r *Registry) Bind(api *blogapi.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.api = api
}

// Add records a new identity, persisting it when a store is attached.
// Adding an id that already exists is a no-op.
func (r *Registry) Add(ident Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.idents[ident.ID]; ok {
		return nil
	}
	if r.store != nil {
		if err := r.store.Add(ident); err != nil {
			return err
		}
	}
	r.idents[ident.ID] = ident
	return nil
}

// Get returns the identity for an id.
func (r *Registry) Get(id int64) (Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ident, ok := r.idents[id]
	return ident, ok
}

// ByUsername returns the identity with the given username.
func (r *Registry) ByUsername(username string) (Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ident := range r.idents {
		if ident.Username == username {
			return ident, true
		}
	}
	return Identity{}, false
}

// ByEmail returns the identity with the given email.
func (r *Registry) ByEmail(email string) (Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ident := range r.idents {
		if ident.Email == email {
			return ident, true
		}
	}
	return Identity{}, false
}

// All returns every known identity ordered by id.
func (r *Registry) All() []Identity {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Identity, 0, len(r.idents))
	for _, ident := range r.idents {
		out = append(out, ident)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetPassword rotates a stored password and drops the session token:
// the server-side token for the old password is no longer trustworthy.
func (r *Registry) SetPassword(id int64, password string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ident, ok := r.idents[id]
	if !ok {
		return fmt.Errorf("identity %d not found", id)
	}
	if r.store != nil {
		if err := r.store.UpdatePassword(id, password); err != nil {
			return err
		}
	}
	ident.Password = password
	r.idents[id] = ident
	delete(r.tokens, id)
	return nil
}

// Login authenticates the identity against the backend. Idempotent:
// an already-active session succeeds with no network call.
func (r *Registry) Login(ctx context.Context, id int64) blogapi.Result {
	r.mu.Lock()
	ident, ok := r.idents[id]
	if !ok {
		r.mu.Unlock()
		return blogapi.Failure(fmt.Sprintf("user with ID %d not found locally", id))
	}
	if _, active := r.tokens[id]; active {
		r.mu.Unlock()
		return blogapi.Result{Success: true, Data: map[string]any{
			"username": ident.Username,
			"status":   "already logged in",
		}}
	}
	api := r.api
	r.mu.Unlock()

	if api == nil {
		return blogapi.Failure("registry has no API client bound")
	}

	data, res := api.Login(ctx, ident.Username, ident.Password)
	if !res.Success {
		r.logger.Warn("login failed", "user", ident.Username, "status", res.Status, "error", res.Err)
		return blogapi.Result{Status: res.Status, Data: res.Data, Err: res.Err}
	}

	r.mu.Lock()
	r.tokens[id] = data.Token
	r.mu.Unlock()

	r.logger.Info("logged in", "user", ident.Username, "role", data.Role)

	// The token stays inside the registry. The envelope handed back up
	// carries only what the model is allowed to see.
	return blogapi.Result{Success: true, Status: res.Status, Data: map[string]any{
		"username": data.Username,
		"user_id":  data.UserID,
		"role":     data.Role,
		"status":   "logged in",
	}}
}

// Logout ends the identity's session. Tolerant: an identity with no
// local token is already logged out, and the server reporting the
// token invalid (401) still counts as a successful logout.
func (r *Registry) Logout(ctx context.Context, id int64) blogapi.Result {
	r.mu.Lock()
	ident, ok := r.idents[id]
	if !ok {
		r.mu.Unlock()
		return blogapi.Failure(fmt.Sprintf("user with ID %d not found locally", id))
	}
	token, active := r.tokens[id]
	if !active {
		r.mu.Unlock()
		return blogapi.Result{Success: true, Data: map[string]any{
			"username": ident.Username,
			"status":   "already logged out",
		}}
	}
	delete(r.tokens, id)
	api := r.api
	r.mu.Unlock()

	if api == nil {
		return blogapi.Failure("registry has no API client bound")
	}

	res := api.Logout(ctx, token)
	if res.Success || res.Status == http.StatusUnauthorized {
		r.logger.Info("logged out", "user", ident.Username)
		return blogapi.Result{Success: true, Status: res.Status, Data: map[string]any{
			"username": ident.Username,
			"status":   "logged out",
		}}
	}

	r.logger.Warn("logout failed", "user", ident.Username, "status", res.Status, "error", res.Err)
	return res
}

// IsLoggedIn reports whether the identity holds a token.
func (r *Registry) IsLoggedIn(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tokens[id]
	return ok
}

// Invalidate drops the identity's token without a network call.
func (r *Registry) Invalidate(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, id)
}

// InvalidateToken drops whichever session holds the given token. Wired
// as the API client's auth-reject hook so a 401 from the server clears
// the stale token before the next call.
func (r *Registry) InvalidateToken(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.tokens {
		if t == token {
			delete(r.tokens, id)
			if ident, ok := r.idents[id]; ok {
				r.logger.Warn("session invalidated by server", "user", ident.Username)
			}
			return
		}
	}
}

// ActiveIDs returns the ids of all identities holding a token, sorted.
func (r *Registry) ActiveIDs() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int64, 0, len(r.tokens))
	for id := range r.tokens {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Authed runs fn with the identity's token. When the identity is
// unknown or holds no token it fails fast without a network call.
func (r *Registry) Authed(id int64, fn func(token string) blogapi.Result) blogapi.Result {
	r.mu.Lock()
	ident, ok := r.idents[id]
	if !ok {
		r.mu.Unlock()
		return blogapi.Failure(fmt.Sprintf("user with ID %d not found locally", id))
	}
	token, active := r.tokens[id]
	r.mu.Unlock()

	if !active {
		return blogapi.Failure(fmt.Sprintf("user %q is not logged in", ident.Username))
	}
	return fn(token)
}
