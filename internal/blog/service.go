// Package blog is the simulation façade: the operations the agent's
// tools are bound to, keyed by local identity id. It combines the API
// client (wire) with the identity registry (who is logged in).
package blog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quillpad/quillpad-agent/internal/blogapi"
	"github.com/quillpad/quillpad-agent/internal/identity"
)

// Service exposes blog operations to the tool layer.
type Service struct {
	api    *blogapi.Client
	reg    *identity.Registry
	logger *slog.Logger
}

// NewService wires the façade.
func NewService(api *blogapi.Client, reg *identity.Registry, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{api: api, reg: reg, logger: logger.With("component", "blog")}
}

// Registry exposes the underlying session registry (engine context).
func (s *Service) Registry() *identity.Registry {
	return s.reg
}

// Register creates a backend account and records it locally. Duplicate
// usernames or emails are rejected from the local address book first,
// so no second registration request ever reaches the server.
func (s *Service) Register(ctx context.Context, username, email, password string) blogapi.Result {
	if _, ok := s.reg.ByUsername(username); ok {
		return blogapi.Failure(fmt.Sprintf("user %q already exists", username))
	}
	if _, ok := s.reg.ByEmail(email); ok {
		return blogapi.Failure(fmt.Sprintf("email %q already exists", email))
	}

	res := s.api.Register(ctx, username, email, password)
	if !res.Success {
		return res
	}

	body, ok := res.Data.(map[string]any)
	if !ok {
		return blogapi.Result{Status: res.Status, Data: res.Data,
			Err: "registration response is not an object"}
	}
	id, ok := body["id"].(float64)
	if !ok {
		return blogapi.Result{Status: res.Status, Data: res.Data,
			Err: "registration response missing numeric id"}
	}
	name, _ := body["username"].(string)
	if name == "" {
		name = username
	}
	mail, _ := body["email"].(string)
	if mail == "" {
		mail = email
	}

	ident := identity.Identity{
		ID:       int64(id),
		Username: name,
		Email:    mail,
		Password: password,
	}
	if err := s.reg.Add(ident); err != nil {
		// The account exists server-side; losing the local record is
		// worth surfacing even though the HTTP call succeeded.
		s.logger.Error("failed to persist identity", "user", name, "error", err)
		return blogapi.Result{Status: res.Status, Data: res.Data,
			Err: fmt.Sprintf("registered but failed to store identity locally: %v", err)}
	}

	s.logger.Info("user registered", "user", name, "id", ident.ID)
	return res
}

// UserLogin logs the identity in.
func (s *Service) UserLogin(ctx context.Context, userID int64) blogapi.Result {
	return s.reg.Login(ctx, userID)
}

// UserLogout logs the identity out.
func (s *Service) UserLogout(ctx context.Context, userID int64) blogapi.Result {
	return s.reg.Logout(ctx, userID)
}

// IsUserLoggedIn reports the identity's session state.
func (s *Service) IsUserLoggedIn(userID int64) bool {
	return s.reg.IsLoggedIn(userID)
}

// UserCreatePost publishes a post as the identity.
func (s *Service) UserCreatePost(ctx context.Context, userID int64, p blogapi.NewPost) blogapi.Result {
	return s.reg.Authed(userID, func(token string) blogapi.Result {
		return s.api.CreatePost(ctx, token, p)
	})
}

// UserPostComment adds a top-level comment.
func (s *Service) UserPostComment(ctx context.Context, userID, postID int64, content string) blogapi.Result {
	return s.reg.Authed(userID, func(token string) blogapi.Result {
		return s.api.CreateComment(ctx, token, postID, content, nil)
	})
}

// UserReplyComment replies to an existing comment.
func (s *Service) UserReplyComment(ctx context.Context, userID, postID, parentCommentID int64, content string) blogapi.Result {
	return s.reg.Authed(userID, func(token string) blogapi.Result {
		return s.api.CreateComment(ctx, token, postID, content, &parentCommentID)
	})
}

// UserLikePost toggles the identity's like on a post.
func (s *Service) UserLikePost(ctx context.Context, userID int64, postSlug string) blogapi.Result {
	return s.reg.Authed(userID, func(token string) blogapi.Result {
		return s.api.LikePost(ctx, token, postSlug)
	})
}

// UserCreateCategory creates a category (server enforces admin rights).
func (s *Service) UserCreateCategory(ctx context.Context, userID int64, name string) blogapi.Result {
	return s.reg.Authed(userID, func(token string) blogapi.Result {
		return s.api.CreateCategory(ctx, token, name)
	})
}

// UserChangePassword rotates the identity's password. On success the
// local token is dropped, since the server-side token is dead, and the
// new password is persisted for future logins.
func (s *Service) UserChangePassword(ctx context.Context, userID int64, newPassword string) blogapi.Result {
	ident, ok := s.reg.Get(userID)
	if !ok {
		return blogapi.Failure(fmt.Sprintf("user with ID %d not found locally", userID))
	}
	res := s.reg.Authed(userID, func(token string) blogapi.Result {
		return s.api.ChangePassword(ctx, token, ident.Password, newPassword)
	})
	if !res.Success {
		return res
	}
	if err := s.reg.SetPassword(userID, newPassword); err != nil {
		s.logger.Error("failed to persist new password", "user", ident.Username, "error", err)
		return blogapi.Result{Status: res.Status, Data: res.Data,
			Err: fmt.Sprintf("password changed but not stored locally: %v", err)}
	}
	return blogapi.Result{Success: true, Status: res.Status, Data: map[string]any{
		"username": ident.Username,
		"status":   "password changed, session closed",
	}}
}

// ListPosts returns a page of posts.
func (s *Service) ListPosts(ctx context.Context, f blogapi.PostFilter) blogapi.Result {
	if f.Limit <= 0 {
		f.Limit = 10
	}
	return s.api.ListPosts(ctx, f)
}

// GetPostDetails fetches one post by slug.
func (s *Service) GetPostDetails(ctx context.Context, slug string) blogapi.Result {
	return s.api.GetPost(ctx, slug)
}

// GetPostComments returns all comments on a post. A payload that is
// not a list is reported as a failure rather than silently coerced.
func (s *Service) GetPostComments(ctx context.Context, postID int64) blogapi.Result {
	res := s.api.CommentsByPost(ctx, "", postID)
	if res.Success {
		if _, ok := res.Data.([]any); !ok {
			return blogapi.Result{Status: res.Status, Data: res.Data,
				Err: fmt.Sprintf("fetched comments are not a list (got %T)", res.Data)}
		}
	}
	return res
}

// ListCategories returns available categories.
func (s *Service) ListCategories(ctx context.Context, limit, offset int) blogapi.Result {
	if limit <= 0 {
		limit = 1000
	}
	return s.api.ListCategories(ctx, limit, offset)
}

// ListTags returns all tags.
func (s *Service) ListTags(ctx context.Context) blogapi.Result {
	return s.api.ListTags(ctx)
}

// PopularTags returns the most used tags.
func (s *Service) PopularTags(ctx context.Context) blogapi.Result {
	return s.api.PopularTags(ctx)
}

// ListUsers returns the local address book without passwords.
func (s *Service) ListUsers() []identity.Public {
	all := s.reg.All()
	out := make([]identity.Public, 0, len(all))
	for _, ident := range all {
		out = append(out, ident.Public())
	}
	return out
}
