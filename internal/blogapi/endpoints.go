package blogapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// LoginData is the validated payload of a successful login.
type LoginData struct {
	Token    string `json:"token"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Register creates a new account. Unauthenticated.
func (c *Client) Register(ctx context.Context, username, email, password string) Result {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   "/register/",
		jsonBody: map[string]string{
			"username": username,
			"email":    email,
			"password": password,
		},
	})
}

// Login obtains a token. A 2xx response whose body is missing any of
// {token, user_id, username, role} is downgraded to a failure: a
// malformed success body is never a usable login.
func (c *Client) Login(ctx context.Context, username, password string) (LoginData, Result) {
	res := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/login/",
		jsonBody: map[string]string{
			"username": username,
			"password": password,
		},
	})
	if !res.Success {
		return LoginData{}, res
	}

	body, ok := res.Data.(map[string]any)
	if !ok {
		return LoginData{}, failure(res.Status, res.Data, "login response is not an object")
	}

	data := LoginData{}
	data.Token, _ = body["token"].(string)
	data.Username, _ = body["username"].(string)
	data.Role, _ = body["role"].(string)
	if id, ok := body["user_id"].(float64); ok {
		data.UserID = int64(id)
	}

	var missing []string
	if data.Token == "" {
		missing = append(missing, "token")
	}
	if data.UserID == 0 {
		missing = append(missing, "user_id")
	}
	if data.Username == "" {
		missing = append(missing, "username")
	}
	if data.Role == "" {
		missing = append(missing, "role")
	}
	if len(missing) > 0 {
		return LoginData{}, failure(res.Status, res.Data,
			fmt.Sprintf("login response missing fields: %s", strings.Join(missing, ", ")))
	}

	return data, res
}

// Logout invalidates the token server-side.
func (c *Client) Logout(ctx context.Context, token string) Result {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/token/logout/",
		auth:   true,
		token:  token,
	})
}

// ChangePassword rotates the account password. The server drops the
// token on success; callers must invalidate their local copy.
func (c *Client) ChangePassword(ctx context.Context, token, current, next string) Result {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   "/change-password/",
		auth:   true,
		token:  token,
		jsonBody: map[string]string{
			"current_password": current,
			"new_password":     next,
		},
	})
}

// PostFilter narrows ListPosts. Zero values are omitted from the query.
type PostFilter struct {
	Limit    int
	Offset   int
	Category string
	Author   string
	Tag      string
	Search   string
	Ordering string
}

func (f PostFilter) query() url.Values {
	q := url.Values{}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	q.Set("offset", strconv.Itoa(f.Offset))
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.Author != "" {
		q.Set("author", f.Author)
	}
	if f.Tag != "" {
		q.Set("tags__name", f.Tag)
	}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.Ordering != "" {
		q.Set("ordering", f.Ordering)
	}
	return q
}

// ListPosts returns a page of posts. Unauthenticated.
func (c *Client) ListPosts(ctx context.Context, f PostFilter) Result {
	return c.do(ctx, request{
		method: http.MethodGet,
		path:   "/posts/",
		query:  f.query(),
	})
}

// GetPost fetches one post by slug.
func (c *Client) GetPost(ctx context.Context, slug string) Result {
	return c.do(ctx, request{
		method: http.MethodGet,
		path:   "/posts/" + url.PathEscape(slug) + "/",
	})
}

// NewPost is the payload for CreatePost. When ImagePath is set the
// submission switches from JSON to multipart form with the file
// attached as featured_image.
type NewPost struct {
	Title       string
	Content     string
	Category    string
	Tags        []string
	Slug        string
	ImagePath   string
	IsPublished bool
	Featured    bool
}

// CreatePost publishes a post for the token's account.
func (c *Client) CreatePost(ctx context.Context, token string, p NewPost) Result {
	if p.ImagePath != "" {
		form := map[string]string{
			"title":        p.Title,
			"content":      p.Content,
			"is_published": strconv.FormatBool(p.IsPublished),
			"featured":     strconv.FormatBool(p.Featured),
		}
		if p.Category != "" {
			form["category"] = p.Category
		}
		if p.Slug != "" {
			form["slug"] = p.Slug
		}
		if len(p.Tags) > 0 {
			form["tags"] = strings.Join(p.Tags, ",")
		}
		att, closeFn, err := openAttachment("featured_image", p.ImagePath)
		if err != nil {
			return Failure(err.Error())
		}
		defer closeFn()
		return c.do(ctx, request{
			method: http.MethodPost,
			path:   "/posts/",
			auth:   true,
			token:  token,
			form:   form,
			files:  []fileAttachment{att},
		})
	}

	body := map[string]any{
		"title":        p.Title,
		"content":      p.Content,
		"is_published": p.IsPublished,
		"featured":     p.Featured,
	}
	if p.Category != "" {
		body["category"] = p.Category
	}
	if p.Slug != "" {
		body["slug"] = p.Slug
	}
	if len(p.Tags) > 0 {
		body["tags"] = p.Tags
	}
	return c.do(ctx, request{
		method:   http.MethodPost,
		path:     "/posts/",
		auth:     true,
		token:    token,
		jsonBody: body,
	})
}

// UpdatePost patches the given fields on a post.
func (c *Client) UpdatePost(ctx context.Context, token, slug string, fields map[string]any) Result {
	return c.do(ctx, request{
		method:   http.MethodPatch,
		path:     "/posts/" + url.PathEscape(slug) + "/",
		auth:     true,
		token:    token,
		jsonBody: fields,
	})
}

// DeletePost removes a post.
func (c *Client) DeletePost(ctx context.Context, token, slug string) Result {
	return c.do(ctx, request{
		method: http.MethodDelete,
		path:   "/posts/" + url.PathEscape(slug) + "/",
		auth:   true,
		token:  token,
	})
}

// LikePost toggles the like state of a post for the token's account.
func (c *Client) LikePost(ctx context.Context, token, slug string) Result {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   "/posts/" + url.PathEscape(slug) + "/like/",
		auth:   true,
		token:  token,
	})
}

// RecordView bumps a post's view counter. Unauthenticated.
func (c *Client) RecordView(ctx context.Context, slug string) Result {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   "/posts/" + url.PathEscape(slug) + "/view/",
	})
}

// FeaturedPosts lists posts flagged as featured.
func (c *Client) FeaturedPosts(ctx context.Context) Result {
	return c.do(ctx, request{
		method: http.MethodGet,
		path:   "/posts/featured/",
	})
}

// RecentPosts lists the most recent posts.
func (c *Client) RecentPosts(ctx context.Context) Result {
	return c.do(ctx, request{
		method: http.MethodGet,
		path:   "/posts/recent/",
	})
}

// PostStats returns aggregate post statistics.
func (c *Client) PostStats(ctx context.Context) Result {
	return c.do(ctx, request{
		method: http.MethodGet,
		path:   "/posts/stats/",
	})
}

// CreateComment posts a comment. parentID non-nil makes it a reply.
func (c *Client) CreateComment(ctx context.Context, token string, postID int64, content string, parentID *int64) Result {
	body := map[string]any{
		"post":    postID,
		"content": content,
		"parent":  parentID,
	}
	return c.do(ctx, request{
		method:   http.MethodPost,
		path:     "/comments/",
		auth:     true,
		token:    token,
		jsonBody: body,
	})
}

// CommentsByPost lists all comments on a post, replies nested. The
// endpoint is public; a token is attached when provided so the server
// can mark the caller's own comments.
func (c *Client) CommentsByPost(ctx context.Context, token string, postID int64) Result {
	q := url.Values{}
	q.Set("post_id", strconv.FormatInt(postID, 10))
	return c.do(ctx, request{
		method: http.MethodGet,
		path:   "/comments/by_post/",
		query:  q,
		auth:   token != "",
		token:  token,
	})
}

// DeleteComment removes a comment owned by the token's account.
func (c *Client) DeleteComment(ctx context.Context, token string, commentID int64) Result {
	return c.do(ctx, request{
		method: http.MethodDelete,
		path:   "/comments/" + strconv.FormatInt(commentID, 10) + "/",
		auth:   true,
		token:  token,
	})
}

// ListCategories returns a page of categories. Unauthenticated.
func (c *Client) ListCategories(ctx context.Context, limit, offset int) Result {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	return c.do(ctx, request{
		method: http.MethodGet,
		path:   "/categories/",
		query:  q,
	})
}

// CreateCategory adds a category (server enforces admin).
func (c *Client) CreateCategory(ctx context.Context, token, name string) Result {
	return c.do(ctx, request{
		method:   http.MethodPost,
		path:     "/categories/",
		auth:     true,
		token:    token,
		jsonBody: map[string]string{"name": name},
	})
}

// ListTags returns all tags. Unauthenticated.
func (c *Client) ListTags(ctx context.Context) Result {
	return c.do(ctx, request{
		method: http.MethodGet,
		path:   "/tags/",
	})
}

// PopularTags returns the most used tags.
func (c *Client) PopularTags(ctx context.Context) Result {
	return c.do(ctx, request{
		method: http.MethodGet,
		path:   "/tags/popular/",
	})
}

// ListUsers lists backend accounts. Admin-only server-side.
func (c *Client) ListUsers(ctx context.Context, token string) Result {
	return c.do(ctx, request{
		method: http.MethodGet,
		path:   "/users/",
		auth:   true,
		token:  token,
	})
}

// Profile returns the token account's profile.
func (c *Client) Profile(ctx context.Context, token string) Result {
	return c.do(ctx, request{
		method: http.MethodGet,
		path:   "/profile/",
		auth:   true,
		token:  token,
	})
}

// UpdateProfile patches the token account's profile fields.
func (c *Client) UpdateProfile(ctx context.Context, token string, fields map[string]any) Result {
	return c.do(ctx, request{
		method:   http.MethodPatch,
		path:     "/profile/",
		auth:     true,
		token:    token,
		jsonBody: fields,
	})
}

// ActivityFeed returns the token account's recent activity.
func (c *Client) ActivityFeed(ctx context.Context, token string) Result {
	return c.do(ctx, request{
		method: http.MethodGet,
		path:   "/activity/",
		auth:   true,
		token:  token,
	})
}
