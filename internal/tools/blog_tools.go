package tools

import (
	"context"
	"log/slog"
	"strings"

	"github.com/quillpad/quillpad-agent/internal/blog"
	"github.com/quillpad/quillpad-agent/internal/blogapi"
)

// NewBlogRegistry builds the full dispatch table for the blog
// simulation, bound to the given façade. This is the complete set of
// operations declared to the model: nothing reachable is undeclared,
// nothing declared is unbound.
func NewBlogRegistry(svc *blog.Service, logger *slog.Logger) *Registry {
	r := NewRegistry(logger)

	r.Register(&Tool{
		Name:        "list_posts",
		Description: "Retrieves a list of blog posts. Can specify the number of posts to retrieve and an offset for pagination.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"limit": map[string]any{
					"type":        "integer",
					"description": "The maximum number of posts to return. Defaults to 10.",
				},
				"offset": map[string]any{
					"type":        "integer",
					"description": "The number of posts to skip before collecting the result set. Defaults to 0.",
				},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return svc.ListPosts(ctx, blogapi.PostFilter{
				Limit:  int(intArg(args, "limit")),
				Offset: int(intArg(args, "offset")),
			}), nil
		},
	})

	r.Register(&Tool{
		Name:        "list_users",
		Description: "Retrieves the list of locally known registered users. Returns usernames and emails, never passwords.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return svc.ListUsers(), nil
		},
	})

	r.Register(&Tool{
		Name:        "register",
		Description: "Registers a new user with a username, email, and password.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"username": map[string]any{
					"type":        "string",
					"description": "The desired username for the new user.",
				},
				"email": map[string]any{
					"type":        "string",
					"description": "The email address for the new user.",
				},
				"password": map[string]any{
					"type":        "string",
					"description": "The password for the new user.",
				},
			},
			"required": []string{"username", "email", "password"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return svc.Register(ctx,
				stringArg(args, "username"),
				stringArg(args, "email"),
				stringArg(args, "password"),
			), nil
		},
	})

	r.Register(&Tool{
		Name:        "user_login",
		Description: "Logs in the user with the given user ID. The user must be registered locally.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"user_id": map[string]any{
					"type":        "integer",
					"description": "The ID of the user to log in.",
				},
			},
			"required": []string{"user_id"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return svc.UserLogin(ctx, intArg(args, "user_id")), nil
		},
	})

	r.Register(&Tool{
		Name:        "user_logout",
		Description: "Logs out the user with the given user ID.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"user_id": map[string]any{
					"type":        "integer",
					"description": "The ID of the user to log out.",
				},
			},
			"required": []string{"user_id"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return svc.UserLogout(ctx, intArg(args, "user_id")), nil
		},
	})

	r.Register(&Tool{
		Name:        "is_user_logged_in",
		Description: "Checks whether the user with the given user ID is currently logged in.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"user_id": map[string]any{
					"type":        "integer",
					"description": "The ID of the user to check.",
				},
			},
			"required": []string{"user_id"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return map[string]any{
				"user_id":   intArg(args, "user_id"),
				"logged_in": svc.IsUserLoggedIn(intArg(args, "user_id")),
			}, nil
		},
	})

	r.Register(&Tool{
		Name:        "user_create_post",
		Description: "Creates a new blog post for a logged-in user. Markdown content is supported.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"user_id": map[string]any{
					"type":        "integer",
					"description": "The ID of the user creating the post. Must be logged in.",
				},
				"title": map[string]any{
					"type":        "string",
					"description": "The title of the blog post.",
				},
				"content": map[string]any{
					"type":        "string",
					"description": "The main content of the blog post (Markdown format recommended).",
				},
				"category": map[string]any{
					"type":        "string",
					"description": "The category name the post belongs to (must exist).",
				},
				"tags": map[string]any{
					"type":        "string",
					"description": "A comma-separated string of tags for the post (e.g. 'python,api,tutorial').",
				},
				"slug": map[string]any{
					"type":        "string",
					"description": "A URL-friendly slug. Optional; the backend generates one if omitted.",
				},
				"is_published": map[string]any{
					"type":        "boolean",
					"description": "Whether the post is published immediately. Defaults to true.",
				},
				"featured": map[string]any{
					"type":        "boolean",
					"description": "Whether the post is marked as featured. Defaults to false.",
				},
			},
			"required": []string{"user_id", "title", "content", "category"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			var tags []string
			if raw := stringArg(args, "tags"); raw != "" {
				for _, t := range strings.Split(raw, ",") {
					if t = strings.TrimSpace(t); t != "" {
						tags = append(tags, t)
					}
				}
			}
			return svc.UserCreatePost(ctx, intArg(args, "user_id"), blogapi.NewPost{
				Title:       stringArg(args, "title"),
				Content:     stringArg(args, "content"),
				Category:    stringArg(args, "category"),
				Tags:        tags,
				Slug:        stringArg(args, "slug"),
				IsPublished: boolArg(args, "is_published", true),
				Featured:    boolArg(args, "featured", false),
			}), nil
		},
	})

	r.Register(&Tool{
		Name:        "user_post_comment",
		Description: "Posts a new top-level comment on a blog post for a logged-in user.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"user_id": map[string]any{
					"type":        "integer",
					"description": "The ID of the commenting user. Must be logged in.",
				},
				"post_id": map[string]any{
					"type":        "integer",
					"description": "The ID of the post to comment on.",
				},
				"content": map[string]any{
					"type":        "string",
					"description": "The content of the comment.",
				},
			},
			"required": []string{"user_id", "post_id", "content"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return svc.UserPostComment(ctx,
				intArg(args, "user_id"),
				intArg(args, "post_id"),
				stringArg(args, "content"),
			), nil
		},
	})

	r.Register(&Tool{
		Name:        "user_reply_comment",
		Description: "Posts a reply to an existing comment for a logged-in user.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"user_id": map[string]any{
					"type":        "integer",
					"description": "The ID of the replying user. Must be logged in.",
				},
				"post_id": map[string]any{
					"type":        "integer",
					"description": "The ID of the post the comment belongs to.",
				},
				"parent_comment_id": map[string]any{
					"type":        "integer",
					"description": "The ID of the comment being replied to.",
				},
				"content": map[string]any{
					"type":        "string",
					"description": "The content of the reply.",
				},
			},
			"required": []string{"user_id", "post_id", "parent_comment_id", "content"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return svc.UserReplyComment(ctx,
				intArg(args, "user_id"),
				intArg(args, "post_id"),
				intArg(args, "parent_comment_id"),
				stringArg(args, "content"),
			), nil
		},
	})

	r.Register(&Tool{
		Name:        "user_like_post",
		Description: "Toggles the like status of a blog post for a logged-in user.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"user_id": map[string]any{
					"type":        "integer",
					"description": "The ID of the liking user. Must be logged in.",
				},
				"post_slug": map[string]any{
					"type":        "string",
					"description": "The slug of the post to like or unlike.",
				},
			},
			"required": []string{"user_id", "post_slug"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return svc.UserLikePost(ctx,
				intArg(args, "user_id"),
				stringArg(args, "post_slug"),
			), nil
		},
	})

	r.Register(&Tool{
		Name:        "get_post_details",
		Description: "Retrieves the full details of a blog post using its slug.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"post_slug": map[string]any{
					"type":        "string",
					"description": "The slug of the post to retrieve.",
				},
			},
			"required": []string{"post_slug"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return svc.GetPostDetails(ctx, stringArg(args, "post_slug")), nil
		},
	})

	r.Register(&Tool{
		Name:        "get_post_comments",
		Description: "Retrieves all comments for a blog post using its ID, with replies nested.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"post_id": map[string]any{
					"type":        "integer",
					"description": "The ID of the post to retrieve comments for.",
				},
			},
			"required": []string{"post_id"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return svc.GetPostComments(ctx, intArg(args, "post_id")), nil
		},
	})

	r.Register(&Tool{
		Name:        "list_categories",
		Description: "Retrieves the list of available blog categories.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"limit": map[string]any{
					"type":        "integer",
					"description": "The maximum number of categories to return. Defaults to 1000.",
				},
				"offset": map[string]any{
					"type":        "integer",
					"description": "The number of categories to skip. Defaults to 0.",
				},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return svc.ListCategories(ctx,
				int(intArg(args, "limit")),
				int(intArg(args, "offset")),
			), nil
		},
	})

	r.Register(&Tool{
		Name:        "user_create_category",
		Description: "Creates a new blog category. The user must be logged in and have admin privileges (enforced by the backend).",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"user_id": map[string]any{
					"type":        "integer",
					"description": "The ID of the user creating the category. Must be logged in.",
				},
				"category_name": map[string]any{
					"type":        "string",
					"description": "The name for the new category.",
				},
			},
			"required": []string{"user_id", "category_name"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return svc.UserCreateCategory(ctx,
				intArg(args, "user_id"),
				stringArg(args, "category_name"),
			), nil
		},
	})

	r.Register(&Tool{
		Name:        "list_tags",
		Description: "Retrieves all tags in use on the blog.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return svc.ListTags(ctx), nil
		},
	})

	r.Register(&Tool{
		Name:        "user_change_password",
		Description: "Changes the password of a logged-in user. The session is closed afterwards; log in again to continue acting as that user.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"user_id": map[string]any{
					"type":        "integer",
					"description": "The ID of the user changing their password. Must be logged in.",
				},
				"new_password": map[string]any{
					"type":        "string",
					"description": "The new password.",
				},
			},
			"required": []string{"user_id", "new_password"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return svc.UserChangePassword(ctx,
				intArg(args, "user_id"),
				stringArg(args, "new_password"),
			), nil
		},
	})

	return r
}
