package server

import (
	"github.com/gofiber/fiber/v2"

	"murmur/internal/middleware"
	"murmur/internal/models"
	"murmur/internal/notifications"
	"murmur/internal/service"
)

type createPostRequest struct {
	Content string `json:"content" validate:"required,max=10000"`
	Image   string `json:"image" validate:"omitempty,url"`
	Avatar  string `json:"avatar" validate:"omitempty,url"`
}

type updatePostRequest struct {
	Content *string `json:"content" validate:"omitempty,max=10000"`
	Image   *string `json:"image" validate:"omitempty,url"`
	Avatar  *string `json:"avatar" validate:"omitempty,url"`
}

// GetPosts handles GET /api/posts
func (s *Server) GetPosts(c *fiber.Ctx) error {
	ctx := c.UserContext()
	page, err := s.feedService.ListPosts(ctx, service.FeedQuery{
		Limit:  parsePagination(c, defaultPageLimit),
		Cursor: c.Query("cursor"),
		Tag:    c.Query("tag"),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}

// GetFeed handles GET /api/feed. It returns every live post, newest first.
func (s *Server) GetFeed(c *fiber.Ctx) error {
	posts, err := s.feedService.HomeFeed(c.UserContext(), c.Query("tag"))
	if err != nil {
		return respondError(c, err)
	}
	if posts == nil {
		posts = []*models.Post{}
	}
	return c.JSON(posts)
}

// GetPost handles GET /api/posts/:id and counts a view.
func (s *Server) GetPost(c *fiber.Ctx) error {
	post, err := s.postService.GetPost(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	if post == nil {
		return respondError(c, models.NewNotFoundError("Post", c.Params("id")))
	}
	return c.JSON(post)
}

// CreatePost handles POST /api/posts. Callers without a token post
// anonymously when the anonymous_posts flag allows it.
func (s *Server) CreatePost(c *fiber.Ctx) error {
	var req createPostRequest
	if err := s.bind(c, &req); err != nil {
		return respondError(c, err)
	}

	avatar := middleware.Avatar(c)
	if avatar == "" {
		avatar = req.Avatar
	}

	username := middleware.Username(c)
	post, err := s.postService.CreatePost(c.UserContext(), service.CreatePostInput{
		Author:   username,
		Identity: identity(c, username),
		Avatar:   avatar,
		Content:  req.Content,
		Image:    req.Image,
	})
	if err != nil {
		return respondError(c, err)
	}

	s.publishPostEvent(c, notifications.EventPostCreated, post)
	return c.Status(fiber.StatusCreated).JSON(post)
}

// UpdatePost handles PUT /api/posts/:id
func (s *Server) UpdatePost(c *fiber.Ctx) error {
	var req updatePostRequest
	if err := s.bind(c, &req); err != nil {
		return respondError(c, err)
	}

	post, err := s.postService.EditPost(c.UserContext(), c.Params("id"), service.EditPostInput{
		Requester: middleware.Username(c),
		Content:   req.Content,
		Image:     req.Image,
		Avatar:    req.Avatar,
	})
	if err != nil {
		return respondError(c, err)
	}

	s.publishPostEvent(c, notifications.EventPostUpdated, post)
	return c.JSON(post)
}

// DeletePost handles DELETE /api/posts/:id
func (s *Server) DeletePost(c *fiber.Ctx) error {
	id := c.Params("id")
	deleted, err := s.postService.DeletePost(c.UserContext(), service.DeletePostInput{
		Requester: middleware.Username(c),
		PostID:    id,
	})
	if err != nil {
		return respondError(c, err)
	}
	if !deleted {
		return respondError(c, models.NewNotFoundError("Post", id))
	}

	s.publishEvent(c, notifications.EventPostDeleted, map[string]any{"post_id": id})
	return c.SendStatus(fiber.StatusNoContent)
}
