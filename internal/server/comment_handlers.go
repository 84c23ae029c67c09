package server

import (
	"github.com/gofiber/fiber/v2"

	"murmur/internal/middleware"
	"murmur/internal/models"
	"murmur/internal/notifications"
	"murmur/internal/service"
)

type createCommentRequest struct {
	Content string `json:"content" validate:"required,max=2000"`
	Avatar  string `json:"avatar" validate:"omitempty,url"`
}

// GetComments handles GET /api/posts/:id/comments
func (s *Server) GetComments(c *fiber.Ctx) error {
	comments, err := s.commentService.ListComments(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	if comments == nil {
		comments = []*models.Comment{}
	}
	return c.JSON(comments)
}

// CreateComment handles POST /api/posts/:id/comments
func (s *Server) CreateComment(c *fiber.Ctx) error {
	var req createCommentRequest
	if err := s.bind(c, &req); err != nil {
		return respondError(c, err)
	}

	avatar := middleware.Avatar(c)
	if avatar == "" {
		avatar = req.Avatar
	}

	comment, err := s.commentService.CreateComment(c.UserContext(), service.CreateCommentInput{
		Author:  middleware.Username(c),
		Avatar:  avatar,
		PostID:  c.Params("id"),
		Content: req.Content,
	})
	if err != nil {
		return respondError(c, err)
	}

	s.publishCommentEvent(c, notifications.EventCommentCreated, comment)
	return c.Status(fiber.StatusCreated).JSON(comment)
}

// DeleteComment handles DELETE /api/comments/:id. Only the author may
// delete; anyone else sees the comment as missing.
func (s *Server) DeleteComment(c *fiber.Ctx) error {
	id := c.Params("id")
	deleted, err := s.commentService.DeleteComment(c.UserContext(), service.DeleteCommentInput{
		Requester: middleware.Username(c),
		CommentID: id,
	})
	if err != nil {
		return respondError(c, err)
	}
	if !deleted {
		return respondError(c, models.NewNotFoundError("Comment", id))
	}

	s.publishEvent(c, notifications.EventCommentDeleted, map[string]any{"comment_id": id})
	return c.SendStatus(fiber.StatusNoContent)
}
