package server

import (
	"github.com/gofiber/fiber/v2"

	"murmur/internal/models"
)

// publishEvent emits a change event without affecting the response.
func (s *Server) publishEvent(c *fiber.Ctx, eventType string, payload map[string]any) {
	s.notifier.PublishEvent(c.UserContext(), eventType, payload)
}

func (s *Server) publishPostEvent(c *fiber.Ctx, eventType string, post *models.Post) {
	s.publishEvent(c, eventType, map[string]any{
		"post_id": post.ID,
		"author":  post.Author,
		"tags":    post.Tags,
	})
}

func (s *Server) publishCommentEvent(c *fiber.Ctx, eventType string, comment *models.Comment) {
	s.publishEvent(c, eventType, map[string]any{
		"comment_id": comment.ID,
		"post_id":    comment.PostID,
		"author":     comment.Author,
	})
}
