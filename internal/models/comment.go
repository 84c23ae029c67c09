package models

import (
	"strings"
	"time"
)

// Comment is a reply to a post. PostID is not enforced by the store.
type Comment struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	PostID    string    `json:"postId"`
	Author    string    `json:"author"`
	Avatar    string    `json:"avatar,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewComment builds a comment with its required fields set.
func NewComment(id, postID, content, author string, timestamp time.Time) (*Comment, error) {
	switch {
	case strings.TrimSpace(id) == "":
		return nil, NewValidationError("comment id is required")
	case strings.TrimSpace(postID) == "":
		return nil, NewValidationError("post id is required")
	case strings.TrimSpace(content) == "":
		return nil, NewValidationError("content is required")
	case strings.TrimSpace(author) == "":
		return nil, NewUnauthorizedError("comments require a signed-in author")
	}
	return &Comment{
		ID:        id,
		Content:   content,
		PostID:    postID,
		Author:    author,
		Timestamp: timestamp.UTC(),
	}, nil
}
