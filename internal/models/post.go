// Package models contains the post and comment records and the error
// taxonomy shared by every layer.
package models

import (
	"slices"
	"strings"
	"time"
)

// Post is a short post as returned to clients. CommentCount is never stored;
// it is computed from the live comment set on every read.
type Post struct {
	ID           string     `json:"id"`
	Content      string     `json:"content"`
	Title        string     `json:"title,omitempty"`
	Description  string     `json:"description,omitempty"`
	Tags         []string   `json:"tags"`
	Author       string     `json:"author"`
	Avatar       string     `json:"avatar,omitempty"`
	Image        string     `json:"image,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
	Views        int64      `json:"views"`
	CommentCount int        `json:"commentCount"`
	ExpiresAt    *time.Time `json:"-"`
	// Version is the store versionstamp the post was read at.
	Version string `json:"-"`
}

// NewPost builds a post with its required fields set. Derived fields are
// filled in by the caller.
func NewPost(id, content, author string, timestamp time.Time) (*Post, error) {
	switch {
	case strings.TrimSpace(id) == "":
		return nil, NewValidationError("post id is required")
	case strings.TrimSpace(content) == "":
		return nil, NewValidationError("content is required")
	case strings.TrimSpace(author) == "":
		return nil, NewValidationError("author is required")
	}
	return &Post{
		ID:        id,
		Content:   content,
		Author:    author,
		Timestamp: timestamp.UTC(),
	}, nil
}

// HasTag reports whether tag is among the post's tags.
func (p *Post) HasTag(tag string) bool {
	return slices.Contains(p.Tags, tag)
}

// RemainingTTL returns how long the post has left to live at now. ok is
// false for posts that never expire.
func (p *Post) RemainingTTL(now time.Time) (ttl time.Duration, ok bool) {
	if p.ExpiresAt == nil {
		return 0, false
	}
	return p.ExpiresAt.Sub(now), true
}
