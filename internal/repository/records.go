// Package repository persists posts and comments in a kv.Store.
//
// Posts live under ["posts", id] and comments under ["comments", id]. Both
// are stored as JSON records; comment counts are never stored.
package repository

import (
	"encoding/json"
	"time"

	"murmur/internal/kv"
	"murmur/internal/models"
)

const (
	postsSpace    = "posts"
	commentsSpace = "comments"
)

func postKey(id string) kv.Key    { return kv.Key{postsSpace, id} }
func commentKey(id string) kv.Key { return kv.Key{commentsSpace, id} }

// Option configures a repository.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the clock used to compute remaining TTLs.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func applyOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type postRecord struct {
	ID          string     `json:"id"`
	Content     string     `json:"content"`
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Author      string     `json:"author"`
	Avatar      string     `json:"avatar,omitempty"`
	Image       string     `json:"image,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
	Views       int64      `json:"views"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

func encodePost(p *models.Post) ([]byte, error) {
	return json.Marshal(postRecord{
		ID:          p.ID,
		Content:     p.Content,
		Title:       p.Title,
		Description: p.Description,
		Tags:        p.Tags,
		Author:      p.Author,
		Avatar:      p.Avatar,
		Image:       p.Image,
		Timestamp:   p.Timestamp,
		Views:       p.Views,
		ExpiresAt:   p.ExpiresAt,
	})
}

func decodePost(e kv.Entry) (*models.Post, error) {
	var rec postRecord
	if err := json.Unmarshal(e.Value, &rec); err != nil {
		return nil, err
	}
	return &models.Post{
		ID:          rec.ID,
		Content:     rec.Content,
		Title:       rec.Title,
		Description: rec.Description,
		Tags:        rec.Tags,
		Author:      rec.Author,
		Avatar:      rec.Avatar,
		Image:       rec.Image,
		Timestamp:   rec.Timestamp,
		Views:       rec.Views,
		ExpiresAt:   rec.ExpiresAt,
		Version:     e.Versionstamp,
	}, nil
}

type commentRecord struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	PostID    string    `json:"postId"`
	Author    string    `json:"author"`
	Avatar    string    `json:"avatar,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func encodeComment(c *models.Comment) ([]byte, error) {
	return json.Marshal(commentRecord(*c))
}

func decodeComment(e kv.Entry) (*models.Comment, error) {
	var rec commentRecord
	if err := json.Unmarshal(e.Value, &rec); err != nil {
		return nil, err
	}
	c := models.Comment(rec)
	return &c, nil
}
