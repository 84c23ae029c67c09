package service

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"murmur/internal/content"
	"murmur/internal/featureflags"
	"murmur/internal/models"
	"murmur/internal/observability"
	"murmur/internal/repository"
)

const (
	// maxPostContentLen is measured in characters (runes).
	maxPostContentLen = 10000
	// viewIncrementAttempts bounds the compare-and-set loop on the view counter.
	viewIncrementAttempts = 3
)

// PostConfig holds the post policy taken from configuration.
type PostConfig struct {
	// AnonymousTTL is how long anonymous posts live. Zero keeps them forever.
	AnonymousTTL time.Duration
}

type PostService struct {
	postRepo    repository.PostRepository
	commentRepo repository.CommentRepository
	flags       *featureflags.Manager
	cfg         PostConfig

	now       func() time.Time
	newID     func() (string, error)
	newHandle func() string
}

type CreatePostInput struct {
	// Author is empty for anonymous posts.
	Author string
	// Identity is the key anonymous_posts rollouts are evaluated against;
	// the client address for anonymous callers.
	Identity string
	Avatar   string
	Content  string
	Image    string
}

// EditPostInput carries the fields to change; nil fields are left alone.
type EditPostInput struct {
	Requester string
	Content   *string
	Image     *string
	Avatar    *string
}

type DeletePostInput struct {
	Requester string
	PostID    string
}

func NewPostService(
	postRepo repository.PostRepository,
	commentRepo repository.CommentRepository,
	flags *featureflags.Manager,
	cfg PostConfig,
) *PostService {
	return &PostService{
		postRepo:    postRepo,
		commentRepo: commentRepo,
		flags:       flags,
		cfg:         cfg,
		now:         time.Now,
		newID:       newID,
		newHandle:   anonymousHandle,
	}
}

func validatePostContent(c string) error {
	if strings.TrimSpace(c) == "" {
		return models.NewValidationError("Content is required")
	}
	if utf8.RuneCountInString(c) > maxPostContentLen {
		return models.NewValidationError("Content too long (max 10000 characters)")
	}
	return nil
}

func applyDerived(p *models.Post) {
	d := content.Derive(p.Content)
	p.Title = d.Title
	p.Description = d.Description
	p.Tags = d.Tags
}

func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	span, ctx := observability.TraceServiceCall(ctx, "PostService", "CreatePost")
	defer span.End()
	observability.LogServiceCall(ctx, "PostService", "CreatePost", map[string]any{
		"anonymous": strings.TrimSpace(in.Author) == "",
	})

	if err := validatePostContent(in.Content); err != nil {
		return nil, err
	}

	author := strings.TrimSpace(in.Author)
	anonymous := author == ""
	if anonymous {
		if !s.flags.EnabledOr(featureflags.AnonymousPosts, in.Identity, true) {
			return nil, models.NewUnauthorizedError("Sign in to post")
		}
		author = s.newHandle()
	}

	id, err := s.newID()
	if err != nil {
		return nil, models.NewStoreError(err)
	}
	now := s.now()
	post, err := models.NewPost(id, in.Content, author, now)
	if err != nil {
		return nil, err
	}
	post.Avatar = in.Avatar
	post.Image = in.Image
	applyDerived(post)
	if anonymous && s.cfg.AnonymousTTL > 0 {
		expires := post.Timestamp.Add(s.cfg.AnonymousTTL)
		post.ExpiresAt = &expires
	}

	if err := s.postRepo.Create(ctx, post); err != nil {
		span.SetError(err)
		return nil, err
	}
	return post, nil
}

// GetPost returns the post with its view count incremented, or nil when the
// post does not exist. The increment is a compare-and-set; when it cannot be
// persisted the post is returned as read.
func (s *PostService) GetPost(ctx context.Context, id string) (*models.Post, error) {
	span, ctx := observability.TraceServiceCall(ctx, "PostService", "GetPost")
	defer span.End()

	var result *models.Post
	for attempt := 1; attempt <= viewIncrementAttempts; attempt++ {
		post, err := s.postRepo.GetByID(ctx, id)
		if err != nil {
			span.SetError(err)
			return nil, err
		}
		if post == nil {
			return nil, nil
		}

		read := *post
		result = &read

		post.Views++
		ok, err := s.postRepo.CompareAndUpdate(ctx, post)
		if err != nil {
			observability.ViewIncrementConflicts.WithLabelValues("error").Inc()
			observability.GlobalLogger.WarnContext(ctx, "view increment failed",
				slog.String("post_id", id), slog.String("error", err.Error()))
			break
		}
		if ok {
			result = post
			break
		}
		outcome := "retried"
		if attempt == viewIncrementAttempts {
			outcome = "exhausted"
		}
		observability.ViewIncrementConflicts.WithLabelValues(outcome).Inc()
	}

	comments, err := s.commentRepo.ListByPost(ctx, id)
	if err != nil {
		return nil, err
	}
	result.CommentCount = len(comments)
	return result, nil
}

func (s *PostService) EditPost(ctx context.Context, id string, in EditPostInput) (*models.Post, error) {
	observability.LogServiceCall(ctx, "PostService", "EditPost", map[string]any{"post_id": id})

	post, err := s.postRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, models.NewNotFoundError("Post", id)
	}
	if post.Author != in.Requester {
		return nil, models.NewForbiddenError("You can only edit your own posts")
	}

	if in.Content != nil {
		post.Content = *in.Content
	}
	if in.Image != nil {
		post.Image = *in.Image
	}
	if in.Avatar != nil {
		post.Avatar = *in.Avatar
	}
	if err := validatePostContent(post.Content); err != nil {
		return nil, err
	}
	applyDerived(post)

	if err := s.postRepo.Update(ctx, post); err != nil {
		return nil, err
	}

	comments, err := s.commentRepo.ListByPost(ctx, id)
	if err != nil {
		return nil, err
	}
	post.CommentCount = len(comments)
	return post, nil
}

// DeletePost removes the post and its comments. It reports false when the
// post is absent or was changed while the delete was prepared.
func (s *PostService) DeletePost(ctx context.Context, in DeletePostInput) (bool, error) {
	span, ctx := observability.TraceServiceCall(ctx, "PostService", "DeletePost")
	defer span.End()
	observability.LogServiceCall(ctx, "PostService", "DeletePost", map[string]any{"post_id": in.PostID})

	post, err := s.postRepo.GetByID(ctx, in.PostID)
	if err != nil {
		return false, err
	}
	if post == nil {
		return false, nil
	}
	if post.Author != in.Requester {
		return false, models.NewForbiddenError("You can only delete your own posts")
	}

	deleted, err := s.postRepo.Delete(ctx, in.PostID)
	if err != nil {
		span.SetError(err)
		return false, err
	}
	return deleted, nil
}
