package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"murmur/internal/models"
	"murmur/internal/observability"
	"murmur/internal/repository"
)

// maxCommentLen is measured in characters (runes).
const maxCommentLen = 2000

type CommentService struct {
	commentRepo repository.CommentRepository
	postRepo    repository.PostRepository

	now   func() time.Time
	newID func() (string, error)
}

type CreateCommentInput struct {
	Author  string
	Avatar  string
	PostID  string
	Content string
}

type DeleteCommentInput struct {
	Requester string
	CommentID string
}

func NewCommentService(
	commentRepo repository.CommentRepository,
	postRepo repository.PostRepository,
) *CommentService {
	return &CommentService{
		commentRepo: commentRepo,
		postRepo:    postRepo,
		now:         time.Now,
		newID:       newID,
	}
}

func (s *CommentService) CreateComment(ctx context.Context, in CreateCommentInput) (*models.Comment, error) {
	observability.LogServiceCall(ctx, "CommentService", "CreateComment", map[string]any{"post_id": in.PostID})

	if strings.TrimSpace(in.Content) == "" {
		return nil, models.NewValidationError("Content is required")
	}
	if utf8.RuneCountInString(in.Content) > maxCommentLen {
		return nil, models.NewValidationError("Comment too long (max 2000 characters)")
	}
	if strings.TrimSpace(in.PostID) == "" {
		return nil, models.NewValidationError("Post ID is required")
	}
	if strings.TrimSpace(in.Author) == "" {
		return nil, models.NewUnauthorizedError("Sign in to comment")
	}

	post, err := s.postRepo.GetByID(ctx, in.PostID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, models.NewNotFoundError("Post", in.PostID)
	}

	id, err := s.newID()
	if err != nil {
		return nil, models.NewStoreError(err)
	}
	comment, err := models.NewComment(id, in.PostID, in.Content, in.Author, s.now())
	if err != nil {
		return nil, err
	}
	comment.Avatar = in.Avatar

	if err := s.commentRepo.Create(ctx, comment); err != nil {
		return nil, err
	}
	return comment, nil
}

// ListComments returns the post's comments oldest first. An unknown post has
// no comments.
func (s *CommentService) ListComments(ctx context.Context, postID string) ([]*models.Comment, error) {
	return s.commentRepo.ListByPost(ctx, postID)
}

// DeleteComment deletes the comment if the requester wrote it. A missing
// comment and someone else's comment both report false.
func (s *CommentService) DeleteComment(ctx context.Context, in DeleteCommentInput) (bool, error) {
	observability.LogServiceCall(ctx, "CommentService", "DeleteComment", map[string]any{"comment_id": in.CommentID})

	comment, err := s.commentRepo.GetByID(ctx, in.CommentID)
	if err != nil {
		return false, err
	}
	if comment == nil || comment.Author != in.Requester {
		return false, nil
	}

	if err := s.commentRepo.Delete(ctx, in.CommentID); err != nil {
		return false, err
	}
	return true, nil
}
