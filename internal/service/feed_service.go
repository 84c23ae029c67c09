package service

import (
	"context"

	"murmur/internal/content"
	"murmur/internal/models"
	"murmur/internal/observability"
	"murmur/internal/repository"
)

// FeedService builds the comment-annotated post listings.
type FeedService struct {
	postRepo    repository.PostRepository
	commentRepo repository.CommentRepository
}

type FeedQuery struct {
	Limit  int
	Cursor string
	Tag    string
}

type FeedPage struct {
	Posts      []*models.Post `json:"posts"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

func NewFeedService(postRepo repository.PostRepository, commentRepo repository.CommentRepository) *FeedService {
	return &FeedService{postRepo: postRepo, commentRepo: commentRepo}
}

// ListPosts returns one page of the feed, newest first.
func (s *FeedService) ListPosts(ctx context.Context, q FeedQuery) (*FeedPage, error) {
	span, ctx := observability.TraceServiceCall(ctx, "FeedService", "ListPosts")
	defer span.End()

	page, err := s.postRepo.List(ctx, repository.ListOptions{
		Limit:  q.Limit,
		Cursor: q.Cursor,
		Tag:    content.NormalizeTag(q.Tag),
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	counts, err := s.commentRepo.CountByPost(ctx)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	return &FeedPage{
		Posts:      AnnotateWithCommentCounts(page.Posts, counts),
		NextCursor: page.NextCursor,
	}, nil
}

// HomeFeed returns every post, optionally narrowed to one tag.
func (s *FeedService) HomeFeed(ctx context.Context, tag string) ([]*models.Post, error) {
	page, err := s.ListPosts(ctx, FeedQuery{Tag: tag})
	if err != nil {
		return nil, err
	}
	return page.Posts, nil
}

// AnnotateWithCommentCounts sets CommentCount on every post from counts,
// keyed by post id, and returns posts.
func AnnotateWithCommentCounts(posts []*models.Post, counts map[string]int) []*models.Post {
	for _, p := range posts {
		p.CommentCount = counts[p.ID]
	}
	return posts
}
