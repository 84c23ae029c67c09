package repository

import (
	"context"
	"errors"
	"slices"

	"murmur/internal/kv"
	"murmur/internal/models"
	"murmur/internal/observability"
)

// CommentRepository defines interface for comment operations
type CommentRepository interface {
	// Create stores a new comment; an existing id is a ConflictError.
	Create(ctx context.Context, comment *models.Comment) error
	// GetByID returns nil, nil when the comment does not exist.
	GetByID(ctx context.Context, id string) (*models.Comment, error)
	// ListByPost returns the post's comments oldest first.
	ListByPost(ctx context.Context, postID string) ([]*models.Comment, error)
	// CountByPost counts every stored comment by post id in one scan.
	CountByPost(ctx context.Context) (map[string]int, error)
	Delete(ctx context.Context, id string) error
}

type commentRepository struct {
	store kv.Store
	log   *observability.RepoLogger
}

// NewCommentRepository creates a new CommentRepository
func NewCommentRepository(store kv.Store) CommentRepository {
	return &commentRepository{
		store: store,
		log:   observability.NewRepoLogger(commentsSpace),
	}
}

func (r *commentRepository) storeErr(ctx context.Context, op string, err error) error {
	r.log.LogError(ctx, err, op)
	return models.NewStoreError(err)
}

func (r *commentRepository) Create(ctx context.Context, comment *models.Comment) error {
	value, err := encodeComment(comment)
	if err != nil {
		return r.storeErr(ctx, "create", err)
	}
	key := commentKey(comment.ID)
	res, err := r.store.Atomic().Check(key, "").Set(key, value).Commit(ctx)
	if err != nil {
		return r.storeErr(ctx, "create", err)
	}
	if !res.OK {
		return models.NewConflictError("comment", comment.ID)
	}
	r.log.LogCreate(ctx, map[string]any{"id": comment.ID, "post_id": comment.PostID})
	return nil
}

func (r *commentRepository) GetByID(ctx context.Context, id string) (*models.Comment, error) {
	entry, err := r.store.Get(ctx, commentKey(id))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, r.storeErr(ctx, "read", err)
	}
	c, err := decodeComment(entry)
	if err != nil {
		return nil, r.storeErr(ctx, "read", err)
	}
	return c, nil
}

// scan visits every decodable comment.
func (r *commentRepository) scan(ctx context.Context, visit func(*models.Comment)) error {
	for entry, err := range r.store.List(ctx, kv.Key{commentsSpace}) {
		if err != nil {
			return r.storeErr(ctx, "list", err)
		}
		c, err := decodeComment(entry)
		if err != nil {
			r.log.LogError(ctx, err, "decode")
			continue
		}
		visit(c)
	}
	return nil
}

func (r *commentRepository) ListByPost(ctx context.Context, postID string) ([]*models.Comment, error) {
	comments := []*models.Comment{}
	err := r.scan(ctx, func(c *models.Comment) {
		if c.PostID == postID {
			comments = append(comments, c)
		}
	})
	if err != nil {
		return nil, err
	}
	SortOldestFirst(comments)
	r.log.LogRead(ctx, map[string]any{"post_id": postID, "count": len(comments)})
	return comments, nil
}

func (r *commentRepository) CountByPost(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	err := r.scan(ctx, func(c *models.Comment) {
		counts[c.PostID]++
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func (r *commentRepository) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, commentKey(id)); err != nil {
		return r.storeErr(ctx, "delete", err)
	}
	r.log.LogDelete(ctx, map[string]any{"id": id})
	return nil
}

// SortOldestFirst orders comments chronologically, ties broken by id.
func SortOldestFirst(comments []*models.Comment) {
	slices.SortStableFunc(comments, func(a, b *models.Comment) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}
