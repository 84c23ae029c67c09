package repository

import (
	"context"
	"errors"
	"slices"

	"murmur/internal/kv"
	"murmur/internal/models"
	"murmur/internal/observability"
)

// ListOptions selects a page of the feed. A Limit of zero or less means no
// limit; Cursor is the id of the last post of the previous page.
type ListOptions struct {
	Limit  int
	Cursor string
	Tag    string
}

// PostPage is one page of posts, newest first. NextCursor is empty on the
// last page.
type PostPage struct {
	Posts      []*models.Post
	NextCursor string
}

// PostRepository defines the interface for post data operations
type PostRepository interface {
	// Create stores a new post; an existing id is a ConflictError.
	Create(ctx context.Context, post *models.Post) error
	// GetByID returns nil, nil when the post does not exist.
	GetByID(ctx context.Context, id string) (*models.Post, error)
	List(ctx context.Context, opts ListOptions) (*PostPage, error)
	// Update overwrites the post unconditionally.
	Update(ctx context.Context, post *models.Post) error
	// CompareAndUpdate writes the post only if it is still at post.Version.
	CompareAndUpdate(ctx context.Context, post *models.Post) (bool, error)
	// Delete removes the post and every comment referencing it in one
	// atomic commit. It reports false when the post is absent or changed
	// while the delete was being prepared.
	Delete(ctx context.Context, id string) (bool, error)
}

type postRepository struct {
	store kv.Store
	opts  options
	log   *observability.RepoLogger
}

// NewPostRepository creates a new post repository
func NewPostRepository(store kv.Store, opts ...Option) PostRepository {
	return &postRepository{
		store: store,
		opts:  applyOptions(opts),
		log:   observability.NewRepoLogger(postsSpace),
	}
}

func (r *postRepository) storeErr(ctx context.Context, op string, err error) error {
	r.log.LogError(ctx, err, op)
	return models.NewStoreError(err)
}

// ttlOptions re-applies what is left of the post's lifetime. gone is true
// when the post has already expired.
func (r *postRepository) ttlOptions(post *models.Post) (opts []kv.SetOption, gone bool) {
	ttl, expires := post.RemainingTTL(r.opts.now())
	if !expires {
		return nil, false
	}
	if ttl <= 0 {
		return nil, true
	}
	return []kv.SetOption{kv.WithTTL(ttl)}, false
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	value, err := encodePost(post)
	if err != nil {
		return r.storeErr(ctx, "create", err)
	}
	ttlOpts, gone := r.ttlOptions(post)
	if gone {
		return models.NewValidationError("post expires before it is created")
	}

	key := postKey(post.ID)
	res, err := r.store.Atomic().Check(key, "").Set(key, value, ttlOpts...).Commit(ctx)
	if err != nil {
		return r.storeErr(ctx, "create", err)
	}
	if !res.OK {
		return models.NewConflictError("post", post.ID)
	}
	post.Version = res.Versionstamp
	r.log.LogCreate(ctx, map[string]any{"id": post.ID, "anonymous_ttl": post.ExpiresAt != nil})
	return nil
}

func (r *postRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	entry, err := r.store.Get(ctx, postKey(id))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, r.storeErr(ctx, "read", err)
	}
	post, err := decodePost(entry)
	if err != nil {
		return nil, r.storeErr(ctx, "read", err)
	}
	r.log.LogRead(ctx, map[string]any{"id": id})
	return post, nil
}

func (r *postRepository) List(ctx context.Context, opts ListOptions) (*PostPage, error) {
	var posts []*models.Post
	for entry, err := range r.store.List(ctx, kv.Key{postsSpace}) {
		if err != nil {
			return nil, r.storeErr(ctx, "list", err)
		}
		post, err := decodePost(entry)
		if err != nil {
			// One unreadable record must not take the whole feed down.
			r.log.LogError(ctx, err, "decode")
			continue
		}
		if opts.Tag != "" && !post.HasTag(opts.Tag) {
			continue
		}
		posts = append(posts, post)
	}

	SortNewestFirst(posts)
	page := Paginate(posts, opts.Cursor, opts.Limit)
	r.log.LogRead(ctx, map[string]any{"tag": opts.Tag, "cursor": opts.Cursor, "count": len(page.Posts)})
	return page, nil
}

func (r *postRepository) Update(ctx context.Context, post *models.Post) error {
	value, err := encodePost(post)
	if err != nil {
		return r.storeErr(ctx, "update", err)
	}
	ttlOpts, gone := r.ttlOptions(post)
	if gone {
		return models.NewNotFoundError("post", post.ID)
	}

	res, err := r.store.Atomic().Set(postKey(post.ID), value, ttlOpts...).Commit(ctx)
	if err != nil {
		return r.storeErr(ctx, "update", err)
	}
	if !res.OK {
		return r.storeErr(ctx, "update", kv.ErrConflict)
	}
	post.Version = res.Versionstamp
	r.log.LogUpdate(ctx, map[string]any{"id": post.ID})
	return nil
}

func (r *postRepository) CompareAndUpdate(ctx context.Context, post *models.Post) (bool, error) {
	value, err := encodePost(post)
	if err != nil {
		return false, r.storeErr(ctx, "update", err)
	}
	ttlOpts, gone := r.ttlOptions(post)
	if gone {
		return false, nil
	}

	key := postKey(post.ID)
	res, err := r.store.Atomic().Check(key, post.Version).Set(key, value, ttlOpts...).Commit(ctx)
	if err != nil {
		return false, r.storeErr(ctx, "update", err)
	}
	if !res.OK {
		return false, nil
	}
	post.Version = res.Versionstamp
	r.log.LogUpdate(ctx, map[string]any{"id": post.ID, "checked": true})
	return true, nil
}

func (r *postRepository) Delete(ctx context.Context, id string) (bool, error) {
	key := postKey(id)
	entry, err := r.store.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, r.storeErr(ctx, "delete", err)
	}

	// Only the post is checked. A comment created after the scan below is
	// not in the op and outlives the post.
	op := r.store.Atomic().Check(key, entry.Versionstamp).Delete(key)
	cascaded := 0
	for ce, err := range r.store.List(ctx, kv.Key{commentsSpace}) {
		if err != nil {
			return false, r.storeErr(ctx, "delete", err)
		}
		c, err := decodeComment(ce)
		if err != nil {
			r.log.LogError(ctx, err, "decode")
			continue
		}
		if c.PostID == id {
			op.Delete(commentKey(c.ID))
			cascaded++
		}
	}

	res, err := op.Commit(ctx)
	if err != nil {
		return false, r.storeErr(ctx, "delete", err)
	}
	if !res.OK {
		return false, nil
	}
	r.log.LogDelete(ctx, map[string]any{"id": id, "comments": cascaded})
	return true, nil
}

// SortNewestFirst orders posts by timestamp descending, breaking ties by id
// descending so the order is total.
func SortNewestFirst(posts []*models.Post) {
	slices.SortStableFunc(posts, func(a, b *models.Post) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		}
		return 0
	})
}

// Paginate returns the page that follows cursor in posts, which must already
// be sorted newest first. When the cursor post is no longer present, the
// page continues with the posts whose ids sort below it; ids are
// time-ordered, so this resumes at the same place in the feed.
func Paginate(posts []*models.Post, cursor string, limit int) *PostPage {
	rest := posts
	if cursor != "" {
		idx := slices.IndexFunc(posts, func(p *models.Post) bool { return p.ID == cursor })
		if idx >= 0 {
			rest = posts[idx+1:]
		} else {
			rest = make([]*models.Post, 0, len(posts))
			for _, p := range posts {
				if p.ID < cursor {
					rest = append(rest, p)
				}
			}
		}
	}

	page := &PostPage{Posts: rest}
	if limit > 0 && len(rest) > limit {
		page.Posts = rest[:limit]
		page.NextCursor = page.Posts[limit-1].ID
	}
	if page.Posts == nil {
		page.Posts = []*models.Post{}
	}
	return page
}
