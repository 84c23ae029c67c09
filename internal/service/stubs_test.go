package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"murmur/internal/models"
	"murmur/internal/repository"
)

// postRepoStub is a stub for repository.PostRepository.
type postRepoStub struct {
	createFn           func(context.Context, *models.Post) error
	getByIDFn          func(context.Context, string) (*models.Post, error)
	listFn             func(context.Context, repository.ListOptions) (*repository.PostPage, error)
	updateFn           func(context.Context, *models.Post) error
	compareAndUpdateFn func(context.Context, *models.Post) (bool, error)
	deleteFn           func(context.Context, string) (bool, error)
}

func (s *postRepoStub) Create(ctx context.Context, post *models.Post) error {
	return s.createFn(ctx, post)
}
func (s *postRepoStub) GetByID(ctx context.Context, id string) (*models.Post, error) {
	return s.getByIDFn(ctx, id)
}
func (s *postRepoStub) List(ctx context.Context, opts repository.ListOptions) (*repository.PostPage, error) {
	return s.listFn(ctx, opts)
}
func (s *postRepoStub) Update(ctx context.Context, post *models.Post) error {
	return s.updateFn(ctx, post)
}
func (s *postRepoStub) CompareAndUpdate(ctx context.Context, post *models.Post) (bool, error) {
	return s.compareAndUpdateFn(ctx, post)
}
func (s *postRepoStub) Delete(ctx context.Context, id string) (bool, error) {
	return s.deleteFn(ctx, id)
}

func noopPostRepo() *postRepoStub {
	return &postRepoStub{
		createFn:  func(context.Context, *models.Post) error { return nil },
		getByIDFn: func(_ context.Context, id string) (*models.Post, error) { return &models.Post{ID: id, Author: "alice"}, nil },
		listFn: func(context.Context, repository.ListOptions) (*repository.PostPage, error) {
			return &repository.PostPage{Posts: []*models.Post{}}, nil
		},
		updateFn:           func(context.Context, *models.Post) error { return nil },
		compareAndUpdateFn: func(context.Context, *models.Post) (bool, error) { return true, nil },
		deleteFn:           func(context.Context, string) (bool, error) { return true, nil },
	}
}

// commentRepoStub is a stub for repository.CommentRepository.
type commentRepoStub struct {
	createFn      func(context.Context, *models.Comment) error
	getByIDFn     func(context.Context, string) (*models.Comment, error)
	listByPostFn  func(context.Context, string) ([]*models.Comment, error)
	countByPostFn func(context.Context) (map[string]int, error)
	deleteFn      func(context.Context, string) error
}

func (s *commentRepoStub) Create(ctx context.Context, c *models.Comment) error {
	return s.createFn(ctx, c)
}
func (s *commentRepoStub) GetByID(ctx context.Context, id string) (*models.Comment, error) {
	return s.getByIDFn(ctx, id)
}
func (s *commentRepoStub) ListByPost(ctx context.Context, postID string) ([]*models.Comment, error) {
	return s.listByPostFn(ctx, postID)
}
func (s *commentRepoStub) CountByPost(ctx context.Context) (map[string]int, error) {
	return s.countByPostFn(ctx)
}
func (s *commentRepoStub) Delete(ctx context.Context, id string) error {
	return s.deleteFn(ctx, id)
}

func noopCommentRepo() *commentRepoStub {
	return &commentRepoStub{
		createFn:      func(context.Context, *models.Comment) error { return nil },
		getByIDFn:     func(context.Context, string) (*models.Comment, error) { return nil, nil },
		listByPostFn:  func(context.Context, string) ([]*models.Comment, error) { return []*models.Comment{}, nil },
		countByPostFn: func(context.Context) (map[string]int, error) { return map[string]int{}, nil },
		deleteFn:      func(context.Context, string) error { return nil },
	}
}

// assertAppError asserts that err is an AppError with the given code.
func assertAppError(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected *models.AppError, got %T", err)
	assert.Equal(t, code, appErr.Code)
}

func assertValidationError(t *testing.T, err error) {
	t.Helper()
	assertAppError(t, err, models.CodeValidation)
}
