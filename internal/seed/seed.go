// Package seed fills a store with demo posts and comments. It is intended
// for development only.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/brianvoe/gofakeit/v6"

	"murmur/internal/observability"
	"murmur/internal/service"
)

var demoTags = []string{"go", "music", "travel", "food", "photography", "books", "hiking", "gaming"}

// Options controls how much data a Seeder writes.
type Options struct {
	Users       int
	Posts       int
	MaxComments int
	// Seed makes the generated content reproducible. Zero picks a random seed.
	Seed int64
}

// Result counts what a run created.
type Result struct {
	Posts    int
	Comments int
}

// Seeder writes through the services so stored posts carry the same
// derived fields as posts created over the API.
type Seeder struct {
	posts    *service.PostService
	comments *service.CommentService
	faker    *gofakeit.Faker
	opts     Options
}

func NewSeeder(posts *service.PostService, comments *service.CommentService, opts Options) *Seeder {
	if opts.Users <= 0 {
		opts.Users = 1
	}
	return &Seeder{
		posts:    posts,
		comments: comments,
		faker:    gofakeit.New(opts.Seed),
		opts:     opts,
	}
}

type demoUser struct {
	name   string
	avatar string
}

func (s *Seeder) users() []demoUser {
	out := make([]demoUser, s.opts.Users)
	for i := range out {
		name := strings.ToLower(s.faker.Username()) + fmt.Sprintf("%d", s.faker.Number(100, 999))
		out[i] = demoUser{
			name:   name,
			avatar: fmt.Sprintf("https://i.pravatar.cc/150?u=%s", name),
		}
	}
	return out
}

// Content renders a post body: a heading, a paragraph and a tag line.
func (s *Seeder) Content() string {
	first := s.faker.RandomString(demoTags)
	second := s.faker.RandomString(demoTags)
	return fmt.Sprintf("# %s\n\n%s\n\n#%s #%s",
		strings.TrimSuffix(s.faker.Sentence(4), "."),
		s.faker.Paragraph(1, 2, 8, " "),
		first, second)
}

// Run creates the configured number of posts, each with up to MaxComments
// comments from the other demo users.
func (s *Seeder) Run(ctx context.Context) (Result, error) {
	logger := observability.GlobalLogger
	users := s.users()

	var res Result
	for range s.opts.Posts {
		author := users[s.faker.Number(0, len(users)-1)]
		in := service.CreatePostInput{
			Author:  author.name,
			Avatar:  author.avatar,
			Content: s.Content(),
		}
		if s.faker.Bool() {
			in.Image = fmt.Sprintf("https://picsum.photos/seed/%s/800/800", s.faker.UUID())
		}

		post, err := s.posts.CreatePost(ctx, in)
		if err != nil {
			return res, fmt.Errorf("seed post: %w", err)
		}
		res.Posts++

		if s.opts.MaxComments <= 0 {
			continue
		}
		for range s.faker.Number(0, s.opts.MaxComments) {
			commenter := users[s.faker.Number(0, len(users)-1)]
			_, err := s.comments.CreateComment(ctx, service.CreateCommentInput{
				Author:  commenter.name,
				Avatar:  commenter.avatar,
				PostID:  post.ID,
				Content: s.faker.Sentence(s.faker.Number(3, 12)),
			})
			if err != nil {
				return res, fmt.Errorf("seed comment: %w", err)
			}
			res.Comments++
		}
	}

	logger.Info("seed complete",
		slog.Int("posts", res.Posts),
		slog.Int("comments", res.Comments))
	return res, nil
}
