// Command seed fills the configured store with demo posts and comments.
package main

import (
	"context"
	"flag"
	"log"

	"murmur/internal/bootstrap"
	"murmur/internal/config"
	"murmur/internal/featureflags"
	"murmur/internal/repository"
	"murmur/internal/seed"
	"murmur/internal/service"
)

func main() {
	numUsers := flag.Int("users", 10, "Number of demo authors")
	numPosts := flag.Int("posts", 50, "Number of posts to create")
	maxComments := flag.Int("comments", 5, "Maximum comments per post")
	fakerSeed := flag.Int64("seed", 0, "Seed for reproducible content (0 = random)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.StoreDriver == config.DriverMemory {
		log.Fatal("Seeding the memory store has no effect; set STORE_DRIVER")
	}

	deps, err := bootstrap.Open(cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer func() { _ = deps.Close() }()

	postRepo := repository.NewPostRepository(deps.Store)
	commentRepo := repository.NewCommentRepository(deps.Store)
	flags := featureflags.NewManager(cfg.FeatureFlags)

	s := seed.NewSeeder(
		service.NewPostService(postRepo, commentRepo, flags, service.PostConfig{}),
		service.NewCommentService(commentRepo, postRepo),
		seed.Options{Users: *numUsers, Posts: *numPosts, MaxComments: *maxComments, Seed: *fakerSeed},
	)

	res, err := s.Run(context.Background())
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	log.Printf("Created %d posts and %d comments", res.Posts, res.Comments)
}
