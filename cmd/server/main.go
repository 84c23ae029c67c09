// Command server is the entry point for the murmur API.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"murmur/internal/bootstrap"
	"murmur/internal/config"
	"murmur/internal/middleware"
	"murmur/internal/observability"
	"murmur/internal/server"
)

const serviceVersion = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	middleware.InitLogger(os.Stdout, cfg.Env)

	sampler := 1.0
	if cfg.IsProduction() {
		sampler = 0.1
	}
	shutdownTracing, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:    "murmur-api",
		ServiceVersion: serviceVersion,
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   sampler,
	})
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}

	deps, err := bootstrap.Open(cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}

	srv := server.NewServer(cfg, deps.Store, deps.Redis)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	err = serve(srv, stop, 10*time.Second, func(ctx context.Context) {
		if err := deps.Close(); err != nil {
			log.Printf("Store shutdown error: %v", err)
		}
		if err := shutdownTracing(ctx); err != nil {
			log.Printf("Tracing shutdown error: %v", err)
		}
	})
	if err != nil {
		log.Fatal(err)
	}
}

type lifecycle interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// serve runs srv until it stops on its own or a signal arrives on stop.
// Either way the server is shut down and cleanup runs before serve returns.
func serve(srv lifecycle, stop <-chan os.Signal, timeout time.Duration, cleanup func(ctx context.Context)) error {
	started := make(chan error, 1)
	go func() { started <- srv.Start() }()

	var err error
	signaled := false
	select {
	case <-stop:
		signaled = true
		log.Println("Shutting down server...")
	case err = <-started:
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if serr := srv.Shutdown(ctx); serr != nil {
		log.Printf("Server shutdown error: %v", serr)
	}
	if signaled {
		// Start returns once the listener has drained.
		select {
		case err = <-started:
		case <-ctx.Done():
		}
	}
	cleanup(ctx)
	return err
}
