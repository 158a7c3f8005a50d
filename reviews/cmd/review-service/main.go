package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/frothly/episode-mesh/internal/logging"
	"github.com/frothly/episode-mesh/internal/records"
	"github.com/frothly/episode-mesh/internal/tracing"
	"github.com/frothly/episode-mesh/reviews/internal/config"
	"github.com/frothly/episode-mesh/reviews/internal/sampler"
	"github.com/frothly/episode-mesh/reviews/internal/sampler/httpserver"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadSampler()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.Init(logging.ConfigFromEnv("review-service"))
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	shutdownTracing, err := tracing.Init(ctx, tracing.ConfigFromEnv("review-service"))
	if err != nil {
		log.Fatalf("init tracing: %v", err)
	}

	open := openFile
	if cfg.S3Bucket != "" {
		src, err := records.NewS3Source(ctx)
		if err != nil {
			log.Fatalf("s3 source: %v", err)
		}
		open = func(ctx context.Context, name string) (io.Reader, error) {
			return src.Open(ctx, cfg.S3Bucket, name)
		}
	}
	s, err := sampler.Load(ctx, open, cfg.PositiveFile, cfg.NegativeFile, nil)
	if err != nil {
		log.Fatalf("load review pools: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	server := httpserver.New(s, reg)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: server.Router(),
	}

	go func() {
		positive, negative := s.Sizes()
		logger.Info("review service listening",
			zap.String("addr", cfg.Addr),
			zap.Int("positive_reviews", positive),
			zap.Int("negative_reviews", negative),
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("review server error: %v", err)
		}
	}()

	waitForShutdown(httpServer, shutdownTracing)
}

func openFile(_ context.Context, name string) (io.Reader, error) {
	return os.Open(name)
}

func waitForShutdown(srv *http.Server, shutdownTracing func(context.Context) error) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("review graceful shutdown: %v", err)
	}
	if err := shutdownTracing(ctx); err != nil {
		log.Printf("tracing shutdown: %v", err)
	}
}
