package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/frothly/episode-mesh/internal/apiversion"
	"github.com/frothly/episode-mesh/internal/logging"
	"github.com/frothly/episode-mesh/internal/tracing"
	"github.com/frothly/episode-mesh/reviews/internal/config"
	"github.com/frothly/episode-mesh/reviews/internal/consumer"
	"github.com/frothly/episode-mesh/reviews/internal/consumer/httpserver"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConsumer()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.Init(logging.ConfigFromEnv("reviews-consumer"))
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, tracing.ConfigFromEnv("reviews-consumer"))
	if err != nil {
		log.Fatalf("init tracing: %v", err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	store := consumer.NewPGStore(db)
	if err := store.Ping(ctx); err != nil {
		log.Fatalf("ping db: %v", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}

	var archiver consumer.Archiver
	if cfg.ArchiveBucket != "" {
		a, err := consumer.NewS3Archiver(ctx, cfg.ArchiveBucket, cfg.ArchivePrefix)
		if err != nil {
			log.Fatalf("s3 archiver: %v", err)
		}
		archiver = a
	}

	httpClient := tracing.NewHTTPClient(0, nil)
	products, err := consumer.NewLookupClient(consumer.HTTPClientConfig{
		Name: "product-lookup", BaseURL: cfg.ProductLookupURL, Timeout: cfg.RequestTimeout, HTTPClient: httpClient,
	})
	if err != nil {
		log.Fatalf("product lookup client: %v", err)
	}
	users, err := consumer.NewLookupClient(consumer.HTTPClientConfig{
		Name: "user-lookup", BaseURL: cfg.UserLookupURL, Timeout: cfg.RequestTimeout, HTTPClient: httpClient,
	})
	if err != nil {
		log.Fatalf("user lookup client: %v", err)
	}
	var sentiment *consumer.SentimentClient
	if cfg.SentimentURL != "" {
		sentiment, err = consumer.NewSentimentClient(consumer.HTTPClientConfig{
			Name: "sentiment", BaseURL: cfg.SentimentURL, Timeout: cfg.RequestTimeout, HTTPClient: httpClient,
		})
		if err != nil {
			log.Fatalf("sentiment client: %v", err)
		}
	}

	state := apiversion.NewState(apiversion.Version(cfg.InitialVersion))
	tracer := otel.Tracer("reviews-consumer")
	enricher := consumer.NewEnricher(products, users, sentiment, state, tracer)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	worker := consumer.NewWorker(reader, enricher, store, archiver, tracer, reg, consumer.WorkerConfig{
		MaxConcurrency:  cfg.Concurrency,
		HandlingTimeout: cfg.HandlingTimeout,
	})
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		if err := worker.Run(ctx); err != nil {
			logger.Error("consumer worker stopped", zap.Error(err))
		}
	}()

	server := httpserver.New(state, store, reg)
	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: server.Router(),
	}

	go func() {
		logger.Info("reviews consumer listening",
			zap.String("addr", cfg.Addr),
			zap.String("topic", cfg.Topic),
			zap.String("group_id", cfg.GroupID),
			zap.Bool("sentiment", sentiment != nil),
			zap.Bool("archive", archiver != nil),
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("consumer server error: %v", err)
		}
	}()

	waitForShutdown(httpServer, func() {
		cancel()
		<-workerDone
		if err := reader.Close(); err != nil {
			log.Printf("kafka reader close: %v", err)
		}
	}, shutdownTracing)
}

func waitForShutdown(srv *http.Server, stopWorker func(), shutdownTracing func(context.Context) error) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	stopWorker()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("consumer graceful shutdown: %v", err)
	}
	if err := shutdownTracing(ctx); err != nil {
		log.Printf("tracing shutdown: %v", err)
	}
}
