package main

import (
	"context"
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

	"github.com/frothly/episode-mesh/internal/apiversion"
	"github.com/frothly/episode-mesh/internal/logging"
	"github.com/frothly/episode-mesh/internal/tracing"
	"github.com/frothly/episode-mesh/reviews/internal/config"
	"github.com/frothly/episode-mesh/reviews/internal/producer"
	"github.com/frothly/episode-mesh/reviews/internal/producer/httpserver"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadProducer()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.Init(logging.ConfigFromEnv("reviews-producer"))
	defer func() { _ = logger.Sync() }()

	shutdownTracing, err := tracing.Init(context.Background(), tracing.ConfigFromEnv("reviews-producer"))
	if err != nil {
		log.Fatalf("init tracing: %v", err)
	}

	reviews, err := producer.NewReviewClient(producer.ReviewClientConfig{
		BaseURL:    cfg.ReviewServiceURL,
		Timeout:    cfg.FetchTimeout,
		HTTPClient: tracing.NewHTTPClient(0, nil),
	})
	if err != nil {
		log.Fatalf("review client: %v", err)
	}
	kp, err := producer.NewKafkaProducer(producer.KafkaProducerConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
	})
	if err != nil {
		log.Fatalf("kafka producer: %v", err)
	}
	defer kp.Close()

	state := apiversion.NewState(apiversion.Version(cfg.InitialVersion))
	svc := producer.NewService(state, cfg.NumReviews, reviews, kp)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	server := httpserver.New(svc, reg)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: server.Router(),
	}

	go func() {
		logger.Info("reviews producer listening",
			zap.String("addr", cfg.Addr),
			zap.Strings("brokers", cfg.Brokers),
			zap.String("topic", cfg.Topic),
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("producer server error: %v", err)
		}
	}()

	waitForShutdown(httpServer, shutdownTracing)
}

func waitForShutdown(srv *http.Server, shutdownTracing func(context.Context) error) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("producer graceful shutdown: %v", err)
	}
	if err := shutdownTracing(ctx); err != nil {
		log.Printf("tracing shutdown: %v", err)
	}
}
