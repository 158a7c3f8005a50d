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
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/frothly/episode-mesh/controller/internal/config"
	"github.com/frothly/episode-mesh/controller/internal/dependents"
	"github.com/frothly/episode-mesh/controller/internal/episode"
	"github.com/frothly/episode-mesh/controller/internal/events"
	"github.com/frothly/episode-mesh/controller/internal/httpserver"
	"github.com/frothly/episode-mesh/internal/logging"
	"github.com/frothly/episode-mesh/internal/tracing"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.Init(logging.ConfigFromEnv("breakcontroller"))
	defer func() { _ = logger.Sync() }()

	shutdownTracing, err := tracing.Init(context.Background(), tracing.ConfigFromEnv("breakcontroller"))
	if err != nil {
		log.Fatalf("init tracing: %v", err)
	}

	registry, err := loadRegistry(cfg)
	if err != nil {
		log.Fatalf("dependents: %v", err)
	}
	emitter, err := events.NewEmitter(events.EmitterConfig{
		URL:        cfg.EventURL,
		Token:      cfg.IngestToken,
		HTTPClient: tracing.NewHTTPClient(cfg.EventTimeout, nil),
	})
	if err != nil {
		log.Fatalf("event emitter: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc := episode.NewService(registry,
		dependents.NewClient(dependents.ClientConfig{
			Timeout:    cfg.DependentTimeout,
			HTTPClient: tracing.NewHTTPClient(0, nil),
		}),
		emitter,
		otel.Tracer("breakcontroller"),
		reg,
		episode.Config{
			Template:     events.Template(cfg.Event),
			EventTimeout: cfg.EventTimeout,
		},
	)
	server := httpserver.New(svc, reg)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: server.Router(),
	}

	go func() {
		names := make([]string, 0, len(registry.Dependents()))
		for _, d := range registry.Dependents() {
			names = append(names, d.Name)
		}
		logger.Info("break controller listening",
			zap.String("addr", cfg.Addr),
			zap.Strings("dependents", names),
			zap.String("designated", registry.Designated()),
			zap.Duration("dependent_timeout", cfg.DependentTimeout),
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("controller server error: %v", err)
		}
	}()

	waitForShutdown(httpServer, svc, shutdownTracing)
}

func loadRegistry(cfg config.Config) (*dependents.Registry, error) {
	if cfg.DependentsFile != "" {
		return dependents.LoadFile(cfg.DependentsFile, cfg.Designated)
	}
	return dependents.NewRegistry([]dependents.Dependent{
		{Name: "ReviewsProducer", URL: cfg.ProducerURL},
		{Name: "ReviewsConsumer", URL: cfg.ConsumerURL},
	}, cfg.Designated)
}

func waitForShutdown(srv *http.Server, svc *episode.Service, shutdownTracing func(context.Context) error) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("controller graceful shutdown: %v", err)
	}

	drained := make(chan struct{})
	go func() {
		svc.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		log.Printf("event deliveries still in flight at shutdown")
	}

	if err := shutdownTracing(ctx); err != nil {
		log.Printf("tracing shutdown: %v", err)
	}
}
