package main

import (
	"context"
	"database/sql"
	"flag"
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
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/frothly/episode-mesh/internal/apiversion"
	"github.com/frothly/episode-mesh/internal/latency"
	"github.com/frothly/episode-mesh/internal/logging"
	"github.com/frothly/episode-mesh/internal/records"
	"github.com/frothly/episode-mesh/internal/tracing"
	"github.com/frothly/episode-mesh/lookup/internal/config"
	"github.com/frothly/episode-mesh/lookup/internal/httpserver"
	"github.com/frothly/episode-mesh/lookup/internal/resource"
)

func main() {
	_ = godotenv.Load()

	name := flag.String("resource", envOr("LOOKUP_RESOURCE", "user"), "resource to serve (product, supplier, user)")
	flag.Parse()

	def, err := resource.Lookup(*name)
	if err != nil {
		log.Fatalf("resource: %v", err)
	}
	cfg, err := config.Load(def)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	service := def.Name + "-lookup"
	logger := logging.Init(logging.ConfigFromEnv(service))
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	shutdownTracing, err := tracing.Init(ctx, tracing.ConfigFromEnv(service))
	if err != nil {
		log.Fatalf("init tracing: %v", err)
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("open %s store: %v", cfg.Source, err)
	}
	defer closeStore()
	if cfg.CacheTTL > 0 {
		store = records.NewCached(store, cfg.CacheTTL)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	state := apiversion.NewState(apiversion.Version(cfg.InitialVersion))
	injector := latency.NewInjector(latency.NewPolicy(cfg.LatencyUnit, nil), otel.Tracer(service), reg)
	server := httpserver.New(def, store, state, injector, reg)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: server.Router(),
	}

	go func() {
		logger.Info("lookup service listening",
			zap.String("addr", cfg.Addr),
			zap.String("resource", def.Name),
			zap.String("source", cfg.Source),
			zap.Stringer("api_version", state.Get()),
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("lookup server error: %v", err)
		}
	}()

	waitForShutdown(httpServer, shutdownTracing)
}

// openStore builds the record store for the configured source. The returned close func is never nil.
func openStore(ctx context.Context, cfg config.Config) (records.Store, func(), error) {
	noop := func() {}
	switch cfg.Source {
	case config.SourceS3:
		src, err := records.NewS3Source(ctx)
		if err != nil {
			return nil, noop, err
		}
		ix, err := records.LoadObject(ctx, src, cfg.S3Bucket, cfg.S3Key, cfg.Resource.IDField)
		return ix, noop, err
	case config.SourcePostgres:
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, noop, err
		}
		db.SetMaxOpenConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		pg, err := records.NewPGStore(db, cfg.Table)
		if err != nil {
			db.Close()
			return nil, noop, err
		}
		if err := pg.Ping(ctx); err != nil {
			db.Close()
			return nil, noop, err
		}
		return pg, func() { db.Close() }, nil
	default:
		ix, err := records.LoadFile(cfg.File, cfg.Resource.IDField)
		return ix, noop, err
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func waitForShutdown(srv *http.Server, shutdownTracing func(context.Context) error) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("lookup graceful shutdown: %v", err)
	}
	if err := shutdownTracing(ctx); err != nil {
		log.Printf("tracing shutdown: %v", err)
	}
}
