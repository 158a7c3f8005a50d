// Package consumer reads published reviews from Kafka, enriches them through the lookup services
// and stores the result. The user lookup route follows the consumer's configured api_version, which
// is how a /break on the controller shows up as user-lookup latency.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/frothly/episode-mesh/internal/logging"
	"github.com/frothly/episode-mesh/internal/tracing"
)

// Reader is the subset of *kafka.Reader the worker needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ReviewEnricher interface {
	Enrich(ctx context.Context, review json.RawMessage) (*Enriched, error)
}

type Store interface {
	InsertEnriched(ctx context.Context, r *Enriched) error
	MarkArchived(ctx context.Context, id, key string) error
}

type WorkerConfig struct {
	// MaxConcurrency bounds concurrent message handling.
	MaxConcurrency int

	// HandlingTimeout caps enrich, persist and archive for one message.
	HandlingTimeout time.Duration

	// RetryInterval is the pause after a failed fetch.
	RetryInterval time.Duration
}

// Worker consumes the reviews topic. Each message is committed once handled, whether or not
// enrichment succeeded, so delivery is at least once and a poison message never blocks the group.
type Worker struct {
	reader   Reader
	enricher ReviewEnricher
	store    Store
	archiver Archiver
	tracer   trace.Tracer
	cfg      WorkerConfig
	handled  *prometheus.CounterVec
	wg       sync.WaitGroup
}

// NewWorker constructs a worker. archiver may be nil; reg may be nil.
func NewWorker(reader Reader, enricher ReviewEnricher, store Store, archiver Archiver, tracer trace.Tracer, reg prometheus.Registerer, cfg WorkerConfig) *Worker {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	if cfg.HandlingTimeout <= 0 {
		cfg.HandlingTimeout = 30 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Second
	}
	handled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reviews_consumed_total",
		Help: "Reviews consumed from Kafka by outcome.",
	}, []string{"outcome", "user_route"})
	if reg != nil {
		reg.MustRegister(handled)
	}
	return &Worker{
		reader:   reader,
		enricher: enricher,
		store:    store,
		archiver: archiver,
		tracer:   tracer,
		cfg:      cfg,
		handled:  handled,
	}
}

// Run consumes until ctx is cancelled or the reader is closed, then waits for in-flight messages.
func (w *Worker) Run(ctx context.Context) error {
	log := logging.L()
	log.Info("review consumer starting", zap.Int("concurrency", w.cfg.MaxConcurrency))
	defer log.Info("review consumer stopped")
	defer w.wg.Wait()

	sem := make(chan struct{}, w.cfg.MaxConcurrency)
	for {
		msg, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			log.Warn("fetch message failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.cfg.RetryInterval):
			}
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return nil
		}
		w.wg.Add(1)
		go func(msg kafka.Message) {
			defer func() {
				<-sem
				w.wg.Done()
			}()
			w.handle(ctx, msg)
		}(msg)
	}
}

// handle enriches, persists and archives one message, then commits it. It outlives ctx so a
// shutdown does not abandon a half-handled message.
func (w *Worker) handle(parent context.Context, msg kafka.Message) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), w.cfg.HandlingTimeout)
	defer cancel()

	ctx = tracing.FromKafkaHeaders(ctx, msg.Headers)
	ctx, span := tracing.StartLinked(ctx, w.tracer, "consume_review",
		attribute.Int("messaging.kafka.partition", msg.Partition),
		attribute.Int64("messaging.kafka.offset", msg.Offset),
	)
	defer span.End()

	log := logging.L().With(
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	)
	if id := tracing.CorrelationID(ctx); id != "" {
		log = log.With(zap.String("correlation_id", id))
	}

	outcome, route := w.process(ctx, log, msg)
	w.handled.WithLabelValues(outcome, route).Inc()

	if err := w.reader.CommitMessages(ctx, msg); err != nil {
		log.Error("commit failed", zap.Error(err))
	}
}

func (w *Worker) process(ctx context.Context, log *zap.Logger, msg kafka.Message) (outcome, route string) {
	enriched, err := w.enricher.Enrich(ctx, msg.Value)
	if err != nil {
		log.Error("enrich review failed", zap.Error(err))
		return "enrich_failed", ""
	}
	log = log.With(zap.String("review_id", enriched.ReviewID), zap.String("user_route", enriched.UserRoute))

	if err := w.store.InsertEnriched(ctx, enriched); err != nil {
		log.Error("persist review failed", zap.Error(err))
		return "persist_failed", enriched.UserRoute
	}
	if w.archiver != nil {
		key, err := w.archiver.Archive(ctx, enriched)
		if err != nil {
			log.Error("archive review failed", zap.Error(err))
			return "archive_failed", enriched.UserRoute
		}
		if err := w.store.MarkArchived(ctx, enriched.ID, key); err != nil {
			log.Warn("mark archived failed", zap.String("key", key), zap.Error(err))
		}
	}
	log.Info("review stored", zap.String("id", enriched.ID))
	return "stored", enriched.UserRoute
}
