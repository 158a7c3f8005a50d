package config

import (
	"fmt"
	"os"
	"time"
)

type ProducerConfig struct {
	Addr             string
	ReviewServiceURL string
	Brokers          []string
	Topic            string
	NumReviews       int
	InitialVersion   int
	FetchTimeout     time.Duration
}

const (
	defaultProducerAddr = ":8080"
	defaultTopic        = "reviews"
	defaultNumReviews   = 10
)

func LoadProducer() (ProducerConfig, error) {
	cfg := ProducerConfig{
		Addr:             firstNonEmpty(os.Getenv("PRODUCER_ADDR"), defaultProducerAddr),
		ReviewServiceURL: getEnv("REVIEW_SERVICE_URL", "http://review:5000"),
		Brokers:          parseCSV(getEnv("KAFKA_BROKERS", "localhost:9092")),
		Topic:            getEnv("KAFKA_TOPIC", defaultTopic),
		NumReviews:       getInt("PRODUCER_NUM_REVIEWS", defaultNumReviews),
		InitialVersion:   getInt("PRODUCER_INITIAL_API_VERSION", 2),
		FetchTimeout:     getDuration("PRODUCER_FETCH_TIMEOUT", 5*time.Second),
	}
	if len(cfg.Brokers) == 0 {
		return ProducerConfig{}, fmt.Errorf("KAFKA_BROKERS required")
	}
	if cfg.NumReviews < 0 {
		return ProducerConfig{}, fmt.Errorf("PRODUCER_NUM_REVIEWS must be >= 0, got %d", cfg.NumReviews)
	}
	if cfg.InitialVersion < 1 {
		return ProducerConfig{}, fmt.Errorf("PRODUCER_INITIAL_API_VERSION must be >= 1, got %d", cfg.InitialVersion)
	}
	return cfg, nil
}
