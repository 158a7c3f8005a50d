package config

import (
	"fmt"
	"os"
	"time"
)

type ConsumerConfig struct {
	Addr             string
	Brokers          []string
	Topic            string
	GroupID          string
	ProductLookupURL string
	UserLookupURL    string
	// SentimentURL is optional; reviews are stored without sentiment when empty.
	SentimentURL    string
	DatabaseURL     string
	ArchiveBucket   string
	ArchivePrefix   string
	InitialVersion  int
	Concurrency     int
	RequestTimeout  time.Duration
	HandlingTimeout time.Duration
}

const (
	defaultConsumerAddr = ":8080"
	defaultGroupID      = "reviews_to_db"
)

func LoadConsumer() (ConsumerConfig, error) {
	cfg := ConsumerConfig{
		Addr:             firstNonEmpty(os.Getenv("CONSUMER_ADDR"), defaultConsumerAddr),
		Brokers:          parseCSV(getEnv("KAFKA_BROKERS", "localhost:9092")),
		Topic:            getEnv("KAFKA_TOPIC", defaultTopic),
		GroupID:          getEnv("KAFKA_GROUP_ID", defaultGroupID),
		ProductLookupURL: getEnv("PRODUCT_LOOKUP_URL", "http://productlookup:5002"),
		UserLookupURL:    getEnv("USER_LOOKUP_URL", "http://userlookup:5003"),
		SentimentURL:     os.Getenv("SENTIMENT_URL"),
		DatabaseURL:      firstNonEmpty(os.Getenv("CONSUMER_DATABASE_URL"), os.Getenv("DATABASE_URL")),
		ArchiveBucket:    os.Getenv("ARCHIVE_S3_BUCKET"),
		ArchivePrefix:    getEnv("ARCHIVE_S3_PREFIX", "reviews"),
		InitialVersion:   getInt("CONSUMER_INITIAL_API_VERSION", 2),
		Concurrency:      getInt("CONSUMER_CONCURRENCY", 1),
		RequestTimeout:   getDuration("CONSUMER_REQUEST_TIMEOUT", 5*time.Second),
		HandlingTimeout:  getDuration("CONSUMER_HANDLING_TIMEOUT", 30*time.Second),
	}
	if cfg.DatabaseURL == "" {
		return ConsumerConfig{}, fmt.Errorf("DATABASE_URL or CONSUMER_DATABASE_URL required")
	}
	if len(cfg.Brokers) == 0 {
		return ConsumerConfig{}, fmt.Errorf("KAFKA_BROKERS required")
	}
	if cfg.InitialVersion < 1 {
		return ConsumerConfig{}, fmt.Errorf("CONSUMER_INITIAL_API_VERSION must be >= 1, got %d", cfg.InitialVersion)
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return cfg, nil
}
