package config

import (
	"fmt"
	"os"
	"time"

	"github.com/frothly/episode-mesh/lookup/internal/resource"
)

// Source backends for the record store.
const (
	SourceFile     = "file"
	SourceS3       = "s3"
	SourcePostgres = "postgres"
)

type Config struct {
	Resource       resource.Def
	Addr           string
	Source         string
	File           string
	S3Bucket       string
	S3Key          string
	DatabaseURL    string
	Table          string
	CacheTTL       time.Duration
	InitialVersion int
	LatencyUnit    time.Duration
}

func Load(def resource.Def) (Config, error) {
	cfg := Config{
		Resource:       def,
		Addr:           getEnv("LOOKUP_ADDR", def.DefaultAddr),
		Source:         getEnv("LOOKUP_SOURCE", SourceFile),
		File:           getEnv("LOOKUP_FILE", def.DefaultFile),
		S3Bucket:       os.Getenv("LOOKUP_S3_BUCKET"),
		S3Key:          getEnv("LOOKUP_S3_KEY", def.DefaultFile),
		DatabaseURL:    firstNonEmpty(os.Getenv("LOOKUP_DATABASE_URL"), os.Getenv("DATABASE_URL")),
		Table:          getEnv("LOOKUP_TABLE", def.Name+"s"),
		CacheTTL:       getDuration("LOOKUP_CACHE_TTL", 0),
		InitialVersion: getInt("LOOKUP_INITIAL_API_VERSION", 2),
		LatencyUnit:    getDuration("LATENCY_TIME_UNIT", time.Second),
	}
	switch cfg.Source {
	case SourceFile:
		if cfg.File == "" {
			return Config{}, fmt.Errorf("LOOKUP_FILE required for file source")
		}
	case SourceS3:
		if cfg.S3Bucket == "" {
			return Config{}, fmt.Errorf("LOOKUP_S3_BUCKET required for s3 source")
		}
	case SourcePostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL or LOOKUP_DATABASE_URL required for postgres source")
		}
	default:
		return Config{}, fmt.Errorf("unknown LOOKUP_SOURCE %q", cfg.Source)
	}
	if cfg.InitialVersion < 1 {
		return Config{}, fmt.Errorf("LOOKUP_INITIAL_API_VERSION must be >= 1, got %d", cfg.InitialVersion)
	}
	if cfg.LatencyUnit <= 0 {
		return Config{}, fmt.Errorf("LATENCY_TIME_UNIT must be positive")
	}
	return cfg, nil
}
