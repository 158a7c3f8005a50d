package config

import (
	"fmt"
	"os"
)

type SamplerConfig struct {
	Addr         string
	PositiveFile string
	NegativeFile string
	// S3Bucket, when set, makes the pool files object keys in that bucket.
	S3Bucket string
}

const defaultSamplerAddr = ":5000"

func LoadSampler() (SamplerConfig, error) {
	cfg := SamplerConfig{
		Addr:         getEnv("REVIEW_ADDR", defaultSamplerAddr),
		PositiveFile: getEnv("REVIEW_POSITIVE_FILE", "positive_reviews.json"),
		NegativeFile: getEnv("REVIEW_NEGATIVE_FILE", "negative_reviews.json"),
		S3Bucket:     os.Getenv("REVIEW_S3_BUCKET"),
	}
	if cfg.PositiveFile == cfg.NegativeFile {
		return SamplerConfig{}, fmt.Errorf("REVIEW_POSITIVE_FILE and REVIEW_NEGATIVE_FILE must differ")
	}
	return cfg, nil
}
