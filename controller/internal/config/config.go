package config

import (
	"fmt"
	"os"
	"time"
)

// MaxDegradedUnits is the longest delay, in latency time units, a degraded dependent may add.
const MaxDegradedUnits = 2.2

type Config struct {
	Addr        string
	IngestToken string
	EventURL    string

	ProducerURL    string
	ConsumerURL    string
	DependentsFile string
	Designated     string

	DependentTimeout time.Duration
	EventTimeout     time.Duration
	LatencyUnit      time.Duration

	Event EventConfig
}

// EventConfig fills the deployment and rollback event templates.
type EventConfig struct {
	Environment     string
	Service         string
	Cluster         string
	DeployedBy      string
	RolledBackBy    string
	DeployVersion   string
	RollbackVersion string
}

const (
	defaultControllerAddr = ":5010"
	defaultEventURL       = "https://ingest.us0.signalfx.com/v2/event"
	defaultDesignated     = "ReviewsProducer"
)

func Load() (Config, error) {
	cfg := Config{
		Addr:             getEnv("CONTROLLER_ADDR", defaultControllerAddr),
		IngestToken:      os.Getenv("INGEST_TOKEN"),
		EventURL:         getEnv("EVENT_URL", defaultEventURL),
		ProducerURL:      getEnv("REVIEWS_PRODUCER_URL", "http://reviewsproducer:8080"),
		ConsumerURL:      getEnv("REVIEWS_CONSUMER_URL", "http://reviewsconsumer:8080"),
		DependentsFile:   os.Getenv("CONTROLLER_DEPENDENTS_FILE"),
		Designated:       getEnv("CONTROLLER_DESIGNATED_DEPENDENT", defaultDesignated),
		DependentTimeout: getDuration("DEPENDENT_TIMEOUT", 5*time.Second),
		EventTimeout:     getDuration("EVENT_TIMEOUT", 5*time.Second),
		LatencyUnit:      getDuration("LATENCY_TIME_UNIT", time.Second),
		Event: EventConfig{
			Environment:     getEnv("EVENT_ENVIRONMENT", "production"),
			Service:         getEnv("EVENT_SERVICE", "userlookup"),
			Cluster:         getEnv("EVENT_CLUSTER", "frothly-eks"),
			DeployedBy:      getEnv("EVENT_DEPLOYED_BY", "Jenna Eagle"),
			RolledBackBy:    getEnv("EVENT_ROLLED_BACK_BY", "Jenna Eagle's Boss"),
			DeployVersion:   getEnv("EVENT_DEPLOY_VERSION", "latest"),
			RollbackVersion: getEnv("EVENT_ROLLBACK_VERSION", "2"),
		},
	}
	if cfg.IngestToken == "" {
		return Config{}, fmt.Errorf("INGEST_TOKEN required")
	}
	if cfg.LatencyUnit <= 0 {
		return Config{}, fmt.Errorf("LATENCY_TIME_UNIT must be positive")
	}
	maxDelay := time.Duration(MaxDegradedUnits * float64(cfg.LatencyUnit))
	if cfg.DependentTimeout <= maxDelay {
		return Config{}, fmt.Errorf("DEPENDENT_TIMEOUT %s must exceed the longest injected delay %s", cfg.DependentTimeout, maxDelay)
	}
	if cfg.EventTimeout <= 0 {
		return Config{}, fmt.Errorf("EVENT_TIMEOUT must be positive")
	}
	return cfg, nil
}
