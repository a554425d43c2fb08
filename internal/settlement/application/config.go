package application

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SchedulerConfig defines the settlement scheduler behavior.
type SchedulerConfig struct {
	DailyAt        string   `yaml:"daily_at"`
	RecipientTypes []string `yaml:"recipient_types"`
	RetryAttempts  int      `yaml:"retry_attempts"`
	BackoffBaseSec int      `yaml:"backoff_base_sec"`
	LockTTLMin     int      `yaml:"lock_ttl_min"`
	WebhookURL     string   `yaml:"webhook_url"`
}

// LoadSchedulerConfig loads config from yaml or env. The yaml file pointed at
// by SETTLEMENT_CONFIG takes precedence over env values.
func LoadSchedulerConfig() (SchedulerConfig, error) {
	cfg := SchedulerConfig{
		DailyAt:        getenvDefault("SETTLEMENT_DAILY_AT", "03:00"),
		RecipientTypes: splitCSV(os.Getenv("SETTLEMENT_RECIPIENT_TYPES")),
		RetryAttempts:  getenvIntDefault("SETTLEMENT_RETRY_ATTEMPTS", 3),
		BackoffBaseSec: getenvIntDefault("SETTLEMENT_BACKOFF_BASE_SEC", 5),
		LockTTLMin:     getenvIntDefault("SETTLEMENT_LOCK_TTL_MIN", 30),
		WebhookURL:     os.Getenv("SETTLEMENT_WEBHOOK_URL"),
	}

	if path := os.Getenv("SETTLEMENT_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if cfg.DailyAt == "" {
		cfg.DailyAt = "03:00"
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.BackoffBaseSec <= 0 {
		cfg.BackoffBaseSec = 5
	}
	if cfg.LockTTLMin <= 0 {
		cfg.LockTTLMin = 30
	}
	return cfg, nil
}

// LockTTL returns the configured run lock TTL.
func (c SchedulerConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLMin) * time.Minute
}

// BackoffBase returns the configured retry backoff base.
func (c SchedulerConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseSec) * time.Second
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
