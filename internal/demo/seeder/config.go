package seeder

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Config struct {
	APIBaseURL     string
	APIKey         string
	DatabasePath   string
	ConnectionName string
	Customers      int
	Products       int
	Orders         int
	Seed           int64
	HTTPTimeout    time.Duration
	Register       bool
	Activate       bool
}

func DefaultConfig() Config {
	return Config{
		APIBaseURL:     "http://localhost:8080",
		DatabasePath:   "querymind-demo.db",
		ConnectionName: "demo",
		Customers:      200,
		Products:       40,
		Orders:         1500,
		Seed:           42,
		HTTPTimeout:    10 * time.Second,
		Register:       true,
		Activate:       true,
	}
}

func LoadConfigFromEnv(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := DefaultConfig()
	if err := applyString(lookup, "QUERYMIND_DEMO_API_URL", &cfg.APIBaseURL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYMIND_DEMO_API_KEY", &cfg.APIKey); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYMIND_DEMO_DATABASE", &cfg.DatabasePath); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYMIND_DEMO_CONNECTION", &cfg.ConnectionName); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "QUERYMIND_DEMO_CUSTOMERS", &cfg.Customers); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "QUERYMIND_DEMO_PRODUCTS", &cfg.Products); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "QUERYMIND_DEMO_ORDERS", &cfg.Orders); err != nil {
		return Config{}, err
	}
	if err := applyInt64(lookup, "QUERYMIND_DEMO_SEED", &cfg.Seed); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "QUERYMIND_DEMO_HTTP_TIMEOUT", &cfg.HTTPTimeout); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "QUERYMIND_DEMO_REGISTER", &cfg.Register); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "QUERYMIND_DEMO_ACTIVATE", &cfg.Activate); err != nil {
		return Config{}, err
	}

	if strings.TrimSpace(cfg.DatabasePath) == "" {
		return Config{}, fmt.Errorf("QUERYMIND_DEMO_DATABASE is required")
	}
	if cfg.Register && strings.TrimSpace(cfg.APIBaseURL) == "" {
		return Config{}, fmt.Errorf("QUERYMIND_DEMO_API_URL is required to register the connection")
	}
	if cfg.Register && strings.TrimSpace(cfg.ConnectionName) == "" {
		return Config{}, fmt.Errorf("QUERYMIND_DEMO_CONNECTION is required to register the connection")
	}
	if cfg.Customers <= 0 {
		return Config{}, fmt.Errorf("QUERYMIND_DEMO_CUSTOMERS must be > 0")
	}
	if cfg.Products <= 0 {
		return Config{}, fmt.Errorf("QUERYMIND_DEMO_PRODUCTS must be > 0")
	}
	if cfg.Orders < 0 {
		return Config{}, fmt.Errorf("QUERYMIND_DEMO_ORDERS must not be negative")
	}
	if cfg.HTTPTimeout <= 0 {
		return Config{}, fmt.Errorf("QUERYMIND_DEMO_HTTP_TIMEOUT must be > 0")
	}

	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.ConnectionName = strings.TrimSpace(cfg.ConnectionName)
	return cfg, nil
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}
