package seeder

import (
	"testing"
	"time"
)

func TestLoadConfigFromEnvDefaults(t *testing.T) {
	cfg, err := LoadConfigFromEnv(mapLookup(nil))
	if err != nil {
		t.Fatalf("LoadConfigFromEnv() error = %v", err)
	}
	if cfg.APIBaseURL != "http://localhost:8080" || cfg.ConnectionName != "demo" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Customers != 200 || cfg.Products != 40 || cfg.Orders != 1500 || cfg.Seed != 42 {
		t.Fatalf("dataset size = %+v", cfg)
	}
	if !cfg.Register || !cfg.Activate {
		t.Fatalf("Register/Activate = %v/%v", cfg.Register, cfg.Activate)
	}
}

func TestLoadConfigFromEnvOverrides(t *testing.T) {
	cfg, err := LoadConfigFromEnv(mapLookup(map[string]string{
		"QUERYMIND_DEMO_API_URL":      "http://api.internal:9000/",
		"QUERYMIND_DEMO_API_KEY":      " k1 ",
		"QUERYMIND_DEMO_DATABASE":     "/tmp/shop.db",
		"QUERYMIND_DEMO_CONNECTION":   "shop",
		"QUERYMIND_DEMO_CUSTOMERS":    "5",
		"QUERYMIND_DEMO_PRODUCTS":     "3",
		"QUERYMIND_DEMO_ORDERS":       "0",
		"QUERYMIND_DEMO_SEED":         "7",
		"QUERYMIND_DEMO_HTTP_TIMEOUT": "3s",
		"QUERYMIND_DEMO_ACTIVATE":     "false",
	}))
	if err != nil {
		t.Fatalf("LoadConfigFromEnv() error = %v", err)
	}
	if cfg.APIBaseURL != "http://api.internal:9000" || cfg.APIKey != "k1" {
		t.Fatalf("api = %q key = %q", cfg.APIBaseURL, cfg.APIKey)
	}
	if cfg.DatabasePath != "/tmp/shop.db" || cfg.ConnectionName != "shop" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Customers != 5 || cfg.Products != 3 || cfg.Orders != 0 || cfg.Seed != 7 {
		t.Fatalf("dataset size = %+v", cfg)
	}
	if cfg.HTTPTimeout != 3*time.Second || cfg.Activate {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadConfigFromEnvRejectsInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"QUERYMIND_DEMO_DATABASE": ""},
		{"QUERYMIND_DEMO_CUSTOMERS": "0"},
		{"QUERYMIND_DEMO_PRODUCTS": "nope"},
		{"QUERYMIND_DEMO_ORDERS": "-1"},
		{"QUERYMIND_DEMO_SEED": "x"},
		{"QUERYMIND_DEMO_HTTP_TIMEOUT": "0s"},
		{"QUERYMIND_DEMO_REGISTER": "maybe"},
		{"QUERYMIND_DEMO_CONNECTION": ""},
	}
	for _, env := range tests {
		if _, err := LoadConfigFromEnv(mapLookup(env)); err == nil {
			t.Fatalf("LoadConfigFromEnv() expected error for %#v", env)
		}
	}
}

func TestLoadConfigFromEnvAllowsEmptyAPIWhenNotRegistering(t *testing.T) {
	if _, err := LoadConfigFromEnv(mapLookup(map[string]string{
		"QUERYMIND_DEMO_API_URL":  "",
		"QUERYMIND_DEMO_REGISTER": "false",
	})); err != nil {
		t.Fatalf("LoadConfigFromEnv() error = %v", err)
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
