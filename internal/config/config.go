package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	AIProviderAnthropic = "anthropic"
	AIProviderOpenAI    = "openai"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Target        TargetConfig
	State         StateConfig
	Schema        SchemaConfig
	Query         QueryConfig
	AI            AIConfig
	History       HistoryConfig
	Export        ExportConfig
	ObjectStore   ObjectStoreConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
	CORS          CORSConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// TargetConfig describes the database questions are answered against. When
// DatabaseURL is set it is registered as the "default" connection at startup.
type TargetConfig struct {
	DatabaseURL     string
	Driver          string
	Schema          string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

// StateConfig locates the embedded store holding connection profiles and the
// metadata cache.
type StateConfig struct {
	Dir      string
	KeyFile  string
	InMemory bool
}

type SchemaConfig struct {
	CacheTTL   time.Duration
	SampleRows int
}

type QueryConfig struct {
	RowLimit int
	Timeout  time.Duration
}

type AIConfig struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	RateLimit   float64
	RateBurst   int
}

type HistoryConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
	// Retention is how long entries are kept; zero keeps them forever.
	Retention         time.Duration
	RetentionInterval time.Duration
}

type ExportConfig struct {
	ObjectStoreEnabled bool
	MaxRows            int
	LinkExpiry         time.Duration
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

type CORSConfig struct {
	AllowedOrigins string
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("QUERYMIND_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid QUERYMIND_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	l := &loader{lookup: lookup}
	l.str("QUERYMIND_SERVICE_NAME", &cfg.Service.Name)
	l.str("QUERYMIND_HTTP_ADDR", &cfg.HTTP.Address)
	l.duration("QUERYMIND_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout)
	l.duration("QUERYMIND_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout)
	l.duration("QUERYMIND_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout)

	l.str("QUERYMIND_DATABASE_URL", &cfg.Target.DatabaseURL)
	l.str("QUERYMIND_DATABASE_DRIVER", &cfg.Target.Driver)
	l.str("QUERYMIND_DATABASE_SCHEMA", &cfg.Target.Schema)
	l.integer("QUERYMIND_TARGET_MAX_OPEN_CONNS", &cfg.Target.MaxOpenConns)
	l.integer("QUERYMIND_TARGET_MAX_IDLE_CONNS", &cfg.Target.MaxIdleConns)
	l.duration("QUERYMIND_TARGET_CONN_MAX_IDLE_TIME", &cfg.Target.ConnMaxIdleTime)
	l.duration("QUERYMIND_TARGET_CONN_MAX_LIFETIME", &cfg.Target.ConnMaxLifetime)

	l.str("QUERYMIND_STATE_DIR", &cfg.State.Dir)
	l.str("QUERYMIND_STATE_KEY_FILE", &cfg.State.KeyFile)
	l.boolean("QUERYMIND_STATE_IN_MEMORY", &cfg.State.InMemory)

	l.duration("QUERYMIND_SCHEMA_CACHE_TTL", &cfg.Schema.CacheTTL)
	l.integer("QUERYMIND_SCHEMA_SAMPLE_ROWS", &cfg.Schema.SampleRows)

	l.integer("QUERYMIND_QUERY_ROW_LIMIT", &cfg.Query.RowLimit)
	l.duration("QUERYMIND_QUERY_TIMEOUT", &cfg.Query.Timeout)

	l.str("QUERYMIND_AI_PROVIDER", &cfg.AI.Provider)
	l.str("QUERYMIND_AI_BASE_URL", &cfg.AI.BaseURL)
	switch strings.ToLower(cfg.AI.Provider) {
	case AIProviderOpenAI:
		l.str("OPENAI_API_KEY", &cfg.AI.APIKey)
	default:
		l.str("ANTHROPIC_API_KEY", &cfg.AI.APIKey)
	}
	l.str("QUERYMIND_AI_API_KEY", &cfg.AI.APIKey)
	l.str("QUERYMIND_AI_MODEL", &cfg.AI.Model)
	l.integer("QUERYMIND_AI_MAX_TOKENS", &cfg.AI.MaxTokens)
	l.float("QUERYMIND_AI_TEMPERATURE", &cfg.AI.Temperature)
	l.duration("QUERYMIND_AI_TIMEOUT", &cfg.AI.Timeout)
	l.float("QUERYMIND_AI_RATE_LIMIT", &cfg.AI.RateLimit)
	l.integer("QUERYMIND_AI_RATE_BURST", &cfg.AI.RateBurst)

	l.str("QUERYMIND_HISTORY_DSN", &cfg.History.DSN)
	l.integer("QUERYMIND_HISTORY_MAX_OPEN_CONNS", &cfg.History.MaxOpenConns)
	l.integer("QUERYMIND_HISTORY_MAX_IDLE_CONNS", &cfg.History.MaxIdleConns)
	l.boolean("QUERYMIND_HISTORY_AUTO_MIGRATE", &cfg.History.AutoMigrate)
	l.duration("QUERYMIND_HISTORY_RETENTION", &cfg.History.Retention)
	l.duration("QUERYMIND_HISTORY_RETENTION_INTERVAL", &cfg.History.RetentionInterval)

	l.boolean("QUERYMIND_EXPORT_OBJECTSTORE_ENABLED", &cfg.Export.ObjectStoreEnabled)
	l.integer("QUERYMIND_EXPORT_MAX_ROWS", &cfg.Export.MaxRows)
	l.duration("QUERYMIND_EXPORT_LINK_EXPIRY", &cfg.Export.LinkExpiry)

	l.str("QUERYMIND_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint)
	l.str("QUERYMIND_OBJECTSTORE_REGION", &cfg.ObjectStore.Region)
	l.str("QUERYMIND_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket)
	l.str("QUERYMIND_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID)
	l.str("QUERYMIND_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey)
	l.boolean("QUERYMIND_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL)
	l.str("QUERYMIND_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix)
	l.boolean("QUERYMIND_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket)

	l.boolean("QUERYMIND_LOG_JSON", &cfg.Observability.LogJSON)
	l.logLevel("QUERYMIND_LOG_LEVEL", &cfg.Observability.LogLevel)
	l.boolean("QUERYMIND_AUTH_REQUIRED", &cfg.Auth.Required)
	l.str("QUERYMIND_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys)
	l.str("QUERYMIND_CORS_ALLOWED_ORIGINS", &cfg.CORS.AllowedOrigins)
	if l.err != nil {
		return Config{}, l.err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if c.HTTP.Address == "" {
		return fmt.Errorf("http address is required")
	}
	c.AI.Provider = strings.ToLower(c.AI.Provider)
	switch c.AI.Provider {
	case AIProviderAnthropic, AIProviderOpenAI:
	default:
		return fmt.Errorf("invalid QUERYMIND_AI_PROVIDER: %q", c.AI.Provider)
	}
	if c.Query.RowLimit <= 0 {
		return fmt.Errorf("QUERYMIND_QUERY_ROW_LIMIT must be positive")
	}
	if c.AI.MaxTokens <= 0 {
		return fmt.Errorf("QUERYMIND_AI_MAX_TOKENS must be positive")
	}
	if c.AI.RateLimit < 0 || c.AI.RateBurst < 0 {
		return fmt.Errorf("AI rate limit settings must not be negative")
	}
	if c.Schema.SampleRows < 0 {
		return fmt.Errorf("QUERYMIND_SCHEMA_SAMPLE_ROWS must not be negative")
	}
	if c.History.Retention < 0 || c.History.RetentionInterval < 0 {
		return fmt.Errorf("history retention settings must not be negative")
	}
	if !c.State.InMemory && c.State.Dir == "" {
		return fmt.Errorf("state dir is required unless state is in memory")
	}
	return nil
}

// DefaultModel returns the model used when none is configured for the provider.
func (a AIConfig) DefaultModel() string {
	if a.Provider == AIProviderOpenAI {
		return "gpt-4o-mini"
	}
	return "claude-sonnet-4-20250514"
}

// ResolvedModel is the configured model or the provider default.
func (a AIConfig) ResolvedModel() string {
	if strings.TrimSpace(a.Model) != "" {
		return a.Model
	}
	return a.DefaultModel()
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "querymind-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Target: TargetConfig{
			Driver:          "postgres",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
		},
		State: StateConfig{
			Dir: ".querymind",
		},
		Schema: SchemaConfig{
			CacheTTL:   time.Hour,
			SampleRows: 3,
		},
		Query: QueryConfig{
			RowLimit: 1000,
			Timeout:  30 * time.Second,
		},
		AI: AIConfig{
			Provider:    AIProviderAnthropic,
			MaxTokens:   1024,
			Temperature: 0,
			Timeout:     30 * time.Second,
			RateLimit:   1,
			RateBurst:   5,
		},
		History: HistoryConfig{
			MaxOpenConns:      5,
			MaxIdleConns:      5,
			AutoMigrate:       true,
			Retention:         30 * 24 * time.Hour,
			RetentionInterval: time.Hour,
		},
		Export: ExportConfig{
			ObjectStoreEnabled: false,
			MaxRows:            100000,
			LinkExpiry:         time.Hour,
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "querymind",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			AutoCreateBucket: true,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
		CORS: CORSConfig{
			AllowedOrigins: "*",
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.State.InMemory = true
		cfg.AI.RateLimit = 0
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Auth.Required = true
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
		cfg.History.AutoMigrate = false
		cfg.CORS.AllowedOrigins = ""
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

// loader applies overrides in order and keeps the first error.
type loader struct {
	lookup LookupFunc
	err    error
}

func (l *loader) str(key string, dst *string) {
	if l.err == nil {
		l.err = applyString(l.lookup, key, dst)
	}
}

func (l *loader) duration(key string, dst *time.Duration) {
	if l.err == nil {
		l.err = applyDuration(l.lookup, key, dst)
	}
}

func (l *loader) boolean(key string, dst *bool) {
	if l.err == nil {
		l.err = applyBool(l.lookup, key, dst)
	}
}

func (l *loader) integer(key string, dst *int) {
	if l.err == nil {
		l.err = applyInt(l.lookup, key, dst)
	}
}

func (l *loader) float(key string, dst *float64) {
	if l.err == nil {
		l.err = applyFloat(l.lookup, key, dst)
	}
}

func (l *loader) logLevel(key string, dst *slog.Level) {
	if l.err == nil {
		l.err = applyLogLevel(l.lookup, key, dst)
	}
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
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
