package model

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds every tunable of an audit run.
// Hierarchy: CLI flags > FREIGHTAUDIT_* env > config file > DefaultConfig.
type Config struct {
	Rules        RulesConfig       `yaml:"rules" mapstructure:"rules"`
	Tariff       TariffConfig      `yaml:"tariff" mapstructure:"tariff"`
	Reconcile    ReconcileConfig   `yaml:"reconcile" mapstructure:"reconcile"`
	Anomaly      AnomalyConfig     `yaml:"anomaly" mapstructure:"anomaly"`
	Ingest       IngestConfig      `yaml:"ingest" mapstructure:"ingest"`
	Concurrency  ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	Cache        CacheConfig       `yaml:"cache" mapstructure:"cache"`
	LLM          LLMConfig         `yaml:"llm" mapstructure:"llm"`
	RateLimiting RateLimitConfig   `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Output       OutputConfig      `yaml:"output" mapstructure:"output"`
	Store        StoreConfig       `yaml:"store" mapstructure:"store"`
	Server       ServerConfig      `yaml:"server" mapstructure:"server"`
	Logging      LoggingConfig     `yaml:"logging" mapstructure:"logging"`
}

// RulesConfig holds leakage rule thresholds
type RulesConfig struct {
	RelativeFloor   float64 `yaml:"relative_floor" mapstructure:"relative_floor" validate:"gte=0"`       // share of expected total
	AbsoluteFloor   float64 `yaml:"absolute_floor" mapstructure:"absolute_floor" validate:"gte=0"`       // currency units
	FuelExpectedMin float64 `yaml:"fuel_expected_min" mapstructure:"fuel_expected_min" validate:"gte=0"` // expected fuel above this must be billed
	ChargedEpsilon  float64 `yaml:"charged_epsilon" mapstructure:"charged_epsilon" validate:"gte=0"`     // amounts at or below count as not charged
	AccessorialGap  float64 `yaml:"accessorial_gap" mapstructure:"accessorial_gap" validate:"gte=0"`     // used with accessorial totals
}

// BandValues holds one value per distance band
type BandValues struct {
	Local    float64 `yaml:"local" mapstructure:"local" validate:"gte=0"`
	Regional float64 `yaml:"regional" mapstructure:"regional" validate:"gte=0"`
	Longhaul float64 `yaml:"longhaul" mapstructure:"longhaul" validate:"gte=0"`
}

// ClassTier maps freight classes up to MaxClass to a multiplier
type ClassTier struct {
	MaxClass   float64 `yaml:"max_class" mapstructure:"max_class"`
	Multiplier float64 `yaml:"multiplier" mapstructure:"multiplier" validate:"gte=0"`
}

// TariffConfig parameterises the expected-charge rate model
type TariffConfig struct {
	LocalMaxMiles          float64     `yaml:"local_max_miles" mapstructure:"local_max_miles" validate:"gte=0"`
	RegionalMaxMiles       float64     `yaml:"regional_max_miles" mapstructure:"regional_max_miles" validate:"gtefield=LocalMaxMiles"`
	PerPound               BandValues  `yaml:"per_pound" mapstructure:"per_pound"`
	FuelPct                BandValues  `yaml:"fuel_pct" mapstructure:"fuel_pct"`
	ClassTiers             []ClassTier `yaml:"class_tiers" mapstructure:"class_tiers" validate:"dive"`
	DefaultClassMultiplier float64     `yaml:"default_class_multiplier" mapstructure:"default_class_multiplier" validate:"gte=0"`
	LiftgateFee            float64     `yaml:"liftgate_fee" mapstructure:"liftgate_fee" validate:"gte=0"`
}

// ReconcileConfig configures the contract reconciler
type ReconcileConfig struct {
	RateTolerancePct         float64       `yaml:"rate_tolerance_pct" mapstructure:"rate_tolerance_pct" validate:"gte=0"`
	AccessorialMinSimilarity float64       `yaml:"accessorial_min_similarity" mapstructure:"accessorial_min_similarity" validate:"gte=0,lte=1"`
	CandidatePrefixLen       int           `yaml:"candidate_prefix_len" mapstructure:"candidate_prefix_len" validate:"gte=0"` // 0 disables pre-filtering
	MemoTTL                  time.Duration `yaml:"memo_ttl" mapstructure:"memo_ttl"`
}

// AnomalyConfig configures the anomaly scorer
type AnomalyConfig struct {
	Enabled       bool     `yaml:"enabled" mapstructure:"enabled"`
	Detector      string   `yaml:"detector" mapstructure:"detector"`
	Contamination float64  `yaml:"contamination" mapstructure:"contamination" validate:"gt=0,lte=0.5"`
	Seed          int64    `yaml:"seed" mapstructure:"seed"`
	Trees         int      `yaml:"trees" mapstructure:"trees" validate:"gte=1"`
	MaxSamples    int      `yaml:"max_samples" mapstructure:"max_samples" validate:"gte=2"`
	Features      []string `yaml:"features" mapstructure:"features"` // empty = all known features
	TopN          int      `yaml:"top_n" mapstructure:"top_n" validate:"gte=0"`
}

// IngestConfig configures input reading
type IngestConfig struct {
	Schema        string        `yaml:"schema" mapstructure:"schema" validate:"oneof=auto standard carrier_export"`
	NumericPolicy string        `yaml:"numeric_policy" mapstructure:"numeric_policy" validate:"oneof=lenient strict"`
	FetchTimeout  time.Duration `yaml:"fetch_timeout" mapstructure:"fetch_timeout"`
	MaxBytes      int64         `yaml:"max_bytes" mapstructure:"max_bytes" validate:"gte=0"`
	UserAgent     string        `yaml:"user_agent" mapstructure:"user_agent"`
}

// ConcurrencyConfig sizes worker pools
type ConcurrencyConfig struct {
	Workers      int `yaml:"workers" mapstructure:"workers" validate:"gte=0"`             // per-record workers, 0 = NumCPU
	BatchWorkers int `yaml:"batch_workers" mapstructure:"batch_workers" validate:"gte=0"` // concurrent files in batch mode
}

// CacheConfig configures the explanation cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// LLMConfig configures optional explanation rewriting
type LLMConfig struct {
	Provider   string `yaml:"provider" mapstructure:"provider" validate:"omitempty,oneof=openai anthropic claude ollama"`
	Model      string `yaml:"model" mapstructure:"model"`
	APIKey     string `yaml:"-" mapstructure:"api_key"`
	BaseURL    string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout    int    `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens  int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	HTTPProxy  string `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy string `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
}

// RateLimitConfig throttles outbound LLM calls
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second" validate:"gte=0"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
	// Providers overrides RequestsPerSecond per LLM provider name
	Providers map[string]float64 `yaml:"providers,omitempty" mapstructure:"providers" validate:"omitempty,dive,gte=0"`
}

// OutputConfig configures report rendering
type OutputConfig struct {
	Dir           string   `yaml:"dir" mapstructure:"dir"`
	Formats       []string `yaml:"formats" mapstructure:"formats" validate:"dive,oneof=json csv md"`
	TopCustomers  int      `yaml:"top_customers" mapstructure:"top_customers" validate:"gte=0"`
	Explanations  bool     `yaml:"explanations" mapstructure:"explanations"` // explain flagged shipments
	Verbose       bool     `yaml:"verbose" mapstructure:"verbose"`
	IncludeFooter bool     `yaml:"include_footer" mapstructure:"include_footer"`
}

// StoreConfig configures optional persistence of audit runs
type StoreConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver" validate:"omitempty,oneof=postgres mysql"`
	DSN    string `yaml:"-" mapstructure:"dsn"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr           string   `yaml:"addr" mapstructure:"addr"`
	AllowOrigins   []string `yaml:"allow_origins" mapstructure:"allow_origins"`
	MaxUploadBytes int64    `yaml:"max_upload_bytes" mapstructure:"max_upload_bytes" validate:"gte=0"`
}

// LoggingConfig configures the zap logger
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=console json"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Rules: RulesConfig{
			RelativeFloor:   0.05,
			AbsoluteFloor:   5.0,
			FuelExpectedMin: 1.0,
			ChargedEpsilon:  0.01,
			AccessorialGap:  5.0,
		},
		Tariff: DefaultTariff(),
		Reconcile: ReconcileConfig{
			RateTolerancePct:         2.0,
			AccessorialMinSimilarity: 0.75,
			MemoTTL:                  10 * time.Minute,
		},
		Anomaly: AnomalyConfig{
			Enabled:       true,
			Detector:      "iforest",
			Contamination: 0.06,
			Seed:          42,
			Trees:         250,
			MaxSamples:    256,
			TopN:          20,
		},
		Ingest: IngestConfig{
			Schema:        "auto",
			NumericPolicy: "lenient",
			FetchTimeout:  30 * time.Second,
			MaxBytes:      50 << 20,
			UserAgent:     "freightaudit/0.3",
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       ".freightaudit-cache",
			MemoryTTL: 30 * time.Minute,
			DiskTTL:   7 * 24 * time.Hour,
		},
		LLM: LLMConfig{
			Timeout:   30,
			MaxTokens: 120,
		},
		RateLimiting: RateLimitConfig{
			RequestsPerSecond: 2,
			BurstSize:         2,
		},
		Output: OutputConfig{
			Dir:           "./freightaudit-reports",
			Formats:       []string{"json", "csv"},
			TopCustomers:  5,
			Explanations:  true,
			IncludeFooter: true,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			AllowOrigins:   []string{"http://localhost:3000"},
			MaxUploadBytes: 32 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// DefaultTariff returns the standard LTL tariff
func DefaultTariff() TariffConfig {
	return TariffConfig{
		LocalMaxMiles:    300,
		RegionalMaxMiles: 1000,
		PerPound:         BandValues{Local: 0.20, Regional: 0.32, Longhaul: 0.48},
		FuelPct:          BandValues{Local: 0.05, Regional: 0.10, Longhaul: 0.15},
		ClassTiers: []ClassTier{
			{MaxClass: 60, Multiplier: 1.00},
			{MaxClass: 70, Multiplier: 1.10},
			{MaxClass: 85, Multiplier: 1.20},
		},
		DefaultClassMultiplier: 1.35,
		LiftgateFee:            75.0,
	}
}

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration against its constraints
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
