// Package config loads the static bootstrap configuration (YAML file plus
// environment variables for secrets) and exposes the runtime configuration
// store backed by the persistence port.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the static bootstrap configuration. Secrets (API keys, DSNs)
// are supplied through environment variables read only at startup.
type Config struct {
	Timezone string `yaml:"timezone" validate:"required"`

	HTTP struct {
		CoordinatorPort int `yaml:"coordinator_port" validate:"gt=0"`
		NewsPort        int `yaml:"news_port" validate:"gt=0"`
		ScannerPort     int `yaml:"scanner_port" validate:"gt=0"`
	} `yaml:"http"`

	Postgres struct {
		DSN             string        `yaml:"dsn"`
		MaxConnections  int           `yaml:"max_connections" validate:"gt=0"`
		OperationTimout time.Duration `yaml:"operation_timeout"`
	} `yaml:"postgres"`

	Redis struct {
		Addr     string `yaml:"addr" validate:"required"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Collaborators struct {
		News       string `yaml:"news" validate:"required,url"`
		Scanner    string `yaml:"scanner" validate:"required,url"`
		Pattern    string `yaml:"pattern" validate:"required,url"`
		Technical  string `yaml:"technical" validate:"required,url"`
		Trading    string `yaml:"trading" validate:"required,url"`
		MarketData string `yaml:"market_data" validate:"required,url"`
	} `yaml:"collaborators"`

	Schedule ScheduleConfig `yaml:"schedule"`

	Collector CollectorConfig `yaml:"collector"`

	Scanner ScannerConfig `yaml:"scanner"`

	APITimeout time.Duration `yaml:"api_timeout"`
}

// ScheduleConfig defines the market-time windows and tick intervals the
// coordinator's scheduler runs on.
type ScheduleConfig struct {
	PremarketStart  string `yaml:"premarket_start" validate:"required"` // HH:MM market time
	MarketOpen      string `yaml:"market_open" validate:"required"`
	MarketClose     string `yaml:"market_close" validate:"required"`
	AfterHoursClose string `yaml:"afterhours_close" validate:"required"`

	AggressiveInterval time.Duration `yaml:"aggressive_interval"`
	NormalInterval     time.Duration `yaml:"normal_interval"`
	LightInterval      time.Duration `yaml:"light_interval"`
	MinimalInterval    time.Duration `yaml:"minimal_interval"`

	OutcomeSweepInterval   time.Duration `yaml:"outcome_sweep_interval"`
	NarrativeSweepSchedule string        `yaml:"narrative_sweep_schedule"` // cron spec
}

// SourceConfig configures one news source implementation.
type SourceConfig struct {
	Name    string   `yaml:"name" validate:"required"`
	Kind    string   `yaml:"kind" validate:"oneof=rest_json paginated_search rss"`
	Enabled bool     `yaml:"enabled"`
	Tier    int      `yaml:"tier" validate:"min=1,max=5"`
	BaseURL string   `yaml:"base_url"`
	Feeds   []string `yaml:"feeds,omitempty"` // rss only
	APIKey  string   `yaml:"-"`               // from env, never from file
	KeyEnv  string   `yaml:"key_env,omitempty"`
	RPS     float64  `yaml:"rps"`
	Burst   int      `yaml:"burst"`
}

// CollectorConfig configures the news collector.
type CollectorConfig struct {
	WorkerPool      int            `yaml:"worker_pool" validate:"gt=0"`
	Sources         []SourceConfig `yaml:"sources"`
	SourceTiers     map[string]int `yaml:"source_tiers"`
	BreakingPattern string         `yaml:"breaking_pattern"`

	// Lexicon maps a keyword category onto the lowercase substrings that
	// trigger it.
	Lexicon map[string][]string `yaml:"lexicon"`

	PositiveSentiment []string `yaml:"positive_sentiment"`
	NegativeSentiment []string `yaml:"negative_sentiment"`
}

// ScannerConfig holds the scanner's default gates; the live values are read
// from the runtime configuration store and fall back to these.
type ScannerConfig struct {
	TopK               int     `yaml:"top_k" validate:"gt=0"`
	CatalystFilterCap  int     `yaml:"catalyst_filter_cap" validate:"gt=0"`
	BaselineSize       int     `yaml:"baseline_size"`
	ItemScoreThreshold float64 `yaml:"item_score_threshold"`

	MinCatalystScore           float64 `yaml:"min_catalyst_score"`
	AggressiveMinCatalystScore float64 `yaml:"aggressive_min_catalyst_score"`
	MinPrice                   float64 `yaml:"min_price"`
	MaxPrice                   float64 `yaml:"max_price"`
	MinVolume                  int64   `yaml:"min_volume"`
	AggressiveMinVolume        int64   `yaml:"aggressive_min_volume"`
	MinRelativeVolume          float64 `yaml:"min_relative_volume"`
}

// Default returns the configuration used when no file overrides it.
func Default() Config {
	var cfg Config
	cfg.Timezone = "America/New_York"
	cfg.HTTP.CoordinatorPort = 5000
	cfg.HTTP.NewsPort = 5008
	cfg.HTTP.ScannerPort = 5001
	cfg.Postgres.MaxConnections = 20
	cfg.Postgres.OperationTimout = 10 * time.Second
	cfg.Redis.Addr = "localhost:6379"
	cfg.Collaborators.News = "http://localhost:5008"
	cfg.Collaborators.Scanner = "http://localhost:5001"
	cfg.Collaborators.Pattern = "http://localhost:5002"
	cfg.Collaborators.Technical = "http://localhost:5003"
	cfg.Collaborators.Trading = "http://localhost:5005"
	cfg.Collaborators.MarketData = "http://localhost:5006"

	cfg.Schedule = ScheduleConfig{
		PremarketStart:         "04:00",
		MarketOpen:             "09:30",
		MarketClose:            "16:00",
		AfterHoursClose:        "20:00",
		AggressiveInterval:     5 * time.Minute,
		NormalInterval:         30 * time.Minute,
		LightInterval:          60 * time.Minute,
		MinimalInterval:        240 * time.Minute,
		OutcomeSweepInterval:   15 * time.Minute,
		NarrativeSweepSchedule: "0 * * * *",
	}

	cfg.Collector = CollectorConfig{
		WorkerPool: 8,
		Sources: []SourceConfig{
			{Name: "newsapi", Kind: "rest_json", Enabled: true, Tier: 3,
				BaseURL: "https://newsapi.org/v2", KeyEnv: "NEWSAPI_KEY", RPS: 1, Burst: 2},
			{Name: "alphavantage", Kind: "paginated_search", Enabled: true, Tier: 2,
				BaseURL: "https://www.alphavantage.co", KeyEnv: "ALPHAVANTAGE_KEY", RPS: 0.5, Burst: 1},
			{Name: "marketwatch_rss", Kind: "rss", Enabled: true, Tier: 3, RPS: 0.2, Burst: 1,
				Feeds: []string{"https://feeds.marketwatch.com/marketwatch/topstories/"}},
			{Name: "yahoo_finance_rss", Kind: "rss", Enabled: true, Tier: 4, RPS: 0.2, Burst: 1,
				Feeds: []string{"https://finance.yahoo.com/rss/topstories"}},
		},
		SourceTiers: map[string]int{
			"Reuters":           1,
			"Bloomberg":         1,
			"Dow Jones":         1,
			"Associated Press":  2,
			"CNBC":              2,
			"alphavantage":      2,
			"MarketWatch":       3,
			"newsapi":           3,
			"marketwatch_rss":   3,
			"Yahoo Finance":     4,
			"yahoo_finance_rss": 4,
		},
		BreakingPattern: `(?i)\b(breaking|alert|urgent|just in|exclusive|halted)\b`,
		Lexicon: map[string][]string{
			"earnings":     {"earnings", "revenue", "profit", "beat", "miss", "eps"},
			"fda":          {"fda", "approval", "clinical", "trial", "phase"},
			"merger":       {"merger", "acquisition", "acquire", "buyout", "takeover"},
			"guidance":     {"guidance", "forecast", "outlook", "warns", "expects"},
			"lawsuit":      {"lawsuit", "settlement", "investigation", "fraud"},
			"bankruptcy":   {"bankruptcy", "chapter 11", "restructuring", "default"},
			"insider":      {"insider", "ceo", "cfo", "director", "executive"},
			"short":        {"short interest", "short squeeze", "short seller"},
			"pump":         {"soars", "skyrockets", "surges", "moonshot"},
			"dump":         {"plunges", "crashes", "tanks", "collapses"},
			"breakthrough": {"breakthrough", "milestone", "record", "first ever"},
			"concerns":     {"concerns", "worries", "doubts", "uncertainty"},
		},
		PositiveSentiment: []string{"beat", "record", "growth", "surge", "upgrade", "strong"},
		NegativeSentiment: []string{"miss", "loss", "decline", "downgrade", "weak", "warning"},
	}

	cfg.Scanner = ScannerConfig{
		TopK:                       5,
		CatalystFilterCap:          20,
		BaselineSize:               100,
		ItemScoreThreshold:         0.05,
		MinCatalystScore:           30,
		AggressiveMinCatalystScore: 20,
		MinPrice:                   1.0,
		MaxPrice:                   500.0,
		MinVolume:                  500_000,
		AggressiveMinVolume:        100_000,
		MinRelativeVolume:          1.5,
	}

	cfg.APITimeout = 30 * time.Second
	return cfg
}

// Load reads the YAML file at path (optional), layers environment variables
// over it, and validates the result. A .env file next to the binary is
// honored for local development.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnv reads secrets and connection strings from the environment.
func applyEnv(cfg *Config) {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.Postgres.DSN = dsn
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}
	for i := range cfg.Collector.Sources {
		src := &cfg.Collector.Sources[i]
		if src.KeyEnv != "" {
			src.APIKey = os.Getenv(src.KeyEnv)
		}
	}
}

// Location resolves the configured market timezone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
