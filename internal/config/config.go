package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Source roles. Primary sources feed the affinity stage, secondary sources
// the synergy stage.
const (
	RolePrimary   = "primary"
	RoleSecondary = "secondary"
)

// Config holds the full application configuration.
type Config struct {
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Sources   []SourceConfig  `yaml:"sources" mapstructure:"sources"`
	Scoring   ScoringConfig   `yaml:"scoring" mapstructure:"scoring"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Postgres  PostgresConfig  `yaml:"postgres" mapstructure:"postgres"`
	Redis     RedisConfig     `yaml:"redis" mapstructure:"redis"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
}

// PipelineConfig holds the stage file locations and list sizes.
type PipelineConfig struct {
	TopListsDir          string `yaml:"top_lists_dir" mapstructure:"top_lists_dir"`
	GroupsPath           string `yaml:"groups_path" mapstructure:"groups_path"`
	AffinityPath         string `yaml:"affinity_path" mapstructure:"affinity_path"`
	SynergyPath          string `yaml:"synergy_path" mapstructure:"synergy_path"`
	TotalPath            string `yaml:"total_path" mapstructure:"total_path"`
	BlendPath            string `yaml:"blend_path" mapstructure:"blend_path"`
	ReviewPath           string `yaml:"review_path" mapstructure:"review_path"`
	SuggestionsPath      string `yaml:"suggestions_path" mapstructure:"suggestions_path"`
	CountrySummaryPath   string `yaml:"country_summary_path" mapstructure:"country_summary_path"`
	ContinentSummaryPath string `yaml:"continent_summary_path" mapstructure:"continent_summary_path"`
	PrimaryTopN          int    `yaml:"primary_top_n" mapstructure:"primary_top_n"`
	SecondaryTopN        int    `yaml:"secondary_top_n" mapstructure:"secondary_top_n"`
	Concurrency          int    `yaml:"concurrency" mapstructure:"concurrency"`
}

// SourceConfig describes one labeled data source and where its city
// columns are. Column entries may list alternative spellings separated by
// "|". Format "postgres" reads Query from postgres.database_url.
type SourceConfig struct {
	Name            string   `yaml:"name" mapstructure:"name"`
	Role            string   `yaml:"role" mapstructure:"role"`
	Format          string   `yaml:"format" mapstructure:"format"`
	Path            string   `yaml:"path" mapstructure:"path"`
	Sheet           string   `yaml:"sheet" mapstructure:"sheet"`
	SkipRows        int      `yaml:"skip_rows" mapstructure:"skip_rows"`
	Delimiter       string   `yaml:"delimiter" mapstructure:"delimiter"`
	Query           string   `yaml:"query" mapstructure:"query"`
	KeyColumn       string   `yaml:"key_column" mapstructure:"key_column"`
	CityColumns     []string `yaml:"city_columns" mapstructure:"city_columns"`
	FallbackColumns []string `yaml:"fallback_columns" mapstructure:"fallback_columns"`
}

// ScoringConfig holds the weights of every scoring stage.
type ScoringConfig struct {
	Affinity AffinityConfig `yaml:"affinity" mapstructure:"affinity"`
	Synergy  SynergyConfig  `yaml:"synergy" mapstructure:"synergy"`
	Total    TotalConfig    `yaml:"total" mapstructure:"total"`
	Blend    BlendConfig    `yaml:"blend" mapstructure:"blend"`
}

// WeightConfig weights one source's normalized score.
type WeightConfig struct {
	Source string  `yaml:"source" mapstructure:"source"`
	Weight float64 `yaml:"weight" mapstructure:"weight"`
}

// AffinityConfig configures the min-max stage over primary sources.
type AffinityConfig struct {
	Components []WeightConfig `yaml:"components" mapstructure:"components"`
}

// SynergyConfig configures the rank-score stage over secondary sources.
type SynergyConfig struct {
	Components   []WeightConfig `yaml:"components" mapstructure:"components"`
	MaxRank      int            `yaml:"max_rank" mapstructure:"max_rank"`
	FocusSource  string         `yaml:"focus_source" mapstructure:"focus_source"`
	ExclusiveTop int            `yaml:"exclusive_top" mapstructure:"exclusive_top"`
}

// TotalConfig configures the final blend.
type TotalConfig struct {
	AffinityWeight float64 `yaml:"affinity_weight" mapstructure:"affinity_weight"`
	SynergyWeight  float64 `yaml:"synergy_weight" mapstructure:"synergy_weight"`
	Scale          float64 `yaml:"scale" mapstructure:"scale"`
}

// BlendConfig weights every source in the all-source blend report.
type BlendConfig struct {
	Components []WeightConfig `yaml:"components" mapstructure:"components"`
}

// FetchConfig configures downloads of remote source files.
type FetchConfig struct {
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// StoreConfig configures the run ledger. An empty DSN disables it.
type StoreConfig struct {
	DSN string `yaml:"dsn" mapstructure:"dsn"`
}

// PostgresConfig configures the transactional database that normalize-db
// rewrites and postgres-format sources read from.
type PostgresConfig struct {
	DatabaseURL string   `yaml:"database_url" mapstructure:"database_url"`
	Table       string   `yaml:"table" mapstructure:"table"`
	KeyColumn   string   `yaml:"key_column" mapstructure:"key_column"`
	CityColumns []string `yaml:"city_columns" mapstructure:"city_columns"`
	// FallbackColumns pairs with CityColumns by position; an empty city is
	// resolved from its fallback instead.
	FallbackColumns []string `yaml:"fallback_columns" mapstructure:"fallback_columns"`
	BatchSize       int      `yaml:"batch_size" mapstructure:"batch_size"`
	BatchesPerSec   float64  `yaml:"batches_per_sec" mapstructure:"batches_per_sec"`
	MaxConnections  int32    `yaml:"max_connections" mapstructure:"max_connections"`
}

// RedisConfig configures the normalization cache used by serve. An empty URL
// disables it.
type RedisConfig struct {
	URL        string `yaml:"url" mapstructure:"url"`
	TTLMinutes int    `yaml:"ttl_minutes" mapstructure:"ttl_minutes"`
	KeyPrefix  string `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key        string  `yaml:"key" mapstructure:"key"`
	Model      string  `yaml:"model" mapstructure:"model"`
	MaxTokens  int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	RatePerSec float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	// Retries of overloaded or rate-limited requests.
	MaxAttempts  int `yaml:"max_attempts" mapstructure:"max_attempts"`
	BackoffMs    int `yaml:"backoff_ms" mapstructure:"backoff_ms"`
	MaxBackoffMs int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultSources mirrors the five exports the pipeline was built around.
func DefaultSources() []map[string]any {
	return []map[string]any{
		{"name": "RFQ", "role": RolePrimary, "path": "data/rfq_supabase.csv", "key_column": "Quote No", "city_columns": []string{"city_b|City B"}},
		{"name": "SOF", "role": RolePrimary, "path": "data/sof_supabase_clean.csv", "key_column": "Quote No", "city_columns": []string{"City B|city_b"}},
		{"name": "HYUNDAI", "role": RoleSecondary, "path": "data/hyundai_motors_upload.csv", "city_columns": []string{"city"}},
		{"name": "VPN", "role": RoleSecondary, "path": "data/vpn_connections_upload.csv", "city_columns": []string{"city"}},
		{"name": "KOTRA", "role": RoleSecondary, "path": "data/kotra.csv", "city_columns": []string{"city"}},
	}
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SYNERGY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("pipeline.top_lists_dir", "output/top_lists")
	v.SetDefault("pipeline.groups_path", "output/city_groups.json")
	v.SetDefault("pipeline.affinity_path", "output/epsilon_scores.json")
	v.SetDefault("pipeline.synergy_path", "output/synergy_scores.json")
	v.SetDefault("pipeline.total_path", "output/total_scores.json")
	v.SetDefault("pipeline.review_path", "output/normalization_review.json")
	v.SetDefault("pipeline.suggestions_path", "output/normalization_suggestions.json")
	v.SetDefault("pipeline.blend_path", "output/blend_scores.json")
	v.SetDefault("pipeline.country_summary_path", "")
	v.SetDefault("pipeline.continent_summary_path", "")
	v.SetDefault("pipeline.primary_top_n", 100)
	v.SetDefault("pipeline.secondary_top_n", 40)
	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("sources", DefaultSources())
	v.SetDefault("scoring.affinity.components", []map[string]any{
		{"source": "RFQ", "weight": 0.8},
		{"source": "SOF", "weight": 0.2},
	})
	v.SetDefault("scoring.synergy.components", []map[string]any{
		{"source": "HYUNDAI", "weight": 0.5},
		{"source": "VPN", "weight": 0.5},
		{"source": "KOTRA", "weight": 1.0},
	})
	v.SetDefault("scoring.synergy.max_rank", 100)
	v.SetDefault("scoring.synergy.focus_source", "KOTRA")
	v.SetDefault("scoring.synergy.exclusive_top", 5)
	v.SetDefault("scoring.total.affinity_weight", 0.5)
	v.SetDefault("scoring.total.synergy_weight", 0.5)
	v.SetDefault("scoring.total.scale", 100)
	v.SetDefault("scoring.blend.components", []map[string]any{
		{"source": "RFQ", "weight": 0.4},
		{"source": "SOF", "weight": 0.25},
		{"source": "HYUNDAI", "weight": 0.15},
		{"source": "VPN", "weight": 0.1},
		{"source": "KOTRA", "weight": 0.1},
	})
	v.SetDefault("fetch.user_agent", "synergy-cli/1.0")
	v.SetDefault("fetch.timeout_secs", 60)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.rate_per_sec", 5)
	v.SetDefault("store.dsn", "")
	v.SetDefault("postgres.table", "rfq")
	v.SetDefault("postgres.key_column", "uuid")
	v.SetDefault("postgres.city_columns", []string{"city_a", "city_b"})
	v.SetDefault("postgres.fallback_columns", []string{"Location A", "Location B"})
	v.SetDefault("postgres.batch_size", 100)
	v.SetDefault("postgres.batches_per_sec", 2)
	v.SetDefault("postgres.max_connections", 4)
	v.SetDefault("redis.ttl_minutes", 1440)
	v.SetDefault("redis.key_prefix", "synergy:city:")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.rate_per_sec", 2)
	v.SetDefault("anthropic.max_attempts", 3)
	v.SetDefault("anthropic.backoff_ms", 1000)
	v.SetDefault("anthropic.max_backoff_ms", 30000)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// SourcesByRole returns the configured sources with the given role, in
// configuration order.
func (c *Config) SourcesByRole(role string) []SourceConfig {
	var out []SourceConfig
	for _, s := range c.Sources {
		if strings.EqualFold(s.Role, role) {
			out = append(out, s)
		}
	}
	return out
}

// TopN returns the list size for a source role.
func (c *Config) TopN(role string) int {
	if strings.EqualFold(role, RoleSecondary) {
		return c.Pipeline.SecondaryTopN
	}
	return c.Pipeline.PrimaryTopN
}

// Validate checks that the settings a command mode depends on are present.
// Modes: "pipeline", "normalize-db", "review", "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	if c.Pipeline.Concurrency < 1 || c.Pipeline.Concurrency > 32 {
		errs = append(errs, "pipeline.concurrency must be between 1 and 32")
	}

	switch mode {
	case "pipeline":
		if c.Pipeline.PrimaryTopN < 1 || c.Pipeline.SecondaryTopN < 1 {
			errs = append(errs, "pipeline top_n values must be > 0")
		}
		seen := make(map[string]bool)
		for i, s := range c.Sources {
			name := strings.ToUpper(strings.TrimSpace(s.Name))
			switch {
			case name == "":
				errs = append(errs, fmt.Sprintf("sources[%d].name is required", i))
			case seen[name]:
				errs = append(errs, fmt.Sprintf("sources[%d].name %q is duplicated", i, s.Name))
			}
			seen[name] = true
			if !strings.EqualFold(s.Role, RolePrimary) && !strings.EqualFold(s.Role, RoleSecondary) {
				errs = append(errs, fmt.Sprintf("sources[%d].role must be primary or secondary", i))
			}
			if s.Path == "" && s.Query == "" {
				errs = append(errs, fmt.Sprintf("sources[%d] needs a path or query", i))
			}
			if s.Query != "" && c.Postgres.DatabaseURL == "" {
				errs = append(errs, fmt.Sprintf("sources[%d].query requires postgres.database_url", i))
			}
		}
	case "normalize-db":
		if c.Postgres.DatabaseURL == "" {
			errs = append(errs, "postgres.database_url is required")
		}
		if c.Postgres.Table == "" || c.Postgres.KeyColumn == "" || len(c.Postgres.CityColumns) == 0 {
			errs = append(errs, "postgres.table, key_column and city_columns are required")
		}
		if n := len(c.Postgres.FallbackColumns); n > 0 && n != len(c.Postgres.CityColumns) {
			errs = append(errs, fmt.Sprintf("postgres.fallback_columns has %d entries, want one per city column (%d)",
				n, len(c.Postgres.CityColumns)))
		}
		if c.Postgres.BatchSize < 1 {
			errs = append(errs, "postgres.batch_size must be > 0")
		}
	case "review":
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
