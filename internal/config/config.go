// Package config loads and validates harvester configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/paper-harvester/internal/site"
)

// EnvPrefix prefixes every environment override, e.g. HARVESTER_HTTP_MAX_CONNECTIONS.
const EnvPrefix = "HARVESTER"

// Classifier providers.
const (
	ProviderGemini = "gemini"
	ProviderNone   = "none"
)

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Site       SiteConfig       `mapstructure:"site"`
	Harvest    HarvestConfig    `mapstructure:"harvest"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Sink       SinkConfig       `mapstructure:"sink"`
	Storage    StorageConfig    `mapstructure:"storage"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// SiteConfig selects the proceedings site and its markup profile.
type SiteConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Markup  string `mapstructure:"markup"`
}

// HarvestConfig controls what a run covers and where it writes.
type HarvestConfig struct {
	StartYear         int    `mapstructure:"start_year"`
	EndYear           int    `mapstructure:"end_year"`
	OutputDir         string `mapstructure:"output_dir"`
	MaxParallelPapers int    `mapstructure:"max_parallel_papers"`
	Schedule          string `mapstructure:"schedule"`
	Timezone          string `mapstructure:"timezone"`
}

// HTTPConfig configures the shared HTTP client and connection limiter.
type HTTPConfig struct {
	MaxConnections    int     `mapstructure:"max_connections"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	UserAgent         string  `mapstructure:"user_agent"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	MaxBodyBytes      int     `mapstructure:"max_body_bytes"`
	RespectRobots     bool    `mapstructure:"respect_robots"`
}

// RetryConfig configures the retry policy applied to every fetch.
type RetryConfig struct {
	MaxAttempts    int   `mapstructure:"max_attempts"`
	BackoffSeconds []int `mapstructure:"backoff_seconds"`
}

// ClassifierConfig configures paper classification.
type ClassifierConfig struct {
	Provider    string   `mapstructure:"provider"`
	APIKey      string   `mapstructure:"api_key"`
	Model       string   `mapstructure:"model"`
	Temperature float64  `mapstructure:"temperature"`
	Categories  []string `mapstructure:"categories"`
}

// SinkConfig sizes the metadata queue.
type SinkConfig struct {
	QueueDepth int `mapstructure:"queue_depth"`
}

// StorageConfig configures optional mirrors.
type StorageConfig struct {
	GCSBucket     string `mapstructure:"gcs_bucket"`
	GCSPrefix     string `mapstructure:"gcs_prefix"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	PostgresTable string `mapstructure:"postgres_table"`
}

// PubSubConfig holds metadata for record notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ServerConfig controls the catalog API.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("classifier.api_key", EnvPrefix+"_CLASSIFIER_API_KEY", "GEMINI_API_KEY"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("site.base_url", site.DefaultBaseURL)
	v.SetDefault("site.markup", site.ProfileLegacy)
	v.SetDefault("harvest.start_year", 2019)
	v.SetDefault("harvest.end_year", 2024)
	v.SetDefault("harvest.output_dir", "neurips_papers")
	v.SetDefault("harvest.max_parallel_papers", 0)
	v.SetDefault("harvest.schedule", "@weekly")
	v.SetDefault("harvest.timezone", "UTC")
	v.SetDefault("http.max_connections", 2)
	v.SetDefault("http.timeout_seconds", 180)
	v.SetDefault("http.user_agent", "Mozilla/5.0")
	v.SetDefault("http.requests_per_second", 0)
	v.SetDefault("http.max_body_bytes", 100<<20)
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.backoff_seconds", []int{2, 4, 8, 16, 32})
	v.SetDefault("classifier.provider", ProviderGemini)
	v.SetDefault("classifier.model", "gemini-1.5-flash")
	v.SetDefault("classifier.temperature", 0)
	v.SetDefault("classifier.categories", []string{"Deep Learning", "Reinforcement Learning", "NLP", "Computer Vision", "Optimization"})
	v.SetDefault("sink.queue_depth", 256)
	v.SetDefault("storage.postgres_table", "papers")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if !slices.Contains(site.Names(), c.Site.Markup) {
		return fmt.Errorf("site.markup must be one of %v", site.Names())
	}
	if c.Harvest.StartYear <= 0 || c.Harvest.EndYear < c.Harvest.StartYear {
		return fmt.Errorf("harvest.start_year/end_year must form a non-empty range")
	}
	if strings.TrimSpace(c.Harvest.OutputDir) == "" {
		return fmt.Errorf("harvest.output_dir is required")
	}
	if c.Harvest.MaxParallelPapers < 0 {
		return fmt.Errorf("harvest.max_parallel_papers must be >= 0")
	}
	if c.HTTP.MaxConnections <= 0 {
		return fmt.Errorf("http.max_connections must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.RequestsPerSecond < 0 {
		return fmt.Errorf("http.requests_per_second must be >= 0")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be > 0")
	}
	if len(c.Retry.BackoffSeconds) == 0 {
		return fmt.Errorf("retry.backoff_seconds must not be empty")
	}
	for _, s := range c.Retry.BackoffSeconds {
		if s < 0 {
			return fmt.Errorf("retry.backoff_seconds entries must be >= 0")
		}
	}
	switch c.Classifier.Provider {
	case ProviderGemini, ProviderNone:
	default:
		return fmt.Errorf("classifier.provider must be %q or %q", ProviderGemini, ProviderNone)
	}
	if c.Sink.QueueDepth <= 0 {
		return fmt.Errorf("sink.queue_depth must be > 0")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

// Timeout returns the per-request timeout.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// RetrySchedule converts retry.backoff_seconds into durations.
func (c Config) RetrySchedule() []time.Duration {
	out := make([]time.Duration, len(c.Retry.BackoffSeconds))
	for i, s := range c.Retry.BackoffSeconds {
		out[i] = time.Duration(s) * time.Second
	}
	return out
}

// ClassifierEnabled reports whether a live classifier should be built.
func (c Config) ClassifierEnabled() bool {
	return c.Classifier.Provider == ProviderGemini && c.Classifier.APIKey != ""
}
