package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Vault      VaultConfig      `yaml:"vault" mapstructure:"vault"`
	Identity   IdentityConfig   `yaml:"identity" mapstructure:"identity"`
	Disambig   DisambigConfig   `yaml:"disambig" mapstructure:"disambig"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI     OpenAIConfig     `yaml:"openai" mapstructure:"openai"`
	Mistral    MistralConfig    `yaml:"mistral" mapstructure:"mistral"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	OCR        OCRConfig        `yaml:"ocr" mapstructure:"ocr"`
	Archive    ArchiveConfig    `yaml:"archive" mapstructure:"archive"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// VaultConfig locates the patient vault root.
type VaultConfig struct {
	BaseDir string `yaml:"base_dir" mapstructure:"base_dir"`
}

// IdentityConfig configures identity resolution.
type IdentityConfig struct {
	Threshold float64 `yaml:"threshold" mapstructure:"threshold"`
}

// DisambigConfig configures the optional name-disambiguation collaborator.
type DisambigConfig struct {
	Provider         string  `yaml:"provider" mapstructure:"provider"`
	Model            string  `yaml:"model" mapstructure:"model"`
	TimeoutMs        int     `yaml:"timeout_ms" mapstructure:"timeout_ms"`
	RatePerSec       float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	CacheTTLMins     int     `yaml:"cache_ttl_mins" mapstructure:"cache_ttl_mins"`
	FailureThreshold int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int     `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key string `yaml:"key" mapstructure:"key"`
}

// OpenAIConfig holds OpenAI-compatible API settings.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// MistralConfig holds Mistral OCR API settings.
type MistralConfig struct {
	Key string `yaml:"key" mapstructure:"key"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentDocuments int  `yaml:"max_concurrent_documents" mapstructure:"max_concurrent_documents"`
	StopOnError            bool `yaml:"stop_on_error" mapstructure:"stop_on_error"`
}

// StoreConfig configures the run ledger backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// OCRConfig configures PDF decoding. Provider is "local" (pdftotext) or "mistral".
type OCRConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
}

// ArchiveConfig configures the optional S3 mirror of vault artifacts.
type ArchiveConfig struct {
	S3Bucket   string `yaml:"s3_bucket" mapstructure:"s3_bucket"`
	S3Region   string `yaml:"s3_region" mapstructure:"s3_region"`
	S3Endpoint string `yaml:"s3_endpoint" mapstructure:"s3_endpoint"`
	S3Prefix   string `yaml:"s3_prefix" mapstructure:"s3_prefix"`
	PathStyle  bool   `yaml:"path_style" mapstructure:"path_style"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures the ledger-based alert checker run by serve.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	MinFinishedRuns      int     `yaml:"min_finished_runs" mapstructure:"min_finished_runs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.labvault")

	// Environment
	v.SetEnvPrefix("LABVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("vault.base_dir", "PatientVaults")
	v.SetDefault("identity.threshold", 0.85)
	v.SetDefault("disambig.provider", "")
	v.SetDefault("disambig.model", "")
	v.SetDefault("disambig.timeout_ms", 5000)
	v.SetDefault("disambig.rate_per_sec", 2.0)
	v.SetDefault("disambig.cache_ttl_mins", 60)
	v.SetDefault("disambig.failure_threshold", 3)
	v.SetDefault("disambig.reset_timeout_secs", 30)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("openai.key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("batch.max_concurrent_documents", 4)
	v.SetDefault("batch.stop_on_error", false)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "labvault.db")
	v.SetDefault("mistral.key", "")
	v.SetDefault("ocr.provider", "local")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("archive.s3_bucket", "")
	v.SetDefault("archive.s3_region", "us-east-1")
	v.SetDefault("archive.s3_endpoint", "")
	v.SetDefault("archive.s3_prefix", "vaults")
	v.SetDefault("archive.path_style", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.min_finished_runs", 5)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the settings a command mode depends on.
// Modes: "process" (extract, process, batch), "serve", "inspect".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "process", "serve":
		if c.Vault.BaseDir == "" {
			problems = append(problems, "vault.base_dir is required")
		}
		if c.Identity.Threshold <= 0 || c.Identity.Threshold > 1 {
			problems = append(problems, "identity.threshold must be in (0, 1]")
		}
		if c.Batch.MaxConcurrentDocuments < 1 || c.Batch.MaxConcurrentDocuments > 64 {
			problems = append(problems, "batch.max_concurrent_documents must be between 1 and 64")
		}
		switch strings.ToLower(c.Disambig.Provider) {
		case "":
		case "anthropic", "claude":
			if c.Anthropic.Key == "" {
				problems = append(problems, "anthropic.key is required for disambig.provider anthropic")
			}
		case "openai":
			if c.OpenAI.Key == "" {
				problems = append(problems, "openai.key is required for disambig.provider openai")
			}
		default:
			problems = append(problems, fmt.Sprintf("disambig.provider %q is not supported", c.Disambig.Provider))
		}
		if c.Disambig.Provider != "" && c.Disambig.TimeoutMs <= 0 {
			problems = append(problems, "disambig.timeout_ms must be > 0")
		}
		switch c.Store.Driver {
		case "sqlite", "postgres", "none", "":
		default:
			problems = append(problems, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
		}
		switch c.OCR.Provider {
		case "", "local":
		case "mistral":
			if c.Mistral.Key == "" {
				problems = append(problems, "mistral.key is required for ocr.provider mistral")
			}
		default:
			problems = append(problems, fmt.Sprintf("ocr.provider %q is not supported", c.OCR.Provider))
		}
		if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for postgres")
		}
		if mode == "serve" && c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "inspect":
		if c.Vault.BaseDir == "" {
			problems = append(problems, "vault.base_dir is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
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
