package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Model    ModelConfig
	Pipeline PipelineConfig
	Storage  StorageConfig
	RabbitMQ RabbitMQConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	Host           string        `mapstructure:"host"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	Environment    string        `mapstructure:"environment"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
}

// ModelConfig holds the hosted model endpoint configuration.
// APIKey is read once at startup and never changes afterwards.
type ModelConfig struct {
	BaseURL              string        `mapstructure:"base_url"`
	APIKey               string        `mapstructure:"api_key"`
	VisionModel          string        `mapstructure:"vision_model"`
	ValidationModel      string        `mapstructure:"validation_model"`
	MaxTokens            int           `mapstructure:"max_tokens"`
	OrientationMaxTokens int           `mapstructure:"orientation_max_tokens"`
	Timeout              time.Duration `mapstructure:"timeout"`
}

// Validate checks that the model endpoint can be reached with a credential.
func (c *ModelConfig) Validate() error {
	if c.APIKey == "" {
		return errors.New("DOCVERIFY_MODEL_API_KEY (or API_KEY) must be set")
	}
	if _, err := ParseEndpointURL(c.BaseURL); err != nil {
		return fmt.Errorf("invalid model base URL: %w", err)
	}
	if c.VisionModel == "" || c.ValidationModel == "" {
		return errors.New("vision and validation model identifiers are required")
	}
	if c.MaxTokens <= 0 {
		return errors.New("model max_tokens must be positive")
	}
	return nil
}

// PipelineConfig holds sampling and encoding settings for the extraction pipeline
type PipelineConfig struct {
	StructuredTemperature  float64 `mapstructure:"structured_temperature"`
	RawTemperature         float64 `mapstructure:"raw_temperature"`
	ValidationTemperature  float64 `mapstructure:"validation_temperature"`
	OrientationTemperature float64 `mapstructure:"orientation_temperature"`
	ConcurrentExtraction   bool    `mapstructure:"concurrent_extraction"`
	JPEGQuality            int     `mapstructure:"jpeg_quality"`
	// MaxImagePixels rejects uploads whose declared width×height is larger
	MaxImagePixels int `mapstructure:"max_image_pixels"`
}

// StorageConfig holds ephemeral storage settings
type StorageConfig struct {
	// TempDir is where edited images are materialized; empty means os.TempDir()
	TempDir string        `mapstructure:"temp_dir"`
	JobTTL  time.Duration `mapstructure:"job_ttl"`
}

// RabbitMQConfig holds RabbitMQ connection configuration.
// An empty URL disables event publishing.
type RabbitMQConfig struct {
	URL            string        `mapstructure:"url"`
	Exchange       string        `mapstructure:"exchange"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	MaxRetries     int           `mapstructure:"max_retries"`
	PrefetchCount  int           `mapstructure:"prefetch_count"`
}

// Load loads configuration from environment and config files.
// This function applies defaults and does not check the model credential.
// For service and CLI use, prefer LoadWithValidation.
func Load(serviceName string) (*Config, error) {
	return loadConfig(serviceName, true)
}

// LoadWithValidation loads configuration and validates it for the current environment.
// A missing model credential is always an error.
func LoadWithValidation(serviceName string) (*Config, error) {
	cfg, err := loadConfig(serviceName, true)
	if err != nil {
		return nil, err
	}

	if err := cfg.Model.Validate(); err != nil {
		return nil, fmt.Errorf("model configuration error: %w", err)
	}

	if cfg.Pipeline.JPEGQuality < 1 || cfg.Pipeline.JPEGQuality > 100 {
		return nil, fmt.Errorf("pipeline jpeg_quality must be within 1..100, got %d", cfg.Pipeline.JPEGQuality)
	}

	// Browsers must not be allowed from anywhere in production
	if IsProductionLike(cfg.Server.Environment) {
		for _, origin := range cfg.Server.AllowedOrigins {
			if origin == "*" || strings.Contains(origin, "localhost") {
				return nil, errors.New("DOCVERIFY_SERVER_ALLOWED_ORIGINS must list explicit non-localhost origins in " + cfg.Server.Environment)
			}
		}
		if cfg.RabbitMQ.URL != "" && strings.Contains(cfg.RabbitMQ.URL, "localhost") {
			return nil, errors.New("DOCVERIFY_RABBITMQ_URL must be a non-localhost value in " + cfg.Server.Environment)
		}
	}

	return cfg, nil
}

// loadConfig is the internal configuration loader
func loadConfig(serviceName string, applyDefaults bool) (*Config, error) {
	v := viper.New()

	if applyDefaults {
		setDefaults(v, serviceName)
	}

	// Read from environment variables
	v.SetEnvPrefix("DOCVERIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The bare API_KEY variable is accepted for compatibility with existing deployments
	if err := v.BindEnv("model.api_key", "DOCVERIFY_MODEL_API_KEY", "API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind model credential: %w", err)
	}

	// Read from config file if exists
	v.SetConfigName(serviceName)
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/docverify")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Server.Environment = strings.ToLower(cfg.Server.Environment)
	cfg.Model.BaseURL = strings.TrimRight(cfg.Model.BaseURL, "/")

	return &cfg, nil
}

func setDefaults(v *viper.Viper, serviceName string) {
	// Server defaults
	v.SetDefault("server.port", getDefaultPort(serviceName))
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 30*time.Second)
	// Extraction runs three sequential model calls when wait=true
	v.SetDefault("server.write_timeout", 5*time.Minute)
	v.SetDefault("server.environment", EnvDevelopment)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("server.max_upload_bytes", 20<<20)

	// Model defaults
	v.SetDefault("model.base_url", "https://api.fireworks.ai/inference/v1")
	v.SetDefault("model.api_key", "")
	v.SetDefault("model.vision_model", "accounts/fireworks/models/llama-v3p2-11b-vision-instruct")
	v.SetDefault("model.validation_model", "accounts/fireworks/models/llama-v3p1-405b-instruct")
	v.SetDefault("model.max_tokens", 16384)
	v.SetDefault("model.orientation_max_tokens", 1024)
	v.SetDefault("model.timeout", 120*time.Second)

	// Pipeline defaults
	v.SetDefault("pipeline.structured_temperature", 0.1)
	v.SetDefault("pipeline.raw_temperature", 0.1)
	v.SetDefault("pipeline.validation_temperature", 0.2)
	v.SetDefault("pipeline.orientation_temperature", 0.0)
	v.SetDefault("pipeline.concurrent_extraction", false)
	v.SetDefault("pipeline.jpeg_quality", 75)
	v.SetDefault("pipeline.max_image_pixels", 50_000_000)

	// Storage defaults
	v.SetDefault("storage.temp_dir", "")
	v.SetDefault("storage.job_ttl", 15*time.Minute)

	// RabbitMQ defaults (publishing is off unless a URL is configured)
	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("rabbitmq.exchange", "document.events")
	v.SetDefault("rabbitmq.reconnect_delay", 5*time.Second)
	v.SetDefault("rabbitmq.max_retries", 5)
	v.SetDefault("rabbitmq.prefetch_count", 10)
}

func getDefaultPort(serviceName string) int {
	ports := map[string]int{
		"docverify-service": 8090,
		"docverify":         8090,
	}
	if port, ok := ports[serviceName]; ok {
		return port
	}
	return 8080
}
