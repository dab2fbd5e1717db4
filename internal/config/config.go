package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FailurePolicy selects how a single page's extraction failure is handled.
type FailurePolicy string

const (
	// FailurePolicyAbort fails the whole document on the first page whose
	// extraction exhausts every model attempt.
	FailurePolicyAbort FailurePolicy = "abort"
	// FailurePolicyDegrade replaces a failed page with an empty placeholder
	// page and continues.
	FailurePolicyDegrade FailurePolicy = "degrade"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig
	Log     LogConfig
	CORS    CORSConfig
	Fetch   FetchConfig
	Raster  RasterConfig
	Extract ExtractConfig
	S3      S3Config
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// FetchConfig holds remote document download settings.
type FetchConfig struct {
	TimeoutSecs   int   `mapstructure:"timeout_secs"`
	MaxFileSizeMB int64 `mapstructure:"max_file_size_mb"`
}

// Timeout returns the fetch timeout as a duration.
func (f *FetchConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSecs) * time.Second
}

// RasterConfig holds PDF rasterization settings.
type RasterConfig struct {
	DPI     int  `mapstructure:"dpi"`
	Enhance bool `mapstructure:"enhance"`
}

// ExtractConfig holds LLM extraction settings. FallbackModels are tried in
// order after Model when the provider reports the model as unavailable.
type ExtractConfig struct {
	Provider       string        `mapstructure:"provider"`
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	FallbackModels []string      `mapstructure:"fallback_models"`
	TimeoutSecs    int           `mapstructure:"timeout_secs"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	FailurePolicy  FailurePolicy `mapstructure:"failure_policy"`
	URLPassthrough bool          `mapstructure:"url_passthrough"`
}

// Models returns the primary model followed by the fallback models.
func (e *ExtractConfig) Models() []string {
	models := make([]string, 0, 1+len(e.FallbackModels))
	if e.Model != "" {
		models = append(models, e.Model)
	}
	for _, m := range e.FallbackModels {
		if m = strings.TrimSpace(m); m != "" {
			models = append(models, m)
		}
	}
	return models
}

// S3Config holds AWS S3 settings for s3:// document references.
type S3Config struct {
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// Load reads configuration from environment variables with the BILLPARSE_ prefix.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BILLPARSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Server defaults
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "300s")
	v.SetDefault("server.environment", "development")

	// Log defaults
	v.SetDefault("log.level", "debug")
	v.SetDefault("log.format", "console")

	// CORS defaults (localhost origins for development)
	v.SetDefault("cors.allowed_origins", "http://localhost:3000,http://127.0.0.1:3000")

	// Fetch defaults
	v.SetDefault("fetch.timeout_secs", 60)
	v.SetDefault("fetch.max_file_size_mb", 50)

	// Raster defaults
	v.SetDefault("raster.dpi", 150)
	v.SetDefault("raster.enhance", true)

	// Extract defaults
	v.SetDefault("extract.provider", "gemini")
	v.SetDefault("extract.api_key", "")
	v.SetDefault("extract.model", "gemini-2.0-flash")
	v.SetDefault("extract.fallback_models", "gemini-1.5-flash,gemini-1.5-pro")
	v.SetDefault("extract.timeout_secs", 120)
	v.SetDefault("extract.max_concurrency", 4)
	v.SetDefault("extract.failure_policy", string(FailurePolicyAbort))
	v.SetDefault("extract.url_passthrough", false)

	// S3 defaults
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.endpoint", "")

	// Bind environment variables explicitly for nested keys
	envBindings := map[string]string{
		"server.port":             "BILLPARSE_SERVER_PORT",
		"server.read_timeout":     "BILLPARSE_SERVER_READ_TIMEOUT",
		"server.write_timeout":    "BILLPARSE_SERVER_WRITE_TIMEOUT",
		"server.environment":      "BILLPARSE_SERVER_ENVIRONMENT",
		"log.level":               "BILLPARSE_LOG_LEVEL",
		"log.format":              "BILLPARSE_LOG_FORMAT",
		"cors.allowed_origins":    "BILLPARSE_CORS_ALLOWED_ORIGINS",
		"fetch.timeout_secs":      "BILLPARSE_FETCH_TIMEOUT_SECS",
		"fetch.max_file_size_mb":  "BILLPARSE_FETCH_MAX_FILE_SIZE_MB",
		"raster.dpi":              "BILLPARSE_RASTER_DPI",
		"raster.enhance":          "BILLPARSE_RASTER_ENHANCE",
		"extract.provider":        "BILLPARSE_EXTRACT_PROVIDER",
		"extract.api_key":         "BILLPARSE_EXTRACT_API_KEY",
		"extract.model":           "BILLPARSE_EXTRACT_MODEL",
		"extract.fallback_models": "BILLPARSE_EXTRACT_FALLBACK_MODELS",
		"extract.timeout_secs":    "BILLPARSE_EXTRACT_TIMEOUT_SECS",
		"extract.max_concurrency": "BILLPARSE_EXTRACT_MAX_CONCURRENCY",
		"extract.failure_policy":  "BILLPARSE_EXTRACT_FAILURE_POLICY",
		"extract.url_passthrough": "BILLPARSE_EXTRACT_URL_PASSTHROUGH",
		"s3.region":               "BILLPARSE_S3_REGION",
		"s3.endpoint":             "BILLPARSE_S3_ENDPOINT",
		"s3.access_key":           "BILLPARSE_S3_ACCESS_KEY",
		"s3.secret_key":           "BILLPARSE_S3_SECRET_KEY",
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	cfg := &Config{}

	// Railway/Heroku/Render set a PORT env var. Use it if BILLPARSE_SERVER_PORT
	// is not explicitly set.
	serverPort := v.GetString("server.port")
	if port := os.Getenv("PORT"); port != "" && os.Getenv("BILLPARSE_SERVER_PORT") == "" {
		serverPort = ":" + port
	}

	cfg.Server = ServerConfig{
		Port:         serverPort,
		ReadTimeout:  v.GetDuration("server.read_timeout"),
		WriteTimeout: v.GetDuration("server.write_timeout"),
		Environment:  v.GetString("server.environment"),
	}
	cfg.Log = LogConfig{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
	}
	cfg.CORS = CORSConfig{
		AllowedOrigins: splitList(v.GetString("cors.allowed_origins")),
	}
	cfg.Fetch = FetchConfig{
		TimeoutSecs:   v.GetInt("fetch.timeout_secs"),
		MaxFileSizeMB: v.GetInt64("fetch.max_file_size_mb"),
	}
	cfg.Raster = RasterConfig{
		DPI:     v.GetInt("raster.dpi"),
		Enhance: v.GetBool("raster.enhance"),
	}
	cfg.Extract = ExtractConfig{
		Provider:       v.GetString("extract.provider"),
		APIKey:         v.GetString("extract.api_key"),
		Model:          v.GetString("extract.model"),
		FallbackModels: splitList(v.GetString("extract.fallback_models")),
		TimeoutSecs:    v.GetInt("extract.timeout_secs"),
		MaxConcurrency: v.GetInt("extract.max_concurrency"),
		FailurePolicy:  FailurePolicy(v.GetString("extract.failure_policy")),
		URLPassthrough: v.GetBool("extract.url_passthrough"),
	}
	cfg.S3 = S3Config{
		Region:    v.GetString("s3.region"),
		Endpoint:  v.GetString("s3.endpoint"),
		AccessKey: v.GetString("s3.access_key"),
		SecretKey: v.GetString("s3.secret_key"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Extract.FailurePolicy {
	case FailurePolicyAbort, FailurePolicyDegrade:
	default:
		return fmt.Errorf("invalid extract.failure_policy %q: must be %q or %q",
			c.Extract.FailurePolicy, FailurePolicyAbort, FailurePolicyDegrade)
	}
	if c.Extract.MaxConcurrency < 1 {
		return fmt.Errorf("extract.max_concurrency must be >= 1, got %d", c.Extract.MaxConcurrency)
	}
	if c.Raster.DPI < 72 || c.Raster.DPI > 600 {
		return fmt.Errorf("raster.dpi must be between 72 and 600, got %d", c.Raster.DPI)
	}
	return nil
}

// splitList parses a comma-separated string into trimmed non-empty entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
