package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"lambda-proxy-bridge/pkg/lambda"
)

// EventKindAuto detects the event kind of every invocation from its payload
const EventKindAuto = "auto"

// Config holds all configuration for the application
type Config struct {
	Environment string `validate:"required,oneof=development staging production test"`
	Port        string `validate:"required,numeric"`
	Log         LogConfig
	Proxy       ProxyConfig
	Local       LocalConfig
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string `validate:"required,oneof=trace debug info warn warning error fatal panic"`
	Format string `validate:"required,oneof=json text"`
}

// ProxyConfig holds the event bridge configuration
type ProxyConfig struct {
	EventKind string `validate:"required,oneof=auto api_gateway alb http_api"`
	BasePath  string `validate:"omitempty,startswith=/"`
	// Header representation per event kind: auto, single or multi
	APIGatewayHeaders  string `validate:"oneof=auto single multi"`
	ALBHeaders         string `validate:"oneof=auto single multi"`
	HTTPAPIHeaders     string `validate:"oneof=auto single multi"`
	BinaryContentTypes []string
	DefaultContentType string `validate:"required"`
}

// LocalConfig holds settings of the local gateway emulator
type LocalConfig struct {
	AuthSecret       string
	TokenExpiryHours int     `validate:"min=1"`
	RateLimit        float64 `validate:"gte=0"`
	RateBurst        int     `validate:"gte=0"`
	// CORSOrigins limits the origins echoed in CORS answers; empty allows any
	CORSOrigins []string
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("PORT", "8081")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("EVENT_KIND", EventKindAuto)
	v.SetDefault("BASE_PATH", "")
	v.SetDefault("API_GATEWAY_HEADERS", "auto")
	v.SetDefault("ALB_HEADERS", "auto")
	v.SetDefault("HTTP_API_HEADERS", "auto")
	v.SetDefault("DEFAULT_CONTENT_TYPE", lambda.DefaultContentType)
	v.SetDefault("LOCAL_TOKEN_EXPIRY_HOURS", 24)
	v.SetDefault("LOCAL_RATE_LIMIT", 100)
	v.SetDefault("LOCAL_RATE_BURST", 200)

	config := &Config{
		Environment: strings.ToLower(v.GetString("ENVIRONMENT")),
		Port:        v.GetString("PORT"),
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("LOG_LEVEL")),
			Format: strings.ToLower(v.GetString("LOG_FORMAT")),
		},
		Proxy: ProxyConfig{
			EventKind:          strings.ToLower(v.GetString("EVENT_KIND")),
			BasePath:           v.GetString("BASE_PATH"),
			APIGatewayHeaders:  strings.ToLower(v.GetString("API_GATEWAY_HEADERS")),
			ALBHeaders:         strings.ToLower(v.GetString("ALB_HEADERS")),
			HTTPAPIHeaders:     strings.ToLower(v.GetString("HTTP_API_HEADERS")),
			BinaryContentTypes: splitList(v.GetString("BINARY_CONTENT_TYPES")),
			DefaultContentType: v.GetString("DEFAULT_CONTENT_TYPE"),
		},
		Local: LocalConfig{
			AuthSecret:       v.GetString("LOCAL_AUTH_SECRET"),
			TokenExpiryHours: v.GetInt("LOCAL_TOKEN_EXPIRY_HOURS"),
			RateLimit:        v.GetFloat64("LOCAL_RATE_LIMIT"),
			RateBurst:        v.GetInt("LOCAL_RATE_BURST"),
			CORSOrigins:      splitList(v.GetString("LOCAL_CORS_ORIGINS")),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the loaded values
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// IsProduction returns true for the production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Kind returns the configured event kind; auto is reported with ok=false
func (p *ProxyConfig) Kind() (kind lambda.Kind, ok bool, err error) {
	if p.EventKind == EventKindAuto || p.EventKind == "" {
		return 0, false, nil
	}
	kind, err = lambda.ParseKind(p.EventKind)
	if err != nil {
		return 0, false, err
	}
	return kind, true, nil
}

// LambdaConfig converts the settings into the proxy's configuration
func (p *ProxyConfig) LambdaConfig(logger *logrus.Logger) (*lambda.Config, error) {
	folding := make(map[lambda.Kind]lambda.HeaderFolding, len(lambda.Kinds))
	for kind, raw := range map[lambda.Kind]string{
		lambda.KindAPIGateway: p.APIGatewayHeaders,
		lambda.KindALB:        p.ALBHeaders,
		lambda.KindHTTPAPIV2:  p.HTTPAPIHeaders,
	} {
		f, err := lambda.ParseHeaderFolding(raw)
		if err != nil {
			return nil, fmt.Errorf("%s headers: %w", kind, err)
		}
		folding[kind] = f
	}

	binaryTypes := append([]string(nil), lambda.DefaultBinaryContentTypes...)
	binaryTypes = append(binaryTypes, p.BinaryContentTypes...)

	return &lambda.Config{
		BasePath:           p.BasePath,
		HeaderFolding:      folding,
		BinaryContentTypes: binaryTypes,
		DefaultContentType: p.DefaultContentType,
		Logger:             logger,
	}, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// GetEnv gets an environment variable with a fallback value
func GetEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
