package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

const (
	SummaryModeWebhook = "webhook"
	SummaryModeModel   = "model"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	StoreDriver string `yaml:"storeDriver"`
	DatabaseURL string `yaml:"databaseURL"`

	RedisAddr        string `yaml:"redisAddr"`
	RedisPassword    string `yaml:"redisPassword"`
	RedisDB          int    `yaml:"redisDB"`
	QueueStream      string `yaml:"queueStream"`
	QueueGroup       string `yaml:"queueGroup"`
	QueueConcurrency int    `yaml:"queueConcurrency"`
	QueueClaimIdle   string `yaml:"queueClaimIdle"`

	SummaryMode           string   `yaml:"summaryMode"`
	SummaryWebhookURL     string   `yaml:"summaryWebhookURL"`
	SummaryWebhookTimeout string   `yaml:"summaryWebhookTimeout"`
	ContentFields         []string `yaml:"contentFields"`
	WebhookAudience       string   `yaml:"webhookAudience"`
	WebhookSigningSecret  string   `yaml:"webhookSigningSecret"`
	WebhookSigningKeyPath string   `yaml:"webhookSigningKeyPath"`

	GenerationProvider    string  `yaml:"generationProvider"`
	GenerationBaseURL     string  `yaml:"generationBaseURL"`
	GenerationAPIKey      string  `yaml:"generationAPIKey"`
	GenerationModel       string  `yaml:"generationModel"`
	GenerationTemperature float64 `yaml:"generationTemperature"`
	GenerationRetries     int     `yaml:"generationRetries"`
	ChunkSize             int     `yaml:"chunkSize"`
	ChunkOverlap          int     `yaml:"chunkOverlap"`

	YouTubeAPIKey            string  `yaml:"youtubeAPIKey"`
	YouTubeRequestsPerSecond float64 `yaml:"youtubeRequestsPerSecond"`

	AuthJWKSURL string `yaml:"authJwksURL"`
	JWTIssuer   string `yaml:"jwtIssuer"`
	JWTAudience string `yaml:"jwtAudience"`
	JWTLeeway   string `yaml:"jwtLeeway"`

	TrustedProxyCIDRs        []string `yaml:"trustedProxyCidrs"`
	CORSAllowedOrigins       []string `yaml:"corsAllowedOrigins"`
	SubmitRateLimitPerMinute int      `yaml:"submitRateLimitPerMinute"`

	BillingWebhookSecret string `yaml:"billingWebhookSecret"`

	ProcessingTimeout string `yaml:"processingTimeout"`
	SweepInterval     string `yaml:"sweepInterval"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioRegion    string `yaml:"minioRegion"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`
	ExportURLTTL   string `yaml:"exportUrlTTL"`

	AMQPURL      string `yaml:"amqpURL"`
	AMQPExchange string `yaml:"amqpExchange"`

	// Parsed durations, filled by Load.
	Durations Durations `yaml:"-"`
}

// Durations holds the parsed duration settings.
type Durations struct {
	QueueClaimIdle        time.Duration
	SummaryWebhookTimeout time.Duration
	JWTLeeway             time.Duration
	ProcessingTimeout     time.Duration
	SweepInterval         time.Duration
	ExportURLTTL          time.Duration
}

// Path returns SUMMARY_CONFIG when set, else ConfigPath.
func Path() string {
	if v := strings.TrimSpace(os.Getenv("SUMMARY_CONFIG")); v != "" {
		return v
	}
	return ConfigPath
}

// Load reads .env (when present), the YAML file at path, then environment overrides.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = Path()
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	setString(&cfg.Port, "PORT")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.StoreDriver, "SUMMARY_STORE_DRIVER")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	setInt(&cfg.RedisDB, "REDIS_DB")
	setString(&cfg.QueueStream, "SUMMARY_QUEUE_STREAM")
	setString(&cfg.QueueGroup, "SUMMARY_QUEUE_GROUP")
	setInt(&cfg.QueueConcurrency, "SUMMARY_QUEUE_CONCURRENCY")
	setString(&cfg.QueueClaimIdle, "SUMMARY_QUEUE_CLAIM_IDLE")
	setString(&cfg.SummaryMode, "SUMMARY_MODE")
	setString(&cfg.SummaryWebhookURL, "SUMMARY_WEBHOOK_URL")
	setString(&cfg.SummaryWebhookTimeout, "SUMMARY_WEBHOOK_TIMEOUT")
	if v := os.Getenv("SUMMARY_CONTENT_FIELDS"); v != "" {
		cfg.ContentFields = splitCSV(v)
	}
	setString(&cfg.WebhookAudience, "SUMMARY_WEBHOOK_AUDIENCE")
	setString(&cfg.WebhookSigningSecret, "SUMMARY_WEBHOOK_SIGNING_SECRET")
	setString(&cfg.WebhookSigningKeyPath, "SUMMARY_WEBHOOK_SIGNING_KEY_PATH")
	setString(&cfg.GenerationProvider, "GENERATION_PROVIDER")
	setString(&cfg.GenerationBaseURL, "GENERATION_BASE_URL")
	setString(&cfg.GenerationModel, "GENERATION_MODEL")
	setInt(&cfg.GenerationRetries, "GENERATION_RETRIES")
	if v := os.Getenv("GENERATION_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.GenerationTemperature = f
		}
	}
	setString(&cfg.GenerationAPIKey, "GENERATION_API_KEY")
	if cfg.GenerationAPIKey == "" {
		switch strings.ToLower(cfg.GenerationProvider) {
		case "gemini":
			setString(&cfg.GenerationAPIKey, "GEMINI_API_KEY")
		case "", "openai", "openai-compat":
			setString(&cfg.GenerationAPIKey, "OPENAI_API_KEY")
		}
	}
	setInt(&cfg.ChunkSize, "SUMMARY_CHUNK_SIZE")
	setInt(&cfg.ChunkOverlap, "SUMMARY_CHUNK_OVERLAP")
	setString(&cfg.YouTubeAPIKey, "YOUTUBE_API_KEY")
	setString(&cfg.AuthJWKSURL, "AUTH_JWKS_URL")
	setString(&cfg.JWTIssuer, "JWT_ISSUER")
	setString(&cfg.JWTAudience, "JWT_AUDIENCE")
	setString(&cfg.JWTLeeway, "JWT_LEEWAY")
	if v := os.Getenv("SUMMARY_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if v := os.Getenv("SUMMARY_CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = splitCSV(v)
	}
	setInt(&cfg.SubmitRateLimitPerMinute, "SUMMARY_SUBMIT_RATE_LIMIT_PER_MINUTE")
	setString(&cfg.BillingWebhookSecret, "BILLING_WEBHOOK_SECRET")
	setString(&cfg.ProcessingTimeout, "SUMMARY_PROCESSING_TIMEOUT")
	setString(&cfg.SweepInterval, "SUMMARY_SWEEP_INTERVAL")
	setString(&cfg.MinioEndpoint, "MINIO_ENDPOINT")
	setString(&cfg.MinioAccessKey, "MINIO_ACCESS_KEY")
	setString(&cfg.MinioSecretKey, "MINIO_SECRET_KEY")
	setString(&cfg.MinioBucket, "MINIO_BUCKET")
	setString(&cfg.AMQPURL, "AMQP_URL")
	setString(&cfg.AMQPExchange, "AMQP_EXCHANGE")
}

func applyDefaults(cfg *FileConfig) {
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = "postgres"
	}
	if cfg.SummaryMode == "" {
		cfg.SummaryMode = SummaryModeWebhook
	}
	if cfg.QueueStream == "" {
		cfg.QueueStream = "summary:jobs"
	}
	if cfg.QueueConcurrency == 0 {
		cfg.QueueConcurrency = 4
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 2000
	}
	if cfg.ChunkOverlap == 0 {
		cfg.ChunkOverlap = 200
	}
	if cfg.WebhookAudience == "" {
		cfg.WebhookAudience = "summarizer"
	}
}

func validateConfig(cfg *FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or PORT)")
	}
	switch cfg.StoreDriver {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
		}
	case "memory":
	default:
		return fmt.Errorf("config: storeDriver must be postgres or memory, got %q", cfg.StoreDriver)
	}
	switch cfg.SummaryMode {
	case SummaryModeWebhook:
		if strings.TrimSpace(cfg.SummaryWebhookURL) == "" {
			return errors.New("config: summaryWebhookURL is required when summaryMode=webhook (set in config.yaml or SUMMARY_WEBHOOK_URL)")
		}
	case SummaryModeModel:
		if strings.TrimSpace(cfg.GenerationModel) == "" && strings.ToLower(cfg.GenerationProvider) != "gemini" {
			return errors.New("config: generationModel is required when summaryMode=model")
		}
	default:
		return fmt.Errorf("config: summaryMode must be webhook or model, got %q", cfg.SummaryMode)
	}
	if strings.TrimSpace(cfg.AuthJWKSURL) == "" {
		return errors.New("config: authJwksURL is required (set in config.yaml or AUTH_JWKS_URL)")
	}
	if strings.TrimSpace(cfg.JWTIssuer) == "" {
		return errors.New("config: jwtIssuer is required (set in config.yaml or JWT_ISSUER)")
	}
	if cfg.QueueConcurrency < 0 {
		return errors.New("config: queueConcurrency must be >= 0")
	}
	if cfg.ChunkSize <= 0 {
		return errors.New("config: chunkSize must be > 0")
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return errors.New("config: chunkOverlap must be >= 0 and smaller than chunkSize")
	}
	if cfg.SubmitRateLimitPerMinute < 0 {
		return errors.New("config: submitRateLimitPerMinute must be >= 0")
	}
	if cfg.SubmitRateLimitPerMinute > 0 && strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required when submitRateLimitPerMinute > 0")
	}
	if cfg.MinioEndpoint != "" && cfg.MinioBucket == "" {
		return errors.New("config: minioBucket is required when minioEndpoint is set")
	}

	var err error
	d := &cfg.Durations
	if d.QueueClaimIdle, err = parseDuration("queueClaimIdle", cfg.QueueClaimIdle, 10*time.Minute); err != nil {
		return err
	}
	if d.SummaryWebhookTimeout, err = parseDuration("summaryWebhookTimeout", cfg.SummaryWebhookTimeout, 5*time.Minute); err != nil {
		return err
	}
	if d.JWTLeeway, err = parseDuration("jwtLeeway", cfg.JWTLeeway, 0); err != nil {
		return err
	}
	if d.ProcessingTimeout, err = parseDuration("processingTimeout", cfg.ProcessingTimeout, 15*time.Minute); err != nil {
		return err
	}
	if d.SweepInterval, err = parseDuration("sweepInterval", cfg.SweepInterval, time.Minute); err != nil {
		return err
	}
	if d.ExportURLTTL, err = parseDuration("exportUrlTTL", cfg.ExportURLTTL, 15*time.Minute); err != nil {
		return err
	}
	if d.ProcessingTimeout <= d.SummaryWebhookTimeout {
		return errors.New("config: processingTimeout must be longer than summaryWebhookTimeout")
	}
	return nil
}

func parseDuration(field, raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("config: invalid %s duration %q", field, raw)
	}
	return d, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.TrimSpace(v)
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
