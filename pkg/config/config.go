package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig

	Doses        DoseConfig
	DeepLinks    DeepLinkConfig
	Certificates CertificateConfig
	Audit        AuditConfig
	Station      StationConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
	Issuer            string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// DoseConfig tunes the dose status derivation and the record cache.
type DoseConfig struct {
	// DueWindow is how long before the due date a scheduled dose becomes due.
	DueWindow time.Duration
	CacheTTL  time.Duration
}

// DeepLinkConfig governs the one-time deep-link resolution tokens.
type DeepLinkConfig struct {
	Enabled  bool
	TokenTTL time.Duration
}

// CertificateConfig controls vaccination certificate export.
type CertificateConfig struct {
	Enabled         bool
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
}

// AuditConfig tunes the background audit log writer.
type AuditConfig struct {
	Workers    int
	BufferSize int
}

// StationConfig configures the scan-station binary.
type StationConfig struct {
	APIBaseURL       string
	APIToken         string
	Role             string
	StaffID          string
	DeviceID         string
	DevicePath       string
	DeviceLabel      string
	DebounceInterval time.Duration
	RescanDelay      time.Duration
	SubmitTimeout    time.Duration
	MaxRetries       int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
		Issuer:            v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Doses = DoseConfig{
		DueWindow: parseDuration(v.GetString("DOSE_DUE_WINDOW"), 7*24*time.Hour),
		CacheTTL:  parseDuration(v.GetString("DOSE_CACHE_TTL"), 10*time.Minute),
	}

	cfg.DeepLinks = DeepLinkConfig{
		Enabled:  v.GetBool("ENABLE_DEEPLINKS"),
		TokenTTL: parseDuration(v.GetString("DEEPLINK_TOKEN_TTL"), 15*time.Minute),
	}

	cfg.Certificates = CertificateConfig{
		Enabled:         v.GetBool("ENABLE_CERTIFICATES"),
		StorageDir:      v.GetString("CERTIFICATES_STORAGE_DIR"),
		SignedURLSecret: v.GetString("CERTIFICATES_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("CERTIFICATES_SIGNED_URL_TTL"), 30*time.Minute),
	}

	cfg.Audit = AuditConfig{
		Workers:    v.GetInt("AUDIT_WORKERS"),
		BufferSize: v.GetInt("AUDIT_BUFFER_SIZE"),
	}

	cfg.Station = StationConfig{
		APIBaseURL:       v.GetString("STATION_API_BASE_URL"),
		APIToken:         v.GetString("STATION_API_TOKEN"),
		Role:             v.GetString("STATION_ROLE"),
		StaffID:          v.GetString("STATION_STAFF_ID"),
		DeviceID:         v.GetString("STATION_DEVICE_ID"),
		DevicePath:       v.GetString("STATION_DEVICE_PATH"),
		DeviceLabel:      v.GetString("STATION_DEVICE_LABEL"),
		DebounceInterval: parseDuration(v.GetString("STATION_DEBOUNCE_INTERVAL"), 2*time.Second),
		RescanDelay:      parseDuration(v.GetString("STATION_RESCAN_DELAY"), 2*time.Second),
		SubmitTimeout:    parseDuration(v.GetString("STATION_SUBMIT_TIMEOUT"), 10*time.Second),
		MaxRetries:       v.GetInt("STATION_MAX_RETRIES"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "vaxport")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")
	v.SetDefault("JWT_ISSUER", "vaxport")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("DOSE_DUE_WINDOW", "168h")
	v.SetDefault("DOSE_CACHE_TTL", "10m")

	v.SetDefault("ENABLE_DEEPLINKS", true)
	v.SetDefault("DEEPLINK_TOKEN_TTL", "15m")

	v.SetDefault("ENABLE_CERTIFICATES", false)
	v.SetDefault("CERTIFICATES_STORAGE_DIR", "./certificates")
	v.SetDefault("CERTIFICATES_SIGNED_URL_SECRET", "dev_certificates_secret")
	v.SetDefault("CERTIFICATES_SIGNED_URL_TTL", "30m")

	v.SetDefault("AUDIT_WORKERS", 1)
	v.SetDefault("AUDIT_BUFFER_SIZE", 64)

	v.SetDefault("STATION_API_BASE_URL", "http://localhost:8080")
	v.SetDefault("STATION_API_TOKEN", "")
	v.SetDefault("STATION_ROLE", "doctor")
	v.SetDefault("STATION_STAFF_ID", "")
	v.SetDefault("STATION_DEVICE_ID", "scanner0")
	v.SetDefault("STATION_DEVICE_PATH", "/dev/stdin")
	v.SetDefault("STATION_DEVICE_LABEL", "Handheld scanner")
	v.SetDefault("STATION_DEBOUNCE_INTERVAL", "2s")
	v.SetDefault("STATION_RESCAN_DELAY", "2s")
	v.SetDefault("STATION_SUBMIT_TIMEOUT", "10s")
	v.SetDefault("STATION_MAX_RETRIES", 3)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
