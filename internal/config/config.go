package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

// Environment variables with defaults
type ServerEnvironment struct {

	// http server settings
	Environment           string        `env:"ENVIRONMENT,default=dev"`
	Host                  string        `env:"HOST,default=0.0.0.0"`
	Port                  int           `env:"PORT,default=8080"`
	LogLevel              string        `env:"LOG_LEVEL,default=debug"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT,default=10s"`
	ReadTimeout           time.Duration `env:"READ_TIMEOUT,default=15s"`
	WriteTimeout          time.Duration `env:"WRITE_TIMEOUT,default=15s"`
	IdleTimeout           time.Duration `env:"IDLE_TIMEOUT,default=60s"`
	RateLimitRPS          int32         `env:"RATE_LIMIT_RPS,default=100"`
	RateLimitBurst        int32         `env:"RATE_LIMIT_BURST,default=200"`
	MaxRequestBytes       int64         `env:"MAX_REQUEST_BYTES,default=1048576"`

	// database settings
	DBMaxConnections    int32         `env:"DB_MAX_CONNECTIONS,default=4"`
	DBMinConnections    int32         `env:"DB_MIN_CONNECTIONS,default=0"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME,default=60m"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME,default=30m"`
	DBConnectTimeout    time.Duration `env:"DB_CONNECT_TIMEOUT,default=5s"`
	DatabasePingTimeout time.Duration `env:"DATABASE_PING_TIMEOUT,default=10s"`

	// trust network (GDHCN TNG) settings
	TNGFetchTimeout time.Duration `env:"TNG_FETCH_TIMEOUT,default=10s"`

	// blob store settings
	// BLOB_BACKEND selects the storage backend for the raw IPS JSON documents.
	BlobBackend    string `env:"BLOB_BACKEND,default=fs"`
	BlobRoot       string `env:"BLOB_ROOT,default=./data/ips"`
	S3Bucket       string `env:"S3_BUCKET"`
	S3Region       string `env:"S3_REGION"`
	S3BaseEndpoint string `env:"S3_BASE_ENDPOINT"`
	S3AccessKeyID  string `env:"S3_ACCESS_KEY_ID"`
	S3SecretKey    string `env:"S3_SECRET_ACCESS_KEY"`
	S3UsePathStyle bool   `env:"S3_USE_PATH_STYLE,default=false"`

	// Manifest-minted retrieval links are rotated after this many minutes.
	ManifestTTLMinutes int `env:"MANIFEST_TTL_MINUTES,default=60"`

	// Required configuration - must be set by environment variables
	BaseURL     string `env:"BASE_URL,required=true"`
	CountryCode string `env:"COUNTRY_CODE,required=true"`
	DSCKeyPath  string `env:"DSC_KEY_PATH,required=true"`
	DSCKeyID    string `env:"DSC_KID,required=true"`
	TNGBaseURL  string `env:"TNG_BASE_URL,required=true"`
	DatabaseURL string `env:"DATABASE_URL,required=true"`
}

var validEnvs = map[string]bool{
	"dev":     true,
	"test":    true,
	"prod":    true,
	"staging": true,
}

var validBlobBackends = map[string]bool{
	"fs":     true,
	"s3":     true,
	"memory": true,
}

// NewServerConfig loads environment variables and returns a ServerEnvironment struct that contains the values
func NewServerConfig() (*ServerEnvironment, error) {
	var cfg ServerEnvironment

	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal environment variables: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validateConfig checks for required env variables
func validateConfig(cfg *ServerEnvironment) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}
	if !validEnvs[cfg.Environment] {
		return fmt.Errorf("invalid ENVIRONMENT: %s", cfg.Environment)
	}

	if !validBlobBackends[cfg.BlobBackend] {
		return fmt.Errorf("invalid BLOB_BACKEND: %s (must be fs, s3 or memory)", cfg.BlobBackend)
	}
	if cfg.BlobBackend == "s3" && cfg.S3Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required when BLOB_BACKEND=s3")
	}

	// Validate database pool configuration
	if cfg.DBMaxConnections < 1 {
		return fmt.Errorf("DB_MAX_CONNECTIONS must be at least 1")
	}
	if cfg.DBMinConnections < 0 {
		return fmt.Errorf("DB_MIN_CONNECTIONS must be 0 or greater")
	}
	if cfg.DBMinConnections > cfg.DBMaxConnections {
		return fmt.Errorf("DB_MIN_CONNECTIONS (%d) cannot be greater than DB_MAX_CONNECTIONS (%d)",
			cfg.DBMinConnections, cfg.DBMaxConnections)
	}

	if cfg.ManifestTTLMinutes < 1 {
		return fmt.Errorf("MANIFEST_TTL_MINUTES must be at least 1")
	}

	// ISO 3166-1 alpha-2 or alpha-3 codes are used on the trust network
	if len(cfg.CountryCode) != 2 && len(cfg.CountryCode) != 3 {
		return fmt.Errorf("COUNTRY_CODE must be a 2 or 3 character country code, got %q", cfg.CountryCode)
	}

	return nil
}
