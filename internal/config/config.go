// Package config loads service configuration from an optional YAML file and
// AGRI_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fidde/agripredict/internal/artifacts"
	"github.com/fidde/agripredict/internal/features"
	"github.com/fidde/agripredict/internal/storage"
	"github.com/fidde/agripredict/internal/storage/csvlog"
	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Features  FeaturesConfig  `yaml:"features"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig configures the HTTP and gRPC listeners.
type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr"`
	GRPCAddr        string        `yaml:"grpc_addr"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	StaticDir       string        `yaml:"static_dir"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// SubmitRate is the sustained per-client submissions per second; zero
	// disables limiting.
	SubmitRate  float64 `yaml:"submit_rate"`
	SubmitBurst int     `yaml:"submit_burst"`

	// TrustProxy keys clients on X-Forwarded-For. Enable only behind a
	// proxy that sets the header.
	TrustProxy bool `yaml:"trust_proxy"`
}

// ArtifactsConfig locates the fitted artifacts.
type ArtifactsConfig struct {
	Dir        string `yaml:"dir"`
	Scaler     string `yaml:"scaler"`
	Poly       string `yaml:"poly"`
	MinPrice   string `yaml:"min_price"`
	MaxPrice   string `yaml:"max_price"`
	ModalPrice string `yaml:"modal_price"`
}

// FeaturesConfig configures the feature schema and unmapped policy.
type FeaturesConfig struct {
	SchemaFile     string `yaml:"schema_file"`
	UnmappedPolicy string `yaml:"unmapped_policy"`
}

// StorageConfig configures the observation sinks.
type StorageConfig struct {
	TrainingPath   string `yaml:"training_path"`
	AuditPath      string `yaml:"audit_path"`
	Mirror         string `yaml:"mirror"`
	MirrorDSN      string `yaml:"mirror_dsn"`
	MemoryCapacity int    `yaml:"memory_capacity"`

	ClickHouseAddr     string `yaml:"clickhouse_addr"`
	ClickHouseDatabase string `yaml:"clickhouse_database"`
	ClickHouseUsername string `yaml:"clickhouse_username"`
	ClickHousePassword string `yaml:"clickhouse_password"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the default configuration.
func Default() Config {
	st := storage.DefaultConfig()
	return Config{
		Server: ServerConfig{
			HTTPAddr:        "0.0.0.0:5000",
			GRPCAddr:        "0.0.0.0:9090",
			CORSOrigins:     []string{"*"},
			RequestTimeout:  60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			SubmitRate:      5,
			SubmitBurst:     10,
		},
		Artifacts: ArtifactsConfig{
			Dir:        "./models",
			Scaler:     "scaler.json",
			Poly:       "poly_features.json",
			MinPrice:   "min_price.json",
			MaxPrice:   "max_price.json",
			ModalPrice: "modal_price.json",
		},
		Features: FeaturesConfig{
			UnmappedPolicy: string(features.PolicyDegrade),
		},
		Storage: StorageConfig{
			TrainingPath:       csvlog.DefaultTrainingPath,
			AuditPath:          csvlog.DefaultAuditPath,
			Mirror:             storage.MirrorNone,
			MirrorDSN:          st.MirrorDSN,
			MemoryCapacity:     st.MemoryCapacity,
			ClickHouseAddr:     st.ClickHouseAddr,
			ClickHouseDatabase: st.ClickHouseDatabase,
			ClickHouseUsername: st.ClickHouseUsername,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config YAML: %w", err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from AGRI_* environment variables.
func (c *Config) ApplyEnv() error {
	c.Server.HTTPAddr = getEnv("AGRI_HTTP_ADDR", c.Server.HTTPAddr)
	c.Server.GRPCAddr = getEnv("AGRI_GRPC_ADDR", c.Server.GRPCAddr)
	c.Server.StaticDir = getEnv("AGRI_STATIC_DIR", c.Server.StaticDir)
	if v, ok := os.LookupEnv("AGRI_CORS_ORIGINS"); ok {
		c.Server.CORSOrigins = splitList(v)
	}

	var err error
	if c.Server.SubmitRate, err = getEnvFloat("AGRI_SUBMIT_RATE", c.Server.SubmitRate); err != nil {
		return err
	}
	if c.Server.SubmitBurst, err = getEnvInt("AGRI_SUBMIT_BURST", c.Server.SubmitBurst); err != nil {
		return err
	}
	if c.Server.TrustProxy, err = getEnvBool("AGRI_TRUST_PROXY", c.Server.TrustProxy); err != nil {
		return err
	}

	c.Artifacts.Dir = getEnv("AGRI_ARTIFACT_DIR", c.Artifacts.Dir)
	c.Features.SchemaFile = getEnv("AGRI_SCHEMA_FILE", c.Features.SchemaFile)
	c.Features.UnmappedPolicy = getEnv("AGRI_UNMAPPED_POLICY", c.Features.UnmappedPolicy)

	c.Storage.TrainingPath = getEnv("AGRI_TRAINING_CSV", c.Storage.TrainingPath)
	c.Storage.AuditPath = getEnv("AGRI_AUDIT_CSV", c.Storage.AuditPath)
	c.Storage.Mirror = getEnv("AGRI_MIRROR", c.Storage.Mirror)
	c.Storage.MirrorDSN = getEnv("AGRI_MIRROR_DSN", c.Storage.MirrorDSN)
	c.Storage.ClickHouseAddr = getEnv("AGRI_CLICKHOUSE_ADDR", c.Storage.ClickHouseAddr)
	c.Storage.ClickHousePassword = getEnv("AGRI_CLICKHOUSE_PASSWORD", c.Storage.ClickHousePassword)

	c.Log.Level = getEnv("AGRI_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("AGRI_LOG_FORMAT", c.Log.Format)
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return errors.New("server.http_addr is required")
	}
	if c.Server.SubmitRate < 0 || c.Server.SubmitBurst < 0 {
		return errors.New("server.submit_rate and server.submit_burst must be non-negative")
	}
	if c.Server.SubmitRate > 0 && c.Server.SubmitBurst == 0 {
		return errors.New("server.submit_burst must be positive when rate limiting is enabled")
	}
	if c.Artifacts.Dir == "" {
		return errors.New("artifacts.dir is required")
	}
	if _, err := features.ParsePolicy(c.Features.UnmappedPolicy); err != nil {
		return fmt.Errorf("features.unmapped_policy: %w", err)
	}
	if c.Storage.TrainingPath == "" || c.Storage.AuditPath == "" {
		return errors.New("storage.training_path and storage.audit_path are required")
	}
	if filepath.Clean(c.Storage.TrainingPath) == filepath.Clean(c.Storage.AuditPath) {
		return errors.New("storage.training_path and storage.audit_path must differ")
	}
	switch c.Storage.Mirror {
	case "", storage.MirrorNone, storage.MirrorMemory, storage.MirrorClickHouse:
	case storage.MirrorSQLite, storage.MirrorPostgres:
		if c.Storage.MirrorDSN == "" {
			return fmt.Errorf("storage.mirror_dsn is required for the %s mirror", c.Storage.Mirror)
		}
	default:
		return fmt.Errorf("unknown storage.mirror %q", c.Storage.Mirror)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log.format %q", c.Log.Format)
	}
	return nil
}

// ArtifactPaths resolves the artifact file names against the directory.
func (c Config) ArtifactPaths() artifacts.Paths {
	join := func(name string) string {
		if filepath.IsAbs(name) {
			return name
		}
		return filepath.Join(c.Artifacts.Dir, name)
	}
	return artifacts.Paths{
		Scaler:     join(c.Artifacts.Scaler),
		Poly:       join(c.Artifacts.Poly),
		MinPrice:   join(c.Artifacts.MinPrice),
		MaxPrice:   join(c.Artifacts.MaxPrice),
		ModalPrice: join(c.Artifacts.ModalPrice),
	}
}

// Policy returns the parsed unmapped-category policy.
func (c Config) Policy() features.Policy {
	p, err := features.ParsePolicy(c.Features.UnmappedPolicy)
	if err != nil {
		return features.PolicyDegrade
	}
	return p
}

// StorageConfig converts to the storage factory configuration.
func (c Config) StorageConfig() storage.Config {
	return storage.Config{
		CSV: csvlog.Config{
			TrainingPath: c.Storage.TrainingPath,
			AuditPath:    c.Storage.AuditPath,
		},
		Mirror:             c.Storage.Mirror,
		MirrorDSN:          c.Storage.MirrorDSN,
		MemoryCapacity:     c.Storage.MemoryCapacity,
		ClickHouseAddr:     c.Storage.ClickHouseAddr,
		ClickHouseDatabase: c.Storage.ClickHouseDatabase,
		ClickHouseUsername: c.Storage.ClickHouseUsername,
		ClickHousePassword: c.Storage.ClickHousePassword,
	}
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log.level %q", s)
	}
}

// NewLogger builds the process logger.
func (c Config) NewLogger() *slog.Logger {
	level, _ := ParseLevel(c.Log.Level)
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// getEnv gets an environment variable with a default fallback.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue, fmt.Errorf("parsing %s: %w", key, err)
	}
	return f, nil
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue, fmt.Errorf("parsing %s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue, fmt.Errorf("parsing %s: %w", key, err)
	}
	return b, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
