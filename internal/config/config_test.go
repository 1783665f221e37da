package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fidde/agripredict/internal/features"
	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default config is invalid: %v", err)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.HTTPAddr != "0.0.0.0:5000" {
		t.Errorf("Expected default http addr, got %s", cfg.Server.HTTPAddr)
	}
	if cfg.Policy() != features.PolicyDegrade {
		t.Errorf("Expected degrade policy, got %s", cfg.Policy())
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "127.0.0.1:8080"
  grpc_addr: ""
  cors_origins: ["https://example.com"]
  request_timeout: 5s
artifacts:
  dir: /srv/models
  scaler: custom_scaler.json
features:
  unmapped_policy: reject
storage:
  training_path: /data/train.csv
  audit_path: /data/audit.csv
  mirror: sqlite
  mirror_dsn: /data/obs.db
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.HTTPAddr != "127.0.0.1:8080" {
		t.Errorf("Expected 127.0.0.1:8080, got %s", cfg.Server.HTTPAddr)
	}
	if cfg.Server.GRPCAddr != "" {
		t.Errorf("Expected gRPC disabled, got %s", cfg.Server.GRPCAddr)
	}
	if cfg.Server.RequestTimeout != 5*time.Second {
		t.Errorf("Expected 5s timeout, got %v", cfg.Server.RequestTimeout)
	}
	if diff := cmp.Diff([]string{"https://example.com"}, cfg.Server.CORSOrigins); diff != "" {
		t.Errorf("CORS origins mismatch (-want +got):\n%s", diff)
	}
	if cfg.Policy() != features.PolicyReject {
		t.Errorf("Expected reject policy, got %s", cfg.Policy())
	}

	paths := cfg.ArtifactPaths()
	if paths.Scaler != filepath.Join("/srv/models", "custom_scaler.json") {
		t.Errorf("Unexpected scaler path %s", paths.Scaler)
	}
	if paths.ModalPrice != filepath.Join("/srv/models", "modal_price.json") {
		t.Errorf("Unexpected modal path %s", paths.ModalPrice)
	}

	st := cfg.StorageConfig()
	if st.Mirror != "sqlite" || st.MirrorDSN != "/data/obs.db" {
		t.Errorf("Unexpected storage config %+v", st)
	}
	if st.CSV.TrainingPath != "/data/train.csv" {
		t.Errorf("Unexpected training path %s", st.CSV.TrainingPath)
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  http_addr: \"127.0.0.1:8080\"\n")

	t.Setenv("AGRI_HTTP_ADDR", "0.0.0.0:9999")
	t.Setenv("AGRI_UNMAPPED_POLICY", "reject")
	t.Setenv("AGRI_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("AGRI_SUBMIT_RATE", "0.5")
	t.Setenv("AGRI_MIRROR", "memory")
	t.Setenv("AGRI_TRUST_PROXY", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:9999" {
		t.Errorf("Expected env override, got %s", cfg.Server.HTTPAddr)
	}
	if cfg.Policy() != features.PolicyReject {
		t.Errorf("Expected reject policy from env")
	}
	if diff := cmp.Diff([]string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins); diff != "" {
		t.Errorf("CORS origins mismatch (-want +got):\n%s", diff)
	}
	if cfg.Server.SubmitRate != 0.5 {
		t.Errorf("Expected submit rate 0.5, got %v", cfg.Server.SubmitRate)
	}
	if cfg.Storage.Mirror != "memory" {
		t.Errorf("Expected memory mirror, got %s", cfg.Storage.Mirror)
	}
	if !cfg.Server.TrustProxy {
		t.Error("Expected trust_proxy from env")
	}
}

func TestEnvParseError(t *testing.T) {
	t.Setenv("AGRI_SUBMIT_BURST", "lots")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "AGRI_SUBMIT_BURST") {
		t.Errorf("Expected parse error naming AGRI_SUBMIT_BURST, got %v", err)
	}
}

func TestTrustProxyDefaultsOff(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.TrustProxy {
		t.Error("Expected trust_proxy to default to false")
	}

	t.Setenv("AGRI_TRUST_PROXY", "maybe")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "AGRI_TRUST_PROXY") {
		t.Errorf("Expected parse error naming AGRI_TRUST_PROXY, got %v", err)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Expected error for missing file")
	}
	if _, err := Load(writeConfig(t, "server: [not, a, map]")); err == nil {
		t.Error("Expected error for malformed YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty http addr", func(c *Config) { c.Server.HTTPAddr = "" }, "http_addr"},
		{"bad policy", func(c *Config) { c.Features.UnmappedPolicy = "ignore" }, "unmapped_policy"},
		{"same csv paths", func(c *Config) { c.Storage.AuditPath = c.Storage.TrainingPath }, "must differ"},
		{"unknown mirror", func(c *Config) { c.Storage.Mirror = "redis" }, "storage.mirror"},
		{"sql mirror without dsn", func(c *Config) {
			c.Storage.Mirror = "postgres"
			c.Storage.MirrorDSN = ""
		}, "mirror_dsn"},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"negative rate", func(c *Config) { c.Server.SubmitRate = -1 }, "non-negative"},
		{"zero burst", func(c *Config) { c.Server.SubmitBurst = 0 }, "submit_burst"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"debug", "INFO", "warn", "warning", "error", ""} {
		if _, err := ParseLevel(s); err != nil {
			t.Errorf("ParseLevel(%q) failed: %v", s, err)
		}
	}
	if _, err := ParseLevel("trace"); err == nil {
		t.Error("Expected error for unknown level")
	}
}
