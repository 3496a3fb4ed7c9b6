package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
scrape:
  job_type: scrape
  audience: admin
  max_articles_per_source: 25
  include_patterns: ["/story/"]
ratelimit:
  default_rps: 5
  default_burst: 2
  domain_rps:
    slow.example.com: 0.5
render:
  bin_path: /usr/local/bin/renderworker
  timeout_seconds: 120
classifier:
  endpoint: https://llm.internal/v1/chat/completions
  model: inference-small
  api_key: k
  timeout_seconds: 45
db:
  dsn: postgres://harvester@localhost/harvester
archive:
  provider: local
  base_dir: /var/lib/harvester/pages
pubsub:
  project_id: proj
  topic_name: harvester-runs
scheduler:
  enabled: true
  cron: "0 */2 * * *"
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Scrape.Audience != "admin" {
		t.Errorf("Scrape.Audience = %q, want admin", cfg.Scrape.Audience)
	}
	if cfg.Scrape.MaxArticlesPerSource != 25 {
		t.Errorf("Scrape.MaxArticlesPerSource = %d, want 25", cfg.Scrape.MaxArticlesPerSource)
	}
	if got := cfg.RateLimit.DomainRPS["slow.example.com"]; got != 0.5 {
		t.Errorf("RateLimit.DomainRPS = %v, want 0.5", got)
	}
	if cfg.Render.BinPath != "/usr/local/bin/renderworker" {
		t.Errorf("Render.BinPath = %q", cfg.Render.BinPath)
	}
	if cfg.ClassifierTimeout().Seconds() != 45 {
		t.Errorf("ClassifierTimeout = %v, want 45s", cfg.ClassifierTimeout())
	}
	if cfg.Archive.Provider != "local" {
		t.Errorf("Archive.Provider = %q, want local", cfg.Archive.Provider)
	}
	if !cfg.Scheduler.Enabled || cfg.Scheduler.Cron != "0 */2 * * *" {
		t.Errorf("Scheduler = %+v", cfg.Scheduler)
	}
	if cfg.Logging.Development {
		t.Error("Logging.Development = true, want false")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Scrape.JobType != "scrape" || cfg.Scrape.Audience != "public" {
		t.Errorf("Scrape defaults = %+v", cfg.Scrape)
	}
	if cfg.RateLimit.DefaultRPS != 2 {
		t.Errorf("RateLimit.DefaultRPS = %v, want 2", cfg.RateLimit.DefaultRPS)
	}
	if cfg.Render.TimeoutSeconds != 90 {
		t.Errorf("Render.TimeoutSeconds = %d, want 90", cfg.Render.TimeoutSeconds)
	}
	if cfg.Archive.Provider != "none" {
		t.Errorf("Archive.Provider = %q, want none", cfg.Archive.Provider)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "zero port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "server.port",
		},
		{
			name:    "auth without key",
			mutate:  func(c *Config) { c.Auth.Enabled = true },
			wantErr: "auth.api_key",
		},
		{
			name:    "gcs without bucket",
			mutate:  func(c *Config) { c.Archive.Provider = "gcs" },
			wantErr: "archive.gcs_bucket",
		},
		{
			name:    "unknown archive provider",
			mutate:  func(c *Config) { c.Archive.Provider = "s3" },
			wantErr: "not supported",
		},
		{
			name:    "topic without project",
			mutate:  func(c *Config) { c.PubSub.TopicName = "t" },
			wantErr: "pubsub.project_id",
		},
		{
			name: "scheduler without cron",
			mutate: func(c *Config) {
				c.Scheduler.Enabled = true
				c.Scheduler.Cron = ""
			},
			wantErr: "scheduler.cron",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			tt.mutate(&cfg)
			err = cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}
