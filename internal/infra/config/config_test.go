package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestMustLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
addr: ":8080"
shutdown_timeout: 5s
base_dir: /var/lib/detectify
task_ttl: 48h
max_upload_mb: 100
redis:
  addr: localhost:6379
  db: 1
nats:
  url: nats://localhost:4222
  name: detectify
  stream: MW_ANALYSIS
  topics:
    hash: scan.hash
  workers:
    hash: 8
enrichment:
  base_url: https://www.virustotal.com/api/v3
  api_key: key
  min_interval: 20s
classifier:
  endpoint: http://localhost:9090/predict
  chunk_size: 2048
`)

	cfg := MustLoad(path)

	if cfg.Addr != ":8080" || cfg.BaseDir != "/var/lib/detectify" {
		t.Fatalf("basic fields: %+v", cfg)
	}
	if cfg.TaskTTL != 48*time.Hour {
		t.Fatalf("task_ttl: %v", cfg.TaskTTL)
	}
	if cfg.Redis.Addr != "localhost:6379" || cfg.Redis.DB != 1 {
		t.Fatalf("redis: %+v", cfg.Redis)
	}
	if cfg.NATS.Stream != "MW_ANALYSIS" {
		t.Fatalf("stream: %q", cfg.NATS.Stream)
	}
	if cfg.Enrichment.MinInterval != 20*time.Second {
		t.Fatalf("min_interval: %v", cfg.Enrichment.MinInterval)
	}
	if cfg.Classifier.ChunkSize != 2048 {
		t.Fatalf("chunk_size: %d", cfg.Classifier.ChunkSize)
	}

	// Explicit values survive, gaps are filled.
	if cfg.NATS.Topics.Hash != "scan.hash" {
		t.Fatalf("explicit topic lost: %q", cfg.NATS.Topics.Hash)
	}
	if cfg.NATS.Workers.Hash != 8 {
		t.Fatalf("explicit worker count lost: %d", cfg.NATS.Workers.Hash)
	}
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	if cfg.TaskTTL != 7*24*time.Hour {
		t.Fatalf("task_ttl default: %v", cfg.TaskTTL)
	}
	if cfg.NATS.Topics.Available != "task.available" ||
		cfg.NATS.Topics.Hash != "task.hash" ||
		cfg.NATS.Topics.Report != "task.report" ||
		cfg.NATS.Topics.Classify != "task.classify" ||
		cfg.NATS.Topics.Completed != "task.completed" {
		t.Fatalf("topic defaults: %+v", cfg.NATS.Topics)
	}
	if cfg.NATS.Workers.Report != 1 {
		t.Fatalf("report stage must default to a single worker, got %d", cfg.NATS.Workers.Report)
	}
	if cfg.Enrichment.MinInterval != 15*time.Second {
		t.Fatalf("min_interval default: %v", cfg.Enrichment.MinInterval)
	}
	if cfg.Classifier.ChunkSize != 10240 || cfg.Classifier.ChunkOverlap != 3072 {
		t.Fatalf("chunking defaults: %+v", cfg.Classifier)
	}
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := Config{
		TaskTTL: time.Hour,
		NATS:    NATS{Workers: Workers{Report: 3}},
	}
	cfg.ApplyDefaults()

	if cfg.TaskTTL != time.Hour {
		t.Fatalf("explicit ttl overridden: %v", cfg.TaskTTL)
	}
	if cfg.NATS.Workers.Report != 3 {
		t.Fatalf("explicit worker count overridden: %d", cfg.NATS.Workers.Report)
	}
}
