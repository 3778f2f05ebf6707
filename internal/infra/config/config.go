package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	BaseDir string `yaml:"base_dir"`

	TaskTTL          time.Duration `yaml:"task_ttl"`
	MaxUploadBytesMb int64         `yaml:"max_upload_mb"`

	Redis      Redis      `yaml:"redis"`
	MinIO      MinIO      `yaml:"minio"`
	NATS       NATS       `yaml:"nats"`
	Enrichment Enrichment `yaml:"enrichment"`
	Classifier Classifier `yaml:"classifier"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type MinIO struct {
	Enabled         bool   `yaml:"enabled"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UseSSL          bool   `yaml:"use_ssl"`
	Bucket          string `yaml:"bucket"`
}

type NATS struct {
	URL           string `yaml:"url"`
	Name          string `yaml:"name"`
	MaxReconnects int    `yaml:"max_reconnects"`
	Stream        string `yaml:"stream"`
	Topics        Topics `yaml:"topics"`
	Workers       Workers `yaml:"workers"`
}

// Topics carries the five stage subjects. Names are configuration,
// not semantics.
type Topics struct {
	Available string `yaml:"available"`
	Hash      string `yaml:"hash"`
	Report    string `yaml:"report"`
	Classify  string `yaml:"classify"`
	Completed string `yaml:"completed"`
}

// Workers caps consumer concurrency per stage topic. The report stage
// defaults to 1 because the enrichment provider enforces a low
// per-minute request quota.
type Workers struct {
	Available int `yaml:"available"`
	Hash      int `yaml:"hash"`
	Report    int `yaml:"report"`
	Classify  int `yaml:"classify"`
	Completed int `yaml:"completed"`
}

type Enrichment struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Timeout     time.Duration `yaml:"timeout"`
	MinInterval time.Duration `yaml:"min_interval"`
}

type Classifier struct {
	Endpoint     string        `yaml:"endpoint"`
	Timeout      time.Duration `yaml:"timeout"`
	ChunkSize    int           `yaml:"chunk_size"`
	ChunkOverlap int           `yaml:"chunk_overlap"`
}

func MustLoad(path string) *Config {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("config: cannot read file %q: %v", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.Fatalf("config: cannot unmarshal yaml: %v", err)
	}

	if cfg.Addr == "" {
		log.Fatalf("config: addr is empty")
	}
	if cfg.BaseDir == "" {
		log.Fatalf("config: base_dir is empty")
	}
	if cfg.NATS.Stream == "" {
		log.Fatalf("config: nats.stream is empty")
	}
	cfg.ApplyDefaults()

	return &cfg
}

func (cfg *Config) ApplyDefaults() {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.TaskTTL <= 0 {
		cfg.TaskTTL = 7 * 24 * time.Hour
	}
	if cfg.MaxUploadBytesMb <= 0 {
		cfg.MaxUploadBytesMb = 50
	}

	t := &cfg.NATS.Topics
	if t.Available == "" {
		t.Available = "task.available"
	}
	if t.Hash == "" {
		t.Hash = "task.hash"
	}
	if t.Report == "" {
		t.Report = "task.report"
	}
	if t.Classify == "" {
		t.Classify = "task.classify"
	}
	if t.Completed == "" {
		t.Completed = "task.completed"
	}

	w := &cfg.NATS.Workers
	if w.Available <= 0 {
		w.Available = 4
	}
	if w.Hash <= 0 {
		w.Hash = 4
	}
	if w.Report <= 0 {
		w.Report = 1
	}
	if w.Classify <= 0 {
		w.Classify = 2
	}
	if w.Completed <= 0 {
		w.Completed = 4
	}

	if cfg.Enrichment.Timeout <= 0 {
		cfg.Enrichment.Timeout = 60 * time.Second
	}
	if cfg.Enrichment.MinInterval <= 0 {
		cfg.Enrichment.MinInterval = 15 * time.Second
	}

	if cfg.Classifier.Timeout <= 0 {
		cfg.Classifier.Timeout = 120 * time.Second
	}
	if cfg.Classifier.ChunkSize <= 0 {
		cfg.Classifier.ChunkSize = 10240
	}
	if cfg.Classifier.ChunkOverlap <= 0 {
		cfg.Classifier.ChunkOverlap = 3072
	}
}
