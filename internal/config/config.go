package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// SandboxConfig controls the disposable MySQL instance created per benchmark run.
type SandboxConfig struct {
	Image              string `yaml:"image"`
	RootPassword       string `yaml:"root_password"`
	Database           string `yaml:"database"`
	MemLimit           string `yaml:"mem_limit"` // docker size string, e.g. "512m"
	WarmupMs           int    `yaml:"warmup_ms"`
	ProbeAttempts      int    `yaml:"probe_attempts"`
	ProbeIntervalMs    int    `yaml:"probe_interval_ms"`
	ProbeBackoffMs     int    `yaml:"probe_backoff_ms"` // added to the interval after each failed sweep
	ProbeDialTimeoutMs int    `yaml:"probe_dial_timeout_ms"`
	PortRetries        int    `yaml:"port_retries"`
	LogTail            int    `yaml:"log_tail"`
	SettleMs           int    `yaml:"settle_ms"`
	StopTimeoutSeconds int    `yaml:"stop_timeout_seconds"`
}

type GenerationConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
	DefaultModel   string `yaml:"default_model"`
	PopulateRows   int    `yaml:"populate_rows"`
}

type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

type CacheConfig struct {
	Enabled     bool `yaml:"enabled"`
	VersionKeys bool `yaml:"version_keys"` // append schema fingerprint to cache keys
}

type ReaperConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
	MaxAgeSeconds   int `yaml:"max_age_seconds"`
}

type Config struct {
	Listen      string           `yaml:"listen"`
	DBPath      string           `yaml:"db_path"`
	DefaultDBID string           `yaml:"default_db_id"`
	WebhookURL  string           `yaml:"webhook_url"`
	Sandbox     SandboxConfig    `yaml:"sandbox"`
	Generation  GenerationConfig `yaml:"generation"`
	Mongo       MongoConfig      `yaml:"mongo"`
	Cache       CacheConfig      `yaml:"cache"`
	Reaper      ReaperConfig     `yaml:"reaper"`
}

func Load(yamlPath string) (*Config, error) {
	cfg := &Config{
		Listen: "127.0.0.1:8002",
		DBPath: "./querybench.db",
		Sandbox: SandboxConfig{
			Image:              "mysql:8.0",
			RootPassword:       "root123",
			Database:           "testdb",
			MemLimit:           "1g",
			WarmupMs:           5000,
			ProbeAttempts:      15,
			ProbeIntervalMs:    2000,
			ProbeDialTimeoutMs: 5000,
			PortRetries:        3,
			LogTail:            50,
			SettleMs:           500,
			StopTimeoutSeconds: 5,
		},
		Generation: GenerationConfig{
			TimeoutSeconds: 120,
			MaxRetries:     2,
			DefaultModel:   "hermes",
			PopulateRows:   50,
		},
		Mongo: MongoConfig{
			URI:        "mongodb://localhost:27017",
			Database:   "teste",
			Collection: "dbstructure",
		},
		Cache: CacheConfig{
			Enabled:     true,
			VersionKeys: false,
		},
		Reaper: ReaperConfig{
			IntervalSeconds: 60,
			MaxAgeSeconds:   1800,
		},
	}

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)
	applyFloors(cfg)

	return cfg, nil
}

// applyFloors restores defaults for settings that must be positive; a zero
// reaper interval would make its ticker panic.
func applyFloors(cfg *Config) {
	if cfg.Reaper.IntervalSeconds <= 0 {
		cfg.Reaper.IntervalSeconds = 60
	}
	if cfg.Reaper.MaxAgeSeconds <= 0 {
		cfg.Reaper.MaxAgeSeconds = 1800
	}
	if cfg.Sandbox.ProbeAttempts <= 0 {
		cfg.Sandbox.ProbeAttempts = 1
	}
	if cfg.Generation.TimeoutSeconds <= 0 {
		cfg.Generation.TimeoutSeconds = 120
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("QUERYBENCH_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("QUERYBENCH_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("QUERYBENCH_DEFAULT_DB_ID"); v != "" {
		cfg.DefaultDBID = v
	}
	if v := os.Getenv("QUERYBENCH_WEBHOOK_URL"); v != "" {
		cfg.WebhookURL = v
	}
	if v := os.Getenv("QUERYBENCH_SANDBOX_IMAGE"); v != "" {
		cfg.Sandbox.Image = v
	}
	if v := os.Getenv("QUERYBENCH_SANDBOX_ROOT_PASSWORD"); v != "" {
		cfg.Sandbox.RootPassword = v
	}
	if v := os.Getenv("QUERYBENCH_SANDBOX_MEM_LIMIT"); v != "" {
		cfg.Sandbox.MemLimit = v
	}
	if v := os.Getenv("QUERYBENCH_PROBE_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sandbox.ProbeAttempts = n
		}
	}
	if v := os.Getenv("QUERYBENCH_PROBE_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sandbox.ProbeIntervalMs = n
		}
	}
	if v := os.Getenv("QUERYBENCH_WARMUP_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sandbox.WarmupMs = n
		}
	}
	if v := os.Getenv("QUERYBENCH_PORT_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sandbox.PortRetries = n
		}
	}
	// RAG_* names are kept so existing deployments of the generation service work unchanged.
	if v := firstEnv("QUERYBENCH_GENERATION_BASE_URL", "RAG_BASE_URL"); v != "" {
		cfg.Generation.BaseURL = strings.TrimRight(v, "/")
	}
	if v := firstEnv("QUERYBENCH_GENERATION_API_KEY", "RAG_API_KEY"); v != "" {
		cfg.Generation.APIKey = v
	}
	if v := os.Getenv("QUERYBENCH_GENERATION_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Generation.TimeoutSeconds = n
		}
	}
	if v := os.Getenv("QUERYBENCH_REAPER_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Reaper.IntervalSeconds = n
		}
	}
	if v := os.Getenv("QUERYBENCH_MONGODB_URI"); v != "" {
		cfg.Mongo.URI = v
	}
	if v := os.Getenv("QUERYBENCH_CACHE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Cache.Enabled = b
		}
	}
	if v := os.Getenv("QUERYBENCH_CACHE_VERSION_KEYS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Cache.VersionKeys = b
		}
	}
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}
