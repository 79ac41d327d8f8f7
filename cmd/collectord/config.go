package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// config holds the full collectord configuration. Values come from an
// optional YAML file; a handful of operational knobs (port, secret, log
// level) can be overridden through the environment.
type config struct {
	Listen     string `yaml:"listen"`
	DBPath     string `yaml:"db_path"`
	ScratchDir string `yaml:"scratch_dir"`
	OutboxDir  string `yaml:"outbox_dir"`
	LogLevel   string `yaml:"log_level"`
	DevMode    bool   `yaml:"dev_mode"`

	OCR struct {
		Binary    string   `yaml:"binary"`
		Languages []string `yaml:"languages"`
		Workers   int      `yaml:"workers"`
	} `yaml:"ocr"`

	Web struct {
		TimeoutSeconds   int    `yaml:"timeout_seconds"`
		FallbackSeconds  int    `yaml:"fallback_seconds"`
		RemoteBrowserURL string `yaml:"remote_browser_url"`
		UserAgent        string `yaml:"user_agent"`
	} `yaml:"web"`

	Repo struct {
		Token   string `yaml:"token"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"repo"`

	Sync struct {
		TickMinutes  int `yaml:"tick_minutes"`
		Workers      int `yaml:"workers"`
		MaxFailCount int `yaml:"max_fail_count"`
	} `yaml:"sync"`
}

// defaultConfig returns sane defaults.
func defaultConfig() *config {
	cfg := &config{
		Listen:     ":8086",
		DBPath:     "db/collector.db",
		ScratchDir: "scratch",
		OutboxDir:  "outbox",
		LogLevel:   "info",
	}
	cfg.OCR.Languages = []string{"eng"}
	return cfg
}

// loadConfig reads the YAML file when present and applies environment
// overrides. A missing file is not an error; the defaults stand.
func loadConfig(path string) (*config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// No file: defaults + env only.
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if v := os.Getenv("PORT"); v != "" {
		cfg.Listen = ":" + v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("SCRATCH_DIR"); v != "" {
		cfg.ScratchDir = v
	}
	if v := os.Getenv("OUTBOX_DIR"); v != "" {
		cfg.OutboxDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("REPO_TOKEN"); v != "" {
		cfg.Repo.Token = v
	}
	if os.Getenv("DEV_MODE") == "1" {
		cfg.DevMode = true
	}

	return cfg, cfg.validate()
}

func (c *config) validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.ScratchDir == "" {
		return fmt.Errorf("scratch_dir is required")
	}
	if c.OutboxDir == "" {
		return fmt.Errorf("outbox_dir is required")
	}
	return nil
}

func (c *config) webTimeout() time.Duration {
	return time.Duration(c.Web.TimeoutSeconds) * time.Second
}

func (c *config) webFallbackTimeout() time.Duration {
	return time.Duration(c.Web.FallbackSeconds) * time.Second
}

func (c *config) syncTick() time.Duration {
	return time.Duration(c.Sync.TickMinutes) * time.Minute
}
