// Package config loads runtime settings from an optional YAML file layered
// under environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration values.
type Config struct {
	// Local data files
	DataDir    string `yaml:"data_dir"`
	PapersFile string `yaml:"papers_file"`
	TasksFile  string `yaml:"tasks_file"`
	StateFile  string `yaml:"state_file"`

	// DeepSeek ranking API
	DeepSeekAPIKey  string `yaml:"deepseek_api_key"`
	DeepSeekAPIBase string `yaml:"deepseek_api_base"`
	DeepSeekModel   string `yaml:"deepseek_model"`

	// Fetching
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	// A running task idle longer than this is treated as orphaned and may
	// be resumed without --force.
	StaleAfter time.Duration `yaml:"stale_after"`

	// Logging
	LogFile  string     `yaml:"log_file"`
	LogLevel slog.Level `yaml:"-"`

	LogLevelName string `yaml:"log_level"`
}

func defaults() Config {
	return Config{
		DataDir:         "data",
		PapersFile:      "papers.json",
		TasksFile:       "tasks.json",
		StateFile:       "ingestion_state.json",
		DeepSeekAPIBase: "https://api.deepseek.com/v1",
		DeepSeekModel:   "deepseek-chat",
		HTTPTimeout:     30 * time.Second,
		StaleAfter:      10 * time.Minute,
		LogLevelName:    "INFO",
	}
}

// Load builds the configuration from defaults, an optional YAML file
// ($PAPERFINDER_CONFIG, else ~/.paperfinder.yaml) and environment variables,
// in increasing precedence.
func Load() (Config, error) {
	cfg := defaults()

	if path := configFilePath(); path != "" {
		if err := loadFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)

	cfg.LogLevel = parseLogLevel(cfg.LogLevelName)
	return cfg, nil
}

func configFilePath() string {
	if path := os.Getenv("PAPERFINDER_CONFIG"); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(home, ".paperfinder.yaml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.DataDir, "PAPERFINDER_DATA_DIR")
	setString(&cfg.PapersFile, "PAPERFINDER_PAPERS_FILE")
	setString(&cfg.TasksFile, "PAPERFINDER_TASKS_FILE")
	setString(&cfg.StateFile, "PAPERFINDER_STATE_FILE")
	setString(&cfg.DeepSeekAPIKey, "DEEPSEEK_API_KEY")
	setString(&cfg.DeepSeekAPIBase, "DEEPSEEK_API_BASE")
	setString(&cfg.DeepSeekModel, "DEEPSEEK_MODEL")
	setString(&cfg.LogFile, "PAPERFINDER_LOG_FILE")
	setString(&cfg.LogLevelName, "PAPERFINDER_LOG_LEVEL")
	setDuration(&cfg.HTTPTimeout, "PAPERFINDER_HTTP_TIMEOUT")
	setDuration(&cfg.StaleAfter, "PAPERFINDER_STALE_AFTER")
}

func setString(dst *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func setDuration(dst *time.Duration, key string) {
	val := os.Getenv(key)
	if val == "" {
		return
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		slog.Warn("ignoring invalid duration", "var", key, "value", val)
		return
	}
	*dst = d
}

// PapersPath is the paper store location under the data directory.
func (c Config) PapersPath() string { return filepath.Join(c.DataDir, c.PapersFile) }

// TasksPath is the task store location under the data directory.
func (c Config) TasksPath() string { return filepath.Join(c.DataDir, c.TasksFile) }

// StatePath is the per-source pagination state location.
func (c Config) StatePath() string { return filepath.Join(c.DataDir, c.StateFile) }

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
