package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SidecarConfig is the complete configuration for a netvid sidecar process
// (the registry/statsdb/archive/monitor services run alongside a sender or
// receiver).
type SidecarConfig struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Registry RegistryConfig `yaml:"registry"`
	StatsDB  StatsDBConfig  `yaml:"statsdb"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Monitor  MonitorConfig  `yaml:"monitor"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`       // debug, info, warn, error
	OutputFile string `yaml:"output_file"` // log file path (empty = stdout)
	MaxSizeMB  int    `yaml:"max_size_mb"` // max log file size before rotation
	MaxBackups int    `yaml:"max_backups"` // max old log files to keep
}

// RegistryConfig holds the Redis stream directory settings.
type RegistryConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// StatsDBConfig holds the Postgres session-summary sink settings.
type StatsDBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// ArchiveConfig holds the QUIC archival transport settings.
type ArchiveConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	TLSCert    string `yaml:"tls_cert"`
	TLSKey     string `yaml:"tls_key"`
}

// MonitorConfig holds the WebSocket live-stats broadcaster settings.
type MonitorConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	PublishInterval time.Duration `yaml:"publish_interval"`
}

// DefaultSidecarConfig returns a SidecarConfig populated with sane
// development defaults.
func DefaultSidecarConfig() *SidecarConfig {
	return &SidecarConfig{
		Logging: LoggingConfig{
			Level:      "info",
			OutputFile: "",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
		Registry: RegistryConfig{
			Host: "localhost",
			Port: 6379,
			DB:   0,
			TTL:  30 * time.Second,
		},
		StatsDB: StatsDBConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "netvid",
			DBName:  "netvid",
			SSLMode: "disable",
		},
		Archive: ArchiveConfig{
			ListenAddr: ":9443",
		},
		Monitor: MonitorConfig{
			ListenAddr:      ":9080",
			PublishInterval: 1 * time.Second,
		},
	}
}

// Load reads and validates a SidecarConfig from a YAML file, filling in
// defaults for anything left unset.
func Load(path string) (*SidecarConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultSidecarConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *SidecarConfig) validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}

	if c.Registry.Host == "" {
		return fmt.Errorf("registry host is required")
	}

	if c.StatsDB.Host == "" {
		return fmt.Errorf("statsdb host is required")
	}
	if c.StatsDB.User == "" {
		return fmt.Errorf("statsdb user is required")
	}
	if c.StatsDB.DBName == "" {
		return fmt.Errorf("statsdb dbname is required")
	}

	if c.Archive.ListenAddr == "" {
		return fmt.Errorf("archive listen_addr is required")
	}

	if c.Monitor.ListenAddr == "" {
		return fmt.Errorf("monitor listen_addr is required")
	}

	return nil
}

// Write marshals cfg to a YAML file at path.
func Write(cfg *SidecarConfig, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}
