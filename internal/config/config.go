package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tumbledice/tumble/internal/core/history"
	"github.com/tumbledice/tumble/internal/core/motion"
	"github.com/tumbledice/tumble/internal/core/sim"
)

// Config is the root service configuration.
type Config struct {
	Server  ServerConfig   `yaml:"server"`
	World   sim.Config     `yaml:"world"`
	Motion  motion.Config  `yaml:"motion"`
	History history.Config `yaml:"history"`
	Log     LogConfig      `yaml:"log"`
}

// ServerConfig holds the transport listen addresses.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"` // websocket + REST
	QUICAddr string `yaml:"quic_addr"` // empty disables QUIC

	MaxClients     int `yaml:"max_clients"`
	SessionShards  int `yaml:"session_shards"`
	SendBufferSize int `yaml:"send_buffer_size"`
}

// LogConfig selects the log level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			HTTPAddr:       "127.0.0.1:8080",
			QUICAddr:       "",
			MaxClients:     256,
			SessionShards:  8,
			SendBufferSize: 64,
		},
		World:   sim.DefaultConfig(),
		Motion:  motion.DefaultConfig(),
		History: history.DefaultConfig(),
		Log:     LogConfig{Level: "info"},
	}
}

// Load reads a YAML file over the defaults. A missing or unreadable file
// is an explicit error; callers that want pure defaults call Default.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
