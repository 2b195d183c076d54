// Package config handles configuration for the inference service:
// defaults, an optional JSON file, environment variables and flags,
// applied in that order.
package config

import "time"

// Config holds runtime settings for the inference service.
type Config struct {
	HTTPAddr        string
	GRPCAddr        string
	CheckpointPath  string
	ModelVersion    string
	LogLevel        string
	ShutdownTimeout time.Duration
}

// LoadDefaults populates Config with local development defaults.
func (c *Config) LoadDefaults() {
	c.HTTPAddr = ":8000"
	c.GRPCAddr = ""
	c.CheckpointPath = "models/mnist/mnist_cnn.safetensors"
	c.ModelVersion = "mnist_cnn_v1"
	c.LogLevel = "info"
	c.ShutdownTimeout = 10 * time.Second
}

// LoadConfig builds a Config from defaults, then the JSON file, the
// environment and finally command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
