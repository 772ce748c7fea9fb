package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// ConfigPath points at an optional HCL configuration file.
	ConfigPath string
	// DocumentPath points at an optional saved graph document. When empty
	// the app evaluates a small built-in demo graph.
	DocumentPath string
	// OutputDir receives rendered PNGs and the DOT export. Empty disables
	// file output.
	OutputDir string

	LogFormat   string
	LogLevel    string
	WorkerCount int
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.WorkerCount < 1 {
		return nil, errors.New("WorkerCount must be at least 1")
	}
	return &cfg, nil
}
