package main

import "github.com/flowkit/agentctl/internal/config"

// loadConfig reads --config (or the built-in defaults) and overlays any
// persistent flags the user set on the command line.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if baseDir != "" {
		cfg.BaseDir = baseDir
	}
	return cfg, nil
}
