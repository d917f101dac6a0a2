package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a YAML config file and applies environment variables on top
// of it. An empty path behaves like Load.
func LoadFile(path string) (Config, error) {
	if path == "" {
		return Load()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	base := Defaults()
	if err := yaml.Unmarshal(data, &base); err != nil {
		return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return LoadWithBase(base)
}
