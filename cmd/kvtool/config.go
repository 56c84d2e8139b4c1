package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

// Config holds the options kvtool needs to open a store: a JSON5-tolerant
// project file merged with CLI overrides, defaults-first.
type Config struct {
	BasePath     string `json:"base_path"`
	ShardCount   int    `json:"shard_count"`
	WriteThrough bool   `json:"write_through"`
}

// ConfigFileName is the default project config file name.
const ConfigFileName = ".kvtool.json"

// DefaultConfig returns kvtool's baseline configuration.
func DefaultConfig() Config {
	return Config{
		BasePath:     "kvdata/store",
		ShardCount:   4,
		WriteThrough: false,
	}
}

// LoadConfig merges, in increasing precedence: defaults, the project
// config file (if present at workDir/.kvtool.json or at configPath), then
// the cliOverrides fields whose keys are marked true in overridden.
func LoadConfig(workDir, configPath string, cliOverrides Config, overridden map[string]bool) (Config, error) {
	cfg := DefaultConfig()

	path := configPath
	if path == "" {
		path = filepath.Join(workDir, ConfigFileName)
	}

	fileCfg, found, err := loadConfigFile(path)
	if err != nil {
		return Config{}, err
	}

	if found {
		cfg = mergeConfig(cfg, fileCfg)
	}

	if overridden["base_path"] {
		cfg.BasePath = cliOverrides.BasePath
	}

	if overridden["shard_count"] {
		cfg.ShardCount = cliOverrides.ShardCount
	}

	if overridden["write_through"] {
		cfg.WriteThrough = cliOverrides.WriteThrough
	}

	if cfg.ShardCount <= 0 {
		return Config{}, fmt.Errorf("kvtool: shard_count must be positive, got %d", cfg.ShardCount)
	}

	return cfg, nil
}

func loadConfigFile(path string) (Config, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, false, nil
		}

		return Config{}, false, fmt.Errorf("kvtool: read config %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("kvtool: invalid config %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, false, fmt.Errorf("kvtool: parse config %s: %w", path, err)
	}

	return cfg, true, nil
}

// mergeConfig overlays non-zero fields of override onto base.
func mergeConfig(base, override Config) Config {
	if override.BasePath != "" {
		base.BasePath = override.BasePath
	}

	if override.ShardCount != 0 {
		base.ShardCount = override.ShardCount
	}

	base.WriteThrough = base.WriteThrough || override.WriteThrough

	return base
}
