package config

import (
	"encoding/json"
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"
	yaml "gopkg.in/yaml.v3"
)

// Load reads and parses a BroodConfig from path, dispatching on its file
// extension the way original_source/brood/config.py's from_file does, then
// validates the result.
func Load(path string) (BroodConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return BroodConfig{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg BroodConfig
	switch ext := normalizeExt(path); ext {
	case "json":
		err = json.Unmarshal(data, &cfg)
	case "toml":
		err = toml.Unmarshal(data, &cfg)
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		return BroodConfig{}, &UnknownFormatError{Path: path, Ext: ext}
	}
	if err != nil {
		return BroodConfig{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return BroodConfig{}, err
	}
	return cfg, nil
}
