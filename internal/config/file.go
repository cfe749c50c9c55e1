package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// LoadFromUserConfig exports the values of ~/.globekeys/config.json (OPENAI_*,
// QDRANT_* and friends) into the environment.
func LoadFromUserConfig() error {
	home, err := os.UserHomeDir()
	if err != nil {
		// Best-effort: if we can't resolve home, just skip file loading.
		return nil
	}

	configPath := filepath.Join(home, ".globekeys", "config.json")
	file, err := os.Open(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	var cfg map[string]string
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return err
	}

	for key, value := range cfg {
		if value == "" {
			continue
		}
		// Values from ~/.globekeys/config.json take precedence over existing env vars.
		_ = os.Setenv(key, value)
	}

	return nil
}
