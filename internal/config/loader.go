package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"choreo/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/choreo"
	configFileName = "config.yaml"
)

// GetDefaultConfigPathOrPanic returns ~/.config/choreo.
func GetDefaultConfigPathOrPanic() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Errorf("could not determine user config directory: %w", err))
	}

	return filepath.Join(homeDir, userConfigDir)
}

// LoadConfig loads config.yaml from configPath on top of the defaults. A
// missing file yields the defaults.
func LoadConfig(configPath string) (ChoreoConfig, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Debug("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
			return config, nil
		}
		return ChoreoConfig{}, NewConfigurationError(configFilePath, "io", err.Error())
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return ChoreoConfig{}, newParseError(configFilePath, err,
			"check the YAML syntax", "durations are written like 500ms or 2s")
	}
	if err := config.Validate(); err != nil {
		return ChoreoConfig{}, NewConfigurationError(configFilePath, "validation", err.Error())
	}

	logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	return config, nil
}
