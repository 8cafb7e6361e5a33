package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd

const (
	userConfigDir    = ".config/rtcbridge"
	projectConfigDir = ".rtcbridge"
	configFileName   = "config.yaml"
)

// LoadConfig loads the rtcbridge configuration by layering default, user, and
// project settings.
func LoadConfig() (Config, error) {
	// 1. Start with the default configuration
	config := GetDefaultConfig()

	// 2. Determine user-specific configuration path
	userConfigPath, err := getUserConfigPath()
	if err != nil {
		// Log this error but don't fail; user config is optional
		fmt.Fprintf(os.Stderr, "Warning: Could not determine user config path: %v\n", err)
	} else {
		if _, err := os.Stat(userConfigPath); !os.IsNotExist(err) {
			userConfig, err := loadConfigFromFile(userConfigPath)
			if err != nil {
				return Config{}, fmt.Errorf("error loading user config from %s: %w", userConfigPath, err)
			}
			config = mergeConfigs(config, userConfig)
		}
	}

	// 3. Determine project-specific configuration path
	projectConfigPath, err := getProjectConfigPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not determine project config path: %v\n", err)
	} else {
		if _, err := os.Stat(projectConfigPath); !os.IsNotExist(err) {
			projectConfig, err := loadConfigFromFile(projectConfigPath)
			if err != nil {
				return Config{}, fmt.Errorf("error loading project config from %s: %w", projectConfigPath, err)
			}
			config = mergeConfigs(config, projectConfig)
		}
	}

	return config, nil
}

var getUserConfigPath = func() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

var getProjectConfigPath = func() (string, error) {
	wd, err := osGetwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, projectConfigDir, configFileName), nil
}

// loadConfigFromFile loads a Config from a YAML file.
func loadConfigFromFile(filePath string) (Config, error) {
	var config Config
	data, err := os.ReadFile(filePath)
	if err != nil {
		return Config{}, err
	}
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return Config{}, err
	}
	return config, nil
}

// mergeConfigs merges 'overlay' config into 'base' config.
func mergeConfigs(base, overlay Config) Config {
	merged := base

	if overlay.Gateway.Executable != "" {
		merged.Gateway.Executable = overlay.Gateway.Executable
	}
	if overlay.Gateway.LibraryPath != "" {
		merged.Gateway.LibraryPath = overlay.Gateway.LibraryPath
	}
	if overlay.Gateway.ConfigDir != "" {
		merged.Gateway.ConfigDir = overlay.Gateway.ConfigDir
	}
	if overlay.Gateway.StunServer != "" {
		merged.Gateway.StunServer = overlay.Gateway.StunServer
	}

	if overlay.Ports.Floor != 0 {
		merged.Ports.Floor = overlay.Ports.Floor
	}
	if overlay.Ports.Gap != 0 {
		merged.Ports.Gap = overlay.Ports.Gap
	}
	if overlay.Ports.Slots != 0 {
		merged.Ports.Slots = overlay.Ports.Slots
	}
	if overlay.Ports.Probes != 0 {
		merged.Ports.Probes = overlay.Ports.Probes
	}
	if overlay.Ports.LockDir != "" {
		merged.Ports.LockDir = overlay.Ports.LockDir
	}

	if overlay.LogLevel != "" {
		merged.LogLevel = overlay.LogLevel
	}

	return merged
}
