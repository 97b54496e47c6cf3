package config

import (
	"path/filepath"

	"github.com/adrg/xdg"
)

const appName = "talkback"

// StoragePaths contains paths for application state
type StoragePaths struct {
	DatabasePath string
	LogPath      string
}

// GetDefaultStoragePaths returns default storage paths using XDG base directories
func GetDefaultStoragePaths() StoragePaths {
	// history and logs are state, not configuration
	return StoragePaths{
		DatabasePath: filepath.Join(xdg.StateHome, appName, "talkback.db"),
		LogPath:      filepath.Join(xdg.StateHome, appName, "chat.log"),
	}
}

// GetConfigPaths returns the configuration file paths to check
func GetConfigPaths() ConfigPrecedence {
	return ConfigPrecedence{
		SystemConfig:      filepath.Join("/etc", appName, "config.json"),
		UserConfig:        filepath.Join(xdg.ConfigHome, appName, "config.json"),
		ProjectConfig:     filepath.Join("."+appName, "config.json"),
		LocalConfig:       filepath.Join("."+appName, "config.local.json"),
		EnvironmentPrefix: "TALKBACK",
	}
}
