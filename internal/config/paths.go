package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/neptunelabs/fsi-client/internal/constants"
)

// ConfigDirectory returns the platform-appropriate config directory.
//   - Windows: %APPDATA%\fsi-client
//   - Unix: ~/.config/fsi-client
func ConfigDirectory() string {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, constants.ConfigDir)
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", constants.ConfigDir)
	}
	return ""
}

// DefaultConfigPath returns the path of config.ini in ConfigDirectory.
func DefaultConfigPath() string {
	dir := ConfigDirectory()
	if dir == "" {
		return "config.ini"
	}
	return filepath.Join(dir, "config.ini")
}
