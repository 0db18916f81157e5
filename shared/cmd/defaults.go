package cmd

import (
	"os"
	"path/filepath"
	"runtime"
)

// DefaultDataDir is the default data directory to use for the session
// database and other persistence requirements.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir.
	home := homeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Library", "Beamgate")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Local", "Beamgate")
		} else {
			return filepath.Join(home, ".beamgate")
		}
	}
	// As we cannot guess a stable location, return empty and handle later.
	return ""
}

func homeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return ""
}
