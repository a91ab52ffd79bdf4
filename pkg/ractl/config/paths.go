package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

const (
	defaultConfigDirName = "ractl"
	defaultConfigFile    = "config.yaml"

	EnvConfig = "RACTL_CONFIG"
)

func DefaultConfigPath() string {
	if env := os.Getenv(EnvConfig); env != "" {
		return env
	}
	base, err := os.UserConfigDir()
	if err == nil {
		return filepath.Join(base, defaultConfigDirName, defaultConfigFile)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".ractl", defaultConfigFile)
}

// DefaultCacheDir is where token cache files live unless configured otherwise.
func DefaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err == nil {
		return filepath.Join(base, defaultConfigDirName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".ractl", "cache")
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return err
		}
	}
	return nil
}
