package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync/atomic"
)

var instance atomic.Pointer[Config]

// Init loads the configuration for workingDir and makes it the global one.
func Init(workingDir string, debug bool) (*Config, error) {
	cfg, err := Load(workingDir, debug)
	if err != nil {
		return nil, err
	}
	instance.Store(cfg)
	return cfg, nil
}

// Get returns the global configuration, or nil before Init.
func Get() *Config {
	return instance.Load()
}

// Load merges the global and project configuration files, applies defaults
// and validates the result.
func Load(workingDir string, debug bool) (*Config, error) {
	cfg, err := loadFromConfigPaths(lookupConfigs(workingDir))
	if err != nil {
		return nil, err
	}
	cfg.setDefaults(workingDir)
	cfg.dataConfig = GlobalConfigData()

	if debug {
		cfg.Options.Debug = true
	}
	if v, ok := os.LookupEnv("VLIST_DEBUG"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Options.Debug = cfg.Options.Debug || b
		}
	}
	if !filepath.IsAbs(cfg.Options.DataDirectory) {
		cfg.Options.DataDirectory = filepath.Join(workingDir, cfg.Options.DataDirectory)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// lookupConfigs returns the candidate files from lowest to highest priority.
func lookupConfigs(cwd string) []string {
	return []string{
		GlobalConfig(),
		GlobalConfigData(),
		filepath.Join(cwd, appName+".json"),
		filepath.Join(cwd, "."+appName+".json"),
	}
}

func loadFromConfigPaths(paths []string) (*Config, error) {
	cfg := &Config{}
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		// later files override the fields they set
		if err := json.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		slog.Debug("Loaded config file", "path", path)
		cfg.paths = append(cfg.paths, path)
	}
	return cfg, nil
}

// GlobalConfig returns the global configuration file path for the
// application.
func GlobalConfig() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName, appName+".json")
	}
	if runtime.GOOS == "windows" {
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			localAppData = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Local")
		}
		return filepath.Join(localAppData, appName, appName+".json")
	}
	return filepath.Join(home(), ".config", appName, appName+".json")
}

// GlobalConfigData returns the path to the main data directory for the
// application. Fields written by SetConfigField land here.
func GlobalConfigData() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appName, appName+".json")
	}
	if runtime.GOOS == "windows" {
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			localAppData = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Local")
		}
		return filepath.Join(localAppData, appName, appName+".json")
	}
	return filepath.Join(home(), ".local", "share", appName, appName+".json")
}

func home() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		return os.Getenv("HOME")
	}
	return dir
}
