package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	StoragePath       string        `mapstructure:"storage_path"`
	ChunkSize         int           `mapstructure:"chunk_size"`
	SampleSize        int           `mapstructure:"sample_size"`
	ProxyURL          string        `mapstructure:"proxy_url"`
	FetchTimeout      time.Duration `mapstructure:"fetch_timeout"`
	RestrictedDomains []string      `mapstructure:"restricted_domains"`
	TrustedDomains    []string      `mapstructure:"trusted_domains"`
	ServerAddr        string        `mapstructure:"server_addr"`
	CacheEntries      int           `mapstructure:"cache_entries"`
	Workers           int           `mapstructure:"workers"`
	MaxJobs           int           `mapstructure:"max_jobs"`
	HistoryFile       string        `mapstructure:"history_file"`
	// MaxBodyBytes caps downloaded and proxied bodies.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
}

var AppConfig Config

// Domains that are fetched through the proxy instead of directly.
var DefaultRestrictedDomains = []string{
	"data.healthcare.gov",
	"data.cdc.gov",
	"healthdata.gov",
}

// Domains the proxy endpoint is willing to fetch.
var DefaultTrustedDomains = []string{
	"data.healthcare.gov",
	"data.cdc.gov",
	"healthdata.gov",
	"cms.gov",
	"github.com",
	"raw.githubusercontent.com",
}

func setDefaults(configPath string) {
	viper.SetDefault("storage_path", filepath.Join(configPath, "data"))
	viper.SetDefault("chunk_size", 1000)
	viper.SetDefault("sample_size", 200)
	viper.SetDefault("proxy_url", "http://localhost:3000")
	viper.SetDefault("fetch_timeout", "30s")
	viper.SetDefault("restricted_domains", DefaultRestrictedDomains)
	viper.SetDefault("trusted_domains", DefaultTrustedDomains)
	viper.SetDefault("server_addr", ":3000")
	viper.SetDefault("cache_entries", 256)
	viper.SetDefault("workers", 4)
	viper.SetDefault("max_jobs", 2)
	viper.SetDefault("history_file", filepath.Join(configPath, "history"))
	viper.SetDefault("max_body_bytes", 256<<20)
}

func InitConfig() error {
	configName := "config"
	configType := "json"
	configPath := os.Getenv("CSVEXPLORER_CONFIG_PATH")
	if configPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get user home directory: %w", err)
		}
		configPath = filepath.Join(homeDir, ".csvexplorer")
	}

	viper.AddConfigPath(configPath)
	viper.SetConfigName(configName)
	viper.SetConfigType(configType)

	viper.SetEnvPrefix("CSVEXPLORER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults(configPath)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found, create a default one
			if err := os.MkdirAll(configPath, 0755); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}
			if err := viper.WriteConfigAs(filepath.Join(configPath, fmt.Sprintf("%s.%s", configName, configType))); err != nil {
				return fmt.Errorf("failed to write default config file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := AppConfig.Validate(); err != nil {
		return err
	}

	// Ensure storage path exists
	if err := os.MkdirAll(AppConfig.StoragePath, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	return nil
}

// Validate rejects settings the importer and fetch client cannot work with.
func (c Config) Validate() error {
	if c.StoragePath == "" {
		return fmt.Errorf("storage_path must not be empty")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.SampleSize <= 0 {
		return fmt.Errorf("sample_size must be positive, got %d", c.SampleSize)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch_timeout must be positive, got %s", c.FetchTimeout)
	}
	return nil
}

func SetStoragePath(path string) error {
	viper.Set("storage_path", path)
	return viper.WriteConfig()
}
