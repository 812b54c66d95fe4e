package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/brainless/csvexplorer/internal/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitConfig(t *testing.T) {
	testConfigPath := filepath.Join(t.TempDir(), ".csvexplorer_test")
	t.Setenv("CSVEXPLORER_CONFIG_PATH", testConfigPath)

	viper.Reset()

	// No config file exists, should create default
	err := config.InitConfig()
	require.NoError(t, err)
	assert.NotEmpty(t, config.AppConfig.StoragePath)
	assert.True(t, fileExists(filepath.Join(testConfigPath, "config.json")))
	assert.True(t, dirExists(config.AppConfig.StoragePath))
	assert.Equal(t, 1000, config.AppConfig.ChunkSize)
	assert.Equal(t, 200, config.AppConfig.SampleSize)
	assert.Equal(t, 30*time.Second, config.AppConfig.FetchTimeout)
	assert.Equal(t, config.DefaultRestrictedDomains, config.AppConfig.RestrictedDomains)
	assert.Equal(t, 4, config.AppConfig.Workers)
	assert.Equal(t, filepath.Join(testConfigPath, "history"), config.AppConfig.HistoryFile)
	assert.Equal(t, int64(256<<20), config.AppConfig.MaxBodyBytes)

	// Config file exists, should read it
	viper.Reset()
	customStoragePath := filepath.Join(testConfigPath, "custom_data")
	viper.Set("storage_path", customStoragePath)
	viper.Set("chunk_size", 250)
	require.NoError(t, viper.WriteConfigAs(filepath.Join(testConfigPath, "config.json")))

	viper.Reset()
	err = config.InitConfig()
	require.NoError(t, err)
	assert.Equal(t, customStoragePath, config.AppConfig.StoragePath)
	assert.Equal(t, 250, config.AppConfig.ChunkSize)
	assert.True(t, dirExists(customStoragePath))
}

func TestSetStoragePath(t *testing.T) {
	testConfigPath := filepath.Join(t.TempDir(), ".csvexplorer_test_set")
	t.Setenv("CSVEXPLORER_CONFIG_PATH", testConfigPath)
	viper.Reset()

	require.NoError(t, config.InitConfig())

	newPath := filepath.Join(testConfigPath, "new_storage")
	err := config.SetStoragePath(newPath)
	assert.NoError(t, err)

	viper.Reset()
	require.NoError(t, config.InitConfig())
	assert.Equal(t, newPath, config.AppConfig.StoragePath)
	assert.True(t, dirExists(newPath))
}

func TestValidate(t *testing.T) {
	valid := config.Config{
		StoragePath:  "/tmp/x",
		ChunkSize:    10,
		SampleSize:   10,
		FetchTimeout: time.Second,
		Workers:      1,
	}
	assert.NoError(t, valid.Validate())

	bad := valid
	bad.ChunkSize = 0
	assert.Error(t, bad.Validate())

	bad = valid
	bad.StoragePath = ""
	assert.Error(t, bad.Validate())

	bad = valid
	bad.FetchTimeout = 0
	assert.Error(t, bad.Validate())

	bad = valid
	bad.Workers = 0
	assert.Error(t, bad.Validate())
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return !os.IsNotExist(err) && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return !os.IsNotExist(err) && info.IsDir()
}
