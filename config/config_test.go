// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Fantom-foundation/mvcode/common"
	"github.com/Fantom-foundation/mvcode/framework"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_PredefinedConfigsAreValid(t *testing.T) {
	for _, config := range allConfigs {
		t.Run(config.Name, func(t *testing.T) {
			if config.Backend == LevelDbBackend {
				config.Directory = t.TempDir()
			}
			assert.NoError(t, config.Validate())
		})
	}
}

func TestConfig_GetConfigByName(t *testing.T) {
	config, found := GetConfigByName("Persistent")
	require.True(t, found)
	assert.Equal(t, LevelDbBackend, config.Backend)

	_, found = GetConfigByName("unknown")
	assert.False(t, found)
}

func TestConfig_DefaultDoesNotShareModuleList(t *testing.T) {
	config := Default()
	config.FrameworkModules[0] = "modified"
	assert.NotEqual(t, "modified", framework.DefaultModuleNames[0])
	assert.NotEqual(t, "modified", Default().FrameworkModules[0])
}

func TestConfig_FrameworkKeysUseConfiguredAddress(t *testing.T) {
	config := Default()
	config.FrameworkAddress = "0x2"
	config.FrameworkModules = []string{"coin", "code"}

	keys, err := config.FrameworkKeys()
	require.NoError(t, err)
	address := common.Address{31: 2}
	assert.Equal(t, []common.ModuleKey{
		common.NewModuleKey(address, "coin"),
		common.NewModuleKey(address, "code"),
	}, keys)
}

func TestConfig_ValidateDetectsInvalidOptions(t *testing.T) {
	tests := map[string]func(*Config){
		"unknown backend":      func(c *Config) { c.Backend = "file" },
		"missing directory":    func(c *Config) { c.Backend = LevelDbBackend },
		"zero shards":          func(c *Config) { c.NumShards = 0 },
		"negative size limit":  func(c *Config) { c.MaxModuleSize = -1 },
		"negative cache":       func(c *Config) { c.CacheCapacity = -1 },
		"invalid address":      func(c *Config) { c.FrameworkAddress = "one" },
		"empty module name":    func(c *Config) { c.FrameworkModules = []string{"coin", ""} },
		"duplicate module":     func(c *Config) { c.FrameworkModules = []string{"coin", "coin"} },
		"negative LevelDB opt": func(c *Config) { c.LevelDb.WriteBuffer = -1 },
	}
	for name, modify := range tests {
		t.Run(name, func(t *testing.T) {
			config := Default()
			modify(&config)
			assert.ErrorIs(t, config.Validate(), ErrInvalidConfig)
		})
	}
}

func TestLoad_ReadsFileOnTopOfDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
backend: ldb
directory: /tmp/modules
num_shards: 16
cache_capacity: 32
framework_modules:
  - coin
  - code
leveldb:
  write_buffer: 1024
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	config, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, LevelDbBackend, config.Backend)
	assert.Equal(t, "/tmp/modules", config.Directory)
	assert.Equal(t, 16, config.NumShards)
	assert.Equal(t, 32, config.CacheCapacity)
	assert.Equal(t, []string{"coin", "code"}, config.FrameworkModules)
	assert.Equal(t, 1024, config.LevelDb.WriteBuffer)
	assert.Equal(t, InMemoryConfig.FrameworkAddress, config.FrameworkAddress)
	assert.Equal(t, InMemoryConfig.MaxModuleSize, config.MaxModuleSize)
}

func TestLoad_EnvironmentOverridesOptions(t *testing.T) {
	t.Setenv(EnvPrefix+"_NUM_SHARDS", "8")
	t.Setenv(EnvPrefix+"_LEVELDB_WRITE_BUFFER", "2048")

	config, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8, config.NumShards)
	assert.Equal(t, 2048, config.LevelDb.WriteBuffer)
	assert.Equal(t, MemoryBackend, config.Backend)
}

func TestLoad_FailsOnMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_FailsOnInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("num_shards = -1\n"), 0600))

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
