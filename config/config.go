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
	"fmt"
	"slices"
	"strings"

	"github.com/Fantom-foundation/mvcode/common"
	"github.com/Fantom-foundation/mvcode/framework"
	"github.com/spf13/viper"
)

const ErrInvalidConfig = common.ConstError("invalid configuration")

// EnvPrefix is the prefix of environment variables overriding options,
// e.g. MVCODE_NUM_SHARDS or MVCODE_LEVELDB_WRITE_BUFFER.
const EnvPrefix = "MVCODE"

// Backend names the kind of base module store.
type Backend string

const (
	MemoryBackend  Backend = "memory"
	LevelDbBackend Backend = "ldb"
)

// Config defines the options for setting up a versioned module storage
// together with its base module store.
type Config struct {
	// A descriptive name for this configuration. It has no effect except for
	// logging and debugging purposes.
	Name string `mapstructure:"name"`

	// The kind of store holding the modules outside of the current block.
	Backend Backend `mapstructure:"backend"`

	// The directory of the base store; required for the LevelDB backend.
	Directory string `mapstructure:"directory"`

	// The number of shards of the versioned storage key map.
	NumShards int `mapstructure:"num_shards"`

	// The address of the framework modules, in hex (e.g. 0x1).
	FrameworkAddress string `mapstructure:"framework_address"`

	// The names of the modules loaded into the framework cache.
	FrameworkModules []string `mapstructure:"framework_modules"`

	// The largest accepted module in bytes; zero disables the limit.
	MaxModuleSize int `mapstructure:"max_module_size"`

	// The number of modules cached in front of the base store; zero
	// disables the cache.
	CacheCapacity int `mapstructure:"cache_capacity"`

	LevelDb LevelDbConfig `mapstructure:"leveldb"`
}

// LevelDbConfig tunes the LevelDB instance of the LevelDB backend. Zero
// values select LevelDB defaults.
type LevelDbConfig struct {
	BlockCacheCapacity     int `mapstructure:"block_cache_capacity"`
	OpenFilesCacheCapacity int `mapstructure:"open_files_cache_capacity"`
	WriteBuffer            int `mapstructure:"write_buffer"`
}

var InMemoryConfig = Config{
	Name:             "InMemory",
	Backend:          MemoryBackend,
	NumShards:        64,
	FrameworkAddress: "0x1",
	FrameworkModules: framework.DefaultModuleNames,
	MaxModuleSize:    1 << 20,
}

var PersistentConfig = Config{
	Name:             "Persistent",
	Backend:          LevelDbBackend,
	NumShards:        64,
	FrameworkAddress: "0x1",
	FrameworkModules: framework.DefaultModuleNames,
	MaxModuleSize:    1 << 20,
	CacheCapacity:    1024,
	LevelDb: LevelDbConfig{
		BlockCacheCapacity:     16 << 20,
		OpenFilesCacheCapacity: 256,
		WriteBuffer:            8 << 20,
	},
}

var allConfigs = []Config{InMemoryConfig, PersistentConfig}

// GetConfigByName attempts to locate a configuration with the given name.
// The result does not share state with the predefined configurations.
func GetConfigByName(name string) (Config, bool) {
	for _, config := range allConfigs {
		if config.Name == name {
			return config.clone(), true
		}
	}
	return Config{}, false
}

// Default returns the in-memory configuration.
func Default() Config {
	return InMemoryConfig.clone()
}

func (c Config) clone() Config {
	c.FrameworkModules = slices.Clone(c.FrameworkModules)
	return c
}

// Validate checks the consistency of the configuration.
func (c Config) Validate() error {
	switch c.Backend {
	case MemoryBackend:
	case LevelDbBackend:
		if c.Directory == "" {
			return fmt.Errorf("%w: backend %s requires a directory", ErrInvalidConfig, c.Backend)
		}
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}
	if c.NumShards <= 0 {
		return fmt.Errorf("%w: number of shards must be positive, got %d", ErrInvalidConfig, c.NumShards)
	}
	if c.MaxModuleSize < 0 {
		return fmt.Errorf("%w: negative module size limit %d", ErrInvalidConfig, c.MaxModuleSize)
	}
	if c.CacheCapacity < 0 {
		return fmt.Errorf("%w: negative cache capacity %d", ErrInvalidConfig, c.CacheCapacity)
	}
	if _, err := c.FrameworkKeys(); err != nil {
		return err
	}
	if c.LevelDb.BlockCacheCapacity < 0 || c.LevelDb.OpenFilesCacheCapacity < 0 || c.LevelDb.WriteBuffer < 0 {
		return fmt.Errorf("%w: negative LevelDB option", ErrInvalidConfig)
	}
	return nil
}

// FrameworkKeys lists the keys of the modules to be loaded into the
// framework cache.
func (c Config) FrameworkKeys() ([]common.ModuleKey, error) {
	address, err := common.ParseAddress(c.FrameworkAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: framework address: %w", ErrInvalidConfig, err)
	}
	seen := make(map[string]bool, len(c.FrameworkModules))
	for _, name := range c.FrameworkModules {
		if name == "" {
			return nil, fmt.Errorf("%w: empty framework module name", ErrInvalidConfig)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: duplicate framework module %s", ErrInvalidConfig, name)
		}
		seen[name] = true
	}
	return framework.Keys(address, c.FrameworkModules), nil
}

// Load reads the configuration from the given file, starting from the
// defaults. Options may be overridden by environment variables. An empty
// path only applies the environment. The result is validated.
func Load(path string) (Config, error) {
	v := getViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	res := Default()
	if err := v.Unmarshal(&res); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := res.Validate(); err != nil {
		return Config{}, err
	}
	return res, nil
}

// getViper returns a viper instance knowing all options and their defaults.
func getViper() *viper.Viper {
	v := viper.New()
	defaults := Default()
	v.SetDefault("name", defaults.Name)
	v.SetDefault("backend", string(defaults.Backend))
	v.SetDefault("directory", defaults.Directory)
	v.SetDefault("num_shards", defaults.NumShards)
	v.SetDefault("framework_address", defaults.FrameworkAddress)
	v.SetDefault("framework_modules", defaults.FrameworkModules)
	v.SetDefault("max_module_size", defaults.MaxModuleSize)
	v.SetDefault("cache_capacity", defaults.CacheCapacity)
	v.SetDefault("leveldb.block_cache_capacity", defaults.LevelDb.BlockCacheCapacity)
	v.SetDefault("leveldb.open_files_cache_capacity", defaults.LevelDb.OpenFilesCacheCapacity)
	v.SetDefault("leveldb.write_buffer", defaults.LevelDb.WriteBuffer)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}
