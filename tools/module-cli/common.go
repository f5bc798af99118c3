// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package main

import (
	"fmt"
	"os"
	"runtime/pprof"

	"github.com/Fantom-foundation/mvcode/config"
	"github.com/Fantom-foundation/mvcode/moduledb"
	"github.com/urfave/cli/v2"
)

var (
	configFileFlag = cli.StringFlag{
		Name:  "config",
		Usage: "a configuration file (yaml, toml or json)",
	}
	dbDirectoryFlag = cli.StringFlag{
		Name:  "dir",
		Usage: "the directory of the LevelDB module store",
	}
	cpuProfilingFlag = cli.StringFlag{
		Name:  "cpu-profile",
		Usage: "enable the recording of a CPU profile",
	}
)

// loadConfig reads the configuration file named by the config flag. If a
// directory is given, the LevelDB backend in that directory is used.
func loadConfig(ctx *cli.Context) (config.Config, error) {
	cfg, err := config.Load(ctx.String(configFileFlag.Name))
	if err != nil {
		return config.Config{}, err
	}
	if dir := ctx.String(dbDirectoryFlag.Name); dir != "" {
		cfg.Backend = config.LevelDbBackend
		cfg.Directory = dir
	}
	return cfg, cfg.Validate()
}

// openDatabase opens the module database described by the command line.
func openDatabase(ctx *cli.Context) (*moduledb.Database, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info("Opening module database", "backend", cfg.Backend, "dir", cfg.Directory)
	return moduledb.Open(cfg)
}

// closeDatabase closes the database, keeping the first error encountered.
func closeDatabase(db *moduledb.Database, err *error) {
	logger.Info("Closing module database")
	if closeError := db.Close(); closeError != nil {
		if *err == nil {
			*err = closeError
		} else {
			logger.Error("Failure closing database", "err", closeError)
		}
	}
}

func StartCPUProfile(profileName string) error {
	f, err := os.Create(profileName)
	if err != nil {
		return fmt.Errorf("could not create CPU profile: %s", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		return fmt.Errorf("could not start CPU profile: %s", err)
	}
	return nil
}

func StopCPUProfile() {
	pprof.StopCPUProfile()
}
