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
	"errors"
	"fmt"

	"github.com/Fantom-foundation/mvcode/backend/code/ldb"
	"github.com/Fantom-foundation/mvcode/framework"
	"github.com/Fantom-foundation/mvcode/module"
	"github.com/urfave/cli/v2"
)

var frameworkCommand = cli.Command{
	Action: inspectFramework,
	Name:   "framework",
	Usage:  "loads the framework modules of a LevelDB module store into the process-wide cache",
	Flags: []cli.Flag{
		&configFileFlag,
		&dbDirectoryFlag,
	},
}

func inspectFramework(ctx *cli.Context) (err error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if cfg.Directory == "" {
		return fmt.Errorf("a module store directory is required")
	}
	keys, err := cfg.FrameworkKeys()
	if err != nil {
		return err
	}

	store, err := ldb.OpenStore(cfg.Directory, ldb.Options{
		BlockCacheCapacity:     cfg.LevelDb.BlockCacheCapacity,
		OpenFilesCacheCapacity: cfg.LevelDb.OpenFilesCacheCapacity,
		WriteBuffer:            cfg.LevelDb.WriteBuffer,
	})
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, store.Close())
	}()

	fetcher := module.NewFetcher(store, module.SizeVerifier{MaxSize: cfg.MaxModuleSize})
	if _, err := framework.Initialize(fetcher.FetchAndVerify, keys); err != nil {
		return err
	}

	cache := framework.Default()
	for _, key := range cache.Keys() {
		entry, _ := cache.Get(key)
		fmt.Printf("%v\n", entry)
	}
	fmt.Printf("Cached %d of %d framework modules\n", cache.Len(), len(keys))
	fmt.Printf("Memory footprint:\n%v", cache.GetMemoryFootprint())
	return nil
}
