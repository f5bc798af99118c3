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

	"github.com/Fantom-foundation/mvcode/common"
	"github.com/urfave/cli/v2"
)

var getInfoCommand = cli.Command{
	Action: getInfo,
	Name:   "info",
	Usage:  "prints summary information about a module store",
	Flags: []cli.Flag{
		&configFileFlag,
		&dbDirectoryFlag,
	},
}

func getInfo(ctx *cli.Context) (err error) {
	db, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer closeDatabase(db, &err)

	keys, err := db.ModuleKeys()
	if err != nil {
		return err
	}
	total := 0
	for _, key := range keys {
		code, err := db.GetModule(key)
		if err != nil {
			return err
		}
		total += len(code)
		fmt.Printf("%v: %d bytes, hash %v\n", key, len(code), common.Keccak256(code))
	}
	fmt.Printf("Modules: %d, total size: %d bytes, framework modules: %d\n", len(keys), total, db.Framework().Len())
	fmt.Printf("Memory footprint:\n%v", db.GetMemoryFootprint())
	return nil
}
