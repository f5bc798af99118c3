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
	"strings"

	"github.com/Fantom-foundation/mvcode/common"
	"github.com/urfave/cli/v2"
)

var importCommand = cli.Command{
	Action:    importModules,
	Name:      "import",
	Usage:     "adds module files to a module store",
	ArgsUsage: "<address>::<name>=<file> ...",
	Flags: []cli.Flag{
		&configFileFlag,
		&dbDirectoryFlag,
	},
}

func importModules(ctx *cli.Context) (err error) {
	if ctx.NArg() == 0 {
		return fmt.Errorf("no modules to import")
	}
	modules := map[common.ModuleKey][]byte{}
	for _, arg := range ctx.Args().Slice() {
		key, file, err := parseModuleArg(arg)
		if err != nil {
			return err
		}
		code, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read module %v: %w", key, err)
		}
		modules[key] = code
	}

	db, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer closeDatabase(db, &err)

	logger.Info("Importing modules", "count", len(modules))
	if err := db.ImportModules(modules); err != nil {
		return err
	}
	for key, code := range modules {
		fmt.Printf("%v: %d bytes, hash %v\n", key, len(code), common.Keccak256(code))
	}
	return nil
}

// parseModuleArg splits an argument of the form 0x42::token=token.mv.
func parseModuleArg(arg string) (common.ModuleKey, string, error) {
	name, file, found := strings.Cut(arg, "=")
	if !found || file == "" {
		return common.ModuleKey{}, "", fmt.Errorf("invalid module argument %q, expected <address>::<name>=<file>", arg)
	}
	key, err := common.ParseModuleKey(name)
	if err != nil {
		return common.ModuleKey{}, "", err
	}
	return key, file, nil
}
