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

	"github.com/inconshreveable/log15"
	"github.com/urfave/cli/v2"
)

// Run with `go run ./tools/module-cli`

var logger = log15.New("module", "module-cli")

var verbosityFlag = cli.StringFlag{
	Name:  "verbosity",
	Usage: "log level (crit, error, warn, info, debug)",
	Value: "info",
}

func main() {
	app := &cli.App{
		Name:      "Module Store Toolbox",
		HelpName:  "modules",
		Usage:     "A set of utilities to manage and exercise versioned module stores",
		Copyright: "(c) 2024 Fantom Foundation",
		Flags: []cli.Flag{
			&verbosityFlag,
		},
		Before: setupLogging,
		Commands: []*cli.Command{
			&importCommand,
			&getInfoCommand,
			&frameworkCommand,
			&simulateCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging(ctx *cli.Context) error {
	level, err := log15.LvlFromString(ctx.String(verbosityFlag.Name))
	if err != nil {
		return err
	}
	log15.Root().SetHandler(log15.LvlFilterHandler(level, log15.StderrHandler))
	return nil
}
