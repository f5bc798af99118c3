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
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/Fantom-foundation/mvcode/common"
	"github.com/Fantom-foundation/mvcode/common/interrupt"
	"github.com/Fantom-foundation/mvcode/module"
	"github.com/Fantom-foundation/mvcode/moduledb"
	"github.com/Fantom-foundation/mvcode/mvcc"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

var (
	numBlocksFlag = cli.IntFlag{
		Name:  "blocks",
		Usage: "the number of blocks to run",
		Value: 10,
	}
	numTxnsFlag = cli.IntFlag{
		Name:  "txns",
		Usage: "the number of transactions per block",
		Value: 100,
	}
	numModulesFlag = cli.IntFlag{
		Name:  "modules",
		Usage: "the number of user modules",
		Value: 50,
	}
	readsPerTxnFlag = cli.IntFlag{
		Name:  "reads",
		Usage: "the number of module loads per transaction",
		Value: 10,
	}
	publishRatioFlag = cli.IntFlag{
		Name:  "publish-every",
		Usage: "every n-th transaction publishes a module",
		Value: 10,
	}
	seedFlag = cli.Int64Flag{
		Name:  "seed",
		Usage: "the seed of the random workload",
		Value: 1,
	}
)

var simulateCommand = cli.Command{
	Action: simulate,
	Name:   "simulate",
	Usage:  "runs blocks of concurrent module loads and publishes",
	Flags: []cli.Flag{
		&configFileFlag,
		&dbDirectoryFlag,
		&cpuProfilingFlag,
		&numBlocksFlag,
		&numTxnsFlag,
		&numModulesFlag,
		&readsPerTxnFlag,
		&publishRatioFlag,
		&seedFlag,
	},
}

type workload struct {
	blocks       int
	txns         int
	modules      int
	reads        int
	publishEvery int
	seed         int64
}

func simulate(ctx *cli.Context) (err error) {
	profileTarget := ctx.String(cpuProfilingFlag.Name)
	if len(profileTarget) != 0 {
		if err := StartCPUProfile(profileTarget); err != nil {
			return err
		}
		defer StopCPUProfile()
	}

	db, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer closeDatabase(db, &err)

	load := workload{
		blocks:       ctx.Int(numBlocksFlag.Name),
		txns:         ctx.Int(numTxnsFlag.Name),
		modules:      ctx.Int(numModulesFlag.Name),
		reads:        ctx.Int(readsPerTxnFlag.Name),
		publishEvery: ctx.Int(publishRatioFlag.Name),
		seed:         ctx.Int64(seedFlag.Name),
	}
	start := time.Now()
	if err := runWorkload(interrupt.Register(ctx.Context), db, load); err != nil {
		return err
	}
	stats := db.Stats()
	fmt.Printf("Ran %d blocks in %v\n", load.blocks, time.Since(start))
	fmt.Printf("Framework hits: %d, base fetches: %d\n", stats.FrameworkHits, stats.BaseFetches)
	fmt.Printf("Memory footprint:\n%v", db.GetMemoryFootprint())
	return nil
}

func workloadKey(i int) common.ModuleKey {
	return common.NewModuleKey(common.Address{31: 0x42}, fmt.Sprintf("module_%d", i))
}

// runWorkload imports the user modules and runs the configured blocks. The
// transactions of each block run concurrently; every n-th transaction
// publishes a new version of a random module. Loads are checked against the
// expected serial order. The workload stops between blocks when the context
// is cancelled.
func runWorkload(ctx context.Context, db *moduledb.Database, load workload) error {
	if load.modules <= 0 || load.txns <= 0 || load.publishEvery <= 0 {
		return fmt.Errorf("invalid workload %+v", load)
	}
	initial := map[common.ModuleKey][]byte{}
	for i := 0; i < load.modules; i++ {
		initial[workloadKey(i)] = []byte(fmt.Sprintf("module_%d@genesis", i))
	}
	if err := db.ImportModules(initial); err != nil {
		return err
	}

	random := rand.New(rand.NewSource(load.seed))
	for block := 0; block < load.blocks; block++ {
		if interrupt.IsCancelled(ctx) {
			return interrupt.ErrCanceled
		}
		// the publishing transactions are fixed up front to know the
		// expected result of every load
		publishes := map[mvcc.TxnIndex]common.ModuleKey{}
		for txn := 0; txn < load.txns; txn += load.publishEvery {
			publishes[mvcc.TxnIndex(txn)] = workloadKey(random.Intn(load.modules))
		}
		reads := make([][]common.ModuleKey, load.txns)
		for txn := range reads {
			for i := 0; i < load.reads; i++ {
				reads[txn] = append(reads[txn], workloadKey(random.Intn(load.modules)))
			}
		}

		err := db.AddBlock(uint64(block), func(ctxt *moduledb.BlockContext) error {
			var group errgroup.Group
			for txn := 0; txn < load.txns; txn++ {
				txn := mvcc.TxnIndex(txn)
				group.Go(func() error {
					return runTransaction(ctxt, txn, reads[txn], publishes)
				})
			}
			return group.Wait()
		})
		if err != nil {
			return err
		}
		logger.Debug("Simulated block", "block", block, "publishes", len(publishes))
	}
	return nil
}

func runTransaction(
	ctxt *moduledb.BlockContext,
	txn mvcc.TxnIndex,
	reads []common.ModuleKey,
	publishes map[mvcc.TxnIndex]common.ModuleKey,
) error {
	for _, key := range reads {
		read, err := ctxt.LoadModule(txn, key)
		if err != nil {
			return err
		}
		if err := checkRead(txn, key, read, publishes); err != nil {
			return err
		}
	}
	if key, found := publishes[txn]; found {
		if err := ctxt.BeginPublish(txn, key); err != nil {
			return err
		}
		entry, err := ctxt.Publish(txn, key, []byte(fmt.Sprintf("%v@%d", key, txn)))
		if err != nil {
			return err
		}
		read, err := ctxt.LoadModule(txn+1, key)
		if err != nil {
			return err
		}
		if _, err := ctxt.MarkVerified(key, read); err != nil {
			return err
		}
		logger.Debug("Published module", "txn", txn, "key", key, "hash", entry.Hash())
	}
	return nil
}

// checkRead verifies that a load observed the base storage version or the
// version of an earlier transaction publishing the module. A missing module
// is only acceptable while an earlier publish is in progress.
func checkRead(txn mvcc.TxnIndex, key common.ModuleKey, read module.Read, publishes map[mvcc.TxnIndex]common.ModuleKey) error {
	version, _, exists := read.IntoVersioned()
	if !exists {
		if hasEarlierPublisher(publishes, txn, key) {
			return nil
		}
		return fmt.Errorf("transaction %d found no version of %v", txn, key)
	}
	publisher, fromTxn := version.TxnIndex()
	if !fromTxn {
		return nil
	}
	if publisher >= txn || publishes[publisher] != key {
		return fmt.Errorf("transaction %d read %v of %v", txn, read, key)
	}
	return nil
}

func hasEarlierPublisher(publishes map[mvcc.TxnIndex]common.ModuleKey, txn mvcc.TxnIndex, key common.ModuleKey) bool {
	for publisher, published := range publishes {
		if publisher < txn && published == key {
			return true
		}
	}
	return false
}
