// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package moduledb

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/Fantom-foundation/mvcode/common"
	"github.com/Fantom-foundation/mvcode/module"
	"github.com/Fantom-foundation/mvcode/mvcc"
)

// BlockContext provides access to the modules seen by the transactions of
// a block. All methods except Commit and Abort may be called concurrently
// by the transactions of the block.
type BlockContext struct {
	db     *Database
	block  uint64
	closed atomic.Bool
}

func (c *BlockContext) Block() uint64 {
	return c.block
}

// LoadModule returns the module as seen by the transaction at the given
// position, loading it from the base store on first access.
func (c *BlockContext) LoadModule(txn mvcc.TxnIndex, key common.ModuleKey) (module.Read, error) {
	if c.closed.Load() {
		return module.Read{}, ErrBlockClosed
	}
	return c.db.modules.GetOrInit(key, txn, c.db.fetcher.FetchFunc(key))
}

// GetModule is LoadModule without accessing the base store. Modules not
// loaded in this block before are reported as not existing.
func (c *BlockContext) GetModule(txn mvcc.TxnIndex, key common.ModuleKey) (module.Read, error) {
	if c.closed.Load() {
		return module.Read{}, ErrBlockClosed
	}
	return c.db.modules.Get(key, txn), nil
}

// BeginPublish announces that the transaction at the given position is
// about to publish the module. Later transactions observe the module as
// not existing until it is published or the write is aborted.
func (c *BlockContext) BeginPublish(txn mvcc.TxnIndex, key common.ModuleKey) error {
	if c.closed.Load() {
		return ErrBlockClosed
	}
	c.db.modules.WritePending(key, txn)
	return nil
}

// Publish completes a write announced by BeginPublish. The new module is
// unverified until MarkVerified is called for it.
func (c *BlockContext) Publish(txn mvcc.TxnIndex, key common.ModuleKey, code []byte) (*module.Entry, error) {
	if c.closed.Load() {
		return nil, ErrBlockClosed
	}
	entry := module.NewEntry(key, code)
	c.db.modules.WritePublished(key, txn, entry)
	return entry, nil
}

// AbortPublish removes the pending or published write of the module by the
// transaction at the given position, e.g. for re-execution.
func (c *BlockContext) AbortPublish(txn mvcc.TxnIndex, key common.ModuleKey) error {
	if c.closed.Load() {
		return ErrBlockClosed
	}
	c.db.modules.Remove(key, txn)
	return nil
}

// MarkVerified verifies the entry of the given read and replaces it in the
// storage if it was not verified before. It returns the verified entry.
// Entries verified already, including those of the framework cache, are
// returned unchanged.
func (c *BlockContext) MarkVerified(key common.ModuleKey, read module.Read) (*module.Entry, error) {
	if c.closed.Load() {
		return nil, ErrBlockClosed
	}
	version, entry, exists := read.IntoVersioned()
	if !exists {
		return nil, fmt.Errorf("can not verify missing module %v", key)
	}
	if entry.IsVerified() {
		return entry, nil
	}
	verified, err := c.db.fetcher.Verify(entry)
	if err != nil {
		return nil, err
	}
	c.db.modules.UpgradeIfUnverified(key, version, verified)
	return verified, nil
}

// Commit writes the final version of every module published in this block
// to the base store and ends the block. If any publish is still pending,
// nothing is written and the block ends with ErrUnfinishedPublish.
func (c *BlockContext) Commit() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrBlockClosed
	}
	defer c.end()

	keys := c.db.modules.Keys()
	var unfinished []common.ModuleKey
	for _, key := range keys {
		if c.db.modules.HasPendingWrites(key) {
			unfinished = append(unfinished, key)
		}
	}
	if len(unfinished) > 0 {
		logger.Error("Discarding block with pending module writes", "block", c.block, "modules", unfinished)
		return fmt.Errorf("%w: block %d, modules %v", ErrUnfinishedPublish, c.block, unfinished)
	}

	updates := map[common.ModuleKey][]byte{}
	for _, key := range keys {
		if _, found := c.db.framework.Get(key); found {
			logger.Warn("Ignoring republished framework module", "block", c.block, "key", key)
			continue
		}
		version, entry, exists := c.db.modules.Get(key, math.MaxUint32).IntoVersioned()
		if !exists || version.IsBaseStorage() {
			continue
		}
		updates[key] = entry.Code()
	}
	if len(updates) == 0 {
		return nil
	}
	if err := c.db.store.SetAll(updates); err != nil {
		return fmt.Errorf("failed to commit block %d: %w", c.block, err)
	}
	logger.Debug("Committed block", "block", c.block, "modules", len(updates))
	return c.db.store.Flush()
}

// Abort discards all modules published in this block and ends the block.
func (c *BlockContext) Abort() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrBlockClosed
	}
	c.end()
	return nil
}

func (c *BlockContext) end() {
	c.db.modules.Reset()
	c.db.blockInUse.Store(false)
}
