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
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/Fantom-foundation/mvcode/common"
	"github.com/Fantom-foundation/mvcode/config"
	"github.com/Fantom-foundation/mvcode/module"
	"github.com/Fantom-foundation/mvcode/mvcc"
	"golang.org/x/sync/errgroup"
)

var (
	coin   = common.NewModuleKey(common.FrameworkAddress, "coin")
	token  = common.NewModuleKey(common.Address{31: 0x42}, "token")
	market = common.NewModuleKey(common.Address{31: 0x42}, "market")
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.NumShards = 4
	cfg.FrameworkModules = []string{"coin"}
	return cfg
}

func openTestDatabase(t *testing.T, cfg config.Config) *Database {
	t.Helper()
	db, err := Open(cfg)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close database: %v", err)
		}
	})
	return db
}

func mustLoad(t *testing.T, ctxt *BlockContext, txn mvcc.TxnIndex, key common.ModuleKey) module.Read {
	t.Helper()
	read, err := ctxt.LoadModule(txn, key)
	if err != nil {
		t.Fatalf("failed to load %v at %d: %v", key, txn, err)
	}
	return read
}

func expectCode(t *testing.T, read module.Read, want []byte) {
	t.Helper()
	if !read.Exists() {
		t.Fatalf("module should exist, got %v", read)
	}
	if got := read.Entry().Code(); !bytes.Equal(got, want) {
		t.Errorf("unexpected code, wanted %x, got %x", want, got)
	}
}

func TestDatabase_OpenRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.NumShards = 0
	if _, err := Open(cfg); !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("expected invalid config error, got %v", err)
	}
}

func TestDatabase_TransactionsSeeModulesOfEarlierTransactions(t *testing.T) {
	db := openTestDatabase(t, testConfig())
	if err := db.ImportModules(map[common.ModuleKey][]byte{token: {1}}); err != nil {
		t.Fatalf("failed to import modules: %v", err)
	}

	ctxt, err := db.BeginBlock(1)
	if err != nil {
		t.Fatalf("failed to begin block: %v", err)
	}
	expectCode(t, mustLoad(t, ctxt, 2, token), []byte{1})

	if err := ctxt.BeginPublish(3, token); err != nil {
		t.Fatalf("failed to begin publish: %v", err)
	}
	if read := mustLoad(t, ctxt, 5, token); read.Exists() {
		t.Errorf("pending module should not exist, got %v", read)
	}
	if _, err := ctxt.Publish(3, token, []byte{2}); err != nil {
		t.Fatalf("failed to publish: %v", err)
	}

	expectCode(t, mustLoad(t, ctxt, 3, token), []byte{1})
	read := mustLoad(t, ctxt, 5, token)
	expectCode(t, read, []byte{2})
	if read.Version() != mvcc.FromTransaction(3) {
		t.Errorf("unexpected version %v", read.Version())
	}
	if read, _ := ctxt.GetModule(5, market); read.Exists() {
		t.Errorf("unknown module should not exist")
	}

	if err := ctxt.Commit(); err != nil {
		t.Fatalf("failed to commit: %v", err)
	}
	if code, _ := db.GetModule(token); !bytes.Equal(code, []byte{2}) {
		t.Errorf("published module not committed, got %x", code)
	}
}

func TestDatabase_CommittedModulesAreBaseOfNextBlock(t *testing.T) {
	db := openTestDatabase(t, testConfig())

	err := db.AddBlock(1, func(ctxt *BlockContext) error {
		if err := ctxt.BeginPublish(0, market); err != nil {
			return err
		}
		_, err := ctxt.Publish(0, market, []byte{7})
		return err
	})
	if err != nil {
		t.Fatalf("failed to add block: %v", err)
	}

	err = db.AddBlock(2, func(ctxt *BlockContext) error {
		read, err := ctxt.LoadModule(0, market)
		if err != nil {
			return err
		}
		if !read.Exists() || !read.Version().IsBaseStorage() {
			return fmt.Errorf("unexpected read %v", read)
		}
		if !read.Entry().IsVerified() {
			return fmt.Errorf("modules from base storage should be verified")
		}
		return nil
	})
	if err != nil {
		t.Errorf("failed to add block: %v", err)
	}
}

func TestDatabase_FailedBlockIsAborted(t *testing.T) {
	db := openTestDatabase(t, testConfig())
	injectedErr := errors.New("injected error")

	err := db.AddBlock(1, func(ctxt *BlockContext) error {
		if err := ctxt.BeginPublish(0, market); err != nil {
			return err
		}
		if _, err := ctxt.Publish(0, market, []byte{7}); err != nil {
			return err
		}
		return injectedErr
	})
	if !errors.Is(err, injectedErr) {
		t.Errorf("expected injected error, got %v", err)
	}
	if code, _ := db.GetModule(market); code != nil {
		t.Errorf("aborted block should not publish modules, got %x", code)
	}
	if keys := db.modules.Keys(); len(keys) != 0 {
		t.Errorf("aborted block should reset versioned storage, got %v", keys)
	}
}

func TestDatabase_OnlyOneBlockAtATime(t *testing.T) {
	db := openTestDatabase(t, testConfig())
	ctxt, err := db.BeginBlock(1)
	if err != nil {
		t.Fatalf("failed to begin block: %v", err)
	}
	if _, err := db.BeginBlock(2); !errors.Is(err, ErrBlockInProgress) {
		t.Errorf("expected block in progress error, got %v", err)
	}
	if err := db.ImportModules(map[common.ModuleKey][]byte{token: {1}}); !errors.Is(err, ErrBlockInProgress) {
		t.Errorf("expected block in progress error, got %v", err)
	}
	if err := db.Flush(); err == nil {
		t.Errorf("flush should fail while a block is open")
	}
	if err := ctxt.Abort(); err != nil {
		t.Fatalf("failed to abort block: %v", err)
	}
	ctxt, err = db.BeginBlock(2)
	if err != nil {
		t.Fatalf("failed to begin block after abort: %v", err)
	}
	if err := ctxt.Commit(); err != nil {
		t.Errorf("failed to commit empty block: %v", err)
	}
}

func TestBlockContext_ClosedContextRejectsAccess(t *testing.T) {
	db := openTestDatabase(t, testConfig())
	ctxt, err := db.BeginBlock(1)
	if err != nil {
		t.Fatalf("failed to begin block: %v", err)
	}
	if err := ctxt.Commit(); err != nil {
		t.Fatalf("failed to commit: %v", err)
	}

	if _, err := ctxt.LoadModule(0, token); !errors.Is(err, ErrBlockClosed) {
		t.Errorf("expected closed error, got %v", err)
	}
	if _, err := ctxt.GetModule(0, token); !errors.Is(err, ErrBlockClosed) {
		t.Errorf("expected closed error, got %v", err)
	}
	if err := ctxt.BeginPublish(0, token); !errors.Is(err, ErrBlockClosed) {
		t.Errorf("expected closed error, got %v", err)
	}
	if _, err := ctxt.Publish(0, token, []byte{1}); !errors.Is(err, ErrBlockClosed) {
		t.Errorf("expected closed error, got %v", err)
	}
	if err := ctxt.AbortPublish(0, token); !errors.Is(err, ErrBlockClosed) {
		t.Errorf("expected closed error, got %v", err)
	}
	if _, err := ctxt.MarkVerified(token, module.Read{}); !errors.Is(err, ErrBlockClosed) {
		t.Errorf("expected closed error, got %v", err)
	}
	if err := ctxt.Commit(); !errors.Is(err, ErrBlockClosed) {
		t.Errorf("expected closed error, got %v", err)
	}
	if err := ctxt.Abort(); !errors.Is(err, ErrBlockClosed) {
		t.Errorf("expected closed error, got %v", err)
	}
}

func TestBlockContext_AbortPublishRestoresEarlierVersion(t *testing.T) {
	db := openTestDatabase(t, testConfig())
	if err := db.ImportModules(map[common.ModuleKey][]byte{token: {1}}); err != nil {
		t.Fatalf("failed to import modules: %v", err)
	}
	err := db.AddBlock(1, func(ctxt *BlockContext) error {
		mustLoad(t, ctxt, 0, token)
		if err := ctxt.BeginPublish(2, token); err != nil {
			return err
		}
		if _, err := ctxt.Publish(2, token, []byte{2}); err != nil {
			return err
		}
		expectCode(t, mustLoad(t, ctxt, 4, token), []byte{2})
		if err := ctxt.AbortPublish(2, token); err != nil {
			return err
		}
		expectCode(t, mustLoad(t, ctxt, 4, token), []byte{1})
		return nil
	})
	if err != nil {
		t.Fatalf("failed to add block: %v", err)
	}
	if code, _ := db.GetModule(token); !bytes.Equal(code, []byte{1}) {
		t.Errorf("aborted write should not be committed, got %x", code)
	}
}

func TestBlockContext_MarkVerifiedUpgradesPublishedModule(t *testing.T) {
	db := openTestDatabase(t, testConfig())
	ctxt, err := db.BeginBlock(1)
	if err != nil {
		t.Fatalf("failed to begin block: %v", err)
	}
	defer ctxt.Abort()

	if err := ctxt.BeginPublish(1, market); err != nil {
		t.Fatalf("failed to begin publish: %v", err)
	}
	published, err := ctxt.Publish(1, market, []byte{3})
	if err != nil {
		t.Fatalf("failed to publish: %v", err)
	}
	if published.IsVerified() {
		t.Fatalf("published modules should not be verified")
	}

	read := mustLoad(t, ctxt, 2, market)
	verified, err := ctxt.MarkVerified(market, read)
	if err != nil {
		t.Fatalf("failed to verify: %v", err)
	}
	if !verified.IsVerified() || verified.Hash() != published.Hash() {
		t.Errorf("unexpected verified entry %v", verified)
	}
	read = mustLoad(t, ctxt, 2, market)
	if read.Entry() != verified || read.Version() != mvcc.FromTransaction(1) {
		t.Errorf("storage should hold the verified entry, got %v", read)
	}

	if _, err := ctxt.MarkVerified(token, mustLoad(t, ctxt, 2, token)); err == nil {
		t.Errorf("verifying a missing module should fail")
	}
}

func TestBlockContext_MarkVerifiedReportsRejectedModules(t *testing.T) {
	db := openTestDatabase(t, testConfig())
	ctxt, err := db.BeginBlock(1)
	if err != nil {
		t.Fatalf("failed to begin block: %v", err)
	}
	defer ctxt.Abort()

	if err := ctxt.BeginPublish(1, market); err != nil {
		t.Fatalf("failed to begin publish: %v", err)
	}
	if _, err := ctxt.Publish(1, market, nil); err != nil {
		t.Fatalf("failed to publish: %v", err)
	}
	if _, err := ctxt.MarkVerified(market, mustLoad(t, ctxt, 2, market)); !errors.Is(err, module.ErrEmptyModule) {
		t.Errorf("expected empty module error, got %v", err)
	}
	if mustLoad(t, ctxt, 2, market).Entry().IsVerified() {
		t.Errorf("rejected module should stay unverified")
	}
}

func TestBlockContext_MarkVerifiedAcceptsFrameworkModules(t *testing.T) {
	cfg := testConfig()
	cfg.Backend = config.LevelDbBackend
	cfg.Directory = t.TempDir()

	db, err := Open(cfg)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.ImportModules(map[common.ModuleKey][]byte{coin: {1}}); err != nil {
		t.Fatalf("failed to import modules: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("failed to close database: %v", err)
	}

	db = openTestDatabase(t, cfg)
	ctxt, err := db.BeginBlock(1)
	if err != nil {
		t.Fatalf("failed to begin block: %v", err)
	}
	defer ctxt.Abort()

	read := mustLoad(t, ctxt, 3, coin)
	verified, err := ctxt.MarkVerified(coin, read)
	if err != nil {
		t.Fatalf("failed to verify framework module: %v", err)
	}
	if verified != read.Entry() || !verified.IsVerified() {
		t.Errorf("cached framework module should be returned unchanged, got %v", verified)
	}
	if keys := db.modules.Keys(); len(keys) != 0 {
		t.Errorf("framework modules should not be recorded in the versioned storage, got %v", keys)
	}
}

func TestBlockContext_CommitRejectsUnfinishedPublish(t *testing.T) {
	db := openTestDatabase(t, testConfig())
	ctxt, err := db.BeginBlock(1)
	if err != nil {
		t.Fatalf("failed to begin block: %v", err)
	}
	if err := ctxt.BeginPublish(3, token); err != nil {
		t.Fatalf("failed to begin publish: %v", err)
	}
	if _, err := ctxt.Publish(3, token, []byte{7}); err != nil {
		t.Fatalf("failed to publish: %v", err)
	}
	if err := ctxt.BeginPublish(7, token); err != nil {
		t.Fatalf("failed to begin publish: %v", err)
	}

	if err := ctxt.Commit(); !errors.Is(err, ErrUnfinishedPublish) {
		t.Fatalf("expected unfinished publish error, got %v", err)
	}
	if code, _ := db.GetModule(token); code != nil {
		t.Errorf("block with unfinished publish should not be committed, got %x", code)
	}
	if keys := db.modules.Keys(); len(keys) != 0 {
		t.Errorf("failed commit should reset versioned storage, got %v", keys)
	}

	// the failed block does not block later ones
	err = db.AddBlock(2, func(ctxt *BlockContext) error {
		if err := ctxt.BeginPublish(3, token); err != nil {
			return err
		}
		_, err := ctxt.Publish(3, token, []byte{8})
		return err
	})
	if err != nil {
		t.Fatalf("failed to add block: %v", err)
	}
	if code, _ := db.GetModule(token); !bytes.Equal(code, []byte{8}) {
		t.Errorf("unexpected committed module %x", code)
	}
}

func TestDatabase_FailedAbortIsReported(t *testing.T) {
	db := openTestDatabase(t, testConfig())
	injectedErr := errors.New("injected error")

	err := db.AddBlock(1, func(ctxt *BlockContext) error {
		if err := ctxt.Abort(); err != nil {
			return err
		}
		return injectedErr
	})
	if !errors.Is(err, injectedErr) {
		t.Errorf("expected injected error, got %v", err)
	}
	if !errors.Is(err, ErrBlockClosed) {
		t.Errorf("expected error of repeated abort, got %v", err)
	}
}

func TestDatabase_ImportRejectsInvalidModules(t *testing.T) {
	cfg := testConfig()
	cfg.MaxModuleSize = 2
	db := openTestDatabase(t, cfg)

	if err := db.ImportModules(map[common.ModuleKey][]byte{token: {}}); !errors.Is(err, module.ErrEmptyModule) {
		t.Errorf("expected empty module error, got %v", err)
	}
	if err := db.ImportModules(map[common.ModuleKey][]byte{token: {1, 2, 3}}); !errors.Is(err, module.ErrModuleTooLarge) {
		t.Errorf("expected module too large error, got %v", err)
	}
	if keys, _ := db.ModuleKeys(); len(keys) != 0 {
		t.Errorf("rejected modules should not be imported, got %v", keys)
	}
}

func TestDatabase_FrameworkModulesAreLoadedOnOpen(t *testing.T) {
	cfg := testConfig()
	cfg.Backend = config.LevelDbBackend
	cfg.Directory = t.TempDir()
	cfg.CacheCapacity = 16

	db, err := Open(cfg)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.ImportModules(map[common.ModuleKey][]byte{coin: {1}}); err != nil {
		t.Fatalf("failed to import modules: %v", err)
	}
	if db.Framework().Len() != 0 {
		t.Errorf("imported modules should not change the framework cache")
	}
	if err := db.Close(); err != nil {
		t.Fatalf("failed to close database: %v", err)
	}

	db = openTestDatabase(t, cfg)
	if db.Framework().Len() != 1 {
		t.Fatalf("framework module should be cached after reopening")
	}

	err = db.AddBlock(1, func(ctxt *BlockContext) error {
		for _, txn := range []mvcc.TxnIndex{0, 5, 9} {
			read := mustLoad(t, ctxt, txn, coin)
			expectCode(t, read, []byte{1})
			if !read.Version().IsBaseStorage() {
				t.Errorf("framework module should be read from base storage")
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to add block: %v", err)
	}
	if stats := db.Stats(); stats.FrameworkHits != 3 || stats.BaseFetches != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestDatabase_RepublishedFrameworkModulesAreNotCommitted(t *testing.T) {
	cfg := testConfig()
	cfg.Backend = config.LevelDbBackend
	cfg.Directory = t.TempDir()

	db, err := Open(cfg)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.ImportModules(map[common.ModuleKey][]byte{coin: {1}}); err != nil {
		t.Fatalf("failed to import modules: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("failed to close database: %v", err)
	}

	db = openTestDatabase(t, cfg)
	err = db.AddBlock(1, func(ctxt *BlockContext) error {
		if err := ctxt.BeginPublish(0, coin); err != nil {
			return err
		}
		_, err := ctxt.Publish(0, coin, []byte{2})
		return err
	})
	if err != nil {
		t.Fatalf("failed to add block: %v", err)
	}
	if code, _ := db.GetModule(coin); !bytes.Equal(code, []byte{1}) {
		t.Errorf("framework module should not be replaced, got %x", code)
	}
}

func TestDatabase_ConcurrentTransactions(t *testing.T) {
	db := openTestDatabase(t, testConfig())
	const numTxns = 32

	keys := make([]common.ModuleKey, numTxns)
	for i := range keys {
		keys[i] = common.NewModuleKey(common.Address{31: 0x42}, fmt.Sprintf("m%d", i))
	}

	err := db.AddBlock(1, func(ctxt *BlockContext) error {
		var group errgroup.Group
		for i := 0; i < numTxns; i++ {
			txn := mvcc.TxnIndex(i)
			group.Go(func() error {
				// every transaction reads all modules and publishes its own
				for _, key := range keys {
					if _, err := ctxt.LoadModule(txn, key); err != nil {
						return err
					}
				}
				if err := ctxt.BeginPublish(txn, keys[txn]); err != nil {
					return err
				}
				_, err := ctxt.Publish(txn, keys[txn], []byte{byte(txn) + 1})
				return err
			})
		}
		return group.Wait()
	})
	if err != nil {
		t.Fatalf("failed to add block: %v", err)
	}

	for i, key := range keys {
		if code, _ := db.GetModule(key); !bytes.Equal(code, []byte{byte(i) + 1}) {
			t.Errorf("unexpected code of %v: %x", key, code)
		}
	}
	if stats := db.Stats(); stats.BaseFetches != numTxns {
		t.Errorf("each module should be fetched once, got %d fetches", stats.BaseFetches)
	}
}

func TestDatabase_MemoryFootprint(t *testing.T) {
	db := openTestDatabase(t, testConfig())
	mf := db.GetMemoryFootprint()
	for _, name := range []string{"store", "framework", "modules"} {
		if mf.GetChild(name) == nil {
			t.Errorf("missing memory footprint of %s", name)
		}
	}
}
