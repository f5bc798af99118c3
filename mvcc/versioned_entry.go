// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package mvcc

import (
	"cmp"
	"fmt"

	"github.com/Fantom-foundation/mvcode/common"
	"github.com/emirpasic/gods/maps/treemap"
)

const (
	ErrMissingHistory        = common.ConstError("no version history recorded for module")
	ErrMissingSlot           = common.ConstError("no write recorded at position")
	ErrPublishWithoutPending = common.ConstError("module published without pending write")
	ErrUpgradeOfMissingEntry = common.ConstError("upgrade of pending or non-existing module")
)

// slot is a single write in the history of a module. A slot that is not
// published is a pending write or, at the base storage position, a module
// missing in the base storage. Both read as non-existing.
type slot[E Entry] struct {
	entry     E
	published bool
}

// VersionedEntry is the history of writes to a single module, ordered by
// the position of the writing transaction. The base storage version, if
// fetched, is kept at the zero position.
//
// VersionedEntry is not synchronized; callers serialize mutations.
type VersionedEntry[E Entry] struct {
	versions *treemap.Map // ShiftedTxnIndex -> slot[E]
}

// NewVersionedEntry creates an empty history.
func NewVersionedEntry[E Entry]() *VersionedEntry[E] {
	return &VersionedEntry[E]{
		versions: treemap.NewWith(compareShiftedTxnIndex),
	}
}

func compareShiftedTxnIndex(a, b interface{}) int {
	return cmp.Compare(a.(ShiftedTxnIndex), b.(ShiftedTxnIndex))
}

// Get returns the latest write visible to the transaction at idx, which is
// the write with the greatest position strictly below idx. A transaction
// never sees its own write. The second result is false if no such write is
// recorded, not even a base storage version.
func (e *VersionedEntry[E]) Get(idx TxnIndex) (ModuleStorageRead[E], bool) {
	key, value := e.versions.Floor(ShiftTxnIndex(idx) - 1)
	if key == nil {
		return DoesNotExist[E](), false
	}
	s := value.(slot[E])
	if !s.published {
		return DoesNotExist[E](), true
	}
	return Versioned(key.(ShiftedTxnIndex).Version(), s.entry), true
}

// InsertPending records a write of the transaction at idx that has not been
// published yet. Any previous write at idx is overwritten. Until the write
// is published or removed, all later transactions observe a non-existing
// module.
func (e *VersionedEntry[E]) InsertPending(idx TxnIndex) {
	e.versions.Put(ShiftTxnIndex(idx), slot[E]{})
}

// InsertPublished publishes the entry at idx. A pending write must have been
// recorded at idx before.
func (e *VersionedEntry[E]) InsertPublished(idx TxnIndex, entry E) {
	pos := ShiftTxnIndex(idx)
	prev, found := e.versions.Get(pos)
	if !found || prev.(slot[E]).published {
		panic(fmt.Errorf("%w: %v", ErrPublishWithoutPending, pos))
	}
	e.versions.Put(pos, slot[E]{entry: entry, published: true})
}

// InsertBase records the base storage version. If exists is false, the
// module is recorded as missing in the base storage.
func (e *VersionedEntry[E]) InsertBase(entry E, exists bool) {
	e.versions.Put(ZeroShiftedTxnIndex(), slot[E]{entry: entry, published: exists})
}

// Remove deletes the write of the transaction at idx. The write must exist.
func (e *VersionedEntry[E]) Remove(idx TxnIndex) {
	pos := ShiftTxnIndex(idx)
	if _, found := e.versions.Get(pos); !found {
		panic(fmt.Errorf("%w: %v", ErrMissingSlot, pos))
	}
	e.versions.Remove(pos)
}

// UpgradeIfUnverified replaces the entry written at the given version by the
// given entry unless the present one is already verified. The version must
// refer to a published write or an existing base storage module. It returns
// true if the entry was replaced.
func (e *VersionedEntry[E]) UpgradeIfUnverified(version ModuleVersion, entry E) bool {
	pos := version.shifted()
	prev, found := e.versions.Get(pos)
	if !found {
		panic(fmt.Errorf("%w: %v", ErrMissingSlot, pos))
	}
	s := prev.(slot[E])
	if !s.published {
		panic(fmt.Errorf("%w: %v", ErrUpgradeOfMissingEntry, pos))
	}
	if s.entry.IsVerified() {
		return false
	}
	e.versions.Put(pos, slot[E]{entry: entry, published: true})
	return true
}

// HasPending is true if a transaction recorded a write that was neither
// published nor removed. A module missing in the base storage is not a
// pending write.
func (e *VersionedEntry[E]) HasPending() bool {
	it := e.versions.Iterator()
	for it.Next() {
		if it.Key().(ShiftedTxnIndex).IsBaseStorage() {
			continue
		}
		if !it.Value().(slot[E]).published {
			return true
		}
	}
	return false
}

// Len returns the number of recorded writes, including the base version.
func (e *VersionedEntry[E]) Len() int {
	return e.versions.Size()
}
