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

import "fmt"

// ModuleVersion identifies the write a module read was served from: either
// a write of a transaction in the current block or the base storage.
type ModuleVersion struct {
	txn     TxnIndex
	fromTxn bool
}

// FromTransaction is the version written by the transaction at idx.
func FromTransaction(idx TxnIndex) ModuleVersion {
	return ModuleVersion{txn: idx, fromTxn: true}
}

// FromBaseStorage is the version fetched from the base storage.
func FromBaseStorage() ModuleVersion {
	return ModuleVersion{}
}

// IsBaseStorage is true if the version originates from the base storage.
func (v ModuleVersion) IsBaseStorage() bool {
	return !v.fromTxn
}

// TxnIndex returns the index of the writing transaction. The second result
// is false for the base storage version.
func (v ModuleVersion) TxnIndex() (TxnIndex, bool) {
	return v.txn, v.fromTxn
}

func (v ModuleVersion) shifted() ShiftedTxnIndex {
	if !v.fromTxn {
		return ZeroShiftedTxnIndex()
	}
	return ShiftTxnIndex(v.txn)
}

func (v ModuleVersion) String() string {
	if !v.fromTxn {
		return "storage"
	}
	return fmt.Sprintf("txn(%d)", v.txn)
}

// Entry is the interface of module entries managed by the versioned store.
// Entries are immutable once they are visible to other transactions.
type Entry interface {
	// IsVerified is true if the module passed verification.
	IsVerified() bool
}

// ModuleStorageRead is the result of a read: either a versioned entry or
// the information that the module does not exist. Pending writes are
// reported as non-existing modules.
type ModuleStorageRead[E Entry] struct {
	version ModuleVersion
	entry   E
	exists  bool
}

// Versioned creates a read result for an entry written at the given version.
func Versioned[E Entry](version ModuleVersion, entry E) ModuleStorageRead[E] {
	return ModuleStorageRead[E]{version: version, entry: entry, exists: true}
}

// DoesNotExist creates a read result for a missing module.
func DoesNotExist[E Entry]() ModuleStorageRead[E] {
	return ModuleStorageRead[E]{}
}

// StorageVersion creates a read result for an entry of the base storage.
func StorageVersion[E Entry](entry E) ModuleStorageRead[E] {
	return Versioned(FromBaseStorage(), entry)
}

// BeforeTxnIndex creates a read result for an entry written by the
// transaction preceding idx, or by the base storage if idx is 0.
func BeforeTxnIndex[E Entry](idx TxnIndex, entry E) ModuleStorageRead[E] {
	if idx == 0 {
		return StorageVersion(entry)
	}
	return Versioned(FromTransaction(idx-1), entry)
}

// Exists is false if the module does not exist or is pending.
func (r ModuleStorageRead[E]) Exists() bool {
	return r.exists
}

// Version returns the version of the read entry. The result is only
// meaningful if the entry exists.
func (r ModuleStorageRead[E]) Version() ModuleVersion {
	return r.version
}

// Entry returns the read entry or the zero value if it does not exist.
func (r ModuleStorageRead[E]) Entry() E {
	return r.entry
}

// IntoVersioned returns the version and the entry if the module exists.
func (r ModuleStorageRead[E]) IntoVersioned() (ModuleVersion, E, bool) {
	return r.version, r.entry, r.exists
}

// SameVersion is true if both reads refer to the same write. Entries are
// not compared, only where they were read from.
func (r ModuleStorageRead[E]) SameVersion(other ModuleStorageRead[E]) bool {
	if r.exists != other.exists {
		return false
	}
	return !r.exists || r.version == other.version
}

func (r ModuleStorageRead[E]) String() string {
	if !r.exists {
		return "DoesNotExist"
	}
	return fmt.Sprintf("Versioned(%v)", r.version)
}
