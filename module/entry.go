// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package module

import (
	"fmt"
	"unsafe"

	"github.com/Fantom-foundation/mvcode/common"
	"github.com/Fantom-foundation/mvcode/common/immutable"
	"github.com/Fantom-foundation/mvcode/mvcc"
)

// Entry is a loaded code module. Entries are immutable and shared between
// the versioned storage and all readers; marking an entry as verified
// creates a new instance.
type Entry struct {
	key      common.ModuleKey
	code     immutable.Bytes
	hash     common.Hash
	verified bool
}

var _ mvcc.Entry = (*Entry)(nil)

// NewEntry creates an unverified entry for the given module code.
func NewEntry(key common.ModuleKey, code []byte) *Entry {
	return &Entry{
		key:  key,
		code: immutable.NewBytes(code),
		hash: common.Keccak256(code),
	}
}

// Key returns the key the module is stored under.
func (e *Entry) Key() common.ModuleKey {
	return e.key
}

// Code returns a copy of the module's byte code.
func (e *Entry) Code() []byte {
	return e.code.ToBytes()
}

// Size returns the length of the module's byte code.
func (e *Entry) Size() int {
	return e.code.Len()
}

// Hash returns the keccak256 hash of the byte code.
func (e *Entry) Hash() common.Hash {
	return e.hash
}

// IsVerified is true if the module passed verification.
func (e *Entry) IsVerified() bool {
	return e.verified
}

// Verified returns a verified copy of this entry.
func (e *Entry) Verified() *Entry {
	res := *e
	res.verified = true
	return &res
}

func (e *Entry) String() string {
	return fmt.Sprintf("%v(size=%d, hash=%v, verified=%t)", e.key, e.code.Len(), e.hash, e.verified)
}

// GetMemoryFootprint provides the size of the entry including its code.
func (e *Entry) GetMemoryFootprint() *common.MemoryFootprint {
	return common.NewMemoryFootprint(unsafe.Sizeof(*e) + uintptr(len(e.key.Name)+e.code.Len()))
}

// Storage is the versioned module storage of a block.
type Storage = mvcc.VersionedModuleStorage[common.ModuleKey, *Entry]

// Read is the result of a read of the versioned module storage.
type Read = mvcc.ModuleStorageRead[*Entry]

// NewStorage creates a versioned storage for module entries. The framework
// cache may be nil.
func NewStorage(numShards int, framework mvcc.FrameworkCache[common.ModuleKey, *Entry]) *Storage {
	return mvcc.NewVersionedModuleStorage[common.ModuleKey, *Entry](numShards, framework)
}
