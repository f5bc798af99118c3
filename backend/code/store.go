// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package code

import (
	"github.com/Fantom-foundation/mvcode/common"
)

//go:generate mockgen -source store.go -destination store_mocks.go -package code

// TableSpace divides a key-value storage into spaces by adding a prefix to
// the key.
type TableSpace byte

const (
	// ModuleCodeKey is the table space of module code.
	ModuleCodeKey TableSpace = 'm'
)

// ToDBKey converts a module key into its key within the table space.
func (t TableSpace) ToDBKey(key common.ModuleKey) []byte {
	res := make([]byte, 0, 1+common.AddressLength+len(key.Name))
	res = append(res, byte(t))
	return append(res, key.ToBytes()...)
}

// FromDBKey is the inverse of ToDBKey.
func (t TableSpace) FromDBKey(key []byte) (common.ModuleKey, error) {
	if len(key) == 0 || key[0] != byte(t) {
		return common.ModuleKey{}, common.ErrInvalidModuleKey
	}
	return common.ModuleKeyFromBytes(key[1:])
}

// Store is the durable base storage of module code. It is the source of
// modules not written by any transaction of the current block.
type Store interface {
	// Set stores the code of the given module, replacing previous code.
	Set(key common.ModuleKey, code []byte) error

	// SetAll stores the code of all given modules atomically.
	SetAll(modules map[common.ModuleKey][]byte) error

	// Get returns the code of the module or nil if it does not exist.
	Get(key common.ModuleKey) ([]byte, error)

	// GetModule is an alias of Get making stores usable as a module source.
	GetModule(key common.ModuleKey) ([]byte, error)

	// Has reports whether the module exists.
	Has(key common.ModuleKey) (bool, error)

	// Keys lists the keys of all stored modules in ascending order.
	Keys() ([]common.ModuleKey, error)

	common.MemoryFootprintProvider
	common.FlushAndCloser
}
