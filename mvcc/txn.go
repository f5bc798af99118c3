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

// TxnIndex is the position of a transaction within the executed block.
type TxnIndex uint32

// ShiftedTxnIndex is a TxnIndex shifted by one. The value zero is reserved
// for the state of the base storage, before any transaction of the block
// was executed.
type ShiftedTxnIndex uint64

// ShiftTxnIndex converts a transaction position into its shifted form.
func ShiftTxnIndex(idx TxnIndex) ShiftedTxnIndex {
	return ShiftedTxnIndex(idx) + 1
}

// ZeroShiftedTxnIndex returns the position of the base storage.
func ZeroShiftedTxnIndex() ShiftedTxnIndex {
	return 0
}

// IsBaseStorage is true for the base storage position.
func (i ShiftedTxnIndex) IsBaseStorage() bool {
	return i == 0
}

// Version converts the position into the version of the write recorded at
// this position.
func (i ShiftedTxnIndex) Version() ModuleVersion {
	if i.IsBaseStorage() {
		return FromBaseStorage()
	}
	return FromTransaction(TxnIndex(i - 1))
}

func (i ShiftedTxnIndex) String() string {
	if i.IsBaseStorage() {
		return "base"
	}
	return fmt.Sprintf("txn-%d", i-1)
}
