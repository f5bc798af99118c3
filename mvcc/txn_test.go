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
	"math"
	"testing"
)

func TestShiftedTxnIndex_BaseStorageIsBelowAllTransactions(t *testing.T) {
	zero := ZeroShiftedTxnIndex()
	for _, idx := range []TxnIndex{0, 1, 5, math.MaxUint32} {
		if shifted := ShiftTxnIndex(idx); shifted <= zero {
			t.Errorf("shifted index of %d is not above base storage: %v", idx, shifted)
		}
	}
	if !zero.IsBaseStorage() {
		t.Errorf("zero index should be the base storage")
	}
	if ShiftTxnIndex(0).IsBaseStorage() {
		t.Errorf("shifted index of transaction 0 should not be the base storage")
	}
}

func TestShiftedTxnIndex_PreservesOrder(t *testing.T) {
	indexes := []TxnIndex{0, 1, 2, 100, math.MaxUint32 - 1, math.MaxUint32}
	for i := 1; i < len(indexes); i++ {
		if a, b := ShiftTxnIndex(indexes[i-1]), ShiftTxnIndex(indexes[i]); a >= b {
			t.Errorf("order not preserved for %d and %d: %v >= %v", indexes[i-1], indexes[i], a, b)
		}
	}
}

func TestShiftedTxnIndex_ConvertsToVersion(t *testing.T) {
	if got := ZeroShiftedTxnIndex().Version(); !got.IsBaseStorage() {
		t.Errorf("base position should produce the storage version, got %v", got)
	}
	for _, idx := range []TxnIndex{0, 7, math.MaxUint32} {
		got := ShiftTxnIndex(idx).Version()
		if want := FromTransaction(idx); got != want {
			t.Errorf("unexpected version, wanted %v, got %v", want, got)
		}
		if got.shifted() != ShiftTxnIndex(idx) {
			t.Errorf("version of %d does not convert back into its position", idx)
		}
	}
}

func TestShiftedTxnIndex_String(t *testing.T) {
	if got, want := ZeroShiftedTxnIndex().String(), "base"; got != want {
		t.Errorf("unexpected print, wanted %v, got %v", want, got)
	}
	if got, want := ShiftTxnIndex(3).String(), "txn-3"; got != want {
		t.Errorf("unexpected print, wanted %v, got %v", want, got)
	}
}
