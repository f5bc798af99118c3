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

	"github.com/Fantom-foundation/mvcode/common"
	"github.com/Fantom-foundation/mvcode/mvcc"
)

//go:generate mockgen -source fetcher.go -destination fetcher_mocks.go -package module

const (
	ErrEmptyModule    = common.ConstError("module code is empty")
	ErrModuleTooLarge = common.ConstError("module code exceeds size limit")
)

// Source provides the code of modules in the base storage.
type Source interface {
	// GetModule returns the code of the module or nil if it does not exist.
	GetModule(key common.ModuleKey) ([]byte, error)
}

// Verifier checks modules loaded from the base storage before they are
// used for execution.
type Verifier interface {
	Verify(key common.ModuleKey, code []byte) error
}

// SizeVerifier accepts non-empty modules up to a maximum size. A limit of
// zero disables the size check.
type SizeVerifier struct {
	MaxSize int
}

func (v SizeVerifier) Verify(key common.ModuleKey, code []byte) error {
	if len(code) == 0 {
		return fmt.Errorf("%w: %v", ErrEmptyModule, key)
	}
	if v.MaxSize > 0 && len(code) > v.MaxSize {
		return fmt.Errorf("%w: %v has %d bytes, limit is %d", ErrModuleTooLarge, key, len(code), v.MaxSize)
	}
	return nil
}

// Fetcher loads modules from a source and verifies them.
type Fetcher struct {
	source   Source
	verifier Verifier
}

// NewFetcher creates a fetcher reading from the given source.
func NewFetcher(source Source, verifier Verifier) *Fetcher {
	return &Fetcher{source: source, verifier: verifier}
}

// FetchAndVerify loads the module with the given key. If the module exists
// it is verified and returned as a verified entry. The second result is
// false if the module does not exist.
func (f *Fetcher) FetchAndVerify(key common.ModuleKey) (*Entry, bool, error) {
	code, err := f.source.GetModule(key)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load module %v: %w", key, err)
	}
	if code == nil {
		return nil, false, nil
	}
	if err := f.verifier.Verify(key, code); err != nil {
		return nil, false, fmt.Errorf("failed to verify module %v: %w", key, err)
	}
	return NewEntry(key, code).Verified(), true, nil
}

// FetchFunc binds the fetcher to a key for initializing the base storage
// version in a versioned storage.
func (f *Fetcher) FetchFunc(key common.ModuleKey) mvcc.FetchFunc[*Entry] {
	return func() (*Entry, bool, error) {
		return f.FetchAndVerify(key)
	}
}

// Verify checks the given entry and returns a verified copy of it.
func (f *Fetcher) Verify(entry *Entry) (*Entry, error) {
	if entry.IsVerified() {
		return entry, nil
	}
	if err := f.verifier.Verify(entry.Key(), entry.Code()); err != nil {
		return nil, fmt.Errorf("failed to verify module %v: %w", entry.Key(), err)
	}
	return entry.Verified(), nil
}
