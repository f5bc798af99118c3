// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package common

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// AddressLength is the number of bytes of an account address.
const AddressLength = 32

// Address identifies an account owning published modules.
type Address [AddressLength]byte

// Hash is a 32-byte keccak hash.
type Hash [32]byte

// FrameworkAddress is the address 0x1 hosting the standard library and the
// framework modules.
var FrameworkAddress = Address{AddressLength - 1: 1}

const (
	ErrInvalidAddress   = ConstError("invalid address")
	ErrInvalidModuleKey = ConstError("invalid module key")
)

// ParseAddress parses a hex address with 0x prefix. Short forms like 0x1
// are left-padded with zeros.
func ParseAddress(s string) (Address, error) {
	body, found := strings.CutPrefix(s, "0x")
	if !found || len(body) == 0 || len(body) > 2*AddressLength {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	if len(body)%2 == 1 {
		body = "0" + body
	}
	raw, err := hexutil.Decode("0x" + body)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, s, err)
	}
	var res Address
	copy(res[:], gethcommon.LeftPadBytes(raw, AddressLength))
	return res, nil
}

// String prints the address in its short form, without leading zeros.
func (a Address) String() string {
	trimmed := strings.TrimLeft(hex.EncodeToString(a[:]), "0")
	if trimmed == "" {
		trimmed = "0"
	}
	return "0x" + trimmed
}

func (h Hash) String() string {
	return fmt.Sprintf("0x%x", h[:])
}

// ModuleKey addresses a single code module: the owning account and the
// module name.
type ModuleKey struct {
	Address Address
	Name    string
}

// NewModuleKey creates a key for the given address and module name.
func NewModuleKey(address Address, name string) ModuleKey {
	return ModuleKey{Address: address, Name: name}
}

// ParseModuleKey parses keys of the form <address>::<name>, e.g. 0x1::coin.
func ParseModuleKey(s string) (ModuleKey, error) {
	addr, name, found := strings.Cut(s, "::")
	if !found || name == "" || strings.Contains(name, "::") {
		return ModuleKey{}, fmt.Errorf("%w: %q", ErrInvalidModuleKey, s)
	}
	address, err := ParseAddress(addr)
	if err != nil {
		return ModuleKey{}, fmt.Errorf("%w: %q: %w", ErrInvalidModuleKey, s, err)
	}
	return NewModuleKey(address, name), nil
}

func (k ModuleKey) String() string {
	return k.Address.String() + "::" + k.Name
}

// Hash computes a non-cryptographic hash of the key used for partitioning.
func (k ModuleKey) Hash() uint64 {
	digest := xxhash.New()
	digest.Write(k.Address[:])
	digest.WriteString(k.Name)
	return digest.Sum64()
}

// ToBytes serializes the key as the address followed by the module name.
func (k ModuleKey) ToBytes() []byte {
	res := make([]byte, 0, AddressLength+len(k.Name))
	res = append(res, k.Address[:]...)
	return append(res, k.Name...)
}

// ModuleKeyFromBytes is the inverse of ModuleKey.ToBytes.
func ModuleKeyFromBytes(data []byte) (ModuleKey, error) {
	if len(data) <= AddressLength {
		return ModuleKey{}, fmt.Errorf("%w: encoding of %d bytes is too short", ErrInvalidModuleKey, len(data))
	}
	var res ModuleKey
	copy(res.Address[:], data[:AddressLength])
	res.Name = string(data[AddressLength:])
	return res, nil
}

// CompareModuleKeys orders keys by address and then by name.
func CompareModuleKeys(a, b ModuleKey) int {
	if res := strings.Compare(string(a.Address[:]), string(b.Address[:])); res != 0 {
		return res
	}
	return strings.Compare(a.Name, b.Name)
}
