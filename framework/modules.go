// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package framework

import "github.com/Fantom-foundation/mvcode/common"

// DefaultModuleNames lists the modules of the Move standard library, the
// Aptos standard library and the framework published at address 0x1. These
// are read by virtually every transaction and are not expected to change
// within a block.
var DefaultModuleNames = []string{
	// Move stdlib.
	"vector",
	"signer",
	"error",
	"hash",
	"features",
	"bcs",
	"option",
	"string",
	"fixed_point32",

	// Aptos stdlib.
	"type_info",
	"ed25519",
	"from_bcs",
	"multi_ed25519",
	"table",
	"bls12381",
	"math64",
	"fixed_point64",
	"math128",
	"math_fixed64",
	"table_with_length",
	"copyable_any",
	"simple_map",
	"bn254_algebra",
	"crypto_algebra",
	"aptos_hash",

	// Framework.
	"guid",
	"system_addresses",
	"chain_id",
	"timestamp",
	"event",
	"create_signer",
	"account",
	"aggregator",
	"aggregator_factory",
	"optional_aggregator",
	"transaction_context",
	"randomness",
	"object",
	"aggregator_v2",
	"function_info",
	"fungible_asset",
	"dispatchable_fungible_asset",
	"primary_fungible_store",
	"coin",
	"aptos_coin",
	"aptos_account",
	"chain_status",
	"staking_config",
	"stake",
	"transaction_fee",
	"transaction_validation",
	"reconfiguration_state",
	"state_storage",
	"storage_gas",
	"reconfiguration",
	"config_buffer",
	"randomness_api_v0_config",
	"randomness_config",
	"randomness_config_seqnum",
	"keyless_account",
	"consensus_config",
	"execution_config",
	"validator_consensus_info",
	"dkg",
	"gas_schedule",
	"util",
	"jwk_consensus_config",
	"jwks",
	"reconfiguration_with_dkg",
	"block",
	"code",
}

// Keys creates the module keys of the given names at the given address.
func Keys(address common.Address, names []string) []common.ModuleKey {
	res := make([]common.ModuleKey, 0, len(names))
	for _, name := range names {
		res = append(res, common.NewModuleKey(address, name))
	}
	return res
}

// DefaultKeys returns the keys of all DefaultModuleNames at 0x1.
func DefaultKeys() []common.ModuleKey {
	return Keys(common.FrameworkAddress, DefaultModuleNames)
}
