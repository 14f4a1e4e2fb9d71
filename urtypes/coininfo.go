// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package urtypes

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcsweep/cbortree"
)

// CoinTypeBitcoin is the SLIP-44 coin type of Bitcoin and the only coin type
// accepted by this package.
const CoinTypeBitcoin uint32 = 0

// Network is the network a key or address belongs to.
type Network uint8

const (
	// Mainnet is the Bitcoin main network.
	Mainnet Network = 0

	// Testnet covers every test network, including regtest and signet.
	Testnet Network = 1
)

// String returns the name of the network.
func (n Network) String() string {
	switch n {
	case Mainnet:
		return "mainnet"
	case Testnet:
		return "testnet"
	default:
		return fmt.Sprintf("network(%d)", uint8(n))
	}
}

// Params returns the chain parameters used to serialize keys and addresses
// of the network.
func (n Network) Params() *chaincfg.Params {
	if n == Testnet {
		return &chaincfg.TestNet3Params
	}

	return &chaincfg.MainNetParams
}

// NetworkForParams maps chain parameters onto the two networks known to the
// UR formats.
func NetworkForParams(params *chaincfg.Params) Network {
	if params.Net == chaincfg.MainNetParams.Net {
		return Mainnet
	}

	return Testnet
}

// CoinInfo is the coin type and network metadata attached to keys and
// addresses.
type CoinInfo struct {
	Type    uint32
	Network Network
}

// DefaultCoinInfo is used wherever the coin info is absent, and for each of
// its fields that is left out.
var DefaultCoinInfo = CoinInfo{
	Type:    CoinTypeBitcoin,
	Network: Mainnet,
}

// decodeCoinInfo reconstructs a CoinInfo from a crypto-coin-info map.
func decodeCoinInfo(v cbortree.Value, rule tagRule) (CoinInfo, error) {
	content, err := unwrapTag(v, TagCoinInfo, rule)
	if err != nil {
		return CoinInfo{}, err
	}

	fields, err := asFieldMap(content, "coin-info")
	if err != nil {
		return CoinInfo{}, err
	}

	info := DefaultCoinInfo

	coinType, ok, err := fields.uint32Field(1)
	if err != nil {
		return CoinInfo{}, err
	}
	if ok {
		if coinType != CoinTypeBitcoin {
			return CoinInfo{}, errorf(ErrInvalidField, "coin-info: "+
				"unsupported coin type %d", coinType)
		}
		info.Type = coinType
	}

	network, ok, err := fields.uintField(2)
	if err != nil {
		return CoinInfo{}, err
	}
	if ok {
		if network > uint64(Testnet) {
			return CoinInfo{}, errorf(ErrInvalidField, "coin-info: "+
				"unknown network %d", network)
		}
		info.Network = Network(network)
	}

	return info, nil
}

// coinInfoField reads the optional coin info stored under key. The tag of the
// nested value may be left out, and DefaultCoinInfo is returned when the
// field is absent.
func coinInfoField(f fieldMap, key uint64) (CoinInfo, error) {
	v, ok := f.get(key)
	if !ok {
		return DefaultCoinInfo, nil
	}

	return decodeCoinInfo(v, tagOptional)
}
