// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package urtypes

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcsweep/cbortree"
)

// hash160Size is the payload length of every supported address type.
const hash160Size = 20

// AddressType is the address type code of a crypto-address.
type AddressType uint8

const (
	// AddressP2PKH is a pay-to-pubkey-hash address.
	AddressP2PKH AddressType = 0

	// AddressP2SH is a pay-to-script-hash address.
	AddressP2SH AddressType = 1

	// AddressP2WPKH is a version 0 pay-to-witness-pubkey-hash address.
	AddressP2WPKH AddressType = 2
)

// String returns the name of the address type.
func (t AddressType) String() string {
	switch t {
	case AddressP2PKH:
		return "p2pkh"
	case AddressP2SH:
		return "p2sh"
	case AddressP2WPKH:
		return "p2wpkh"
	default:
		return fmt.Sprintf("AddressType(%d)", uint8(t))
	}
}

// Address is a decoded crypto-address.
type Address struct {
	Info CoinInfo
	Type AddressType
	Data []byte
}

// decodeAddress reconstructs an Address from a crypto-address map.
func decodeAddress(v cbortree.Value, rule tagRule) (*Address, error) {
	content, err := unwrapTag(v, TagAddress, rule)
	if err != nil {
		return nil, err
	}

	fields, err := asFieldMap(content, "address")
	if err != nil {
		return nil, err
	}

	addr := &Address{}

	addr.Info, err = coinInfoField(fields, 1)
	if err != nil {
		return nil, err
	}

	addrType, ok, err := fields.uintField(2)
	switch {
	case err != nil:
		return nil, err

	case !ok:
		return nil, errorf(ErrMissingField, "address: missing type")

	case addrType > uint64(AddressP2WPKH):
		return nil, errorf(ErrInvalidField, "address: unknown type %d",
			addrType)
	}
	addr.Type = AddressType(addrType)

	addr.Data, err = fields.requiredBytes(3)
	if err != nil {
		return nil, err
	}

	if len(addr.Data) != hash160Size {
		return nil, errorf(ErrInvalidField, "address: %v payload must "+
			"be %d bytes, got %d", addr.Type, hash160Size,
			len(addr.Data))
	}

	return addr, nil
}

// DecodeAddress reconstructs a crypto-address value. The outer tag may be
// left out, as it is in the payload of a crypto-address UR.
func DecodeAddress(v cbortree.Value) (*Address, error) {
	return decodeAddress(v, tagOptional)
}

// BtcutilAddress converts the address into its btcutil form for the network
// in its coin info.
func (a *Address) BtcutilAddress() (btcutil.Address, error) {
	return a.BtcutilAddressForNet(a.Info.Network.Params())
}

// BtcutilAddressForNet converts the address into its btcutil form for the
// given chain parameters. The coin info only tells mainnet from the test
// networks, so regtest and signet callers pass their own parameters.
func (a *Address) BtcutilAddressForNet(
	params *chaincfg.Params) (btcutil.Address, error) {

	switch a.Type {
	case AddressP2PKH:
		return btcutil.NewAddressPubKeyHash(a.Data, params)

	case AddressP2SH:
		return btcutil.NewAddressScriptHashFromHash(a.Data, params)

	case AddressP2WPKH:
		return btcutil.NewAddressWitnessPubKeyHash(a.Data, params)

	default:
		return nil, errorf(ErrInvalidField, "address: unknown type %d",
			a.Type)
	}
}
