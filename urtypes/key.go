// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package urtypes

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcsweep/cbortree"
)

const (
	// chainCodeSize is the length of a BIP32 chain code.
	chainCodeSize = 32

	// privateKeySize is the length of a raw private key scalar.
	privateKeySize = 32

	// paddedPrivateKeySize is the length of a private key in key-data,
	// which carries a leading zero byte like the BIP32 serialization.
	paddedPrivateKeySize = 33
)

// KeyMaterial is a key reconstructed from a crypto-hdkey or crypto-eckey
// value. Keys with a chain code are BIP32 extended keys; keys without one
// are bare EC keys.
type KeyMaterial struct {
	// KeyData is the compressed public key, or the private key scalar.
	// Private keys are stored without their leading zero byte.
	KeyData []byte

	// ChainCode is the BIP32 chain code, nil for bare EC keys.
	ChainCode []byte

	// IsPrivate is set for private keys.
	IsPrivate bool

	// IsMaster is set for BIP32 master keys.
	IsMaster bool

	// UseInfo is the coin type and network of the key. It holds
	// DefaultCoinInfo when the field was absent.
	UseInfo CoinInfo

	// Origin is the path from the master key to this key, nil when
	// unknown.
	Origin *Keypath

	// Children is the path appended to this key when deriving the keys
	// of an output descriptor, nil when absent.
	Children *Keypath

	// ParentFingerprint is the fingerprint of the parent key, zero when
	// unknown.
	ParentFingerprint uint32

	// Name and Note are the optional free form labels of an hdkey.
	Name string
	Note string
}

// IsExtended returns whether the key is a BIP32 extended key.
func (k *KeyMaterial) IsExtended() bool {
	return k.ChainCode != nil
}

// childNumber returns the depth and the child number of an extended key as
// recorded in its origin.
func (k *KeyMaterial) childNumber() (uint8, uint32, error) {
	switch {
	case k.Origin == nil:
		return 0, 0, nil

	case len(k.Origin.Components) == 0:
		return k.Origin.Depth, 0, nil
	}

	last := k.Origin.Components[len(k.Origin.Components)-1]
	if last.Wildcard {
		return 0, 0, errorf(ErrInvalidField, "hdkey: origin ends "+
			"with a wildcard")
	}

	return k.Origin.Depth, last.ChildIndex(), nil
}

// ExtendedKey rebuilds the BIP32 extended key for the network recorded in the
// key's coin info. It fails for bare EC keys.
func (k *KeyMaterial) ExtendedKey() (*hdkeychain.ExtendedKey, error) {
	return k.ExtendedKeyForNet(k.UseInfo.Network.Params())
}

// ExtendedKeyForNet rebuilds the BIP32 extended key with the version bytes of
// the given network.
func (k *KeyMaterial) ExtendedKeyForNet(
	params *chaincfg.Params) (*hdkeychain.ExtendedKey, error) {

	if !k.IsExtended() {
		return nil, errorf(ErrInvalidField, "key has no chain code")
	}

	depth, childNum, err := k.childNumber()
	if err != nil {
		return nil, err
	}

	version := params.HDPublicKeyID[:]
	if k.IsPrivate {
		version = params.HDPrivateKeyID[:]
	}

	var parentFP [4]byte
	binary.BigEndian.PutUint32(parentFP[:], k.ParentFingerprint)

	return hdkeychain.NewExtendedKey(
		version, k.KeyData, k.ChainCode, parentFP[:], depth, childNum,
		k.IsPrivate,
	), nil
}

// PublicKey returns the public key of the material.
func (k *KeyMaterial) PublicKey() (*btcec.PublicKey, error) {
	if k.IsPrivate {
		priv, _ := btcec.PrivKeyFromBytes(k.KeyData)
		return priv.PubKey(), nil
	}

	return btcec.ParsePubKey(k.KeyData)
}

// decodeHDKey reconstructs KeyMaterial from a crypto-hdkey map.
func decodeHDKey(v cbortree.Value, rule tagRule) (*KeyMaterial, error) {
	content, err := unwrapTag(v, TagHDKey, rule)
	if err != nil {
		return nil, err
	}

	fields, err := asFieldMap(content, "hdkey")
	if err != nil {
		return nil, err
	}

	key := &KeyMaterial{UseInfo: DefaultCoinInfo}

	key.IsMaster, err = fields.boolField(1, false)
	if err != nil {
		return nil, err
	}

	key.IsPrivate, err = fields.boolField(2, key.IsMaster)
	if err != nil {
		return nil, err
	}

	keyData, err := fields.requiredBytes(3)
	if err != nil {
		return nil, err
	}

	key.KeyData, err = checkKeyData(keyData, key.IsPrivate)
	if err != nil {
		return nil, err
	}

	chainCode, ok, err := fields.bytesField(4)
	if err != nil {
		return nil, err
	}
	if ok {
		if len(chainCode) != chainCodeSize {
			return nil, errorf(ErrInvalidField, "hdkey: chain code "+
				"must be %d bytes, got %d", chainCodeSize,
				len(chainCode))
		}
		key.ChainCode = chainCode
	}

	// A master key is fully described by its key data and chain code.
	if key.IsMaster {
		if !ok {
			return nil, errorf(ErrMissingField, "hdkey: master key "+
				"without chain code")
		}

		return key, nil
	}

	key.UseInfo, err = coinInfoField(fields, 5)
	if err != nil {
		return nil, err
	}

	key.Origin, err = keypathField(fields, 6)
	if err != nil {
		return nil, fmt.Errorf("origin: %w", err)
	}

	key.Children, err = keypathField(fields, 7)
	if err != nil {
		return nil, fmt.Errorf("children: %w", err)
	}

	key.ParentFingerprint, _, err = fields.uint32Field(8)
	if err != nil {
		return nil, err
	}

	key.Name, err = fields.textField(9)
	if err != nil {
		return nil, err
	}

	key.Note, err = fields.textField(10)
	if err != nil {
		return nil, err
	}

	return key, nil
}

// decodeECKey reconstructs KeyMaterial from a crypto-eckey map.
func decodeECKey(v cbortree.Value, rule tagRule) (*KeyMaterial, error) {
	content, err := unwrapTag(v, TagECKey, rule)
	if err != nil {
		return nil, err
	}

	fields, err := asFieldMap(content, "eckey")
	if err != nil {
		return nil, err
	}

	curve, _, err := fields.uintField(1)
	if err != nil {
		return nil, err
	}
	if curve != 0 {
		return nil, errorf(ErrInvalidField, "eckey: unsupported curve "+
			"%d", curve)
	}

	key := &KeyMaterial{UseInfo: DefaultCoinInfo}

	key.IsPrivate, err = fields.boolField(2, false)
	if err != nil {
		return nil, err
	}

	keyData, err := fields.requiredBytes(3)
	if err != nil {
		return nil, err
	}

	key.KeyData, err = checkKeyData(keyData, key.IsPrivate)
	if err != nil {
		return nil, err
	}

	return key, nil
}

// decodeKey reconstructs the key of a script expression, which is either a
// crypto-hdkey or a crypto-eckey and must carry its tag.
func decodeKey(v cbortree.Value) (*KeyMaterial, error) {
	t, ok := v.(cbortree.Tag)
	if !ok {
		return nil, errorf(ErrUnexpectedTag, "expected key tag %d or "+
			"%d, got untagged %v", TagHDKey, TagECKey, v.Kind())
	}

	switch t.Number {
	case TagHDKey:
		return decodeHDKey(v, tagRequired)

	case TagECKey:
		return decodeECKey(v, tagRequired)

	default:
		return nil, errorf(ErrUnexpectedTag, "expected key tag %d or "+
			"%d, got tag %d", TagHDKey, TagECKey, t.Number)
	}
}

// checkKeyData validates the key bytes and returns them in their canonical
// form. Public keys must be valid curve points; private keys must be valid
// scalars and lose their leading zero byte.
func checkKeyData(data []byte, private bool) ([]byte, error) {
	if !private {
		if _, err := btcec.ParsePubKey(data); err != nil {
			return nil, newError(ErrInvalidKeyEncoding,
				"invalid public key", err)
		}

		return data, nil
	}

	switch {
	case len(data) == paddedPrivateKeySize && data[0] == 0:
		data = data[1:]

	case len(data) == privateKeySize:

	default:
		return nil, errorf(ErrInvalidKeyEncoding, "invalid private "+
			"key length %d", len(data))
	}

	var scalar btcec.ModNScalar
	overflow := scalar.SetByteSlice(data)
	if overflow || scalar.IsZero() {
		return nil, errorf(ErrInvalidKeyEncoding, "private key is "+
			"not a valid scalar")
	}

	return data, nil
}
