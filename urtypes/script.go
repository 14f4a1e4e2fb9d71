// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package urtypes

import (
	"fmt"

	"github.com/btcsuite/btcsweep/cbortree"
)

// ScriptKind identifies the single-child script expressions.
type ScriptKind uint8

const (
	// ScriptHash is `sh(...)`.
	ScriptHash ScriptKind = iota

	// WitnessScriptHash is `wsh(...)`.
	WitnessScriptHash

	// PubKey is `pk(...)`.
	PubKey

	// PubKeyHash is `pkh(...)`.
	PubKeyHash

	// WitnessPubKeyHash is `wpkh(...)`.
	WitnessPubKeyHash

	// Taproot is `tr(...)` with a key path only.
	Taproot
)

// scriptKindNames holds the descriptor function name of each kind.
var scriptKindNames = map[ScriptKind]string{
	ScriptHash:        "sh",
	WitnessScriptHash: "wsh",
	PubKey:            "pk",
	PubKeyHash:        "pkh",
	WitnessPubKeyHash: "wpkh",
	Taproot:           "tr",
}

// String returns the descriptor function name of the kind.
func (k ScriptKind) String() string {
	if s, ok := scriptKindNames[k]; ok {
		return s
	}

	return fmt.Sprintf("ScriptKind(%d)", uint8(k))
}

// ScriptNode is a node of a decoded output descriptor. It is a sealed
// interface implemented by Wrapper, Multisig and KeyLeaf.
type ScriptNode interface {
	// isScriptNode is the sealed interface marker.
	isScriptNode()
}

// Wrapper is a script expression with a single child, such as `sh(X)` or
// `wpkh(K)`.
type Wrapper struct {
	Kind  ScriptKind
	Inner ScriptNode
}

// Multisig is a `multi` or `sortedmulti` expression. Keys keep the encoded
// order; sorting is left to the signer.
type Multisig struct {
	Threshold uint32
	Keys      []*KeyMaterial
	Sorted    bool
}

// KeyLeaf is a key expression.
type KeyLeaf struct {
	Key *KeyMaterial
}

func (*Wrapper) isScriptNode()  {}
func (*Multisig) isScriptNode() {}
func (*KeyLeaf) isScriptNode()  {}

// A compile-time assertion to ensure that all script node types implement
// the ScriptNode interface.
var (
	_ ScriptNode = (*Wrapper)(nil)
	_ ScriptNode = (*Multisig)(nil)
	_ ScriptNode = (*KeyLeaf)(nil)
)

// scriptDecoder reconstructs the node held by the content of a script tag.
type scriptDecoder func(content cbortree.Value) (ScriptNode, error)

// scriptDecoders is the dispatch table from script tag to reconstructor. A
// tag missing from the table is never decoded. It is filled in init since
// the decoders recurse through decodeScript.
var scriptDecoders map[uint64]scriptDecoder

func init() {
	scriptDecoders = map[uint64]scriptDecoder{
		TagScriptHash:        scriptWrapper(ScriptHash),
		TagWitnessScriptHash: scriptWrapper(WitnessScriptHash),
		TagPublicKey:         keyWrapper(PubKey),
		TagPubKeyHash:        keyWrapper(PubKeyHash),
		TagWitnessPubKeyHash: keyWrapper(WitnessPubKeyHash),
		TagTaproot:           keyWrapper(Taproot),
		TagMultisig:          multisigDecoder(false),
		TagSortedMultisig:    multisigDecoder(true),
	}
}

// decodeScript dispatches a tagged script expression to its reconstructor.
func decodeScript(v cbortree.Value) (ScriptNode, error) {
	t, ok := v.(cbortree.Tag)
	if !ok {
		return nil, errorf(ErrUnexpectedTag, "expected script "+
			"expression tag, got untagged %v", v.Kind())
	}

	decode, ok := scriptDecoders[t.Number]
	if !ok {
		return nil, errorf(ErrUnsupportedScriptType, "unsupported "+
			"script type %d", t.Number)
	}

	return decode(t.Content)
}

// scriptWrapper returns a decoder for an expression wrapping another script
// expression.
func scriptWrapper(kind ScriptKind) scriptDecoder {
	return func(content cbortree.Value) (ScriptNode, error) {
		inner, err := decodeScript(content)
		if err != nil {
			return nil, fmt.Errorf("%v: %w", kind, err)
		}

		return &Wrapper{Kind: kind, Inner: inner}, nil
	}
}

// keyWrapper returns a decoder for an expression wrapping a single key.
func keyWrapper(kind ScriptKind) scriptDecoder {
	return func(content cbortree.Value) (ScriptNode, error) {
		key, err := decodeKey(content)
		if err != nil {
			return nil, fmt.Errorf("%v: %w", kind, err)
		}

		return &Wrapper{Kind: kind, Inner: &KeyLeaf{Key: key}}, nil
	}
}

// multisigDecoder returns a decoder for a crypto-multikey map.
func multisigDecoder(sorted bool) scriptDecoder {
	return func(content cbortree.Value) (ScriptNode, error) {
		fields, err := asFieldMap(content, "multikey")
		if err != nil {
			return nil, err
		}

		threshold, ok, err := fields.uint32Field(1)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errorf(ErrMissingField, "multikey: missing "+
				"threshold")
		}

		raw, ok := fields.get(2)
		if !ok {
			return nil, errorf(ErrMissingField, "multikey: missing "+
				"keys")
		}

		list, ok := raw.(cbortree.Array)
		if !ok {
			return nil, errorf(ErrInvalidField, "multikey: keys must "+
				"be an array, got %v", raw.Kind())
		}

		if threshold == 0 || int(threshold) > len(list) {
			return nil, errorf(ErrInvalidField, "multikey: threshold "+
				"%d out of range for %d keys", threshold,
				len(list))
		}

		keys := make([]*KeyMaterial, 0, len(list))
		for i, item := range list {
			key, err := decodeKey(item)
			if err != nil {
				return nil, fmt.Errorf("multikey key %d: %w", i,
					err)
			}
			keys = append(keys, key)
		}

		return &Multisig{
			Threshold: threshold,
			Keys:      keys,
			Sorted:    sorted,
		}, nil
	}
}

// DecodeOutput reconstructs the script tree of a crypto-output value. The
// outer value must be a script expression tag.
func DecodeOutput(v cbortree.Value) (ScriptNode, error) {
	return decodeScript(v)
}

// DecodeHDKey reconstructs a crypto-hdkey value. The outer tag may be left
// out, as it is in the payload of a crypto-hdkey UR.
func DecodeHDKey(v cbortree.Value) (*KeyMaterial, error) {
	return decodeHDKey(v, tagOptional)
}

// DecodeECKey reconstructs a crypto-eckey value. The outer tag may be left
// out, as it is in the payload of a crypto-eckey UR.
func DecodeECKey(v cbortree.Value) (*KeyMaterial, error) {
	return decodeECKey(v, tagOptional)
}

// DecodeBinary decodes a UR payload into a value tree, reporting any failure
// as ErrMalformedBinary.
func DecodeBinary(data []byte) (cbortree.Value, error) {
	v, err := cbortree.Decode(data)
	if err != nil {
		return nil, newError(ErrMalformedBinary, "decode payload", err)
	}

	return v, nil
}
