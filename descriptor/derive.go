// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package descriptor

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
)

// Derived is the output a descriptor describes at one index, together with
// what a signer needs to spend it.
type Derived struct {
	// PkScript is the locking script of the output.
	PkScript []byte

	// RedeemScript is the P2SH redeem script, nil if not P2SH.
	RedeemScript []byte

	// WitnessScript is the P2WSH witness script, nil if not P2WSH.
	WitnessScript []byte

	// Bip32Derivation lists the keys of the script with their origin.
	// Keys without a known origin are left out.
	Bip32Derivation []*psbt.Bip32Derivation

	// TaprootBip32Derivation and TaprootInternalKey are only set for
	// taproot outputs.
	TaprootBip32Derivation []*psbt.TaprootBip32Derivation
	TaprootInternalKey     []byte
}

// Derive returns the output at the given index. The index is ignored by
// descriptors without a wildcard.
func (d *Descriptor) Derive(index uint32) (*Derived, error) {
	derived := &Derived{}

	script, err := d.root.build(index, derived)
	if err != nil {
		return nil, err
	}
	derived.PkScript = script

	return derived, nil
}

// build returns the script of the node at the given index and records
// the redeem and witness scripts and key derivations in derived.
func (n *node) build(index uint32, derived *Derived) ([]byte, error) {
	switch n.kind {
	case kindSh:
		redeem, err := n.sub.build(index, derived)
		if err != nil {
			return nil, err
		}
		derived.RedeemScript = redeem

		return txscript.NewScriptBuilder().
			AddOp(txscript.OP_HASH160).
			AddData(btcutil.Hash160(redeem)).
			AddOp(txscript.OP_EQUAL).
			Script()

	case kindWsh:
		witnessScript, err := n.sub.build(index, derived)
		if err != nil {
			return nil, err
		}
		derived.WitnessScript = witnessScript

		hash := sha256.Sum256(witnessScript)

		return txscript.NewScriptBuilder().
			AddOp(txscript.OP_0).
			AddData(hash[:]).
			Script()

	case kindTr:
		return n.buildTaproot(index, derived)
	}

	keys := make([][]byte, 0, len(n.keys))
	for _, key := range n.keys {
		dk, err := key.derive(index)
		if err != nil {
			return nil, err
		}
		keys = append(keys, dk.serialized)

		if dk.hasPath {
			derived.Bip32Derivation = append(
				derived.Bip32Derivation, &psbt.Bip32Derivation{
					PubKey:               dk.serialized,
					MasterKeyFingerprint: dk.fingerprint,
					Bip32Path:            dk.path,
				},
			)
		}
	}

	switch n.kind {
	case kindPk:
		return txscript.NewScriptBuilder().
			AddData(keys[0]).
			AddOp(txscript.OP_CHECKSIG).
			Script()

	case kindPkh:
		return txscript.NewScriptBuilder().
			AddOp(txscript.OP_DUP).
			AddOp(txscript.OP_HASH160).
			AddData(btcutil.Hash160(keys[0])).
			AddOp(txscript.OP_EQUALVERIFY).
			AddOp(txscript.OP_CHECKSIG).
			Script()

	case kindWpkh:
		return txscript.NewScriptBuilder().
			AddOp(txscript.OP_0).
			AddData(btcutil.Hash160(keys[0])).
			Script()

	case kindMulti, kindSortedMulti:
		if n.kind == kindSortedMulti {
			sort.Slice(keys, func(i, j int) bool {
				return bytes.Compare(keys[i], keys[j]) < 0
			})
		}

		builder := txscript.NewScriptBuilder().
			AddInt64(int64(n.threshold))
		for _, key := range keys {
			builder.AddData(key)
		}

		return builder.
			AddInt64(int64(len(keys))).
			AddOp(txscript.OP_CHECKMULTISIG).
			Script()
	}

	return nil, fmt.Errorf("%w: script kind %d", ErrUnsupported, n.kind)
}

// buildTaproot returns the key path only taproot output script of the node's
// internal key.
func (n *node) buildTaproot(index uint32, derived *Derived) ([]byte, error) {
	dk, err := n.keys[0].derive(index)
	if err != nil {
		return nil, err
	}

	internalKey := schnorr.SerializePubKey(dk.pubKey)
	derived.TaprootInternalKey = internalKey

	if dk.hasPath {
		derived.Bip32Derivation = []*psbt.Bip32Derivation{{
			PubKey:               dk.serialized,
			MasterKeyFingerprint: dk.fingerprint,
			Bip32Path:            dk.path,
		}}
		derived.TaprootBip32Derivation = []*psbt.TaprootBip32Derivation{{
			XOnlyPubKey:          internalKey,
			MasterKeyFingerprint: dk.fingerprint,
			Bip32Path:            dk.path,
		}}
	}

	outputKey := txscript.ComputeTaprootKeyNoScript(dk.pubKey)

	return txscript.PayToTaprootScript(outputKey)
}
