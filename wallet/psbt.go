// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcsweep/chain"
	"github.com/btcsuite/btcsweep/descriptor"
)

// inputKind is the way an input is signed.
type inputKind uint8

const (
	// inputLegacy spends a script without witness.
	inputLegacy inputKind = iota

	// inputSegWitV0 spends a native or nested segwit v0 program.
	inputSegWitV0

	// inputSegWitV1 spends a taproot output.
	inputSegWitV1
)

// classifyInput returns how the derived output is spent.
func classifyInput(derived *descriptor.Derived) inputKind {
	switch {
	case txscript.IsPayToTaproot(derived.PkScript):
		return inputSegWitV1

	case txscript.IsWitnessProgram(derived.PkScript):
		return inputSegWitV0

	// A P2SH output wrapping a witness program is nested segwit.
	case derived.RedeemScript != nil &&
		txscript.IsWitnessProgram(derived.RedeemScript):

		return inputSegWitV0

	default:
		return inputLegacy
	}
}

// annotateInputs adds to every PSBT input what an offline signer needs to
// sign it: the spent output, the scripts behind it and the key
// derivations.
func (w *Wallet) annotateInputs(ctx context.Context, packet *psbt.Packet,
	inputs []Utxo) error {

	for i, utxo := range inputs {
		desc, err := w.descs.Descriptor(utxo.Branch)
		if err != nil {
			return err
		}

		derived, err := desc.Derive(utxo.Index)
		if err != nil {
			return fmt.Errorf("derive input %v: %w", utxo.OutPoint,
				err)
		}

		txOut := wire.NewTxOut(int64(utxo.Value), utxo.PkScript)
		in := &packet.Inputs[i]

		switch classifyInput(derived) {
		case inputSegWitV1:
			addInputInfoSegWitV1(in, txOut, derived)

		case inputSegWitV0:
			prevTx, err := w.fetchPrevTx(ctx, utxo)
			switch {
			// Signers that accept witness-only inputs can still
			// sign without the previous transaction.
			case errors.Is(err, chain.ErrTxNotFound):
				log.Warnf("Previous tx of %v not found, input "+
					"only carries the witness utxo",
					utxo.OutPoint)

			case err != nil:
				return err
			}

			addInputInfoSegWitV0(in, prevTx, txOut, derived)

		default:
			prevTx, err := w.fetchPrevTx(ctx, utxo)
			if err != nil {
				return err
			}

			addInputInfoLegacy(in, prevTx, derived)
		}
	}

	return nil
}

// fetchPrevTx returns the transaction that created the output and checks it
// matches.
func (w *Wallet) fetchPrevTx(ctx context.Context,
	utxo Utxo) (*wire.MsgTx, error) {

	prevTx, err := w.backend.FetchTx(ctx, utxo.OutPoint.Hash)
	if err != nil {
		return nil, fmt.Errorf("fetch previous tx of %v: %w",
			utxo.OutPoint, err)
	}

	if prevTx.TxHash() != utxo.OutPoint.Hash ||
		int(utxo.OutPoint.Index) >= len(prevTx.TxOut) {

		return nil, fmt.Errorf("previous tx of %v does not match the "+
			"outpoint", utxo.OutPoint)
	}

	return prevTx, nil
}

// addInputInfoLegacy adds the previous transaction, redeem script and BIP32
// derivation info for a PSBT input without witness.
func addInputInfoLegacy(in *psbt.PInput, prevTx *wire.MsgTx,
	derived *descriptor.Derived) {

	in.NonWitnessUtxo = prevTx
	in.SighashType = txscript.SigHashAll
	in.RedeemScript = derived.RedeemScript
	in.Bip32Derivation = derived.Bip32Derivation
}

// addInputInfoSegWitV0 adds the UTXO and BIP32 derivation info for a
// SegWit v0 PSBT input (p2wkh, np2wkh, p2wsh) from the derived output.
func addInputInfoSegWitV0(in *psbt.PInput, prevTx *wire.MsgTx,
	utxo *wire.TxOut, derived *descriptor.Derived) {

	// As a fix for CVE-2020-14199 we always include the full non-witness
	// UTXO in the PSBT for segwit v0 when it is known.
	in.NonWitnessUtxo = prevTx

	// To make it more obvious that this is actually a witness output being
	// spent, we also add the same information as the witness UTXO.
	in.WitnessUtxo = utxo
	in.SighashType = txscript.SigHashAll

	// Include the derivation path for each key of the script.
	in.Bip32Derivation = derived.Bip32Derivation

	// For nested outputs we need to add the redeem script, otherwise an
	// offline wallet won't be able to sign for it. For native outputs
	// this will be nil.
	in.RedeemScript = derived.RedeemScript
	in.WitnessScript = derived.WitnessScript
}

// addInputInfoSegWitV1 adds the UTXO and BIP32 derivation info for a SegWit
// v1 PSBT input (p2tr) from the derived output.
func addInputInfoSegWitV1(in *psbt.PInput, utxo *wire.TxOut,
	derived *descriptor.Derived) {

	// For SegWit v1 we only need the witness UTXO information.
	in.WitnessUtxo = utxo
	in.SighashType = txscript.SigHashDefault

	// Include the derivation path for each input in addition to the
	// taproot specific info.
	in.Bip32Derivation = derived.Bip32Derivation
	in.TaprootBip32Derivation = derived.TaprootBip32Derivation
	in.TaprootInternalKey = derived.TaprootInternalKey
}
