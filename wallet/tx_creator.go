// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcsweep/descriptor"
	"github.com/btcsuite/btcsweep/pkg/btcunit"
	"github.com/btcsuite/btcwallet/wallet/txauthor"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/lightningnetwork/lnd/fn/v2"
)

const (
	// txVersion is the version of created transactions.
	txVersion = 2

	// rbfSequence signals opt-in replaceability on every input.
	rbfSequence = wire.MaxTxInSequenceNum - 2

	// segwitMarkerWeight is the marker and flag bytes of a transaction
	// with witness data.
	segwitMarkerWeight = 2
)

var (
	// ErrNilTxIntent is returned when a nil `TxIntent` is provided.
	ErrNilTxIntent = errors.New("nil TxIntent")

	// ErrMissingInputs is returned when a transaction is created without
	// any inputs.
	ErrMissingInputs = errors.New("tx has no inputs")

	// ErrDuplicatedUtxo is returned when a UTXO is specified multiple
	// times.
	ErrDuplicatedUtxo = errors.New("duplicated utxo")

	// ErrNoTxOutputs is returned when a transaction is created without any
	// outputs and without a drain script.
	ErrNoTxOutputs = errors.New("tx has no outputs")

	// ErrDrainWithOutputs is returned when an intent has both outputs and
	// a drain script.
	ErrDrainWithOutputs = errors.New("drain script cannot be combined " +
		"with outputs")

	// ErrMissingFeeRate is returned when a transaction is created without
	// a fee rate or an absolute fee.
	ErrMissingFeeRate = errors.New("missing fee rate")

	// ErrFeeRateTooLarge is returned when a transaction pays a fee rate
	// above DefaultMaxFeeRate.
	ErrFeeRateTooLarge = errors.New("fee rate too large")

	// ErrNegativeFee is returned when an absolute fee is negative.
	ErrNegativeFee = errors.New("negative fee")

	// ErrFeeMismatch is returned when an absolute fee leaves part of the
	// input value unspent.
	ErrFeeMismatch = errors.New("fee does not match inputs minus outputs")

	// ErrUnspentSurplus is returned when the inputs exceed the outputs
	// plus the fee. No change output is ever created.
	ErrUnspentSurplus = errors.New("inputs exceed outputs plus fee")
)

var (
	// DefaultMaxFeeRate is the largest fee rate in sat/kvb the wallet
	// will create a transaction with, currently 1000 sat/vb.
	//
	//nolint:mnd // 1M sat/kvb default max fee.
	DefaultMaxFeeRate = btcunit.NewSatPerKVByte(1_000_000)
)

// InsufficientFundsError is returned when the inputs of a transaction cannot
// pay for its outputs and fee.
type InsufficientFundsError struct {
	// Needed is the value of the outputs plus the fee.
	Needed btcutil.Amount

	// Available is the value of the inputs.
	Available btcutil.Amount
}

// Error returns a human-readable description of the shortfall.
func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: %v needed, %v available",
		e.Needed, e.Available)
}

// Shortfall returns the amount missing from the inputs.
func (e *InsufficientFundsError) Shortfall() btcutil.Amount {
	return e.Needed - e.Available
}

// TxIntent describes a transaction to create. Every input listed is spent;
// there is no coin selection and no change output.
//
// The outputs are either listed in Outputs, or a single output to DrainTo
// receives everything the fee leaves. The fee is either derived from
// FeeRate and the estimated size, or set explicitly with Fee.
type TxIntent struct {
	// Inputs are the outputs to spend, as listed by ListUnspent.
	Inputs []Utxo

	// Outputs are the outputs of the transaction, in order.
	Outputs []wire.TxOut

	// DrainTo is the script that receives the whole input value minus
	// the fee. It cannot be combined with Outputs.
	DrainTo []byte

	// FeeRate is the fee rate to pay when Fee is not set.
	FeeRate btcunit.SatPerKVByte

	// Fee overrides the fee rate with an absolute fee.
	Fee fn.Option[btcutil.Amount]
}

// Tx is an unsigned transaction and its PSBT.
type Tx struct {
	txauthor.AuthoredTx

	// Packet is the PSBT of the transaction, with every input
	// annotated for an offline signer.
	Packet *psbt.Packet

	// Fee is the absolute fee of the transaction.
	Fee btcutil.Amount

	// Weight is the estimated weight of the signed transaction.
	Weight btcunit.WeightUnit
}

// TotalOutput returns the value of the outputs of the transaction.
func (t *Tx) TotalOutput() btcutil.Amount {
	var total btcutil.Amount
	for _, out := range t.Tx.TxOut {
		total += btcutil.Amount(out.Value)
	}

	return total
}

// validateTxIntent performs a series of checks on a TxIntent to ensure it is
// well-formed. It does not modify the intent.
//
// The following checks are performed:
//   - The intent must have at least one input and no input twice.
//   - The intent must have outputs or a drain script, not both.
//   - Without an absolute fee, the fee rate must be positive and sane.
func validateTxIntent(intent *TxIntent) error {
	if len(intent.Inputs) == 0 {
		return ErrMissingInputs
	}

	outpoints := fn.NewSet[wire.OutPoint]()
	for _, utxo := range intent.Inputs {
		if outpoints.Contains(utxo.OutPoint) {
			return fmt.Errorf("%w: %v", ErrDuplicatedUtxo,
				utxo.OutPoint)
		}
		outpoints.Add(utxo.OutPoint)
	}

	switch {
	case len(intent.Outputs) == 0 && len(intent.DrainTo) == 0:
		return ErrNoTxOutputs

	case len(intent.Outputs) != 0 && len(intent.DrainTo) != 0:
		return ErrDrainWithOutputs
	}

	if intent.Fee.IsSome() {
		if intent.Fee.UnwrapOr(0) < 0 {
			return ErrNegativeFee
		}

		return nil
	}

	if intent.FeeRate.IsZero() {
		return ErrMissingFeeRate
	}

	if intent.FeeRate.Cmp(DefaultMaxFeeRate) > 0 {
		return fmt.Errorf("%w: fee rate of %s is too high, max sane "+
			"fee rate is %s", ErrFeeRateTooLarge, intent.FeeRate,
			DefaultMaxFeeRate)
	}

	return nil
}

// constantInputSource creates an input source function that always returns
// the static set of intent inputs.
func constantInputSource(eligible []Utxo) txauthor.InputSource {
	// Current inputs and their total value. These won't change over
	// different invocations as the inputs are fixed by the intent.
	currentTotal := btcutil.Amount(0)
	currentInputs := make([]*wire.TxIn, 0, len(eligible))
	currentScripts := make([][]byte, 0, len(eligible))
	currentInputValues := make([]btcutil.Amount, 0, len(eligible))

	for _, utxo := range eligible {
		nextInput := wire.NewTxIn(&utxo.OutPoint, nil, nil)
		nextInput.Sequence = rbfSequence
		currentTotal += utxo.Value

		currentInputs = append(currentInputs, nextInput)
		currentScripts = append(currentScripts, utxo.PkScript)
		currentInputValues = append(currentInputValues, utxo.Value)
	}

	return func(target btcutil.Amount) (btcutil.Amount, []*wire.TxIn,
		[]btcutil.Amount, [][]byte, error) {

		return currentTotal, currentInputs, currentInputValues,
			currentScripts, nil
	}
}

// inputSizes returns the largest satisfaction of every input.
func (w *Wallet) inputSizes(inputs []Utxo) ([]descriptor.InputSize, error) {
	sizes := make([]descriptor.InputSize, 0, len(inputs))
	for _, utxo := range inputs {
		desc, err := w.descs.Descriptor(utxo.Branch)
		if err != nil {
			return nil, err
		}

		sizes = append(sizes, desc.MaxInputSize())
	}

	return sizes, nil
}

// estimateWeight returns the weight of the signed transaction spending
// inputs of the given sizes to the outputs.
func estimateWeight(inputs []descriptor.InputSize,
	outputs []*wire.TxOut) btcunit.WeightUnit {

	// Version, lock time and the input and output counts.
	baseSize := 4 + 4 +
		wire.VarIntSerializeSize(uint64(len(inputs))) +
		wire.VarIntSerializeSize(uint64(len(outputs)))

	for _, out := range outputs {
		baseSize += out.SerializeSize()
	}

	weight := btcunit.NewWeightUnit(
		uint64(baseSize * blockchain.WitnessScaleFactor),
	)

	var witnessInputs int
	for _, in := range inputs {
		weight = weight.Add(in.Weight())

		if in.HasWitness() {
			witnessInputs++
		}
	}

	// Once a transaction has witness data, every input carries a witness
	// and the ones without one need a zero item count.
	if witnessInputs > 0 {
		weight = weight.Add(btcunit.NewWeightUnit(uint64(
			segwitMarkerWeight + len(inputs) - witnessInputs,
		)))
	}

	return weight
}

// CreateTransaction creates an unsigned transaction spending every input of
// the intent. The fee is the intent's absolute fee, or its fee rate applied
// to the estimated virtual size. When the inputs cannot pay for the outputs
// and fee, an *InsufficientFundsError reports the shortfall.
func (w *Wallet) CreateTransaction(ctx context.Context, intent *TxIntent) (
	*Tx, error) {

	// Check that the intent is not nil.
	if intent == nil {
		return nil, ErrNilTxIntent
	}

	err := validateTxIntent(intent)
	if err != nil {
		return nil, err
	}

	total, txIns, inputValues, prevScripts, err := constantInputSource(
		intent.Inputs,
	)(0)
	if err != nil {
		return nil, err
	}

	outputs := make([]*wire.TxOut, 0, len(intent.Outputs)+1)
	for _, output := range intent.Outputs {
		outputs = append(outputs, wire.NewTxOut(
			output.Value, output.PkScript,
		))
	}

	// A drain output is sized with a zero value and filled in once the
	// fee is known.
	if len(intent.DrainTo) != 0 {
		outputs = append(outputs, wire.NewTxOut(0, intent.DrainTo))
	}

	sizes, err := w.inputSizes(intent.Inputs)
	if err != nil {
		return nil, err
	}

	weight := estimateWeight(sizes, outputs)
	vsize := btcunit.NewVByte(weight.VBytes())

	fee := intent.Fee.UnwrapOrFunc(func() btcutil.Amount {
		return intent.FeeRate.FeeForVByte(vsize)
	})

	err = fillOutputs(outputs, intent, total, fee)
	if err != nil {
		return nil, err
	}

	// Dust is only checked once the inputs pay for every output and the
	// fee.
	for _, out := range outputs {
		err := txrules.CheckOutput(out, txrules.DefaultRelayFeePerKb)
		if err != nil {
			return nil, err
		}
	}

	// The fee rate actually paid must stay sane, whichever way the fee
	// was given.
	feeRate := btcunit.CalcSatPerVByte(fee, vsize).ToSatPerKVByte()
	if feeRate.Cmp(DefaultMaxFeeRate) > 0 {
		return nil, fmt.Errorf("%w: fee of %v for %v is %s, max sane "+
			"fee rate is %s", ErrFeeRateTooLarge, fee, vsize,
			feeRate, DefaultMaxFeeRate)
	}

	tx := wire.NewMsgTx(txVersion)
	tx.TxIn = txIns
	tx.TxOut = outputs

	packet, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, fmt.Errorf("create psbt: %w", err)
	}

	err = w.annotateInputs(ctx, packet, intent.Inputs)
	if err != nil {
		return nil, err
	}

	log.Debugf("Created tx %v spending %d inputs worth %v to %d outputs "+
		"with fee %v (%v, %v)", tx.TxHash(), len(txIns), total,
		len(outputs), fee, weight, feeRate.ToSatPerVByte())

	return &Tx{
		AuthoredTx: txauthor.AuthoredTx{
			Tx:              tx,
			PrevScripts:     prevScripts,
			PrevInputValues: inputValues,
			TotalInput:      total,
			ChangeIndex:     -1,
		},
		Packet: packet,
		Fee:    fee,
		Weight: weight,
	}, nil
}

// fillOutputs checks the outputs and fee against the input total and sets
// the value of a drain output.
func fillOutputs(outputs []*wire.TxOut, intent *TxIntent,
	total, fee btcutil.Amount) error {

	if len(intent.DrainTo) != 0 {
		drain := outputs[len(outputs)-1]

		if total < fee {
			return &InsufficientFundsError{
				Needed:    fee,
				Available: total,
			}
		}
		drain.Value = int64(total - fee)

		return nil
	}

	var outputTotal btcutil.Amount
	for _, out := range outputs {
		outputTotal += btcutil.Amount(out.Value)
	}

	needed := outputTotal + fee
	switch {
	case needed > total:
		return &InsufficientFundsError{
			Needed:    needed,
			Available: total,
		}

	case needed < total && intent.Fee.IsSome():
		return fmt.Errorf("%w: inputs %v, outputs %v, fee %v",
			ErrFeeMismatch, total, outputTotal, fee)

	case needed < total:
		return fmt.Errorf("%w: inputs %v, outputs %v, fee %v",
			ErrUnspentSurplus, total, outputTotal, fee)
	}

	return nil
}
