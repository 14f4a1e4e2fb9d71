// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package sweep plans transactions that move every output of a descriptor
// pair either to a single script or, output by output, to the same branch
// and index of another descriptor pair.
package sweep

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcsweep/pkg/btcunit"
	"github.com/btcsuite/btcsweep/wallet"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/lightningnetwork/lnd/fn/v2"
)

var (
	// ErrNoUtxos is returned when there is nothing to sweep.
	ErrNoUtxos = errors.New("no unspent outputs to sweep")

	// ErrMissingDestination is returned when a request has no
	// destination.
	ErrMissingDestination = errors.New("missing sweep destination")

	// ErrZeroGapLimit is returned when a descriptor to descriptor sweep
	// has no indices to search.
	ErrZeroGapLimit = errors.New("gap limit must be positive")

	// ErrUnexpectedTrial is returned when the trial transaction does not
	// report the fee it lacks.
	ErrUnexpectedTrial = errors.New("unexpected trial transaction result")

	// ErrNothingLeft is returned when the fee consumes every output.
	ErrNothingLeft = errors.New("fee consumes every output")
)

// Facade is what the planner needs from the wallet owning the outputs.
type Facade interface {
	ScriptDeriver

	// CreateTransaction creates an unsigned transaction from the intent.
	CreateTransaction(ctx context.Context,
		intent *wallet.TxIntent) (*wallet.Tx, error)
}

// A compile time check to ensure the wallet can back the planner.
var _ Facade = (*wallet.Wallet)(nil)

// Destination is a sealed interface over where swept funds go: a single
// script or a descriptor pair.
type Destination interface {
	// isDestination is a marker method that is part of the sealed
	// interface pattern.
	isDestination()
}

// DestinationScript sends everything to one script.
type DestinationScript struct {
	// PkScript is the locking script of the only output.
	PkScript []byte
}

// DestinationPair sends every output to the script at the same branch and
// index of another descriptor pair.
type DestinationPair struct {
	// Scripts derives the destination scripts.
	Scripts ScriptDeriver
}

// isDestination marks DestinationScript as a Destination.
func (*DestinationScript) isDestination() {}

// isDestination marks DestinationPair as a Destination.
func (*DestinationPair) isDestination() {}

// A compile-time assertion to ensure that all types implementing the
// Destination interface adhere to it.
var _ Destination = (*DestinationScript)(nil)
var _ Destination = (*DestinationPair)(nil)

// Request describes a sweep.
type Request struct {
	// Utxos are the outputs to sweep, all of which are spent.
	Utxos []wallet.Utxo

	// GapLimit is the number of indices per branch searched when
	// resolving outputs for a DestinationPair.
	GapLimit uint32

	// FeeRate is the fee rate the sweep pays.
	FeeRate btcunit.SatPerKVByte

	// Destination is where the funds go.
	Destination Destination
}

// Source is the output an output of the plan sweeps.
type Source struct {
	// Utxo is the swept output.
	Utxo wallet.Utxo

	// Resolution locates the script of the output in the source pair,
	// and thus of the destination in the destination pair.
	Resolution Resolution

	// Share is the part of the fee the output pays.
	Share btcutil.Amount
}

// Output is an output of the planned transaction.
type Output struct {
	// PkScript is the locking script of the output.
	PkScript []byte

	// Value is the amount sent.
	Value btcutil.Amount

	// Source is the swept output, none when every input is drained into
	// this output.
	Source fn.Option[Source]
}

// Plan is a planned sweep transaction. The values of the outputs plus the
// fee always equal the values of the inputs.
type Plan struct {
	// Inputs are the outputs spent.
	Inputs []wallet.Utxo

	// Outputs are the outputs created, in transaction order.
	Outputs []Output

	// Fee is the absolute fee of the transaction.
	Fee btcutil.Amount

	// Tx is the unsigned transaction.
	Tx *wallet.Tx
}

// TotalInput returns the value of the swept outputs.
func (p *Plan) TotalInput() btcutil.Amount {
	var total btcutil.Amount
	for _, utxo := range p.Inputs {
		total += utxo.Value
	}

	return total
}

// TotalOutput returns the value sent to the destination.
func (p *Plan) TotalOutput() btcutil.Amount {
	var total btcutil.Amount
	for _, out := range p.Outputs {
		total += out.Value
	}

	return total
}

// Planner plans sweeps of the outputs owned by a source wallet.
type Planner struct {
	source Facade
}

// NewPlanner creates a planner over the source wallet.
func NewPlanner(source Facade) *Planner {
	return &Planner{source: source}
}

// validate checks the request is complete.
func (r *Request) validate() error {
	if len(r.Utxos) == 0 {
		return ErrNoUtxos
	}

	switch dest := r.Destination.(type) {
	case *DestinationScript:
		if len(dest.PkScript) == 0 {
			return ErrMissingDestination
		}

	case *DestinationPair:
		if dest.Scripts == nil {
			return ErrMissingDestination
		}

		if r.GapLimit == 0 {
			return ErrZeroGapLimit
		}

	case nil:
		return ErrMissingDestination

	default:
		return fmt.Errorf("%w: %T", ErrMissingDestination, dest)
	}

	return nil
}

// Plan plans the sweep. Any failure aborts the whole plan.
func (p *Planner) Plan(ctx context.Context, req *Request) (*Plan, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	switch dest := req.Destination.(type) {
	case *DestinationScript:
		return p.planDrain(ctx, req, dest)

	case *DestinationPair:
		return p.planPair(ctx, req, dest)

	default:
		return nil, fmt.Errorf("%w: %T", ErrMissingDestination, dest)
	}
}

// planDrain spends every output to a single script.
func (p *Planner) planDrain(ctx context.Context, req *Request,
	dest *DestinationScript) (*Plan, error) {

	tx, err := p.source.CreateTransaction(ctx, &wallet.TxIntent{
		Inputs:  req.Utxos,
		DrainTo: dest.PkScript,
		FeeRate: req.FeeRate,
	})
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		Inputs: req.Utxos,
		Outputs: []Output{{
			PkScript: dest.PkScript,
			Value:    btcutil.Amount(tx.Tx.TxOut[0].Value),
			Source:   fn.None[Source](),
		}},
		Fee: tx.Fee,
		Tx:  tx,
	}

	log.Infof("Planned sweep of %d outputs worth %v to one script with "+
		"fee %v", len(req.Utxos), plan.TotalInput(), plan.Fee)

	return plan, nil
}

// planPair maps every output to the same branch and index of the
// destination pair. The fee is discovered by a trial transaction at full
// value and split evenly over the outputs.
func (p *Planner) planPair(ctx context.Context, req *Request,
	dest *DestinationPair) (*Plan, error) {

	res, err := newResolver(p.source, req.GapLimit)
	if err != nil {
		return nil, err
	}

	resolutions, err := res.resolveAll(req.Utxos)
	if err != nil {
		return nil, err
	}

	scripts := make([][]byte, 0, len(req.Utxos))
	for _, r := range resolutions {
		script, err := dest.Scripts.DeriveScript(r.Branch, r.Index)
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, script)
	}

	share, err := p.feeShare(ctx, req, scripts)
	if err != nil {
		return nil, err
	}

	plan := &Plan{Inputs: req.Utxos}

	outputs := make([]wire.TxOut, 0, len(req.Utxos))
	for i, utxo := range req.Utxos {
		value := utxo.Value - share

		// An output that cannot pay its share, or would be left as
		// dust, pays its whole value as fee and is left out.
		if value <= 0 || txrules.IsDustOutput(&wire.TxOut{
			Value:    int64(value),
			PkScript: scripts[i],
		}, txrules.DefaultRelayFeePerKb) {

			log.Warnf("Output %v of %v is left out, its value goes "+
				"to the fee of %v", utxo.OutPoint, utxo.Value,
				share)

			plan.Fee += utxo.Value

			continue
		}

		plan.Fee += share
		outputs = append(outputs, wire.TxOut{
			Value:    int64(value),
			PkScript: scripts[i],
		})
		plan.Outputs = append(plan.Outputs, Output{
			PkScript: scripts[i],
			Value:    value,
			Source: fn.Some(Source{
				Utxo:       utxo,
				Resolution: resolutions[i],
				Share:      share,
			}),
		})
	}

	if len(outputs) == 0 {
		return nil, fmt.Errorf("%w: fee share %v per output",
			ErrNothingLeft, share)
	}

	// An insufficient funds error here means the trial lied, and is
	// returned as is.
	tx, err := p.source.CreateTransaction(ctx, &wallet.TxIntent{
		Inputs:  req.Utxos,
		Outputs: outputs,
		Fee:     fn.Some(plan.Fee),
	})
	if err != nil {
		return nil, err
	}
	plan.Tx = tx

	log.Infof("Planned sweep of %d outputs worth %v to %d outputs with "+
		"fee %v", len(req.Utxos), plan.TotalInput(), len(plan.Outputs),
		plan.Fee)

	return plan, nil
}

// feeShare builds the trial transaction sending every output at full value
// and returns the per-output share of the fee it lacks, rounded up.
func (p *Planner) feeShare(ctx context.Context, req *Request,
	scripts [][]byte) (btcutil.Amount, error) {

	outputs := make([]wire.TxOut, 0, len(req.Utxos))
	for i, utxo := range req.Utxos {
		outputs = append(outputs, wire.TxOut{
			Value:    int64(utxo.Value),
			PkScript: scripts[i],
		})
	}

	_, err := p.source.CreateTransaction(ctx, &wallet.TxIntent{
		Inputs:  req.Utxos,
		Outputs: outputs,
		FeeRate: req.FeeRate,
	})

	var insufficient *wallet.InsufficientFundsError
	switch {
	case err == nil:
		return 0, fmt.Errorf("%w: trial transaction pays no fee",
			ErrUnexpectedTrial)

	case !errors.As(err, &insufficient):
		return 0, err
	}

	fee := insufficient.Shortfall()
	if fee <= 0 {
		return 0, fmt.Errorf("%w: shortfall of %v", ErrUnexpectedTrial,
			fee)
	}

	n := btcutil.Amount(len(req.Utxos))
	share := (fee + n - 1) / n

	log.Debugf("Trial transaction lacks %v, %v per output", fee, share)

	return share, nil
}
