// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chain provides the read only chain queries a sweep needs: the
// unspent outputs of a set of scripts, a fee rate estimate and previous
// transactions. Two backends implement them, a bitcoind node over JSON-RPC
// and an Esplora server over REST.
package chain

import (
	"context"
	"errors"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcsweep/pkg/btcunit"
)

var (
	// ErrNoFeeEstimate is returned when the backend has no estimate for
	// the requested confirmation target.
	ErrNoFeeEstimate = errors.New("no fee estimate available")

	// ErrTxNotFound is returned when a transaction is unknown to the
	// backend.
	ErrTxNotFound = errors.New("transaction not found")
)

// Utxo is an unspent output as reported by a backend.
type Utxo struct {
	// OutPoint is the outpoint of the output.
	OutPoint wire.OutPoint

	// Value is the amount held by the output.
	Value btcutil.Amount

	// PkScript is the locking script of the output.
	PkScript []byte

	// Height is the confirmation height, zero for mempool outputs.
	Height int32
}

// Backend is the chain query interface used by the wallet.
type Backend interface {
	// FetchUtxos returns the unspent outputs locked by any of the given
	// scripts.
	FetchUtxos(ctx context.Context, pkScripts [][]byte) ([]Utxo, error)

	// EstimateFeeRate returns a fee rate expected to confirm a
	// transaction within target blocks.
	EstimateFeeRate(ctx context.Context,
		target uint32) (btcunit.SatPerKVByte, error)

	// FetchTx returns the transaction with the given hash.
	FetchTx(ctx context.Context, hash chainhash.Hash) (*wire.MsgTx, error)

	// Stop releases the resources held by the backend.
	Stop()
}
