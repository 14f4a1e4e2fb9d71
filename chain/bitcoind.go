// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcsweep/descriptor"
	"github.com/btcsuite/btcsweep/pkg/btcunit"
)

// rpcClient is the subset of the bitcoind RPC client used by the backend.
type rpcClient interface {
	RawRequest(method string, params []json.RawMessage) (json.RawMessage,
		error)
	EstimateSmartFee(confTarget int64, mode *btcjson.EstimateSmartFeeMode) (
		*btcjson.EstimateSmartFeeResult, error)
	GetRawTransaction(txHash *chainhash.Hash) (*btcutil.Tx, error)
	Shutdown()
}

// A compile-time check to ensure that the rpcclient satisfies the rpcClient
// interface.
var _ rpcClient = (*rpcclient.Client)(nil)

// BitcoindConfig defines the config options used when initializing the
// bitcoind backend.
type BitcoindConfig struct {
	// Conn describes the connection configuration parameters for the
	// client.
	Conn *rpcclient.ConnConfig

	// Chain defines a Bitcoin network by its parameters.
	Chain *chaincfg.Params

	// EstimateMode is the estimatesmartfee mode, conservative when
	// empty.
	EstimateMode btcjson.EstimateSmartFeeMode
}

// validate checks the required config options are set.
func (c *BitcoindConfig) validate() error {
	if c == nil {
		return errors.New("missing rpc config")
	}

	// Make sure the chain params are configed.
	if c.Chain == nil {
		return errors.New("missing chain params config")
	}

	// Make sure connection config is supplied.
	if c.Conn == nil {
		return errors.New("missing conn config")
	}

	if c.Conn.Host == "" {
		return errors.New("missing rpc host")
	}

	// If disableTLS is false, the remote RPC certificate must be provided
	// in the certs slice.
	if !c.Conn.DisableTLS && c.Conn.Certificates == nil {
		return errors.New("must provide certs when TLS is enabled")
	}

	return nil
}

// BitcoindBackend queries a bitcoind node over JSON-RPC. Unspent outputs are
// found with scantxoutset, so the node needs no wallet and the outputs must
// be confirmed.
type BitcoindBackend struct {
	client rpcClient
	chain  *chaincfg.Params
	mode   btcjson.EstimateSmartFeeMode
}

// A compile-time check to ensure that BitcoindBackend satisfies the Backend
// interface.
var _ Backend = (*BitcoindBackend)(nil)

// NewBitcoindBackend creates a bitcoind backend. The RPC client works in
// HTTP POST mode, so no connection is held between calls.
func NewBitcoindBackend(cfg *BitcoindConfig) (*BitcoindBackend, error) {
	// Make sure the config is valid.
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.Conn.HTTPPostMode = true

	client, err := rpcclient.New(cfg.Conn, nil)
	if err != nil {
		return nil, err
	}

	return newBitcoindBackend(client, cfg), nil
}

// newBitcoindBackend wraps an RPC client.
func newBitcoindBackend(client rpcClient,
	cfg *BitcoindConfig) *BitcoindBackend {

	mode := cfg.EstimateMode
	if mode == "" {
		mode = btcjson.EstimateModeConservative
	}

	return &BitcoindBackend{
		client: client,
		chain:  cfg.Chain,
		mode:   mode,
	}
}

// scanObject is one entry of the scanobjects argument of scantxoutset.
type scanObject struct {
	Desc string `json:"desc"`
}

// scanResult is the result of scantxoutset.
type scanResult struct {
	Success  bool          `json:"success"`
	Unspents []scanUnspent `json:"unspents"`
}

// scanUnspent is an output found by scantxoutset.
type scanUnspent struct {
	TxID         string  `json:"txid"`
	Vout         uint32  `json:"vout"`
	ScriptPubKey string  `json:"scriptPubKey"`
	Amount       float64 `json:"amount"`
	Height       int32   `json:"height"`
}

// FetchUtxos scans the UTXO set for outputs locked by the given scripts.
func (b *BitcoindBackend) FetchUtxos(ctx context.Context,
	pkScripts [][]byte) ([]Utxo, error) {

	if len(pkScripts) == 0 {
		return nil, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	objects := make([]scanObject, 0, len(pkScripts))
	for _, script := range pkScripts {
		desc, err := descriptor.AddChecksum(
			"raw(" + hex.EncodeToString(script) + ")",
		)
		if err != nil {
			return nil, err
		}
		objects = append(objects, scanObject{Desc: desc})
	}

	action, err := json.Marshal("start")
	if err != nil {
		return nil, err
	}

	scanObjects, err := json.Marshal(objects)
	if err != nil {
		return nil, err
	}

	log.Debugf("Scanning the UTXO set for %d scripts", len(pkScripts))

	raw, err := b.client.RawRequest(
		"scantxoutset", []json.RawMessage{action, scanObjects},
	)
	if err != nil {
		return nil, fmt.Errorf("scantxoutset: %w", err)
	}

	var result scanResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode scantxoutset result: %w", err)
	}

	if !result.Success {
		return nil, errors.New("scantxoutset was aborted")
	}

	utxos := make([]Utxo, 0, len(result.Unspents))
	for _, unspent := range result.Unspents {
		utxo, err := unspent.toUtxo()
		if err != nil {
			return nil, err
		}
		utxos = append(utxos, *utxo)
	}

	return utxos, nil
}

// toUtxo converts a scantxoutset entry.
func (u *scanUnspent) toUtxo() (*Utxo, error) {
	hash, err := chainhash.NewHashFromStr(u.TxID)
	if err != nil {
		return nil, fmt.Errorf("invalid txid %q: %w", u.TxID, err)
	}

	script, err := hex.DecodeString(u.ScriptPubKey)
	if err != nil {
		return nil, fmt.Errorf("invalid script %q: %w", u.ScriptPubKey,
			err)
	}

	value, err := btcutil.NewAmount(u.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %v: %w", u.Amount, err)
	}

	return &Utxo{
		OutPoint: *wire.NewOutPoint(hash, u.Vout),
		Value:    value,
		PkScript: script,
		Height:   u.Height,
	}, nil
}

// EstimateFeeRate returns the estimatesmartfee rate for the target.
func (b *BitcoindBackend) EstimateFeeRate(ctx context.Context,
	target uint32) (btcunit.SatPerKVByte, error) {

	if err := ctx.Err(); err != nil {
		return btcunit.SatPerKVByte{}, err
	}

	mode := b.mode
	result, err := b.client.EstimateSmartFee(int64(target), &mode)
	if err != nil {
		return btcunit.SatPerKVByte{}, fmt.Errorf("estimatesmartfee: %w",
			err)
	}

	// The node reports why it has no estimate, usually a lack of data
	// on fresh or test networks.
	if result.FeeRate == nil {
		return btcunit.SatPerKVByte{}, fmt.Errorf("%w for target %d: "+
			"%v", ErrNoFeeEstimate, target, result.Errors)
	}

	rate, err := btcunit.NewSatPerKVByteFromBTC(*result.FeeRate)
	if err != nil {
		return btcunit.SatPerKVByte{}, err
	}

	log.Debugf("Estimated fee rate %v for target %d", rate, target)

	return rate, nil
}

// FetchTx returns a transaction known to the node. Transactions outside the
// mempool need a node with txindex.
func (b *BitcoindBackend) FetchTx(ctx context.Context,
	hash chainhash.Hash) (*wire.MsgTx, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tx, err := b.client.GetRawTransaction(&hash)
	if err != nil {
		var rpcErr *btcjson.RPCError
		if errors.As(err, &rpcErr) &&
			rpcErr.Code == btcjson.ErrRPCNoTxInfo {

			return nil, fmt.Errorf("%w: %v", ErrTxNotFound, hash)
		}

		return nil, fmt.Errorf("getrawtransaction %v: %w", hash, err)
	}

	return tx.MsgTx(), nil
}

// Stop shuts the RPC client down.
func (b *BitcoindBackend) Stop() {
	b.client.Shutdown()
}
