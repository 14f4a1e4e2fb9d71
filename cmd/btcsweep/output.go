// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcsweep/sweep"
	"github.com/btcsuite/btcsweep/ur"
)

// Error kinds reported to the caller.
const (
	kindConfig     = "config"
	kindDescriptor = "descriptor"
	kindAddress    = "address"
	kindBackend    = "backend"
	kindSweep      = "sweep"
	kindEncode     = "encode"
)

// psbtOutput is the unsigned transaction in both text encodings.
type psbtOutput struct {
	Base64 string `json:"base64"`
	UR     string `json:"ur"`
}

// sweepOutput is the result printed on success.
type sweepOutput struct {
	Amount    btcutil.Amount `json:"amount"`
	Fees      btcutil.Amount `json:"fees"`
	Address   []string       `json:"address,omitempty"`
	Timestamp int64          `json:"timestamp"`
	TxID      string         `json:"txid"`
	PSBT      psbtOutput     `json:"psbt"`
}

// sweepError is an error tagged with the stage that failed. It is printed
// as {kind, message}.
type sweepError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`

	err error
}

// Error returns the message of the wrapped error.
func (e *sweepError) Error() string {
	return e.err.Error()
}

// Unwrap returns the wrapped error.
func (e *sweepError) Unwrap() error {
	return e.err
}

// withKind tags a non-nil error with a kind.
func withKind(kind string, err error) error {
	if err == nil {
		return nil
	}

	return &sweepError{Kind: kind, Message: err.Error(), err: err}
}

// newSweepOutput builds the result of a plan. The timestamp is the time the
// plan was made.
func newSweepOutput(plan *sweep.Plan, params *chaincfg.Params,
	now time.Time) (*sweepOutput, error) {

	packet := plan.Tx.Packet

	b64, err := packet.B64Encode()
	if err != nil {
		return nil, withKind(kindEncode, err)
	}

	urText, err := ur.EncodePSBT(packet)
	if err != nil {
		return nil, withKind(kindEncode, err)
	}

	// Outputs to scripts without an address, such as bare multisig, are
	// left out of the address list.
	addrs := make([]string, 0, len(plan.Outputs))
	for _, out := range plan.Outputs {
		_, outAddrs, _, err := txscript.ExtractPkScriptAddrs(
			out.PkScript, params,
		)
		if err != nil || len(outAddrs) != 1 {
			continue
		}

		addrs = append(addrs, outAddrs[0].EncodeAddress())
	}

	return &sweepOutput{
		Amount:    plan.TotalOutput(),
		Fees:      plan.Fee,
		Address:   addrs,
		Timestamp: now.Unix(),
		TxID:      plan.Tx.Tx.TxHash().String(),
		PSBT: psbtOutput{
			Base64: b64,
			UR:     urText,
		},
	}, nil
}

// writeJSON writes v as a single line of JSON.
func writeJSON(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

// writeError writes err as {kind, message}. Errors without a kind are
// reported as sweep errors.
func writeError(w io.Writer, err error) error {
	var sErr *sweepError
	if !errors.As(err, &sErr) {
		sErr = &sweepError{Kind: kindSweep, Message: err.Error()}
	}

	return writeJSON(w, sErr)
}
