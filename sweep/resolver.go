// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sweep

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcsweep/wallet"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// ErrAddressNotFound is returned when an output's script is not among the
// scripts derived within the gap limit.
var ErrAddressNotFound = errors.New("address not found")

// AddressNotFoundError details an output that could not be resolved.
type AddressNotFoundError struct {
	// OutPoint is the unresolved output.
	OutPoint wire.OutPoint

	// PkScript is its locking script.
	PkScript []byte

	// GapLimit is the number of indices searched per branch.
	GapLimit uint32
}

// Error returns a message telling the user to raise the gap limit.
func (e *AddressNotFoundError) Error() string {
	return fmt.Sprintf("%v: output %v (script %x) is not derived within "+
		"the first %d indices of either descriptor, raise the gap "+
		"limit", ErrAddressNotFound, e.OutPoint, e.PkScript, e.GapLimit)
}

// Unwrap returns ErrAddressNotFound.
func (e *AddressNotFoundError) Unwrap() error {
	return ErrAddressNotFound
}

// Resolution is the branch and index of the script locking an output.
type Resolution struct {
	Branch wallet.Branch
	Index  uint32
}

// String returns the resolution as branch/index.
func (r Resolution) String() string {
	return fmt.Sprintf("%v/%d", r.Branch, r.Index)
}

// ScriptDeriver derives the scripts of a descriptor pair.
type ScriptDeriver interface {
	// DeriveScript returns the locking script at index on the given
	// branch.
	DeriveScript(branch wallet.Branch, index uint32) ([]byte, error)
}

// resolver maps scripts to the first branch and index deriving them. It is
// built once per sweep and only read afterwards.
type resolver struct {
	table    map[string]Resolution
	gapLimit uint32
}

// newResolver derives indices 0 to gapLimit-1 of the receive branch, then
// of the change branch. When a script repeats, the first location wins.
func newResolver(source ScriptDeriver, gapLimit uint32) (*resolver, error) {
	table := make(map[string]Resolution, 2*int(gapLimit))

	for _, branch := range wallet.Branches {
		for i := uint32(0); i < gapLimit; i++ {
			script, err := source.DeriveScript(branch, i)
			if err != nil {
				return nil, err
			}

			key := string(script)
			if _, ok := table[key]; ok {
				continue
			}

			table[key] = Resolution{Branch: branch, Index: i}
		}
	}

	return &resolver{
		table:    table,
		gapLimit: gapLimit,
	}, nil
}

// Resolve returns the location of a script, if derived.
func (r *resolver) Resolve(pkScript []byte) fn.Option[Resolution] {
	res, ok := r.table[string(pkScript)]
	if !ok {
		return fn.None[Resolution]()
	}

	return fn.Some(res)
}

// resolveAll resolves every output, failing on the first one outside the
// gap limit.
func (r *resolver) resolveAll(utxos []wallet.Utxo) ([]Resolution, error) {
	resolutions := make([]Resolution, 0, len(utxos))
	for _, utxo := range utxos {
		res, err := r.Resolve(utxo.PkScript).UnwrapOrErr(
			&AddressNotFoundError{
				OutPoint: utxo.OutPoint,
				PkScript: utxo.PkScript,
				GapLimit: r.gapLimit,
			},
		)
		if err != nil {
			return nil, err
		}

		log.Tracef("Resolved output %v to %v", utxo.OutPoint, res)

		resolutions = append(resolutions, res)
	}

	return resolutions, nil
}
