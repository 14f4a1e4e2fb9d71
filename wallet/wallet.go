// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package wallet provides a watch-only wallet over a receive and change
// descriptor pair. It derives the scripts of both branches, lists their
// unspent outputs through a chain backend and assembles unsigned PSBTs that
// spend them. It holds no private keys.
package wallet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcsweep/chain"
	"github.com/btcsuite/btcsweep/descriptor"
	"github.com/btcsuite/btcsweep/pkg/btcunit"
	"github.com/lightningnetwork/lnd/fn/v2"
)

const (
	// DefaultScanRange is the number of indices per branch scanned for
	// unspent outputs when the config leaves it unset.
	DefaultScanRange = 1000
)

var (
	// ErrNetworkMismatch is returned when a descriptor was parsed for a
	// different network than the wallet's.
	ErrNetworkMismatch = errors.New("descriptor network mismatch")

	// ErrUnknownBranch is returned for a branch other than Receive or
	// Change.
	ErrUnknownBranch = errors.New("unknown branch")
)

// Branch is one of the two descriptors of a pair.
type Branch uint8

const (
	// BranchReceive is the external branch that hands out receive
	// addresses.
	BranchReceive Branch = iota

	// BranchChange is the internal branch used for change.
	BranchChange
)

// Branches lists the branches in lookup order.
var Branches = []Branch{BranchReceive, BranchChange}

// String returns the name of the branch.
func (b Branch) String() string {
	switch b {
	case BranchReceive:
		return "receive"

	case BranchChange:
		return "change"

	default:
		return fmt.Sprintf("branch(%d)", uint8(b))
	}
}

// DescriptorPair is a receive descriptor and its change descriptor.
type DescriptorPair struct {
	// Receive is the descriptor of the receive branch.
	Receive *descriptor.Descriptor

	// Change is the descriptor of the change branch.
	Change *descriptor.Descriptor
}

// validate checks both descriptors are set and share a network.
func (p *DescriptorPair) validate(params *chaincfg.Params) error {
	if p.Receive == nil {
		return errors.New("missing receive descriptor")
	}

	if p.Change == nil {
		return errors.New("missing change descriptor")
	}

	for _, desc := range []*descriptor.Descriptor{p.Receive, p.Change} {
		if desc.Params().Net != params.Net {
			return fmt.Errorf("%w: %s is for %s, want %s",
				ErrNetworkMismatch, desc, desc.Params().Name,
				params.Name)
		}
	}

	return nil
}

// Descriptor returns the descriptor of a branch.
func (p *DescriptorPair) Descriptor(
	branch Branch) (*descriptor.Descriptor, error) {

	switch branch {
	case BranchReceive:
		return p.Receive, nil

	case BranchChange:
		return p.Change, nil

	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownBranch, branch)
	}
}

// DeriveScript returns the locking script at index on the given branch.
func (p *DescriptorPair) DeriveScript(branch Branch,
	index uint32) ([]byte, error) {

	desc, err := p.Descriptor(branch)
	if err != nil {
		return nil, err
	}

	derived, err := desc.Derive(index)
	if err != nil {
		return nil, fmt.Errorf("derive %v/%d: %w", branch, index, err)
	}

	return derived.PkScript, nil
}

// Utxo is an unspent output locked by one of the wallet's scripts.
type Utxo struct {
	chain.Utxo

	// Branch and Index locate the script that locks the output.
	Branch Branch
	Index  uint32
}

// Config holds the configuration of a wallet.
type Config struct {
	// Descriptors is the descriptor pair the wallet watches.
	Descriptors DescriptorPair

	// Backend answers the chain queries.
	Backend chain.Backend

	// ChainParams is the network of the wallet.
	ChainParams *chaincfg.Params

	// ScanRange is the number of indices per branch searched for
	// unspent outputs. Descriptors without a wildcard only have index
	// zero.
	ScanRange uint32
}

// validate checks the required config options are set.
func (c *Config) validate() error {
	if c == nil {
		return errors.New("missing wallet config")
	}

	if c.ChainParams == nil {
		return errors.New("missing chain params config")
	}

	if c.Backend == nil {
		return errors.New("missing chain backend")
	}

	return c.Descriptors.validate(c.ChainParams)
}

// Wallet is a watch-only wallet over a descriptor pair.
type Wallet struct {
	descs       DescriptorPair
	backend     chain.Backend
	chainParams *chaincfg.Params
	scanRange   uint32
}

// New creates a wallet from the config.
func New(cfg *Config) (*Wallet, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	scanRange := cfg.ScanRange
	if scanRange == 0 {
		scanRange = DefaultScanRange
	}

	return &Wallet{
		descs:       cfg.Descriptors,
		backend:     cfg.Backend,
		chainParams: cfg.ChainParams,
		scanRange:   scanRange,
	}, nil
}

// ChainParams returns the network of the wallet.
func (w *Wallet) ChainParams() *chaincfg.Params {
	return w.chainParams
}

// Descriptors returns the descriptor pair of the wallet.
func (w *Wallet) Descriptors() DescriptorPair {
	return w.descs
}

// DeriveScript returns the locking script at index on the given branch.
func (w *Wallet) DeriveScript(branch Branch, index uint32) ([]byte, error) {
	return w.descs.DeriveScript(branch, index)
}

// EstimateFeeRate asks the backend for a fee rate expected to confirm
// within target blocks.
func (w *Wallet) EstimateFeeRate(ctx context.Context,
	target uint32) (btcunit.SatPerKVByte, error) {

	return w.backend.EstimateFeeRate(ctx, target)
}

// scriptLocation is where a script was derived.
type scriptLocation struct {
	branch Branch
	index  uint32
}

// scanIndices returns the number of indices worth scanning on a
// descriptor.
func (w *Wallet) scanIndices(desc *descriptor.Descriptor) uint32 {
	if !desc.IsRange() {
		return 1
	}

	return w.scanRange
}

// ListUnspent returns the unspent outputs locked by the scripts of both
// branches within the scan range, ordered by branch, index and outpoint.
// A script derived on both branches is attributed to the receive branch.
func (w *Wallet) ListUnspent(ctx context.Context) ([]Utxo, error) {
	var (
		scripts   [][]byte
		locations = make(map[string]scriptLocation)
	)

	for _, branch := range Branches {
		desc, err := w.descs.Descriptor(branch)
		if err != nil {
			return nil, err
		}

		for i := uint32(0); i < w.scanIndices(desc); i++ {
			script, err := w.descs.DeriveScript(branch, i)
			if err != nil {
				return nil, err
			}

			key := string(script)
			if _, ok := locations[key]; ok {
				continue
			}

			locations[key] = scriptLocation{branch: branch, index: i}
			scripts = append(scripts, script)
		}
	}

	log.Debugf("Looking up unspent outputs of %d scripts", len(scripts))

	found, err := w.backend.FetchUtxos(ctx, scripts)
	if err != nil {
		return nil, fmt.Errorf("fetch utxos: %w", err)
	}

	seen := fn.NewSet[wire.OutPoint]()
	utxos := make([]Utxo, 0, len(found))
	for _, utxo := range found {
		if seen.Contains(utxo.OutPoint) {
			continue
		}
		seen.Add(utxo.OutPoint)

		loc, ok := locations[string(utxo.PkScript)]
		if !ok {
			log.Warnf("Backend returned output %v with unknown "+
				"script %x", utxo.OutPoint, utxo.PkScript)

			continue
		}

		utxos = append(utxos, Utxo{
			Utxo:   utxo,
			Branch: loc.branch,
			Index:  loc.index,
		})
	}

	sortUtxos(utxos)

	var total btcutil.Amount
	for _, utxo := range utxos {
		total += utxo.Value
	}
	log.Infof("Found %d unspent outputs worth %v", len(utxos), total)

	return utxos, nil
}

// sortUtxos orders outputs by branch, index and outpoint.
func sortUtxos(utxos []Utxo) {
	sort.Slice(utxos, func(i, j int) bool {
		a, b := utxos[i], utxos[j]

		if a.Branch != b.Branch {
			return a.Branch < b.Branch
		}

		if a.Index != b.Index {
			return a.Index < b.Index
		}

		cmp := bytes.Compare(a.OutPoint.Hash[:], b.OutPoint.Hash[:])
		if cmp != 0 {
			return cmp < 0
		}

		return a.OutPoint.Index < b.OutPoint.Index
	})
}

// Stop releases the chain backend.
func (w *Wallet) Stop() {
	w.backend.Stop()
}
