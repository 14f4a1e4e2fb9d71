// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// btcsweep builds an unsigned transaction moving every output of a
// descriptor pair to an address, or to the same branch and index of another
// descriptor pair. Descriptors and addresses are read as text or as UR, and
// the transaction is printed as a PSBT in base64 and as a crypto-psbt UR.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcsweep/descriptor"
	"github.com/btcsuite/btcsweep/pkg/btcunit"
	"github.com/btcsuite/btcsweep/sweep"
	"github.com/btcsuite/btcsweep/ur"
	"github.com/btcsuite/btcsweep/wallet"
	flags "github.com/jessevdk/go-flags"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	err := run(ctx, os.Args[1:])
	if err == nil {
		return
	}

	// Help output is not an error.
	var flagErr *flags.Error
	if errors.As(err, &flagErr) && flagErr.Type == flags.ErrHelp {
		fmt.Fprintln(os.Stdout, err)
		return
	}

	if werr := writeError(os.Stderr, err); werr != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	cancel()
	os.Exit(1)
}

// run parses the options, plans the sweep and prints the result.
func run(ctx context.Context, args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return withKind(kindConfig, err)
	}

	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		return withKind(kindConfig, err)
	}

	if logFile := cfg.logFile(); logFile != "" {
		closer, err := initLogRotator(logFile)
		if err != nil {
			return withKind(kindConfig, err)
		}
		defer closer.Close()
	}

	params, err := cfg.params()
	if err != nil {
		return withKind(kindConfig, err)
	}

	source, err := parsePair(
		cfg.Descriptor, cfg.ChangeDescriptor, cfg.Checksum, params,
	)
	if err != nil {
		return err
	}

	dest, err := parseDestination(cfg, params)
	if err != nil {
		return err
	}

	backend, err := cfg.newBackend()
	if err != nil {
		return withKind(kindBackend, err)
	}

	w, err := wallet.New(&wallet.Config{
		Descriptors: source,
		Backend:     backend,
		ChainParams: params,
		ScanRange:   cfg.ScanRange,
	})
	if err != nil {
		backend.Stop()
		return withKind(kindDescriptor, err)
	}
	defer w.Stop()

	feeRate, err := resolveFeeRate(ctx, cfg, w)
	if err != nil {
		return withKind(kindBackend, err)
	}

	utxos, err := w.ListUnspent(ctx)
	if err != nil {
		return withKind(kindBackend, err)
	}

	log.Infof("Found %d unspent outputs, sweeping at %v", len(utxos),
		feeRate.ToSatPerVByte())

	plan, err := sweep.NewPlanner(w).Plan(ctx, &sweep.Request{
		Utxos:       utxos,
		GapLimit:    cfg.GapLimit,
		FeeRate:     feeRate,
		Destination: dest,
	})
	if err != nil {
		return withKind(kindSweep, err)
	}

	out, err := newSweepOutput(plan, params, time.Now())
	if err != nil {
		return err
	}

	return writeJSON(os.Stdout, out)
}

// parsePair parses a receive and change descriptor given as text or UR.
func parsePair(receive, change string, withChecksum bool,
	params *chaincfg.Params) (wallet.DescriptorPair, error) {

	parse := func(s string) (*descriptor.Descriptor, error) {
		text, err := ur.ResolveDescriptor(s, withChecksum)
		if err != nil {
			return nil, withKind(kindDescriptor, err)
		}

		desc, err := descriptor.Parse(text, params)
		if err != nil {
			return nil, withKind(kindDescriptor, err)
		}

		return desc, nil
	}

	recv, err := parse(receive)
	if err != nil {
		return wallet.DescriptorPair{}, err
	}

	chg, err := parse(change)
	if err != nil {
		return wallet.DescriptorPair{}, err
	}

	return wallet.DescriptorPair{Receive: recv, Change: chg}, nil
}

// parseDestination returns the destination of the sweep: the address, or
// the destination descriptor pair.
func parseDestination(cfg *config,
	params *chaincfg.Params) (sweep.Destination, error) {

	if cfg.Address == "" {
		pair, err := parsePair(
			cfg.DestDescriptor, cfg.DestChangeDescriptor,
			cfg.Checksum, params,
		)
		if err != nil {
			return nil, err
		}

		return &sweep.DestinationPair{Scripts: &pair}, nil
	}

	addr, err := ur.ResolveAddress(cfg.Address, params)
	if err != nil {
		return nil, withKind(kindAddress, err)
	}

	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, withKind(kindAddress, err)
	}

	return &sweep.DestinationScript{PkScript: pkScript}, nil
}

// resolveFeeRate returns the fee rate override, or estimates one for the
// confirmation target.
func resolveFeeRate(ctx context.Context, cfg *config,
	w *wallet.Wallet) (btcunit.SatPerKVByte, error) {

	rate, ok, err := cfg.feeRate()
	if err != nil || ok {
		return rate, err
	}

	return w.EstimateFeeRate(ctx, cfg.Target)
}
