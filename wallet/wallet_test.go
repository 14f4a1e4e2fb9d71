package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcsweep/chain"
	"github.com/btcsuite/btcsweep/descriptor"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	// legacyXpub is the account key of a pkh wallet at
	// [c258d2e4/44h/1h/0h].
	legacyXpub = "tpubD6NzVbkrYhZ4Yg9Rz1bXTTrc4TqZ8odbPaXrnrWX6cbDsXvH96F" +
		"LDeRsckXohEkzGdAn5hbtK6iN7pCB1DeUpVwofEXCsN2StwWtU2SxE3f"

	// segwitXpub is the account key of a wpkh wallet at
	// [c258d2e4/84h/1h/1h].
	segwitXpub = "tpubDDYkZojQFQjht8Tm4jsS3iuEmKjTiEGjG6KnuFNKKJb5A6ZUCUZ" +
		"KdvLdSDWofKi4ToRCwb9poe1XdqfUnP4jaJjCB2Zwv11ZLgSbnZSNecE"
)

// mustParse parses a descriptor for regtest.
func mustParse(t *testing.T, desc string) *descriptor.Descriptor {
	t.Helper()

	parsed, err := descriptor.Parse(desc, &chaincfg.RegressionNetParams)
	require.NoError(t, err)

	return parsed
}

// legacyPair returns the pkh descriptor pair.
func legacyPair(t *testing.T) DescriptorPair {
	t.Helper()

	return DescriptorPair{
		Receive: mustParse(
			t, "pkh([c258d2e4/44h/1h/0h]"+legacyXpub+"/0/*)",
		),
		Change: mustParse(
			t, "pkh([c258d2e4/44h/1h/0h]"+legacyXpub+"/1/*)",
		),
	}
}

// segwitPair returns the wpkh descriptor pair.
func segwitPair(t *testing.T) DescriptorPair {
	t.Helper()

	return DescriptorPair{
		Receive: mustParse(
			t, "wpkh([c258d2e4/84h/1h/1h]"+segwitXpub+"/0/*)",
		),
		Change: mustParse(
			t, "wpkh([c258d2e4/84h/1h/1h]"+segwitXpub+"/1/*)",
		),
	}
}

// newTestWallet creates a wallet over the pair and a mock backend.
func newTestWallet(t *testing.T, pair DescriptorPair,
	scanRange uint32) (*Wallet, *mockBackend) {

	t.Helper()

	backend := &mockBackend{}
	w, err := New(&Config{
		Descriptors: pair,
		Backend:     backend,
		ChainParams: &chaincfg.RegressionNetParams,
		ScanRange:   scanRange,
	})
	require.NoError(t, err)

	return w, backend
}

// TestConfigValidate tests the wallet config checks.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	_, err := New(nil)
	require.ErrorContains(t, err, "missing wallet config")

	cfg := &Config{}
	_, err = New(cfg)
	require.ErrorContains(t, err, "missing chain params")

	cfg.ChainParams = &chaincfg.RegressionNetParams
	_, err = New(cfg)
	require.ErrorContains(t, err, "missing chain backend")

	cfg.Backend = &mockBackend{}
	_, err = New(cfg)
	require.ErrorContains(t, err, "missing receive descriptor")

	pair := segwitPair(t)
	cfg.Descriptors.Receive = pair.Receive
	_, err = New(cfg)
	require.ErrorContains(t, err, "missing change descriptor")

	// Testnet and regtest share extended key versions, so the descriptor
	// parses but belongs to another network.
	testnet, err := descriptor.Parse(
		"wpkh("+segwitXpub+"/1/*)", &chaincfg.TestNet3Params,
	)
	require.NoError(t, err)

	cfg.Descriptors.Change = testnet
	_, err = New(cfg)
	require.ErrorIs(t, err, ErrNetworkMismatch)

	cfg.Descriptors.Change = pair.Change
	w, err := New(cfg)
	require.NoError(t, err)
	require.Equal(t, uint32(DefaultScanRange), w.scanRange)
}

// TestDeriveScript tests script derivation per branch.
func TestDeriveScript(t *testing.T) {
	t.Parallel()

	pair := segwitPair(t)
	w, _ := newTestWallet(t, pair, 10)

	for _, branch := range Branches {
		desc, err := pair.Descriptor(branch)
		require.NoError(t, err)

		derived, err := desc.Derive(7)
		require.NoError(t, err)

		script, err := w.DeriveScript(branch, 7)
		require.NoError(t, err)
		require.Equal(t, derived.PkScript, script)
	}

	receive, err := w.DeriveScript(BranchReceive, 0)
	require.NoError(t, err)

	change, err := w.DeriveScript(BranchChange, 0)
	require.NoError(t, err)
	require.NotEqual(t, receive, change)

	_, err = w.DeriveScript(Branch(2), 0)
	require.ErrorIs(t, err, ErrUnknownBranch)
	require.Equal(t, "branch(2)", Branch(2).String())
}

// TestListUnspent tests the scan over both branches.
func TestListUnspent(t *testing.T) {
	t.Parallel()

	w, backend := newTestWallet(t, segwitPair(t), 3)

	script := func(branch Branch, index uint32) []byte {
		s, err := w.DeriveScript(branch, index)
		require.NoError(t, err)

		return s
	}

	utxo := func(branch Branch, index uint32, hash byte,
		value btcutil.Amount) chain.Utxo {

		return chain.Utxo{
			OutPoint: wire.OutPoint{Hash: chainhash.Hash{hash}},
			Value:    value,
			PkScript: script(branch, index),
			Height:   100,
		}
	}

	change2 := utxo(BranchChange, 2, 1, 3000)
	receive1 := utxo(BranchReceive, 1, 2, 1000)
	change0 := utxo(BranchChange, 0, 3, 2000)
	receive1b := utxo(BranchReceive, 1, 4, 500)
	unknown := chain.Utxo{
		OutPoint: wire.OutPoint{Hash: chainhash.Hash{9}},
		Value:    700,
		PkScript: []byte{0x51},
	}

	backend.On("FetchUtxos", mock.Anything, mock.MatchedBy(
		func(scripts [][]byte) bool {
			return len(scripts) == 6
		},
	)).Return([]chain.Utxo{
		change2, receive1, change0, receive1b, unknown, change2,
	}, nil).Once()

	utxos, err := w.ListUnspent(context.Background())
	require.NoError(t, err)

	require.Equal(t, []Utxo{
		{Utxo: receive1, Branch: BranchReceive, Index: 1},
		{Utxo: receive1b, Branch: BranchReceive, Index: 1},
		{Utxo: change0, Branch: BranchChange, Index: 0},
		{Utxo: change2, Branch: BranchChange, Index: 2},
	}, utxos)

	backend.AssertExpectations(t)
}

// TestListUnspentSingleKey tests that a descriptor without wildcard is only
// scanned once.
func TestListUnspentSingleKey(t *testing.T) {
	t.Parallel()

	const key = "022f01e5e15cca351daff3843fb70f3c2f0a1bdd05e5af888a67784e" +
		"f3e10a2a01"

	pair := DescriptorPair{
		Receive: mustParse(t, "wpkh("+key+")"),
		Change:  mustParse(t, "wpkh("+key+")"),
	}
	w, backend := newTestWallet(t, pair, 100)

	// Both branches derive the same script, which is only looked up
	// once.
	backend.On("FetchUtxos", mock.Anything, mock.MatchedBy(
		func(scripts [][]byte) bool {
			return len(scripts) == 1
		},
	)).Return([]chain.Utxo{}, nil).Once()

	utxos, err := w.ListUnspent(context.Background())
	require.NoError(t, err)
	require.Empty(t, utxos)

	backend.On("FetchUtxos", mock.Anything, mock.Anything).Return(
		nil, errors.New("backend down"),
	).Once()

	_, err = w.ListUnspent(context.Background())
	require.ErrorContains(t, err, "backend down")

	backend.AssertExpectations(t)
}

// TestEstimateFeeRateAndStop tests the calls forwarded to the backend.
func TestEstimateFeeRateAndStop(t *testing.T) {
	t.Parallel()

	w, backend := newTestWallet(t, segwitPair(t), 1)

	backend.On("EstimateFeeRate", mock.Anything, uint32(6)).Return(
		DefaultMaxFeeRate, nil,
	).Once()
	backend.On("Stop").Return().Once()

	rate, err := w.EstimateFeeRate(context.Background(), 6)
	require.NoError(t, err)
	require.Zero(t, rate.Cmp(DefaultMaxFeeRate))

	w.Stop()

	backend.AssertExpectations(t)
}
