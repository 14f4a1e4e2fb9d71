package wallet

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcsweep/chain"
	"github.com/btcsuite/btcsweep/pkg/btcunit"
	"github.com/stretchr/testify/mock"
)

// mockBackend is a mock implementation of the chain.Backend interface.
type mockBackend struct {
	mock.Mock
}

// A compile-time check to ensure that mockBackend satisfies the
// chain.Backend interface.
var _ chain.Backend = (*mockBackend)(nil)

func (m *mockBackend) FetchUtxos(ctx context.Context,
	pkScripts [][]byte) ([]chain.Utxo, error) {

	args := m.Called(ctx, pkScripts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]chain.Utxo), args.Error(1)
}

func (m *mockBackend) EstimateFeeRate(ctx context.Context,
	target uint32) (btcunit.SatPerKVByte, error) {

	args := m.Called(ctx, target)

	return args.Get(0).(btcunit.SatPerKVByte), args.Error(1)
}

func (m *mockBackend) FetchTx(ctx context.Context,
	hash chainhash.Hash) (*wire.MsgTx, error) {

	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*wire.MsgTx), args.Error(1)
}

func (m *mockBackend) Stop() {
	m.Called()
}
