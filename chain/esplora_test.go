package chain

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcsweep/pkg/btcunit"
	"github.com/stretchr/testify/require"
)

// newTestEsplora starts a server for the handler and a backend pointing to
// it.
func newTestEsplora(t *testing.T, handler http.Handler) *EsploraBackend {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	backend, err := NewEsploraBackend(&EsploraConfig{
		URL:            server.URL + "/",
		RequestTimeout: 5 * time.Second,
		MaxConcurrency: 2,
	})
	require.NoError(t, err)

	return backend
}

// TestScripthash tests the scripthash of a known script.
func TestScripthash(t *testing.T) {
	t.Parallel()

	// The P2PKH script of the genesis coinbase key hash, as used in the
	// Electrum protocol documentation.
	script, err := hex.DecodeString(
		"76a91462e907b15cbf27d5425399ebf6f0fb50ebb88f1888ac",
	)
	require.NoError(t, err)

	require.Equal(t, "8b01df4e368ea28f8dc0423bcf7a4923e3a12d307c875e47a0"+
		"cfbf90b5c39161", scripthashFromScript(script))
}

// TestEsploraConfigValidate tests the config checks.
func TestEsploraConfigValidate(t *testing.T) {
	t.Parallel()

	_, err := NewEsploraBackend(nil)
	require.ErrorContains(t, err, "missing esplora config")

	_, err = NewEsploraBackend(&EsploraConfig{})
	require.ErrorContains(t, err, "missing esplora url")

	_, err = NewEsploraBackend(&EsploraConfig{
		URL:        "http://localhost:3002",
		MaxRetries: -1,
	})
	require.ErrorContains(t, err, "maxRetries")
}

// TestEsploraFetchUtxos tests the per script lookups.
func TestEsploraFetchUtxos(t *testing.T) {
	t.Parallel()

	scripts := [][]byte{{0x51}, {0x52}, {0x53}}

	const txid = "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b" +
		"7afdeda33b"

	mux := http.NewServeMux()
	for i, script := range scripts {
		path := "/scripthash/" + scripthashFromScript(script) + "/utxo"

		// The last script has nothing, the second one is unconfirmed.
		body := "[]"
		switch i {
		case 0:
			body = fmt.Sprintf(`[{"txid":"%s","vout":0,"value":1000,`+
				`"status":{"confirmed":true,"block_height":120}}]`,
				txid)

		case 1:
			body = fmt.Sprintf(`[{"txid":"%s","vout":1,"value":2000,`+
				`"status":{"confirmed":false}}]`, txid)
		}

		mux.HandleFunc(path, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(body))
		})
	}

	backend := newTestEsplora(t, mux)

	utxos, err := backend.FetchUtxos(context.Background(), scripts)
	require.NoError(t, err)
	require.Len(t, utxos, 2)

	sort.Slice(utxos, func(i, j int) bool {
		return utxos[i].Value < utxos[j].Value
	})

	hash, err := chainhash.NewHashFromStr(txid)
	require.NoError(t, err)

	require.Equal(t, Utxo{
		OutPoint: *wire.NewOutPoint(hash, 0),
		Value:    1000,
		PkScript: scripts[0],
		Height:   120,
	}, utxos[0])
	require.Equal(t, int32(0), utxos[1].Height)
	require.Equal(t, scripts[1], utxos[1].PkScript)
}

// TestEsploraFetchUtxosError tests that a failing lookup fails the whole
// call.
func TestEsploraFetchUtxosError(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	backend := newTestEsplora(t, handler)

	_, err := backend.FetchUtxos(context.Background(), [][]byte{{0x51}})
	require.ErrorContains(t, err, "API returned status 500")
}

// TestEsploraEstimateFeeRate tests target selection from the published
// estimates.
func TestEsploraEstimateFeeRate(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/fee-estimates", func(w http.ResponseWriter,
		_ *http.Request) {

		_, _ = w.Write([]byte(`{"2":20.5,"3":12.1,"6":5.25,"144":1.0}`))
	})
	backend := newTestEsplora(t, mux)

	testCases := []struct {
		target uint32
		want   string
	}{
		{target: 2, want: "20.500 sat/vb"},
		{target: 5, want: "12.100 sat/vb"},
		{target: 6, want: "5.250 sat/vb"},
		{target: 1000, want: "1.000 sat/vb"},
	}

	for _, tc := range testCases {
		rate, err := backend.EstimateFeeRate(context.Background(), tc.target)
		require.NoError(t, err)
		require.Equal(t, tc.want, rate.ToSatPerVByte().String(),
			"target %d", tc.target)
	}

	_, err := backend.EstimateFeeRate(context.Background(), 1)
	require.ErrorIs(t, err, ErrNoFeeEstimate)

	rate, err := backend.EstimateFeeRate(context.Background(), 6)
	require.NoError(t, err)
	require.Zero(t, rate.Cmp(btcunit.NewSatPerKVByte(5250)))
}

// TestEsploraFetchTx tests transaction download and the not found mapping.
func TestEsploraFetchTx(t *testing.T) {
	t.Parallel()

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{}, nil, nil))
	tx.AddTxOut(wire.NewTxOut(1000, []byte{0x51}))
	hash := tx.TxHash()

	var buf bytes.Buffer
	require.NoError(t, tx.Serialize(&buf))

	mux := http.NewServeMux()
	mux.HandleFunc("/tx/"+hash.String()+"/hex", func(w http.ResponseWriter,
		_ *http.Request) {

		_, _ = w.Write([]byte(hex.EncodeToString(buf.Bytes())))
	})
	backend := newTestEsplora(t, mux)

	got, err := backend.FetchTx(context.Background(), hash)
	require.NoError(t, err)
	require.Equal(t, hash, got.TxHash())

	_, err = backend.FetchTx(context.Background(), chainhash.Hash{1})
	require.ErrorIs(t, err, ErrTxNotFound)
}

// TestEsploraRetry tests that transport failures are retried and that a
// cancelled context stops the retries.
func TestEsploraRetry(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			_, _ = w.Write([]byte(`{"6":2.0}`))
		},
	))
	url := server.URL
	server.Close()

	backend, err := NewEsploraBackend(&EsploraConfig{
		URL:        url,
		MaxRetries: 2,
	})
	require.NoError(t, err)

	_, err = backend.EstimateFeeRate(context.Background(), 6)
	require.ErrorContains(t, err, "request failed after 3 attempts")
	require.Zero(t, calls.Load())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = backend.EstimateFeeRate(ctx, 6)
	require.ErrorIs(t, err, context.Canceled)
}
