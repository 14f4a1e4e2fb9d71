// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcsweep/pkg/btcunit"
	"golang.org/x/sync/errgroup"
)

const (
	// defaultRequestTimeout is used when the config leaves the request
	// timeout unset.
	defaultRequestTimeout = 30 * time.Second

	// defaultMaxConcurrency is the number of scripts looked up at once
	// when the config leaves it unset.
	defaultMaxConcurrency = 8

	// retryBackoff is the delay before the first retry, growing linearly
	// with every attempt.
	retryBackoff = 100 * time.Millisecond
)

// EsploraConfig holds the configuration for the Esplora backend.
type EsploraConfig struct {
	// URL is the base URL of the Esplora API, such as
	// https://blockstream.info/testnet/api.
	URL string

	// RequestTimeout is the timeout for individual HTTP requests.
	RequestTimeout time.Duration

	// MaxRetries is the maximum number of retries for failed requests.
	MaxRetries int

	// MaxConcurrency bounds the number of concurrent script lookups.
	MaxConcurrency int
}

// validate checks the required config options are set.
func (c *EsploraConfig) validate() error {
	if c == nil {
		return errors.New("missing esplora config")
	}

	if c.URL == "" {
		return errors.New("missing esplora url")
	}

	if c.MaxRetries < 0 {
		return errors.New("maxRetries must be positive")
	}

	if c.MaxConcurrency < 0 {
		return errors.New("maxConcurrency must be positive")
	}

	return nil
}

// esploraUtxo is an entry of the /scripthash/:hash/utxo response.
type esploraUtxo struct {
	TxID   string       `json:"txid"`
	Vout   uint32       `json:"vout"`
	Status esploraState `json:"status"`
	Value  int64        `json:"value"`
}

// esploraState is the confirmation status of a transaction.
type esploraState struct {
	Confirmed   bool  `json:"confirmed"`
	BlockHeight int32 `json:"block_height,omitempty"`
}

// feeEstimates maps confirmation targets, as strings, to sat/vb rates.
type feeEstimates map[string]float64

// EsploraBackend queries an Esplora REST server.
type EsploraBackend struct {
	cfg EsploraConfig

	httpClient *http.Client
}

// A compile-time check to ensure that EsploraBackend satisfies the Backend
// interface.
var _ Backend = (*EsploraBackend)(nil)

// NewEsploraBackend creates an Esplora backend.
func NewEsploraBackend(cfg *EsploraConfig) (*EsploraBackend, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	c := *cfg
	c.URL = strings.TrimRight(c.URL, "/")

	if c.RequestTimeout == 0 {
		c.RequestTimeout = defaultRequestTimeout
	}

	if c.MaxConcurrency == 0 {
		c.MaxConcurrency = defaultMaxConcurrency
	}

	return &EsploraBackend{
		cfg: c,
		httpClient: &http.Client{
			Timeout: c.RequestTimeout,
		},
	}, nil
}

// FetchUtxos looks up the unspent outputs of every script, a bounded number
// of scripts at a time.
func (e *EsploraBackend) FetchUtxos(ctx context.Context,
	pkScripts [][]byte) ([]Utxo, error) {

	var (
		mu    sync.Mutex
		utxos []Utxo
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxConcurrency)

	for _, script := range pkScripts {
		g.Go(func() error {
			found, err := e.scriptUtxos(gctx, script)
			if err != nil {
				return err
			}

			mu.Lock()
			utxos = append(utxos, found...)
			mu.Unlock()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Debugf("Found %d unspent outputs over %d scripts", len(utxos),
		len(pkScripts))

	return utxos, nil
}

// scriptUtxos returns the unspent outputs of one script.
func (e *EsploraBackend) scriptUtxos(ctx context.Context,
	pkScript []byte) ([]Utxo, error) {

	body, err := e.doGet(
		ctx, "/scripthash/"+scripthashFromScript(pkScript)+"/utxo",
	)
	if err != nil {
		return nil, err
	}

	var entries []esploraUtxo
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	utxos := make([]Utxo, 0, len(entries))
	for _, entry := range entries {
		hash, err := chainhash.NewHashFromStr(entry.TxID)
		if err != nil {
			return nil, fmt.Errorf("invalid txid %q: %w", entry.TxID,
				err)
		}

		var height int32
		if entry.Status.Confirmed {
			height = entry.Status.BlockHeight
		}

		utxos = append(utxos, Utxo{
			OutPoint: *wire.NewOutPoint(hash, entry.Vout),
			Value:    btcutil.Amount(entry.Value),
			PkScript: pkScript,
			Height:   height,
		})
	}

	return utxos, nil
}

// EstimateFeeRate returns the estimate of the largest published target not
// above the requested one. Servers only publish a fixed set of targets.
func (e *EsploraBackend) EstimateFeeRate(ctx context.Context,
	target uint32) (btcunit.SatPerKVByte, error) {

	body, err := e.doGet(ctx, "/fee-estimates")
	if err != nil {
		return btcunit.SatPerKVByte{}, err
	}

	var estimates feeEstimates
	if err := json.Unmarshal(body, &estimates); err != nil {
		return btcunit.SatPerKVByte{}, fmt.Errorf("failed to decode "+
			"response: %w", err)
	}

	var (
		best     uint64
		bestRate float64
		found    bool
	)
	for key, rate := range estimates {
		blocks, err := strconv.ParseUint(key, 10, 32)
		if err != nil || blocks > uint64(target) {
			continue
		}

		if !found || blocks > best {
			best, bestRate, found = blocks, rate, true
		}
	}

	if !found {
		return btcunit.SatPerKVByte{}, fmt.Errorf("%w for target %d",
			ErrNoFeeEstimate, target)
	}

	rate, err := btcunit.NewSatPerVByteFromFloat(bestRate)
	if err != nil {
		return btcunit.SatPerKVByte{}, err
	}

	log.Debugf("Estimated fee rate %v for target %d (published target "+
		"%d)", rate, target, best)

	return rate.ToSatPerKVByte(), nil
}

// FetchTx fetches and deserializes a transaction.
func (e *EsploraBackend) FetchTx(ctx context.Context,
	hash chainhash.Hash) (*wire.MsgTx, error) {

	body, err := e.doGet(ctx, "/tx/"+hash.String()+"/hex")
	if err != nil {
		return nil, err
	}

	txBytes, err := hex.DecodeString(strings.TrimSpace(string(body)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode tx hex: %w", err)
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(txBytes)); err != nil {
		return nil, fmt.Errorf("failed to deserialize tx: %w", err)
	}

	return tx, nil
}

// Stop closes idle connections.
func (e *EsploraBackend) Stop() {
	e.httpClient.CloseIdleConnections()
}

// doRequest performs an HTTP request with retries.
func (e *EsploraBackend) doRequest(ctx context.Context, method,
	path string) (*http.Response, error) {

	url := e.cfg.URL + path

	var lastErr error
	for i := 0; i <= e.cfg.MaxRetries; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w",
				err)
		}

		resp, err := e.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if i == e.cfg.MaxRetries {
				break
			}

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(i+1) * retryBackoff):
			}

			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w",
		e.cfg.MaxRetries+1, lastErr)
}

// doGet performs a GET request and returns the response body.
func (e *EsploraBackend) doGet(ctx context.Context, path string) ([]byte,
	error) {

	resp, err := e.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound &&
		strings.HasPrefix(path, "/tx/"):

		return nil, ErrTxNotFound

	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("API returned status %d: %s",
			resp.StatusCode, string(body))
	}

	return body, nil
}

// scripthashFromScript converts a pkScript to the Electrum style scripthash
// used by the Esplora address endpoints: the SHA256 of the script with its
// bytes reversed.
func scripthashFromScript(pkScript []byte) string {
	hash := sha256.Sum256(pkScript)

	reversed := make([]byte, len(hash))
	for i := 0; i < len(hash); i++ {
		reversed[i] = hash[len(hash)-1-i]
	}

	return hex.EncodeToString(reversed)
}
