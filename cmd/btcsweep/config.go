// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcsweep/chain"
	"github.com/btcsuite/btcsweep/pkg/btcunit"
	"github.com/btcsuite/btcsweep/wallet"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultGapLimit     = 20
	defaultTarget       = 6
	defaultNetwork      = "testnet"
	defaultBackend      = backendEsplora
	defaultLogLevel     = "info"
	defaultLogFilename  = "btcsweep.log"
	defaultMaxLogFiles  = 3
	defaultMaxLogSizeKB = 10 * 1024

	backendBitcoind = "bitcoind"
	backendEsplora  = "esplora"
)

var (
	// errConflictingDestination is returned when both an address and a
	// destination descriptor pair are given.
	errConflictingDestination = errors.New("--address cannot be used " +
		"with --destdescriptor or --destchangedescriptor")

	// errMissingDestination is returned when no destination is given.
	errMissingDestination = errors.New("one of --address or " +
		"--destdescriptor and --destchangedescriptor is required")

	defaultHomeDir = btcutil.AppDataDir("btcsweep", false)
)

// config defines the command line options.
type config struct {
	Descriptor       string `short:"d" long:"descriptor" description:"Descriptor to sweep, in UR format or in Bitcoin Core format" required:"true"`
	ChangeDescriptor string `short:"c" long:"changedescriptor" description:"Change descriptor to sweep, in UR format or in Bitcoin Core format" required:"true"`

	Address              string `short:"a" long:"address" description:"Address receiving every swept output, in UR format or as text"`
	DestDescriptor       string `short:"e" long:"destdescriptor" description:"Descriptor receiving the outputs of the receive branch at the same index"`
	DestChangeDescriptor string `short:"s" long:"destchangedescriptor" description:"Descriptor receiving the outputs of the change branch at the same index"`

	GapLimit  uint32  `short:"g" long:"gaplimit" description:"Number of indices per branch searched for the destination of an output"`
	ScanRange uint32  `long:"scanrange" description:"Number of indices per branch scanned for unspent outputs, must exceed the gap limit"`
	Target    uint32  `short:"t" long:"target" description:"Confirmation target in blocks used to estimate the fee rate"`
	FeeRate   float64 `long:"feerate" description:"Fee rate in sat/vbyte, overrides the estimate"`
	Network   string  `short:"n" long:"network" description:"Bitcoin network" choice:"mainnet" choice:"testnet" choice:"regtest" choice:"signet"`
	Checksum  bool    `long:"checksum" description:"Append checksums to descriptors decoded from UR"`

	Backend    string `long:"backend" description:"Chain backend" choice:"bitcoind" choice:"esplora"`
	EsploraURL string `long:"esploraurl" description:"Base URL of the Esplora API, defaults to blockstream.info for mainnet and testnet"`
	RPCHost    string `long:"rpchost" description:"Host and port of the bitcoind RPC server, defaults to the network's RPC port on localhost"`
	RPCUser    string `long:"rpcuser" description:"Username for bitcoind RPC"`
	RPCPass    string `long:"rpcpass" default-mask:"-" description:"Password for bitcoind RPC"`
	RPCCert    string `long:"rpccert" description:"Certificate of the bitcoind RPC server, TLS is disabled when empty"`

	LogDir     string `long:"logdir" description:"Directory to write a rotated log file to, logs only go to stderr when empty"`
	DebugLevel string `long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical, off} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems"`
}

// defaultConfig returns the config holding the default options.
func defaultConfig() *config {
	return &config{
		GapLimit:   defaultGapLimit,
		ScanRange:  wallet.DefaultScanRange,
		Target:     defaultTarget,
		Network:    defaultNetwork,
		Backend:    defaultBackend,
		DebugLevel: defaultLogLevel,
	}
}

// loadConfig parses the command line over the defaults and validates the
// result.
func loadConfig(args []string) (*config, error) {
	cfg := defaultConfig()

	parser := flags.NewParser(cfg, flags.HelpFlag)
	_, err := parser.ParseArgs(args)
	if err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate rejects missing and conflicting options.
func (c *config) validate() error {
	pairGiven := c.DestDescriptor != "" || c.DestChangeDescriptor != ""

	switch {
	case c.Address != "" && pairGiven:
		return errConflictingDestination

	case c.Address == "" && !pairGiven:
		return errMissingDestination

	case pairGiven && c.DestDescriptor == "":
		return errors.New("--destchangedescriptor requires " +
			"--destdescriptor")

	case pairGiven && c.DestChangeDescriptor == "":
		return errors.New("--destdescriptor requires " +
			"--destchangedescriptor")
	}

	if c.GapLimit == 0 {
		return errors.New("--gaplimit must be positive")
	}

	if c.ScanRange <= c.GapLimit {
		return fmt.Errorf("--scanrange (%d) must exceed --gaplimit (%d)",
			c.ScanRange, c.GapLimit)
	}

	if c.Target == 0 {
		return errors.New("--target must be positive")
	}

	if c.FeeRate < 0 {
		return errors.New("--feerate must not be negative")
	}

	if _, err := c.params(); err != nil {
		return err
	}

	if c.Backend == backendEsplora && c.esploraURL() == "" {
		return fmt.Errorf("--esploraurl is required on %s", c.Network)
	}

	return nil
}

// params returns the parameters of the selected network.
func (c *config) params() (*chaincfg.Params, error) {
	switch c.Network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil

	case "testnet":
		return &chaincfg.TestNet3Params, nil

	case "regtest":
		return &chaincfg.RegressionNetParams, nil

	case "signet":
		return &chaincfg.SigNetParams, nil

	default:
		return nil, fmt.Errorf("unknown network %q", c.Network)
	}
}

// esploraURL returns the Esplora URL, defaulting to a public server for
// the networks that have one.
func (c *config) esploraURL() string {
	if c.EsploraURL != "" {
		return c.EsploraURL
	}

	switch c.Network {
	case "mainnet":
		return "https://blockstream.info/api"

	case "testnet":
		return "https://blockstream.info/testnet/api"

	case "signet":
		return "https://mempool.space/signet/api"

	default:
		return ""
	}
}

// rpcHost returns the bitcoind RPC host, defaulting to the RPC port of the
// network on localhost.
func (c *config) rpcHost() string {
	if c.RPCHost != "" {
		return c.RPCHost
	}

	port := "18332"
	switch c.Network {
	case "mainnet":
		port = "8332"

	case "regtest":
		port = "18443"

	case "signet":
		port = "38332"
	}

	return net.JoinHostPort("localhost", port)
}

// feeRate returns the fee rate override, if any.
func (c *config) feeRate() (btcunit.SatPerKVByte, bool, error) {
	if c.FeeRate == 0 {
		return btcunit.SatPerKVByte{}, false, nil
	}

	rate, err := btcunit.NewSatPerVByteFromFloat(c.FeeRate)
	if err != nil {
		return btcunit.SatPerKVByte{}, false, err
	}

	return rate.ToSatPerKVByte(), true, nil
}

// logFile returns the path of the rotated log file, empty when logging to
// a file is disabled.
func (c *config) logFile() string {
	if c.LogDir == "" {
		return ""
	}

	return filepath.Join(cleanAndExpandPath(c.LogDir), defaultLogFilename)
}

// newBackend creates the selected chain backend.
func (c *config) newBackend() (chain.Backend, error) {
	params, err := c.params()
	if err != nil {
		return nil, err
	}

	switch c.Backend {
	case backendBitcoind:
		conn := &rpcclient.ConnConfig{
			Host:       c.rpcHost(),
			User:       c.RPCUser,
			Pass:       c.RPCPass,
			DisableTLS: c.RPCCert == "",
		}

		if c.RPCCert != "" {
			cert, err := os.ReadFile(cleanAndExpandPath(c.RPCCert))
			if err != nil {
				return nil, fmt.Errorf("read rpc cert: %w", err)
			}
			conn.Certificates = cert
		}

		return chain.NewBitcoindBackend(&chain.BitcoindConfig{
			Conn:  conn,
			Chain: params,
		})

	case backendEsplora:
		return chain.NewEsploraBackend(&chain.EsploraConfig{
			URL:        c.esploraURL(),
			MaxRetries: 3,
		})

	default:
		return nil, fmt.Errorf("unknown backend %q", c.Backend)
	}
}

// cleanAndExpandPath expands a leading ~ and environment variables in the
// path and cleans the result.
func cleanAndExpandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(defaultHomeDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	return filepath.Clean(os.ExpandEnv(path))
}
