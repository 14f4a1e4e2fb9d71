// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btclog"
	"github.com/btcsuite/btcsweep/chain"
	"github.com/btcsuite/btcsweep/sweep"
	"github.com/btcsuite/btcsweep/ur"
	"github.com/btcsuite/btcsweep/wallet"
	"github.com/jrick/logrotate/rotator"
)

// logWriter writes to stderr, which keeps stdout for the JSON result, and
// to the log rotator once it is initialized.
type logWriter struct {
	rotator *rotator.Rotator
}

// Write writes the log line to stderr and the rotated log file.
func (w *logWriter) Write(p []byte) (int, error) {
	_, _ = os.Stderr.Write(p)

	if w.rotator != nil {
		return w.rotator.Write(p)
	}

	return len(p), nil
}

var (
	writer = &logWriter{}

	// backendLog is the logging backend used to create all subsystem
	// loggers.
	backendLog = btclog.NewBackend(writer)

	log = backendLog.Logger("SWPR")

	// subsystemLoggers maps each subsystem identifier to its logger.
	subsystemLoggers = map[string]btclog.Logger{
		"SWPR":           log,
		sweep.Subsystem:  backendLog.Logger(sweep.Subsystem),
		wallet.Subsystem: backendLog.Logger(wallet.Subsystem),
		chain.Subsystem:  backendLog.Logger(chain.Subsystem),
		ur.Subsystem:     backendLog.Logger(ur.Subsystem),
		"RPCC":           backendLog.Logger("RPCC"),
	}
)

func init() {
	sweep.UseLogger(subsystemLoggers[sweep.Subsystem])
	wallet.UseLogger(subsystemLoggers[wallet.Subsystem])
	chain.UseLogger(subsystemLoggers[chain.Subsystem])
	ur.UseLogger(subsystemLoggers[ur.Subsystem])
	rpcclient.UseLogger(subsystemLoggers["RPCC"])
}

// initLogRotator initializes the log file rotator to write logs to logFile
// and create roll files in the same directory. It must be closed on
// shutdown.
func initLogRotator(logFile string) (io.Closer, error) {
	logDir, _ := filepath.Split(logFile)
	err := os.MkdirAll(logDir, 0700)
	if err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	r, err := rotator.New(logFile, defaultMaxLogSizeKB, false,
		defaultMaxLogFiles)
	if err != nil {
		return nil, fmt.Errorf("failed to create file rotator: %w", err)
	}

	writer.rotator = r

	return r, nil
}

// setLogLevels sets the log level of every subsystem.
func setLogLevels(level btclog.Level) {
	for _, logger := range subsystemLoggers {
		logger.SetLevel(level)
	}
}

// supportedSubsystems returns a sorted slice of the supported subsystems
// for logging purposes.
func supportedSubsystems() []string {
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}

	sort.Strings(subsystems)

	return subsystems
}

// parseAndSetDebugLevels attempts to parse the specified debug level and set
// the levels accordingly. An appropriate error is returned if anything is
// invalid.
func parseAndSetDebugLevels(debugLevel string) error {
	// When the specified string doesn't have any delimiters, treat it as
	// the log level for all subsystems.
	if !strings.Contains(debugLevel, ",") &&
		!strings.Contains(debugLevel, "=") {

		level, ok := btclog.LevelFromString(debugLevel)
		if !ok {
			return fmt.Errorf("the specified debug level [%v] is "+
				"invalid", debugLevel)
		}

		setLogLevels(level)

		return nil
	}

	// Split the specified string into subsystem/level pairs while
	// detecting issues and update the log levels accordingly.
	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		fields := strings.Split(logLevelPair, "=")
		if len(fields) != 2 {
			return fmt.Errorf("the specified debug level has an "+
				"invalid format [%v] -- use format subsystem1="+
				"level1,subsystem2=level2", logLevelPair)
		}
		subsysID, logLevel := fields[0], fields[1]

		logger, ok := subsystemLoggers[subsysID]
		if !ok {
			return fmt.Errorf("the specified subsystem [%v] is "+
				"invalid -- supported subsystems are %v",
				subsysID, supportedSubsystems())
		}

		level, ok := btclog.LevelFromString(logLevel)
		if !ok {
			return fmt.Errorf("the specified debug level [%v] is "+
				"invalid", logLevel)
		}

		logger.SetLevel(level)
	}

	return nil
}
