// Package config holds the default settings of the prediction ledger daemon.
package config

import "time"

const (
	// DefaultDataDir is where the daemon database lives, relative to the
	// user home directory.
	DefaultDataDir = ".marketd"
	// DefaultDBType is the database engine backing every namespace.
	DefaultDBType = "pebble"

	DefaultHost = "0.0.0.0"
	DefaultPort = 9090

	DefaultLogLevel  = "info"
	DefaultLogOutput = "stdout"

	// DefaultLedgerAddress is the principal the ledger custodies stakes as.
	DefaultLedgerAddress = "0x0000000000000000000000000000000000001ed9"
	// DefaultTokenAddress is the principal of the value transfer ledger.
	DefaultTokenAddress = "0x00000000000000000000000000000000000070c0"

	// DefaultShutdownTimeout bounds the graceful shutdown of the daemon.
	DefaultShutdownTimeout = 10 * time.Second
)
