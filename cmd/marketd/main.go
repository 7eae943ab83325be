// Command marketd runs the confidential prediction ledger with its HTTP API.
//
// Every flag can also be set through a MARKETD_* environment variable, the
// flag name upper-cased (MARKETD_DATADIR, MARKETD_TOKENADMIN, ...). An
// explicit flag wins over the environment.
package main

import (
	"cmp"
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/vocdoni-z-markets/config"
	"github.com/vocdoni/vocdoni-z-markets/crypto/ethereum"
	"github.com/vocdoni/vocdoni-z-markets/log"
	"github.com/vocdoni/vocdoni-z-markets/service"
	"github.com/vocdoni/vocdoni-z-markets/util"
	"go.vocdoni.io/dvote/db/metadb"
	"golang.org/x/sync/errgroup"
)

const envPrefix = "MARKETD_"

type flags struct {
	dataDir       string
	dbType        string
	host          string
	port          int
	logLevel      string
	logOutput     string
	ledgerAddress string
	tokenAddress  string
	tokenAdmin    string
	verifierKey   string
	networkKey    string
}

func env(name string) string {
	return os.Getenv(envPrefix + strings.ToUpper(name))
}

func envInt(name string, def int) int {
	v, err := strconv.Atoi(env(name))
	if err != nil {
		return def
	}
	return v
}

func parseFlags() *flags {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	f := &flags{}
	flag.StringVar(&f.dataDir, "datadir", cmp.Or(env("datadir"), filepath.Join(home, config.DefaultDataDir)), "data directory")
	flag.StringVar(&f.dbType, "dbtype", cmp.Or(env("dbtype"), config.DefaultDBType), "database engine")
	flag.StringVar(&f.host, "host", cmp.Or(env("host"), config.DefaultHost), "API listen host")
	flag.IntVar(&f.port, "port", envInt("port", config.DefaultPort), "API listen port")
	flag.StringVar(&f.logLevel, "logLevel", cmp.Or(env("loglevel"), config.DefaultLogLevel), "log level (debug, info, warn, error)")
	flag.StringVar(&f.logOutput, "logOutput", cmp.Or(env("logoutput"), config.DefaultLogOutput), "log output (stdout, stderr or a file path)")
	flag.StringVar(&f.ledgerAddress, "ledgerAddress", cmp.Or(env("ledgeraddress"), config.DefaultLedgerAddress), "ledger principal address")
	flag.StringVar(&f.tokenAddress, "tokenAddress", cmp.Or(env("tokenaddress"), config.DefaultTokenAddress), "token principal address")
	flag.StringVar(&f.tokenAdmin, "tokenAdmin", env("tokenadmin"), "token admin address, the only minter (required)")
	flag.StringVar(&f.verifierKey, "verifierKey", env("verifierkey"), "hex private key signing input attestations (generated if empty)")
	flag.StringVar(&f.networkKey, "networkKey", env("networkkey"), "hex curve25519 private key inputs are encrypted to (generated if empty)")
	flag.Parse()
	return f
}

func nodeConfig(f *flags) (*service.NodeConfig, error) {
	conf := &service.NodeConfig{Host: f.host, Port: f.port}
	for _, a := range []struct {
		name string
		hex  string
		dst  *common.Address
	}{
		{"ledgerAddress", f.ledgerAddress, &conf.LedgerAddress},
		{"tokenAddress", f.tokenAddress, &conf.TokenAddress},
		{"tokenAdmin", f.tokenAdmin, &conf.TokenAdmin},
	} {
		if !common.IsHexAddress(a.hex) {
			return nil, fmt.Errorf("invalid %s %q", a.name, a.hex)
		}
		*a.dst = common.HexToAddress(a.hex)
	}
	if f.verifierKey != "" {
		conf.VerifierKey = ethereum.NewSignKeys()
		if err := conf.VerifierKey.AddHexKey(f.verifierKey); err != nil {
			return nil, fmt.Errorf("invalid verifierKey: %w", err)
		}
	}
	if f.networkKey != "" {
		key, err := hex.DecodeString(util.TrimHex(f.networkKey))
		if err != nil || len(key) != 32 {
			return nil, fmt.Errorf("invalid networkKey, expected 32 hex bytes")
		}
		conf.NetworkKey = new([32]byte)
		copy(conf.NetworkKey[:], key)
	}
	return conf, nil
}

func main() {
	f := parseFlags()
	log.Init(f.logLevel, f.logOutput, nil)

	conf, err := nodeConfig(f)
	if err != nil {
		log.Fatal(err)
	}
	if err := os.MkdirAll(f.dataDir, 0o750); err != nil {
		log.Fatalf("cannot create data dir: %v", err)
	}
	database, err := metadb.New(f.dbType, filepath.Join(f.dataDir, "db"))
	if err != nil {
		log.Fatalf("cannot open database: %v", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			log.Warnw("database close", "error", err.Error())
		}
	}()

	node, err := service.NewNode(database, conf)
	if err != nil {
		log.Fatal(err)
	}
	log.Infow("ledger ready",
		"ledger", conf.LedgerAddress.Hex(),
		"token", conf.TokenAddress.Hex(),
		"admin", conf.TokenAdmin.Hex(),
		"verifier", node.Coprocessor.VerifierAddress().Hex(),
		"networkKey", hex.EncodeToString(node.Coprocessor.NetworkPublicKey()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var g errgroup.Group
	g.Go(func() error { return node.Monitor.Start(ctx) })
	g.Go(func() error { return node.API.Start(ctx) })
	if err := g.Wait(); err != nil {
		node.Monitor.Stop()
		node.API.Stop()
		log.Fatal(err)
	}

	<-ctx.Done()
	log.Infow("shutting down")
	node.API.Stop()
	node.Monitor.Stop()
}
