package service

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/vocdoni-z-markets/api"
	"github.com/vocdoni/vocdoni-z-markets/crypto/ethereum"
	"github.com/vocdoni/vocdoni-z-markets/fhe/coprocessor"
	"github.com/vocdoni/vocdoni-z-markets/ledger"
	"github.com/vocdoni/vocdoni-z-markets/state"
	"github.com/vocdoni/vocdoni-z-markets/storage"
	"github.com/vocdoni/vocdoni-z-markets/token"
	"go.vocdoni.io/dvote/db"
)

// NodeConfig configures a ledger node.
type NodeConfig struct {
	LedgerAddress common.Address
	TokenAddress  common.Address
	// TokenAdmin is the only principal allowed to mint.
	TokenAdmin common.Address
	// NetworkKey and VerifierKey are optional. When nil the coprocessor
	// loads the persisted ones or generates them.
	NetworkKey  *[32]byte
	VerifierKey *ethereum.SignKeys
	Host        string
	Port        int
}

// Node bundles the ledger components sharing one database and the services
// built on them.
type Node struct {
	Coprocessor *coprocessor.Coprocessor
	Token       *token.Token
	State       *state.State
	Storage     *storage.Storage
	Ledger      *ledger.Ledger
	API         *APIService
	Monitor     *EventMonitor
}

// NewNode wires every component on database. Services are created stopped.
func NewNode(database db.Database, conf *NodeConfig) (*Node, error) {
	if conf.TokenAdmin == (common.Address{}) {
		return nil, fmt.Errorf("missing token admin")
	}
	n := &Node{}
	var err error
	if n.Coprocessor, err = coprocessor.New(database, &coprocessor.Options{
		NetworkKey:  conf.NetworkKey,
		VerifierKey: conf.VerifierKey,
	}); err != nil {
		return nil, fmt.Errorf("coprocessor: %w", err)
	}
	if n.Token, err = token.New(database, &token.Config{
		Address:   conf.TokenAddress,
		Admin:     conf.TokenAdmin,
		Executor:  n.Coprocessor,
		Decryptor: n.Coprocessor,
	}); err != nil {
		return nil, fmt.Errorf("token: %w", err)
	}
	if n.State, err = state.New(database); err != nil {
		return nil, fmt.Errorf("state: %w", err)
	}
	n.Storage = storage.New(database)
	if n.Ledger, err = ledger.New(&ledger.Config{
		Address:  conf.LedgerAddress,
		Executor: n.Coprocessor,
		Transfer: n.Token,
		Storage:  n.Storage,
		State:    n.State,
	}); err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	n.API = NewAPI(&api.APIConfig{
		Host:      conf.Host,
		Port:      conf.Port,
		Ledger:    n.Ledger,
		Token:     n.Token,
		Storage:   n.Storage,
		Verifier:  n.Coprocessor,
		Decryptor: n.Coprocessor,
	})
	n.Monitor = NewEventMonitor(n.Ledger, nil)
	return n, nil
}
