// Package ledger implements the confidential prediction ledger: a registry of
// markets whose option tallies and stakes are encrypted accumulators, and the
// selection engine that moves a user's encrypted stake through the value
// transfer ledger and fans it out into those accumulators without ever
// learning which option was chosen.
//
// Mutations are serialized and atomic: markets, per-user mappings, the token
// balances touched by the stake transfer and the state commitment are staged
// in a single database transaction that is committed as a whole or
// discarded. Events are emitted only after a successful commit.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/vocdoni/vocdoni-z-markets/fhe"
	"github.com/vocdoni/vocdoni-z-markets/state"
	"github.com/vocdoni/vocdoni-z-markets/storage"
	"go.vocdoni.io/dvote/db"
)

// timeResolution is the precision market creation times are stored with.
const timeResolution = time.Second

// Transferer is the value transfer ledger stakes are paid through.
type Transferer interface {
	// ConfidentialTransferFrom moves the amount in input from one principal
	// to another on behalf of spender, staging its writes in wTx, and
	// returns the handle of the amount that actually moved.
	ConfidentialTransferFrom(wTx db.WriteTx, spender, from, to common.Address,
		input fhe.ExternalInput, proof fhe.InputProof) (fhe.Handle, error)
	// Exclusive runs fn while no other transfer ledger mutation can run.
	Exclusive(fn func() error) error
}

// Config holds the ledger collaborators. Storage, State and the Transferer
// must share the same database.
type Config struct {
	// Address is the ledger principal: it custodies stakes and is granted
	// on every accumulator.
	Address  common.Address
	Executor fhe.Executor
	Transfer Transferer
	Storage  *storage.Storage
	State    *state.State
	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// Ledger is the confidential prediction ledger.
type Ledger struct {
	// mu serializes mutations
	mu sync.Mutex
	// emitMu orders notifications as their mutations committed
	emitMu   sync.Mutex
	address  common.Address
	exec     fhe.Executor
	transfer Transferer
	storage  *storage.Storage
	state    *state.State
	now      func() time.Time
	feed     event.Feed
}

// New creates a ledger from cfg.
func New(cfg *Config) (*Ledger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("missing config")
	}
	switch {
	case cfg.Address == (common.Address{}):
		return nil, fmt.Errorf("missing ledger address")
	case cfg.Executor == nil:
		return nil, fmt.Errorf("missing executor")
	case cfg.Transfer == nil:
		return nil, fmt.Errorf("missing transfer ledger")
	case cfg.Storage == nil:
		return nil, fmt.Errorf("missing storage")
	case cfg.State == nil:
		return nil, fmt.Errorf("missing state")
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		address:  cfg.Address,
		exec:     cfg.Executor,
		transfer: cfg.Transfer,
		storage:  cfg.Storage,
		state:    cfg.State,
		now:      now,
	}, nil
}

// Address returns the ledger principal.
func (l *Ledger) Address() common.Address {
	return l.address
}

// StateRoot returns the root of the committed accumulator tree.
func (l *Ledger) StateRoot() ([]byte, error) {
	return l.state.Root()
}

// AccumulatorProof returns the inclusion proof of the handle committed under
// key, built with the state key helpers.
func (l *Ledger) AccumulatorProof(key []byte) (*state.Proof, error) {
	return l.state.Proof(key)
}
