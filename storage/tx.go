package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/vocdoni-z-markets/fhe"
	"github.com/vocdoni/vocdoni-z-markets/types"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

// Tx stages ledger mutations. Reads through a Tx observe its own pending
// writes. A Tx must end with Commit or Discard.
type Tx struct {
	wTx db.WriteTx
}

// NewTx opens a write transaction on the storage database.
func (s *Storage) NewTx() *Tx {
	return &Tx{wTx: s.db.WriteTx()}
}

// WriteTx returns the root write transaction, so other components sharing
// the database can stage their writes in it.
func (t *Tx) WriteTx() db.WriteTx {
	return t.wTx
}

// Commit applies every staged write atomically.
func (t *Tx) Commit() error {
	return t.wTx.Commit()
}

// Discard drops every staged write. It is safe to call after Commit.
func (t *Tx) Discard() {
	t.wTx.Discard()
}

// Market returns the market with the given id, including pending writes.
func (t *Tx) Market(id uint64) (*types.Market, error) {
	return market(t.wTx, id)
}

// MarketCount returns the number of markets, including pending writes.
func (t *Tx) MarketCount() (uint64, error) {
	return marketCount(t.wTx)
}

// SetMarket stages m under its id.
func (t *Tx) SetMarket(m *types.Market) error {
	if m == nil {
		return fmt.Errorf("nil market")
	}
	return setArtifact(t.wTx, marketPrefix, marketKey(m.ID), m)
}

// AppendMarket assigns the next sequential id to m and stages it together
// with the increased market count.
func (t *Tx) AppendMarket(m *types.Market) (uint64, error) {
	id, err := t.MarketCount()
	if err != nil {
		return 0, err
	}
	m.ID = id
	if err := t.SetMarket(m); err != nil {
		return 0, fmt.Errorf("set market: %w", err)
	}
	if err := prefixeddb.NewPrefixedWriteTx(t.wTx, metaPrefix).Set(marketCountKey, marketKey(id+1)); err != nil {
		return 0, fmt.Errorf("set market count: %w", err)
	}
	return id, nil
}

// UserStake returns the stake handle of user in market id.
func (t *Tx) UserStake(id uint64, user common.Address) (fhe.Handle, error) {
	return handle(t.wTx, stakePrefix, userKey(id, user))
}

// SetUserStake stages the stake handle of user in market id.
func (t *Tx) SetUserStake(id uint64, user common.Address, h fhe.Handle) error {
	return setArtifact(t.wTx, stakePrefix, userKey(id, user), h)
}

// UserChoice returns the choice handle of user in market id.
func (t *Tx) UserChoice(id uint64, user common.Address) (fhe.Handle, error) {
	return handle(t.wTx, choicePrefix, userKey(id, user))
}

// SetUserChoice stages the choice handle of user in market id.
func (t *Tx) SetUserChoice(id uint64, user common.Address, h fhe.Handle) error {
	return setArtifact(t.wTx, choicePrefix, userKey(id, user), h)
}
