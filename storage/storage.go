// Package storage persists the prediction ledger on a go.vocdoni.io/dvote/db
// database. Every artifact is cbor encoded under its own key prefix:
//   - 'lm/' + marketID -> types.Market
//   - 'l/' + 'marketCount' -> number of markets ever created
//   - 'ls/' + marketID + user -> stake handle
//   - 'lc/' + marketID + user -> choice handle
//   - 'lr/' + digest -> used request marker
//
// Reads on Storage observe committed state only. Mutations are staged in a Tx
// and become visible on Commit, all of them or none.
package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/vocdoni-z-markets/fhe"
	"github.com/vocdoni/vocdoni-z-markets/types"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

var (
	// ErrNotFound is returned when the requested artifact is not stored.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyUsed is returned when a request digest was already marked.
	ErrAlreadyUsed = errors.New("request already used")

	marketPrefix  = []byte("lm/")
	metaPrefix    = []byte("l/")
	stakePrefix   = []byte("ls/")
	choicePrefix  = []byte("lc/")
	requestPrefix = []byte("lr/")

	marketCountKey = []byte("marketCount")
	usedMarker     = []byte{1}
)

// Storage manages the ledger artifacts.
type Storage struct {
	db db.Database
	// serializes request marking, so two concurrent requests carrying the
	// same digest cannot both pass
	reqLock sync.Mutex
}

// New creates a new Storage instance on database.
func New(database db.Database) *Storage {
	return &Storage{db: database}
}

// DB returns the underlying database, shared with the other ledger
// components so their writes can join a single transaction.
func (s *Storage) DB() db.Database {
	return s.db
}

// Close closes the underlying database.
func (s *Storage) Close() {
	if err := s.db.Close(); err != nil {
		panic(err)
	}
}

// Market returns the committed market with the given id.
func (s *Storage) Market(id uint64) (*types.Market, error) {
	return market(s.db, id)
}

// MarketCount returns the committed number of markets.
func (s *Storage) MarketCount() (uint64, error) {
	return marketCount(s.db)
}

// Markets returns every committed market, ordered by id.
func (s *Storage) Markets() ([]*types.Market, error) {
	count, err := s.MarketCount()
	if err != nil {
		return nil, err
	}
	markets := make([]*types.Market, 0, count)
	for id := range count {
		m, err := s.Market(id)
		if err != nil {
			return nil, fmt.Errorf("market %d: %w", id, err)
		}
		markets = append(markets, m)
	}
	return markets, nil
}

// UserStake returns the committed stake handle of user in market id.
func (s *Storage) UserStake(id uint64, user common.Address) (fhe.Handle, error) {
	return handle(s.db, stakePrefix, userKey(id, user))
}

// UserChoice returns the committed choice handle of user in market id.
func (s *Storage) UserChoice(id uint64, user common.Address) (fhe.Handle, error) {
	return handle(s.db, choicePrefix, userKey(id, user))
}

// UserPositions iterates every committed user stake of market id.
func (s *Storage) UserPositions(id uint64) ([]*types.Position, error) {
	var (
		positions []*types.Position
		iterErr   error
	)
	prefix := binary.BigEndian.AppendUint64(append([]byte{}, stakePrefix...), id)
	if err := prefixeddb.NewPrefixedReader(s.db, prefix).Iterate(nil, func(k, v []byte) bool {
		if len(k) != common.AddressLength {
			iterErr = fmt.Errorf("invalid position key %x", k)
			return false
		}
		p := &types.Position{MarketID: id, User: common.BytesToAddress(k)}
		if err := decodeArtifact(v, &p.Stake); err != nil {
			iterErr = fmt.Errorf("decode stake: %w", err)
			return false
		}
		positions = append(positions, p)
		return true
	}); err != nil {
		return nil, err
	}
	if iterErr != nil {
		return nil, iterErr
	}
	for _, p := range positions {
		choice, err := s.UserChoice(id, p.User)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		p.Choice = choice
	}
	return positions, nil
}

// MarkRequest records digest as used. It returns ErrAlreadyUsed if it was
// recorded before, which is how replayed signed requests are rejected.
func (s *Storage) MarkRequest(digest []byte) error {
	s.reqLock.Lock()
	defer s.reqLock.Unlock()
	rTx := prefixeddb.NewPrefixedReader(s.db, requestPrefix)
	if _, err := rTx.Get(digest); err == nil {
		return ErrAlreadyUsed
	} else if !errors.Is(err, db.ErrKeyNotFound) {
		return fmt.Errorf("get request: %w", err)
	}
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), requestPrefix)
	defer wTx.Discard()
	if err := wTx.Set(digest, usedMarker); err != nil {
		return err
	}
	return wTx.Commit()
}

func market(r db.Reader, id uint64) (*types.Market, error) {
	m := &types.Market{}
	if err := getArtifact(r, marketPrefix, marketKey(id), m); err != nil {
		return nil, err
	}
	return m, nil
}

func marketCount(r db.Reader) (uint64, error) {
	data, err := prefixeddb.NewPrefixedReader(r, metaPrefix).Get(marketCountKey)
	if errors.Is(err, db.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get market count: %w", err)
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("invalid market count encoding %x", data)
	}
	return binary.BigEndian.Uint64(data), nil
}

func handle(r db.Reader, prefix, key []byte) (fhe.Handle, error) {
	var h fhe.Handle
	if err := getArtifact(r, prefix, key, &h); err != nil {
		return fhe.Handle{}, err
	}
	return h, nil
}

func marketKey(id uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, id)
}

func userKey(id uint64, user common.Address) []byte {
	return append(marketKey(id), user.Bytes()...)
}
