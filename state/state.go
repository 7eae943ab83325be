// Package state commits the current handle of every ledger accumulator and
// user mapping into an arbo sparse merkle tree. The root fingerprints the
// whole encrypted ledger, and inclusion proofs let anyone check that a handle
// served by the API is the one the ledger holds.
package state

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/arbo"
	"github.com/vocdoni/vocdoni-z-markets/fhe"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

const (
	// MaxLevels is the depth of the tree, keys are sha256 digests.
	MaxLevels = 256
	// MaxKeyLen is ceil(MaxLevels/8)
	MaxKeyLen = (MaxLevels + 7) / 8
)

// kinds of committed entries
const (
	kindMarketTotal byte = iota
	kindOptionCount
	kindOptionStake
	kindUserStake
	kindUserChoice
)

var (
	// ErrNotCommitted is returned when a key has no committed handle.
	ErrNotCommitted = errors.New("key not committed")

	treePrefix = []byte("st/")
	hashFunc   = arbo.HashFunctionSha256
)

// State wraps the commitment tree.
type State struct {
	tree *arbo.Tree
}

// New opens or creates the state tree stored in database.
func New(database db.Database) (*State, error) {
	tree, err := arbo.NewTree(arbo.Config{
		Database:     prefixeddb.NewPrefixedDatabase(database, treePrefix),
		MaxLevels:    MaxLevels,
		HashFunction: hashFunc,
	})
	if err != nil {
		return nil, err
	}
	return &State{tree: tree}, nil
}

// Commit stages key -> h in wTx, adding or updating the leaf. wTx is a
// transaction of the database given to New; the tree writes under its own
// prefix so it can share the transaction with other components.
func (s *State) Commit(wTx db.WriteTx, key []byte, h fhe.Handle) error {
	tx := prefixeddb.NewPrefixedWriteTx(wTx, treePrefix)
	_, _, err := s.tree.GetWithTx(tx, key)
	switch {
	case errors.Is(err, arbo.ErrKeyNotFound):
		if err := s.tree.AddWithTx(tx, key, h.Bytes()); err != nil {
			return fmt.Errorf("add key %x: %w", key, err)
		}
	case err != nil:
		return fmt.Errorf("get key %x: %w", key, err)
	default:
		if err := s.tree.UpdateWithTx(tx, key, h.Bytes()); err != nil {
			return fmt.Errorf("update key %x: %w", key, err)
		}
	}
	return nil
}

// Root returns the committed root.
func (s *State) Root() ([]byte, error) {
	return s.tree.Root()
}

// Handle returns the committed handle under key.
func (s *State) Handle(key []byte) (fhe.Handle, error) {
	_, v, err := s.tree.Get(key)
	if errors.Is(err, arbo.ErrKeyNotFound) {
		return fhe.Handle{}, ErrNotCommitted
	}
	if err != nil {
		return fhe.Handle{}, err
	}
	var h fhe.Handle
	copy(h[:], v)
	return h, nil
}

// MarketTotalKey is the key of the total stake of a market.
func MarketTotalKey(marketID uint64) []byte {
	return entryKey(kindMarketTotal, marketID, nil)
}

// OptionCountKey is the key of the selection count of an option.
func OptionCountKey(marketID uint64, option int) []byte {
	return entryKey(kindOptionCount, marketID, binary.BigEndian.AppendUint32(nil, uint32(option)))
}

// OptionStakeKey is the key of the stake subtotal of an option.
func OptionStakeKey(marketID uint64, option int) []byte {
	return entryKey(kindOptionStake, marketID, binary.BigEndian.AppendUint32(nil, uint32(option)))
}

// UserStakeKey is the key of the accumulated stake of user in a market.
func UserStakeKey(marketID uint64, user common.Address) []byte {
	return entryKey(kindUserStake, marketID, user.Bytes())
}

// UserChoiceKey is the key of the latest choice of user in a market.
func UserChoiceKey(marketID uint64, user common.Address) []byte {
	return entryKey(kindUserChoice, marketID, user.Bytes())
}

func entryKey(kind byte, marketID uint64, suffix []byte) []byte {
	data := binary.BigEndian.AppendUint64([]byte{kind}, marketID)
	sum := sha256.Sum256(append(data, suffix...))
	return sum[:]
}
