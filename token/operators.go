package token

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/vocdoni-z-markets/log"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

// SetOperator lets operator move the holder's tokens until the given time.
// A time in the past revokes the operator.
func (t *Token) SetOperator(holder, operator common.Address, until time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	wTx := prefixeddb.NewPrefixedWriteTx(t.db.WriteTx(), tokenPrefix)
	defer wTx.Discard()
	if err := wTx.Set(operatorKey(holder, operator), binary.BigEndian.AppendUint64(nil, uint64(until.Unix()))); err != nil {
		return fmt.Errorf("set operator: %w", err)
	}
	if err := wTx.Commit(); err != nil {
		return err
	}
	log.Debugw("operator set", "holder", holder.Hex(), "operator", operator.Hex(), "until", until.Unix())
	return nil
}

// IsOperator reports whether operator may currently spend the holder's
// tokens. A holder is always its own operator.
func (t *Token) IsOperator(holder, operator common.Address) (bool, error) {
	if holder == operator {
		return true, nil
	}
	return t.isOperator(t.db, holder, operator)
}

func (t *Token) isOperator(r db.Reader, holder, operator common.Address) (bool, error) {
	data, err := prefixeddb.NewPrefixedReader(r, tokenPrefix).Get(operatorKey(holder, operator))
	if errors.Is(err, db.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(data) != 8 {
		return false, fmt.Errorf("invalid operator expiry %x", data)
	}
	until := int64(binary.BigEndian.Uint64(data))
	return t.now().Unix() <= until, nil
}

func operatorKey(holder, operator common.Address) []byte {
	key := append(append([]byte{}, operatorPrefix...), holder.Bytes()...)
	return append(key, operator.Bytes()...)
}
