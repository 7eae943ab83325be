// Package token implements a confidential fungible token: balances and the
// total supply are encrypted handles, and transfers move an encrypted amount
// without revealing it. It is the value transfer ledger the prediction
// ledger takes stakes through.
//
// Storage layout, under the 't/' prefix of the database given to New:
//   - 'b/' + holder -> balance handle
//   - 's' -> total supply handle
//   - 'o/' + holder + operator -> operator expiry (unix seconds)
package token

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fxamacker/cbor/v2"
	"github.com/vocdoni/vocdoni-z-markets/fhe"
	"github.com/vocdoni/vocdoni-z-markets/log"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

var (
	// ErrUnauthorizedSpender is returned when the spender is neither the
	// holder nor one of its unexpired operators.
	ErrUnauthorizedSpender = errors.New("unauthorized spender")
	// ErrNotAdmin is returned when a restricted operation is not called by
	// the token admin.
	ErrNotAdmin = errors.New("caller is not the token admin")
	// ErrInsufficientBalance is returned when a transfer exceeds the
	// balance of the holder.
	ErrInsufficientBalance = errors.New("insufficient balance")

	tokenPrefix    = []byte("t/")
	balancePrefix  = []byte("b/")
	operatorPrefix = []byte("o/")
	supplyKey      = []byte("s")
)

// Config holds the token parameters.
type Config struct {
	// Address is the principal of the token itself, granted on every
	// balance it writes.
	Address common.Address
	// Admin is the only principal allowed to mint.
	Admin    common.Address
	Executor fhe.Executor
	// Decryptor resolves the balance check of a transfer. The token only
	// decrypts the boolean outcome, never amounts.
	Decryptor fhe.Decryptor
	// Clock returns the current time, for operator expiry. Defaults to
	// time.Now.
	Clock func() time.Time
}

// Token is a confidential token stored on a dvote database.
type Token struct {
	mu      sync.Mutex
	db      db.Database
	address common.Address
	admin   common.Address
	exec    fhe.Executor
	dec     fhe.Decryptor
	now     func() time.Time
}

// New creates a token on database.
func New(database db.Database, cfg *Config) (*Token, error) {
	if database == nil {
		return nil, fmt.Errorf("missing database")
	}
	if cfg == nil || cfg.Executor == nil {
		return nil, fmt.Errorf("missing executor")
	}
	if cfg.Decryptor == nil {
		return nil, fmt.Errorf("missing decryptor")
	}
	if cfg.Address == (common.Address{}) {
		return nil, fmt.Errorf("missing token address")
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Token{
		db:      database,
		address: cfg.Address,
		admin:   cfg.Admin,
		exec:    cfg.Executor,
		dec:     cfg.Decryptor,
		now:     now,
	}, nil
}

// Address returns the token principal.
func (t *Token) Address() common.Address {
	return t.address
}

// Admin returns the principal allowed to mint.
func (t *Token) Admin() common.Address {
	return t.admin
}

// Exclusive runs fn holding the token write lock. A caller staging a
// ConfidentialTransferFrom in its own transaction must commit or discard it
// inside fn, so no other token mutation interleaves with the staged writes.
func (t *Token) Exclusive(fn func() error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn()
}

// Balance returns the committed balance handle of holder. A zero handle
// means the holder never received tokens.
func (t *Token) Balance(holder common.Address) (fhe.Handle, error) {
	return readHandle(t.db, balanceKey(holder))
}

// TotalSupply returns the committed total supply handle.
func (t *Token) TotalSupply() (fhe.Handle, error) {
	return readHandle(t.db, supplyKey)
}

// Mint creates amount tokens for to. Only the admin may mint. The amount is
// public, the resulting balance is not.
func (t *Token) Mint(caller, to common.Address, amount uint64) (fhe.Handle, error) {
	if caller != t.admin {
		return fhe.Handle{}, ErrNotAdmin
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	wTx := t.db.WriteTx()
	defer wTx.Discard()

	minted, err := t.exec.TrivialEncrypt(amount, fhe.TypeUint64)
	if err != nil {
		return fhe.Handle{}, err
	}
	balance, err := t.addTo(wTx, balanceKey(to), minted)
	if err != nil {
		return fhe.Handle{}, fmt.Errorf("balance: %w", err)
	}
	if err := t.grant(balance, to); err != nil {
		return fhe.Handle{}, err
	}
	supply, err := t.addTo(wTx, supplyKey, minted)
	if err != nil {
		return fhe.Handle{}, fmt.Errorf("supply: %w", err)
	}
	if err := t.grant(supply, t.admin); err != nil {
		return fhe.Handle{}, err
	}
	if err := wTx.Commit(); err != nil {
		return fhe.Handle{}, err
	}
	log.Debugw("tokens minted", "to", to.Hex(), "amount", amount, "balance", balance.String())
	return balance, nil
}

// ConfidentialTransferFrom moves the encrypted amount in input from one
// holder to another on behalf of spender, and returns the handle of the
// amount that moved. The input must be bound to spender as the contract and
// from as the user. It fails with ErrInsufficientBalance, staging nothing,
// when the amount exceeds the balance of from. Only that boolean outcome is
// decrypted.
//
// Every write is staged in wTx, a transaction of the database given to New.
// The caller decides whether it is committed, see Exclusive.
func (t *Token) ConfidentialTransferFrom(wTx db.WriteTx, spender, from, to common.Address,
	input fhe.ExternalInput, proof fhe.InputProof,
) (fhe.Handle, error) {
	if spender != from {
		ok, err := t.isOperator(wTx, from, spender)
		if err != nil {
			return fhe.Handle{}, err
		}
		if !ok {
			return fhe.Handle{}, ErrUnauthorizedSpender
		}
	}
	amount, err := t.exec.Ingest(input, proof, fhe.TypeUint64, fhe.InputContext{Contract: spender, User: from})
	if err != nil {
		return fhe.Handle{}, fmt.Errorf("ingest amount: %w", err)
	}

	fromBalance, err := t.balanceOrZero(wTx, balanceKey(from))
	if err != nil {
		return fhe.Handle{}, err
	}
	if err := t.checkBalance(fromBalance, amount); err != nil {
		return fhe.Handle{}, err
	}
	transferred := amount

	newFrom, err := t.exec.Sub(fromBalance, transferred)
	if err != nil {
		return fhe.Handle{}, err
	}
	if err := writeHandle(wTx, balanceKey(from), newFrom); err != nil {
		return fhe.Handle{}, err
	}
	// read after the debit, from and to may be the same holder
	newTo, err := t.addTo(wTx, balanceKey(to), transferred)
	if err != nil {
		return fhe.Handle{}, err
	}

	if err := t.grant(newFrom, from); err != nil {
		return fhe.Handle{}, err
	}
	if err := t.grant(newTo, to); err != nil {
		return fhe.Handle{}, err
	}
	if err := t.grant(transferred, from, to, spender); err != nil {
		return fhe.Handle{}, err
	}
	log.Debugw("confidential transfer staged",
		"spender", spender.Hex(),
		"from", from.Hex(),
		"to", to.Hex(),
		"transferred", transferred.String())
	return transferred, nil
}

// checkBalance fails with ErrInsufficientBalance unless balance >= amount.
func (t *Token) checkBalance(balance, amount fhe.Handle) error {
	enough, err := t.exec.Ge(balance, amount)
	if err != nil {
		return err
	}
	if err := t.exec.Allow(enough, t.address); err != nil {
		return err
	}
	ok, err := t.dec.Decrypt(enough, t.address)
	if err != nil {
		return fmt.Errorf("resolve balance check: %w", err)
	}
	if ok == 0 {
		return ErrInsufficientBalance
	}
	return nil
}

// addTo adds amount to the handle under key, starting from zero when
// absent, and stages the result.
func (t *Token) addTo(wTx db.WriteTx, key []byte, amount fhe.Handle) (fhe.Handle, error) {
	current, err := t.balanceOrZero(wTx, key)
	if err != nil {
		return fhe.Handle{}, err
	}
	sum, err := t.exec.Add(current, amount)
	if err != nil {
		return fhe.Handle{}, err
	}
	if err := writeHandle(wTx, key, sum); err != nil {
		return fhe.Handle{}, err
	}
	return sum, nil
}

func (t *Token) balanceOrZero(r db.Reader, key []byte) (fhe.Handle, error) {
	h, err := readHandle(r, key)
	if err != nil {
		return fhe.Handle{}, err
	}
	if h.IsZero() {
		return t.exec.TrivialEncrypt(0, fhe.TypeUint64)
	}
	return h, nil
}

// grant allows the token and every principal to decrypt h.
func (t *Token) grant(h fhe.Handle, principals ...common.Address) error {
	for _, p := range append([]common.Address{t.address}, principals...) {
		if err := t.exec.Allow(h, p); err != nil {
			return fmt.Errorf("allow %s: %w", p.Hex(), err)
		}
	}
	return nil
}

func readHandle(r db.Reader, key []byte) (fhe.Handle, error) {
	data, err := prefixeddb.NewPrefixedReader(r, tokenPrefix).Get(key)
	if errors.Is(err, db.ErrKeyNotFound) {
		return fhe.Handle{}, nil
	}
	if err != nil {
		return fhe.Handle{}, err
	}
	var h fhe.Handle
	if err := cbor.Unmarshal(data, &h); err != nil {
		return fhe.Handle{}, fmt.Errorf("decode handle: %w", err)
	}
	return h, nil
}

func writeHandle(wTx db.WriteTx, key []byte, h fhe.Handle) error {
	data, err := cbor.Marshal(h)
	if err != nil {
		return err
	}
	return prefixeddb.NewPrefixedWriteTx(wTx, tokenPrefix).Set(key, data)
}

func balanceKey(holder common.Address) []byte {
	return append(append([]byte{}, balancePrefix...), holder.Bytes()...)
}
