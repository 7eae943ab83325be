// Package coprocessor is a reference implementation of the fhe substrate. It
// keeps every ciphertext sealed at rest, evaluates operations by holding the
// network key and enforces per-handle authorization lists on decryption. It
// provides the semantics of an FHE coprocessor, not its cryptographic hardness:
// use it for development, tests and single-operator deployments.
//
// Storage layout, under the database given to New:
//   - 'c/' + handle -> sealed cleartext
//   - 'a/' + handle + principal -> authorization marker
//   - 'k/' -> network and verifier keys
//   - 'n' -> handle derivation nonce
package coprocessor

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/vocdoni-z-markets/crypto/ethereum"
	"github.com/vocdoni/vocdoni-z-markets/fhe"
	"github.com/vocdoni/vocdoni-z-markets/log"
	"github.com/vocdoni/vocdoni-z-markets/util"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

var (
	ciphertextPrefix = []byte("c/")
	aclPrefix        = []byte("a/")
	keysPrefix       = []byte("k/")
	nonceKey         = []byte("n")

	networkKeyName  = []byte("network")
	verifierKeyName = []byte("verifier")

	allowedMarker = []byte{1}
)

// Options configures the coprocessor keys. Nil keys are loaded from the
// database, or generated and stored on first use.
type Options struct {
	// NetworkKey is the curve25519 private key inputs are encrypted to.
	NetworkKey *[32]byte
	// VerifierKey signs input attestations.
	VerifierKey *ethereum.SignKeys
}

// Coprocessor implements fhe.Executor and fhe.Decryptor.
type Coprocessor struct {
	mu    sync.Mutex
	db    db.Database
	nonce uint64

	networkPub  [32]byte
	networkPriv [32]byte
	verifier    *ethereum.SignKeys
	aead        cipher.AEAD
}

var (
	_ fhe.Executor  = (*Coprocessor)(nil)
	_ fhe.Decryptor = (*Coprocessor)(nil)
)

// New opens a coprocessor on database.
func New(database db.Database, opts *Options) (*Coprocessor, error) {
	if database == nil {
		return nil, fmt.Errorf("missing database")
	}
	if opts == nil {
		opts = &Options{}
	}
	cp := &Coprocessor{db: database}

	networkKey, err := cp.loadOrStoreKey(networkKeyName, opts.NetworkKey, func() ([]byte, error) {
		_, priv, err := box.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
		return priv[:], nil
	})
	if err != nil {
		return nil, fmt.Errorf("network key: %w", err)
	}
	copy(cp.networkPriv[:], networkKey)
	pub, err := curve25519.X25519(cp.networkPriv[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("network public key: %w", err)
	}
	copy(cp.networkPub[:], pub)

	var verifierKey *[32]byte
	if opts.VerifierKey != nil {
		_, priv := opts.VerifierKey.HexString()
		if priv == "" {
			return nil, fmt.Errorf("verifier key without private part")
		}
		verifierKey = new([32]byte)
		copy(verifierKey[:], common.FromHex(priv))
	}
	vkey, err := cp.loadOrStoreKey(verifierKeyName, verifierKey, func() ([]byte, error) {
		s := ethereum.NewSignKeys()
		if err := s.Generate(); err != nil {
			return nil, err
		}
		_, priv := s.HexString()
		return common.FromHex(priv), nil
	})
	if err != nil {
		return nil, fmt.Errorf("verifier key: %w", err)
	}
	cp.verifier = ethereum.NewSignKeys()
	if err := cp.verifier.AddHexKey(common.Bytes2Hex(vkey)); err != nil {
		return nil, fmt.Errorf("verifier key: %w", err)
	}

	sealKey := sha256.Sum256(append([]byte("coprocessor/at-rest/"), cp.networkPriv[:]...))
	if cp.aead, err = chacha20poly1305.NewX(sealKey[:]); err != nil {
		return nil, err
	}

	switch nonce, err := cp.db.Get(nonceKey); {
	case err == nil:
		cp.nonce = binary.BigEndian.Uint64(nonce)
	case errors.Is(err, db.ErrKeyNotFound):
	default:
		return nil, fmt.Errorf("load nonce: %w", err)
	}

	log.Infow("coprocessor ready",
		"networkKey", common.Bytes2Hex(cp.networkPub[:]),
		"verifier", cp.verifier.AddressString(),
		"nonce", cp.nonce)
	return cp, nil
}

func (cp *Coprocessor) loadOrStoreKey(name []byte, given *[32]byte, generate func() ([]byte, error)) ([]byte, error) {
	rTx := prefixeddb.NewPrefixedReader(cp.db, keysPrefix)
	stored, err := rTx.Get(name)
	if err != nil && !errors.Is(err, db.ErrKeyNotFound) {
		return nil, err
	}
	var key []byte
	switch {
	case given != nil:
		key = given[:]
	case stored != nil:
		return stored, nil
	default:
		if key, err = generate(); err != nil {
			return nil, err
		}
	}
	wTx := prefixeddb.NewPrefixedWriteTx(cp.db.WriteTx(), keysPrefix)
	defer wTx.Discard()
	if err := wTx.Set(name, key); err != nil {
		return nil, err
	}
	return key, wTx.Commit()
}

// NetworkPublicKey returns the curve25519 key external inputs are sealed to.
func (cp *Coprocessor) NetworkPublicKey() []byte {
	return append([]byte{}, cp.networkPub[:]...)
}

// VerifierAddress returns the address that signs input attestations.
func (cp *Coprocessor) VerifierAddress() common.Address {
	return cp.verifier.Address()
}

// TrivialEncrypt implements fhe.Executor.
func (cp *Coprocessor) TrivialEncrypt(value uint64, t fhe.Type) (fhe.Handle, error) {
	if !t.Valid() {
		return fhe.Handle{}, fhe.ErrInvalidType
	}
	if value > t.MaxValue() {
		return fhe.Handle{}, fhe.ErrValueOverflow
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return cp.store("trivial", t, value, util.Uint64ToBytes(value))
}

// Add implements fhe.Executor.
func (cp *Coprocessor) Add(a, b fhe.Handle) (fhe.Handle, error) {
	return cp.binary("add", a, b, func(x, y uint64, t fhe.Type) (uint64, fhe.Type) {
		return wrap(x+y, t), t
	})
}

// Sub implements fhe.Executor.
func (cp *Coprocessor) Sub(a, b fhe.Handle) (fhe.Handle, error) {
	return cp.binary("sub", a, b, func(x, y uint64, t fhe.Type) (uint64, fhe.Type) {
		return wrap(x-y, t), t
	})
}

// Eq implements fhe.Executor.
func (cp *Coprocessor) Eq(a, b fhe.Handle) (fhe.Handle, error) {
	return cp.binary("eq", a, b, func(x, y uint64, _ fhe.Type) (uint64, fhe.Type) {
		return boolToUint(x == y), fhe.TypeBool
	})
}

// Ge implements fhe.Executor.
func (cp *Coprocessor) Ge(a, b fhe.Handle) (fhe.Handle, error) {
	return cp.binary("ge", a, b, func(x, y uint64, _ fhe.Type) (uint64, fhe.Type) {
		return boolToUint(x >= y), fhe.TypeBool
	})
}

// Select implements fhe.Executor.
func (cp *Coprocessor) Select(cond, ifTrue, ifFalse fhe.Handle) (fhe.Handle, error) {
	if cond.Type() != fhe.TypeBool || ifTrue.Type() != ifFalse.Type() {
		return fhe.Handle{}, fhe.ErrTypeMismatch
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	c, err := cp.load(cond)
	if err != nil {
		return fhe.Handle{}, err
	}
	x, err := cp.load(ifTrue)
	if err != nil {
		return fhe.Handle{}, err
	}
	y, err := cp.load(ifFalse)
	if err != nil {
		return fhe.Handle{}, err
	}
	result := y
	if c == 1 {
		result = x
	}
	return cp.store("select", ifTrue.Type(), result, cond[:], ifTrue[:], ifFalse[:])
}

func (cp *Coprocessor) binary(op string, a, b fhe.Handle,
	eval func(x, y uint64, t fhe.Type) (uint64, fhe.Type),
) (fhe.Handle, error) {
	if a.Type() != b.Type() {
		return fhe.Handle{}, fmt.Errorf("%s %s, %s: %w", op, a.Type(), b.Type(), fhe.ErrTypeMismatch)
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	x, err := cp.load(a)
	if err != nil {
		return fhe.Handle{}, err
	}
	y, err := cp.load(b)
	if err != nil {
		return fhe.Handle{}, err
	}
	result, t := eval(x, y, a.Type())
	return cp.store(op, t, result, a[:], b[:])
}

// Allow implements fhe.Executor.
func (cp *Coprocessor) Allow(h fhe.Handle, principal common.Address) error {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	if _, err := cp.load(h); err != nil {
		return err
	}
	wTx := prefixeddb.NewPrefixedWriteTx(cp.db.WriteTx(), aclPrefix)
	defer wTx.Discard()
	if err := wTx.Set(aclKey(h, principal), allowedMarker); err != nil {
		return err
	}
	return wTx.Commit()
}

// IsAllowed implements fhe.Executor.
func (cp *Coprocessor) IsAllowed(h fhe.Handle, principal common.Address) (bool, error) {
	_, err := prefixeddb.NewPrefixedReader(cp.db, aclPrefix).Get(aclKey(h, principal))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, db.ErrKeyNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Decrypt implements fhe.Decryptor.
func (cp *Coprocessor) Decrypt(h fhe.Handle, requester common.Address) (uint64, error) {
	allowed, err := cp.IsAllowed(h, requester)
	if err != nil {
		return 0, err
	}
	if !allowed {
		return 0, fhe.ErrNotAllowed
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return cp.load(h)
}

// Reencrypt implements fhe.Decryptor.
func (cp *Coprocessor) Reencrypt(h fhe.Handle, requester common.Address, publicKey []byte) ([]byte, error) {
	if len(publicKey) != 32 {
		return nil, fhe.ErrInvalidPublicKey
	}
	value, err := cp.Decrypt(h, requester)
	if err != nil {
		return nil, err
	}
	var pk [32]byte
	copy(pk[:], publicKey)
	return box.SealAnonymous(nil, util.Uint64ToBytes(value), &pk, rand.Reader)
}

// store derives a fresh handle for op over operands and persists value.
// Must be called with mu held.
func (cp *Coprocessor) store(op string, t fhe.Type, value uint64, operands ...[]byte) (fhe.Handle, error) {
	nonce := cp.nonce + 1
	parts := [][]byte{[]byte(op), {byte(t)}}
	parts = append(parts, operands...)
	parts = append(parts, util.Uint64ToBytes(nonce))
	h := fhe.NewHandle(ethereum.HashRaw(joinParts(parts)), t)

	sealNonce := util.RandomBytes(chacha20poly1305.NonceSizeX)
	sealed := cp.aead.Seal(sealNonce, sealNonce, util.Uint64ToBytes(value), h[:])

	wTx := cp.db.WriteTx()
	defer wTx.Discard()
	if err := prefixeddb.NewPrefixedWriteTx(wTx, ciphertextPrefix).Set(h[:], sealed); err != nil {
		return fhe.Handle{}, err
	}
	if err := wTx.Set(nonceKey, util.Uint64ToBytes(nonce)); err != nil {
		return fhe.Handle{}, err
	}
	if err := wTx.Commit(); err != nil {
		return fhe.Handle{}, err
	}
	cp.nonce = nonce
	return h, nil
}

// load opens the ciphertext behind h. Must be called with mu held.
func (cp *Coprocessor) load(h fhe.Handle) (uint64, error) {
	sealed, err := prefixeddb.NewPrefixedReader(cp.db, ciphertextPrefix).Get(h[:])
	if errors.Is(err, db.ErrKeyNotFound) {
		return 0, fmt.Errorf("%s: %w", h, fhe.ErrUnknownHandle)
	}
	if err != nil {
		return 0, err
	}
	if len(sealed) < chacha20poly1305.NonceSizeX {
		return 0, fmt.Errorf("%s: corrupted ciphertext", h)
	}
	plain, err := cp.aead.Open(nil, sealed[:chacha20poly1305.NonceSizeX], sealed[chacha20poly1305.NonceSizeX:], h[:])
	if err != nil {
		return 0, fmt.Errorf("%s: cannot open ciphertext: %w", h, err)
	}
	return binary.BigEndian.Uint64(plain), nil
}

func aclKey(h fhe.Handle, principal common.Address) []byte {
	return append(h.Bytes(), principal.Bytes()...)
}

func joinParts(parts [][]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = binary.BigEndian.AppendUint32(out, uint32(len(p)))
		out = append(out, p...)
	}
	return out
}

func wrap(v uint64, t fhe.Type) uint64 {
	return v & t.MaxValue()
}

func boolToUint(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
