// Package fhe defines the contract of the encrypted-integer substrate the
// ledger orchestrates: ciphertext handles, their types, externally supplied
// inputs with their proofs, homomorphic operations and per-handle decrypt
// authorization lists.
//
// A Handle is an opaque reference; operations never expose cleartext. Every
// operation returns a fresh handle whose authorization list is empty, so the
// caller must grant access again after each derivation.
package fhe

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/vocdoni-z-markets/util"
)

// Type identifies the width of an encrypted value.
type Type uint8

const (
	TypeBool   Type = 0
	TypeUint8  Type = 2
	TypeUint64 Type = 5
)

// HandleVersion is stored in the last byte of every handle.
const HandleVersion = 0

var (
	ErrInvalidType      = errors.New("invalid ciphertext type")
	ErrTypeMismatch     = errors.New("ciphertext type mismatch")
	ErrUnknownHandle    = errors.New("unknown ciphertext handle")
	ErrInvalidProof     = errors.New("invalid input proof")
	ErrInvalidInput     = errors.New("malformed external input")
	ErrValueOverflow    = errors.New("value does not fit the ciphertext type")
	ErrNotAllowed       = errors.New("principal not allowed to access the handle")
	ErrInvalidPublicKey = errors.New("invalid re-encryption public key")
)

// Valid reports whether t is one of the supported types.
func (t Type) Valid() bool {
	switch t {
	case TypeBool, TypeUint8, TypeUint64:
		return true
	}
	return false
}

// Bits returns the bit width of t.
func (t Type) Bits() int {
	switch t {
	case TypeBool:
		return 1
	case TypeUint8:
		return 8
	case TypeUint64:
		return 64
	}
	return 0
}

// MaxValue returns the largest cleartext representable by t.
func (t Type) MaxValue() uint64 {
	switch t {
	case TypeBool:
		return 1
	case TypeUint8:
		return 0xff
	case TypeUint64:
		return ^uint64(0)
	}
	return 0
}

func (t Type) String() string {
	switch t {
	case TypeBool:
		return "ebool"
	case TypeUint8:
		return "euint8"
	case TypeUint64:
		return "euint64"
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

// Handle references a ciphertext held by the substrate. Byte 30 carries the
// Type and byte 31 the HandleVersion. The zero Handle means uninitialized.
type Handle [32]byte

// NewHandle builds a handle from a 32 byte digest, stamping type and version.
func NewHandle(digest []byte, t Type) Handle {
	var h Handle
	copy(h[:], digest)
	h[30] = byte(t)
	h[31] = HandleVersion
	return h
}

// Type returns the type encoded in the handle.
func (h Handle) Type() Type {
	return Type(h[30])
}

// IsZero reports whether h is the uninitialized handle.
func (h Handle) IsZero() bool {
	return h == Handle{}
}

// Bytes returns a copy of the handle bytes.
func (h Handle) Bytes() []byte {
	return append([]byte{}, h[:]...)
}

// Hex returns the 0x prefixed hex encoding of h.
func (h Handle) Hex() string {
	return "0x" + hex.EncodeToString(h[:])
}

func (h Handle) String() string {
	return h.Hex()
}

// MarshalText implements encoding.TextMarshaler.
func (h Handle) MarshalText() ([]byte, error) {
	return []byte(h.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Handle) UnmarshalText(text []byte) error {
	parsed, err := HandleFromHex(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// HandleFromHex parses a hex encoded handle, with or without 0x prefix.
func HandleFromHex(s string) (Handle, error) {
	b, err := hex.DecodeString(util.TrimHex(s))
	if err != nil {
		return Handle{}, fmt.Errorf("invalid handle: %w", err)
	}
	if len(b) != len(Handle{}) {
		return Handle{}, fmt.Errorf("invalid handle length %d", len(b))
	}
	var h Handle
	copy(h[:], b)
	return h, nil
}

// ExternalInput is a ciphertext produced outside the substrate, by a client.
type ExternalInput []byte

// InputProof attests that an ExternalInput is well formed and bound to an
// InputContext.
type InputProof []byte

// InputContext is what an input proof is bound to: the contract that will
// ingest the input and the user submitting it.
type InputContext struct {
	Contract common.Address
	User     common.Address
}

// Executor evaluates operations over encrypted values. Binary operations
// require operands of the same type. Add and Sub wrap modulo the operand
// width. Eq and Ge return a TypeBool handle. Select requires a TypeBool
// condition and branches of the same type.
type Executor interface {
	// TrivialEncrypt injects a constant as a ciphertext of type t.
	TrivialEncrypt(value uint64, t Type) (Handle, error)
	Add(a, b Handle) (Handle, error)
	Sub(a, b Handle) (Handle, error)
	Eq(a, b Handle) (Handle, error)
	Ge(a, b Handle) (Handle, error)
	Select(cond, ifTrue, ifFalse Handle) (Handle, error)
	// Ingest verifies proof against input, t and ctx and returns a handle to
	// the input ciphertext. Fails with ErrInvalidProof if verification fails.
	Ingest(input ExternalInput, proof InputProof, t Type, ctx InputContext) (Handle, error)
	// Allow adds principal to the decrypt authorization list of h.
	Allow(h Handle, principal common.Address) error
	// IsAllowed reports whether principal may decrypt h.
	IsAllowed(h Handle, principal common.Address) (bool, error)
}

// Decryptor releases cleartext to authorized principals only.
type Decryptor interface {
	// Decrypt returns the cleartext behind h if requester is allowed.
	Decrypt(h Handle, requester common.Address) (uint64, error)
	// Reencrypt returns the cleartext behind h sealed to publicKey, a
	// curve25519 public key owned by requester.
	Reencrypt(h Handle, requester common.Address, publicKey []byte) ([]byte, error)
}
