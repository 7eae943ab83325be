package coprocessor

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/vocdoni/vocdoni-z-markets/crypto/ethereum"
	"github.com/vocdoni/vocdoni-z-markets/fhe"
	"github.com/vocdoni/vocdoni-z-markets/util"
	"golang.org/x/crypto/nacl/box"
)

// inputDomain separates input attestations from any other signed payload.
const inputDomain = "fhe-input-v0"

// EncryptInput seals value to the network public key, producing an external
// input a client can submit. It runs client side and needs no secret.
func EncryptInput(networkPublicKey []byte, value uint64, t fhe.Type) (fhe.ExternalInput, error) {
	if !t.Valid() {
		return nil, fhe.ErrInvalidType
	}
	if value > t.MaxValue() {
		return nil, fhe.ErrValueOverflow
	}
	if len(networkPublicKey) != 32 {
		return nil, fhe.ErrInvalidPublicKey
	}
	var pk [32]byte
	copy(pk[:], networkPublicKey)
	sealed, err := box.SealAnonymous([]byte{byte(t)}, util.Uint64ToBytes(value), &pk, rand.Reader)
	if err != nil {
		return nil, err
	}
	return sealed, nil
}

// OpenReencrypted opens a value returned by Reencrypt with the requester's
// curve25519 key pair.
func OpenReencrypted(sealed []byte, publicKey, privateKey *[32]byte) (uint64, error) {
	plain, ok := box.OpenAnonymous(nil, sealed, publicKey, privateKey)
	if !ok || len(plain) != 8 {
		return 0, fmt.Errorf("cannot open re-encrypted value")
	}
	return binary.BigEndian.Uint64(plain), nil
}

// InputDigest is the message an input attestation signs: the input, its type
// and the context it is bound to.
func InputDigest(input fhe.ExternalInput, t fhe.Type, ctx fhe.InputContext) []byte {
	msg := []byte(inputDomain)
	msg = append(msg, byte(t))
	msg = append(msg, ethereum.HashRaw(input)...)
	msg = append(msg, ctx.Contract.Bytes()...)
	msg = append(msg, ctx.User.Bytes()...)
	return ethereum.HashRaw(msg)
}

// VerifyInput checks that input is a well formed ciphertext of type t and
// returns an attestation binding it to ctx. This is the proof Ingest expects.
func (cp *Coprocessor) VerifyInput(input fhe.ExternalInput, t fhe.Type, ctx fhe.InputContext) (fhe.InputProof, error) {
	if _, err := cp.openInput(input, t); err != nil {
		return nil, err
	}
	sig, err := cp.verifier.SignEthereum(InputDigest(input, t, ctx))
	if err != nil {
		return nil, fmt.Errorf("sign input attestation: %w", err)
	}
	return sig, nil
}

// Ingest implements fhe.Executor.
func (cp *Coprocessor) Ingest(input fhe.ExternalInput, proof fhe.InputProof, t fhe.Type, ctx fhe.InputContext) (fhe.Handle, error) {
	if !t.Valid() {
		return fhe.Handle{}, fhe.ErrInvalidType
	}
	signer, err := ethereum.AddrFromSignature(InputDigest(input, t, ctx), proof)
	if err != nil {
		return fhe.Handle{}, fmt.Errorf("%w: %v", fhe.ErrInvalidProof, err)
	}
	if signer != cp.verifier.Address() {
		return fhe.Handle{}, fmt.Errorf("%w: unexpected signer %s", fhe.ErrInvalidProof, signer)
	}
	value, err := cp.openInput(input, t)
	if err != nil {
		return fhe.Handle{}, err
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return cp.store("input", t, value, ethereum.HashRaw(input), ctx.Contract.Bytes(), ctx.User.Bytes())
}

func (cp *Coprocessor) openInput(input fhe.ExternalInput, t fhe.Type) (uint64, error) {
	if !t.Valid() {
		return 0, fhe.ErrInvalidType
	}
	if len(input) < 1 || fhe.Type(input[0]) != t {
		return 0, fmt.Errorf("%w: expected %s", fhe.ErrInvalidInput, t)
	}
	plain, ok := box.OpenAnonymous(nil, input[1:], &cp.networkPub, &cp.networkPriv)
	if !ok || len(plain) != 8 {
		return 0, fhe.ErrInvalidInput
	}
	value := binary.BigEndian.Uint64(plain)
	if value > t.MaxValue() {
		return 0, fhe.ErrValueOverflow
	}
	return value, nil
}

// PrepareInput encrypts value and attests it for ctx in one step, as a client
// talking to the input verifier would.
func (cp *Coprocessor) PrepareInput(value uint64, t fhe.Type, ctx fhe.InputContext) (fhe.ExternalInput, fhe.InputProof, error) {
	input, err := EncryptInput(cp.NetworkPublicKey(), value, t)
	if err != nil {
		return nil, nil, err
	}
	proof, err := cp.VerifyInput(input, t, ctx)
	if err != nil {
		return nil, nil, err
	}
	return input, proof, nil
}
