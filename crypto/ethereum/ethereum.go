// Package ethereum provides secp256k1 signing keys and Ethereum-compatible
// message signing and address recovery. Callers of the ledger are identified
// by the address recovered from their request signatures.
package ethereum

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/vocdoni/vocdoni-z-markets/util"
)

const (
	// SigningPrefix is the EIP-191 prefix prepended to every signed message.
	SigningPrefix = "\x19Ethereum Signed Message:\n"
	// SignatureLength is the size of a [R || S || V] signature.
	SignatureLength = ethcrypto.SignatureLength
	// HashLength is the size of a keccak256 digest.
	HashLength = 32
)

// SignKeys holds a secp256k1 key pair.
type SignKeys struct {
	Public  ecdsa.PublicKey
	Private ecdsa.PrivateKey
}

// NewSignKeys returns an empty SignKeys, ready to Generate or AddHexKey.
func NewSignKeys() *SignKeys {
	return &SignKeys{}
}

// Generate creates a fresh random key pair.
func (k *SignKeys) Generate() error {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return err
	}
	k.Private = *key
	k.Public = key.PublicKey
	return nil
}

// AddHexKey imports a hex encoded private key, with or without 0x prefix.
func (k *SignKeys) AddHexKey(privHex string) error {
	key, err := ethcrypto.HexToECDSA(util.TrimHex(privHex))
	if err != nil {
		return err
	}
	k.Private = *key
	k.Public = key.PublicKey
	return nil
}

// HexString returns the compressed public key and the private key, hex encoded.
func (k *SignKeys) HexString() (string, string) {
	if k.Private.D == nil {
		return "", ""
	}
	pub := hex.EncodeToString(ethcrypto.CompressPubkey(&k.Public))
	priv := hex.EncodeToString(ethcrypto.FromECDSA(&k.Private))
	return pub, priv
}

// PublicKey returns the compressed public key.
func (k *SignKeys) PublicKey() []byte {
	if k.Public.X == nil {
		return nil
	}
	return ethcrypto.CompressPubkey(&k.Public)
}

// Address returns the Ethereum address of the key pair.
func (k *SignKeys) Address() common.Address {
	if k.Public.X == nil {
		return common.Address{}
	}
	return ethcrypto.PubkeyToAddress(k.Public)
}

// AddressString returns the checksummed hex address.
func (k *SignKeys) AddressString() string {
	return k.Address().String()
}

// SignEthereum signs message following EIP-191. The returned signature is
// 65 bytes long with V in {0, 1}.
func (k *SignKeys) SignEthereum(message []byte) ([]byte, error) {
	if k.Private.D == nil {
		return nil, fmt.Errorf("no private key available")
	}
	return ethcrypto.Sign(HashMessage(message), &k.Private)
}

// HashMessage returns the keccak256 hash of message with the EIP-191 prefix.
func HashMessage(message []byte) []byte {
	payload := append([]byte(SigningPrefix+strconv.Itoa(len(message))), message...)
	return HashRaw(payload)
}

// HashRaw returns the keccak256 hash of data.
func HashRaw(data []byte) []byte {
	return ethcrypto.Keccak256(data)
}

// AddrFromSignature recovers the signer address of an EIP-191 signed message.
// Signatures with V in {27, 28} are accepted too.
func AddrFromSignature(message, signature []byte) (common.Address, error) {
	if len(signature) != SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length %d", len(signature))
	}
	sig := make([]byte, SignatureLength)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(HashMessage(message), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("cannot recover public key: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// AddrFromPublicKey returns the address of a compressed or uncompressed public key.
func AddrFromPublicKey(pubKey []byte) (common.Address, error) {
	var (
		pub *ecdsa.PublicKey
		err error
	)
	switch len(pubKey) {
	case 33:
		pub, err = ethcrypto.DecompressPubkey(pubKey)
	case 65:
		pub, err = ethcrypto.UnmarshalPubkey(pubKey)
	default:
		return common.Address{}, fmt.Errorf("invalid public key length %d", len(pubKey))
	}
	if err != nil {
		return common.Address{}, err
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}
