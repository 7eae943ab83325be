package client

import (
	"crypto/rand"

	"golang.org/x/crypto/nacl/box"
)

// newBoxKey generates the one-time curve25519 key pair a value is
// re-encrypted to.
func newBoxKey() (*[32]byte, *[32]byte, error) {
	return box.GenerateKey(rand.Reader)
}
