package ethereum

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestSignKeysGeneration(t *testing.T) {
	c := qt.New(t)
	t.Parallel()

	s := NewSignKeys()
	c.Assert(s.Generate(), qt.IsNil)

	pub, priv := s.HexString()
	c.Assert(pub, qt.Not(qt.Equals), "")
	c.Assert(priv, qt.Not(qt.Equals), "")

	imported := NewSignKeys()
	c.Assert(imported.AddHexKey("0x"+priv), qt.IsNil)

	importedPub, importedPriv := imported.HexString()
	c.Assert(importedPub, qt.Equals, pub)
	c.Assert(importedPriv, qt.Equals, priv)
	c.Assert(imported.Address(), qt.Equals, s.Address())
}

func TestEmptyKeys(t *testing.T) {
	c := qt.New(t)

	s := NewSignKeys()
	pub, priv := s.HexString()
	c.Assert(pub, qt.Equals, "")
	c.Assert(priv, qt.Equals, "")
	_, err := s.SignEthereum([]byte("hello"))
	c.Assert(err, qt.ErrorMatches, "no private key available")
}

func TestAddressRecovery(t *testing.T) {
	c := qt.New(t)
	t.Parallel()

	testCases := []struct {
		name    string
		message []byte
	}{
		{
			name:    "create market",
			message: []byte("create-market:Daily BTC Close:Up|Down|Flat:1"),
		},
		{
			name:    "empty message",
			message: []byte{},
		},
	}

	s := NewSignKeys()
	c.Assert(s.Generate(), qt.IsNil)

	expectedAddr, err := AddrFromPublicKey(s.PublicKey())
	c.Assert(err, qt.IsNil)
	c.Assert(expectedAddr.String(), qt.Equals, s.AddressString())

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := qt.New(t)

			signature, err := s.SignEthereum(tc.message)
			c.Assert(err, qt.IsNil)
			c.Assert(signature, qt.HasLen, SignatureLength)

			recoveredAddr, err := AddrFromSignature(tc.message, signature)
			c.Assert(err, qt.IsNil)
			c.Assert(recoveredAddr, qt.Equals, expectedAddr)

			// wallets usually return V as 27/28
			legacy := append([]byte{}, signature...)
			legacy[64] += 27
			recoveredAddr, err = AddrFromSignature(tc.message, legacy)
			c.Assert(err, qt.IsNil)
			c.Assert(recoveredAddr, qt.Equals, expectedAddr)
		})
	}
}

func TestAddressRecoveryTampered(t *testing.T) {
	c := qt.New(t)

	s := NewSignKeys()
	c.Assert(s.Generate(), qt.IsNil)
	signature, err := s.SignEthereum([]byte("stake 100"))
	c.Assert(err, qt.IsNil)

	addr, err := AddrFromSignature([]byte("stake 900"), signature)
	if err == nil {
		c.Assert(addr, qt.Not(qt.Equals), s.Address())
	}

	_, err = AddrFromSignature([]byte("stake 100"), signature[:64])
	c.Assert(err, qt.ErrorMatches, "invalid signature length 64")
}
