package state

import (
	"bytes"
	"fmt"

	"github.com/vocdoni/arbo"
	"github.com/vocdoni/vocdoni-z-markets/fhe"
	"github.com/vocdoni/vocdoni-z-markets/types"
)

// Proof is an inclusion proof of a handle in the state tree, in arbo native
// types. Siblings are packed.
type Proof struct {
	Root     types.HexBytes `json:"root"`
	Key      types.HexBytes `json:"key"`
	Handle   fhe.Handle     `json:"handle"`
	Siblings types.HexBytes `json:"siblings"`
}

// Proof generates the inclusion proof of key against the committed root.
func (s *State) Proof(key []byte) (*Proof, error) {
	root, err := s.tree.Root()
	if err != nil {
		return nil, err
	}
	leafK, leafV, siblings, exists, err := s.tree.GenProof(key)
	if err != nil {
		return nil, err
	}
	if !exists || !bytes.Equal(leafK, key) {
		return nil, ErrNotCommitted
	}
	p := &Proof{Root: root, Key: leafK, Siblings: siblings}
	copy(p.Handle[:], leafV)
	return p, nil
}

// VerifyProof checks that p proves p.Handle under p.Key for root.
func VerifyProof(root []byte, p *Proof) error {
	if p == nil {
		return fmt.Errorf("nil proof")
	}
	if !bytes.Equal(root, p.Root) {
		return fmt.Errorf("proof root %x does not match %x", p.Root, root)
	}
	ok, err := arbo.CheckProof(hashFunc, p.Key, p.Handle.Bytes(), root, p.Siblings)
	if err != nil {
		return fmt.Errorf("check proof: %w", err)
	}
	if !ok {
		return fmt.Errorf("invalid proof for key %x", p.Key)
	}
	return nil
}
