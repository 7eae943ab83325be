package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/vocdoni-z-markets/crypto/ethereum"
	"github.com/vocdoni/vocdoni-z-markets/types"
	"github.com/vocdoni/vocdoni-z-markets/util"
)

// Actions name the write operations in signed messages, so a signature for
// one operation cannot be replayed as another.
const (
	ActionCreateMarket    = "createMarket"
	ActionSetMarketActive = "setMarketActive"
	ActionPlaceSelection  = "placeSelection"
	ActionReencrypt       = "reencrypt"
	ActionSetOperator     = "setOperator"
	ActionMint            = "mint"
)

// SignedRequest is embedded in every write request. The address recovered
// from the signature is the caller the operation runs as.
type SignedRequest struct {
	Nonce     uint64         `json:"nonce"`
	Signature types.HexBytes `json:"signature"`
}

// SignedMessage builds the message a write request signs: the action, the
// nonce and the operation arguments (path parameters included), encoded as a
// JSON array.
func SignedMessage(action string, nonce uint64, args ...any) ([]byte, error) {
	return json.Marshal(append([]any{action, nonce}, args...))
}

// Sign sets a fresh nonce and signs the request with signer.
func (s *SignedRequest) Sign(signer *ethereum.SignKeys, action string, args ...any) error {
	s.Nonce = util.RandomUint64()
	msg, err := SignedMessage(action, s.Nonce, args...)
	if err != nil {
		return err
	}
	if s.Signature, err = signer.SignEthereum(msg); err != nil {
		return fmt.Errorf("sign request: %w", err)
	}
	return nil
}

// Signer recovers the address that signed the request.
func (s *SignedRequest) Signer(action string, args ...any) (common.Address, []byte, error) {
	msg, err := SignedMessage(action, s.Nonce, args...)
	if err != nil {
		return common.Address{}, nil, err
	}
	addr, err := ethereum.AddrFromSignature(msg, s.Signature)
	if err != nil {
		return common.Address{}, nil, err
	}
	return addr, msg, nil
}

// authenticate recovers the caller of a signed request and records it as
// used, writing the error response and returning false on failure.
func (a *API) authenticate(w http.ResponseWriter, s *SignedRequest, action string, args ...any) (common.Address, bool) {
	caller, msg, err := s.Signer(action, args...)
	if err != nil {
		ErrInvalidSignature.Withf("could not extract address from signature: %v", err).Write(w)
		return common.Address{}, false
	}
	if err := a.storage.MarkRequest(ethereum.HashRaw(append(caller.Bytes(), msg...))); err != nil {
		writeDomainError(w, err)
		return common.Address{}, false
	}
	return caller, true
}
