package api

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/vocdoni-z-markets/fhe"
	"github.com/vocdoni/vocdoni-z-markets/types"
)

// Info describes the ledger deployment: its principals and the key
// encrypted inputs must be sealed to.
type Info struct {
	Ledger           common.Address `json:"ledger"`
	Token            common.Address `json:"token"`
	TokenAdmin       common.Address `json:"tokenAdmin"`
	Verifier         common.Address `json:"verifier"`
	NetworkPublicKey types.HexBytes `json:"networkPublicKey"`
	StateRoot        types.HexBytes `json:"stateRoot"`
	PredictionsCount uint64         `json:"predictionsCount"`
	MinOptions       int            `json:"minOptions"`
	MaxOptions       int            `json:"maxOptions"`
}

// InputRequest asks the verifier to attest an encrypted input of the given
// type ("ebool", "euint8" or "euint64") submitted by user to the ledger.
type InputRequest struct {
	User  common.Address `json:"user"`
	Type  string         `json:"type"`
	Input types.HexBytes `json:"input"`
}

// InputResponse carries the proof of an attested input.
type InputResponse struct {
	Proof types.HexBytes `json:"proof"`
}

// MarketList is the response to a markets listing.
type MarketList struct {
	Count   uint64          `json:"count"`
	Markets []*types.Market `json:"markets"`
}

// CreateMarketRequest creates a market whose creator is the signer.
type CreateMarketRequest struct {
	Title  string   `json:"title"`
	Labels []string `json:"labels"`
	SignedRequest
}

// CreateMarketResponse carries the id of a new market.
type CreateMarketResponse struct {
	MarketID uint64 `json:"marketId"`
}

// MarketStatusRequest opens or closes a market.
type MarketStatusRequest struct {
	Active bool `json:"active"`
	SignedRequest
}

// SelectionRequest places an encrypted selection as the signer. Inputs must
// be bound to the ledger address and the signer.
type SelectionRequest struct {
	Option      types.HexBytes `json:"option"`
	OptionProof types.HexBytes `json:"optionProof"`
	Stake       types.HexBytes `json:"stake"`
	StakeProof  types.HexBytes `json:"stakeProof"`
	SignedRequest
}

// SelectionResponse carries the handle of the stake that moved.
type SelectionResponse struct {
	MarketID uint64         `json:"marketId"`
	User     common.Address `json:"user"`
	Stake    fhe.Handle     `json:"stake"`
}

// ReencryptRequest asks for the value behind a handle sealed to PublicKey,
// a curve25519 key of the signer.
type ReencryptRequest struct {
	PublicKey types.HexBytes `json:"publicKey"`
	SignedRequest
}

// ReencryptResponse carries the sealed value.
type ReencryptResponse struct {
	Handle     fhe.Handle     `json:"handle"`
	Ciphertext types.HexBytes `json:"ciphertext"`
}

// BalanceResponse carries the balance handle of a token holder.
type BalanceResponse struct {
	Holder  common.Address `json:"holder"`
	Balance fhe.Handle     `json:"balance"`
}

// OperatorRequest lets Operator spend the signer's tokens until the given
// unix time.
type OperatorRequest struct {
	Operator common.Address `json:"operator"`
	Until    int64          `json:"until"`
	SignedRequest
}

// MintRequest mints Amount tokens for To, signed by the token admin.
type MintRequest struct {
	To     common.Address `json:"to"`
	Amount uint64         `json:"amount"`
	SignedRequest
}

// PositionResponse carries the stake and choice handles of a user. Zero
// handles mean the user never staked on the market.
type PositionResponse = types.Position

// PositionList carries the positions of every user that staked on a market.
type PositionList struct {
	MarketID  uint64            `json:"marketId"`
	Positions []*types.Position `json:"positions"`
}
