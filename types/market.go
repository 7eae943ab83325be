package types

import (
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/vocdoni-z-markets/fhe"
)

// Option is one selectable outcome of a market. Its position in the market
// option list is its selection index.
type Option struct {
	Label          string     `json:"label"          cbor:"0,keyasint,omitempty"`
	SelectionCount fhe.Handle `json:"selectionCount" cbor:"1,keyasint,omitempty"`
	StakeSubtotal  fhe.Handle `json:"stakeSubtotal"  cbor:"2,keyasint,omitempty"`
}

// Market is a confidential prediction as stored by the ledger.
type Market struct {
	ID         uint64         `json:"id"         cbor:"0,keyasint"`
	Title      string         `json:"title"      cbor:"1,keyasint,omitempty"`
	Creator    common.Address `json:"creator"    cbor:"2,keyasint,omitempty"`
	Active     bool           `json:"active"     cbor:"3,keyasint"`
	CreatedAt  time.Time      `json:"createdAt"  cbor:"4,keyasint,omitempty"`
	TotalStake fhe.Handle     `json:"totalStake" cbor:"5,keyasint,omitempty"`
	Options    []Option       `json:"options"    cbor:"6,keyasint,omitempty"`
}

// Labels returns the option labels in selection order.
func (m *Market) Labels() []string {
	labels := make([]string, len(m.Options))
	for i, o := range m.Options {
		labels[i] = o.Label
	}
	return labels
}

func (m *Market) String() string {
	data, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(data)
}

// Position is the encrypted state of one user in one market. Zero handles
// mean the user never staked.
type Position struct {
	MarketID uint64         `json:"marketId"`
	User     common.Address `json:"user"`
	Stake    fhe.Handle     `json:"stake"`
	Choice   fhe.Handle     `json:"choice"`
}
