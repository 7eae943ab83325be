package ledger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/vocdoni/vocdoni-z-markets/fhe"
)

// EventType names a ledger notification.
type EventType string

const (
	EventMarketCreated       EventType = "market-created"
	EventMarketStatusChanged EventType = "market-status-changed"
	EventSelectionPlaced     EventType = "selection-placed"
)

// Event is a ledger notification. It carries public metadata and handles
// only, never cleartext amounts or choices.
type Event struct {
	Type     EventType `json:"type"`
	MarketID uint64    `json:"marketId"`
	// Principal is the market creator for creation and status events, and
	// the staking user for selections.
	Principal common.Address `json:"principal"`
	Title     string         `json:"title,omitempty"`
	Active    bool           `json:"active"`
	// Stake is the handle of the transferred stake of a selection.
	Stake fhe.Handle `json:"stake"`
}

// SubscribeEvents delivers every event emitted after a mutation commits to
// ch. Delivery blocks the emitting call until every subscriber receives, so
// subscribers must keep draining their channel.
func (l *Ledger) SubscribeEvents(ch chan<- Event) event.Subscription {
	return l.feed.Subscribe(ch)
}

// unlockAndEmit releases mu and delivers ev. It must be called with mu held
// right after the mutation committed: emitMu is taken before mu is released,
// so events reach subscribers in commit order while the next mutation runs.
func (l *Ledger) unlockAndEmit(ev Event) {
	l.emitMu.Lock()
	defer l.emitMu.Unlock()
	l.mu.Unlock()
	l.feed.Send(ev)
}
