package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/event"
	"github.com/vocdoni/vocdoni-z-markets/ledger"
	"github.com/vocdoni/vocdoni-z-markets/log"
)

// eventBuffer is the capacity of the monitor subscription channel.
const eventBuffer = 64

// EventSource is implemented by the ledger.
type EventSource interface {
	SubscribeEvents(ch chan<- ledger.Event) event.Subscription
}

// EventMonitor represents a service that follows the ledger notifications,
// logs them and hands them to an optional callback.
type EventMonitor struct {
	source  EventSource
	onEvent func(ledger.Event)
	seen    atomic.Uint64
	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewEventMonitor creates a new EventMonitor service. onEvent may be nil; it
// runs on the monitor goroutine and must not block.
func NewEventMonitor(source EventSource, onEvent func(ledger.Event)) *EventMonitor {
	return &EventMonitor{
		source:  source,
		onEvent: onEvent,
	}
}

// Start begins monitoring the ledger. It returns an error if the service
// is already running.
func (em *EventMonitor) Start(ctx context.Context) error {
	em.mu.Lock()
	defer em.mu.Unlock()

	if em.cancel != nil {
		return fmt.Errorf("service already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	em.cancel = cancel
	em.done = make(chan struct{})

	events := make(chan ledger.Event, eventBuffer)
	sub := em.source.SubscribeEvents(events)
	go em.monitorEvents(ctx, sub, events, em.done)
	return nil
}

// Stop halts the monitoring service and waits for it to exit.
func (em *EventMonitor) Stop() {
	em.mu.Lock()
	defer em.mu.Unlock()

	if em.cancel != nil {
		em.cancel()
		<-em.done
		em.cancel = nil
	}
}

// Seen returns how many events the monitor has processed.
func (em *EventMonitor) Seen() uint64 {
	return em.seen.Load()
}

func (em *EventMonitor) monitorEvents(ctx context.Context, sub event.Subscription, events <-chan ledger.Event, done chan<- struct{}) {
	defer close(done)
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			if err != nil {
				log.Warnw("event subscription failed", "error", err.Error())
			}
			return
		case ev := <-events:
			switch ev.Type {
			case ledger.EventMarketCreated:
				log.Infow("market created", "marketID", ev.MarketID, "creator", ev.Principal.Hex(), "title", ev.Title)
			case ledger.EventMarketStatusChanged:
				log.Infow("market status changed", "marketID", ev.MarketID, "active", ev.Active)
			case ledger.EventSelectionPlaced:
				log.Debugw("selection placed", "marketID", ev.MarketID, "user", ev.Principal.Hex(), "stake", ev.Stake.Hex())
			default:
				log.Warnw("unknown ledger event", "type", string(ev.Type))
			}
			em.seen.Add(1)
			if em.onEvent != nil {
				em.onEvent(ev)
			}
		}
	}
}
