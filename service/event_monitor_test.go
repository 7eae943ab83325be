package service

import (
	"context"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/vocdoni-z-markets/ledger"
)

func TestEventMonitor(t *testing.T) {
	c := qt.New(t)
	n := newTestNode(c, t)

	received := make(chan ledger.Event, 4)
	monitor := NewEventMonitor(n.Ledger, func(ev ledger.Event) { received <- ev })
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c.Assert(monitor.Start(ctx), qt.IsNil)
	defer monitor.Stop()
	c.Assert(monitor.Start(ctx), qt.ErrorMatches, "service already running")

	id, err := n.Ledger.CreateMarket(testCreator, "Daily BTC Close", []string{"Up", "Down"})
	c.Assert(err, qt.IsNil)
	c.Assert(n.Ledger.SetMarketActive(testCreator, id, false), qt.IsNil)

	for _, want := range []ledger.EventType{ledger.EventMarketCreated, ledger.EventMarketStatusChanged} {
		select {
		case ev := <-received:
			c.Assert(ev.Type, qt.Equals, want)
			c.Assert(ev.MarketID, qt.Equals, id)
		case <-ctx.Done():
			c.Fatalf("timeout waiting for %s", want)
		}
	}
	c.Assert(monitor.Seen(), qt.Equals, uint64(2))

	// once stopped the ledger no longer waits for the monitor
	monitor.Stop()
	_, err = n.Ledger.CreateMarket(testCreator, "Second", []string{"Yes", "No"})
	c.Assert(err, qt.IsNil)
	c.Assert(monitor.Seen(), qt.Equals, uint64(2))
}
