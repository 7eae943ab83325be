package tests

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/vocdoni-z-markets/api"
	"github.com/vocdoni/vocdoni-z-markets/api/client"
	"github.com/vocdoni/vocdoni-z-markets/crypto/ethereum"
	"github.com/vocdoni/vocdoni-z-markets/log"
	"github.com/vocdoni/vocdoni-z-markets/state"
)

func init() {
	log.Init(log.LogLevelDebug, "stdout", nil)
}

func newSigner(c *qt.C) *ethereum.SignKeys {
	s, err := NewTestSigner()
	c.Assert(err, qt.IsNil)
	return s
}

// apiCode returns the API error code carried by err, or 0.
func apiCode(err error) int {
	var apiErr *client.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

// waitSeen polls seen until it reaches n or the timeout expires.
func waitSeen(seen func() uint64, n uint64, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if seen() >= n {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return seen() >= n
}

func TestIntegration(t *testing.T) {
	c := qt.New(t)

	// Setup
	ctx := context.Background()
	node, admin := NewTestNode(t, ctx)
	cli, err := NewTestClient(node)
	c.Assert(err, qt.IsNil)

	info, err := cli.Info()
	c.Assert(err, qt.IsNil)
	c.Assert(info.TokenAdmin, qt.Equals, admin.Address())
	c.Assert(info.PredictionsCount, qt.Equals, uint64(0))

	creator := newSigner(c)
	user := newSigner(c)
	var marketID uint64

	c.Run("create market", func(c *qt.C) {
		marketID, err = cli.CreateMarket(creator, "Daily BTC Close", []string{"Up", "Down", "Flat"})
		c.Assert(err, qt.IsNil)
		c.Assert(marketID, qt.Equals, uint64(0))

		m, err := cli.Market(marketID)
		c.Assert(err, qt.IsNil)
		c.Assert(m.Title, qt.Equals, "Daily BTC Close")
		c.Assert(m.Creator, qt.Equals, creator.Address())
		c.Assert(m.Active, qt.IsTrue)
		c.Assert(m.Labels(), qt.DeepEquals, []string{"Up", "Down", "Flat"})

		// zero accumulators are readable by the creator
		total, err := cli.Reveal(creator, m.TotalStake)
		c.Assert(err, qt.IsNil)
		c.Assert(total, qt.Equals, uint64(0))

		list, err := cli.Markets()
		c.Assert(err, qt.IsNil)
		c.Assert(list.Count, qt.Equals, uint64(1))
	})

	c.Run("invalid markets", func(c *qt.C) {
		_, err := cli.CreateMarket(creator, "Too few", []string{"Only"})
		c.Assert(apiCode(err), qt.Equals, api.ErrInvalidMarketParams.Code)
		_, err = cli.CreateMarket(creator, "   ", []string{"Yes", "No"})
		c.Assert(apiCode(err), qt.Equals, api.ErrInvalidMarketParams.Code)
		_, err = cli.Market(42)
		c.Assert(apiCode(err), qt.Equals, api.ErrMarketNotFound.Code)
	})

	c.Run("fund user", func(c *qt.C) {
		balance, err := cli.Mint(admin, user.Address(), 10_000_000)
		c.Assert(err, qt.IsNil)
		v, err := cli.Reveal(user, balance)
		c.Assert(err, qt.IsNil)
		c.Assert(v, qt.Equals, uint64(10_000_000))

		_, err = cli.Mint(user, user.Address(), 1)
		c.Assert(apiCode(err), qt.Equals, api.ErrNotAllowed.Code)

		c.Assert(cli.SetOperator(user, info.Ledger, time.Now().Add(time.Hour)), qt.IsNil)
	})

	c.Run("place selection", func(c *qt.C) {
		moved, err := cli.PlaceSelection(user, marketID, 2, 2_500_000)
		c.Assert(err, qt.IsNil)
		v, err := cli.Reveal(user, moved)
		c.Assert(err, qt.IsNil)
		c.Assert(v, qt.Equals, uint64(2_500_000))

		position, err := cli.Position(marketID, user.Address())
		c.Assert(err, qt.IsNil)
		stake, err := cli.Reveal(user, position.Stake)
		c.Assert(err, qt.IsNil)
		c.Assert(stake, qt.Equals, uint64(2_500_000))
		choice, err := cli.Reveal(user, position.Choice)
		c.Assert(err, qt.IsNil)
		c.Assert(choice, qt.Equals, uint64(2))

		positions, err := cli.Positions(marketID)
		c.Assert(err, qt.IsNil)
		c.Assert(positions.Positions, qt.HasLen, 1)
		c.Assert(positions.Positions[0].Stake, qt.Equals, position.Stake)

		// the choice stays private to its owner
		_, err = cli.Reveal(creator, position.Choice)
		c.Assert(apiCode(err), qt.Equals, api.ErrNotAllowed.Code)

		// the staker is granted the aggregates the selection touched
		m, err := cli.Market(marketID)
		c.Assert(err, qt.IsNil)
		total, err := cli.Reveal(user, m.TotalStake)
		c.Assert(err, qt.IsNil)
		c.Assert(total, qt.Equals, uint64(2_500_000))
		for i, want := range []uint64{0, 0, 1} {
			count, err := cli.Reveal(user, m.Options[i].SelectionCount)
			c.Assert(err, qt.IsNil)
			c.Assert(count, qt.Equals, want)
		}

		balance, err := cli.Balance(user.Address())
		c.Assert(err, qt.IsNil)
		v, err = cli.Reveal(user, balance)
		c.Assert(err, qt.IsNil)
		c.Assert(v, qt.Equals, uint64(7_500_000))
	})

	c.Run("market proof", func(c *qt.C) {
		proof, err := cli.MarketProof(marketID)
		c.Assert(err, qt.IsNil)
		m, err := cli.Market(marketID)
		c.Assert(err, qt.IsNil)
		c.Assert(proof.Handle, qt.Equals, m.TotalStake)
		current, err := cli.Info()
		c.Assert(err, qt.IsNil)
		c.Assert(state.VerifyProof(current.StateRoot, proof), qt.IsNil)
	})

	c.Run("closed market", func(c *qt.C) {
		err := cli.SetMarketActive(user, marketID, false)
		c.Assert(apiCode(err), qt.Equals, api.ErrNotMarketCreator.Code)
		c.Assert(cli.SetMarketActive(creator, marketID, false), qt.IsNil)

		_, err = cli.PlaceSelection(user, marketID, 0, 1)
		c.Assert(apiCode(err), qt.Equals, api.ErrMarketInactive.Code)

		var apiErr *client.Error
		c.Assert(errors.As(err, &apiErr), qt.IsTrue)
		c.Assert(apiErr.Status, qt.Equals, http.StatusConflict)
	})

	info, err = cli.Info()
	c.Assert(err, qt.IsNil)
	c.Assert(info.PredictionsCount, qt.Equals, uint64(1))
	// created, selection placed, closed
	c.Assert(waitSeen(node.Monitor.Seen, 3, 10*time.Second), qt.IsTrue)
}
