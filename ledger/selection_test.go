package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/google/go-cmp/cmp"
	"github.com/vocdoni/vocdoni-z-markets/fhe"
	"github.com/vocdoni/vocdoni-z-markets/state"
	"github.com/vocdoni/vocdoni-z-markets/token"
	"go.vocdoni.io/dvote/db"
)

func TestPlaceSelectionScenario(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(c, t, nil)
	id := env.createBTCMarket(c)
	env.fund(c, userB, 10_000_000)

	events := make(chan Event, 4)
	sub := env.ledger.SubscribeEvents(events)
	defer sub.Unsubscribe()

	moved := env.place(c, userB, id, 2, 2_500_000)
	c.Assert(env.decrypt(c, moved, userB), qt.Equals, uint64(2_500_000))

	c.Assert(env.tally(c, id), qt.CmpEquals(cmp.AllowUnexported(tally{})), tally{
		total:     2_500_000,
		counts:    []uint64{0, 0, 1},
		subtotals: []uint64{0, 0, 2_500_000},
	})
	stake, err := env.ledger.UserStake(id, userB)
	c.Assert(err, qt.IsNil)
	c.Assert(env.decrypt(c, stake, userB), qt.Equals, uint64(2_500_000))
	choice, err := env.ledger.UserChoice(id, userB)
	c.Assert(err, qt.IsNil)
	c.Assert(choice.Type(), qt.Equals, fhe.TypeUint8)
	c.Assert(env.decrypt(c, choice, userB), qt.Equals, uint64(2))

	// the stake is in the ledger custody
	c.Assert(env.balance(c, userB), qt.Equals, uint64(7_500_000))
	c.Assert(env.balance(c, ledgerAddr), qt.Equals, uint64(2_500_000))

	ev := <-events
	c.Assert(ev.Type, qt.Equals, EventSelectionPlaced)
	c.Assert(ev.MarketID, qt.Equals, id)
	c.Assert(ev.Principal, qt.Equals, userB)
	c.Assert(ev.Stake, qt.Equals, moved)

	positions, err := env.ledger.Positions(id)
	c.Assert(err, qt.IsNil)
	c.Assert(positions, qt.HasLen, 1)
	c.Assert(positions[0].User, qt.Equals, userB)
	c.Assert(positions[0].Stake, qt.Equals, stake)
	c.Assert(positions[0].Choice, qt.Equals, choice)
}

func TestConservationAndExclusivity(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(c, t, nil)
	id, err := env.ledger.CreateMarket(creator, "Winner", []string{"a", "b", "c", "d"})
	c.Assert(err, qt.IsNil)
	env.fund(c, userB, 1_000)
	env.fund(c, userC, 1_000)

	picks := []struct {
		user   common.Address
		option uint64
		stake  uint64
	}{
		{userB, 0, 10},
		{userC, 3, 25},
		{userB, 3, 5},
		{userC, 1, 100},
		{userC, 3, 1},
	}
	var sum uint64
	for _, p := range picks {
		before := env.tally(c, id)
		env.place(c, p.user, id, p.option, p.stake)
		after := env.tally(c, id)
		sum += p.stake

		for i := range after.counts {
			wantCount, wantSubtotal := before.counts[i], before.subtotals[i]
			if uint64(i) == p.option {
				wantCount++
				wantSubtotal += p.stake
			}
			c.Assert(after.counts[i], qt.Equals, wantCount)
			c.Assert(after.subtotals[i], qt.Equals, wantSubtotal)
		}
		var subtotals uint64
		for _, s := range after.subtotals {
			subtotals += s
		}
		c.Assert(after.total, qt.Equals, subtotals)
		c.Assert(after.total, qt.Equals, sum)
	}
}

func TestLastChoiceWins(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(c, t, nil)
	id := env.createBTCMarket(c)
	env.fund(c, userB, 1_000)

	env.place(c, userB, id, 0, 40)
	env.place(c, userB, id, 1, 60)

	stake, err := env.ledger.UserStake(id, userB)
	c.Assert(err, qt.IsNil)
	c.Assert(env.decrypt(c, stake, userB), qt.Equals, uint64(100))
	choice, err := env.ledger.UserChoice(id, userB)
	c.Assert(err, qt.IsNil)
	c.Assert(env.decrypt(c, choice, userB), qt.Equals, uint64(1))

	// both picks still count in the tallies
	c.Assert(env.tally(c, id), qt.CmpEquals(cmp.AllowUnexported(tally{})), tally{
		total:     100,
		counts:    []uint64{1, 1, 0},
		subtotals: []uint64{40, 60, 0},
	})
}

func TestOutOfRangeSelection(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(c, t, nil)
	id := env.createBTCMarket(c)
	env.fund(c, userB, 1_000)

	env.place(c, userB, id, 1, 10)
	env.place(c, userB, id, 200, 30)

	c.Assert(env.tally(c, id), qt.CmpEquals(cmp.AllowUnexported(tally{})), tally{
		total:     40,
		counts:    []uint64{0, 1, 0},
		subtotals: []uint64{0, 10, 0},
	})
	stake, err := env.ledger.UserStake(id, userB)
	c.Assert(err, qt.IsNil)
	c.Assert(env.decrypt(c, stake, userB), qt.Equals, uint64(40))
	choice, err := env.ledger.UserChoice(id, userB)
	c.Assert(err, qt.IsNil)
	c.Assert(env.decrypt(c, choice, userB), qt.Equals, uint64(200))
	c.Assert(env.balance(c, userB), qt.Equals, uint64(960))
}

func TestInsufficientBalanceAborts(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(c, t, nil)
	id := env.createBTCMarket(c)
	env.fund(c, userB, 10)
	// userC may be spent from but holds nothing
	c.Assert(env.token.SetOperator(userC, ledgerAddr, testNow.Add(time.Hour)), qt.IsNil)

	events := make(chan Event, 2)
	sub := env.ledger.SubscribeEvents(events)
	defer sub.Unsubscribe()

	before, err := env.ledger.Market(id)
	c.Assert(err, qt.IsNil)
	root, err := env.ledger.StateRoot()
	c.Assert(err, qt.IsNil)

	_, err = env.ledger.PlaceSelection(userB, id, env.selection(c, userB, 0, 11))
	c.Assert(err, qt.ErrorIs, ErrPaymentFailed)
	c.Assert(err, qt.ErrorIs, token.ErrInsufficientBalance)
	_, err = env.ledger.PlaceSelection(userC, id, env.selection(c, userC, 1, 5))
	c.Assert(err, qt.ErrorIs, ErrPaymentFailed)

	after, err := env.ledger.Market(id)
	c.Assert(err, qt.IsNil)
	c.Assert(after, qt.DeepEquals, before)
	c.Assert(env.tally(c, id), qt.CmpEquals(cmp.AllowUnexported(tally{})), tally{
		total:     0,
		counts:    []uint64{0, 0, 0},
		subtotals: []uint64{0, 0, 0},
	})
	newRoot, err := env.ledger.StateRoot()
	c.Assert(err, qt.IsNil)
	c.Assert(newRoot, qt.DeepEquals, root)
	for _, user := range []common.Address{userB, userC} {
		stake, err := env.ledger.UserStake(id, user)
		c.Assert(err, qt.IsNil)
		c.Assert(stake.IsZero(), qt.IsTrue)
	}
	c.Assert(env.balance(c, userB), qt.Equals, uint64(10))
	c.Assert(env.balance(c, ledgerAddr), qt.Equals, uint64(0))
	c.Assert(events, qt.HasLen, 0)

	// the exact balance is enough
	env.place(c, userB, id, 0, 10)
	c.Assert(env.balance(c, userB), qt.Equals, uint64(0))
}

func TestAccessControlPropagation(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(c, t, nil)
	id := env.createBTCMarket(c)
	env.fund(c, userB, 1_000)
	env.fund(c, userC, 1_000)

	moved := env.place(c, userB, id, 1, 10)
	m, err := env.ledger.Market(id)
	c.Assert(err, qt.IsNil)
	stake, err := env.ledger.UserStake(id, userB)
	c.Assert(err, qt.IsNil)
	choice, err := env.ledger.UserChoice(id, userB)
	c.Assert(err, qt.IsNil)

	touched := []fhe.Handle{moved, m.TotalStake, stake, choice}
	for _, o := range m.Options {
		touched = append(touched, o.SelectionCount, o.StakeSubtotal)
	}
	for _, h := range touched {
		for _, p := range []common.Address{ledgerAddr, userB} {
			ok, err := env.cp.IsAllowed(h, p)
			c.Assert(err, qt.IsNil)
			c.Assert(ok, qt.IsTrue, qt.Commentf("%s on %s", p.Hex(), h))
		}
	}
	// another user cannot read B's position
	for _, h := range []fhe.Handle{stake, choice} {
		ok, err := env.cp.IsAllowed(h, userC)
		c.Assert(err, qt.IsNil)
		c.Assert(ok, qt.IsFalse)
	}

	// grants only grow: C staking later does not revoke B on the handles B
	// was granted, and C gets the new aggregates
	env.place(c, userC, id, 0, 5)
	ok, err := env.cp.IsAllowed(m.TotalStake, userB)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
	m, err = env.ledger.Market(id)
	c.Assert(err, qt.IsNil)
	c.Assert(env.decrypt(c, m.TotalStake, userC), qt.Equals, uint64(15))
}

func TestInactiveMarketRejects(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(c, t, nil)
	id := env.createBTCMarket(c)
	env.fund(c, userB, 1_000)
	env.place(c, userB, id, 0, 10)
	c.Assert(env.ledger.SetMarketActive(creator, id, false), qt.IsNil)

	before, err := env.ledger.Market(id)
	c.Assert(err, qt.IsNil)
	root, err := env.ledger.StateRoot()
	c.Assert(err, qt.IsNil)

	_, err = env.ledger.PlaceSelection(userB, id, env.selection(c, userB, 1, 10))
	c.Assert(err, qt.ErrorIs, ErrInactiveMarket)

	after, err := env.ledger.Market(id)
	c.Assert(err, qt.IsNil)
	c.Assert(after, qt.DeepEquals, before)
	newRoot, err := env.ledger.StateRoot()
	c.Assert(err, qt.IsNil)
	c.Assert(newRoot, qt.DeepEquals, root)
	c.Assert(env.balance(c, userB), qt.Equals, uint64(990))

	_, err = env.ledger.PlaceSelection(userB, 5, env.selection(c, userB, 1, 10))
	c.Assert(err, qt.ErrorIs, ErrInvalidMarketID)
}

func TestRejectedInputs(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(c, t, nil)
	id := env.createBTCMarket(c)
	env.fund(c, userB, 1_000)

	c.Run("inputs bound to another user", func(c *qt.C) {
		sel := env.selection(c, userC, 1, 10)
		_, err := env.ledger.PlaceSelection(userB, id, sel)
		c.Assert(err, qt.ErrorIs, ErrInvalidInput)
		c.Assert(err, qt.ErrorIs, fhe.ErrInvalidProof)
	})
	c.Run("option and stake swapped", func(c *qt.C) {
		sel := env.selection(c, userB, 1, 10)
		sel.Option, sel.Stake = sel.Stake, sel.Option
		sel.OptionProof, sel.StakeProof = sel.StakeProof, sel.OptionProof
		_, err := env.ledger.PlaceSelection(userB, id, sel)
		c.Assert(err, qt.ErrorIs, ErrInvalidInput)
	})
	c.Run("stake bound to another user", func(c *qt.C) {
		sel := env.selection(c, userB, 1, 10)
		other := env.selection(c, userC, 1, 10)
		sel.Stake, sel.StakeProof = other.Stake, other.StakeProof
		_, err := env.ledger.PlaceSelection(userB, id, sel)
		c.Assert(err, qt.ErrorIs, ErrInvalidInput)
		c.Assert(err, qt.ErrorIs, fhe.ErrInvalidProof)
		c.Assert(err, qt.Not(qt.ErrorIs), ErrPaymentFailed)
		c.Assert(env.balance(c, userB), qt.Equals, uint64(1_000))
	})
	c.Run("missing selection", func(c *qt.C) {
		_, err := env.ledger.PlaceSelection(userB, id, nil)
		c.Assert(err, qt.ErrorIs, ErrInvalidInput)
	})
	c.Run("no transfer authorization", func(c *qt.C) {
		c.Assert(env.token.SetOperator(userB, ledgerAddr, testNow.Add(-time.Hour)), qt.IsNil)
		_, err := env.ledger.PlaceSelection(userB, id, env.selection(c, userB, 1, 10))
		c.Assert(err, qt.ErrorIs, ErrPaymentFailed)
		c.Assert(err, qt.ErrorIs, token.ErrUnauthorizedSpender)
	})

	c.Assert(env.tally(c, id), qt.CmpEquals(cmp.AllowUnexported(tally{})), tally{
		total:     0,
		counts:    []uint64{0, 0, 0},
		subtotals: []uint64{0, 0, 0},
	})
	c.Assert(env.balance(c, userB), qt.Equals, uint64(1_000))
}

var errInjected = errors.New("injected failure")

// failingTransfer stages a real transfer and then fails.
type failingTransfer struct {
	*token.Token
}

func (f failingTransfer) ConfidentialTransferFrom(wTx db.WriteTx, spender, from, to common.Address,
	input fhe.ExternalInput, proof fhe.InputProof,
) (fhe.Handle, error) {
	if _, err := f.Token.ConfidentialTransferFrom(wTx, spender, from, to, input, proof); err != nil {
		return fhe.Handle{}, err
	}
	return fhe.Handle{}, errInjected
}

// failingExecutor fails every Select after the first n.
type failingExecutor struct {
	fhe.Executor
	n int
}

func (f *failingExecutor) Select(cond, ifTrue, ifFalse fhe.Handle) (fhe.Handle, error) {
	if f.n == 0 {
		return fhe.Handle{}, errInjected
	}
	f.n--
	return f.Executor.Select(cond, ifTrue, ifFalse)
}

func TestPlaceSelectionIsAtomic(t *testing.T) {
	cases := []struct {
		name string
		wrap func(*Config)
		err  error
	}{
		{
			name: "transfer fails after staging",
			wrap: func(cfg *Config) { cfg.Transfer = failingTransfer{cfg.Transfer.(*token.Token)} },
			err:  ErrPaymentFailed,
		},
		{
			name: "fan out fails halfway",
			wrap: func(cfg *Config) { cfg.Executor = &failingExecutor{Executor: cfg.Executor, n: 3} },
			err:  errInjected,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := qt.New(t)
			env := newTestEnv(c, t, tc.wrap)
			id := env.createBTCMarket(c)
			env.fund(c, userB, 1_000)

			events := make(chan Event, 1)
			sub := env.ledger.SubscribeEvents(events)
			defer sub.Unsubscribe()

			before, err := env.ledger.Market(id)
			c.Assert(err, qt.IsNil)
			root, err := env.ledger.StateRoot()
			c.Assert(err, qt.IsNil)

			_, err = env.ledger.PlaceSelection(userB, id, env.selection(c, userB, 1, 10))
			c.Assert(err, qt.ErrorIs, tc.err)

			after, err := env.ledger.Market(id)
			c.Assert(err, qt.IsNil)
			c.Assert(after, qt.DeepEquals, before)
			newRoot, err := env.ledger.StateRoot()
			c.Assert(err, qt.IsNil)
			c.Assert(newRoot, qt.DeepEquals, root)
			stake, err := env.ledger.UserStake(id, userB)
			c.Assert(err, qt.IsNil)
			c.Assert(stake.IsZero(), qt.IsTrue)
			c.Assert(env.balance(c, userB), qt.Equals, uint64(1_000))
			c.Assert(events, qt.HasLen, 0)
		})
	}
}

func TestAccumulatorProof(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(c, t, nil)
	id := env.createBTCMarket(c)
	env.fund(c, userB, 1_000)
	env.place(c, userB, id, 2, 10)

	root, err := env.ledger.StateRoot()
	c.Assert(err, qt.IsNil)
	m, err := env.ledger.Market(id)
	c.Assert(err, qt.IsNil)

	proof, err := env.ledger.AccumulatorProof(state.MarketTotalKey(id))
	c.Assert(err, qt.IsNil)
	c.Assert(proof.Handle, qt.Equals, m.TotalStake)
	c.Assert(state.VerifyProof(root, proof), qt.IsNil)

	choice, err := env.ledger.UserChoice(id, userB)
	c.Assert(err, qt.IsNil)
	proof, err = env.ledger.AccumulatorProof(state.UserChoiceKey(id, userB))
	c.Assert(err, qt.IsNil)
	c.Assert(proof.Handle, qt.Equals, choice)
	c.Assert(state.VerifyProof(root, proof), qt.IsNil)
}
