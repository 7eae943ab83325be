package ledger

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/vocdoni-z-markets/fhe"
	"github.com/vocdoni/vocdoni-z-markets/fhe/coprocessor"
	"github.com/vocdoni/vocdoni-z-markets/state"
	"github.com/vocdoni/vocdoni-z-markets/storage"
	"github.com/vocdoni/vocdoni-z-markets/token"
	"go.vocdoni.io/dvote/db/metadb"
)

var (
	ledgerAddr = common.HexToAddress("0x0000000000000000000000000000000000001ed9")
	tokenAddr  = common.HexToAddress("0x00000000000000000000000000000000000070c0")
	admin      = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	creator    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	userB      = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	userC      = common.HexToAddress("0x00000000000000000000000000000000000000c3")

	testNow = time.Date(2026, 3, 1, 12, 30, 45, 500, time.UTC)
)

type testEnv struct {
	cp     *coprocessor.Coprocessor
	token  *token.Token
	st     *state.State
	ledger *Ledger
}

// newTestEnv wires a ledger on a fresh database. wrap, when given, can
// replace the executor and the transfer ledger the engine sees.
func newTestEnv(c *qt.C, t *testing.T, wrap func(*Config)) *testEnv {
	database := metadb.NewTest(t)
	env := &testEnv{}
	var err error
	env.cp, err = coprocessor.New(database, nil)
	c.Assert(err, qt.IsNil)
	env.token, err = token.New(database, &token.Config{
		Address:   tokenAddr,
		Admin:     admin,
		Executor:  env.cp,
		Decryptor: env.cp,
		Clock:     func() time.Time { return testNow },
	})
	c.Assert(err, qt.IsNil)
	env.st, err = state.New(database)
	c.Assert(err, qt.IsNil)
	cfg := &Config{
		Address:  ledgerAddr,
		Executor: env.cp,
		Transfer: env.token,
		Storage:  storage.New(database),
		State:    env.st,
		Clock:    func() time.Time { return testNow },
	}
	if wrap != nil {
		wrap(cfg)
	}
	env.ledger, err = New(cfg)
	c.Assert(err, qt.IsNil)
	return env
}

// fund mints amount for user and lets the ledger spend it.
func (env *testEnv) fund(c *qt.C, user common.Address, amount uint64) {
	_, err := env.token.Mint(admin, user, amount)
	c.Assert(err, qt.IsNil)
	c.Assert(env.token.SetOperator(user, ledgerAddr, testNow.Add(24*time.Hour)), qt.IsNil)
}

// selection encrypts option and stake for user as a client would.
func (env *testEnv) selection(c *qt.C, user common.Address, option, stake uint64) *Selection {
	ctx := fhe.InputContext{Contract: ledgerAddr, User: user}
	opt, optProof, err := env.cp.PrepareInput(option, fhe.TypeUint8, ctx)
	c.Assert(err, qt.IsNil)
	amount, amountProof, err := env.cp.PrepareInput(stake, fhe.TypeUint64, ctx)
	c.Assert(err, qt.IsNil)
	return &Selection{Option: opt, OptionProof: optProof, Stake: amount, StakeProof: amountProof}
}

func (env *testEnv) place(c *qt.C, user common.Address, id, option, stake uint64) fhe.Handle {
	h, err := env.ledger.PlaceSelection(user, id, env.selection(c, user, option, stake))
	c.Assert(err, qt.IsNil)
	return h
}

// decrypt reads h as principal, failing the test if it is not allowed.
func (env *testEnv) decrypt(c *qt.C, h fhe.Handle, principal common.Address) uint64 {
	v, err := env.cp.Decrypt(h, principal)
	c.Assert(err, qt.IsNil, qt.Commentf("decrypt %s as %s", h, principal.Hex()))
	return v
}

// tally is the cleartext view of a market, as the ledger can decrypt it.
type tally struct {
	total     uint64
	counts    []uint64
	subtotals []uint64
}

func (env *testEnv) tally(c *qt.C, id uint64) tally {
	m, err := env.ledger.Market(id)
	c.Assert(err, qt.IsNil)
	t := tally{total: env.decrypt(c, m.TotalStake, ledgerAddr)}
	for _, o := range m.Options {
		t.counts = append(t.counts, env.decrypt(c, o.SelectionCount, ledgerAddr))
		t.subtotals = append(t.subtotals, env.decrypt(c, o.StakeSubtotal, ledgerAddr))
	}
	return t
}

func (env *testEnv) balance(c *qt.C, holder common.Address) uint64 {
	h, err := env.token.Balance(holder)
	c.Assert(err, qt.IsNil)
	if h.IsZero() {
		return 0
	}
	return env.decrypt(c, h, holder)
}

func (env *testEnv) createBTCMarket(c *qt.C) uint64 {
	id, err := env.ledger.CreateMarket(creator, "Daily BTC Close", []string{"Up", "Down", "Flat"})
	c.Assert(err, qt.IsNil)
	return id
}
