package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/vocdoni-z-markets/fhe"
	"github.com/vocdoni/vocdoni-z-markets/log"
	"github.com/vocdoni/vocdoni-z-markets/state"
	"github.com/vocdoni/vocdoni-z-markets/storage"
	"github.com/vocdoni/vocdoni-z-markets/types"
)

// CreateMarket registers a new market created by caller and returns its id.
// Every accumulator starts at an encrypted zero readable by the ledger and
// the creator. Ids are sequential from zero and never reused.
func (l *Ledger) CreateMarket(caller common.Address, title string, labels []string) (uint64, error) {
	if len(labels) < types.MinOptions || len(labels) > types.MaxOptions {
		return 0, fmt.Errorf("%w: %d, must be between %d and %d",
			ErrInvalidOptionCount, len(labels), types.MinOptions, types.MaxOptions)
	}
	if strings.TrimSpace(title) == "" {
		return 0, ErrBlankTitle
	}
	for i, label := range labels {
		if strings.TrimSpace(label) == "" {
			return 0, fmt.Errorf("%w: option %d", ErrBlankOption, i)
		}
	}

	l.mu.Lock()
	m := &types.Market{
		Title:     title,
		Creator:   caller,
		Active:    true,
		CreatedAt: l.now().UTC().Truncate(timeResolution),
		Options:   make([]types.Option, len(labels)),
	}
	id, err := l.createMarket(m, labels)
	if err != nil {
		l.mu.Unlock()
		return 0, err
	}

	log.Debugw("market created",
		"marketId", id,
		"creator", caller.Hex(),
		"options", len(labels),
		"totalStake", m.TotalStake.String())
	l.unlockAndEmit(Event{
		Type:      EventMarketCreated,
		MarketID:  id,
		Principal: caller,
		Title:     title,
		Active:    true,
	})
	return id, nil
}

// createMarket allocates the accumulators of m and stores it. Must be called
// with mu held.
func (l *Ledger) createMarket(m *types.Market, labels []string) (uint64, error) {
	fresh := make([]fhe.Handle, 0, 1+2*len(labels))
	zero := func() (fhe.Handle, error) {
		h, err := l.exec.TrivialEncrypt(0, fhe.TypeUint64)
		if err != nil {
			return fhe.Handle{}, fmt.Errorf("encrypt zero: %w", err)
		}
		fresh = append(fresh, h)
		return h, nil
	}
	var err error
	if m.TotalStake, err = zero(); err != nil {
		return 0, err
	}
	for i, label := range labels {
		m.Options[i].Label = label
		if m.Options[i].SelectionCount, err = zero(); err != nil {
			return 0, err
		}
		if m.Options[i].StakeSubtotal, err = zero(); err != nil {
			return 0, err
		}
	}
	if err := l.grant(fresh, m.Creator); err != nil {
		return 0, err
	}

	tx := l.storage.NewTx()
	defer tx.Discard()
	id, err := tx.AppendMarket(m)
	if err != nil {
		return 0, err
	}
	if err := l.commitAccumulators(tx, m); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit market: %w", err)
	}
	return id, nil
}

// SetMarketActive opens or closes market id. Only its creator may call it.
// Setting the current value again is allowed and still notifies.
func (l *Ledger) SetMarketActive(caller common.Address, id uint64, active bool) error {
	l.mu.Lock()
	if err := l.setMarketActive(caller, id, active); err != nil {
		l.mu.Unlock()
		return err
	}
	log.Debugw("market status changed", "marketId", id, "active", active)
	l.unlockAndEmit(Event{
		Type:      EventMarketStatusChanged,
		MarketID:  id,
		Principal: caller,
		Active:    active,
	})
	return nil
}

func (l *Ledger) setMarketActive(caller common.Address, id uint64, active bool) error {
	tx := l.storage.NewTx()
	defer tx.Discard()
	m, err := l.loadMarket(tx, id)
	if err != nil {
		return err
	}
	if m.Creator != caller {
		return ErrNotMarketCreator
	}
	m.Active = active
	if err := tx.SetMarket(m); err != nil {
		return err
	}
	return tx.Commit()
}

// PredictionsCount returns the number of markets ever created.
func (l *Ledger) PredictionsCount() (uint64, error) {
	return l.storage.MarketCount()
}

// Market returns a snapshot of market id.
func (l *Ledger) Market(id uint64) (*types.Market, error) {
	return l.loadMarket(l.storage, id)
}

// ListMarkets returns a snapshot of every market, ordered by id.
func (l *Ledger) ListMarkets() ([]*types.Market, error) {
	markets, err := l.storage.Markets()
	if err != nil {
		return nil, err
	}
	for _, m := range markets {
		if err := checkMarket(m); err != nil {
			return nil, err
		}
	}
	return markets, nil
}

// UserStake returns the accumulated stake handle of user in market id. A
// zero handle means the user never staked there.
func (l *Ledger) UserStake(id uint64, user common.Address) (fhe.Handle, error) {
	if err := l.checkMarketID(id); err != nil {
		return fhe.Handle{}, err
	}
	return orZero(l.storage.UserStake(id, user))
}

// UserChoice returns the latest choice handle of user in market id. A zero
// handle means the user never staked there.
func (l *Ledger) UserChoice(id uint64, user common.Address) (fhe.Handle, error) {
	if err := l.checkMarketID(id); err != nil {
		return fhe.Handle{}, err
	}
	return orZero(l.storage.UserChoice(id, user))
}

// Positions returns the stake and choice handles of every user of market id.
func (l *Ledger) Positions(id uint64) ([]*types.Position, error) {
	if err := l.checkMarketID(id); err != nil {
		return nil, err
	}
	return l.storage.UserPositions(id)
}

// marketReader is satisfied by both the committed storage and a pending tx.
type marketReader interface {
	MarketCount() (uint64, error)
	Market(id uint64) (*types.Market, error)
}

func (l *Ledger) loadMarket(r marketReader, id uint64) (*types.Market, error) {
	count, err := r.MarketCount()
	if err != nil {
		return nil, err
	}
	if id >= count {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMarketID, id)
	}
	m, err := r.Market(id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: market %d counted but not stored", ErrInvariantViolation, id)
	}
	if err != nil {
		return nil, err
	}
	if err := checkMarket(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (l *Ledger) checkMarketID(id uint64) error {
	count, err := l.storage.MarketCount()
	if err != nil {
		return err
	}
	if id >= count {
		return fmt.Errorf("%w: %d", ErrInvalidMarketID, id)
	}
	return nil
}

// checkMarket verifies the accumulator set of a stored market is complete.
func checkMarket(m *types.Market) error {
	if len(m.Options) < types.MinOptions || len(m.Options) > types.MaxOptions {
		return fmt.Errorf("%w: market %d has %d options", ErrInvariantViolation, m.ID, len(m.Options))
	}
	if m.TotalStake.IsZero() {
		return fmt.Errorf("%w: market %d has no total stake", ErrInvariantViolation, m.ID)
	}
	for i, o := range m.Options {
		if o.SelectionCount.IsZero() || o.StakeSubtotal.IsZero() {
			return fmt.Errorf("%w: market %d option %d has no accumulators", ErrInvariantViolation, m.ID, i)
		}
	}
	return nil
}

// commitAccumulators stages the market accumulators in the state tree.
func (l *Ledger) commitAccumulators(tx *storage.Tx, m *types.Market) error {
	if err := l.state.Commit(tx.WriteTx(), state.MarketTotalKey(m.ID), m.TotalStake); err != nil {
		return err
	}
	for i, o := range m.Options {
		if err := l.state.Commit(tx.WriteTx(), state.OptionCountKey(m.ID, i), o.SelectionCount); err != nil {
			return err
		}
		if err := l.state.Commit(tx.WriteTx(), state.OptionStakeKey(m.ID, i), o.StakeSubtotal); err != nil {
			return err
		}
	}
	return nil
}

func orZero(h fhe.Handle, err error) (fhe.Handle, error) {
	if errors.Is(err, storage.ErrNotFound) {
		return fhe.Handle{}, nil
	}
	return h, err
}
