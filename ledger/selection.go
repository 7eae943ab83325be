package ledger

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/vocdoni-z-markets/fhe"
	"github.com/vocdoni/vocdoni-z-markets/log"
	"github.com/vocdoni/vocdoni-z-markets/state"
	"github.com/vocdoni/vocdoni-z-markets/storage"
	"github.com/vocdoni/vocdoni-z-markets/types"
)

// Selection is an encrypted pick on a market: the option index as an 8 bit
// input and the stake as a 64 bit input, both bound to the ledger address as
// contract and the caller as user.
type Selection struct {
	Option      fhe.ExternalInput
	OptionProof fhe.InputProof
	Stake       fhe.ExternalInput
	StakeProof  fhe.InputProof
}

// PlaceSelection pays the stake of caller into the ledger custody and adds
// it to market id: into its total, into the caller stake and into the
// counters of the chosen option. The option is matched against every index
// with encrypted equality, so the choice is never revealed. An option out of
// range moves the stake but no option counter. The caller choice is
// overwritten with the latest one.
//
// It returns the handle of the stake that actually moved. On any error
// nothing is committed and no event is emitted.
func (l *Ledger) PlaceSelection(caller common.Address, id uint64, sel *Selection) (fhe.Handle, error) {
	if sel == nil {
		return fhe.Handle{}, fmt.Errorf("%w: missing selection", ErrInvalidInput)
	}
	l.mu.Lock()
	var transferred fhe.Handle
	err := l.transfer.Exclusive(func() error {
		var err error
		transferred, err = l.placeSelection(caller, id, sel)
		return err
	})
	if err != nil {
		l.mu.Unlock()
		return fhe.Handle{}, err
	}

	log.Debugw("selection placed",
		"marketId", id,
		"user", caller.Hex(),
		"stake", transferred.String())
	l.unlockAndEmit(Event{
		Type:      EventSelectionPlaced,
		MarketID:  id,
		Principal: caller,
		Stake:     transferred,
		Active:    true,
	})
	return transferred, nil
}

func (l *Ledger) placeSelection(caller common.Address, id uint64, sel *Selection) (fhe.Handle, error) {
	tx := l.storage.NewTx()
	defer tx.Discard()

	m, err := l.loadMarket(tx, id)
	if err != nil {
		return fhe.Handle{}, err
	}
	if !m.Active {
		return fhe.Handle{}, fmt.Errorf("%w: %d", ErrInactiveMarket, id)
	}

	ctx := fhe.InputContext{Contract: l.address, User: caller}
	option, err := l.exec.Ingest(sel.Option, sel.OptionProof, fhe.TypeUint8, ctx)
	if err != nil {
		return fhe.Handle{}, fmt.Errorf("%w: option: %w", ErrInvalidInput, err)
	}

	// the stake input is ingested by the transfer ledger, under the same
	// context since the ledger is the spender
	transferred, err := l.transfer.ConfidentialTransferFrom(tx.WriteTx(), l.address, caller, l.address, sel.Stake, sel.StakeProof)
	switch {
	case isInputError(err):
		return fhe.Handle{}, fmt.Errorf("%w: stake: %w", ErrInvalidInput, err)
	case err != nil:
		return fhe.Handle{}, fmt.Errorf("%w: %w", ErrPaymentFailed, err)
	}

	touched, err := l.accumulate(tx, m, caller, option, transferred)
	if err != nil {
		return fhe.Handle{}, err
	}
	if err := l.grant(append(touched, transferred), caller); err != nil {
		return fhe.Handle{}, err
	}
	if err := tx.Commit(); err != nil {
		return fhe.Handle{}, fmt.Errorf("commit selection: %w", err)
	}
	return transferred, nil
}

// accumulate adds amount into the market total, the user stake and the
// counters of the option matching choice, stages the updated market and
// mappings in tx and returns every handle it derived.
func (l *Ledger) accumulate(tx *storage.Tx, m *types.Market, user common.Address,
	choice, amount fhe.Handle,
) ([]fhe.Handle, error) {
	touched := make([]fhe.Handle, 0, 3+2*len(m.Options))

	total, err := l.exec.Add(m.TotalStake, amount)
	if err != nil {
		return nil, fmt.Errorf("add total: %w", err)
	}
	m.TotalStake = total
	touched = append(touched, total)

	stake, err := tx.UserStake(m.ID, user)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		if stake, err = l.exec.TrivialEncrypt(0, fhe.TypeUint64); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}
	if stake, err = l.exec.Add(stake, amount); err != nil {
		return nil, fmt.Errorf("add user stake: %w", err)
	}
	touched = append(touched, stake, choice)

	one, err := l.exec.TrivialEncrypt(1, fhe.TypeUint64)
	if err != nil {
		return nil, err
	}
	zero, err := l.exec.TrivialEncrypt(0, fhe.TypeUint64)
	if err != nil {
		return nil, err
	}
	for i := range m.Options {
		index, err := l.exec.TrivialEncrypt(uint64(i), fhe.TypeUint8)
		if err != nil {
			return nil, err
		}
		match, err := l.exec.Eq(choice, index)
		if err != nil {
			return nil, fmt.Errorf("option %d: %w", i, err)
		}
		inc, err := l.exec.Select(match, one, zero)
		if err != nil {
			return nil, fmt.Errorf("option %d: %w", i, err)
		}
		if m.Options[i].SelectionCount, err = l.exec.Add(m.Options[i].SelectionCount, inc); err != nil {
			return nil, fmt.Errorf("option %d count: %w", i, err)
		}
		part, err := l.exec.Select(match, amount, zero)
		if err != nil {
			return nil, fmt.Errorf("option %d: %w", i, err)
		}
		if m.Options[i].StakeSubtotal, err = l.exec.Add(m.Options[i].StakeSubtotal, part); err != nil {
			return nil, fmt.Errorf("option %d subtotal: %w", i, err)
		}
		touched = append(touched, m.Options[i].SelectionCount, m.Options[i].StakeSubtotal)
	}

	if err := tx.SetMarket(m); err != nil {
		return nil, err
	}
	if err := tx.SetUserStake(m.ID, user, stake); err != nil {
		return nil, err
	}
	if err := tx.SetUserChoice(m.ID, user, choice); err != nil {
		return nil, err
	}
	if err := l.commitAccumulators(tx, m); err != nil {
		return nil, err
	}
	if err := l.state.Commit(tx.WriteTx(), state.UserStakeKey(m.ID, user), stake); err != nil {
		return nil, err
	}
	if err := l.state.Commit(tx.WriteTx(), state.UserChoiceKey(m.ID, user), choice); err != nil {
		return nil, err
	}
	return touched, nil
}

// isInputError reports whether err is a rejection of an external input.
func isInputError(err error) bool {
	return errors.Is(err, fhe.ErrInvalidProof) ||
		errors.Is(err, fhe.ErrInvalidInput) ||
		errors.Is(err, fhe.ErrInvalidType) ||
		errors.Is(err, fhe.ErrValueOverflow)
}
