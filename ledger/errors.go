package ledger

import "errors"

var (
	ErrInvalidMarketID    = errors.New("invalid market id")
	ErrInvalidOptionCount = errors.New("invalid option count")
	ErrBlankTitle         = errors.New("market title is blank")
	ErrBlankOption        = errors.New("option label is blank")
	ErrInactiveMarket     = errors.New("market is not active")
	ErrNotMarketCreator   = errors.New("caller is not the market creator")
	// ErrInvalidInput wraps substrate rejections of an encrypted input.
	ErrInvalidInput = errors.New("invalid encrypted input")
	// ErrPaymentFailed wraps value transfer failures.
	ErrPaymentFailed = errors.New("stake payment failed")
	// ErrInvariantViolation means stored state is inconsistent. It is never
	// expected when every other check holds.
	ErrInvariantViolation = errors.New("ledger invariant violation")
)
