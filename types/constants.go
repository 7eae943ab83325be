package types

const (
	// MinOptions is the minimum number of options a market can have.
	MinOptions = 2
	// MaxOptions is the maximum number of options a market can have. It also
	// bounds the fan-out of every selection.
	MaxOptions = 6
)
