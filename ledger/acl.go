package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/vocdoni-z-markets/fhe"
)

// grant allows the ledger and every principal to decrypt each handle. Fresh
// handles start with an empty authorization list, so this must run on every
// handle a mutation creates or derives.
func (l *Ledger) grant(handles []fhe.Handle, principals ...common.Address) error {
	principals = append([]common.Address{l.address}, principals...)
	for _, h := range handles {
		for _, p := range principals {
			if err := l.exec.Allow(h, p); err != nil {
				return fmt.Errorf("allow %s on %s: %w", p.Hex(), h, err)
			}
		}
	}
	return nil
}
