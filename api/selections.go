package api

import (
	"net/http"

	"github.com/vocdoni/vocdoni-z-markets/fhe"
	"github.com/vocdoni/vocdoni-z-markets/ledger"
	"github.com/vocdoni/vocdoni-z-markets/log"
)

// newSelection places an encrypted selection as the request signer
// POST /markets/{marketId}/selections
func (a *API) newSelection(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		ErrMalformedMarketID.WithErr(err).Write(w)
		return
	}
	req := &SelectionRequest{}
	if !decodeBody(w, r, req) {
		return
	}
	caller, ok := a.authenticate(w, &req.SignedRequest, ActionPlaceSelection,
		id, req.Option, req.OptionProof, req.Stake, req.StakeProof)
	if !ok {
		return
	}
	stake, err := a.ledger.PlaceSelection(caller, id, &ledger.Selection{
		Option:      fhe.ExternalInput(req.Option),
		OptionProof: fhe.InputProof(req.OptionProof),
		Stake:       fhe.ExternalInput(req.Stake),
		StakeProof:  fhe.InputProof(req.StakeProof),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	log.Infow("new selection", "marketId", id, "user", caller.Hex(), "stake", stake.String())
	httpWriteJSON(w, &SelectionResponse{MarketID: id, User: caller, Stake: stake})
}
