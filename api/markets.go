package api

import (
	"net/http"

	"github.com/vocdoni/vocdoni-z-markets/log"
	"github.com/vocdoni/vocdoni-z-markets/state"
)

// markets lists every market
// GET /markets
func (a *API) markets(w http.ResponseWriter, r *http.Request) {
	markets, err := a.ledger.ListMarkets()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httpWriteJSON(w, &MarketList{Count: uint64(len(markets)), Markets: markets})
}

// newMarket creates a market created by the request signer
// POST /markets
func (a *API) newMarket(w http.ResponseWriter, r *http.Request) {
	req := &CreateMarketRequest{}
	if !decodeBody(w, r, req) {
		return
	}
	caller, ok := a.authenticate(w, &req.SignedRequest, ActionCreateMarket, req.Title, req.Labels)
	if !ok {
		return
	}
	id, err := a.ledger.CreateMarket(caller, req.Title, req.Labels)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	log.Infow("new market", "marketId", id, "creator", caller.Hex(), "title", req.Title)
	httpWriteJSON(w, &CreateMarketResponse{MarketID: id})
}

// market returns a market snapshot
// GET /markets/{marketId}
func (a *API) market(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		ErrMalformedMarketID.WithErr(err).Write(w)
		return
	}
	m, err := a.ledger.Market(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httpWriteJSON(w, m)
}

// setMarketStatus opens or closes a market, signed by its creator
// PUT /markets/{marketId}/status
func (a *API) setMarketStatus(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		ErrMalformedMarketID.WithErr(err).Write(w)
		return
	}
	req := &MarketStatusRequest{}
	if !decodeBody(w, r, req) {
		return
	}
	caller, ok := a.authenticate(w, &req.SignedRequest, ActionSetMarketActive, id, req.Active)
	if !ok {
		return
	}
	if err := a.ledger.SetMarketActive(caller, id, req.Active); err != nil {
		writeDomainError(w, err)
		return
	}
	httpWriteOK(w)
}

// positions lists the stake and choice handles of every user of a market
// GET /markets/{marketId}/users
func (a *API) positions(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		ErrMalformedMarketID.WithErr(err).Write(w)
		return
	}
	positions, err := a.ledger.Positions(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httpWriteJSON(w, &PositionList{MarketID: id, Positions: positions})
}

// position returns the stake and choice handles of a user
// GET /markets/{marketId}/users/{address}
func (a *API) position(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		ErrMalformedMarketID.WithErr(err).Write(w)
		return
	}
	user, ok := addressParam(r)
	if !ok {
		ErrMalformedAddress.Write(w)
		return
	}
	stake, err := a.ledger.UserStake(id, user)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	choice, err := a.ledger.UserChoice(id, user)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httpWriteJSON(w, &PositionResponse{MarketID: id, User: user, Stake: stake, Choice: choice})
}

// marketProof returns the inclusion proof of the market total stake
// GET /markets/{marketId}/proof
func (a *API) marketProof(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		ErrMalformedMarketID.WithErr(err).Write(w)
		return
	}
	if _, err := a.ledger.Market(id); err != nil {
		writeDomainError(w, err)
		return
	}
	proof, err := a.ledger.AccumulatorProof(state.MarketTotalKey(id))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httpWriteJSON(w, proof)
}
