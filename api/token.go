package api

import (
	"net/http"
	"time"

	"github.com/vocdoni/vocdoni-z-markets/log"
)

// balance returns the balance handle of a token holder
// GET /token/balances/{address}
func (a *API) balance(w http.ResponseWriter, r *http.Request) {
	holder, ok := addressParam(r)
	if !ok {
		ErrMalformedAddress.Write(w)
		return
	}
	h, err := a.token.Balance(holder)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httpWriteJSON(w, &BalanceResponse{Holder: holder, Balance: h})
}

// setOperator lets an operator spend the signer's tokens
// POST /token/operators
func (a *API) setOperator(w http.ResponseWriter, r *http.Request) {
	req := &OperatorRequest{}
	if !decodeBody(w, r, req) {
		return
	}
	holder, ok := a.authenticate(w, &req.SignedRequest, ActionSetOperator, req.Operator, req.Until)
	if !ok {
		return
	}
	if err := a.token.SetOperator(holder, req.Operator, time.Unix(req.Until, 0)); err != nil {
		writeDomainError(w, err)
		return
	}
	httpWriteOK(w)
}

// mint creates tokens, signed by the token admin
// POST /token/mint
func (a *API) mint(w http.ResponseWriter, r *http.Request) {
	req := &MintRequest{}
	if !decodeBody(w, r, req) {
		return
	}
	caller, ok := a.authenticate(w, &req.SignedRequest, ActionMint, req.To, req.Amount)
	if !ok {
		return
	}
	h, err := a.token.Mint(caller, req.To, req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	log.Infow("tokens minted", "to", req.To.Hex(), "amount", req.Amount)
	httpWriteJSON(w, &BalanceResponse{Holder: req.To, Balance: h})
}
