package api

import (
	"net/http"

	"github.com/vocdoni/vocdoni-z-markets/fhe"
	"github.com/vocdoni/vocdoni-z-markets/types"
)

// info returns the ledger deployment details
// GET /info
func (a *API) info(w http.ResponseWriter, r *http.Request) {
	root, err := a.ledger.StateRoot()
	if err != nil {
		ErrGenericInternalServerError.Withf("could not get state root: %v", err).Write(w)
		return
	}
	count, err := a.ledger.PredictionsCount()
	if err != nil {
		ErrGenericInternalServerError.Withf("could not get predictions count: %v", err).Write(w)
		return
	}
	httpWriteJSON(w, &Info{
		Ledger:           a.ledger.Address(),
		Token:            a.token.Address(),
		TokenAdmin:       a.token.Admin(),
		Verifier:         a.verifier.VerifierAddress(),
		NetworkPublicKey: a.verifier.NetworkPublicKey(),
		StateRoot:        root,
		PredictionsCount: count,
		MinOptions:       types.MinOptions,
		MaxOptions:       types.MaxOptions,
	})
}

// verifyInput attests an encrypted input for the ledger
// POST /inputs
func (a *API) verifyInput(w http.ResponseWriter, r *http.Request) {
	req := &InputRequest{}
	if !decodeBody(w, r, req) {
		return
	}
	t, ok := parseType(req.Type)
	if !ok {
		ErrInvalidCiphertextType.With(req.Type).Write(w)
		return
	}
	proof, err := a.verifier.VerifyInput(fhe.ExternalInput(req.Input), t, fhe.InputContext{
		Contract: a.ledger.Address(),
		User:     req.User,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httpWriteJSON(w, &InputResponse{Proof: types.HexBytes(proof)})
}

func parseType(s string) (fhe.Type, bool) {
	for _, t := range []fhe.Type{fhe.TypeBool, fhe.TypeUint8, fhe.TypeUint64} {
		if t.String() == s {
			return t, true
		}
	}
	return 0, false
}
