package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/vocdoni/vocdoni-z-markets/fhe"
)

// reencrypt seals the value behind a handle to the signer's key, if the
// signer is allowed to decrypt it
// POST /handles/{handle}/reencrypt
func (a *API) reencrypt(w http.ResponseWriter, r *http.Request) {
	h, err := fhe.HandleFromHex(chi.URLParam(r, HandleURLParam))
	if err != nil {
		ErrMalformedHandle.WithErr(err).Write(w)
		return
	}
	req := &ReencryptRequest{}
	if !decodeBody(w, r, req) {
		return
	}
	caller, ok := a.authenticate(w, &req.SignedRequest, ActionReencrypt, h, req.PublicKey)
	if !ok {
		return
	}
	sealed, err := a.decryptor.Reencrypt(h, caller, req.PublicKey)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httpWriteJSON(w, &ReencryptResponse{Handle: h, Ciphertext: sealed})
}
