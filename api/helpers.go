package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/vocdoni/vocdoni-z-markets/fhe"
	"github.com/vocdoni/vocdoni-z-markets/ledger"
	"github.com/vocdoni/vocdoni-z-markets/log"
	"github.com/vocdoni/vocdoni-z-markets/state"
	"github.com/vocdoni/vocdoni-z-markets/storage"
	"github.com/vocdoni/vocdoni-z-markets/token"
)

// httpWriteJSON helper function allows to write a JSON response.
func httpWriteJSON(w http.ResponseWriter, data any) {
	jdata, err := json.Marshal(data)
	if err != nil {
		ErrMarshalingServerJSONFailed.WithErr(err).Write(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	n, err := w.Write(jdata)
	if err != nil {
		log.Warnw("failed to write http response", "error", err)
	}
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
	}
	log.Debugw("api response", "bytes", n, "data", strings.ReplaceAll(string(jdata), "\"", ""))
}

// httpWriteOK helper function allows to write an OK response.
func httpWriteOK(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
	}
}

// decodeBody decodes the JSON request body into v, writing the error
// response and returning false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return false
	}
	return true
}

// marketIDParam parses the market id URL parameter.
func marketIDParam(r *http.Request) (uint64, error) {
	return strconv.ParseUint(chi.URLParam(r, MarketURLParam), 10, 64)
}

// addressParam parses the address URL parameter.
func addressParam(r *http.Request) (common.Address, bool) {
	s := chi.URLParam(r, AddressURLParam)
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

// writeDomainError translates the errors of the ledger and its collaborators
// into API errors.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidMarketID):
		ErrMarketNotFound.WithErr(err).Write(w)
	case errors.Is(err, ledger.ErrInvalidOptionCount),
		errors.Is(err, ledger.ErrBlankTitle),
		errors.Is(err, ledger.ErrBlankOption):
		ErrInvalidMarketParams.WithErr(err).Write(w)
	case errors.Is(err, ledger.ErrNotMarketCreator):
		ErrNotMarketCreator.WithErr(err).Write(w)
	case errors.Is(err, ledger.ErrInactiveMarket):
		ErrMarketInactive.WithErr(err).Write(w)
	case errors.Is(err, ledger.ErrInvalidInput):
		ErrInvalidEncryptedInput.WithErr(err).Write(w)
	case errors.Is(err, ledger.ErrPaymentFailed):
		ErrPaymentFailed.WithErr(err).Write(w)
	case errors.Is(err, ledger.ErrInvariantViolation):
		ErrLedgerInconsistent.WithErr(err).Write(w)
	case errors.Is(err, fhe.ErrNotAllowed), errors.Is(err, token.ErrNotAdmin):
		ErrNotAllowed.WithErr(err).Write(w)
	case errors.Is(err, fhe.ErrUnknownHandle):
		ErrUnknownHandle.WithErr(err).Write(w)
	case errors.Is(err, fhe.ErrInvalidPublicKey):
		ErrInvalidReencryptionKey.WithErr(err).Write(w)
	case errors.Is(err, fhe.ErrInvalidInput),
		errors.Is(err, fhe.ErrInvalidProof),
		errors.Is(err, fhe.ErrValueOverflow):
		ErrInvalidEncryptedInput.WithErr(err).Write(w)
	case errors.Is(err, fhe.ErrInvalidType):
		ErrInvalidCiphertextType.WithErr(err).Write(w)
	case errors.Is(err, state.ErrNotCommitted):
		ErrAccumulatorNotCommitted.WithErr(err).Write(w)
	case errors.Is(err, storage.ErrAlreadyUsed):
		ErrReplayedRequest.WithErr(err).Write(w)
	default:
		ErrGenericInternalServerError.WithErr(err).Write(w)
	}
}
