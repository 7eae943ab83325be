package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/vocdoni-z-markets/api"
	"github.com/vocdoni/vocdoni-z-markets/crypto/ethereum"
	"github.com/vocdoni/vocdoni-z-markets/fhe"
	"github.com/vocdoni/vocdoni-z-markets/fhe/coprocessor"
	"github.com/vocdoni/vocdoni-z-markets/state"
	"github.com/vocdoni/vocdoni-z-markets/types"
)

// Error is a non 200 API response.
type Error struct {
	Status  int
	Code    int    `json:"code"`
	Message string `json:"error"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %d (code %d: %s)", errCodeNot200, e.Status, e.Code, e.Message)
}

// call performs a request and decodes a successful response into out, which
// may be nil. Non 200 responses are returned as *Error.
func (c *HTTPclient) call(method string, body, out any, urlPath ...string) error {
	data, status, err := c.Request(method, body, nil, urlPath...)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		apiErr := &Error{Status: status}
		if err := json.Unmarshal(data, apiErr); err != nil {
			apiErr.Message = string(data)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("could not decode response: %w", err)
	}
	return nil
}

func marketPath(id uint64) []string {
	return []string{api.MarketsEndpoint, strconv.FormatUint(id, 10)}
}

// Info returns the ledger deployment details.
func (c *HTTPclient) Info() (*api.Info, error) {
	info := &api.Info{}
	return info, c.call(HTTPGET, nil, info, api.InfoEndpoint)
}

// EncryptInput encrypts value to the network key and gets it attested for
// user, returning the input and its proof.
func (c *HTTPclient) EncryptInput(user common.Address, value uint64, t fhe.Type) (types.HexBytes, types.HexBytes, error) {
	info, err := c.Info()
	if err != nil {
		return nil, nil, err
	}
	input, err := coprocessor.EncryptInput(info.NetworkPublicKey, value, t)
	if err != nil {
		return nil, nil, err
	}
	resp := &api.InputResponse{}
	if err := c.call(HTTPPOST, &api.InputRequest{
		User:  user,
		Type:  t.String(),
		Input: types.HexBytes(input),
	}, resp, api.InputsEndpoint); err != nil {
		return nil, nil, err
	}
	return types.HexBytes(input), resp.Proof, nil
}

// Markets returns every market.
func (c *HTTPclient) Markets() (*api.MarketList, error) {
	list := &api.MarketList{}
	return list, c.call(HTTPGET, nil, list, api.MarketsEndpoint)
}

// Market returns a market snapshot.
func (c *HTTPclient) Market(id uint64) (*types.Market, error) {
	m := &types.Market{}
	return m, c.call(HTTPGET, nil, m, marketPath(id)...)
}

// CreateMarket creates a market whose creator is signer.
func (c *HTTPclient) CreateMarket(signer *ethereum.SignKeys, title string, labels []string) (uint64, error) {
	req := &api.CreateMarketRequest{Title: title, Labels: labels}
	if err := req.Sign(signer, api.ActionCreateMarket, req.Title, req.Labels); err != nil {
		return 0, err
	}
	resp := &api.CreateMarketResponse{}
	if err := c.call(HTTPPOST, req, resp, api.MarketsEndpoint); err != nil {
		return 0, err
	}
	return resp.MarketID, nil
}

// SetMarketActive opens or closes a market created by signer.
func (c *HTTPclient) SetMarketActive(signer *ethereum.SignKeys, id uint64, active bool) error {
	req := &api.MarketStatusRequest{Active: active}
	if err := req.Sign(signer, api.ActionSetMarketActive, id, req.Active); err != nil {
		return err
	}
	return c.call(HTTPPUT, req, nil, append(marketPath(id), "status")...)
}

// PlaceSelection encrypts option and stake for signer and places them on
// market id. It returns the handle of the stake that moved.
func (c *HTTPclient) PlaceSelection(signer *ethereum.SignKeys, id uint64, option uint8, stake uint64) (fhe.Handle, error) {
	opt, optProof, err := c.EncryptInput(signer.Address(), uint64(option), fhe.TypeUint8)
	if err != nil {
		return fhe.Handle{}, fmt.Errorf("encrypt option: %w", err)
	}
	amount, amountProof, err := c.EncryptInput(signer.Address(), stake, fhe.TypeUint64)
	if err != nil {
		return fhe.Handle{}, fmt.Errorf("encrypt stake: %w", err)
	}
	req := &api.SelectionRequest{Option: opt, OptionProof: optProof, Stake: amount, StakeProof: amountProof}
	if err := req.Sign(signer, api.ActionPlaceSelection, id, req.Option, req.OptionProof, req.Stake, req.StakeProof); err != nil {
		return fhe.Handle{}, err
	}
	resp := &api.SelectionResponse{}
	if err := c.call(HTTPPOST, req, resp, append(marketPath(id), "selections")...); err != nil {
		return fhe.Handle{}, err
	}
	return resp.Stake, nil
}

// Position returns the stake and choice handles of user in market id.
func (c *HTTPclient) Position(id uint64, user common.Address) (*api.PositionResponse, error) {
	p := &api.PositionResponse{}
	return p, c.call(HTTPGET, nil, p, append(marketPath(id), "users", user.Hex())...)
}

// Positions returns the stake and choice handles of every user of market id.
func (c *HTTPclient) Positions(id uint64) (*api.PositionList, error) {
	list := &api.PositionList{}
	return list, c.call(HTTPGET, nil, list, append(marketPath(id), "users")...)
}

// MarketProof returns the inclusion proof of the total stake of market id.
func (c *HTTPclient) MarketProof(id uint64) (*state.Proof, error) {
	p := &state.Proof{}
	return p, c.call(HTTPGET, nil, p, append(marketPath(id), "proof")...)
}

// Reveal re-encrypts h to a fresh key of signer and opens it locally.
// Fails unless signer may decrypt h.
func (c *HTTPclient) Reveal(signer *ethereum.SignKeys, h fhe.Handle) (uint64, error) {
	pub, priv, err := newBoxKey()
	if err != nil {
		return 0, err
	}
	req := &api.ReencryptRequest{PublicKey: pub[:]}
	if err := req.Sign(signer, api.ActionReencrypt, h, req.PublicKey); err != nil {
		return 0, err
	}
	resp := &api.ReencryptResponse{}
	if err := c.call(HTTPPOST, req, resp, "/handles", h.Hex(), "reencrypt"); err != nil {
		return 0, err
	}
	return coprocessor.OpenReencrypted(resp.Ciphertext, pub, priv)
}

// Balance returns the token balance handle of holder.
func (c *HTTPclient) Balance(holder common.Address) (fhe.Handle, error) {
	resp := &api.BalanceResponse{}
	if err := c.call(HTTPGET, nil, resp, "/token/balances", holder.Hex()); err != nil {
		return fhe.Handle{}, err
	}
	return resp.Balance, nil
}

// SetOperator lets operator spend the tokens of signer until the given time.
func (c *HTTPclient) SetOperator(signer *ethereum.SignKeys, operator common.Address, until time.Time) error {
	req := &api.OperatorRequest{Operator: operator, Until: until.Unix()}
	if err := req.Sign(signer, api.ActionSetOperator, req.Operator, req.Until); err != nil {
		return err
	}
	return c.call(HTTPPOST, req, nil, api.OperatorsEndpoint)
}

// Mint creates amount tokens for to, signed by the token admin.
func (c *HTTPclient) Mint(admin *ethereum.SignKeys, to common.Address, amount uint64) (fhe.Handle, error) {
	req := &api.MintRequest{To: to, Amount: amount}
	if err := req.Sign(admin, api.ActionMint, req.To, req.Amount); err != nil {
		return fhe.Handle{}, err
	}
	resp := &api.BalanceResponse{}
	if err := c.call(HTTPPOST, req, resp, api.MintEndpoint); err != nil {
		return fhe.Handle{}, err
	}
	return resp.Balance, nil
}
