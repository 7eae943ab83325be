package api

const (
	// PingEndpoint is the endpoint for checking the API status
	PingEndpoint = "/ping"
	// InfoEndpoint returns the ledger principals and keys clients need
	InfoEndpoint = "/info"
	// InputsEndpoint attests an encrypted input, returning its proof
	InputsEndpoint = "/inputs"

	// MarketsEndpoint lists (GET) and creates (POST) markets
	MarketsEndpoint = "/markets"
	MarketURLParam  = "marketId"
	MarketEndpoint  = "/markets/{" + MarketURLParam + "}"
	// MarketStatusEndpoint opens or closes a market
	MarketStatusEndpoint = MarketEndpoint + "/status"
	// SelectionsEndpoint places an encrypted selection on a market
	SelectionsEndpoint = MarketEndpoint + "/selections"
	// PositionsEndpoint lists the stake and choice handles of every user
	PositionsEndpoint = MarketEndpoint + "/users"
	// PositionEndpoint returns the stake and choice handles of a user
	AddressURLParam  = "address"
	PositionEndpoint = PositionsEndpoint + "/{" + AddressURLParam + "}"
	// MarketProofEndpoint returns the inclusion proof of the market total
	MarketProofEndpoint = MarketEndpoint + "/proof"

	// ReencryptEndpoint re-encrypts a handle to the requester's key
	HandleURLParam    = "handle"
	ReencryptEndpoint = "/handles/{" + HandleURLParam + "}/reencrypt"

	// BalanceEndpoint returns the token balance handle of a holder
	BalanceEndpoint = "/token/balances/{" + AddressURLParam + "}"
	// OperatorsEndpoint sets a token operator for the signer
	OperatorsEndpoint = "/token/operators"
	// MintEndpoint mints tokens, signed by the token admin
	MintEndpoint = "/token/mint"
)
