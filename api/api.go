package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/vocdoni/vocdoni-z-markets/fhe"
	"github.com/vocdoni/vocdoni-z-markets/ledger"
	"github.com/vocdoni/vocdoni-z-markets/log"
	"github.com/vocdoni/vocdoni-z-markets/storage"
	"github.com/vocdoni/vocdoni-z-markets/token"
)

// InputVerifier attests encrypted inputs for clients and publishes the key
// inputs must be encrypted to.
type InputVerifier interface {
	VerifyInput(input fhe.ExternalInput, t fhe.Type, ctx fhe.InputContext) (fhe.InputProof, error)
	NetworkPublicKey() []byte
	VerifierAddress() common.Address
}

// APIConfig type represents the configuration for the API HTTP server.
type APIConfig struct {
	Host string
	// Port to listen on, 0 picks a free one
	Port   int
	Ledger *ledger.Ledger
	Token  *token.Token
	// Storage keeps the replay protection markers of signed requests
	Storage   *storage.Storage
	Verifier  InputVerifier
	Decryptor fhe.Decryptor
}

// API type represents the API HTTP server of the prediction ledger.
type API struct {
	router    *chi.Mux
	server    *http.Server
	listener  net.Listener
	ledger    *ledger.Ledger
	token     *token.Token
	storage   *storage.Storage
	verifier  InputVerifier
	decryptor fhe.Decryptor
}

// New creates a new API instance with the given configuration and starts
// serving it in the background.
func New(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	switch {
	case conf.Ledger == nil:
		return nil, fmt.Errorf("missing ledger instance")
	case conf.Token == nil:
		return nil, fmt.Errorf("missing token instance")
	case conf.Storage == nil:
		return nil, fmt.Errorf("missing storage instance")
	case conf.Verifier == nil:
		return nil, fmt.Errorf("missing input verifier")
	case conf.Decryptor == nil:
		return nil, fmt.Errorf("missing decryptor")
	}
	a := &API{
		ledger:    conf.Ledger,
		token:     conf.Token,
		storage:   conf.Storage,
		verifier:  conf.Verifier,
		decryptor: conf.Decryptor,
	}

	// Initialize router
	a.initRouter()

	var err error
	a.listener, err = net.Listen("tcp", fmt.Sprintf("%s:%d", conf.Host, conf.Port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	a.server = &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infow("starting API server", "address", a.listener.Addr().String())
		if err := a.server.Serve(a.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start the API server: %v", err)
		}
	}()
	return a, nil
}

// Router returns the chi router for testing purposes
func (a *API) Router() *chi.Mux {
	return a.router
}

// Addr returns the address the server listens on.
func (a *API) Addr() net.Addr {
	return a.listener.Addr()
}

// Close gracefully stops the server.
func (a *API) Close(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}

// registerHandlers registers all the API handlers.
func (a *API) registerHandlers() {
	log.Infow("register handler", "endpoint", PingEndpoint, "method", "GET")
	a.router.Get(PingEndpoint, func(w http.ResponseWriter, r *http.Request) {
		httpWriteOK(w)
	})
	log.Infow("register handler", "endpoint", InfoEndpoint, "method", "GET")
	a.router.Get(InfoEndpoint, a.info)
	log.Infow("register handler", "endpoint", InputsEndpoint, "method", "POST")
	a.router.Post(InputsEndpoint, a.verifyInput)

	log.Infow("register handler", "endpoint", MarketsEndpoint, "method", "GET")
	a.router.Get(MarketsEndpoint, a.markets)
	log.Infow("register handler", "endpoint", MarketsEndpoint, "method", "POST")
	a.router.Post(MarketsEndpoint, a.newMarket)
	log.Infow("register handler", "endpoint", MarketEndpoint, "method", "GET")
	a.router.Get(MarketEndpoint, a.market)
	log.Infow("register handler", "endpoint", MarketStatusEndpoint, "method", "PUT")
	a.router.Put(MarketStatusEndpoint, a.setMarketStatus)
	log.Infow("register handler", "endpoint", SelectionsEndpoint, "method", "POST")
	a.router.Post(SelectionsEndpoint, a.newSelection)
	log.Infow("register handler", "endpoint", PositionsEndpoint, "method", "GET")
	a.router.Get(PositionsEndpoint, a.positions)
	log.Infow("register handler", "endpoint", PositionEndpoint, "method", "GET")
	a.router.Get(PositionEndpoint, a.position)
	log.Infow("register handler", "endpoint", MarketProofEndpoint, "method", "GET")
	a.router.Get(MarketProofEndpoint, a.marketProof)

	log.Infow("register handler", "endpoint", ReencryptEndpoint, "method", "POST")
	a.router.Post(ReencryptEndpoint, a.reencrypt)

	log.Infow("register handler", "endpoint", BalanceEndpoint, "method", "GET")
	a.router.Get(BalanceEndpoint, a.balance)
	log.Infow("register handler", "endpoint", OperatorsEndpoint, "method", "POST")
	a.router.Post(OperatorsEndpoint, a.setOperator)
	log.Infow("register handler", "endpoint", MintEndpoint, "method", "POST")
	a.router.Post(MintEndpoint, a.mint)
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() {
	// Create the router with a basic middleware stack
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}).Handler)
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	a.router.Use(middleware.Timeout(45 * time.Second))

	// Register the API handlers
	a.registerHandlers()
}
