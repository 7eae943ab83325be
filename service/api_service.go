package service

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/vocdoni/vocdoni-z-markets/api"
	"github.com/vocdoni/vocdoni-z-markets/config"
	"github.com/vocdoni/vocdoni-z-markets/log"
)

// APIService represents a service that manages the HTTP API server.
type APIService struct {
	conf   api.APIConfig
	api    *api.API
	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewAPI creates a new APIService instance. The storage and ledger in conf
// are owned by the caller and are not closed by Stop.
func NewAPI(conf *api.APIConfig) *APIService {
	return &APIService{conf: *conf}
}

// Start begins the API server. It returns an error if the service
// is already running or if it fails to start.
func (as *APIService) Start(ctx context.Context) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.cancel != nil {
		return fmt.Errorf("service already running")
	}

	var err error
	as.api, err = api.New(&as.conf)
	if err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}
	_, as.cancel = context.WithCancel(ctx)
	log.Infow("API service started", "addr", as.api.Addr().String())
	return nil
}

// Stop halts the API server.
func (as *APIService) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.cancel == nil {
		return
	}
	as.cancel()
	as.cancel = nil
	ctx, cancel := context.WithTimeout(context.Background(), config.DefaultShutdownTimeout)
	defer cancel()
	if err := as.api.Close(ctx); err != nil {
		log.Warnw("API service shutdown", "error", err.Error())
	}
}

// HostPort returns the host and port the API server listens on. While the
// service is stopped it returns the configured ones.
func (as *APIService) HostPort() (string, int) {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.cancel == nil {
		return as.conf.Host, as.conf.Port
	}
	host, port, err := net.SplitHostPort(as.api.Addr().String())
	if err != nil {
		return as.conf.Host, as.conf.Port
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return as.conf.Host, as.conf.Port
	}
	return host, p
}
