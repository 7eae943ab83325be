package tests

import (
	"context"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/vocdoni-z-markets/api/client"
	"github.com/vocdoni/vocdoni-z-markets/config"
	"github.com/vocdoni/vocdoni-z-markets/crypto/ethereum"
	"github.com/vocdoni/vocdoni-z-markets/service"
	"go.vocdoni.io/dvote/db/metadb"
)

// NewTestNode wires a ledger node on a fresh database and starts its
// services. The token admin is returned along with the node.
func NewTestNode(t *testing.T, ctx context.Context) (*service.Node, *ethereum.SignKeys) {
	c := qt.New(t)
	admin, err := NewTestSigner()
	c.Assert(err, qt.IsNil)
	node, err := service.NewNode(metadb.NewTest(t), &service.NodeConfig{
		LedgerAddress: common.HexToAddress(config.DefaultLedgerAddress),
		TokenAddress:  common.HexToAddress(config.DefaultTokenAddress),
		TokenAdmin:    admin.Address(),
		Host:          "127.0.0.1",
		Port:          0,
	})
	c.Assert(err, qt.IsNil)
	c.Assert(node.Monitor.Start(ctx), qt.IsNil)
	c.Assert(node.API.Start(ctx), qt.IsNil)
	t.Cleanup(func() {
		node.API.Stop()
		node.Monitor.Stop()
	})
	return node, admin
}

// NewTestSigner creates and initializes a new ethereum signer for testing.
func NewTestSigner() (*ethereum.SignKeys, error) {
	signer := ethereum.NewSignKeys()
	if err := signer.Generate(); err != nil {
		return nil, err
	}
	return signer, nil
}

// NewTestClient creates a new API client for testing.
func NewTestClient(node *service.Node) (*client.HTTPclient, error) {
	host, port := node.API.HostPort()
	return client.New(fmt.Sprintf("http://%s:%d", host, port))
}
