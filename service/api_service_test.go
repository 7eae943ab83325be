package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/vocdoni-z-markets/api/client"
	"go.vocdoni.io/dvote/db/metadb"
)

var (
	testAdmin   = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	testCreator = common.HexToAddress("0x00000000000000000000000000000000000000a1")
)

func newTestNode(c *qt.C, t *testing.T) *Node {
	n, err := NewNode(metadb.NewTest(t), &NodeConfig{
		LedgerAddress: common.HexToAddress("0x0000000000000000000000000000000000001ed9"),
		TokenAddress:  common.HexToAddress("0x00000000000000000000000000000000000070c0"),
		TokenAdmin:    testAdmin,
		Host:          "127.0.0.1",
		Port:          0, // Port 0 lets the OS choose an available port
	})
	c.Assert(err, qt.IsNil)
	return n
}

func TestNewNodeRequiresAdmin(t *testing.T) {
	c := qt.New(t)
	_, err := NewNode(metadb.NewTest(t), &NodeConfig{
		LedgerAddress: common.HexToAddress("0x01"),
		TokenAddress:  common.HexToAddress("0x02"),
	})
	c.Assert(err, qt.ErrorMatches, "missing token admin")
}

func TestAPIService(t *testing.T) {
	c := qt.New(t)
	n := newTestNode(c, t)
	ctx := context.Background()

	c.Assert(n.API.Start(ctx), qt.IsNil)
	defer n.API.Stop()

	host, port := n.API.HostPort()
	c.Assert(port, qt.Not(qt.Equals), 0)
	cli, err := client.New(fmt.Sprintf("http://%s:%d", host, port))
	c.Assert(err, qt.IsNil)
	info, err := cli.Info()
	c.Assert(err, qt.IsNil)
	c.Assert(info.TokenAdmin, qt.Equals, testAdmin)

	// Test stopping and restarting
	n.API.Stop()
	c.Assert(n.API.Start(ctx), qt.IsNil)

	// Test starting an already running service
	err = n.API.Start(ctx)
	c.Assert(err, qt.ErrorMatches, "service already running")
}

