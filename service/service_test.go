package service

import (
	"context"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"

	"github.com/vocdoni/maci-coordinator/api"
	"github.com/vocdoni/maci-coordinator/coordinator"
	"github.com/vocdoni/maci-coordinator/crypto/keys"
	"github.com/vocdoni/maci-coordinator/db/metadb"
	"github.com/vocdoni/maci-coordinator/maci"
	"github.com/vocdoni/maci-coordinator/storage"
	"github.com/vocdoni/maci-coordinator/types"
)

func freePort(c *qt.C) int {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	c.Assert(err, qt.IsNil)
	port := l.Addr().(*net.TCPAddr).Port
	c.Assert(l.Close(), qt.IsNil)
	return port
}

func TestAPIService(t *testing.T) {
	c := qt.New(t)
	stg := storage.New(metadb.NewTest(t))
	port := freePort(c)

	as := NewAPI(stg, "127.0.0.1", port, true)
	c.Assert(as.Start(context.Background()), qt.IsNil)
	c.Assert(as.Start(context.Background()), qt.ErrorMatches, "service already running")
	defer as.Stop()

	host, p := as.HostPort()
	url := fmt.Sprintf("http://%s:%d%s", host, p, api.PingEndpoint)
	var resp *http.Response
	var err error
	for range 50 {
		if resp, err = http.Get(url); err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	c.Assert(err, qt.IsNil)
	c.Assert(resp.Body.Close(), qt.IsNil)
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)
}

func TestCoordinatorService(t *testing.T) {
	c := qt.New(t)
	stg := storage.New(metadb.NewTest(t))
	coordPrivKey := big.NewInt(424242)
	coord, err := coordinator.New(stg, nil, coordPrivKey)
	c.Assert(err, qt.IsNil)

	voter, err := keys.RandomKeypair()
	c.Assert(err, qt.IsNil)
	x, y := voter.PubKey.Point()
	req := &coordinator.Request{
		ID: uuid.New(),
		Config: maci.Config{
			StateTreeDepth:      2,
			IntStateTreeDepth:   1,
			VoteOptionTreeDepth: 1,
			BatchSize:           5,
			MaxVoteOptions:      3,
			NumSignUps:          1,
		},
		Logs: &coordinator.ContractLogs{
			States: []coordinator.StateLog{{
				Idx:     0,
				Balance: types.NewInt(10),
				PubKey:  []*types.BigInt{types.FromBig(x), types.FromBig(y)},
			}},
		},
	}

	cs := NewCoordinator(coord, req)
	_, err = cs.Wait(context.Background())
	c.Assert(err, qt.ErrorMatches, "service not started")

	c.Assert(cs.Start(context.Background()), qt.IsNil)
	c.Assert(cs.Start(context.Background()), qt.ErrorMatches, "service already started")
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	m, err := cs.Wait(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(m.Phase(), qt.Equals, maci.PhaseEnded)
	cs.Stop()

	round, err := stg.Round(req.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(round.Status, qt.Equals, storage.RoundStatusEnded)
}
