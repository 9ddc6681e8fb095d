package coordinator

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"

	"github.com/vocdoni/maci-coordinator/crypto/keys"
	"github.com/vocdoni/maci-coordinator/db/metadb"
	"github.com/vocdoni/maci-coordinator/maci"
	"github.com/vocdoni/maci-coordinator/prover"
	"github.com/vocdoni/maci-coordinator/storage"
	"github.com/vocdoni/maci-coordinator/types"
)

var coordPrivKey = big.NewInt(111111)

func testConfig(deactivation bool) maci.Config {
	return maci.Config{
		StateTreeDepth:      2,
		IntStateTreeDepth:   1,
		VoteOptionTreeDepth: 1,
		BatchSize:           5,
		MaxVoteOptions:      3,
		NumSignUps:          3,
		QuadraticCost:       true,
		Deactivation:        deactivation,
	}
}

// mockProver returns a valid curve point proof for every witness. The
// first failures calls fail.
type mockProver struct {
	calls    atomic.Int32
	failures int32
}

func (p *mockProver) Prove(_ context.Context, w maci.Witness) (*prover.Result, error) {
	if p.calls.Add(1) <= p.failures {
		return nil, errors.New("prover unavailable")
	}
	_, _, g1, g2 := bn254.Generators()
	a := []string{g1.X.String(), g1.Y.String(), "1"}
	return &prover.Result{
		Proof: &prover.Proof{
			PiA: a,
			PiB: [][]string{
				{g2.X.A0.String(), g2.X.A1.String()},
				{g2.Y.A0.String(), g2.Y.A1.String()},
				{"1", "0"},
			},
			PiC:      a,
			Protocol: "groth16",
		},
		PublicSignals: []string{w.PublicInputHash().String()},
	}, nil
}

func pubKeyOf(k *keys.Keypair) []*types.BigInt {
	x, y := k.PubKey.Point()
	return []*types.BigInt{types.FromBig(x), types.FromBig(y)}
}

func voteLog(c *qt.C, idx int, signer *keys.Keypair, req *maci.VoteRequest) MessageLog {
	encKey, err := keys.RandomKeypair()
	c.Assert(err, qt.IsNil)
	coord := keys.MustKeypair(coordPrivKey)
	ct, enc, err := maci.NewVoteMessage(req, signer, encKey, coord.PubKey)
	c.Assert(err, qt.IsNil)
	return MessageLog{Idx: idx, Msg: types.BigInts(ct[:]), PubKey: types.BigInts(enc[:])}
}

func deactivateLog(c *qt.C, idx, numSignUps int, stateIdx uint32, signer *keys.Keypair) DeactivateMessageLog {
	encKey, err := keys.RandomKeypair()
	c.Assert(err, qt.IsNil)
	coord := keys.MustKeypair(coordPrivKey)
	ct, enc, err := maci.NewDeactivateMessage(stateIdx, signer, encKey, coord.PubKey)
	c.Assert(err, qt.IsNil)
	return DeactivateMessageLog{Idx: idx, NumSignUps: numSignUps, Msg: types.BigInts(ct[:]), PubKey: types.BigInts(enc[:])}
}

// testLogs signs up two voters with balance 100; alice puts 5 votes on
// option 1 and bob 3 votes on option 2.
func testLogs(c *qt.C) *ContractLogs {
	alice, bob := keys.MustKeypair(big.NewInt(1)), keys.MustKeypair(big.NewInt(2))
	return &ContractLogs{
		States: []StateLog{
			{Idx: 0, Balance: types.NewInt(100), PubKey: pubKeyOf(alice)},
			{Idx: 1, Balance: types.NewInt(100), PubKey: pubKeyOf(bob)},
		},
		Messages: []MessageLog{
			voteLog(c, 0, alice, &maci.VoteRequest{StateIdx: 0, Nonce: 1, VoIdx: 1, NewVotes: big.NewInt(5)}),
			voteLog(c, 1, bob, &maci.VoteRequest{StateIdx: 1, Nonce: 1, VoIdx: 2, NewVotes: big.NewInt(3)}),
		},
	}
}

func newTestCoordinator(c *qt.C, t *testing.T, p prover.Prover) (*Coordinator, *storage.Storage) {
	stg := storage.New(metadb.NewTest(t))
	coord, err := New(stg, p, coordPrivKey)
	c.Assert(err, qt.IsNil)
	return coord, stg
}

func assertResults(c *qt.C, res *storage.Results) {
	want := []string{"0", "5", "3", "0", "0"}
	c.Assert(res.Votes, qt.HasLen, len(want))
	for i, v := range want {
		c.Assert(res.Votes[i].String(), qt.Equals, v, qt.Commentf("option %d", i))
	}
}

func TestRun(t *testing.T) {
	c := qt.New(t)
	p := &mockProver{}
	coord, stg := newTestCoordinator(c, t, p)

	req := &Request{ID: uuid.New(), Config: testConfig(false), Logs: testLogs(c)}
	m, err := coord.Run(context.Background(), req)
	c.Assert(err, qt.IsNil)
	c.Assert(m.Phase(), qt.Equals, maci.PhaseEnded)
	c.Assert(p.calls.Load(), qt.Equals, int32(2))

	r, err := stg.Round(req.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(r.Status, qt.Equals, storage.RoundStatusEnded)
	c.Assert(r.Phase, qt.Equals, maci.PhaseEnded.String())
	c.Assert(r.NumMessages, qt.Equals, 2)
	c.Assert(r.Batches[maci.CircuitProcessMessages], qt.Equals, 1)
	c.Assert(r.Batches[maci.CircuitTally], qt.Equals, 1)
	c.Assert(r.TallyCommitment.MathBigInt().Cmp(m.TallyCommitment()), qt.Equals, 0)

	res, err := stg.Results(req.ID)
	c.Assert(err, qt.IsNil)
	assertResults(c, res)

	// the state salt of batch 0 is derived from the coordinator key
	salt := keys.StaticRandomKey(coordPrivKey, maci.StateSaltSalt, big.NewInt(0))
	c.Assert(m.StateSalt().Cmp(salt), qt.Equals, 0)

	rec, err := stg.Proof(req.ID, maci.CircuitTally, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(rec.InputHash.MathBigInt().Sign(), qt.Not(qt.Equals), 0)
	c.Assert(rec.Uncompressed, qt.Not(qt.IsNil))
	c.Assert(rec.Uncompressed.PiA, qt.HasLen, 128)

	_, err = stg.Witness(req.ID, maci.CircuitProcessMessages, 0)
	c.Assert(err, qt.IsNil)

	n, err := stg.NumLogs(req.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, m.NumLogs())
	entries, err := stg.Logs(req.ID, n-1, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(entries[0].Type, qt.Equals, maci.LogStopTallyingPeriod)

	_, err = coord.Run(context.Background(), req)
	c.Assert(err, qt.ErrorIs, ErrRoundEnded)
}

func TestRunWithoutProver(t *testing.T) {
	c := qt.New(t)
	coord, stg := newTestCoordinator(c, t, nil)

	req := &Request{ID: uuid.New(), Config: testConfig(false), Logs: testLogs(c)}
	_, err := coord.Run(context.Background(), req)
	c.Assert(err, qt.IsNil)

	_, err = stg.Proof(req.ID, maci.CircuitTally, 0)
	c.Assert(err, qt.ErrorIs, storage.ErrNotFound)
	_, err = stg.Witness(req.ID, maci.CircuitTally, 0)
	c.Assert(err, qt.IsNil)
}

func TestRunDeactivation(t *testing.T) {
	c := qt.New(t)
	coord, stg := newTestCoordinator(c, t, &mockProver{})

	bob := keys.MustKeypair(big.NewInt(2))
	logs := testLogs(c)
	logs.DMessages = []DeactivateMessageLog{deactivateLog(c, 0, 2, 1, bob)}

	req := &Request{ID: uuid.New(), Config: testConfig(true), Logs: logs}
	m, err := coord.Run(context.Background(), req)
	c.Assert(err, qt.IsNil)
	c.Assert(m.ProcessedDeactivateMessages(), qt.Equals, 1)

	r, err := stg.Round(req.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(r.Batches[maci.CircuitDeactivate], qt.Equals, 1)
	c.Assert(r.ProcessedDeactivateMessages, qt.Equals, 1)

	d, err := stg.Deactivations(req.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(d.Leaves, qt.HasLen, 1)
	c.Assert(d.ActiveState[1].String(), qt.Equals, "1")

	// restoring the persisted deactivations in a new round skips the batch
	again := &Request{ID: uuid.New(), Config: testConfig(true), Logs: logs, Deactivations: d}
	m2, err := coord.Run(context.Background(), again)
	c.Assert(err, qt.IsNil)
	c.Assert(m2.DeactivateRoot().Cmp(m.DeactivateRoot()), qt.Equals, 0)
	_, err = stg.Proof(again.ID, maci.CircuitDeactivate, 0)
	c.Assert(err, qt.ErrorIs, storage.ErrNotFound)
}

func TestProofRetry(t *testing.T) {
	c := qt.New(t)
	p := &mockProver{failures: 1}
	coord, stg := newTestCoordinator(c, t, p)

	req := &Request{ID: uuid.New(), Config: testConfig(false), Logs: testLogs(c)}
	_, err := coord.Run(context.Background(), req)
	c.Assert(err, qt.IsNil)
	c.Assert(p.calls.Load(), qt.Equals, int32(3))

	res, err := stg.Results(req.ID)
	c.Assert(err, qt.IsNil)
	assertResults(c, res)
}

func TestResume(t *testing.T) {
	c := qt.New(t)
	stg := storage.New(metadb.NewTest(t))
	logs := testLogs(c)
	req := &Request{ID: uuid.New(), Config: testConfig(false), Logs: logs}

	failing, err := New(stg, &mockProver{failures: 100}, coordPrivKey)
	c.Assert(err, qt.IsNil)
	failing.ProofRetries = 0
	_, err = failing.Run(context.Background(), req)
	c.Assert(err, qt.ErrorMatches, "prove msg batch 0: prover unavailable")

	r, err := stg.Round(req.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(r.Status, qt.Equals, storage.RoundStatusFailed)
	c.Assert(r.Error, qt.Contains, "prover unavailable")

	// a different configuration cannot resume the round
	other := testConfig(false)
	other.BatchSize = 25
	_, err = failing.Run(context.Background(), &Request{ID: req.ID, Config: other, Logs: logs})
	c.Assert(err, qt.ErrorIs, ErrRoundMismatch)

	working, err := New(stg, &mockProver{}, coordPrivKey)
	c.Assert(err, qt.IsNil)
	m, err := working.Run(context.Background(), req)
	c.Assert(err, qt.IsNil)
	c.Assert(m.Phase(), qt.Equals, maci.PhaseEnded)

	// the resumed run yields the same result as an uninterrupted one
	fresh, _ := newTestCoordinator(c, t, &mockProver{})
	want, err := fresh.Run(context.Background(), &Request{ID: uuid.New(), Config: testConfig(false), Logs: logs})
	c.Assert(err, qt.IsNil)
	c.Assert(m.TallyCommitment().Cmp(want.TallyCommitment()), qt.Equals, 0)

	n, err := stg.NumLogs(req.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, want.NumLogs())
}

func TestRunCanceled(t *testing.T) {
	c := qt.New(t)
	coord, stg := newTestCoordinator(c, t, &mockProver{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := &Request{ID: uuid.New(), Config: testConfig(false), Logs: testLogs(c)}
	_, err := coord.Run(ctx, req)
	c.Assert(err, qt.ErrorIs, context.Canceled)

	r, err := stg.Round(req.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(r.Status, qt.Equals, storage.RoundStatusInterrupted)
}
