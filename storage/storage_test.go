package storage

import (
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"

	"github.com/vocdoni/maci-coordinator/db/metadb"
	"github.com/vocdoni/maci-coordinator/maci"
	"github.com/vocdoni/maci-coordinator/prover"
	"github.com/vocdoni/maci-coordinator/types"
)

func newTestStorage(t *testing.T) *Storage {
	return New(metadb.NewTest(t))
}

func testRound() *Round {
	return &Round{
		ID: uuid.New(),
		Config: maci.Config{
			StateTreeDepth:      2,
			IntStateTreeDepth:   1,
			VoteOptionTreeDepth: 1,
			BatchSize:           5,
			MaxVoteOptions:      3,
			NumSignUps:          3,
		},
		Status: RoundStatusCreated,
	}
}

func TestRounds(t *testing.T) {
	c := qt.New(t)
	stg := newTestStorage(t)

	r := testRound()
	c.Assert(stg.NewRound(r), qt.IsNil)
	c.Assert(stg.NewRound(r), qt.ErrorIs, ErrKeyAlreadyExists)

	got, err := stg.Round(r.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Config, qt.Equals, r.Config)
	c.Assert(got.Status, qt.Equals, RoundStatusCreated)

	_, err = stg.Round(uuid.New())
	c.Assert(err, qt.ErrorIs, ErrNotFound)

	c.Assert(stg.UpdateRound(r.ID,
		RoundUpdateStatus(RoundStatusFailed, errors.New("boom")),
		RoundUpdateBatchProven(maci.CircuitTally, 0),
		RoundUpdateBatchProven(maci.CircuitTally, 1),
		RoundUpdateBatchProven(maci.CircuitTally, 0),
	), qt.IsNil)
	got, err = stg.Round(r.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Status, qt.Equals, RoundStatusFailed)
	c.Assert(got.Error, qt.Equals, "boom")
	c.Assert(got.Batches[maci.CircuitTally], qt.Equals, 2)

	// a failing update function leaves the round untouched
	err = stg.UpdateRound(r.ID, func(r *Round) error {
		r.Status = RoundStatusEnded
		return errors.New("rejected")
	})
	c.Assert(err, qt.ErrorMatches, ".*rejected")
	got, err = stg.Round(r.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Status, qt.Equals, RoundStatusFailed)

	other := testRound()
	c.Assert(stg.NewRound(other), qt.IsNil)
	ids, err := stg.ListRounds()
	c.Assert(err, qt.IsNil)
	c.Assert(ids, qt.HasLen, 2)
	c.Assert(ids, qt.Contains, r.ID)
	c.Assert(ids, qt.Contains, other.ID)
}

func TestInterruptedRounds(t *testing.T) {
	c := qt.New(t)
	database := metadb.NewTest(t)

	stg := New(database)
	r := testRound()
	r.Status = RoundStatusRunning
	c.Assert(stg.NewRound(r), qt.IsNil)
	done := testRound()
	done.Status = RoundStatusEnded
	c.Assert(stg.NewRound(done), qt.IsNil)

	// reopening the storage over the same database flags the running round
	reopened := New(database)
	got, err := reopened.Round(r.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Status, qt.Equals, RoundStatusInterrupted)
	got, err = reopened.Round(done.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Status, qt.Equals, RoundStatusEnded)
}

func TestLogs(t *testing.T) {
	c := qt.New(t)
	stg := newTestStorage(t)
	id := uuid.New()

	entries := []*maci.LogEntry{
		{Type: maci.LogSetStateLeaf, Balance: types.NewInt(100)},
		{Type: maci.LogPublishMessage},
		{Type: maci.LogEndVotePeriod},
	}
	c.Assert(stg.AppendLogs(id, 0, entries[:2]), qt.IsNil)
	c.Assert(stg.AppendLogs(id, 2, entries[2:]), qt.IsNil)
	// another round does not leak into this one
	c.Assert(stg.AppendLogs(uuid.New(), 0, entries), qt.IsNil)

	n, err := stg.NumLogs(id)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 3)

	all, err := stg.Logs(id, 0, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(all, qt.HasLen, 3)
	c.Assert(all[0].Type, qt.Equals, maci.LogSetStateLeaf)
	c.Assert(all[0].Balance.String(), qt.Equals, "100")
	c.Assert(all[2].Type, qt.Equals, maci.LogEndVotePeriod)

	page, err := stg.Logs(id, 1, 1)
	c.Assert(err, qt.IsNil)
	c.Assert(page, qt.HasLen, 1)
	c.Assert(page[0].Type, qt.Equals, maci.LogPublishMessage)

	page, err = stg.Logs(id, 5, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(page, qt.HasLen, 0)
}

func TestBatchArtifacts(t *testing.T) {
	c := qt.New(t)
	stg := newTestStorage(t)
	id := uuid.New()

	w := &maci.TallyInput{InputHash: types.NewInt(7), PackedVals: types.NewInt(3)}
	c.Assert(stg.SetWitness(id, 0, w), qt.IsNil)
	data, err := stg.Witness(id, maci.CircuitTally, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Contains, `"inputHash":"7"`)
	_, err = stg.Witness(id, maci.CircuitProcessMessages, 0)
	c.Assert(err, qt.ErrorIs, ErrNotFound)

	proof := &prover.Proof{
		PiA:      []string{"1", "2", "1"},
		PiB:      [][]string{{"1", "2"}, {"3", "4"}, {"1", "0"}},
		PiC:      []string{"1", "2", "1"},
		Protocol: "groth16",
	}
	for i := range 3 {
		c.Assert(stg.SetProof(id, &ProofRecord{
			Circuit:   maci.CircuitProcessMessages,
			Index:     2 - i,
			InputHash: types.NewInt(int64(2 - i)),
			Proof:     proof,
		}), qt.IsNil)
	}
	c.Assert(stg.SetProof(id, &ProofRecord{Circuit: maci.CircuitTally, Proof: proof}), qt.IsNil)
	c.Assert(stg.SetProof(id, &ProofRecord{Circuit: maci.CircuitTally}), qt.ErrorMatches, "nil proof")

	rec, err := stg.Proof(id, maci.CircuitProcessMessages, 1)
	c.Assert(err, qt.IsNil)
	c.Assert(rec.InputHash.String(), qt.Equals, "1")
	c.Assert(rec.Proof, qt.DeepEquals, proof)

	recs, err := stg.Proofs(id, maci.CircuitProcessMessages)
	c.Assert(err, qt.IsNil)
	c.Assert(recs, qt.HasLen, 3)
	for i, r := range recs {
		c.Assert(r.Index, qt.Equals, i)
	}

	_, err = stg.Proof(id, maci.CircuitDeactivate, 0)
	c.Assert(err, qt.ErrorIs, ErrNotFound)
}

func TestRoundState(t *testing.T) {
	c := qt.New(t)
	stg := newTestStorage(t)
	id := uuid.New()

	_, err := stg.Snapshot(id)
	c.Assert(err, qt.ErrorIs, ErrNotFound)
	c.Assert(stg.SetSnapshot(id, []byte{1, 2, 3}), qt.IsNil)
	snap, err := stg.Snapshot(id)
	c.Assert(err, qt.IsNil)
	c.Assert(snap, qt.DeepEquals, []byte{1, 2, 3})

	d := &Deactivations{
		Leaves:      [][]*types.BigInt{{types.NewInt(1), types.NewInt(2), types.NewInt(3), types.NewInt(4), types.NewInt(5)}},
		ActiveState: []*types.BigInt{types.NewInt(0), types.NewInt(1)},
		Indices:     []int{2},
		Processed:   3,
	}
	c.Assert(stg.SetDeactivations(id, d), qt.IsNil)
	gotD, err := stg.Deactivations(id)
	c.Assert(err, qt.IsNil)
	leaves := gotD.MACILeaves()
	c.Assert(leaves, qt.HasLen, 1)
	c.Assert(leaves[0][4].Int64(), qt.Equals, int64(5))
	c.Assert(gotD.ActiveState[1].String(), qt.Equals, "1")
	c.Assert(gotD.Indices, qt.DeepEquals, []int{2})
	c.Assert(gotD.Processed, qt.Equals, 3)

	res := &Results{Votes: []*types.BigInt{types.NewInt(3)}, TallyCommitment: types.NewInt(9)}
	c.Assert(stg.SetResults(id, res), qt.IsNil)
	gotRes, err := stg.Results(id)
	c.Assert(err, qt.IsNil)
	c.Assert(gotRes.Votes[0].String(), qt.Equals, "3")
}

func TestDeleteRound(t *testing.T) {
	c := qt.New(t)
	stg := newTestStorage(t)

	r := testRound()
	keep := testRound()
	for _, round := range []*Round{r, keep} {
		c.Assert(stg.NewRound(round), qt.IsNil)
		c.Assert(stg.SetSnapshot(round.ID, []byte{1}), qt.IsNil)
		c.Assert(stg.AppendLogs(round.ID, 0, []*maci.LogEntry{{Type: maci.LogEndVotePeriod}}), qt.IsNil)
	}
	// warm the cache
	_, err := stg.Round(r.ID)
	c.Assert(err, qt.IsNil)

	c.Assert(stg.DeleteRound(r.ID), qt.IsNil)
	_, err = stg.Round(r.ID)
	c.Assert(err, qt.ErrorIs, ErrNotFound)
	_, err = stg.Snapshot(r.ID)
	c.Assert(err, qt.ErrorIs, ErrNotFound)
	n, err := stg.NumLogs(r.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 0)

	_, err = stg.Round(keep.ID)
	c.Assert(err, qt.IsNil)
	n, err = stg.NumLogs(keep.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 1)
}
