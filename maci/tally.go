package maci

import (
	"fmt"
	"math/big"

	"github.com/vocdoni/maci-coordinator/crypto"
	"github.com/vocdoni/maci-coordinator/crypto/hash/poseidon"
	"github.com/vocdoni/maci-coordinator/log"
	"github.com/vocdoni/maci-coordinator/types"
)

// TallyBatch is the outcome of a tally batch.
type TallyBatch struct {
	Input    *TallyInput
	BatchNum int
	Start    int
	End      int
}

// ProcessTallyBatch adds the votes of the next window of voters to the
// results. Every vote weight v on option j adds v*(v + MaxVotes) to result
// j, so a single leaf carries both the vote sum and the sum of squares.
// Voters that never voted contribute nothing. The round ends once the
// window covers every signed up voter.
func (m *MACI) ProcessTallyBatch(newTallySalt *big.Int) (*TallyBatch, error) {
	if m.phase != PhaseTallying {
		return nil, phaseError("process tally", PhaseTallying, m.phase)
	}
	newTallySalt = orZero(newTallySalt)
	bs := m.cfg.TallyBatchSize()
	start := m.batchNum * bs
	end := start + bs
	withDeact := m.deact != nil

	statePath, err := m.stateTree.PathElementOf(start)
	if err != nil {
		return nil, err
	}
	in := &TallyInput{
		StateRoot:              wire(m.stateTree.Root()),
		StateSalt:              wire(m.stateSalt),
		StateCommitment:        wire(m.stateCommitment),
		CurrentTallyCommitment: wire(m.tallyCommitment),
		StateLeaf:              make([][]*types.BigInt, bs),
		StatePathElements:      types.BigIntMatrix(statePath[m.cfg.IntStateTreeDepth:]),
		Votes:                  make([][]*types.BigInt, bs),
		CurrentResults:         wireSlice(m.tallyResults.Leaves()),
		CurrentResultsRootSalt: wire(m.tallySalt),
		NewResultsRootSalt:     wire(newTallySalt),
	}

	voSize := m.cfg.VoteOptionCapacity()
	for i := range bs {
		s := m.stateLeaf(start + i)
		in.StateLeaf[i] = wireSlice(s.vector(withDeact))
		in.Votes[i] = wireSlice(s.VoTree.Leaves())
		if !s.Voted {
			continue
		}
		for j := range voSize {
			v, err := s.VoTree.Leaf(j)
			if err != nil {
				return nil, err
			}
			acc, err := m.tallyResults.Leaf(j)
			if err != nil {
				return nil, err
			}
			contrib := new(big.Int).Add(v, MaxVotes)
			contrib.Mul(contrib, v)
			if err := m.tallyResults.UpdateLeaf(j, new(big.Int).Add(acc, contrib)); err != nil {
				return nil, err
			}
		}
	}

	newTallyCommitment, err := poseidon.Hash(m.tallyResults.Root(), newTallySalt)
	if err != nil {
		return nil, err
	}
	packedVals := big.NewInt(int64(m.batchNum))
	packedVals.Add(packedVals, new(big.Int).Lsh(big.NewInt(int64(m.cfg.NumSignUps)), 32))
	inputHash := crypto.InputHash(packedVals, m.stateCommitment, m.tallyCommitment, newTallyCommitment)

	in.PackedVals = wire(packedVals)
	in.NewTallyCommitment = wire(newTallyCommitment)
	in.InputHash = wire(inputHash)

	batch := &TallyBatch{Input: in, BatchNum: m.batchNum, Start: start, End: end}
	m.batchNum++
	m.tallyCommitment = newTallyCommitment
	m.tallySalt = new(big.Int).Set(newTallySalt)
	m.appendLog(&LogEntry{
		Type:       LogProcessTally,
		BatchStart: intPtr(start),
		BatchEnd:   intPtr(end),
		Commitment: wire(newTallyCommitment),
		InputHash:  wire(inputHash),
	})
	log.Infow("tally batch processed",
		"batch", batch.BatchNum,
		"start", start,
		"end", end,
		"tallyCommitment", newTallyCommitment.String())

	if end >= m.cfg.NumSignUps {
		m.phase = PhaseEnded
		m.appendLog(&LogEntry{
			Type:       LogStopTallyingPeriod,
			Commitment: wire(newTallyCommitment),
			Results:    wireSlice(m.tallyResults.Leaves()),
		})
		log.Infow("tally finished", "tallyCommitment", newTallyCommitment.String())
	}
	return batch, nil
}

// TallyBatches returns the number of tally batches left.
func (m *MACI) TallyBatches() int {
	if m.phase != PhaseTallying {
		return 0
	}
	bs := m.cfg.TallyBatchSize()
	left := max(m.cfg.NumSignUps-m.batchNum*bs, 1)
	return (left + bs - 1) / bs
}

// Results holds the decoded tally of every vote option.
type Results struct {
	// Votes is the sum of the vote weights of each option.
	Votes []*big.Int
	// Squares is the sum of the squared vote weights of each option.
	Squares []*big.Int
	// Raw are the packed accumulators committed in the tally.
	Raw []*big.Int
}

// Results decodes the current tally of every leaf of the vote option tree.
// Option MaxVoteOptions itself is accepted by message validation, so the
// results are not truncated to MaxVoteOptions.
func (m *MACI) Results() (*Results, error) {
	if m.phase != PhaseTallying && m.phase != PhaseEnded {
		return nil, fmt.Errorf("%w: no tally before phase %s, round is %s", ErrPhaseViolation, PhaseTallying, m.phase)
	}
	raw := m.tallyResults.Leaves()
	r := &Results{
		Votes:   make([]*big.Int, len(raw)),
		Squares: make([]*big.Int, len(raw)),
		Raw:     raw,
	}
	for i, acc := range raw {
		r.Votes[i], r.Squares[i] = new(big.Int).QuoRem(acc, MaxVotes, new(big.Int))
	}
	return r, nil
}

// TallySalt returns the salt of the current tally commitment.
func (m *MACI) TallySalt() *big.Int { return m.tallySalt }

// StateSalt returns the salt of the current state commitment.
func (m *MACI) StateSalt() *big.Int { return m.stateSalt }
