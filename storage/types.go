package storage

import (
	"maps"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/vocdoni/maci-coordinator/maci"
	"github.com/vocdoni/maci-coordinator/prover"
	"github.com/vocdoni/maci-coordinator/types"
)

// RoundStatus is the lifecycle status of a round run by the coordinator.
type RoundStatus string

const (
	RoundStatusCreated     RoundStatus = "created"
	RoundStatusRunning     RoundStatus = "running"
	RoundStatusInterrupted RoundStatus = "interrupted"
	RoundStatusEnded       RoundStatus = "ended"
	RoundStatusFailed      RoundStatus = "failed"
)

// Round holds the configuration and progress of a round.
type Round struct {
	ID     uuid.UUID   `json:"id" cbor:"1,keyasint"`
	Config maci.Config `json:"config" cbor:"2,keyasint"`
	Status RoundStatus `json:"status" cbor:"3,keyasint"`
	Phase  string      `json:"phase" cbor:"4,keyasint"`
	// Error is the reason of the last failure, if any.
	Error string `json:"error,omitempty" cbor:"5,keyasint,omitempty"`

	NumSignUps                  int `json:"numSignUps" cbor:"6,keyasint"`
	NumMessages                 int `json:"numMessages" cbor:"7,keyasint"`
	NumDeactivateMessages       int `json:"numDeactivateMessages" cbor:"8,keyasint"`
	ProcessedDeactivateMessages int `json:"processedDeactivateMessages" cbor:"9,keyasint"`
	// Batches counts the proven batches per circuit.
	Batches map[maci.CircuitKind]int `json:"batches,omitempty" cbor:"10,keyasint,omitempty"`

	StateRoot       *types.BigInt `json:"stateRoot,omitempty" cbor:"11,keyasint,omitempty"`
	StateCommitment *types.BigInt `json:"stateCommitment,omitempty" cbor:"12,keyasint,omitempty"`
	TallyCommitment *types.BigInt `json:"tallyCommitment,omitempty" cbor:"13,keyasint,omitempty"`

	CreatedAt time.Time `json:"createdAt" cbor:"14,keyasint"`
	UpdatedAt time.Time `json:"updatedAt" cbor:"15,keyasint"`
}

func (r *Round) clone() *Round {
	cp := *r
	cp.Batches = maps.Clone(r.Batches)
	return &cp
}

// ProofRecord is a proven batch.
type ProofRecord struct {
	Circuit      maci.CircuitKind          `json:"circuit" cbor:"1,keyasint"`
	Index        int                       `json:"index" cbor:"2,keyasint"`
	InputHash    *types.BigInt             `json:"inputHash" cbor:"3,keyasint"`
	Proof        *prover.Proof             `json:"proof" cbor:"4,keyasint"`
	Uncompressed *prover.UncompressedProof `json:"uncompressed,omitempty" cbor:"5,keyasint,omitempty"`
	CreatedAt    time.Time                 `json:"createdAt" cbor:"6,keyasint"`
}

// Results is the decoded tally of a round.
type Results struct {
	Votes           []*types.BigInt `json:"votes" cbor:"1,keyasint"`
	Squares         []*types.BigInt `json:"squares" cbor:"2,keyasint"`
	Raw             []*types.BigInt `json:"raw" cbor:"3,keyasint"`
	TallyCommitment *types.BigInt   `json:"tallyCommitment" cbor:"4,keyasint"`
	TallySalt       *types.BigInt   `json:"tallySalt" cbor:"5,keyasint"`
}

// ResultsFrom converts the results of a round.
func ResultsFrom(m *maci.MACI) (*Results, error) {
	res, err := m.Results()
	if err != nil {
		return nil, err
	}
	return &Results{
		Votes:           types.BigInts(res.Votes),
		Squares:         types.BigInts(res.Squares),
		Raw:             types.BigInts(res.Raw),
		TallyCommitment: types.FromBig(m.TallyCommitment()),
		TallySalt:       types.FromBig(m.TallySalt()),
	}, nil
}

// Deactivations is the output of the deactivation batches of a round,
// enough to restore them with Restore. Indices and Processed are optional:
// without them records are taken as consecutive, one per processed message.
type Deactivations struct {
	Leaves      [][]*types.BigInt `json:"leaves" cbor:"1,keyasint"`
	ActiveState []*types.BigInt   `json:"activeState" cbor:"2,keyasint"`
	Indices     []int             `json:"indices,omitempty" cbor:"3,keyasint,omitempty"`
	Processed   int               `json:"processed,omitempty" cbor:"4,keyasint,omitempty"`
}

// DeactivationsFrom copies the processed deactivations of a round.
func DeactivationsFrom(m *maci.MACI) *Deactivations {
	d := &Deactivations{
		ActiveState: types.BigInts(m.ActiveStateLeaves()),
		Indices:     m.DeactivateLeafIndices(),
		Processed:   m.ProcessedDeactivateMessages(),
	}
	for _, leaf := range m.DeactivateLeaves() {
		d.Leaves = append(d.Leaves, types.BigInts(leaf[:]))
	}
	return d
}

// Restore loads the deactivations into m.
func (d *Deactivations) Restore(m *maci.MACI) error {
	if d.Indices == nil {
		return m.RestoreDeactivations(d.MACILeaves(), types.MathBigInts(d.ActiveState))
	}
	return m.RestoreDeactivationsAt(d.MACILeaves(), d.Indices, d.Processed, types.MathBigInts(d.ActiveState))
}

// MACILeaves converts the leaves back to the state machine type.
func (d *Deactivations) MACILeaves() []maci.DeactivateLeaf {
	out := make([]maci.DeactivateLeaf, len(d.Leaves))
	for i, leaf := range d.Leaves {
		for j := range out[i] {
			out[i][j] = new(big.Int)
			if j < len(leaf) && leaf[j] != nil {
				out[i][j] = leaf[j].MathBigInt()
			}
		}
	}
	return out
}
