package maci

import "github.com/vocdoni/maci-coordinator/types"

// CircuitKind names the circuit a witness is built for.
type CircuitKind string

const (
	CircuitProcessMessages CircuitKind = "msg"
	CircuitDeactivate      CircuitKind = "deactivate"
	CircuitTally           CircuitKind = "tally"
	CircuitAddKey          CircuitKind = "addKey"
)

// Witness is the full input of a circuit. Field names are the signal names
// of the circuit and are fixed by it.
type Witness interface {
	Circuit() CircuitKind
	// PublicInputHash is the single public signal of the circuit.
	PublicInputHash() *types.BigInt
}

// ProcessMessageInput is the witness of a message processing batch. The
// active state and deactivation fields are only set on rounds with the
// deactivation extension.
type ProcessMessageInput struct {
	InputHash                      *types.BigInt       `json:"inputHash"`
	PackedVals                     *types.BigInt       `json:"packedVals"`
	BatchStartHash                 *types.BigInt       `json:"batchStartHash"`
	BatchEndHash                   *types.BigInt       `json:"batchEndHash"`
	Msgs                           [][]*types.BigInt   `json:"msgs"`
	CoordPrivKey                   *types.BigInt       `json:"coordPrivKey"`
	CoordPubKey                    []*types.BigInt     `json:"coordPubKey"`
	EncPubKeys                     [][]*types.BigInt   `json:"encPubKeys"`
	CurrentStateRoot               *types.BigInt       `json:"currentStateRoot"`
	CurrentStateLeaves             [][]*types.BigInt   `json:"currentStateLeaves"`
	CurrentStateLeavesPathElements [][][]*types.BigInt `json:"currentStateLeavesPathElements"`
	CurrentStateCommitment         *types.BigInt       `json:"currentStateCommitment"`
	CurrentStateSalt               *types.BigInt       `json:"currentStateSalt"`
	NewStateCommitment             *types.BigInt       `json:"newStateCommitment"`
	NewStateSalt                   *types.BigInt       `json:"newStateSalt"`
	CurrentVoteWeights             []*types.BigInt     `json:"currentVoteWeights"`
	CurrentVoteWeightsPathElements [][][]*types.BigInt `json:"currentVoteWeightsPathElements"`

	ActiveStateRoot               *types.BigInt       `json:"activeStateRoot,omitempty"`
	DeactivateRoot                *types.BigInt       `json:"deactivateRoot,omitempty"`
	DeactivateCommitment          *types.BigInt       `json:"deactivateCommitment,omitempty"`
	ActiveStateLeaves             []*types.BigInt     `json:"activeStateLeaves,omitempty"`
	ActiveStateLeavesPathElements [][][]*types.BigInt `json:"activeStateLeavesPathElements,omitempty"`
}

func (*ProcessMessageInput) Circuit() CircuitKind { return CircuitProcessMessages }

func (in *ProcessMessageInput) PublicInputHash() *types.BigInt { return in.InputHash }

// ProcessDeactivateInput is the witness of a deactivation batch.
type ProcessDeactivateInput struct {
	InputHash                      *types.BigInt       `json:"inputHash"`
	CurrentActiveStateRoot         *types.BigInt       `json:"currentActiveStateRoot"`
	CurrentDeactivateRoot          *types.BigInt       `json:"currentDeactivateRoot"`
	BatchStartHash                 *types.BigInt       `json:"batchStartHash"`
	BatchEndHash                   *types.BigInt       `json:"batchEndHash"`
	Msgs                           [][]*types.BigInt   `json:"msgs"`
	CoordPrivKey                   *types.BigInt       `json:"coordPrivKey"`
	CoordPubKey                    []*types.BigInt     `json:"coordPubKey"`
	EncPubKeys                     [][]*types.BigInt   `json:"encPubKeys"`
	C1                             [][]*types.BigInt   `json:"c1"`
	C2                             [][]*types.BigInt   `json:"c2"`
	CurrentActiveState             []*types.BigInt     `json:"currentActiveState"`
	NewActiveState                 []*types.BigInt     `json:"newActiveState"`
	DeactivateIndex0               *types.BigInt       `json:"deactivateIndex0"`
	CurrentStateRoot               *types.BigInt       `json:"currentStateRoot"`
	CurrentStateLeaves             [][]*types.BigInt   `json:"currentStateLeaves"`
	CurrentStateLeavesPathElements [][][]*types.BigInt `json:"currentStateLeavesPathElements"`
	ActiveStateLeavesPathElements  [][][]*types.BigInt `json:"activeStateLeavesPathElements"`
	DeactivateLeavesPathElements   [][][]*types.BigInt `json:"deactivateLeavesPathElements"`
	CurrentDeactivateCommitment    *types.BigInt       `json:"currentDeactivateCommitment"`
	NewDeactivateRoot              *types.BigInt       `json:"newDeactivateRoot"`
	NewDeactivateCommitment        *types.BigInt       `json:"newDeactivateCommitment"`
}

func (*ProcessDeactivateInput) Circuit() CircuitKind { return CircuitDeactivate }

func (in *ProcessDeactivateInput) PublicInputHash() *types.BigInt { return in.InputHash }

// TallyInput is the witness of a tally batch.
type TallyInput struct {
	StateRoot              *types.BigInt     `json:"stateRoot"`
	StateSalt              *types.BigInt     `json:"stateSalt"`
	PackedVals             *types.BigInt     `json:"packedVals"`
	StateCommitment        *types.BigInt     `json:"stateCommitment"`
	CurrentTallyCommitment *types.BigInt     `json:"currentTallyCommitment"`
	NewTallyCommitment     *types.BigInt     `json:"newTallyCommitment"`
	InputHash              *types.BigInt     `json:"inputHash"`
	StateLeaf              [][]*types.BigInt `json:"stateLeaf"`
	StatePathElements      [][]*types.BigInt `json:"statePathElements"`
	Votes                  [][]*types.BigInt `json:"votes"`
	CurrentResults         []*types.BigInt   `json:"currentResults"`
	CurrentResultsRootSalt *types.BigInt     `json:"currentResultsRootSalt"`
	NewResultsRootSalt     *types.BigInt     `json:"newResultsRootSalt"`
}

func (*TallyInput) Circuit() CircuitKind { return CircuitTally }

func (in *TallyInput) PublicInputHash() *types.BigInt { return in.InputHash }

// AddKeyInput is the witness a voter builds to reactivate with a new key.
type AddKeyInput struct {
	InputHash                  *types.BigInt     `json:"inputHash"`
	CoordPubKey                []*types.BigInt   `json:"coordPubKey"`
	DeactivateRoot             *types.BigInt     `json:"deactivateRoot"`
	DeactivateIndex            int               `json:"deactivateIndex"`
	DeactivateLeaf             *types.BigInt     `json:"deactivateLeaf"`
	C1                         []*types.BigInt   `json:"c1"`
	C2                         []*types.BigInt   `json:"c2"`
	RandomVal                  *types.BigInt     `json:"randomVal"`
	D1                         []*types.BigInt   `json:"d1"`
	D2                         []*types.BigInt   `json:"d2"`
	DeactivateLeafPathElements [][]*types.BigInt `json:"deactivateLeafPathElements"`
	Nullifier                  *types.BigInt     `json:"nullifier"`
	OldPrivateKey              *types.BigInt     `json:"oldPrivateKey"`
}

func (*AddKeyInput) Circuit() CircuitKind { return CircuitAddKey }

func (in *AddKeyInput) PublicInputHash() *types.BigInt { return in.InputHash }
