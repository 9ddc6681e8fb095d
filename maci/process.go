package maci

import (
	"fmt"
	"math/big"

	"github.com/vocdoni/maci-coordinator/crypto"
	bjj "github.com/vocdoni/maci-coordinator/crypto/ecc/bjj_iden3"
	"github.com/vocdoni/maci-coordinator/crypto/elgamal"
	"github.com/vocdoni/maci-coordinator/crypto/hash/poseidon"
	"github.com/vocdoni/maci-coordinator/crypto/keys"
	"github.com/vocdoni/maci-coordinator/log"
	"github.com/vocdoni/maci-coordinator/types"
)

// MessageBatch is the outcome of a message processing batch.
type MessageBatch struct {
	Input *ProcessMessageInput
	// Start and End delimit the processed window [Start, End) of the
	// message log.
	Start int
	End   int
	// Outcomes holds the validation result of every slot, padding included.
	Outcomes []Reason
}

// ProcessMessageBatch processes the newest unprocessed window of the
// message log, slots in reverse order. Invalid commands never abort the
// batch: their slot is applied as a no-op against the last state leaf. Once
// the window reaches the start of the log the round moves to tallying.
func (m *MACI) ProcessMessageBatch(newStateSalt *big.Int) (*MessageBatch, error) {
	if m.phase != PhaseProcessing {
		return nil, phaseError("process messages", PhaseProcessing, m.phase)
	}
	newStateSalt = orZero(newStateSalt)
	bs := m.cfg.BatchSize
	start := 0
	if m.msgEndIdx > 0 {
		start = (m.msgEndIdx - 1) / bs * bs
	}
	end := min(start+bs, m.msgEndIdx)
	msgs, cmds := window(m.messages, m.commands, start, end, bs)
	withDeact := m.deact != nil

	in := &ProcessMessageInput{
		CurrentStateRoot:               wire(m.stateTree.Root()),
		CurrentStateLeaves:             make([][]*types.BigInt, bs),
		CurrentStateLeavesPathElements: make([][][]*types.BigInt, bs),
		CurrentVoteWeights:             make([]*types.BigInt, bs),
		CurrentVoteWeightsPathElements: make([][][]*types.BigInt, bs),
	}
	if withDeact {
		in.ActiveStateLeaves = make([]*types.BigInt, bs)
		in.ActiveStateLeavesPathElements = make([][][]*types.BigInt, bs)
	}
	outcomes := make([]Reason, bs)
	sentinel := m.cfg.StateCapacity() - 1

	for i := bs - 1; i >= 0; i-- {
		reason, err := m.checkCommand(cmds[i])
		if err != nil {
			return nil, err
		}
		outcomes[i] = reason
		stateIdx, voIdx := sentinel, 0
		if reason == ReasonNone {
			stateIdx = int(cmds[i].Command.StateIdx.Int64())
			voIdx = int(cmds[i].Command.VoIdx.Int64())
		}

		s := m.stateLeaf(stateIdx)
		currVotes, err := s.VoTree.Leaf(voIdx)
		if err != nil {
			return nil, err
		}
		statePath, err := m.stateTree.PathElementOf(stateIdx)
		if err != nil {
			return nil, err
		}
		voPath, err := s.VoTree.PathElementOf(voIdx)
		if err != nil {
			return nil, err
		}
		in.CurrentStateLeaves[i] = wireSlice(s.vector(withDeact))
		in.CurrentStateLeavesPathElements[i] = types.BigIntMatrix(statePath)
		in.CurrentVoteWeights[i] = wire(currVotes)
		in.CurrentVoteWeightsPathElements[i] = types.BigIntMatrix(voPath)
		if withDeact {
			active, err := m.deact.activeStateTree.Leaf(stateIdx)
			if err != nil {
				return nil, err
			}
			activePath, err := m.deact.activeStateTree.PathElementOf(stateIdx)
			if err != nil {
				return nil, err
			}
			in.ActiveStateLeaves[i] = wire(active)
			in.ActiveStateLeavesPathElements[i] = types.BigIntMatrix(activePath)
		}

		if reason != ReasonNone {
			log.Debugw("message rejected", "slot", start+i, "reason", reason.String())
			continue
		}
		cmd := cmds[i].Command
		next := s.clone()
		next.PubKey = bjj.FromXY(cmd.NewPubKey.Point())
		next.Balance = m.balanceAfter(s.Balance, currVotes, cmd.NewVotes)
		if err := next.VoTree.UpdateLeaf(voIdx, cmd.NewVotes); err != nil {
			return nil, err
		}
		next.Nonce = new(big.Int).Set(cmd.Nonce)
		next.Voted = true
		if err := m.setStateLeaf(stateIdx, next); err != nil {
			return nil, err
		}
		log.Debugw("message applied", "slot", start+i, "stateIndex", stateIdx, "voteOption", voIdx)
	}

	newStateCommitment, err := poseidon.Hash(m.stateTree.Root(), newStateSalt)
	if err != nil {
		return nil, err
	}
	packedVals := big.NewInt(int64(m.cfg.MaxVoteOptions))
	packedVals.Add(packedVals, new(big.Int).Lsh(big.NewInt(int64(m.cfg.NumSignUps)), 32))
	if m.cfg.QuadraticCost {
		packedVals.Add(packedVals, new(big.Int).Lsh(big.NewInt(1), 64))
	}
	batchStartHash, batchEndHash := chainEndpoints(m.messages, start, end)
	public := []*big.Int{
		packedVals,
		m.pubKeyHasher,
		batchStartHash,
		batchEndHash,
		m.stateCommitment,
		newStateCommitment,
	}
	if withDeact {
		deactCommitment, err := m.deact.commitment()
		if err != nil {
			return nil, err
		}
		in.ActiveStateRoot = wire(m.deact.activeStateTree.Root())
		in.DeactivateRoot = wire(m.deact.deactivateTree.Root())
		in.DeactivateCommitment = wire(deactCommitment)
		public = append(public, deactCommitment)
	}
	inputHash := crypto.InputHash(public...)

	in.InputHash = wire(inputHash)
	in.PackedVals = wire(packedVals)
	in.BatchStartHash = wire(batchStartHash)
	in.BatchEndHash = wire(batchEndHash)
	in.Msgs, in.EncPubKeys = wireMessages(msgs)
	in.CoordPrivKey = wire(m.coord.FormattedPrivKey)
	in.CoordPubKey = wirePoint(m.coord.PubKey)
	in.CurrentStateCommitment = wire(m.stateCommitment)
	in.CurrentStateSalt = wire(m.stateSalt)
	in.NewStateCommitment = wire(newStateCommitment)
	in.NewStateSalt = wire(newStateSalt)

	m.msgEndIdx = start
	m.stateCommitment = newStateCommitment
	m.stateSalt = new(big.Int).Set(newStateSalt)
	m.appendLog(&LogEntry{
		Type:       LogProcessMessage,
		BatchStart: intPtr(start),
		BatchEnd:   intPtr(end),
		Outcomes:   outcomes,
		Commitment: wire(newStateCommitment),
		InputHash:  wire(inputHash),
	})
	log.Infow("message batch processed",
		"start", start,
		"end", end,
		"stateRoot", m.stateTree.Root().String(),
		"inputHash", inputHash.String())

	if start == 0 {
		if err := m.endProcessingPeriod(); err != nil {
			return nil, err
		}
	}
	return &MessageBatch{Input: in, Start: start, End: end, Outcomes: outcomes}, nil
}

// checkCommand validates a vote command against the current state. The
// checks run in a fixed order and the first failing one is reported.
func (m *MACI) checkCommand(res CommandResult) (Reason, error) {
	if !res.Valid() {
		if res.Reason == ReasonNone {
			return ReasonEmpty, nil
		}
		return res.Reason, nil
	}
	cmd := res.Command
	if cmd.StateIdx.Cmp(big.NewInt(int64(m.cfg.NumSignUps))) > 0 ||
		cmd.StateIdx.Cmp(big.NewInt(int64(m.cfg.StateCapacity()))) >= 0 {
		return ReasonStateIndexOverflow, nil
	}
	if cmd.VoIdx.Cmp(big.NewInt(int64(m.cfg.MaxVoteOptions))) > 0 ||
		cmd.VoIdx.Cmp(big.NewInt(int64(m.cfg.VoteOptionCapacity()))) >= 0 {
		return ReasonVoteOptionOverflow, nil
	}
	stateIdx := int(cmd.StateIdx.Int64())
	voIdx := int(cmd.VoIdx.Int64())
	s := m.stateLeaf(stateIdx)

	if m.deact != nil {
		active, err := m.deact.activeStateTree.Leaf(stateIdx)
		if err != nil {
			return ReasonNone, err
		}
		if active.Sign() != 0 {
			return ReasonInactive, nil
		}
		deactivated, err := m.isDeactivated(s)
		if err != nil {
			return ReasonNone, err
		}
		if deactivated {
			return ReasonDeactivated, nil
		}
	}

	if new(big.Int).Add(s.Nonce, big.NewInt(1)).Cmp(cmd.Nonce) != 0 {
		return ReasonInvalidNonce, nil
	}
	if !keys.Verify(s.PubKey, cmd.MsgHash, cmd.Signature) {
		return ReasonInvalidSignature, nil
	}
	currVotes, err := s.VoTree.Leaf(voIdx)
	if err != nil {
		return ReasonNone, err
	}
	if m.balanceAfter(s.Balance, currVotes, cmd.NewVotes).Sign() < 0 {
		return ReasonInsufficientBalance, nil
	}
	return ReasonNone, nil
}

// balanceAfter returns the balance once the weight on an option moves from
// currVotes to newVotes; it may be negative.
func (m *MACI) balanceAfter(balance, currVotes, newVotes *big.Int) *big.Int {
	out := new(big.Int).Set(balance)
	if m.cfg.QuadraticCost {
		out.Add(out, new(big.Int).Mul(currVotes, currVotes))
		return out.Sub(out, new(big.Int).Mul(newVotes, newVotes))
	}
	out.Add(out, currVotes)
	return out.Sub(out, newVotes)
}

// isDeactivated decrypts the leaf deactivation ciphertext; an odd plaintext
// marks a deactivated key.
func (m *MACI) isDeactivated(s *StateLeaf) (bool, error) {
	odd, err := elgamal.IsOdd(m.coord.FormattedPrivKey, &elgamal.Ciphertext{C1: s.D1, C2: s.D2})
	if err != nil {
		return false, fmt.Errorf("decrypt deactivation ciphertext: %w", err)
	}
	return odd, nil
}

func wireMessages(msgs []*Message) ([][]*types.BigInt, [][]*types.BigInt) {
	cts := make([][]*types.BigInt, len(msgs))
	encs := make([][]*types.BigInt, len(msgs))
	for i, msg := range msgs {
		cts[i] = wireSlice(msg.Ciphertext[:])
		encs[i] = wirePair(msg.EncPubKey)
	}
	return cts, encs
}
