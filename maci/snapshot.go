package maci

import (
	"fmt"
	"maps"
	"math/big"
	"slices"

	"github.com/fxamacker/cbor/v2"

	"github.com/vocdoni/maci-coordinator/tree"
	"github.com/vocdoni/maci-coordinator/types"
)

const snapshotVersion = 1

var snapshotEncMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

type sparseEntry struct {
	Idx   int           `cbor:"1,keyasint"`
	Value *types.BigInt `cbor:"2,keyasint"`
}

type snapshotLeaf struct {
	Idx     int             `cbor:"1,keyasint"`
	PubKey  []*types.BigInt `cbor:"2,keyasint"`
	Balance *types.BigInt   `cbor:"3,keyasint"`
	Votes   []sparseEntry   `cbor:"4,keyasint,omitempty"`
	Nonce   *types.BigInt   `cbor:"5,keyasint"`
	Voted   bool            `cbor:"6,keyasint"`
	D1      []*types.BigInt `cbor:"7,keyasint"`
	D2      []*types.BigInt `cbor:"8,keyasint"`
}

type snapshotMessage struct {
	Ciphertext []*types.BigInt `cbor:"1,keyasint"`
	EncPubKey  []*types.BigInt `cbor:"2,keyasint"`
}

type snapshotDeactivation struct {
	Messages    []snapshotMessage `cbor:"1,keyasint,omitempty"`
	Leaves      [][]*types.BigInt `cbor:"2,keyasint,omitempty"`
	ActiveState []sparseEntry     `cbor:"3,keyasint,omitempty"`
	Processed   int               `cbor:"4,keyasint"`
	LeafIdx     []int             `cbor:"5,keyasint,omitempty"`
}

type snapshot struct {
	Version         int                   `cbor:"1,keyasint"`
	Config          Config                `cbor:"2,keyasint"`
	PubKeyHasher    *types.BigInt         `cbor:"3,keyasint"`
	Phase           Phase                 `cbor:"4,keyasint"`
	StateLeaves     []snapshotLeaf        `cbor:"5,keyasint,omitempty"`
	Messages        []snapshotMessage     `cbor:"6,keyasint,omitempty"`
	MsgEndIdx       int                   `cbor:"7,keyasint"`
	StateSalt       *types.BigInt         `cbor:"8,keyasint,omitempty"`
	StateCommitment *types.BigInt         `cbor:"9,keyasint,omitempty"`
	BatchNum        int                   `cbor:"10,keyasint"`
	TallySalt       *types.BigInt         `cbor:"11,keyasint,omitempty"`
	TallyCommitment *types.BigInt         `cbor:"12,keyasint,omitempty"`
	TallyResults    []sparseEntry         `cbor:"13,keyasint,omitempty"`
	Deactivation    *snapshotDeactivation `cbor:"14,keyasint,omitempty"`
	Logs            []*LogEntry           `cbor:"15,keyasint,omitempty"`
}

// Snapshot serializes the round to deterministic CBOR. The coordinator
// private key is not part of it; Restore takes it separately.
func (m *MACI) Snapshot() ([]byte, error) {
	s := &snapshot{
		Version:         snapshotVersion,
		Config:          m.cfg,
		PubKeyHasher:    wire(m.pubKeyHasher),
		Phase:           m.phase,
		Messages:        snapshotMessages(m.messages),
		MsgEndIdx:       m.msgEndIdx,
		StateSalt:       wire(m.stateSalt),
		StateCommitment: wire(m.stateCommitment),
		BatchNum:        m.batchNum,
		TallySalt:       wire(m.tallySalt),
		TallyCommitment: wire(m.tallyCommitment),
		Logs:            m.logs,
	}
	for _, idx := range slices.Sorted(maps.Keys(m.stateLeaves)) {
		leaf := m.stateLeaves[idx]
		s.StateLeaves = append(s.StateLeaves, snapshotLeaf{
			Idx:     idx,
			PubKey:  wirePoint(leaf.PubKey),
			Balance: wire(leaf.Balance),
			Votes:   sparseEntries(leaf.VoTree),
			Nonce:   wire(leaf.Nonce),
			Voted:   leaf.Voted,
			D1:      wirePoint(leaf.D1),
			D2:      wirePoint(leaf.D2),
		})
	}
	if m.tallyResults != nil {
		s.TallyResults = sparseEntries(m.tallyResults)
	}
	if d := m.deact; d != nil {
		sd := &snapshotDeactivation{
			Messages:    snapshotMessages(d.messages),
			ActiveState: sparseEntries(d.activeStateTree),
			Processed:   d.processed,
			LeafIdx:     slices.Clone(d.leafIdx),
		}
		for _, leaf := range d.leaves {
			sd.Leaves = append(sd.Leaves, wireSlice(leaf[:]))
		}
		s.Deactivation = sd
	}
	data, err := snapshotEncMode.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// Restore rebuilds a round from a snapshot. coordPrivKey must be the key the
// round was created with.
func Restore(data []byte, coordPrivKey *big.Int) (*MACI, error) {
	var s snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if s.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", s.Version)
	}
	m, err := New(s.Config, coordPrivKey)
	if err != nil {
		return nil, err
	}
	if s.PubKeyHasher == nil || m.pubKeyHasher.Cmp(s.PubKeyHasher.MathBigInt()) != 0 {
		return nil, fmt.Errorf("%w: coordinator key does not match snapshot", ErrInvalidInput)
	}

	for _, sl := range s.StateLeaves {
		leaf := m.emptyState()
		leaf.PubKey = pointFrom(pairOf(sl.PubKey))
		leaf.Balance = unwire(sl.Balance)
		leaf.Nonce = unwire(sl.Nonce)
		leaf.Voted = sl.Voted
		leaf.D1 = pointFrom(pairOf(sl.D1))
		leaf.D2 = pointFrom(pairOf(sl.D2))
		if err := leaf.VoTree.SetLeaves(sparseSeq(sl.Votes)); err != nil {
			return nil, err
		}
		if err := m.setStateLeaf(sl.Idx, leaf); err != nil {
			return nil, err
		}
	}
	if m.messages, m.commands, err = m.restoreMessages(s.Messages); err != nil {
		return nil, err
	}
	if d := s.Deactivation; d != nil {
		if m.deact == nil {
			return nil, fmt.Errorf("%w: deactivation data on a round without deactivation", ErrInvalidInput)
		}
		if m.deact.messages, m.deact.commands, err = m.restoreMessages(d.Messages); err != nil {
			return nil, err
		}
		if len(d.LeafIdx) != len(d.Leaves) {
			return nil, fmt.Errorf("%w: %d deactivation records with %d indices", ErrInvalidInput, len(d.Leaves), len(d.LeafIdx))
		}
		leaves := make([]DeactivateLeaf, len(d.Leaves))
		for i, l := range d.Leaves {
			if len(l) != len(DeactivateLeaf{}) {
				return nil, fmt.Errorf("%w: deactivation record %d has %d elements", ErrInvalidInput, i, len(l))
			}
			copy(leaves[i][:], types.MathBigInts(l))
		}
		if err := m.deact.setLeaves(leaves, d.LeafIdx, 0, d.Processed); err != nil {
			return nil, err
		}
		if err := m.deact.activeStateTree.SetLeaves(sparseSeq(d.ActiveState)); err != nil {
			return nil, err
		}
		m.deact.processed = d.Processed
	}

	m.phase = s.Phase
	m.msgEndIdx = s.MsgEndIdx
	m.stateSalt = unwire(s.StateSalt)
	m.stateCommitment = unwire(s.StateCommitment)
	m.batchNum = s.BatchNum
	m.tallySalt = unwire(s.TallySalt)
	m.tallyCommitment = unwire(s.TallyCommitment)
	if m.phase >= PhaseTallying {
		if m.tallyResults, err = tree.New(tree.DefaultArity, s.Config.VoteOptionTreeDepth, big.NewInt(0)); err != nil {
			return nil, err
		}
		if err := m.tallyResults.SetLeaves(sparseSeq(s.TallyResults)); err != nil {
			return nil, err
		}
	}
	m.logs = s.Logs
	return m, nil
}

func (m *MACI) restoreMessages(in []snapshotMessage) ([]*Message, []CommandResult, error) {
	msgs := make([]*Message, 0, len(in))
	cmds := make([]CommandResult, 0, len(in))
	for i, sm := range in {
		if len(sm.Ciphertext) != MessageLength {
			return nil, nil, fmt.Errorf("%w: message %d has %d elements", ErrInvalidInput, i, len(sm.Ciphertext))
		}
		var ct [MessageLength]*big.Int
		copy(ct[:], types.MathBigInts(sm.Ciphertext))
		msg, err := newMessage(ct, pairOf(sm.EncPubKey), lastHash(msgs))
		if err != nil {
			return nil, nil, err
		}
		msgs = append(msgs, msg)
		cmds = append(cmds, DecodeCommand(msg, m.coord))
	}
	return msgs, cmds, nil
}

func snapshotMessages(msgs []*Message) []snapshotMessage {
	out := make([]snapshotMessage, len(msgs))
	for i, msg := range msgs {
		out[i] = snapshotMessage{
			Ciphertext: wireSlice(msg.Ciphertext[:]),
			EncPubKey:  wirePair(msg.EncPubKey),
		}
	}
	return out
}

func sparseEntries(t *tree.Tree) []sparseEntry {
	leaves := t.SparseLeaves()
	out := make([]sparseEntry, 0, len(leaves))
	for _, idx := range slices.Sorted(maps.Keys(leaves)) {
		out = append(out, sparseEntry{Idx: idx, Value: wire(leaves[idx])})
	}
	return out
}

func sparseSeq(entries []sparseEntry) func(yield func(int, *big.Int) bool) {
	return func(yield func(int, *big.Int) bool) {
		for _, e := range entries {
			if !yield(e.Idx, orZero(unwire(e.Value))) {
				return
			}
		}
	}
}

func pairOf(xs []*types.BigInt) [2]*big.Int {
	var out [2]*big.Int
	for i := range min(len(xs), 2) {
		out[i] = unwire(xs[i])
	}
	return out
}

func unwire(x *types.BigInt) *big.Int {
	if x == nil {
		return nil
	}
	return new(big.Int).Set(x.MathBigInt())
}
