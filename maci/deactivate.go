package maci

import (
	"fmt"
	"math/big"
	"slices"

	"github.com/vocdoni/maci-coordinator/crypto"
	"github.com/vocdoni/maci-coordinator/crypto/elgamal"
	"github.com/vocdoni/maci-coordinator/crypto/hash/poseidon"
	"github.com/vocdoni/maci-coordinator/crypto/keys"
	"github.com/vocdoni/maci-coordinator/log"
	"github.com/vocdoni/maci-coordinator/tree"
	"github.com/vocdoni/maci-coordinator/types"
)

// Domain salts of the keys derived from the coordinator private key.
var (
	DeactivateSeedSalt = big.NewInt(20040)
	StateSaltSalt      = big.NewInt(20041)
	TallySaltSalt      = big.NewInt(20042)
)

// DeactivateLeaf is a deactivation tree record:
// [c1.x, c1.y, c2.x, c2.y, H(sharedKey)]. Its tree leaf is its hash.
type DeactivateLeaf [5]*big.Int

// Hash returns the tree leaf of the record.
func (d DeactivateLeaf) Hash() (*big.Int, error) {
	return poseidon.Hash(d[:]...)
}

// Ciphertext returns [c1.x, c1.y, c2.x, c2.y].
func (d DeactivateLeaf) Ciphertext() [4]*big.Int {
	return [4]*big.Int{d[0], d[1], d[2], d[3]}
}

// deactivation holds the state of the deactivation extension: the active
// state tree (0 = active, otherwise the step the key was deactivated at),
// the deactivation tree and the deactivation message log.
type deactivation struct {
	activeStateTree *tree.Tree
	deactivateTree  *tree.Tree
	leaves          []DeactivateLeaf
	leafIdx         []int
	messages        []*Message
	commands        []CommandResult
	processed       int
}

func newDeactivation(cfg Config) (*deactivation, error) {
	active, err := tree.New(tree.DefaultArity, cfg.StateTreeDepth, big.NewInt(0))
	if err != nil {
		return nil, err
	}
	deact, err := tree.New(tree.DefaultArity, cfg.DeactivateTreeDepth(), big.NewInt(0))
	if err != nil {
		return nil, err
	}
	return &deactivation{activeStateTree: active, deactivateTree: deact}, nil
}

// commitment returns H(activeStateRoot, deactivateRoot).
func (d *deactivation) commitment() (*big.Int, error) {
	return poseidon.Hash(d.activeStateTree.Root(), d.deactivateTree.Root())
}

// DeactivateBatch is the outcome of a deactivation batch.
type DeactivateBatch struct {
	Input *ProcessDeactivateInput
	Start int
	End   int
	// NewLeaves are the deactivation records appended to the tree, in leaf
	// order starting at Start.
	NewLeaves []DeactivateLeaf
	Outcomes  []Reason
}

func (m *MACI) requireDeactivation() error {
	if m.deact == nil {
		return ErrDeactivationDisabled
	}
	return nil
}

// PublishDeactivateMessage appends a message to the deactivation log and
// decodes its command.
func (m *MACI) PublishDeactivateMessage(ciphertext [MessageLength]*big.Int, encPubKey [2]*big.Int) error {
	if err := m.requireDeactivation(); err != nil {
		return err
	}
	if m.phase != PhaseFilling {
		return phaseError("publish deactivate message", PhaseFilling, m.phase)
	}
	msg, err := newMessage(ciphertext, encPubKey, lastHash(m.deact.messages))
	if err != nil {
		return err
	}
	m.deact.messages = append(m.deact.messages, msg)
	m.deact.commands = append(m.deact.commands, DecodeCommand(msg, m.coord))
	m.appendLog(&LogEntry{
		Type:      LogPublishDeactivateMessage,
		Message:   wireSlice(ciphertext[:]),
		EncPubKey: wirePair(encPubKey),
	})
	log.Debugw("deactivate message published", "index", len(m.deact.messages)-1, "hash", msg.Hash.String())
	return nil
}

// RestoreDeactivations loads the records and active state produced by
// batches processed in an earlier run, so processing resumes after them.
// Records are placed at consecutive tree indices, one per processed
// message, which holds when no processed slot was left empty.
func (m *MACI) RestoreDeactivations(leaves []DeactivateLeaf, activeState []*big.Int) error {
	base := 0
	if m.deact != nil {
		base = m.deact.processed
	}
	indices := make([]int, len(leaves))
	for i := range indices {
		indices[i] = base + i
	}
	return m.RestoreDeactivationsAt(leaves, indices, base+len(leaves), activeState)
}

// RestoreDeactivationsAt is RestoreDeactivations with the tree index of each
// record and the number of deactivation messages the earlier run processed.
func (m *MACI) RestoreDeactivationsAt(leaves []DeactivateLeaf, indices []int, processed int, activeState []*big.Int) error {
	if err := m.requireDeactivation(); err != nil {
		return err
	}
	if m.phase != PhaseFilling {
		return phaseError("restore deactivations", PhaseFilling, m.phase)
	}
	d := m.deact
	if len(indices) != len(leaves) {
		return fmt.Errorf("%w: %d deactivation records with %d indices", ErrInvalidInput, len(leaves), len(indices))
	}
	if processed < d.processed || processed > len(d.messages) {
		return fmt.Errorf("%w: %d processed deactivations with %d published", ErrInvalidInput, processed, len(d.messages))
	}
	if err := d.setLeaves(leaves, indices, d.processed, processed); err != nil {
		return err
	}
	if err := d.activeStateTree.InitLeaves(activeState); err != nil {
		return err
	}
	d.processed = processed
	log.Infow("deactivations restored", "records", len(leaves), "processed", d.processed)
	return nil
}

// setLeaves writes records at increasing tree indices in [from, to). The
// records are checked before any of them is written.
func (d *deactivation) setLeaves(leaves []DeactivateLeaf, indices []int, from, to int) error {
	last := from - 1
	if n := len(d.leafIdx); n > 0 {
		last = max(last, d.leafIdx[n-1])
	}
	hashes := make([]*big.Int, len(leaves))
	for i, leaf := range leaves {
		for j, v := range leaf {
			if !isFieldElement(v) {
				return fmt.Errorf("%w: deactivation record %d element %d is not a field element", ErrInvalidInput, i, j)
			}
		}
		idx := indices[i]
		if idx <= last || idx >= to || idx >= d.deactivateTree.Capacity() {
			return fmt.Errorf("%w: deactivation record %d at index %d", ErrInvalidInput, i, idx)
		}
		last = idx
		h, err := leaf.Hash()
		if err != nil {
			return err
		}
		hashes[i] = h
	}
	for i, h := range hashes {
		if err := d.deactivateTree.UpdateLeaf(indices[i], h); err != nil {
			return err
		}
		d.leaves = append(d.leaves, leaves[i])
		d.leafIdx = append(d.leafIdx, indices[i])
	}
	return nil
}

// ProcessDeactivateBatch processes up to size pending deactivation messages
// in log order, validating them against the first subStateTreeLength state
// leaves. Each slot gets a parity ciphertext: odd for a rejected request,
// even for an accepted one. Accepted requests mark the key inactive;
// rejected but non-empty requests still append their record.
func (m *MACI) ProcessDeactivateBatch(size, subStateTreeLength int) (*DeactivateBatch, error) {
	if err := m.requireDeactivation(); err != nil {
		return nil, err
	}
	if m.phase != PhaseFilling {
		return nil, phaseError("process deactivate messages", PhaseFilling, m.phase)
	}
	bs := m.cfg.BatchSize
	if size > bs {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, size, bs)
	}
	if subStateTreeLength < 0 || subStateTreeLength > m.cfg.StateCapacity() {
		return nil, fmt.Errorf("%w: sub state tree length %d", ErrInvalidInput, subStateTreeLength)
	}
	d := m.deact
	start := d.processed
	end := start + min(size, len(d.messages)-start)
	if end <= start {
		return nil, ErrNoPendingDeactivations
	}
	if start+bs > d.deactivateTree.Capacity() {
		return nil, fmt.Errorf("%w: deactivation tree is full", tree.ErrIndexOutOfRange)
	}
	msgs, cmds := window(d.messages, d.commands, start, end, bs)
	subStateTree, err := m.stateTree.SubTree(subStateTreeLength)
	if err != nil {
		return nil, err
	}
	currentDeactivateCommitment, err := d.commitment()
	if err != nil {
		return nil, err
	}
	currentActiveStateRoot := d.activeStateTree.Root()
	currentDeactivateRoot := d.deactivateTree.Root()
	sentinel := m.cfg.StateCapacity() - 1

	// Validation only reads state leaves, which a batch never writes, so
	// every slot is validated and encrypted before any tree is touched.
	outcomes := make([]Reason, bs)
	stateIdxs := make([]int, bs)
	newActiveState := make([]*big.Int, bs)
	records := make([]DeactivateLeaf, bs)
	for i := range bs {
		reason, err := m.checkDeactivateCommand(cmds[i], subStateTreeLength)
		if err != nil {
			return nil, err
		}
		outcomes[i] = reason
		stateIdxs[i] = sentinel
		if reason == ReasonNone {
			stateIdxs[i] = int(cmds[i].Command.StateIdx.Int64())
		}
		newActiveState[i] = big.NewInt(int64(start + i + 1))
		s := m.stateLeaf(stateIdxs[i])
		seed := keys.StaticRandomKey(m.coord.PrivKey, DeactivateSeedSalt, newActiveState[i])
		ct, err := elgamal.EncryptOdevity(reason != ReasonNone, m.coord.PubKey, seed)
		if err != nil {
			return nil, fmt.Errorf("deactivation slot %d: %w", start+i, err)
		}
		sharedHash, err := poseidon.Hash(m.coord.SharedKey(s.PubKey).BigInts()...)
		if err != nil {
			return nil, err
		}
		c := ct.Coordinates()
		records[i] = DeactivateLeaf{c[0], c[1], c[2], c[3], sharedHash}
	}

	in := &ProcessDeactivateInput{
		C1:                             make([][]*types.BigInt, bs),
		C2:                             make([][]*types.BigInt, bs),
		CurrentActiveState:             make([]*types.BigInt, bs),
		NewActiveState:                 wireSlice(newActiveState),
		CurrentStateLeaves:             make([][]*types.BigInt, bs),
		CurrentStateLeavesPathElements: make([][][]*types.BigInt, bs),
		ActiveStateLeavesPathElements:  make([][][]*types.BigInt, bs),
		DeactivateLeavesPathElements:   make([][][]*types.BigInt, bs),
	}
	var newLeaves []DeactivateLeaf
	var newIdx []int
	for i := range bs {
		stateIdx := stateIdxs[i]
		s := m.stateLeaf(stateIdx)
		statePath, err := subStateTree.PathElementOf(stateIdx)
		if err != nil {
			return nil, err
		}
		activePath, err := d.activeStateTree.PathElementOf(stateIdx)
		if err != nil {
			return nil, err
		}
		deactPath, err := d.deactivateTree.PathElementOf(start + i)
		if err != nil {
			return nil, err
		}
		active, err := d.activeStateTree.Leaf(stateIdx)
		if err != nil {
			return nil, err
		}
		in.CurrentStateLeaves[i] = wireSlice(s.vector(true))
		in.CurrentStateLeavesPathElements[i] = types.BigIntMatrix(statePath)
		in.ActiveStateLeavesPathElements[i] = types.BigIntMatrix(activePath)
		in.DeactivateLeavesPathElements[i] = types.BigIntMatrix(deactPath)
		in.CurrentActiveState[i] = wire(active)
		in.C1[i] = wireSlice(records[i][0:2])
		in.C2[i] = wireSlice(records[i][2:4])

		valid := outcomes[i] == ReasonNone
		if !valid && msgs[i].isEmpty() {
			continue
		}
		if valid {
			if err := d.activeStateTree.UpdateLeaf(stateIdx, newActiveState[i]); err != nil {
				return nil, err
			}
		}
		h, err := records[i].Hash()
		if err != nil {
			return nil, err
		}
		if err := d.deactivateTree.UpdateLeaf(start+i, h); err != nil {
			return nil, err
		}
		newLeaves = append(newLeaves, records[i])
		newIdx = append(newIdx, start+i)
		log.Debugw("deactivate message processed", "slot", start+i, "reason", outcomes[i].String())
	}

	newDeactivateRoot := d.deactivateTree.Root()
	newDeactivateCommitment, err := d.commitment()
	if err != nil {
		return nil, err
	}
	batchStartHash, batchEndHash := chainEndpoints(d.messages, start, end)
	inputHash := crypto.InputHash(
		newDeactivateRoot,
		m.pubKeyHasher,
		batchStartHash,
		batchEndHash,
		currentDeactivateCommitment,
		newDeactivateCommitment,
		subStateTree.Root(),
	)

	in.InputHash = wire(inputHash)
	in.CurrentActiveStateRoot = wire(currentActiveStateRoot)
	in.CurrentDeactivateRoot = wire(currentDeactivateRoot)
	in.BatchStartHash = wire(batchStartHash)
	in.BatchEndHash = wire(batchEndHash)
	in.Msgs, in.EncPubKeys = wireMessages(msgs)
	in.CoordPrivKey = wire(m.coord.FormattedPrivKey)
	in.CoordPubKey = wirePoint(m.coord.PubKey)
	in.DeactivateIndex0 = types.NewInt(int64(start))
	in.CurrentStateRoot = wire(subStateTree.Root())
	in.CurrentDeactivateCommitment = wire(currentDeactivateCommitment)
	in.NewDeactivateRoot = wire(newDeactivateRoot)
	in.NewDeactivateCommitment = wire(newDeactivateCommitment)

	d.processed = end
	d.leaves = append(d.leaves, newLeaves...)
	d.leafIdx = append(d.leafIdx, newIdx...)
	m.appendLog(&LogEntry{
		Type:       LogProcessDeactivateMessage,
		BatchStart: intPtr(start),
		BatchEnd:   intPtr(end),
		Outcomes:   outcomes,
		Commitment: wire(newDeactivateCommitment),
		InputHash:  wire(inputHash),
	})
	log.Infow("deactivate batch processed",
		"start", start,
		"end", end,
		"deactivateRoot", newDeactivateRoot.String(),
		"inputHash", inputHash.String())
	return &DeactivateBatch{Input: in, Start: start, End: end, NewLeaves: newLeaves, Outcomes: outcomes}, nil
}

// checkDeactivateCommand validates a deactivation request. Nonce and
// balance play no role; the active state is not consulted either, so a key
// may be deactivated more than once.
func (m *MACI) checkDeactivateCommand(res CommandResult, subStateTreeLength int) (Reason, error) {
	if !res.Valid() {
		if res.Reason == ReasonNone {
			return ReasonEmpty, nil
		}
		return res.Reason, nil
	}
	cmd := res.Command
	if cmd.StateIdx.Cmp(big.NewInt(int64(subStateTreeLength))) >= 0 {
		return ReasonStateIndexOverflow, nil
	}
	s := m.stateLeaf(int(cmd.StateIdx.Int64()))
	deactivated, err := m.isDeactivated(s)
	if err != nil {
		return ReasonNone, err
	}
	if deactivated {
		return ReasonDeactivated, nil
	}
	if !keys.Verify(s.PubKey, cmd.MsgHash, cmd.Signature) {
		return ReasonInvalidSignature, nil
	}
	return ReasonNone, nil
}

// NumDeactivateMessages returns the length of the deactivation log.
func (m *MACI) NumDeactivateMessages() int {
	if m.deact == nil {
		return 0
	}
	return len(m.deact.messages)
}

// ProcessedDeactivateMessages returns how many deactivation messages were
// processed, restored records included.
func (m *MACI) ProcessedDeactivateMessages() int {
	if m.deact == nil {
		return 0
	}
	return m.deact.processed
}

// DeactivateLeaves returns every deactivation record, restored and
// processed, in leaf order.
func (m *MACI) DeactivateLeaves() []DeactivateLeaf {
	if m.deact == nil {
		return nil
	}
	out := make([]DeactivateLeaf, len(m.deact.leaves))
	for i, leaf := range m.deact.leaves {
		for j, v := range leaf {
			out[i][j] = new(big.Int).Set(v)
		}
	}
	return out
}

// DeactivateLeafIndices returns the deactivation tree index of each record
// returned by DeactivateLeaves. Rejected slots holding an empty message
// write no record, so indices may skip.
func (m *MACI) DeactivateLeafIndices() []int {
	if m.deact == nil {
		return nil
	}
	return slices.Clone(m.deact.leafIdx)
}

// ActiveStateLeaves returns the active state leaves up to the last written
// one, zeros included.
func (m *MACI) ActiveStateLeaves() []*big.Int {
	if m.deact == nil {
		return nil
	}
	written := m.deact.activeStateTree.SparseLeaves()
	n := 0
	for idx := range written {
		n = max(n, idx+1)
	}
	out := make([]*big.Int, n)
	for i := range out {
		if v, ok := written[i]; ok {
			out[i] = v
		} else {
			out[i] = big.NewInt(0)
		}
	}
	return out
}

// DeactivateRoot returns the deactivation tree root, nil without the
// extension.
func (m *MACI) DeactivateRoot() *big.Int {
	if m.deact == nil {
		return nil
	}
	return m.deact.deactivateTree.Root()
}

// DeactivateCommitment returns H(activeStateRoot, deactivateRoot), nil
// without the extension.
func (m *MACI) DeactivateCommitment() *big.Int {
	if m.deact == nil {
		return nil
	}
	c, err := m.deact.commitment()
	if err != nil {
		return nil
	}
	return c
}
