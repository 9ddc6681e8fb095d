// Package maci implements the coordinator state machine of a MACI voting
// round: sign-up and message publication, batched message processing in
// reverse order, batched tallying and, when enabled, the deactivation
// extension. Every batch produces the exact witness the corresponding
// circuit expects plus its public input hash.
//
// A MACI value is owned by a single goroutine; none of its methods are safe
// for concurrent use.
package maci

import (
	"fmt"
	"math/big"

	"github.com/vocdoni/maci-coordinator/crypto/hash/poseidon"
	"github.com/vocdoni/maci-coordinator/crypto/keys"
	"github.com/vocdoni/maci-coordinator/log"
	"github.com/vocdoni/maci-coordinator/tree"
)

// Phase is the lifecycle stage of a round.
type Phase int

const (
	// PhaseFilling accepts sign-ups and messages.
	PhaseFilling Phase = iota
	// PhaseProcessing processes message batches, newest first.
	PhaseProcessing
	// PhaseTallying accumulates the vote tally batch by batch.
	PhaseTallying
	// PhaseEnded is terminal.
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseFilling:
		return "filling"
	case PhaseProcessing:
		return "processing"
	case PhaseTallying:
		return "tallying"
	case PhaseEnded:
		return "ended"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// MaxVotes separates the linear and quadratic terms packed into each tally
// result: every vote weight v contributes v*(v + MaxVotes).
var MaxVotes = new(big.Int).Exp(big.NewInt(10), big.NewInt(24), nil)

// Config holds the parameters of a round. They must match the circuits the
// witnesses are fed to.
type Config struct {
	StateTreeDepth      int  `json:"stateTreeDepth" cbor:"1,keyasint"`
	IntStateTreeDepth   int  `json:"intStateTreeDepth" cbor:"2,keyasint"`
	VoteOptionTreeDepth int  `json:"voteOptionTreeDepth" cbor:"3,keyasint"`
	BatchSize           int  `json:"batchSize" cbor:"4,keyasint"`
	MaxVoteOptions      int  `json:"maxVoteOptions" cbor:"5,keyasint"`
	NumSignUps          int  `json:"numSignUps" cbor:"6,keyasint"`
	QuadraticCost       bool `json:"quadraticCost" cbor:"7,keyasint"`
	Deactivation        bool `json:"deactivation" cbor:"8,keyasint"`
}

// StateCapacity returns 5^StateTreeDepth.
func (c Config) StateCapacity() int { return pow(tree.DefaultArity, c.StateTreeDepth) }

// VoteOptionCapacity returns 5^VoteOptionTreeDepth.
func (c Config) VoteOptionCapacity() int { return pow(tree.DefaultArity, c.VoteOptionTreeDepth) }

// TallyBatchSize returns 5^IntStateTreeDepth.
func (c Config) TallyBatchSize() int { return pow(tree.DefaultArity, c.IntStateTreeDepth) }

// DeactivateTreeDepth is two levels deeper than the state tree.
func (c Config) DeactivateTreeDepth() int { return c.StateTreeDepth + 2 }

// Validate checks the parameters for internal consistency.
func (c Config) Validate() error {
	switch {
	case c.StateTreeDepth < 1 || c.StateTreeDepth > 12:
		return fmt.Errorf("%w: state tree depth %d", ErrInvalidConfig, c.StateTreeDepth)
	case c.IntStateTreeDepth < 1 || c.IntStateTreeDepth > c.StateTreeDepth:
		return fmt.Errorf("%w: intermediate state tree depth %d", ErrInvalidConfig, c.IntStateTreeDepth)
	case c.VoteOptionTreeDepth < 1 || c.VoteOptionTreeDepth > 6:
		return fmt.Errorf("%w: vote option tree depth %d", ErrInvalidConfig, c.VoteOptionTreeDepth)
	case c.BatchSize < 1:
		return fmt.Errorf("%w: batch size %d", ErrInvalidConfig, c.BatchSize)
	case c.MaxVoteOptions < 1 || c.MaxVoteOptions > c.VoteOptionCapacity():
		return fmt.Errorf("%w: max vote options %d", ErrInvalidConfig, c.MaxVoteOptions)
	case c.NumSignUps < 0 || c.NumSignUps > c.StateCapacity():
		return fmt.Errorf("%w: num sign-ups %d", ErrInvalidConfig, c.NumSignUps)
	}
	return nil
}

// MACI is the state of one voting round.
type MACI struct {
	cfg          Config
	coord        *keys.Keypair
	pubKeyHasher *big.Int
	phase        Phase

	emptyVoTree *tree.Tree
	stateTree   *tree.Tree
	stateLeaves map[int]*StateLeaf
	messages    []*Message
	commands    []CommandResult

	msgEndIdx       int
	stateSalt       *big.Int
	stateCommitment *big.Int

	batchNum        int
	tallySalt       *big.Int
	tallyCommitment *big.Int
	tallyResults    *tree.Tree

	deact *deactivation
	logs  []*LogEntry
}

// New creates a round in the filling phase.
func New(cfg Config, coordPrivKey *big.Int) (*MACI, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	coord, err := keys.NewKeypair(coordPrivKey)
	if err != nil {
		return nil, fmt.Errorf("coordinator key: %w", err)
	}
	m := &MACI{
		cfg:          cfg,
		coord:        coord,
		pubKeyHasher: coord.PubKeyHash(),
		phase:        PhaseFilling,
		stateLeaves:  make(map[int]*StateLeaf),
	}
	if m.emptyVoTree, err = tree.New(tree.DefaultArity, cfg.VoteOptionTreeDepth, big.NewInt(0)); err != nil {
		return nil, err
	}
	if m.stateTree, err = tree.New(tree.DefaultArity, cfg.StateTreeDepth, m.emptyLeafHash()); err != nil {
		return nil, err
	}
	if cfg.Deactivation {
		if m.deact, err = newDeactivation(cfg); err != nil {
			return nil, err
		}
	}
	log.Debugw("round initialized",
		"stateTreeDepth", cfg.StateTreeDepth,
		"voteOptionTreeDepth", cfg.VoteOptionTreeDepth,
		"batchSize", cfg.BatchSize,
		"deactivation", cfg.Deactivation,
		"stateRoot", m.stateTree.Root().String())
	return m, nil
}

// Config returns the round parameters.
func (m *MACI) Config() Config { return m.cfg }

// Phase returns the current phase.
func (m *MACI) Phase() Phase { return m.phase }

// Coordinator returns the coordinator keypair.
func (m *MACI) Coordinator() *keys.Keypair { return m.coord }

// PubKeyHasher returns H(coordPubKey.x, coordPubKey.y).
func (m *MACI) PubKeyHasher() *big.Int { return m.pubKeyHasher }

// StateRoot returns the current state tree root.
func (m *MACI) StateRoot() *big.Int { return m.stateTree.Root() }

// StateCommitment returns the current state commitment, nil before the vote
// period ends.
func (m *MACI) StateCommitment() *big.Int { return m.stateCommitment }

// TallyCommitment returns the current tally commitment, nil before tallying.
func (m *MACI) TallyCommitment() *big.Int { return m.tallyCommitment }

// NumMessages returns the length of the vote message log.
func (m *MACI) NumMessages() int { return len(m.messages) }

// Messages returns a copy of the vote message log.
func (m *MACI) Messages() []*Message {
	out := make([]*Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// MessageBatches returns the number of message batches left to process.
func (m *MACI) MessageBatches() int {
	if m.phase != PhaseProcessing {
		return 0
	}
	return max(1, (m.msgEndIdx+m.cfg.BatchSize-1)/m.cfg.BatchSize)
}

// StateLeaf returns a copy of the voter state at idx. Unknown indices yield
// the empty leaf.
func (m *MACI) StateLeaf(idx int) *StateLeaf {
	return m.stateLeaf(idx).clone()
}

// Command returns the decoded command of vote message idx.
func (m *MACI) Command(idx int) (CommandResult, error) {
	if idx < 0 || idx >= len(m.commands) {
		return CommandResult{}, fmt.Errorf("%w: message %d not found", ErrInvalidInput, idx)
	}
	return m.commands[idx], nil
}

// SignUp writes the state leaf of a voter. ciphertext holds the optional
// deactivation ciphertext [c1.x, c1.y, c2.x, c2.y]; nil means no
// ciphertext (all zeros).
func (m *MACI) SignUp(idx int, pubKey [2]*big.Int, balance *big.Int, ciphertext *[4]*big.Int) error {
	if m.phase != PhaseFilling {
		return phaseError("sign up", PhaseFilling, m.phase)
	}
	if idx < 0 || idx >= m.cfg.StateCapacity() {
		return fmt.Errorf("%w: state index %d out of range", tree.ErrIndexOutOfRange, idx)
	}
	var c [4]*big.Int
	if ciphertext != nil {
		c = *ciphertext
	}
	values := []*big.Int{pubKey[0], pubKey[1], balance}
	for i, v := range values {
		if !isFieldElement(v) {
			return fmt.Errorf("%w: sign up %d element %d is not a field element", ErrInvalidInput, idx, i)
		}
	}
	for i, v := range c {
		if v != nil && !isFieldElement(v) {
			return fmt.Errorf("%w: sign up %d ciphertext element %d is not a field element", ErrInvalidInput, idx, i)
		}
	}
	s := m.stateLeaf(idx).clone()
	s.PubKey = pointFrom(pubKey)
	s.Balance = new(big.Int).Set(balance)
	s.D1 = pointFrom([2]*big.Int{orZero(c[0]), orZero(c[1])})
	s.D2 = pointFrom([2]*big.Int{orZero(c[2]), orZero(c[3])})
	if err := m.setStateLeaf(idx, s); err != nil {
		return err
	}
	m.appendLog(&LogEntry{
		Type:    LogSetStateLeaf,
		LeafIdx: &idx,
		PubKey:  wirePair(pubKey),
		Balance: wire(balance),
	})
	log.Debugw("state leaf set", "index", idx, "stateRoot", m.stateTree.Root().String())
	return nil
}

// PublishMessage appends a vote message to the log and decodes its command.
func (m *MACI) PublishMessage(ciphertext [MessageLength]*big.Int, encPubKey [2]*big.Int) error {
	if m.phase != PhaseFilling {
		return phaseError("publish message", PhaseFilling, m.phase)
	}
	msg, err := newMessage(ciphertext, encPubKey, lastHash(m.messages))
	if err != nil {
		return err
	}
	m.messages = append(m.messages, msg)
	m.commands = append(m.commands, DecodeCommand(msg, m.coord))
	m.appendLog(&LogEntry{
		Type:      LogPublishMessage,
		Message:   wireSlice(ciphertext[:]),
		EncPubKey: wirePair(encPubKey),
	})
	log.Debugw("message published", "index", len(m.messages)-1, "hash", msg.Hash.String())
	return nil
}

// EndVotePeriod freezes the message log and commits to the state root with
// a zero salt.
func (m *MACI) EndVotePeriod() error {
	if m.phase != PhaseFilling {
		return phaseError("end vote period", PhaseFilling, m.phase)
	}
	m.phase = PhaseProcessing
	m.msgEndIdx = len(m.messages)
	m.stateSalt = big.NewInt(0)
	m.stateCommitment = poseidon.MustHash(m.stateTree.Root(), m.stateSalt)
	m.appendLog(&LogEntry{Type: LogEndVotePeriod, Commitment: wire(m.stateCommitment)})
	log.Infow("vote period ended", "messages", len(m.messages), "stateCommitment", m.stateCommitment.String())
	return nil
}

// endProcessingPeriod moves to tallying once the oldest batch is processed.
func (m *MACI) endProcessingPeriod() error {
	results, err := tree.New(tree.DefaultArity, m.cfg.VoteOptionTreeDepth, big.NewInt(0))
	if err != nil {
		return err
	}
	m.phase = PhaseTallying
	m.batchNum = 0
	m.tallySalt = big.NewInt(0)
	m.tallyCommitment = big.NewInt(0)
	m.tallyResults = results
	log.Infow("message processing finished", "stateCommitment", m.stateCommitment.String())
	return nil
}

func pow(base, exp int) int {
	r := 1
	for range exp {
		r *= base
	}
	return r
}

func orZero(x *big.Int) *big.Int {
	if x == nil {
		return big.NewInt(0)
	}
	return x
}
