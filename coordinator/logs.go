package coordinator

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"slices"

	"github.com/vocdoni/maci-coordinator/maci"
	"github.com/vocdoni/maci-coordinator/types"
)

// StateLog is a sign-up event. C is the deactivation ciphertext
// [c1.x, c1.y, c2.x, c2.y] of voters that signed up with a key added
// through addKey; it is empty for regular sign-ups.
type StateLog struct {
	Idx     int             `json:"idx"`
	Balance *types.BigInt   `json:"balance"`
	PubKey  []*types.BigInt `json:"pubkey"`
	C       []*types.BigInt `json:"c,omitempty"`
}

// MessageLog is a published vote message.
type MessageLog struct {
	Idx    int             `json:"idx"`
	Msg    []*types.BigInt `json:"msg"`
	PubKey []*types.BigInt `json:"pubkey"`
}

// DeactivateMessageLog is a published deactivation message. NumSignUps is
// the number of sign-ups when the message was published.
type DeactivateMessageLog struct {
	Idx        int             `json:"idx"`
	NumSignUps int             `json:"numSignUps"`
	Msg        []*types.BigInt `json:"msg"`
	PubKey     []*types.BigInt `json:"pubkey"`
}

// ContractLogs is the export of the events emitted by the round contract.
type ContractLogs struct {
	States    []StateLog             `json:"states"`
	Messages  []MessageLog           `json:"messages"`
	DMessages []DeactivateMessageLog `json:"dmessages"`
}

// LoadContractLogs reads and validates a contract logs export.
func LoadContractLogs(path string) (*ContractLogs, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read contract logs: %w", err)
	}
	return ParseContractLogs(data)
}

// ParseContractLogs decodes a contract logs export. Every list is sorted by
// idx and the message indices must be contiguous from zero.
func ParseContractLogs(data []byte) (*ContractLogs, error) {
	logs := &ContractLogs{}
	if err := json.Unmarshal(data, logs); err != nil {
		return nil, fmt.Errorf("decode contract logs: %w", err)
	}
	slices.SortStableFunc(logs.States, func(a, b StateLog) int { return a.Idx - b.Idx })
	slices.SortStableFunc(logs.Messages, func(a, b MessageLog) int { return a.Idx - b.Idx })
	slices.SortStableFunc(logs.DMessages, func(a, b DeactivateMessageLog) int { return a.Idx - b.Idx })

	for i, s := range logs.States {
		if s.Balance == nil || len(s.PubKey) != 2 || (len(s.C) != 0 && len(s.C) != 4) {
			return nil, fmt.Errorf("%w: state %d is malformed", ErrInvalidLogs, s.Idx)
		}
		if i > 0 && logs.States[i-1].Idx == s.Idx {
			return nil, fmt.Errorf("%w: duplicated state %d", ErrInvalidLogs, s.Idx)
		}
	}
	for i, msg := range logs.Messages {
		if msg.Idx != i {
			return nil, fmt.Errorf("%w: message %d missing", ErrInvalidLogs, i)
		}
		if len(msg.Msg) != maci.MessageLength || len(msg.PubKey) != 2 {
			return nil, fmt.Errorf("%w: message %d is malformed", ErrInvalidLogs, i)
		}
	}
	for i, msg := range logs.DMessages {
		if msg.Idx != i {
			return nil, fmt.Errorf("%w: deactivate message %d missing", ErrInvalidLogs, i)
		}
		if len(msg.Msg) != maci.MessageLength || len(msg.PubKey) != 2 {
			return nil, fmt.Errorf("%w: deactivate message %d is malformed", ErrInvalidLogs, i)
		}
	}
	return logs, nil
}

// Load replays the logs into a round in the filling phase: sign-ups first,
// then vote messages, then deactivation messages when the round has the
// deactivation extension.
func (l *ContractLogs) Load(m *maci.MACI) error {
	for _, s := range l.States {
		var c *[4]*big.Int
		if len(s.C) == 4 {
			c = &[4]*big.Int{}
			copy(c[:], types.MathBigInts(s.C))
		}
		if err := m.SignUp(s.Idx, pair(s.PubKey), s.Balance.MathBigInt(), c); err != nil {
			return fmt.Errorf("sign up %d: %w", s.Idx, err)
		}
	}
	for _, msg := range l.Messages {
		if err := m.PublishMessage(ciphertext(msg.Msg), pair(msg.PubKey)); err != nil {
			return fmt.Errorf("publish message %d: %w", msg.Idx, err)
		}
	}
	if !m.Config().Deactivation {
		if len(l.DMessages) > 0 {
			return fmt.Errorf("%w: deactivate messages on a round without deactivation", ErrInvalidLogs)
		}
		return nil
	}
	for _, msg := range l.DMessages {
		if err := m.PublishDeactivateMessage(ciphertext(msg.Msg), pair(msg.PubKey)); err != nil {
			return fmt.Errorf("publish deactivate message %d: %w", msg.Idx, err)
		}
	}
	return nil
}

func pair(xs []*types.BigInt) [2]*big.Int {
	v := types.MathBigInts(xs)
	return [2]*big.Int{v[0], v[1]}
}

func ciphertext(xs []*types.BigInt) [maci.MessageLength]*big.Int {
	var out [maci.MessageLength]*big.Int
	copy(out[:], types.MathBigInts(xs))
	return out
}
