package maci

import (
	"fmt"
	"math/big"

	"github.com/vocdoni/maci-coordinator/crypto"
	"github.com/vocdoni/maci-coordinator/crypto/hash/poseidon"
)

// MessageLength is the number of field elements of a message ciphertext.
const MessageLength = 7

// Message is an entry of a hash-chained message log.
type Message struct {
	Ciphertext [MessageLength]*big.Int
	EncPubKey  [2]*big.Int
	PrevHash   *big.Int
	Hash       *big.Int
}

func isFieldElement(x *big.Int) bool {
	return x != nil && x.Sign() >= 0 && x.Cmp(crypto.SNARKField) < 0
}

// newMessage builds the message chained after prevHash:
// H(H(ct[0:5]), H(ct[5], ct[6], encPubKey.x, encPubKey.y, prevHash)).
func newMessage(ciphertext [MessageLength]*big.Int, encPubKey [2]*big.Int, prevHash *big.Int) (*Message, error) {
	msg := &Message{PrevHash: new(big.Int).Set(prevHash)}
	for i, c := range ciphertext {
		if !isFieldElement(c) {
			return nil, fmt.Errorf("%w: ciphertext element %d is not a field element", ErrInvalidInput, i)
		}
		msg.Ciphertext[i] = new(big.Int).Set(c)
	}
	for i, k := range encPubKey {
		if !isFieldElement(k) {
			return nil, fmt.Errorf("%w: encryption key coordinate %d is not a field element", ErrInvalidInput, i)
		}
		msg.EncPubKey[i] = new(big.Int).Set(k)
	}
	head, err := poseidon.Hash(msg.Ciphertext[:5]...)
	if err != nil {
		return nil, err
	}
	tail, err := poseidon.Hash(msg.Ciphertext[5], msg.Ciphertext[6], msg.EncPubKey[0], msg.EncPubKey[1], msg.PrevHash)
	if err != nil {
		return nil, err
	}
	if msg.Hash, err = poseidon.Hash(head, tail); err != nil {
		return nil, err
	}
	return msg, nil
}

// emptyMessage pads batches; every field, hashes included, is zero.
func emptyMessage() *Message {
	msg := &Message{PrevHash: big.NewInt(0), Hash: big.NewInt(0)}
	for i := range msg.Ciphertext {
		msg.Ciphertext[i] = big.NewInt(0)
	}
	msg.EncPubKey = [2]*big.Int{big.NewInt(0), big.NewInt(0)}
	return msg
}

func lastHash(msgs []*Message) *big.Int {
	if len(msgs) == 0 {
		return big.NewInt(0)
	}
	return msgs[len(msgs)-1].Hash
}

// window returns the messages and commands of [start, end) padded with empty
// messages and absent commands up to size.
func window(msgs []*Message, cmds []CommandResult, start, end, size int) ([]*Message, []CommandResult) {
	outMsgs := make([]*Message, 0, size)
	outCmds := make([]CommandResult, 0, size)
	outMsgs = append(outMsgs, msgs[start:end]...)
	outCmds = append(outCmds, cmds[start:end]...)
	for len(outMsgs) < size {
		outMsgs = append(outMsgs, emptyMessage())
		outCmds = append(outCmds, CommandResult{Reason: ReasonEmpty})
	}
	return outMsgs, outCmds
}

// chainEndpoints returns the prevHash of the first message and the hash of
// the last message of [start, end), zero for an empty window.
func chainEndpoints(msgs []*Message, start, end int) (*big.Int, *big.Int) {
	if end <= start {
		return big.NewInt(0), big.NewInt(0)
	}
	return msgs[start].PrevHash, msgs[end-1].Hash
}

func (msg *Message) isEmpty() bool {
	return msg.Ciphertext[0].Sign() == 0
}
