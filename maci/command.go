package maci

import (
	"fmt"
	"math/big"

	bjj "github.com/vocdoni/maci-coordinator/crypto/ecc/bjj_iden3"
	"github.com/vocdoni/maci-coordinator/crypto/hash/poseidon"
	"github.com/vocdoni/maci-coordinator/crypto/keys"
)

// commandLength is the plaintext length of a command.
const commandLength = 6

var (
	uint32Mask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 32), big.NewInt(1))
	uint96Mask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 96), big.NewInt(1))
	// maxSalt bounds the salt packed above the vote weight.
	maxSalt = new(big.Int).Lsh(big.NewInt(1), 56)
)

// Reason tells why a command was not applied. ReasonNone marks an applied
// (or, before validation, a decodable) command.
type Reason int

const (
	ReasonNone Reason = iota
	// ReasonEmpty marks padding slots.
	ReasonEmpty
	// ReasonUndecryptable marks messages the coordinator cannot decrypt.
	ReasonUndecryptable
	ReasonStateIndexOverflow
	ReasonVoteOptionOverflow
	ReasonInactive
	ReasonDeactivated
	ReasonInvalidNonce
	ReasonInvalidSignature
	ReasonInsufficientBalance
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "ok"
	case ReasonEmpty:
		return "empty command"
	case ReasonUndecryptable:
		return "undecryptable message"
	case ReasonStateIndexOverflow:
		return "state leaf index overflow"
	case ReasonVoteOptionOverflow:
		return "vote option index overflow"
	case ReasonInactive:
		return "inactive"
	case ReasonDeactivated:
		return "deactivated"
	case ReasonInvalidNonce:
		return "nonce error"
	case ReasonInvalidSignature:
		return "signature error"
	case ReasonInsufficientBalance:
		return "insufficient balance"
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// MarshalText encodes the reason by name.
func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes a reason name.
func (r *Reason) UnmarshalText(text []byte) error {
	for c := ReasonNone; c <= ReasonInsufficientBalance; c++ {
		if c.String() == string(text) {
			*r = c
			return nil
		}
	}
	return fmt.Errorf("unknown reason %q", text)
}

// Command is the decrypted content of a message.
type Command struct {
	Nonce     *big.Int
	StateIdx  *big.Int
	VoIdx     *big.Int
	NewVotes  *big.Int
	NewPubKey *bjj.BJJ
	Signature *keys.Signature
	// MsgHash is the signed digest H(packed, newPubKey.x, newPubKey.y).
	MsgHash *big.Int
}

// CommandResult is either a command or the reason there is none.
type CommandResult struct {
	Command *Command
	Reason  Reason
}

// Valid reports whether the result holds a command.
func (r CommandResult) Valid() bool {
	return r.Reason == ReasonNone && r.Command != nil
}

// DecodeCommand decrypts msg with the ECDH key shared between the
// coordinator and the message's ephemeral key and unpacks the command. It
// never fails: undecryptable messages yield ReasonUndecryptable.
func DecodeCommand(msg *Message, coord *keys.Keypair) CommandResult {
	shared := coord.SharedKey(pointFrom(msg.EncPubKey))
	sx, sy := shared.Point()
	plaintext, err := poseidon.Decrypt(msg.Ciphertext[:], [2]*big.Int{sx, sy}, big.NewInt(0), commandLength)
	if err != nil {
		return CommandResult{Reason: ReasonUndecryptable}
	}
	packed := plaintext[0]
	msgHash, err := poseidon.Hash(plaintext[:3]...)
	if err != nil {
		return CommandResult{Reason: ReasonUndecryptable}
	}
	return CommandResult{Command: &Command{
		Nonce:     new(big.Int).And(packed, uint32Mask),
		StateIdx:  new(big.Int).And(new(big.Int).Rsh(packed, 32), uint32Mask),
		VoIdx:     new(big.Int).And(new(big.Int).Rsh(packed, 64), uint32Mask),
		NewVotes:  new(big.Int).And(new(big.Int).Rsh(packed, 96), uint96Mask),
		NewPubKey: bjj.FromXY(plaintext[1], plaintext[2]),
		Signature: &keys.Signature{R8: bjj.FromXY(plaintext[3], plaintext[4]), S: plaintext[5]},
		MsgHash:   msgHash,
	}}
}

// VoteRequest describes a command built by a voter.
type VoteRequest struct {
	StateIdx uint32
	Nonce    uint32
	VoIdx    uint32
	NewVotes *big.Int
	// NewPubKey is the key that will own the state leaf after the command;
	// nil keeps the signer's key.
	NewPubKey *bjj.BJJ
	// Salt is packed above the vote weight; it must be below 2^56.
	Salt *big.Int
}

// PackCommand packs nonce, state index, vote option, weight and salt into a
// single field element.
func PackCommand(req *VoteRequest) (*big.Int, error) {
	votes := orZero(req.NewVotes)
	salt := orZero(req.Salt)
	if votes.Sign() < 0 || votes.Cmp(uint96Mask) > 0 {
		return nil, fmt.Errorf("%w: vote weight out of range", ErrInvalidInput)
	}
	if salt.Sign() < 0 || salt.Cmp(maxSalt) >= 0 {
		return nil, fmt.Errorf("%w: salt out of range", ErrInvalidInput)
	}
	packed := new(big.Int).SetUint64(uint64(req.Nonce))
	packed.Or(packed, new(big.Int).Lsh(new(big.Int).SetUint64(uint64(req.StateIdx)), 32))
	packed.Or(packed, new(big.Int).Lsh(new(big.Int).SetUint64(uint64(req.VoIdx)), 64))
	packed.Or(packed, new(big.Int).Lsh(votes, 96))
	packed.Or(packed, new(big.Int).Lsh(salt, 192))
	return packed, nil
}

// NewVoteMessage builds a signed, encrypted vote message for the
// coordinator. encKey is the ephemeral keypair whose public key is published
// next to the ciphertext.
func NewVoteMessage(req *VoteRequest, signer, encKey *keys.Keypair, coordPubKey *bjj.BJJ) ([MessageLength]*big.Int, [2]*big.Int, error) {
	var ciphertext [MessageLength]*big.Int
	packed, err := PackCommand(req)
	if err != nil {
		return ciphertext, [2]*big.Int{}, err
	}
	newPubKey := req.NewPubKey
	if newPubKey == nil {
		newPubKey = signer.PubKey
	}
	nx, ny := newPubKey.Point()
	msgHash, err := poseidon.Hash(packed, nx, ny)
	if err != nil {
		return ciphertext, [2]*big.Int{}, err
	}
	sig := signer.Sign(msgHash)
	rx, ry := sig.R8.Point()
	shared := encKey.SharedKey(coordPubKey)
	sx, sy := shared.Point()
	ct, err := poseidon.Encrypt([]*big.Int{packed, nx, ny, rx, ry, sig.S}, [2]*big.Int{sx, sy}, big.NewInt(0))
	if err != nil {
		return ciphertext, [2]*big.Int{}, err
	}
	copy(ciphertext[:], ct)
	ex, ey := encKey.PubKey.Point()
	return ciphertext, [2]*big.Int{ex, ey}, nil
}

// NewDeactivateMessage builds the deactivation request of the voter at
// stateIdx: a command with zero nonce, option, weight and public key.
func NewDeactivateMessage(stateIdx uint32, signer, encKey *keys.Keypair, coordPubKey *bjj.BJJ) ([MessageLength]*big.Int, [2]*big.Int, error) {
	zero := big.NewInt(0)
	return NewVoteMessage(&VoteRequest{
		StateIdx:  stateIdx,
		NewPubKey: bjj.FromXY(zero, zero),
	}, signer, encKey, coordPubKey)
}
