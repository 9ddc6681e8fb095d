package maci

import (
	"errors"
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/vocdoni/maci-coordinator/crypto/keys"
)

func TestDecodeCommand(t *testing.T) {
	c := qt.New(t)
	coord := keys.MustKeypair(coordPrivKey)
	signer := voter(42)
	newKey := voter(43)
	encKey := voter(44)

	req := &VoteRequest{
		StateIdx:  7,
		Nonce:     3,
		VoIdx:     2,
		NewVotes:  big.NewInt(1000),
		NewPubKey: newKey.PubKey,
		Salt:      big.NewInt(12345),
	}
	ct, enc, err := NewVoteMessage(req, signer, encKey, coord.PubKey)
	c.Assert(err, qt.IsNil)
	msg, err := newMessage(ct, enc, big.NewInt(0))
	c.Assert(err, qt.IsNil)

	res := DecodeCommand(msg, coord)
	c.Assert(res.Valid(), qt.IsTrue)
	cmd := res.Command
	c.Assert(cmd.StateIdx.Int64(), qt.Equals, int64(7))
	c.Assert(cmd.Nonce.Int64(), qt.Equals, int64(3))
	c.Assert(cmd.VoIdx.Int64(), qt.Equals, int64(2))
	c.Assert(cmd.NewVotes.Int64(), qt.Equals, int64(1000))
	c.Assert(cmd.NewPubKey.Equal(newKey.PubKey), qt.IsTrue)
	c.Assert(keys.Verify(signer.PubKey, cmd.MsgHash, cmd.Signature), qt.IsTrue)
	c.Assert(keys.Verify(newKey.PubKey, cmd.MsgHash, cmd.Signature), qt.IsFalse)

	// Any other coordinator key derives a different shared key.
	res = DecodeCommand(msg, voter(999))
	c.Assert(res.Valid(), qt.IsFalse)
	c.Assert(res.Reason, qt.Equals, ReasonUndecryptable)
}

func TestDeactivateMessage(t *testing.T) {
	c := qt.New(t)
	coord := keys.MustKeypair(coordPrivKey)
	signer := voter(42)

	ct, enc, err := NewDeactivateMessage(4, signer, voter(44), coord.PubKey)
	c.Assert(err, qt.IsNil)
	msg, err := newMessage(ct, enc, big.NewInt(0))
	c.Assert(err, qt.IsNil)
	res := DecodeCommand(msg, coord)
	c.Assert(res.Valid(), qt.IsTrue)
	c.Assert(res.Command.StateIdx.Int64(), qt.Equals, int64(4))
	c.Assert(res.Command.Nonce.Sign(), qt.Equals, 0)
	c.Assert(res.Command.NewPubKey.IsEmpty(), qt.IsTrue)
}

func TestPackCommand(t *testing.T) {
	c := qt.New(t)
	packed, err := PackCommand(&VoteRequest{Nonce: 1, StateIdx: 2, VoIdx: 3, NewVotes: big.NewInt(4), Salt: big.NewInt(5)})
	c.Assert(err, qt.IsNil)
	want := big.NewInt(1)
	want.Add(want, new(big.Int).Lsh(big.NewInt(2), 32))
	want.Add(want, new(big.Int).Lsh(big.NewInt(3), 64))
	want.Add(want, new(big.Int).Lsh(big.NewInt(4), 96))
	want.Add(want, new(big.Int).Lsh(big.NewInt(5), 192))
	c.Assert(packed.Cmp(want), qt.Equals, 0)

	_, err = PackCommand(&VoteRequest{Salt: new(big.Int).Lsh(big.NewInt(1), 56)})
	c.Assert(errors.Is(err, ErrInvalidInput), qt.IsTrue)
	_, err = PackCommand(&VoteRequest{NewVotes: new(big.Int).Lsh(big.NewInt(1), 96)})
	c.Assert(errors.Is(err, ErrInvalidInput), qt.IsTrue)
}

func TestReasonText(t *testing.T) {
	c := qt.New(t)
	for r := ReasonNone; r <= ReasonInsufficientBalance; r++ {
		text, err := r.MarshalText()
		c.Assert(err, qt.IsNil)
		var got Reason
		c.Assert(got.UnmarshalText(text), qt.IsNil)
		c.Assert(got, qt.Equals, r)
	}
	var r Reason
	c.Assert(r.UnmarshalText([]byte("bogus")), qt.IsNotNil)
}
