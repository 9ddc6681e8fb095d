package maci

import (
	"math/big"

	qt "github.com/frankban/quicktest"

	"github.com/vocdoni/maci-coordinator/crypto/keys"
)

var coordPrivKey = big.NewInt(111111)

func testConfig(deactivation bool) Config {
	return Config{
		StateTreeDepth:      2,
		IntStateTreeDepth:   1,
		VoteOptionTreeDepth: 1,
		BatchSize:           5,
		MaxVoteOptions:      3,
		NumSignUps:          3,
		QuadraticCost:       true,
		Deactivation:        deactivation,
	}
}

func newRound(c *qt.C, cfg Config) *MACI {
	m, err := New(cfg, coordPrivKey)
	c.Assert(err, qt.IsNil)
	return m
}

func voter(seed int64) *keys.Keypair {
	return keys.MustKeypair(big.NewInt(seed))
}

func pubPair(k *keys.Keypair) [2]*big.Int {
	x, y := k.PubKey.Point()
	return [2]*big.Int{x, y}
}

func signUp(c *qt.C, m *MACI, idx int, k *keys.Keypair, balance int64) {
	c.Assert(m.SignUp(idx, pubPair(k), big.NewInt(balance), nil), qt.IsNil)
}

func publishVote(c *qt.C, m *MACI, signer *keys.Keypair, req *VoteRequest) {
	encKey, err := keys.RandomKeypair()
	c.Assert(err, qt.IsNil)
	ct, enc, err := NewVoteMessage(req, signer, encKey, m.Coordinator().PubKey)
	c.Assert(err, qt.IsNil)
	c.Assert(m.PublishMessage(ct, enc), qt.IsNil)
}

func publishDeactivate(c *qt.C, m *MACI, stateIdx uint32, signer *keys.Keypair) {
	encKey, err := keys.RandomKeypair()
	c.Assert(err, qt.IsNil)
	ct, enc, err := NewDeactivateMessage(stateIdx, signer, encKey, m.Coordinator().PubKey)
	c.Assert(err, qt.IsNil)
	c.Assert(m.PublishDeactivateMessage(ct, enc), qt.IsNil)
}

func runToEnd(c *qt.C, m *MACI) {
	for m.Phase() == PhaseProcessing {
		_, err := m.ProcessMessageBatch(big.NewInt(0))
		c.Assert(err, qt.IsNil)
	}
	for m.Phase() == PhaseTallying {
		_, err := m.ProcessTallyBatch(big.NewInt(0))
		c.Assert(err, qt.IsNil)
	}
}

func leafHash(m *MACI, idx int) *big.Int {
	return m.StateLeaf(idx).hash(m.Config().Deactivation)
}
