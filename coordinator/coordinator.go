// Package coordinator drives a round from its contract logs to the final
// tally. Every batch is preceded by a snapshot of the round, and its
// witness, proof and audit records are persisted as soon as they exist, so
// an interrupted run resumes from the last snapshot.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/vocdoni/maci-coordinator/crypto/keys"
	"github.com/vocdoni/maci-coordinator/log"
	"github.com/vocdoni/maci-coordinator/maci"
	"github.com/vocdoni/maci-coordinator/prover"
	"github.com/vocdoni/maci-coordinator/storage"
)

// DefaultProofRetries is the number of times a failed proof is retried.
const DefaultProofRetries = 2

// Coordinator runs rounds and persists their artifacts.
type Coordinator struct {
	stg          *storage.Storage
	prover       prover.Prover
	coordPrivKey *big.Int

	// ProofRetries is how many times a failed proof is retried, each time
	// from a witness replayed from the snapshot taken before the batch.
	ProofRetries int
}

// New returns a coordinator. A nil prover only produces witnesses.
func New(stg *storage.Storage, p prover.Prover, coordPrivKey *big.Int) (*Coordinator, error) {
	if stg == nil {
		return nil, fmt.Errorf("storage cannot be nil")
	}
	if coordPrivKey == nil || coordPrivKey.Sign() <= 0 {
		return nil, fmt.Errorf("invalid coordinator private key")
	}
	return &Coordinator{
		stg:          stg,
		prover:       p,
		coordPrivKey: new(big.Int).Set(coordPrivKey),
		ProofRetries: DefaultProofRetries,
	}, nil
}

// Request describes a round to run.
type Request struct {
	ID     uuid.UUID
	Config maci.Config
	Logs   *ContractLogs
	// Deactivations are deactivation records processed by a previous run,
	// restored before processing the pending deactivation messages.
	Deactivations *storage.Deactivations
}

// Run executes the round up to its end and returns its final state. A round
// that already exists in the storage is resumed from its last snapshot; its
// configuration must match.
func (c *Coordinator) Run(ctx context.Context, req *Request) (*maci.MACI, error) {
	if req == nil || req.Logs == nil {
		return nil, fmt.Errorf("%w: no contract logs", ErrInvalidLogs)
	}
	startTime := time.Now()
	m, err := c.open(req)
	if err != nil {
		return nil, err
	}
	if err := c.stg.UpdateRound(req.ID,
		storage.RoundUpdateStatus(storage.RoundStatusRunning, nil),
		storage.RoundUpdateProgress(m),
	); err != nil {
		return nil, err
	}
	if err := c.run(ctx, req, m); err != nil {
		status := storage.RoundStatusFailed
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status = storage.RoundStatusInterrupted
		}
		if uerr := c.stg.UpdateRound(req.ID, storage.RoundUpdateStatus(status, err)); uerr != nil {
			log.Warnw("failed to update round status", "round", req.ID.String(), "error", uerr.Error())
		}
		return nil, err
	}
	log.Infow("round finished",
		"round", req.ID.String(),
		"tallyCommitment", m.TallyCommitment().String(),
		"took", time.Since(startTime).String())
	return m, nil
}

// open restores the round from its snapshot, or creates it and replays the
// contract logs.
func (c *Coordinator) open(req *Request) (*maci.MACI, error) {
	r, err := c.stg.Round(req.ID)
	switch {
	case err == nil:
		if r.Status == storage.RoundStatusEnded {
			return nil, ErrRoundEnded
		}
		if r.Config != req.Config {
			return nil, ErrRoundMismatch
		}
		snap, err := c.stg.Snapshot(req.ID)
		if err == nil {
			m, err := maci.Restore(snap, c.coordPrivKey)
			if err != nil {
				return nil, fmt.Errorf("restore round: %w", err)
			}
			log.Infow("round resumed from snapshot", "round", req.ID.String(), "phase", m.Phase().String())
			return m, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
	case errors.Is(err, storage.ErrNotFound):
		if err := c.stg.NewRound(&storage.Round{
			ID:     req.ID,
			Config: req.Config,
			Status: storage.RoundStatusCreated,
		}); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	m, err := maci.New(req.Config, c.coordPrivKey)
	if err != nil {
		return nil, err
	}
	if err := req.Logs.Load(m); err != nil {
		return nil, err
	}
	if d := req.Deactivations; d != nil {
		if err := d.Restore(m); err != nil {
			return nil, fmt.Errorf("restore deactivations: %w", err)
		}
	}
	if err := c.stg.AppendLogs(req.ID, 0, m.Logs(0)); err != nil {
		return nil, err
	}
	log.Infow("round loaded",
		"round", req.ID.String(),
		"signUps", len(req.Logs.States),
		"messages", m.NumMessages(),
		"deactivateMessages", m.NumDeactivateMessages())
	return m, nil
}

func (c *Coordinator) run(ctx context.Context, req *Request, m *maci.MACI) error {
	cfg := m.Config()
	if cfg.Deactivation && m.Phase() == maci.PhaseFilling {
		if err := c.processDeactivations(ctx, req, m); err != nil {
			return err
		}
	}

	if m.Phase() == maci.PhaseFilling {
		offset := m.NumLogs()
		if err := m.EndVotePeriod(); err != nil {
			return err
		}
		if err := c.stg.AppendLogs(req.ID, offset, m.Logs(offset)); err != nil {
			return err
		}
	}

	totalMsgBatches := max(1, (m.NumMessages()+cfg.BatchSize-1)/cfg.BatchSize)
	for m.Phase() == maci.PhaseProcessing {
		idx := totalMsgBatches - m.MessageBatches()
		salt := keys.StaticRandomKey(c.coordPrivKey, maci.StateSaltSalt, big.NewInt(int64(idx)))
		err := c.runBatch(ctx, req.ID, m, maci.CircuitProcessMessages, idx, func(m *maci.MACI) (maci.Witness, error) {
			b, err := m.ProcessMessageBatch(salt)
			if err != nil {
				return nil, err
			}
			return b.Input, nil
		})
		if err != nil {
			return err
		}
	}

	tbs := cfg.TallyBatchSize()
	totalTallyBatches := (max(cfg.NumSignUps, 1) + tbs - 1) / tbs
	for m.Phase() == maci.PhaseTallying {
		idx := totalTallyBatches - m.TallyBatches()
		salt := keys.StaticRandomKey(c.coordPrivKey, maci.TallySaltSalt, big.NewInt(int64(idx)))
		err := c.runBatch(ctx, req.ID, m, maci.CircuitTally, idx, func(m *maci.MACI) (maci.Witness, error) {
			b, err := m.ProcessTallyBatch(salt)
			if err != nil {
				return nil, err
			}
			return b.Input, nil
		})
		if err != nil {
			return err
		}
	}

	res, err := storage.ResultsFrom(m)
	if err != nil {
		return err
	}
	if err := c.stg.SetResults(req.ID, res); err != nil {
		return err
	}
	snap, err := m.Snapshot()
	if err != nil {
		return err
	}
	if err := c.stg.SetSnapshot(req.ID, snap); err != nil {
		return err
	}
	return c.stg.UpdateRound(req.ID,
		storage.RoundUpdateStatus(storage.RoundStatusEnded, nil),
		storage.RoundUpdateProgress(m),
	)
}

// processDeactivations processes the pending deactivation messages in
// batches of at most BatchSize. Each batch is checked against the sub-state
// tree of the sign-ups that existed when its last message was published.
func (c *Coordinator) processDeactivations(ctx context.Context, req *Request, m *maci.MACI) error {
	bs := m.Config().BatchSize
	for m.ProcessedDeactivateMessages() < m.NumDeactivateMessages() {
		processed := m.ProcessedDeactivateMessages()
		size := min(bs, m.NumDeactivateMessages()-processed)
		last := processed + size - 1
		if last >= len(req.Logs.DMessages) {
			return fmt.Errorf("%w: deactivate message %d missing", ErrInvalidLogs, last)
		}
		subStateTreeLength := req.Logs.DMessages[last].NumSignUps
		idx := (processed + bs - 1) / bs
		err := c.runBatch(ctx, req.ID, m, maci.CircuitDeactivate, idx, func(m *maci.MACI) (maci.Witness, error) {
			b, err := m.ProcessDeactivateBatch(size, subStateTreeLength)
			if err != nil {
				return nil, err
			}
			return b.Input, nil
		})
		if err != nil {
			return err
		}
		if err := c.stg.SetDeactivations(req.ID, storage.DeactivationsFrom(m)); err != nil {
			return err
		}
	}
	return nil
}

type batchFunc func(m *maci.MACI) (maci.Witness, error)

// runBatch snapshots the round, runs batch idx and persists its witness,
// audit records and proof. A failed proof is retried with the witness
// replayed from the snapshot, which must hash to the same public input.
func (c *Coordinator) runBatch(ctx context.Context, id uuid.UUID, m *maci.MACI, kind maci.CircuitKind, idx int, fn batchFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	snap, err := m.Snapshot()
	if err != nil {
		return err
	}
	if err := c.stg.SetSnapshot(id, snap); err != nil {
		return err
	}
	offset := m.NumLogs()
	w, err := fn(m)
	if err != nil {
		return fmt.Errorf("%s batch %d: %w", kind, idx, err)
	}
	if err := c.stg.SetWitness(id, idx, w); err != nil {
		return err
	}
	if err := c.stg.AppendLogs(id, offset, m.Logs(offset)); err != nil {
		return err
	}
	log.Infow("batch processed",
		"round", id.String(),
		"circuit", string(kind),
		"index", idx,
		"inputHash", w.PublicInputHash().String())

	if c.prover == nil {
		return c.stg.UpdateRound(id, storage.RoundUpdateProgress(m))
	}
	res, err := c.prove(ctx, snap, w, fn)
	if err != nil {
		return fmt.Errorf("prove %s batch %d: %w", kind, idx, err)
	}
	uncompressed, err := res.Proof.Uncompressed()
	if err != nil {
		return err
	}
	if err := c.stg.SetProof(id, &storage.ProofRecord{
		Circuit:      kind,
		Index:        idx,
		InputHash:    w.PublicInputHash(),
		Proof:        res.Proof,
		Uncompressed: uncompressed,
	}); err != nil {
		return err
	}
	return c.stg.UpdateRound(id,
		storage.RoundUpdateProgress(m),
		storage.RoundUpdateBatchProven(kind, idx),
	)
}

func (c *Coordinator) prove(ctx context.Context, snap []byte, w maci.Witness, fn batchFunc) (*prover.Result, error) {
	for attempt := 0; ; attempt++ {
		res, err := c.prover.Prove(ctx, w)
		if err == nil {
			return res, nil
		}
		if attempt >= c.ProofRetries || ctx.Err() != nil {
			return nil, err
		}
		log.Warnw("proof failed, replaying batch from snapshot",
			"circuit", string(w.Circuit()),
			"attempt", attempt+1,
			"error", err.Error())
		replay, err := maci.Restore(snap, c.coordPrivKey)
		if err != nil {
			return nil, fmt.Errorf("restore snapshot: %w", err)
		}
		rw, err := fn(replay)
		if err != nil {
			return nil, err
		}
		if !rw.PublicInputHash().Equal(w.PublicInputHash()) {
			return nil, ErrNonDeterministicWitness
		}
		w = rw
	}
}
