package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vocdoni/maci-coordinator/maci"
	"github.com/vocdoni/maci-coordinator/storage"
)

// rounds lists the IDs of the stored rounds.
// GET /rounds
func (a *API) rounds(w http.ResponseWriter, r *http.Request) {
	ids, err := a.storage.ListRounds()
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	res := &RoundList{Rounds: make([]string, 0, len(ids))}
	for _, id := range ids {
		res.Rounds = append(res.Rounds, id.String())
	}
	httpWriteJSON(w, res)
}

// storedRound loads the round of the request path, writing the error
// response when it cannot.
func (a *API) storedRound(w http.ResponseWriter, r *http.Request) (*storage.Round, bool) {
	id, err := roundIDParam(r)
	if err != nil {
		ErrMalformedRoundID.WithErr(err).Write(w)
		return nil, false
	}
	round, err := a.storage.Round(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			ErrRoundNotFound.Withf("%s", id).Write(w)
			return nil, false
		}
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return nil, false
	}
	return round, true
}

// round returns the configuration, status and progress of a round.
// GET /rounds/{roundId}
func (a *API) round(w http.ResponseWriter, r *http.Request) {
	round, ok := a.storedRound(w, r)
	if !ok {
		return
	}
	httpWriteJSON(w, round)
}

// logs returns a window of the audit log of a round.
// GET /rounds/{roundId}/logs?offset=<n>&limit=<n>
func (a *API) logs(w http.ResponseWriter, r *http.Request) {
	round, ok := a.storedRound(w, r)
	if !ok {
		return
	}
	offset, err := intQueryParam(r, OffsetQueryParam, 0)
	if err != nil {
		ErrMalformedLogsRange.Withf("offset: %v", err).Write(w)
		return
	}
	limit, err := intQueryParam(r, LimitQueryParam, 0)
	if err != nil {
		ErrMalformedLogsRange.Withf("limit: %v", err).Write(w)
		return
	}
	total, err := a.storage.NumLogs(round.ID)
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	entries, err := a.storage.Logs(round.ID, offset, limit)
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	if entries == nil {
		entries = []*maci.LogEntry{}
	}
	httpWriteJSON(w, &LogsResponse{Offset: offset, Total: total, Logs: entries})
}

// results returns the decoded tally of an ended round.
// GET /rounds/{roundId}/results
func (a *API) results(w http.ResponseWriter, r *http.Request) {
	round, ok := a.storedRound(w, r)
	if !ok {
		return
	}
	res, err := a.storage.Results(round.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			ErrResultsNotFound.Withf("round is %s", round.Status).Write(w)
			return
		}
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, res)
}

func circuitParam(r *http.Request) (maci.CircuitKind, bool) {
	kind := maci.CircuitKind(chi.URLParam(r, CircuitURLParam))
	switch kind {
	case maci.CircuitProcessMessages, maci.CircuitDeactivate, maci.CircuitTally, maci.CircuitAddKey:
		return kind, true
	}
	return kind, false
}

// proofs lists the proven batches of one circuit of a round.
// GET /rounds/{roundId}/proofs/{circuit}
func (a *API) proofs(w http.ResponseWriter, r *http.Request) {
	round, ok := a.storedRound(w, r)
	if !ok {
		return
	}
	kind, ok := circuitParam(r)
	if !ok {
		ErrUnknownCircuit.Withf("%q", kind).Write(w)
		return
	}
	proofs, err := a.storage.Proofs(round.ID, kind)
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	if proofs == nil {
		proofs = []*storage.ProofRecord{}
	}
	httpWriteJSON(w, &ProofsResponse{Circuit: kind, Proofs: proofs})
}

// proof returns a single proven batch.
// GET /rounds/{roundId}/proofs/{circuit}/{index}
func (a *API) proof(w http.ResponseWriter, r *http.Request) {
	id, err := roundIDParam(r)
	if err != nil {
		ErrMalformedRoundID.WithErr(err).Write(w)
		return
	}
	kind, ok := circuitParam(r)
	if !ok {
		ErrUnknownCircuit.Withf("%q", kind).Write(w)
		return
	}
	idx, err := strconv.Atoi(chi.URLParam(r, IndexURLParam))
	if err != nil || idx < 0 {
		ErrMalformedParam.Withf("batch index %q", chi.URLParam(r, IndexURLParam)).Write(w)
		return
	}
	rec, err := a.storage.Proof(id, kind, idx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			ErrProofNotFound.Withf("%s batch %d of round %s", kind, idx, id).Write(w)
			return
		}
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, rec)
}
