package api

import (
	"github.com/vocdoni/maci-coordinator/maci"
	"github.com/vocdoni/maci-coordinator/storage"
)

// RoundList is the response of the rounds listing endpoint.
type RoundList struct {
	Rounds []string `json:"rounds"`
}

// LogsResponse is a window of the audit log of a round.
type LogsResponse struct {
	Offset int              `json:"offset"`
	Total  int              `json:"total"`
	Logs   []*maci.LogEntry `json:"logs"`
}

// ProofsResponse lists the proven batches of one circuit.
type ProofsResponse struct {
	Circuit maci.CircuitKind       `json:"circuit"`
	Proofs  []*storage.ProofRecord `json:"proofs"`
}
