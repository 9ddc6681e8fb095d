package maci

import "github.com/vocdoni/maci-coordinator/types"

// LogType identifies an audit log record.
type LogType string

const (
	LogSetStateLeaf             LogType = "setStateLeaf"
	LogPublishMessage           LogType = "publishMessage"
	LogPublishDeactivateMessage LogType = "publishDeactivateMessage"
	LogEndVotePeriod            LogType = "endVotePeriod"
	LogProcessMessage           LogType = "processMessage"
	LogProcessDeactivateMessage LogType = "processDeactivateMessage"
	LogProcessTally             LogType = "processTally"
	LogStopTallyingPeriod       LogType = "stopTallyingPeriod"
)

// LogEntry is a record of the append-only audit log. Only the fields that
// are relevant to its type are set.
type LogEntry struct {
	Type      LogType         `json:"type" cbor:"1,keyasint"`
	LeafIdx   *int            `json:"leafIdx,omitempty" cbor:"2,keyasint,omitempty"`
	PubKey    []*types.BigInt `json:"pubKey,omitempty" cbor:"3,keyasint,omitempty"`
	Balance   *types.BigInt   `json:"balance,omitempty" cbor:"4,keyasint,omitempty"`
	Message   []*types.BigInt `json:"message,omitempty" cbor:"5,keyasint,omitempty"`
	EncPubKey []*types.BigInt `json:"encPubKey,omitempty" cbor:"6,keyasint,omitempty"`
	// BatchStart and BatchEnd delimit the processed window [start, end).
	BatchStart *int            `json:"batchStart,omitempty" cbor:"7,keyasint,omitempty"`
	BatchEnd   *int            `json:"batchEnd,omitempty" cbor:"8,keyasint,omitempty"`
	Outcomes   []Reason        `json:"outcomes,omitempty" cbor:"9,keyasint,omitempty"`
	Commitment *types.BigInt   `json:"commitment,omitempty" cbor:"10,keyasint,omitempty"`
	InputHash  *types.BigInt   `json:"inputHash,omitempty" cbor:"11,keyasint,omitempty"`
	Results    []*types.BigInt `json:"results,omitempty" cbor:"12,keyasint,omitempty"`
}

func (m *MACI) appendLog(e *LogEntry) {
	m.logs = append(m.logs, e)
}

// Logs returns the audit log from record offset on.
func (m *MACI) Logs(offset int) []*LogEntry {
	if offset < 0 || offset >= len(m.logs) {
		return nil
	}
	out := make([]*LogEntry, len(m.logs)-offset)
	copy(out, m.logs[offset:])
	return out
}

// NumLogs returns the length of the audit log.
func (m *MACI) NumLogs() int { return len(m.logs) }

func intPtr(i int) *int { return &i }
