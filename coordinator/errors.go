package coordinator

import "errors"

var (
	// ErrInvalidLogs is returned when a contract logs export is malformed.
	ErrInvalidLogs = errors.New("invalid contract logs")
	// ErrRoundEnded is returned when running a round that already ended.
	ErrRoundEnded = errors.New("round already ended")
	// ErrRoundMismatch is returned when resuming a round with a different
	// configuration than the stored one.
	ErrRoundMismatch = errors.New("round configuration does not match the stored round")
	// ErrNonDeterministicWitness is returned when replaying a batch from its
	// snapshot yields a different public input hash.
	ErrNonDeterministicWitness = errors.New("replayed batch produced a different witness")
)
