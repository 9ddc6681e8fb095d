package maci

import "fmt"

var (
	// ErrPhaseViolation is returned when an operation is invoked outside the
	// phase it is restricted to. The round state is left untouched.
	ErrPhaseViolation = fmt.Errorf("phase violation")
	// ErrDeactivationDisabled is returned by deactivation operations on a
	// round created without the deactivation extension.
	ErrDeactivationDisabled = fmt.Errorf("deactivation is not enabled for this round")
	// ErrNoPendingDeactivations is returned when a deactivation batch is
	// requested but every deactivation message was already processed.
	ErrNoPendingDeactivations = fmt.Errorf("no pending deactivation messages")
	// ErrBatchTooLarge is returned when a deactivation window exceeds the
	// configured batch size.
	ErrBatchTooLarge = fmt.Errorf("batch window exceeds batch size")
	// ErrInvalidConfig is returned by New for inconsistent round parameters.
	ErrInvalidConfig = fmt.Errorf("invalid round configuration")
	// ErrInvalidInput is returned for malformed sign-up or message inputs.
	ErrInvalidInput = fmt.Errorf("invalid input")
)

func phaseError(op string, want, got Phase) error {
	return fmt.Errorf("%w: %s requires phase %s, round is %s", ErrPhaseViolation, op, want, got)
}
