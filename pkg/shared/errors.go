package shared

import (
	"errors"
)

// Error taxonomy for the finalization flow. Callers match with errors.Is; the
// wrapped cause keeps the remote message for operators.
var (
	// ErrConfiguration is returned for missing or invalid static input.
	ErrConfiguration = errors.New("configuration error")
	// ErrNetwork is returned when the transport to a node fails.
	ErrNetwork = errors.New("network error")
	// ErrRemoteCall is returned when a node rejects a call or answers with
	// something that cannot be decoded.
	ErrRemoteCall = errors.New("remote call error")
	// ErrNotFound is returned when the L2 node knows no withdrawal for the
	// given reference.
	ErrNotFound = errors.New("withdrawal not found")
	// ErrNotReady is returned when the withdrawal exists but cannot be proven
	// on L1 yet.
	ErrNotReady = errors.New("withdrawal not ready")
	// ErrAlreadyFinalized is returned when L1 already processed the withdrawal.
	ErrAlreadyFinalized = errors.New("withdrawal already finalized")
	// ErrSignature is returned when the credential cannot sign.
	ErrSignature = errors.New("signature error")
)

// Process exit statuses reported by the CLI.
const (
	ExitOK               = 0
	ExitFailure          = 1
	ExitConfiguration    = 2
	ExitNotFinalizable   = 3
	ExitAlreadyFinalized = 4
)

// ExitCode maps an error returned by the finalization flow to a process exit
// status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrConfiguration):
		return ExitConfiguration
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNotReady):
		return ExitNotFinalizable
	case errors.Is(err, ErrAlreadyFinalized):
		return ExitAlreadyFinalized
	default:
		return ExitFailure
	}
}
