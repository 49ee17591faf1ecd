package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/primev/withdraw-finalizer/pkg/shared"
	"github.com/stretchr/testify/require"
)

func TestOutcome(t *testing.T) {
	require.Equal(t, "success", Outcome(nil))
	require.Equal(t, "configuration_error", Outcome(fmt.Errorf("%w: x", shared.ErrConfiguration)))
	require.Equal(t, "not_found", Outcome(shared.ErrNotFound))
	require.Equal(t, "not_ready", Outcome(shared.ErrNotReady))
	require.Equal(t, "already_finalized", Outcome(fmt.Errorf("%w: %w", shared.ErrAlreadyFinalized, shared.ErrRemoteCall)))
	require.Equal(t, "signature_error", Outcome(shared.ErrSignature))
	require.Equal(t, "network_error", Outcome(shared.ErrNetwork))
	require.Equal(t, "remote_call_error", Outcome(shared.ErrRemoteCall))
	require.Equal(t, "error", Outcome(errors.New("boom")))
}

func TestNewReporter(t *testing.T) {
	r := NewReporter("", "")
	require.IsType(t, Noop{}, r)
	require.NoError(t, r.Report(context.Background(), "success", nil))

	require.IsType(t, &Datadog{}, NewReporter("api", "app"))
}
