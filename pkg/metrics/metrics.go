package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	datadog "github.com/DataDog/datadog-api-client-go/api/v2/datadog"
	"github.com/primev/withdraw-finalizer/pkg/shared"
	"github.com/rs/zerolog/log"
)

const FinalizeMetric = "withdrawal.finalize"

// Reporter records the outcome of one finalization run.
type Reporter interface {
	Report(ctx context.Context, outcome string, tags []string) error
}

type Noop struct{}

func (Noop) Report(context.Context, string, []string) error { return nil }

// Outcome names the result of a run for metric tags.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, shared.ErrConfiguration):
		return "configuration_error"
	case errors.Is(err, shared.ErrNotFound):
		return "not_found"
	case errors.Is(err, shared.ErrNotReady):
		return "not_ready"
	case errors.Is(err, shared.ErrAlreadyFinalized):
		return "already_finalized"
	case errors.Is(err, shared.ErrSignature):
		return "signature_error"
	case errors.Is(err, shared.ErrNetwork):
		return "network_error"
	case errors.Is(err, shared.ErrRemoteCall):
		return "remote_call_error"
	default:
		return "error"
	}
}

// Datadog posts a gauge point per run to the Datadog metrics intake.
type Datadog struct {
	client *datadog.APIClient
	apiKey string
	appKey string
}

// NewReporter returns a Datadog reporter when an API key is configured and a
// no-op reporter otherwise.
func NewReporter(apiKey, appKey string) Reporter {
	if apiKey == "" {
		return Noop{}
	}
	return &Datadog{
		client: datadog.NewAPIClient(datadog.NewConfiguration()),
		apiKey: apiKey,
		appKey: appKey,
	}
}

func (d *Datadog) Report(ctx context.Context, outcome string, tags []string) error {
	ctx = context.WithValue(ctx, datadog.ContextAPIKeys, map[string]datadog.APIKey{
		"apiKeyAuth": {
			Key: d.apiKey,
		},
		"appKeyAuth": {
			Key: d.appKey,
		},
	})

	now := time.Now().Unix()
	point := datadog.MetricPoint{
		Timestamp: datadog.PtrInt64(now),
		Value:     datadog.PtrFloat64(1),
	}
	series := datadog.MetricSeries{
		Metric: FinalizeMetric,
		Type:   datadog.METRICINTAKETYPE_GAUGE.Ptr(),
		Points: []datadog.MetricPoint{point},
		Tags:   append([]string{"outcome:" + outcome}, tags...),
	}
	payload := datadog.MetricPayload{
		Series: []datadog.MetricSeries{series},
	}
	if _, _, err := d.client.MetricsApi.SubmitMetrics(ctx, payload); err != nil {
		return fmt.Errorf("failed to submit %s metric: %w", FinalizeMetric, err)
	}
	log.Debug().Str("metric", FinalizeMetric).Str("outcome", outcome).Msg("metric posted")
	return nil
}
