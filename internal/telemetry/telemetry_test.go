package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casefile-labs/lexrag/internal/config"
)

func TestNewDisabled(t *testing.T) {
	tel := New(context.Background(), config.TelemetryConfig{}, "test", nil)
	require.NotNil(t, tel)
	assert.Nil(t, tel.tracerProvider)
	assert.Nil(t, tel.meterProvider)
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNewEnabled(t *testing.T) {
	// Exporter construction does not dial, so this succeeds without a
	// collector. Shutdown flushes against the unreachable endpoint and
	// is allowed to fail.
	cfg := config.TelemetryConfig{
		Enabled:         true,
		Endpoint:        "localhost:14317",
		Protocol:        "grpc",
		Insecure:        true,
		SamplingRate:    1.0,
		MetricsInterval: time.Minute,
	}

	tel := New(context.Background(), cfg, "test", nil)
	require.NotNil(t, tel)
	assert.NotNil(t, tel.tracerProvider)
	assert.NotNil(t, tel.meterProvider)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = tel.Shutdown(ctx)
}

func TestShutdownNil(t *testing.T) {
	var tel *Telemetry
	assert.NoError(t, tel.Shutdown(context.Background()))
}
