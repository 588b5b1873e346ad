package observability

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitOTel_Disabled(t *testing.T) {
	ctx := context.Background()
	logger := NewLogger(InfoLevel, &bytes.Buffer{})

	providers, err := InitOTel(ctx, OTelConfig{Enabled: false}, logger)

	assert.NoError(t, err)
	assert.Nil(t, providers)
}

// ShutdownOTel is called unconditionally on exit, including when telemetry
// was never enabled.
func TestShutdownOTel_NilProviders(t *testing.T) {
	logger := NewLogger(InfoLevel, &bytes.Buffer{})

	assert.NoError(t, ShutdownOTel(context.Background(), nil, logger))
}

// OTLP exporters do not dial at creation time, so initialization succeeds
// without a collector and shutdown flushes cleanly.
func TestInitOTel_ShutdownFlushes(t *testing.T) {
	ctx := context.Background()
	logger := NewLogger(InfoLevel, &bytes.Buffer{})

	providers, err := InitOTel(ctx, OTelConfig{
		Enabled:        true,
		Endpoint:       "localhost:4317",
		ServiceName:    "registry-aggregator-test",
		ServiceVersion: "0.0.0",
		Insecure:       true,
	}, logger)
	require.NoError(t, err)
	require.NotNil(t, providers)
	require.NotNil(t, providers.TracerProvider)
	require.NotNil(t, providers.MeterProvider)

	// No collector is listening, so the final export may error; shutdown
	// must still return once the flush attempt finishes.
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_ = ShutdownOTel(shutdownCtx, providers, logger)
}
