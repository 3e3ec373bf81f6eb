package observability

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetupTracingWritesSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	shutdown, err := SetupTracing(&buf)
	require.NoError(t, err)

	_, span := Tracer().Start(context.Background(), "ising.test")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, buf.String(), `"Name":"ising.test"`)
}
