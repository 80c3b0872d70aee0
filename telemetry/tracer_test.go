package telemetry

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTracerWithWriter(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	shutdown, err := InitTracerWithWriter("receiptd-test", &buf, log.New(io.Discard))
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "purchase.SubmitReceipt")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "purchase.SubmitReceipt")
	assert.Contains(t, buf.String(), "receiptd-test")
}
