package tracing

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInit_Disabled(t *testing.T) {
	before := otel.GetTracerProvider()
	shutdown, err := Init(false, "test", "")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	assert.Equal(t, before, otel.GetTracerProvider())
}

func TestInit_WritesSpansToFile(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	path := filepath.Join(t.TempDir(), "trace.json")
	shutdown, err := Init(true, "1.2.3", path)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "await_login")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got struct {
		Name     string
		Resource []struct {
			Key   string
			Value struct{ Value any }
		}
	}
	require.NoError(t, json.NewDecoder(bytes.NewReader(data)).Decode(&got))
	assert.Equal(t, "await_login", got.Name)

	attrs := map[string]any{}
	for _, kv := range got.Resource {
		attrs[kv.Key] = kv.Value.Value
	}
	assert.Equal(t, ServiceName, attrs["service.name"])
	assert.Equal(t, "1.2.3", attrs["service.version"])
}

func TestInitWithExporter(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	exp := tracetest.NewInMemoryExporter()
	tp, err := InitWithExporter("dev", exp)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "persist")
	span.End()
	require.NoError(t, tp.ForceFlush(context.Background()))

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "persist", spans[0].Name)
	require.NoError(t, tp.Shutdown(context.Background()))
}

func TestInit_BadPath(t *testing.T) {
	_, err := Init(true, "dev", filepath.Join(t.TempDir(), "missing", "trace.json"))
	assert.Error(t, err)
}
