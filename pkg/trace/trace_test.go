package trace

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type cfgWithMap struct {
	M StringMap `yaml:"m"`
}

func TestStringMapUnmarshalYAML_VariousFormats(t *testing.T) {
	t.Run("empty string", func(t *testing.T) {
		var c cfgWithMap
		require.NoError(t, yaml.Unmarshal([]byte("m: ''\n"), &c))
		require.NotNil(t, c.M)
		require.Len(t, c.M, 0)
	})

	t.Run("json string", func(t *testing.T) {
		var c cfgWithMap
		require.NoError(t, yaml.Unmarshal([]byte("m: '{\"k1\":\"v1\",\"k2\":\"v2\"}'\n"), &c))
		require.Equal(t, StringMap{"k1": "v1", "k2": "v2"}, c.M)
	})

	t.Run("csv string", func(t *testing.T) {
		var c cfgWithMap
		require.NoError(t, yaml.Unmarshal([]byte("m: 'a=1, b=2, c = 3'\n"), &c))
		require.Equal(t, StringMap{"a": "1", "b": "2", "c": "3"}, c.M)
	})

	t.Run("yaml map", func(t *testing.T) {
		var c cfgWithMap
		require.NoError(t, yaml.Unmarshal([]byte("m:\n  x: 10\n  y: true\n  z: val\n"), &c))
		require.Equal(t, StringMap{"x": "10", "y": "true", "z": "val"}, c.M)
	})

	t.Run("bad pair", func(t *testing.T) {
		var c cfgWithMap
		require.Error(t, yaml.Unmarshal([]byte("m: 'novalue'\n"), &c))
	})
}

// keepExporter retains finished spans across provider shutdown
type keepExporter struct {
	*tracetest.InMemoryExporter
}

func (keepExporter) Shutdown(context.Context) error { return nil }

// swapConstructors replaces the exporter factories for one test
func swapConstructors(t *testing.T, exp sdktrace.SpanExporter, expErr error) {
	t.Helper()
	origRes, origHTTP, origGRPC := newResource, newHTTPExporter, newGRPCExporter
	prevProvider := otel.GetTracerProvider()
	t.Cleanup(func() {
		newResource, newHTTPExporter, newGRPCExporter = origRes, origHTTP, origGRPC
		otel.SetTracerProvider(prevProvider)
	})
	newResource = func(ctx context.Context, _ ...resource.Option) (*resource.Resource, error) {
		return resource.Empty(), nil
	}
	newHTTPExporter = func(ctx context.Context, _ ...otlptracehttp.Option) (sdktrace.SpanExporter, error) {
		return exp, expErr
	}
	newGRPCExporter = func(ctx context.Context, _ ...otlptracegrpc.Option) (sdktrace.SpanExporter, error) {
		return exp, expErr
	}
}

func TestInitTracing_Disabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), &Config{}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	shutdown, err = InitTracing(context.Background(), nil, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, shutdown)
}

func TestInitTracing_Protocols(t *testing.T) {
	for _, protocol := range []string{"http", "grpc", ""} {
		t.Run("protocol="+protocol, func(t *testing.T) {
			exp := keepExporter{tracetest.NewInMemoryExporter()}
			swapConstructors(t, exp, nil)

			shutdown, err := InitTracing(context.Background(), &Config{
				Enabled:     true,
				Protocol:    protocol,
				Insecure:    true,
				SamplerRate: 1,
				Headers:     StringMap{"x-test": "1"},
			}, zap.NewNop())
			require.NoError(t, err)

			scope := Tracer("test").Start(context.Background(), "op")
			scope.End()
			require.NoError(t, shutdown(context.Background()))
			assert.Len(t, exp.GetSpans(), 1)
		})
	}
}

func TestInitTracing_Errors(t *testing.T) {
	t.Run("resource", func(t *testing.T) {
		swapConstructors(t, nil, nil)
		newResource = func(ctx context.Context, _ ...resource.Option) (*resource.Resource, error) {
			return nil, errors.New("boom")
		}
		shutdown, err := InitTracing(context.Background(), &Config{Enabled: true}, zap.NewNop())
		require.Error(t, err)
		assert.Nil(t, shutdown)
		assert.Contains(t, err.Error(), "create resource")
	})

	t.Run("exporter", func(t *testing.T) {
		swapConstructors(t, nil, errors.New("dial failed"))
		shutdown, err := InitTracing(context.Background(), &Config{Enabled: true, Protocol: "http"}, zap.NewNop())
		require.Error(t, err)
		assert.Nil(t, shutdown)
		assert.Contains(t, err.Error(), "create exporter")
	})
}

func TestClampRate(t *testing.T) {
	assert.Equal(t, 0.0, clampRate(-1.5))
	assert.Equal(t, 0.7, clampRate(0.7))
	assert.Equal(t, 1.0, clampRate(2.5))
}

func TestEndpointSchemes(t *testing.T) {
	assert.Equal(t, "localhost:4317", stripScheme("http://localhost:4317"))
	assert.Equal(t, "localhost:4317", stripScheme("localhost:4317"))
	assert.Equal(t, "http://collector:4318", withScheme("collector:4318", true))
	assert.Equal(t, "https://collector:4318", withScheme("collector:4318", false))
	assert.Equal(t, "http://x:1", withScheme("http://x:1", false))
}

func TestSpanScope_RecordsAttrsAndErrors(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	scope := Tracer("trace-test").Start(context.Background(), "op")
	assert.NotEmpty(t, TraceID(scope.Ctx))
	scope.WithAttrs(attribute.String("k", "v")).Fail(errors.New("bad")).Fail(nil)
	scope.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String("k", "v"))
	assert.Len(t, spans[0].Events(), 1)
}

func TestSpanScope_NilSafety(t *testing.T) {
	var nilScope *SpanScope
	assert.Nil(t, nilScope.WithAttrs(attribute.String("k", "v")))
	assert.Nil(t, nilScope.Fail(errors.New("x")))
	nilScope.End()

	scope := &SpanScope{Ctx: context.Background()}
	assert.Equal(t, scope, scope.WithAttrs(attribute.String("k", "v")))
	scope.End()
	assert.Empty(t, TraceID(context.Background()))
}
