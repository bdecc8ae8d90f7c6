package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracerProviderInstallsGlobals(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp, err := InitTracerProvider(context.Background(), "petscraper-test", sdktrace.WithSpanProcessor(recorder))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := otel.Tracer("test").Start(context.Background(), "refresh")
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	span.End()

	require.Regexp(t, `^00-[0-9a-f]{32}-[0-9a-f]{16}-01$`, carrier.Get("traceparent"))

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	require.Equal(t, "refresh", ended[0].Name())
	require.Equal(t, "petscraper-test", serviceName(ended[0]))
}

func serviceName(span sdktrace.ReadOnlySpan) string {
	v, _ := span.Resource().Set().Value("service.name")
	return v.AsString()
}
