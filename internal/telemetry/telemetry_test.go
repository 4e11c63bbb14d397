package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

func TestNewResource(t *testing.T) {
	t.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment=test")

	res, err := newResource(context.Background(), "tlsbox", "1.2.3")
	require.NoError(t, err)

	attrs := map[string]string{}
	for _, kv := range res.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}

	require.Equal(t, "tlsbox", attrs[string(semconv.ServiceNameKey)])
	require.Equal(t, "1.2.3", attrs[string(semconv.ServiceVersionKey)])
	require.Equal(t, "test", attrs["deployment.environment"])
	require.Contains(t, attrs, string(semconv.OSTypeKey))
	require.Contains(t, attrs, string(semconv.HostNameKey))
}
