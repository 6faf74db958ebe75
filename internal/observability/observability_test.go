package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureLogger_AddsContextAttributes(t *testing.T) {
	var buf bytes.Buffer
	ConfigureLogger(&buf, "production", "debug")
	t.Cleanup(func() { ConfigureLogger(&bytes.Buffer{}, "test", "info") })

	ctx := WithStep(WithDeployID(context.Background(), "d-1"), "roles")
	Logger.InfoContext(ctx, "hello")

	out := buf.String()
	assert.Contains(t, out, `"deploy_id":"d-1"`)
	assert.Contains(t, out, `"step":"roles"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestRecordFollowMutation(t *testing.T) {
	before := testutil.ToFloat64(FollowEdgeMutations.WithLabelValues("test_op", "error"))
	RecordFollowMutation("test_op", errors.New("boom"))
	after := testutil.ToFloat64(FollowEdgeMutations.WithLabelValues("test_op", "error"))
	assert.Equal(t, before+1, after)
}

func TestInitTracing_Disabled(t *testing.T) {
	shutdown, err := InitTracing(TracingConfig{ServiceName: "chirp-test"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	span, ctx := NewSpan(context.Background(), "noop")
	span.SetError(errors.New("ignored"))
	span.End()
	assert.NotNil(t, ctx)
}

func TestNewResource_DescribesDeployment(t *testing.T) {
	res, err := newResource(context.Background(), TracingConfig{
		ServiceName:    "chirp",
		ServiceVersion: "1.2.3",
		Environment:    "staging",
		DBDriver:       "postgres",
	})
	require.NoError(t, err)

	attrs := map[string]string{}
	for _, kv := range res.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "chirp", attrs["service.name"])
	assert.Equal(t, "1.2.3", attrs["service.version"])
	assert.Equal(t, "staging", attrs["deployment.environment"])
	assert.Equal(t, "postgres", attrs["chirp.db.driver"])
	assert.NotEmpty(t, attrs["host.name"])
}

func TestNewSampler(t *testing.T) {
	assert.Equal(t, "AlwaysOnSampler", newSampler(1).Description())
	assert.Contains(t, newSampler(0.25).Description(), "ParentBased")
}
