package server

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"chirp/internal/config"
	"chirp/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/pprof/profile"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readJSON(t *testing.T, body io.Reader) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(body).Decode(&out))
	return out
}

func TestServer_HealthEndpoints(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	s := NewServer(&config.Config{Port: "0"}, db, nil)

	resp, err := s.App().Test(httptest.NewRequest("GET", "/health/live", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	resp, err = s.App().Test(httptest.NewRequest("GET", "/health/ready", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	body := readJSON(t, resp.Body)
	checks := body["checks"].(map[string]any)
	assert.Equal(t, "healthy", checks["database"])
	assert.Equal(t, "disabled", checks["redis"])
}

func TestServer_ReadinessFailsWhenRedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	s := NewServer(&config.Config{Port: "0"}, testutil.NewSQLiteDB(t), rdb)
	resp, err := s.App().Test(httptest.NewRequest("GET", "/health/ready", nil), 10000)
	require.NoError(t, err)
	assert.Equal(t, 503, resp.StatusCode)
}

func TestServer_MetricsAndPprof(t *testing.T) {
	s := NewServer(&config.Config{Port: "0"}, testutil.NewSQLiteDB(t), nil)

	_, err := s.App().Test(httptest.NewRequest("GET", "/health/live", nil))
	require.NoError(t, err)

	resp, err := s.App().Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "http_requests_total")

	resp, err = s.App().Test(httptest.NewRequest("GET", "/debug/pprof/", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestTopFunctions(t *testing.T) {
	fnA := &profile.Function{ID: 1, Name: "chirp/internal/reconcile.PlanRoles"}
	fnB := &profile.Function{ID: 2, Name: "runtime.mallocgc"}
	locA := &profile.Location{ID: 1, Line: []profile.Line{{Function: fnA}}}
	locB := &profile.Location{ID: 2, Line: []profile.Line{{Function: fnB}}}

	prof := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "samples", Unit: "count"}, {Type: "cpu", Unit: "nanoseconds"}},
		Sample: []*profile.Sample{
			{Location: []*profile.Location{locA}, Value: []int64{1, 10}},
			{Location: []*profile.Location{locB, locA}, Value: []int64{1, 30}},
			{Location: []*profile.Location{locA}, Value: []int64{1, 5}},
		},
	}

	top := TopFunctions(prof, 1)
	require.Len(t, top, 1)
	assert.Equal(t, "runtime.mallocgc", top[0].Name)
	assert.EqualValues(t, 30, top[0].Flat)

	all := TopFunctions(prof, 0)
	require.Len(t, all, 2)
	assert.EqualValues(t, 15, all[1].Flat)
}

func TestCPUProfiler_WritesFile(t *testing.T) {
	dir := t.TempDir()
	p, err := StartCPUProfile(dir)
	require.NoError(t, err)

	x := 0
	for i := 0; i < 1_000_000; i++ {
		x += i % 7
	}
	_ = x

	_, err = p.Stop(5)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p.Path(), dir))
	info, err := os.Stat(p.Path())
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}
