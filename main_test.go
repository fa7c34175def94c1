package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := run(context.Background(), args, &out, &errOut)
	return out.String(), err
}

func TestDemo(t *testing.T) {
	out, err := execute(t, "demo", "--strategy", "batch-merge", "--customers", "6", "--left", "--batch-size", "2")
	require.NoError(t, err)

	assert.Contains(t, out, "batch-merge")
	assert.Contains(t, out, "BatchMergeJoin#0")
	assert.Contains(t, out, "orders(customer_id) ordered")
	assert.Contains(t, out, "customer-006")
	// nine orders plus customer 4 without any
	assert.Contains(t, out, "10 rows in")
}

func TestDemo_ParallelWithCache(t *testing.T) {
	out, err := execute(t, "demo", "--customers", "10", "--parallel", "--cache", "--populate")
	require.NoError(t, err)
	assert.Contains(t, out, "BatchParallel#0 [parallel]")
	assert.Contains(t, out, "BatchCache#4 [cache]")
}

func TestDemo_UnknownStrategy(t *testing.T) {
	_, err := execute(t, "demo", "--strategy", "sort-merge")
	assert.ErrorContains(t, err, "unknown strategy")
}

func TestCompare(t *testing.T) {
	out, err := execute(t, "compare", "--customers", "12", "--iterations", "2", "--populate")
	require.NoError(t, err)
	for _, s := range []string{"nested", "hash", "batch-hash", "batch-merge", "agrees"} {
		assert.Contains(t, out, s)
	}
	assert.NotContains(t, out, "false")
}

func TestCompare_JSON(t *testing.T) {
	out, err := execute(t, "compare", "--customers", "5", "--iterations", "1", "--json")
	require.NoError(t, err)

	var report struct {
		Timings []struct {
			Strategy string `json:"strategy"`
			Rows     int    `json:"rows"`
		} `json:"timings"`
	}
	require.NoError(t, jsoniter.UnmarshalFromString(out, &report))
	require.Len(t, report.Timings, 4)
	for _, timing := range report.Timings {
		assert.Equal(t, report.Timings[0].Rows, timing.Rows, timing.Strategy)
	}
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("parallel:\n  workers: 0\n"), 0o600))

	_, err := execute(t, "--config", path, "demo")
	assert.ErrorContains(t, err, "parallel.workers")
}

func TestMetricsExporter(t *testing.T) {
	a := &app{}
	root := newRootCmd(a)
	root.SetArgs([]string{"--metrics-addr", "127.0.0.1:0", "demo", "--customers", "3"})
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	defer func() { assert.NoError(t, a.teardown()) }()
	require.NoError(t, root.ExecuteContext(context.Background()))

	require.NotNil(t, a.session.Metrics)
	rec := httptest.NewRecorder()
	a.session.Metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "payloadbuilder_queries_total")
}
