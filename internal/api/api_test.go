package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randomizedcoder/go-sipp-swarm/internal/instance"
	"github.com/randomizedcoder/go-sipp-swarm/internal/parser"
	"github.com/randomizedcoder/go-sipp-swarm/internal/sched"
	"github.com/randomizedcoder/go-sipp-swarm/internal/supervisor"
)

// fakeSIPp emits a stats header with a response time histogram and one
// line every 20ms. STALL=1 makes it never write telemetry.
const fakeSIPp = `#!/usr/bin/env bash
if [ -n "$FAKE_SIPP_STALL" ]; then exec sleep 30; fi
stats="uac_$$_.csv"
counts="uac_$$_counts.csv"
echo "TargetRate;CallRate(P);ResponseTimeRepartition1;<10;<20;>=20;" > "$stats"
echo "CurrentTime;INVITE;" > "$counts"
(
  while true; do
    echo "10;9.5;;1;2;0;" >> "$stats"
    sleep 0.02
  done
) &
writer=$!
trap 'kill $writer 2>/dev/null' EXIT
while IFS= read -r -n1 key; do
  if [ "$key" = "q" ]; then exit 0; fi
done
exec sleep 10
`

type testEnv struct {
	handler  *Handler
	registry *instance.Registry
	removed  []string
}

func newTestEnv(t *testing.T, wait time.Duration) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}

	dir := t.TempDir()
	bin := filepath.Join(dir, "sipp")
	require.NoError(t, os.WriteFile(bin, []byte(fakeSIPp), 0o755))

	s := sched.New(sched.Config{Workers: 8})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := instance.NewRegistry(instance.Options{
		BinaryPath:   bin,
		WorkDir:      dir,
		Version:      parser.Version34,
		Scheduler:    s,
		Logger:       logger,
		StartTimeout: 2 * time.Second,
		Timing: supervisor.Timing{
			FileWait:     time.Second,
			TailInterval: 20 * time.Millisecond,
			StopWait:     2 * time.Second,
		},
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = reg.StopAll(ctx, true)
		_ = s.Close(ctx)
	})

	env := &testEnv{registry: reg}
	env.handler = New(Config{
		Registry: reg,
		Logger:   logger,
		Wait:     wait,
		OnRemove: func(name string) { env.removed = append(env.removed, name) },
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (e *testEnv) create(t *testing.T, spec instance.Spec) instance.Status {
	t.Helper()
	w := e.do(t, http.MethodPost, "/sipp/instances", spec)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[instance.Status](t, w)
}

func path(id string, suffix string) string {
	return "/sipp/instances/" + id + suffix
}

// =============================================================================
// Collection
// =============================================================================

func TestAPI_CreateAndList(t *testing.T) {
	env := newTestEnv(t, 5*time.Second)

	st := env.create(t, instance.Spec{Name: "caller", Scenario: "uac", RemoteHost: "10.0.0.1", InitialRate: 5})
	assert.Equal(t, "caller", st.Name)
	assert.Equal(t, "created", st.State)
	assert.Contains(t, st.Command, "-r 5")
	assert.Contains(t, st.Command, "10.0.0.1:5060")

	w := env.do(t, http.MethodGet, "/sipp/instances", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]instance.Status](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, st.ID, list[0].ID)

	w = env.do(t, http.MethodGet, path(st.ID, ""), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "caller", decode[instance.Status](t, w).Name)
}

func TestAPI_CreateInvalid(t *testing.T) {
	env := newTestEnv(t, time.Second)

	w := env.do(t, http.MethodPost, "/sipp/instances", map[string]any{"rate": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/sipp/instances", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, env.registry.Len())
}

func TestAPI_UnknownInstance(t *testing.T) {
	env := newTestEnv(t, time.Second)

	for _, p := range []string{
		path("nope", ""),
		path("2b7f7a7e-0000-4000-8000-000000000000", "/stats"),
	} {
		w := env.do(t, http.MethodGet, p, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, p)
		assert.Contains(t, decode[errorResponse](t, w).Error, "not found")
	}
}

// =============================================================================
// Lifecycle
// =============================================================================

func TestAPI_NotStartedConflicts(t *testing.T) {
	env := newTestEnv(t, time.Second)
	st := env.create(t, instance.Spec{Scenario: "uac", RemoteHost: "127.0.0.1"})

	tests := []struct {
		method string
		suffix string
		body   any
	}{
		{http.MethodGet, "/rate", nil},
		{http.MethodPut, "/rate", RateRequest{Rate: ptr(5)}},
		{http.MethodPost, "/rate/increase10", nil},
		{http.MethodPost, "/rate/decrease10", nil},
		{http.MethodPost, "/pause", nil},
		{http.MethodPost, "/stop", nil},
		{http.MethodGet, "/stats", nil},
		{http.MethodDelete, "/files", nil},
	}
	for _, tt := range tests {
		t.Run(tt.method+tt.suffix, func(t *testing.T) {
			w := env.do(t, tt.method, path(st.ID, tt.suffix), tt.body)
			assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())
		})
	}
}

func TestAPI_FullLifecycle(t *testing.T) {
	env := newTestEnv(t, 5*time.Second)
	st := env.create(t, instance.Spec{Name: "uac-a", Scenario: "uac", RemoteHost: "127.0.0.1"})

	w := env.do(t, http.MethodPost, path(st.ID, "/start"), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "running", decode[instance.Status](t, w).State)

	require.Eventually(t, func() bool {
		w := env.do(t, http.MethodGet, path(st.ID, "/rate"), nil)
		return w.Code == http.StatusOK && decode[RateResponse](t, w).Rate == 10
	}, 5*time.Second, 20*time.Millisecond)

	w = env.do(t, http.MethodGet, path(st.ID, "/rate"), nil)
	assert.Equal(t, 9.5, decode[RateResponse](t, w).CurrentRate)

	w = env.do(t, http.MethodGet, path(st.ID, "/stats"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[StatsResponse](t, w)
	assert.Equal(t, 10, stats.TargetRate)
	require.Len(t, stats.ResponseTimes, 3)
	assert.Equal(t, 2, stats.ResponseTimes[1].Count)
	assert.Empty(t, stats.CallLengths)

	for _, suffix := range []string{"/rate/increase10", "/rate/decrease10", "/pause"} {
		w = env.do(t, http.MethodPost, path(st.ID, suffix), nil)
		assert.Equal(t, http.StatusOK, w.Code, suffix)
	}
	w = env.do(t, http.MethodPut, path(st.ID, "/rate"), RateRequest{Rate: ptr(12)})
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPut, path(st.ID, "/rate"), map[string]int{"rate": -4})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodDelete, path(st.ID, ""), nil)
	assert.Equal(t, http.StatusConflict, w.Code, "remove while running")
	w = env.do(t, http.MethodDelete, path(st.ID, "/files"), nil)
	assert.Equal(t, http.StatusConflict, w.Code, "cleanup while running")

	w = env.do(t, http.MethodPost, path(st.ID, "/stop?force=maybe"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, path(st.ID, "/stop"), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "stopped", decode[instance.Status](t, w).State)

	w = env.do(t, http.MethodDelete, path(st.ID, "/files"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[CleanUpResponse](t, w).Removed)

	w = env.do(t, http.MethodDelete, path(st.ID, ""), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"uac-a"}, env.removed)
	assert.Equal(t, 0, env.registry.Len())
}

func TestAPI_StartTimeout(t *testing.T) {
	env := newTestEnv(t, 200*time.Millisecond)
	t.Setenv("FAKE_SIPP_STALL", "1")
	st := env.create(t, instance.Spec{Scenario: "uac", RemoteHost: "127.0.0.1"})

	w := env.do(t, http.MethodPost, path(st.ID, "/start"), nil)
	assert.Equal(t, http.StatusGatewayTimeout, w.Code, w.Body.String())
}

func TestAPI_StartFailure(t *testing.T) {
	env := newTestEnv(t, 5*time.Second)
	t.Setenv("FAKE_SIPP_STALL", "1")
	st := env.create(t, instance.Spec{Scenario: "uac", RemoteHost: "127.0.0.1"})

	// The worker gives up after FileWait, well within the request wait.
	w := env.do(t, http.MethodPost, path(st.ID, "/start"), nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, path(st.ID, ""), nil)
	got := decode[instance.Status](t, w)
	assert.Equal(t, "failed", got.State)
	assert.NotEmpty(t, got.LastError)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{instance.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("wrap: %w", instance.ErrInvalidSpec), http.StatusBadRequest},
		{supervisor.ErrInvalidRate, http.StatusBadRequest},
		{instance.ErrNotStarted, http.StatusConflict},
		{instance.ErrStillRunning, http.StatusConflict},
		{supervisor.ErrNotRunning, http.StatusConflict},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{supervisor.ErrExitedEarly, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func ptr(n int) *int { return &n }
