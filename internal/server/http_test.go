package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/antscale/antscale/internal/core/compute"
	"github.com/antscale/antscale/internal/core/lod"
	"github.com/antscale/antscale/internal/core/observability/log"
	"github.com/antscale/antscale/internal/core/scaling"
)

func newTestServer(t *testing.T) *StatusServer {
	t.Helper()
	lg := log.Nop()
	engine := lod.NewEngine(lod.DefaultTierSet(), lod.EngineConfig{}, lg)
	coord := compute.NewCoordinator(context.Background(), compute.Capabilities{Accelerator: true, MaxConcurrent: 2}, compute.CoordinatorConfig{}, lg)
	t.Cleanup(func() { _ = coord.Close() })
	scaler, err := scaling.NewAutoScaler(scaling.Config{}, nil, scaling.PresetBalanced, engine, coord, nil, lg)
	require.NoError(t, err)
	return NewStatusServer(scaler, coord, engine, lg)
}

func doJSON(t *testing.T, s *StatusServer, method, path, body string, out any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec
}

func TestStatusEndpoint(t *testing.T) {
	s := newTestServer(t)

	var resp statusResponse
	rec := doJSON(t, s, http.MethodGet, "/status", "", &resp)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Equal(t, scaling.PresetBalanced, resp.Scaler.Preset)
	require.Equal(t, 1.0, resp.Scaler.Factor)
	require.NotNil(t, resp.Capacities)

	rec = doJSON(t, s, http.MethodPost, "/status", "", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestPresetsEndpoint(t *testing.T) {
	s := newTestServer(t)

	var got map[string]any
	rec := doJSON(t, s, http.MethodGet, "/presets", "", &got)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "balanced", got["active"])

	var st scaling.Status
	rec = doJSON(t, s, http.MethodPut, "/presets", `{"preset":"performance"}`, &st)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, scaling.PresetPerformance, st.Preset)

	rec = doJSON(t, s, http.MethodPut, "/presets", `{"preset":"potato"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodPut, "/presets", `{not json`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPresetsEndpoint_AutoAndNudge(t *testing.T) {
	s := newTestServer(t)

	var st scaling.Status
	rec := doJSON(t, s, http.MethodPost, "/presets", `{"auto":false,"nudge":-1,"step":0.2}`, &st)
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, st.AutoEnabled)
	require.InDelta(t, 0.8, st.Factor, 1e-9)
}

func TestCapabilitiesEndpoint(t *testing.T) {
	s := newTestServer(t)

	var caps compute.Capabilities
	rec := doJSON(t, s, http.MethodGet, "/capabilities", "", &caps)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, caps.Accelerator)
	require.Equal(t, 2, caps.MaxConcurrent)
}

func TestActionsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.scaler.Nudge(-1, 0.1)

	var actions []scaling.Action
	rec := doJSON(t, s, http.MethodGet, "/scaling/actions", "", &actions)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, actions, 1)
	require.Equal(t, "manual-nudge", actions[0].Action)
}

func TestUnknownPathIs404(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/nope", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartStopLifecycle(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	require.ErrorIs(t, s.Stop(ctx), ErrServerNotRunning)

	require.NoError(t, s.Start(ctx, "127.0.0.1:0"))
	require.ErrorIs(t, s.Start(ctx, "127.0.0.1:0"), ErrServerAlreadyRunning)
	require.NoError(t, s.Stop(ctx))
	require.ErrorIs(t, s.Stop(ctx), ErrServerNotRunning)
}
