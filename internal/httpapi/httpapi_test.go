package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Guizzs26/gcm-presence/internal/auth"
	"github.com/Guizzs26/gcm-presence/internal/catalog"
	"github.com/Guizzs26/gcm-presence/internal/clock"
	"github.com/Guizzs26/gcm-presence/internal/dashboard"
	"github.com/Guizzs26/gcm-presence/internal/projection"
	"github.com/Guizzs26/gcm-presence/internal/reset"
	"github.com/Guizzs26/gcm-presence/internal/service"
	"github.com/Guizzs26/gcm-presence/internal/store"
	"github.com/Guizzs26/gcm-presence/pkg/infra"
)

var (
	hashOnce             sync.Once
	macro1Hash, rootHash string
)

func hashes(t *testing.T) (string, string) {
	t.Helper()
	hashOnce.Do(func() {
		var err error
		macro1Hash, err = auth.HashPassword("leste")
		require.NoError(t, err)
		rootHash, err = auth.HashPassword("root")
		require.NoError(t, err)
	})
	return macro1Hash, rootHash
}

type onlineBroker bool

func (b onlineBroker) Online() bool { return bool(b) }

type testServer struct {
	handler http.Handler
	store   *store.MemoryStore
	proj    *projection.Projection
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	c, err := catalog.Default()
	require.NoError(t, err)
	cal, err := clock.Fixed("America/Sao_Paulo", time.Date(2024, 3, 11, 13, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	paths := store.NewPaths("gcm")
	st := store.NewMemoryStore()
	proj := projection.New(infra.NopLogger())
	unsub, err := st.Subscribe(context.Background(), paths.Posts(), proj.Apply)
	require.NoError(t, err)
	t.Cleanup(unsub)

	regionHash, adminHash := hashes(t)
	builder := dashboard.NewBuilder(c, cal)
	services := Services{
		Presence:  service.NewPresenceService(st, proj, nil, c, cal, paths, infra.NopLogger()),
		Records:   proj,
		Reset:     reset.New(st, paths, cal, infra.NopLogger()),
		Gate:      auth.NewGate(map[string]string{"MACRO1": regionHash}, adminHash),
		Catalog:   c,
		Dashboard: builder,
		Export:    dashboard.NewExporter(builder, infra.NopLogger()),
		Broker:    onlineBroker(false),
	}
	return testServer{handler: NewRouter(services, infra.NopLogger()), store: st, proj: proj}
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	buf := &bytes.Buffer{}
	if body != nil {
		require.NoError(t, json.NewEncoder(buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

var leste = map[string]string{regionPasswordHeader: "leste"}

func markBody(post, insp string) map[string]any {
	return map[string]any{"healthCenterId": post, "warName": "Silva", "rank": "GCM1", "inspectorateId": insp}
}

func TestHealthAndCatalog(t *testing.T) {
	ts := newTestServer(t)

	rr := doJSON(t, ts.handler, http.MethodPost, "/api/v1/presence", markBody("hc1", "insp1"), leste)
	require.Equal(t, http.StatusCreated, rr.Code)
	require.NoError(t, ts.store.WriteMerge(context.Background(), store.NewPaths("gcm").Posts(), "hc2", map[string]any{"warName": "Lima"}))

	rr = doJSON(t, ts.handler, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var health struct {
		Reset      string `json:"reset"`
		Broker     string `json:"broker"`
		Projection struct {
			Records  int    `json:"records"`
			Version  uint64 `json:"version"`
			Rejected int    `json:"rejected"`
		} `json:"projection"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &health))
	assert.Equal(t, "UNKNOWN", health.Reset)
	assert.Equal(t, "offline", health.Broker)
	assert.Equal(t, 1, health.Projection.Records)
	assert.Equal(t, 1, health.Projection.Rejected, "hc2 has no rank")
	assert.Equal(t, ts.proj.Version(), health.Projection.Version)

	rr = doJSON(t, ts.handler, http.MethodGet, "/api/v1/catalog", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var cat catalogView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &cat))
	require.Len(t, cat.Regions, 3)
	assert.Len(t, cat.Posts, 13)
	require.Len(t, cat.Ranks, 6)

	writable := map[string]bool{}
	for _, rg := range cat.Regions {
		writable[rg.ID] = rg.Writable
	}
	assert.Equal(t, map[string]bool{"MACRO1": true, "MACRO2": false, "MACRO3": false}, writable)
	assert.Equal(t, 0, cat.Ranks[0].Seniority)
	assert.Equal(t, 5, cat.Ranks[5].Seniority)
}

func TestMark_PasswordGate(t *testing.T) {
	ts := newTestServer(t)
	body := markBody("hc1", "insp1")

	rr := doJSON(t, ts.handler, http.MethodPost, "/api/v1/presence", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = doJSON(t, ts.handler, http.MethodPost, "/api/v1/presence", body, map[string]string{regionPasswordHeader: "oeste"})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = doJSON(t, ts.handler, http.MethodPost, "/api/v1/presence", markBody("hc9", "insp5"), leste)
	assert.Equal(t, http.StatusForbidden, rr.Code, "MACRO3 has no password configured")

	assert.Zero(t, ts.proj.Len())

	rr = doJSON(t, ts.handler, http.MethodPost, "/api/v1/presence", body, leste)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, 1, ts.proj.Len())
}

func TestMark_Validation(t *testing.T) {
	ts := newTestServer(t)

	rr := doJSON(t, ts.handler, http.MethodPost, "/api/v1/presence", markBody("hc99", "insp1"), leste)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = doJSON(t, ts.handler, http.MethodPost, "/api/v1/presence", markBody("hc1", "insp2"), leste)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = doJSON(t, ts.handler, http.MethodPost, "/api/v1/presence", map[string]any{"healthCenterId": "hc1", "extra": 1}, leste)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUpdateAndRemove(t *testing.T) {
	ts := newTestServer(t)

	rr := doJSON(t, ts.handler, http.MethodPost, "/api/v1/presence", markBody("hc2", "insp1"), leste)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = doJSON(t, ts.handler, http.MethodPut, "/api/v1/presence/hc2", map[string]any{"rank": "GCMD", "psus": true}, leste)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	got, ok := ts.proj.Get("hc2")
	require.True(t, ok)
	assert.Equal(t, "GCMD", string(got.Rank))
	assert.True(t, got.PSUS)

	rr = doJSON(t, ts.handler, http.MethodPut, "/api/v1/presence/hc5", map[string]any{"psus": true}, leste)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doJSON(t, ts.handler, http.MethodDelete, "/api/v1/presence/hc2", nil, leste)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Zero(t, ts.proj.Len())

	rr = doJSON(t, ts.handler, http.MethodDelete, "/api/v1/presence/hc2", nil, leste)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doJSON(t, ts.handler, http.MethodDelete, "/api/v1/presence/nowhere", nil, leste)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDashboardMapAndList(t *testing.T) {
	ts := newTestServer(t)
	rr := doJSON(t, ts.handler, http.MethodPost, "/api/v1/presence", markBody("hc1", "insp1"), leste)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = doJSON(t, ts.handler, http.MethodGet, "/api/v1/dashboard?region=macro1", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var sum dashboard.Summary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sum))
	assert.Equal(t, "MACRO1", sum.Region)
	assert.Equal(t, 1, sum.Present)
	assert.Equal(t, 5, sum.Absent)

	rr = doJSON(t, ts.handler, http.MethodGet, "/api/v1/dashboard?region=MACRO9", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, ts.handler, http.MethodGet, "/api/v1/map", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var pins []dashboard.Pin
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &pins))
	assert.Len(t, pins, 13)

	rr = doJSON(t, ts.handler, http.MethodGet, "/api/v1/presence?region=MACRO2", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var guards []dashboard.GuardView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &guards))
	assert.Empty(t, guards)
}

func TestExport(t *testing.T) {
	ts := newTestServer(t)

	rr := doJSON(t, ts.handler, http.MethodGet, "/api/v1/export.xlsx?region=MACRO1", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "presenca_MACRO1_2024-03-11.xlsx")

	f, err := excelize.OpenReader(rr.Body)
	require.NoError(t, err)
	defer f.Close()
	assert.Contains(t, f.GetSheetList(), "Presença")
}

func TestVerifyRegion(t *testing.T) {
	ts := newTestServer(t)

	rr := doJSON(t, ts.handler, http.MethodPost, "/api/v1/regions/macro1/verify", map[string]string{"password": "leste"}, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, ts.handler, http.MethodPost, "/api/v1/regions/MACRO1/verify", map[string]string{"password": "x"}, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = doJSON(t, ts.handler, http.MethodPost, "/api/v1/regions/MACRO7/verify", map[string]string{"password": "x"}, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestResetEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rr := doJSON(t, ts.handler, http.MethodPost, "/api/v1/reset/check", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = doJSON(t, ts.handler, http.MethodPost, "/api/v1/reset/check", nil, map[string]string{adminPasswordHeader: "leste"})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = doJSON(t, ts.handler, http.MethodPost, "/api/v1/reset/check", nil, map[string]string{adminPasswordHeader: "root"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var res reset.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, reset.OutcomeInitialized, res.Outcome)

	marker, ok, err := ts.store.Get(context.Background(), store.NewPaths("gcm").LastReset())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2024-03-11", marker)

	rr = doJSON(t, ts.handler, http.MethodGet, "/api/v1/reset/status", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var status map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, "VERIFIED_FRESH", status["state"])
	assert.EqualValues(t, 1, status["checks"])
}
