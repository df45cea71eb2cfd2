package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/GriffinCanCode/AgentOS/remote/internal/domain/browsercontext"
	"github.com/GriffinCanCode/AgentOS/remote/internal/domain/target"
	"github.com/GriffinCanCode/AgentOS/remote/internal/engine"
	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/remote/internal/testutil"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixedConnections int

func (f fixedConnections) Connections() int { return int(f) }

type fixture struct {
	eng      *testutil.Engine
	contexts *browsercontext.Registry
	metrics  *monitoring.Metrics
	router   *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	eng := testutil.NewEngine()
	contexts, err := browsercontext.NewRegistry(eng, "http-context-", zap.NewNop())
	require.NoError(t, err)
	targets := target.NewRegistry(eng, contexts, zap.NewNop())
	t.Cleanup(targets.Close)

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)
	router := gin.New()
	NewHandlers(Options{
		Engine:        eng,
		Targets:       targets,
		Contexts:      contexts,
		Connections:   fixedConnections(2),
		Metrics:       metrics,
		Gatherer:      reg,
		WebSocketPath: "/devtools/browser",
	}).Register(router)
	return &fixture{eng: eng, contexts: contexts, metrics: metrics, router: router}
}

func (f *fixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Host = "localhost:9222"
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestVersion(t *testing.T) {
	f := newFixture(t)
	w := f.get(t, "/json/version")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"Browser": "Fake/1.0",
		"Protocol-Version": "1.0",
		"User-Agent": "Mozilla/5.0 Fake/1.0",
		"webSocketDebuggerUrl": "ws://localhost:9222/devtools/browser"
	}`, w.Body.String())
}

func TestListReturnsPagesOnly(t *testing.T) {
	f := newFixture(t)
	contextID, err := f.contexts.Create()
	require.NoError(t, err)
	partition, err := f.contexts.ResolvePartition(contextID)
	require.NoError(t, err)

	first, err := f.eng.OpenTab(context.Background(), engine.DefaultPartition)
	require.NoError(t, err)
	f.eng.Navigate(first, "https://example.com/")
	_, err = f.eng.OpenTab(context.Background(), partition)
	require.NoError(t, err)

	w := f.get(t, "/json/list")
	require.Equal(t, http.StatusOK, w.Code)
	var pages []PageInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pages))
	require.Len(t, pages, 2)
	assert.Equal(t, PageInfo{ID: "target-page-1", Type: "page", URL: "https://example.com/"}, pages[0])
	assert.Equal(t, "target-page-2", pages[1].ID)
	assert.Equal(t, contextID, pages[1].BrowserContextID)

	assert.JSONEq(t, w.Body.String(), f.get(t, "/json").Body.String())
}

func TestListIsEmptyArray(t *testing.T) {
	f := newFixture(t)
	w := f.get(t, "/json/list")
	assert.Equal(t, "[]", w.Body.String())
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	w := f.get(t, "/health")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(2), body["connections"])
	assert.Equal(t, float64(1), body["targets"])
}

func TestMetricsEndpoints(t *testing.T) {
	f := newFixture(t)
	f.metrics.RecordCall("Browser.getInfo", "", 0)

	w := f.get(t, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `method="Browser.getInfo"`)

	w = f.get(t, "/metrics/json")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Protocol monitoring.Snapshot `json:"protocol"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(1), body.Protocol.Calls)
}
