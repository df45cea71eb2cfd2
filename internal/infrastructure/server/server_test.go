package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/remote/internal/testutil"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	cfg := config.Default()
	cfg.Server.Port = "0"
	cfg.Browser.ProfileDir = t.TempDir()
	cfg.RateLimit.Enabled = false

	reg := prometheus.NewRegistry()
	srv, err := NewServer(cfg, logging.NewNop(), Options{
		Engine:     testutil.NewEngine(),
		Registerer: reg,
		Gatherer:   reg,
	})
	require.NoError(t, err)

	httpSrv := httptest.NewServer(srv.Handler())
	t.Cleanup(httpSrv.Close)
	return srv, httpSrv
}

func TestDiscoveryAndControlShareRouter(t *testing.T) {
	srv, httpSrv := newTestServer(t)
	defer srv.Close(context.Background())

	resp, err := http.Get(httpSrv.URL + "/json/version")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var version struct {
		URL string `json:"webSocketDebuggerUrl"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&version))
	assert.True(t, strings.HasSuffix(version.URL, WebSocketPath), version.URL)

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + WebSocketPath
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"id":7,"method":"Browser.getInfo"}`)))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, reply, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(reply), `"id":7`)
	assert.Contains(t, string(reply), `"result"`)
}

func TestCloseQuitsBrowser(t *testing.T) {
	srv, _ := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, srv.Close(ctx))

	select {
	case <-srv.Done():
	default:
		t.Fatal("browser still running after Close")
	}
}

func TestBrowserCloseEndsServer(t *testing.T) {
	srv, httpSrv := newTestServer(t)
	defer srv.Close(context.Background())

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + WebSocketPath
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"id":1,"method":"Browser.close"}`)))
	select {
	case <-srv.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("Browser.close did not stop the browser")
	}
}
