package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrader/internal/engine"
)

type stubStatus struct{ st engine.Status }

func (s stubStatus) Status() engine.Status { return s.st }

func newTestServer(t *testing.T, st engine.Status) (*Server, *httptest.Server) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.PushInterval = 20 * time.Millisecond
	s := New(cfg, stubStatus{st: st}, nil, nil)
	ts := httptest.NewServer(s.httpSrv.Handler)
	t.Cleanup(ts.Close)
	return s, ts
}

func runningStatus() engine.Status {
	return engine.Status{
		State:        engine.StateRunning,
		Mode:         engine.ModePaper,
		StartTime:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Uptime:       90 * time.Second,
		ActiveOrders: 2,
		TotalTrades:  7,
		Balance:      9950.5,
		DailyPnL:     -49.5,
	}
}

func TestHealthz(t *testing.T) {
	_, ts := newTestServer(t, runningStatus())

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatusEndpoint(t *testing.T) {
	_, ts := newTestServer(t, runningStatus())

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got wireStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "running", got.State)
	assert.Equal(t, "paper", got.Mode)
	assert.Equal(t, 90.0, got.UptimeSecs)
	assert.Equal(t, 2, got.ActiveOrders)
	assert.Equal(t, int64(7), got.TotalTrades)
	assert.Equal(t, 9950.5, got.Balance)
	assert.Equal(t, -49.5, got.DailyPnL)
	assert.Equal(t, "2024-03-01T12:00:00Z", got.StartTime)
}

func TestMetricsDisabledWithoutHandler(t *testing.T) {
	_, ts := newTestServer(t, runningStatus())

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebsocketStatusPush(t *testing.T) {
	s, ts := newTestServer(t, runningStatus())
	go s.pushLoop()
	defer func() {
		close(s.stopPush)
		<-s.pushDone
	}()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var got wireStatus
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, "running", got.State)
	assert.Equal(t, 2, got.ActiveOrders)
}
