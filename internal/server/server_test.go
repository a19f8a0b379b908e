package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpalmerr/playerwatch"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeController implements Controller for testing.
type fakeController struct {
	mu       sync.Mutex
	report   playerwatch.Report
	startErr error
	stopErr  error
	setErr   error
	setCalls []string

	subscribers map[chan playerwatch.ChangeEvent]struct{}
}

func newFakeController() *fakeController {
	return &fakeController{
		report:      playerwatch.Report{Status: playerwatch.Unknown()},
		subscribers: make(map[chan playerwatch.ChangeEvent]struct{}),
	}
}

func (f *fakeController) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.report.Running = true
	return nil
}

func (f *fakeController) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopErr != nil {
		return f.stopErr
	}
	f.report.Running = false
	return nil
}

func (f *fakeController) SetIdentifier(id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalls = append(f.setCalls, id)
	if f.setErr != nil {
		return "", f.setErr
	}
	id = strings.TrimSpace(id)
	f.report.Identifier = id
	f.report.HasIdentifier = true
	f.report.Status = playerwatch.Unknown()
	return id, nil
}

func (f *fakeController) Report() playerwatch.Report {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.report
}

func (f *fakeController) Subscribe() <-chan playerwatch.ChangeEvent {
	ch := make(chan playerwatch.ChangeEvent, 16)
	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	f.mu.Unlock()
	return ch
}

func (f *fakeController) Unsubscribe(ch <-chan playerwatch.ChangeEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for subCh := range f.subscribers {
		if subCh == ch {
			delete(f.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

func (f *fakeController) emit(event playerwatch.ChangeEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subscribers {
		ch <- event
	}
}

func (f *fakeController) subscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers)
}

func newTestServer(t *testing.T, ctl Controller, cfg Config) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(New(ctl, cfg, testLogger()).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decodeReport(t *testing.T, data []byte) playerwatch.Report {
	t.Helper()
	var r playerwatch.Report
	require.NoError(t, json.Unmarshal(data, &r))
	return r
}

func problemDetail(t *testing.T, data []byte) string {
	t.Helper()
	var p struct {
		Detail string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(data, &p))
	return p.Detail
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/events"
}

func readMessage(t *testing.T, conn *websocket.Conn) streamMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg streamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// --- REST ---

func TestGetMonitor(t *testing.T) {
	ctl := newFakeController()
	ctl.report = playerwatch.Report{
		Identifier:    "100",
		HasIdentifier: true,
		Running:       true,
		Status:        playerwatch.Online("Rust EU"),
	}
	ts := newTestServer(t, ctl, Config{})

	resp, data := do(t, http.MethodGet, ts.URL+"/api/v1/monitor", "")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, ctl.report, decodeReport(t, data))
}

func TestGetMonitor_TrailingSlash(t *testing.T) {
	ts := newTestServer(t, newFakeController(), Config{})

	resp, _ := do(t, http.MethodGet, ts.URL+"/api/v1/monitor/", "")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStartMonitor(t *testing.T) {
	ctl := newFakeController()
	ts := newTestServer(t, ctl, Config{})

	resp, data := do(t, http.MethodPost, ts.URL+"/api/v1/monitor/start", "")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decodeReport(t, data).Running)
}

func TestStartMonitor_AlreadyRunning(t *testing.T) {
	ctl := newFakeController()
	ctl.startErr = playerwatch.ErrAlreadyRunning
	ts := newTestServer(t, ctl, Config{})

	resp, data := do(t, http.MethodPost, ts.URL+"/api/v1/monitor/start", "")

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, playerwatch.ErrAlreadyRunning.Error(), problemDetail(t, data))
}

func TestStopMonitor(t *testing.T) {
	ctl := newFakeController()
	ctl.report.Running = true
	ts := newTestServer(t, ctl, Config{})

	resp, data := do(t, http.MethodPost, ts.URL+"/api/v1/monitor/stop", "")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decodeReport(t, data).Running)
}

func TestStopMonitor_NotRunning(t *testing.T) {
	ctl := newFakeController()
	ctl.stopErr = playerwatch.ErrNotRunning
	ts := newTestServer(t, ctl, Config{})

	resp, _ := do(t, http.MethodPost, ts.URL+"/api/v1/monitor/stop", "")

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestSetIdentifier(t *testing.T) {
	ctl := newFakeController()
	ts := newTestServer(t, ctl, Config{})

	resp, data := do(t, http.MethodPut, ts.URL+"/api/v1/monitor/identifier", `{"identifier":" 12345 "}`)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	report := decodeReport(t, data)
	assert.Equal(t, "12345", report.Identifier)
	assert.True(t, report.HasIdentifier)
	assert.True(t, report.Status.IsUnknown())
	assert.Equal(t, []string{" 12345 "}, ctl.setCalls)
}

func TestSetIdentifier_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"invalid", fmt.Errorf("%w: empty", playerwatch.ErrInvalidIdentifier), http.StatusBadRequest},
		{"closed", playerwatch.ErrClosed, http.StatusServiceUnavailable},
		{"save failure", errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctl := newFakeController()
			ctl.setErr = tt.err
			ts := newTestServer(t, ctl, Config{})

			resp, _ := do(t, http.MethodPut, ts.URL+"/api/v1/monitor/identifier", `{"identifier":"x"}`)

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.False(t, ctl.Report().HasIdentifier)
		})
	}
}

func TestMapError(t *testing.T) {
	srv := New(newFakeController(), Config{}, testLogger())

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"already running", playerwatch.ErrAlreadyRunning, http.StatusConflict},
		{"not running", fmt.Errorf("stop: %w", playerwatch.ErrNotRunning), http.StatusConflict},
		{"invalid identifier", playerwatch.ErrInvalidIdentifier, http.StatusBadRequest},
		{"closed", playerwatch.ErrClosed, http.StatusServiceUnavailable},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var se huma.StatusError = srv.mapError(tt.err)
			assert.Equal(t, tt.want, se.GetStatus())
		})
	}
}

func TestOpenAPIDocument(t *testing.T) {
	ts := newTestServer(t, newFakeController(), Config{Version: "1.2.3"})

	resp, data := do(t, http.MethodGet, ts.URL+"/openapi.json", "")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), `"/api/v1/monitor/identifier"`)
	assert.Contains(t, string(data), `"1.2.3"`)
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, newFakeController(), Config{CORSOrigins: []string{" https://ops.example "}})

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/v1/monitor/start", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://ops.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "https://ops.example", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestCORS_DisabledByDefault(t *testing.T) {
	ts := newTestServer(t, newFakeController(), Config{})

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/monitor", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://ops.example")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

// --- Event stream ---

func TestEvents_SnapshotThenChanges(t *testing.T) {
	ctl := newFakeController()
	ctl.report = playerwatch.Report{Identifier: "100", HasIdentifier: true, Status: playerwatch.Online("A")}
	ts := newTestServer(t, ctl, Config{})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	defer conn.Close()

	snapshot := readMessage(t, conn)
	assert.Equal(t, messageSnapshot, snapshot.Type)
	require.NotNil(t, snapshot.Report)
	assert.Equal(t, ctl.report, *snapshot.Report)
	assert.Nil(t, snapshot.Event)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ctl.emit(playerwatch.ChangeEvent{
		Identifier: "100",
		From:       playerwatch.Online("A"),
		To:         playerwatch.Offline(),
		At:         at,
	})

	change := readMessage(t, conn)
	assert.Equal(t, messageChange, change.Type)
	require.NotNil(t, change.Event)
	assert.Equal(t, "100", change.Event.Identifier)
	assert.Equal(t, playerwatch.Online("A"), change.Event.From)
	assert.Equal(t, playerwatch.Offline(), change.Event.To)
	assert.True(t, at.Equal(change.Event.At))
}

func TestEvents_ClientDisconnectUnsubscribes(t *testing.T) {
	ctl := newFakeController()
	ts := newTestServer(t, ctl, Config{})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	readMessage(t, conn)
	require.Equal(t, 1, ctl.subscriberCount())

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool { return ctl.subscriberCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestEvents_RejectsForeignOrigin(t *testing.T) {
	ts := newTestServer(t, newFakeController(), Config{})

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), header)

	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestEvents_AllowsSameHostAndConfiguredOrigins(t *testing.T) {
	ts := newTestServer(t, newFakeController(), Config{CORSOrigins: []string{"https://ops.example"}})
	host := strings.TrimPrefix(ts.URL, "http://")

	for _, origin := range []string{"http://" + host, "https://ops.example"} {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), http.Header{"Origin": []string{origin}})
		require.NoError(t, err, origin)
		readMessage(t, conn)
		_ = conn.Close()
	}
}

func TestEvents_NotAWebsocket(t *testing.T) {
	ts := newTestServer(t, newFakeController(), Config{})

	resp, _ := do(t, http.MethodGet, ts.URL+"/api/v1/events", "")

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// --- Lifecycle ---

func TestStart_ServesAndShutsDown(t *testing.T) {
	ctl := newFakeController()
	srv := New(ctl, Config{Addr: "127.0.0.1:0"}, testLogger())
	assert.Nil(t, srv.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, srv.Start(ctx))

	base := "http://" + srv.Addr().String()
	resp, _ := do(t, http.MethodGet, base+"/api/v1/monitor", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr().String()+"/api/v1/events", nil)
	require.NoError(t, err)
	defer conn.Close()
	readMessage(t, conn)

	cancel()

	// the stream ends with a going-away close frame
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	select {
	case <-srv.Done():
	case <-time.After(6 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.Eventually(t, func() bool { return ctl.subscriberCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestStart_PortInUse_ReturnsError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	srv := New(newFakeController(), Config{Addr: ln.Addr().String()}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = srv.Start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to bind")
}

func TestStart_InvalidAddr_ReturnsError(t *testing.T) {
	srv := New(newFakeController(), Config{Addr: "127.0.0.1:-1"}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assert.Error(t, srv.Start(ctx))
}
