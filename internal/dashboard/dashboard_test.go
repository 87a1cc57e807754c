package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/duoapp/duo/internal/config"
	"github.com/duoapp/duo/internal/items"
	"github.com/duoapp/duo/internal/preview"
	"github.com/duoapp/duo/internal/store"
)

func newTestController(t *testing.T) *items.Controller {
	t.Helper()

	g, err := store.Open(config.DatabaseConfig{
		Driver: config.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "dashboard.db"),
	})
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = g.Close() })

	ctx := context.Background()
	if err := g.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}

	c := items.New(g)
	if err := c.Load(ctx); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	return c
}

func startServer(t *testing.T, cfg *Config) *Server {
	t.Helper()

	cfg.Port = 0
	server := NewServer(cfg)
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })
	return server
}

func dial(t *testing.T, ctx context.Context, server *Server) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

// readUntil reads messages until one of type want arrives.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, want MessageType) Message {
	t.Helper()

	for {
		msg := readMessage(t, ctx, conn)
		if msg.Type == want {
			return msg
		}
	}
}

func waitForClients(t *testing.T, server *Server, n int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for server.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d clients, got %d", n, server.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(&Config{Port: 0})

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	if addr := server.GetAddr(); addr == "" || strings.HasSuffix(addr, ":0") {
		t.Fatalf("Server address = %q, want a bound port", addr)
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestWebSocketConnection(t *testing.T) {
	server := startServer(t, &Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, server)

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeStats {
		t.Errorf("Expected welcome message type %s, got %s", MessageTypeStats, msg.Type)
	}
	var stats StatsData
	if err := json.Unmarshal(msg.Data, &stats); err != nil {
		t.Fatalf("Failed to unmarshal stats: %v", err)
	}
	if stats.DataAvailable {
		t.Error("stats should report the item API as unavailable without a controller")
	}

	waitForClients(t, server, 1)
}

func TestMultipleClientsBroadcast(t *testing.T) {
	server := startServer(t, &Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const numClients = 3
	clients := make([]*websocket.Conn, numClients)
	for i := range clients {
		clients[i] = dial(t, ctx, server)
		readMessage(t, ctx, clients[i])
	}
	waitForClients(t, server, numClients)

	server.PublishPreview(preview.Update{Path: "notes.md", Text: "# hi"})

	for i, conn := range clients {
		msg := readMessage(t, ctx, conn)
		if msg.Type != MessageTypePreviewUpdate {
			t.Fatalf("client %d: got %s, want %s", i, msg.Type, MessageTypePreviewUpdate)
		}
		var u preview.Update
		if err := json.Unmarshal(msg.Data, &u); err != nil {
			t.Fatalf("Failed to unmarshal update: %v", err)
		}
		if u.Text != "# hi" {
			t.Errorf("client %d: text = %q", i, u.Text)
		}
	}
}

func TestHandler_ForwardsControllerNotifications(t *testing.T) {
	ctrl := newTestController(t)
	server := startServer(t, &Config{Controller: ctrl, Driver: config.DriverSQLite})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, server)
	readMessage(t, ctx, conn)
	waitForClients(t, server, 1)

	ctrl.SetNewName("Milk")
	if err := ctrl.Add(ctx); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	msg := readUntil(t, ctx, conn, MessageTypeCollectionChanged)
	var change items.CollectionChange
	if err := json.Unmarshal(msg.Data, &change); err != nil {
		t.Fatalf("Failed to unmarshal change: %v", err)
	}
	if change.Kind != items.ChangeAdded || change.Record.Name != "Milk" {
		t.Errorf("change = %+v, want added Milk", change)
	}

	msg = readUntil(t, ctx, conn, MessageTypeStats)
	var stats StatsData
	if err := json.Unmarshal(msg.Data, &stats); err != nil {
		t.Fatalf("Failed to unmarshal stats: %v", err)
	}
	if stats.Total != 1 || !stats.DataAvailable || stats.Driver != config.DriverSQLite {
		t.Errorf("stats = %+v", stats)
	}

	long := strings.Repeat("x", store.MaxNameLength+1)
	ctrl.SetNewName(long)
	if err := ctrl.Add(ctx); err == nil {
		t.Fatal("Add() with an overlong name should fail")
	}

	msg = readUntil(t, ctx, conn, MessageTypeError)
	var data ErrorData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("Failed to unmarshal error: %v", err)
	}
	if data.Op != "add" || !strings.HasPrefix(data.Message, "Error adding item: ") {
		t.Errorf("error data = %+v", data)
	}
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	return resp, data
}

func newAPIServer(t *testing.T, cfg *Config) *httptest.Server {
	t.Helper()

	server := NewServer(cfg)
	ts := httptest.NewServer(server.Router())
	t.Cleanup(func() {
		ts.Close()
		_ = server.Stop()
	})
	return ts
}

func TestAPI_ItemLifecycle(t *testing.T) {
	ts := newAPIServer(t, &Config{Controller: newTestController(t)})

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/items", map[string]string{"name": "Milk"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST status = %d: %s", resp.StatusCode, body)
	}
	var created store.Record
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("Failed to unmarshal record: %v", err)
	}
	if created != (store.Record{ID: 1, Name: "Milk"}) {
		t.Errorf("created = %+v", created)
	}

	resp, body = doJSON(t, http.MethodPut, ts.URL+"/api/items/1", map[string]string{"name": "Oat milk"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT status = %d: %s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/items", nil)
	var list []store.Record
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("Failed to unmarshal list: %v", err)
	}
	if len(list) != 1 || list[0].Name != "Oat milk" {
		t.Errorf("list = %+v", list)
	}

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/commands", nil)
	var cmds CommandsResponse
	if err := json.Unmarshal(body, &cmds); err != nil {
		t.Fatalf("Failed to unmarshal commands: %v", err)
	}
	if cmds.Commands[items.CommandAdd] || !cmds.Commands[items.CommandUpdate] || !cmds.Selection.Selected {
		t.Errorf("commands = %+v", cmds)
	}

	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/api/items/1", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE status = %d", resp.StatusCode)
	}

	_, body = doJSON(t, http.MethodGet, ts.URL+"/api/items", nil)
	if strings.TrimSpace(string(body)) != "[]" {
		t.Errorf("list after delete = %s, want []", body)
	}
}

func TestAPI_ErrorStatuses(t *testing.T) {
	ts := newAPIServer(t, &Config{Controller: newTestController(t)})

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"blank name", http.MethodPost, "/api/items", map[string]string{"name": "  "}, http.StatusBadRequest},
		{"too long", http.MethodPost, "/api/items", map[string]string{"name": strings.Repeat("x", 256)}, http.StatusUnprocessableEntity},
		{"unknown id", http.MethodPut, "/api/items/99", map[string]string{"name": "x"}, http.StatusNotFound},
		{"bad id", http.MethodDelete, "/api/items/abc", nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doJSON(t, tt.method, ts.URL+tt.path, tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d: %s", resp.StatusCode, tt.want, body)
			}
		})
	}
}

func TestAPI_UnavailableKeepsPreview(t *testing.T) {
	initErr := errors.New("dial tcp: connection refused")
	server := NewServer(&Config{Unavailable: initErr})
	ts := httptest.NewServer(server.Router())
	defer ts.Close()
	defer server.Stop()

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/items", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
	if !strings.Contains(string(body), "connection refused") {
		t.Errorf("body = %s, want init error", body)
	}

	server.PublishPreview(preview.Update{Text: "# Title\nline `two`"})

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/preview", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("preview status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "# Title\\nline \\`two\\`") {
		t.Errorf("preview page does not embed escaped text:\n%s", body)
	}

	_, body = doJSON(t, http.MethodGet, ts.URL+"/preview/rendered", nil)
	if !strings.Contains(string(body), "<h1") {
		t.Errorf("rendered preview missing heading:\n%s", body)
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts := newAPIServer(t, &Config{})

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var health map[string]any
	if err := json.Unmarshal(body, &health); err != nil {
		t.Fatalf("Failed to unmarshal health: %v", err)
	}
	if health["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", health["status"])
	}
}

func TestRootPage_EscapesHost(t *testing.T) {
	server := NewServer(&Config{})
	t.Cleanup(func() { _ = server.Stop() })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = `evil"><script>alert(1)</script>`
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if strings.Contains(body, "<script>") {
		t.Errorf("host was written unescaped:\n%s", body)
	}
	if !strings.Contains(body, "ws://evil&#34;&gt;&lt;script&gt;") {
		t.Errorf("escaped host missing:\n%s", body)
	}
}
