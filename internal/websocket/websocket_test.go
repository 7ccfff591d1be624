package websocket_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"smartqr/internal/label"
	"smartqr/internal/models"
	"smartqr/internal/websocket"

	ws "github.com/gorilla/websocket"
)

func dial(t *testing.T, srv *httptest.Server) *ws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_Broadcast(t *testing.T) {
	hub := websocket.NewHub()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		websocket.HandleWebSocket(hub, w, r)
	}))
	defer srv.Close()

	conn := dial(t, srv)
	deadline := time.Now().Add(5 * time.Second)
	for hub.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.Clients() != 1 {
		t.Fatalf("Expected 1 client, got %d", hub.Clients())
	}

	hub.BroadcastChange("inventory", "updated", "W1")

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var evt websocket.Event
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if evt.Type != "inventory_updated" || evt.Resource != "inventory" || evt.ID != "W1" || evt.Action != "updated" {
		t.Errorf("Unexpected event %+v", evt)
	}
}

func TestHub_DisconnectLeaves(t *testing.T) {
	hub := websocket.NewHub()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		websocket.HandleWebSocket(hub, w, r)
	}))
	defer srv.Close()

	conn := dial(t, srv)
	deadline := time.Now().Add(5 * time.Second)
	for hub.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	conn.Close()
	for hub.Clients() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.Clients() != 0 {
		t.Fatalf("Expected viewer to leave, got %d", hub.Clients())
	}
	hub.BroadcastChange("requests", "created", 1)
}

func TestHub_NilIsNoop(t *testing.T) {
	var hub *websocket.Hub
	hub.BroadcastChange("inventory", "cleared", nil)
}

func scanServer(timeout time.Duration) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		websocket.HandleScan(w, r, timeout)
	}))
}

func TestHandleScan_Decoded(t *testing.T) {
	srv := scanServer(0)
	defer srv.Close()
	conn := dial(t, srv)
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	var hello websocket.ScanMessage
	if err := conn.ReadJSON(&hello); err != nil || hello.Type != "session" || hello.ID == "" {
		t.Fatalf("Expected session message, got %+v err=%v", hello, err)
	}

	frame, err := label.EncodePNG(models.Payload{ItemName: "Widget", ItemCode: "W1", InitialQty: 10}, 256)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(ws.BinaryMessage, []byte("not an image")); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(ws.BinaryMessage, frame); err != nil {
		t.Fatal(err)
	}

	var res websocket.ScanMessage
	if err := conn.ReadJSON(&res); err != nil {
		t.Fatalf("read result failed: %v", err)
	}
	if res.Type != "decoded" || res.Payload == nil || res.Payload.ItemCode != "W1" {
		t.Fatalf("Expected decoded W1, got %+v", res)
	}
	if res.ID != hello.ID {
		t.Errorf("Expected session id %s, got %s", hello.ID, res.ID)
	}
}

func TestHandleScan_Cancel(t *testing.T) {
	srv := scanServer(0)
	defer srv.Close()
	conn := dial(t, srv)
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	var hello websocket.ScanMessage
	conn.ReadJSON(&hello)
	conn.WriteMessage(ws.TextMessage, []byte("cancel"))

	var res websocket.ScanMessage
	if err := conn.ReadJSON(&res); err != nil {
		t.Fatalf("read result failed: %v", err)
	}
	if res.Type != "failed" || res.Payload != nil {
		t.Errorf("Expected failed without payload, got %+v", res)
	}
}

func TestHandleScan_CancelBeforeTimeout(t *testing.T) {
	srv := scanServer(time.Minute)
	defer srv.Close()
	conn := dial(t, srv)
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	var hello, res websocket.ScanMessage
	conn.ReadJSON(&hello)
	conn.WriteMessage(ws.TextMessage, []byte("cancel"))
	if err := conn.ReadJSON(&res); err != nil {
		t.Fatalf("read result failed: %v", err)
	}
	if res.Type != "failed" {
		t.Errorf("Expected failed after cancel, got %+v", res)
	}
}

func TestHandleScan_Timeout(t *testing.T) {
	srv := scanServer(50 * time.Millisecond)
	defer srv.Close()
	conn := dial(t, srv)
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	var hello, res websocket.ScanMessage
	conn.ReadJSON(&hello)
	if err := conn.ReadJSON(&res); err != nil {
		t.Fatalf("read result failed: %v", err)
	}
	if res.Type != "failed" {
		t.Errorf("Expected failed after timeout, got %+v", res)
	}
}
