package compileserver

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestServeHTTPCompilesValidRequest(t *testing.T) {
	srv := httptest.NewServer(NewServer())
	defer srv.Close()
	conn := dial(t, srv)

	req := Request{Expression: "val * 2 + x", Width: 4, Height: 4, Frames: 1, Channels: 3}
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("write: %v", err)
	}

	var resp Response
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("read: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if len(resp.Object) == 0 {
		t.Fatalf("expected compiled object bytes")
	}
	if resp.RequestID == "" {
		t.Fatalf("expected a request id")
	}
}

func TestServeHTTPReturnsStructuredShapeError(t *testing.T) {
	srv := httptest.NewServer(NewServer())
	defer srv.Close()
	conn := dial(t, srv)

	req := Request{Expression: "x", Width: 5, Height: 4, Frames: 1, Channels: 3}
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("write: %v", err)
	}

	var resp Response
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("read: %v", err)
	}
	if resp.Error == nil {
		t.Fatalf("expected a structured error")
	}
	if resp.Error.Kind != "ShapeError" {
		t.Fatalf("expected ShapeError, got %s", resp.Error.Kind)
	}
}
