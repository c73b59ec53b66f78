//go:build unix && !race

package preview

// Excluded from -race builds: the producer and client here map the same
// channel in one process, and the race detector cannot see the futex
// ordering between the two mappings.

import (
	"bytes"
	"context"
	"image/jpeg"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/smazurov/framecast/pkg/framecast"
)

func TestHubStreamsJPEG(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := framecast.Config{
		Channel:  "preview",
		Dir:      t.TempDir(),
		Geometry: framecast.Geometry{Width: 8, Height: 8, Format: framecast.FormatGray8},
		Logger:   logger,
	}
	srv, err := framecast.NewServer(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := srv.Create(); err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	hub := NewHub(Config{Channel: cfg, FPS: 50, Logger: logger})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	ts := httptest.NewServer(hub)
	defer ts.Close()

	// No viewer yet: the hub must not hold a client slot.
	time.Sleep(50 * time.Millisecond)
	if n := srv.ClientCount(); n != 0 {
		t.Fatalf("Expected no clients before a viewer connects, got %d", n)
	}

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		frame := bytes.Repeat([]byte{90}, 64)
		for n := uint64(1); ; n++ {
			select {
			case <-stop:
				return
			case <-time.After(10 * time.Millisecond):
				srv.Publish(frame, n)
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	kind, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if kind != websocket.BinaryMessage {
		t.Errorf("Expected a binary message, got %d", kind)
	}
	img, err := jpeg.Decode(bytes.NewReader(msg))
	if err != nil {
		t.Fatalf("message is not a JPEG: %v", err)
	}
	if img.Bounds().Dx() != 8 {
		t.Errorf("Expected width 8, got %d", img.Bounds().Dx())
	}
	if hub.Viewers() != 1 {
		t.Errorf("Expected 1 viewer, got %d", hub.Viewers())
	}
	if n := srv.ClientCount(); n != 1 {
		t.Errorf("Expected the hub to attach as one client, got %d", n)
	}
}
