// Package preview serves a low-rate JPEG view of a channel to browsers over
// WebSocket. The hub attaches to the channel as an ordinary client and only
// while at least one viewer is connected, so an on-demand producer still
// idles when nobody is watching.
package preview

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/smazurov/framecast/pkg/framecast"
)

const (
	defaultFPS     = 5
	defaultQuality = 75
	writeWait      = 5 * time.Second
	retryDelay     = time.Second
)

// Config configures a preview hub.
type Config struct {
	Channel framecast.Config
	FPS     float64 // frames pushed to viewers per second
	Quality int     // JPEG quality, 1-100
	Logger  *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.FPS <= 0 {
		c.FPS = defaultFPS
	}
	if c.Quality < 1 || c.Quality > 100 {
		c.Quality = defaultQuality
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Hub fans JPEG frames out to WebSocket viewers.
type Hub struct {
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	viewers map[*viewer]struct{}
	wake    chan struct{}
}

type viewer struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a hub. Call Run to start feeding viewers.
func NewHub(cfg Config) *Hub {
	cfg = cfg.withDefaults()
	return &Hub{
		cfg:    cfg,
		logger: cfg.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		viewers: make(map[*viewer]struct{}),
		wake:    make(chan struct{}, 1),
	}
}

// Viewers returns the number of connected viewers.
func (h *Hub) Viewers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.viewers)
}

// ServeHTTP upgrades the request and streams frames as binary messages
// until the viewer goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Preview upgrade failed", "error", err)
		return
	}
	v := &viewer{id: uuid.NewString(), conn: conn, send: make(chan []byte, 2)}
	h.add(v)
	h.logger.Info("Preview viewer connected", "viewer", v.id, "remote_addr", r.RemoteAddr)

	go h.writePump(v)
	h.readPump(v)
}

func (h *Hub) add(v *viewer) {
	h.mu.Lock()
	h.viewers[v] = struct{}{}
	h.mu.Unlock()
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

func (h *Hub) remove(v *viewer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.viewers[v]; !ok {
		return
	}
	delete(h.viewers, v)
	close(v.send)
}

// readPump discards incoming messages; it exists to notice the close.
func (h *Hub) readPump(v *viewer) {
	defer func() {
		h.remove(v)
		v.conn.Close()
		h.logger.Info("Preview viewer disconnected", "viewer", v.id)
	}()
	for {
		if _, _, err := v.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("Preview read error", "viewer", v.id, "error", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(v *viewer) {
	defer v.conn.Close()
	for msg := range v.send {
		v.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := v.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
			h.logger.Debug("Preview write failed", "viewer", v.id, "error", err)
			return
		}
	}
	v.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

// broadcast hands msg to every viewer, skipping viewers still busy with the
// previous frame.
func (h *Hub) broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for v := range h.viewers {
		select {
		case v.send <- msg:
		default:
		}
	}
}

// Close disconnects every viewer.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for v := range h.viewers {
		delete(h.viewers, v)
		close(v.send)
	}
}

// Run feeds viewers until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	defer h.Close()
	client, err := framecast.NewClient(h.cfg.Channel)
	if err != nil {
		return err
	}
	defer client.Disconnect()

	interval := time.Duration(float64(time.Second) / h.cfg.FPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		buf  []byte
		geom framecast.Geometry
	)
	for {
		if h.Viewers() == 0 {
			if client.IsConnected() {
				client.Disconnect()
			}
			select {
			case <-ctx.Done():
				return nil
			case <-h.wake:
			}
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if !client.IsConnected() {
			if err := client.Connect(); err != nil {
				h.logger.Debug("Preview waiting for channel", "error", err)
				sleep(ctx, retryDelay)
				continue
			}
			info, err := client.FrameInfo()
			if err != nil {
				continue
			}
			geom = info.Geometry
			buf = make([]byte, info.Capacity)
		}

		frame, err := client.ReadFrame(buf)
		switch {
		case err == nil:
		case errors.Is(err, framecast.ErrNoNewFrame), errors.Is(err, framecast.ErrLockTimeout):
			continue
		case errors.Is(err, framecast.ErrStaleServer):
			client.Disconnect()
			continue
		default:
			h.logger.Warn("Preview read failed", "error", err)
			continue
		}

		msg, err := encodeJPEG(geom, buf[:frame.Copied], h.cfg.Quality)
		if err != nil {
			h.logger.Debug("Preview encode failed", "frame", frame.Number, "error", err)
			continue
		}
		h.broadcast(msg)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
