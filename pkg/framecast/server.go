//go:build unix

package framecast

import (
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Server owns a channel and publishes frames into it. Publish is meant to be
// called from a single producer goroutine; the other methods are safe for
// concurrent use.
type Server struct {
	cfg    Config
	names  Names
	logger *slog.Logger

	// mu is held exclusively by Create, Publish and Close and shared by
	// the read-side calls, so Close never unmaps under a waiting caller.
	mu          sync.RWMutex
	ch          *channel
	frameNumber uint64

	// closing releases WaitForClients early so Close is not held for a
	// full client wait.
	closing atomic.Bool
}

// closeCheckInterval bounds how long WaitForClients sleeps between checks
// for a pending Close.
const closeCheckInterval = 50 * time.Millisecond

// NewServer prepares a server for cfg. Nothing is allocated until Create.
func NewServer(cfg Config) (*Server, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Geometry.Validate(); err != nil {
		return nil, newError(CodeResourceExhausted, "create", "invalid geometry", err)
	}
	names, err := ResolveNames(cfg.Dir, cfg.Channel)
	if err != nil {
		return nil, newError(CodeResourceExhausted, "create", "invalid channel name", err)
	}
	return &Server{cfg: cfg, names: names, logger: cfg.Logger.With("role", "server")}, nil
}

// Create allocates the named region and primitives and stamps the header.
func (s *Server) Create() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch != nil {
		return newError(CodeAlreadyExists, "create", "server already created", nil)
	}

	ch, err := createChannel(s.names, s.cfg.Geometry, uint32(os.Getpid()))
	if err != nil {
		s.logger.Warn("Failed to create channel", "error", err)
		return err
	}
	s.ch = ch
	s.frameNumber = 0
	s.closing.Store(false)
	clientsAttached.WithLabelValues(s.cfg.Channel).Set(0)
	s.logger.Info("Channel created",
		"region", s.names.Region,
		"geometry", s.cfg.Geometry.String(),
		"capacity", s.cfg.Geometry.FrameSize())
	return nil
}

// Publish copies frame into the slot and wakes clients. If the lock cannot be
// taken within the configured timeout the frame is dropped and
// ErrLockTimeout is returned; frameNumber is not advanced.
func (s *Server) Publish(frame []byte, timestamp uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch == nil {
		return ErrClosed
	}
	if len(frame) > len(s.ch.slot) {
		return newError(CodeFrameTooLarge, "publish", ErrFrameTooLarge.Message, nil)
	}

	next := s.frameNumber + 1
	ok := s.ch.withLock(s.cfg.LockTimeout, func(v *frameView) {
		copy(v.slot, frame)
		v.hdr.FrameNumber = next
		v.hdr.Timestamp = timestamp
		v.hdr.DataSize = uint32(len(frame))
	})
	if !ok {
		publishesDropped.WithLabelValues(s.cfg.Channel).Inc()
		s.logger.Debug("Publish dropped, lock busy", "frame_number", next)
		return newError(CodeLockTimeout, "publish", ErrLockTimeout.Message, nil)
	}
	s.frameNumber = next
	s.ch.frameEvent.signal()

	framesPublished.WithLabelValues(s.cfg.Channel).Inc()
	bytesPublished.WithLabelValues(s.cfg.Channel).Add(float64(len(frame)))
	return nil
}

// Close marks the channel stale, wakes clients so they notice, removes the
// names and releases everything. Safe to call more than once.
func (s *Server) Close() error {
	s.closing.Store(true)
	s.mu.RLock()
	if s.ch != nil {
		s.ch.clientEvent.signal()
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch == nil {
		return nil
	}
	ch := s.ch
	s.ch = nil

	if !ch.withLock(s.cfg.LockTimeout, func(v *frameView) { v.hdr.ServerPID = 0 }) {
		// A dead client may be holding the lock; the marker still has to land.
		s.logger.Warn("Channel lock busy on close, clearing server pid unlocked")
		atomic.StoreUint32(&ch.hdr.ServerPID, 0)
	}
	ch.frameEvent.signal()

	unlinkErr := ch.unlink()
	closeErr := ch.close()
	s.logger.Info("Channel closed", "frames_published", s.frameNumber)
	if unlinkErr != nil {
		return newError(CodeResourceExhausted, "close", "cannot remove channel names", unlinkErr)
	}
	if closeErr != nil {
		return newError(CodeResourceExhausted, "close", "cannot release channel", closeErr)
	}
	return nil
}

// IsCreated reports whether Create succeeded and Close has not been called.
func (s *Server) IsCreated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ch != nil
}

// FrameNumber returns the number of the most recently published frame.
func (s *Server) FrameNumber() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frameNumber
}

// Geometry returns the geometry the channel was created with.
func (s *Server) Geometry() Geometry {
	return s.cfg.Geometry
}

// Names returns the paths of the channel's named objects.
func (s *Server) Names() Names {
	return s.names
}

// ClientCount is a non-blocking read of the shared client counter.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ch == nil {
		return 0
	}
	n := s.ch.clientCount()
	clientsAttached.WithLabelValues(s.cfg.Channel).Set(float64(n))
	return int(n)
}

// WaitForClients returns true as soon as at least one client is attached,
// blocking on the client-count signal for up to timeout. It returns false
// early when Close is called.
func (s *Server) WaitForClients(timeout time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch := s.ch
	if ch == nil {
		return false
	}
	if ch.clientCount() > 0 {
		return true
	}
	deadline := time.Now().Add(timeout)
	for {
		if s.closing.Load() {
			return false
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ch.clientCount() > 0
		}
		// A disconnect also signals; only a positive count ends the wait.
		ch.clientEvent.wait(min(remaining, closeCheckInterval))
		if ch.clientCount() > 0 {
			return true
		}
	}
}
