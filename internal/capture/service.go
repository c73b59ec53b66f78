package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/framecast/internal/events"
	"github.com/smazurov/framecast/pkg/framecast"
)

// Defaults for Config.
const (
	DefaultIdleFrames    = 30
	DefaultClientWait    = time.Second
	DefaultRetryDelay    = time.Second
	DefaultStatsInterval = 5 * time.Second
)

// tick is the unit of frame timestamps.
const tick = 100 * time.Nanosecond

// Config controls the capture loop.
type Config struct {
	Channel framecast.Config

	// OnDemand keeps the source stopped while no client is attached.
	OnDemand bool
	// IdleFrames is how many consecutive publishes without clients are
	// tolerated before an on-demand source is stopped.
	IdleFrames int
	// ClientWait bounds each wait for a first client in on-demand mode.
	ClientWait time.Duration
	// RetryDelay is the pause after a source failure.
	RetryDelay time.Duration
	// StatsInterval is the period of PublishStatsEvent.
	StatsInterval time.Duration

	// Ready runs once the channel exists. Used for readiness notification.
	Ready func()
}

func (c Config) withDefaults() Config {
	if c.IdleFrames <= 0 {
		c.IdleFrames = DefaultIdleFrames
	}
	if c.ClientWait <= 0 {
		c.ClientWait = DefaultClientWait
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.StatsInterval <= 0 {
		c.StatsInterval = DefaultStatsInterval
	}
	if c.Channel.Channel == "" {
		c.Channel.Channel = framecast.DefaultChannel
	}
	return c
}

// Status is a point-in-time view of the service.
type Status struct {
	Channel      string    `json:"channel" example:"framecast" doc:"Channel name"`
	Region       string    `json:"region" example:"/dev/shm/framecast.frame" doc:"Path of the shared region"`
	Width        uint32    `json:"width" example:"640" doc:"Frame width in pixels"`
	Height       uint32    `json:"height" example:"480" doc:"Frame height in pixels"`
	Format       string    `json:"format" example:"rgb24" doc:"Pixel format"`
	Capacity     int       `json:"capacity" example:"921600" doc:"Frame slot size in bytes"`
	Running      bool      `json:"running" doc:"Whether the channel exists"`
	Source       string    `json:"source" example:"pattern" doc:"Frame source"`
	SourceActive bool      `json:"source_active" doc:"Whether the source is producing frames"`
	OnDemand     bool      `json:"on_demand" doc:"Whether the source only runs while clients are attached"`
	FrameNumber  uint64    `json:"frame_number" example:"1800" doc:"Last published frame number"`
	Published    uint64    `json:"published" example:"1800" doc:"Frames published since start"`
	Dropped      uint64    `json:"dropped" example:"0" doc:"Publishes dropped on lock timeout"`
	SourceErrors uint64    `json:"source_errors" example:"0" doc:"Source start or read failures"`
	Clients      int       `json:"clients" example:"1" doc:"Attached clients"`
	FPS          float64   `json:"fps" example:"30" doc:"Publish rate over the last stats interval"`
	StartedAt    time.Time `json:"started_at,omitzero" doc:"When the channel was created"`
}

// Service runs the producer side: it owns the channel and feeds it from a
// Source.
type Service struct {
	cfg    Config
	source Source
	server *framecast.Server
	bus    *events.Bus
	logger *slog.Logger

	runMu sync.Mutex

	running      atomic.Bool
	active       atomic.Bool
	published    atomic.Uint64
	dropped      atomic.Uint64
	sourceErrors atomic.Uint64
	lastClients  atomic.Int64
	fpsBits      atomic.Uint64
	startedAt    atomic.Int64

	// loop-local
	idle      int
	statsAt   time.Time
	statsBase uint64
}

// NewService validates the configuration. bus may be nil.
func NewService(cfg Config, src Source, bus *events.Bus, logger *slog.Logger) (*Service, error) {
	if src == nil {
		return nil, errors.New("capture: nil source")
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	cfg.Channel.Geometry = src.Geometry()
	if cfg.Channel.Logger == nil {
		cfg.Channel.Logger = logger
	}

	server, err := framecast.NewServer(cfg.Channel)
	if err != nil {
		return nil, err
	}
	return &Service{
		cfg:    cfg,
		source: src,
		server: server,
		bus:    bus,
		logger: logger.With("channel", cfg.Channel.Channel, "source", src.Name()),
	}, nil
}

// Server exposes the underlying channel owner.
func (s *Service) Server() *framecast.Server {
	return s.server
}

// Run creates the channel and publishes frames until ctx is done. The
// channel is always closed on return.
func (s *Service) Run(ctx context.Context) error {
	if !s.runMu.TryLock() {
		return errors.New("capture: service already running")
	}
	defer s.runMu.Unlock()

	if err := s.server.Create(); err != nil {
		return fmt.Errorf("create channel: %w", err)
	}
	start := time.Now()
	s.startedAt.Store(start.UnixNano())
	s.running.Store(true)
	s.publishChannelState(events.ChannelCreated)
	s.logger.Info("Capture service started",
		"geometry", s.server.Geometry().String(),
		"on_demand", s.cfg.OnDemand,
		"idle_frames", s.cfg.IdleFrames)
	if s.cfg.Ready != nil {
		s.cfg.Ready()
	}

	defer func() {
		s.stopSource("shutdown")
		s.running.Store(false)
		if err := s.server.Close(); err != nil {
			s.logger.Warn("Failed to close channel", "error", err)
		}
		s.publishChannelState(events.ChannelClosed)
		s.logger.Info("Capture service stopped",
			"published", s.published.Load(),
			"dropped", s.dropped.Load())
	}()

	buf := make([]byte, s.server.Geometry().FrameSize())
	s.statsAt = start
	s.statsBase = 0
	s.idle = 0

	for ctx.Err() == nil {
		if !s.active.Load() {
			if s.cfg.OnDemand && !s.awaitClient() {
				s.maybeReportStats()
				continue
			}
			reason := "always on"
			if s.cfg.OnDemand {
				reason = "client attached"
			}
			if err := s.startSource(ctx, reason); err != nil {
				s.pause(ctx)
				continue
			}
		}

		n, err := s.source.Read(ctx, buf)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			s.sourceFailed("read", err)
			s.stopSource("source error")
			s.pause(ctx)
			continue
		}

		if err := s.publish(buf[:n], uint64(time.Since(start)/tick)); err != nil {
			return err
		}
		s.trackIdle()
		s.maybeReportStats()
	}
	return nil
}

// awaitClient blocks up to ClientWait for a first client.
func (s *Service) awaitClient() bool {
	ok := s.server.WaitForClients(s.cfg.ClientWait)
	s.observeClients(s.server.ClientCount())
	return ok
}

// publish forwards one frame. Lock timeouts drop the frame; anything else
// is fatal for the loop.
func (s *Service) publish(frame []byte, ts uint64) error {
	err := s.server.Publish(frame, ts)
	switch {
	case err == nil:
		s.published.Add(1)
		return nil
	case errors.Is(err, framecast.ErrLockTimeout):
		s.dropped.Add(1)
		s.logger.Debug("Frame dropped, channel lock busy", "frame_number", s.server.FrameNumber()+1)
		return nil
	default:
		return fmt.Errorf("publish: %w", err)
	}
}

// trackIdle stops an on-demand source after more than IdleFrames
// consecutive publishes with no client attached.
func (s *Service) trackIdle() {
	clients := s.server.ClientCount()
	s.observeClients(clients)
	if !s.cfg.OnDemand {
		return
	}
	if clients > 0 {
		s.idle = 0
		return
	}
	s.idle++
	if s.idle > s.cfg.IdleFrames {
		s.stopSource("no clients")
	}
}

func (s *Service) startSource(ctx context.Context, reason string) error {
	if err := s.source.Start(ctx); err != nil {
		s.sourceFailed("start", err)
		return err
	}
	s.idle = 0
	s.active.Store(true)
	labels := []string{s.cfg.Channel.Channel, s.source.Name()}
	sourceStarts.WithLabelValues(labels...).Inc()
	sourceActive.WithLabelValues(labels...).Set(1)
	s.logger.Info("Source started", "reason", reason)
	s.publishCaptureState(true, reason)
	return nil
}

func (s *Service) stopSource(reason string) {
	if !s.active.Swap(false) {
		return
	}
	if err := s.source.Stop(); err != nil {
		s.logger.Warn("Failed to stop source", "error", err)
	}
	sourceActive.WithLabelValues(s.cfg.Channel.Channel, s.source.Name()).Set(0)
	s.logger.Info("Source stopped", "reason", reason)
	s.publishCaptureState(false, reason)
}

func (s *Service) sourceFailed(op string, err error) {
	s.sourceErrors.Add(1)
	sourceErrors.WithLabelValues(s.cfg.Channel.Channel, s.source.Name()).Inc()
	s.logger.Warn("Source failed", "op", op, "error", err, "retry_in", s.cfg.RetryDelay)
}

func (s *Service) pause(ctx context.Context) {
	t := time.NewTimer(s.cfg.RetryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// observeClients publishes a ClientCountChangedEvent when the count moves.
func (s *Service) observeClients(n int) {
	prev := s.lastClients.Swap(int64(n))
	if prev == int64(n) {
		return
	}
	s.logger.Info("Client count changed", "clients", n, "previous", prev)
	if s.bus != nil {
		s.bus.Publish(events.ClientCountChangedEvent{
			Channel:   s.cfg.Channel.Channel,
			Clients:   n,
			Previous:  int(prev),
			Timestamp: timestamp(),
		})
	}
}

func (s *Service) maybeReportStats() {
	now := time.Now()
	elapsed := now.Sub(s.statsAt)
	if elapsed < s.cfg.StatsInterval {
		return
	}
	published := s.published.Load()
	fps := float64(published-s.statsBase) / elapsed.Seconds()
	s.statsAt, s.statsBase = now, published
	s.fpsBits.Store(math.Float64bits(fps))
	publishFPS.WithLabelValues(s.cfg.Channel.Channel).Set(fps)

	if s.bus != nil {
		s.bus.Publish(events.PublishStatsEvent{
			Channel:     s.cfg.Channel.Channel,
			FrameNumber: s.server.FrameNumber(),
			FPS:         fps,
			Published:   published,
			Dropped:     s.dropped.Load(),
			Clients:     int(s.lastClients.Load()),
			Timestamp:   timestamp(),
		})
	}
}

func (s *Service) publishChannelState(state string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.ChannelStateChangedEvent{
		Channel:   s.cfg.Channel.Channel,
		State:     state,
		Geometry:  s.server.Geometry().String(),
		Timestamp: timestamp(),
	})
}

func (s *Service) publishCaptureState(active bool, reason string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.CaptureStateChangedEvent{
		Channel:   s.cfg.Channel.Channel,
		Source:    s.source.Name(),
		Active:    active,
		Reason:    reason,
		Timestamp: timestamp(),
	})
}

// Status returns a snapshot safe to call from any goroutine.
func (s *Service) Status() Status {
	g := s.server.Geometry()
	st := Status{
		Channel:      s.cfg.Channel.Channel,
		Region:       s.server.Names().Region,
		Width:        g.Width,
		Height:       g.Height,
		Format:       g.Format.String(),
		Capacity:     g.FrameSize(),
		Running:      s.running.Load(),
		Source:       s.source.Name(),
		SourceActive: s.active.Load(),
		OnDemand:     s.cfg.OnDemand,
		FrameNumber:  s.server.FrameNumber(),
		Published:    s.published.Load(),
		Dropped:      s.dropped.Load(),
		SourceErrors: s.sourceErrors.Load(),
		Clients:      s.server.ClientCount(),
		FPS:          math.Float64frombits(s.fpsBits.Load()),
	}
	if ns := s.startedAt.Load(); ns != 0 {
		st.StartedAt = time.Unix(0, ns)
	}
	return st
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
