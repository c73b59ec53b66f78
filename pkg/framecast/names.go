package framecast

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
)

// Well-known defaults shared by every producer and consumer.
const (
	DefaultChannel     = "framecast"
	DefaultDir         = "/dev/shm"
	DefaultLockTimeout = 100 * time.Millisecond
)

// Name suffixes of the four named objects that make up a channel.
const (
	regionSuffix      = ".frame"
	mutexSuffix       = ".mutex"
	frameEventSuffix  = ".frame-event"
	clientEventSuffix = ".client-event"
)

// Names holds the resolved paths of a channel's named objects.
type Names struct {
	Region      string
	Mutex       string
	FrameEvent  string
	ClientEvent string
}

// All returns every path in creation order.
func (n Names) All() []string {
	return []string{n.Mutex, n.FrameEvent, n.ClientEvent, n.Region}
}

// ResolveNames maps a channel name onto paths inside dir.
func ResolveNames(dir, channel string) (Names, error) {
	if channel == "" {
		channel = DefaultChannel
	}
	if strings.ContainsAny(channel, `/\`) || channel == "." || channel == ".." {
		return Names{}, fmt.Errorf("invalid channel name %q", channel)
	}
	if dir == "" {
		dir = DefaultDir
	}
	base := filepath.Join(dir, channel)
	return Names{
		Region:      base + regionSuffix,
		Mutex:       base + mutexSuffix,
		FrameEvent:  base + frameEventSuffix,
		ClientEvent: base + clientEventSuffix,
	}, nil
}

// Config is shared by Server and Client. Geometry is only used by the Server.
type Config struct {
	Channel     string
	Dir         string
	Geometry    Geometry
	LockTimeout time.Duration
	Logger      *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Channel == "" {
		c.Channel = DefaultChannel
	}
	if c.Dir == "" {
		c.Dir = DefaultDir
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = DefaultLockTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default().With("component", "framecast")
	}
	c.Logger = c.Logger.With("channel", c.Channel)
	return c
}
