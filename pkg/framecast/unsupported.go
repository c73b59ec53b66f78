//go:build !unix

package framecast

import (
	"time"
)

// FrameInfo is a lock-free snapshot of channel metadata.
type FrameInfo struct {
	Geometry    Geometry
	Stride      uint32
	Capacity    int
	FrameNumber uint64
	ServerPID   uint32
	ClientCount int32
}

// Frame describes the result of a successful ReadFrame.
type Frame struct {
	Number    uint64
	Timestamp uint64
	Size      int
	Copied    int
}

// Truncated reports whether the destination was smaller than the frame.
func (f Frame) Truncated() bool { return f.Copied < f.Size }

// Server is unavailable on this platform.
type Server struct{ cfg Config }

// NewServer always fails on this platform.
func NewServer(cfg Config) (*Server, error) { return nil, ErrUnsupported }

func (s *Server) Create() error { return ErrUnsupported }
func (s *Server) Publish([]byte, uint64) error { return ErrUnsupported }
func (s *Server) Close() error { return nil }
func (s *Server) IsCreated() bool { return false }
func (s *Server) FrameNumber() uint64 { return 0 }
func (s *Server) Geometry() Geometry { return s.cfg.Geometry }
func (s *Server) Names() Names { return Names{} }
func (s *Server) ClientCount() int { return 0 }
func (s *Server) WaitForClients(time.Duration) bool { return false }

// Client is unavailable on this platform.
type Client struct{}

// NewClient always fails on this platform.
func NewClient(cfg Config) (*Client, error) { return nil, ErrUnsupported }

func (c *Client) Connect() error { return ErrUnsupported }
func (c *Client) Disconnect() error { return nil }
func (c *Client) IsConnected() bool { return false }
func (c *Client) WaitForFrame(time.Duration) bool { return false }
func (c *Client) ReadFrame([]byte) (Frame, error) { return Frame{}, ErrUnsupported }
func (c *Client) FrameInfo() (FrameInfo, error) { return FrameInfo{}, ErrUnsupported }
func (c *Client) LastSeen() uint64 { return 0 }
func (c *Client) ServerAlive() bool { return false }
