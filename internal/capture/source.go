package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/smazurov/framecast/pkg/framecast"
)

// Source produces raw frames for the capture loop.
type Source interface {
	// Name identifies the source in logs, events and status.
	Name() string
	// Geometry is fixed for the lifetime of the source.
	Geometry() framecast.Geometry
	// Start acquires the device. The loop calls it again after Stop.
	Start(ctx context.Context) error
	// Read blocks until the next frame is due and writes it into dst, which
	// is at least Geometry().FrameSize() long. It returns the bytes written.
	Read(ctx context.Context, dst []byte) (int, error)
	// Stop releases the device. Stopping a stopped source is a no-op.
	Stop() error
}

// Source kinds accepted by NewSource.
const (
	SourcePattern = "pattern"
	SourceFile    = "file"
)

// NewSource builds a source by kind. path is only used by file sources.
func NewSource(kind string, g framecast.Geometry, fps float64, path string) (Source, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	switch kind {
	case SourcePattern, "":
		return NewPatternSource(g, fps), nil
	case SourceFile:
		if path == "" {
			return nil, fmt.Errorf("file source needs a path")
		}
		return NewFileSource(path, g, fps), nil
	default:
		return nil, fmt.Errorf("unknown source %q", kind)
	}
}

// pacer spaces reads at a fixed rate. A reader that falls more than one
// interval behind is resynchronised instead of bursting to catch up.
type pacer struct {
	interval time.Duration
	next     time.Time
}

func newPacer(fps float64) *pacer {
	if fps <= 0 {
		fps = 30
	}
	return &pacer{interval: time.Duration(float64(time.Second) / fps)}
}

func (p *pacer) reset() {
	p.next = time.Time{}
}

// wait blocks until the next frame slot or ctx is done.
func (p *pacer) wait(ctx context.Context) error {
	now := time.Now()
	if p.next.IsZero() || now.Sub(p.next) > p.interval {
		p.next = now
	}
	if d := p.next.Sub(now); d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	p.next = p.next.Add(p.interval)
	return nil
}
