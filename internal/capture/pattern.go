package capture

import (
	"context"
	"errors"
	"sync"

	"github.com/smazurov/framecast/pkg/framecast"
)

// colorBars are the eight SMPTE-style bars as RGB.
var colorBars = [8][3]byte{
	{235, 235, 235}, // white
	{235, 235, 16},  // yellow
	{16, 235, 235},  // cyan
	{16, 235, 16},   // green
	{235, 16, 235},  // magenta
	{235, 16, 16},   // red
	{16, 16, 235},   // blue
	{16, 16, 16},    // black
}

// PatternSource renders moving color bars with a sweeping line. It stands
// in for a camera when none is attached.
type PatternSource struct {
	geometry framecast.Geometry
	pace     *pacer

	mu      sync.Mutex
	running bool
	frame   uint64
	row     []byte
}

// NewPatternSource creates a test pattern source running at fps.
func NewPatternSource(g framecast.Geometry, fps float64) *PatternSource {
	return &PatternSource{geometry: g, pace: newPacer(fps)}
}

func (p *PatternSource) Name() string { return SourcePattern }

func (p *PatternSource) Geometry() framecast.Geometry { return p.geometry }

func (p *PatternSource) Start(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = true
	p.pace.reset()
	if p.row == nil {
		p.row = make([]byte, p.geometry.Stride())
	}
	return nil
}

func (p *PatternSource) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
	return nil
}

func (p *PatternSource) Read(ctx context.Context, dst []byte) (int, error) {
	if err := p.pace.wait(ctx); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return 0, errors.New("pattern source not started")
	}
	n := p.geometry.FrameSize()
	if len(dst) < n {
		return 0, errors.New("destination smaller than frame")
	}
	renderPattern(dst[:n], p.row, p.geometry, p.frame)
	p.frame++
	return n, nil
}

// renderPattern fills frame with bars shifted by one column per frame and a
// white line that moves down one row per frame. row is scratch space of one
// stride.
func renderPattern(frame, row []byte, g framecast.Geometry, n uint64) {
	width := int(g.Width)
	shift := int(n % uint64(width))
	bar := func(x int) [3]byte {
		return colorBars[((x+shift)%width)*len(colorBars)/width]
	}

	switch g.Format {
	case framecast.FormatRGB24, framecast.FormatBGR24:
		for x := 0; x < width; x++ {
			c := bar(x)
			if g.Format == framecast.FormatBGR24 {
				c[0], c[2] = c[2], c[0]
			}
			copy(row[x*3:], c[:])
		}
	case framecast.FormatGray8:
		for x := 0; x < width; x++ {
			y, _, _ := rgbToYUV(bar(x))
			row[x] = y
		}
	case framecast.FormatYUYV:
		for x := 0; x+1 < width; x += 2 {
			y0, u, v := rgbToYUV(bar(x))
			y1, _, _ := rgbToYUV(bar(x + 1))
			row[x*2], row[x*2+1], row[x*2+2], row[x*2+3] = y0, u, y1, v
		}
	}

	stride := int(g.Stride())
	line := int(n % uint64(g.Height))
	for y := 0; y < int(g.Height); y++ {
		dst := frame[y*stride : (y+1)*stride]
		if y == line {
			fillWhite(dst, g.Format)
			continue
		}
		copy(dst, row)
	}
}

func fillWhite(dst []byte, f framecast.PixelFormat) {
	if f != framecast.FormatYUYV {
		for i := range dst {
			dst[i] = 235
		}
		return
	}
	for i := 0; i+3 < len(dst); i += 4 {
		dst[i], dst[i+1], dst[i+2], dst[i+3] = 235, 128, 235, 128
	}
}

// rgbToYUV converts studio-range RGB to BT.601 YCbCr.
func rgbToYUV(c [3]byte) (y, u, v byte) {
	r, g, b := int(c[0]), int(c[1]), int(c[2])
	yy := (66*r+129*g+25*b+128)>>8 + 16
	uu := (-38*r-74*g+112*b+128)>>8 + 128
	vv := (112*r-94*g-18*b+128)>>8 + 128
	return clamp8(yy), clamp8(uu), clamp8(vv)
}

func clamp8(v int) byte {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return byte(v)
	}
}
