package capture

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smazurov/framecast/pkg/framecast"
)

func TestNewSource(t *testing.T) {
	g := framecast.Geometry{Width: 4, Height: 2, Format: framecast.FormatRGB24}

	tests := []struct {
		name    string
		kind    string
		path    string
		want    string
		wantErr bool
	}{
		{"default", "", "", SourcePattern, false},
		{"pattern", "pattern", "", SourcePattern, false},
		{"file", "file", "/tmp/frames.raw", SourceFile, false},
		{"file without path", "file", "", "", true},
		{"unknown", "v4l2", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := NewSource(tt.kind, g, 30, tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewSource error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && src.Name() != tt.want {
				t.Errorf("Expected source %q, got %q", tt.want, src.Name())
			}
		})
	}

	if _, err := NewSource("pattern", framecast.Geometry{}, 30, ""); err == nil {
		t.Error("Expected invalid geometry to be rejected")
	}
}

func TestPatternSourceFormats(t *testing.T) {
	formats := []framecast.PixelFormat{
		framecast.FormatRGB24,
		framecast.FormatBGR24,
		framecast.FormatGray8,
		framecast.FormatYUYV,
	}
	for _, f := range formats {
		t.Run(f.String(), func(t *testing.T) {
			g := framecast.Geometry{Width: 16, Height: 4, Format: f}
			src := NewPatternSource(g, 1000)
			ctx := context.Background()
			if err := src.Start(ctx); err != nil {
				t.Fatal(err)
			}
			defer src.Stop()

			first := make([]byte, g.FrameSize())
			n, err := src.Read(ctx, first)
			if err != nil {
				t.Fatalf("Read failed: %v", err)
			}
			if n != g.FrameSize() {
				t.Fatalf("Expected %d bytes, got %d", g.FrameSize(), n)
			}
			if bytes.Count(first, []byte{0}) == len(first) {
				t.Fatal("Expected a non-empty frame")
			}

			second := make([]byte, g.FrameSize())
			if _, err := src.Read(ctx, second); err != nil {
				t.Fatal(err)
			}
			if bytes.Equal(first, second) {
				t.Error("Expected the pattern to move between frames")
			}
		})
	}
}

func TestPatternSourceRGBOrder(t *testing.T) {
	rgb := make([]byte, 8*3*1)
	bgr := make([]byte, 8*3*1)
	g := framecast.Geometry{Width: 8, Height: 2, Format: framecast.FormatRGB24}

	frameRGB := make([]byte, g.FrameSize())
	renderPattern(frameRGB, rgb, g, 1)
	g.Format = framecast.FormatBGR24
	frameBGR := make([]byte, g.FrameSize())
	renderPattern(frameBGR, bgr, g, 1)

	// Row 1 is the sweeping line on frame 1; compare row 0.
	for x := 0; x < 8; x++ {
		r, b := frameRGB[x*3], frameRGB[x*3+2]
		if frameBGR[x*3] != b || frameBGR[x*3+2] != r {
			t.Fatalf("pixel %d: BGR is not RGB with swapped channels", x)
		}
	}
}

func TestPatternSourceNotStarted(t *testing.T) {
	g := framecast.Geometry{Width: 4, Height: 2, Format: framecast.FormatGray8}
	src := NewPatternSource(g, 1000)
	if _, err := src.Read(context.Background(), make([]byte, g.FrameSize())); err == nil {
		t.Error("Expected Read before Start to fail")
	}
}

func TestPacerHonoursContext(t *testing.T) {
	p := newPacer(1)
	ctx, cancel := context.WithCancel(context.Background())
	if err := p.wait(ctx); err != nil {
		t.Fatalf("first wait should not block: %v", err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	if err := p.wait(ctx); err == nil {
		t.Fatal("Expected cancelled wait to fail")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("Expected wait to return promptly on cancel")
	}
}

func TestFileSourceLoops(t *testing.T) {
	g := framecast.Geometry{Width: 2, Height: 2, Format: framecast.FormatGray8}
	path := filepath.Join(t.TempDir(), "frames.raw")
	// Two frames plus a partial tail that must be skipped.
	data := []byte{1, 1, 1, 1, 2, 2, 2, 2, 9, 9}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	src := NewFileSource(path, g, 1000)
	ctx := context.Background()
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer src.Stop()

	buf := make([]byte, g.FrameSize())
	var got []byte
	for i := 0; i < 5; i++ {
		if _, err := src.Read(ctx, buf); err != nil {
			t.Fatalf("Read %d failed: %v", i, err)
		}
		got = append(got, buf[0])
	}
	if !bytes.Equal(got, []byte{1, 2, 1, 2, 1}) {
		t.Errorf("Expected frames to loop 1,2,1,2,1, got %v", got)
	}

	if err := src.Stop(); err != nil {
		t.Fatal(err)
	}
	if _, err := src.Read(ctx, buf); err == nil {
		t.Error("Expected Read after Stop to fail")
	}
}

func TestFileSourceTooShort(t *testing.T) {
	g := framecast.Geometry{Width: 4, Height: 4, Format: framecast.FormatRGB24}
	path := filepath.Join(t.TempDir(), "short.raw")
	if err := os.WriteFile(path, make([]byte, 10), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := NewFileSource(path, g, 30).Start(context.Background()); err == nil {
		t.Error("Expected a file shorter than one frame to be rejected")
	}
	if err := NewFileSource(filepath.Join(t.TempDir(), "missing"), g, 30).Start(context.Background()); err == nil {
		t.Error("Expected a missing file to be rejected")
	}
}
