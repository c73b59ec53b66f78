package preview

import (
	"bytes"
	"image/jpeg"
	"testing"

	"github.com/smazurov/framecast/pkg/framecast"
)

func TestToImageRGBOrder(t *testing.T) {
	g := framecast.Geometry{Width: 2, Height: 1, Format: framecast.FormatRGB24}
	data := []byte{200, 10, 20, 30, 40, 50}

	img, err := toImage(g, data)
	if err != nil {
		t.Fatal(err)
	}
	r, gg, b, _ := img.At(0, 0).RGBA()
	if r>>8 != 200 || gg>>8 != 10 || b>>8 != 20 {
		t.Errorf("Expected (200,10,20), got (%d,%d,%d)", r>>8, gg>>8, b>>8)
	}

	g.Format = framecast.FormatBGR24
	img, err = toImage(g, data)
	if err != nil {
		t.Fatal(err)
	}
	r, _, b, _ = img.At(0, 0).RGBA()
	if r>>8 != 20 || b>>8 != 200 {
		t.Errorf("Expected BGR input to swap red and blue, got r=%d b=%d", r>>8, b>>8)
	}
}

func TestEncodeJPEGFormats(t *testing.T) {
	formats := []framecast.PixelFormat{
		framecast.FormatRGB24,
		framecast.FormatBGR24,
		framecast.FormatGray8,
		framecast.FormatYUYV,
	}
	for _, f := range formats {
		t.Run(f.String(), func(t *testing.T) {
			g := framecast.Geometry{Width: 16, Height: 8, Format: f}
			data := bytes.Repeat([]byte{128}, g.FrameSize())

			out, err := encodeJPEG(g, data, 80)
			if err != nil {
				t.Fatalf("encodeJPEG failed: %v", err)
			}
			img, err := jpeg.Decode(bytes.NewReader(out))
			if err != nil {
				t.Fatalf("output is not a JPEG: %v", err)
			}
			if b := img.Bounds(); b.Dx() != 16 || b.Dy() != 8 {
				t.Errorf("Expected 16x8, got %dx%d", b.Dx(), b.Dy())
			}
		})
	}
}

func TestEncodeJPEGShortFrame(t *testing.T) {
	g := framecast.Geometry{Width: 4, Height: 4, Format: framecast.FormatGray8}
	if _, err := encodeJPEG(g, make([]byte, 10), 80); err == nil {
		t.Error("Expected a short frame to be rejected")
	}
}
