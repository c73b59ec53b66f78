package preview

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/smazurov/framecast/pkg/framecast"
)

// toImage wraps or converts a raw frame into an image.Image. RGB input is
// copied into RGBA; gray and YUYV frames are converted plane by plane.
func toImage(g framecast.Geometry, data []byte) (image.Image, error) {
	if len(data) < g.FrameSize() {
		return nil, fmt.Errorf("frame holds %d bytes, %s needs %d", len(data), g, g.FrameSize())
	}
	w, h := int(g.Width), int(g.Height)
	rect := image.Rect(0, 0, w, h)

	switch g.Format {
	case framecast.FormatRGB24, framecast.FormatBGR24:
		img := image.NewRGBA(rect)
		r, b := 0, 2
		if g.Format == framecast.FormatBGR24 {
			r, b = 2, 0
		}
		for i, j := 0, 0; i < w*h*3; i, j = i+3, j+4 {
			img.Pix[j] = data[i+r]
			img.Pix[j+1] = data[i+1]
			img.Pix[j+2] = data[i+b]
			img.Pix[j+3] = 0xff
		}
		return img, nil

	case framecast.FormatGray8:
		img := image.NewGray(rect)
		copy(img.Pix, data[:w*h])
		return img, nil

	case framecast.FormatYUYV:
		img := image.NewYCbCr(rect, image.YCbCrSubsampleRatio422)
		for y := 0; y < h; y++ {
			row := data[y*w*2 : (y+1)*w*2]
			for x := 0; x+1 < w; x += 2 {
				i := x * 2
				img.Y[y*img.YStride+x] = row[i]
				img.Y[y*img.YStride+x+1] = row[i+2]
				c := y*img.CStride + x/2
				img.Cb[c] = row[i+1]
				img.Cr[c] = row[i+3]
			}
		}
		return img, nil

	default:
		return nil, fmt.Errorf("unsupported pixel format %s", g.Format)
	}
}

// encodeJPEG renders a raw frame as a JPEG at the given quality.
func encodeJPEG(g framecast.Geometry, data []byte, quality int) ([]byte, error) {
	img, err := toImage(g, data)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
