package framecast

import (
	"fmt"
	"unsafe"
)

// Protocol identity stamped into every channel header.
const (
	Magic           uint32 = 0x54534346 // "FCST"
	ProtocolVersion uint32 = 1
)

// HeaderSize is the size of Header in bytes. The frame slot starts here.
const HeaderSize = 72

// PixelFormat identifies the pixel layout of the frame slot.
type PixelFormat uint32

// Pixel formats understood by the protocol.
const (
	FormatRGB24 PixelFormat = 0
	FormatBGR24 PixelFormat = 1
	FormatGray8 PixelFormat = 2
	FormatYUYV  PixelFormat = 3
)

// BytesPerPixel returns the packed pixel size, or 0 for unknown formats.
func (f PixelFormat) BytesPerPixel() uint32 {
	switch f {
	case FormatRGB24, FormatBGR24:
		return 3
	case FormatYUYV:
		return 2
	case FormatGray8:
		return 1
	default:
		return 0
	}
}

func (f PixelFormat) String() string {
	switch f {
	case FormatRGB24:
		return "rgb24"
	case FormatBGR24:
		return "bgr24"
	case FormatGray8:
		return "gray8"
	case FormatYUYV:
		return "yuyv"
	default:
		return fmt.Sprintf("format(%d)", uint32(f))
	}
}

// ParsePixelFormat converts a format name to a PixelFormat.
func ParsePixelFormat(name string) (PixelFormat, error) {
	switch name {
	case "rgb24", "RGB24", "":
		return FormatRGB24, nil
	case "bgr24", "BGR24":
		return FormatBGR24, nil
	case "gray8", "GRAY8", "gray":
		return FormatGray8, nil
	case "yuyv", "YUYV", "yuyv422":
		return FormatYUYV, nil
	default:
		return 0, fmt.Errorf("unknown pixel format %q", name)
	}
}

// Header is the fixed-size block at the start of the shared region.
// Field order and widths are the wire contract; do not reorder.
type Header struct {
	Magic       uint32    // offset 0
	Version     uint32    // offset 4
	Width       uint32    // offset 8
	Height      uint32    // offset 12
	Stride      uint32    // offset 16
	Format      uint32    // offset 20
	FrameNumber uint64    // offset 24
	Timestamp   uint64    // offset 32, 100ns ticks
	DataOffset  uint32    // offset 40
	DataSize    uint32    // offset 44
	ServerPID   uint32    // offset 48, 0 = no live server
	ClientCount int32     // offset 52, atomic
	Reserved    [4]uint32 // offset 56
}

// Compile-time layout assertions. A mismatch here breaks every peer built
// from a different revision.
var (
	_ [HeaderSize]byte = [unsafe.Sizeof(Header{})]byte{}
	_ [24]byte         = [unsafe.Offsetof(Header{}.FrameNumber)]byte{}
	_ [32]byte         = [unsafe.Offsetof(Header{}.Timestamp)]byte{}
	_ [40]byte         = [unsafe.Offsetof(Header{}.DataOffset)]byte{}
	_ [48]byte         = [unsafe.Offsetof(Header{}.ServerPID)]byte{}
	_ [52]byte         = [unsafe.Offsetof(Header{}.ClientCount)]byte{}
)

// Geometry describes the frames carried by a channel. It is fixed for the
// channel's lifetime.
type Geometry struct {
	Width  uint32
	Height uint32
	Format PixelFormat
}

// Stride returns the number of bytes per row.
func (g Geometry) Stride() uint32 {
	return g.Width * g.Format.BytesPerPixel()
}

// FrameSize returns the capacity of the frame slot in bytes.
func (g Geometry) FrameSize() int {
	return int(g.Stride()) * int(g.Height)
}

// RegionSize returns the total size of the shared region.
func (g Geometry) RegionSize() int {
	return HeaderSize + g.FrameSize()
}

// Validate reports whether the geometry can back a channel.
func (g Geometry) Validate() error {
	if g.Width == 0 || g.Height == 0 {
		return fmt.Errorf("invalid geometry %dx%d", g.Width, g.Height)
	}
	if g.Format.BytesPerPixel() == 0 {
		return fmt.Errorf("unsupported pixel format %s", g.Format)
	}
	if uint64(g.Width)*uint64(g.Height)*uint64(g.Format.BytesPerPixel()) > 1<<31 {
		return fmt.Errorf("frame %dx%d %s exceeds 2GiB", g.Width, g.Height, g.Format)
	}
	return nil
}

func (g Geometry) String() string {
	return fmt.Sprintf("%dx%d %s", g.Width, g.Height, g.Format)
}

// headerAt views the first HeaderSize bytes of mem as a Header.
// mem must come from an mmap, which is always page aligned.
func headerAt(mem []byte) *Header {
	return (*Header)(unsafe.Pointer(&mem[0]))
}

// initHeader zero-fills the header and stamps geometry and owner. Magic is
// left at zero; the caller publishes it last so readers never observe a
// half-written header as valid.
func initHeader(mem []byte, g Geometry, pid uint32) *Header {
	clear(mem[:HeaderSize])
	h := headerAt(mem)
	h.Version = ProtocolVersion
	h.Width = g.Width
	h.Height = g.Height
	h.Stride = g.Stride()
	h.Format = uint32(g.Format)
	h.DataOffset = HeaderSize
	h.DataSize = 0
	h.ServerPID = pid
	h.ClientCount = 0
	return h
}

// geometry returns the geometry advertised by the header.
func (h *Header) geometry() Geometry {
	return Geometry{Width: h.Width, Height: h.Height, Format: PixelFormat(h.Format)}
}
