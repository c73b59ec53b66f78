package framecast

import (
	"testing"
	"unsafe"
)

func TestHeaderLayout(t *testing.T) {
	if got := unsafe.Sizeof(Header{}); got != HeaderSize {
		t.Fatalf("Expected header size %d, got %d", HeaderSize, got)
	}

	offsets := []struct {
		name string
		got  uintptr
		want uintptr
	}{
		{"Magic", unsafe.Offsetof(Header{}.Magic), 0},
		{"Version", unsafe.Offsetof(Header{}.Version), 4},
		{"Width", unsafe.Offsetof(Header{}.Width), 8},
		{"Height", unsafe.Offsetof(Header{}.Height), 12},
		{"Stride", unsafe.Offsetof(Header{}.Stride), 16},
		{"Format", unsafe.Offsetof(Header{}.Format), 20},
		{"FrameNumber", unsafe.Offsetof(Header{}.FrameNumber), 24},
		{"Timestamp", unsafe.Offsetof(Header{}.Timestamp), 32},
		{"DataOffset", unsafe.Offsetof(Header{}.DataOffset), 40},
		{"DataSize", unsafe.Offsetof(Header{}.DataSize), 44},
		{"ServerPID", unsafe.Offsetof(Header{}.ServerPID), 48},
		{"ClientCount", unsafe.Offsetof(Header{}.ClientCount), 52},
		{"Reserved", unsafe.Offsetof(Header{}.Reserved), 56},
	}
	for _, o := range offsets {
		if o.got != o.want {
			t.Errorf("%s: expected offset %d, got %d", o.name, o.want, o.got)
		}
	}
}

func TestGeometry(t *testing.T) {
	tests := []struct {
		name      string
		geometry  Geometry
		stride    uint32
		frameSize int
		wantErr   bool
	}{
		{"vga rgb", Geometry{640, 480, FormatRGB24}, 1920, 921600, false},
		{"vga bgr", Geometry{640, 480, FormatBGR24}, 1920, 921600, false},
		{"gray", Geometry{320, 240, FormatGray8}, 320, 76800, false},
		{"yuyv", Geometry{1280, 720, FormatYUYV}, 2560, 1843200, false},
		{"zero width", Geometry{0, 480, FormatRGB24}, 0, 0, true},
		{"zero height", Geometry{640, 0, FormatRGB24}, 1920, 0, true},
		{"unknown format", Geometry{640, 480, PixelFormat(9)}, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.geometry.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := tt.geometry.Stride(); got != tt.stride {
				t.Errorf("Expected stride %d, got %d", tt.stride, got)
			}
			if got := tt.geometry.FrameSize(); got != tt.frameSize {
				t.Errorf("Expected frame size %d, got %d", tt.frameSize, got)
			}
			if got := tt.geometry.RegionSize(); got != HeaderSize+tt.frameSize {
				t.Errorf("Expected region size %d, got %d", HeaderSize+tt.frameSize, got)
			}
		})
	}
}

func TestInitHeader(t *testing.T) {
	mem := make([]byte, 4096)
	for i := range mem {
		mem[i] = 0xff
	}
	g := Geometry{Width: 4, Height: 2, Format: FormatYUYV}

	h := initHeader(mem, g, 1234)

	if h.Magic != 0 {
		t.Errorf("Expected magic to stay unset, got %#x", h.Magic)
	}
	if h.Version != ProtocolVersion {
		t.Errorf("Expected version %d, got %d", ProtocolVersion, h.Version)
	}
	if h.Stride != 8 {
		t.Errorf("Expected stride 8, got %d", h.Stride)
	}
	if h.DataOffset != HeaderSize {
		t.Errorf("Expected data offset %d, got %d", HeaderSize, h.DataOffset)
	}
	if h.FrameNumber != 0 || h.DataSize != 0 || h.ClientCount != 0 {
		t.Errorf("Expected zeroed counters, got frame=%d size=%d clients=%d", h.FrameNumber, h.DataSize, h.ClientCount)
	}
	if h.ServerPID != 1234 {
		t.Errorf("Expected pid 1234, got %d", h.ServerPID)
	}
	if h.Reserved != [4]uint32{} {
		t.Errorf("Expected reserved words zeroed, got %v", h.Reserved)
	}
	if got := h.geometry(); got != g {
		t.Errorf("Expected geometry %v, got %v", g, got)
	}
	if mem[HeaderSize] != 0xff {
		t.Error("initHeader must not touch the frame slot")
	}
}

func TestParsePixelFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    PixelFormat
		wantErr bool
	}{
		{"", FormatRGB24, false},
		{"rgb24", FormatRGB24, false},
		{"BGR24", FormatBGR24, false},
		{"gray", FormatGray8, false},
		{"yuyv422", FormatYUYV, false},
		{"nv12", 0, true},
	}
	for _, tt := range tests {
		got, err := ParsePixelFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePixelFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParsePixelFormat(%q) = %v, want %v", tt.in, got, tt.want)
		}
		if !tt.wantErr {
			if back, _ := ParsePixelFormat(got.String()); back != got {
				t.Errorf("String() of %v does not parse back", got)
			}
		}
	}
}

func TestResolveNames(t *testing.T) {
	n, err := ResolveNames("/tmp/x", "cam0")
	if err != nil {
		t.Fatalf("ResolveNames failed: %v", err)
	}
	if n.Region != "/tmp/x/cam0.frame" || n.Mutex != "/tmp/x/cam0.mutex" ||
		n.FrameEvent != "/tmp/x/cam0.frame-event" || n.ClientEvent != "/tmp/x/cam0.client-event" {
		t.Errorf("Unexpected names: %+v", n)
	}

	d, err := ResolveNames("", "")
	if err != nil {
		t.Fatalf("ResolveNames with defaults failed: %v", err)
	}
	if d.Region != DefaultDir+"/"+DefaultChannel+".frame" {
		t.Errorf("Expected default region path, got %s", d.Region)
	}

	for _, bad := range []string{"a/b", "..", ".", `a\b`} {
		if _, err := ResolveNames("/tmp", bad); err == nil {
			t.Errorf("Expected error for channel name %q", bad)
		}
	}
}
