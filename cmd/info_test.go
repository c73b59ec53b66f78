package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/smazurov/framecast/pkg/framecast"
)

func TestPrintInfo(t *testing.T) {
	info := framecast.FrameInfo{
		Geometry:    framecast.Geometry{Width: 320, Height: 240, Format: framecast.FormatGray8},
		Stride:      320,
		Capacity:    76800,
		FrameNumber: 42,
		ServerPID:   1234,
		ClientCount: 2,
	}

	var text bytes.Buffer
	if err := printInfo(&text, "cam0", info, false); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"cam0", "320x240", "76800", "42", "pid 1234"} {
		if !strings.Contains(text.String(), want) {
			t.Errorf("Expected output to contain %q:\n%s", want, text.String())
		}
	}

	var raw bytes.Buffer
	if err := printInfo(&raw, "cam0", info, true); err != nil {
		t.Fatal(err)
	}
	var decoded channelInfo
	if err := json.Unmarshal(raw.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded.Width != 320 || decoded.Clients != 2 || decoded.FrameNumber != 42 {
		t.Errorf("Unexpected JSON %+v", decoded)
	}
}
