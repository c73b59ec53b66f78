package cmd

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/smazurov/framecast/pkg/framecast"
)

type fakeInfoSource struct {
	connected  bool
	connectErr error
	info       framecast.FrameInfo
	alive      bool
}

func (f *fakeInfoSource) IsConnected() bool { return f.connected }
func (f *fakeInfoSource) ServerAlive() bool { return f.alive }
func (f *fakeInfoSource) Disconnect() error { f.connected = false; return nil }
func (f *fakeInfoSource) FrameInfo() (framecast.FrameInfo, error) {
	if !f.connected {
		return framecast.FrameInfo{}, framecast.ErrNotConnected
	}
	return f.info, nil
}

func (f *fakeInfoSource) Connect() error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func TestTopModelRate(t *testing.T) {
	m := newTopModel("cam0", time.Second, &fakeInfoSource{})
	start := time.Now()
	geom := framecast.Geometry{Width: 640, Height: 480, Format: framecast.FormatRGB24}

	m = m.apply(sampleMsg{at: start, info: framecast.FrameInfo{Geometry: geom, FrameNumber: 100, ClientCount: 3}})
	m = m.apply(sampleMsg{at: start.Add(2 * time.Second), info: framecast.FrameInfo{Geometry: geom, FrameNumber: 160, ClientCount: 3}})
	if m.fps != 30 {
		t.Errorf("Expected 30 fps, got %v", m.fps)
	}

	view := m.View()
	for _, want := range []string{"cam0", "640x480", "160", "30.0 fps"} {
		if !strings.Contains(view, want) {
			t.Errorf("Expected view to contain %q:\n%s", want, view)
		}
	}

	// A restarted producer counts from 1 again; the rate must not go negative.
	m = m.apply(sampleMsg{at: start.Add(3 * time.Second), info: framecast.FrameInfo{Geometry: geom, FrameNumber: 5}})
	if m.fps < 0 {
		t.Errorf("Expected a non-negative rate, got %v", m.fps)
	}
}

func TestTopModelDisconnected(t *testing.T) {
	m := newTopModel("cam0", time.Second, &fakeInfoSource{})
	m = m.apply(sampleMsg{at: time.Now(), err: framecast.ErrChannelNotFound})
	if m.connected {
		t.Error("Expected disconnected state")
	}
	if view := m.View(); !strings.Contains(view, "waiting for producer") {
		t.Errorf("Expected waiting state in view:\n%s", view)
	}
}

func TestTopModelSample(t *testing.T) {
	src := &fakeInfoSource{connectErr: errors.New("no channel")}
	m := newTopModel("cam0", time.Second, src)
	if msg := m.sample().(sampleMsg); msg.err == nil {
		t.Error("Expected a sample error while the channel is missing")
	}

	src.connectErr = nil
	src.alive = true
	src.info = framecast.FrameInfo{FrameNumber: 7}
	msg := m.sample().(sampleMsg)
	if msg.err != nil || msg.info.FrameNumber != 7 {
		t.Errorf("Unexpected sample %+v", msg)
	}

	// A dead producer forces a reconnect on the next sample.
	src.alive = false
	m.sample()
	if !src.connected {
		t.Error("Expected the sampler to reconnect")
	}
}

func TestTopModelQuit(t *testing.T) {
	m := newTopModel("cam0", time.Second, &fakeInfoSource{})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("Expected a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("Expected q to quit")
	}
}
