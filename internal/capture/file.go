package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/smazurov/framecast/pkg/framecast"
)

// FileSource replays raw frames from a file, looping at EOF. The file is a
// plain concatenation of frames in the configured geometry; a trailing
// partial frame is skipped.
type FileSource struct {
	path     string
	geometry framecast.Geometry
	pace     *pacer

	mu sync.Mutex
	f  *os.File
}

// NewFileSource creates a source replaying path at fps.
func NewFileSource(path string, g framecast.Geometry, fps float64) *FileSource {
	return &FileSource{path: path, geometry: g, pace: newPacer(fps)}
}

func (s *FileSource) Name() string { return SourceFile }

func (s *FileSource) Geometry() framecast.Geometry { return s.geometry }

// Start opens the file and checks it holds at least one frame.
func (s *FileSource) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f != nil {
		return nil
	}
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open frame file: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat frame file: %w", err)
	}
	if st.Size() < int64(s.geometry.FrameSize()) {
		f.Close()
		return fmt.Errorf("frame file %s holds %d bytes, one %s frame needs %d",
			s.path, st.Size(), s.geometry, s.geometry.FrameSize())
	}
	s.f = f
	s.pace.reset()
	return nil
}

func (s *FileSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *FileSource) Read(ctx context.Context, dst []byte) (int, error) {
	if err := s.pace.wait(ctx); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return 0, errors.New("file source not started")
	}
	n := s.geometry.FrameSize()
	if len(dst) < n {
		return 0, errors.New("destination smaller than frame")
	}

	// At most one rewind: Start guaranteed a full frame at offset 0.
	for attempt := 0; attempt < 2; attempt++ {
		_, err := io.ReadFull(s.f, dst[:n])
		if err == nil {
			return n, nil
		}
		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, fmt.Errorf("read frame: %w", err)
		}
		if _, err := s.f.Seek(0, io.SeekStart); err != nil {
			return 0, fmt.Errorf("rewind frame file: %w", err)
		}
	}
	return 0, fmt.Errorf("frame file %s shrank below one frame", s.path)
}
