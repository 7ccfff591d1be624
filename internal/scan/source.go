package scan

import (
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"smartqr/internal/validation"
)

// ImageSource replays a fixed list of frames, then reports io.EOF.
type ImageSource struct {
	Frames []image.Image
	next   int
}

func (s *ImageSource) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.Frames) {
		return nil, io.EOF
	}
	img := s.Frames[s.next]
	s.next++
	return img, nil
}

// DirSource polls a directory for image files written by an external
// capture tool and yields each new file once, in name order.
type DirSource struct {
	Dir      string
	Interval time.Duration

	seen map[string]bool
}

// NewDirSource returns a source over dir. Files already present are
// skipped so a scan only sees frames captured after it started.
func NewDirSource(dir string, interval time.Duration) (*DirSource, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	s := &DirSource{Dir: dir, Interval: interval, seen: map[string]bool{}}
	names, err := s.list()
	if err != nil {
		return nil, err
	}
	for _, n := range names {
		s.seen[n] = true
	}
	return s, nil
}

func (s *DirSource) list() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !validation.IsImageFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (s *DirSource) Next(ctx context.Context) (image.Image, error) {
	if s.seen == nil {
		s.seen = map[string]bool{}
	}
	interval := s.Interval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	for {
		names, err := s.list()
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			if s.seen[n] {
				continue
			}
			s.seen[n] = true
			img, err := loadImage(filepath.Join(s.Dir, n))
			if err != nil {
				// Capture tools may still be writing the file.
				log.Printf("scan: skip frame %s: %v", n, err)
				continue
			}
			return img, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

// ChanSource receives frames pushed by another goroutine, such as a
// WebSocket reader.
type ChanSource struct {
	frames chan image.Image
	once   sync.Once
	done   chan struct{}
}

// NewChanSource buffers up to depth frames; further pushes drop frames
// until the reader catches up.
func NewChanSource(depth int) *ChanSource {
	if depth <= 0 {
		depth = 1
	}
	return &ChanSource{frames: make(chan image.Image, depth), done: make(chan struct{})}
}

// Push offers a frame and reports whether it was queued.
func (s *ChanSource) Push(img image.Image) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.frames <- img:
		return true
	default:
		return false
	}
}

// Close ends the source; Next then reports io.EOF.
func (s *ChanSource) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *ChanSource) Next(ctx context.Context) (image.Image, error) {
	select {
	case img := <-s.frames:
		return img, nil
	case <-s.done:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
