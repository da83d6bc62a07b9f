package video

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"interviewcoach/internal/ports"
)

// FFMPEGFrames captures camera stills using ffmpeg. The filter chain mirrors
// the feed horizontally and bounds the resolution before JPEG encoding, so
// every frame matches what the user saw of themselves.
type FFMPEGFrames struct {
	command string
}

func NewFFMPEGFrames(command string) *FFMPEGFrames {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFMPEGFrames{command: command}
}

func (c *FFMPEGFrames) Start(ctx context.Context, cfg ports.VideoConfig) (ports.VideoSession, error) {
	if cfg.InputFormat == "" {
		cfg.InputFormat = "v4l2"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "/dev/video0"
	}
	if cfg.Width <= 0 {
		cfg.Width = 480
	}
	if cfg.Quality <= 0 {
		cfg.Quality = 8
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 1
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-vf", fmt.Sprintf("hflip,scale=%d:-2,fps=%d", cfg.Width, cfg.FrameRate),
		"-q:v", strconv.Itoa(cfg.Quality),
		"-f", "mjpeg",
		"-",
	}

	cmd := exec.CommandContext(ctx, c.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start camera capture: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		if err != nil {
			return nil, fmt.Errorf("camera capture exited early: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
		}
		return nil, fmt.Errorf("camera capture exited early")
	case <-time.After(250 * time.Millisecond):
	}

	s := &frameSession{
		process: cmd.Process,
		waitErr: waitErr,
	}
	go s.readFrames(stdout)
	return s, nil
}

type frameSession struct {
	process *os.Process
	waitErr <-chan error

	mu     sync.Mutex
	latest []byte

	stopOnce sync.Once
}

// Latest returns the most recent complete JPEG frame, or nil when the camera
// has not produced one yet.
func (s *frameSession) Latest() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

func (s *frameSession) Stop() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Kill()
		}
		select {
		case <-s.waitErr:
		case <-time.After(1200 * time.Millisecond):
		}
	})
	return nil
}

// readFrames splits the MJPEG byte stream into discrete frames on the JPEG
// start (FFD8) and end (FFD9) markers.
func (s *frameSession) readFrames(r io.Reader) {
	for frame := range SplitMJPEG(bufio.NewReaderSize(r, 1<<16)) {
		s.mu.Lock()
		s.latest = frame
		s.mu.Unlock()
	}
}

// SplitMJPEG yields complete JPEG frames from a concatenated MJPEG stream.
// Iteration ends when the reader does.
func SplitMJPEG(r *bufio.Reader) func(yield func([]byte) bool) {
	return func(yield func([]byte) bool) {
		var (
			frame   bytes.Buffer
			inFrame bool
			prev    byte
		)
		buf := make([]byte, 4096)
		for {
			n, err := r.Read(buf)
			for i := 0; i < n; i++ {
				b := buf[i]
				if !inFrame {
					if prev == 0xFF && b == 0xD8 {
						inFrame = true
						frame.Reset()
						frame.WriteByte(0xFF)
						frame.WriteByte(0xD8)
					}
				} else {
					frame.WriteByte(b)
					if prev == 0xFF && b == 0xD9 {
						out := make([]byte, frame.Len())
						copy(out, frame.Bytes())
						if !yield(out) {
							return
						}
						inFrame = false
					}
				}
				prev = b
			}
			if err != nil {
				return
			}
		}
	}
}
