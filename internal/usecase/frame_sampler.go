package usecase

import (
	"sync"
	"sync/atomic"
	"time"

	"interviewcoach/internal/domain"
	"interviewcoach/internal/ports"
)

// frameBuffer is a bounded ring of retained frames: once capacity is
// exceeded the oldest retained frame is evicted, so the buffer always holds
// a time-spread sample of the whole interview rather than a recent tail.
type frameBuffer struct {
	mu       sync.Mutex
	frames   []domain.CapturedFrame
	capacity int
}

func newFrameBuffer(capacity int) *frameBuffer {
	if capacity <= 0 {
		capacity = 12
	}
	return &frameBuffer{capacity: capacity}
}

func (b *frameBuffer) Retain(frame domain.CapturedFrame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = append(b.frames, frame)
	if len(b.frames) > b.capacity {
		b.frames = b.frames[len(b.frames)-b.capacity:]
	}
}

func (b *frameBuffer) Snapshot() []domain.CapturedFrame {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.CapturedFrame, len(b.frames))
	copy(out, b.frames)
	return out
}

func (b *frameBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

func (b *frameBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = nil
}

// sampleFrames drives both frame duties off one capture tick: every tick the
// freshest camera frame is forwarded live for visual grounding, and only
// every retainEvery is a frame also kept for post-interview analysis. The
// two cadences are decoupled on purpose.
func sampleFrames(
	camera ports.VideoSession,
	stream ports.RealtimeSession,
	buffer *frameBuffer,
	open *atomic.Bool,
	paused *atomic.Bool,
	tick time.Duration,
	retainEvery time.Duration,
	stop <-chan struct{},
	done chan struct{},
) {
	defer close(done)

	if tick <= 0 {
		tick = time.Second
	}
	if retainEvery < tick {
		retainEvery = tick
	}

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	var lastRetained time.Time
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			if paused.Load() {
				continue
			}
			frame := camera.Latest()
			if len(frame) == 0 {
				continue
			}
			if open.Load() {
				if err := stream.SendFrame(frame); err != nil {
					open.Store(false)
				}
			}
			if lastRetained.IsZero() || now.Sub(lastRetained) >= retainEvery {
				lastRetained = now
				kept := make([]byte, len(frame))
				copy(kept, frame)
				buffer.Retain(domain.CapturedFrame{
					Data:       kept,
					MimeType:   "image/jpeg",
					CapturedAt: now,
				})
			}
		}
	}
}
