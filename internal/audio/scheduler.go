package audio

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"
)

// Player consumes raw PCM16LE audio for immediate playback.
type Player interface {
	Write(pcm []byte) error
	Reset() error
}

// Scheduler lines response audio chunks up for gap-free sequential playback.
// Each enqueued chunk starts at the later of the cursor and the current
// clock time, never overlapping a previously enqueued chunk. The live set of
// sources doubles as the "agent is speaking" signal.
type Scheduler struct {
	player     Player
	now        func() time.Time
	onSpeaking func(bool)
	onError    func(error)

	mu      sync.Mutex
	cursor  time.Time
	sources map[int64]*source
	nextID  int64
}

type source struct {
	start *time.Timer
	done  *time.Timer
}

// NewScheduler creates a playback scheduler writing into player. onSpeaking
// is invoked on every transition of the speaking signal; onError receives
// player write failures. Either callback may be nil.
func NewScheduler(player Player, onSpeaking func(bool), onError func(error)) *Scheduler {
	return newSchedulerWithClock(player, onSpeaking, onError, time.Now)
}

func newSchedulerWithClock(player Player, onSpeaking func(bool), onError func(error), now func() time.Time) *Scheduler {
	return &Scheduler{
		player:     player,
		now:        now,
		onSpeaking: onSpeaking,
		onError:    onError,
		sources:    make(map[int64]*source),
	}
}

// Enqueue schedules buf strictly after every previously enqueued chunk and
// returns its start time. The source removes itself from the live set when
// playback naturally completes.
func (s *Scheduler) Enqueue(buf *Buffer) (time.Time, error) {
	dur := buf.Duration()
	if dur <= 0 {
		return time.Time{}, fmt.Errorf("enqueue: empty audio buffer")
	}
	pcm := interleavePCM16(buf)

	s.mu.Lock()
	now := s.now()
	start := s.cursor
	if start.Before(now) {
		start = now
	}
	s.cursor = start.Add(dur)

	s.nextID++
	id := s.nextID
	src := &source{}
	s.sources[id] = src
	wasEmpty := len(s.sources) == 1

	src.start = time.AfterFunc(start.Sub(now), func() {
		if err := s.player.Write(pcm); err != nil && s.onError != nil {
			s.onError(fmt.Errorf("playback write: %w", err))
		}
	})
	src.done = time.AfterFunc(s.cursor.Sub(now), func() {
		s.complete(id)
	})
	s.mu.Unlock()

	if wasEmpty && s.onSpeaking != nil {
		s.onSpeaking(true)
	}
	return start, nil
}

// Interrupt stops every active source immediately, clears the live set, and
// resets the cursor so the next chunk starts fresh relative to current time.
// It models a barge-in cutting the agent off mid-sentence.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	hadSources := len(s.sources) > 0
	for id, src := range s.sources {
		src.start.Stop()
		src.done.Stop()
		delete(s.sources, id)
	}
	s.cursor = time.Time{}
	s.mu.Unlock()

	if hadSources {
		if err := s.player.Reset(); err != nil && s.onError != nil {
			s.onError(fmt.Errorf("playback reset: %w", err))
		}
		if s.onSpeaking != nil {
			s.onSpeaking(false)
		}
	}
}

// Speaking reports whether any source is still live.
func (s *Scheduler) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sources) > 0
}

func (s *Scheduler) complete(id int64) {
	s.mu.Lock()
	_, ok := s.sources[id]
	if ok {
		delete(s.sources, id)
	}
	empty := len(s.sources) == 0
	s.mu.Unlock()

	if ok && empty && s.onSpeaking != nil {
		s.onSpeaking(false)
	}
}

func interleavePCM16(buf *Buffer) []byte {
	channels := len(buf.Channels)
	if channels == 0 {
		return nil
	}
	frames := len(buf.Channels[0])
	out := make([]byte, frames*channels*bytesPerSample)
	for f := 0; f < frames; f++ {
		for ch := 0; ch < channels; ch++ {
			v := buf.Channels[ch][f]
			if v > 1 {
				v = 1
			} else if v < -1 {
				v = -1
			}
			sample := int16(v * 32767)
			binary.LittleEndian.PutUint16(out[(f*channels+ch)*bytesPerSample:], uint16(sample))
		}
	}
	return out
}
