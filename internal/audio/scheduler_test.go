package audio

import (
	"sync"
	"testing"
	"time"
)

type fakePlayer struct {
	mu     sync.Mutex
	writes [][]byte
	resets int
}

func (p *fakePlayer) Write(pcm []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writes = append(p.writes, pcm)
	return nil
}

func (p *fakePlayer) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resets++
	return nil
}

func (p *fakePlayer) resetCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resets
}

func monoBuffer(d time.Duration) *Buffer {
	const rate = 1000
	frames := int(d / time.Millisecond)
	return &Buffer{Channels: [][]float32{make([]float32, frames)}, SampleRate: rate}
}

func TestSchedulerStartsAreSequential(t *testing.T) {
	t.Parallel()

	s := NewScheduler(&fakePlayer{}, nil, nil)

	durations := []time.Duration{30 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}
	var starts []time.Time
	for _, d := range durations {
		start, err := s.Enqueue(monoBuffer(d))
		if err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
		starts = append(starts, start)
	}

	for i := 1; i < len(starts); i++ {
		if starts[i].Before(starts[i-1]) {
			t.Fatalf("starts must be non-decreasing: %v before %v", starts[i], starts[i-1])
		}
		earliest := starts[i-1].Add(durations[i-1])
		if starts[i].Before(earliest) {
			t.Fatalf("chunk %d overlaps previous: start %v, want >= %v", i, starts[i], earliest)
		}
	}
	s.Interrupt()
}

func TestSchedulerRejectsEmptyBuffer(t *testing.T) {
	t.Parallel()

	s := NewScheduler(&fakePlayer{}, nil, nil)
	if _, err := s.Enqueue(&Buffer{SampleRate: 1000}); err == nil {
		t.Fatalf("expected error for empty buffer")
	}
}

func TestSchedulerSpeakingFollowsLiveSet(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var transitions []bool
	s := NewScheduler(&fakePlayer{}, func(speaking bool) {
		mu.Lock()
		transitions = append(transitions, speaking)
		mu.Unlock()
	}, nil)

	if s.Speaking() {
		t.Fatalf("expected not speaking before enqueue")
	}
	if _, err := s.Enqueue(monoBuffer(20 * time.Millisecond)); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if !s.Speaking() {
		t.Fatalf("expected speaking while source is live")
	}

	deadline := time.After(2 * time.Second)
	for s.Speaking() {
		select {
		case <-deadline:
			t.Fatalf("source never completed")
		case <-time.After(5 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(transitions) != 2 || transitions[0] != true || transitions[1] != false {
		t.Fatalf("unexpected speaking transitions: %v", transitions)
	}
}

func TestInterruptClearsEverything(t *testing.T) {
	t.Parallel()

	player := &fakePlayer{}
	var mu sync.Mutex
	var last bool
	s := NewScheduler(player, func(speaking bool) {
		mu.Lock()
		last = speaking
		mu.Unlock()
	}, nil)

	// Two long chunks back to back, interrupted mid-first.
	if _, err := s.Enqueue(monoBuffer(2 * time.Second)); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if _, err := s.Enqueue(monoBuffer(1500 * time.Millisecond)); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	s.Interrupt()

	if s.Speaking() {
		t.Fatalf("expected empty live set after interrupt")
	}
	mu.Lock()
	if last {
		t.Fatalf("expected speaking=false after interrupt")
	}
	mu.Unlock()
	if player.resetCount() == 0 {
		t.Fatalf("expected player reset on interrupt")
	}

	// The cursor is back at zero: the next chunk starts fresh at now.
	before := time.Now()
	start, err := s.Enqueue(monoBuffer(10 * time.Millisecond))
	if err != nil {
		t.Fatalf("enqueue after interrupt failed: %v", err)
	}
	if start.Before(before) {
		t.Fatalf("start %v precedes now %v", start, before)
	}
	if start.After(before.Add(time.Second)) {
		t.Fatalf("start %v not relative to current time", start)
	}
	s.Interrupt()
}

func TestInterruptIsIdempotent(t *testing.T) {
	t.Parallel()

	s := NewScheduler(&fakePlayer{}, nil, nil)
	s.Interrupt()
	s.Interrupt()
	if s.Speaking() {
		t.Fatalf("expected not speaking")
	}
}
