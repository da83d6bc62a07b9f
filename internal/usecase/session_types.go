package usecase

import (
	"sync"
	"sync/atomic"
	"time"

	"interviewcoach/internal/audio"
	"interviewcoach/internal/domain"
	"interviewcoach/internal/ports"
)

// Playback schedules decoded response audio for gap-free sequential play.
type Playback interface {
	Enqueue(buf *audio.Buffer) (time.Time, error)
	Interrupt()
	Close() error
}

// PlaybackFactory builds the playback pipeline for one session. onSpeaking
// observes the "agent is speaking" signal.
type PlaybackFactory func(onSpeaking func(bool), onError func(error)) (Playback, error)

type activeSession struct {
	id     string
	cancel func()

	mic      ports.AudioSession
	camera   ports.VideoSession
	stream   ports.RealtimeSession
	playback Playback

	assembler *transcriptAssembler
	frames    *frameBuffer
	sctx      domain.SessionContext

	// open is the one true race of the pipeline: it is checked immediately
	// before every send and flipped false by any close or error path.
	open   atomic.Bool
	paused atomic.Bool

	stopFrames chan struct{}
	audioDone  chan struct{}
	framesDone chan struct{}
	eventsDone chan struct{}

	stateMu sync.Mutex
	state   domain.SessionState

	endOnce sync.Once
}

func (s *activeSession) setState(state domain.SessionState) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.state = state
}

func (s *activeSession) getState() domain.SessionState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}
