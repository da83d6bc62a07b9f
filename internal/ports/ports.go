package ports

import (
	"context"
	"io"

	"interviewcoach/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live microphone capture session producing raw
// little-endian float32 samples.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// VideoConfig describes how camera frames should be captured.
type VideoConfig struct {
	InputFormat string
	InputDevice string
	Width       int
	Quality     int
	FrameRate   int
}

// VideoSession is a live camera capture session. Latest returns the most
// recently captured JPEG frame, or nil when none has arrived yet.
type VideoSession interface {
	Latest() []byte
	Stop() error
}

// VideoCapture creates camera capture sessions.
type VideoCapture interface {
	Start(ctx context.Context, cfg VideoConfig) (VideoSession, error)
}

// RealtimeConfig describes a realtime conversation session. Sample rates are
// not negotiated here: outbound chunks carry their rate in the mime type and
// response audio arrives at the model's fixed output rate.
type RealtimeConfig struct {
	Voice             string
	SystemInstruction string
}

// RealtimeSession is an active bidirectional session with the conversational
// endpoint.
type RealtimeSession interface {
	// SendAudio transmits one base64 PCM16LE chunk with its mime type.
	SendAudio(data string, mimeType string) error
	// SendFrame transmits one JPEG frame for visual grounding.
	SendFrame(jpeg []byte) error
	CloseSend() error
	Events() <-chan domain.ServerEvent
	Wait() error
	Close() error
}

// RealtimeProvider opens realtime conversation sessions.
type RealtimeProvider interface {
	Connect(ctx context.Context, apiKey string, cfg RealtimeConfig) (RealtimeSession, error)
}

// FeedbackRequest is the snapshot handed to the feedback endpoint.
type FeedbackRequest struct {
	Instruction string
	Transcript  []domain.TranscriptionEntry
	Frames      []domain.CapturedFrame
}

// FeedbackProvider performs the single batch critique call.
type FeedbackProvider interface {
	Synthesize(ctx context.Context, apiKey string, req FeedbackRequest) (string, error)
}

// Clipboard writes text into the system clipboard.
type Clipboard interface {
	SetText(ctx context.Context, text string) error
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason)
	InterimTranscript(role domain.TranscriptRole, text string)
	TranscriptEntry(entry domain.TranscriptionEntry)
	AgentSpeaking(speaking bool)
	FeedbackReady(result domain.FeedbackResult)
	SessionError(code domain.ErrorCode, detail string)
}
