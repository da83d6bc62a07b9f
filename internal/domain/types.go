package domain

import "time"

// SessionState models the interview session lifecycle.
type SessionState string

const (
	SessionStateIdle       SessionState = "idle"
	SessionStateConnecting SessionState = "connecting"
	SessionStateOpen       SessionState = "open"
	SessionStateClosing    SessionState = "closing"
)

// SessionStateReason provides a structured reason for state transitions.
type SessionStateReason string

const (
	SessionReasonReady              SessionStateReason = "ready"
	SessionReasonConnecting         SessionStateReason = "connecting"
	SessionReasonInterviewStarted   SessionStateReason = "interview_started"
	SessionReasonInterviewPaused    SessionStateReason = "interview_paused"
	SessionReasonInterviewResumed   SessionStateReason = "interview_resumed"
	SessionReasonInterviewEnding    SessionStateReason = "interview_ending"
	SessionReasonInterviewEnded     SessionStateReason = "interview_ended"
	SessionReasonRemoteClosed       SessionStateReason = "remote_closed"
	SessionReasonConnectFailed      SessionStateReason = "connect_failed"
	SessionReasonSessionFailed      SessionStateReason = "session_failed"
	SessionReasonGeneratingFeedback SessionStateReason = "generating_feedback"
)

// ErrorCode identifies the error taxonomy surfaced to the user.
type ErrorCode string

const (
	ErrorCodeStartup           ErrorCode = "startup"
	ErrorCodeMicPermission     ErrorCode = "mic_permission"
	ErrorCodeMicNotFound       ErrorCode = "mic_not_found"
	ErrorCodeCameraUnavailable ErrorCode = "camera_unavailable"
	ErrorCodeCredentialMissing ErrorCode = "credential_missing"
	ErrorCodeCredentialInvalid ErrorCode = "credential_invalid"
	ErrorCodeQuotaExceeded     ErrorCode = "quota_exceeded"
	ErrorCodeModelUnavailable  ErrorCode = "model_unavailable"
	ErrorCodeConnection        ErrorCode = "connection"
	ErrorCodePlayback          ErrorCode = "playback"
	ErrorCodeFeedback          ErrorCode = "feedback"
	ErrorCodeClipboard         ErrorCode = "clipboard"
	ErrorCodeUnknown           ErrorCode = "unknown"
)

// TranscriptRole identifies the speaker of a transcript entry.
type TranscriptRole string

const (
	RoleUser  TranscriptRole = "user"
	RoleModel TranscriptRole = "model"
)

// TranscriptionEntry is one finalized utterance. Entries are append-only and
// created only on turn completion, never for interim partials.
type TranscriptionEntry struct {
	Role      TranscriptRole `json:"role"`
	Text      string         `json:"text"`
	Timestamp time.Time      `json:"timestamp"`
}

// CapturedFrame is one retained video snapshot, JPEG-encoded, already
// mirrored and downsampled at capture.
type CapturedFrame struct {
	Data       []byte    `json:"-"`
	MimeType   string    `json:"mimeType"`
	CapturedAt time.Time `json:"capturedAt"`
}

// SessionContext is the immutable snapshot taken at session start. The
// feedback synthesizer reads it after the live session is gone.
type SessionContext struct {
	SessionID      string
	JobDescription string
	ResumeText     string
	APIKey         string
}

// HasBackground reports whether any candidate context was supplied.
func (c SessionContext) HasBackground() bool {
	return c.JobDescription != "" || c.ResumeText != ""
}

// ServerEventKind tags the ServerEvent union.
type ServerEventKind string

const (
	ServerEventAudio        ServerEventKind = "audio"
	ServerEventInterrupted  ServerEventKind = "interrupted"
	ServerEventPartialText  ServerEventKind = "partial_text"
	ServerEventTurnComplete ServerEventKind = "turn_complete"
)

// ServerEvent is one demuxed inbound message from the realtime endpoint.
// Only the fields matching Kind are meaningful.
type ServerEvent struct {
	Kind ServerEventKind

	// Audio holds decoded response PCM bytes for ServerEventAudio.
	Audio []byte
	// Role and Text are set for ServerEventPartialText.
	Role TranscriptRole
	Text string
}

// Status summarizes the externally observable interview state.
type Status struct {
	State     SessionState `json:"state"`
	Active    bool         `json:"active"`
	Paused    bool         `json:"paused"`
	Speaking  bool         `json:"speaking"`
	Questions int          `json:"questions"`
	Message   string       `json:"message,omitempty"`
}

// FeedbackResult is returned once an interview ends and the critique call
// resolves.
type FeedbackResult struct {
	SessionID string    `json:"sessionId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}
