package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"interviewcoach/internal/audio"
	"interviewcoach/internal/domain"
	"interviewcoach/internal/ports"
	"interviewcoach/internal/prompt"
)

var ErrSessionActive = errors.New("an interview session is already active")

// Config controls session behavior.
type Config struct {
	Audio        ports.AudioConfig
	Video        ports.VideoConfig
	VideoEnabled bool

	Voice              string
	APIKey             string
	PlaybackSampleRate int

	ChunkSize       int
	FrameTick       time.Duration
	RetainEvery     time.Duration
	FrameBufferSize int
	InterimFlush    time.Duration

	// ClassifyConnectError maps realtime connect failures onto the
	// user-facing taxonomy. Defaults to ErrorCodeConnection.
	ClassifyConnectError func(error) domain.ErrorCode
}

// SessionController owns the lifecycle of the realtime interview connection:
// it opens it, wires microphone capture into outbound audio, routes inbound
// events, and tears everything down deterministically on end or error.
type SessionController struct {
	audioCapture ports.AudioCapture
	videoCapture ports.VideoCapture
	provider     ports.RealtimeProvider
	newPlayback  PlaybackFactory
	feedback     *feedbackSynthesizer
	prompts      *prompt.Builder
	clipboard    ports.Clipboard
	events       ports.EventSink
	log          *slog.Logger
	cfg          Config

	speaking atomic.Bool

	mu        sync.Mutex
	state     domain.SessionState
	current   *activeSession
	apiKey    string
	questions int
	feedbacks []domain.FeedbackResult
}

func NewSessionController(
	audioCapture ports.AudioCapture,
	videoCapture ports.VideoCapture,
	provider ports.RealtimeProvider,
	feedbackProvider ports.FeedbackProvider,
	prompts *prompt.Builder,
	newPlayback PlaybackFactory,
	clipboard ports.Clipboard,
	events ports.EventSink,
	log *slog.Logger,
	cfg Config,
) *SessionController {
	if log == nil {
		log = slog.Default()
	}
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	if cfg.PlaybackSampleRate <= 0 {
		cfg.PlaybackSampleRate = 24000
	}
	if cfg.ClassifyConnectError == nil {
		cfg.ClassifyConnectError = func(error) domain.ErrorCode { return domain.ErrorCodeConnection }
	}
	return &SessionController{
		audioCapture: audioCapture,
		videoCapture: videoCapture,
		provider:     provider,
		newPlayback:  newPlayback,
		feedback:     newFeedbackSynthesizer(feedbackProvider, prompts, log),
		prompts:      prompts,
		clipboard:    clipboard,
		events:       events,
		log:          log,
		cfg:          cfg,
		state:        domain.SessionStateIdle,
		apiKey:       strings.TrimSpace(cfg.APIKey),
	}
}

// SetCredential overrides the configured API key, e.g. from user input.
func (c *SessionController) SetCredential(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiKey = strings.TrimSpace(key)
}

// Start begins a new interview session. The credential precondition is
// checked before any device is touched: a missing key surfaces exactly one
// error and the microphone is never requested.
func (c *SessionController) Start(ctx context.Context, jobDescription, resumeText string) error {
	c.mu.Lock()
	if c.current != nil || c.state != domain.SessionStateIdle {
		c.mu.Unlock()
		return ErrSessionActive
	}
	apiKey := c.apiKey
	if apiKey == "" {
		c.mu.Unlock()
		c.events.SessionError(domain.ErrorCodeCredentialMissing, "no API key configured")
		return errors.New("no API key configured")
	}
	c.state = domain.SessionStateConnecting
	c.questions = 0
	c.mu.Unlock()

	c.events.SessionStateChanged(domain.SessionStateConnecting, domain.SessionReasonConnecting)

	sctx := domain.SessionContext{
		SessionID:      uuid.NewString(),
		JobDescription: strings.TrimSpace(jobDescription),
		ResumeText:     strings.TrimSpace(resumeText),
		APIKey:         apiKey,
	}

	sessionCtx, cancel := context.WithCancel(ctx)

	mic, err := c.audioCapture.Start(sessionCtx, c.cfg.Audio)
	if err != nil {
		cancel()
		return c.connectFailed(classifyCaptureError(err), err)
	}

	var camera ports.VideoSession
	if c.cfg.VideoEnabled && c.videoCapture != nil {
		camera, err = c.videoCapture.Start(sessionCtx, c.cfg.Video)
		if err != nil {
			_ = mic.Stop()
			cancel()
			return c.connectFailed(domain.ErrorCodeCameraUnavailable, err)
		}
	}

	playback, err := c.newPlayback(c.onSpeaking, c.onPlaybackError)
	if err != nil {
		_ = mic.Stop()
		if camera != nil {
			_ = camera.Stop()
		}
		cancel()
		return c.connectFailed(domain.ErrorCodePlayback, err)
	}

	stream, err := c.provider.Connect(sessionCtx, apiKey, ports.RealtimeConfig{
		Voice:             c.cfg.Voice,
		SystemInstruction: c.prompts.Interviewer(sctx),
	})
	if err != nil {
		_ = mic.Stop()
		if camera != nil {
			_ = camera.Stop()
		}
		_ = playback.Close()
		cancel()
		return c.connectFailed(c.cfg.ClassifyConnectError(err), err)
	}

	active := &activeSession{
		id:         sctx.SessionID,
		cancel:     cancel,
		mic:        mic,
		camera:     camera,
		stream:     stream,
		playback:   playback,
		assembler:  newTranscriptAssembler(c.events, c.cfg.InterimFlush),
		frames:     newFrameBuffer(c.cfg.FrameBufferSize),
		sctx:       sctx,
		stopFrames: make(chan struct{}),
		audioDone:  make(chan struct{}),
		framesDone: make(chan struct{}),
		eventsDone: make(chan struct{}),
		state:      domain.SessionStateOpen,
	}
	// Wired at this transition only: the mic feeds outbound audio from here.
	active.open.Store(true)

	c.mu.Lock()
	c.current = active
	c.state = domain.SessionStateOpen
	c.mu.Unlock()

	go c.consumeServerEvents(active)
	go pumpAudioChunks(active.mic, active.stream, &active.open, &active.paused,
		c.cfg.ChunkSize, c.cfg.Audio.SampleRate, active.audioDone)
	if camera != nil {
		go sampleFrames(camera, active.stream, active.frames, &active.open, &active.paused,
			c.cfg.FrameTick, c.cfg.RetainEvery, active.stopFrames, active.framesDone)
	} else {
		close(active.framesDone)
	}

	// Remote close or error ends the event stream; finish the session then.
	go func() {
		<-active.eventsDone
		if active.open.Load() || active.getState() == domain.SessionStateOpen {
			c.finishSession(context.Background(), active, domain.SessionReasonRemoteClosed)
		}
	}()

	c.events.SessionStateChanged(domain.SessionStateOpen, domain.SessionReasonInterviewStarted)
	c.log.Info("interview session opened", "session", sctx.SessionID, "camera", camera != nil)
	return nil
}

// Stop ends the active session. It is idempotent and safe to invoke from
// any state, including when no resources were ever acquired.
func (c *SessionController) Stop(ctx context.Context) error {
	c.mu.Lock()
	active := c.current
	c.mu.Unlock()
	if active == nil {
		return nil
	}
	c.finishSession(ctx, active, domain.SessionReasonInterviewEnded)
	return nil
}

// Pause mutes outbound audio and frames without tearing the session down.
func (c *SessionController) Pause() error {
	active, err := c.requireOpen()
	if err != nil {
		return err
	}
	if active.paused.CompareAndSwap(false, true) {
		c.events.SessionStateChanged(domain.SessionStateOpen, domain.SessionReasonInterviewPaused)
	}
	return nil
}

// Resume re-enables outbound audio and frames after Pause.
func (c *SessionController) Resume() error {
	active, err := c.requireOpen()
	if err != nil {
		return err
	}
	if active.paused.CompareAndSwap(true, false) {
		c.events.SessionStateChanged(domain.SessionStateOpen, domain.SessionReasonInterviewResumed)
	}
	return nil
}

// Status returns the externally observable interview state.
func (c *SessionController) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	status := domain.Status{
		State:     c.state,
		Questions: c.questions,
		Speaking:  c.speaking.Load(),
	}
	if c.current != nil {
		status.State = c.current.getState()
		status.Paused = c.current.paused.Load()
	}
	status.Active = status.State != domain.SessionStateIdle
	return status
}

// Feedbacks returns every critique generated since startup, oldest first.
func (c *SessionController) Feedbacks() []domain.FeedbackResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.FeedbackResult, len(c.feedbacks))
	copy(out, c.feedbacks)
	return out
}

// CopyLastFeedback writes the most recent critique to the system clipboard.
func (c *SessionController) CopyLastFeedback(ctx context.Context) error {
	c.mu.Lock()
	var last string
	if n := len(c.feedbacks); n > 0 {
		last = c.feedbacks[n-1].Text
	}
	c.mu.Unlock()

	if last == "" {
		return errors.New("no feedback available yet")
	}
	if c.clipboard == nil {
		return errors.New("clipboard is not available")
	}
	if err := c.clipboard.SetText(ctx, last); err != nil {
		c.events.SessionError(domain.ErrorCodeClipboard, err.Error())
		return err
	}
	return nil
}

// Transcript returns the finalized entries of the active session, if any.
func (c *SessionController) Transcript() []domain.TranscriptionEntry {
	c.mu.Lock()
	active := c.current
	c.mu.Unlock()
	if active == nil {
		return nil
	}
	return active.assembler.Entries()
}

func (c *SessionController) requireOpen() (*activeSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil || c.current.getState() != domain.SessionStateOpen {
		return nil, errors.New("no open interview session")
	}
	return c.current, nil
}

func (c *SessionController) onSpeaking(speaking bool) {
	c.speaking.Store(speaking)
	c.events.AgentSpeaking(speaking)
}

func (c *SessionController) onPlaybackError(err error) {
	c.log.Error("playback error", "error", err)
}

func (c *SessionController) connectFailed(code domain.ErrorCode, err error) error {
	c.log.Error("interview start failed", "code", code, "error", err)
	c.events.SessionError(code, err.Error())
	c.mu.Lock()
	c.state = domain.SessionStateIdle
	c.mu.Unlock()
	c.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonConnectFailed)
	return err
}

// consumeServerEvents demuxes inbound events: response audio to the playback
// scheduler, interruptions to its barge-in path, partial text to the
// assembler, and turn boundaries to finalization.
func (c *SessionController) consumeServerEvents(active *activeSession) {
	defer close(active.eventsDone)

	for event := range active.stream.Events() {
		switch event.Kind {
		case domain.ServerEventAudio:
			buf, err := audio.DecodeAudioData(event.Audio, c.cfg.PlaybackSampleRate, 1)
			if err != nil {
				// Malformed response audio is unrecoverable for the session.
				c.log.Error("response audio decode failed", "session", active.id, "error", err)
				c.events.SessionError(domain.ErrorCodePlayback, err.Error())
				active.open.Store(false)
				_ = active.stream.Close()
				return
			}
			if _, err := active.playback.Enqueue(buf); err != nil {
				c.log.Error("playback enqueue failed", "session", active.id, "error", err)
			}
		case domain.ServerEventInterrupted:
			active.playback.Interrupt()
		case domain.ServerEventPartialText:
			active.assembler.AddPartial(event.Role, event.Text)
		case domain.ServerEventTurnComplete:
			for _, entry := range active.assembler.TurnComplete() {
				if entry.Role == domain.RoleModel {
					c.mu.Lock()
					c.questions++
					c.mu.Unlock()
				}
			}
		}
	}
}

// finishSession tears the session down in a fixed order, then hands the
// transcript, retained frames, and session context to feedback synthesis.
// It runs exactly once per session no matter how many paths reach it.
func (c *SessionController) finishSession(ctx context.Context, active *activeSession, reason domain.SessionStateReason) {
	active.endOnce.Do(func() {
		active.setState(domain.SessionStateClosing)
		c.mu.Lock()
		c.state = domain.SessionStateClosing
		c.mu.Unlock()
		c.events.SessionStateChanged(domain.SessionStateClosing, domain.SessionReasonInterviewEnding)

		// Teardown order matters: stop new sends first, then capture, then
		// the connection, then playback.
		active.open.Store(false)
		_ = active.stream.CloseSend()
		close(active.stopFrames)
		_ = active.mic.Stop()
		if active.camera != nil {
			_ = active.camera.Stop()
		}
		streamErr := active.stream.Close()
		<-active.audioDone
		<-active.framesDone
		<-active.eventsDone
		active.playback.Interrupt()
		_ = active.playback.Close()
		active.cancel()

		if streamErr != nil && reason == domain.SessionReasonRemoteClosed {
			c.events.SessionError(domain.ErrorCodeConnection, streamErr.Error())
			reason = domain.SessionReasonSessionFailed
		}

		entries := active.assembler.Entries()
		if len(entries) > 0 {
			c.events.SessionStateChanged(domain.SessionStateClosing, domain.SessionReasonGeneratingFeedback)
			if result, ok := c.feedback.Synthesize(ctx, active.sctx, entries, active.frames.Snapshot()); ok {
				c.mu.Lock()
				c.feedbacks = append(c.feedbacks, result)
				c.mu.Unlock()
				c.events.FeedbackReady(result)
			}
		}
		active.frames.Clear()

		active.setState(domain.SessionStateIdle)
		c.speaking.Store(false)
		c.mu.Lock()
		if c.current == active {
			c.current = nil
		}
		c.state = domain.SessionStateIdle
		c.mu.Unlock()
		c.events.SessionStateChanged(domain.SessionStateIdle, reason)
		c.log.Info("interview session closed", "session", active.id, "entries", len(entries), "reason", reason)
	})
}

func classifyCaptureError(err error) domain.ErrorCode {
	var ce *audio.CaptureError
	if errors.As(err, &ce) {
		switch {
		case ce.PermissionDenied():
			return domain.ErrorCodeMicPermission
		case ce.DeviceNotFound():
			return domain.ErrorCodeMicNotFound
		}
	}
	return domain.ErrorCodeMicNotFound
}
