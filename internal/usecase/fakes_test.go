package usecase

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"interviewcoach/internal/audio"
	"interviewcoach/internal/domain"
	"interviewcoach/internal/ports"
)

// waitFor polls until cond holds; the goroutines under test have no
// completion hooks beyond their observable effects.
func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type stateChange struct {
	State  domain.SessionState
	Reason domain.SessionStateReason
}

type interimUpdate struct {
	Role domain.TranscriptRole
	Text string
}

type sinkError struct {
	Code   domain.ErrorCode
	Detail string
}

type fakeEventSink struct {
	mu        sync.Mutex
	states    []stateChange
	interims  []interimUpdate
	entries   []domain.TranscriptionEntry
	speaking  []bool
	feedbacks []domain.FeedbackResult
	errors    []sinkError
}

func (s *fakeEventSink) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, stateChange{State: state, Reason: reason})
}

func (s *fakeEventSink) InterimTranscript(role domain.TranscriptRole, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interims = append(s.interims, interimUpdate{Role: role, Text: text})
}

func (s *fakeEventSink) TranscriptEntry(entry domain.TranscriptionEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
}

func (s *fakeEventSink) AgentSpeaking(speaking bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speaking = append(s.speaking, speaking)
}

func (s *fakeEventSink) FeedbackReady(result domain.FeedbackResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedbacks = append(s.feedbacks, result)
}

func (s *fakeEventSink) SessionError(code domain.ErrorCode, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, sinkError{Code: code, Detail: detail})
}

func (s *fakeEventSink) stateChanges() []stateChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]stateChange, len(s.states))
	copy(out, s.states)
	return out
}

func (s *fakeEventSink) lastState() (stateChange, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.states) == 0 {
		return stateChange{}, false
	}
	return s.states[len(s.states)-1], true
}

func (s *fakeEventSink) interimUpdates() []interimUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]interimUpdate, len(s.interims))
	copy(out, s.interims)
	return out
}

func (s *fakeEventSink) transcriptEntries() []domain.TranscriptionEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.TranscriptionEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *fakeEventSink) errorCodes() []domain.ErrorCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ErrorCode, 0, len(s.errors))
	for _, e := range s.errors {
		out = append(out, e.Code)
	}
	return out
}

func (s *fakeEventSink) feedbackCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.feedbacks)
}

// fakeMicSession blocks reads until audio is written or the session stops.
type fakeMicSession struct {
	r *io.PipeReader
	w *io.PipeWriter

	stopOnce sync.Once
	mu       sync.Mutex
	stopped  bool
}

func newFakeMicSession() *fakeMicSession {
	r, w := io.Pipe()
	return &fakeMicSession{r: r, w: w}
}

func (m *fakeMicSession) Read(p []byte) (int, error) { return m.r.Read(p) }

func (m *fakeMicSession) Close() error { return m.Stop() }

func (m *fakeMicSession) Stop() error {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.stopped = true
		m.mu.Unlock()
		_ = m.w.Close()
	})
	return nil
}

func (m *fakeMicSession) wasStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

func (m *fakeMicSession) feed(t *testing.T, data []byte) {
	t.Helper()
	if _, err := m.w.Write(data); err != nil {
		t.Fatalf("failed to feed mic audio: %v", err)
	}
}

type fakeAudioCapture struct {
	mu      sync.Mutex
	session *fakeMicSession
	err     error
	starts  int
}

func (c *fakeAudioCapture) Start(context.Context, ports.AudioConfig) (ports.AudioSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starts++
	if c.err != nil {
		return nil, c.err
	}
	return c.session, nil
}

func (c *fakeAudioCapture) startCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.starts
}

type fakeVideoSession struct {
	mu      sync.Mutex
	frame   []byte
	stopped bool
}

func (s *fakeVideoSession) Latest() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

func (s *fakeVideoSession) setFrame(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = frame
}

func (s *fakeVideoSession) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

type fakeVideoCapture struct {
	session *fakeVideoSession
	err     error
}

func (c *fakeVideoCapture) Start(context.Context, ports.VideoConfig) (ports.VideoSession, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.session, nil
}

type fakeStream struct {
	mu        sync.Mutex
	audioSent []string
	mimes     []string
	frames    [][]byte
	sendErr   error
	closeSent bool
	closeErr  error

	events    chan domain.ServerEvent
	closeOnce sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{events: make(chan domain.ServerEvent, 64)}
}

func (s *fakeStream) SendAudio(data string, mimeType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.audioSent = append(s.audioSent, data)
	s.mimes = append(s.mimes, mimeType)
	return nil
}

func (s *fakeStream) SendFrame(jpeg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	kept := make([]byte, len(jpeg))
	copy(kept, jpeg)
	s.frames = append(s.frames, kept)
	return nil
}

func (s *fakeStream) CloseSend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeSent = true
	return nil
}

func (s *fakeStream) Events() <-chan domain.ServerEvent { return s.events }

func (s *fakeStream) Wait() error { return nil }

func (s *fakeStream) Close() error {
	s.closeOnce.Do(func() { close(s.events) })
	return s.closeErr
}

func (s *fakeStream) push(event domain.ServerEvent) { s.events <- event }

func (s *fakeStream) audioCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.audioSent)
}

func (s *fakeStream) frameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func (s *fakeStream) sentAudio() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.audioSent))
	copy(out, s.audioSent)
	return out
}

func (s *fakeStream) sentMimes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.mimes))
	copy(out, s.mimes)
	return out
}

func (s *fakeStream) closeSendCalled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeSent
}

type fakeRealtimeProvider struct {
	mu     sync.Mutex
	stream *fakeStream
	err    error
	gotCfg ports.RealtimeConfig
}

func (p *fakeRealtimeProvider) Connect(_ context.Context, _ string, cfg ports.RealtimeConfig) (ports.RealtimeSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gotCfg = cfg
	if p.err != nil {
		return nil, p.err
	}
	return p.stream, nil
}

func (p *fakeRealtimeProvider) connectConfig() ports.RealtimeConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gotCfg
}

type fakeFeedbackEndpoint struct {
	mu     sync.Mutex
	text   string
	err    error
	calls  int
	gotReq ports.FeedbackRequest

	// when set, Synthesize signals started and blocks until release closes.
	started chan struct{}
	release chan struct{}
}

func (f *fakeFeedbackEndpoint) Synthesize(_ context.Context, _ string, req ports.FeedbackRequest) (string, error) {
	f.mu.Lock()
	f.calls++
	f.gotReq = req
	started, release := f.started, f.release
	f.mu.Unlock()

	if started != nil {
		close(started)
		<-release
	}
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func (f *fakeFeedbackEndpoint) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeFeedbackEndpoint) request() ports.FeedbackRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gotReq
}

type fakeClipboard struct {
	mu     sync.Mutex
	texts  []string
	setErr error
}

func (c *fakeClipboard) SetText(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	c.texts = append(c.texts, text)
	return nil
}

func (c *fakeClipboard) lastText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.texts) == 0 {
		return ""
	}
	return c.texts[len(c.texts)-1]
}

type fakePlayback struct {
	mu         sync.Mutex
	enqueued   []*audio.Buffer
	enqueueErr error
	interrupts int
	closed     bool
}

func (p *fakePlayback) Enqueue(buf *audio.Buffer) (time.Time, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enqueueErr != nil {
		return time.Time{}, p.enqueueErr
	}
	p.enqueued = append(p.enqueued, buf)
	return time.Now(), nil
}

func (p *fakePlayback) Interrupt() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interrupts++
}

func (p *fakePlayback) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePlayback) enqueueCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.enqueued)
}

func (p *fakePlayback) interruptCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interrupts
}

func (p *fakePlayback) wasClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
