package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"interviewcoach/internal/domain"
	"interviewcoach/internal/ports"
)

// Config controls the Gemini Live websocket connection.
type Config struct {
	Endpoint  string
	LiveModel string
}

const defaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

// LiveProvider implements ports.RealtimeProvider against the Gemini Live
// bidirectional streaming API.
type LiveProvider struct {
	cfg Config
}

func NewLiveProvider(cfg Config) *LiveProvider {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.LiveModel == "" {
		cfg.LiveModel = "gemini-2.5-flash-native-audio-preview-09-2025"
	}
	return &LiveProvider{cfg: cfg}
}

func (p *LiveProvider) Connect(ctx context.Context, apiKey string, cfg ports.RealtimeConfig) (ports.RealtimeSession, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}

	endpoint, err := url.Parse(p.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid live endpoint: %w", err)
	}
	query := endpoint.Query()
	query.Set("key", apiKey)
	endpoint.RawQuery = query.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, &ConnectError{StatusCode: resp.StatusCode, Err: err}
		}
		return nil, fmt.Errorf("failed to connect to live endpoint: %w", err)
	}

	session := &liveSession{
		conn:    conn,
		events:  make(chan domain.ServerEvent, 64),
		sendQ:   make(chan outboundMessage, 32),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
		setupOK: make(chan error, 1),
	}

	if err := conn.WriteJSON(setupMessage(p.cfg.LiveModel, cfg)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to send session setup: %w", err)
	}

	session.wg.Add(2)
	go session.readLoop()
	go session.writeLoop()
	go func() {
		session.wg.Wait()
		close(session.events)
		close(session.done)
		_ = conn.Close()
	}()

	go func() {
		<-ctx.Done()
		_ = session.Close()
	}()

	// The server acknowledges setup before streaming content.
	select {
	case err := <-session.setupOK:
		if err != nil {
			_ = session.Close()
			return nil, err
		}
	case <-session.done:
		_ = session.Close()
		if err := session.Wait(); err != nil {
			return nil, err
		}
		return nil, errors.New("live session closed during setup")
	case <-ctx.Done():
		_ = session.Close()
		return nil, ctx.Err()
	}

	return session, nil
}

// ErrMissingAPIKey is returned before any network activity when no
// credential is configured.
var ErrMissingAPIKey = errors.New("gemini api key is not configured")

// ConnectError carries the handshake HTTP status for failure classification.
type ConnectError struct {
	StatusCode int
	Err        error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("live endpoint handshake failed (status %d): %v", e.StatusCode, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Classify maps a connect-time failure onto the user-facing error taxonomy.
func Classify(err error) domain.ErrorCode {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrMissingAPIKey) {
		return domain.ErrorCodeCredentialMissing
	}
	var ce *ConnectError
	if errors.As(err, &ce) {
		switch ce.StatusCode {
		case 400, 401, 403:
			return domain.ErrorCodeCredentialInvalid
		case 429:
			return domain.ErrorCodeQuotaExceeded
		case 404, 503:
			return domain.ErrorCodeModelUnavailable
		}
		return domain.ErrorCodeConnection
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "api key") || strings.Contains(msg, "api_key") || strings.Contains(msg, "unauthenticated"):
		return domain.ErrorCodeCredentialInvalid
	case strings.Contains(msg, "quota") || strings.Contains(msg, "resource_exhausted"):
		return domain.ErrorCodeQuotaExceeded
	case strings.Contains(msg, "not found") || strings.Contains(msg, "unavailable"):
		return domain.ErrorCodeModelUnavailable
	default:
		return domain.ErrorCodeUnknown
	}
}

// IsClosedConn reports whether a send failed because the connection is
// already gone. Such failures are swallowed by the caller rather than
// surfaced to the user.
func IsClosedConn(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, websocket.ErrCloseSent) || errors.Is(err, net.ErrClosed) || errors.Is(err, errSendClosed) {
		return true
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return true
	}
	return strings.Contains(err.Error(), "use of closed network connection")
}

var errSendClosed = errors.New("live session send side is closed")

type outboundMessage struct {
	payload any
}

type liveSession struct {
	conn *websocket.Conn

	events  chan domain.ServerEvent
	sendQ   chan outboundMessage
	done    chan struct{}
	closing chan struct{}
	setupOK chan error

	wg sync.WaitGroup

	setupOnce sync.Once

	errMu sync.Mutex
	err   error

	closeSendOnce sync.Once
	closeOnce     sync.Once
	sendMu        sync.RWMutex
	sendClosed    bool
}

func setupMessage(model string, cfg ports.RealtimeConfig) map[string]any {
	setup := map[string]any{
		"model": "models/" + model,
		"generationConfig": map[string]any{
			"responseModalities": []string{"AUDIO"},
			"speechConfig": map[string]any{
				"voiceConfig": map[string]any{
					"prebuiltVoiceConfig": map[string]any{"voiceName": cfg.Voice},
				},
			},
		},
		"inputAudioTranscription":  map[string]any{},
		"outputAudioTranscription": map[string]any{},
	}
	if cfg.SystemInstruction != "" {
		setup["systemInstruction"] = map[string]any{
			"parts": []map[string]any{{"text": cfg.SystemInstruction}},
		}
	}
	return map[string]any{"setup": setup}
}

func (s *liveSession) SendAudio(data string, mimeType string) error {
	if data == "" {
		return nil
	}
	return s.enqueue(map[string]any{
		"realtimeInput": map[string]any{
			"mediaChunks": []map[string]any{{"mimeType": mimeType, "data": data}},
		},
	})
}

func (s *liveSession) SendFrame(jpeg []byte) error {
	if len(jpeg) == 0 {
		return nil
	}
	return s.enqueue(map[string]any{
		"realtimeInput": map[string]any{
			"mediaChunks": []map[string]any{{
				"mimeType": "image/jpeg",
				"data":     base64.StdEncoding.EncodeToString(jpeg),
			}},
		},
	})
}

func (s *liveSession) enqueue(payload any) error {
	// The read lock is held across the send so CloseSend cannot close the
	// queue underneath a sender.
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.sendClosed {
		return errSendClosed
	}

	select {
	case s.sendQ <- outboundMessage{payload: payload}:
		return nil
	case <-s.closing:
		return errSendClosed
	case <-s.done:
		if err := s.waitErr(); err != nil {
			return err
		}
		return errSendClosed
	}
}

func (s *liveSession) CloseSend() error {
	s.closeSendOnce.Do(func() {
		s.sendMu.Lock()
		s.sendClosed = true
		close(s.sendQ)
		s.sendMu.Unlock()
	})
	return nil
}

func (s *liveSession) Events() <-chan domain.ServerEvent {
	return s.events
}

func (s *liveSession) Wait() error {
	<-s.done
	return s.waitErr()
}

func (s *liveSession) Close() error {
	s.closeOnce.Do(func() {
		// Unblocks emit and enqueue before the loops are waited on, even
		// when the consumer abandoned the events channel.
		close(s.closing)
		_ = s.CloseSend()
		_ = s.conn.Close()
	})
	<-s.done
	return s.waitErr()
}

func (s *liveSession) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *liveSession) setErr(err error) {
	if err == nil {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *liveSession) writeLoop() {
	defer s.wg.Done()

	for msg := range s.sendQ {
		if err := s.conn.WriteJSON(msg.payload); err != nil {
			s.setErr(fmt.Errorf("failed to send realtime input: %w", err))
			// The write side is broken; drop the connection so the read
			// loop ends and blocked senders are released.
			_ = s.conn.Close()
			return
		}
	}

	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// serverMessage mirrors the BidiGenerateContent inbound schema. Fields other
// than the ones routed here (usage metadata, goAway) are ignored.
type serverMessage struct {
	SetupComplete *struct{} `json:"setupComplete"`

	ServerContent *struct {
		ModelTurn *struct {
			Parts []struct {
				InlineData *struct {
					MimeType string `json:"mimeType"`
					Data     string `json:"data"`
				} `json:"inlineData"`
			} `json:"parts"`
		} `json:"modelTurn"`
		Interrupted        bool `json:"interrupted"`
		TurnComplete       bool `json:"turnComplete"`
		InputTranscription *struct {
			Text string `json:"text"`
		} `json:"inputTranscription"`
		OutputTranscription *struct {
			Text string `json:"text"`
		} `json:"outputTranscription"`
	} `json:"serverContent"`

	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *liveSession) readLoop() {
	defer s.wg.Done()

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(fmt.Errorf("failed to read server message: %w", err))
			s.setupOnce.Do(func() { s.setupOK <- fmt.Errorf("live session setup failed: %w", err) })
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			continue
		}

		if msg.SetupComplete != nil {
			s.setupOnce.Do(func() { s.setupOK <- nil })
			continue
		}
		if msg.Error != nil {
			s.setErr(fmt.Errorf("live endpoint error %d: %s", msg.Error.Code, msg.Error.Message))
			return
		}

		content := msg.ServerContent
		if content == nil {
			continue
		}

		if content.ModelTurn != nil {
			for _, part := range content.ModelTurn.Parts {
				if part.InlineData == nil || part.InlineData.Data == "" {
					continue
				}
				audio, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
				if err != nil {
					s.setErr(fmt.Errorf("malformed response audio payload: %w", err))
					return
				}
				s.emit(domain.ServerEvent{Kind: domain.ServerEventAudio, Audio: audio})
			}
		}
		if content.Interrupted {
			s.emit(domain.ServerEvent{Kind: domain.ServerEventInterrupted})
		}
		if content.InputTranscription != nil && content.InputTranscription.Text != "" {
			s.emit(domain.ServerEvent{
				Kind: domain.ServerEventPartialText,
				Role: domain.RoleUser,
				Text: content.InputTranscription.Text,
			})
		}
		if content.OutputTranscription != nil && content.OutputTranscription.Text != "" {
			s.emit(domain.ServerEvent{
				Kind: domain.ServerEventPartialText,
				Role: domain.RoleModel,
				Text: content.OutputTranscription.Text,
			})
		}
		if content.TurnComplete {
			s.emit(domain.ServerEvent{Kind: domain.ServerEventTurnComplete})
		}
	}
}

func (s *liveSession) emit(event domain.ServerEvent) {
	select {
	case s.events <- event:
	case <-s.closing:
	case <-s.done:
	}
}
