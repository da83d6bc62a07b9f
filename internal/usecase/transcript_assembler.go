package usecase

import (
	"strings"
	"sync"
	"time"

	"github.com/bep/debounce"

	"interviewcoach/internal/domain"
	"interviewcoach/internal/ports"
)

// transcriptAssembler accumulates streamed partial text per speaker turn.
// Interim UI updates are debounced so bursts of partials coalesce into a
// single visible redraw, but the underlying accumulated text is never lost:
// each flush re-reads the full accumulator.
type transcriptAssembler struct {
	events ports.EventSink
	now    func() time.Time

	mu      sync.Mutex
	user    strings.Builder
	model   strings.Builder
	entries []domain.TranscriptionEntry

	flushUser  func(func())
	flushModel func(func())
}

func newTranscriptAssembler(events ports.EventSink, interimFlush time.Duration) *transcriptAssembler {
	if interimFlush <= 0 {
		interimFlush = 16 * time.Millisecond
	}
	return &transcriptAssembler{
		events:     events,
		now:        time.Now,
		flushUser:  debounce.New(interimFlush),
		flushModel: debounce.New(interimFlush),
	}
}

// AddPartial appends one partial-text fragment to the role's accumulator and
// schedules an interim emission.
func (a *transcriptAssembler) AddPartial(role domain.TranscriptRole, text string) {
	if text == "" {
		return
	}

	a.mu.Lock()
	switch role {
	case domain.RoleModel:
		a.model.WriteString(text)
	default:
		a.user.WriteString(text)
	}
	a.mu.Unlock()

	flush := a.flushUser
	if role == domain.RoleModel {
		flush = a.flushModel
	}
	flush(func() {
		a.mu.Lock()
		var pending string
		if role == domain.RoleModel {
			pending = a.model.String()
		} else {
			pending = a.user.String()
		}
		a.mu.Unlock()
		a.events.InterimTranscript(role, pending)
	})
}

// TurnComplete finalizes the turn in progress: it emits at most one user
// entry and at most one model entry, user first, skipping empty ones, and
// resets both accumulators. A turn boundary with nothing accumulated is a
// no-op; interviewer silence is a valid turn.
func (a *transcriptAssembler) TurnComplete() []domain.TranscriptionEntry {
	a.mu.Lock()
	hadText := a.user.Len() > 0 || a.model.Len() > 0
	userText := strings.TrimSpace(a.user.String())
	modelText := strings.TrimSpace(a.model.String())
	a.user.Reset()
	a.model.Reset()

	var emitted []domain.TranscriptionEntry
	if userText != "" {
		emitted = append(emitted, domain.TranscriptionEntry{
			Role: domain.RoleUser, Text: userText, Timestamp: a.now(),
		})
	}
	if modelText != "" {
		emitted = append(emitted, domain.TranscriptionEntry{
			Role: domain.RoleModel, Text: modelText, Timestamp: a.now(),
		})
	}
	a.entries = append(a.entries, emitted...)
	a.mu.Unlock()

	for _, entry := range emitted {
		a.events.TranscriptEntry(entry)
	}
	// Anything accumulated was shown as interim text, so the displays need
	// clearing even when the turn trimmed down to nothing.
	if hadText {
		a.events.InterimTranscript(domain.RoleUser, "")
		a.events.InterimTranscript(domain.RoleModel, "")
	}
	return emitted
}

// Entries returns a snapshot of all finalized entries in emission order.
func (a *transcriptAssembler) Entries() []domain.TranscriptionEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.TranscriptionEntry, len(a.entries))
	copy(out, a.entries)
	return out
}
