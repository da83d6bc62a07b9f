package usecase

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"interviewcoach/internal/domain"
	"interviewcoach/internal/ports"
	"interviewcoach/internal/prompt"
)

// FallbackFeedbackMessage is the only failure text users ever see from
// feedback generation; raw error detail goes to the log.
const FallbackFeedbackMessage = "Sorry, something went wrong while generating your interview feedback. " +
	"Your interview still completed normally. Please try another session."

// feedbackSynthesizer packages a finished interview into one batch critique
// call. At most one synthesis is in flight per session lifecycle.
type feedbackSynthesizer struct {
	provider ports.FeedbackProvider
	prompts  *prompt.Builder
	log      *slog.Logger

	inFlight atomic.Bool
}

func newFeedbackSynthesizer(provider ports.FeedbackProvider, prompts *prompt.Builder, log *slog.Logger) *feedbackSynthesizer {
	if log == nil {
		log = slog.Default()
	}
	return &feedbackSynthesizer{provider: provider, prompts: prompts, log: log}
}

// Synthesize returns the critique for a finished interview, or false when
// there is nothing to critique (empty transcript, missing credentials) or a
// synthesis is already running.
func (f *feedbackSynthesizer) Synthesize(
	ctx context.Context,
	sctx domain.SessionContext,
	transcript []domain.TranscriptionEntry,
	frames []domain.CapturedFrame,
) (domain.FeedbackResult, bool) {
	if len(transcript) == 0 || sctx.APIKey == "" {
		return domain.FeedbackResult{}, false
	}
	if !f.inFlight.CompareAndSwap(false, true) {
		f.log.Warn("feedback synthesis already in flight", "session", sctx.SessionID)
		return domain.FeedbackResult{}, false
	}
	defer f.inFlight.Store(false)

	text, err := f.provider.Synthesize(ctx, sctx.APIKey, ports.FeedbackRequest{
		Instruction: f.prompts.Feedback(sctx),
		Transcript:  transcript,
		Frames:      frames,
	})
	if err != nil {
		f.log.Error("feedback synthesis failed",
			"session", sctx.SessionID,
			"entries", len(transcript),
			"frames", len(frames),
			"error", err,
		)
		text = FallbackFeedbackMessage
	}

	return domain.FeedbackResult{
		SessionID: sctx.SessionID,
		Text:      text,
		CreatedAt: time.Now(),
	}, true
}
