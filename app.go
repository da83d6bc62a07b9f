package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"interviewcoach/internal/bootstrap"
	"interviewcoach/internal/config"
	"interviewcoach/internal/domain"
	"interviewcoach/internal/usecase"
)

const (
	eventSession    = "interviewcoach:session"
	eventInterim    = "interviewcoach:interim"
	eventTranscript = "interviewcoach:transcript"
	eventSpeaking   = "interviewcoach:speaking"
	eventFeedback   = "interviewcoach:feedback"
	eventError      = "interviewcoach:error"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	controller *usecase.SessionController
	cfg        config.Config
	bootErr    error
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a, &wailsClipboard{}, slog.Default())
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.cfg = services.Config
	a.controller = services.Controller
	a.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonReady)
}

// SetAPIKey stores a user-supplied credential for subsequent sessions.
func (a *App) SetAPIKey(key string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.controller.SetCredential(key)
	return nil
}

// StartInterview opens a realtime interview session.
func (a *App) StartInterview(jobDescription, resumeText string) (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.controller.Start(a.ctx, jobDescription, resumeText); err != nil {
		if errors.Is(err, usecase.ErrSessionActive) {
			return a.controller.Status(), err
		}
		return domain.Status{}, err
	}
	return a.controller.Status(), nil
}

// StopInterview ends the active session; feedback generation follows
// automatically when a transcript exists.
func (a *App) StopInterview() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.controller.Stop(a.ctx); err != nil {
		return domain.Status{}, err
	}
	return a.controller.Status(), nil
}

// PauseInterview mutes the candidate without ending the session.
func (a *App) PauseInterview() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.Pause()
}

// ResumeInterview unmutes the candidate after a pause.
func (a *App) ResumeInterview() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.Resume()
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if a.controller == nil {
		status := domain.Status{State: domain.SessionStateIdle, Active: false}
		if a.bootErr != nil {
			status.Message = a.bootErr.Error()
		}
		return status
	}
	return a.controller.Status()
}

// GetFeedbacks returns every critique generated this run, oldest first.
func (a *App) GetFeedbacks() []domain.FeedbackResult {
	if a.controller == nil {
		return nil
	}
	return a.controller.Feedbacks()
}

// CopyLastFeedback puts the most recent critique on the system clipboard.
func (a *App) CopyLastFeedback() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.CopyLastFeedback(a.ctx)
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}
	return map[string]string{
		"provider":      "Gemini",
		"liveModel":     a.cfg.Gemini.LiveModel,
		"feedbackModel": a.cfg.Gemini.FeedbackModel,
		"voice":         a.cfg.Gemini.Voice,
		"audioInput":    a.cfg.Audio.InputDevice,
		"videoInput":    a.cfg.Video.InputDevice,
		"hasAPIKey":     fmt.Sprintf("%t", a.cfg.Gemini.APIKey != ""),
	}
}

type wailsClipboard struct{}

func (c *wailsClipboard) SetText(ctx context.Context, text string) error {
	return runtime.ClipboardSetText(ctx, text)
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// SessionStateChanged emits session lifecycle updates to the frontend.
func (a *App) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventSession, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": sessionReasonMessage(reason),
	})
}

// InterimTranscript emits coalesced live partial transcript text.
func (a *App) InterimTranscript(role domain.TranscriptRole, text string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventInterim, map[string]string{
		"role": string(role),
		"text": text,
	})
}

// TranscriptEntry emits one finalized utterance.
func (a *App) TranscriptEntry(entry domain.TranscriptionEntry) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventTranscript, entry)
}

// AgentSpeaking emits the "interviewer is speaking" signal.
func (a *App) AgentSpeaking(speaking bool) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventSpeaking, speaking)
}

// FeedbackReady emits the critique once the batch call resolves.
func (a *App) FeedbackReady(result domain.FeedbackResult) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventFeedback, result)
}

// SessionError emits backend errors to the UI, most recent wins.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code),
		"detail":  detail,
	})
}

func sessionReasonMessage(reason domain.SessionStateReason) string {
	switch reason {
	case domain.SessionReasonReady:
		return "Ready"
	case domain.SessionReasonConnecting:
		return "Connecting to your interviewer..."
	case domain.SessionReasonInterviewStarted:
		return "Interview started"
	case domain.SessionReasonInterviewPaused:
		return "Interview paused"
	case domain.SessionReasonInterviewResumed:
		return "Interview resumed"
	case domain.SessionReasonInterviewEnding:
		return "Ending interview..."
	case domain.SessionReasonInterviewEnded:
		return "Interview ended"
	case domain.SessionReasonRemoteClosed:
		return "The interviewer ended the session"
	case domain.SessionReasonConnectFailed:
		return "Could not start the interview"
	case domain.SessionReasonSessionFailed:
		return "The session ended unexpectedly"
	case domain.SessionReasonGeneratingFeedback:
		return "Generating your feedback..."
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeMicPermission:
		return "Microphone access was denied"
	case domain.ErrorCodeMicNotFound:
		return "No microphone was found"
	case domain.ErrorCodeCameraUnavailable:
		return "The camera could not be opened"
	case domain.ErrorCodeCredentialMissing:
		return "An API key is required before starting an interview"
	case domain.ErrorCodeCredentialInvalid:
		return "The API key was rejected"
	case domain.ErrorCodeQuotaExceeded:
		return "API quota exceeded, try again later"
	case domain.ErrorCodeModelUnavailable:
		return "The interview model is currently unavailable"
	case domain.ErrorCodeConnection:
		return "The connection to the interviewer was lost"
	case domain.ErrorCodePlayback:
		return "Audio playback failed"
	case domain.ErrorCodeFeedback:
		return "Feedback generation failed"
	case domain.ErrorCodeClipboard:
		return "Clipboard write failed"
	default:
		return "Unknown error"
	}
}
