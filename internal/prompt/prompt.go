package prompt

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"interviewcoach/internal/domain"
)

// Builder renders the interviewer system instruction and the feedback
// instruction. Templates can be overridden from files; a missing override
// file falls back to the built-in text.
type Builder struct {
	interviewer string
	feedback    string
}

const defaultInterviewerTemplate = `You are a professional job interviewer conducting a realistic spoken interview.
Ask one question at a time, listen to the answer, and follow up naturally.
Stay in character for the whole session and keep questions concise.
{{background}}`

const defaultFeedbackTemplate = `You are an interview coach. Review the interview transcript below and the
candidate snapshots taken during the session. Write a structured critique
covering communication, content of the answers, and presence on camera.
Be specific, cite moments from the transcript, and end with three concrete
improvements.
{{background}}`

// NewBuilder loads optional template overrides. Empty paths and missing
// files use the defaults.
func NewBuilder(interviewerPath, feedbackPath string) (*Builder, error) {
	interviewer, err := loadTemplate(interviewerPath, defaultInterviewerTemplate)
	if err != nil {
		return nil, err
	}
	feedback, err := loadTemplate(feedbackPath, defaultFeedbackTemplate)
	if err != nil {
		return nil, err
	}
	return &Builder{interviewer: interviewer, feedback: feedback}, nil
}

// Interviewer renders the realtime system instruction.
func (b *Builder) Interviewer(sc domain.SessionContext) string {
	return render(b.interviewer, sc)
}

// Feedback renders the critique instruction for the batch call.
func (b *Builder) Feedback(sc domain.SessionContext) string {
	return render(b.feedback, sc)
}

func render(template string, sc domain.SessionContext) string {
	var background strings.Builder
	if sc.JobDescription != "" {
		background.WriteString("\nThe role being interviewed for:\n")
		background.WriteString(strings.TrimSpace(sc.JobDescription))
		background.WriteString("\n")
	}
	if sc.ResumeText != "" {
		background.WriteString("\nThe candidate's résumé:\n")
		background.WriteString(strings.TrimSpace(sc.ResumeText))
		background.WriteString("\n")
	}
	if background.Len() == 0 {
		background.WriteString("\nNo role or résumé was provided; conduct a general professional interview.\n")
	}
	return strings.TrimSpace(strings.ReplaceAll(template, "{{background}}", background.String()))
}

func loadTemplate(path, fallback string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return fallback, nil
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fallback, nil
		}
		return "", fmt.Errorf("failed to read prompt template %q: %w", path, err)
	}
	text := strings.TrimSpace(string(contents))
	if text == "" {
		return fallback, nil
	}
	return text, nil
}
