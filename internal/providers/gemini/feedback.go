package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"interviewcoach/internal/domain"
	"interviewcoach/internal/ports"
)

// FeedbackProvider implements ports.FeedbackProvider with one non-streaming
// GenerateContent call.
type FeedbackProvider struct {
	model string

	// newClient is swapped in tests.
	newClient func(ctx context.Context, apiKey string) (feedbackModel, error)
}

type feedbackModel interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type genaiModels struct{ client *genai.Client }

func (m genaiModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return m.client.Models.GenerateContent(ctx, model, contents, config)
}

func NewFeedbackProvider(model string) *FeedbackProvider {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &FeedbackProvider{
		model: model,
		newClient: func(ctx context.Context, apiKey string) (feedbackModel, error) {
			client, err := genai.NewClient(ctx, &genai.ClientConfig{
				APIKey:  apiKey,
				Backend: genai.BackendGeminiAPI,
			})
			if err != nil {
				return nil, err
			}
			return genaiModels{client: client}, nil
		},
	}
}

// Synthesize packages the transcript and retained frames into a single
// multimodal request and returns the critique text.
func (p *FeedbackProvider) Synthesize(ctx context.Context, apiKey string, req ports.FeedbackRequest) (string, error) {
	if strings.TrimSpace(apiKey) == "" {
		return "", ErrMissingAPIKey
	}
	if len(req.Transcript) == 0 {
		return "", errors.New("feedback request has no transcript")
	}

	client, err := p.newClient(ctx, apiKey)
	if err != nil {
		return "", fmt.Errorf("create feedback client: %w", err)
	}

	parts := []*genai.Part{
		genai.NewPartFromText(req.Instruction),
		genai.NewPartFromText(FormatTranscript(req.Transcript)),
	}
	for _, frame := range req.Frames {
		mime := frame.MimeType
		if mime == "" {
			mime = "image/jpeg"
		}
		parts = append(parts, genai.NewPartFromBytes(frame.Data, mime))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := client.GenerateContent(ctx, p.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("feedback call failed: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("feedback response contained no text")
	}
	return text, nil
}

// FormatTranscript serializes entries chronologically with speaker labels.
func FormatTranscript(entries []domain.TranscriptionEntry) string {
	var sb strings.Builder
	sb.WriteString("Interview transcript:\n")
	for _, entry := range entries {
		switch entry.Role {
		case domain.RoleUser:
			sb.WriteString("Candidate: ")
		case domain.RoleModel:
			sb.WriteString("Interviewer: ")
		default:
			sb.WriteString(string(entry.Role) + ": ")
		}
		sb.WriteString(strings.TrimSpace(entry.Text))
		sb.WriteString("\n")
	}
	return sb.String()
}
