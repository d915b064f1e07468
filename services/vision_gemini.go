package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"closetapi/models"
)

// GeminiVisionProvider is the first provider in the default chain. The image
// is passed inline, no file upload round-trip.
type GeminiVisionProvider struct {
	APIKey string
	Model  string
}

func NewGeminiVisionProvider() *GeminiVisionProvider {
	return &GeminiVisionProvider{
		APIKey: GetEnv("GOOGLE_API_KEY", ""),
		Model:  GetEnv("GEMINI_VISION_MODEL", "gemini-2.5-flash"),
	}
}

func (p *GeminiVisionProvider) Name() string { return "gemini" }

func (p *GeminiVisionProvider) Available() bool { return p.APIKey != "" }

func (p *GeminiVisionProvider) Analyze(ctx context.Context, imageBytes []byte, mimeHint string) (*models.ClothingAttributes, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, NewProviderError(p.Name(), ProviderErrClient, err)
	}

	if mimeHint == "" {
		mimeHint = "image/jpeg"
	}
	parts := []*genai.Part{
		{InlineData: &genai.Blob{MIMEType: mimeHint, Data: imageBytes}},
		{Text: visionPrompt},
	}

	result, err := client.Models.GenerateContent(ctx, p.Model, []*genai.Content{{Parts: parts}}, &genai.GenerateContentConfig{
		CandidateCount:   1,
		ResponseMIMEType: "application/json",
		MaxOutputTokens:  2000,
	})
	if err != nil {
		return nil, p.classifyError(err)
	}
	if result.PromptFeedback != nil && result.PromptFeedback.BlockReason != "" {
		return nil, NewProviderError(p.Name(), ProviderErrClient,
			fmt.Errorf("content blocked: %s %s", result.PromptFeedback.BlockReason, result.PromptFeedback.BlockReasonMessage))
	}

	text := result.Text()
	if text == "" {
		return nil, NewProviderError(p.Name(), ProviderErrUnparseable, fmt.Errorf("empty response"))
	}
	attrs, err := parseAttributesJSON(text)
	if err != nil {
		return nil, NewProviderError(p.Name(), ProviderErrUnparseable, err)
	}
	return attrs, nil
}

func (p *GeminiVisionProvider) classifyError(err error) *ProviderError {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewProviderError(p.Name(), ProviderErrTimeout, err)
	}
	msg := err.Error()
	if strings.Contains(msg, "500") || strings.Contains(msg, "502") || strings.Contains(msg, "503") || strings.Contains(msg, "UNAVAILABLE") {
		return NewProviderError(p.Name(), ProviderErrServer, err)
	}
	if strings.Contains(msg, "deadline") || strings.Contains(msg, "timeout") {
		return NewProviderError(p.Name(), ProviderErrTimeout, err)
	}
	return NewProviderError(p.Name(), ProviderErrClient, err)
}
