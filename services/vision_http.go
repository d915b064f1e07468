package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"closetapi/models"
)

// OpenAI and Anthropic vision are called over plain HTTP JSON APIs. Both wrap
// the same prompt as the Gemini provider and leave parsing to
// parseAttributesJSON.

func imageDataURL(imageBytes []byte, mimeHint string) string {
	if mimeHint == "" {
		mimeHint = http.DetectContentType(imageBytes)
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeHint, base64.StdEncoding.EncodeToString(imageBytes))
}

func doProviderRequest(ctx context.Context, providerName string, req *http.Request) ([]byte, *ProviderError) {
	client := &http.Client{}
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, NewProviderError(providerName, ProviderErrTimeout, err)
		}
		return nil, NewProviderError(providerName, ProviderErrServer, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewProviderError(providerName, ProviderErrServer, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTPStatus(providerName, resp.StatusCode, string(body))
	}
	return body, nil
}

type OpenAIVisionProvider struct {
	APIKey  string
	Model   string
	BaseURL string
}

func NewOpenAIVisionProvider() *OpenAIVisionProvider {
	return &OpenAIVisionProvider{
		APIKey:  GetEnv("OPENAI_API_KEY", ""),
		Model:   GetEnv("OPENAI_VISION_MODEL", "gpt-4o-mini"),
		BaseURL: GetEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
	}
}

func (p *OpenAIVisionProvider) Name() string { return "openai" }

func (p *OpenAIVisionProvider) Available() bool { return p.APIKey != "" }

func (p *OpenAIVisionProvider) Analyze(ctx context.Context, imageBytes []byte, mimeHint string) (*models.ClothingAttributes, error) {
	payload := map[string]any{
		"model": p.Model,
		"messages": []map[string]any{
			{
				"role": "user",
				"content": []map[string]any{
					{"type": "text", "text": visionPrompt},
					{"type": "image_url", "image_url": map[string]string{"url": imageDataURL(imageBytes, mimeHint)}},
				},
			},
		},
		"response_format": map[string]string{"type": "json_object"},
		"max_tokens":      1000,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, NewProviderError(p.Name(), ProviderErrClient, err)
	}

	req, err := http.NewRequest("POST", p.BaseURL+"/chat/completions", bytes.NewReader(encoded))
	if err != nil {
		return nil, NewProviderError(p.Name(), ProviderErrClient, err)
	}
	req.Header.Set("Authorization", "Bearer "+p.APIKey)
	req.Header.Set("Content-Type", "application/json")

	body, perr := doProviderRequest(ctx, p.Name(), req)
	if perr != nil {
		return nil, perr
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Choices) == 0 {
		return nil, NewProviderError(p.Name(), ProviderErrUnparseable, fmt.Errorf("unexpected completion shape: %v", err))
	}
	attrs, err := parseAttributesJSON(parsed.Choices[0].Message.Content)
	if err != nil {
		return nil, NewProviderError(p.Name(), ProviderErrUnparseable, err)
	}
	return attrs, nil
}

type AnthropicVisionProvider struct {
	APIKey  string
	Model   string
	BaseURL string
}

func NewAnthropicVisionProvider() *AnthropicVisionProvider {
	return &AnthropicVisionProvider{
		APIKey:  GetEnv("ANTHROPIC_API_KEY", ""),
		Model:   GetEnv("ANTHROPIC_VISION_MODEL", "claude-3-5-haiku-latest"),
		BaseURL: GetEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com/v1"),
	}
}

func (p *AnthropicVisionProvider) Name() string { return "anthropic" }

func (p *AnthropicVisionProvider) Available() bool { return p.APIKey != "" }

func (p *AnthropicVisionProvider) Analyze(ctx context.Context, imageBytes []byte, mimeHint string) (*models.ClothingAttributes, error) {
	if mimeHint == "" {
		mimeHint = http.DetectContentType(imageBytes)
	}
	payload := map[string]any{
		"model":      p.Model,
		"max_tokens": 1000,
		"messages": []map[string]any{
			{
				"role": "user",
				"content": []map[string]any{
					{
						"type": "image",
						"source": map[string]string{
							"type":       "base64",
							"media_type": mimeHint,
							"data":       base64.StdEncoding.EncodeToString(imageBytes),
						},
					},
					{"type": "text", "text": visionPrompt},
				},
			},
		},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, NewProviderError(p.Name(), ProviderErrClient, err)
	}

	req, err := http.NewRequest("POST", p.BaseURL+"/messages", bytes.NewReader(encoded))
	if err != nil {
		return nil, NewProviderError(p.Name(), ProviderErrClient, err)
	}
	req.Header.Set("x-api-key", p.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("Content-Type", "application/json")

	body, perr := doProviderRequest(ctx, p.Name(), req)
	if perr != nil {
		return nil, perr
	}

	var parsed struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, NewProviderError(p.Name(), ProviderErrUnparseable, err)
	}
	for _, block := range parsed.Content {
		if block.Type != "text" {
			continue
		}
		attrs, err := parseAttributesJSON(block.Text)
		if err == nil {
			return attrs, nil
		}
	}
	return nil, NewProviderError(p.Name(), ProviderErrUnparseable, fmt.Errorf("no parseable text block in response"))
}
