package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"closetapi/models"
)

// Failure classes for provider calls. Timeout and server-class failures are
// worth one retry; everything else advances the fallback chain immediately.
const (
	ProviderErrTimeout     = "timeout"
	ProviderErrServer      = "server_error"
	ProviderErrClient      = "client_error"
	ProviderErrUnparseable = "unparseable"
)

type ProviderError struct {
	Provider string
	Kind     string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func NewProviderError(provider, kind string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

func isRetryableProviderError(err error) bool {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Kind == ProviderErrTimeout || perr.Kind == ProviderErrServer
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// classifyHTTPStatus maps an HTTP response code from a provider API to a
// failure class.
func classifyHTTPStatus(provider string, status int, body string) *ProviderError {
	err := fmt.Errorf("status %d: %s", status, body)
	switch {
	case status == 408 || status == 504:
		return NewProviderError(provider, ProviderErrTimeout, err)
	case status >= 500:
		return NewProviderError(provider, ProviderErrServer, err)
	default:
		return NewProviderError(provider, ProviderErrClient, err)
	}
}

// VisionProvider is one concrete image-classification backend. Available
// reports whether its credential is configured; unavailable providers are
// skipped by the gateway, never treated as failures.
type VisionProvider interface {
	Name() string
	Available() bool
	Analyze(ctx context.Context, imageBytes []byte, mimeHint string) (*models.ClothingAttributes, error)
}

const (
	providerCallTimeout  = 15 * time.Second
	providerRetryBackoff = 2 * time.Second

	// below this the provider result gets augmented with local pixel analysis
	augmentConfidenceThreshold = 0.6
	augmentedMinConfidence     = 0.7
)

// VisionGateway tries providers in priority order and never fails outward:
// after the whole chain is exhausted the caller still gets a usable,
// low-confidence default.
type VisionGateway struct {
	providers    []VisionProvider
	metrics      *VisionMetrics
	retryBackoff time.Duration
	localAnalyze func([]byte) (*models.ClothingAttributes, error)
}

func NewVisionGateway(metrics *VisionMetrics, providers ...VisionProvider) *VisionGateway {
	if metrics == nil {
		metrics = NewVisionMetrics()
	}
	return &VisionGateway{
		providers:    providers,
		metrics:      metrics,
		retryBackoff: providerRetryBackoff,
		localAnalyze: AnalyzeImageLocally,
	}
}

// DefaultProviderChain builds the fixed priority chain. PREFERRED_AI_PROVIDER
// moves the named provider to the front; "auto" or empty keeps the order.
func DefaultProviderChain() []VisionProvider {
	chain := []VisionProvider{
		NewGeminiVisionProvider(),
		NewGCPVisionProvider(),
		NewOpenAIVisionProvider(),
		NewAnthropicVisionProvider(),
	}
	return OrderProviders(chain, GetEnv("PREFERRED_AI_PROVIDER", ""))
}

func OrderProviders(providers []VisionProvider, preferred string) []VisionProvider {
	if preferred == "" || preferred == "auto" {
		return providers
	}
	ordered := make([]VisionProvider, 0, len(providers))
	for _, p := range providers {
		if p.Name() == preferred {
			ordered = append(ordered, p)
		}
	}
	if len(ordered) == 0 {
		log.Printf("[Vision] Unknown preferred provider %q, using auto order", preferred)
		return providers
	}
	for _, p := range providers {
		if p.Name() != preferred {
			ordered = append(ordered, p)
		}
	}
	return ordered
}

// DefaultClothingAttributes is returned when every provider failed. The
// needs-reanalysis tag lets the owner retrigger analysis later.
func DefaultClothingAttributes() models.ClothingAttributes {
	return models.ClothingAttributes{
		Category:      "top",
		Colors:        []string{"unknown"},
		Style:         "casual",
		Confidence:    0.3,
		SuggestedTags: []string{"needs-reanalysis"},
		Provider:      "fallback-default",
	}
}

// MetricsSnapshot exposes the gateway's call statistics for the admin
// endpoint.
func (g *VisionGateway) MetricsSnapshot() VisionMetricsSnapshot {
	return g.metrics.Snapshot()
}

// Analyze classifies image bytes. It never returns an error: provider
// failures walk the chain and total failure yields the fixed default.
func (g *VisionGateway) Analyze(ctx context.Context, imageBytes []byte, mimeHint string) models.ClothingAttributes {
	started := time.Now()
	var failures []string

	for _, provider := range g.providers {
		if !provider.Available() {
			continue
		}
		attrs, err := g.callWithRetry(ctx, provider, imageBytes, mimeHint)
		if err != nil {
			failures = append(failures, err.Error())
			continue
		}
		g.augmentIfWeak(attrs, imageBytes)
		normalizeAttributes(attrs)
		elapsed := time.Since(started)
		attrs.LatencyMs = elapsed.Milliseconds()
		g.metrics.RecordOutcome(attrs.Provider, "success", elapsed)
		return *attrs
	}

	if len(failures) > 0 {
		log.Printf("[Vision] All providers failed, returning default attributes: %s", strings.Join(failures, "; "))
	}
	elapsed := time.Since(started)
	attrs := DefaultClothingAttributes()
	attrs.LatencyMs = elapsed.Milliseconds()
	g.metrics.RecordOutcome(attrs.Provider, "fallback-default", elapsed)
	return attrs
}

// callWithRetry performs the provider call with a fixed timeout and a single
// retry after a backoff for timeout/server-class failures only.
func (g *VisionGateway) callWithRetry(ctx context.Context, provider VisionProvider, imageBytes []byte, mimeHint string) (*models.ClothingAttributes, error) {
	attrs, err := g.callOnce(ctx, provider, imageBytes, mimeHint)
	if err == nil {
		return attrs, nil
	}
	if !isRetryableProviderError(err) {
		return nil, err
	}
	log.Printf("[Vision] Provider %s failed (%v), retrying once", provider.Name(), err)
	select {
	case <-ctx.Done():
		return nil, NewProviderError(provider.Name(), ProviderErrTimeout, ctx.Err())
	case <-time.After(g.retryBackoff):
	}
	return g.callOnce(ctx, provider, imageBytes, mimeHint)
}

func (g *VisionGateway) callOnce(ctx context.Context, provider VisionProvider, imageBytes []byte, mimeHint string) (*models.ClothingAttributes, error) {
	callCtx, cancel := context.WithTimeout(ctx, providerCallTimeout)
	defer cancel()
	started := time.Now()
	attrs, err := provider.Analyze(callCtx, imageBytes, mimeHint)
	g.metrics.RecordCall(provider.Name(), time.Since(started), err)
	if err != nil {
		return nil, err
	}
	if attrs == nil {
		return nil, NewProviderError(provider.Name(), ProviderErrUnparseable, fmt.Errorf("provider returned no attributes"))
	}
	attrs.Provider = provider.Name()
	return attrs, nil
}

func hasUsableColors(colors []string) bool {
	for _, c := range colors {
		if c != "" && c != "unknown" && c != "other" {
			return true
		}
	}
	return false
}

// augmentIfWeak folds local pixel analysis into a weak provider result. Local
// values only override absent or generic provider values and the composite is
// tagged with both sources.
func (g *VisionGateway) augmentIfWeak(attrs *models.ClothingAttributes, imageBytes []byte) {
	if attrs.Confidence >= augmentConfidenceThreshold && hasUsableColors(attrs.Colors) {
		return
	}
	local, err := g.localAnalyze(imageBytes)
	if err != nil {
		log.Printf("[Vision] Local augmentation failed: %v", err)
		return
	}
	if !hasUsableColors(attrs.Colors) && hasUsableColors(local.Colors) {
		attrs.Colors = local.Colors
	}
	if attrs.SubCategory == "" && local.SubCategory != "" {
		attrs.SubCategory = local.SubCategory
	}
	if len(local.DetectedFeatures) > 0 {
		attrs.DetectedFeatures = append(attrs.DetectedFeatures, local.DetectedFeatures...)
	}
	if attrs.Confidence < augmentedMinConfidence {
		attrs.Confidence = augmentedMinConfidence
	}
	attrs.Provider = attrs.Provider + "+local"
}

// normalizeAttributes enforces the invariants every caller relies on:
// confidence in [0,1], colors never empty, closed category/style sets.
func normalizeAttributes(attrs *models.ClothingAttributes) {
	if attrs.Confidence < 0 {
		attrs.Confidence = 0
	}
	if attrs.Confidence > 1 {
		attrs.Confidence = 1
	}
	if len(attrs.Colors) == 0 {
		attrs.Colors = []string{"unknown"}
	}
	if !models.IsGarmentCategory(attrs.Category) {
		attrs.Category = "top"
	}
	if !models.IsGarmentStyle(attrs.Style) {
		attrs.Style = "casual"
	}
}

// rawAttributesPayload is the JSON shape the LLM providers are asked to emit.
type rawAttributesPayload struct {
	Category    string   `json:"category"`
	SubCategory string   `json:"sub_category"`
	Colors      []string `json:"colors"`
	Style       string   `json:"style"`
	Seasons     []string `json:"seasons"`
	Confidence  float64  `json:"confidence"`
	Features    []string `json:"features"`
	Tags        []string `json:"tags"`
}

func cleanAIResponseText(text string) string {
	cleanContent := strings.ReplaceAll(text, "```json", "")
	cleanContent = strings.ReplaceAll(cleanContent, "```", "")
	return strings.TrimSpace(cleanContent)
}

// parseAttributesJSON extracts ClothingAttributes out of free-text model
// output. A response without the expected JSON object is an unparseable
// provider failure, never a fatal error.
func parseAttributesJSON(text string) (*models.ClothingAttributes, error) {
	clean := cleanAIResponseText(text)
	start := strings.Index(clean, "{")
	end := strings.LastIndex(clean, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response: %.120s", clean)
	}
	var raw rawAttributesPayload
	if err := json.Unmarshal([]byte(clean[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("malformed attributes JSON: %v", err)
	}
	if raw.Category == "" {
		return nil, fmt.Errorf("attributes JSON missing category")
	}
	return &models.ClothingAttributes{
		Category:         raw.Category,
		SubCategory:      raw.SubCategory,
		Colors:           raw.Colors,
		Style:            raw.Style,
		Seasons:          raw.Seasons,
		Confidence:       raw.Confidence,
		DetectedFeatures: raw.Features,
		SuggestedTags:    raw.Tags,
	}, nil
}

// visionPrompt is shared by the LLM-backed providers.
const visionPrompt = `Analyze the clothing item in this photo. Respond with only a JSON object:
{"category": one of [top, bottom, outerwear, shoes, accessory, underwear, sportswear, formalwear],
"sub_category": short free text like "t-shirt" or "sneakers",
"colors": up to 3 dominant color names, most dominant first,
"style": one of [casual, formal, sport, fashion, vintage, minimal, street],
"seasons": subset of [spring, summer, autumn, winter],
"confidence": 0.0-1.0,
"features": notable visual features like "striped" or "v-neck",
"tags": suggested closet tags}`
