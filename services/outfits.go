package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"

	"google.golang.org/genai"

	"closetapi/models"
)

// Composition caps: a deterministic prefix of the inventory, not a sample.
const (
	composeMaxTops    = 5
	composeMaxBottoms = 3
	composeMaxShoes   = 2
	composeMaxResults = 10

	minColorHarmony = 0.6
)

type OutfitSuggestion struct {
	TopID    uint `json:"top_id"`
	BottomID uint `json:"bottom_id"`
	ShoesID  uint `json:"shoes_id"`

	GarmentIDs      []string `json:"garment_ids"`
	ColorHarmony    float64  `json:"color_harmony"`
	DominantStyle   string   `json:"dominant_style"`
	Seasons         []string `json:"seasons"`
	Occasion        string   `json:"occasion"`
	PreferenceScore float64  `json:"preference_score"`
	Reasoning       string   `json:"reasoning,omitempty"`
	Source          string   `json:"source"` // rules, ai
}

// ComposeOutfits builds ranked outfit candidates from the rule-based path.
// Deterministic for identical inputs: garments partition in input order, the
// cartesian product is capped to the first 5 tops x 3 bottoms x 2 shoes and
// results come back in generation order, truncated to 10.
func ComposeOutfits(garments []models.Garment, prefs *models.UserPreferenceState) []OutfitSuggestion {
	var tops, bottoms, shoes []models.Garment
	for _, g := range garments {
		switch g.Category {
		case "top":
			tops = append(tops, g)
		case "bottom":
			bottoms = append(bottoms, g)
		case "shoes":
			shoes = append(shoes, g)
		}
	}
	tops = prefix(tops, composeMaxTops)
	bottoms = prefix(bottoms, composeMaxBottoms)
	shoes = prefix(shoes, composeMaxShoes)

	suggestions := []OutfitSuggestion{}
	for _, top := range tops {
		for _, bottom := range bottoms {
			for _, shoe := range shoes {
				triple := []models.Garment{top, bottom, shoe}
				harmony := colorHarmonyScore(distinctColorCount(triple))
				if harmony <= minColorHarmony {
					continue
				}
				ids := []string{
					strconv.FormatUint(uint64(top.ID), 10),
					strconv.FormatUint(uint64(bottom.ID), 10),
					strconv.FormatUint(uint64(shoe.ID), 10),
				}
				if prefs != nil && prefs.HasRejectedCombination(CanonicalCombination(ids)) {
					continue
				}
				style := modalStyle(triple)
				suggestions = append(suggestions, OutfitSuggestion{
					TopID:           top.ID,
					BottomID:        bottom.ID,
					ShoesID:         shoe.ID,
					GarmentIDs:      ids,
					ColorHarmony:    harmony,
					DominantStyle:   style,
					Seasons:         seasonOverlap(triple),
					Occasion:        suggestOccasion(style),
					PreferenceScore: preferenceScore(prefs, triple, style),
					Source:          "rules",
				})
				if len(suggestions) == composeMaxResults {
					return suggestions
				}
			}
		}
	}
	return suggestions
}

func prefix(garments []models.Garment, n int) []models.Garment {
	if len(garments) > n {
		return garments[:n]
	}
	return garments
}

// colorHarmonyScore rewards outfits with fewer distinct colors.
func colorHarmonyScore(distinctColors int) float64 {
	switch {
	case distinctColors <= 2:
		return 0.9
	case distinctColors <= 4:
		return 0.7
	default:
		return 0.3
	}
}

func distinctColorCount(garments []models.Garment) int {
	distinct := map[string]bool{}
	for _, g := range garments {
		for _, color := range g.Colors {
			if color == "" || color == "unknown" {
				continue
			}
			distinct[color] = true
		}
	}
	return len(distinct)
}

// seasonOverlap keeps the seasons shared by at least 2 of the 3 garments.
func seasonOverlap(garments []models.Garment) []string {
	counts := map[string]int{}
	for _, g := range garments {
		for _, season := range g.Seasons {
			counts[season]++
		}
	}
	var overlap []string
	for _, season := range models.GarmentSeasons {
		if counts[season] >= 2 {
			overlap = append(overlap, season)
		}
	}
	return overlap
}

// suggestOccasion maps the dominant style to an occasion, first match in
// fixed priority order.
func suggestOccasion(style string) string {
	switch style {
	case "formal":
		return "work/formal"
	case "sport":
		return "sport/fitness"
	case "fashion":
		return "date/social"
	default:
		return "daily casual"
	}
}

// preferenceScore folds the learned weights into a ranking signal. It does
// not change the generation order of the rule-based results.
func preferenceScore(prefs *models.UserPreferenceState, garments []models.Garment, style string) float64 {
	if prefs == nil {
		return 0
	}
	score := prefs.StyleScores[style]
	for _, g := range garments {
		for _, color := range g.Colors {
			score += prefs.ColorScores[color] / 2
		}
	}
	return score
}

// OutfitLLM is the opaque large-language-model capability behind the
// AI-assisted path. A malformed response never escapes this boundary: callers
// fall back to the rule-based composer.
type OutfitLLM interface {
	SuggestOutfits(ctx context.Context, prompt string) (string, error)
}

// GeminiOutfitComposer implements OutfitLLM over the Gemini API.
type GeminiOutfitComposer struct {
	APIKey string
	Model  string
}

func NewGeminiOutfitComposer() *GeminiOutfitComposer {
	return &GeminiOutfitComposer{
		APIKey: GetEnv("GOOGLE_API_KEY", ""),
		Model:  GetEnv("GEMINI_OUTFIT_MODEL", "gemini-2.5-flash"),
	}
}

func (c *GeminiOutfitComposer) Available() bool { return c.APIKey != "" }

func (c *GeminiOutfitComposer) SuggestOutfits(ctx context.Context, prompt string) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  c.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", err
	}
	result, err := client.Models.GenerateContent(ctx, c.Model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
		&genai.GenerateContentConfig{
			CandidateCount:   1,
			ResponseMIMEType: "application/json",
			MaxOutputTokens:  4000,
		})
	if err != nil {
		return "", err
	}
	return result.Text(), nil
}

type aiOutfitPayload struct {
	GarmentIDs []string `json:"garment_ids"`
	Reasoning  string   `json:"reasoning"`
	Occasion   string   `json:"occasion"`
	Style      string   `json:"style"`
	Harmony    float64  `json:"harmony"`
}

func buildOutfitPrompt(garments []models.Garment, prefs *models.UserPreferenceState) string {
	var sb strings.Builder
	sb.WriteString("You are a personal stylist. Closet inventory:\n")
	for _, g := range garments {
		sb.WriteString(fmt.Sprintf("- id=%v category=%s style=%s colors=%s seasons=%s sub=%s\n",
			g.ID, g.Category, g.Style, strings.Join(g.Colors, "/"), strings.Join(g.Seasons, "/"), g.SubCategory))
	}
	if prefs != nil {
		prefJSON, _ := json.Marshal(map[string]any{
			"style_scores":    prefs.StyleScores,
			"color_scores":    prefs.ColorScores,
			"occasion_scores": prefs.OccasionScores,
		})
		sb.WriteString("Learned user preference weights (-5 to 5): ")
		sb.Write(prefJSON)
		sb.WriteString("\n")
	}
	sb.WriteString(`Suggest 5 to 8 outfits. Respond with only a JSON array:
[{"garment_ids": ["id", ...], "reasoning": "why this works", "occasion": "when to wear it", "style": "overall style", "harmony": 1-10}]`)
	return sb.String()
}

// ComposeOutfitsWithAI prefers the LLM path and falls back to the rule-based
// composer on provider error or on a response that fails validation. The AI
// path is not deterministic.
func ComposeOutfitsWithAI(ctx context.Context, llm OutfitLLM, garments []models.Garment, prefs *models.UserPreferenceState) []OutfitSuggestion {
	suggestions, err := composeWithLLM(ctx, llm, garments, prefs)
	if err != nil {
		log.Printf("[Outfits] AI path failed (%v), falling back to rule-based composer", err)
		return ComposeOutfits(garments, prefs)
	}
	return suggestions
}

func composeWithLLM(ctx context.Context, llm OutfitLLM, garments []models.Garment, prefs *models.UserPreferenceState) ([]OutfitSuggestion, error) {
	raw, err := llm.SuggestOutfits(ctx, buildOutfitPrompt(garments, prefs))
	if err != nil {
		return nil, err
	}
	clean := cleanAIResponseText(raw)
	start := strings.Index(clean, "[")
	end := strings.LastIndex(clean, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in response: %.120s", clean)
	}
	var payloads []aiOutfitPayload
	if err := json.Unmarshal([]byte(clean[start:end+1]), &payloads); err != nil {
		return nil, fmt.Errorf("malformed outfit JSON: %v", err)
	}

	known := map[string]models.Garment{}
	for _, g := range garments {
		known[strconv.FormatUint(uint64(g.ID), 10)] = g
	}

	var suggestions []OutfitSuggestion
	for _, p := range payloads {
		if len(p.GarmentIDs) < 2 || p.Harmony < 1 || p.Harmony > 10 {
			continue
		}
		var triple []models.Garment
		valid := true
		for _, id := range p.GarmentIDs {
			g, ok := known[id]
			if !ok {
				valid = false
				break
			}
			triple = append(triple, g)
		}
		if !valid {
			continue
		}
		if prefs != nil && prefs.HasRejectedCombination(CanonicalCombination(p.GarmentIDs)) {
			continue
		}
		style := p.Style
		if !models.IsGarmentStyle(style) {
			style = modalStyle(triple)
		}
		suggestions = append(suggestions, OutfitSuggestion{
			GarmentIDs:      p.GarmentIDs,
			ColorHarmony:    p.Harmony / 10,
			DominantStyle:   style,
			Seasons:         seasonOverlap(triple),
			Occasion:        p.Occasion,
			PreferenceScore: preferenceScore(prefs, triple, style),
			Reasoning:       p.Reasoning,
			Source:          "ai",
		})
	}
	if len(suggestions) == 0 {
		return nil, fmt.Errorf("no valid outfits in AI response (%d entries)", len(payloads))
	}
	return suggestions, nil
}
