package services

import (
	"context"
	"fmt"
	"strconv"
	"testing"

	"closetapi/models"
	"closetapi/test"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closetGarment(id uint, category, style string, colors []string, seasons []string) models.Garment {
	g := models.Garment{
		Category: category,
		Style:    style,
		Colors:   pq.StringArray(colors),
		Seasons:  pq.StringArray(seasons),
	}
	g.ID = id
	return g
}

func smallCloset() []models.Garment {
	allYear := []string{"spring", "summer", "autumn", "winter"}
	return []models.Garment{
		closetGarment(1, "top", "casual", []string{"white"}, allYear),
		closetGarment(2, "top", "formal", []string{"blue"}, []string{"spring", "autumn"}),
		closetGarment(3, "bottom", "casual", []string{"blue"}, allYear),
		closetGarment(4, "bottom", "formal", []string{"black"}, []string{"autumn", "winter"}),
		closetGarment(5, "shoes", "casual", []string{"white"}, allYear),
	}
}

func TestColorHarmonyScore(t *testing.T) {
	assert.InDelta(t, 0.9, colorHarmonyScore(1), 0.001)
	assert.InDelta(t, 0.9, colorHarmonyScore(2), 0.001)
	assert.InDelta(t, 0.7, colorHarmonyScore(3), 0.001)
	assert.InDelta(t, 0.7, colorHarmonyScore(4), 0.001)
	assert.InDelta(t, 0.3, colorHarmonyScore(5), 0.001)
}

func TestComposeOutfitsHarmonyExamples(t *testing.T) {
	allYear := []string{"spring", "summer"}
	twoColor := []models.Garment{
		closetGarment(1, "top", "casual", []string{"white"}, allYear),
		closetGarment(2, "bottom", "casual", []string{"blue"}, allYear),
		closetGarment(3, "shoes", "casual", []string{"white"}, allYear),
	}
	suggestions := ComposeOutfits(twoColor, nil)
	require.Len(t, suggestions, 1)
	assert.InDelta(t, 0.9, suggestions[0].ColorHarmony, 0.001)

	fiveColor := []models.Garment{
		closetGarment(1, "top", "casual", []string{"red", "yellow"}, allYear),
		closetGarment(2, "bottom", "casual", []string{"green", "purple"}, allYear),
		closetGarment(3, "shoes", "casual", []string{"cyan"}, allYear),
	}
	suggestions = ComposeOutfits(fiveColor, nil)
	assert.Empty(t, suggestions, "harmony 0.3 falls below the cutoff")
}

func TestComposeOutfitsFiltersLowHarmony(t *testing.T) {
	suggestions := ComposeOutfits(smallCloset(), nil)
	require.NotEmpty(t, suggestions)
	for _, s := range suggestions {
		assert.Greater(t, s.ColorHarmony, minColorHarmony)
	}
}

func TestComposeOutfitsDeterministic(t *testing.T) {
	closet := smallCloset()
	first := ComposeOutfits(closet, nil)
	second := ComposeOutfits(closet, nil)
	assert.Equal(t, first, second)
}

func TestComposeOutfitsCapsResults(t *testing.T) {
	allYear := []string{"spring", "summer", "autumn", "winter"}
	var closet []models.Garment
	id := uint(1)
	for i := 0; i < 8; i++ {
		closet = append(closet, closetGarment(id, "top", "casual", []string{"white"}, allYear))
		id++
	}
	for i := 0; i < 5; i++ {
		closet = append(closet, closetGarment(id, "bottom", "casual", []string{"white"}, allYear))
		id++
	}
	for i := 0; i < 4; i++ {
		closet = append(closet, closetGarment(id, "shoes", "casual", []string{"white"}, allYear))
		id++
	}

	suggestions := ComposeOutfits(closet, nil)
	assert.Len(t, suggestions, composeMaxResults)
}

func TestComposeOutfitsSkipsRejectedCombination(t *testing.T) {
	closet := smallCloset()
	baseline := ComposeOutfits(closet, nil)
	require.NotEmpty(t, baseline)
	rejectedID := CanonicalCombination(baseline[0].GarmentIDs)

	prefs := models.NewUserPreferenceState(1)
	prefs.RejectedCombinations = pq.StringArray{rejectedID}

	filtered := ComposeOutfits(closet, prefs)
	for _, s := range filtered {
		assert.NotEqual(t, rejectedID, CanonicalCombination(s.GarmentIDs))
	}
}

func TestComposeOutfitsMetadata(t *testing.T) {
	allYear := []string{"spring", "summer", "autumn", "winter"}
	closet := []models.Garment{
		closetGarment(1, "top", "formal", []string{"white"}, allYear),
		closetGarment(2, "bottom", "formal", []string{"black"}, []string{"autumn", "winter"}),
		closetGarment(3, "shoes", "casual", []string{"black"}, allYear),
	}
	suggestions := ComposeOutfits(closet, nil)
	require.Len(t, suggestions, 1)
	s := suggestions[0]

	assert.Equal(t, "formal", s.DominantStyle)
	assert.Equal(t, "work/formal", s.Occasion)
	assert.ElementsMatch(t, []string{"spring", "summer", "autumn", "winter"}, s.Seasons, "seasons shared by at least two garments")
	assert.Equal(t, "rules", s.Source)
}

func TestSuggestOccasion(t *testing.T) {
	assert.Equal(t, "work/formal", suggestOccasion("formal"))
	assert.Equal(t, "sport/fitness", suggestOccasion("sport"))
	assert.Equal(t, "date/social", suggestOccasion("fashion"))
	assert.Equal(t, "daily casual", suggestOccasion("casual"))
	assert.Equal(t, "daily casual", suggestOccasion("vintage"))
}

func TestPreferenceScoreRanking(t *testing.T) {
	prefs := models.NewUserPreferenceState(1)
	prefs.StyleScores["casual"] = 3.0
	prefs.ColorScores["blue"] = 2.0

	triple := []models.Garment{
		closetGarment(1, "top", "casual", []string{"blue"}, nil),
		closetGarment(2, "bottom", "casual", []string{"blue"}, nil),
		closetGarment(3, "shoes", "casual", []string{"white"}, nil),
	}
	score := preferenceScore(prefs, triple, "casual")
	assert.InDelta(t, 3.0+2.0/2+2.0/2, score, 0.001)

	assert.Zero(t, preferenceScore(nil, triple, "casual"))
}

func TestComposeOutfitsWithAIParsesResponse(t *testing.T) {
	closet := smallCloset()
	llm := &test.OutfitLLMMock{Response: `[
		{"garment_ids": ["1", "3", "5"], "reasoning": "clean monochrome", "occasion": "weekend", "style": "casual", "harmony": 9}
	]`}

	suggestions := ComposeOutfitsWithAI(context.Background(), llm, closet, nil)

	require.Len(t, suggestions, 1)
	assert.Equal(t, []string{"1", "3", "5"}, suggestions[0].GarmentIDs)
	assert.InDelta(t, 0.9, suggestions[0].ColorHarmony, 0.001)
	assert.Equal(t, "ai", suggestions[0].Source)
	assert.Equal(t, "clean monochrome", suggestions[0].Reasoning)
}

func TestComposeOutfitsWithAIDropsUnknownGarments(t *testing.T) {
	closet := smallCloset()
	llm := &test.OutfitLLMMock{Response: `[
		{"garment_ids": ["1", "999"], "occasion": "weekend", "style": "casual", "harmony": 8},
		{"garment_ids": ["1", "3"], "occasion": "weekend", "style": "casual", "harmony": 7}
	]`}

	suggestions := ComposeOutfitsWithAI(context.Background(), llm, closet, nil)

	require.Len(t, suggestions, 1)
	assert.Equal(t, []string{"1", "3"}, suggestions[0].GarmentIDs)
}

func TestComposeOutfitsWithAIFallsBackOnError(t *testing.T) {
	closet := smallCloset()
	llm := &test.OutfitLLMMock{Err: fmt.Errorf("model unavailable")}

	suggestions := ComposeOutfitsWithAI(context.Background(), llm, closet, nil)

	require.NotEmpty(t, suggestions)
	for _, s := range suggestions {
		assert.Equal(t, "rules", s.Source)
	}
}

func TestComposeOutfitsWithAIFallsBackOnGarbage(t *testing.T) {
	closet := smallCloset()
	llm := &test.OutfitLLMMock{Response: "sorry, I cannot do that"}

	suggestions := ComposeOutfitsWithAI(context.Background(), llm, closet, nil)

	require.NotEmpty(t, suggestions)
	assert.Equal(t, "rules", suggestions[0].Source)
}

func TestComposeOutfitsWithAISkipsRejectedCombination(t *testing.T) {
	closet := smallCloset()
	prefs := models.NewUserPreferenceState(1)
	prefs.RejectedCombinations = pq.StringArray{CanonicalCombination([]string{"1", "3", "5"})}

	llm := &test.OutfitLLMMock{Response: `[
		{"garment_ids": ["1", "3", "5"], "occasion": "weekend", "style": "casual", "harmony": 9},
		{"garment_ids": ["2", "4", "5"], "occasion": "office", "style": "formal", "harmony": 8}
	]`}

	suggestions := ComposeOutfitsWithAI(context.Background(), llm, closet, prefs)

	require.Len(t, suggestions, 1)
	assert.Equal(t, []string{"2", "4", "5"}, suggestions[0].GarmentIDs)
}

func TestBuildOutfitPromptListsInventory(t *testing.T) {
	closet := smallCloset()
	prompt := buildOutfitPrompt(closet, nil)
	for _, g := range closet {
		assert.Contains(t, prompt, "id="+strconv.FormatUint(uint64(g.ID), 10))
	}
	assert.Contains(t, prompt, "JSON array")
}
