package services

import (
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"closetapi/models"
)

// behaviorWeights maps each action to its signed contribution. Unknown
// actions contribute nothing.
var behaviorWeights = map[string]float64{
	models.ActionLike:                 2.0,
	models.ActionDislike:              -1.5,
	models.ActionWear:                 1.5,
	models.ActionSave:                 1.8,
	models.ActionView:                 0.3,
	models.ActionRejectRecommendation: -1.0,
	models.ActionAcceptRecommendation: 1.2,
}

// CanonicalCombination renders a garment-id set as its canonical string:
// sorted then comma-joined, so {"b","a"} and {"a","b"} collapse to "a,b".
func CanonicalCombination(ids []string) string {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

// ApplyBehaviorEvent folds one event into the preference state. For a single
// garment the full weight goes to its style and each of its colors; for an
// outfit the colors get half weight (attribution is diffuse across garments)
// and the style weight goes to the modal style of the outfit.
func ApplyBehaviorEvent(state *models.UserPreferenceState, event *models.BehaviorEvent, garments []models.Garment) {
	state.EnsureMaps()

	weight := behaviorWeights[event.Action]
	if weight != 0 && len(garments) > 0 {
		if len(garments) == 1 {
			g := garments[0]
			state.StyleScores.Add(g.Style, weight)
			for _, color := range g.Colors {
				state.ColorScores.Add(color, weight)
			}
		} else {
			state.StyleScores.Add(modalStyle(garments), weight)
			for _, g := range garments {
				for _, color := range g.Colors {
					state.ColorScores.Add(color, weight/2)
				}
			}
		}
	}
	if weight != 0 && event.Metadata.Occasion != "" {
		state.OccasionScores.Add(event.Metadata.Occasion, weight)
	}

	if event.Action == models.ActionDislike || event.Action == models.ActionRejectRecommendation {
		if len(event.Metadata.GarmentIDs) > 1 {
			AddRejectedCombination(state, CanonicalCombination(event.Metadata.GarmentIDs))
		}
	}
}

// AddRejectedCombination appends a canonical combination with set semantics
// and FIFO eviction: re-adding an existing combination is a no-op, and once
// the set holds MaxRejectedCombinations entries the oldest one is dropped.
func AddRejectedCombination(state *models.UserPreferenceState, combo string) {
	if combo == "" || state.HasRejectedCombination(combo) {
		return
	}
	state.RejectedCombinations = append(state.RejectedCombinations, combo)
	if len(state.RejectedCombinations) > models.MaxRejectedCombinations {
		state.RejectedCombinations = state.RejectedCombinations[1:]
	}
}

// modalStyle is the most frequent style among the garments, ties broken by
// first encounter.
func modalStyle(garments []models.Garment) string {
	counts := map[string]int{}
	best := ""
	bestCount := 0
	for _, g := range garments {
		if g.Style == "" {
			continue
		}
		counts[g.Style]++
		if counts[g.Style] > bestCount {
			best = g.Style
			bestCount = counts[g.Style]
		}
	}
	return best
}

// LoadPreferenceState fetches the user's state, returning a fresh empty one
// when none exists yet. Preference state is never created by the user
// directly.
func LoadPreferenceState(db *gorm.DB, userID uint) (*models.UserPreferenceState, error) {
	var state models.UserPreferenceState
	err := db.Where("user_account_id = ?", userID).First(&state).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return models.NewUserPreferenceState(userID), nil
		}
		return nil, err
	}
	state.EnsureMaps()
	return &state, nil
}

func savePreferenceState(db *gorm.DB, state *models.UserPreferenceState) error {
	// last-write-wins upsert on the whole document by user
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"style_scores", "color_scores", "occasion_scores", "rejected_combinations", "updated_at",
		}),
	}).Create(state).Error
}

// garmentsForEvent resolves the garments an event refers to: the explicit
// metadata id set for outfits, otherwise the single target garment. Ids that
// do not resolve are skipped.
func garmentsForEvent(db *gorm.DB, event *models.BehaviorEvent) []models.Garment {
	var ids []uint
	for _, raw := range event.Metadata.GarmentIDs {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, uint(id))
	}
	if len(ids) == 0 && event.TargetID != nil && event.TargetType == "garment" {
		ids = append(ids, *event.TargetID)
	}
	if len(ids) == 0 {
		return nil
	}
	var garments []models.Garment
	if err := db.Where("id IN ? AND owner_id = ?", ids, event.UserAccountID).Find(&garments).Error; err != nil {
		log.Printf("[Preferences] Failed to load garments for event %v: %v", event.ID, err)
		return nil
	}
	return garments
}

// UpdatePreferencesFromEvent is the asynchronous half of behavior recording:
// the event row is already durable, this read-modify-writes the preference
// document. Two concurrent updates for the same user can race and one can be
// lost; the event log allows a full rebuild so this is accepted.
func UpdatePreferencesFromEvent(db *gorm.DB, eventID uint) error {
	var event models.BehaviorEvent
	if err := db.First(&event, eventID).Error; err != nil {
		return fmt.Errorf("behavior event %v not found: %w", eventID, err)
	}
	state, err := LoadPreferenceState(db, event.UserAccountID)
	if err != nil {
		return err
	}
	ApplyBehaviorEvent(state, &event, garmentsForEvent(db, &event))
	return savePreferenceState(db, state)
}

// RebuildPreferences replays the user's whole event log into a fresh state.
// The raw events are the durable source of truth, so this recovers from any
// lost asynchronous update.
func RebuildPreferences(db *gorm.DB, userID uint) (*models.UserPreferenceState, error) {
	var events []models.BehaviorEvent
	if err := db.Where("user_account_id = ?", userID).Order("created_at asc, id asc").Find(&events).Error; err != nil {
		return nil, err
	}
	state := models.NewUserPreferenceState(userID)
	var existing models.UserPreferenceState
	if err := db.Where("user_account_id = ?", userID).First(&existing).Error; err == nil {
		state.ID = existing.ID
	}
	for i := range events {
		ApplyBehaviorEvent(state, &events[i], garmentsForEvent(db, &events[i]))
	}
	if err := savePreferenceState(db, state); err != nil {
		return nil, err
	}
	return state, nil
}
