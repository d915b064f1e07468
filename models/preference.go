package models

import "github.com/lib/pq"

// Preference scores stay inside [-5, 5] so they remain human readable and a
// burst of events cannot drift a single style into dominating forever.
const (
	PreferenceScoreMin = -5.0
	PreferenceScoreMax = 5.0
)

// MaxRejectedCombinations bounds the rejected set; oldest entries are evicted
// first once full.
const MaxRejectedCombinations = 100

type ScoreMap map[string]float64

// Add applies a delta and clamps the result. All writes to a ScoreMap go
// through here.
func (m ScoreMap) Add(key string, delta float64) {
	if key == "" || delta == 0 {
		return
	}
	score := m[key] + delta
	if score > PreferenceScoreMax {
		score = PreferenceScoreMax
	}
	if score < PreferenceScoreMin {
		score = PreferenceScoreMin
	}
	m[key] = score
}

// UserPreferenceState is derived state: the behavior event log is the source
// of truth and this document can always be rebuilt by replay. Concurrent
// updates for the same user are last-write-wins on the whole row.
type UserPreferenceState struct {
	JsonModel
	UserAccountID uint        `gorm:"uniqueIndex" json:"-"`
	UserAccount   UserAccount `json:"-"`

	StyleScores    ScoreMap `gorm:"serializer:json" json:"style_scores"`
	ColorScores    ScoreMap `gorm:"serializer:json" json:"color_scores"`
	OccasionScores ScoreMap `gorm:"serializer:json" json:"occasion_scores"`

	// canonical "id,id,id" strings, insertion ordered for FIFO eviction
	RejectedCombinations pq.StringArray `gorm:"type:text[]" json:"rejected_combinations"`
}

func NewUserPreferenceState(userID uint) *UserPreferenceState {
	return &UserPreferenceState{
		UserAccountID:        userID,
		StyleScores:          ScoreMap{},
		ColorScores:          ScoreMap{},
		OccasionScores:       ScoreMap{},
		RejectedCombinations: pq.StringArray{},
	}
}

// EnsureMaps backfills nil maps on states loaded from older rows.
func (s *UserPreferenceState) EnsureMaps() {
	if s.StyleScores == nil {
		s.StyleScores = ScoreMap{}
	}
	if s.ColorScores == nil {
		s.ColorScores = ScoreMap{}
	}
	if s.OccasionScores == nil {
		s.OccasionScores = ScoreMap{}
	}
}

func (s *UserPreferenceState) HasRejectedCombination(combo string) bool {
	for _, c := range s.RejectedCombinations {
		if c == combo {
			return true
		}
	}
	return false
}
