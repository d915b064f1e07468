package services

import (
	"sort"
	"time"

	"gorm.io/gorm"

	"closetapi/models"
)

// Decision-speed buckets over the average time spent on like/dislike/save
// events that carry a measurement.
const (
	decisionFastBelowSeconds = 5.0
	decisionSlowAboveSeconds = 15.0
)

var engagementActions = map[string]bool{
	models.ActionLike:   true,
	models.ActionSave:   true,
	models.ActionWear:   true,
	models.ActionUpload: true,
}

var decisionActions = map[string]bool{
	models.ActionLike:    true,
	models.ActionDislike: true,
	models.ActionSave:    true,
}

type ActionCount struct {
	Action string `json:"action"`
	Count  int    `json:"count"`
}

type PatternReport struct {
	WindowDays         int           `json:"window_days"`
	TotalEvents        int           `json:"total_events"`
	MostActiveHour     int           `json:"most_active_hour"`
	TopActions         []ActionCount `json:"top_actions"`
	SessionCount       int           `json:"session_count"`
	AvgSessionEvents   float64       `json:"avg_session_events"`
	EngagementRatio    float64       `json:"engagement_ratio"`
	DecisionSpeed      string        `json:"decision_speed"` // fast, normal, slow
	AvgDecisionSeconds float64       `json:"avg_decision_seconds"`
}

// AnalyzeBehaviorPatterns reports descriptive statistics over the user's
// behavior log restricted to the window. Read-only; an empty window yields
// well-defined defaults instead of an error.
func AnalyzeBehaviorPatterns(db *gorm.DB, userID uint, windowDays int) (*PatternReport, error) {
	if windowDays <= 0 {
		windowDays = 30
	}
	since := time.Now().AddDate(0, 0, -windowDays)
	var events []models.BehaviorEvent
	if err := db.Where("user_account_id = ? AND created_at >= ?", userID, since).
		Order("created_at asc").Find(&events).Error; err != nil {
		return nil, err
	}
	return BuildPatternReport(events, windowDays), nil
}

// BuildPatternReport is the pure computation over an already-loaded window.
func BuildPatternReport(events []models.BehaviorEvent, windowDays int) *PatternReport {
	report := &PatternReport{
		WindowDays:     windowDays,
		TotalEvents:    len(events),
		MostActiveHour: 12,
		TopActions:     []ActionCount{},
		DecisionSpeed:  "normal",
	}
	if len(events) == 0 {
		return report
	}

	hourCounts := map[int]int{}
	actionCounts := map[string]int{}
	sessionEvents := map[string]int{}
	engaged := 0
	var decisionTotal float64
	decisionSamples := 0

	for _, event := range events {
		hourCounts[event.CreatedAt.Hour()]++
		actionCounts[event.Action]++
		if event.Metadata.SessionID != "" {
			sessionEvents[event.Metadata.SessionID]++
		}
		if engagementActions[event.Action] {
			engaged++
		}
		if decisionActions[event.Action] && event.Metadata.TimeSpentSeconds != nil {
			decisionTotal += *event.Metadata.TimeSpentSeconds
			decisionSamples++
		}
	}

	report.MostActiveHour = modalHour(hourCounts)
	report.TopActions = topActions(actionCounts, 5)
	report.SessionCount = len(sessionEvents)
	if len(sessionEvents) > 0 {
		total := 0
		for _, n := range sessionEvents {
			total += n
		}
		report.AvgSessionEvents = float64(total) / float64(len(sessionEvents))
	}
	report.EngagementRatio = float64(engaged) / float64(len(events))

	if decisionSamples > 0 {
		avg := decisionTotal / float64(decisionSamples)
		report.AvgDecisionSeconds = avg
		switch {
		case avg < decisionFastBelowSeconds:
			report.DecisionSpeed = "fast"
		case avg > decisionSlowAboveSeconds:
			report.DecisionSpeed = "slow"
		}
	}
	return report
}

// modalHour returns the single most frequent event hour; a tie falls back to
// noon.
func modalHour(hourCounts map[int]int) int {
	best, bestCount, tied := 12, 0, false
	for hour := 0; hour < 24; hour++ {
		count := hourCounts[hour]
		if count > bestCount {
			best, bestCount, tied = hour, count, false
		} else if count == bestCount && count > 0 {
			tied = true
		}
	}
	if tied || bestCount == 0 {
		return 12
	}
	return best
}

func topActions(actionCounts map[string]int, n int) []ActionCount {
	counts := make([]ActionCount, 0, len(actionCounts))
	for action, count := range actionCounts {
		counts = append(counts, ActionCount{Action: action, Count: count})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Action < counts[j].Action
	})
	if len(counts) > n {
		counts = counts[:n]
	}
	return counts
}
