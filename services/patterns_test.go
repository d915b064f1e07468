package services

import (
	"testing"
	"time"

	"closetapi/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eventAt(hour int, action string) models.BehaviorEvent {
	e := models.BehaviorEvent{Action: action}
	e.CreatedAt = time.Date(2026, 8, 20, hour, 30, 0, 0, time.UTC)
	return e
}

func withTimeSpent(e models.BehaviorEvent, seconds float64) models.BehaviorEvent {
	e.Metadata.TimeSpentSeconds = &seconds
	return e
}

func withSession(e models.BehaviorEvent, sessionID string) models.BehaviorEvent {
	e.Metadata.SessionID = sessionID
	return e
}

func TestBuildPatternReportEmptyWindow(t *testing.T) {
	report := BuildPatternReport(nil, 30)

	assert.Equal(t, 30, report.WindowDays)
	assert.Zero(t, report.TotalEvents)
	assert.Equal(t, 12, report.MostActiveHour)
	assert.Empty(t, report.TopActions)
	assert.Zero(t, report.SessionCount)
	assert.Zero(t, report.EngagementRatio)
	assert.Equal(t, "normal", report.DecisionSpeed)
}

func TestBuildPatternReportMostActiveHour(t *testing.T) {
	events := []models.BehaviorEvent{
		eventAt(9, models.ActionView),
		eventAt(9, models.ActionView),
		eventAt(9, models.ActionLike),
		eventAt(20, models.ActionView),
	}
	report := BuildPatternReport(events, 30)
	assert.Equal(t, 9, report.MostActiveHour)
}

func TestBuildPatternReportHourTieFallsBackToNoon(t *testing.T) {
	events := []models.BehaviorEvent{
		eventAt(9, models.ActionView),
		eventAt(20, models.ActionView),
	}
	report := BuildPatternReport(events, 30)
	assert.Equal(t, 12, report.MostActiveHour)
}

func TestBuildPatternReportTopActions(t *testing.T) {
	var events []models.BehaviorEvent
	for i := 0; i < 5; i++ {
		events = append(events, eventAt(10, models.ActionView))
	}
	for i := 0; i < 3; i++ {
		events = append(events, eventAt(10, models.ActionLike))
	}
	events = append(events,
		eventAt(10, models.ActionSave),
		eventAt(10, models.ActionWear),
		eventAt(10, models.ActionSearch),
		eventAt(10, models.ActionUpload),
		eventAt(10, models.ActionFilter),
	)

	report := BuildPatternReport(events, 30)

	require.Len(t, report.TopActions, 5, "top actions are capped at 5")
	assert.Equal(t, models.ActionView, report.TopActions[0].Action)
	assert.Equal(t, 5, report.TopActions[0].Count)
	assert.Equal(t, models.ActionLike, report.TopActions[1].Action)
}

func TestBuildPatternReportEngagementRatio(t *testing.T) {
	events := []models.BehaviorEvent{
		eventAt(10, models.ActionLike),
		eventAt(10, models.ActionSave),
		eventAt(10, models.ActionView),
		eventAt(10, models.ActionSearch),
	}
	report := BuildPatternReport(events, 30)
	assert.InDelta(t, 0.5, report.EngagementRatio, 0.001)
}

func TestBuildPatternReportSessionStats(t *testing.T) {
	events := []models.BehaviorEvent{
		withSession(eventAt(10, models.ActionView), "s1"),
		withSession(eventAt(10, models.ActionLike), "s1"),
		withSession(eventAt(10, models.ActionView), "s1"),
		withSession(eventAt(11, models.ActionView), "s2"),
		eventAt(12, models.ActionView), // no session id, excluded from session stats
	}
	report := BuildPatternReport(events, 30)

	assert.Equal(t, 2, report.SessionCount)
	assert.InDelta(t, 2.0, report.AvgSessionEvents, 0.001)
}

func TestBuildPatternReportDecisionSpeed(t *testing.T) {
	fast := []models.BehaviorEvent{
		withTimeSpent(eventAt(10, models.ActionLike), 2.0),
		withTimeSpent(eventAt(10, models.ActionDislike), 3.0),
	}
	assert.Equal(t, "fast", BuildPatternReport(fast, 30).DecisionSpeed)

	slow := []models.BehaviorEvent{
		withTimeSpent(eventAt(10, models.ActionSave), 20.0),
		withTimeSpent(eventAt(10, models.ActionLike), 30.0),
	}
	report := BuildPatternReport(slow, 30)
	assert.Equal(t, "slow", report.DecisionSpeed)
	assert.InDelta(t, 25.0, report.AvgDecisionSeconds, 0.001)

	normal := []models.BehaviorEvent{
		withTimeSpent(eventAt(10, models.ActionLike), 10.0),
	}
	assert.Equal(t, "normal", BuildPatternReport(normal, 30).DecisionSpeed)

	// time spent on a non-decision action does not count
	viewOnly := []models.BehaviorEvent{
		withTimeSpent(eventAt(10, models.ActionView), 2.0),
	}
	assert.Equal(t, "normal", BuildPatternReport(viewOnly, 30).DecisionSpeed)
}
