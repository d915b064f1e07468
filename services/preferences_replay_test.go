package services_test

import (
	"testing"

	"closetapi/dbhelper"
	"closetapi/models"
	"closetapi/services"
	"closetapi/test"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebuildPreferencesReplaysEventLog(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	user := test.FakeUser(db)
	top := test.FakeGarment(db, user, "top", "casual", []string{"blue"})
	bottom := test.FakeGarment(db, user, "bottom", "formal", []string{"black"})

	events := []models.BehaviorEvent{
		{UserAccountID: user.ID, Action: models.ActionLike, TargetType: "garment", TargetID: &top.ID},
		{UserAccountID: user.ID, Action: models.ActionWear, TargetType: "garment", TargetID: &top.ID},
		{UserAccountID: user.ID, Action: models.ActionDislike, TargetType: "garment", TargetID: &bottom.ID},
	}
	for i := range events {
		require.NoError(t, db.Create(&events[i]).Error)
		require.NoError(t, services.UpdatePreferencesFromEvent(db, events[i].ID))
	}

	incremental, err := services.LoadPreferenceState(db, user.ID)
	require.NoError(t, err)

	rebuilt, err := services.RebuildPreferences(db, user.ID)
	require.NoError(t, err)

	assert.InDelta(t, incremental.StyleScores["casual"], rebuilt.StyleScores["casual"], 0.001)
	assert.InDelta(t, incremental.StyleScores["formal"], rebuilt.StyleScores["formal"], 0.001)
	assert.InDelta(t, incremental.ColorScores["blue"], rebuilt.ColorScores["blue"], 0.001)
	assert.InDelta(t, incremental.ColorScores["black"], rebuilt.ColorScores["black"], 0.001)
	assert.InDelta(t, 3.5, rebuilt.StyleScores["casual"], 0.001, "like + wear on the same style")
	assert.InDelta(t, -1.5, rebuilt.StyleScores["formal"], 0.001)
}
