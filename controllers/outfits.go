package controllers

import (
	"net/http"

	"closetapi/models"
	"closetapi/services"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

type OutfitsController struct {
	LLM services.OutfitLLM
}

func (controller *OutfitsController) OutfitRoutes(g *echo.Group) {
	g.GET("/suggest", controller.SuggestOutfits)
}

// SuggestOutfits composes outfits from the analyzed closet. The AI path is
// opt-in per request and silently degrades to the rule engine when the
// model is not configured or misbehaves.
func (controller *OutfitsController) SuggestOutfits(c echo.Context) error {
	db := c.Get("__db").(*gorm.DB)
	user, err := currentUser(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	var garments []models.Garment
	if err := db.Where("owner_id = ? AND processing_status = ?", user.ID, "completed").
		Order("created_at DESC").Find(&garments).Error; err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to load garments"})
	}

	prefs, err := services.LoadPreferenceState(db, user.ID)
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to load preferences"})
	}

	useAI := c.QueryParam("ai") == "true" && controller.LLM != nil
	var suggestions []services.OutfitSuggestion
	if useAI {
		suggestions = services.ComposeOutfitsWithAI(c.Request().Context(), controller.LLM, garments, prefs)
	} else {
		suggestions = services.ComposeOutfits(garments, prefs)
	}
	if suggestions == nil {
		suggestions = []services.OutfitSuggestion{}
	}

	// the AI path degrades to the rule engine on failure; report what
	// actually produced the suggestions
	source := "rules"
	if len(suggestions) > 0 && suggestions[0].Source == "ai" {
		source = "ai"
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"outfits": suggestions,
		"source":  source,
		"total":   len(suggestions),
	})
}
