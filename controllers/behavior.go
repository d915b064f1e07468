package controllers

import (
	"net/http"
	"strconv"

	"closetapi/models"
	"closetapi/services"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

type BehaviorController struct{}

func (controller *BehaviorController) BehaviorRoutes(g *echo.Group) {
	g.POST("", controller.RecordEvent)
	g.GET("/preferences", controller.GetPreferences)
	g.POST("/preferences/rebuild", controller.RebuildPreferences)
	g.GET("/patterns", controller.GetPatterns)
}

// RecordEvent persists the event and schedules the preference update. The
// write of the event row is the only thing the client waits on.
func (controller *BehaviorController) RecordEvent(c echo.Context) error {
	var req models.BehaviorIn
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	db := c.Get("__db").(*gorm.DB)
	user, err := currentUser(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	event := models.BehaviorEvent{
		UserAccountID: user.ID,
		Action:        req.Action,
		TargetType:    req.TargetType,
		TargetID:      req.TargetID,
		Metadata:      req.Metadata,
	}
	if err := db.Create(&event).Error; err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to record event"})
	}
	enqueuePreferenceUpdate(c, event.ID)

	return c.JSON(http.StatusCreated, event)
}

func (controller *BehaviorController) GetPreferences(c echo.Context) error {
	db := c.Get("__db").(*gorm.DB)
	user, err := currentUser(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	state, err := services.LoadPreferenceState(db, user.ID)
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to load preferences"})
	}
	return c.JSON(http.StatusOK, state)
}

// RebuildPreferences replays every stored event in order. Used as a recovery
// path when the async updates drifted or were lost.
func (controller *BehaviorController) RebuildPreferences(c echo.Context) error {
	db := c.Get("__db").(*gorm.DB)
	user, err := currentUser(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	state, err := services.RebuildPreferences(db, user.ID)
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to rebuild preferences"})
	}
	return c.JSON(http.StatusOK, state)
}

func (controller *BehaviorController) GetPatterns(c echo.Context) error {
	db := c.Get("__db").(*gorm.DB)
	user, err := currentUser(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	windowDays := 30
	if raw := c.QueryParam("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "days must be a positive integer"})
		}
		windowDays = parsed
	}

	report, err := services.AnalyzeBehaviorPatterns(db, user.ID, windowDays)
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to analyze patterns"})
	}
	return c.JSON(http.StatusOK, report)
}
