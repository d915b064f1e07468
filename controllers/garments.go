package controllers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"closetapi/models"
	"closetapi/services"
	"closetapi/tasks"

	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

const batchAnalyzeConcurrency = 3

type GarmentsController struct {
	AWSService services.AWSServiceProvider
	Gateway    *services.VisionGateway
	URLCache   services.URLCacheServiceProvider
}

func (controller *GarmentsController) GarmentRoutes(g *echo.Group) {
	g.POST("/create", controller.CreateGarment)
	g.GET("/list", controller.ListGarments)
	g.GET("/declutter", controller.DeclutterCandidates)
	g.POST("/analyze/batch", controller.BatchAnalyze)
	g.POST("/:id/analyze", controller.AnalyzeGarment)
	g.POST("/:id/wear", controller.WearGarment)
	g.PUT("/:id", controller.EditGarment)
	g.DELETE("/:id", controller.DeleteGarment)
}

type GarmentCreateIn struct {
	Name        string  `json:"name" validate:"required"`
	Description *string `json:"description"`
	FileName    string  `json:"file_name" validate:"required"`
}

type GarmentEditIn struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Category    *string  `json:"category"`
	Style       *string  `json:"style"`
	Seasons     []string `json:"seasons"`
}

func currentUser(c echo.Context) (*models.UserAccount, error) {
	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok || user.ID == 0 {
		return nil, fmt.Errorf("no authenticated user in context")
	}
	return &user, nil
}

func garmentForUser(db *gorm.DB, c echo.Context, user *models.UserAccount) (*models.Garment, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid garment id")
	}
	var garment models.Garment
	if err := db.Where("id = ? AND owner_id = ?", id, user.ID).First(&garment).Error; err != nil {
		return nil, err
	}
	return &garment, nil
}

// CreateGarment stores a draft record and hands back a presigned PUT URL so
// the client uploads the image straight to the bucket.
func (controller *GarmentsController) CreateGarment(c echo.Context) error {
	var req GarmentCreateIn
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if !services.IsAllowedImageFileName(req.FileName) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Unsupported image file type"})
	}
	db := c.Get("__db").(*gorm.DB)
	user, err := currentUser(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	fileKey := fmt.Sprintf("garments/%v/%v-%v", user.ID, time.Now().UnixNano(), req.FileName)
	garment := models.Garment{
		Name:             req.Name,
		Description:      req.Description,
		OwnerID:          user.ID,
		ImageURL:         &fileKey,
		ProcessingStatus: "idle",
		Category:         "top",
	}
	if err := db.Create(&garment).Error; err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to create garment"})
	}

	bucketName := services.GetEnv("R2_BUCKET_NAME", "")
	uploadURL, err := controller.AWSService.PresignLink(c.Request().Context(), bucketName, fileKey)
	if err != nil {
		sentry.CaptureException(fmt.Errorf("[Garment: %v] Error on presigning upload URL: %v", garment.ID, err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to presign upload URL"})
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"garment":    garment,
		"upload_url": uploadURL,
	})
}

func enqueueAnalysis(c echo.Context, garmentID uint) error {
	client, ok := c.Get("__asynqclient").(*asynq.Client)
	if !ok || client == nil {
		return fmt.Errorf("queue client unavailable")
	}
	task, err := tasks.NewGarmentAnalysisTask(garmentID)
	if err != nil {
		return err
	}
	_, err = client.Enqueue(task, asynq.MaxRetry(3), asynq.Timeout(2*time.Minute))
	return err
}

// AnalyzeGarment marks the garment pending and enqueues the worker task. Also
// used for re-analysis of already completed garments.
func (controller *GarmentsController) AnalyzeGarment(c echo.Context) error {
	db := c.Get("__db").(*gorm.DB)
	user, err := currentUser(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	garment, err := garmentForUser(db, c, user)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Garment not found"})
	}
	if garment.ProcessingStatus == "processing" || garment.ProcessingStatus == "pending" {
		return c.JSON(http.StatusConflict, map[string]string{"error": "Analysis already in progress"})
	}

	garment.ProcessingStatus = "pending"
	if err := db.Save(garment).Error; err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to update garment"})
	}
	if err := enqueueAnalysis(c, garment.ID); err != nil {
		sentry.CaptureException(fmt.Errorf("[Garment: %v] Error on enqueueing analysis: %v", garment.ID, err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to schedule analysis"})
	}
	return c.JSON(http.StatusAccepted, garment)
}

type BatchAnalyzeIn struct {
	GarmentIDs []uint `json:"garment_ids" validate:"required,min=1"`
}

type BatchAnalyzeOut struct {
	Succeeded []uint            `json:"succeeded"`
	Failed    map[string]string `json:"failed"`
	Total     int               `json:"total"`
}

// BatchAnalyze enqueues analysis for many garments at once with bounded
// concurrency. One bad garment never aborts the rest; the summary reports
// partial success.
func (controller *GarmentsController) BatchAnalyze(c echo.Context) error {
	var req BatchAnalyzeIn
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

	var wg sync.WaitGroup
	var mu sync.Mutex
	sem := make(chan struct{}, batchAnalyzeConcurrency)
	out := BatchAnalyzeOut{Failed: map[string]string{}, Total: len(req.GarmentIDs)}

	for _, garmentID := range req.GarmentIDs {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			var garment models.Garment
			if err := db.Where("id = ? AND owner_id = ?", id, user.ID).First(&garment).Error; err != nil {
				mu.Lock()
				out.Failed[strconv.FormatUint(uint64(id), 10)] = "garment not found"
				mu.Unlock()
				return
			}
			garment.ProcessingStatus = "pending"
			if err := db.Save(&garment).Error; err != nil {
				mu.Lock()
				out.Failed[strconv.FormatUint(uint64(id), 10)] = "failed to update status"
				mu.Unlock()
				return
			}
			if err := enqueueAnalysis(c, garment.ID); err != nil {
				mu.Lock()
				out.Failed[strconv.FormatUint(uint64(id), 10)] = "failed to schedule analysis"
				mu.Unlock()
				return
			}
			mu.Lock()
			out.Succeeded = append(out.Succeeded, id)
			mu.Unlock()
		}(garmentID)
	}
	wg.Wait()

	if out.Succeeded == nil {
		out.Succeeded = []uint{}
	}
	return c.JSON(http.StatusOK, out)
}

type GarmentOut struct {
	models.Garment
	PresignedImageURL string `json:"presigned_image_url"`
}

func (controller *GarmentsController) populatePresignedImages(ctx context.Context, garments []models.Garment) []GarmentOut {
	out := make([]GarmentOut, len(garments))
	var wg sync.WaitGroup
	for i := range garments {
		out[i] = GarmentOut{Garment: garments[i]}
		if garments[i].ImageURL == nil {
			continue
		}
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			url, err := controller.URLCache.GetReadURL(ctx, key)
			if err != nil {
				fmt.Printf("[Garment: %v] Error on presigning read URL: %v\n", out[i].ID, err)
				return
			}
			out[i].PresignedImageURL = url
		}(i, *garments[i].ImageURL)
	}
	wg.Wait()
	return out
}

// ListGarments returns the whole closet grouped by category, each garment
// carrying a short-lived presigned read URL.
func (controller *GarmentsController) ListGarments(c echo.Context) error {
	db := c.Get("__db").(*gorm.DB)
	user, err := currentUser(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	var garments []models.Garment
	if err := db.Where("owner_id = ?", user.ID).Order("created_at DESC").Find(&garments).Error; err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list garments"})
	}

	populated := controller.populatePresignedImages(c.Request().Context(), garments)
	grouped := map[string][]GarmentOut{}
	for _, g := range populated {
		grouped[g.Category] = append(grouped[g.Category], g)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"garments": grouped,
		"total":    len(populated),
	})
}

func recordBehaviorEvent(c echo.Context, db *gorm.DB, user *models.UserAccount, action, targetType string, targetID *uint, metadata models.BehaviorMetadata) {
	event := models.BehaviorEvent{
		UserAccountID: user.ID,
		Action:        action,
		TargetType:    targetType,
		TargetID:      targetID,
		Metadata:      metadata,
	}
	if err := db.Create(&event).Error; err != nil {
		fmt.Printf("[User %v] Failed to record %s event: %v\n", user.ID, action, err)
		sentry.CaptureException(err)
		return
	}
	enqueuePreferenceUpdate(c, event.ID)
}

func enqueuePreferenceUpdate(c echo.Context, eventID uint) {
	client, ok := c.Get("__asynqclient").(*asynq.Client)
	if !ok || client == nil {
		return
	}
	task, err := tasks.NewPreferenceUpdateTask(eventID)
	if err != nil {
		sentry.CaptureException(err)
		return
	}
	if _, err := client.Enqueue(task, asynq.MaxRetry(3)); err != nil {
		// the event row is durable, a rebuild can recover the state later
		fmt.Printf("[Event: %v] Failed to enqueue preference update: %v\n", eventID, err)
		sentry.CaptureException(err)
	}
}

// WearGarment bumps the wear counter and records a wear event so the
// preference state learns from it.
func (controller *GarmentsController) WearGarment(c echo.Context) error {
	db := c.Get("__db").(*gorm.DB)
	user, err := currentUser(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	garment, err := garmentForUser(db, c, user)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Garment not found"})
	}

	now := time.Now()
	garment.WearCount++
	garment.LastWornAt = &now
	if err := db.Save(garment).Error; err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to update garment"})
	}

	recordBehaviorEvent(c, db, user, models.ActionWear, "garment", &garment.ID, models.BehaviorMetadata{
		GarmentIDs: []string{strconv.FormatUint(uint64(garment.ID), 10)},
	})
	return c.JSON(http.StatusOK, garment)
}

func (controller *GarmentsController) EditGarment(c echo.Context) error {
	var req GarmentEditIn
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	db := c.Get("__db").(*gorm.DB)
	user, err := currentUser(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	garment, err := garmentForUser(db, c, user)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Garment not found"})
	}

	if req.Name != nil {
		garment.Name = *req.Name
	}
	if req.Description != nil {
		garment.Description = req.Description
	}
	if req.Category != nil {
		if !models.IsGarmentCategory(*req.Category) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Unknown garment category"})
		}
		garment.Category = *req.Category
	}
	if req.Style != nil {
		if !models.IsGarmentStyle(*req.Style) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Unknown garment style"})
		}
		garment.Style = *req.Style
	}
	if req.Seasons != nil {
		garment.Seasons = pq.StringArray(req.Seasons)
	}
	if err := db.Save(garment).Error; err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to update garment"})
	}

	recordBehaviorEvent(c, db, user, models.ActionEdit, "garment", &garment.ID, models.BehaviorMetadata{})
	return c.JSON(http.StatusOK, garment)
}

// DeleteGarment removes the record and the stored image blob.
func (controller *GarmentsController) DeleteGarment(c echo.Context) error {
	db := c.Get("__db").(*gorm.DB)
	user, err := currentUser(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	garment, err := garmentForUser(db, c, user)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Garment not found"})
	}

	if garment.ImageURL != nil {
		bucketName := services.GetEnv("R2_BUCKET_NAME", "")
		if err := controller.AWSService.DeleteObject(c.Request().Context(), bucketName, *garment.ImageURL); err != nil {
			// keep going, an orphaned blob is better than an undeletable garment
			fmt.Printf("[Garment: %v] Error on deleting image blob: %v\n", garment.ID, err)
			sentry.CaptureException(err)
		}
	}
	if err := db.Delete(garment).Error; err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to delete garment"})
	}

	recordBehaviorEvent(c, db, user, models.ActionDelete, "garment", &garment.ID, models.BehaviorMetadata{})
	return c.JSON(http.StatusOK, map[string]string{"status": "deleted"})
}

// DeclutterCandidates lists garments never worn or untouched for 90+ days,
// oldest first.
func (controller *GarmentsController) DeclutterCandidates(c echo.Context) error {
	db := c.Get("__db").(*gorm.DB)
	user, err := currentUser(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	cutoff := time.Now().AddDate(0, 0, -90)
	var garments []models.Garment
	if err := db.Where("owner_id = ? AND (last_worn_at IS NULL OR last_worn_at < ?)", user.ID, cutoff).
		Order("created_at ASC").Find(&garments).Error; err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list declutter candidates"})
	}

	populated := controller.populatePresignedImages(c.Request().Context(), garments)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"candidates": populated,
		"total":      len(populated),
	})
}
