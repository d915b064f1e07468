package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"path/filepath"
	"strconv"
	"time"

	"closetapi/models"
	"closetapi/services"

	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"
)

const (
	TypeGarmentAnalysis  = "analyze:garment"
	TypePreferenceUpdate = "preferences:update"
	TypeBehaviorCleanup  = "behavior:cleanup"
)

type GarmentAnalysisPayload struct {
	GarmentID uint `json:"garment_id"`
}

type PreferenceUpdatePayload struct {
	EventID uint `json:"event_id"`
}

func NewGarmentAnalysisTask(garmentID uint) (*asynq.Task, error) {
	payload, err := json.Marshal(GarmentAnalysisPayload{GarmentID: garmentID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeGarmentAnalysis, payload), nil
}

func NewPreferenceUpdateTask(eventID uint) (*asynq.Task, error) {
	payload, err := json.Marshal(PreferenceUpdatePayload{EventID: eventID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypePreferenceUpdate, payload), nil
}

func NewBehaviorCleanupTask() *asynq.Task {
	return asynq.NewTask(TypeBehaviorCleanup, []byte{})
}

func getFileForGarment(awsService services.AWSServiceProvider, garment models.Garment) ([]byte, string, error) {
	bucketName := services.GetEnv("R2_BUCKET_NAME", "")
	if garment.ImageURL == nil {
		return nil, "", fmt.Errorf("[Garment: %v] Image URL is nil", garment.ID)
	}
	fileUrl, err := awsService.GetPresignedR2FileReadURL(context.TODO(), bucketName, *garment.ImageURL)
	if err != nil {
		sentry.CaptureException(fmt.Errorf("[Garment: %v] Error on getting presigned URL for file %s", garment.ID, *garment.ImageURL))
		return nil, "", err
	}
	fileBytes, err := services.ReadFileFromUrl(fileUrl)
	if err != nil {
		sentry.CaptureException(fmt.Errorf("[Garment: %v] Error on downloading file %s: %v", garment.ID, *garment.ImageURL, err))
		return nil, "", err
	}
	mimeHint := mime.TypeByExtension(filepath.Ext(*garment.ImageURL))
	return fileBytes, mimeHint, nil
}

func saveGarmentProcessingFail(db *gorm.DB, garment models.Garment, message string) {
	garment.ProcessingStatus = "failed"
	garment.ProcessRetryTimes++
	garment.ProcessErrorMessage = &message
	if err := db.Save(&garment).Error; err != nil {
		fmt.Printf("[Garment: %v] Error on saving failed status: %v\n", garment.ID, err)
		sentry.CaptureException(err)
	}
}

// HandleGarmentAnalysisTask downloads the uploaded image and runs it through
// the vision gateway. The gateway itself never fails; only the image fetch
// and the DB writes can.
func HandleGarmentAnalysisTask(ctx context.Context, t *asynq.Task, db *gorm.DB, gateway *services.VisionGateway, awsService services.AWSServiceProvider) error {
	var payload GarmentAnalysisPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}
	fmt.Printf("[Garment: %v] Start analysis\n", payload.GarmentID)

	var garment models.Garment
	res := db.First(&garment, payload.GarmentID)
	if res.Error != nil {
		sentry.CaptureException(fmt.Errorf("[QUEUE] Error on retrieving garment for analysis %v", payload.GarmentID))
		return res.Error
	}

	garment.ProcessingStatus = "processing"
	if err := db.Save(&garment).Error; err != nil {
		sentry.CaptureException(err)
		return err
	}

	fileBytes, mimeHint, err := getFileForGarment(awsService, garment)
	if err != nil {
		saveGarmentProcessingFail(db, garment, "Failed to read garment image, please upload it again")
		return err
	}
	fmt.Printf("[Garment: %v] Downloaded file size: %d bytes\n", payload.GarmentID, len(fileBytes))

	attrs := gateway.Analyze(ctx, fileBytes, mimeHint)
	fmt.Printf("[Garment: %v] Analyzed by %s: category=%s confidence=%.2f (%vms)\n",
		payload.GarmentID, attrs.Provider, attrs.Category, attrs.Confidence, attrs.LatencyMs)

	garment.ApplyAttributes(&attrs)
	garment.ProcessingStatus = "completed"
	garment.ProcessErrorMessage = nil
	if err := db.Save(&garment).Error; err != nil {
		sentry.CaptureException(fmt.Errorf("[Garment: %v] Error on saving analyzed garment: %v", payload.GarmentID, err))
		return err
	}
	return nil
}

// HandlePreferenceUpdateTask applies one recorded behavior event to the
// user's preference state. The event row is already durable; a failure here
// is logged but the event is never rolled back.
func HandlePreferenceUpdateTask(ctx context.Context, t *asynq.Task, db *gorm.DB) error {
	var payload PreferenceUpdatePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}
	if err := services.UpdatePreferencesFromEvent(db, payload.EventID); err != nil {
		fmt.Printf("[Event: %v] Preference update failed: %v\n", payload.EventID, err)
		sentry.CaptureException(err)
		return err
	}
	return nil
}

// HandleBehaviorCleanupTask purges behavior events older than the retention
// window. Scheduled daily from the worker.
func HandleBehaviorCleanupTask(ctx context.Context, t *asynq.Task, db *gorm.DB) error {
	retentionDays, err := strconv.Atoi(services.GetEnv("BEHAVIOR_RETENTION_DAYS", "180"))
	if err != nil || retentionDays <= 0 {
		retentionDays = 180
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	res := db.Where("created_at < ?", cutoff).Delete(&models.BehaviorEvent{})
	if res.Error != nil {
		sentry.CaptureException(res.Error)
		return res.Error
	}
	fmt.Printf("[Queue] Behavior cleanup removed %v events older than %v days\n", res.RowsAffected, retentionDays)
	return nil
}
