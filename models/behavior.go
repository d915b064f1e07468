package models

import (
	"github.com/go-playground/validator"
)

const (
	ActionView                 = "view"
	ActionLike                 = "like"
	ActionDislike              = "dislike"
	ActionWear                 = "wear"
	ActionSave                 = "save"
	ActionRejectRecommendation = "reject_recommendation"
	ActionAcceptRecommendation = "accept_recommendation"
	ActionSearch               = "search"
	ActionFilter               = "filter"
	ActionUpload               = "upload"
	ActionDelete               = "delete"
	ActionEdit                 = "edit"
)

var BehaviorActions = []string{
	ActionView, ActionLike, ActionDislike, ActionWear, ActionSave,
	ActionRejectRecommendation, ActionAcceptRecommendation,
	ActionSearch, ActionFilter, ActionUpload, ActionDelete, ActionEdit,
}

var BehaviorTargetTypes = []string{"garment", "outfit", "recommendation", "none"}

func ValidateBehaviorAction(fl validator.FieldLevel) bool {
	return contains(BehaviorActions, fl.Field().String())
}

func ValidateBehaviorTargetType(fl validator.FieldLevel) bool {
	return contains(BehaviorTargetTypes, fl.Field().String())
}

// BehaviorMetadata is the free-form payload attached to an event. Garment ids
// are strings because outfit targets reference several garments at once.
type BehaviorMetadata struct {
	GarmentIDs       []string `json:"garment_ids,omitempty"`
	Rating           *int     `json:"rating,omitempty"`
	TimeSpentSeconds *float64 `json:"time_spent_seconds,omitempty"`
	SessionID        string   `json:"session_id,omitempty"`
	Occasion         string   `json:"occasion,omitempty"`
	Query            string   `json:"query,omitempty"`
}

// BehaviorEvent is append-only: never updated after creation. Old events are
// purged by the retention cleanup task, not read-modified by anything.
type BehaviorEvent struct {
	JsonModel
	UserAccountID uint             `gorm:"index:idx_behavior_user_created,priority:1" json:"-"`
	UserAccount   UserAccount      `json:"-"`
	Action        string           `gorm:"index" json:"action"`
	TargetType    string           `json:"target_type"` // garment, outfit, recommendation, none
	TargetID      *uint            `json:"target_id"`
	Metadata      BehaviorMetadata `gorm:"serializer:json" json:"metadata"`
}

type BehaviorIn struct {
	Action     string           `json:"action" validate:"required,behavior_action"`
	TargetType string           `json:"target_type" validate:"required,behavior_target"`
	TargetID   *uint            `json:"target_id"`
	Metadata   BehaviorMetadata `json:"metadata"`
}
