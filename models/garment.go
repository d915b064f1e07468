package models

import (
	"time"

	"github.com/go-playground/validator"
	"github.com/lib/pq"
)

var GarmentCategories = []string{"top", "bottom", "outerwear", "shoes", "accessory", "underwear", "sportswear", "formalwear"}
var GarmentStyles = []string{"casual", "formal", "sport", "fashion", "vintage", "minimal", "street"}
var GarmentSeasons = []string{"spring", "summer", "autumn", "winter"}

func contains(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}

func IsGarmentCategory(v string) bool { return contains(GarmentCategories, v) }
func IsGarmentStyle(v string) bool    { return contains(GarmentStyles, v) }

func ValidateGarmentCategory(fl validator.FieldLevel) bool {
	return IsGarmentCategory(fl.Field().String())
}

// ClothingAttributes is the normalized result of a vision analysis, independent
// of which provider produced it.
type ClothingAttributes struct {
	Category         string   `json:"category"`
	SubCategory      string   `json:"sub_category"`
	Colors           []string `json:"colors"`
	Style            string   `json:"style"`
	Seasons          []string `json:"seasons"`
	Confidence       float64  `json:"confidence"`
	DetectedFeatures []string `json:"detected_features"`
	SuggestedTags    []string `json:"suggested_tags"`
	Provider         string   `json:"provider"`
	LatencyMs        int64    `json:"latency_ms"`
}

type Garment struct {
	JsonModel
	Name        string      `json:"name"`
	Description *string     `gorm:"type:text" json:"description"`
	Owner       UserAccount `json:"-"`
	OwnerID     uint        `gorm:"index:idx_garment_owner_category,priority:1" json:"-"`

	// classified attributes snapshot, refreshed on every (re-)analysis
	Category          string         `gorm:"index:idx_garment_owner_category,priority:2" json:"category"` // top, bottom, outerwear, shoes, accessory, underwear, sportswear, formalwear
	SubCategory       string         `json:"sub_category"`
	Colors            pq.StringArray `gorm:"type:text[]" json:"colors"`
	Style             string         `json:"style"` // casual, formal, sport, fashion, vintage, minimal, street
	Seasons           pq.StringArray `gorm:"type:text[]" json:"seasons"`
	Confidence        float64        `json:"confidence"`
	DetectedFeatures  pq.StringArray `gorm:"type:text[]" json:"detected_features"`
	SuggestedTags     pq.StringArray `gorm:"type:text[]" json:"suggested_tags"`
	AnalysisProvider  string         `json:"analysis_provider"`
	AnalysisLatencyMs int64          `json:"analysis_latency_ms"`

	ImageURL            *string `json:"image_url"`
	ProcessingStatus    string  `json:"processing_status"` // idle, pending, processing, completed, failed
	ProcessRetryTimes   int     `json:"process_retry_times"`
	ProcessErrorMessage *string `json:"process_error_message"`

	WearCount  int        `gorm:"default:0" json:"wear_count"`
	LastWornAt *time.Time `json:"last_worn_at"`

	// similarity search only, never read by the scoring engine
	Embedding pq.Float64Array `gorm:"type:float8[]" json:"-"`
}

// ApplyAttributes overwrites the garment's classified snapshot.
func (g *Garment) ApplyAttributes(attrs *ClothingAttributes) {
	g.Category = attrs.Category
	g.SubCategory = attrs.SubCategory
	g.Colors = pq.StringArray(attrs.Colors)
	g.Style = attrs.Style
	g.Seasons = pq.StringArray(attrs.Seasons)
	g.Confidence = attrs.Confidence
	g.DetectedFeatures = pq.StringArray(attrs.DetectedFeatures)
	g.SuggestedTags = pq.StringArray(attrs.SuggestedTags)
	g.AnalysisProvider = attrs.Provider
	g.AnalysisLatencyMs = attrs.LatencyMs
}
