package db

import (
	"time"

	"gorm.io/datatypes"
)

// CarbonRecord is one row of a per-user emissions export. Rows are keyed
// by (user, account, service, region, month); a later upload of the same
// key overwrites the values in place.
type CarbonRecord struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	UserID         string    `gorm:"uniqueIndex:idx_carbon_record_key,priority:1;size:64;not null"`
	UsageAccountID string    `gorm:"uniqueIndex:idx_carbon_record_key,priority:2;size:64;not null"`
	ProductCode    string    `gorm:"uniqueIndex:idx_carbon_record_key,priority:3;size:128;not null"`
	Location       string    `gorm:"uniqueIndex:idx_carbon_record_key,priority:4;size:128;not null"`
	UsageMonth     time.Time `gorm:"uniqueIndex:idx_carbon_record_key,priority:5;not null"` // first of month (UTC)

	TotalMBMEmissionsValue float64 `gorm:"column:total_mbm_emissions_value;not null"`
	TotalMBMEmissionsUnit  string  `gorm:"column:total_mbm_emissions_unit;size:32;not null"`
	TotalLBMEmissionsValue float64 `gorm:"column:total_lbm_emissions_value;not null"`
	TotalLBMEmissionsUnit  string  `gorm:"column:total_lbm_emissions_unit;size:32;not null"`

	ModelVersion *string `gorm:"size:64"`
	FileName     string  `gorm:"size:255"`

	// UploadID is the batch that last wrote this row.
	UploadID string `gorm:"index;size:36"`

	// CO2Calculated tells the asynchronous calculation worker the row is
	// fully attributed and must be skipped.
	CO2Calculated bool `gorm:"column:co2_calculated;not null;default:false"`
}

// UploadStatus is the lifecycle state of an UploadBatch.
type UploadStatus string

const (
	UploadPending             UploadStatus = "pending"
	UploadProcessing          UploadStatus = "processing"
	UploadCompleted           UploadStatus = "completed"
	UploadCompletedWithErrors UploadStatus = "completed_with_errors"
	UploadFailed              UploadStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s UploadStatus) Terminal() bool {
	switch s {
	case UploadCompleted, UploadCompletedWithErrors, UploadFailed:
		return true
	}
	return false
}

// UploadBatch is the audit row for one uploaded file.
type UploadBatch struct {
	ID string `gorm:"primaryKey;size:36"`

	CreatedAt time.Time
	UpdatedAt time.Time

	UserID   string `gorm:"index;size:64;not null"`
	FileName string `gorm:"size:255;not null"`
	FileSize int64  `gorm:"not null;default:0"`

	Status UploadStatus `gorm:"size:32;not null;index"`

	RecordsProcessed int `gorm:"not null;default:0"`
	RecordsFailed    int `gorm:"not null;default:0"`

	// ErrorMessage holds the first row errors or the systemic failure.
	ErrorMessage *string `gorm:"type:text"`

	ProcessingStartedAt   *time.Time
	ProcessingCompletedAt *time.Time
}

// MonthlyMetric is derived from CarbonRecord rows and can always be
// rebuilt from them. Filled by RecomputeMonthlyMetric.
type MonthlyMetric struct {
	ID uint `gorm:"primaryKey"`

	UpdatedAt time.Time

	UserID      string    `gorm:"uniqueIndex:idx_monthly_metric_unique,priority:1;size:64;not null"`
	MetricMonth time.Time `gorm:"uniqueIndex:idx_monthly_metric_unique,priority:2;not null"`

	TotalMBMEmissions float64 `gorm:"column:total_mbm_emissions;not null"`
	TotalLBMEmissions float64 `gorm:"column:total_lbm_emissions;not null"`
	TotalRecords      int64   `gorm:"not null"`

	// MoMChangePercentage is nil when there is no prior month to compare to.
	MoMChangePercentage *float64 `gorm:"column:mom_change_percentage"`
}

// RecommendationStatus is active until the user dismisses it.
type RecommendationStatus string

const (
	RecommendationActive    RecommendationStatus = "active"
	RecommendationDismissed RecommendationStatus = "dismissed"
)

// Recommendation is a persisted sustainability suggestion. The unique index
// is the dedup key: repeated uploads with the same distribution hit the
// same (category, title, service, region) and are ignored.
type Recommendation struct {
	ID uint `gorm:"primaryKey"`

	UserID   string `gorm:"uniqueIndex:idx_recommendation_dedup,priority:1;size:64;not null"`
	Category string `gorm:"uniqueIndex:idx_recommendation_dedup,priority:2;size:64;not null"`
	Priority string `gorm:"size:16;not null"`
	Title    string `gorm:"uniqueIndex:idx_recommendation_dedup,priority:3;size:255;not null"`

	Description           string                      `gorm:"type:text;not null"`
	PotentialCO2Reduction float64                     `gorm:"column:potential_co2_reduction;not null"`
	ActionItems           datatypes.JSONSlice[string] `gorm:"type:json"`

	// Empty string when not applicable; NULLs would not collide in the
	// unique index.
	RelatedService string `gorm:"uniqueIndex:idx_recommendation_dedup,priority:4;size:128;not null;default:''"`
	RelatedRegion  string `gorm:"uniqueIndex:idx_recommendation_dedup,priority:5;size:128;not null;default:''"`

	Status      RecommendationStatus `gorm:"size:16;not null;index"`
	GeneratedAt time.Time            `gorm:"not null"`
	DismissedAt *time.Time
}
