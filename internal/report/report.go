// Package report serves the read side: dashboard aggregates, upload
// history and the delete operations that keep aggregates in step.
package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"carbontracker/internal/db"
	"carbontracker/internal/recommend"
)

const (
	DefaultTimeRange = 6
	topLimit         = 10
)

// ErrUploadNotFound is returned by DeleteUpload for an id the user does not own.
var ErrUploadNotFound = errors.New("upload not found")

type Summary struct {
	TotalMonths         int      `json:"total_months"`
	TotalEmissions      *float64 `json:"total_emissions"`
	AvgMonthlyEmissions *float64 `json:"avg_monthly_emissions"`
	PeakEmissions       *float64 `json:"peak_emissions"`
	LowestEmissions     *float64 `json:"lowest_emissions"`
}

type Trend struct {
	MetricMonth         time.Time `json:"metric_month"`
	TotalMBMEmissions   float64   `json:"total_mbm_emissions"`
	TotalLBMEmissions   float64   `json:"total_lbm_emissions"`
	MoMChangePercentage *float64  `json:"mom_change_percentage"`
	TotalRecords        int64     `json:"total_records"`
}

type ServiceTotal struct {
	ProductCode    string  `json:"product_code"`
	TotalEmissions float64 `json:"total_emissions"`
	RecordCount    int64   `json:"record_count"`
	AvgEmissions   float64 `json:"avg_emissions"`
}

type RegionTotal struct {
	Location       string  `json:"location"`
	TotalEmissions float64 `json:"total_emissions"`
	RecordCount    int64   `json:"record_count"`
	AvgEmissions   float64 `json:"avg_emissions"`
}

type Recommendation struct {
	ID                    uint      `json:"id"`
	Category              string    `json:"category"`
	Priority              string    `json:"priority"`
	Title                 string    `json:"title"`
	Description           string    `json:"description"`
	PotentialCO2Reduction float64   `json:"potential_co2_reduction"`
	ActionItems           []string  `json:"action_items"`
	RelatedService        *string   `json:"related_service"`
	RelatedRegion         *string   `json:"related_region"`
	GeneratedAt           time.Time `json:"generated_at"`
}

type Overview struct {
	Metrics         Summary          `json:"metrics"`
	Trends          []Trend          `json:"trends"`
	TopServices     []ServiceTotal   `json:"topServices"`
	TopRegions      []RegionTotal    `json:"topRegions"`
	Recommendations []Recommendation `json:"recommendations"`
}

type Upload struct {
	ID                    string          `json:"id"`
	FileName              string          `json:"file_name"`
	FileSize              int64           `json:"file_size"`
	Status                db.UploadStatus `json:"status"`
	RecordsProcessed      int             `json:"records_processed"`
	RecordsFailed         int             `json:"records_failed"`
	ErrorMessage          *string         `json:"error_message"`
	UploadedAt            time.Time       `json:"uploaded_at"`
	ProcessingCompletedAt *time.Time      `json:"processing_completed_at"`
}

type Reader struct {
	db  *gorm.DB
	now func() time.Time
}

func NewReader(gdb *gorm.DB) *Reader {
	return &Reader{db: gdb, now: time.Now}
}

// Cutoff is the earliest month included in a window of the last months.
func Cutoff(now time.Time, months int) time.Time {
	if months <= 0 {
		months = DefaultTimeRange
	}
	return now.UTC().AddDate(0, -months, 0)
}

// Overview assembles the dashboard for the last months.
func (r *Reader) Overview(ctx context.Context, userID string, months int) (*Overview, error) {
	gdb := r.db.WithContext(ctx)
	cutoff := Cutoff(r.now(), months)
	out := &Overview{
		Trends:          []Trend{},
		TopServices:     []ServiceTotal{},
		TopRegions:      []RegionTotal{},
		Recommendations: []Recommendation{},
	}

	var metrics []db.MonthlyMetric
	if err := gdb.Where("user_id = ? AND metric_month >= ?", userID, cutoff).
		Order("metric_month DESC").
		Find(&metrics).Error; err != nil {
		return nil, fmt.Errorf("load monthly metrics: %w", err)
	}
	for _, m := range metrics {
		out.Trends = append(out.Trends, Trend{
			MetricMonth:         m.MetricMonth.UTC(),
			TotalMBMEmissions:   m.TotalMBMEmissions,
			TotalLBMEmissions:   m.TotalLBMEmissions,
			MoMChangePercentage: m.MoMChangePercentage,
			TotalRecords:        m.TotalRecords,
		})
	}
	out.Metrics = summarize(metrics)

	if err := gdb.Model(&db.CarbonRecord{}).
		Select("product_code, SUM(total_mbm_emissions_value) AS total_emissions, COUNT(*) AS record_count, AVG(total_mbm_emissions_value) AS avg_emissions").
		Where("user_id = ? AND usage_month >= ?", userID, cutoff).
		Group("product_code").
		Order("total_emissions DESC, product_code").
		Limit(topLimit).
		Scan(&out.TopServices).Error; err != nil {
		return nil, fmt.Errorf("load top services: %w", err)
	}

	if err := gdb.Model(&db.CarbonRecord{}).
		Select("location, SUM(total_mbm_emissions_value) AS total_emissions, COUNT(*) AS record_count, AVG(total_mbm_emissions_value) AS avg_emissions").
		Where("user_id = ? AND usage_month >= ?", userID, cutoff).
		Group("location").
		Order("total_emissions DESC, location").
		Limit(topLimit).
		Scan(&out.TopRegions).Error; err != nil {
		return nil, fmt.Errorf("load top regions: %w", err)
	}

	recs, err := db.ListRecommendations(gdb, userID, db.RecommendationActive)
	if err != nil {
		return nil, fmt.Errorf("load recommendations: %w", err)
	}
	recommend.RankStored(recs)
	if len(recs) > topLimit {
		recs = recs[:topLimit]
	}
	for _, rec := range recs {
		out.Recommendations = append(out.Recommendations, Recommendation{
			ID:                    rec.ID,
			Category:              rec.Category,
			Priority:              rec.Priority,
			Title:                 rec.Title,
			Description:           rec.Description,
			PotentialCO2Reduction: rec.PotentialCO2Reduction,
			ActionItems:           []string(rec.ActionItems),
			RelatedService:        nonEmpty(rec.RelatedService),
			RelatedRegion:         nonEmpty(rec.RelatedRegion),
			GeneratedAt:           rec.GeneratedAt.UTC(),
		})
	}
	return out, nil
}

// History lists the user's uploads, newest first.
func (r *Reader) History(ctx context.Context, userID string, limit int) ([]Upload, error) {
	batches, err := db.ListUploadBatches(r.db.WithContext(ctx), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("load upload history: %w", err)
	}
	out := make([]Upload, 0, len(batches))
	for _, b := range batches {
		out = append(out, Upload{
			ID:                    b.ID,
			FileName:              b.FileName,
			FileSize:              b.FileSize,
			Status:                b.Status,
			RecordsProcessed:      b.RecordsProcessed,
			RecordsFailed:         b.RecordsFailed,
			ErrorMessage:          b.ErrorMessage,
			UploadedAt:            b.CreatedAt.UTC(),
			ProcessingCompletedAt: b.ProcessingCompletedAt,
		})
	}
	return out, nil
}

// DeleteUpload removes the rows last written by one upload and its history
// row, then rebuilds the affected months, all in one transaction.
func (r *Reader) DeleteUpload(ctx context.Context, userID, uploadID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		months, err := db.DeleteUploadRecords(tx, userID, uploadID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUploadNotFound
		}
		if err != nil {
			return fmt.Errorf("delete upload %s: %w", uploadID, err)
		}
		for _, month := range months {
			if err := db.RecomputeMonthlyMetric(tx, userID, month); err != nil {
				return fmt.Errorf("recompute %s: %w", month.Format("2006-01"), err)
			}
		}
		return nil
	})
}

// DeleteAll irreversibly removes every row the user owns.
func (r *Reader) DeleteAll(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return db.DeleteUserData(tx, userID)
	})
}

func summarize(metrics []db.MonthlyMetric) Summary {
	s := Summary{TotalMonths: len(metrics)}
	if len(metrics) == 0 {
		return s
	}
	total := 0.0
	peak, lowest := metrics[0].TotalMBMEmissions, metrics[0].TotalMBMEmissions
	for _, m := range metrics {
		total += m.TotalMBMEmissions
		peak = max(peak, m.TotalMBMEmissions)
		lowest = min(lowest, m.TotalMBMEmissions)
	}
	avg := total / float64(len(metrics))
	s.TotalEmissions = &total
	s.AvgMonthlyEmissions = &avg
	s.PeakEmissions = &peak
	s.LowestEmissions = &lowest
	return s
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
