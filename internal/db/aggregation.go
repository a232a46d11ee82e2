package db

import (
	"errors"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecomputeMonthlyMetric rebuilds the (user, month) aggregate from the
// current CarbonRecord rows. It never reads the previous aggregate of the
// same month, so repeated or concurrent calls converge on the same row.
// When no source rows remain the aggregate is removed.
func RecomputeMonthlyMetric(tx *gorm.DB, userID string, month time.Time) error {
	month = FirstOfMonth(month)

	var sums struct {
		TotalMBM float64
		TotalLBM float64
		Records  int64
	}
	if err := tx.Model(&CarbonRecord{}).
		Select("COALESCE(SUM(total_mbm_emissions_value), 0) AS total_mbm, COALESCE(SUM(total_lbm_emissions_value), 0) AS total_lbm, COUNT(*) AS records").
		Where("user_id = ? AND usage_month = ?", userID, month).
		Scan(&sums).Error; err != nil {
		return err
	}

	if sums.Records == 0 {
		return tx.Where("user_id = ? AND metric_month = ?", userID, month).Delete(&MonthlyMetric{}).Error
	}

	var prior MonthlyMetric
	var change *float64
	err := tx.Where("user_id = ? AND metric_month = ?", userID, month.AddDate(0, -1, 0)).First(&prior).Error
	switch {
	case err == nil:
		if prior.TotalMBMEmissions != 0 {
			pct := (sums.TotalMBM - prior.TotalMBMEmissions) / prior.TotalMBMEmissions * 100
			change = &pct
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return err
	}

	row := MonthlyMetric{
		UpdatedAt:           time.Now().UTC(),
		UserID:              userID,
		MetricMonth:         month,
		TotalMBMEmissions:   sums.TotalMBM,
		TotalLBMEmissions:   sums.TotalLBM,
		TotalRecords:        sums.Records,
		MoMChangePercentage: change,
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "metric_month"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"total_mbm_emissions",
			"total_lbm_emissions",
			"total_records",
			"mom_change_percentage",
			"updated_at",
		}),
	}).Create(&row).Error
}

// ReconcileMonthlyMetrics recomputes every (user, month) present in either
// the source rows or the stored aggregates, oldest month first so that
// month-over-month changes see an up-to-date prior month.
func ReconcileMonthlyMetrics(db *gorm.DB) (int, error) {
	type key struct {
		UserID string
		Month  time.Time
	}
	seen := make(map[key]struct{})

	var records []CarbonRecord
	if err := db.Model(&CarbonRecord{}).Distinct("user_id", "usage_month").Find(&records).Error; err != nil {
		return 0, err
	}
	for _, r := range records {
		seen[key{r.UserID, FirstOfMonth(r.UsageMonth)}] = struct{}{}
	}

	var metrics []MonthlyMetric
	if err := db.Model(&MonthlyMetric{}).Select("user_id", "metric_month").Find(&metrics).Error; err != nil {
		return 0, err
	}
	for _, m := range metrics {
		seen[key{m.UserID, FirstOfMonth(m.MetricMonth)}] = struct{}{}
	}

	keys := make([]key, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if !keys[i].Month.Equal(keys[j].Month) {
			return keys[i].Month.Before(keys[j].Month)
		}
		return keys[i].UserID < keys[j].UserID
	})

	for _, k := range keys {
		if err := RecomputeMonthlyMetric(db, k.UserID, k.Month); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}
