package db

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var carbonRecordKey = []clause.Column{
	{Name: "user_id"},
	{Name: "usage_account_id"},
	{Name: "product_code"},
	{Name: "location"},
	{Name: "usage_month"},
}

// UpsertCarbonRecord inserts rec or, when a row with the same natural key
// exists, overwrites its values in place. No prior version is kept.
func UpsertCarbonRecord(tx *gorm.DB, rec *CarbonRecord) error {
	return tx.Clauses(clause.OnConflict{
		Columns: carbonRecordKey,
		DoUpdates: clause.AssignmentColumns([]string{
			"total_mbm_emissions_value",
			"total_mbm_emissions_unit",
			"total_lbm_emissions_value",
			"total_lbm_emissions_unit",
			"model_version",
			"file_name",
			"upload_id",
			"co2_calculated",
			"updated_at",
		}),
	}).Create(rec).Error
}

// FirstOfMonth truncates t to 00:00 UTC on the first day of its month.
func FirstOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// DeleteUploadRecords removes the rows last written by uploadID together
// with the batch row itself, and returns the months those rows covered so
// the caller can recompute them.
func DeleteUploadRecords(tx *gorm.DB, userID, uploadID string) ([]time.Time, error) {
	var touched []CarbonRecord
	if err := tx.Model(&CarbonRecord{}).
		Distinct("usage_month").
		Where("user_id = ? AND upload_id = ?", userID, uploadID).
		Order("usage_month").
		Find(&touched).Error; err != nil {
		return nil, err
	}

	if err := tx.Where("user_id = ? AND upload_id = ?", userID, uploadID).Delete(&CarbonRecord{}).Error; err != nil {
		return nil, err
	}
	res := tx.Where("id = ? AND user_id = ?", uploadID, userID).Delete(&UploadBatch{})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}

	months := make([]time.Time, 0, len(touched))
	for _, r := range touched {
		months = append(months, FirstOfMonth(r.UsageMonth))
	}
	return months, nil
}

// DeleteUserData removes every row the user owns across all tables.
func DeleteUserData(tx *gorm.DB, userID string) error {
	for _, model := range []any{&CarbonRecord{}, &MonthlyMetric{}, &Recommendation{}, &UploadBatch{}} {
		if err := tx.Where("user_id = ?", userID).Delete(model).Error; err != nil {
			return err
		}
	}
	return nil
}
