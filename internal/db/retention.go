package db

import (
	"time"

	"gorm.io/gorm"
)

// PruneDismissedRecommendations deletes recommendations dismissed more than
// retentionDays ago. Active recommendations are never pruned.
func PruneDismissedRecommendations(db *gorm.DB, retentionDays int, now time.Time) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := now.UTC().Add(-time.Duration(retentionDays) * 24 * time.Hour)
	res := db.Where("status = ? AND dismissed_at IS NOT NULL AND dismissed_at <= ?", RecommendationDismissed, cutoff).
		Delete(&Recommendation{})
	return res.RowsAffected, res.Error
}
