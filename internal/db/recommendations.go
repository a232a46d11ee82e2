package db

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InsertRecommendations stores recs, silently skipping any whose dedup key
// (user, category, title, related service, related region) already exists.
// It returns the number of rows actually inserted.
func InsertRecommendations(tx *gorm.DB, recs []Recommendation) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	res := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"},
			{Name: "category"},
			{Name: "title"},
			{Name: "related_service"},
			{Name: "related_region"},
		},
		DoNothing: true,
	}).Create(&recs)
	return res.RowsAffected, res.Error
}

// ListRecommendations returns the user's recommendations with the given
// status in storage order. Ranking is left to the caller.
func ListRecommendations(db *gorm.DB, userID string, status RecommendationStatus) ([]Recommendation, error) {
	var recs []Recommendation
	err := db.Where("user_id = ? AND status = ?", userID, status).Order("id").Find(&recs).Error
	return recs, err
}

// DismissRecommendation marks an active recommendation as dismissed.
func DismissRecommendation(db *gorm.DB, userID string, id uint) error {
	now := time.Now().UTC()
	res := db.Model(&Recommendation{}).
		Where("id = ? AND user_id = ? AND status = ?", id, userID, RecommendationActive).
		Updates(map[string]any{
			"status":       RecommendationDismissed,
			"dismissed_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
