package db_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"carbontracker/internal/db"
	"carbontracker/internal/db/dbtest"
)

func recommendation(user, category, title, service string) db.Recommendation {
	return db.Recommendation{
		UserID:                user,
		Category:              category,
		Priority:              "high",
		Title:                 title,
		Description:           "d",
		PotentialCO2Reduction: 1.5,
		ActionItems:           []string{"a", "b"},
		RelatedService:        service,
		Status:                db.RecommendationActive,
		GeneratedAt:           time.Now().UTC(),
	}
}

func TestInsertRecommendationsIgnoresDuplicates(t *testing.T) {
	gdb := dbtest.Open(t)
	batch := []db.Recommendation{
		recommendation("1", "service_optimization", "Optimize AmazonEC2 Usage", "AmazonEC2"),
		recommendation("1", "cost_saving", "Implement AWS Compute Optimizer", ""),
	}

	n, err := db.InsertRecommendations(gdb, batch)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	again := []db.Recommendation{
		recommendation("1", "service_optimization", "Optimize AmazonEC2 Usage", "AmazonEC2"),
		recommendation("1", "cost_saving", "Implement AWS Compute Optimizer", ""),
	}
	_, err = db.InsertRecommendations(gdb, again)
	require.NoError(t, err)

	recs, err := db.ListRecommendations(gdb, "1", db.RecommendationActive)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, []string{"a", "b"}, []string(recs[0].ActionItems))

	// same title for a different user is not a duplicate
	n, err = db.InsertRecommendations(gdb, []db.Recommendation{recommendation("2", "cost_saving", "Implement AWS Compute Optimizer", "")})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestDismissRecommendation(t *testing.T) {
	gdb := dbtest.Open(t)
	_, err := db.InsertRecommendations(gdb, []db.Recommendation{recommendation("1", "cost_saving", "t", "")})
	require.NoError(t, err)

	recs, err := db.ListRecommendations(gdb, "1", db.RecommendationActive)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	assert.ErrorIs(t, db.DismissRecommendation(gdb, "2", recs[0].ID), gorm.ErrRecordNotFound)
	require.NoError(t, db.DismissRecommendation(gdb, "1", recs[0].ID))
	assert.ErrorIs(t, db.DismissRecommendation(gdb, "1", recs[0].ID), gorm.ErrRecordNotFound)

	active, err := db.ListRecommendations(gdb, "1", db.RecommendationActive)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestPruneDismissedRecommendations(t *testing.T) {
	gdb := dbtest.Open(t)
	_, err := db.InsertRecommendations(gdb, []db.Recommendation{
		recommendation("1", "cost_saving", "old", ""),
		recommendation("1", "cost_saving", "recent", ""),
		recommendation("1", "cost_saving", "active", ""),
	})
	require.NoError(t, err)

	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, gdb.Model(&db.Recommendation{}).Where("title = ?", "old").
		Updates(map[string]any{"status": db.RecommendationDismissed, "dismissed_at": now.AddDate(0, 0, -40)}).Error)
	require.NoError(t, gdb.Model(&db.Recommendation{}).Where("title = ?", "recent").
		Updates(map[string]any{"status": db.RecommendationDismissed, "dismissed_at": now.AddDate(0, 0, -5)}).Error)

	n, err := db.PruneDismissedRecommendations(gdb, 30, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var titles []string
	require.NoError(t, gdb.Model(&db.Recommendation{}).Order("title").Pluck("title", &titles).Error)
	assert.Equal(t, []string{"active", "recent"}, titles)

	n, err = db.PruneDismissedRecommendations(gdb, 0, now)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUploadBatchLifecycle(t *testing.T) {
	gdb := dbtest.Open(t)
	batch, err := db.CreateUploadBatch(gdb, "1", "a.csv", 42)
	require.NoError(t, err)
	assert.Equal(t, db.UploadProcessing, batch.Status)
	assert.NotEmpty(t, batch.ID)

	require.Error(t, db.FinishUploadBatch(gdb, batch, db.UploadProcessing, 0, 0, ""))
	require.NoError(t, db.FinishUploadBatch(gdb, batch, db.UploadCompletedWithErrors, 3, 1, "Row 2: Missing location"))
	assert.ErrorIs(t, db.FinishUploadBatch(gdb, batch, db.UploadFailed, 0, 0, "late"), db.ErrBatchNotProcessing)

	batches, err := db.ListUploadBatches(gdb, "1", 0)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, db.UploadCompletedWithErrors, batches[0].Status)
	assert.Equal(t, 3, batches[0].RecordsProcessed)
	assert.Equal(t, 1, batches[0].RecordsFailed)
	require.NotNil(t, batches[0].ErrorMessage)
	assert.Equal(t, "Row 2: Missing location", *batches[0].ErrorMessage)
	assert.NotNil(t, batches[0].ProcessingCompletedAt)
}
