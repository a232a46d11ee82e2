package db_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carbontracker/internal/db"
	"carbontracker/internal/db/dbtest"
)

func TestRecomputeMonthlyMetric(t *testing.T) {
	gdb := dbtest.Open(t)
	feb := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	mar := feb.AddDate(0, 1, 0)

	require.NoError(t, db.UpsertCarbonRecord(gdb, carbonRow("1", "acc", "AmazonEC2", "r", feb, 10)))
	require.NoError(t, db.UpsertCarbonRecord(gdb, carbonRow("1", "acc", "AmazonEC2", "r", mar, 9)))
	require.NoError(t, db.UpsertCarbonRecord(gdb, carbonRow("1", "acc", "AmazonS3", "r", mar, 6)))

	require.NoError(t, db.RecomputeMonthlyMetric(gdb, "1", feb))
	require.NoError(t, db.RecomputeMonthlyMetric(gdb, "1", mar.Add(36*time.Hour)))

	var metrics []db.MonthlyMetric
	require.NoError(t, gdb.Where("user_id = ?", "1").Order("metric_month").Find(&metrics).Error)
	require.Len(t, metrics, 2)

	assert.Equal(t, 10.0, metrics[0].TotalMBMEmissions)
	assert.Nil(t, metrics[0].MoMChangePercentage)

	assert.Equal(t, 15.0, metrics[1].TotalMBMEmissions)
	assert.Equal(t, 30.0, metrics[1].TotalLBMEmissions)
	assert.Equal(t, int64(2), metrics[1].TotalRecords)
	require.NotNil(t, metrics[1].MoMChangePercentage)
	assert.InDelta(t, 50.0, *metrics[1].MoMChangePercentage, 1e-9)
}

func TestRecomputeMonthlyMetricIsIdempotent(t *testing.T) {
	gdb := dbtest.Open(t)
	mar := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.UpsertCarbonRecord(gdb, carbonRow("1", "acc", "AmazonEC2", "r", mar, 4)))

	for i := 0; i < 3; i++ {
		require.NoError(t, db.RecomputeMonthlyMetric(gdb, "1", mar))
	}

	var metrics []db.MonthlyMetric
	require.NoError(t, gdb.Find(&metrics).Error)
	require.Len(t, metrics, 1)
	assert.Equal(t, 4.0, metrics[0].TotalMBMEmissions)
	assert.Equal(t, int64(1), metrics[0].TotalRecords)
}

func TestRecomputeMonthlyMetricFollowsSourceRows(t *testing.T) {
	gdb := dbtest.Open(t)
	mar := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.UpsertCarbonRecord(gdb, carbonRow("1", "acc", "AmazonEC2", "r", mar, 4)))
	require.NoError(t, db.RecomputeMonthlyMetric(gdb, "1", mar))

	// overwrite the source row; the aggregate follows, no drift
	require.NoError(t, db.UpsertCarbonRecord(gdb, carbonRow("1", "acc", "AmazonEC2", "r", mar, 11)))
	require.NoError(t, db.RecomputeMonthlyMetric(gdb, "1", mar))

	var metric db.MonthlyMetric
	require.NoError(t, gdb.First(&metric).Error)
	assert.Equal(t, 11.0, metric.TotalMBMEmissions)

	require.NoError(t, gdb.Where("user_id = ?", "1").Delete(&db.CarbonRecord{}).Error)
	require.NoError(t, db.RecomputeMonthlyMetric(gdb, "1", mar))

	var count int64
	require.NoError(t, gdb.Model(&db.MonthlyMetric{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestReconcileMonthlyMetrics(t *testing.T) {
	gdb := dbtest.Open(t)
	jan := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := jan.AddDate(0, 1, 0)

	require.NoError(t, db.UpsertCarbonRecord(gdb, carbonRow("1", "acc", "AmazonEC2", "r", jan, 2)))
	require.NoError(t, db.UpsertCarbonRecord(gdb, carbonRow("1", "acc", "AmazonEC2", "r", feb, 3)))
	require.NoError(t, db.UpsertCarbonRecord(gdb, carbonRow("2", "acc", "AmazonEC2", "r", feb, 5)))

	// a stale aggregate with no source rows left behind
	stale := db.MonthlyMetric{UserID: "3", MetricMonth: jan, TotalMBMEmissions: 99, TotalRecords: 1}
	require.NoError(t, gdb.Create(&stale).Error)

	n, err := db.ReconcileMonthlyMetrics(gdb)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	var metrics []db.MonthlyMetric
	require.NoError(t, gdb.Order("user_id, metric_month").Find(&metrics).Error)
	require.Len(t, metrics, 3)
	assert.Equal(t, "1", metrics[0].UserID)
	assert.Equal(t, 2.0, metrics[0].TotalMBMEmissions)
	require.NotNil(t, metrics[1].MoMChangePercentage)
	assert.InDelta(t, 50.0, *metrics[1].MoMChangePercentage, 1e-9)
	assert.Equal(t, "2", metrics[2].UserID)
}
