package db

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrBatchNotProcessing is returned when a transition finds the batch in a
// state other than the one it expects (for example already terminal).
var ErrBatchNotProcessing = errors.New("upload batch is not in the expected state")

// CreateUploadBatch records a new pending batch and moves it to processing.
func CreateUploadBatch(db *gorm.DB, userID, fileName string, fileSize int64) (*UploadBatch, error) {
	batch := &UploadBatch{
		ID:       uuid.NewString(),
		UserID:   userID,
		FileName: fileName,
		FileSize: fileSize,
		Status:   UploadPending,
	}
	if err := db.Create(batch).Error; err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	res := db.Model(&UploadBatch{}).
		Where("id = ? AND status = ?", batch.ID, UploadPending).
		Updates(map[string]any{
			"status":                UploadProcessing,
			"processing_started_at": now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrBatchNotProcessing
	}
	batch.Status = UploadProcessing
	batch.ProcessingStartedAt = &now
	return batch, nil
}

// FinishUploadBatch moves a processing batch to its terminal status. The
// update only matches a processing row, so the terminal status is written
// exactly once.
func FinishUploadBatch(db *gorm.DB, batch *UploadBatch, status UploadStatus, processed, failed int, message string) error {
	if !status.Terminal() {
		return fmt.Errorf("status %q is not terminal", status)
	}

	var msg *string
	if message != "" {
		msg = &message
	}
	now := time.Now().UTC()
	res := db.Model(&UploadBatch{}).
		Where("id = ? AND status = ?", batch.ID, UploadProcessing).
		Updates(map[string]any{
			"status":                  status,
			"records_processed":       processed,
			"records_failed":          failed,
			"error_message":           msg,
			"processing_completed_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrBatchNotProcessing
	}

	batch.Status = status
	batch.RecordsProcessed = processed
	batch.RecordsFailed = failed
	batch.ErrorMessage = msg
	batch.ProcessingCompletedAt = &now
	return nil
}

// ListUploadBatches returns the user's most recent uploads first.
func ListUploadBatches(db *gorm.DB, userID string, limit int) ([]UploadBatch, error) {
	if limit <= 0 {
		limit = 20
	}
	var batches []UploadBatch
	err := db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&batches).Error
	return batches, err
}
