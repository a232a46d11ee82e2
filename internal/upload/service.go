// Package upload runs one emissions export through validation,
// transactional persistence, metric refresh and recommendation generation.
package upload

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"carbontracker/internal/db"
	"carbontracker/internal/ingest"
	"carbontracker/internal/recommend"
)

// MaxReportedErrors bounds the row errors kept on the batch and returned.
const MaxReportedErrors = 10

// ErrNoValidRows is returned when every data row failed validation.
var ErrNoValidRows = errors.New("no valid rows in file")

// Request is one uploaded file on behalf of a user.
type Request struct {
	UserID   string
	FileName string
	FileSize int64
	Content  []byte
}

// Result summarizes a committed batch.
type Result struct {
	UploadID         string          `json:"uploadId"`
	Status           db.UploadStatus `json:"status"`
	RecordsProcessed int             `json:"recordsProcessed"`
	RecordsFailed    int             `json:"recordsFailed"`
	Errors           []string        `json:"errors"`
	Message          string          `json:"-"`

	// RecommendationsAdded counts new rows; zero when generation failed.
	RecommendationsAdded int64 `json:"-"`
}

type Service struct {
	db     *gorm.DB
	engine *recommend.Engine
	logger *zap.Logger
}

func NewService(gdb *gorm.DB, engine *recommend.Engine, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine == nil {
		engine = recommend.NewEngine(logger)
	}
	return &Service{db: gdb, engine: engine, logger: logger}
}

// Process runs the full pipeline for one file. It returns *InputError for
// problems with the file and *DatabaseError when the batch could not be
// written; in both cases no CarbonRecord row was committed. Files that
// cannot be parsed or hold no data rows are rejected before a batch row
// exists; later failures mark the batch failed.
func (s *Service) Process(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	gdb := s.db.WithContext(ctx)
	// bookkeeping after this point must not be lost to a cancelled request
	audit := s.db.WithContext(context.WithoutCancel(ctx))

	// Unreadable or empty files never get a batch row.
	parsed, err := ingest.Parse(req.FileName, req.Content)
	if err != nil {
		s.logger.Warn("upload rejected",
			zap.String("user_id", req.UserID),
			zap.String("file_name", req.FileName),
			zap.Error(err))
		return nil, &InputError{Err: err}
	}

	batch, err := db.CreateUploadBatch(gdb, req.UserID, req.FileName, req.FileSize)
	if err != nil {
		return nil, &DatabaseError{Err: fmt.Errorf("create upload batch: %w", err)}
	}
	log := s.logger.With(
		zap.String("upload_id", batch.ID),
		zap.String("user_id", req.UserID),
		zap.String("file_name", req.FileName),
	)

	rowErrors := make([]string, 0, len(parsed.RowErrors))
	for _, re := range parsed.RowErrors {
		rowErrors = append(rowErrors, re.String())
	}
	reported := firstN(rowErrors, MaxReportedErrors)

	if len(parsed.Records) == 0 {
		s.fail(audit, log, batch, 0, len(parsed.RowErrors), strings.Join(reported, "; "))
		return nil, &InputError{UploadID: batch.ID, Err: fmt.Errorf("%w: %s", ErrNoValidRows, strings.Join(reported, "; "))}
	}

	rows := make([]db.CarbonRecord, 0, len(parsed.Records))
	for _, rec := range parsed.Records {
		rows = append(rows, toCarbonRecord(req, batch.ID, rec))
	}

	err = gdb.Transaction(func(tx *gorm.DB) error {
		for i := range rows {
			if err := db.UpsertCarbonRecord(tx, &rows[i]); err != nil {
				return fmt.Errorf("row %d: %w", parsed.Records[i].Row, err)
			}
		}
		return nil
	})
	if err != nil {
		// rolled back: every parsed row counts as failed
		s.fail(audit, log, batch, 0, parsed.Total(), err.Error())
		return nil, &DatabaseError{UploadID: batch.ID, Err: err}
	}

	// Post-commit stages. Their failures are logged; the committed rows stay.
	s.refreshMetrics(audit, log, req.UserID, touchedMonths(rows))
	added := s.generateRecommendations(audit, log, req.UserID, latestByKey(parsed.Records))

	status := db.UploadCompleted
	if len(parsed.RowErrors) > 0 {
		status = db.UploadCompletedWithErrors
	}
	processed, failed := len(parsed.Records), len(parsed.RowErrors)
	if err := db.FinishUploadBatch(audit, batch, status, processed, failed, strings.Join(reported, "; ")); err != nil {
		log.Error("failed to finalize upload batch", zap.Error(err))
		return nil, &DatabaseError{UploadID: batch.ID, Err: fmt.Errorf("finalize upload batch: %w", err)}
	}

	log.Info("upload processed",
		zap.String("status", string(status)),
		zap.Int("processed", processed),
		zap.Int("failed", failed),
		zap.Duration("took", time.Since(start)))

	msg := fmt.Sprintf("Successfully processed %d records", processed)
	if failed > 0 {
		msg += fmt.Sprintf(" with %d failures", failed)
	}
	return &Result{
		UploadID:         batch.ID,
		Status:           status,
		RecordsProcessed: processed,
		RecordsFailed:    failed,
		Errors:           reported,
		Message:          msg,

		RecommendationsAdded: added,
	}, nil
}

func (s *Service) fail(gdb *gorm.DB, log *zap.Logger, batch *db.UploadBatch, processed, failed int, message string) {
	log.Warn("upload failed", zap.String("reason", message))
	if err := db.FinishUploadBatch(gdb, batch, db.UploadFailed, processed, failed, message); err != nil {
		log.Error("failed to mark upload batch failed", zap.Error(err))
	}
}

func (s *Service) refreshMetrics(gdb *gorm.DB, log *zap.Logger, userID string, months []time.Time) {
	for _, month := range months {
		if err := db.RecomputeMonthlyMetric(gdb, userID, month); err != nil {
			log.Error("monthly metric recompute failed",
				zap.Time("month", month),
				zap.Error(err))
		}
	}
}

func (s *Service) generateRecommendations(gdb *gorm.DB, log *zap.Logger, userID string, inputs []recommend.Input) (added int64) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("recommendation generation panicked", zap.Any("panic", r))
			added = 0
		}
	}()

	err := gdb.Transaction(func(tx *gorm.DB) error {
		n, err := s.engine.Generate(tx, userID, inputs)
		added = n
		return err
	})
	if err != nil {
		log.Error("recommendation generation failed", zap.Error(err))
		return 0
	}
	return added
}

func toCarbonRecord(req Request, uploadID string, rec ingest.Record) db.CarbonRecord {
	var version *string
	if rec.ModelVersion != "" {
		v := rec.ModelVersion
		version = &v
	}
	return db.CarbonRecord{
		UserID:                 req.UserID,
		UsageAccountID:         rec.UsageAccountID,
		ProductCode:            rec.ProductCode,
		Location:               rec.Location,
		UsageMonth:             rec.UsageMonth,
		TotalMBMEmissionsValue: rec.MBMValue.InexactFloat64(),
		TotalMBMEmissionsUnit:  rec.MBMUnit,
		TotalLBMEmissionsValue: rec.LBMValue.InexactFloat64(),
		TotalLBMEmissionsUnit:  rec.LBMUnit,
		ModelVersion:           version,
		FileName:               req.FileName,
		UploadID:               uploadID,
		// both measures come straight from the export
		CO2Calculated: true,
	}
}

func touchedMonths(rows []db.CarbonRecord) []time.Time {
	seen := make(map[time.Time]struct{})
	var months []time.Time
	for _, r := range rows {
		if _, ok := seen[r.UsageMonth]; ok {
			continue
		}
		seen[r.UsageMonth] = struct{}{}
		months = append(months, r.UsageMonth)
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Before(months[j]) })
	return months
}

// latestByKey keeps the last row per natural key, i.e. what was committed
// when a file repeats a key.
func latestByKey(records []ingest.Record) []recommend.Input {
	type key struct {
		account, service, region string
		month                    time.Time
	}
	idx := make(map[key]int, len(records))
	out := make([]recommend.Input, 0, len(records))
	for _, r := range records {
		in := recommend.Input{ProductCode: r.ProductCode, Location: r.Location, Emissions: r.MBMValue}
		k := key{r.UsageAccountID, r.ProductCode, r.Location, r.UsageMonth}
		if i, ok := idx[k]; ok {
			out[i] = in
			continue
		}
		idx[k] = len(out)
		out = append(out, in)
	}
	return out
}

func firstN(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
