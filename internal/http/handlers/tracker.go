package handlers

import (
	"errors"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"carbontracker/internal/config"
	dbpkg "carbontracker/internal/db"
	"carbontracker/internal/report"
	"carbontracker/internal/upload"
)

var allowedExtensions = map[string]bool{".csv": true, ".xlsx": true}

// UploadHandler accepts one export file in the multipart field "file".
func UploadHandler(svc *upload.Service, cfg *config.Config, logger *zap.Logger) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		userID, ok := MustUserID(ctx)
		if !ok {
			return
		}

		fh, err := ctx.FormFile("file")
		if err != nil || fh == nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "No file provided")
			return
		}
		name := filepath.Base(fh.Filename)
		if !allowedExtensions[strings.ToLower(filepath.Ext(name))] {
			errResponse(ctx, fasthttp.StatusBadRequest, "Invalid file type. Please upload a CSV or XLSX file.")
			return
		}
		if cfg.MaxUploadBytes > 0 && fh.Size > int64(cfg.MaxUploadBytes) {
			errResponse(ctx, fasthttp.StatusBadRequest, "File too large")
			return
		}

		f, err := fh.Open()
		if err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "Could not read uploaded file")
			return
		}
		content, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "Could not read uploaded file")
			return
		}

		start := time.Now()
		res, err := svc.Process(ctx, upload.Request{
			UserID:   userID,
			FileName: name,
			FileSize: fh.Size,
			Content:  content,
		})
		uploadDuration.Observe(time.Since(start).Seconds())

		var inputErr *upload.InputError
		switch {
		case errors.As(err, &inputErr):
			uploadsTotal.WithLabelValues(string(dbpkg.UploadFailed)).Inc()
			errResponse(ctx, fasthttp.StatusBadRequest, "Failed to process file: "+inputErr.Error())
			return
		case err != nil:
			uploadsTotal.WithLabelValues(string(dbpkg.UploadFailed)).Inc()
			logger.Error("upload failed", zap.String("user_id", userID), zap.Error(err))
			errResponse(ctx, fasthttp.StatusInternalServerError, "Internal server error")
			return
		}

		uploadsTotal.WithLabelValues(string(res.Status)).Inc()
		uploadRowsTotal.WithLabelValues("processed").Add(float64(res.RecordsProcessed))
		uploadRowsTotal.WithLabelValues("failed").Add(float64(res.RecordsFailed))
		recommendationsGenerated.Add(float64(res.RecommendationsAdded))

		jsonResponse(ctx, map[string]any{
			"success": true,
			"message": res.Message,
			"data":    res,
		})
	}
}

// TrackerData serves the dashboard overview (type=overview, the default)
// and the upload history (type=history).
func TrackerData(reader *report.Reader, logger *zap.Logger) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		userID, ok := MustUserID(ctx)
		if !ok {
			return
		}

		timeRange := report.DefaultTimeRange
		if v := string(ctx.QueryArgs().Peek("timeRange")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				timeRange = n
			}
		}

		switch kind := string(ctx.QueryArgs().Peek("type")); kind {
		case "", "overview":
			ov, err := reader.Overview(ctx, userID, timeRange)
			if err != nil {
				logger.Error("overview query failed", zap.String("user_id", userID), zap.Error(err))
				errResponse(ctx, fasthttp.StatusInternalServerError, "Internal server error")
				return
			}
			jsonResponse(ctx, map[string]any{"success": true, "data": ov})
		case "history":
			limit, _ := strconv.Atoi(string(ctx.QueryArgs().Peek("limit")))
			uploads, err := reader.History(ctx, userID, limit)
			if err != nil {
				logger.Error("history query failed", zap.String("user_id", userID), zap.Error(err))
				errResponse(ctx, fasthttp.StatusInternalServerError, "Internal server error")
				return
			}
			jsonResponse(ctx, map[string]any{"success": true, "data": map[string]any{"uploads": uploads}})
		default:
			jsonResponse(ctx, map[string]any{"success": true, "data": map[string]any{}})
		}
	}
}

// DeleteData removes one upload (?uploadId=) or, without it, all of the
// user's data.
func DeleteData(reader *report.Reader, logger *zap.Logger) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		userID, ok := MustUserID(ctx)
		if !ok {
			return
		}

		var err error
		if uploadID := string(ctx.QueryArgs().Peek("uploadId")); uploadID != "" {
			err = reader.DeleteUpload(ctx, userID, uploadID)
		} else {
			err = reader.DeleteAll(ctx, userID)
		}
		if errors.Is(err, report.ErrUploadNotFound) {
			errResponse(ctx, fasthttp.StatusNotFound, "Upload not found")
			return
		}
		if err != nil {
			logger.Error("delete failed", zap.String("user_id", userID), zap.Error(err))
			errResponse(ctx, fasthttp.StatusInternalServerError, "Internal server error")
			return
		}
		jsonResponse(ctx, map[string]any{"success": true, "message": "Data deleted successfully"})
	}
}

// DismissRecommendation hides an active recommendation from the overview.
func DismissRecommendation(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		userID, ok := MustUserID(ctx)
		if !ok {
			return
		}
		idStr, _ := ctx.UserValue("id").(string)
		id, err := strconv.ParseUint(idStr, 10, 64)
		if err != nil || id == 0 {
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid recommendation id")
			return
		}

		if err := dbpkg.DismissRecommendation(db.WithContext(ctx), userID, uint(id)); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				errResponse(ctx, fasthttp.StatusNotFound, "recommendation not found")
				return
			}
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to dismiss recommendation")
			return
		}
		jsonResponse(ctx, map[string]any{"success": true})
	}
}
