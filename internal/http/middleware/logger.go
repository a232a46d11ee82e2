package middleware

import (
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// RequestLogger logs method, path, status and duration of every request.
// Health and scrape endpoints are logged at debug level.
func RequestLogger(logger *zap.Logger) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			start := time.Now()
			next(ctx)

			path := string(ctx.Path())
			fields := []zap.Field{
				zap.ByteString("method", ctx.Method()),
				zap.String("path", path),
				zap.Int("status", ctx.Response.StatusCode()),
				zap.Duration("took", time.Since(start)),
				zap.String("ip", ctx.RemoteIP().String()),
			}
			switch {
			case path == "/healthz" || path == "/metrics":
				logger.Debug("request", fields...)
			case ctx.Response.StatusCode() >= fasthttp.StatusInternalServerError:
				logger.Error("request", fields...)
			default:
				logger.Info("request", fields...)
			}
		}
	}
}
