package handlers

import (
	"encoding/json"

	"github.com/valyala/fasthttp"

	httpctx "carbontracker/internal/http/ctx"
)

// MustUserID returns the authenticated user id, or sends 401 and returns ("", false).
func MustUserID(ctx *fasthttp.RequestCtx) (string, bool) {
	userID, ok := httpctx.UserIDFromCtx(ctx)
	if !ok {
		errResponse(ctx, fasthttp.StatusUnauthorized, "Unauthorized. Please log in.")
		return "", false
	}
	return userID, true
}

func jsonResponse(ctx *fasthttp.RequestCtx, data map[string]any) {
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(data)
	ctx.SetBody(body)
}

func errResponse(ctx *fasthttp.RequestCtx, code int, msg string) {
	ctx.SetStatusCode(code)
	jsonResponse(ctx, map[string]any{"error": msg})
}
