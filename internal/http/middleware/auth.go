package middleware

import (
	"bytes"
	"strings"

	"github.com/valyala/fasthttp"

	"carbontracker/internal/auth"
	"carbontracker/internal/config"
	httpctx "carbontracker/internal/http/ctx"
)

// TokenCookie is the cookie the login and signup handlers set.
const TokenCookie = "token"

// JWTAuth verifies the identity token from the token cookie or, failing
// that, an Authorization bearer header, and puts the user id on the context.
func JWTAuth(cfg *config.Config) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			token := string(ctx.Request.Header.Cookie(TokenCookie))
			if token == "" {
				const prefix = "Bearer "
				if h := ctx.Request.Header.Peek("Authorization"); bytes.HasPrefix(h, []byte(prefix)) {
					token = strings.TrimSpace(string(h[len(prefix):]))
				}
			}
			if token == "" {
				unauthorized(ctx)
				return
			}

			userID, err := auth.Verify(cfg.JWTSecret, token)
			if err != nil {
				unauthorized(ctx)
				return
			}

			httpctx.SetUserID(ctx, userID)
			next(ctx)
		}
	}
}

func unauthorized(ctx *fasthttp.RequestCtx) {
	ctx.SetStatusCode(fasthttp.StatusUnauthorized)
	ctx.SetContentType("application/json")
	ctx.SetBodyString(`{"error":"Unauthorized. Please log in."}`)
}
