package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"carbontracker/internal/auth"
	"carbontracker/internal/config"
	dbpkg "carbontracker/internal/db"
	"carbontracker/internal/http/middleware"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// readCredentials accepts a JSON body or form fields.
func readCredentials(ctx *fasthttp.RequestCtx) (credentials, error) {
	var c credentials
	if bytes.HasPrefix(ctx.Request.Header.ContentType(), []byte("application/json")) {
		if err := json.Unmarshal(ctx.PostBody(), &c); err != nil {
			return c, err
		}
		return c, nil
	}
	c.Username = string(ctx.PostArgs().Peek("username"))
	c.Password = string(ctx.PostArgs().Peek("password"))
	return c, nil
}

func Signup(db *gorm.DB, cfg *config.Config, logger *zap.Logger) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		c, err := readCredentials(ctx)
		if err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid JSON body")
			return
		}
		if c.Username == "" || c.Password == "" {
			errResponse(ctx, fasthttp.StatusBadRequest, "Missing fields")
			return
		}

		user, err := dbpkg.CreateUser(db.WithContext(ctx), c.Username, c.Password)
		if errors.Is(err, dbpkg.ErrUserExists) {
			errResponse(ctx, fasthttp.StatusBadRequest, "User already exists")
			return
		}
		if err != nil {
			logger.Error("signup failed", zap.Error(err))
			errResponse(ctx, fasthttp.StatusInternalServerError, "database error")
			return
		}
		issueToken(ctx, cfg, logger, user)
	}
}

func Login(db *gorm.DB, cfg *config.Config, logger *zap.Logger) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		c, err := readCredentials(ctx)
		if err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid JSON body")
			return
		}

		user, err := dbpkg.Authenticate(db.WithContext(ctx), c.Username, c.Password)
		if errors.Is(err, dbpkg.ErrInvalidCredentials) {
			errResponse(ctx, fasthttp.StatusUnauthorized, "Invalid credentials")
			return
		}
		if err != nil {
			logger.Error("login lookup failed", zap.Error(err))
			errResponse(ctx, fasthttp.StatusInternalServerError, "database error")
			return
		}
		issueToken(ctx, cfg, logger, user)
	}
}

func Logout() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var c fasthttp.Cookie
		c.SetKey(middleware.TokenCookie)
		c.SetValue("")
		c.SetPath("/")
		c.SetMaxAge(-1)
		ctx.Response.Header.SetCookie(&c)
		jsonResponse(ctx, map[string]any{"success": true})
	}
}

func issueToken(ctx *fasthttp.RequestCtx, cfg *config.Config, logger *zap.Logger, user *dbpkg.User) {
	token, err := auth.Issue(cfg.JWTSecret, strconv.FormatUint(uint64(user.ID), 10), auth.TokenTTL)
	if err != nil {
		logger.Error("token signing failed", zap.Error(err))
		errResponse(ctx, fasthttp.StatusInternalServerError, "failed to generate token")
		return
	}

	var c fasthttp.Cookie
	c.SetKey(middleware.TokenCookie)
	c.SetValue(token)
	c.SetPath("/")
	c.SetHTTPOnly(true)
	c.SetSameSite(fasthttp.CookieSameSiteLaxMode)
	c.SetMaxAge(int(auth.TokenTTL.Seconds()))
	ctx.Response.Header.SetCookie(&c)

	jsonResponse(ctx, map[string]any{"success": true, "token": token})
}
