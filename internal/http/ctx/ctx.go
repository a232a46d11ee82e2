package ctx

import (
	"github.com/valyala/fasthttp"
)

const UserIDKey = "userID"

func SetUserID(ctx *fasthttp.RequestCtx, userID string) {
	ctx.SetUserValue(UserIDKey, userID)
}

func UserIDFromCtx(ctx *fasthttp.RequestCtx) (string, bool) {
	v := ctx.UserValue(UserIDKey)
	if v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}
