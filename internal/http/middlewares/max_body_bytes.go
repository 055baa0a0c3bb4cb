package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxBodyBytes caps request bodies. Multipart requests (document uploads) get
// their own, larger cap; the upload handler enforces the exact per-file limit.
func MaxBodyBytes(max, multipartMax int64) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		limit := max

		if strings.HasPrefix(ctx.ContentType(), "multipart/") {
			limit = multipartMax
		}

		ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, limit)

		ctx.Next()
	}
}
