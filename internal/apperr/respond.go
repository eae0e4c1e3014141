package apperr

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

const genericInternalMessage = "An internal error occurred, please try again later"

// Respond は err を {"code","message"} 形式の JSON に変換して返します。
// *Error 以外のエラーは 500 とし、詳細はログにだけ出力します。
func Respond(c *gin.Context, err error) {
	var appErr *Error
	switch {
	case errors.As(err, &appErr):
		if appErr.Kind == KindInternal {
			slog.Error("request failed",
				slog.String("method", c.Request.Method),
				slog.String("path", c.FullPath()),
				slog.String("error", err.Error()),
			)
		}
		message := appErr.Message
		if message == "" {
			message = genericInternalMessage
		}
		c.AbortWithStatusJSON(appErr.Kind.Status(), gin.H{
			"code":    appErr.Code,
			"message": message,
		})
	case errors.Is(err, context.Canceled):
		c.AbortWithStatusJSON(http.StatusRequestTimeout, gin.H{
			"code":    "REQUEST_CANCELED",
			"message": "The request was canceled",
		})
	default:
		slog.Error("request failed",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.String("error", err.Error()),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"code":    CodeInternal,
			"message": genericInternalMessage,
		})
	}
}
