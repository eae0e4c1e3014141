package auth

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/bookflow/internal/apperr"
	"github.com/yourusername/bookflow/internal/metrics"
	"github.com/yourusername/bookflow/internal/models"
)

const (
	MsgNoSession    = "Not authorized, no active session found"
	MsgStaleSession = "Unauthorized access, please log in again"

	undefinedRole = "undefined"
)

// RequireLogin はセッションキーから利用者を解決するミドルウェアを返します。
// 拒否はすべて 401 で、原因にかかわらず同じ形のレスポンスになります。
func (m *Manager) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		key := sessionKey(c)
		if key == "" {
			m.reject(c, metrics.ResolutionNoSession, MsgNoSession)
			return
		}

		userID, ok, err := m.auth.sessions.Resolve(ctx, key)
		if err != nil {
			if ctx.Err() != nil {
				// 中断されたリクエストではセッションを残す
				m.reject(c, metrics.ResolutionStoreFailed, MsgStaleSession)
				return
			}
			slog.ErrorContext(ctx, "session lookup failed", "error", err)
			m.discard(c, key)
			m.reject(c, metrics.ResolutionStoreFailed, MsgStaleSession)
			return
		}
		if !ok {
			// 期限切れのクッキーで解決を繰り返さないよう消しておく
			m.clearCookie(c)
			m.reject(c, metrics.ResolutionExpired, MsgNoSession)
			return
		}

		user, err := m.auth.users.FindByID(ctx, userID)
		if err != nil && ctx.Err() != nil {
			m.reject(c, metrics.ResolutionStoreFailed, MsgStaleSession)
			return
		}
		if err != nil || user == nil {
			if err != nil {
				slog.ErrorContext(ctx, "identity lookup failed", "user_id", userID, "error", err)
			}
			m.discard(c, key)
			m.reject(c, metrics.ResolutionStale, MsgStaleSession)
			return
		}

		m.metrics.RecordSessionResolution(metrics.ResolutionAccepted)
		setCurrentUser(c, user.Public())
		c.Next()
	}
}

// RequireRole は利用者のロールが roles のいずれかであることを要求するミドルウェアを返します。
// RequireLogin の後に配置します。複数連ねた場合はそれぞれ独立に判定します。
func (m *Manager) RequireRole(roles ...models.Role) gin.HandlerFunc {
	allowed := models.NewRoleSet(roles...)
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok || !allowed.Contains(user.Role) {
			role := undefinedRole
			if ok {
				role = user.Role.String()
			}
			m.metrics.RecordAuthorizationDenied(role)
			apperr.Respond(c, apperr.Forbidden(fmt.Sprintf("Access denied: Role %s is not authorized", role)))
			return
		}
		c.Next()
	}
}

// VerifyCSRF は X-CSRF-Token ヘッダーを検証するミドルウェアです。CSRF_ENABLED が false なら何もしません。
func (m *Manager) VerifyCSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.cfg.CSRFEnabled || isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}

		session := sessions.Default(c)
		expected, ok := session.Get(sessionKeyCSRF).(string)
		if !ok || expected == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    "CSRF_MISSING",
				"message": "CSRF token is not set",
			})
			return
		}

		received := c.GetHeader(csrfHeader)
		if subtle.ConstantTimeCompare([]byte(expected), []byte(received)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    "CSRF_INVALID",
				"message": "CSRF token does not match",
			})
			return
		}

		c.Next()
	}
}

// discard はサーバー側のセッションとクライアントのクッキーを両方破棄します。
func (m *Manager) discard(c *gin.Context, key string) {
	if err := m.auth.sessions.Destroy(c.Request.Context(), key); err != nil {
		slog.ErrorContext(c.Request.Context(), "failed to destroy stale session", "error", err)
	}
	m.clearCookie(c)
}

func (m *Manager) reject(c *gin.Context, outcome, message string) {
	m.metrics.RecordSessionResolution(outcome)
	apperr.Respond(c, apperr.Auth(message))
}
