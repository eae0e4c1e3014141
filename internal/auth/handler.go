package auth

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/bookflow/internal/apperr"
	"github.com/yourusername/bookflow/internal/metrics"
	"github.com/yourusername/bookflow/internal/models"
	"github.com/yourusername/bookflow/internal/users"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// authResponse は公開ビューにメッセージを添えたレスポンスです。
type authResponse struct {
	models.PublicUser
	Message string `json:"message"`
}

// Register は POST /api/auth/register のハンドラーです。
func (m *Manager) Register(c *gin.Context) {
	var req users.CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Validation("Request body must be a JSON object"))
		return
	}

	ctx := c.Request.Context()
	user, key, err := m.auth.Register(ctx, req)
	if err != nil {
		m.metrics.RecordRegistration(metrics.OutcomeFailure)
		apperr.Respond(c, err)
		return
	}

	if err := m.establish(c, key); err != nil {
		m.auth.AbortRegistration(ctx, user.ID, key)
		m.metrics.RecordRegistration(metrics.OutcomeFailure)
		apperr.Respond(c, apperr.Internal(MsgSessionFailed, err))
		return
	}

	m.metrics.RecordRegistration(metrics.OutcomeSuccess)
	c.JSON(http.StatusCreated, authResponse{
		PublicUser: user,
		Message:    "User registered and logged successfully",
	})
}

// Login は POST /api/auth/login のハンドラーです。
func (m *Manager) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Validation("Request body must be a JSON object"))
		return
	}

	ip := c.ClientIP()
	if retryAfter := m.checkLock(ip); retryAfter > 0 {
		m.metrics.RecordLogin(metrics.OutcomeThrottled)
		// Retry-After は秒数で返す
		c.Header("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"code":    "TOO_MANY_ATTEMPTS",
			"message": "Too many failed login attempts, please try again later",
		})
		return
	}

	user, key, err := m.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if apperr.Is(err, apperr.KindAuth) {
			remaining := m.recordFailure(ip)
			m.metrics.RecordLogin(metrics.OutcomeFailure)
			slog.Warn("login failed", slog.String("ip", ip), slog.Int("remaining_attempts", remaining))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":              apperr.CodeAuth,
				"message":           MsgInvalidCredentials,
				"remainingAttempts": remaining,
			})
			return
		}
		apperr.Respond(c, err)
		return
	}

	m.resetAttempts(ip)
	if err := m.establish(c, key); err != nil {
		_ = m.auth.Logout(c.Request.Context(), key)
		apperr.Respond(c, apperr.Internal(MsgSessionFailed, err))
		return
	}

	m.metrics.RecordLogin(metrics.OutcomeSuccess)
	c.JSON(http.StatusOK, authResponse{
		PublicUser: user,
		Message:    "User logged in successfully",
	})
}

// Logout は POST /api/auth/logout のハンドラーです。
// セッションが無い場合もログアウト済みとして成功を返します。
func (m *Manager) Logout(c *gin.Context) {
	if err := m.auth.Logout(c.Request.Context(), sessionKey(c)); err != nil {
		apperr.Respond(c, err)
		return
	}
	m.clearCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "User logged out successfully"})
}

// Profile は GET /api/auth/profile のハンドラーです。RequireLogin の後に配置します。
func (m *Manager) Profile(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		apperr.Respond(c, apperr.Auth("Not authorized, please log in"))
		return
	}
	c.JSON(http.StatusOK, user)
}
