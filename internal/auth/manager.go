// Package auth は登録・ログイン・ログアウトと、セッション解決・ロール認可のミドルウェアを提供します。
//
// セッションキーは gin-contrib/sessions の署名付きクッキーで運び、
// サーバー側の状態は session.Store に保存します。
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/bookflow/internal/config"
	"github.com/yourusername/bookflow/internal/metrics"
)

const (
	SessionCookieName = "bookflow_session"
	sessionKeyID      = "sid"
	sessionKeyCSRF    = "csrf_token"

	csrfHeader = "X-CSRF-Token"
)

var (
	loginWindow  = 15 * time.Minute
	lockDuration = 10 * time.Minute
)

type attemptState struct {
	count        int
	firstAttempt time.Time
	lockedUntil  time.Time
}

// Manager は認証の HTTP ハンドラーとミドルウェアをまとめた構造体です。
type Manager struct {
	cfg     *config.Config
	auth    *Authenticator
	metrics metrics.Recorder

	maxLoginAttempts int
	lock             sync.Mutex
	attempts         map[string]*attemptState
	now              func() time.Time
}

// NewManager は認証マネージャーを作成します。rec が nil の場合は記録しません。
func NewManager(cfg *config.Config, authenticator *Authenticator, rec metrics.Recorder) *Manager {
	if rec == nil {
		rec = metrics.Nop{}
	}
	maxAttempts := cfg.LoginMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Manager{
		cfg:              cfg,
		auth:             authenticator,
		metrics:          rec,
		maxLoginAttempts: maxAttempts,
		attempts:         make(map[string]*attemptState),
		now:              time.Now,
	}
}

// SessionMiddleware はセッションクッキーを扱う gin ミドルウェアを返します。
func (m *Manager) SessionMiddleware() gin.HandlerFunc {
	store := cookie.NewStore(cookieSecret(m.cfg))
	store.Options(m.cookieOptions(int(m.cfg.SessionTTL().Seconds())))
	return sessions.Sessions(SessionCookieName, store)
}

func (m *Manager) cookieOptions(maxAge int) sessions.Options {
	return sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.cfg.Release(),
		SameSite: http.SameSiteStrictMode,
	}
}

// cookieSecret はクッキー署名鍵を返します。未設定の場合（開発時のみ）は起動ごとに生成します。
func cookieSecret(cfg *config.Config) []byte {
	if cfg.SessionSecret != "" {
		return []byte(cfg.SessionSecret)
	}
	secret, err := generateToken()
	if err != nil {
		panic("generate cookie secret: " + err.Error())
	}
	slog.Warn("SESSION_SECRET is not set; using an ephemeral cookie secret")
	return []byte(secret)
}

// establish はセッションキーと CSRF トークンをクッキーに保存します。
func (m *Manager) establish(c *gin.Context, key string) error {
	token, err := generateToken()
	if err != nil {
		return err
	}

	session := sessions.Default(c)
	session.Clear()
	session.Set(sessionKeyID, key)
	session.Set(sessionKeyCSRF, token)
	session.Options(m.cookieOptions(int(m.cfg.SessionTTL().Seconds())))
	if err := session.Save(); err != nil {
		return err
	}

	c.Header(csrfHeader, token)
	return nil
}

// clearCookie はクライアント側のセッションクッキーを失効させます。
func (m *Manager) clearCookie(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Options(m.cookieOptions(-1))
	if err := session.Save(); err != nil {
		slog.Warn("failed to clear session cookie", "error", err)
	}
}

// sessionKey はクッキーからセッションキーを取り出します。
func sessionKey(c *gin.Context) string {
	key, _ := sessions.Default(c).Get(sessionKeyID).(string)
	return key
}

func (m *Manager) checkLock(ip string) time.Duration {
	m.lock.Lock()
	defer m.lock.Unlock()

	state, ok := m.attempts[ip]
	if !ok {
		return 0
	}
	now := m.now()
	if now.After(state.lockedUntil) {
		return 0
	}
	return state.lockedUntil.Sub(now)
}

func (m *Manager) recordFailure(ip string) int {
	m.lock.Lock()
	defer m.lock.Unlock()

	now := m.now()
	state, ok := m.attempts[ip]
	if !ok || now.Sub(state.firstAttempt) > loginWindow {
		state = &attemptState{firstAttempt: now}
		m.attempts[ip] = state
	}

	state.count++
	if state.count >= m.maxLoginAttempts {
		state.lockedUntil = now.Add(lockDuration)
		state.count = m.maxLoginAttempts
	}

	remaining := m.maxLoginAttempts - state.count
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

func (m *Manager) resetAttempts(ip string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.attempts, ip)
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}
