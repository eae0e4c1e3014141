package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/bookflow/internal/config"
	"github.com/yourusername/bookflow/internal/models"
	"github.com/yourusername/bookflow/internal/password"
	"github.com/yourusername/bookflow/internal/session"
	"github.com/yourusername/bookflow/internal/storage/memory"
	"github.com/yourusername/bookflow/internal/users"
	"github.com/yourusername/bookflow/internal/validate"
)

const janeBody = `{"firstName":"Jane","lastName":"Doe","birthday":"1995-10-20","email":"jane@x.com","password":"StrongPass1","role":"user"}`

// failingSessions は Create / Destroy の失敗を注入できる session.Store です。
type failingSessions struct {
	session.Store
	createErr  error
	destroyErr error
}

func (f *failingSessions) Create(ctx context.Context, userID string) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.Store.Create(ctx, userID)
}

func (f *failingSessions) Destroy(ctx context.Context, key string) error {
	if f.destroyErr != nil {
		return f.destroyErr
	}
	return f.Store.Destroy(ctx, key)
}

type testEnv struct {
	router   *gin.Engine
	manager  *Manager
	store    *memory.Store
	users    *users.Service
	sessions *failingSessions
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		GinMode:           "test",
		SessionSecret:     "test-secret-test-secret-test-secret",
		SessionTTLMinutes: 60,
		LoginMaxAttempts:  5,
	}
	if mutate != nil {
		mutate(cfg)
	}

	store := memory.New()
	userService := users.NewService(store, password.NewHasher(bcrypt.MinCost))
	sessions := &failingSessions{Store: session.NewMemoryStore(cfg.SessionTTL())}
	authenticator, err := NewAuthenticator(userService, sessions, userService.Hasher())
	require.NoError(t, err)
	manager := NewManager(cfg, authenticator, nil)

	router := gin.New()
	router.Use(manager.SessionMiddleware())
	api := router.Group("/api/auth")
	api.POST("/register", manager.Register)
	api.POST("/login", manager.Login)
	api.POST("/logout", manager.Logout)
	api.GET("/profile", manager.RequireLogin(), manager.Profile)

	admin := router.Group("/admin", manager.RequireLogin(), manager.VerifyCSRF(), manager.RequireRole(models.RoleAdmin))
	admin.GET("", func(c *gin.Context) { c.Status(http.StatusOK) })
	admin.POST("", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/no-login-admin", manager.RequireRole(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })

	return &testEnv{router: router, manager: manager, store: store, users: userService, sessions: sessions}
}

func (e *testEnv) do(method, path, body string, cookies []*http.Cookie, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) []*http.Cookie {
	t.Helper()
	for _, ck := range w.Result().Cookies() {
		if ck.Name == SessionCookieName {
			return []*http.Cookie{ck}
		}
	}
	t.Fatalf("expected %s cookie to be set", SessionCookieName)
	return nil
}

func TestRegisterSetsSessionAndHidesHash(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodPost, "/api/auth/register", janeBody, nil, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	cookies := sessionCookie(t, w)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, cookies[0].SameSite)
	assert.Equal(t, 3600, cookies[0].MaxAge)
	assert.NotEmpty(t, w.Header().Get(csrfHeader))

	body := decode(t, w)
	assert.Equal(t, "jane@x.com", body["email"])
	assert.Equal(t, "user", body["role"])
	assert.NotEmpty(t, body["id"])
	assert.NotContains(t, body, "password")
	assert.NotContains(t, body, "passwordHash")

	stored, err := env.store.FindUserByEmail(context.Background(), "jane@x.com")
	require.NoError(t, err)
	assert.NotEqual(t, "StrongPass1", stored.PasswordHash)
	assert.True(t, env.users.Hasher().Verify("StrongPass1", stored.PasswordHash))

	w = env.do(http.MethodGet, "/api/auth/profile", "", cookies, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Jane", decode(t, w)["firstName"])
}

func TestRegisterValidationAndDuplicate(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodPost, "/api/auth/register", `{"firstName":"Jane"}`, nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "All fields are required", decode(t, w)["message"])

	w = env.do(http.MethodPost, "/api/auth/register", janeBody, nil, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(http.MethodPost, "/api/auth/register", janeBody, nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "User already exists with this email", decode(t, w)["message"])
}

func TestRegisterRejectsPasswordLongerThanBcryptLimit(t *testing.T) {
	env := newTestEnv(t, nil)
	long := "Aa1" + strings.Repeat("b", 80)
	body := `{"firstName":"Jane","lastName":"Doe","birthday":"1995-10-20","email":"jane@x.com","password":"` + long + `","role":"user"}`

	w := env.do(http.MethodPost, "/api/auth/register", body, nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, validate.MsgPasswordTooLong, decode(t, w)["message"])

	_, err := env.store.FindUserByEmail(context.Background(), "jane@x.com")
	assert.Error(t, err)
}

func TestRegisterRollsBackWhenSessionFails(t *testing.T) {
	env := newTestEnv(t, nil)
	env.sessions.createErr = errors.New("session store down")

	w := env.do(http.MethodPost, "/api/auth/register", janeBody, nil, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, w.Result().Cookies())

	_, err := env.store.FindUserByEmail(context.Background(), "jane@x.com")
	assert.Error(t, err)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t, nil)
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/api/auth/register", janeBody, nil, nil).Code)

	wrongPass := env.do(http.MethodPost, "/api/auth/login", `{"email":"jane@x.com","password":"WrongPass"}`, nil, nil)
	unknown := env.do(http.MethodPost, "/api/auth/login", `{"email":"nobody@x.com","password":"WrongPass"}`, nil, nil)

	for _, w := range []*httptest.ResponseRecorder{wrongPass, unknown} {
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		body := decode(t, w)
		assert.Equal(t, MsgInvalidCredentials, body["message"])
		assert.Equal(t, "UNAUTHORIZED", body["code"])
	}
}

func TestLoginSucceeds(t *testing.T) {
	env := newTestEnv(t, nil)
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/api/auth/register", janeBody, nil, nil).Code)

	w := env.do(http.MethodPost, "/api/auth/login", `{"email":"jane@x.com","password":"StrongPass1"}`, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "User logged in successfully", body["message"])
	assert.NotContains(t, body, "password")

	w = env.do(http.MethodGet, "/api/auth/profile", "", sessionCookie(t, w), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLoginThrottle(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.LoginMaxAttempts = 2 })

	bad := `{"email":"nobody@x.com","password":"WrongPass1"}`
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/api/auth/login", bad, nil, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/api/auth/login", bad, nil, nil).Code)

	w := env.do(http.MethodPost, "/api/auth/login", bad, nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestProfileWithoutSession(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/api/auth/profile", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, MsgNoSession, decode(t, w)["message"])
}

func TestLogoutWithoutSessionIsIdempotent(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodPost, "/api/auth/logout", "", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "User logged out successfully", decode(t, w)["message"])
}

func TestLogoutDestroysSession(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(http.MethodPost, "/api/auth/register", janeBody, nil, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	cookies := sessionCookie(t, w)

	w = env.do(http.MethodPost, "/api/auth/logout", "", cookies, nil)
	require.Equal(t, http.StatusOK, w.Code)
	cleared := sessionCookie(t, w)
	assert.True(t, cleared[0].MaxAge < 0)

	// 破棄済みのキーを持つ古いクッキーは二度と解決されない
	w = env.do(http.MethodGet, "/api/auth/profile", "", cookies, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, MsgNoSession, decode(t, w)["message"])
}

func TestLogoutDestroyFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(http.MethodPost, "/api/auth/register", janeBody, nil, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	env.sessions.destroyErr = errors.New("redis down")

	w = env.do(http.MethodPost, "/api/auth/logout", "", sessionCookie(t, w), nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, MsgLogoutFailed, decode(t, w)["message"])
}

func TestDeletedIdentityInvalidatesSession(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(http.MethodPost, "/api/auth/register", janeBody, nil, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	cookies := sessionCookie(t, w)
	userID := decode(t, w)["id"].(string)

	_, err := env.store.DeleteUser(context.Background(), userID)
	require.NoError(t, err)

	w = env.do(http.MethodGet, "/api/auth/profile", "", cookies, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, MsgStaleSession, decode(t, w)["message"])
	cleared := sessionCookie(t, w)
	assert.True(t, cleared[0].MaxAge < 0)

	// サーバー側のセッションも破棄されているので、次は利用者の検索に進まない
	w = env.do(http.MethodGet, "/api/auth/profile", "", cookies, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, MsgNoSession, decode(t, w)["message"])
}

func TestCanceledResolutionKeepsSession(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(http.MethodPost, "/api/auth/register", janeBody, nil, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	cookies := sessionCookie(t, w)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/auth/profile", nil).WithContext(ctx)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// 中断されたリクエストの後も同じクッキーで解決できる
	w = env.do(http.MethodGet, "/api/auth/profile", "", cookies, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Jane", decode(t, w)["firstName"])
}

func TestRequireRole(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodPost, "/api/auth/register", janeBody, nil, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	userCookies := sessionCookie(t, w)

	w = env.do(http.MethodGet, "/admin", "", userCookies, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Access denied: Role user is not authorized", decode(t, w)["message"])

	adminBody := `{"firstName":"Ada","lastName":"Admin","birthday":"1980-01-01","email":"ada@x.com","password":"AdminPass1","role":"admin"}`
	w = env.do(http.MethodPost, "/api/auth/register", adminBody, nil, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	w = env.do(http.MethodGet, "/admin", "", sessionCookie(t, w), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/no-login-admin", "", nil, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Access denied: Role undefined is not authorized", decode(t, w)["message"])
}

func TestChainedRoleChecks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewManager(&config.Config{}, nil, nil)

	run := func(role models.Role, chain ...gin.HandlerFunc) int {
		w := httptest.NewRecorder()
		c, r := gin.CreateTestContext(w)
		handlers := append([]gin.HandlerFunc{func(c *gin.Context) {
			setCurrentUser(c, models.PublicUser{ID: "u1", Role: role})
		}}, chain...)
		handlers = append(handlers, func(c *gin.Context) { c.Status(http.StatusNoContent) })
		r.GET("/x", handlers...)
		c.Request = httptest.NewRequest(http.MethodGet, "/x", nil)
		r.HandleContext(c)
		return w.Code
	}

	assert.Equal(t, http.StatusNoContent, run(models.RoleAdmin,
		m.RequireRole(models.RoleUser, models.RoleAdmin), m.RequireRole(models.RoleAdmin)))
	assert.Equal(t, http.StatusForbidden, run(models.RoleUser,
		m.RequireRole(models.RoleUser, models.RoleAdmin), m.RequireRole(models.RoleAdmin)))
}

func TestVerifyCSRF(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.CSRFEnabled = true })

	adminBody := `{"firstName":"Ada","lastName":"Admin","birthday":"1980-01-01","email":"ada@x.com","password":"AdminPass1","role":"admin"}`
	w := env.do(http.MethodPost, "/api/auth/register", adminBody, nil, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	cookies := sessionCookie(t, w)
	token := w.Header().Get(csrfHeader)

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/admin", "", cookies, nil).Code)
	assert.Equal(t, http.StatusForbidden, env.do(http.MethodPost, "/admin", "", cookies, nil).Code)
	assert.Equal(t, http.StatusForbidden, env.do(http.MethodPost, "/admin", "", cookies, map[string]string{csrfHeader: "nope"}).Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodPost, "/admin", "", cookies, map[string]string{csrfHeader: token}).Code)
}

func TestRateLimiter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(2)
	router := gin.New()
	router.POST("/register", rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusCreated) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/register", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusCreated, http.StatusCreated, http.StatusTooManyRequests}, codes)
	assert.Equal(t, 1, rl.ClientCount())
}
