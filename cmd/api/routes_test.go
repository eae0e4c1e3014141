package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/bookflow/internal/auth"
	"github.com/yourusername/bookflow/internal/catalog"
	"github.com/yourusername/bookflow/internal/config"
	"github.com/yourusername/bookflow/internal/metrics"
	"github.com/yourusername/bookflow/internal/password"
	"github.com/yourusername/bookflow/internal/session"
	"github.com/yourusername/bookflow/internal/storage/memory"
	"github.com/yourusername/bookflow/internal/users"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		GinMode:            gin.TestMode,
		CORSAllowedOrigins: "http://localhost:5173",
		SessionSecret:      "test-secret-test-secret-test-secret",
		SessionTTLMinutes:  60,
		LoginMaxAttempts:   5,
		RegisterRateLimit:  100,
		MetricsEnabled:     true,
		OverdueSweepCron:   "*/15 * * * *",
		SessionReapCron:    "*/10 * * * *",
	}

	store := memory.New()
	sessions := session.NewMemoryStore(time.Hour)
	registry := prometheus.NewRegistry()
	recorder := metrics.NewCollector(registry)

	hasher := password.NewHasher(bcrypt.MinCost)
	userService := users.NewService(store, hasher)
	authenticator, err := auth.NewAuthenticator(userService, sessions, hasher)
	require.NoError(t, err)

	jobManager, err := setupJobs(cfg, sessions, store, recorder)
	require.NoError(t, err)
	userService.SetDeleteListener(jobManager)

	router := gin.New()
	setupRoutes(router, routeDeps{
		cfg:      cfg,
		store:    store,
		auth:     auth.NewManager(cfg, authenticator, recorder),
		catalog:  catalog.NewHandler(catalog.NewBooks(store), catalog.NewAuthors(store), catalog.NewLoans(store, store, store), userService),
		gatherer: registry,
	})
	return router
}

func serve(router *gin.Engine, method, path, body string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t)
	rec := serve(router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestSessionFlowThroughRouter(t *testing.T) {
	router := newTestRouter(t)

	rec := serve(router, http.MethodGet, "/api/books", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(router, http.MethodPost, "/api/auth/register",
		`{"firstName":"Jane","lastName":"Doe","birthday":"1995-10-20","email":"jane@x.com","password":"StrongPass1","role":"user"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	rec = serve(router, http.MethodGet, "/api/books", "", cookies)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(router, http.MethodGet, "/api/users", "", cookies)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(router, http.MethodPost, "/api/auth/logout", "", cookies)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(router, http.MethodGet, "/api/books", "", cookies)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t)
	serve(router, http.MethodPost, "/api/auth/login", `{"email":"nobody@x.com","password":"WrongPass1"}`, nil)

	rec := serve(router, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "bookflow_logins_total"))
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHashPasswordCommand(t *testing.T) {
	var out bytes.Buffer
	hashPasswordCmd.SetOut(&out)
	hashPasswordCmd.SetIn(strings.NewReader("StrongPass1\n"))
	require.NoError(t, hashPasswordCmd.Flags().Set("cost", "4"))
	require.NoError(t, hashPasswordCmd.RunE(hashPasswordCmd, nil))

	hash := strings.TrimSpace(out.String())
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("StrongPass1")))
}
