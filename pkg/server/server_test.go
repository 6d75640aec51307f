package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shishobooks/bookstore/pkg/apitokens"
	"github.com/shishobooks/bookstore/pkg/config"
	"github.com/shishobooks/bookstore/pkg/database"
	"github.com/shishobooks/bookstore/pkg/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

// These tests don't run in parallel since New sets echo.NotFoundHandler.

func newTestServer(t *testing.T, configure func(cfg *config.Config)) (http.Handler, *bun.DB) {
	t.Helper()

	cfg := config.NewForTest()
	if configure != nil {
		configure(cfg)
	}

	db, err := database.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})

	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	srv, err := New(cfg, db)
	require.NoError(t, err)

	return srv.Handler, db
}

func request(h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestServer_Routes(t *testing.T) {
	h, _ := newTestServer(t, nil)

	rr := request(h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = request(h, http.MethodGet, "/books/", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())

	rr = request(h, http.MethodPost, "/books/", `{"title":"T","author":"A","isbn":"1","price":"1.50"}`, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"price":"1.50"`)

	rr = request(h, http.MethodGet, "/nope", "", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), `"not_found"`)
}

func TestServer_CORS(t *testing.T) {
	h, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.CORSAllowedOrigins = []string{"https://shop.example.com"}
	})

	rr := request(h, http.MethodGet, "/books/", "", map[string]string{"Origin": "https://shop.example.com"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "https://shop.example.com", rr.Header().Get("Access-Control-Allow-Origin"))

	rr = request(h, http.MethodGet, "/books/", "", map[string]string{"Origin": "https://evil.example.com"})
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_TokenAuth(t *testing.T) {
	h, db := newTestServer(t, func(cfg *config.Config) {
		cfg.AuthEnabled = true
	})

	token, err := apitokens.NewService(db).Create(context.Background(), "test")
	require.NoError(t, err)

	rr := request(h, http.MethodGet, "/books/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = request(h, http.MethodGet, "/books/", "", map[string]string{"Authorization": "Bearer tk_wrong"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = request(h, http.MethodGet, "/books/", "", map[string]string{"Authorization": "Bearer " + token.Key})
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = request(h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestServer_RateLimit(t *testing.T) {
	h, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimitPerSecond = 0.01
		cfg.RateLimitBurst = 2
	})

	for i := 0; i < 2; i++ {
		rr := request(h, http.MethodGet, "/books/", "", nil)
		require.Equal(t, http.StatusOK, rr.Code)
	}

	rr := request(h, http.MethodGet, "/books/", "", nil)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Contains(t, rr.Body.String(), `"too_many_requests"`)

	rr = request(h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}
