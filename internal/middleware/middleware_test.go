package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/recruiting-portal/internal/config"
	"github.com/iliyamo/recruiting-portal/internal/model"
	"github.com/iliyamo/recruiting-portal/internal/utils"
)

const secret = "test-secret"

func protected(roles ...string) *echo.Echo {
	e := echo.New()
	g := e.Group("", JWTAuth(secret))
	if len(roles) > 0 {
		g.Use(RequireRole(roles...))
	}
	g.GET("/who", func(c echo.Context) error {
		id, ok := UserID(c)
		return c.JSON(http.StatusOK, echo.Map{"id": id, "ok": ok, "role": Role(c)})
	})
	return e
}

func call(e *echo.Echo, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/who", nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuth(t *testing.T) {
	e := protected()

	rec := call(e, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"missing bearer token"}`, rec.Body.String())

	rec = call(e, "garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	tok, err := utils.NewAccessToken(secret, 9, model.RoleMember, 5)
	require.NoError(t, err)
	rec = call(e, tok.Token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":9,"ok":true,"role":"MEMBER"}`, rec.Body.String())
}

func TestRequireRole(t *testing.T) {
	e := protected(model.RoleAdmin)

	member, err := utils.NewAccessToken(secret, 9, model.RoleMember, 5)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, call(e, member.Token).Code)

	admin, err := utils.NewAccessToken(secret, 1, model.RoleAdmin, 5)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, call(e, admin.Token).Code)
}

func TestDisabledCacheAndLimiterPassThrough(t *testing.T) {
	e := echo.New()
	rc := NewResponseCache(config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}}, nil)
	rl := NewRateLimiter(config.RateLimitConfig{Enabled: true, Capacity: 1}, nil)
	hits := 0
	e.GET("/x", func(c echo.Context) error {
		hits++
		return c.String(http.StatusOK, "ok")
	}, rl.Middleware(), rc.Middleware())

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-Cache"))
	}
	assert.Equal(t, 3, hits)
	assert.NoError(t, rc.Purge(t.Context()))
}

func TestCaptureWriterLimit(t *testing.T) {
	rec := httptest.NewRecorder()
	cw := &captureWriter{ResponseWriter: rec, status: http.StatusOK, limit: 4}
	_, _ = cw.Write([]byte("abc"))
	assert.False(t, cw.over)
	_, _ = cw.Write([]byte("def"))
	assert.True(t, cw.over)
	assert.Equal(t, "abcdef", rec.Body.String())
}

func TestResponseTTL(t *testing.T) {
	def := 10 * time.Second
	cases := []struct {
		header string
		want   time.Duration
		store  bool
	}{
		{"", def, true},
		{"public, max-age=3", 3 * time.Second, true},
		{"public, max-age=60", def, true},
		{"max-age=0", 0, false},
		{"max-age=soon", 0, false},
		{"no-store", 0, false},
	}
	for _, tc := range cases {
		h := http.Header{}
		if tc.header != "" {
			h.Set("Cache-Control", tc.header)
		}
		got, ok := responseTTL(h, def)
		assert.Equal(t, tc.store, ok, tc.header)
		if tc.store {
			assert.Equal(t, tc.want, got, tc.header)
		}
	}
}
