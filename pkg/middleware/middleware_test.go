package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"bullrush.com/pkg/common"
	"bullrush.com/pkg/ratelimit"
)

func init() { gin.SetMode(gin.TestMode) }

func run(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestReqId(t *testing.T) {
	r := gin.New()
	r.Use(ReqId())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, common.RequestIDFromGin(c)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(common.HeaderRequestID, "abc-123")
	w := run(r, req)
	assert.Equal(t, "abc-123", w.Body.String())
	assert.Equal(t, "abc-123", w.Header().Get(common.HeaderRequestID))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(common.HeaderRequestID, strings.Repeat("x", 200))
	w = run(r, req)
	assert.Len(t, w.Body.String(), 36, "oversized ids are replaced by a uuid")
}

func TestRecover(t *testing.T) {
	r := gin.New()
	r.Use(Recover())
	r.GET("/boom", func(*gin.Context) { panic("boom") })

	w := run(r, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal server error")
}

func TestRateLimit(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(ratelimit.NewStore(rate.Every(time.Hour), 1, time.Minute)))
	r.GET("/a", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/b", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, run(r, httptest.NewRequest(http.MethodGet, "/a", nil)).Code)
	assert.Equal(t, http.StatusTooManyRequests, run(r, httptest.NewRequest(http.MethodGet, "/a", nil)).Code)
	assert.Equal(t, http.StatusOK, run(r, httptest.NewRequest(http.MethodGet, "/b", nil)).Code, "limits are per route")
}

type admins map[string]bool

func (a admins) IsActiveAdmin(_ context.Context, id string) (bool, error) { return a[id], nil }

func signed(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestAuthAndAdminOnly(t *testing.T) {
	v, err := NewVerifier(AuthConfig{Secret: "s3cret", Issuer: "https://id.example.com"})
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", Auth(v), func(c *gin.Context) { c.String(http.StatusOK, common.UserIDFromGin(c)) })
	r.GET("/admin", Auth(v), AdminOnly(admins{"boss": true}), func(c *gin.Context) { c.Status(http.StatusOK) })

	valid := func(sub string) jwt.RegisteredClaims {
		return jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    "https://id.example.com",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}
	}
	expired := valid("u1")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	wrongIssuer := valid("u1")
	wrongIssuer.Issuer = "https://evil.example.com"

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"no header", "/me", "", http.StatusUnauthorized},
		{"not bearer", "/me", "Basic abc", http.StatusUnauthorized},
		{"valid", "/me", "Bearer " + signed(t, "s3cret", valid("u1")), http.StatusOK},
		{"wrong key", "/me", "Bearer " + signed(t, "other", valid("u1")), http.StatusUnauthorized},
		{"expired", "/me", "Bearer " + signed(t, "s3cret", expired), http.StatusUnauthorized},
		{"wrong issuer", "/me", "Bearer " + signed(t, "s3cret", wrongIssuer), http.StatusUnauthorized},
		{"non admin", "/admin", "Bearer " + signed(t, "s3cret", valid("u1")), http.StatusForbidden},
		{"admin", "/admin", "Bearer " + signed(t, "s3cret", valid("boss")), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, run(r, req).Code)
		})
	}
}

func TestNewVerifier_RequiresKey(t *testing.T) {
	_, err := NewVerifier(AuthConfig{})
	assert.Error(t, err)
}
