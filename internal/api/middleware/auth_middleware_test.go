package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobgate/internal/api/middleware"
	"jobgate/internal/auth"
	"jobgate/internal/database"
	"jobgate/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func bearer(t *testing.T, svc *auth.AuthService, p auth.Principal, refresh bool) string {
	t.Helper()
	pair, err := svc.GenerateTokenPair(p)
	require.NoError(t, err)
	if refresh {
		return "Bearer " + pair.RefreshToken
	}
	return "Bearer " + pair.AccessToken
}

func serve(r *gin.Engine, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestBearerToken(t *testing.T) {
	tok, ok := middleware.BearerToken("bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)

	for _, h := range []string{"", "Bearer", "Basic abc", "Bearer a b"} {
		_, ok := middleware.BearerToken(h)
		assert.False(t, ok, h)
	}
}

func TestAuthMiddlewareAndRoles(t *testing.T) {
	svc := testutil.NewAuthService(t)
	r := gin.New()
	r.GET("/", middleware.AuthMiddleware(svc), middleware.RequireRole(auth.RoleAdmin), func(c *gin.Context) {
		p, _ := middleware.PrincipalFromContext(c)
		c.JSON(http.StatusOK, gin.H{"id": p.ID})
	})

	assert.Equal(t, http.StatusUnauthorized, serve(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "Bearer not-a-jwt").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, bearer(t, svc, auth.Principal{ID: 1, Role: auth.RoleAdmin}, true)).Code)
	assert.Equal(t, http.StatusForbidden, serve(r, bearer(t, svc, auth.Principal{ID: 1, Role: auth.RoleSeeker}, false)).Code)

	w := serve(r, bearer(t, svc, auth.Principal{ID: 9, Role: auth.RoleAdmin}, false))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":9}`, w.Body.String())
}

func TestRequireApprovedCompany(t *testing.T) {
	db := testutil.NewDB(t)
	svc := testutil.NewAuthService(t)
	approved := testutil.CreateCompany(t, db, "ok@example.com")
	pending := testutil.CreateCompany(t, db, "pending@example.com")
	require.NoError(t, db.Model(&database.Company{}).Where("id = ?", pending.ID).Update("is_approved", false).Error)

	r := gin.New()
	r.GET("/", middleware.AuthMiddleware(svc), middleware.RequireApprovedCompany(middleware.DBCompanyLookup(db)), func(c *gin.Context) {
		company, ok := middleware.CompanyFromContext(c)
		require.True(t, ok)
		c.String(http.StatusOK, company.Email)
	})

	w := serve(r, bearer(t, svc, auth.Principal{ID: approved.ID, Role: auth.RoleCompany}, false))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok@example.com", w.Body.String())

	assert.Equal(t, http.StatusForbidden, serve(r, bearer(t, svc, auth.Principal{ID: pending.ID, Role: auth.RoleCompany}, false)).Code)
	assert.Equal(t, http.StatusForbidden, serve(r, bearer(t, svc, auth.Principal{ID: 999, Role: auth.RoleCompany}, false)).Code)
	assert.Equal(t, http.StatusForbidden, serve(r, bearer(t, svc, auth.Principal{ID: approved.ID, Role: auth.RoleSeeker}, false)).Code)
}

func TestCorrelationIDMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(middleware.CorrelationIDMiddleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get("X-Correlation-ID"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-ID", strings.Repeat("x", 500))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))
	assert.LessOrEqual(t, len(w.Header().Get("X-Correlation-ID")), 128)
}
