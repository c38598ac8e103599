package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"jobgate/internal/auth"
	"jobgate/internal/database"
)

const (
	principalKey = "principal"
	companyKey   = "company"
)

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

func abortForbidden(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": msg})
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], parts[1] != ""
}

// AuthMiddleware verifies the access token and stores the principal in the context.
func AuthMiddleware(authService *auth.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		rawToken, ok := BearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortUnauthorized(c)
			return
		}

		claims, err := authService.ValidateToken(rawToken)
		if err != nil || claims.TokenType != auth.TokenTypeAccess {
			abortUnauthorized(c)
			return
		}

		c.Set(principalKey, claims.Principal())
		c.Next()
	}
}

// PrincipalFromContext returns the principal set by AuthMiddleware.
func PrincipalFromContext(c *gin.Context) (auth.Principal, bool) {
	if value, ok := c.Get(principalKey); ok {
		if p, ok := value.(auth.Principal); ok && p.ID != 0 {
			return p, true
		}
	}
	return auth.Principal{}, false
}

// RequireRole admits principals holding one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFromContext(c)
		if !ok {
			abortUnauthorized(c)
			return
		}
		for _, role := range roles {
			if p.Role == role {
				c.Next()
				return
			}
		}
		abortForbidden(c, "insufficient role")
	}
}

// CompanyLookup loads the company bound to a company principal.
type CompanyLookup func(ctx context.Context, companyID uint) (*database.Company, error)

// DBCompanyLookup reads companies through db.
func DBCompanyLookup(db *gorm.DB) CompanyLookup {
	return func(ctx context.Context, companyID uint) (*database.Company, error) {
		var company database.Company
		if err := db.WithContext(ctx).First(&company, companyID).Error; err != nil {
			return nil, err
		}
		return &company, nil
	}
}

// RequireApprovedCompany admits company principals whose company exists and is approved.
func RequireApprovedCompany(lookup CompanyLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFromContext(c)
		if !ok {
			abortUnauthorized(c)
			return
		}
		if !p.IsCompany() {
			abortForbidden(c, "company account required")
			return
		}

		company, err := lookup(c.Request.Context(), p.ID)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			abortForbidden(c, "company not found")
			return
		case err != nil:
			LoggerFromContext(c).Error("load company failed", slog.Any("error", err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		case !company.IsApproved:
			abortForbidden(c, "company is not approved")
			return
		}

		c.Set(companyKey, company)
		c.Next()
	}
}

// CompanyFromContext returns the company loaded by RequireApprovedCompany.
func CompanyFromContext(c *gin.Context) (*database.Company, bool) {
	if value, ok := c.Get(companyKey); ok {
		if company, ok := value.(*database.Company); ok {
			return company, true
		}
	}
	return nil, false
}
