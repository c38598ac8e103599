package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"jobgate/internal/api/middleware"
	"jobgate/internal/auth"
	"jobgate/internal/database"
	"jobgate/internal/errcode"
)

// AuthHandler serves user registration, login, token refresh, logout and device tokens.
type AuthHandler struct {
	db          *gorm.DB
	authService *auth.AuthService
	limiter     rateLimiter
	revocations refreshRevocations
}

// NewAuthHandler builds the handler. redisClient may be nil, which disables rate limiting and revocation.
func NewAuthHandler(db *gorm.DB, authService *auth.AuthService, redisClient redis.UniversalClient, loginLimit int, window time.Duration) *AuthHandler {
	return &AuthHandler{
		db:          db,
		authService: authService,
		limiter:     rateLimiter{client: redisClient, prefix: "rate:login:", limit: loginLimit, window: window},
		revocations: refreshRevocations{client: redisClient},
	}
}

type registerRequest struct {
	Name     string `json:"name" binding:"required,max=255"`
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,min=8,max=72"`
	Phone    string `json:"phone" binding:"max=32"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Role         string `json:"role"`
}

// Register creates a seeker account and signs it in.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	email := auth.NormalizeEmail(req.Email)
	logger := middleware.LoggerFromContext(c).With(slog.String("email", email))

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		logger.Error("hash password failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	user := database.User{
		Name:                 strings.TrimSpace(req.Name),
		Email:                email,
		Phone:                strings.TrimSpace(req.Phone),
		PasswordHash:         hashed,
		UserType:             database.UserTypeSeeker,
		UpgradeRequestStatus: database.UpgradeNone,
	}
	if err := h.db.WithContext(ctx).Create(&user).Error; err != nil {
		if database.IsUniqueViolation(err) {
			RespondError(c, errcode.Conflict("email already registered"))
			return
		}
		RespondError(c, errcode.Persistence("failed to create user", err))
		return
	}

	logger.Info("user registered", slog.Uint64("user_id", uint64(user.ID)))
	h.replyWithTokenPair(c, http.StatusCreated, auth.Principal{ID: user.ID, Role: roleOf(user)})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login checks user credentials and issues a token pair.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	if !h.limiter.allow(ctx, c.ClientIP()) {
		TooManyRequests(c)
		return
	}

	email := auth.NormalizeEmail(req.Email)
	logger := middleware.LoggerFromContext(c).With(slog.String("email", email))

	var user database.User
	if err := h.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Info("login failed: user not found")
			Unauthorized(c)
			return
		}
		RespondError(c, errcode.Persistence("failed to load user", err))
		return
	}

	if !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		logger.Info("login failed: password mismatch", slog.Uint64("user_id", uint64(user.ID)))
		Unauthorized(c)
		return
	}

	h.replyWithTokenPair(c, http.StatusOK, auth.Principal{ID: user.ID, Role: roleOf(user)})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh rotates a refresh token. The role is re-read so upgrades take effect.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Unauthorized(c)
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	claims, ok := h.validRefreshClaims(c, req.RefreshToken)
	if !ok {
		return
	}

	principal := claims.Principal()
	if principal.IsCompany() {
		var company database.Company
		if err := h.db.WithContext(ctx).First(&company, principal.ID).Error; err != nil || !company.IsApproved {
			logger.Info("refresh company not usable", slog.Uint64("company_id", uint64(principal.ID)))
			Unauthorized(c)
			return
		}
	} else {
		var user database.User
		if err := h.db.WithContext(ctx).First(&user, principal.ID).Error; err != nil {
			logger.Info("refresh user not found", slog.Any("error", err))
			Unauthorized(c)
			return
		}
		principal.Role = roleOf(user)
	}

	if err := h.revocations.revoke(ctx, claims.ID, claims.ExpiresAt, h.authService.RefreshTokenTTL()); err != nil {
		logger.Error("refresh revoke old token failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	h.replyWithTokenPair(c, http.StatusOK, principal)
}

// Logout blacklists the refresh token until it expires.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "refresh token missing")
		return
	}

	claims, ok := h.validRefreshClaims(c, req.RefreshToken)
	if !ok {
		return
	}
	if err := h.revocations.revoke(c.Request.Context(), claims.ID, claims.ExpiresAt, h.authService.RefreshTokenTTL()); err != nil {
		middleware.LoggerFromContext(c).Error("logout revoke token failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) validRefreshClaims(c *gin.Context, token string) (*auth.TokenClaims, bool) {
	logger := middleware.LoggerFromContext(c)

	claims, err := h.authService.ValidateToken(token)
	if err != nil {
		logger.Info("refresh token invalid", slog.Any("error", err))
		Unauthorized(c)
		return nil, false
	}
	if claims.TokenType != auth.TokenTypeRefresh || claims.ID == "" {
		logger.Info("refresh token wrong type", slog.String("token_type", claims.TokenType))
		Unauthorized(c)
		return nil, false
	}

	revoked, err := h.revocations.isRevoked(c.Request.Context(), claims.ID)
	if err != nil {
		logger.Error("refresh token blacklist lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return nil, false
	}
	if revoked {
		logger.Info("refresh token revoked", slog.String("jti", claims.ID))
		Unauthorized(c)
		return nil, false
	}
	return claims, true
}

type deviceTokenRequest struct {
	DeviceToken string `json:"device_token" binding:"max=512"`
}

// UpdateDeviceToken stores the caller's push target. An empty token unregisters the device.
func (h *AuthHandler) UpdateDeviceToken(c *gin.Context) {
	userID, role, ok := principalOrAbort(c)
	if !ok {
		return
	}
	if role == auth.RoleCompany {
		RespondError(c, errcode.Forbidden("device tokens are registered by users"))
		return
	}

	var req deviceTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	res := h.db.WithContext(c.Request.Context()).
		Model(&database.User{}).
		Where("id = ?", userID).
		Update("device_token", strings.TrimSpace(req.DeviceToken))
	if res.Error != nil {
		RespondError(c, errcode.Persistence("failed to update device token", res.Error))
		return
	}
	if res.RowsAffected == 0 {
		RespondError(c, errcode.NotFound("user not found"))
		return
	}
	c.Status(http.StatusNoContent)
}

// Me returns the caller's profile.
func (h *AuthHandler) Me(c *gin.Context) {
	id, role, ok := principalOrAbort(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if role == auth.RoleCompany {
		var company database.Company
		if err := h.db.WithContext(ctx).First(&company, id).Error; err != nil {
			RespondError(c, notFoundOrPersistence(err, "company not found"))
			return
		}
		c.JSON(http.StatusOK, gin.H{"role": role, "company": company})
		return
	}
	var user database.User
	if err := h.db.WithContext(ctx).First(&user, id).Error; err != nil {
		RespondError(c, notFoundOrPersistence(err, "user not found"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"role": roleOf(user), "user": user})
}

func (h *AuthHandler) replyWithTokenPair(c *gin.Context, status int, p auth.Principal) {
	pair, err := h.authService.GenerateTokenPair(p)
	if err != nil {
		middleware.LoggerFromContext(c).Error("generate token pair failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(status, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(h.authService.AccessTokenTTL().Seconds()),
		Role:         p.Role,
	})
}

func roleOf(u database.User) string {
	switch u.UserType {
	case database.UserTypeAdmin:
		return auth.RoleAdmin
	case database.UserTypeConsultant:
		return auth.RoleConsultant
	default:
		return auth.RoleSeeker
	}
}

func notFoundOrPersistence(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errcode.NotFound(message)
	}
	return errcode.Persistence("failed to load record", err)
}
