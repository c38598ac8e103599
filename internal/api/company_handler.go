package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"jobgate/internal/api/middleware"
	"jobgate/internal/approval"
	"jobgate/internal/auth"
	"jobgate/internal/errcode"
	"jobgate/internal/storage"
)

const licenseLinkTTL = 15 * time.Minute

// CompanyHandler serves company registration requests, their review, and company credentials.
type CompanyHandler struct {
	approvals   *approval.Service
	authService *auth.AuthService
	store       storage.ObjectStore
	uploads     uploadGuard
	submissions rateLimiter
	logins      rateLimiter
}

// CompanyHandlerOptions carries the optional collaborators of CompanyHandler.
type CompanyHandlerOptions struct {
	Store           storage.ObjectStore
	Scanner         FileScanner
	MaxUploadBytes  int64
	Redis           redis.UniversalClient
	SubmissionLimit int
	LoginLimit      int
	Window          time.Duration
}

func NewCompanyHandler(approvals *approval.Service, authService *auth.AuthService, opts CompanyHandlerOptions) *CompanyHandler {
	return &CompanyHandler{
		approvals:   approvals,
		authService: authService,
		store:       opts.Store,
		uploads:     uploadGuard{scanner: opts.Scanner, maxBytes: opts.MaxUploadBytes},
		submissions: rateLimiter{client: opts.Redis, prefix: "rate:company-request:", limit: opts.SubmissionLimit, window: opts.Window},
		logins:      rateLimiter{client: opts.Redis, prefix: "rate:company-login:", limit: opts.LoginLimit, window: opts.Window},
	}
}

type companyRequestBody struct {
	Name          string `json:"name" form:"name"`
	Email         string `json:"email" form:"email"`
	Phone         string `json:"phone" form:"phone"`
	LicenseDocURL string `json:"license_doc_url" form:"license_doc_url"`
	Description   string `json:"description" form:"description"`
	LogoURL       string `json:"logo_url" form:"logo_url"`
}

// SubmitRequest accepts a public registration request as JSON or multipart with a license_doc file.
func (h *CompanyHandler) SubmitRequest(c *gin.Context) {
	ctx := c.Request.Context()
	if !h.submissions.allow(ctx, c.ClientIP()) {
		TooManyRequests(c)
		return
	}

	var body companyRequestBody
	if err := c.ShouldBind(&body); err != nil {
		BadRequest(c, err.Error())
		return
	}

	var uploadedKey string
	if c.ContentType() == gin.MIMEMultipartPOSTForm {
		file, err := h.uploads.receive(c, "license_doc", documentExtension)
		if err != nil {
			RespondError(c, err)
			return
		}
		if file != nil {
			if h.store == nil {
				RespondError(c, errcode.Persistence("file storage is not configured", nil))
				return
			}
			reader, err := file.Open()
			if err != nil {
				RespondError(c, errcode.Wrap(errcode.KindPersistence, "failed to open file", err))
				return
			}
			key := storage.ObjectKey("licenses", file.Filename)
			err = h.store.UploadFile(ctx, key, reader, file.Size, contentTypeOf(file))
			reader.Close()
			if err != nil {
				RespondError(c, errcode.Persistence("failed to store license document", err))
				return
			}
			uploadedKey = key
			body.LicenseDocURL = key
		}
	}

	req, err := h.approvals.Submit(ctx, approval.SubmitInput{
		Name:          body.Name,
		Email:         body.Email,
		Phone:         body.Phone,
		LicenseDocURL: body.LicenseDocURL,
		Description:   body.Description,
		LogoURL:       body.LogoURL,
	})
	if err != nil {
		if uploadedKey != "" {
			h.discard(ctx, c, uploadedKey)
		}
		RespondError(c, err)
		return
	}

	middleware.LoggerFromContext(c).Info("company request submitted", slog.Uint64("request_id", uint64(req.ID)))
	c.JSON(http.StatusCreated, req)
}

func (h *CompanyHandler) discard(ctx context.Context, c *gin.Context, key string) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := h.store.DeleteObject(dctx, key); err != nil {
		middleware.LoggerFromContext(c).Error("delete orphaned license document failed",
			slog.String("object_key", key),
			slog.Any("error", err),
		)
	}
}

// ListRequests lists registration requests for admins.
func (h *CompanyHandler) ListRequests(c *gin.Context) {
	reqs, err := h.approvals.List(c.Request.Context(), c.Query("status"))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": reqs})
}

// GetRequest returns one request and, for stored documents, a short-lived download link.
func (h *CompanyHandler) GetRequest(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	req, err := h.approvals.Get(ctx, id)
	if err != nil {
		RespondError(c, err)
		return
	}

	resp := gin.H{"request": req}
	if h.store != nil && req.LicenseDocURL != "" && !strings.HasPrefix(req.LicenseDocURL, "http") {
		link, err := h.store.GeneratePresignedURL(ctx, req.LicenseDocURL, licenseLinkTTL)
		if err != nil {
			middleware.LoggerFromContext(c).Warn("sign license document failed", slog.Any("error", err))
		} else {
			resp["license_doc_link"] = link
		}
	}
	c.JSON(http.StatusOK, resp)
}

// ApproveRequest approves a pending request and creates its company.
func (h *CompanyHandler) ApproveRequest(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	result, err := h.approvals.Approve(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	middleware.LoggerFromContext(c).Info("company request approved",
		slog.Uint64("request_id", uint64(id)),
		slog.Uint64("company_id", uint64(result.Company.ID)),
	)
	c.JSON(http.StatusOK, result)
}

type rejectBody struct {
	AdminReviewNotes string `json:"admin_review_notes"`
}

// RejectRequest rejects a pending request with mandatory review notes.
func (h *CompanyHandler) RejectRequest(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var body rejectBody
	if err := c.ShouldBindJSON(&body); err != nil {
		BadRequest(c, err.Error())
		return
	}
	req, err := h.approvals.Reject(c.Request.Context(), id, body.AdminReviewNotes)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

type setPasswordBody struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// SetPassword consumes the approval token and sets the company password.
func (h *CompanyHandler) SetPassword(c *gin.Context) {
	var body setPasswordBody
	if err := c.ShouldBindJSON(&body); err != nil {
		BadRequest(c, err.Error())
		return
	}
	company, err := h.approvals.SetPassword(c.Request.Context(), body.Token, body.Password)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"company_id": company.ID, "email": company.Email})
}

type companyLoginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login issues a company-scoped token pair.
func (h *CompanyHandler) Login(c *gin.Context) {
	ctx := c.Request.Context()
	if !h.logins.allow(ctx, c.ClientIP()) {
		TooManyRequests(c)
		return
	}
	var body companyLoginBody
	if err := c.ShouldBindJSON(&body); err != nil {
		BadRequest(c, err.Error())
		return
	}
	company, err := h.approvals.Authenticate(ctx, body.Email, body.Password)
	if err != nil {
		RespondError(c, err)
		return
	}

	principal := auth.Principal{ID: company.ID, Role: auth.RoleCompany}
	pair, err := h.authService.GenerateTokenPair(principal)
	if err != nil {
		middleware.LoggerFromContext(c).Error("generate token pair failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(h.authService.AccessTokenTTL().Seconds()),
		Role:         principal.Role,
	})
}

type changePasswordBody struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// ChangePassword replaces the password of the authenticated company.
func (h *CompanyHandler) ChangePassword(c *gin.Context) {
	company, ok := middleware.CompanyFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	var body changePasswordBody
	if err := c.ShouldBindJSON(&body); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if err := h.approvals.ChangePassword(c.Request.Context(), company.ID, body.OldPassword, body.NewPassword); err != nil {
		RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Profile returns the authenticated company.
func (h *CompanyHandler) Profile(c *gin.Context) {
	company, ok := middleware.CompanyFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	c.JSON(http.StatusOK, company)
}
