// Package approval implements the company registration request lifecycle.
//
// A request moves pending -> approved or pending -> rejected and is terminal afterwards.
// Approval creates the Company in the same transaction as the status change.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"gorm.io/gorm"

	"jobgate/internal/auth"
	"jobgate/internal/config"
	"jobgate/internal/database"
	"jobgate/internal/errcode"
	"jobgate/internal/metrics"
	"jobgate/internal/notify"
)

const setPasswordTokenBytes = 32

// Service runs request transitions and company credential setup.
type Service struct {
	db       *gorm.DB
	notifier notify.Sender
	cfg      config.CompanyConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewService wires the lifecycle. notifier may be nil, in which case no email is sent.
func NewService(db *gorm.DB, notifier notify.Sender, cfg config.CompanyConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 72 * time.Hour
	}
	return &Service{db: db, notifier: notifier, cfg: cfg, logger: logger, now: time.Now}
}

// SubmitInput is a public registration request.
type SubmitInput struct {
	Name          string
	Email         string
	Phone         string
	LicenseDocURL string
	Description   string
	LogoURL       string
}

func (in *SubmitInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = auth.NormalizeEmail(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.LicenseDocURL = strings.TrimSpace(in.LicenseDocURL)
	in.Description = strings.TrimSpace(in.Description)
	in.LogoURL = strings.TrimSpace(in.LogoURL)
}

func (in SubmitInput) validate() error {
	if in.Name == "" || in.Email == "" || in.Phone == "" || in.LicenseDocURL == "" {
		return errcode.Validation("name, email, phone and license_doc_url are required")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return errcode.Validation("email is not a valid address")
	}
	return nil
}

// Submit records a pending request unless the email already belongs to an approved
// company or to another pending request.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*database.CompanyRequest, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)

	var companies int64
	if err := db.Model(&database.Company{}).Where("email = ?", in.Email).Count(&companies).Error; err != nil {
		return nil, errcode.Persistence("failed to check existing companies", err)
	}
	if companies > 0 {
		return nil, errcode.Conflict("email is already registered as an approved company").WithStatus(http.StatusBadRequest)
	}

	var pending int64
	if err := db.Model(&database.CompanyRequest{}).
		Where("email = ? AND status = ?", in.Email, database.RequestPending).
		Count(&pending).Error; err != nil {
		return nil, errcode.Persistence("failed to check pending requests", err)
	}
	if pending > 0 {
		return nil, errcode.Conflict("a pending request already exists for this email").WithStatus(http.StatusBadRequest)
	}

	req := database.CompanyRequest{
		Name:          in.Name,
		Email:         in.Email,
		Phone:         in.Phone,
		LicenseDocURL: in.LicenseDocURL,
		Description:   in.Description,
		LogoURL:       in.LogoURL,
		Status:        database.RequestPending,
	}
	if err := db.Create(&req).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return nil, errcode.Wrap(errcode.KindConflict, "a company request with this email already exists", err).WithStatus(http.StatusBadRequest)
		}
		return nil, errcode.Persistence("failed to create company request", err)
	}

	metrics.ObserveTransition("company_request", string(database.RequestPending))
	return &req, nil
}

// ApprovalResult is the outcome of a committed approval.
type ApprovalResult struct {
	Request *database.CompanyRequest `json:"request"`
	Company *database.Company        `json:"company"`
}

// Approve creates the Company and marks the request approved in one transaction.
func (s *Service) Approve(ctx context.Context, requestID uint) (*ApprovalResult, error) {
	token, err := auth.RandomToken(setPasswordTokenBytes)
	if err != nil {
		return nil, errcode.Persistence("failed to generate set-password token", err)
	}
	now := s.now()
	expires := now.Add(s.cfg.TokenTTL)

	var (
		req     database.CompanyRequest
		company database.Company
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := loadRequest(tx, requestID, &req); err != nil {
			return err
		}
		if req.Status != database.RequestPending {
			return errcode.State(fmt.Sprintf("request has already been %s", req.Status))
		}

		company = database.Company{
			Name:               req.Name,
			Email:              req.Email,
			Phone:              req.Phone,
			Description:        req.Description,
			LogoURL:            req.LogoURL,
			LicenseDocURL:      req.LicenseDocURL,
			IsApproved:         true,
			SetPasswordToken:   token,
			SetPasswordExpires: &expires,
		}
		if err := tx.Create(&company).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return errcode.Wrap(errcode.KindConflict, "a company with this email already exists", err)
			}
			return errcode.Persistence("failed to create company", err)
		}

		res := tx.Model(&database.CompanyRequest{}).
			Where("id = ? AND status = ?", req.ID, database.RequestPending).
			Updates(map[string]any{
				"status":              database.RequestApproved,
				"approved_company_id": company.ID,
				"reviewed_at":         now,
			})
		if res.Error != nil {
			return errcode.Persistence("failed to update company request", res.Error)
		}
		if res.RowsAffected != 1 {
			return errcode.State("request is no longer pending")
		}

		req.Status = database.RequestApproved
		req.ApprovedCompanyID = &company.ID
		req.ReviewedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ObserveTransition("company_request", string(database.RequestApproved))
	s.sendSetPasswordEmail(ctx, company, token)

	return &ApprovalResult{Request: &req, Company: &company}, nil
}

// Reject marks a pending request rejected with the reviewer's notes.
func (s *Service) Reject(ctx context.Context, requestID uint, reviewNotes string) (*database.CompanyRequest, error) {
	db := s.db.WithContext(ctx)

	var req database.CompanyRequest
	if err := loadRequest(db, requestID, &req); err != nil {
		return nil, err
	}
	if req.Status != database.RequestPending {
		return nil, errcode.State(fmt.Sprintf("request has already been %s", req.Status))
	}
	reviewNotes = strings.TrimSpace(reviewNotes)
	if reviewNotes == "" {
		return nil, errcode.Validation("admin_review_notes is required when rejecting a request")
	}

	now := s.now()
	res := db.Model(&database.CompanyRequest{}).
		Where("id = ? AND status = ?", req.ID, database.RequestPending).
		Updates(map[string]any{
			"status":             database.RequestRejected,
			"admin_review_notes": reviewNotes,
			"reviewed_at":        now,
		})
	if res.Error != nil {
		return nil, errcode.Persistence("failed to update company request", res.Error)
	}
	if res.RowsAffected != 1 {
		return nil, errcode.State("request is no longer pending")
	}

	req.Status = database.RequestRejected
	req.AdminReviewNotes = reviewNotes
	req.ReviewedAt = &now
	metrics.ObserveTransition("company_request", string(database.RequestRejected))
	return &req, nil
}

// List returns requests newest first, optionally filtered by status.
func (s *Service) List(ctx context.Context, status string) ([]database.CompanyRequest, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC, id DESC")
	if status != "" {
		switch database.RequestStatus(status) {
		case database.RequestPending, database.RequestApproved, database.RequestRejected:
			q = q.Where("status = ?", status)
		default:
			return nil, errcode.Validation(fmt.Sprintf("unknown status %q", status))
		}
	}
	var reqs []database.CompanyRequest
	if err := q.Find(&reqs).Error; err != nil {
		return nil, errcode.Persistence("failed to list company requests", err)
	}
	return reqs, nil
}

// Get returns a single request with its approved company, if any.
func (s *Service) Get(ctx context.Context, requestID uint) (*database.CompanyRequest, error) {
	var req database.CompanyRequest
	if err := loadRequest(s.db.WithContext(ctx).Preload("ApprovedCompany"), requestID, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func loadRequest(db *gorm.DB, id uint, out *database.CompanyRequest) error {
	if err := db.First(out, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errcode.NotFound("company request not found")
		}
		return errcode.Persistence("failed to load company request", err)
	}
	return nil
}

// redactedToken stands in for the set-password token in stored email bodies.
const redactedToken = "[redacted]"

func (s *Service) sendSetPasswordEmail(ctx context.Context, company database.Company, token string) {
	if s.notifier == nil {
		return
	}
	body := func(link string) string {
		return fmt.Sprintf(
			"Hello %s,\n\nYour company registration has been approved. Set your account password here:\n%s\n\nThe link expires in %s.\n",
			company.Name, link, s.cfg.TokenTTL,
		)
	}
	res, err := s.notifier.Notify(ctx, notify.Message{
		Channel:   notify.ChannelEmail,
		Email:     company.Email,
		CompanyID: &company.ID,
		Subject:   "Your company account has been approved",
		Body:      body(s.cfg.SetPasswordURL + "?token=" + token),
		AuditBody: body(s.cfg.SetPasswordURL + "?token=" + redactedToken),
	})
	if err != nil {
		s.logger.Warn("set-password email rejected", slog.Uint64("company_id", uint64(company.ID)), slog.Any("error", err))
		return
	}
	if !res.Delivered() {
		s.logger.Warn("set-password email not delivered",
			slog.Uint64("company_id", uint64(company.ID)),
			slog.String("status", res.Status),
		)
	}
}
