// Package companies serves the company directory, admin company management,
// the company dashboard and company CV requests.
//
// Companies are only created by approving a registration request; this package
// reads, edits and removes them.
package companies

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"gorm.io/gorm"

	"jobgate/internal/auth"
	"jobgate/internal/database"
	"jobgate/internal/errcode"
	"jobgate/internal/metrics"
	"jobgate/internal/storage"
)

const logoLinkTTL = 24 * time.Hour

// Service reads and edits Company rows and their logos.
type Service struct {
	db     *gorm.DB
	store  storage.ObjectStore
	logger *slog.Logger
}

// NewService wires the service. store may be nil, in which case logo uploads fail.
func NewService(db *gorm.DB, store storage.ObjectStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, store: store, logger: logger}
}

func notFoundOr(err error, message, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errcode.NotFound(message)
	}
	return errcode.Persistence("failed to "+op, err)
}

// storedKey reports whether ref is an object key rather than an external URL.
func storedKey(ref string) bool {
	return ref != "" && !strings.Contains(ref, "://")
}

// withLogoLink replaces a stored logo key with a signed link.
func (s *Service) withLogoLink(ctx context.Context, c *database.Company) {
	if !storedKey(c.LogoURL) || s.store == nil {
		return
	}
	link, err := s.store.GeneratePresignedURL(ctx, c.LogoURL, logoLinkTTL)
	if err != nil {
		s.logger.Warn("sign company logo failed",
			slog.Uint64("company_id", uint64(c.ID)),
			slog.Any("error", err),
		)
		c.LogoURL = ""
		return
	}
	c.LogoURL = link
}

func (s *Service) discardObject(ctx context.Context, key string) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.store.DeleteObject(dctx, key); err != nil {
		s.logger.Error("delete company object failed",
			slog.String("object_key", key),
			slog.Any("error", err),
		)
	}
}

// DirectoryFilter narrows the public company directory.
type DirectoryFilter struct {
	Query  string
	Limit  int
	Offset int
}

// ListApproved is the public directory; unapproved companies are never listed.
// License documents are withheld.
func (s *Service) ListApproved(ctx context.Context, f DirectoryFilter) ([]database.Company, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	q := s.db.WithContext(ctx).Where("is_approved = ?", true)
	if term := strings.ToLower(strings.TrimSpace(f.Query)); term != "" {
		like := "%" + term + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", like, like)
	}

	var companies []database.Company
	if err := q.Order("name, id").Limit(f.Limit).Offset(f.Offset).Find(&companies).Error; err != nil {
		return nil, errcode.Persistence("failed to list companies", err)
	}
	for i := range companies {
		companies[i].LicenseDocURL = ""
		s.withLogoLink(ctx, &companies[i])
	}
	return companies, nil
}

// PublicProfile is an approved company with its open postings.
type PublicProfile struct {
	database.Company
	OpenJobs []database.JobPosting `json:"open_jobs"`
}

// GetApproved returns an approved company and its open postings.
func (s *Service) GetApproved(ctx context.Context, id uint) (*PublicProfile, error) {
	db := s.db.WithContext(ctx)
	var company database.Company
	if err := db.Where("id = ? AND is_approved = ?", id, true).First(&company).Error; err != nil {
		return nil, notFoundOr(err, "company not found", "load company")
	}
	company.LicenseDocURL = ""
	s.withLogoLink(ctx, &company)

	out := &PublicProfile{Company: company, OpenJobs: []database.JobPosting{}}
	err := db.Where("company_id = ? AND status = ?", id, database.JobOpen).
		Order("created_at DESC, id DESC").
		Find(&out.OpenJobs).Error
	if err != nil {
		return nil, errcode.Persistence("failed to list company postings", err)
	}
	return out, nil
}

// ListAll returns every company for admins, optionally filtered by approval.
func (s *Service) ListAll(ctx context.Context, approved *bool) ([]database.Company, error) {
	q := s.db.WithContext(ctx)
	if approved != nil {
		q = q.Where("is_approved = ?", *approved)
	}
	var companies []database.Company
	if err := q.Order("created_at DESC, id DESC").Find(&companies).Error; err != nil {
		return nil, errcode.Persistence("failed to list companies", err)
	}
	for i := range companies {
		s.withLogoLink(ctx, &companies[i])
	}
	return companies, nil
}

// Get returns any company, approved or not.
func (s *Service) Get(ctx context.Context, id uint) (*database.Company, error) {
	var company database.Company
	if err := s.db.WithContext(ctx).First(&company, id).Error; err != nil {
		return nil, notFoundOr(err, "company not found", "load company")
	}
	s.withLogoLink(ctx, &company)
	return &company, nil
}

// UpdateInput is an admin edit. Nil fields are left unchanged.
type UpdateInput struct {
	Name        *string
	Email       *string
	Phone       *string
	Description *string
	LogoURL     *string
	IsApproved  *bool
}

func (in UpdateInput) columns() (map[string]any, error) {
	updates := map[string]any{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, errcode.Validation("name cannot be empty")
		}
		updates["name"] = name
	}
	if in.Email != nil {
		email := auth.NormalizeEmail(*in.Email)
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, errcode.Validation("email is not a valid address")
		}
		updates["email"] = email
	}
	if in.Phone != nil {
		updates["phone"] = strings.TrimSpace(*in.Phone)
	}
	if in.Description != nil {
		updates["description"] = strings.TrimSpace(*in.Description)
	}
	if in.LogoURL != nil {
		updates["logo_url"] = strings.TrimSpace(*in.LogoURL)
	}
	if in.IsApproved != nil {
		updates["is_approved"] = *in.IsApproved
	}
	return updates, nil
}

// Update applies an admin edit. Clearing is_approved suspends the company's
// authenticated routes without removing its data.
func (s *Service) Update(ctx context.Context, id uint, in UpdateInput) (*database.Company, error) {
	updates, err := in.columns()
	if err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	var company database.Company
	if err := db.First(&company, id).Error; err != nil {
		return nil, notFoundOr(err, "company not found", "load company")
	}
	if len(updates) == 0 {
		s.withLogoLink(ctx, &company)
		return &company, nil
	}
	wasApproved := company.IsApproved

	if err := db.Model(&company).Updates(updates).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return nil, errcode.Conflict("email is already used by another company")
		}
		return nil, errcode.Persistence("failed to update company", err)
	}
	if err := db.First(&company, id).Error; err != nil {
		return nil, errcode.Persistence("failed to reload company", err)
	}
	switch {
	case wasApproved && !company.IsApproved:
		metrics.ObserveTransition("company", "suspended")
	case !wasApproved && company.IsApproved:
		metrics.ObserveTransition("company", "approved")
	}
	s.withLogoLink(ctx, &company)
	return &company, nil
}

// Delete removes a company with its postings, their forms and applications, and
// its CV requests. The originating registration request is kept and unlinked.
func (s *Service) Delete(ctx context.Context, id uint) error {
	var company database.Company
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&company, id).Error; err != nil {
			return notFoundOr(err, "company not found", "load company")
		}

		jobIDs := tx.Model(&database.JobPosting{}).Select("id").Where("company_id = ?", id)
		formIDs := tx.Model(&database.JobForm{}).Select("id").Where("job_id IN (?)", jobIDs)

		if err := tx.Where("job_id IN (?)", jobIDs).Delete(&database.Application{}).Error; err != nil {
			return errcode.Persistence("failed to delete applications", err)
		}
		if err := tx.Where("form_id IN (?)", formIDs).Delete(&database.JobFormField{}).Error; err != nil {
			return errcode.Persistence("failed to delete form fields", err)
		}
		if err := tx.Where("job_id IN (?)", jobIDs).Delete(&database.JobForm{}).Error; err != nil {
			return errcode.Persistence("failed to delete forms", err)
		}
		if err := tx.Where("company_id = ?", id).Delete(&database.JobPosting{}).Error; err != nil {
			return errcode.Persistence("failed to delete job postings", err)
		}
		if err := tx.Where("company_id = ?", id).Delete(&database.CompanyCVRequest{}).Error; err != nil {
			return errcode.Persistence("failed to delete cv requests", err)
		}
		if err := tx.Model(&database.CompanyRequest{}).
			Where("approved_company_id = ?", id).
			Update("approved_company_id", nil).Error; err != nil {
			return errcode.Persistence("failed to unlink company request", err)
		}
		if err := tx.Delete(&database.Company{}, id).Error; err != nil {
			return errcode.Persistence("failed to delete company", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	metrics.ObserveTransition("company", "deleted")
	if s.store != nil && storedKey(company.LogoURL) {
		s.discardObject(ctx, company.LogoURL)
	}
	s.logger.Info("company deleted", slog.Uint64("company_id", uint64(id)))
	return nil
}

// Profile returns the company's own record.
func (s *Service) Profile(ctx context.Context, companyID uint) (*database.Company, error) {
	return s.Get(ctx, companyID)
}

// ProfileInput is a company's edit of its own public fields. Nil fields are left unchanged.
type ProfileInput struct {
	Name        *string
	Phone       *string
	Description *string
}

// Logo is an uploaded logo file.
type Logo struct {
	FileName    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// UpdateProfile edits the company's own fields and optionally replaces its logo.
// A replaced stored logo is removed after the row is updated.
func (s *Service) UpdateProfile(ctx context.Context, companyID uint, in ProfileInput, logo *Logo) (*database.Company, error) {
	updates, err := UpdateInput{Name: in.Name, Phone: in.Phone, Description: in.Description}.columns()
	if err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	var company database.Company
	if err := db.First(&company, companyID).Error; err != nil {
		return nil, notFoundOr(err, "company not found", "load company")
	}
	previousLogo := company.LogoURL

	var uploadedKey string
	if logo != nil {
		if s.store == nil {
			return nil, errcode.Persistence("file storage is not configured", nil)
		}
		key := storage.ObjectKey(fmt.Sprintf("logos/%d", companyID), logo.FileName)
		if err := s.store.UploadFile(ctx, key, logo.Reader, logo.Size, logo.ContentType); err != nil {
			return nil, errcode.Persistence("failed to store logo", err)
		}
		uploadedKey = key
		updates["logo_url"] = key
	}

	if len(updates) > 0 {
		if err := db.Model(&company).Updates(updates).Error; err != nil {
			if uploadedKey != "" {
				s.discardObject(ctx, uploadedKey)
			}
			return nil, errcode.Persistence("failed to update company profile", err)
		}
	}
	if uploadedKey != "" && storedKey(previousLogo) {
		s.discardObject(ctx, previousLogo)
	}
	return s.Get(ctx, companyID)
}
