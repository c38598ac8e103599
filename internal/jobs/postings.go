package jobs

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"gorm.io/gorm"

	"jobgate/internal/database"
	"jobgate/internal/errcode"
	"jobgate/internal/metrics"
)

// FieldInput describes one internal form field.
type FieldInput struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	IsRequired  bool               `json:"is_required"`
	InputType   database.InputType `json:"input_type"`
	Options     []string           `json:"options"`
}

// PostingInput is the payload of createJobPosting.
type PostingInput struct {
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	Requirements    string            `json:"requirements"`
	SalaryMin       *float64          `json:"salary_min"`
	SalaryMax       *float64          `json:"salary_max"`
	Location        string            `json:"location"`
	FormType        database.FormType `json:"form_type"`
	ExternalFormURL string            `json:"external_form_url"`
	RequireCV       *bool             `json:"require_cv"`
	FormFields      []FieldInput      `json:"form_fields"`
}

func (in *PostingInput) normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Requirements = strings.TrimSpace(in.Requirements)
	in.Location = strings.TrimSpace(in.Location)
	in.ExternalFormURL = strings.TrimSpace(in.ExternalFormURL)
}

func (in PostingInput) validate() error {
	if in.Title == "" || in.Description == "" || in.FormType == "" {
		return errcode.Validation("title, description and form_type are required")
	}
	if err := validateSalary(in.SalaryMin, in.SalaryMax); err != nil {
		return err
	}
	switch in.FormType {
	case database.FormExternalLink:
		if err := validateExternalURL(in.ExternalFormURL); err != nil {
			return err
		}
		if len(in.FormFields) > 0 {
			return errcode.Validation("form_fields are only allowed for internal_form postings")
		}
	case database.FormInternal:
		return validateFields(in.FormFields)
	default:
		return errcode.Validation(fmt.Sprintf("unsupported form_type %q", in.FormType))
	}
	return nil
}

func validateSalary(minimum, maximum *float64) error {
	if (minimum != nil && *minimum < 0) || (maximum != nil && *maximum < 0) {
		return errcode.Validation("salary must not be negative")
	}
	if minimum != nil && maximum != nil && *minimum > *maximum {
		return errcode.Validation("salary_min must not exceed salary_max")
	}
	return nil
}

func validateExternalURL(raw string) error {
	if raw == "" {
		return errcode.Validation("external_form_url is required for external_link postings")
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errcode.Validation("external_form_url must be an http(s) url")
	}
	return nil
}

func validateFields(fields []FieldInput) error {
	for i, f := range fields {
		if strings.TrimSpace(f.Title) == "" {
			return errcode.Validation(fmt.Sprintf("form_fields[%d].title is required", i))
		}
		if !f.InputType.Valid() {
			return errcode.Validation(fmt.Sprintf("form_fields[%d].input_type %q is not supported", i, f.InputType))
		}
		if f.InputType == database.InputSelect && len(f.Options) == 0 {
			return errcode.Validation(fmt.Sprintf("form_fields[%d] of type select needs options", i))
		}
	}
	return nil
}

func buildFields(formID uint, fields []FieldInput) []database.JobFormField {
	out := make([]database.JobFormField, 0, len(fields))
	for i, f := range fields {
		field := database.JobFormField{
			FormID:      formID,
			Title:       strings.TrimSpace(f.Title),
			Description: strings.TrimSpace(f.Description),
			IsRequired:  f.IsRequired,
			InputType:   f.InputType,
			Position:    i,
		}
		if f.InputType == database.InputSelect {
			field.Options = f.Options
		}
		out = append(out, field)
	}
	return out
}

// createForm inserts the form and its fields using tx.
func createForm(tx *gorm.DB, jobID uint, requireCV *bool, fields []FieldInput) (*database.JobForm, error) {
	form := database.JobForm{JobID: jobID, RequireCV: true}
	if requireCV != nil {
		form.RequireCV = *requireCV
	}
	if err := tx.Create(&form).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return nil, errcode.Wrap(errcode.KindConflict, "job posting already has a form", err)
		}
		return nil, errcode.Persistence("failed to create job form", err)
	}
	if len(fields) > 0 {
		rows := buildFields(form.ID, fields)
		if err := tx.Create(&rows).Error; err != nil {
			return nil, errcode.Persistence("failed to create job form fields", err)
		}
		form.Fields = rows
	}
	return &form, nil
}

// CreatePosting creates an open posting and, for internal_form, its form and fields.
// Everything is written in one transaction.
func (s *Service) CreatePosting(ctx context.Context, companyID uint, in PostingInput) (*database.JobPosting, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}

	job := database.JobPosting{
		CompanyID:    companyID,
		Title:        in.Title,
		Description:  in.Description,
		Requirements: in.Requirements,
		SalaryMin:    in.SalaryMin,
		SalaryMax:    in.SalaryMax,
		Location:     in.Location,
		Status:       database.JobOpen,
		FormType:     in.FormType,
	}
	if in.FormType == database.FormExternalLink {
		job.ExternalFormURL = in.ExternalFormURL
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&job).Error; err != nil {
			return errcode.Persistence("failed to create job posting", err)
		}
		if in.FormType != database.FormInternal {
			return nil
		}
		form, err := createForm(tx, job.ID, in.RequireCV, in.FormFields)
		if err != nil {
			return err
		}
		job.Form = form
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ObserveTransition("job_posting", string(database.JobOpen))
	return &job, nil
}

// ToggleStatus flips open and closed. The job must belong to companyID.
func (s *Service) ToggleStatus(ctx context.Context, companyID, jobID uint) (*database.JobPosting, error) {
	var job database.JobPosting
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND company_id = ?", jobID, companyID).First(&job).Error; err != nil {
			return notFoundOr(err, "job posting not found", "load job posting")
		}
		next := database.JobClosed
		if job.Status != database.JobOpen {
			next = database.JobOpen
		}
		res := tx.Model(&database.JobPosting{}).
			Where("id = ? AND status = ?", job.ID, job.Status).
			Update("status", next)
		if res.Error != nil {
			return errcode.Persistence("failed to update job status", res.Error)
		}
		if res.RowsAffected != 1 {
			return errcode.State("job status changed concurrently, retry")
		}
		job.Status = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.ObserveTransition("job_posting", string(job.Status))
	return &job, nil
}

// UpdateInput carries the editable posting fields. Nil means unchanged.
type UpdateInput struct {
	Title           *string            `json:"title"`
	Description     *string            `json:"description"`
	Requirements    *string            `json:"requirements"`
	SalaryMin       *float64           `json:"salary_min"`
	SalaryMax       *float64           `json:"salary_max"`
	Location        *string            `json:"location"`
	FormType        *database.FormType `json:"form_type"`
	ExternalFormURL *string            `json:"external_form_url"`
}

// UpdatePosting applies the allow-listed fields and re-checks form consistency.
func (s *Service) UpdatePosting(ctx context.Context, companyID, jobID uint, in UpdateInput) (*database.JobPosting, error) {
	var job database.JobPosting
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Form").Where("id = ? AND company_id = ?", jobID, companyID).First(&job).Error; err != nil {
			return notFoundOr(err, "job posting not found", "load job posting")
		}

		if in.Title != nil {
			job.Title = strings.TrimSpace(*in.Title)
		}
		if in.Description != nil {
			job.Description = strings.TrimSpace(*in.Description)
		}
		if in.Requirements != nil {
			job.Requirements = strings.TrimSpace(*in.Requirements)
		}
		if in.SalaryMin != nil {
			job.SalaryMin = in.SalaryMin
		}
		if in.SalaryMax != nil {
			job.SalaryMax = in.SalaryMax
		}
		if in.Location != nil {
			job.Location = strings.TrimSpace(*in.Location)
		}
		if in.FormType != nil {
			job.FormType = *in.FormType
		}
		if in.ExternalFormURL != nil {
			job.ExternalFormURL = strings.TrimSpace(*in.ExternalFormURL)
		}

		if job.Title == "" || job.Description == "" {
			return errcode.Validation("title and description must not be empty")
		}
		if err := validateSalary(job.SalaryMin, job.SalaryMax); err != nil {
			return err
		}
		switch job.FormType {
		case database.FormExternalLink:
			if err := validateExternalURL(job.ExternalFormURL); err != nil {
				return err
			}
		case database.FormInternal:
			if job.Form == nil {
				return errcode.Validation("create the internal form before switching to internal_form")
			}
			job.ExternalFormURL = ""
		default:
			return errcode.Validation(fmt.Sprintf("unsupported form_type %q", job.FormType))
		}

		if err := tx.Model(&job).Select(
			"title", "description", "requirements", "salary_min", "salary_max",
			"location", "form_type", "external_form_url",
		).Updates(&job).Error; err != nil {
			return errcode.Persistence("failed to update job posting", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// DeletePosting removes a posting that has no applications, together with its form.
func (s *Service) DeletePosting(ctx context.Context, companyID, jobID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job database.JobPosting
		if err := tx.Preload("Form").Where("id = ? AND company_id = ?", jobID, companyID).First(&job).Error; err != nil {
			return notFoundOr(err, "job posting not found", "load job posting")
		}
		var applications int64
		if err := tx.Model(&database.Application{}).Where("job_id = ?", job.ID).Count(&applications).Error; err != nil {
			return errcode.Persistence("failed to count applications", err)
		}
		if applications > 0 {
			return errcode.State("cannot delete a job posting that has applications, close it instead")
		}
		if job.Form != nil {
			if err := tx.Where("form_id = ?", job.Form.ID).Delete(&database.JobFormField{}).Error; err != nil {
				return errcode.Persistence("failed to delete job form fields", err)
			}
			if err := tx.Delete(job.Form).Error; err != nil {
				return errcode.Persistence("failed to delete job form", err)
			}
		}
		if err := tx.Delete(&job).Error; err != nil {
			return errcode.Persistence("failed to delete job posting", err)
		}
		return nil
	})
}

// FormInput is the payload of CreateForm.
type FormInput struct {
	RequireCV  *bool        `json:"require_cv"`
	FormFields []FieldInput `json:"form_fields"`
}

// CreateForm attaches an internal form to an existing posting and switches it to internal_form.
func (s *Service) CreateForm(ctx context.Context, companyID, jobID uint, in FormInput) (*database.JobForm, error) {
	if err := validateFields(in.FormFields); err != nil {
		return nil, err
	}

	var form *database.JobForm
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job database.JobPosting
		if err := tx.Where("id = ? AND company_id = ?", jobID, companyID).First(&job).Error; err != nil {
			return notFoundOr(err, "job posting not found", "load job posting")
		}
		var existing int64
		if err := tx.Model(&database.JobForm{}).Where("job_id = ?", job.ID).Count(&existing).Error; err != nil {
			return errcode.Persistence("failed to check job form", err)
		}
		if existing > 0 {
			return errcode.Conflict("job posting already has a form")
		}

		created, err := createForm(tx, job.ID, in.RequireCV, in.FormFields)
		if err != nil {
			return err
		}
		if err := tx.Model(&job).Updates(map[string]any{
			"form_type":         database.FormInternal,
			"external_form_url": "",
		}).Error; err != nil {
			return errcode.Persistence("failed to update job posting", err)
		}
		form = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return form, nil
}

func orderedFields(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC, id ASC")
}

// GetCompanyPosting returns one of the company's postings with form and applications.
func (s *Service) GetCompanyPosting(ctx context.Context, companyID, jobID uint) (*database.JobPosting, error) {
	var job database.JobPosting
	err := s.db.WithContext(ctx).
		Preload("Form.Fields", orderedFields).
		Preload("Applications", func(db *gorm.DB) *gorm.DB { return db.Order("created_at DESC") }).
		Where("id = ? AND company_id = ?", jobID, companyID).
		First(&job).Error
	if err != nil {
		return nil, notFoundOr(err, "job posting not found", "load job posting")
	}
	return &job, nil
}

// ListCompanyPostings returns the company's postings newest first.
func (s *Service) ListCompanyPostings(ctx context.Context, companyID uint) ([]database.JobPosting, error) {
	var jobs []database.JobPosting
	err := s.db.WithContext(ctx).
		Preload("Form.Fields", orderedFields).
		Preload("Applications", func(db *gorm.DB) *gorm.DB { return db.Order("created_at DESC") }).
		Where("company_id = ?", companyID).
		Order("created_at DESC, id DESC").
		Find(&jobs).Error
	if err != nil {
		return nil, errcode.Persistence("failed to list job postings", err)
	}
	return jobs, nil
}

// ListFilter narrows the public job listing.
type ListFilter struct {
	Query    string
	Location string
	Limit    int
	Offset   int
}

// ListOpenPostings is the public listing; closed postings are never returned.
func (s *Service) ListOpenPostings(ctx context.Context, f ListFilter) ([]database.JobPosting, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	q := s.db.WithContext(ctx).
		Preload("Company").
		Where("status = ?", database.JobOpen)
	if term := strings.ToLower(strings.TrimSpace(f.Query)); term != "" {
		like := "%" + term + "%"
		q = q.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", like, like)
	}
	if loc := strings.ToLower(strings.TrimSpace(f.Location)); loc != "" {
		q = q.Where("LOWER(location) LIKE ?", "%"+loc+"%")
	}

	var jobs []database.JobPosting
	if err := q.Order("created_at DESC, id DESC").Limit(f.Limit).Offset(f.Offset).Find(&jobs).Error; err != nil {
		return nil, errcode.Persistence("failed to list job postings", err)
	}
	return jobs, nil
}

// GetOpenPosting returns a public posting with its company and form.
func (s *Service) GetOpenPosting(ctx context.Context, jobID uint) (*database.JobPosting, error) {
	var job database.JobPosting
	err := s.db.WithContext(ctx).
		Preload("Company").
		Preload("Form.Fields", orderedFields).
		Where("id = ? AND status = ?", jobID, database.JobOpen).
		First(&job).Error
	if err != nil {
		return nil, notFoundOr(err, "job not found or not open", "load job posting")
	}
	return &job, nil
}
