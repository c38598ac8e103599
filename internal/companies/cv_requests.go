package companies

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"jobgate/internal/database"
	"jobgate/internal/errcode"
	"jobgate/internal/metrics"
)

// MaxCVCount bounds how many CVs one request may ask for.
const MaxCVCount = 100

// CVRequestInput asks for cv_count CVs matching requested_role.
type CVRequestInput struct {
	RequestedRole   string
	CVCount         int
	ExperienceYears *int
	Skills          []string
	Location        string
}

func (in *CVRequestInput) normalize() {
	in.RequestedRole = strings.TrimSpace(in.RequestedRole)
	in.Location = strings.TrimSpace(in.Location)
	skills := make([]string, 0, len(in.Skills))
	for _, skill := range in.Skills {
		if skill = strings.TrimSpace(skill); skill != "" {
			skills = append(skills, skill)
		}
	}
	in.Skills = skills
}

func (in CVRequestInput) validate() error {
	if in.RequestedRole == "" || in.CVCount == 0 {
		return errcode.Validation("requested_role and cv_count are required")
	}
	if in.CVCount < 0 || in.CVCount > MaxCVCount {
		return errcode.Validation(fmt.Sprintf("cv_count must be between 1 and %d", MaxCVCount))
	}
	if in.ExperienceYears != nil && *in.ExperienceYears < 0 {
		return errcode.Validation("experience_years cannot be negative")
	}
	return nil
}

// CreateCVRequest records an open CV request for the company.
func (s *Service) CreateCVRequest(ctx context.Context, companyID uint, in CVRequestInput) (*database.CompanyCVRequest, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}
	req := database.CompanyCVRequest{
		CompanyID:       companyID,
		RequestedRole:   in.RequestedRole,
		ExperienceYears: in.ExperienceYears,
		Skills:          in.Skills,
		Location:        in.Location,
		CVCount:         in.CVCount,
		Status:          database.CVRequestOpen,
	}
	if err := s.db.WithContext(ctx).Create(&req).Error; err != nil {
		return nil, errcode.Persistence("failed to create cv request", err)
	}
	metrics.ObserveTransition("cv_request", string(database.CVRequestOpen))
	s.logger.Info("cv request created",
		slog.Uint64("company_id", uint64(companyID)),
		slog.Uint64("cv_request_id", uint64(req.ID)),
	)
	return &req, nil
}

// ListCVRequests returns the company's CV requests, newest first.
func (s *Service) ListCVRequests(ctx context.Context, companyID uint) ([]database.CompanyCVRequest, error) {
	var reqs []database.CompanyCVRequest
	err := s.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("created_at DESC, id DESC").
		Find(&reqs).Error
	if err != nil {
		return nil, errcode.Persistence("failed to list cv requests", err)
	}
	return reqs, nil
}

// ListOpenCVRequests returns every open CV request with its company, oldest first.
func (s *Service) ListOpenCVRequests(ctx context.Context) ([]database.CompanyCVRequest, error) {
	var reqs []database.CompanyCVRequest
	err := s.db.WithContext(ctx).
		Preload("Company").
		Where("status = ?", database.CVRequestOpen).
		Order("created_at, id").
		Find(&reqs).Error
	if err != nil {
		return nil, errcode.Persistence("failed to list cv requests", err)
	}
	return reqs, nil
}

// FulfillCVRequest marks an open CV request fulfilled.
func (s *Service) FulfillCVRequest(ctx context.Context, id uint) (*database.CompanyCVRequest, error) {
	db := s.db.WithContext(ctx)
	res := db.Model(&database.CompanyCVRequest{}).
		Where("id = ? AND status = ?", id, database.CVRequestOpen).
		Update("status", database.CVRequestFulfilled)
	if res.Error != nil {
		return nil, errcode.Persistence("failed to update cv request", res.Error)
	}

	var req database.CompanyCVRequest
	if err := db.First(&req, id).Error; err != nil {
		return nil, notFoundOr(err, "cv request not found", "load cv request")
	}
	if res.RowsAffected != 1 {
		return nil, errcode.State(fmt.Sprintf("cv request is already %s", req.Status))
	}
	metrics.ObserveTransition("cv_request", string(database.CVRequestFulfilled))
	return &req, nil
}
