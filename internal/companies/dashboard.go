package companies

import (
	"context"

	"jobgate/internal/database"
	"jobgate/internal/errcode"
)

const recentApplications = 5

// StatusCounts is a total with its breakdown by status.
type StatusCounts struct {
	Total    int64            `json:"total"`
	ByStatus map[string]int64 `json:"by_status"`
}

// Dashboard summarises a company's postings, applications and CV requests.
type Dashboard struct {
	Postings           StatusCounts           `json:"postings"`
	Applications       StatusCounts           `json:"applications"`
	OpenCVRequests     int64                  `json:"open_cv_requests"`
	RecentApplications []database.Application `json:"recent_applications"`
}

type statusCount struct {
	Status string
	Count  int64
}

func newStatusCounts(rows []statusCount, statuses ...string) StatusCounts {
	out := StatusCounts{ByStatus: make(map[string]int64, len(statuses))}
	for _, s := range statuses {
		out.ByStatus[s] = 0
	}
	for _, r := range rows {
		out.ByStatus[r.Status] = r.Count
		out.Total += r.Count
	}
	return out
}

// Dashboard counts the company's postings and applications by status and
// returns its latest applications.
func (s *Service) Dashboard(ctx context.Context, companyID uint) (*Dashboard, error) {
	db := s.db.WithContext(ctx)

	var postings []statusCount
	err := db.Model(&database.JobPosting{}).
		Select("status, COUNT(*) AS count").
		Where("company_id = ?", companyID).
		Group("status").
		Scan(&postings).Error
	if err != nil {
		return nil, errcode.Persistence("failed to count job postings", err)
	}

	var applications []statusCount
	err = db.Model(&database.Application{}).
		Select("applications.status AS status, COUNT(*) AS count").
		Joins("JOIN job_postings ON job_postings.id = applications.job_id").
		Where("job_postings.company_id = ?", companyID).
		Group("applications.status").
		Scan(&applications).Error
	if err != nil {
		return nil, errcode.Persistence("failed to count applications", err)
	}

	out := &Dashboard{
		Postings: newStatusCounts(postings, string(database.JobOpen), string(database.JobClosed)),
		Applications: newStatusCounts(applications,
			string(database.ApplicationPending),
			string(database.ApplicationReviewed),
			string(database.ApplicationAccepted),
			string(database.ApplicationRejected),
		),
		RecentApplications: []database.Application{},
	}

	err = db.Model(&database.CompanyCVRequest{}).
		Where("company_id = ? AND status = ?", companyID, database.CVRequestOpen).
		Count(&out.OpenCVRequests).Error
	if err != nil {
		return nil, errcode.Persistence("failed to count cv requests", err)
	}

	err = db.Joins("JOIN job_postings ON job_postings.id = applications.job_id").
		Where("job_postings.company_id = ?", companyID).
		Preload("User").
		Preload("Job").
		Order("applications.created_at DESC, applications.id DESC").
		Limit(recentApplications).
		Find(&out.RecentApplications).Error
	if err != nil {
		return nil, errcode.Persistence("failed to list recent applications", err)
	}
	return out, nil
}
