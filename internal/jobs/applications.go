package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"jobgate/internal/database"
	"jobgate/internal/errcode"
	"jobgate/internal/metrics"
	"jobgate/internal/notify"
	"jobgate/internal/storage"
)

// UploadedFile is a CV file received with an application.
type UploadedFile struct {
	FileName    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// ApplicationInput is the payload of SubmitApplication. Exactly one of CVID and File is used;
// File wins when both are present.
type ApplicationInput struct {
	UserID      uint
	JobID       uint
	CVID        *uint
	File        *UploadedFile
	CoverLetter string
	FormData    json.RawMessage
}

// ValidateFormData accepts an empty payload or a JSON object within MaxFormDataBytes.
// The content itself is never interpreted.
func ValidateFormData(raw json.RawMessage) (datatypes.JSON, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if len(trimmed) > MaxFormDataBytes {
		return nil, errcode.Validation(fmt.Sprintf("form_data must not exceed %d bytes", MaxFormDataBytes))
	}
	if trimmed[0] != '{' || !json.Valid(trimmed) {
		return nil, errcode.Validation("form_data must be a JSON object")
	}
	return datatypes.JSON(trimmed), nil
}

// SubmitApplication creates a pending application in one transaction. An uploaded CV is
// stored before the CV row is written and deleted again if the transaction rolls back.
func (s *Service) SubmitApplication(ctx context.Context, in ApplicationInput) (*database.Application, error) {
	if in.File == nil && in.CVID == nil {
		return nil, errcode.Validation("either cv_id or a cv file is required")
	}
	formData, err := ValidateFormData(in.FormData)
	if err != nil {
		return nil, err
	}
	if in.File != nil && s.store == nil {
		return nil, errcode.Persistence("file storage is not configured", nil)
	}

	var (
		app         database.Application
		uploadedKey string
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job database.JobPosting
		if err := tx.Where("id = ? AND status = ?", in.JobID, database.JobOpen).First(&job).Error; err != nil {
			return notFoundOr(err, "job not found or not open", "load job posting")
		}

		var existing int64
		if err := tx.Model(&database.Application{}).
			Where("user_id = ? AND job_id = ?", in.UserID, in.JobID).
			Count(&existing).Error; err != nil {
			return errcode.Persistence("failed to check existing applications", err)
		}
		if existing > 0 {
			return errcode.Conflict("you have already applied to this job")
		}

		var cvID uint
		if in.File != nil {
			key := storage.ObjectKey(fmt.Sprintf("cvs/%d", in.UserID), in.File.FileName)
			if err := s.store.UploadFile(ctx, key, in.File.Reader, in.File.Size, in.File.ContentType); err != nil {
				return errcode.Persistence("failed to store uploaded cv", err)
			}
			uploadedKey = key

			cv := database.CV{
				UserID:    in.UserID,
				FileName:  in.File.FileName,
				ObjectKey: key,
				FileType:  in.File.ContentType,
				FileSize:  in.File.Size,
			}
			if err := tx.Create(&cv).Error; err != nil {
				return errcode.Persistence("failed to create cv", err)
			}
			cvID = cv.ID
		} else {
			var cv database.CV
			if err := tx.Select("id", "user_id").First(&cv, *in.CVID).Error; err != nil {
				return notFoundOr(err, "cv not found", "load cv")
			}
			if cv.UserID != in.UserID {
				return errcode.Forbidden("cv does not belong to you")
			}
			cvID = cv.ID
		}

		app = database.Application{
			UserID:      in.UserID,
			JobID:       in.JobID,
			CVID:        &cvID,
			CoverLetter: strings.TrimSpace(in.CoverLetter),
			FormData:    formData,
			Status:      database.ApplicationPending,
		}
		if err := tx.Create(&app).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return errcode.Wrap(errcode.KindConflict, "you have already applied to this job", err)
			}
			return errcode.Persistence("failed to create application", err)
		}
		return nil
	})
	if err != nil {
		if uploadedKey != "" {
			s.discardUpload(ctx, uploadedKey)
		}
		return nil, err
	}

	metrics.ObserveTransition("application", string(database.ApplicationPending))
	return &app, nil
}

// discardUpload is the compensating delete for a rolled back submission.
func (s *Service) discardUpload(ctx context.Context, key string) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.store.DeleteObject(dctx, key); err != nil {
		s.logger.Error("delete orphaned cv upload failed",
			slog.String("object_key", key),
			slog.Any("error", err),
		)
	}
}

// ListUserApplications returns the user's applications with job and company.
func (s *Service) ListUserApplications(ctx context.Context, userID uint) ([]database.Application, error) {
	var apps []database.Application
	err := s.db.WithContext(ctx).
		Preload("Job.Company").
		Preload("CV").
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&apps).Error
	if err != nil {
		return nil, errcode.Persistence("failed to list applications", err)
	}
	return apps, nil
}

// ListCompanyApplications returns applications to the company's postings, optionally for one job.
func (s *Service) ListCompanyApplications(ctx context.Context, companyID uint, jobID *uint) ([]database.Application, error) {
	q := s.db.WithContext(ctx).
		Joins("JOIN job_postings ON job_postings.id = applications.job_id").
		Where("job_postings.company_id = ?", companyID).
		Preload("User").
		Preload("CV").
		Preload("Job")
	if jobID != nil {
		q = q.Where("applications.job_id = ?", *jobID)
	}
	var apps []database.Application
	if err := q.Order("applications.created_at DESC, applications.id DESC").Find(&apps).Error; err != nil {
		return nil, errcode.Persistence("failed to list applications", err)
	}
	return apps, nil
}

// GetCompanyApplication returns one application to the company's postings with
// its applicant, CV and job.
func (s *Service) GetCompanyApplication(ctx context.Context, companyID, applicationID uint) (*database.Application, error) {
	var app database.Application
	err := s.db.WithContext(ctx).
		Joins("JOIN job_postings ON job_postings.id = applications.job_id").
		Where("applications.id = ? AND job_postings.company_id = ?", applicationID, companyID).
		Preload("User").
		Preload("CV").
		Preload("Job.Form.Fields", orderedFields).
		First(&app).Error
	if err != nil {
		return nil, notFoundOr(err, "application not found", "load application")
	}
	return &app, nil
}

var applicationTransitions =map[database.ApplicationStatus][]database.ApplicationStatus{
	database.ApplicationPending:  {database.ApplicationReviewed, database.ApplicationAccepted, database.ApplicationRejected},
	database.ApplicationReviewed: {database.ApplicationAccepted, database.ApplicationRejected},
}

func canTransition(from, to database.ApplicationStatus) bool {
	for _, allowed := range applicationTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (s *Service) loadCompanyApplication(ctx context.Context, companyID, applicationID uint) (*database.Application, error) {
	var app database.Application
	if err := s.db.WithContext(ctx).Preload("Job").First(&app, applicationID).Error; err != nil {
		return nil, notFoundOr(err, "application not found", "load application")
	}
	if app.Job == nil || app.Job.CompanyID != companyID {
		return nil, errcode.NotFound("application not found")
	}
	return &app, nil
}

// UpdateApplicationStatus moves an application along pending -> reviewed -> accepted/rejected
// and notifies the applicant.
func (s *Service) UpdateApplicationStatus(ctx context.Context, companyID, applicationID uint, status database.ApplicationStatus, notes string) (*database.Application, error) {
	switch status {
	case database.ApplicationReviewed, database.ApplicationAccepted, database.ApplicationRejected:
	default:
		return nil, errcode.Validation(fmt.Sprintf("unsupported application status %q", status))
	}

	app, err := s.loadCompanyApplication(ctx, companyID, applicationID)
	if err != nil {
		return nil, err
	}
	if !canTransition(app.Status, status) {
		return nil, errcode.State(fmt.Sprintf("cannot move application from %s to %s", app.Status, status))
	}

	updates := map[string]any{"status": status}
	if notes = strings.TrimSpace(notes); notes != "" {
		updates["review_notes"] = notes
	}
	res := s.db.WithContext(ctx).Model(&database.Application{}).
		Where("id = ? AND status = ?", app.ID, app.Status).
		Updates(updates)
	if res.Error != nil {
		return nil, errcode.Persistence("failed to update application", res.Error)
	}
	if res.RowsAffected != 1 {
		return nil, errcode.State("application status changed concurrently, retry")
	}
	app.Status = status
	if notes != "" {
		app.ReviewNotes = notes
	}
	metrics.ObserveTransition("application", string(status))

	if s.notifier != nil {
		_, nerr := s.notifier.Notify(ctx, notify.Message{
			Channel: notify.ChannelPush,
			UserID:  app.UserID,
			Subject: "Application update",
			Body:    fmt.Sprintf("Your application for %q is now %s.", app.Job.Title, status),
			Data: map[string]string{
				"type":           "application_status",
				"application_id": fmt.Sprint(app.ID),
				"status":         string(status),
			},
		})
		if nerr != nil {
			s.logger.Warn("application status notification rejected", slog.Any("error", nerr))
		}
	}
	return app, nil
}

// ApplicationCVURL returns a download link for the CV attached to a company's application.
func (s *Service) ApplicationCVURL(ctx context.Context, companyID, applicationID uint, ttl time.Duration) (string, error) {
	app, err := s.loadCompanyApplication(ctx, companyID, applicationID)
	if err != nil {
		return "", err
	}
	if app.CVID == nil {
		return "", errcode.NotFound("application has no cv")
	}
	var cv database.CV
	if err := s.db.WithContext(ctx).First(&cv, *app.CVID).Error; err != nil {
		return "", notFoundOr(err, "cv not found", "load cv")
	}
	if cv.ObjectKey == "" || s.store == nil {
		return "", errcode.NotFound("cv has no stored file")
	}
	link, err := s.store.GeneratePresignedURL(ctx, cv.ObjectKey, ttl)
	if err != nil {
		return "", errcode.Persistence("failed to sign cv url", err)
	}
	return link, nil
}
