// Package cvs manages stored CVs and their analysis results.
package cvs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"jobgate/internal/ai"
	"jobgate/internal/database"
	"jobgate/internal/errcode"
	"jobgate/internal/storage"
)

const textFileType = "text"

// Service reads and writes CV rows and their stored files.
type Service struct {
	db     *gorm.DB
	store  storage.ObjectStore
	logger *slog.Logger
}

func NewService(db *gorm.DB, store storage.ObjectStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, store: store, logger: logger}
}

// List returns the user's CVs with their feature rows, newest first.
func (s *Service) List(ctx context.Context, userID uint) ([]database.CV, error) {
	var cvs []database.CV
	err := s.db.WithContext(ctx).
		Preload("Features").
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&cvs).Error
	if err != nil {
		return nil, errcode.Persistence("failed to list cvs", err)
	}
	return cvs, nil
}

// Upload stores a CV file and records it for userID.
func (s *Service) Upload(ctx context.Context, userID uint, fileName, contentType string, size int64, r io.Reader) (*database.CV, error) {
	if strings.TrimSpace(fileName) == "" {
		return nil, errcode.Validation("file name is required")
	}
	if s.store == nil {
		return nil, errcode.Persistence("file storage is not configured", nil)
	}
	key := storage.ObjectKey(fmt.Sprintf("cvs/%d", userID), fileName)
	if err := s.store.UploadFile(ctx, key, r, size, contentType); err != nil {
		return nil, errcode.Persistence("failed to store cv", err)
	}

	cv := database.CV{
		UserID:    userID,
		FileName:  fileName,
		ObjectKey: key,
		FileType:  contentType,
		FileSize:  size,
	}
	if err := s.db.WithContext(ctx).Create(&cv).Error; err != nil {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if derr := s.store.DeleteObject(dctx, key); derr != nil {
			s.logger.Error("delete orphaned cv upload failed", slog.String("object_key", key), slog.Any("error", derr))
		}
		return nil, errcode.Persistence("failed to create cv", err)
	}
	return &cv, nil
}

// CreateTextCV records pasted CV text that has no stored file.
func (s *Service) CreateTextCV(ctx context.Context, userID uint, text string) (*database.CV, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errcode.Validation("cv text is required")
	}
	cv := database.CV{
		UserID:   userID,
		FileName: "cv.txt",
		FileType: textFileType,
		FileSize: int64(len(text)),
		RawText:  text,
	}
	if err := s.db.WithContext(ctx).Create(&cv).Error; err != nil {
		return nil, errcode.Persistence("failed to create cv", err)
	}
	return &cv, nil
}

func (s *Service) owned(ctx context.Context, userID, cvID uint, preload ...string) (*database.CV, error) {
	q := s.db.WithContext(ctx)
	for _, p := range preload {
		q = q.Preload(p)
	}
	var cv database.CV
	if err := q.Where("id = ? AND user_id = ?", cvID, userID).First(&cv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errcode.NotFound("cv not found")
		}
		return nil, errcode.Persistence("failed to load cv", err)
	}
	return &cv, nil
}

// DownloadURL signs a short-lived link to the user's stored CV file.
func (s *Service) DownloadURL(ctx context.Context, userID, cvID uint, ttl time.Duration) (string, error) {
	cv, err := s.owned(ctx, userID, cvID)
	if err != nil {
		return "", err
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

// Analysis returns the user's CV with its structured data and features.
func (s *Service) Analysis(ctx context.Context, userID, cvID uint) (*database.CV, error) {
	return s.owned(ctx, userID, cvID, "StructuredData", "Features")
}

// Delete removes the user's CV and its analysis. Applications keep their row with cv_id cleared.
func (s *Service) Delete(ctx context.Context, userID, cvID uint) error {
	var objectKey string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cv database.CV
		if err := tx.Where("id = ? AND user_id = ?", cvID, userID).First(&cv).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errcode.NotFound("cv not found")
			}
			return errcode.Persistence("failed to load cv", err)
		}
		if err := tx.Model(&database.Application{}).Where("cv_id = ?", cv.ID).Update("cv_id", nil).Error; err != nil {
			return errcode.Persistence("failed to detach cv from applications", err)
		}
		if err := tx.Where("cv_id = ?", cv.ID).Delete(&database.CVStructuredData{}).Error; err != nil {
			return errcode.Persistence("failed to delete structured data", err)
		}
		if err := tx.Where("cv_id = ?", cv.ID).Delete(&database.CVFeaturesAnalytics{}).Error; err != nil {
			return errcode.Persistence("failed to delete features", err)
		}
		if err := tx.Delete(&cv).Error; err != nil {
			return errcode.Persistence("failed to delete cv", err)
		}
		objectKey = cv.ObjectKey
		return nil
	})
	if err != nil {
		return err
	}

	if objectKey != "" && s.store != nil {
		if err := s.store.DeleteObject(ctx, objectKey); err != nil {
			s.logger.Warn("delete cv object failed", slog.String("object_key", objectKey), slog.Any("error", err))
		}
	}
	return nil
}

// SaveAnalysis replaces the analysis rows of cvID in one transaction.
func (s *Service) SaveAnalysis(ctx context.Context, cvID uint, analysis *ai.CVAnalysis) (*database.CVFeaturesAnalytics, error) {
	structured, features := analysis.Records(cvID)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cv database.CV
		if err := tx.Select("id").First(&cv, cvID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errcode.NotFound("cv not found")
			}
			return errcode.Persistence("failed to load cv", err)
		}
		if err := tx.Where("cv_id = ?", cvID).Delete(&database.CVStructuredData{}).Error; err != nil {
			return errcode.Persistence("failed to clear structured data", err)
		}
		if err := tx.Where("cv_id = ?", cvID).Delete(&database.CVFeaturesAnalytics{}).Error; err != nil {
			return errcode.Persistence("failed to clear features", err)
		}
		if err := tx.Create(&structured).Error; err != nil {
			return errcode.Persistence("failed to save structured data", err)
		}
		if err := tx.Create(&features).Error; err != nil {
			return errcode.Persistence("failed to save features", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &features, nil
}
