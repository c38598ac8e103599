// Package jobs implements job postings, their internal application forms and
// application submission.
package jobs

import (
	"errors"
	"log/slog"

	"gorm.io/gorm"

	"jobgate/internal/errcode"
	"jobgate/internal/notify"
	"jobgate/internal/storage"
)

// MaxFormDataBytes bounds the opaque form_data payload of an application.
const MaxFormDataBytes = 64 << 10

// Service owns every job lifecycle transition.
type Service struct {
	db       *gorm.DB
	store    storage.ObjectStore
	notifier notify.Sender
	logger   *slog.Logger
}

// NewService wires the job lifecycle. notifier may be nil.
func NewService(db *gorm.DB, store storage.ObjectStore, notifier notify.Sender, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, store: store, notifier: notifier, logger: logger}
}

func notFoundOr(err error, message, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errcode.NotFound(message)
	}
	return errcode.Persistence("failed to "+op, err)
}
