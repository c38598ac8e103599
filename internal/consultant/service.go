// Package consultant implements the seeker to consultant upgrade lifecycle and
// the consultant directory.
package consultant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"jobgate/internal/database"
	"jobgate/internal/errcode"
	"jobgate/internal/metrics"
	"jobgate/internal/notify"
)

// Decision actions accepted by Decide.
const (
	ActionAccept = "accept"
	ActionReject = "reject"
)

// Profile holds the consultant profile fields.
type Profile struct {
	Bio             string   `json:"bio,omitempty"`
	ExpertiseFields []string `json:"expertise_fields,omitempty"`
	WorkHistoryURL  string   `json:"work_history_url,omitempty"`
	HourlyRate      *float64 `json:"hourly_rate,omitempty"`
	ClientsServed   *int     `json:"clients_served,omitempty"`
}

// merge fills every field of p the override leaves empty.
func (p Profile) merge(override Profile) Profile {
	out := p
	if strings.TrimSpace(override.Bio) != "" {
		out.Bio = strings.TrimSpace(override.Bio)
	}
	if len(override.ExpertiseFields) > 0 {
		out.ExpertiseFields = override.ExpertiseFields
	}
	if strings.TrimSpace(override.WorkHistoryURL) != "" {
		out.WorkHistoryURL = strings.TrimSpace(override.WorkHistoryURL)
	}
	if override.HourlyRate != nil {
		out.HourlyRate = override.HourlyRate
	}
	if override.ClientsServed != nil {
		out.ClientsServed = override.ClientsServed
	}
	return out
}

func (p Profile) validate() error {
	if p.HourlyRate != nil && *p.HourlyRate < 0 {
		return errcode.Validation("hourly_rate must not be negative")
	}
	if p.ClientsServed != nil && *p.ClientsServed < 0 {
		return errcode.Validation("clients_served must not be negative")
	}
	return nil
}

// AdminDirectory resolves who receives upgrade request notifications.
type AdminDirectory interface {
	AdminRecipients(ctx context.Context) ([]uint, error)
}

// ConfiguredAdmins uses a fixed id list and falls back to every admin user when it is empty.
type ConfiguredAdmins struct {
	DB  *gorm.DB
	IDs []uint
}

func (c ConfiguredAdmins) AdminRecipients(ctx context.Context) ([]uint, error) {
	if len(c.IDs) > 0 {
		return c.IDs, nil
	}
	var ids []uint
	if err := c.DB.WithContext(ctx).Model(&database.User{}).
		Where("user_type = ?", database.UserTypeAdmin).
		Order("id").
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("query admin users: %w", err)
	}
	return ids, nil
}

// Service runs upgrade transitions.
type Service struct {
	db       *gorm.DB
	notifier notify.Sender
	admins   AdminDirectory
	logger   *slog.Logger
}

// NewService wires the lifecycle. notifier may be nil.
func NewService(db *gorm.DB, notifier notify.Sender, admins AdminDirectory, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if admins == nil {
		admins = ConfiguredAdmins{DB: db}
	}
	return &Service{db: db, notifier: notifier, admins: admins, logger: logger}
}

func loadUser(db *gorm.DB, userID uint, out *database.User) error {
	if err := db.First(out, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errcode.NotFound("user not found")
		}
		return errcode.Persistence("failed to load user", err)
	}
	return nil
}

// RequestUpgrade marks the user's upgrade request pending and notifies the admins.
// Users whose earlier request was rejected may ask again.
func (s *Service) RequestUpgrade(ctx context.Context, userID uint, profile Profile) (*database.User, error) {
	if err := profile.validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(profile)
	if err != nil {
		return nil, errcode.Validation("profile fields are not encodable")
	}

	db := s.db.WithContext(ctx)
	var user database.User
	if err := loadUser(db, userID, &user); err != nil {
		return nil, err
	}
	switch {
	case user.UpgradeRequestStatus == database.UpgradePending:
		return nil, errcode.State("an upgrade request is already pending")
	case user.UserType == database.UserTypeConsultant || user.UpgradeRequestStatus == database.UpgradeApproved:
		return nil, errcode.State("user is already a consultant")
	case user.UserType == database.UserTypeAdmin:
		return nil, errcode.State("admins cannot request a consultant upgrade")
	}

	res := db.Model(&database.User{}).
		Where("id = ? AND upgrade_request_status = ?", user.ID, user.UpgradeRequestStatus).
		Updates(map[string]any{
			"upgrade_request_status":  database.UpgradePending,
			"upgrade_request_profile": datatypes.JSON(raw),
		})
	if res.Error != nil {
		return nil, errcode.Persistence("failed to store upgrade request", res.Error)
	}
	if res.RowsAffected != 1 {
		return nil, errcode.State("an upgrade request is already pending")
	}
	user.UpgradeRequestStatus = database.UpgradePending
	user.UpgradeRequestProfile = datatypes.JSON(raw)
	metrics.ObserveTransition("consultant_upgrade", string(database.UpgradePending))

	s.notifyAdmins(ctx, user)
	return &user, nil
}

func (s *Service) notifyAdmins(ctx context.Context, user database.User) {
	if s.notifier == nil {
		return
	}
	ids, err := s.admins.AdminRecipients(ctx)
	if err != nil {
		s.logger.Warn("resolve admin recipients failed", slog.Any("error", err))
		return
	}
	if len(ids) == 0 {
		s.logger.Warn("no admin recipients for upgrade request", slog.Uint64("user_id", uint64(user.ID)))
		return
	}
	for _, adminID := range ids {
		s.push(ctx, adminID, "New consultant upgrade request",
			fmt.Sprintf("%s (%s) asked to become a consultant.", user.Name, user.Email),
			map[string]string{"type": "upgrade_request", "user_id": fmt.Sprint(user.ID)},
		)
	}
}

func (s *Service) push(ctx context.Context, userID uint, title, body string, data map[string]string) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Notify(ctx, notify.Message{
		Channel: notify.ChannelPush,
		UserID:  userID,
		Subject: title,
		Body:    body,
		Data:    data,
	}); err != nil {
		s.logger.Warn("push notification rejected", slog.Uint64("user_id", uint64(userID)), slog.Any("error", err))
	}
}

// Decision is the committed outcome of Decide. Consultant is set only on accept.
type Decision struct {
	User       *database.User       `json:"user"`
	Consultant *database.Consultant `json:"consultant,omitempty"`
}

// Decide accepts or rejects a pending upgrade request in one transaction.
// On accept, admin supplied profile fields override the ones submitted with the request.
func (s *Service) Decide(ctx context.Context, userID uint, action string, profile Profile) (*Decision, error) {
	var decision Decision
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user database.User
		if err := loadUser(tx, userID, &user); err != nil {
			return err
		}
		if user.UpgradeRequestStatus != database.UpgradePending {
			return errcode.State("no pending upgrade request for this user")
		}

		switch strings.ToLower(strings.TrimSpace(action)) {
		case ActionAccept:
			c, err := s.accept(tx, &user, profile)
			if err != nil {
				return err
			}
			decision.Consultant = c
		case ActionReject:
			if err := tx.Model(&user).Update("upgrade_request_status", database.UpgradeRejected).Error; err != nil {
				return errcode.Persistence("failed to reject upgrade request", err)
			}
			user.UpgradeRequestStatus = database.UpgradeRejected
		default:
			return errcode.Validation(fmt.Sprintf("action must be %q or %q", ActionAccept, ActionReject))
		}
		decision.User = &user
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ObserveTransition("consultant_upgrade", string(decision.User.UpgradeRequestStatus))
	if decision.Consultant != nil {
		s.push(ctx, userID, "Consultant upgrade approved",
			"Your request to become a consultant has been approved.",
			map[string]string{"type": "upgrade_decision", "status": string(database.UpgradeApproved)},
		)
	} else {
		s.push(ctx, userID, "Consultant upgrade rejected",
			"Your request to become a consultant has been rejected.",
			map[string]string{"type": "upgrade_decision", "status": string(database.UpgradeRejected)},
		)
	}
	return &decision, nil
}

func (s *Service) accept(tx *gorm.DB, user *database.User, override Profile) (*database.Consultant, error) {
	if err := override.validate(); err != nil {
		return nil, err
	}
	var submitted Profile
	if len(user.UpgradeRequestProfile) > 0 {
		if err := json.Unmarshal(user.UpgradeRequestProfile, &submitted); err != nil {
			s.logger.Warn("decode submitted upgrade profile failed",
				slog.Uint64("user_id", uint64(user.ID)),
				slog.Any("error", err),
			)
		}
	}
	profile := submitted.merge(override)

	c := database.Consultant{
		UserID:          user.ID,
		Bio:             profile.Bio,
		ExpertiseFields: profile.ExpertiseFields,
		WorkHistoryURL:  profile.WorkHistoryURL,
		HourlyRate:      profile.HourlyRate,
	}
	if profile.ClientsServed != nil {
		c.ClientsServed = *profile.ClientsServed
	}
	if err := tx.Create(&c).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return nil, errcode.Wrap(errcode.KindConflict, "consultant profile already exists", err)
		}
		return nil, errcode.Persistence("failed to create consultant profile", err)
	}

	if err := tx.Model(user).Updates(map[string]any{
		"user_type":              database.UserTypeConsultant,
		"upgrade_request_status": database.UpgradeApproved,
	}).Error; err != nil {
		return nil, errcode.Persistence("failed to approve upgrade request", err)
	}
	user.UserType = database.UserTypeConsultant
	user.UpgradeRequestStatus = database.UpgradeApproved
	return &c, nil
}

// ListPending returns users waiting for an upgrade decision, oldest first.
func (s *Service) ListPending(ctx context.Context) ([]database.User, error) {
	var users []database.User
	if err := s.db.WithContext(ctx).
		Where("upgrade_request_status = ?", database.UpgradePending).
		Order("updated_at ASC, id ASC").
		Find(&users).Error; err != nil {
		return nil, errcode.Persistence("failed to list upgrade requests", err)
	}
	return users, nil
}

// GetProfile returns the consultant profile of userID with contact details.
func (s *Service) GetProfile(ctx context.Context, userID uint) (*database.Consultant, error) {
	var c database.Consultant
	if err := s.db.WithContext(ctx).Preload("User").Where("user_id = ?", userID).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errcode.NotFound("consultant not found")
		}
		return nil, errcode.Persistence("failed to load consultant", err)
	}
	return &c, nil
}

// List returns consultants, optionally those whose expertise mentions term.
func (s *Service) List(ctx context.Context, term string) ([]database.Consultant, error) {
	var all []database.Consultant
	if err := s.db.WithContext(ctx).Preload("User").Order("id").Find(&all).Error; err != nil {
		return nil, errcode.Persistence("failed to list consultants", err)
	}
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return all, nil
	}
	// Expertise is a JSON column; filtering happens here to stay portable across drivers.
	out := make([]database.Consultant, 0, len(all))
	for _, c := range all {
		for _, field := range c.ExpertiseFields {
			if strings.Contains(strings.ToLower(field), term) {
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}

// ConsultationRequest is a seeker asking a consultant for a session.
type ConsultationRequest struct {
	RequesterID      uint
	ConsultantUserID uint
	Message          string
}

// RequestConsultation notifies the consultant and returns their profile so the
// requester can follow up directly.
func (s *Service) RequestConsultation(ctx context.Context, req ConsultationRequest) (*database.Consultant, notify.Result, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, notify.Result{}, errcode.Validation("message is required")
	}
	if req.RequesterID == req.ConsultantUserID {
		return nil, notify.Result{}, errcode.Validation("cannot request a consultation with yourself")
	}

	c, err := s.GetProfile(ctx, req.ConsultantUserID)
	if err != nil {
		return nil, notify.Result{}, err
	}
	var requester database.User
	if err := loadUser(s.db.WithContext(ctx), req.RequesterID, &requester); err != nil {
		return nil, notify.Result{}, err
	}

	if s.notifier == nil {
		return c, notify.Result{}, nil
	}
	res, err := s.notifier.Notify(ctx, notify.Message{
		Channel: notify.ChannelPush,
		UserID:  c.UserID,
		Subject: "New consultation request",
		Body:    fmt.Sprintf("%s (%s): %s", requester.Name, requester.Email, message),
		Data: map[string]string{
			"type":         "consultation_request",
			"requester_id": fmt.Sprint(requester.ID),
		},
		SenderID: &requester.ID,
	})
	if err != nil {
		return nil, notify.Result{}, err
	}
	return c, res, nil
}
