package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"jobgate/internal/database"
	"jobgate/internal/errcode"
	"jobgate/internal/metrics"
)

// Channel selects the transport of a notification.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

const (
	maxSubjectLength = 255
	defaultListLimit = 50
)

// Message is one notification request.
//
// Email targets either Email or, when empty, the email of CompanyID.
// Push targets UserID. Subject is used as the push title.
type Message struct {
	Channel   Channel
	Email     string
	CompanyID *uint
	UserID    uint
	Subject   string
	Body      string
	// AuditBody replaces Body in the stored audit row, for bodies carrying secrets.
	AuditBody string
	Data      map[string]string
	SenderID  *uint
}

func (m Message) auditBody() string {
	if m.AuditBody != "" {
		return m.AuditBody
	}
	return m.Body
}

// Result is the recorded outcome of Notify.
type Result struct {
	Channel  Channel `json:"channel"`
	RecordID uint    `json:"record_id"`
	Status   string  `json:"status"`
	Error    string  `json:"error,omitempty"`
}

// Delivered reports whether the transport accepted the notification.
func (r Result) Delivered() bool {
	return r.Status == database.DeliverySent
}

// Sender is what lifecycle components depend on.
type Sender interface {
	Notify(ctx context.Context, msg Message) (Result, error)
}

// Options configures a Dispatcher. Nil transports record failed_transport_unavailable.
type Options struct {
	Email     EmailTransport
	Push      PushTransport
	Publisher Publisher
	Timeout   time.Duration
	Logger    *slog.Logger
}

// Dispatcher attempts delivery and records exactly one audit row per Notify call.
type Dispatcher struct {
	db        *gorm.DB
	email     EmailTransport
	push      PushTransport
	publisher Publisher
	timeout   time.Duration
	logger    *slog.Logger
}

// NewDispatcher builds a dispatcher writing audit rows through db.
func NewDispatcher(db *gorm.DB, opts Options) *Dispatcher {
	d := &Dispatcher{
		db:        db,
		email:     opts.Email,
		push:      opts.Push,
		publisher: opts.Publisher,
		timeout:   opts.Timeout,
		logger:    opts.Logger,
	}
	if d.email == nil {
		d.email = UnavailableTransport{Name: "email"}
	}
	if d.push == nil {
		d.push = UnavailableTransport{Name: "push"}
	}
	if d.timeout <= 0 {
		d.timeout = 10 * time.Second
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Notify delivers msg and records the outcome. Only malformed messages return an error,
// and they do so before any transport attempt or write.
func (d *Dispatcher) Notify(ctx context.Context, msg Message) (Result, error) {
	if err := validateMessage(msg); err != nil {
		return Result{}, err
	}

	switch msg.Channel {
	case ChannelEmail:
		return d.notifyEmail(ctx, msg), nil
	default:
		return d.notifyPush(ctx, msg), nil
	}
}

func validateMessage(msg Message) error {
	switch msg.Channel {
	case ChannelEmail, ChannelPush:
	default:
		return errcode.Validation(fmt.Sprintf("unsupported notification channel %q", msg.Channel))
	}
	if strings.TrimSpace(msg.Subject) == "" {
		return errcode.Validation("subject is required")
	}
	if len(msg.Subject) > maxSubjectLength {
		return errcode.Validation("subject is too long")
	}
	if strings.TrimSpace(msg.Body) == "" {
		return errcode.Validation("message body is required")
	}
	if msg.Channel == ChannelPush && msg.UserID == 0 {
		return errcode.Validation("push notifications require a user id")
	}
	if msg.Channel == ChannelEmail && strings.TrimSpace(msg.Email) != "" {
		if _, err := mail.ParseAddress(strings.TrimSpace(msg.Email)); err != nil {
			return errcode.Validation("invalid recipient email")
		}
	}
	return nil
}

func (d *Dispatcher) notifyEmail(ctx context.Context, msg Message) Result {
	recipient := strings.TrimSpace(msg.Email)

	var delivery Delivery
	switch {
	case recipient != "":
		delivery = d.sendEmail(ctx, recipient, msg)
	case msg.CompanyID != nil:
		var company database.Company
		err := d.db.WithContext(ctx).Select("id", "email").First(&company, *msg.CompanyID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			delivery = FailedWith(database.DeliveryFailedCompanyNotFound, "company not found")
		case err != nil:
			delivery = Failed(fmt.Sprintf("lookup company: %v", err))
		default:
			recipient = company.Email
			delivery = d.sendEmail(ctx, recipient, msg)
		}
	default:
		delivery = FailedWith(database.DeliveryFailedNoRecipient, "no recipient email")
	}

	record := database.EmailNotification{
		SenderID:       msg.SenderID,
		CompanyID:      msg.CompanyID,
		RecipientEmail: recipient,
		Subject:        msg.Subject,
		Body:           msg.auditBody(),
		Status:         delivery.Status,
		ErrorDetail:    delivery.Reason,
	}
	result := Result{Channel: ChannelEmail, Status: delivery.Status, Error: delivery.Reason}
	if err := d.record(ctx, &record); err == nil {
		result.RecordID = record.ID
	}
	d.observe(ChannelEmail, delivery)
	return result
}

func (d *Dispatcher) sendEmail(ctx context.Context, to string, msg Message) Delivery {
	tctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.email.SendEmail(tctx, to, msg.Subject, msg.Body)
}

func (d *Dispatcher) notifyPush(ctx context.Context, msg Message) Result {
	var (
		user      database.User
		userFound bool
		delivery  Delivery
	)
	err := d.db.WithContext(ctx).Select("id", "device_token").First(&user, msg.UserID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		delivery = FailedWith(database.DeliveryFailedUserNotFound, "user not found")
	case err != nil:
		delivery = Failed(fmt.Sprintf("lookup user: %v", err))
	case strings.TrimSpace(user.DeviceToken) == "":
		userFound = true
		delivery = FailedWith(database.DeliveryFailedNoDeviceToken, "user has no registered device")
	default:
		userFound = true
		tctx, cancel := context.WithTimeout(ctx, d.timeout)
		delivery = d.push.SendPush(tctx, user.DeviceToken, msg.Subject, msg.Body, msg.Data)
		cancel()
	}

	record := database.PushNotification{
		UserID:      msg.UserID,
		SenderID:    msg.SenderID,
		Title:       msg.Subject,
		Message:     msg.Body,
		Status:      delivery.Status,
		ErrorDetail: delivery.Reason,
	}
	if len(msg.Data) > 0 {
		if raw, err := json.Marshal(msg.Data); err == nil {
			record.Data = datatypes.JSON(raw)
		}
	}

	result := Result{Channel: ChannelPush, Status: delivery.Status, Error: delivery.Reason}
	if err := d.record(ctx, &record); err == nil {
		result.RecordID = record.ID
		if userFound {
			d.publish(ctx, record)
		}
	}
	d.observe(ChannelPush, delivery)
	return result
}

// record writes the audit row even when the caller's context is already cancelled.
func (d *Dispatcher) record(ctx context.Context, row any) error {
	if err := d.db.WithContext(context.WithoutCancel(ctx)).Create(row).Error; err != nil {
		d.logger.Error("persist notification audit failed", slog.Any("error", err))
		return err
	}
	return nil
}

func (d *Dispatcher) publish(ctx context.Context, record database.PushNotification) {
	if d.publisher == nil {
		return
	}
	payload, err := json.Marshal(struct {
		Type         string                    `json:"type"`
		Notification database.PushNotification `json:"notification"`
	}{Type: "notification", Notification: record})
	if err != nil {
		d.logger.Warn("encode in-app notification failed", slog.Any("error", err))
		return
	}
	if err := d.publisher.Publish(ctx, record.UserID, payload); err != nil {
		d.logger.Warn("publish in-app notification failed",
			slog.Uint64("user_id", uint64(record.UserID)),
			slog.Any("error", err),
		)
	}
}

func (d *Dispatcher) observe(channel Channel, delivery Delivery) {
	metrics.ObserveDelivery(string(channel), delivery.Status)
	if !delivery.OK() {
		d.logger.Warn("notification not delivered",
			slog.String("channel", string(channel)),
			slog.String("status", delivery.Status),
			slog.String("reason", delivery.Reason),
		)
	}
}

// ListEmails returns the most recent email audit rows.
func (d *Dispatcher) ListEmails(ctx context.Context, limit int) ([]database.EmailNotification, error) {
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	var rows []database.EmailNotification
	if err := d.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, errcode.Persistence("failed to list emails", err)
	}
	return rows, nil
}

// ListPush returns the most recent push audit rows across all users.
func (d *Dispatcher) ListPush(ctx context.Context, limit int) ([]database.PushNotification, error) {
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	var rows []database.PushNotification
	if err := d.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, errcode.Persistence("failed to list push notifications", err)
	}
	return rows, nil
}

// ListForUser returns a user's notification inbox, newest first.
func (d *Dispatcher) ListForUser(ctx context.Context, userID uint, limit int) ([]database.PushNotification, error) {
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	var rows []database.PushNotification
	if err := d.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, errcode.Persistence("failed to list notifications", err)
	}
	return rows, nil
}

// MarkRead flags one of the user's notifications as read.
func (d *Dispatcher) MarkRead(ctx context.Context, userID, notificationID uint) error {
	res := d.db.WithContext(ctx).
		Model(&database.PushNotification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Update("is_read", true)
	if res.Error != nil {
		return errcode.Persistence("failed to update notification", res.Error)
	}
	if res.RowsAffected == 0 {
		return errcode.NotFound("notification not found")
	}
	return nil
}
