package notify

import (
	"context"

	"jobgate/internal/database"
)

// Delivery is the outcome a transport reports for one attempt.
// Transports never return errors; failures are carried in Status and Reason.
type Delivery struct {
	Status string
	Reason string
}

// OK reports whether the transport accepted the message.
func (d Delivery) OK() bool {
	return d.Status == database.DeliverySent
}

// Delivered is the successful outcome.
func Delivered() Delivery {
	return Delivery{Status: database.DeliverySent}
}

// Failed is a transport failure with a reason.
func Failed(reason string) Delivery {
	return Delivery{Status: database.DeliveryFailed, Reason: reason}
}

// FailedWith is a failure recorded under a specific failed_* status.
func FailedWith(status, reason string) Delivery {
	return Delivery{Status: status, Reason: reason}
}

// EmailTransport delivers a plain text email.
type EmailTransport interface {
	SendEmail(ctx context.Context, to, subject, body string) Delivery
}

// PushTransport delivers a push message to a device token.
type PushTransport interface {
	SendPush(ctx context.Context, deviceToken, title, body string, data map[string]string) Delivery
}

// Publisher fans a recorded notification out to in-app listeners.
type Publisher interface {
	Publish(ctx context.Context, userID uint, payload []byte) error
}

// UnavailableTransport records every attempt as failed_transport_unavailable.
// It stands in for a channel with no configured provider.
type UnavailableTransport struct {
	Name string
}

func (u UnavailableTransport) SendEmail(context.Context, string, string, string) Delivery {
	return FailedWith(database.DeliveryFailedTransportMissing, u.Name+" transport is not configured")
}

func (u UnavailableTransport) SendPush(context.Context, string, string, string, map[string]string) Delivery {
	return FailedWith(database.DeliveryFailedTransportMissing, u.Name+" transport is not configured")
}
