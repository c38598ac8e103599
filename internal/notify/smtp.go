package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/wneessen/go-mail"

	"jobgate/internal/config"
)

// SMTPTransport sends email through an SMTP relay.
type SMTPTransport struct {
	mu     sync.Mutex
	client *mail.Client
	from   string
}

// NewSMTPTransport builds the relay client. Authentication is used when a username is set.
func NewSMTPTransport(cfg config.SMTPConfig) (*SMTPTransport, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("init smtp client: %w", err)
	}
	return &SMTPTransport{client: client, from: cfg.From}, nil
}

func (t *SMTPTransport) SendEmail(ctx context.Context, to, subject, body string) Delivery {
	msg := mail.NewMsg()
	if err := msg.From(t.from); err != nil {
		return Failed(fmt.Sprintf("invalid sender: %v", err))
	}
	if err := msg.To(to); err != nil {
		return Failed(fmt.Sprintf("invalid recipient: %v", err))
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.client.DialAndSendWithContext(ctx, msg); err != nil {
		return Failed(err.Error())
	}
	return Delivered()
}
