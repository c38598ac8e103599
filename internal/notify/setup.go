package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"jobgate/internal/config"
)

// TransportsFromConfig builds the configured email and push transports. A nil return means
// the channel is not configured and deliveries are recorded as transport unavailable.
func TransportsFromConfig(ctx context.Context, smtpCfg config.SMTPConfig, pushCfg config.PushConfig, logger *slog.Logger) (EmailTransport, PushTransport, error) {
	var email EmailTransport
	if smtpCfg.Enabled() {
		t, err := NewSMTPTransport(smtpCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("init smtp transport: %w", err)
		}
		email = t
	} else {
		logger.Warn("smtp not configured, email notifications will not be delivered")
	}

	var push PushTransport
	switch strings.ToLower(strings.TrimSpace(pushCfg.Provider)) {
	case "fcm":
		t, err := NewFCMTransport(ctx, pushCfg.CredentialsFile)
		if err != nil {
			return nil, nil, fmt.Errorf("init fcm transport: %w", err)
		}
		push = t
	case "telegram":
		t, err := NewTelegramTransport(pushCfg.TelegramToken)
		if err != nil {
			return nil, nil, fmt.Errorf("init telegram transport: %w", err)
		}
		push = t
	case "", "none":
		logger.Warn("push provider not configured, push notifications will not be delivered")
	default:
		return nil, nil, fmt.Errorf("unknown push provider %q", pushCfg.Provider)
	}
	return email, push, nil
}
