package notify

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// FCMTransport sends push notifications through Firebase Cloud Messaging.
type FCMTransport struct {
	client *messaging.Client
}

// NewFCMTransport initialises the firebase app from a service account file.
func NewFCMTransport(ctx context.Context, credentialsFile string) (*FCMTransport, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase messaging: %w", err)
	}
	return &FCMTransport{client: client}, nil
}

func (t *FCMTransport) SendPush(ctx context.Context, deviceToken, title, body string, data map[string]string) Delivery {
	_, err := t.client.Send(ctx, &messaging.Message{
		Token: deviceToken,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
	})
	switch {
	case err == nil:
		return Delivered()
	case messaging.IsUnregistered(err):
		return Failed("device token is no longer registered")
	default:
		return Failed(err.Error())
	}
}
