package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"jobgate/internal/database"
	"jobgate/internal/errcode"
	"jobgate/internal/notify"
	"jobgate/internal/testutil"
)

type capturePublisher struct {
	mu       sync.Mutex
	userIDs  []uint
	payloads [][]byte
	err      error
}

func (p *capturePublisher) Publish(_ context.Context, userID uint, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userIDs = append(p.userIDs, userID)
	p.payloads = append(p.payloads, payload)
	return p.err
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func TestNotifyRejectsMalformedMessagesWithoutWriting(t *testing.T) {
	db := testutil.NewDB(t)
	transport := testutil.NewRecordingTransport()
	d := notify.NewDispatcher(db, notify.Options{Email: transport, Push: transport})
	ctx := context.Background()

	cases := []notify.Message{
		{Channel: "sms", Subject: "s", Body: "b"},
		{Channel: notify.ChannelEmail, Email: "a@example.com", Body: "b"},
		{Channel: notify.ChannelEmail, Email: "a@example.com", Subject: "s"},
		{Channel: notify.ChannelEmail, Email: "not an address", Subject: "s", Body: "b"},
		{Channel: notify.ChannelPush, Subject: "s", Body: "b"},
	}
	for _, msg := range cases {
		_, err := d.Notify(ctx, msg)
		assert.True(t, errcode.Is(err, errcode.KindValidation), "message %+v", msg)
	}

	assert.Zero(t, transport.Count())
	assert.Zero(t, countRows(t, db, &database.EmailNotification{}))
	assert.Zero(t, countRows(t, db, &database.PushNotification{}))
}

func TestNotifyEmailRecordsOneRowPerOutcome(t *testing.T) {
	db := testutil.NewDB(t)
	transport := testutil.NewRecordingTransport()
	d := notify.NewDispatcher(db, notify.Options{Email: transport})
	ctx := context.Background()
	company := testutil.CreateCompany(t, db, "acme@example.com")

	res, err := d.Notify(ctx, notify.Message{Channel: notify.ChannelEmail, Email: "x@example.com", Subject: "Hi", Body: "Body"})
	require.NoError(t, err)
	assert.True(t, res.Delivered())
	assert.NotZero(t, res.RecordID)

	res, err = d.Notify(ctx, notify.Message{Channel: notify.ChannelEmail, CompanyID: &company.ID, Subject: "Hi", Body: "Body"})
	require.NoError(t, err)
	assert.True(t, res.Delivered())
	assert.Equal(t, "acme@example.com", transport.Sent[1].To)

	missing := uint(404)
	res, err = d.Notify(ctx, notify.Message{Channel: notify.ChannelEmail, CompanyID: &missing, Subject: "Hi", Body: "Body"})
	require.NoError(t, err)
	assert.Equal(t, database.DeliveryFailedCompanyNotFound, res.Status)

	res, err = d.Notify(ctx, notify.Message{Channel: notify.ChannelEmail, Subject: "Hi", Body: "Body"})
	require.NoError(t, err)
	assert.Equal(t, database.DeliveryFailedNoRecipient, res.Status)

	transport.Outcome = notify.Failed("relay refused")
	res, err = d.Notify(ctx, notify.Message{Channel: notify.ChannelEmail, Email: "x@example.com", Subject: "Hi", Body: "Body"})
	require.NoError(t, err)
	assert.Equal(t, database.DeliveryFailed, res.Status)
	assert.Equal(t, "relay refused", res.Error)

	assert.Equal(t, int64(5), countRows(t, db, &database.EmailNotification{}))
	assert.Equal(t, 3, transport.Count())

	rows, err := d.ListEmails(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, database.DeliveryFailed, rows[0].Status)
}

func TestNotifyWithoutTransportRecordsUnavailable(t *testing.T) {
	db := testutil.NewDB(t)
	d := notify.NewDispatcher(db, notify.Options{})
	user := testutil.CreateUser(t, db, "u@example.com", database.UserTypeSeeker)
	require.NoError(t, db.Model(&user).Update("device_token", "token-1").Error)

	res, err := d.Notify(context.Background(), notify.Message{Channel: notify.ChannelEmail, Email: "x@example.com", Subject: "Hi", Body: "Body"})
	require.NoError(t, err)
	assert.Equal(t, database.DeliveryFailedTransportMissing, res.Status)

	res, err = d.Notify(context.Background(), notify.Message{Channel: notify.ChannelPush, UserID: user.ID, Subject: "Hi", Body: "Body"})
	require.NoError(t, err)
	assert.Equal(t, database.DeliveryFailedTransportMissing, res.Status)
	assert.NotZero(t, res.RecordID)
}

func TestNotifyPushPublishesInAppAndFillsInbox(t *testing.T) {
	db := testutil.NewDB(t)
	transport := testutil.NewRecordingTransport()
	publisher := &capturePublisher{err: errors.New("redis down")}
	d := notify.NewDispatcher(db, notify.Options{Push: transport, Publisher: publisher})
	ctx := context.Background()

	user := testutil.CreateUser(t, db, "u@example.com", database.UserTypeSeeker)
	noDevice := testutil.CreateUser(t, db, "n@example.com", database.UserTypeSeeker)
	require.NoError(t, db.Model(&user).Update("device_token", "token-1").Error)

	res, err := d.Notify(ctx, notify.Message{
		Channel: notify.ChannelPush,
		UserID:  user.ID,
		Subject: "Update",
		Body:    "Your application moved",
		Data:    map[string]string{"type": "application_status"},
	})
	require.NoError(t, err)
	assert.True(t, res.Delivered())
	assert.Equal(t, "token-1", transport.Sent[0].To)

	res, err = d.Notify(ctx, notify.Message{Channel: notify.ChannelPush, UserID: noDevice.ID, Subject: "Update", Body: "Body"})
	require.NoError(t, err)
	assert.Equal(t, database.DeliveryFailedNoDeviceToken, res.Status)

	res, err = d.Notify(ctx, notify.Message{Channel: notify.ChannelPush, UserID: 999, Subject: "Update", Body: "Body"})
	require.NoError(t, err)
	assert.Equal(t, database.DeliveryFailedUserNotFound, res.Status)

	require.Len(t, publisher.userIDs, 2)
	assert.Equal(t, []uint{user.ID, noDevice.ID}, publisher.userIDs)

	var event struct {
		Type         string                    `json:"type"`
		Notification database.PushNotification `json:"notification"`
	}
	require.NoError(t, json.Unmarshal(publisher.payloads[0], &event))
	assert.Equal(t, "notification", event.Type)
	assert.Equal(t, "Update", event.Notification.Title)

	inbox, err := d.ListForUser(ctx, user.ID, 10)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.False(t, inbox[0].IsRead)
	assert.JSONEq(t, `{"type":"application_status"}`, string(inbox[0].Data))

	require.NoError(t, d.MarkRead(ctx, user.ID, inbox[0].ID))
	err = d.MarkRead(ctx, noDevice.ID, inbox[0].ID)
	assert.True(t, errcode.Is(err, errcode.KindNotFound))

	all, err := d.ListPush(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
