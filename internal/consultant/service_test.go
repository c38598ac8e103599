package consultant

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"jobgate/internal/database"
	"jobgate/internal/errcode"
	"jobgate/internal/notify"
	"jobgate/internal/testutil"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	dispatcher := notify.NewDispatcher(db, notify.Options{Push: testutil.NewRecordingTransport()})
	return NewService(db, dispatcher, nil, nil), db
}

func pushRowsFor(t *testing.T, db *gorm.DB, userID uint) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&database.PushNotification{}).Where("user_id = ?", userID).Count(&n).Error)
	return n
}

func TestRequestUpgradeNotifiesAdmins(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	admin := testutil.CreateUser(t, db, "admin@example.com", database.UserTypeAdmin)
	seeker := testutil.CreateUser(t, db, "seeker@example.com", database.UserTypeSeeker)

	user, err := svc.RequestUpgrade(ctx, seeker.ID, Profile{Bio: "Career coach", ExpertiseFields: []string{"Tech"}})
	require.NoError(t, err)
	assert.Equal(t, database.UpgradePending, user.UpgradeRequestStatus)
	assert.Equal(t, int64(1), pushRowsFor(t, db, admin.ID))

	_, err = svc.RequestUpgrade(ctx, seeker.ID, Profile{})
	assert.True(t, errcode.Is(err, errcode.KindState))

	pending, err := svc.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, seeker.ID, pending[0].ID)
}

func TestRequestUpgradeGuards(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	admin := testutil.CreateUser(t, db, "admin@example.com", database.UserTypeAdmin)
	seeker := testutil.CreateUser(t, db, "seeker@example.com", database.UserTypeSeeker)

	_, err := svc.RequestUpgrade(ctx, admin.ID, Profile{})
	assert.True(t, errcode.Is(err, errcode.KindState))

	_, err = svc.RequestUpgrade(ctx, 999, Profile{})
	assert.True(t, errcode.Is(err, errcode.KindNotFound))

	negative := -1.0
	_, err = svc.RequestUpgrade(ctx, seeker.ID, Profile{HourlyRate: &negative})
	assert.True(t, errcode.Is(err, errcode.KindValidation))
}

func TestDecideAcceptMergesProfile(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	seeker := testutil.CreateUser(t, db, "seeker@example.com", database.UserTypeSeeker)

	_, err := svc.RequestUpgrade(ctx, seeker.ID, Profile{Bio: "Submitted bio", ExpertiseFields: []string{"Finance"}})
	require.NoError(t, err)

	rate := 80.0
	decision, err := svc.Decide(ctx, seeker.ID, "Accept", Profile{HourlyRate: &rate})
	require.NoError(t, err)
	require.NotNil(t, decision.Consultant)
	assert.Equal(t, "Submitted bio", decision.Consultant.Bio)
	assert.Equal(t, []string{"Finance"}, []string(decision.Consultant.ExpertiseFields))
	require.NotNil(t, decision.Consultant.HourlyRate)
	assert.Equal(t, 80.0, *decision.Consultant.HourlyRate)
	assert.Equal(t, database.UserTypeConsultant, decision.User.UserType)
	assert.Equal(t, database.UpgradeApproved, decision.User.UpgradeRequestStatus)
	assert.Equal(t, int64(1), pushRowsFor(t, db, seeker.ID))

	_, err = svc.Decide(ctx, seeker.ID, ActionReject, Profile{})
	assert.True(t, errcode.Is(err, errcode.KindState))

	got, err := svc.GetProfile(ctx, seeker.ID)
	require.NoError(t, err)
	require.NotNil(t, got.User)
	assert.Equal(t, "seeker@example.com", got.User.Email)
}

func TestDecideRejectAllowsNewRequest(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	seeker := testutil.CreateUser(t, db, "seeker@example.com", database.UserTypeSeeker)

	_, err := svc.RequestUpgrade(ctx, seeker.ID, Profile{})
	require.NoError(t, err)

	_, err = svc.Decide(ctx, seeker.ID, "promote", Profile{})
	assert.True(t, errcode.Is(err, errcode.KindValidation))

	decision, err := svc.Decide(ctx, seeker.ID, ActionReject, Profile{})
	require.NoError(t, err)
	assert.Nil(t, decision.Consultant)
	assert.Equal(t, database.UpgradeRejected, decision.User.UpgradeRequestStatus)
	assert.Equal(t, database.UserTypeSeeker, decision.User.UserType)

	var consultants int64
	require.NoError(t, db.Model(&database.Consultant{}).Count(&consultants).Error)
	assert.Zero(t, consultants)

	_, err = svc.RequestUpgrade(ctx, seeker.ID, Profile{})
	assert.NoError(t, err)
}

func TestListFiltersByExpertise(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	for _, tc := range []struct {
		email     string
		expertise []string
	}{
		{"a@example.com", []string{"Software Engineering"}},
		{"b@example.com", []string{"Marketing", "Sales"}},
	} {
		u := testutil.CreateUser(t, db, tc.email, database.UserTypeSeeker)
		_, err := svc.RequestUpgrade(ctx, u.ID, Profile{ExpertiseFields: tc.expertise})
		require.NoError(t, err)
		_, err = svc.Decide(ctx, u.ID, ActionAccept, Profile{})
		require.NoError(t, err)
	}

	all, err := svc.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	engineers, err := svc.List(ctx, "engineer")
	require.NoError(t, err)
	require.Len(t, engineers, 1)
	assert.Equal(t, "a@example.com", engineers[0].User.Email)
}

func TestRequestConsultation(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	consultant := testutil.CreateUser(t, db, "coach@example.com", database.UserTypeSeeker)
	seeker := testutil.CreateUser(t, db, "seeker@example.com", database.UserTypeSeeker)
	_, err := svc.RequestUpgrade(ctx, consultant.ID, Profile{})
	require.NoError(t, err)
	_, err = svc.Decide(ctx, consultant.ID, ActionAccept, Profile{})
	require.NoError(t, err)
	before := pushRowsFor(t, db, consultant.ID)

	_, _, err = svc.RequestConsultation(ctx, ConsultationRequest{RequesterID: seeker.ID, ConsultantUserID: consultant.ID})
	assert.True(t, errcode.Is(err, errcode.KindValidation))

	_, _, err = svc.RequestConsultation(ctx, ConsultationRequest{RequesterID: seeker.ID, ConsultantUserID: seeker.ID, Message: "hi"})
	assert.True(t, errcode.Is(err, errcode.KindValidation))

	c, res, err := svc.RequestConsultation(ctx, ConsultationRequest{
		RequesterID:      seeker.ID,
		ConsultantUserID: consultant.ID,
		Message:          "Can you review my CV?",
	})
	require.NoError(t, err)
	assert.Equal(t, consultant.ID, c.UserID)
	assert.Equal(t, database.DeliveryFailedNoDeviceToken, res.Status)
	assert.Equal(t, before+1, pushRowsFor(t, db, consultant.ID))
}

func TestDecideAcceptRollsBackConsultantWhenUserUpdateFails(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	seeker := testutil.CreateUser(t, db, "seeker@example.com", database.UserTypeSeeker)

	_, err := svc.RequestUpgrade(ctx, seeker.ID, Profile{Bio: "Coach"})
	require.NoError(t, err)

	require.NoError(t, db.Callback().Update().Before("gorm:update").Register("test:fail_user_update", func(d *gorm.DB) {
		if d.Statement.Table == "users" {
			_ = d.AddError(errors.New("injected failure"))
		}
	}))

	_, err = svc.Decide(ctx, seeker.ID, ActionAccept, Profile{})
	assert.True(t, errcode.Is(err, errcode.KindPersistence))

	var consultants int64
	require.NoError(t, db.Model(&database.Consultant{}).Count(&consultants).Error)
	assert.Zero(t, consultants)

	var stored database.User
	require.NoError(t, db.First(&stored, seeker.ID).Error)
	assert.Equal(t, database.UserTypeSeeker, stored.UserType)
	assert.Equal(t, database.UpgradePending, stored.UpgradeRequestStatus)
	assert.Zero(t, pushRowsFor(t, db, seeker.ID))
}

func TestDecideAcceptWithUnreadableSubmittedProfile(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	seeker := testutil.CreateUser(t, db, "seeker@example.com", database.UserTypeSeeker)

	require.NoError(t, db.Model(&database.User{}).Where("id = ?", seeker.ID).Updates(map[string]any{
		"upgrade_request_status":  database.UpgradePending,
		"upgrade_request_profile": datatypes.JSON("{not json"),
	}).Error)

	decision, err := svc.Decide(ctx, seeker.ID, ActionAccept, Profile{Bio: "Admin bio"})
	require.NoError(t, err)
	require.NotNil(t, decision.Consultant)
	assert.Equal(t, "Admin bio", decision.Consultant.Bio)
	assert.Empty(t, decision.Consultant.ExpertiseFields)
}
