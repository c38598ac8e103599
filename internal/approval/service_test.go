package approval

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"jobgate/internal/config"
	"jobgate/internal/database"
	"jobgate/internal/errcode"
	"jobgate/internal/notify"
	"jobgate/internal/testutil"
)

func newTestService(t *testing.T) (*Service, *gorm.DB, *testutil.RecordingTransport) {
	t.Helper()
	db := testutil.NewDB(t)
	mail := testutil.NewRecordingTransport()
	dispatcher := notify.NewDispatcher(db, notify.Options{Email: mail})
	svc := NewService(db, dispatcher, config.CompanyConfig{
		SetPasswordURL: "https://app.example.com/company/set-password",
		TokenTTL:       time.Hour,
	}, nil)
	return svc, db, mail
}

func validInput(email string) SubmitInput {
	return SubmitInput{
		Name:          "Acme",
		Email:         email,
		Phone:         "+15550100",
		LicenseDocURL: "https://docs.example.com/acme.pdf",
	}
}

func TestSubmitValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	in := validInput("acme@example.com")
	in.Phone = ""
	_, err := svc.Submit(ctx, in)
	assert.True(t, errcode.Is(err, errcode.KindValidation))

	_, err = svc.Submit(ctx, validInput("not-an-email"))
	assert.True(t, errcode.Is(err, errcode.KindValidation))
}

func TestSubmitNormalizesEmailAndRejectsSecondPending(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	req, err := svc.Submit(ctx, validInput("  HR@Acme.Example.com "))
	require.NoError(t, err)
	assert.Equal(t, "hr@acme.example.com", req.Email)
	assert.Equal(t, database.RequestPending, req.Status)

	_, err = svc.Submit(ctx, validInput("hr@acme.example.com"))
	e, ok := errcode.As(err)
	require.True(t, ok)
	assert.Equal(t, errcode.KindConflict, e.Kind)
	assert.Equal(t, 400, e.HTTPStatus())
}

func TestApproveCreatesCompanyAndSendsSetPasswordEmail(t *testing.T) {
	svc, db, mail := newTestService(t)
	ctx := context.Background()

	req, err := svc.Submit(ctx, validInput("acme@example.com"))
	require.NoError(t, err)

	res, err := svc.Approve(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, database.RequestApproved, res.Request.Status)
	require.NotNil(t, res.Request.ApprovedCompanyID)
	assert.Equal(t, res.Company.ID, *res.Request.ApprovedCompanyID)
	assert.True(t, res.Company.IsApproved)

	var stored database.CompanyRequest
	require.NoError(t, db.First(&stored, req.ID).Error)
	assert.Equal(t, database.RequestApproved, stored.Status)
	assert.NotNil(t, stored.ReviewedAt)

	require.Equal(t, 1, mail.Count())
	assert.Equal(t, "acme@example.com", mail.Sent[0].To)
	assert.Contains(t, mail.Sent[0].Body, "set-password?token="+res.Company.SetPasswordToken)

	var audits []database.EmailNotification
	require.NoError(t, db.Find(&audits).Error)
	require.Len(t, audits, 1)
	assert.NotContains(t, audits[0].Body, res.Company.SetPasswordToken)
	assert.Contains(t, audits[0].Body, "set-password?token="+redactedToken)

	_, err = svc.Approve(ctx, req.ID)
	assert.True(t, errcode.Is(err, errcode.KindState))
	_, err = svc.Reject(ctx, req.ID, "too late")
	assert.True(t, errcode.Is(err, errcode.KindState))
}

func TestApproveRollsBackCompanyWhenRequestUpdateFails(t *testing.T) {
	svc, db, mail := newTestService(t)
	ctx := context.Background()

	req, err := svc.Submit(ctx, validInput("acme@example.com"))
	require.NoError(t, err)

	require.NoError(t, db.Callback().Update().Before("gorm:update").Register("test:fail_request_update", func(d *gorm.DB) {
		if d.Statement.Table == "company_requests" {
			_ = d.AddError(errors.New("injected failure"))
		}
	}))

	_, err = svc.Approve(ctx, req.ID)
	assert.True(t, errcode.Is(err, errcode.KindPersistence))

	var companies int64
	require.NoError(t, db.Model(&database.Company{}).Count(&companies).Error)
	assert.Zero(t, companies)

	var stored database.CompanyRequest
	require.NoError(t, db.First(&stored, req.ID).Error)
	assert.Equal(t, database.RequestPending, stored.Status)
	assert.Zero(t, mail.Count())
}

func TestResubmitAfterApprovalConflicts(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	req, err := svc.Submit(ctx, validInput("acme@example.com"))
	require.NoError(t, err)
	_, err = svc.Approve(ctx, req.ID)
	require.NoError(t, err)

	_, err = svc.Submit(ctx, validInput("ACME@example.com"))
	assert.True(t, errcode.Is(err, errcode.KindConflict))
}

func TestReject(t *testing.T) {
	svc, _, mail := newTestService(t)
	ctx := context.Background()

	req, err := svc.Submit(ctx, validInput("acme@example.com"))
	require.NoError(t, err)

	_, err = svc.Reject(ctx, req.ID, "   ")
	assert.True(t, errcode.Is(err, errcode.KindValidation))

	rejected, err := svc.Reject(ctx, req.ID, "license unreadable")
	require.NoError(t, err)
	assert.Equal(t, database.RequestRejected, rejected.Status)
	assert.Equal(t, "license unreadable", rejected.AdminReviewNotes)

	_, err = svc.Approve(ctx, req.ID)
	assert.True(t, errcode.Is(err, errcode.KindState))
	assert.Zero(t, mail.Count())

	_, err = svc.Reject(ctx, 999, "missing")
	assert.True(t, errcode.Is(err, errcode.KindNotFound))
}

func TestListFiltersByStatus(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.Submit(ctx, validInput("a@example.com"))
	require.NoError(t, err)
	_, err = svc.Submit(ctx, validInput("b@example.com"))
	require.NoError(t, err)
	_, err = svc.Approve(ctx, a.ID)
	require.NoError(t, err)

	pending, err := svc.List(ctx, "pending")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "b@example.com", pending[0].Email)

	all, err := svc.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = svc.List(ctx, "archived")
	assert.True(t, errcode.Is(err, errcode.KindValidation))
}

func TestSetPasswordAndAuthenticate(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	req, err := svc.Submit(ctx, validInput("acme@example.com"))
	require.NoError(t, err)
	res, err := svc.Approve(ctx, req.ID)
	require.NoError(t, err)
	token := res.Company.SetPasswordToken

	_, err = svc.Authenticate(ctx, "acme@example.com", "whatever123")
	assert.True(t, errcode.Is(err, errcode.KindForbidden))

	_, err = svc.SetPassword(ctx, token, "short")
	assert.True(t, errcode.Is(err, errcode.KindValidation))

	_, err = svc.SetPassword(ctx, token, "supersecret")
	require.NoError(t, err)

	_, err = svc.SetPassword(ctx, token, "supersecret")
	assert.True(t, errcode.Is(err, errcode.KindValidation), "token is single use")

	company, err := svc.Authenticate(ctx, "ACME@example.com", "supersecret")
	require.NoError(t, err)
	assert.Equal(t, res.Company.ID, company.ID)

	_, err = svc.Authenticate(ctx, "acme@example.com", "wrong-password")
	e, ok := errcode.As(err)
	require.True(t, ok)
	assert.Equal(t, 401, e.HTTPStatus())

	require.NoError(t, svc.ChangePassword(ctx, company.ID, "supersecret", "evenmoresecret"))
	err = svc.ChangePassword(ctx, company.ID, "supersecret", "another-one")
	assert.True(t, errcode.Is(err, errcode.KindForbidden))
}

func TestSetPasswordExpiredToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	req, err := svc.Submit(ctx, validInput("acme@example.com"))
	require.NoError(t, err)
	res, err := svc.Approve(ctx, req.ID)
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.SetPassword(ctx, res.Company.SetPasswordToken, "supersecret")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "expired"))
}
