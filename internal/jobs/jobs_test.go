package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"jobgate/internal/database"
	"jobgate/internal/errcode"
	"jobgate/internal/notify"
	"jobgate/internal/testutil"
)

type fixture struct {
	db      *gorm.DB
	store   *testutil.FakeStore
	push    *testutil.RecordingTransport
	svc     *Service
	company database.Company
	seeker  database.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	store := testutil.NewFakeStore()
	push := testutil.NewRecordingTransport()
	dispatcher := notify.NewDispatcher(db, notify.Options{Push: push})
	return &fixture{
		db:      db,
		store:   store,
		push:    push,
		svc:     NewService(db, store, dispatcher, nil),
		company: testutil.CreateCompany(t, db, "acme@example.com"),
		seeker:  testutil.CreateUser(t, db, "seeker@example.com", database.UserTypeSeeker),
	}
}

func ptr[T any](v T) *T { return &v }

func TestCreatePostingInternalForm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job, err := f.svc.CreatePosting(ctx, f.company.ID, PostingInput{
		Title:       "Backend Engineer",
		Description: "Build APIs",
		FormType:    database.FormInternal,
		RequireCV:   ptr(false),
		FormFields: []FieldInput{
			{Title: "Years of Go", InputType: database.InputNumber, IsRequired: true},
			{Title: "Seniority", InputType: database.InputSelect, Options: []string{"mid", "senior"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, database.JobOpen, job.Status)
	require.NotNil(t, job.Form)
	assert.False(t, job.Form.RequireCV)

	got, err := f.svc.GetOpenPosting(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Form)
	require.Len(t, got.Form.Fields, 2)
	assert.Equal(t, "Years of Go", got.Form.Fields[0].Title)
	assert.Equal(t, []string{"mid", "senior"}, []string(got.Form.Fields[1].Options))
	require.NotNil(t, got.Company)
	assert.Equal(t, f.company.ID, got.Company.ID)
}

func TestCreatePostingValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	external := "https://apply.example.com/job"
	cases := []struct {
		name string
		in   PostingInput
	}{
		{
			name: "missing title",
			in:   PostingInput{Description: "d", FormType: database.FormExternalLink, ExternalFormURL: external},
		},
		{
			name: "non http url",
			in:   PostingInput{Title: "t", Description: "d", FormType: database.FormExternalLink, ExternalFormURL: "ftp://x"},
		},
		{
			name: "salary range inverted",
			in: PostingInput{
				Title: "t", Description: "d", FormType: database.FormExternalLink, ExternalFormURL: external,
				SalaryMin: ptr(10.0), SalaryMax: ptr(5.0),
			},
		},
		{
			name: "select without options",
			in: PostingInput{
				Title: "t", Description: "d", FormType: database.FormInternal,
				FormFields: []FieldInput{{Title: "pick", InputType: database.InputSelect}},
			},
		},
		{
			name: "unknown input type",
			in: PostingInput{
				Title: "t", Description: "d", FormType: database.FormInternal,
				FormFields: []FieldInput{{Title: "x", InputType: "checkbox"}},
			},
		},
		{
			name: "fields on external link",
			in: PostingInput{
				Title: "t", Description: "d", FormType: database.FormExternalLink, ExternalFormURL: external,
				FormFields: []FieldInput{{Title: "x", InputType: database.InputText}},
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreatePosting(ctx, f.company.ID, tc.in)
			assert.True(t, errcode.Is(err, errcode.KindValidation), "got %v", err)
		})
	}

	var count int64
	require.NoError(t, f.db.Model(&database.JobPosting{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateFormSwitchesPostingAndRejectsSecond(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := testutil.CreateOpenJob(t, f.db, f.company.ID, "Designer")

	form, err := f.svc.CreateForm(ctx, f.company.ID, job.ID, FormInput{
		FormFields: []FieldInput{{Title: "Portfolio", InputType: database.InputText}},
	})
	require.NoError(t, err)
	assert.True(t, form.RequireCV)

	var stored database.JobPosting
	require.NoError(t, f.db.First(&stored, job.ID).Error)
	assert.Equal(t, database.FormInternal, stored.FormType)
	assert.Empty(t, stored.ExternalFormURL)

	_, err = f.svc.CreateForm(ctx, f.company.ID, job.ID, FormInput{})
	assert.True(t, errcode.Is(err, errcode.KindConflict))

	other := testutil.CreateCompany(t, f.db, "other@example.com")
	_, err = f.svc.CreateForm(ctx, other.ID, job.ID, FormInput{})
	assert.True(t, errcode.Is(err, errcode.KindNotFound))
}

func TestToggleHidesPostingFromApplicants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := testutil.CreateOpenJob(t, f.db, f.company.ID, "Analyst")
	cv := testutil.CreateCV(t, f.db, f.seeker.ID)

	toggled, err := f.svc.ToggleStatus(ctx, f.company.ID, job.ID)
	require.NoError(t, err)
	assert.Equal(t, database.JobClosed, toggled.Status)

	_, err = f.svc.GetOpenPosting(ctx, job.ID)
	assert.True(t, errcode.Is(err, errcode.KindNotFound))

	_, err = f.svc.SubmitApplication(ctx, ApplicationInput{UserID: f.seeker.ID, JobID: job.ID, CVID: &cv.ID})
	assert.True(t, errcode.Is(err, errcode.KindNotFound))

	list, err := f.svc.ListOpenPostings(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	toggled, err = f.svc.ToggleStatus(ctx, f.company.ID, job.ID)
	require.NoError(t, err)
	assert.Equal(t, database.JobOpen, toggled.Status)
}

func TestListOpenPostingsFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreatePosting(ctx, f.company.ID, PostingInput{
		Title: "Go Developer", Description: "Services", Location: "Berlin",
		FormType: database.FormExternalLink, ExternalFormURL: "https://apply.example.com/go",
	})
	require.NoError(t, err)
	_, err = f.svc.CreatePosting(ctx, f.company.ID, PostingInput{
		Title: "Data Analyst", Description: "Dashboards", Location: "Paris",
		FormType: database.FormExternalLink, ExternalFormURL: "https://apply.example.com/data",
	})
	require.NoError(t, err)

	byQuery, err := f.svc.ListOpenPostings(ctx, ListFilter{Query: "go"})
	require.NoError(t, err)
	require.Len(t, byQuery, 1)
	assert.Equal(t, "Go Developer", byQuery[0].Title)

	byLocation, err := f.svc.ListOpenPostings(ctx, ListFilter{Location: "paris"})
	require.NoError(t, err)
	require.Len(t, byLocation, 1)
	assert.Equal(t, "Data Analyst", byLocation[0].Title)

	paged, err := f.svc.ListOpenPostings(ctx, ListFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, paged, 1)
}

func TestSubmitApplicationWithExistingCV(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := testutil.CreateOpenJob(t, f.db, f.company.ID, "Engineer")
	cv := testutil.CreateCV(t, f.db, f.seeker.ID)

	app, err := f.svc.SubmitApplication(ctx, ApplicationInput{
		UserID:      f.seeker.ID,
		JobID:       job.ID,
		CVID:        &cv.ID,
		CoverLetter: "  Hello  ",
		FormData:    json.RawMessage(`{"years":3}`),
	})
	require.NoError(t, err)
	assert.Equal(t, database.ApplicationPending, app.Status)
	assert.Equal(t, "Hello", app.CoverLetter)
	assert.JSONEq(t, `{"years":3}`, string(app.FormData))

	_, err = f.svc.SubmitApplication(ctx, ApplicationInput{UserID: f.seeker.ID, JobID: job.ID, CVID: &cv.ID})
	assert.True(t, errcode.Is(err, errcode.KindConflict))

	mine, err := f.svc.ListUserApplications(ctx, f.seeker.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.NotNil(t, mine[0].Job)
	assert.NotNil(t, mine[0].Job.Company)
}

func TestSubmitApplicationRequiresCV(t *testing.T) {
	f := newFixture(t)
	job := testutil.CreateOpenJob(t, f.db, f.company.ID, "Engineer")

	_, err := f.svc.SubmitApplication(context.Background(), ApplicationInput{UserID: f.seeker.ID, JobID: job.ID})
	assert.True(t, errcode.Is(err, errcode.KindValidation))
}

func TestSubmitApplicationRejectsForeignCV(t *testing.T) {
	f := newFixture(t)
	job := testutil.CreateOpenJob(t, f.db, f.company.ID, "Engineer")
	other := testutil.CreateUser(t, f.db, "other@example.com", database.UserTypeSeeker)
	cv := testutil.CreateCV(t, f.db, other.ID)

	_, err := f.svc.SubmitApplication(context.Background(), ApplicationInput{UserID: f.seeker.ID, JobID: job.ID, CVID: &cv.ID})
	assert.True(t, errcode.Is(err, errcode.KindForbidden))

	missing := uint(9999)
	_, err = f.svc.SubmitApplication(context.Background(), ApplicationInput{UserID: f.seeker.ID, JobID: job.ID, CVID: &missing})
	assert.True(t, errcode.Is(err, errcode.KindNotFound))
}

func TestSubmitApplicationFormDataValidation(t *testing.T) {
	f := newFixture(t)
	job := testutil.CreateOpenJob(t, f.db, f.company.ID, "Engineer")
	cv := testutil.CreateCV(t, f.db, f.seeker.ID)

	_, err := f.svc.SubmitApplication(context.Background(), ApplicationInput{
		UserID: f.seeker.ID, JobID: job.ID, CVID: &cv.ID, FormData: json.RawMessage(`[1,2]`),
	})
	assert.True(t, errcode.Is(err, errcode.KindValidation))

	big := `{"a":"` + strings.Repeat("x", MaxFormDataBytes) + `"}`
	_, err = f.svc.SubmitApplication(context.Background(), ApplicationInput{
		UserID: f.seeker.ID, JobID: job.ID, CVID: &cv.ID, FormData: json.RawMessage(big),
	})
	assert.True(t, errcode.Is(err, errcode.KindValidation))
}

func TestSubmitApplicationWithUploadedCV(t *testing.T) {
	f := newFixture(t)
	job := testutil.CreateOpenJob(t, f.db, f.company.ID, "Engineer")

	app, err := f.svc.SubmitApplication(context.Background(), ApplicationInput{
		UserID: f.seeker.ID,
		JobID:  job.ID,
		File: &UploadedFile{
			FileName:    "resume.pdf",
			ContentType: "application/pdf",
			Size:        3,
			Reader:      bytes.NewReader([]byte("pdf")),
		},
	})
	require.NoError(t, err)
	require.NotNil(t, app.CVID)

	var cv database.CV
	require.NoError(t, f.db.First(&cv, *app.CVID).Error)
	assert.Equal(t, f.seeker.ID, cv.UserID)
	assert.Contains(t, f.store.Objects, cv.ObjectKey)
}

func TestSubmitApplicationDeletesUploadOnRollback(t *testing.T) {
	f := newFixture(t)
	job := testutil.CreateOpenJob(t, f.db, f.company.ID, "Engineer")

	require.NoError(t, f.db.Callback().Create().Before("gorm:create").Register("test:fail_application_create", func(d *gorm.DB) {
		if d.Statement.Table == "applications" {
			_ = d.AddError(errors.New("injected failure"))
		}
	}))

	_, err := f.svc.SubmitApplication(context.Background(), ApplicationInput{
		UserID: f.seeker.ID,
		JobID:  job.ID,
		File: &UploadedFile{
			FileName:    "resume.pdf",
			ContentType: "application/pdf",
			Size:        3,
			Reader:      bytes.NewReader([]byte("pdf")),
		},
	})
	assert.True(t, errcode.Is(err, errcode.KindPersistence))
	assert.Len(t, f.store.Deleted, 1)
	assert.Empty(t, f.store.Objects)

	var cvs int64
	require.NoError(t, f.db.Model(&database.CV{}).Count(&cvs).Error)
	assert.Zero(t, cvs)
}

func TestUpdateApplicationStatusTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := testutil.CreateOpenJob(t, f.db, f.company.ID, "Engineer")
	cv := testutil.CreateCV(t, f.db, f.seeker.ID)
	require.NoError(t, f.db.Model(&f.seeker).Update("device_token", "device-1").Error)

	app, err := f.svc.SubmitApplication(ctx, ApplicationInput{UserID: f.seeker.ID, JobID: job.ID, CVID: &cv.ID})
	require.NoError(t, err)

	_, err = f.svc.UpdateApplicationStatus(ctx, f.company.ID, app.ID, database.ApplicationPending, "")
	assert.True(t, errcode.Is(err, errcode.KindValidation))

	other := testutil.CreateCompany(t, f.db, "other@example.com")
	_, err = f.svc.UpdateApplicationStatus(ctx, other.ID, app.ID, database.ApplicationReviewed, "")
	assert.True(t, errcode.Is(err, errcode.KindNotFound))

	updated, err := f.svc.UpdateApplicationStatus(ctx, f.company.ID, app.ID, database.ApplicationReviewed, "looks good")
	require.NoError(t, err)
	assert.Equal(t, database.ApplicationReviewed, updated.Status)
	assert.Equal(t, "looks good", updated.ReviewNotes)

	_, err = f.svc.UpdateApplicationStatus(ctx, f.company.ID, app.ID, database.ApplicationAccepted, "")
	require.NoError(t, err)

	_, err = f.svc.UpdateApplicationStatus(ctx, f.company.ID, app.ID, database.ApplicationRejected, "")
	assert.True(t, errcode.Is(err, errcode.KindState))

	assert.Equal(t, 2, f.push.Count())

	received, err := f.svc.ListCompanyApplications(ctx, f.company.ID, &job.ID)
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, database.ApplicationAccepted, received[0].Status)
}

func TestGetCompanyApplicationIsScopedToOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := testutil.CreateOpenJob(t, f.db, f.company.ID, "Engineer")
	cv := testutil.CreateCV(t, f.db, f.seeker.ID)

	app, err := f.svc.SubmitApplication(ctx, ApplicationInput{UserID: f.seeker.ID, JobID: job.ID, CVID: &cv.ID})
	require.NoError(t, err)

	got, err := f.svc.GetCompanyApplication(ctx, f.company.ID, app.ID)
	require.NoError(t, err)
	require.NotNil(t, got.User)
	assert.Equal(t, f.seeker.Email, got.User.Email)
	require.NotNil(t, got.CV)
	assert.Equal(t, cv.ID, got.CV.ID)
	require.NotNil(t, got.Job)
	assert.Equal(t, job.ID, got.Job.ID)

	other := testutil.CreateCompany(t, f.db, "other@example.com")
	_, err = f.svc.GetCompanyApplication(ctx, other.ID, app.ID)
	assert.True(t, errcode.Is(err, errcode.KindNotFound))

	_, err = f.svc.GetCompanyApplication(ctx, f.company.ID, app.ID+100)
	assert.True(t, errcode.Is(err, errcode.KindNotFound))
}

func TestApplicationCVURL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := testutil.CreateOpenJob(t, f.db, f.company.ID, "Engineer")

	app, err := f.svc.SubmitApplication(ctx, ApplicationInput{
		UserID: f.seeker.ID,
		JobID:  job.ID,
		File:   &UploadedFile{FileName: "cv.pdf", ContentType: "application/pdf", Size: 1, Reader: bytes.NewReader([]byte("x"))},
	})
	require.NoError(t, err)

	link, err := f.svc.ApplicationCVURL(ctx, f.company.ID, app.ID, time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link, "https://storage.example.com/"))
}

func TestDeletePostingWithApplicationsIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := testutil.CreateOpenJob(t, f.db, f.company.ID, "Engineer")
	empty := testutil.CreateOpenJob(t, f.db, f.company.ID, "Intern")
	cv := testutil.CreateCV(t, f.db, f.seeker.ID)

	_, err := f.svc.SubmitApplication(ctx, ApplicationInput{UserID: f.seeker.ID, JobID: job.ID, CVID: &cv.ID})
	require.NoError(t, err)

	err = f.svc.DeletePosting(ctx, f.company.ID, job.ID)
	assert.True(t, errcode.Is(err, errcode.KindState))

	require.NoError(t, f.svc.DeletePosting(ctx, f.company.ID, empty.ID))
	_, err = f.svc.GetCompanyPosting(ctx, f.company.ID, empty.ID)
	assert.True(t, errcode.Is(err, errcode.KindNotFound))
}

func TestUpdatePosting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := testutil.CreateOpenJob(t, f.db, f.company.ID, "Engineer")

	updated, err := f.svc.UpdatePosting(ctx, f.company.ID, job.ID, UpdateInput{Title: ptr("Senior Engineer"), Location: ptr(" Remote ")})
	require.NoError(t, err)
	assert.Equal(t, "Senior Engineer", updated.Title)
	assert.Equal(t, "Remote", updated.Location)

	internal := database.FormInternal
	_, err = f.svc.UpdatePosting(ctx, f.company.ID, job.ID, UpdateInput{FormType: &internal})
	assert.True(t, errcode.Is(err, errcode.KindValidation))

	_, err = f.svc.UpdatePosting(ctx, f.company.ID, job.ID, UpdateInput{Title: ptr("  ")})
	assert.True(t, errcode.Is(err, errcode.KindValidation))
}
