package cvs

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobgate/internal/ai"
	"jobgate/internal/database"
	"jobgate/internal/errcode"
	"jobgate/internal/testutil"
)

func TestUploadListAndDownload(t *testing.T) {
	db := testutil.NewDB(t)
	store := testutil.NewFakeStore()
	svc := NewService(db, store, nil)
	user := testutil.CreateUser(t, db, "seeker@example.com", database.UserTypeSeeker)
	other := testutil.CreateUser(t, db, "other@example.com", database.UserTypeSeeker)
	ctx := context.Background()

	cv, err := svc.Upload(ctx, user.ID, "resume.pdf", "application/pdf", 3, bytes.NewReader([]byte("pdf")))
	require.NoError(t, err)
	assert.Contains(t, store.Objects, cv.ObjectKey)

	list, err := svc.List(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, cv.ID, list[0].ID)

	link, err := svc.DownloadURL(ctx, user.ID, cv.ID, time.Minute)
	require.NoError(t, err)
	assert.Contains(t, link, cv.ObjectKey)

	_, err = svc.DownloadURL(ctx, other.ID, cv.ID, time.Minute)
	assert.True(t, errcode.Is(err, errcode.KindNotFound))
}

func TestUploadStorageFailureWritesNothing(t *testing.T) {
	db := testutil.NewDB(t)
	store := testutil.NewFakeStore()
	store.UploadErr = errors.New("bucket offline")
	svc := NewService(db, store, nil)
	user := testutil.CreateUser(t, db, "seeker@example.com", database.UserTypeSeeker)

	_, err := svc.Upload(context.Background(), user.ID, "resume.pdf", "application/pdf", 3, bytes.NewReader([]byte("pdf")))
	assert.True(t, errcode.Is(err, errcode.KindPersistence))

	var count int64
	require.NoError(t, db.Model(&database.CV{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSaveAnalysisReplacesPreviousRows(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(db, nil, nil)
	user := testutil.CreateUser(t, db, "seeker@example.com", database.UserTypeSeeker)
	ctx := context.Background()

	cv, err := svc.CreateTextCV(ctx, user.ID, "ten years of go")
	require.NoError(t, err)

	low, high := 40.0, 90.0
	_, err = svc.SaveAnalysis(ctx, cv.ID, &ai.CVAnalysis{ATSScore: &low})
	require.NoError(t, err)
	features, err := svc.SaveAnalysis(ctx, cv.ID, &ai.CVAnalysis{
		StructuredData: []byte(`{"name":"Sam"}`),
		ATSScore:       &high,
		Features:       ai.CVFeatures{KeySkills: []string{"go", "sql"}},
	})
	require.NoError(t, err)
	assert.True(t, features.IsATSCompliant)

	got, err := svc.Analysis(ctx, user.ID, cv.ID)
	require.NoError(t, err)
	require.NotNil(t, got.StructuredData)
	require.NotNil(t, got.Features)
	assert.JSONEq(t, `{"name":"Sam"}`, string(got.StructuredData.DataJSON))
	assert.Equal(t, 90.0, got.Features.ATSScore)

	var rows int64
	require.NoError(t, db.Model(&database.CVFeaturesAnalytics{}).Where("cv_id = ?", cv.ID).Count(&rows).Error)
	assert.EqualValues(t, 1, rows)
}

func TestSaveAnalysisUnknownCV(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(db, nil, nil)
	_, err := svc.SaveAnalysis(context.Background(), 404, &ai.CVAnalysis{})
	assert.True(t, errcode.Is(err, errcode.KindNotFound))
}

func TestDeleteDetachesApplications(t *testing.T) {
	db := testutil.NewDB(t)
	store := testutil.NewFakeStore()
	svc := NewService(db, store, nil)
	user := testutil.CreateUser(t, db, "seeker@example.com", database.UserTypeSeeker)
	company := testutil.CreateCompany(t, db, "hr@acme.example.com")
	job := testutil.CreateOpenJob(t, db, company.ID, "Engineer")
	ctx := context.Background()

	cv, err := svc.Upload(ctx, user.ID, "resume.pdf", "application/pdf", 3, bytes.NewReader([]byte("pdf")))
	require.NoError(t, err)
	app := database.Application{UserID: user.ID, JobID: job.ID, CVID: &cv.ID, Status: database.ApplicationPending}
	require.NoError(t, db.Create(&app).Error)

	require.NoError(t, svc.Delete(ctx, user.ID, cv.ID))

	var reloaded database.Application
	require.NoError(t, db.First(&reloaded, app.ID).Error)
	assert.Nil(t, reloaded.CVID)
	assert.Contains(t, store.Deleted, cv.ObjectKey)

	assert.True(t, errcode.Is(svc.Delete(ctx, user.ID, cv.ID), errcode.KindNotFound))
}
