// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"jobgate/internal/auth"
	"jobgate/internal/database"
)

// NewDB returns a migrated, isolated in-memory sqlite database.
// A single connection keeps every query of a test on the same memory database.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Discard,
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sqlite: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// CreateUser inserts a user of the given type with password "password123".
func CreateUser(t *testing.T, db *gorm.DB, email string, userType database.UserType) database.User {
	t.Helper()
	hash, err := auth.HashPassword("password123")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := database.User{
		Name:                 "User " + email,
		Email:                email,
		PasswordHash:         hash,
		UserType:             userType,
		UpgradeRequestStatus: database.UpgradeNone,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

// CreateCompany inserts an approved company.
func CreateCompany(t *testing.T, db *gorm.DB, email string) database.Company {
	t.Helper()
	company := database.Company{
		Name:          "Company " + email,
		Email:         email,
		LicenseDocURL: "https://docs.example.com/license.pdf",
		IsApproved:    true,
	}
	if err := db.Create(&company).Error; err != nil {
		t.Fatalf("create company: %v", err)
	}
	return company
}

// CreateOpenJob inserts an open external-link posting owned by companyID.
func CreateOpenJob(t *testing.T, db *gorm.DB, companyID uint, title string) database.JobPosting {
	t.Helper()
	job := database.JobPosting{
		CompanyID:       companyID,
		Title:           title,
		Description:     "Description of " + title,
		Status:          database.JobOpen,
		FormType:        database.FormExternalLink,
		ExternalFormURL: "https://apply.example.com/" + uuid.NewString(),
	}
	if err := db.Create(&job).Error; err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job
}

// CreateCV inserts a CV owned by userID.
func CreateCV(t *testing.T, db *gorm.DB, userID uint) database.CV {
	t.Helper()
	cv := database.CV{
		UserID:    userID,
		FileName:  "cv.pdf",
		ObjectKey: "cvs/" + uuid.NewString() + ".pdf",
		FileType:  "application/pdf",
		FileSize:  1024,
	}
	if err := db.Create(&cv).Error; err != nil {
		t.Fatalf("create cv: %v", err)
	}
	return cv
}
