package approval

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"jobgate/internal/auth"
	"jobgate/internal/database"
	"jobgate/internal/errcode"
)

var errInvalidCredentials = errcode.Forbidden("invalid email or password").WithStatus(http.StatusUnauthorized)

// SetPassword consumes a one-time token issued at approval and stores the company password.
func (s *Service) SetPassword(ctx context.Context, token, password string) (*database.Company, error) {
	token = strings.TrimSpace(token)
	if token == "" || password == "" {
		return nil, errcode.Validation("token and password are required")
	}
	if len(password) < auth.MinPasswordLength {
		return nil, errcode.Validation("password must be at least 8 characters")
	}

	db := s.db.WithContext(ctx)
	var company database.Company
	if err := db.Where("set_password_token = ?", token).First(&company).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errcode.Validation("invalid or expired token")
		}
		return nil, errcode.Persistence("failed to load company", err)
	}
	if company.SetPasswordExpires == nil || s.now().After(*company.SetPasswordExpires) {
		return nil, errcode.Validation("invalid or expired token")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, errcode.Persistence("failed to hash password", err)
	}
	if err := db.Model(&company).Updates(map[string]any{
		"password_hash":        hash,
		"set_password_token":   "",
		"set_password_expires": nil,
	}).Error; err != nil {
		return nil, errcode.Persistence("failed to store company password", err)
	}
	company.PasswordHash = hash
	company.SetPasswordToken = ""
	company.SetPasswordExpires = nil
	return &company, nil
}

// Authenticate verifies company credentials. Only approved companies with a password may log in.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*database.Company, error) {
	email = auth.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, errcode.Validation("email and password are required")
	}

	var company database.Company
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&company).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, errcode.Persistence("failed to load company", err)
	}
	if company.PasswordHash == "" {
		return nil, errcode.Forbidden("company password has not been set")
	}
	if !auth.CheckPasswordHash(password, company.PasswordHash) {
		return nil, errInvalidCredentials
	}
	if !company.IsApproved {
		return nil, errcode.Forbidden("company is not approved")
	}
	return &company, nil
}

// ChangePassword replaces the password of an authenticated company.
func (s *Service) ChangePassword(ctx context.Context, companyID uint, oldPassword, newPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return errcode.Validation("old_password and new_password are required")
	}
	if len(newPassword) < auth.MinPasswordLength {
		return errcode.Validation("password must be at least 8 characters")
	}

	db := s.db.WithContext(ctx)
	var company database.Company
	if err := db.First(&company, companyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errcode.NotFound("company not found")
		}
		return errcode.Persistence("failed to load company", err)
	}
	if !auth.CheckPasswordHash(oldPassword, company.PasswordHash) {
		return errcode.Forbidden("current password is incorrect")
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return errcode.Persistence("failed to hash password", err)
	}
	if err := db.Model(&company).Update("password_hash", hash).Error; err != nil {
		return errcode.Persistence("failed to store company password", err)
	}
	return nil
}
