package database

import (
	"time"

	"gorm.io/datatypes"
)

// UserType distinguishes seekers, admins and upgraded consultants.
type UserType string

const (
	UserTypeSeeker     UserType = "seeker"
	UserTypeAdmin      UserType = "admin"
	UserTypeConsultant UserType = "consultant"
)

// UpgradeStatus tracks the consultant upgrade request independently of UserType.
type UpgradeStatus string

const (
	UpgradeNone     UpgradeStatus = "None"
	UpgradePending  UpgradeStatus = "Pending"
	UpgradeApproved UpgradeStatus = "Approved"
	UpgradeRejected UpgradeStatus = "Rejected"
)

// RequestStatus is the company registration request state.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// JobStatus is the posting visibility state.
type JobStatus string

const (
	JobOpen   JobStatus = "open"
	JobClosed JobStatus = "closed"
)

// FormType selects how candidates apply to a posting.
type FormType string

const (
	FormExternalLink FormType = "external_link"
	FormInternal     FormType = "internal_form"
)

// InputType is the kind of an internal form field.
type InputType string

const (
	InputText     InputType = "text"
	InputNumber   InputType = "number"
	InputEmail    InputType = "email"
	InputFile     InputType = "file"
	InputSelect   InputType = "select"
	InputTextarea InputType = "textarea"
)

// Valid reports whether t is one of the supported input types.
func (t InputType) Valid() bool {
	switch t {
	case InputText, InputNumber, InputEmail, InputFile, InputSelect, InputTextarea:
		return true
	}
	return false
}

// ApplicationStatus is the review state of an application.
type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationReviewed ApplicationStatus = "reviewed"
	ApplicationAccepted ApplicationStatus = "accepted"
	ApplicationRejected ApplicationStatus = "rejected"
)

// Delivery statuses recorded on notification audit rows.
const (
	DeliverySent                   = "sent"
	DeliveryFailed                 = "failed"
	DeliveryFailedNoRecipient      = "failed_no_recipient"
	DeliveryFailedCompanyNotFound  = "failed_company_not_found"
	DeliveryFailedUserNotFound     = "failed_user_not_found"
	DeliveryFailedNoDeviceToken    = "failed_no_device_token"
	DeliveryFailedTransportMissing = "failed_transport_unavailable"
)

// User is a seeker, admin or consultant account.
type User struct {
	ID                    uint           `gorm:"primaryKey" json:"id"`
	Name                  string         `gorm:"size:255;not null" json:"name"`
	Email                 string         `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Phone                 string         `gorm:"size:32" json:"phone,omitempty"`
	PasswordHash          string         `gorm:"size:255;not null" json:"-"`
	UserType              UserType       `gorm:"size:20;not null;index" json:"user_type"`
	UpgradeRequestStatus  UpgradeStatus  `gorm:"size:20;not null;index" json:"upgrade_request_status"`
	UpgradeRequestProfile datatypes.JSON `json:"upgrade_request_profile,omitempty"`
	DeviceToken           string         `gorm:"size:512" json:"-"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

// Consultant extends an upgraded User.
type Consultant struct {
	ID              uint                        `gorm:"primaryKey" json:"id"`
	UserID          uint                        `gorm:"uniqueIndex;not null" json:"user_id"`
	User            *User                       `gorm:"constraint:OnDelete:CASCADE" json:"user,omitempty"`
	Bio             string                      `gorm:"type:text" json:"bio"`
	ExpertiseFields datatypes.JSONSlice[string] `json:"expertise_fields"`
	WorkHistoryURL  string                      `gorm:"size:512" json:"work_history_url,omitempty"`
	HourlyRate      *float64                    `json:"hourly_rate,omitempty"`
	ClientsServed   int                         `json:"clients_served"`
	CreatedAt       time.Time                   `json:"created_at"`
	UpdatedAt       time.Time                   `json:"updated_at"`
}

// Company is created once, by approving a CompanyRequest.
type Company struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	Name               string     `gorm:"size:255;not null" json:"name"`
	Email              string     `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Phone              string     `gorm:"size:32" json:"phone,omitempty"`
	Description        string     `gorm:"type:text" json:"description,omitempty"`
	LogoURL            string     `gorm:"size:512" json:"logo_url,omitempty"`
	LicenseDocURL      string     `gorm:"size:512" json:"license_doc_url,omitempty"`
	IsApproved         bool       `gorm:"not null" json:"is_approved"`
	PasswordHash       string     `gorm:"size:255" json:"-"`
	SetPasswordToken   string     `gorm:"size:128;index" json:"-"`
	SetPasswordExpires *time.Time `json:"-"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// CompanyRequest is a public registration request awaiting admin review.
type CompanyRequest struct {
	ID                uint          `gorm:"primaryKey" json:"id"`
	Name              string        `gorm:"size:255;not null" json:"name"`
	Email             string        `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Phone             string        `gorm:"size:32" json:"phone,omitempty"`
	LicenseDocURL     string        `gorm:"size:512;not null" json:"license_doc_url"`
	Description       string        `gorm:"type:text" json:"description,omitempty"`
	LogoURL           string        `gorm:"size:512" json:"logo_url,omitempty"`
	Status            RequestStatus `gorm:"size:20;not null;index" json:"status"`
	AdminReviewNotes  string        `gorm:"type:text" json:"admin_review_notes,omitempty"`
	ApprovedCompanyID *uint         `json:"approved_company_id,omitempty"`
	ApprovedCompany   *Company      `gorm:"constraint:OnDelete:SET NULL" json:"approved_company,omitempty"`
	ReviewedAt        *time.Time    `json:"reviewed_at,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// CVRequestStatus is the fulfilment state of a CompanyCVRequest.
type CVRequestStatus string

const (
	CVRequestOpen      CVRequestStatus = "open"
	CVRequestFulfilled CVRequestStatus = "fulfilled"
)

// CompanyCVRequest asks for a batch of candidate CVs matching a role.
type CompanyCVRequest struct {
	ID              uint                        `gorm:"primaryKey" json:"id"`
	CompanyID       uint                        `gorm:"index;not null" json:"company_id"`
	Company         *Company                    `gorm:"constraint:OnDelete:CASCADE" json:"company,omitempty"`
	RequestedRole   string                      `gorm:"size:255;not null" json:"requested_role"`
	ExperienceYears *int                        `json:"experience_years,omitempty"`
	Skills          datatypes.JSONSlice[string] `json:"skills,omitempty"`
	Location        string                      `gorm:"size:255" json:"location,omitempty"`
	CVCount         int                         `gorm:"column:cv_count;not null" json:"cv_count"`
	Status          CVRequestStatus             `gorm:"size:20;not null;index" json:"status"`
	CreatedAt       time.Time                   `json:"created_at"`
	UpdatedAt       time.Time                   `json:"updated_at"`
}

// JobPosting is owned by exactly one Company.
type JobPosting struct {
	ID              uint          `gorm:"primaryKey" json:"id"`
	CompanyID       uint          `gorm:"index;not null" json:"company_id"`
	Company         *Company      `gorm:"constraint:OnDelete:CASCADE" json:"company,omitempty"`
	Title           string        `gorm:"size:255;not null" json:"title"`
	Description     string        `gorm:"type:text;not null" json:"description"`
	Requirements    string        `gorm:"type:text" json:"requirements,omitempty"`
	SalaryMin       *float64      `json:"salary_min,omitempty"`
	SalaryMax       *float64      `json:"salary_max,omitempty"`
	Location        string        `gorm:"size:255" json:"location,omitempty"`
	Status          JobStatus     `gorm:"size:20;not null;index" json:"status"`
	FormType        FormType      `gorm:"size:20;not null" json:"form_type"`
	ExternalFormURL string        `gorm:"size:512" json:"external_form_url,omitempty"`
	Form            *JobForm      `gorm:"foreignKey:JobID;constraint:OnDelete:CASCADE" json:"form,omitempty"`
	Applications    []Application `gorm:"foreignKey:JobID" json:"applications,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// JobForm is the optional internal application form of a posting.
type JobForm struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	JobID     uint           `gorm:"uniqueIndex;not null" json:"job_id"`
	RequireCV bool           `gorm:"not null" json:"require_cv"`
	Fields    []JobFormField `gorm:"foreignKey:FormID;constraint:OnDelete:CASCADE" json:"fields"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// JobFormField is one typed question of a JobForm.
type JobFormField struct {
	ID          uint                        `gorm:"primaryKey" json:"id"`
	FormID      uint                        `gorm:"index;not null" json:"form_id"`
	Title       string                      `gorm:"size:255;not null" json:"title"`
	Description string                      `gorm:"type:text" json:"description,omitempty"`
	IsRequired  bool                        `gorm:"not null" json:"is_required"`
	InputType   InputType                   `gorm:"size:20;not null" json:"input_type"`
	Options     datatypes.JSONSlice[string] `json:"options,omitempty"`
	Position    int                         `gorm:"not null" json:"position"`
}

// CV is a résumé file or text owned by a User.
type CV struct {
	ID             uint                 `gorm:"primaryKey" json:"id"`
	UserID         uint                 `gorm:"index;not null" json:"user_id"`
	FileName       string               `gorm:"size:255" json:"file_name"`
	ObjectKey      string               `gorm:"size:512" json:"-"`
	FileType       string               `gorm:"size:128" json:"file_type"`
	FileSize       int64                `json:"file_size"`
	RawText        string               `gorm:"type:text" json:"-"`
	StructuredData *CVStructuredData    `gorm:"foreignKey:CVID;constraint:OnDelete:CASCADE" json:"structured_data,omitempty"`
	Features       *CVFeaturesAnalytics `gorm:"foreignKey:CVID;constraint:OnDelete:CASCADE" json:"features,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// CVStructuredData holds the AI-derived document for a CV.
type CVStructuredData struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CVID      uint           `gorm:"column:cv_id;uniqueIndex;not null" json:"cv_id"`
	DataJSON  datatypes.JSON `gorm:"column:data_json" json:"data_json"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// CVFeaturesAnalytics holds scalar features extracted from a CV analysis.
type CVFeaturesAnalytics struct {
	ID                   uint                        `gorm:"primaryKey" json:"id"`
	CVID                 uint                        `gorm:"column:cv_id;uniqueIndex;not null" json:"cv_id"`
	ATSScore             float64                     `gorm:"column:ats_score" json:"ats_score"`
	TotalYearsExperience float64                     `json:"total_years_experience"`
	KeySkills            datatypes.JSONSlice[string] `json:"key_skills"`
	AchievementCount     int                         `json:"achievement_count"`
	HasContactInfo       bool                        `json:"has_contact_info"`
	HasEducation         bool                        `json:"has_education"`
	HasExperience        bool                        `json:"has_experience"`
	IsATSCompliant       bool                        `gorm:"column:is_ats_compliant" json:"is_ats_compliant"`
	CreatedAt            time.Time                   `json:"created_at"`
	UpdatedAt            time.Time                   `json:"updated_at"`
}

// Application links a User to a JobPosting. At most one per (user, job).
type Application struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	UserID      uint              `gorm:"uniqueIndex:idx_application_user_job;not null" json:"user_id"`
	JobID       uint              `gorm:"uniqueIndex:idx_application_user_job;not null;index" json:"job_id"`
	CVID        *uint             `gorm:"column:cv_id;index" json:"cv_id,omitempty"`
	User        *User             `gorm:"constraint:OnDelete:CASCADE" json:"user,omitempty"`
	Job         *JobPosting       `gorm:"foreignKey:JobID;constraint:OnDelete:CASCADE" json:"job,omitempty"`
	CV          *CV               `gorm:"foreignKey:CVID;constraint:OnDelete:SET NULL" json:"cv,omitempty"`
	CoverLetter string            `gorm:"type:text" json:"cover_letter,omitempty"`
	FormData    datatypes.JSON    `json:"form_data,omitempty"`
	Status      ApplicationStatus `gorm:"size:20;not null;index" json:"status"`
	ReviewNotes string            `gorm:"type:text" json:"review_notes,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// EmailNotification is the audit row of one email delivery attempt.
type EmailNotification struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	SenderID       *uint     `gorm:"index" json:"sender_id,omitempty"`
	CompanyID      *uint     `gorm:"index" json:"company_id,omitempty"`
	RecipientEmail string    `gorm:"size:255" json:"recipient_email"`
	Subject        string    `gorm:"size:255;not null" json:"subject"`
	Body           string    `gorm:"type:text;not null" json:"body"`
	Status         string    `gorm:"size:40;not null;index" json:"status"`
	ErrorDetail    string    `gorm:"type:text" json:"error_detail,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// PushNotification is the audit row of one push delivery attempt. It doubles as the user's inbox entry.
type PushNotification struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UserID      uint           `gorm:"index;not null" json:"user_id"`
	SenderID    *uint          `gorm:"index" json:"sender_id,omitempty"`
	Title       string         `gorm:"size:255;not null" json:"title"`
	Message     string         `gorm:"type:text;not null" json:"message"`
	Data        datatypes.JSON `json:"data,omitempty"`
	Status      string         `gorm:"size:40;not null;index" json:"status"`
	ErrorDetail string         `gorm:"type:text" json:"error_detail,omitempty"`
	IsRead      bool           `gorm:"not null" json:"is_read"`
	CreatedAt   time.Time      `json:"created_at"`
}

// IsSent reports whether the transport accepted the notification.
func (p PushNotification) IsSent() bool {
	return p.Status == DeliverySent
}
