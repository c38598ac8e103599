package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"jobgate/internal/companies"
	"jobgate/internal/errcode"
	"jobgate/internal/jobs"
)

// CompaniesHandler serves the company directory, admin company management and
// the company's own profile, dashboard and CV requests.
type CompaniesHandler struct {
	companies *companies.Service
	jobs      *jobs.Service
	uploads   uploadGuard
}

func NewCompaniesHandler(companiesService *companies.Service, jobsService *jobs.Service, scanner FileScanner, maxUploadBytes int64) *CompaniesHandler {
	return &CompaniesHandler{
		companies: companiesService,
		jobs:      jobsService,
		uploads:   uploadGuard{scanner: scanner, maxBytes: maxUploadBytes},
	}
}

// ListApproved is the public company directory.
func (h *CompaniesHandler) ListApproved(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	list, err := h.companies.ListApproved(c.Request.Context(), companies.DirectoryFilter{
		Query:  c.Query("q"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": list})
}

// GetApproved returns an approved company with its open postings.
func (h *CompaniesHandler) GetApproved(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	profile, err := h.companies.GetApproved(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// ListAll lists every company; ?approved=true|false filters by approval.
func (h *CompaniesHandler) ListAll(c *gin.Context) {
	var approved *bool
	if raw := c.Query("approved"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			BadRequest(c, "invalid approved")
			return
		}
		approved = &v
	}
	list, err := h.companies.ListAll(c.Request.Context(), approved)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": list})
}

// Get returns any company to an admin.
func (h *CompaniesHandler) Get(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	company, err := h.companies.Get(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, company)
}

type companyUpdateBody struct {
	Name        *string `json:"name"`
	Email       *string `json:"email"`
	Phone       *string `json:"phone"`
	Description *string `json:"description"`
	LogoURL     *string `json:"logo_url"`
	IsApproved  *bool   `json:"is_approved"`
}

// Update applies an admin edit.
func (h *CompaniesHandler) Update(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var body companyUpdateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		BadRequest(c, err.Error())
		return
	}
	company, err := h.companies.Update(c.Request.Context(), id, companies.UpdateInput(body))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, company)
}

// Delete removes a company and everything it owns.
func (h *CompaniesHandler) Delete(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.companies.Delete(c.Request.Context(), id); err != nil {
		RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Profile returns the authenticated company's own record.
func (h *CompaniesHandler) Profile(c *gin.Context) {
	companyID, ok := companyOrAbort(c)
	if !ok {
		return
	}
	company, err := h.companies.Profile(c.Request.Context(), companyID)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, company)
}

type companyProfileBody struct {
	Name        *string `json:"name" form:"name"`
	Phone       *string `json:"phone" form:"phone"`
	Description *string `json:"description" form:"description"`
}

// UpdateProfile edits the company's own fields, as JSON or multipart with a logo file.
func (h *CompaniesHandler) UpdateProfile(c *gin.Context) {
	companyID, ok := companyOrAbort(c)
	if !ok {
		return
	}
	var body companyProfileBody
	if err := c.ShouldBind(&body); err != nil {
		BadRequest(c, err.Error())
		return
	}

	var logo *companies.Logo
	if c.ContentType() == gin.MIMEMultipartPOSTForm {
		file, err := h.uploads.receive(c, "logo", imageExtensions)
		if err != nil {
			RespondError(c, err)
			return
		}
		if file != nil {
			reader, err := file.Open()
			if err != nil {
				RespondError(c, errcode.Wrap(errcode.KindPersistence, "failed to open file", err))
				return
			}
			defer reader.Close()
			logo = &companies.Logo{
				FileName:    file.Filename,
				ContentType: contentTypeOf(file),
				Size:        file.Size,
				Reader:      reader,
			}
		}
	}

	company, err := h.companies.UpdateProfile(c.Request.Context(), companyID, companies.ProfileInput(body), logo)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, company)
}

// Dashboard summarises the company's postings and applications.
func (h *CompaniesHandler) Dashboard(c *gin.Context) {
	companyID, ok := companyOrAbort(c)
	if !ok {
		return
	}
	dashboard, err := h.companies.Dashboard(c.Request.Context(), companyID)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dashboard)
}

// GetApplication returns one application to the company's postings.
func (h *CompaniesHandler) GetApplication(c *gin.Context) {
	companyID, ok := companyOrAbort(c)
	if !ok {
		return
	}
	appID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	app, err := h.jobs.GetCompanyApplication(c.Request.Context(), companyID, appID)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

type cvRequestBody struct {
	RequestedRole   string   `json:"requested_role"`
	CVCount         int      `json:"cv_count"`
	ExperienceYears *int     `json:"experience_years"`
	Skills          []string `json:"skills"`
	Location        string   `json:"location"`
}

// CreateCVRequest records a request for candidate CVs.
func (h *CompaniesHandler) CreateCVRequest(c *gin.Context) {
	companyID, ok := companyOrAbort(c)
	if !ok {
		return
	}
	var body cvRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		BadRequest(c, err.Error())
		return
	}
	req, err := h.companies.CreateCVRequest(c.Request.Context(), companyID, companies.CVRequestInput(body))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

// ListCVRequests lists the company's CV requests.
func (h *CompaniesHandler) ListCVRequests(c *gin.Context) {
	companyID, ok := companyOrAbort(c)
	if !ok {
		return
	}
	reqs, err := h.companies.ListCVRequests(c.Request.Context(), companyID)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": reqs})
}

// ListOpenCVRequests lists open CV requests of every company for admins.
func (h *CompaniesHandler) ListOpenCVRequests(c *gin.Context) {
	reqs, err := h.companies.ListOpenCVRequests(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": reqs})
}

// FulfillCVRequest marks an open CV request fulfilled.
func (h *CompaniesHandler) FulfillCVRequest(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	req, err := h.companies.FulfillCVRequest(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}
