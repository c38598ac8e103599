package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"jobgate/internal/api/middleware"
	"jobgate/internal/database"
	"jobgate/internal/errcode"
	"jobgate/internal/jobs"
)

const applicationCVLinkTTL = 15 * time.Minute

// JobHandler serves job postings, their forms, and applications.
type JobHandler struct {
	jobs    *jobs.Service
	uploads uploadGuard
}

func NewJobHandler(svc *jobs.Service, scanner FileScanner, maxUploadBytes int64) *JobHandler {
	return &JobHandler{jobs: svc, uploads: uploadGuard{scanner: scanner, maxBytes: maxUploadBytes}}
}

func companyOrAbort(c *gin.Context) (uint, bool) {
	company, ok := middleware.CompanyFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return 0, false
	}
	return company.ID, true
}

// CreatePosting creates a posting, and its internal form when requested.
func (h *JobHandler) CreatePosting(c *gin.Context) {
	companyID, ok := companyOrAbort(c)
	if !ok {
		return
	}
	var in jobs.PostingInput
	if err := c.ShouldBindJSON(&in); err != nil {
		BadRequest(c, err.Error())
		return
	}
	job, err := h.jobs.CreatePosting(c.Request.Context(), companyID, in)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

// ListCompanyPostings lists the company's own postings.
func (h *JobHandler) ListCompanyPostings(c *gin.Context) {
	companyID, ok := companyOrAbort(c)
	if !ok {
		return
	}
	postings, err := h.jobs.ListCompanyPostings(c.Request.Context(), companyID)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": postings})
}

// GetCompanyPosting returns one of the company's postings regardless of status.
func (h *JobHandler) GetCompanyPosting(c *gin.Context) {
	companyID, ok := companyOrAbort(c)
	if !ok {
		return
	}
	jobID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	job, err := h.jobs.GetCompanyPosting(c.Request.Context(), companyID, jobID)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// UpdatePosting applies a partial update.
func (h *JobHandler) UpdatePosting(c *gin.Context) {
	companyID, ok := companyOrAbort(c)
	if !ok {
		return
	}
	jobID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var in jobs.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		BadRequest(c, err.Error())
		return
	}
	job, err := h.jobs.UpdatePosting(c.Request.Context(), companyID, jobID, in)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// DeletePosting removes a posting that has no applications.
func (h *JobHandler) DeletePosting(c *gin.Context) {
	companyID, ok := companyOrAbort(c)
	if !ok {
		return
	}
	jobID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.jobs.DeletePosting(c.Request.Context(), companyID, jobID); err != nil {
		RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ToggleStatus flips a posting between open and closed.
func (h *JobHandler) ToggleStatus(c *gin.Context) {
	companyID, ok := companyOrAbort(c)
	if !ok {
		return
	}
	jobID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	job, err := h.jobs.ToggleStatus(c.Request.Context(), companyID, jobID)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// CreateForm attaches an internal form to an existing posting.
func (h *JobHandler) CreateForm(c *gin.Context) {
	companyID, ok := companyOrAbort(c)
	if !ok {
		return
	}
	jobID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var in jobs.FormInput
	if err := c.ShouldBindJSON(&in); err != nil {
		BadRequest(c, err.Error())
		return
	}
	form, err := h.jobs.CreateForm(c.Request.Context(), companyID, jobID, in)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, form)
}

// ListOpenPostings is the public job board.
func (h *JobHandler) ListOpenPostings(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	postings, err := h.jobs.ListOpenPostings(c.Request.Context(), jobs.ListFilter{
		Query:    c.Query("q"),
		Location: c.Query("location"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": postings})
}

// GetOpenPosting returns a public posting with its form.
func (h *JobHandler) GetOpenPosting(c *gin.Context) {
	jobID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	job, err := h.jobs.GetOpenPosting(c.Request.Context(), jobID)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

type applicationBody struct {
	JobID       uint            `json:"job_id"`
	CVID        *uint           `json:"cv_id"`
	CoverLetter string          `json:"cover_letter"`
	FormData    json.RawMessage `json:"form_data"`
}

// SubmitApplication accepts JSON, or multipart with an optional "cv" file.
func (h *JobHandler) SubmitApplication(c *gin.Context) {
	userID, _, ok := principalOrAbort(c)
	if !ok {
		return
	}

	var in jobs.ApplicationInput
	if c.ContentType() == gin.MIMEMultipartPOSTForm {
		body, err := applicationFromForm(c)
		if err != nil {
			RespondError(c, err)
			return
		}
		in = body

		file, err := h.uploads.receive(c, "cv", cvExtensions)
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
			in.File = &jobs.UploadedFile{
				FileName:    file.Filename,
				ContentType: contentTypeOf(file),
				Size:        file.Size,
				Reader:      reader,
			}
		}
	} else {
		var body applicationBody
		if err := c.ShouldBindJSON(&body); err != nil {
			BadRequest(c, err.Error())
			return
		}
		in = jobs.ApplicationInput{JobID: body.JobID, CVID: body.CVID, CoverLetter: body.CoverLetter, FormData: body.FormData}
	}
	if in.JobID == 0 {
		BadRequest(c, "job_id is required")
		return
	}
	in.UserID = userID

	app, err := h.jobs.SubmitApplication(c.Request.Context(), in)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, app)
}

func applicationFromForm(c *gin.Context) (jobs.ApplicationInput, error) {
	var in jobs.ApplicationInput
	jobID, err := strconv.ParseUint(c.PostForm("job_id"), 10, 64)
	if err != nil {
		return in, errcode.Validation("job_id is required")
	}
	in.JobID = uint(jobID)
	if raw := c.PostForm("cv_id"); raw != "" {
		cvID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || cvID == 0 {
			return in, errcode.Validation("invalid cv_id")
		}
		id := uint(cvID)
		in.CVID = &id
	}
	in.CoverLetter = c.PostForm("cover_letter")
	if raw := c.PostForm("form_data"); raw != "" {
		in.FormData = json.RawMessage(raw)
	}
	return in, nil
}

// ListMyApplications lists the caller's applications.
func (h *JobHandler) ListMyApplications(c *gin.Context) {
	userID, _, ok := principalOrAbort(c)
	if !ok {
		return
	}
	apps, err := h.jobs.ListUserApplications(c.Request.Context(), userID)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": apps})
}

// ListCompanyApplications lists applications to the company's postings, optionally for one job.
func (h *JobHandler) ListCompanyApplications(c *gin.Context) {
	companyID, ok := companyOrAbort(c)
	if !ok {
		return
	}
	jobID, ok := optionalUintQuery(c, "job_id")
	if !ok {
		return
	}
	apps, err := h.jobs.ListCompanyApplications(c.Request.Context(), companyID, jobID)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": apps})
}

type applicationStatusBody struct {
	Status      database.ApplicationStatus `json:"status" binding:"required"`
	ReviewNotes string                     `json:"review_notes"`
}

// UpdateApplicationStatus moves an application to its next review state.
func (h *JobHandler) UpdateApplicationStatus(c *gin.Context) {
	companyID, ok := companyOrAbort(c)
	if !ok {
		return
	}
	appID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var body applicationStatusBody
	if err := c.ShouldBindJSON(&body); err != nil {
		BadRequest(c, err.Error())
		return
	}
	app, err := h.jobs.UpdateApplicationStatus(c.Request.Context(), companyID, appID, body.Status, body.ReviewNotes)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

// ApplicationCV returns a short-lived link to the CV attached to an application.
func (h *JobHandler) ApplicationCV(c *gin.Context) {
	companyID, ok := companyOrAbort(c)
	if !ok {
		return
	}
	appID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	link, err := h.jobs.ApplicationCVURL(c.Request.Context(), companyID, appID, applicationCVLinkTTL)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": link})
}
