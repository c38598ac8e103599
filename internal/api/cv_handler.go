package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"jobgate/internal/cvs"
	"jobgate/internal/errcode"
)

const cvDownloadTTL = 10 * time.Minute

// CVHandler serves the caller's CVs.
type CVHandler struct {
	cvs     *cvs.Service
	uploads uploadGuard
}

func NewCVHandler(svc *cvs.Service, scanner FileScanner, maxUploadBytes int64) *CVHandler {
	return &CVHandler{cvs: svc, uploads: uploadGuard{scanner: scanner, maxBytes: maxUploadBytes}}
}

func (h *CVHandler) List(c *gin.Context) {
	userID, _, ok := principalOrAbort(c)
	if !ok {
		return
	}
	items, err := h.cvs.List(c.Request.Context(), userID)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// Upload stores a scanned CV file from the multipart field "file".
func (h *CVHandler) Upload(c *gin.Context) {
	userID, _, ok := principalOrAbort(c)
	if !ok {
		return
	}
	file, err := h.uploads.receive(c, "file", cvExtensions)
	if err != nil {
		RespondError(c, err)
		return
	}
	if file == nil {
		BadRequest(c, "missing file")
		return
	}
	reader, err := file.Open()
	if err != nil {
		RespondError(c, errcode.Wrap(errcode.KindPersistence, "failed to open file", err))
		return
	}
	defer reader.Close()

	cv, err := h.cvs.Upload(c.Request.Context(), userID, file.Filename, contentTypeOf(file), file.Size, reader)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cv)
}

func (h *CVHandler) Download(c *gin.Context) {
	userID, _, ok := principalOrAbort(c)
	if !ok {
		return
	}
	cvID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	link, err := h.cvs.DownloadURL(c.Request.Context(), userID, cvID, cvDownloadTTL)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": link})
}

// Analysis returns the stored analysis of one of the caller's CVs.
func (h *CVHandler) Analysis(c *gin.Context) {
	userID, _, ok := principalOrAbort(c)
	if !ok {
		return
	}
	cvID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	cv, err := h.cvs.Analysis(c.Request.Context(), userID, cvID)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"cv_id":           cv.ID,
		"structured_data": cv.StructuredData,
		"features":        cv.Features,
		"analyzed":        cv.Features != nil,
	})
}

func (h *CVHandler) Delete(c *gin.Context) {
	userID, _, ok := principalOrAbort(c)
	if !ok {
		return
	}
	cvID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.cvs.Delete(c.Request.Context(), userID, cvID); err != nil {
		RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
