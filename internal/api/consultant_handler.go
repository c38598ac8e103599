package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"jobgate/internal/consultant"
)

// ConsultantHandler serves upgrade requests, their review, and the consultant directory.
type ConsultantHandler struct {
	consultants *consultant.Service
}

func NewConsultantHandler(svc *consultant.Service) *ConsultantHandler {
	return &ConsultantHandler{consultants: svc}
}

// RequestUpgrade submits the caller's upgrade request with an optional profile.
func (h *ConsultantHandler) RequestUpgrade(c *gin.Context) {
	userID, _, ok := principalOrAbort(c)
	if !ok {
		return
	}
	var profile consultant.Profile
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&profile); err != nil {
			BadRequest(c, err.Error())
			return
		}
	}
	user, err := h.consultants.RequestUpgrade(c.Request.Context(), userID, profile)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": user.ID, "upgrade_request_status": user.UpgradeRequestStatus})
}

// ListPending lists users awaiting an upgrade decision.
func (h *ConsultantHandler) ListPending(c *gin.Context) {
	users, err := h.consultants.ListPending(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": users})
}

type decideBody struct {
	Action string `json:"action" binding:"required"`
	consultant.Profile
}

// Decide accepts or rejects a pending upgrade request.
func (h *ConsultantHandler) Decide(c *gin.Context) {
	userID, ok := uintParam(c, "user_id")
	if !ok {
		return
	}
	var body decideBody
	if err := c.ShouldBindJSON(&body); err != nil {
		BadRequest(c, err.Error())
		return
	}
	decision, err := h.consultants.Decide(c.Request.Context(), userID, body.Action, body.Profile)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, decision)
}

// List is the public consultant directory, filtered by expertise with ?expertise=.
func (h *ConsultantHandler) List(c *gin.Context) {
	items, err := h.consultants.List(c.Request.Context(), c.Query("expertise"))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *ConsultantHandler) Get(c *gin.Context) {
	userID, ok := uintParam(c, "user_id")
	if !ok {
		return
	}
	profile, err := h.consultants.GetProfile(c.Request.Context(), userID)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

type consultationBody struct {
	Message string `json:"message"`
}

// RequestConsultation notifies a consultant on behalf of the caller.
func (h *ConsultantHandler) RequestConsultation(c *gin.Context) {
	requesterID, _, ok := principalOrAbort(c)
	if !ok {
		return
	}
	consultantID, ok := uintParam(c, "user_id")
	if !ok {
		return
	}
	var body consultationBody
	if err := c.ShouldBindJSON(&body); err != nil {
		BadRequest(c, err.Error())
		return
	}
	profile, result, err := h.consultants.RequestConsultation(c.Request.Context(), consultant.ConsultationRequest{
		RequesterID:      requesterID,
		ConsultantUserID: consultantID,
		Message:          body.Message,
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"consultant": profile, "notification": result})
}
