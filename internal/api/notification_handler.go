package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"jobgate/internal/notify"
)

// NotificationHandler serves admin-initiated notifications and the user inbox.
type NotificationHandler struct {
	dispatcher *notify.Dispatcher
}

func NewNotificationHandler(dispatcher *notify.Dispatcher) *NotificationHandler {
	return &NotificationHandler{dispatcher: dispatcher}
}

type emailBody struct {
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// SendEmail emails a custom address. The response reports the recorded delivery outcome.
func (h *NotificationHandler) SendEmail(c *gin.Context) {
	adminID, _, ok := principalOrAbort(c)
	if !ok {
		return
	}
	var body emailBody
	if err := c.ShouldBindJSON(&body); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if body.Email == "" {
		BadRequest(c, "email is required")
		return
	}
	h.dispatch(c, notify.Message{
		Channel:  notify.ChannelEmail,
		Email:    body.Email,
		Subject:  body.Subject,
		Body:     body.Message,
		SenderID: &adminID,
	})
}

// SendCompanyEmail emails the address of a company.
func (h *NotificationHandler) SendCompanyEmail(c *gin.Context) {
	adminID, _, ok := principalOrAbort(c)
	if !ok {
		return
	}
	companyID, ok := uintParam(c, "company_id")
	if !ok {
		return
	}
	var body emailBody
	if err := c.ShouldBindJSON(&body); err != nil {
		BadRequest(c, err.Error())
		return
	}
	h.dispatch(c, notify.Message{
		Channel:   notify.ChannelEmail,
		CompanyID: &companyID,
		Subject:   body.Subject,
		Body:      body.Message,
		SenderID:  &adminID,
	})
}

type pushBody struct {
	UserID  uint              `json:"user_id"`
	Title   string            `json:"title"`
	Message string            `json:"message"`
	Data    map[string]string `json:"data"`
}

// SendPush pushes a notification to a user.
func (h *NotificationHandler) SendPush(c *gin.Context) {
	adminID, _, ok := principalOrAbort(c)
	if !ok {
		return
	}
	var body pushBody
	if err := c.ShouldBindJSON(&body); err != nil {
		BadRequest(c, err.Error())
		return
	}
	h.dispatch(c, notify.Message{
		Channel:  notify.ChannelPush,
		UserID:   body.UserID,
		Subject:  body.Title,
		Body:     body.Message,
		Data:     body.Data,
		SenderID: &adminID,
	})
}

// dispatch answers 201 when delivered and 202 when the attempt was recorded as failed.
func (h *NotificationHandler) dispatch(c *gin.Context, msg notify.Message) {
	result, err := h.dispatcher.Notify(c.Request.Context(), msg)
	if err != nil {
		RespondError(c, err)
		return
	}
	status := http.StatusCreated
	if !result.Delivered() {
		status = http.StatusAccepted
	}
	c.JSON(status, result)
}

func limitQuery(c *gin.Context) int {
	limit, _ := strconv.Atoi(c.Query("limit"))
	return limit
}

func (h *NotificationHandler) ListEmails(c *gin.Context) {
	rows, err := h.dispatcher.ListEmails(c.Request.Context(), limitQuery(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": rows})
}

func (h *NotificationHandler) ListPush(c *gin.Context) {
	rows, err := h.dispatcher.ListPush(c.Request.Context(), limitQuery(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": rows})
}

// ListMine returns the caller's notification inbox.
func (h *NotificationHandler) ListMine(c *gin.Context) {
	userID, _, ok := principalOrAbort(c)
	if !ok {
		return
	}
	rows, err := h.dispatcher.ListForUser(c.Request.Context(), userID, limitQuery(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": rows})
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID, _, ok := principalOrAbort(c)
	if !ok {
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.dispatcher.MarkRead(c.Request.Context(), userID, id); err != nil {
		RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
