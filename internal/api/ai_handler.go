package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"jobgate/internal/ai"
	"jobgate/internal/api/middleware"
	"jobgate/internal/cvs"
	"jobgate/internal/errcode"
	"jobgate/internal/tasks"
)

// TaskEnqueuer is satisfied by *asynq.Client.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AIHandler proxies CV analysis and the chatbot to the AI service.
type AIHandler struct {
	gateway *ai.Gateway
	cvs     *cvs.Service
	queue   TaskEnqueuer
}

// NewAIHandler builds the handler. With a nil queue, saved analyses run inline.
func NewAIHandler(gateway *ai.Gateway, cvService *cvs.Service, queue TaskEnqueuer) *AIHandler {
	return &AIHandler{gateway: gateway, cvs: cvService, queue: queue}
}

type analyzeTextBody struct {
	Text     string `json:"text"`
	CVText   string `json:"cv_text"`
	UseAI    bool   `json:"use_ai"`
	SaveToDB *bool  `json:"save_to_db"`
}

// AnalyzeText analyses pasted CV text. When saving, the CV is stored and analysed by the worker.
func (h *AIHandler) AnalyzeText(c *gin.Context) {
	userID, _, ok := principalOrAbort(c)
	if !ok {
		return
	}
	var body analyzeTextBody
	if err := c.ShouldBindJSON(&body); err != nil {
		BadRequest(c, err.Error())
		return
	}
	text := body.Text
	if strings.TrimSpace(text) == "" {
		text = body.CVText
	}
	if strings.TrimSpace(text) == "" {
		RespondError(c, errcode.Validation("cv text is required"))
		return
	}
	save := body.SaveToDB == nil || *body.SaveToDB

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	if !save {
		analysis, err := h.gateway.AnalyzeCVText(ctx, userID, text, body.UseAI)
		if err != nil {
			RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"structured_data": analysis.Structured(),
			"features":        analysis.Features,
			"ats_score":       analysis.Score(),
			"saved_to_db":     false,
		})
		return
	}

	cv, err := h.cvs.CreateTextCV(ctx, userID, text)
	if err != nil {
		RespondError(c, err)
		return
	}

	if h.queue != nil {
		task, err := tasks.NewCVAnalyzeTask(tasks.CVAnalyzePayload{
			CVID:          cv.ID,
			UserID:        userID,
			Text:          text,
			UseAI:         body.UseAI,
			CorrelationID: middleware.GetCorrelationID(c),
		})
		if err == nil {
			_, err = h.queue.EnqueueContext(ctx, task)
		}
		if err != nil {
			logger.Error("enqueue cv analysis failed", slog.Uint64("cv_id", uint64(cv.ID)), slog.Any("error", err))
			if derr := h.cvs.Delete(context.WithoutCancel(ctx), userID, cv.ID); derr != nil {
				logger.Error("delete unqueued cv failed", slog.Any("error", derr))
			}
			RespondError(c, errcode.Persistence("failed to schedule cv analysis", err))
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"cv_id": cv.ID, "status": "processing", "saved_to_db": true})
		return
	}

	analysis, err := h.gateway.AnalyzeCVText(ctx, userID, text, body.UseAI)
	if err != nil {
		RespondError(c, err)
		return
	}
	if _, err := h.cvs.SaveAnalysis(ctx, cv.ID, analysis); err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"cv_id":           cv.ID,
		"structured_data": analysis.Structured(),
		"features":        analysis.Features,
		"ats_score":       analysis.Score(),
		"saved_to_db":     true,
	})
}

type chatStartBody struct {
	Language    string          `json:"language"`
	InitialData json.RawMessage `json:"initial_data"`
}

func (h *AIHandler) StartChat(c *gin.Context) {
	userID, _, ok := principalOrAbort(c)
	if !ok {
		return
	}
	var body chatStartBody
	if err := c.ShouldBindJSON(&body); err != nil {
		BadRequest(c, err.Error())
		return
	}
	out, err := h.gateway.StartChat(c.Request.Context(), userID, body.Language, body.InitialData)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.Data(http.StatusOK, gin.MIMEJSON, out)
}

type chatBody struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func (h *AIHandler) Chat(c *gin.Context) {
	var body chatBody
	if err := c.ShouldBindJSON(&body); err != nil {
		BadRequest(c, err.Error())
		return
	}
	out, err := h.gateway.SendChatMessage(c.Request.Context(), body.SessionID, body.Message)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.Data(http.StatusOK, gin.MIMEJSON, out)
}

// Health reports the AI service health; any failure is a 503.
func (h *AIHandler) Health(c *gin.Context) {
	out, err := h.gateway.Health(c.Request.Context())
	if err != nil {
		middleware.LoggerFromContext(c).Warn("ai service health check failed", slog.Any("error", err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "ai service is unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "ai_service": json.RawMessage(out)})
}
