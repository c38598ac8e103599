package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"jobgate/internal/ai"
	"jobgate/internal/cvs"
	"jobgate/internal/errcode"
	"jobgate/internal/notify"
	"jobgate/internal/tasks"
)

// Analyzer is the part of the AI gateway the worker needs.
type Analyzer interface {
	AnalyzeCVText(ctx context.Context, userID uint, text string, useAI bool) (*ai.CVAnalysis, error)
}

// CVAnalysisHandler consumes cv:analyze tasks.
type CVAnalysisHandler struct {
	analyzer Analyzer
	cvs      *cvs.Service
	notifier notify.Sender
	logger   *slog.Logger
}

func NewCVAnalysisHandler(analyzer Analyzer, cvService *cvs.Service, notifier notify.Sender, logger *slog.Logger) *CVAnalysisHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CVAnalysisHandler{analyzer: analyzer, cvs: cvService, notifier: notifier, logger: logger}
}

// ProcessTask implements asynq.Handler.
func (h *CVAnalysisHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	payload, err := tasks.ParseCVAnalyzePayload(t)
	if err != nil {
		h.logger.Error("decode task payload failed", slog.Any("error", err))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	log := h.logger.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("cv_id", uint64(payload.CVID)),
		slog.Uint64("user_id", uint64(payload.UserID)),
	)
	log.Info("starting cv analysis")

	defer func() {
		if retErr == nil {
			return
		}
		if !errors.Is(retErr, asynq.SkipRetry) && !isFinalAsynqAttempt(ctx) {
			return
		}
		h.send(ctx, log, analysisMessage(payload.UserID, payload.CVID, payload.CorrelationID, analysisFailed, 0))
	}()

	analysis, err := h.analyzer.AnalyzeCVText(ctx, payload.UserID, payload.Text, payload.UseAI)
	if err != nil {
		log.Error("analyze cv failed", slog.Any("error", err))
		if !retryable(err) {
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
		return err
	}

	features, err := h.cvs.SaveAnalysis(ctx, payload.CVID, analysis)
	if err != nil {
		if errcode.Is(err, errcode.KindNotFound) {
			log.Warn("cv deleted before analysis finished, dropping result")
			return nil
		}
		log.Error("save cv analysis failed", slog.Any("error", err))
		return err
	}

	h.send(ctx, log, analysisMessage(payload.UserID, payload.CVID, payload.CorrelationID, analysisCompleted, features.ATSScore))
	log.Info("cv analysis completed", slog.Float64("ats_score", features.ATSScore))
	return nil
}

func (h *CVAnalysisHandler) send(ctx context.Context, log *slog.Logger, msg notify.Message) {
	if h.notifier == nil {
		return
	}
	if _, err := h.notifier.Notify(ctx, msg); err != nil {
		log.Warn("cv analysis notification rejected", slog.Any("error", err))
	}
}

// retryable reports whether another task attempt could succeed.
func retryable(err error) bool {
	if errcode.Is(err, errcode.KindValidation) {
		return false
	}
	var se *ai.ServiceError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return true
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
