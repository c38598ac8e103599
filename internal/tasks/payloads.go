package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// Task types shared by the API (producer) and the worker (consumer).
const (
	TypeCVAnalyze = "cv:analyze"
)

// CVAnalyzePayload carries the CV text to analyse. The text travels with the task so the
// worker never re-reads the upload.
type CVAnalyzePayload struct {
	CVID          uint   `json:"cv_id"`
	UserID        uint   `json:"user_id"`
	Text          string `json:"text"`
	UseAI         bool   `json:"use_ai"`
	CorrelationID string `json:"correlation_id"`
}

// NewCVAnalyzeTask builds a cv:analyze task.
func NewCVAnalyzeTask(p CVAnalyzePayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal cv analyze payload: %w", err)
	}
	return asynq.NewTask(TypeCVAnalyze, payload, asynq.MaxRetry(3)), nil
}

// ParseCVAnalyzePayload decodes a cv:analyze task payload.
func ParseCVAnalyzePayload(t *asynq.Task) (CVAnalyzePayload, error) {
	var p CVAnalyzePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("unmarshal cv analyze payload: %w", err)
	}
	return p, nil
}
