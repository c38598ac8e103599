package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"jobgate/internal/database"
	"jobgate/internal/errcode"
)

// ATSCompliantScore is the minimum score considered ATS compliant.
const ATSCompliantScore = 70

// CVFeatures are the scalar features returned by CV analysis.
type CVFeatures struct {
	TotalYearsExperience float64  `json:"total_years_experience"`
	KeySkills            []string `json:"key_skills"`
	AchievementCount     int      `json:"achievement_count"`
	HasContactInfo       bool     `json:"has_contact_info"`
	HasEducation         bool     `json:"has_education"`
	HasExperience        bool     `json:"has_experience"`
}

// CVAnalysis is the response of /cv/analyze-text. StructuredData is kept opaque.
type CVAnalysis struct {
	StructuredData json.RawMessage `json:"structured_data"`
	Features       CVFeatures      `json:"features"`
	ATSScore       *float64        `json:"ats_score"`
	LegacyScore    *float64        `json:"score"`
}

// Score returns ats_score, falling back to score, then 0.
func (a *CVAnalysis) Score() float64 {
	switch {
	case a.ATSScore != nil:
		return *a.ATSScore
	case a.LegacyScore != nil:
		return *a.LegacyScore
	default:
		return 0
	}
}

// Structured returns the structured document, or an empty object when absent.
func (a *CVAnalysis) Structured() json.RawMessage {
	trimmed := strings.TrimSpace(string(a.StructuredData))
	if trimmed == "" || trimmed == "null" {
		return json.RawMessage("{}")
	}
	return a.StructuredData
}

// Records converts the analysis into the rows stored for cvID.
func (a *CVAnalysis) Records(cvID uint) (database.CVStructuredData, database.CVFeaturesAnalytics) {
	score := a.Score()
	skills := a.Features.KeySkills
	if skills == nil {
		skills = []string{}
	}
	return database.CVStructuredData{
			CVID:     cvID,
			DataJSON: []byte(a.Structured()),
		}, database.CVFeaturesAnalytics{
			CVID:                 cvID,
			ATSScore:             score,
			TotalYearsExperience: a.Features.TotalYearsExperience,
			KeySkills:            skills,
			AchievementCount:     a.Features.AchievementCount,
			HasContactInfo:       a.Features.HasContactInfo,
			HasEducation:         a.Features.HasEducation,
			HasExperience:        a.Features.HasExperience,
			IsATSCompliant:       score >= ATSCompliantScore,
		}
}

// AnalyzeCVText asks the service to parse and score a CV.
func (g *Gateway) AnalyzeCVText(ctx context.Context, userID uint, text string, useAI bool) (*CVAnalysis, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errcode.Validation("cv text is required")
	}
	var out CVAnalysis
	err := g.Call(ctx, http.MethodPost, "/cv/analyze-text", map[string]any{
		"user_id": userID,
		"cv_text": text,
		"use_ai":  useAI,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// StartChat opens a chatbot session. The response is passed through untouched.
func (g *Gateway) StartChat(ctx context.Context, userID uint, language string, initialData json.RawMessage) (json.RawMessage, error) {
	if language == "" {
		language = "english"
	}
	if len(initialData) == 0 {
		initialData = json.RawMessage("{}")
	}
	var out json.RawMessage
	err := g.Call(ctx, http.MethodPost, "/chatbot/start", map[string]any{
		"user_id":      userID,
		"language":     language,
		"initial_data": initialData,
	}, &out)
	return out, err
}

// SendChatMessage posts one message into a chatbot session.
func (g *Gateway) SendChatMessage(ctx context.Context, sessionID, message string) (json.RawMessage, error) {
	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(message) == "" {
		return nil, errcode.Validation("session_id and message are required")
	}
	var out json.RawMessage
	err := g.Call(ctx, http.MethodPost, "/chatbot/chat", map[string]any{
		"session_id": sessionID,
		"message":    message,
	}, &out)
	return out, err
}

// Health returns the service health document.
func (g *Gateway) Health(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	err := g.Call(ctx, http.MethodGet, "/health", nil, &out)
	return out, err
}
