package worker

import (
	"fmt"
	"strconv"

	"jobgate/internal/notify"
)

// Analysis outcome statuses carried in the push data and the in-app stream.
const (
	analysisCompleted = "completed"
	analysisFailed    = "error"
)

func analysisMessage(userID, cvID uint, correlationID, status string, score float64) notify.Message {
	msg := notify.Message{
		Channel: notify.ChannelPush,
		UserID:  userID,
		Data: map[string]string{
			"type":           "cv_analysis",
			"cv_id":          strconv.FormatUint(uint64(cvID), 10),
			"status":         status,
			"correlation_id": correlationID,
		},
	}
	if status == analysisCompleted {
		msg.Subject = "CV analysis ready"
		msg.Body = fmt.Sprintf("Your CV analysis is ready. ATS score: %.0f.", score)
		msg.Data["ats_score"] = strconv.FormatFloat(score, 'f', -1, 64)
		return msg
	}
	msg.Subject = "CV analysis failed"
	msg.Body = "We could not analyse your CV. Please try again later."
	return msg
}
