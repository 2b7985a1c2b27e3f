package dto

import (
	"meeting-rag-api/internal/infrastructure/messaging"
)

// IndexMeetingRequest is the body of POST /v1/meetings/index.
type IndexMeetingRequest struct {
	MeetingID         string `json:"meeting_id" binding:"required"`
	TranscriptLocator string `json:"transcript_locator,omitempty"`
	SummaryLocator    string `json:"summary_locator,omitempty"`
}

type IndexMeetingResponse struct {
	MeetingID string `json:"meeting_id"`
	MessageID string `json:"message_id"`
	StreamID  string `json:"stream_id"`
}

func (r *IndexMeetingRequest) ToTrigger() *messaging.IndexTrigger {
	return &messaging.IndexTrigger{
		MeetingID:         r.MeetingID,
		TranscriptLocator: r.TranscriptLocator,
		SummaryLocator:    r.SummaryLocator,
	}
}
