package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"meeting-rag-api/internal/infrastructure/messaging"
	"meeting-rag-api/internal/interfaces/http/dto"
	apperrors "meeting-rag-api/pkg/errors"
	"meeting-rag-api/pkg/logger"
)

// IndexPublisher is satisfied by *messaging.Producer.
type IndexPublisher interface {
	Publish(ctx context.Context, stream messaging.Stream, msg *messaging.Message) (string, error)
}

type MeetingHandler struct {
	publisher IndexPublisher
}

func NewMeetingHandler(publisher IndexPublisher) *MeetingHandler {
	return &MeetingHandler{publisher: publisher}
}

// IndexMeeting queues a meeting for (re)indexing.
// @Summary Queue a meeting for indexing
// @Tags Meetings
// @Accept json
// @Produce json
// @Param body body dto.IndexMeetingRequest true "locators"
// @Success 202 {object} dto.Response[dto.IndexMeetingResponse]
// @Router /v1/meetings/index [post]
func (h *MeetingHandler) IndexMeeting(c *gin.Context) {
	var req dto.IndexMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	trigger := req.ToTrigger()
	if err := trigger.Validate(); err != nil {
		dto.BadRequest(c, err.Error())
		return
	}

	ctx := logger.WithContext(c.Request.Context(), logger.MeetingIDKey, trigger.MeetingID)
	msg, err := messaging.NewIndexMessage(ctx, trigger)
	if err != nil {
		dto.InternalError(c, "failed to build index message")
		return
	}

	streamID, err := h.publisher.Publish(ctx, messaging.StreamMeetingIndex, msg)
	if err != nil {
		appErr := apperrors.Wrap(err, apperrors.CodeQueueError, "failed to enqueue meeting")
		logger.Error(ctx, "enqueue failed", err)
		dto.ErrorWithDetail(c, appErr.HTTPStatus, appErr.Message, &dto.ErrorDetail{ErrorCode: string(appErr.Code)})
		return
	}

	logger.Info(ctx, "meeting queued for indexing", "stream_id", streamID, "message_id", msg.ID)
	dto.Accepted(c, dto.IndexMeetingResponse{
		MeetingID: trigger.MeetingID,
		MessageID: msg.ID,
		StreamID:  streamID,
	})
}
