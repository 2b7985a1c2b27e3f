package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"meeting-rag-api/internal/application/retrieval"
	"meeting-rag-api/internal/interfaces/http/dto"
	"meeting-rag-api/pkg/logger"
)

const (
	msgQueryRequired = "Query parameter is required"
	msgInternalError = "internal server error"
)

// Answerer is satisfied by *retrieval.Engine.
type Answerer interface {
	Answer(ctx context.Context, q retrieval.Query) (*retrieval.Answer, error)
}

type QueryHandler struct {
	engine Answerer
}

func NewQueryHandler(engine Answerer) *QueryHandler {
	return &QueryHandler{engine: engine}
}

// Query answers a natural-language question from indexed meetings.
// @Summary Ask a question about meetings
// @Tags Query
// @Accept json
// @Produce json
// @Param body body dto.QueryRequest true "query"
// @Success 200 {object} dto.QueryResponse
// @Failure 400 {object} dto.QueryError
// @Failure 500 {object} dto.QueryError
// @Router /query [post]
func (h *QueryHandler) Query(c *gin.Context) {
	var req dto.QueryRequest
	var err error
	if c.Request.Method == http.MethodGet {
		err = c.ShouldBindQuery(&req)
	} else if c.Request.ContentLength != 0 {
		err = c.ShouldBindJSON(&req)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.QueryError{Error: "invalid request body", TraceID: c.GetString("trace_id")})
		return
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		c.JSON(http.StatusBadRequest, dto.QueryError{Error: msgQueryRequired, TraceID: c.GetString("trace_id")})
		return
	}
	req.Query = query

	ctx := c.Request.Context()
	if req.MeetingID != "" {
		ctx = logger.WithContext(ctx, logger.MeetingIDKey, req.MeetingID)
	}

	answer, err := h.engine.Answer(ctx, req.ToQuery())
	if err != nil {
		appErr := toAppError(err)
		status := appErr.HTTPStatus
		msg := msgInternalError
		if status == http.StatusBadRequest {
			msg = msgQueryRequired
		} else {
			logger.Error(ctx, "query failed", err, "code", string(appErr.Code))
		}
		c.JSON(status, dto.QueryError{Error: msg, TraceID: c.GetString("trace_id")})
		return
	}

	c.JSON(http.StatusOK, dto.ToQueryResponse(query, answer))
}
