package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meeting-rag-api/internal/application/retrieval"
	"meeting-rag-api/internal/infrastructure/messaging"
	"meeting-rag-api/internal/interfaces/http/dto"
	apperrors "meeting-rag-api/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubAnswerer struct {
	calls  int
	got    retrieval.Query
	answer *retrieval.Answer
	err    error
}

func (s *stubAnswerer) Answer(_ context.Context, q retrieval.Query) (*retrieval.Answer, error) {
	s.calls++
	s.got = q
	return s.answer, s.err
}

func serve(method, path string, body string, register func(r *gin.Engine)) *httptest.ResponseRecorder {
	r := gin.New()
	register(r)
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func queryRoutes(h *QueryHandler) func(r *gin.Engine) {
	return func(r *gin.Engine) {
		r.POST("/query", h.Query)
		r.GET("/query", h.Query)
	}
}

func TestQuery_Success(t *testing.T) {
	engine := &stubAnswerer{answer: &retrieval.Answer{
		Text: "Bob owns the rollout.",
		Citations: []retrieval.Citation{
			{MeetingID: "m-1", ContentType: retrieval.ContentTranscript, Score: 0.91, Snippet: "Bob: I'll own the rollout."},
		},
	}}
	h := NewQueryHandler(engine)

	w := serve(http.MethodPost, "/query", `{"query":"  who owns the rollout? ","meeting_id":"m-1","max_results":3}`, queryRoutes(h))

	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.QueryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "who owns the rollout?", resp.Query)
	assert.Equal(t, "Bob owns the rollout.", resp.Response)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "m-1", resp.Sources[0].MeetingID)
	assert.Equal(t, "transcript", resp.Sources[0].ContentType)

	assert.Equal(t, retrieval.Query{Text: "who owns the rollout?", MeetingID: "m-1", K: 3}, engine.got)
}

func TestQuery_GetWithParams(t *testing.T) {
	engine := &stubAnswerer{answer: &retrieval.Answer{Text: "ok"}}
	h := NewQueryHandler(engine)

	w := serve(http.MethodGet, "/query?query=budget&max_results=2", "", queryRoutes(h))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "budget", engine.got.Text)
	assert.Equal(t, 2, engine.got.K)
	assert.Contains(t, w.Body.String(), `"sources":[]`)
}

func TestQuery_MissingQuery(t *testing.T) {
	for _, body := range []string{"", `{}`, `{"query":"   "}`} {
		t.Run(fmt.Sprintf("body=%q", body), func(t *testing.T) {
			engine := &stubAnswerer{}
			w := serve(http.MethodPost, "/query", body, queryRoutes(NewQueryHandler(engine)))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.JSONEq(t, `{"error":"Query parameter is required"}`, w.Body.String())
			assert.Zero(t, engine.calls)
		})
	}
}

func TestQuery_MalformedBody(t *testing.T) {
	engine := &stubAnswerer{}
	w := serve(http.MethodPost, "/query", `{"query":`, queryRoutes(NewQueryHandler(engine)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, engine.calls)
}

func TestQuery_InternalErrorsAreMasked(t *testing.T) {
	tests := []error{
		fmt.Errorf("%w: connection refused to 10.0.0.3", retrieval.ErrSearch),
		fmt.Errorf("%w: 401 invalid key sk-123", retrieval.ErrGeneration),
		fmt.Errorf("%w: timeout", retrieval.ErrNoEmbedding),
		errors.New("boom"),
	}
	for _, cause := range tests {
		t.Run(cause.Error(), func(t *testing.T) {
			h := NewQueryHandler(&stubAnswerer{err: cause})
			w := serve(http.MethodPost, "/query", `{"query":"q"}`, queryRoutes(h))

			assert.Equal(t, http.StatusInternalServerError, w.Code)
			assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())
		})
	}
}

func TestQuery_EngineRejectsEmptyQuery(t *testing.T) {
	h := NewQueryHandler(&stubAnswerer{err: retrieval.ErrEmptyQuery})
	w := serve(http.MethodPost, "/query", `{"query":"q"}`, queryRoutes(h))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type stubPublisher struct {
	stream messaging.Stream
	msg    *messaging.Message
	err    error
}

func (s *stubPublisher) Publish(_ context.Context, stream messaging.Stream, msg *messaging.Message) (string, error) {
	s.stream, s.msg = stream, msg
	if s.err != nil {
		return "", s.err
	}
	return "1700000000000-0", nil
}

func meetingRoutes(h *MeetingHandler) func(r *gin.Engine) {
	return func(r *gin.Engine) { r.POST("/v1/meetings/index", h.IndexMeeting) }
}

func TestIndexMeeting_Accepted(t *testing.T) {
	pub := &stubPublisher{}
	w := serve(http.MethodPost, "/v1/meetings/index",
		`{"meeting_id":"m-1","transcript_locator":"s3://transcripts/m-1.txt"}`,
		meetingRoutes(NewMeetingHandler(pub)))

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, messaging.StreamMeetingIndex, pub.stream)
	require.NotNil(t, pub.msg)
	assert.Equal(t, messaging.TypeIndexMeeting, pub.msg.Type)

	var resp dto.Response[dto.IndexMeetingResponse]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "m-1", resp.Data.MeetingID)
	assert.Equal(t, pub.msg.ID, resp.Data.MessageID)
	assert.Equal(t, "1700000000000-0", resp.Data.StreamID)
}

func TestIndexMeeting_Validation(t *testing.T) {
	for _, body := range []string{`{}`, `{"meeting_id":"m-1"}`, `not json`} {
		pub := &stubPublisher{}
		w := serve(http.MethodPost, "/v1/meetings/index", body, meetingRoutes(NewMeetingHandler(pub)))
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Nil(t, pub.msg)
	}
}

func TestIndexMeeting_PublishFailure(t *testing.T) {
	pub := &stubPublisher{err: errors.New("redis down")}
	w := serve(http.MethodPost, "/v1/meetings/index",
		`{"meeting_id":"m-1","summary_locator":"s3://summaries/m-1.txt"}`,
		meetingRoutes(NewMeetingHandler(pub)))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "5006")
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	routes := func(h *HealthHandler) func(r *gin.Engine) {
		return func(r *gin.Engine) {
			r.GET("/health", h.Health)
			r.GET("/ready", h.Ready)
			r.GET("/live", h.Live)
		}
	}

	healthy := NewHealthHandler("v1.2.3", map[string]Pinger{"milvus": ok, "redis": ok})
	w := serve(http.MethodGet, "/health", "", routes(healthy))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "v1.2.3")

	w = serve(http.MethodGet, "/ready", "", routes(healthy))
	assert.Equal(t, http.StatusOK, w.Code)

	degraded := NewHealthHandler("", map[string]Pinger{"milvus": down, "redis": ok})
	w = serve(http.MethodGet, "/ready", "", routes(degraded))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")

	w = serve(http.MethodGet, "/live", "", routes(degraded))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestToAppError(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, toAppError(retrieval.ErrEmptyQuery).HTTPStatus)
	assert.Equal(t, "4003", string(toAppError(retrieval.ErrSearch).Code))
	assert.Equal(t, "4005", string(toAppError(retrieval.ErrGeneration).Code))
	assert.Equal(t, "4006", string(toAppError(retrieval.ErrNoEmbedding).Code))
	assert.Equal(t, "5003", string(toAppError(retrieval.ErrIndexUnavailable).Code))
	assert.Equal(t, "4006", string(toAppError(fmt.Errorf("%w: timeout", retrieval.ErrNoEmbedding)).Code))
	assert.Equal(t, "1007", string(toAppError(errors.New("boom")).Code))
}

func TestToAppError_KeepsAppError(t *testing.T) {
	appErr := apperrors.New(apperrors.CodeQueueError, "queue down")
	got := toAppError(fmt.Errorf("publish: %w", appErr))
	assert.Same(t, appErr, got)
}
