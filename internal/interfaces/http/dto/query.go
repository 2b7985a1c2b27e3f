package dto

import (
	"meeting-rag-api/internal/application/retrieval"
)

// QueryRequest is the body of POST /query. The same fields are accepted as
// query-string parameters on GET /query.
type QueryRequest struct {
	Query      string `json:"query" form:"query"`
	MeetingID  string `json:"meeting_id,omitempty" form:"meeting_id"`
	MaxResults int    `json:"max_results,omitempty" form:"max_results"`
}

type SourceResponse struct {
	MeetingID   string  `json:"meeting_id"`
	ContentType string  `json:"content_type"`
	Score       float32 `json:"score"`
	Snippet     string  `json:"snippet"`
}

type QueryResponse struct {
	Query    string           `json:"query"`
	Response string           `json:"response"`
	Sources  []SourceResponse `json:"sources"`
}

// QueryError is the error body of /query.
type QueryError struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

func (r *QueryRequest) ToQuery() retrieval.Query {
	return retrieval.Query{
		Text:      r.Query,
		MeetingID: r.MeetingID,
		K:         r.MaxResults,
	}
}

// ToQueryResponse renders an answer; sources is never null.
func ToQueryResponse(query string, a *retrieval.Answer) *QueryResponse {
	resp := &QueryResponse{
		Query:   query,
		Sources: make([]SourceResponse, 0),
	}
	if a == nil {
		return resp
	}
	resp.Response = a.Text
	for _, c := range a.Citations {
		resp.Sources = append(resp.Sources, SourceResponse{
			MeetingID:   c.MeetingID,
			ContentType: string(c.ContentType),
			Score:       c.Score,
			Snippet:     c.Snippet,
		})
	}
	return resp
}
