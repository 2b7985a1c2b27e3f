package retrieval

// ContentType distinguishes the two kinds of meeting text.
type ContentType string

const (
	ContentTranscript ContentType = "transcript"
	ContentSummary    ContentType = "summary"
)

func (t ContentType) Valid() bool {
	return t == ContentTranscript || t == ContentSummary
}

// SourceText is one piece of meeting text handed to the indexer.
type SourceText struct {
	MeetingID   string
	ContentType ContentType
	Text        string

	// Origin is an opaque locator of the text, e.g. s3://bucket/key.
	Origin string
}

// Chunk is one window produced by the segmenter.
// CharStart/CharEnd are rune offsets of the cut window, half-open.
type Chunk struct {
	SequenceIndex int
	Text          string
	CharStart     int
	CharEnd       int
}

// IndexedDocument is the unit stored in the vector collection.
type IndexedDocument struct {
	ID          string
	MeetingID   string
	ContentType ContentType
	Content     string
	Embedding   []float32
	ChunkIndex  int
	Timestamp   string // RFC3339, UTC
	Origin      string
}

// Query is a natural-language question, optionally scoped to one meeting.
type Query struct {
	Text      string
	MeetingID string
	K         int
}

// SearchHit is a retrieved document with its similarity score (higher is closer).
type SearchHit struct {
	Document IndexedDocument
	Score    float32
}

// Citation references one retrieved passage in an Answer.
type Citation struct {
	MeetingID   string
	ContentType ContentType
	Score       float32
	Snippet     string
}

type Answer struct {
	Text      string
	Citations []Citation
}

// ChunkFailure records a document the indexer could not write.
type ChunkFailure struct {
	ContentType ContentType
	ChunkIndex  int
	Err         error
}

// IndexResult is the outcome of one IndexMeeting call.
type IndexResult struct {
	MeetingID string
	Written   int
	Failures  []ChunkFailure
}
