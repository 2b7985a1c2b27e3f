package milvus

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meeting-rag-api/internal/application/retrieval"
)

func TestMeetingDocumentsSchema(t *testing.T) {
	schema := MeetingDocumentsSchema("meeting_documents", 1024)

	assert.Equal(t, "meeting_documents", schema.CollectionName)
	require.NotEmpty(t, schema.Fields)
	assert.Equal(t, FieldID, schema.Fields[0].Name)
	assert.True(t, schema.Fields[0].PrimaryKey)
	assert.False(t, schema.Fields[0].AutoID)

	dim, err := vectorDimension(schema)
	require.NoError(t, err)
	assert.Equal(t, 1024, dim)

	names := make([]string, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		names = append(names, f.Name)
	}
	for _, f := range outputFields {
		assert.Contains(t, names, f)
	}
}

func TestVectorDimension_Errors(t *testing.T) {
	_, err := vectorDimension(nil)
	assert.Error(t, err)

	_, err = vectorDimension(&entity.Schema{Fields: []*entity.Field{{Name: "id", DataType: entity.FieldTypeVarChar}}})
	assert.Error(t, err)

	_, err = vectorDimension(&entity.Schema{Fields: []*entity.Field{{
		Name:       FieldVector,
		DataType:   entity.FieldTypeFloatVector,
		TypeParams: map[string]string{entity.TypeParamDim: "abc"},
	}}})
	assert.Error(t, err)
}

func TestTruncateUTF8(t *testing.T) {
	assert.Equal(t, "short", truncateUTF8("short", 10))

	s := strings.Repeat("é", 10) // 2 bytes per rune
	out := truncateUTF8(s, 5)
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, 4, len(out))
}

func TestStoredContent(t *testing.T) {
	out, cut := storedContent("hello")
	assert.Equal(t, "hello", out)
	assert.False(t, cut)

	exact := strings.Repeat("a", maxContentBytes)
	out, cut = storedContent(exact)
	assert.Equal(t, exact, out)
	assert.False(t, cut)

	long := strings.Repeat("会", maxContentBytes/3+10)
	out, cut = storedContent(long)
	assert.True(t, cut)
	assert.LessOrEqual(t, len(out), maxContentBytes)
	assert.True(t, utf8.ValidString(out))
	assert.True(t, strings.HasPrefix(long, out))
}

func TestFilters(t *testing.T) {
	assert.Equal(t, "", meetingFilter(""))
	assert.Equal(t, `meeting_id == "m-1"`, meetingFilter("m-1"))
	assert.Equal(t, `meeting_id == "a\"b"`, meetingFilter(`a"b`))
	assert.Equal(t,
		`meeting_id == "m-1" && content_type == "transcript" && chunk_index >= 4`,
		staleChunkFilter("m-1", "transcript", 4))
}

func TestToRow(t *testing.T) {
	row := toRow(&retrieval.IndexedDocument{
		ID:          "m-1_transcript_0",
		MeetingID:   "m-1",
		ContentType: retrieval.ContentTranscript,
		Content:     "hello",
		Embedding:   []float32{1, 2},
		ChunkIndex:  0,
		Origin:      "s3://transcripts/2024/m-1.txt",
	})

	assert.Equal(t, "transcripts", row.Bucket)
	assert.Equal(t, "2024/m-1.txt", row.ObjectKey)
	assert.Equal(t, "transcript", row.ContentType)

	plain := toRow(&retrieval.IndexedDocument{ID: "x", Origin: "inline"})
	assert.Empty(t, plain.Bucket)
	assert.Empty(t, plain.ObjectKey)
}
