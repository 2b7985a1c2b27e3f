package milvus

import (
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	FieldID          = "id"
	FieldVector      = "vector"
	FieldMeetingID   = "meeting_id"
	FieldContentType = "content_type"
	FieldContent     = "content"
	FieldChunkIndex  = "chunk_index"
	FieldTimestamp   = "timestamp"
	FieldOrigin      = "origin"
	FieldBucket      = "bucket"
	FieldObjectKey   = "object_key"

	// maxContentBytes is the VarChar limit of the content field.
	maxContentBytes = 65535
	maxLocatorBytes = 1024
)

// outputFields are returned with every search hit.
var outputFields = []string{
	FieldID, FieldMeetingID, FieldContentType, FieldContent,
	FieldChunkIndex, FieldTimestamp, FieldOrigin,
}

func varChar(name string, maxLen int) *entity.Field {
	return &entity.Field{
		Name:     name,
		DataType: entity.FieldTypeVarChar,
		TypeParams: map[string]string{
			entity.TypeParamMaxLength: strconv.Itoa(maxLen),
		},
	}
}

// MeetingDocumentsSchema is the schema of a meeting document collection.
func MeetingDocumentsSchema(name string, dim int) *entity.Schema {
	id := varChar(FieldID, 512)
	id.PrimaryKey = true
	id.AutoID = false

	return &entity.Schema{
		CollectionName: name,
		Description:    "Meeting transcript and summary chunks for semantic search",
		Fields: []*entity.Field{
			id,
			{
				Name:     FieldVector,
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					entity.TypeParamDim: strconv.Itoa(dim),
				},
			},
			varChar(FieldMeetingID, 256),
			varChar(FieldContentType, 32),
			varChar(FieldContent, maxContentBytes),
			{
				Name:     FieldChunkIndex,
				DataType: entity.FieldTypeInt64,
			},
			varChar(FieldTimestamp, 64),
			varChar(FieldOrigin, maxLocatorBytes),
			varChar(FieldBucket, 256),
			varChar(FieldObjectKey, maxLocatorBytes),
		},
	}
}

// vectorDimension reads the dim type param of the first float vector field.
func vectorDimension(schema *entity.Schema) (int, error) {
	if schema == nil {
		return 0, fmt.Errorf("collection has no schema")
	}
	for _, f := range schema.Fields {
		if f == nil || f.DataType != entity.FieldTypeFloatVector {
			continue
		}
		raw, ok := f.TypeParams[entity.TypeParamDim]
		if !ok {
			return 0, fmt.Errorf("vector field %s has no dim", f.Name)
		}
		dim, err := strconv.Atoi(raw)
		if err != nil {
			return 0, fmt.Errorf("vector field %s has invalid dim %q: %w", f.Name, raw, err)
		}
		return dim, nil
	}
	return 0, fmt.Errorf("collection %s has no float vector field", schema.CollectionName)
}

// MeetingDocument is one row of a meeting document collection.
type MeetingDocument struct {
	ID          string
	Vector      []float32
	MeetingID   string
	ContentType string
	Content     string
	ChunkIndex  int64
	Timestamp   string
	Origin      string
	Bucket      string
	ObjectKey   string
}

// truncateUTF8 cuts s to at most maxBytes without splitting a rune.
func truncateUTF8(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
