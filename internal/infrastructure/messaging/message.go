// Package messaging carries indexing jobs over Redis Streams.
package messaging

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message is the envelope stored in the "data" field of a stream entry.
type Message struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	MeetingID string            `json:"meeting_id"`
	Payload   json.RawMessage   `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"created_at"`
}

func NewMessage(id, msgType, meetingID string, payload any) (*Message, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Message{
		ID:        id,
		Type:      msgType,
		MeetingID: meetingID,
		Payload:   payloadBytes,
		Metadata:  make(map[string]string),
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (m *Message) SetMetadata(key, value string) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]string)
	}
	m.Metadata[key] = value
}

func (m *Message) GetMetadata(key string) string {
	if m.Metadata == nil {
		return ""
	}
	return m.Metadata[key]
}

func (m *Message) UnmarshalPayload(v any) error {
	return json.Unmarshal(m.Payload, v)
}

type Stream string

const (
	StreamMeetingIndex Stream = "stream:meeting:index"
)

// DLQStream is the dead-letter stream paired with s.
func (s Stream) DLQStream() string {
	return "dlq:" + string(s)
}

type ConsumerGroup string

const (
	ConsumerGroupIndexer ConsumerGroup = "cg-indexer"
)

// WithPrefix namespaces the group, e.g. "meeting-rag:cg-indexer".
func (g ConsumerGroup) WithPrefix(prefix string) ConsumerGroup {
	if prefix == "" {
		return g
	}
	return ConsumerGroup(prefix + ":" + string(g))
}

// Message types.
const (
	TypeIndexMeeting = "meeting_index"
)

// IndexTrigger asks the index worker to (re)index one meeting.
// At least one locator must be set.
type IndexTrigger struct {
	MeetingID         string `json:"meeting_id"`
	TranscriptLocator string `json:"transcript_locator,omitempty"`
	SummaryLocator    string `json:"summary_locator,omitempty"`
}

func (t *IndexTrigger) Validate() error {
	if t.MeetingID == "" {
		return fmt.Errorf("meeting_id is required")
	}
	if t.TranscriptLocator == "" && t.SummaryLocator == "" {
		return fmt.Errorf("at least one of transcript_locator or summary_locator is required")
	}
	return nil
}

type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    time.Second,
		Max:        time.Minute,
		Multiplier: 2,
	}
}

// CalculateBackoff returns the idle time a message must reach before its next delivery.
func (c BackoffConfig) CalculateBackoff(retryCount int) time.Duration {
	backoff := c.Initial
	for range retryCount {
		backoff = time.Duration(float64(backoff) * c.Multiplier)
		if backoff > c.Max {
			return c.Max
		}
	}
	return backoff
}
