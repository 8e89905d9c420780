package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// EventTimeLayout renders UTC instants with microsecond precision and an
// explicit +00:00 offset, e.g. 2025-12-06T21:30:45.123456+00:00.
const EventTimeLayout = "2006-01-02T15:04:05.000000-07:00"

// IngestRecord is the canonical, broker-bound representation of one chat message.
// Optional fields are pointers so they serialize as null rather than being omitted.
type IngestRecord struct {
	EventTime      string  `json:"event_time"`
	ChannelID      int64   `json:"channel_id"`
	ChannelName    string  `json:"channel_name"`
	MessageID      int     `json:"message_id"`
	SenderID       *int64  `json:"sender_id"`
	SenderUsername string  `json:"sender_username"`
	FirstName      *string `json:"first_name"`
	LastName       *string `json:"last_name"`
	Text           string  `json:"text"`
	TextLength     int     `json:"text_length"`
}

// FormatEventTime converts t to UTC and formats it with EventTimeLayout.
func FormatEventTime(t time.Time) string {
	return t.UTC().Format(EventTimeLayout)
}

// Marshal encodes the record as UTF-8 JSON without HTML escaping and without
// a trailing newline.
func (r IngestRecord) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("failed to marshal ingest record (channel %d, message %d): %w", r.ChannelID, r.MessageID, err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalRecord decodes a wire record.
func UnmarshalRecord(data []byte) (IngestRecord, error) {
	var r IngestRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return IngestRecord{}, fmt.Errorf("failed to unmarshal ingest record: %w", err)
	}
	return r, nil
}
