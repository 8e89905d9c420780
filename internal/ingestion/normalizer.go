package ingestion

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/Log-Tools/telegram-ingest/internal/events"
	"github.com/Log-Tools/telegram-ingest/internal/platform"
)

// AnonymousSender is the sender_username of messages without an author.
const AnonymousSender = "anonymous"

var (
	// ErrMissingChat is returned for events that carry no chat information.
	ErrMissingChat = errors.New("event has no chat info")

	// ErrInvalidChatID is returned when a chat id has no non-negative form.
	ErrInvalidChatID = errors.New("chat id cannot be normalized")
)

// Normalizer turns platform events into IngestRecords.
type Normalizer struct {
	names NameResolver
	now   func() time.Time
}

// NormalizerOption configures a Normalizer.
type NormalizerOption func(*Normalizer)

// WithClock replaces the wall clock used for event_time.
func WithClock(now func() time.Time) NormalizerOption {
	return func(n *Normalizer) { n.now = now }
}

// NewNormalizer creates a normalizer that resolves channel names through names.
func NewNormalizer(names NameResolver, opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{names: names, now: time.Now}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize builds the record for ev. event_time is the instant of
// normalization, not the platform send time. A panic while deriving fields is
// returned as an error so one bad event cannot stop the stream.
func (n *Normalizer) Normalize(ctx context.Context, ev platform.Event) (record events.IngestRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			record = events.IngestRecord{}
			err = fmt.Errorf("panic while normalizing message %d: %v", ev.MessageID, r)
		}
	}()

	if ev.Chat == nil {
		return events.IngestRecord{}, fmt.Errorf("message %d: %w", ev.MessageID, ErrMissingChat)
	}
	channelID, err := NormalizeChannelID(ev.Chat.ID)
	if err != nil {
		return events.IngestRecord{}, fmt.Errorf("message %d: %w", ev.MessageID, err)
	}

	record = events.IngestRecord{
		EventTime:      events.FormatEventTime(n.now()),
		ChannelID:      channelID,
		ChannelName:    n.names.Resolve(ctx, channelID),
		MessageID:      ev.MessageID,
		SenderUsername: SenderUsername(ev.Sender),
		Text:           ev.Text,
		TextLength:     utf8.RuneCountInString(ev.Text),
	}

	if ev.Sender != nil {
		id := ev.Sender.ID
		record.SenderID = &id
		record.FirstName = optional(ev.Sender.FirstName)
		record.LastName = optional(ev.Sender.LastName)
	}

	return record, nil
}

// NormalizeChannelID returns the absolute value of a chat id. Some provider
// contexts report channels with a negative offset encoding.
func NormalizeChannelID(id int64) (int64, error) {
	if id == math.MinInt64 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidChatID, id)
	}
	if id < 0 {
		return -id, nil
	}
	return id, nil
}

// SenderUsername applies the username fallback: the username, else
// "user_<id>", else "anonymous" for messages without a sender.
func SenderUsername(sender *platform.Sender) string {
	if sender == nil {
		return AnonymousSender
	}
	if sender.Username != "" {
		return sender.Username
	}
	return "user_" + strconv.FormatInt(sender.ID, 10)
}

// DisplayName is the human-facing sender label used in log previews:
// username, then first name, then "user_<id>", then "anonymous".
func DisplayName(sender *platform.Sender) string {
	if sender == nil {
		return AnonymousSender
	}
	if sender.Username != "" {
		return sender.Username
	}
	if sender.FirstName != "" {
		return sender.FirstName
	}
	return "user_" + strconv.FormatInt(sender.ID, 10)
}

// Preview truncates text to 50 characters, marking truncation with "...".
func Preview(text string) string {
	const limit = 50
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit]) + "..."
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
