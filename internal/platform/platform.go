// Package platform defines the contract between the ingestion pipeline and a
// chat-platform client: channel references, resolved entities, inbound message
// events and the errors a client reports while resolving and joining.
package platform

import (
	"context"
	"time"
)

// Entity is a resolved chat (channel, supergroup or group) or user.
type Entity struct {
	ID       int64
	Title    string
	Username string
}

// DisplayName prefers title, then username, then "Unknown".
func (e Entity) DisplayName() string {
	if e.Title != "" {
		return e.Title
	}
	if e.Username != "" {
		return e.Username
	}
	return UnknownName
}

// UnknownName is used whenever a channel name cannot be determined.
const UnknownName = "Unknown"

// Chat describes the chat an inbound message was posted to.
type Chat struct {
	ID       int64
	Title    string
	Username string
}

// Sender describes the author of a message. A nil *Sender means the message
// has no attributable author (anonymous admin or broadcast post).
type Sender struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

// Event is a single new message delivered by the platform stream.
type Event struct {
	Chat      *Chat
	Sender    *Sender
	MessageID int
	Text      string
	Timestamp time.Time
}

// EventHandler is invoked once per inbound message on a subscribed chat.
type EventHandler func(ctx context.Context, ev Event)

// Client is the full capability set the pipeline needs from a chat platform.
// Consumers depend on the narrower interfaces declared in their own packages.
type Client interface {
	Authenticate(ctx context.Context) error
	ResolveEntity(ctx context.Context, ref ChannelRef) (Entity, error)
	Join(ctx context.Context, entity Entity) error
	LookupEntity(ctx context.Context, id int64) (Entity, error)
	Subscribe(channelIDs []int64, handler EventHandler) error
	RunUntilDisconnected(ctx context.Context) error
}
