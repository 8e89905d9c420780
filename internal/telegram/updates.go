package telegram

import (
	"time"

	"github.com/Log-Tools/telegram-ingest/internal/platform"
	"github.com/gotd/td/tg"
)

// buildEvent maps a new-message update onto a platform event. Service
// messages and private dialogs are skipped.
//
// Channel and supergroup chats carry their bare id. Legacy group chats carry
// the negated id, the way the Bot API reports them.
func buildEvent(e tg.Entities, m tg.MessageClass) (platform.Event, bool) {
	msg, ok := m.(*tg.Message)
	if !ok {
		return platform.Event{}, false
	}

	var chat *platform.Chat
	switch p := msg.PeerID.(type) {
	case *tg.PeerChannel:
		chat = &platform.Chat{ID: p.ChannelID}
		if ch, ok := e.Channels[p.ChannelID]; ok {
			chat.Title = ch.Title
			chat.Username = ch.Username
		}
	case *tg.PeerChat:
		chat = &platform.Chat{ID: -p.ChatID}
		if c, ok := e.Chats[p.ChatID]; ok {
			chat.Title = c.Title
		}
	default:
		return platform.Event{}, false
	}

	ev := platform.Event{
		Chat:      chat,
		MessageID: msg.ID,
		Text:      msg.Message,
		Timestamp: time.Unix(int64(msg.Date), 0).UTC(),
	}
	if from, ok := msg.GetFromID(); ok {
		ev.Sender = buildSender(e, from)
	}
	return ev, true
}

func buildSender(e tg.Entities, from tg.PeerClass) *platform.Sender {
	switch p := from.(type) {
	case *tg.PeerUser:
		s := &platform.Sender{ID: p.UserID}
		if u, ok := e.Users[p.UserID]; ok {
			s.Username = u.Username
			s.FirstName = u.FirstName
			s.LastName = u.LastName
		}
		return s
	case *tg.PeerChannel:
		// Channels have no personal name, only a username.
		s := &platform.Sender{ID: p.ChannelID}
		if ch, ok := e.Channels[p.ChannelID]; ok {
			s.Username = ch.Username
		}
		return s
	case *tg.PeerChat:
		return &platform.Sender{ID: p.ChatID}
	default:
		return nil
	}
}

// absID returns the subscription key for a chat id.
func absID(id int64) int64 {
	if id < 0 {
		return -id
	}
	return id
}
