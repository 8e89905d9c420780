package telegram

import (
	"sync"

	"github.com/Log-Tools/telegram-ingest/internal/platform"
	"github.com/gotd/td/tg"
)

// markedChannelOffset is the offset used by Bot-API style "marked" channel
// ids (-100xxxxxxxxxx).
const markedChannelOffset = 1_000_000_000_000

// peer is a resolved chat together with what is needed to address it.
type peer struct {
	entity     platform.Entity
	accessHash int64
	channel    bool
}

// entityStore remembers every chat seen in API responses and updates.
type entityStore struct {
	mu    sync.RWMutex
	peers map[int64]peer
}

func newEntityStore() *entityStore {
	return &entityStore{peers: make(map[int64]peer)}
}

func (s *entityStore) get(id int64) (peer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.peers[id]
	return p, ok
}

func (s *entityStore) put(p peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// keep a known access hash if the new sighting lacks one
	if existing, ok := s.peers[p.entity.ID]; ok && p.accessHash == 0 {
		p.accessHash = existing.accessHash
	}
	s.peers[p.entity.ID] = p
}

func (s *entityStore) rememberChats(chats []tg.ChatClass) {
	for _, chat := range chats {
		if p, ok := peerFromChat(chat); ok {
			s.put(p)
		}
	}
}

func (s *entityStore) rememberEntities(e tg.Entities) {
	for _, ch := range e.Channels {
		if p, ok := peerFromChat(ch); ok {
			s.put(p)
		}
	}
	for _, chat := range e.Chats {
		if p, ok := peerFromChat(chat); ok {
			s.put(p)
		}
	}
}

func (s *entityStore) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.peers)
}

// peerFromChat converts any chat variant into a stored peer.
func peerFromChat(chat tg.ChatClass) (peer, bool) {
	switch c := chat.(type) {
	case *tg.Channel:
		return peer{
			entity:     platform.Entity{ID: c.ID, Title: c.Title, Username: c.Username},
			accessHash: c.AccessHash,
			channel:    true,
		}, true
	case *tg.ChannelForbidden:
		return peer{
			entity:     platform.Entity{ID: c.ID, Title: c.Title},
			accessHash: c.AccessHash,
			channel:    true,
		}, true
	case *tg.Chat:
		return peer{entity: platform.Entity{ID: c.ID, Title: c.Title}}, true
	case *tg.ChatForbidden:
		return peer{entity: platform.Entity{ID: c.ID, Title: c.Title}}, true
	default:
		return peer{}, false
	}
}

// unmarkID converts a configured numeric id into the bare MTProto id.
// Marked channel ids (-100…) and negative legacy chat ids are accepted.
func unmarkID(id int64) int64 {
	switch {
	case id <= -markedChannelOffset:
		return -id - markedChannelOffset
	case id < 0:
		return -id
	default:
		return id
	}
}

// chatsOf extracts the chat list carried by an updates container.
func chatsOf(updates tg.UpdatesClass) []tg.ChatClass {
	switch u := updates.(type) {
	case *tg.Updates:
		return u.Chats
	case *tg.UpdatesCombined:
		return u.Chats
	default:
		return nil
	}
}
