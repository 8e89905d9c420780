package telegram

import "github.com/gotd/td/tg"

const (
	dialogsPageSize = 100
	// maxDialogPages bounds a single listing of the account's dialogs
	maxDialogPages = 50
)

// dialogsPage is one response of messages.getDialogs.
type dialogsPage struct {
	dialogs  []tg.DialogClass
	messages []tg.MessageClass
	chats    []tg.ChatClass
	users    []tg.UserClass
	// last is set when no further page exists
	last bool
}

// dialogsOffset addresses the page after the dialog it was taken from.
type dialogsOffset struct {
	date int
	id   int
	peer tg.InputPeerClass
}

func (o dialogsOffset) request() *tg.MessagesGetDialogsRequest {
	peer := o.peer
	if peer == nil {
		peer = &tg.InputPeerEmpty{}
	}
	return &tg.MessagesGetDialogsRequest{
		OffsetDate: o.date,
		OffsetID:   o.id,
		OffsetPeer: peer,
		Limit:      dialogsPageSize,
	}
}

// dialogsPageOf unpacks a getDialogs response. seen is the number of dialogs
// received on earlier pages.
func dialogsPageOf(res tg.MessagesDialogsClass, seen int) dialogsPage {
	switch d := res.(type) {
	case *tg.MessagesDialogs:
		return dialogsPage{dialogs: d.Dialogs, messages: d.Messages, chats: d.Chats, users: d.Users, last: true}
	case *tg.MessagesDialogsSlice:
		return dialogsPage{
			dialogs:  d.Dialogs,
			messages: d.Messages,
			chats:    d.Chats,
			users:    d.Users,
			last:     len(d.Dialogs) < dialogsPageSize || seen+len(d.Dialogs) >= d.Count,
		}
	default:
		return dialogsPage{last: true}
	}
}

// nextDialogsOffset derives the offset of the following page from the last
// regular dialog of p.
func nextDialogsOffset(p dialogsPage) (dialogsOffset, bool) {
	var last *tg.Dialog
	for i := len(p.dialogs) - 1; i >= 0 && last == nil; i-- {
		last, _ = p.dialogs[i].(*tg.Dialog)
	}
	if last == nil {
		return dialogsOffset{}, false
	}

	offset := dialogsOffset{id: last.TopMessage, peer: inputPeerOf(last.Peer, p.chats, p.users)}
	for _, m := range p.messages {
		switch msg := m.(type) {
		case *tg.Message:
			if msg.ID == last.TopMessage && samePeer(msg.PeerID, last.Peer) {
				offset.date = msg.Date
			}
		case *tg.MessageService:
			if msg.ID == last.TopMessage && samePeer(msg.PeerID, last.Peer) {
				offset.date = msg.Date
			}
		}
	}
	return offset, true
}

// inputPeerOf addresses peer using the access hashes carried by the same page.
func inputPeerOf(peer tg.PeerClass, chats []tg.ChatClass, users []tg.UserClass) tg.InputPeerClass {
	switch p := peer.(type) {
	case *tg.PeerUser:
		for _, u := range users {
			if user, ok := u.(*tg.User); ok && user.ID == p.UserID {
				return &tg.InputPeerUser{UserID: user.ID, AccessHash: user.AccessHash}
			}
		}
	case *tg.PeerChat:
		return &tg.InputPeerChat{ChatID: p.ChatID}
	case *tg.PeerChannel:
		for _, c := range chats {
			if stored, ok := peerFromChat(c); ok && stored.channel && stored.entity.ID == p.ChannelID {
				return &tg.InputPeerChannel{ChannelID: p.ChannelID, AccessHash: stored.accessHash}
			}
		}
	}
	return &tg.InputPeerEmpty{}
}

func samePeer(a, b tg.PeerClass) bool {
	switch x := a.(type) {
	case *tg.PeerUser:
		y, ok := b.(*tg.PeerUser)
		return ok && x.UserID == y.UserID
	case *tg.PeerChat:
		y, ok := b.(*tg.PeerChat)
		return ok && x.ChatID == y.ChatID
	case *tg.PeerChannel:
		y, ok := b.(*tg.PeerChannel)
		return ok && x.ChannelID == y.ChannelID
	default:
		return false
	}
}
