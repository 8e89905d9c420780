package platform

import (
	"fmt"
	"strconv"
	"strings"
)

// RefKind tells how a ChannelRef identifies its channel.
type RefKind int

const (
	RefID RefKind = iota
	RefUsername
	RefInvite
)

func (k RefKind) String() string {
	switch k {
	case RefID:
		return "id"
	case RefUsername:
		return "username"
	case RefInvite:
		return "invite"
	default:
		return "unknown"
	}
}

// ChannelRef is a configured pointer to a channel before resolution.
type ChannelRef struct {
	Raw  string
	Kind RefKind

	// ID is set for RefID, Username for RefUsername and InviteHash for RefInvite.
	ID         int64
	Username   string
	InviteHash string
}

func (r ChannelRef) String() string {
	return r.Raw
}

// ParseChannelRef accepts a numeric ID, "@name", a bare username,
// "https://t.me/name" or an invite link ("https://t.me/+hash",
// "https://t.me/joinchat/hash").
func ParseChannelRef(raw string) (ChannelRef, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ChannelRef{}, fmt.Errorf("empty channel reference")
	}

	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		if id == 0 {
			return ChannelRef{}, fmt.Errorf("invalid channel id %q", raw)
		}
		return ChannelRef{Raw: s, Kind: RefID, ID: id}, nil
	}

	path := s
	for _, prefix := range []string{"https://", "http://"} {
		path = strings.TrimPrefix(path, prefix)
	}
	isLink := false
	for _, host := range []string{"t.me/", "telegram.me/", "telegram.dog/"} {
		if strings.HasPrefix(path, host) {
			path = strings.TrimPrefix(path, host)
			isLink = true
			break
		}
	}

	if isLink {
		path = strings.Trim(path, "/")
		switch {
		case strings.HasPrefix(path, "+"):
			return inviteRef(s, strings.TrimPrefix(path, "+"))
		case strings.HasPrefix(path, "joinchat/"):
			return inviteRef(s, strings.TrimPrefix(path, "joinchat/"))
		}
		// t.me/name/123 points at a post; only the channel part matters.
		if i := strings.Index(path, "/"); i >= 0 {
			path = path[:i]
		}
	}

	name := strings.TrimPrefix(path, "@")
	if !validUsername(name) {
		return ChannelRef{}, fmt.Errorf("invalid channel reference %q", raw)
	}
	return ChannelRef{Raw: s, Kind: RefUsername, Username: name}, nil
}

// ParseChannelRefs parses refs in order and fails on the first invalid one.
func ParseChannelRefs(raw []string) ([]ChannelRef, error) {
	refs := make([]ChannelRef, 0, len(raw))
	for _, r := range raw {
		ref, err := ParseChannelRef(r)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func inviteRef(raw, hash string) (ChannelRef, error) {
	if hash == "" || strings.ContainsAny(hash, "/?# ") {
		return ChannelRef{}, fmt.Errorf("invalid invite link %q", raw)
	}
	return ChannelRef{Raw: raw, Kind: RefInvite, InviteHash: hash}, nil
}

// Telegram usernames are 4-32 characters of [A-Za-z0-9_] starting with a letter.
// Shorter legacy names exist, so only the character set and a minimum of 3 is enforced.
func validUsername(name string) bool {
	if len(name) < 3 || len(name) > 32 {
		return false
	}
	for i, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9', c == '_':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
