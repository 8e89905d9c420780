package telegram

import (
	"fmt"

	"github.com/Log-Tools/telegram-ingest/internal/platform"
	"github.com/gotd/td/tgerr"
)

// RPC error types that mean the channel exists but is closed to this account.
var privateErrors = []string{
	"CHANNEL_PRIVATE",
	"CHANNEL_PUBLIC_GROUP_NA",
	"CHAT_FORBIDDEN",
	"INVITE_HASH_EXPIRED",
	"INVITE_REQUEST_SENT",
	"USER_BANNED_IN_CHANNEL",
}

// RPC error types that mean the reference points nowhere.
var notFoundErrors = []string{
	"USERNAME_NOT_OCCUPIED",
	"USERNAME_INVALID",
	"INVITE_HASH_INVALID",
	"INVITE_HASH_EMPTY",
	"CHANNEL_INVALID",
	"PEER_ID_INVALID",
	"CHAT_ID_INVALID",
}

// mapError translates MTProto RPC errors into the platform error taxonomy.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if wait, ok := tgerr.AsFloodWait(err); ok {
		return &platform.RateLimitError{Wait: wait}
	}
	if tgerr.Is(err, privateErrors...) {
		return fmt.Errorf("%w: %v", platform.ErrPrivate, err)
	}
	if tgerr.Is(err, notFoundErrors...) {
		return fmt.Errorf("%w: %v", platform.ErrNotFound, err)
	}
	return err
}

// alreadyMember reports whether err only says the account is already in the chat.
func alreadyMember(err error) bool {
	return tgerr.Is(err, "USER_ALREADY_PARTICIPANT")
}
