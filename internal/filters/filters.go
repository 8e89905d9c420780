package filters

import (
	"sort"

	"github.com/Log-Tools/telegram-ingest/internal/platform"
)

// ChannelFilter admits events only from the channels joined at startup.
// Chat ids are compared by absolute value, so a provider that reports
// channels with a signed offset still matches the resolved id.
type ChannelFilter struct {
	allowed map[int64]struct{}
}

// NewChannelFilter creates a filter for the given channel ids.
func NewChannelFilter(channelIDs []int64) *ChannelFilter {
	allowed := make(map[int64]struct{}, len(channelIDs))
	for _, id := range channelIDs {
		allowed[abs(id)] = struct{}{}
	}
	return &ChannelFilter{allowed: allowed}
}

// ShouldProcess determines if an event should reach the normalizer.
func (f *ChannelFilter) ShouldProcess(ev platform.Event) bool {
	// Events without chat info are let through so the normalizer can report them
	if ev.Chat == nil {
		return true
	}
	return f.Allows(ev.Chat.ID)
}

// Allows reports whether chatID belongs to a joined channel.
func (f *ChannelFilter) Allows(chatID int64) bool {
	_, ok := f.allowed[abs(chatID)]
	return ok
}

// IDs returns the allowed channel ids in ascending order.
func (f *ChannelFilter) IDs() []int64 {
	ids := make([]int64, 0, len(f.allowed))
	for id := range f.allowed {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of allowed channels.
func (f *ChannelFilter) Len() int {
	return len(f.allowed)
}

func abs(id int64) int64 {
	if id < 0 {
		return -id
	}
	return id
}
