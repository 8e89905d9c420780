package filters

import (
	"testing"

	"github.com/Log-Tools/telegram-ingest/internal/platform"
	"github.com/stretchr/testify/assert"
)

func TestNewChannelFilter(t *testing.T) {
	t.Run("deduplicates and normalizes ids", func(t *testing.T) {
		filter := NewChannelFilter([]int64{30, -10, 10, 20})
		assert.Equal(t, 3, filter.Len())
		assert.Equal(t, []int64{10, 20, 30}, filter.IDs())
	})

	t.Run("empty filter admits nothing", func(t *testing.T) {
		filter := NewChannelFilter(nil)
		assert.Equal(t, 0, filter.Len())
		assert.False(t, filter.Allows(1))
	})
}

func TestChannelFilter_ShouldProcess(t *testing.T) {
	filter := NewChannelFilter([]int64{1050820672, 42})

	tests := []struct {
		name     string
		event    platform.Event
		expected bool
	}{
		{
			name:     "joined channel",
			event:    platform.Event{Chat: &platform.Chat{ID: 1050820672}},
			expected: true,
		},
		{
			name:     "joined channel with signed id",
			event:    platform.Event{Chat: &platform.Chat{ID: -1050820672}},
			expected: true,
		},
		{
			name:     "other channel",
			event:    platform.Event{Chat: &platform.Chat{ID: 7}},
			expected: false,
		},
		{
			name:     "missing chat is left to the normalizer",
			event:    platform.Event{MessageID: 1},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, filter.ShouldProcess(tt.event))
		})
	}
}
