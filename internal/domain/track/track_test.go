package track

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewQueueEntry(t *testing.T) {
	requester := Requester{ID: "user-1", Name: "Alice"}

	before := time.Now()
	e := NewQueueEntry("https://youtu.be/abc", "Song A", 3*time.Minute, requester)

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "https://youtu.be/abc", e.URL)
	assert.Equal(t, "Song A", e.Title)
	assert.Equal(t, 3*time.Minute, e.Duration)
	assert.Equal(t, requester, e.Requester)
	assert.False(t, e.AddedAt.Before(before))

	other := NewQueueEntry("https://youtu.be/abc", "Song A", 0, requester)
	assert.NotEqual(t, e.ID, other.ID, "each enqueue gets its own id")
}

func TestQueueEntry_DisplayName(t *testing.T) {
	tests := []struct {
		name     string
		entry    QueueEntry
		expected string
	}{
		{
			name:     "title known",
			entry:    QueueEntry{URL: "urlA", Title: "Title A"},
			expected: "Title A",
		},
		{
			name:     "title unknown falls back to url",
			entry:    QueueEntry{URL: "urlA"},
			expected: "urlA",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.entry.DisplayName())
		})
	}
}

func TestQueueEntry_RequestedBy(t *testing.T) {
	e := QueueEntry{Requester: Requester{ID: "user-1"}}

	assert.True(t, e.RequestedBy("user-1"))
	assert.False(t, e.RequestedBy("user-2"))
	assert.False(t, QueueEntry{}.RequestedBy(""), "empty ids never match")
}
