package filter

import (
	"context"

	"github.com/osa030/voxbox/internal/domain/track"
)

// DuplicateEntryFilter rejects a URL that is already waiting in the queue.
type DuplicateEntryFilter struct{}

// Name returns the filter name.
func (f *DuplicateEntryFilter) Name() string {
	return "duplicate_entry_filter"
}

// Description returns the filter description.
func (f *DuplicateEntryFilter) Description() string {
	return "Rejects a video that is already waiting in the queue"
}

// ReturnCodes returns possible return codes.
func (f *DuplicateEntryFilter) ReturnCodes() []string {
	return []string{"duplicate_entry"}
}

// ValidateConfig validates the filter configuration.
func (f *DuplicateEntryFilter) ValidateConfig(settings map[string]any) error {
	// No configuration needed
	return nil
}

// Check checks if the entry is already queued.
func (f *DuplicateEntryFilter) Check(ctx context.Context, req Request, e track.QueueEntry, q QueueView) Result {
	if q.Contains(e.URL) {
		return Reject("duplicate_entry")
	}
	return Accept()
}

func init() {
	Register("duplicate_entry_filter", func() Filter {
		return &DuplicateEntryFilter{}
	})
}
