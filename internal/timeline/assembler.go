// Package timeline merges the replay engine's order, fill, and rejection
// streams into one chronologically sorted sequence. The merge is sorted
// once; page requests slice the sorted sequence without re-sorting.
package timeline

import (
	"sort"

	"backtest-lab/internal/domain"
)

// EntryType identifies which stream a timeline entry came from.
type EntryType string

// Entry type constants.
const (
	EntryOrder     EntryType = "order"
	EntryFill      EntryType = "fill"
	EntryRejection EntryType = "rejection"
)

// Entry is a unified timeline record. Exactly one of Order, Fill, or
// Rejection is set based on Type.
type Entry struct {
	Type      EntryType
	TsEventNs int64
	arrival   int // per-stream arrival order, breaks timestamp ties
	Order     *domain.OrderEvent
	Fill      *domain.FillEvent
	Rejection *domain.RejectionEvent
}

// Timeline is an assembled, immutable, time-sorted event sequence.
type Timeline struct {
	entries []*Entry
}

// Assemble merges the three streams and stable-sorts them by
// (ts_event_ns, stream arrival order), so same-timestamp ties resolve
// deterministically to input order.
func Assemble(orders []*domain.OrderEvent, fills []*domain.FillEvent, rejections []*domain.RejectionEvent) *Timeline {
	entries := make([]*Entry, 0, len(orders)+len(fills)+len(rejections))

	arrival := 0
	for _, o := range orders {
		entries = append(entries, &Entry{Type: EntryOrder, TsEventNs: o.TsEventNs, arrival: arrival, Order: o})
		arrival++
	}
	for _, f := range fills {
		entries = append(entries, &Entry{Type: EntryFill, TsEventNs: f.TsEventNs, arrival: arrival, Fill: f})
		arrival++
	}
	for _, r := range rejections {
		entries = append(entries, &Entry{Type: EntryRejection, TsEventNs: r.TsEventNs, arrival: arrival, Rejection: r})
		arrival++
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].TsEventNs != entries[j].TsEventNs {
			return entries[i].TsEventNs < entries[j].TsEventNs
		}
		return entries[i].arrival < entries[j].arrival
	})

	return &Timeline{entries: entries}
}

// Len returns the total number of entries.
func (t *Timeline) Len() int { return len(t.entries) }

// All returns the full sorted sequence.
func (t *Timeline) All() []*Entry { return t.entries }

// Page returns entries [offset, offset+limit) from the sorted sequence.
// Out-of-range offsets return an empty page; limit <= 0 means the rest of
// the sequence.
func (t *Timeline) Page(offset, limit int) []*Entry {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(t.entries) {
		return nil
	}
	end := len(t.entries)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return t.entries[offset:end]
}
