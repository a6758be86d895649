// Package reconcile keeps a single ordered, deduplicated view of room messages
// that arrive through several delivery paths: the write response, the broadcast
// echo and history backfill.
package reconcile

import (
	"slices"

	"github.com/vovakirdan/roomcast/internal/core"
)

// Merge returns existing plus every incoming message whose id is not already
// present, sorted by (CreatedAt, ID). Inputs are never modified. When the same
// id appears more than once the earliest copy wins, so the result depends only
// on the set of ids, not on arrival order.
func Merge(existing []core.Message, incoming ...core.Message) []core.Message {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	out := make([]core.Message, 0, len(existing)+len(incoming))
	for _, batch := range [][]core.Message{existing, incoming} {
		for _, m := range batch {
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}
			out = append(out, m)
		}
	}
	slices.SortStableFunc(out, Compare)
	return out
}

// Compare orders messages for display.
func Compare(a, b core.Message) int {
	switch {
	case a.Before(b):
		return -1
	case b.Before(a):
		return 1
	default:
		return 0
	}
}

// Contains reports whether msgs holds a message with id.
func Contains(msgs []core.Message, id string) bool {
	return slices.ContainsFunc(msgs, func(m core.Message) bool { return m.ID == id })
}
