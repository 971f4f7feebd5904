// Package reconcile classifies freshly fetched upstream identifiers against
// the store's record set: new postings to create, known active postings to
// leave alone, vanished postings to close, and previously closed postings
// that reappeared and should be reactivated.
package reconcile

import "sort"

// Outcome partitions the fetched and active id sets. ToCreate holds ids the
// store has never seen; ToReactivate holds ids the store knows but has
// closed; ToSkip holds already-active ids; ToClose holds active ids absent
// from the fetch. ToCreate, ToReactivate and ToSkip partition the fetched
// set; ToClose is disjoint from all three.
type Outcome struct {
	ToCreate     []string
	ToSkip       []string
	ToClose      []string
	ToReactivate []string
}

// Counts returns the partition sizes in creation order, for report lines.
func (o *Outcome) Counts() (created, skipped, closed, reactivated int) {
	return len(o.ToCreate), len(o.ToSkip), len(o.ToClose), len(o.ToReactivate)
}

// Reconcile diffs fetched ids against the store. active is the set of ids
// currently marked active; known is the set of every id the store holds,
// active or not. Closures (ToClose) are only meaningful when fetched came
// from an unfiltered full-source query; the caller enforces that.
func Reconcile(fetched []string, active, known map[string]struct{}) *Outcome {
	out := &Outcome{}

	seen := make(map[string]struct{}, len(fetched))
	for _, id := range fetched {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		if _, ok := active[id]; ok {
			out.ToSkip = append(out.ToSkip, id)
			continue
		}
		if _, ok := known[id]; ok {
			out.ToReactivate = append(out.ToReactivate, id)
			continue
		}
		out.ToCreate = append(out.ToCreate, id)
	}

	for id := range active {
		if _, ok := seen[id]; !ok {
			out.ToClose = append(out.ToClose, id)
		}
	}
	sort.Strings(out.ToClose)

	return out
}
