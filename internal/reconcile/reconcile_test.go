package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func set(ids ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func TestReconcile_Scenario(t *testing.T) {
	// Fetch returns {A,B,C}; store has active {B,C,D}.
	out := Reconcile([]string{"A", "B", "C"}, set("B", "C", "D"), set("B", "C", "D"))

	assert.Equal(t, []string{"A"}, out.ToCreate)
	assert.ElementsMatch(t, []string{"B", "C"}, out.ToSkip)
	assert.Equal(t, []string{"D"}, out.ToClose)
	assert.Empty(t, out.ToReactivate)
}

func TestReconcile_ClosedRecordReappears(t *testing.T) {
	// E is known to the store but no longer active; a fresh sighting
	// reactivates it instead of minting a duplicate.
	out := Reconcile([]string{"E", "F"}, set(), set("E"))

	assert.Equal(t, []string{"F"}, out.ToCreate)
	assert.Equal(t, []string{"E"}, out.ToReactivate)
	assert.Empty(t, out.ToSkip)
	assert.Empty(t, out.ToClose)
}

func TestReconcile_PartitionsFetchedSet(t *testing.T) {
	fetched := []string{"A", "B", "C", "E"}
	out := Reconcile(fetched, set("B", "C", "D"), set("B", "C", "D", "E"))

	// Every fetched id lands in exactly one of the three fetch buckets.
	assert.Len(t, out.ToCreate, 1)
	assert.Len(t, out.ToSkip, 2)
	assert.Len(t, out.ToReactivate, 1)

	// ToClose is exactly active − fetched and never overlaps ToCreate.
	assert.Equal(t, []string{"D"}, out.ToClose)
	for _, id := range out.ToClose {
		assert.NotContains(t, out.ToCreate, id)
	}
}

func TestReconcile_IgnoresDuplicateAndEmptyIDs(t *testing.T) {
	out := Reconcile([]string{"A", "A", "", "B"}, set("B"), set("B"))

	assert.Equal(t, []string{"A"}, out.ToCreate)
	assert.Equal(t, []string{"B"}, out.ToSkip)
}

func TestReconcile_EmptyFetchClosesEverything(t *testing.T) {
	out := Reconcile(nil, set("A", "B"), set("A", "B"))

	assert.Empty(t, out.ToCreate)
	assert.Empty(t, out.ToSkip)
	assert.Equal(t, []string{"A", "B"}, out.ToClose)
}

func TestOutcome_Counts(t *testing.T) {
	out := &Outcome{
		ToCreate:     []string{"A"},
		ToSkip:       []string{"B", "C"},
		ToClose:      []string{"D"},
		ToReactivate: nil,
	}
	created, skipped, closed, reactivated := out.Counts()
	assert.Equal(t, 1, created)
	assert.Equal(t, 2, skipped)
	assert.Equal(t, 1, closed)
	assert.Equal(t, 0, reactivated)
}
