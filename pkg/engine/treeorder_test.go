package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbornotes/arbor/pkg/models"
)

func TestNormalizePositionsDense(t *testing.T) {
	list := []models.IndexEntry{
		entry("a", nil, 3),
		entry("b", nil, 3),
		entry("c", nil, 9),
	}
	changes := NormalizePositions(list, nil)

	for i, e := range list {
		if e.Position != i {
			t.Errorf("position[%d] = %d, want %d", i, e.Position, i)
		}
	}
	// a moves 3->0, b 3->1, c 9->2: all changed.
	require.Len(t, changes, 3)
}

func TestNormalizePositionsReturnsOnlyChanged(t *testing.T) {
	list := []models.IndexEntry{
		entry("a", nil, 0),
		entry("b", nil, 2),
		entry("c", nil, 5),
	}
	changes := NormalizePositions(list, nil)

	require.Len(t, changes, 2)
	assert.Equal(t, "b", changes[0].ID)
	assert.Equal(t, 1, changes[0].Position)
	assert.Equal(t, "c", changes[1].ID)
	assert.Equal(t, 2, changes[1].Position)
}

func TestNormalizePositionsReparents(t *testing.T) {
	parent := strptr("p")
	list := []models.IndexEntry{entry("a", nil, 0)}
	changes := NormalizePositions(list, parent)

	// Position already matched the index, but the parent changed.
	require.Len(t, changes, 1)
	require.NotNil(t, changes[0].ParentID)
	assert.Equal(t, "p", *changes[0].ParentID)
}

func TestReconcileMoveSwapsSiblings(t *testing.T) {
	entries := []models.IndexEntry{
		entry("a", nil, 0),
		entry("b", nil, 1),
		entry("c", nil, 2),
	}
	changes := ReconcileMove(entries, "b", "up")

	require.Len(t, changes, 2)
	byID := changesByID(changes)
	assert.Equal(t, 0, byID["b"].Position)
	assert.Equal(t, 1, byID["a"].Position)
}

func TestReconcileMoveBoundaries(t *testing.T) {
	entries := []models.IndexEntry{
		entry("a", nil, 0),
		entry("b", nil, 1),
	}
	assert.Nil(t, ReconcileMove(entries, "a", "up"))
	assert.Nil(t, ReconcileMove(entries, "b", "down"))
	assert.Nil(t, ReconcileMove(entries, "missing", "up"))
	assert.Nil(t, ReconcileMove(entries, "a", "sideways"))
}

func TestReconcileIndentFirstSiblingNoop(t *testing.T) {
	entries := []models.IndexEntry{
		entry("a", nil, 0),
		entry("b", nil, 1),
	}
	assert.Nil(t, ReconcileIndent(entries, "a"))
}

func TestReconcileIndentUnderPrecedingSibling(t *testing.T) {
	entries := []models.IndexEntry{
		entry("a", nil, 0),
		entry("b", nil, 1),
		entry("a1", strptr("a"), 0),
	}
	changes := ReconcileIndent(entries, "b")

	byID := changesByID(changes)
	require.Contains(t, byID, "b")
	require.NotNil(t, byID["b"].ParentID)
	assert.Equal(t, "a", *byID["b"].ParentID)
	// Appended after a's existing child.
	assert.Equal(t, 1, byID["b"].Position)
}

func TestReconcileOutdentRootNoop(t *testing.T) {
	entries := []models.IndexEntry{entry("a", nil, 0)}
	assert.Nil(t, ReconcileOutdent(entries, "a"))
}

func TestReconcileOutdentInsertsAfterOldParent(t *testing.T) {
	entries := []models.IndexEntry{
		entry("p", nil, 0),
		entry("q", nil, 1),
		entry("x", strptr("p"), 0),
		entry("y", strptr("p"), 1),
	}
	changes := ReconcileOutdent(entries, "x")

	byID := changesByID(changes)
	require.Contains(t, byID, "x")
	assert.Nil(t, byID["x"].ParentID)
	// Root order becomes [p, x, q].
	assert.Equal(t, 1, byID["x"].Position)
	assert.Equal(t, 2, byID["q"].Position)
	// y closes the gap left behind.
	assert.Equal(t, 0, byID["y"].Position)
}

func TestReconcileMoveTreeAfterAnchor(t *testing.T) {
	entries := []models.IndexEntry{
		entry("z", nil, 0),
		entry("w", nil, 1),
		entry("p", nil, 2),
		entry("x", strptr("p"), 0),
	}
	changes := ReconcileMoveTree(entries, "x", TreeTarget{AnchorID: "z", Placement: PlaceAfter})

	byID := changesByID(changes)
	require.Contains(t, byID, "x")
	assert.Nil(t, byID["x"].ParentID)
	// Resulting root order [z, x, w, p] with dense positions.
	assert.Equal(t, 1, byID["x"].Position)
	assert.Equal(t, 2, byID["w"].Position)
	assert.Equal(t, 3, byID["p"].Position)
}

func TestReconcileMoveTreeBeforeAnchor(t *testing.T) {
	entries := []models.IndexEntry{
		entry("z", nil, 0),
		entry("w", nil, 1),
		entry("x", strptr("z"), 0),
	}
	changes := ReconcileMoveTree(entries, "x", TreeTarget{AnchorID: "w", Placement: PlaceBefore})

	byID := changesByID(changes)
	require.Contains(t, byID, "x")
	assert.Nil(t, byID["x"].ParentID)
	assert.Equal(t, 1, byID["x"].Position)
	assert.Equal(t, 2, byID["w"].Position)
}

func TestReconcileMoveTreeInsideAppends(t *testing.T) {
	entries := []models.IndexEntry{
		entry("z", nil, 0),
		entry("z1", strptr("z"), 0),
		entry("x", nil, 1),
	}
	changes := ReconcileMoveTree(entries, "x", TreeTarget{AnchorID: "z", Placement: PlaceInside})

	byID := changesByID(changes)
	require.Contains(t, byID, "x")
	require.NotNil(t, byID["x"].ParentID)
	assert.Equal(t, "z", *byID["x"].ParentID)
	assert.Equal(t, 1, byID["x"].Position)
}

func TestReconcileMoveTreeNoAnchorMatchAppends(t *testing.T) {
	entries := []models.IndexEntry{
		entry("z", nil, 0),
		entry("x", strptr("z"), 0),
	}
	changes := ReconcileMoveTree(entries, "x", TreeTarget{AnchorID: "ghost", Placement: PlaceAfter})

	// No anchor match: append to the (nil) target parent's children.
	byID := changesByID(changes)
	require.Contains(t, byID, "x")
	assert.Nil(t, byID["x"].ParentID)
	assert.Equal(t, 1, byID["x"].Position)
}

func TestReconcileMoveTreeSameParentReorder(t *testing.T) {
	entries := []models.IndexEntry{
		entry("a", nil, 0),
		entry("b", nil, 1),
		entry("c", nil, 2),
	}
	changes := ReconcileMoveTree(entries, "c", TreeTarget{AnchorID: "a", Placement: PlaceAfter})

	byID := changesByID(changes)
	assert.Equal(t, 1, byID["c"].Position)
	assert.Equal(t, 2, byID["b"].Position)
	assert.NotContains(t, byID, "a")
}

func TestReconcileMoveTreeUnknownIDNoop(t *testing.T) {
	entries := []models.IndexEntry{entry("a", nil, 0)}
	assert.Nil(t, ReconcileMoveTree(entries, "missing", TreeTarget{AnchorID: "a", Placement: PlaceAfter}))
}

func changesByID(changes []models.PositionChange) map[string]models.PositionChange {
	byID := make(map[string]models.PositionChange, len(changes))
	for _, ch := range changes {
		byID[ch.ID] = ch
	}
	return byID
}
