package engine

import (
	"sort"

	"github.com/arbornotes/arbor/pkg/models"
)

// Tree-order reconciliation: pure algorithms over the cached article index
// that recompute sibling ordering for move/indent/outdent/reparent when the
// network attempt fails. None of these touch the network or the cache; they
// return the position deltas to persist, or nil when there is nothing to
// reconcile (unknown id, boundary condition). The caller persists the deltas
// and queues the replay op.

// Placement values for MoveTree targets.
const (
	PlaceBefore = "before"
	PlaceAfter  = "after"
	PlaceInside = "inside"
)

// TreeTarget names the destination of a subtree move: either an explicit
// parent, or an anchor sibling with a placement relative to it.
type TreeTarget struct {
	ParentID  *string
	AnchorID  string
	Placement string
}

// parentKey maps a nullable parent id onto a comparable map key. Roots group
// under the empty string; article ids are never empty.
func parentKey(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func cloneParent(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// childrenByParent groups index entries by parent, each group sorted by
// position ascending.
func childrenByParent(entries []models.IndexEntry) map[string][]models.IndexEntry {
	groups := make(map[string][]models.IndexEntry)
	for _, e := range entries {
		key := parentKey(e.ParentID)
		groups[key] = append(groups[key], e)
	}
	for key := range groups {
		list := groups[key]
		sort.SliceStable(list, func(i, j int) bool { return list[i].Position < list[j].Position })
	}
	return groups
}

// NormalizePositions walks a sibling list in order, assigning position =
// index and the list's parent, and returns only the triples that actually
// changed. After a pass the list's positions are dense, zero-based and
// strictly increasing.
func NormalizePositions(list []models.IndexEntry, parent *string) []models.PositionChange {
	var changes []models.PositionChange
	for i := range list {
		if list[i].Position == i && parentKey(list[i].ParentID) == parentKey(parent) {
			continue
		}
		list[i].Position = i
		list[i].ParentID = cloneParent(parent)
		changes = append(changes, models.PositionChange{
			ID:       list[i].ID,
			ParentID: cloneParent(parent),
			Position: i,
		})
	}
	return changes
}

func findEntry(entries []models.IndexEntry, id string) (models.IndexEntry, bool) {
	for _, e := range entries {
		if e.ID == id {
			return e, true
		}
	}
	return models.IndexEntry{}, false
}

func indexOf(list []models.IndexEntry, id string) int {
	for i, e := range list {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func removeAt(list []models.IndexEntry, i int) []models.IndexEntry {
	out := make([]models.IndexEntry, 0, len(list)-1)
	out = append(out, list[:i]...)
	return append(out, list[i+1:]...)
}

func insertAt(list []models.IndexEntry, i int, e models.IndexEntry) []models.IndexEntry {
	out := make([]models.IndexEntry, 0, len(list)+1)
	out = append(out, list[:i]...)
	out = append(out, e)
	return append(out, list[i:]...)
}

// ReconcileMove swaps an entry with its previous ("up") or next ("down")
// sibling. Out-of-bounds swaps and unknown ids are no-ops.
func ReconcileMove(entries []models.IndexEntry, id, direction string) []models.PositionChange {
	cur, ok := findEntry(entries, id)
	if !ok {
		return nil
	}
	sibs := childrenByParent(entries)[parentKey(cur.ParentID)]
	i := indexOf(sibs, id)
	if i < 0 {
		return nil
	}

	var j int
	switch direction {
	case "up":
		j = i - 1
	case "down":
		j = i + 1
	default:
		return nil
	}
	if j < 0 || j >= len(sibs) {
		return nil
	}

	sibs[i], sibs[j] = sibs[j], sibs[i]
	return NormalizePositions(sibs, cur.ParentID)
}

// ReconcileIndent reparents an entry under its immediately preceding sibling,
// appended to that sibling's children. The first sibling of a group has
// nothing preceding it to indent under: no-op.
func ReconcileIndent(entries []models.IndexEntry, id string) []models.PositionChange {
	cur, ok := findEntry(entries, id)
	if !ok {
		return nil
	}
	groups := childrenByParent(entries)
	sibs := groups[parentKey(cur.ParentID)]
	i := indexOf(sibs, id)
	if i <= 0 {
		return nil
	}

	newParent := sibs[i-1].ID
	old := removeAt(sibs, i)
	dest := append(groups[newParent], cur)

	changes := NormalizePositions(old, cur.ParentID)
	return append(changes, NormalizePositions(dest, &newParent)...)
}

// ReconcileOutdent reparents an entry under its grandparent, inserted just
// after its old parent. Root-level entries cannot outdent further: no-op.
func ReconcileOutdent(entries []models.IndexEntry, id string) []models.PositionChange {
	cur, ok := findEntry(entries, id)
	if !ok || cur.ParentID == nil {
		return nil
	}
	parent, ok := findEntry(entries, *cur.ParentID)
	if !ok {
		return nil
	}

	groups := childrenByParent(entries)
	old := groups[parentKey(cur.ParentID)]
	i := indexOf(old, id)
	if i < 0 {
		return nil
	}
	old = removeAt(old, i)

	newParent := parent.ParentID
	dest := groups[parentKey(newParent)]
	insert := len(dest)
	if pi := indexOf(dest, parent.ID); pi >= 0 {
		insert = pi + 1
	}
	dest = insertAt(dest, insert, cur)

	changes := NormalizePositions(old, cur.ParentID)
	return append(changes, NormalizePositions(dest, newParent)...)
}

// ReconcileMoveTree relocates an entry (with its subtree, which follows its
// root implicitly) to the target. With an anchor, "before"/"after" insert
// relative to it and "inside" appends to the anchor's children; without an
// anchor match the entry is appended to the target parent's children.
//
// Precondition: the caller has already excluded targets inside the moved
// subtree. The reconciler does not walk ancestors to prevent cycles.
func ReconcileMoveTree(entries []models.IndexEntry, id string, target TreeTarget) []models.PositionChange {
	cur, ok := findEntry(entries, id)
	if !ok {
		return nil
	}

	destParent := cloneParent(target.ParentID)
	anchor, anchorFound := models.IndexEntry{}, false
	if target.AnchorID != "" {
		anchor, anchorFound = findEntry(entries, target.AnchorID)
	}
	if anchorFound {
		if target.Placement == PlaceInside {
			destParent = &anchor.ID
		} else {
			destParent = cloneParent(anchor.ParentID)
		}
	}

	groups := childrenByParent(entries)

	// Same-parent moves reorder a single list; removing first keeps anchor
	// indices meaningful after the entry's old slot disappears.
	if parentKey(destParent) == parentKey(cur.ParentID) {
		list := groups[parentKey(cur.ParentID)]
		i := indexOf(list, id)
		if i < 0 {
			return nil
		}
		list = removeAt(list, i)
		list = insertAt(list, destIndex(list, anchor, anchorFound, target.Placement), cur)
		return NormalizePositions(list, cur.ParentID)
	}

	old := groups[parentKey(cur.ParentID)]
	i := indexOf(old, id)
	if i < 0 {
		return nil
	}
	old = removeAt(old, i)

	dest := groups[parentKey(destParent)]
	dest = insertAt(dest, destIndex(dest, anchor, anchorFound, target.Placement), cur)

	changes := NormalizePositions(old, cur.ParentID)
	return append(changes, NormalizePositions(dest, destParent)...)
}

// destIndex computes the insertion index in a destination sibling list.
// Inside-drops append: the anchor gives no ordering hint among its children.
func destIndex(dest []models.IndexEntry, anchor models.IndexEntry, anchorFound bool, placement string) int {
	if !anchorFound || placement == PlaceInside {
		return len(dest)
	}
	ai := indexOf(dest, anchor.ID)
	if ai < 0 {
		return len(dest)
	}
	if placement == PlaceBefore {
		return ai
	}
	return ai + 1
}
