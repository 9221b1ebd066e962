package models

// DocNode is a single node of an article's content tree. The shape mirrors
// the server's document JSON: a typed node with optional text, attributes,
// and ordered children.
type DocNode struct {
	Type     string         `json:"type"`
	Text     string         `json:"text,omitempty"`
	Attrs    map[string]any `json:"attrs,omitempty"`
	Children []DocNode      `json:"content,omitempty"`
}

// EmptyDoc returns a minimal valid document tree.
func EmptyDoc() *DocNode {
	return &DocNode{
		Type:     "doc",
		Children: []DocNode{{Type: "paragraph"}},
	}
}

// Article is a node in the user's article tree. The server owns the
// canonical copy; the client holds a replica in its local cache.
//
// UpdatedAt is an opaque server-issued timestamp string. It is compared
// for exact equality only and must never be fabricated locally: a queued
// (unconfirmed) write keeps the previous value so a later freshness check
// cannot mistake a local edit for confirmed fresh data.
type Article struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	ParentID  *string  `json:"parentId"`
	Position  int      `json:"position"`
	UpdatedAt string   `json:"updatedAt,omitempty"`
	Doc       *DocNode `json:"docContent,omitempty"`
	Encrypted bool     `json:"encrypted,omitempty"`
	DeletedAt *string  `json:"deletedAt,omitempty"`
}

// IndexEntry is the lightweight projection of an Article used for tree
// navigation without loading content. While offline, the cached index is
// the client's only source of truth for sibling ordering.
type IndexEntry struct {
	ID        string  `json:"id"`
	ParentID  *string `json:"parentId"`
	Position  int     `json:"position"`
	Title     string  `json:"title"`
	UpdatedAt string  `json:"updatedAt,omitempty"`
	DeletedAt *string `json:"deletedAt,omitempty"`
}

// PositionChange is a single tree-position delta produced by a
// reconciliation pass: the article's new parent and sibling position.
type PositionChange struct {
	ID       string  `json:"id"`
	ParentID *string `json:"parentId"`
	Position int     `json:"position"`
}

// Meta is the freshness metadata returned by the article meta endpoint.
type Meta struct {
	UpdatedAt string `json:"updatedAt"`
}

// IndexEntryOf projects an article onto its index entry.
func IndexEntryOf(a *Article) IndexEntry {
	return IndexEntry{
		ID:        a.ID,
		ParentID:  a.ParentID,
		Position:  a.Position,
		Title:     a.Title,
		UpdatedAt: a.UpdatedAt,
		DeletedAt: a.DeletedAt,
	}
}
