package models

import "time"

// Collection is a hierarchical grouping of documents mirrored from the CMS.
// A nil ParentID marks the root collection.
type Collection struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_id,omitempty"`
}

// IsRoot reports whether the collection has no parent.
func (c *Collection) IsRoot() bool {
	return c.ParentID == nil
}

// ViewRestriction marks a collection (and everything below it) as private.
// Restrictions are created and deleted by CMS administrators; docsentry only
// reads them.
type ViewRestriction struct {
	ID           int64     `json:"id"`
	CollectionID int64     `json:"collection_id"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Document is a stored file that belongs to exactly one collection. FileKey
// is the object key in the storage bucket; URL is the public URL served to
// end users (and cached by the frontend cache).
type Document struct {
	ID           int64     `json:"id"`
	CollectionID int64     `json:"collection_id"`
	Title        string    `json:"title"`
	FileKey      string    `json:"file_key"`
	URL          string    `json:"url"`
	UpdatedAt    time.Time `json:"updated_at"`
}
