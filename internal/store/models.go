package store

import (
	"encoding/json"
	"time"
)

// Design is one saved canvas document. Canvas holds the serialized
// CanvasState exactly as the editing client handed it over on save; the
// store never looks inside it.
type Design struct {
	ID        string
	Title     string
	OwnerName string
	Canvas    json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Comment is a persisted design comment. The realtime layer relays live
// comments opaquely; this is the durable copy written through the API.
type Comment struct {
	ID         string
	DesignID   string
	AuthorName string
	Body       string
	// LayerID optionally anchors the comment to a layer. Not a foreign
	// key: the layer may be deleted later and the comment survives.
	LayerID   string
	CreatedAt time.Time
}
