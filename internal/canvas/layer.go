// Package canvas holds the in-memory model of one design's layers and the
// client-local undo/redo history over it. It knows nothing about transport;
// the collab package drives it for both local edits and remote reconciliation.
package canvas

import "strings"

// LayerKind discriminates the layer payload variants.
type LayerKind string

const (
	KindText  LayerKind = "text"
	KindImage LayerKind = "image"
	KindShape LayerKind = "shape"
)

// ShapeKind is the subset of shapes the editor supports.
type ShapeKind string

const (
	ShapeRectangle ShapeKind = "rectangle"
	ShapeCircle    ShapeKind = "circle"
)

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Dimensions struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type TextPayload struct {
	Content    string  `json:"content"`
	FontFamily string  `json:"fontFamily"`
	FontSizePx float64 `json:"fontSizePx"`
	ColorHex   string  `json:"colorHex"`
}

type ImagePayload struct {
	URL     string  `json:"url"`
	Opacity float64 `json:"opacity"`
}

type ShapePayload struct {
	ShapeKind   ShapeKind `json:"shapeKind"`
	FillHex     string    `json:"fillHex"`
	StrokeHex   string    `json:"strokeHex,omitempty"`
	StrokeWidth float64   `json:"strokeWidth,omitempty"`
}

// Layer is a single visual element. Exactly one of Text/Image/Shape is
// populated, matching Kind.
type Layer struct {
	ID              string        `json:"id"`
	Kind            LayerKind     `json:"kind"`
	Name            string        `json:"name"`
	ZIndex          int           `json:"zIndex"`
	Visible         bool          `json:"visible"`
	Locked          bool          `json:"locked"`
	Position        Position      `json:"position"`
	Dimensions      Dimensions    `json:"dimensions"`
	RotationDegrees float64       `json:"rotationDegrees"`
	Text            *TextPayload  `json:"text,omitempty"`
	Image           *ImagePayload `json:"image,omitempty"`
	Shape           *ShapePayload `json:"shape,omitempty"`
}

// Clone returns a deep copy; payloads are behind pointers so a plain struct
// copy would alias them.
func (l Layer) Clone() Layer {
	c := l
	if l.Text != nil {
		t := *l.Text
		c.Text = &t
	}
	if l.Image != nil {
		img := *l.Image
		c.Image = &img
	}
	if l.Shape != nil {
		s := *l.Shape
		c.Shape = &s
	}
	return c
}

// Valid reports whether exactly one payload is present and matches Kind.
func (l Layer) Valid() bool {
	if strings.TrimSpace(l.Name) == "" {
		return false
	}
	switch l.Kind {
	case KindText:
		return l.Text != nil && l.Image == nil && l.Shape == nil
	case KindImage:
		return l.Image != nil && l.Text == nil && l.Shape == nil
	case KindShape:
		return l.Shape != nil && l.Text == nil && l.Image == nil
	default:
		return false
	}
}

// CanvasState is one client's copy of a design. Layers are kept sorted by
// ZIndex; identity is the layer ID, not the slice position.
type CanvasState struct {
	Layers          []Layer `json:"layers"`
	SelectedLayerID string  `json:"selectedLayerId,omitempty"`
}

// Clone deep-copies the state, including layer payloads.
func (s CanvasState) Clone() CanvasState {
	c := CanvasState{SelectedLayerID: s.SelectedLayerID}
	if s.Layers != nil {
		c.Layers = make([]Layer, len(s.Layers))
		for i, l := range s.Layers {
			c.Layers[i] = l.Clone()
		}
	}
	return c
}
