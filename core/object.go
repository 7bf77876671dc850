package core

import (
	"fmt"
	"math/rand"
	"time"
)

// ObjectType discriminates the CanvasObject variants.
type ObjectType string

const (
	ObjectLine      ObjectType = "line"
	ObjectRectangle ObjectType = "rectangle"
	ObjectCircle    ObjectType = "circle"
	ObjectText      ObjectType = "text"
	ObjectImage     ObjectType = "image"
)

type (
	// Object is a single drawable element on a canvas. The set of fields
	// populated depends on Type; unused fields stay at their zero value and
	// are omitted from JSON. ID is client-generated and immutable: two
	// objects carrying the same ID are the same logical entity.
	Object struct {
		ID       string     `json:"id"`
		Type     ObjectType `json:"type"`
		X        float64    `json:"x"`
		Y        float64    `json:"y"`
		Width    float64    `json:"width,omitempty"`
		Height   float64    `json:"height,omitempty"`
		Radius   float64    `json:"radius,omitempty"`
		Points   []float64  `json:"points,omitempty"`
		Rotation float64    `json:"rotation,omitempty"`
		ScaleX   float64    `json:"scaleX,omitempty"`
		ScaleY   float64    `json:"scaleY,omitempty"`

		Fill          string  `json:"fill,omitempty"`
		Stroke        string  `json:"stroke,omitempty"`
		StrokeWidth   float64 `json:"strokeWidth,omitempty"`
		CompositeMode string  `json:"globalCompositeOperation,omitempty"`

		Text       string  `json:"text,omitempty"`
		FontSize   float64 `json:"fontSize,omitempty"`
		FontFamily string  `json:"fontFamily,omitempty"`

		ImageSrc   string `json:"src,omitempty"`
		Crop       *Rect  `json:"crop,omitempty"`
		OrigWidth  float64 `json:"origWidth,omitempty"`
		OrigHeight float64 `json:"origHeight,omitempty"`
	}

	// Rect is an axis-aligned rectangle, used for image crops.
	Rect struct {
		X      float64 `json:"x"`
		Y      float64 `json:"y"`
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	}

	// Document is the ordered object list of one project. Insertion order
	// is z-order; the slice is the single source of truth on a client.
	Document []Object

	// CanvasState is the persisted shape of a document, as stored by the
	// server and exchanged over the project HTTP surface.
	CanvasState struct {
		Objects []Object `json:"objects"`
	}
)

// NewObjectID builds a client-unique object id of the form
// "<type>-<unix ms>-<rand>".
func NewObjectID(t ObjectType) string {
	return fmt.Sprintf("%s-%d-%04d", t, time.Now().UnixMilli(), rand.Intn(10000))
}

// Clone returns a deep copy of the object, including points and crop.
func (o Object) Clone() Object {
	c := o
	if o.Points != nil {
		c.Points = append([]float64(nil), o.Points...)
	}
	if o.Crop != nil {
		crop := *o.Crop
		c.Crop = &crop
	}
	return c
}

// IndexOf returns the position of the object with the given id, or -1.
func (d Document) IndexOf(id string) int {
	for i := range d {
		if d[i].ID == id {
			return i
		}
	}
	return -1
}

// Clone deep-copies the document so snapshots never alias live objects.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for i := range d {
		out[i] = d[i].Clone()
	}
	return out
}
