/*
Package primitives implements the Primitive Model (C8): the immutable
value types emitted by the Gerber and Excellon interpreters, in
canonical draw order. Primitives are sum types (a Kind tag plus the
fields relevant to that kind), not a class hierarchy, per the
specification's design notes — downstream consumers (a renderer, a
unit-transform pass) dispatch on Kind.

Coordinates use polyclip.Point so a Region's contour can be handed
straight to polyclip-go for containment/boolean operations without a
conversion pass, and bounding boxes use polyclip.Rectangle for the same
reason.
*/
package primitives

import (
	"math"

	"github.com/akavel/polyclip-go"
	"github.com/curtacircuitos/pcb-tools/gerberbasetypes"
)

// Kind tags which variant a Primitive holds.
type Kind int

const (
	KindLine Kind = iota + 1
	KindArc
	KindFlash
	KindRegion
	KindDrill
	KindSlot
)

func (k Kind) String() string {
	switch k {
	case KindLine:
		return "line"
	case KindArc:
		return "arc"
	case KindFlash:
		return "flash"
	case KindRegion:
		return "region"
	case KindDrill:
		return "drill"
	case KindSlot:
		return "slot"
	default:
		return "unknown primitive"
	}
}

// Segment is one closed-contour element of a Region: either a line or
// an arc, distinguished by IsArc.
type Segment struct {
	IsArc     bool
	Start     polyclip.Point
	End       polyclip.Point
	Center    polyclip.Point // meaningful only when IsArc
	Clockwise bool           // meaningful only when IsArc
}

// Attribute mirrors camfile.Attribute without importing camfile (which
// imports this package), keeping object attributes (%TO) attachable to
// individual primitives.
type Attribute struct {
	Name   string
	Fields []string
}

// Primitive is the tagged union emitted by both interpreters. Only the
// fields relevant to Kind are meaningful; the rest are zero.
type Primitive struct {
	Kind Kind

	// Line / Arc / Flash
	Start      polyclip.Point
	End        polyclip.Point
	Center     polyclip.Point // Arc only; I/J offset resolved to an absolute center
	Clockwise  bool           // Arc only
	Position   polyclip.Point // Flash only
	ApertureID int            // Line/Arc/Flash: D-code used
	Level      gerberbasetypes.PolType
	Polarity   gerberbasetypes.ImagePolarity

	// Region
	Contour []Segment

	// Drill / Slot
	Tool int

	Attributes []Attribute
}

// NewLine builds a Line primitive.
func NewLine(start, end polyclip.Point, aperture int, level gerberbasetypes.PolType) Primitive {
	return Primitive{Kind: KindLine, Start: start, End: end, ApertureID: aperture, Level: level}
}

// NewArc builds an Arc primitive. clockwise is true for G02 sweeps.
func NewArc(start, end, center polyclip.Point, clockwise bool, aperture int, level gerberbasetypes.PolType) Primitive {
	return Primitive{Kind: KindArc, Start: start, End: end, Center: center, Clockwise: clockwise, ApertureID: aperture, Level: level}
}

// NewFlash builds a Flash primitive.
func NewFlash(pos polyclip.Point, aperture int, level gerberbasetypes.PolType) Primitive {
	return Primitive{Kind: KindFlash, Position: pos, ApertureID: aperture, Level: level}
}

// NewRegion builds a Region primitive from a closed contour.
func NewRegion(contour []Segment, level gerberbasetypes.PolType) Primitive {
	return Primitive{Kind: KindRegion, Contour: contour, Level: level}
}

// NewDrill builds a Drill primitive (Excellon).
func NewDrill(pos polyclip.Point, tool int) Primitive {
	return Primitive{Kind: KindDrill, Position: pos, Tool: tool}
}

// NewSlot builds a Slot primitive (Excellon routed path).
func NewSlot(start, end polyclip.Point, tool int) Primitive {
	return Primitive{Kind: KindSlot, Start: start, End: end, Tool: tool}
}

// apertureRadius is supplied by the caller computing a bounding box,
// since Primitive itself does not reference the aperture dictionary
// (it only stores the D-code/tool number it was drawn with).
type apertureRadius = float64

// BoundingBox returns the axis-aligned bounding box of the primitive.
// For Line/Arc/Flash/Drill/Slot the caller must supply the half-width
// of the aperture/tool used (0 for a point-only box, e.g. when the
// aperture is not available); Region ignores it; Arc's box is the box
// of its whole center-radius circle, not only the swept part.
func (p Primitive) BoundingBox(halfWidth float64) polyclip.Rectangle {
	switch p.Kind {
	case KindLine:
		return expand(boxOf(p.Start, p.End), halfWidth)
	case KindArc:
		r := hypot(p.Center, p.Start)
		box := polyclip.Rectangle{
			Min: polyclip.Point{X: p.Center.X - r, Y: p.Center.Y - r},
			Max: polyclip.Point{X: p.Center.X + r, Y: p.Center.Y + r},
		}
		return expand(box, halfWidth)
	case KindFlash:
		return expand(polyclip.Rectangle{Min: p.Position, Max: p.Position}, halfWidth)
	case KindRegion:
		return regionBox(p.Contour)
	case KindDrill:
		return expand(polyclip.Rectangle{Min: p.Position, Max: p.Position}, halfWidth)
	case KindSlot:
		return expand(boxOf(p.Start, p.End), halfWidth)
	default:
		return polyclip.Rectangle{}
	}
}

func boxOf(a, b polyclip.Point) polyclip.Rectangle {
	r := polyclip.Rectangle{Min: a, Max: a}
	return unionPoint(r, b)
}

func unionPoint(r polyclip.Rectangle, p polyclip.Point) polyclip.Rectangle {
	if p.X < r.Min.X {
		r.Min.X = p.X
	}
	if p.Y < r.Min.Y {
		r.Min.Y = p.Y
	}
	if p.X > r.Max.X {
		r.Max.X = p.X
	}
	if p.Y > r.Max.Y {
		r.Max.Y = p.Y
	}
	return r
}

func expand(r polyclip.Rectangle, halfWidth float64) polyclip.Rectangle {
	r.Min.X -= halfWidth
	r.Min.Y -= halfWidth
	r.Max.X += halfWidth
	r.Max.Y += halfWidth
	return r
}

func regionBox(contour []Segment) polyclip.Rectangle {
	if len(contour) == 0 {
		return polyclip.Rectangle{}
	}
	box := polyclip.Rectangle{Min: contour[0].Start, Max: contour[0].Start}
	for _, seg := range contour {
		box = unionPoint(box, seg.Start)
		box = unionPoint(box, seg.End)
		if seg.IsArc {
			r := hypot(seg.Center, seg.Start)
			box = unionPoint(box, polyclip.Point{X: seg.Center.X - r, Y: seg.Center.Y - r})
			box = unionPoint(box, polyclip.Point{X: seg.Center.X + r, Y: seg.Center.Y + r})
		}
	}
	return box
}

func hypot(a, b polyclip.Point) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}
