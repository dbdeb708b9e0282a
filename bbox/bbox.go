// Package bbox computes axis-aligned bounding boxes over orb geometries,
// geojson features and feature collections.
//
// A box may be absent: a feature without geometry, or a composite without
// children, has no extent. Absence is the identity under Combine and never
// intersects anything.
package bbox

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Box is an optional bounding box. The zero value is absent.
type Box struct {
	Bound orb.Bound
	Valid bool
}

// FromBound wraps a defined bound.
func FromBound(b orb.Bound) Box {
	return Box{Bound: b, Valid: true}
}

// FromPoint returns the degenerate box of a single position.
func FromPoint(p orb.Point) Box {
	return Box{Bound: orb.Bound{Min: p, Max: p}, Valid: true}
}

// New builds a box from its four edges.
func New(xmin, ymin, xmax, ymax float64) Box {
	return FromBound(orb.Bound{Min: orb.Point{xmin, ymin}, Max: orb.Point{xmax, ymax}})
}

// Left is xmin.
func (b Box) Left() float64 { return b.Bound.Min[0] }

// Bottom is ymin.
func (b Box) Bottom() float64 { return b.Bound.Min[1] }

// Right is xmax.
func (b Box) Right() float64 { return b.Bound.Max[0] }

// Top is ymax.
func (b Box) Top() float64 { return b.Bound.Max[1] }

func (b Box) String() string {
	if !b.Valid {
		return "absent"
	}
	return fmt.Sprintf("[%g,%g,%g,%g]", b.Left(), b.Bottom(), b.Right(), b.Top())
}

// Combine returns the smallest box enclosing both a and b.
func Combine(a, b Box) Box {
	if !a.Valid {
		return b
	}
	if !b.Valid {
		return a
	}
	return New(
		math.Min(a.Left(), b.Left()),
		math.Min(a.Bottom(), b.Bottom()),
		math.Max(a.Right(), b.Right()),
		math.Max(a.Top(), b.Top()),
	)
}

// Intersects reports whether two boxes overlap. Edges are closed, so boxes
// that only touch intersect. An absent box intersects nothing.
func Intersects(a, b Box) bool {
	if !a.Valid || !b.Valid {
		return false
	}
	return a.Bound.Intersects(b.Bound)
}

// Of returns the bounding box of a geometry.
// It panics on geometry kinds it does not know about.
func Of(g orb.Geometry) Box {
	switch g := g.(type) {
	case nil:
		return Box{}
	case orb.Point:
		return FromPoint(g)
	case orb.MultiPoint:
		return ofPoints(g)
	case orb.LineString:
		return ofPoints(g)
	case orb.Ring:
		return ofPoints(g)
	case orb.MultiLineString:
		var box Box
		for _, ls := range g {
			box = Combine(box, ofPoints(ls))
		}
		return box
	case orb.Polygon:
		var box Box
		for _, r := range g {
			box = Combine(box, ofPoints(r))
		}
		return box
	case orb.MultiPolygon:
		var box Box
		for _, p := range g {
			box = Combine(box, Of(p))
		}
		return box
	case orb.Collection:
		var box Box
		for _, c := range g {
			box = Combine(box, Of(c))
		}
		return box
	case orb.Bound:
		return FromBound(g)
	default:
		panic(fmt.Sprintf("bbox: unsupported geometry type %T", g))
	}
}

// OfFeature returns the bounding box of a feature's geometry.
func OfFeature(f *geojson.Feature) Box {
	if f == nil || f.Geometry == nil {
		return Box{}
	}
	return Of(f.Geometry)
}

// OfCollection folds the boxes of every feature in fc.
func OfCollection(fc *geojson.FeatureCollection) Box {
	var box Box
	if fc == nil {
		return box
	}
	for _, f := range fc.Features {
		box = Combine(box, OfFeature(f))
	}
	return box
}

func ofPoints[P ~[]orb.Point](ps P) Box {
	var box Box
	for _, p := range ps {
		box = Combine(box, FromPoint(p))
	}
	return box
}
