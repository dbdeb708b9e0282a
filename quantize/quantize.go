// Package quantize snaps coordinates onto a regular grid whose step depends
// on a zoom level, so geometries simplified independently at one zoom still
// share vertices along tile edges.
package quantize

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// BaseZoom is the zoom level at which one grid cell is BaseResolution wide.
const BaseZoom = 10

// BaseResolution is the cell width, in meters, at BaseZoom.
const BaseResolution = 150

// scale converts a resolution in meters to coordinate units (roughly
// degrees). It must be applied before rounding and removed after.
const scale = 1e5

// Resolution returns the approximate ground width of a grid cell at zoom.
// Each zoom step halves it; negative zooms are allowed.
func Resolution(zoom int) float64 {
	return BaseResolution * math.Pow(2, float64(BaseZoom-zoom))
}

// Step returns the grid step in coordinate units for a resolution.
func Step(resolution float64) float64 {
	return resolution / scale
}

// Coord snaps v onto the grid for resolution.
func Coord(v, resolution float64) float64 {
	return round(v*scale/resolution) * resolution / scale
}

// round rounds half toward positive infinity.
func round(x float64) float64 {
	r := math.Floor(x)
	if x-r >= 0.5 {
		r++
	}
	return r
}

// Point snaps both axes of p.
func Point(p orb.Point, resolution float64) orb.Point {
	return orb.Point{Coord(p[0], resolution), Coord(p[1], resolution)}
}

// Geometry returns a copy of g with every coordinate snapped to the grid of
// the given zoom. g itself is left untouched.
func Geometry(g orb.Geometry, zoom int) orb.Geometry {
	return geometry(g, Resolution(zoom))
}

func geometry(g orb.Geometry, res float64) orb.Geometry {
	switch g := g.(type) {
	case nil:
		return nil
	case orb.Point:
		return Point(g, res)
	case orb.MultiPoint:
		return orb.MultiPoint(points(g, res))
	case orb.LineString:
		return orb.LineString(points(g, res))
	case orb.Ring:
		return orb.Ring(points(g, res))
	case orb.MultiLineString:
		out := make(orb.MultiLineString, len(g))
		for i, ls := range g {
			out[i] = orb.LineString(points(ls, res))
		}
		return out
	case orb.Polygon:
		return polygon(g, res)
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, len(g))
		for i, p := range g {
			out[i] = polygon(p, res)
		}
		return out
	case orb.Collection:
		out := make(orb.Collection, len(g))
		for i, c := range g {
			out[i] = geometry(c, res)
		}
		return out
	case orb.Bound:
		return orb.Bound{Min: Point(g.Min, res), Max: Point(g.Max, res)}
	default:
		panic(fmt.Sprintf("quantize: unsupported geometry type %T", g))
	}
}

func polygon(p orb.Polygon, res float64) orb.Polygon {
	out := make(orb.Polygon, len(p))
	for i, r := range p {
		out[i] = orb.Ring(points(r, res))
	}
	return out
}

func points[P ~[]orb.Point](ps P, res float64) []orb.Point {
	out := make([]orb.Point, len(ps))
	for i, p := range ps {
		out[i] = Point(p, res)
	}
	return out
}

// Feature returns a shallow copy of f whose geometry is quantized.
// Properties are shared with f.
func Feature(f *geojson.Feature, zoom int) *geojson.Feature {
	if f == nil {
		return nil
	}
	out := *f
	out.BBox = nil
	out.Geometry = Geometry(f.Geometry, zoom)
	return &out
}

// Collection quantizes every feature of fc into a new collection.
func Collection(fc *geojson.FeatureCollection, zoom int) *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()
	if fc == nil {
		return out
	}
	out.ExtraMembers = fc.ExtraMembers
	out.Features = make([]*geojson.Feature, len(fc.Features))
	for i, f := range fc.Features {
		out.Features[i] = Feature(f, zoom)
	}
	return out
}
