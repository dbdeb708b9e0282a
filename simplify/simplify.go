// Package simplify reduces feature collections to the detail a zoom level
// can show.
//
// Two engines are provided: Builtin runs Douglas-Peucker in process, and
// Mapshaper drives an external mapshaper binary through scratch files.
// Both snap the result onto the zoom's quantization grid and drop polygons
// that collapsed to zero area.
package simplify

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	orbsimplify "github.com/paulmach/orb/simplify"
	log "github.com/sirupsen/logrus"

	"tiledgeojson/quantize"
)

// Simplifier returns a cleaned copy of fc for the zoom level. The input is
// not modified.
type Simplifier interface {
	Simplify(ctx context.Context, fc *geojson.FeatureCollection, zoom int) (*geojson.FeatureCollection, error)
}

// Func adapts a function to the Simplifier interface.
type Func func(ctx context.Context, fc *geojson.FeatureCollection, zoom int) (*geojson.FeatureCollection, error)

func (f Func) Simplify(ctx context.Context, fc *geojson.FeatureCollection, zoom int) (*geojson.FeatureCollection, error) {
	return f(ctx, fc, zoom)
}

// Engine names a simplifier implementation.
type Engine string

// Known engines.
const (
	EngineBuiltin   Engine = "builtin"
	EngineMapshaper Engine = "mapshaper"
)

// New returns the simplifier for engine. scratch is the directory the
// mapshaper engine exchanges files through; binary is its executable.
func New(engine Engine, scratch, binary string) (Simplifier, error) {
	switch engine {
	case EngineBuiltin, "":
		return Builtin{}, nil
	case EngineMapshaper:
		return &Mapshaper{Binary: binary, Dir: scratch}, nil
	default:
		return nil, fmt.Errorf("unknown simplify engine %q", engine)
	}
}

// Threshold is the Douglas-Peucker tolerance, in coordinate units, used
// for a zoom level: one quantization step.
func Threshold(zoom int) float64 {
	return quantize.Step(quantize.Resolution(zoom))
}

// Builtin simplifies lines and rings with Douglas-Peucker.
type Builtin struct{}

func (Builtin) Simplify(ctx context.Context, fc *geojson.FeatureCollection, zoom int) (*geojson.FeatureCollection, error) {
	dp := orbsimplify.DouglasPeucker(Threshold(zoom))
	out := geojson.NewFeatureCollection()
	for _, f := range fc.Features {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f == nil {
			continue
		}
		g := f.Geometry
		if g != nil {
			g = dp.Simplify(orb.Clone(g))
		}
		if sf, ok := finish(f, g, zoom); ok {
			out.Append(sf)
		}
	}
	log.Debugf("simplified %d features to %d at zoom %d", len(fc.Features), len(out.Features), zoom)
	return out, nil
}

// finish quantizes g and attaches it to a copy of f. ok is false when the
// geometry collapsed and the feature should be dropped.
func finish(f *geojson.Feature, g orb.Geometry, zoom int) (*geojson.Feature, bool) {
	out := *f
	out.BBox = nil
	if g == nil {
		out.Geometry = nil
		return &out, true
	}
	g = dropEmpty(quantize.Geometry(g, zoom))
	if g == nil {
		return nil, false
	}
	out.Geometry = g
	return &out, true
}

// dropEmpty removes polygons without area. It returns nil when nothing is
// left.
func dropEmpty(g orb.Geometry) orb.Geometry {
	switch g := g.(type) {
	case orb.Polygon:
		if len(g) == 0 || planar.Area(g) == 0 {
			return nil
		}
		return g
	case orb.MultiPolygon:
		var out orb.MultiPolygon
		for _, p := range g {
			if len(p) > 0 && planar.Area(p) != 0 {
				out = append(out, p)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case orb.Collection:
		var out orb.Collection
		for _, c := range g {
			if c = dropEmpty(c); c != nil {
				out = append(out, c)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	default:
		return g
	}
}
