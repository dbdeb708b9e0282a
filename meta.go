package main

import (
	"github.com/paulmach/orb"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"tiledgeojson/bbox"
	"tiledgeojson/store"
)

// ManifestFile is the name of the manifest inside the output directory.
const ManifestFile = "tiledgeojson.json"

// Origin is the shared corner all LOD grids are indexed from.
type Origin struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Point returns the origin as an orb point.
func (o Origin) Point() orb.Point {
	return orb.Point{o.X, o.Y}
}

// originOf is the lower left corner of the input's bounding box, or 0,0
// for an input without geometry.
func originOf(b bbox.Box) Origin {
	if !b.Valid {
		return Origin{}
	}
	return Origin{X: b.Left(), Y: b.Bottom()}
}

// LOD lists the tiles of one level of detail, keyed "x,y", in the order
// they were produced.
type LOD struct {
	TileSize float64                                   `json:"tileSize"`
	MaxZoom  int                                       `json:"maxZoom"`
	Tiles    *orderedmap.OrderedMap[string, store.Hash] `json:"tiles"`
}

// NewLOD returns an LOD without tiles.
func NewLOD(req LODRequest) LOD {
	return LOD{
		TileSize: req.TileSize,
		MaxZoom:  req.MaxZoom,
		Tiles:    orderedmap.New[string, store.Hash](),
	}
}

// Metadata is the manifest written once all LODs are tiled.
type Metadata struct {
	Origin Origin `json:"origin"`
	LODs   []LOD  `json:"lods"`
}

// NewMetadata returns a manifest without LODs.
func NewMetadata(origin Origin) *Metadata {
	return &Metadata{Origin: origin, LODs: []LOD{}}
}
