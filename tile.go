package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// NoSimplify is the zoom of an LOD that keeps the input geometry as is.
const NoSimplify = -1

// DefaultTileSize is the tile size used when none is given for an LOD.
const DefaultTileSize = 1

// ErrLengthMismatch is returned when the zoom and tile size lists differ in
// length.
var ErrLengthMismatch = errors.New("number of tile sizes must match number of LODs")

// LODRequest configures one level of detail.
type LODRequest struct {
	MaxZoom  int
	TileSize float64 `validate:"gt=0"`
}

func (r LODRequest) simplified(enabled bool) bool {
	return enabled && r.MaxZoom >= 0
}

// parseLODs pairs the comma separated zoom and tile size lists. An empty
// zoom list means one unsimplified LOD; an empty size list means
// DefaultTileSize for every LOD.
func parseLODs(lods, sizes string) ([]LODRequest, error) {
	zooms := []int{NoSimplify}
	if strings.TrimSpace(lods) != "" {
		zooms = nil
		for _, s := range strings.Split(lods, ",") {
			z, err := strconv.Atoi(strings.TrimSpace(s))
			if err != nil {
				return nil, fmt.Errorf("invalid lod %q: %w", s, err)
			}
			zooms = append(zooms, z)
		}
	}

	var tileSizes []float64
	if strings.TrimSpace(sizes) == "" {
		for range zooms {
			tileSizes = append(tileSizes, DefaultTileSize)
		}
	} else {
		for _, s := range strings.Split(sizes, ",") {
			size, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid tile size %q: %w", s, err)
			}
			tileSizes = append(tileSizes, size)
		}
	}

	if len(zooms) != len(tileSizes) {
		return nil, fmt.Errorf("%w: %d lods, %d tile sizes", ErrLengthMismatch, len(zooms), len(tileSizes))
	}
	reqs := make([]LODRequest, len(zooms))
	for i := range zooms {
		reqs[i] = LODRequest{MaxZoom: zooms[i], TileSize: tileSizes[i]}
	}
	return reqs, nil
}
