// Package grid partitions a feature collection into a sparse grid of square
// tiles anchored at a shared origin.
//
// Features are not clipped: a feature is placed, whole, in every tile whose
// extent its bounding box touches. The intersection test is exhaustive
// (tiles × features); there is no spatial index.
package grid

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"tiledgeojson/bbox"
)

// ErrInvalidTileSize is returned for a tile size that is not a positive,
// finite number.
var ErrInvalidTileSize = errors.New("tile size must be a positive number")

// Coord addresses a tile relative to the grid origin.
type Coord struct {
	X int
	Y int
}

// Key renders the coordinate the way the manifest stores it: "x,y".
func (c Coord) Key() string {
	return fmt.Sprintf("%d,%d", c.X, c.Y)
}

func (c Coord) String() string {
	return c.Key()
}

// TileData is the payload persisted for one tile.
type TileData struct {
	Features []*geojson.Feature `json:"features"`
}

// Tile is one non-empty grid cell.
type Tile struct {
	Coord
	// FeatureIDs are the input indexes of the features in Data, ascending.
	FeatureIDs []int
	Data       TileData
}

// Extent returns the box covered by the tile at c.
func Extent(c Coord, size float64, origin orb.Point) bbox.Box {
	return bbox.New(
		origin[0]+float64(c.X)*size,
		origin[1]+float64(c.Y)*size,
		origin[0]+float64(c.X+1)*size,
		origin[1]+float64(c.Y+1)*size,
	)
}

// Tiler splits collections into tiles.
type Tiler struct {
	// Workers bounds the number of grid columns filtered concurrently.
	// Values below 2 filter sequentially.
	Workers int
}

// Tile assigns the features of fc to the cells of a grid with the given
// tile size and origin. Empty cells are left out. Tiles come back ordered by
// x, then y, whatever the number of workers.
func (t Tiler) Tile(fc *geojson.FeatureCollection, size float64, origin orb.Point) ([]Tile, error) {
	if !(size > 0) || math.IsInf(size, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTileSize, size)
	}
	if fc == nil {
		return nil, nil
	}

	boxes := make([]bbox.Box, len(fc.Features))
	for id, f := range fc.Features {
		boxes[id] = bbox.OfFeature(f)
	}
	var overall bbox.Box
	for _, b := range boxes {
		overall = bbox.Combine(overall, b)
	}
	if !overall.Valid {
		return nil, nil
	}

	xstart := int(math.Floor((overall.Left() - origin[0]) / size))
	ystart := int(math.Floor((overall.Bottom() - origin[1]) / size))

	var xs []int
	for x := xstart; origin[0]+float64(x)*size < overall.Right(); x++ {
		xs = append(xs, x)
	}

	columns := make([][]Tile, len(xs))
	column := func(i int) {
		x := xs[i]
		for y := ystart; origin[1]+float64(y)*size < overall.Top(); y++ {
			c := Coord{X: x, Y: y}
			if tile, ok := fill(fc, boxes, Extent(c, size, origin)); ok {
				tile.Coord = c
				columns[i] = append(columns[i], tile)
			}
		}
	}

	if t.Workers < 2 || len(xs) < 2 {
		for i := range xs {
			column(i)
		}
	} else {
		var wg sync.WaitGroup
		workers := make(chan struct{}, t.Workers)
		for i := range xs {
			workers <- struct{}{}
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				defer func() { <-workers }()
				column(i)
			}(i)
		}
		wg.Wait()
	}

	var tiles []Tile
	for _, col := range columns {
		tiles = append(tiles, col...)
	}
	return tiles, nil
}

func fill(fc *geojson.FeatureCollection, boxes []bbox.Box, extent bbox.Box) (Tile, bool) {
	var tile Tile
	for id, b := range boxes {
		if bbox.Intersects(extent, b) {
			tile.FeatureIDs = append(tile.FeatureIDs, id)
			tile.Data.Features = append(tile.Data.Features, fc.Features[id])
		}
	}
	return tile, len(tile.FeatureIDs) > 0
}
