package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/paulmach/orb/geojson"
	log "github.com/sirupsen/logrus"
	"github.com/teris-io/shortid"
	pb "gopkg.in/cheggaaa/pb.v1"

	"tiledgeojson/bbox"
	"tiledgeojson/grid"
	"tiledgeojson/quantize"
	"tiledgeojson/simplify"
	"tiledgeojson/store"
)

// FormatVersion is written to store metadata.
const FormatVersion = "1.0"

// Options configure a tiling task.
type Options struct {
	Input     string
	Output    string       `validate:"required"`
	LODs      []LODRequest `validate:"min=1,dive"`
	Simplify  bool
	Engine    simplify.Engine `validate:"omitempty,oneof=builtin mapshaper"`
	Mapshaper string
	Format    store.Format `validate:"omitempty,oneof=files sqlite"`
	Workers   int          `validate:"gte=0"`
	Progress  bool
}

// Task tiles one feature collection into every requested LOD.
type Task struct {
	ID string
	Options
	// Simplifier overrides the engine named in Options.
	Simplifier simplify.Simplifier
	tiler      grid.Tiler
}

// NewTask validates opts and creates a task.
func NewTask(opts Options) (*Task, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(opts); err != nil {
		return nil, err
	}
	id, err := shortid.Generate()
	if err != nil {
		return nil, err
	}
	return &Task{
		ID:      id,
		Options: opts,
		tiler:   grid.Tiler{Workers: opts.Workers},
	}, nil
}

func (task *Task) logger() *log.Entry {
	return log.WithField("task", task.ID)
}

// Run tiles fc into every LOD, in request order, and writes the manifest
// once all of them succeeded. A scratch directory lives for the duration of
// the call and is removed on every return path.
func (task *Task) Run(ctx context.Context, fc *geojson.FeatureCollection) (*Metadata, error) {
	start := time.Now()
	if fc == nil {
		fc = geojson.NewFeatureCollection()
	}
	scratch, err := os.MkdirTemp("", "tiledgeojson-"+task.ID+"-")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			task.logger().Warnf("remove scratch dir %s error ~ %s", scratch, err)
		}
	}()

	simplifier := task.Simplifier
	if simplifier == nil {
		simplifier, err = simplify.New(task.Engine, scratch, task.Mapshaper)
		if err != nil {
			return nil, err
		}
	}

	st, err := store.Open(task.Format, task.Output)
	if err != nil {
		return nil, fmt.Errorf("open tile store: %w", err)
	}
	defer st.Close()

	extent := bbox.OfCollection(fc)
	meta := NewMetadata(originOf(extent))
	task.logger().Infof("%d features, extent %s, origin %g,%g", len(fc.Features), extent, meta.Origin.X, meta.Origin.Y)

	for i, req := range task.LODs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lod, err := task.tileLOD(ctx, i, fc, req, simplifier, meta.Origin, st)
		if err != nil {
			return nil, fmt.Errorf("lod %d (zoom %d): %w", i, req.MaxZoom, err)
		}
		meta.LODs = append(meta.LODs, lod)
	}

	if err := writeJSONFile(filepath.Join(task.Output, ManifestFile), meta); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}
	if setter, ok := st.(store.MetadataSetter); ok {
		items, err := task.MetaItems(meta, extent)
		if err != nil {
			return nil, err
		}
		if err := setter.SetMetadata(items); err != nil {
			return nil, fmt.Errorf("write store metadata: %w", err)
		}
	}

	stats := st.Stats()
	task.logger().Infof("%d tiles written, %d deduplicated, %.3fs", stats.Written, stats.Reused, time.Since(start).Seconds())
	return meta, nil
}

func (task *Task) tileLOD(ctx context.Context, i int, fc *geojson.FeatureCollection, req LODRequest,
	simplifier simplify.Simplifier, origin Origin, st store.Store) (LOD, error) {
	logger := task.logger().WithField("lod", i)
	lod := NewLOD(req)

	current := fc
	if req.simplified(task.Simplify) {
		logger.Infof("simplifying at zoom %d, resolution %gm", req.MaxZoom, quantize.Resolution(req.MaxZoom))
		simplified, err := simplifier.Simplify(ctx, fc, req.MaxZoom)
		if err != nil {
			return lod, fmt.Errorf("simplify: %w", err)
		}
		current = quantize.Collection(simplified, req.MaxZoom)
	}

	tiles, err := task.tiler.Tile(current, req.TileSize, origin.Point())
	if err != nil {
		return lod, err
	}

	var bar *pb.ProgressBar
	if task.Progress {
		bar = pb.New(len(tiles)).Prefix(fmt.Sprintf("LOD %d : ", i))
		bar.Start()
	}
	for _, tile := range tiles {
		if err := ctx.Err(); err != nil {
			return lod, err
		}
		h, err := store.PutValue(st, tile.Data)
		if err != nil {
			return lod, fmt.Errorf("store tile %s: %w", tile.Coord, err)
		}
		lod.Tiles.Set(tile.Key(), h)
		if bar != nil {
			bar.Increment()
		}
	}
	if bar != nil {
		bar.FinishPrint(fmt.Sprintf("task %s lod %d finished ~", task.ID, i))
	}
	logger.Infof("zoom %d, tile size %g: %d features in %d tiles", req.MaxZoom, req.TileSize, len(current.Features), len(tiles))
	return lod, nil
}

// MetaItems are the name/value pairs kept by stores that support metadata.
func (task *Task) MetaItems(meta *Metadata, extent bbox.Box) (map[string]string, error) {
	manifest, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	items := map[string]string{
		"id":      task.ID,
		"name":    filepath.Base(task.Input),
		"format":  "tiledgeojson",
		"version": FormatVersion,
		"origin":  fmt.Sprintf(`%f,%f`, meta.Origin.X, meta.Origin.Y),
		"lods":    fmt.Sprintf(`%d`, len(meta.LODs)),
		"json":    string(manifest),
	}
	if extent.Valid {
		items["bounds"] = fmt.Sprintf(`%f,%f,%f,%f`, extent.Left(), extent.Bottom(), extent.Right(), extent.Top())
	}
	return items, nil
}
