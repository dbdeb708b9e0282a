package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tiledgeojson/grid"
	"tiledgeojson/quantize"
	"tiledgeojson/simplify"
	"tiledgeojson/store"
)

type manifest struct {
	Origin Origin `json:"origin"`
	LODs   []struct {
		TileSize float64           `json:"tileSize"`
		MaxZoom  int               `json:"maxZoom"`
		Tiles    map[string]string `json:"tiles"`
	} `json:"lods"`
}

func readManifest(t *testing.T, dir string) manifest {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	require.NoError(t, err)
	var m manifest
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func readTile(t *testing.T, dir, hash string) grid.TileData {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, store.TilesDir, hash+".json"))
	require.NoError(t, err)
	var td grid.TileData
	require.NoError(t, json.Unmarshal(data, &td))
	return td
}

func points(ps ...orb.Point) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, p := range ps {
		f := geojson.NewFeature(p)
		f.Properties["n"] = i
		fc.Append(f)
	}
	return fc
}

func newTask(t *testing.T, opts Options) *Task {
	t.Helper()
	t.Setenv("TMPDIR", t.TempDir())
	task, err := NewTask(opts)
	require.NoError(t, err)
	return task
}

func scratchDirs(t *testing.T) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(os.TempDir())
	require.NoError(t, err)
	return entries
}

func TestRunTwoPoints(t *testing.T) {
	out := t.TempDir()
	task := newTask(t, Options{Output: out, LODs: []LODRequest{{MaxZoom: NoSimplify, TileSize: 10}}})

	meta, err := task.Run(context.Background(), points(orb.Point{0, 0}, orb.Point{15, 15}))
	require.NoError(t, err)
	require.Len(t, meta.LODs, 1)
	assert.Equal(t, []string{"0,0", "1,1"}, keys(meta.LODs[0]))

	m := readManifest(t, out)
	assert.Equal(t, Origin{X: 0, Y: 0}, m.Origin)
	require.Len(t, m.LODs, 1)
	assert.Equal(t, 10.0, m.LODs[0].TileSize)
	assert.Equal(t, NoSimplify, m.LODs[0].MaxZoom)
	require.Len(t, m.LODs[0].Tiles, 2)

	first := readTile(t, out, m.LODs[0].Tiles["0,0"])
	require.Len(t, first.Features, 1)
	assert.Equal(t, orb.Point{0, 0}, first.Features[0].Geometry)
	assert.EqualValues(t, 0, first.Features[0].Properties["n"])

	second := readTile(t, out, m.LODs[0].Tiles["1,1"])
	require.Len(t, second.Features, 1)
	assert.Equal(t, orb.Point{15, 15}, second.Features[0].Geometry)

	assert.Empty(t, scratchDirs(t), "scratch directory is removed")
}

func keys(lod LOD) []string {
	var out []string
	for p := lod.Tiles.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Key)
	}
	return out
}

func TestRunEmptyCollection(t *testing.T) {
	out := t.TempDir()
	task := newTask(t, Options{Output: out, LODs: []LODRequest{{MaxZoom: NoSimplify, TileSize: 3}, {MaxZoom: 5, TileSize: 7}}, Simplify: true})

	meta, err := task.Run(context.Background(), geojson.NewFeatureCollection())
	require.NoError(t, err)
	require.Len(t, meta.LODs, 2)
	assert.Zero(t, meta.LODs[0].Tiles.Len())

	data, err := os.ReadFile(filepath.Join(out, ManifestFile))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"origin": {"x": 0, "y": 0},
		"lods": [
			{"tileSize": 3, "maxZoom": -1, "tiles": {}},
			{"tileSize": 7, "maxZoom": 5, "tiles": {}}
		]
	}`, string(data))
}

func TestRunDeduplicatesAcrossLODs(t *testing.T) {
	out := t.TempDir()
	task := newTask(t, Options{Output: out, LODs: []LODRequest{{MaxZoom: NoSimplify, TileSize: 10}, {MaxZoom: 3, TileSize: 10}}})

	meta, err := task.Run(context.Background(), points(orb.Point{0, 0}, orb.Point{15, 15}))
	require.NoError(t, err)
	require.Len(t, meta.LODs, 2)

	for _, key := range []string{"0,0", "1,1"} {
		a, _ := meta.LODs[0].Tiles.Get(key)
		b, _ := meta.LODs[1].Tiles.Get(key)
		assert.Equal(t, a, b)
	}
	entries, err := os.ReadDir(filepath.Join(out, store.TilesDir))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRunOriginSharedAcrossLODs(t *testing.T) {
	out := t.TempDir()
	var calls []int
	task := newTask(t, Options{
		Output:   out,
		Simplify: true,
		LODs:     []LODRequest{{MaxZoom: NoSimplify, TileSize: 1}, {MaxZoom: 4, TileSize: 2}},
	})
	task.Simplifier = simplify.Func(func(ctx context.Context, fc *geojson.FeatureCollection, zoom int) (*geojson.FeatureCollection, error) {
		calls = append(calls, zoom)
		// drops the first feature, which moves the extent but not the origin
		return points(orb.Point{3.5, 2.5}), nil
	})

	meta, err := task.Run(context.Background(), points(orb.Point{-0.5, -0.5}, orb.Point{3.5, 2.5}))
	require.NoError(t, err)
	assert.Equal(t, []int{4}, calls, "simplifier only runs for zooms >= 0")
	assert.Equal(t, Origin{X: -0.5, Y: -0.5}, meta.Origin)

	assert.Equal(t, []string{"0,0", "3,2"}, keys(meta.LODs[0]))
	// the simplified point snaps to 3.456,2.496
	assert.Equal(t, []string{"1,1"}, keys(meta.LODs[1]))

	h, _ := meta.LODs[1].Tiles.Get("1,1")
	td := readTile(t, out, string(h))
	require.Len(t, td.Features, 1)
	res := quantize.Resolution(4)
	assert.Equal(t, orb.Point{quantize.Coord(3.5, res), quantize.Coord(2.5, res)}, td.Features[0].Geometry)
}

func TestRunSimplifyDisabled(t *testing.T) {
	task := newTask(t, Options{Output: t.TempDir(), LODs: []LODRequest{{MaxZoom: 8, TileSize: 1}}})
	task.Simplifier = simplify.Func(func(context.Context, *geojson.FeatureCollection, int) (*geojson.FeatureCollection, error) {
		t.Fatal("simplifier must not be called")
		return nil, nil
	})
	_, err := task.Run(context.Background(), points(orb.Point{0.25, 0.25}))
	require.NoError(t, err)
}

func TestRunSimplifierFailure(t *testing.T) {
	out := t.TempDir()
	task := newTask(t, Options{Output: out, Simplify: true, LODs: []LODRequest{{MaxZoom: NoSimplify, TileSize: 1}, {MaxZoom: 6, TileSize: 1}}})
	boom := errors.New("boom")
	task.Simplifier = simplify.Func(func(context.Context, *geojson.FeatureCollection, int) (*geojson.FeatureCollection, error) {
		assert.Len(t, scratchDirs(t), 1, "scratch directory exists while running")
		return nil, boom
	})

	_, err := task.Run(context.Background(), points(orb.Point{0.5, 0.5}, orb.Point{2, 2}))
	assert.ErrorIs(t, err, boom)

	_, statErr := os.Stat(filepath.Join(out, ManifestFile))
	assert.True(t, os.IsNotExist(statErr), "no manifest after a failed run")
	assert.Empty(t, scratchDirs(t), "scratch directory is removed on error")
}

func TestRunCanceled(t *testing.T) {
	out := t.TempDir()
	task := newTask(t, Options{Output: out, LODs: []LODRequest{{MaxZoom: NoSimplify, TileSize: 1}}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := task.Run(ctx, points(orb.Point{0, 0}))
	assert.ErrorIs(t, err, context.Canceled)
	_, statErr := os.Stat(filepath.Join(out, ManifestFile))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunSQLite(t *testing.T) {
	out := t.TempDir()
	task := newTask(t, Options{Input: "data/points.geojson", Output: out, Format: store.SQLite, LODs: []LODRequest{{MaxZoom: NoSimplify, TileSize: 10}}})

	meta, err := task.Run(context.Background(), points(orb.Point{0, 0}, orb.Point{15, 15}))
	require.NoError(t, err)

	st, err := store.OpenSQLite(filepath.Join(out, store.TilesDB))
	require.NoError(t, err)
	defer st.Close()

	h, ok := meta.LODs[0].Tiles.Get("1,1")
	require.True(t, ok)
	data, err := st.Get(h)
	require.NoError(t, err)
	var td grid.TileData
	require.NoError(t, json.Unmarshal(data, &td))
	require.Len(t, td.Features, 1)

	name, err := st.Metadata("name")
	require.NoError(t, err)
	assert.Equal(t, "points.geojson", name)
	bounds, err := st.Metadata("bounds")
	require.NoError(t, err)
	assert.Equal(t, "0.000000,0.000000,15.000000,15.000000", bounds)

	_, err = os.Stat(filepath.Join(out, ManifestFile))
	assert.NoError(t, err)
}

func TestNewTaskValidation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{name: "no output", opts: Options{LODs: []LODRequest{{TileSize: 1}}}},
		{name: "no lods", opts: Options{Output: "out"}},
		{name: "zero tile size", opts: Options{Output: "out", LODs: []LODRequest{{TileSize: 0}}}},
		{name: "negative tile size", opts: Options{Output: "out", LODs: []LODRequest{{TileSize: -2}}}},
		{name: "bad format", opts: Options{Output: "out", Format: "mbtiles", LODs: []LODRequest{{TileSize: 1}}}},
		{name: "bad engine", opts: Options{Output: "out", Engine: "gdal", LODs: []LODRequest{{TileSize: 1}}}},
		{name: "negative workers", opts: Options{Output: "out", Workers: -1, LODs: []LODRequest{{TileSize: 1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTask(tt.opts)
			assert.Error(t, err)
		})
	}

	task, err := NewTask(Options{Output: "out", Format: store.SQLite, Engine: simplify.EngineMapshaper, LODs: []LODRequest{{MaxZoom: 3, TileSize: 0.5}}})
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)
}
