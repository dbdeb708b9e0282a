package simplify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"
	log "github.com/sirupsen/logrus"

	"tiledgeojson/quantize"
)

// DefaultMapshaper is the binary looked up on PATH when none is configured.
const DefaultMapshaper = "mapshaper"

// Mapshaper shells out to the mapshaper CLI. Input and output travel through
// files in Dir, which the caller owns and removes.
type Mapshaper struct {
	Binary string
	Dir    string
}

func (m *Mapshaper) binary() string {
	if m.Binary == "" {
		return DefaultMapshaper
	}
	return m.Binary
}

// Simplify runs two mapshaper passes: a simplification at the zoom's
// resolution, then, after quantization, removal of zero-area shapes and
// flattening of overlaps.
func (m *Mapshaper) Simplify(ctx context.Context, fc *geojson.FeatureCollection, zoom int) (*geojson.FeatureCollection, error) {
	if m.Dir == "" {
		return nil, fmt.Errorf("mapshaper needs a scratch directory")
	}
	in := filepath.Join(m.Dir, "in.json")
	simplified := filepath.Join(m.Dir, "simplified.json")
	rounded := filepath.Join(m.Dir, "rounded.json")
	out := filepath.Join(m.Dir, "out.json")

	if err := writeCollection(in, fc); err != nil {
		return nil, err
	}
	res := quantize.Resolution(zoom)
	err := m.run(ctx, in,
		"-simplify", "interval="+strconv.FormatFloat(res, 'f', -1, 64),
		"-o", simplified, "format=geojson")
	if err != nil {
		return nil, err
	}

	sfc, err := readCollection(simplified)
	if err != nil {
		return nil, err
	}
	if err := writeCollection(rounded, quantize.Collection(sfc, zoom)); err != nil {
		return nil, err
	}
	err = m.run(ctx, rounded,
		"-filter", "this.area != 0",
		"-merge-layers", "flatten",
		"-o", out, "format=geojson")
	if err != nil {
		return nil, err
	}
	return readCollection(out)
}

func (m *Mapshaper) run(ctx context.Context, input string, args ...string) error {
	cmd := exec.CommandContext(ctx, m.binary(), append([]string{input}, args...)...)
	cmd.Dir = m.Dir
	log.Debugf("running %s %s", cmd.Path, strings.Join(cmd.Args[1:], " "))
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("mapshaper %s: %w: %s", filepath.Base(input), err, strings.TrimSpace(string(output)))
	}
	return nil
}

func writeCollection(path string, fc *geojson.FeatureCollection) error {
	data, err := json.Marshal(fc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func readCollection(path string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return fc, nil
}
