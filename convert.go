/*
Copyright © 2024 the romszarr authors.
This file is part of romszarr.

romszarr is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

romszarr is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with romszarr.  If not, see <http://www.gnu.org/licenses/>.
*/

package romszarr

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/romszarr/internal/hash"
	"github.com/spatialmodel/romszarr/zarr"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// depthInputs are the variables ComputeDepths needs, which are read
// from the source files when they are present.
var depthInputs = []string{"zeta", "h", "hc", "s_rho", "s_w", "Cs_r", "Cs_w", "Vtransform"}

// Config holds the settings of a conversion.
type Config struct {
	// Sources are the ROMS output files, in time order.
	Sources []string

	// Grid is the ROMS grid file. It is optional.
	Grid string

	// Variables are the variables to convert.
	Variables []string

	// GridDropVariables are removed from the grid before it is trimmed.
	GridDropVariables []string

	// Rename maps ROMS dimension names to output names.
	Rename map[string]string

	// Coordinates are variables to mark as coordinates.
	Coordinates []string

	// ComputeDepths specifies whether to add the depth variables
	// described by ComputeDepths.
	ComputeDepths bool
	Depth         DepthConfig

	// Workers is the number of files read, and of chunks written,
	// at the same time.
	Workers int

	// Overwrite specifies whether an existing store is replaced.
	Overwrite bool

	// Fetch, if not nil, returns a local path for each source and grid
	// location when it is read. Sources and Grid keep the original
	// locations.
	Fetch func(ctx context.Context, location string) (string, error)
}

// DefaultConfig returns a Config with the default settings and no
// input files.
func DefaultConfig() *Config {
	rename := make(map[string]string, len(DefaultRename))
	for k, v := range DefaultRename {
		rename[k] = v
	}
	return &Config{
		Variables:         append([]string(nil), DefaultVariables...),
		GridDropVariables: append([]string(nil), DefaultGridDropVariables...),
		Rename:            rename,
		Coordinates:       append([]string(nil), DefaultCoordinates...),
		ComputeDepths:     true,
		Depth:             DefaultDepthConfig(),
		Workers:           runtime.GOMAXPROCS(-1),
	}
}

// rename returns the output name of ROMS dimension dim.
func (c *Config) rename(dim string) string {
	if n, ok := c.Rename[dim]; ok && n != "" {
		return n
	}
	return dim
}

// depthConfig returns the depth options, with the u and v dimensions
// following the rename map unless they are set explicitly.
func (c *Config) depthConfig() DepthConfig {
	d := c.Depth
	if d.UDims == [2]string{} {
		d.UDims = [2]string{c.rename("eta_u"), c.rename("xi_u")}
	}
	if d.VDims == [2]string{} {
		d.VDims = [2]string{c.rename("eta_v"), c.rename("xi_v")}
	}
	return d
}

func (c *Config) fetch(ctx context.Context, location string) (string, error) {
	if c.Fetch == nil {
		return location, nil
	}
	return c.Fetch(ctx, location)
}

func (c *Config) workers() int {
	if c.Workers < 1 {
		return 1
	}
	return c.Workers
}

// Hash returns a key identifying the settings of c that affect the
// content of the output.
func (c *Config) Hash() string {
	s := *c
	s.Workers, s.Overwrite, s.Fetch = 0, false, nil
	return hash.Hash(struct {
		Version string
		Config
	}{Version: Version, Config: s})
}

// Convert reads the ROMS output files in cfg, processes them, and writes
// the result to store using codec to compress chunks. log receives
// progress messages; if it is nil the standard logger is used.
func Convert(ctx context.Context, cfg *Config, store zarr.Store, codec zarr.Codec, log logrus.FieldLogger) error {
	if log == nil {
		log = logrus.StandardLogger()
	}
	start := time.Now()
	if len(cfg.Sources) == 0 {
		return fmt.Errorf("romszarr: no source files")
	}
	exists, err := store.Exists(ctx)
	if err != nil {
		return fmt.Errorf("romszarr: checking destination: %w", err)
	}
	if exists && !cfg.Overwrite {
		return fmt.Errorf("romszarr: %v: %w", store, ErrDestinationExists)
	}

	ds, err := Process(ctx, cfg, log)
	if err != nil {
		return err
	}

	if exists {
		log.WithField("destination", fmt.Sprint(store)).Info("removing existing store")
		if err := store.Remove(ctx); err != nil {
			return fmt.Errorf("romszarr: removing existing store: %w", err)
		}
	}
	arrays, global, err := zarrArrays(ds, cfg.rename(TimeDim))
	if err != nil {
		return err
	}
	attrs := make(map[string]interface{}, len(ds.Attributes)+3)
	for k, v := range ds.Attributes {
		attrs[k] = v
	}
	delete(attrs, "coordinates")
	if len(global) > 0 {
		attrs["coordinates"] = strings.Join(global, " ")
	}
	attrs["romszarr_version"] = Version
	attrs["romszarr_config_hash"] = cfg.Hash()
	w := &zarr.Writer{
		Store:   store,
		Codec:   codec,
		Workers: cfg.workers(),
		Log:     log,
	}
	if err := w.WriteGroup(ctx, attrs, arrays); err != nil {
		return fmt.Errorf("romszarr: writing store: %w", err)
	}
	log.WithFields(logrus.Fields{
		"destination": fmt.Sprint(store),
		"arrays":      len(arrays),
		"elapsed":     time.Since(start).String(),
	}).Info("conversion complete")
	return nil
}

// Process reads and processes the files in cfg, returning the dataset
// to be stored.
func Process(ctx context.Context, cfg *Config, log logrus.FieldLogger) (*Dataset, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	var grid *Dataset
	if cfg.Grid != "" {
		f, err := cfg.fetch(ctx, cfg.Grid)
		if err != nil {
			return nil, err
		}
		if grid, err = LoadGrid(f, cfg.GridDropVariables); err != nil {
			return nil, err
		}
		log.WithFields(logrus.Fields{
			"file": cfg.Grid,
			"dims": grid.Dims(),
		}).Info("loaded grid")
	}

	datasets, err := loadSources(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	ds, err := Concat(TimeDim, datasets...)
	if err != nil {
		return nil, err
	}
	if ds, err = SelectInterior(ds); err != nil {
		return nil, err
	}
	var dropped int
	if ds, dropped, err = DropDuplicateTimes(ds, TimeDim); err != nil {
		return nil, err
	}
	if dropped > 0 {
		log.WithField("dropped", dropped).Info("dropped repeated times")
	}
	if grid != nil {
		if ds, err = Merge(ds, grid); err != nil {
			return nil, err
		}
	}

	if ds, err = ds.RenameDims(cfg.Rename); err != nil {
		return nil, err
	}
	ds = ds.SetCoords(cfg.Coordinates...)

	if cfg.ComputeDepths {
		if ds, err = ComputeDepths(ds, cfg.depthConfig()); err != nil {
			return nil, err
		}
		if z, _ := ds.Variable(ZRho); len(z.Data.Elements) > 0 {
			log.WithFields(logrus.Fields{
				"min": floats.Min(z.Data.Elements),
				"max": floats.Max(z.Data.Elements),
			}).Info("computed layer depths")
		}
	}
	return ds, nil
}

// loadSources reads the source files concurrently and returns them in
// input order.
func loadSources(ctx context.Context, cfg *Config, log logrus.FieldLogger) ([]*Dataset, error) {
	var optional []string
	if cfg.ComputeDepths && len(cfg.Variables) > 0 {
		optional = depthInputs
	}
	datasets := make([]*Dataset, len(cfg.Sources))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.workers())
	for i, f := range cfg.Sources {
		i, f := i, f
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			local, err := cfg.fetch(ctx, f)
			if err != nil {
				return err
			}
			ds, err := openNetCDF(local, cfg.Variables, optional)
			if err != nil {
				return err
			}
			datasets[i] = ds
			log.WithFields(logrus.Fields{
				"file":  f,
				"times": ds.Dims()[TimeDim],
			}).Info("loaded file")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return datasets, nil
}

// zarrArrays converts the variables of ds to arrays with one time step
// per chunk. Data variables list the auxiliary coordinates that share
// their dimensions in a "coordinates" attribute. The auxiliary
// coordinates that no data variable lists are returned as global, to be
// stored in the group's "coordinates" attribute.
func zarrArrays(ds *Dataset, timeDim string) (arrays []*zarr.Array, global []string, err error) {
	var aux []string
	for _, name := range ds.VariableNames() {
		v := ds.vars[name]
		if v.Coord && !(len(v.Dims) == 1 && v.Dims[0] == name) {
			aux = append(aux, name)
		}
	}
	listed := make(map[string]bool)
	for _, name := range ds.VariableNames() {
		v := ds.vars[name]
		dtype, err := zarr.ParseDType(string(v.DType))
		if err != nil {
			return nil, nil, fmt.Errorf("romszarr: variable %s: %w", name, err)
		}
		chunks := append([]int(nil), v.Data.Shape...)
		for i, d := range v.Dims {
			if d == timeDim {
				chunks[i] = 1
			}
		}
		attrs := make(map[string]interface{}, len(v.Attributes)+1)
		for k, a := range v.Attributes {
			attrs[k] = a
		}
		if isDataVar(v, name) {
			if c := sharedCoords(ds, v, aux); len(c) > 0 {
				attrs["coordinates"] = strings.Join(c, " ")
				for _, n := range c {
					listed[n] = true
				}
			} else {
				delete(attrs, "coordinates")
			}
		}
		arrays = append(arrays, &zarr.Array{
			Name:   name,
			Dims:   v.Dims,
			Shape:  v.Data.Shape,
			Chunks: chunks,
			DType:  dtype,
			Attrs:  attrs,
			Data:   v.Data.Elements,
		})
	}
	for _, name := range aux {
		if !listed[name] {
			global = append(global, name)
		}
	}
	return arrays, global, nil
}

func isDataVar(v *Variable, name string) bool {
	return !v.Coord && !(len(v.Dims) == 1 && v.Dims[0] == name)
}

// sharedCoords returns the auxiliary coordinates whose dimensions are
// all dimensions of v.
func sharedCoords(ds *Dataset, v *Variable, aux []string) []string {
	var o []string
	for _, name := range aux {
		c := ds.vars[name]
		ok := true
		for _, d := range c.Dims {
			if !v.HasDim(d) {
				ok = false
				break
			}
		}
		if ok {
			o = append(o, name)
		}
	}
	sort.Strings(o)
	return o
}
