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

package romsutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/romszarr"
	"github.com/spatialmodel/romszarr/cloud"
	"github.com/spatialmodel/romszarr/zarr"
	"github.com/spf13/cast"
)

func expandEnv(s string) string { return os.ExpandEnv(s) }

// expandStringSlice expands the environment variables in a slice of strings.
func expandStringSlice(s []string) []string {
	o := make([]string, len(s))
	for i, v := range s {
		o[i] = os.ExpandEnv(v)
	}
	return o
}

// isRemote returns whether path has to be downloaded before reading.
func isRemote(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") || cloud.IsBlob(path)
}

// expandSources expands environment variables and glob patterns in the
// given source paths. The matches of each pattern are sorted; the order
// of the patterns themselves is kept.
func expandSources(patterns []string) ([]string, error) {
	var o []string
	for _, p := range expandStringSlice(patterns) {
		if isRemote(p) || !strings.ContainsAny(p, "*?[") {
			o = append(o, p)
			continue
		}
		m, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("romszarr: source pattern %s: %v", p, err)
		}
		if len(m) == 0 {
			return nil, fmt.Errorf("romszarr: no files match source pattern %s", p)
		}
		sort.Strings(m)
		o = append(o, m...)
	}
	return o, nil
}

// checkOutput makes sure that the output location is specified and, for
// local stores, that its directory exists, and expands any environment
// variables.
func checkOutput(out string) (string, error) {
	if out == "" {
		return "", fmt.Errorf(`romszarr: you need to specify an output location (for example: Output="ocean.zarr")`)
	}
	out = os.ExpandEnv(out)
	if cloud.IsBlob(out) {
		return out, nil
	}
	if _, err := os.Stat(filepath.Dir(filepath.Clean(out))); err != nil {
		return out, fmt.Errorf("romszarr: the Output directory doesn't exist: %v", err)
	}
	return out, nil
}

// ConvertConfig unmarshals a viper configuration for a conversion. Paths
// are returned as given, without downloading remote files.
func ConvertConfig(cfg *viper.Viper) (*romszarr.Config, error) {
	c := romszarr.DefaultConfig()
	var err error
	if c.Sources, err = expandSources(cfg.GetStringSlice("Sources")); err != nil {
		return nil, err
	}
	if len(c.Sources) == 0 {
		return nil, fmt.Errorf("romszarr: there are no Sources specified")
	}
	c.Grid = os.ExpandEnv(cfg.GetString("Grid"))
	c.Variables = expandStringSlice(cfg.GetStringSlice("Variables"))
	c.GridDropVariables = expandStringSlice(cfg.GetStringSlice("GridDropVariables"))
	c.Coordinates = expandStringSlice(cfg.GetStringSlice("Coordinates"))
	if c.Rename, err = GetStringMapString("Rename", cfg); err != nil {
		return nil, err
	}
	c.ComputeDepths = cfg.GetBool("Depth.Enabled")
	c.Depth.MinDepth = cfg.GetFloat64("Depth.MinDepth")
	c.Depth.Bound = cfg.GetFloat64("Depth.Bound")
	c.Depth.Boundary = romszarr.Boundary(cfg.GetString("Depth.Boundary"))
	c.Depth.Vtransform = cfg.GetInt("Depth.Vtransform")
	switch c.Depth.Boundary {
	case romszarr.BoundaryFill, romszarr.BoundaryExtend:
	default:
		return nil, fmt.Errorf(`romszarr: Depth.Boundary must be "fill" or "extend", but is %q`, c.Depth.Boundary)
	}
	if !(c.Depth.Bound > 0) {
		return nil, fmt.Errorf("romszarr: Depth.Bound=%g but should be >0", c.Depth.Bound)
	}
	if v := c.Depth.Vtransform; v < 0 || v > 2 {
		return nil, fmt.Errorf("romszarr: Depth.Vtransform=%d but should be 0, 1 or 2", v)
	}
	c.Workers = cfg.GetInt("Workers")
	c.Overwrite = cfg.GetBool("Overwrite")
	return c, nil
}

// GetStringMapString returns a map[string]string from a viper configuration,
// accounting for the fact that it might be a json object if it was set
// from a command line argument.
func GetStringMapString(varName string, cfg *viper.Viper) (map[string]string, error) {
	i := cfg.Get(varName)
	switch v := i.(type) {
	case nil:
		return map[string]string{}, nil
	case map[string]string:
		return v, nil
	case map[string]interface{}:
		return cast.ToStringMapStringE(v)
	case string:
		o := make(map[string]string)
		if strings.TrimSpace(v) == "" {
			return o, nil
		}
		d := json.NewDecoder(bytes.NewBufferString(v))
		if err := d.Decode(&o); err != nil {
			return nil, fmt.Errorf("romszarr: parsing %s: %v", varName, err)
		}
		return o, nil
	default:
		return nil, fmt.Errorf("romszarr: invalid type for %s: %#v", varName, i)
	}
}

// openStore opens the Zarr store at location, which is either a local
// directory or a blob storage location. The returned function releases
// the store.
func openStore(ctx context.Context, location string) (zarr.Store, func() error, error) {
	if !cloud.IsBlob(location) {
		return zarr.DirStore{Dir: location}, func() error { return nil }, nil
	}
	s, err := cloud.OpenStore(ctx, location)
	if err != nil {
		return nil, nil, err
	}
	return s, s.Close, nil
}

// Convert runs a conversion with the settings in cfg. Remote sources and
// grids are downloaded to a temporary directory as they are read, and
// the directory is removed afterwards.
func Convert(ctx context.Context, cfg *viper.Viper, log logrus.FieldLogger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c, err := ConvertConfig(cfg)
	if err != nil {
		return err
	}
	out, err := checkOutput(cfg.GetString("Output"))
	if err != nil {
		return err
	}
	codec, err := zarr.NewCodec(cfg.GetString("Compressor"), cfg.GetInt("CompressionLevel"))
	if err != nil {
		return fmt.Errorf("romszarr: %v", err)
	}

	dl := &downloader{log: log}
	defer dl.cleanup()
	c.Fetch = dl.maybeDownload

	store, closeStore, err := openStore(ctx, out)
	if err != nil {
		return err
	}
	defer closeStore()
	if s, ok := store.(*cloud.Store); ok {
		s.Log = log
	}
	return romszarr.Convert(ctx, c, store, codec, log)
}

// WriteConfig writes the configuration options in cfg to w in TOML
// format. Options with dotted names are written as tables.
func WriteConfig(w io.Writer, cfg *viper.Viper) error {
	o := make(map[string]interface{})
	for _, opt := range options {
		if opt.name == "config" {
			continue
		}
		var v interface{}
		switch opt.defaultVal.(type) {
		case string:
			v = cfg.GetString(opt.name)
		case []string:
			v = cfg.GetStringSlice(opt.name)
		case bool:
			v = cfg.GetBool(opt.name)
		case int:
			v = cfg.GetInt(opt.name)
		case float64:
			v = cfg.GetFloat64(opt.name)
		case map[string]string:
			m, err := GetStringMapString(opt.name, cfg)
			if err != nil {
				return err
			}
			v = m
		}
		table := o
		parts := strings.Split(opt.name, ".")
		for _, p := range parts[:len(parts)-1] {
			t, ok := table[p].(map[string]interface{})
			if !ok {
				t = make(map[string]interface{})
				table[p] = t
			}
			table = t
		}
		table[parts[len(parts)-1]] = v
	}
	if err := toml.NewEncoder(w).Encode(o); err != nil {
		return fmt.Errorf("romszarr: writing configuration: %v", err)
	}
	return nil
}
