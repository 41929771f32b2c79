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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spatialmodel/romszarr"
	"github.com/spatialmodel/romszarr/cloud"
	"github.com/spatialmodel/romszarr/zarr"
)

// Inspect writes a summary of the NetCDF file or Zarr store at p to w.
func Inspect(ctx context.Context, w io.Writer, p string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cloud.IsBlob(p) || isZarrDir(p) {
		return inspectZarr(ctx, w, p)
	}
	ds, err := romszarr.OpenNetCDF(p)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s:\n", p)
	writeDims(w, ds.Dims())
	fmt.Fprintln(w, "variables:")
	for _, name := range ds.VariableNames() {
		v, _ := ds.Variable(name)
		fmt.Fprintf(w, "\t%s %s(%s) %v\n", v.DType, name, strings.Join(v.Dims, ", "), v.Data.Shape)
	}
	return nil
}

func isZarrDir(p string) bool {
	_, err := os.Stat(filepath.Join(p, zarr.ConsolidatedKey))
	return err == nil
}

func inspectZarr(ctx context.Context, w io.Writer, location string) error {
	store, closeStore, err := openStore(ctx, location)
	if err != nil {
		return err
	}
	defer closeStore()
	cm, names, err := zarr.ReadConsolidated(ctx, store)
	if err != nil {
		return fmt.Errorf("romszarr: reading %s: %v", location, err)
	}
	dims := make(map[string]int)
	type row struct {
		dtype, dims string
		shape       []int
	}
	rows := make([]row, len(names))
	for i, name := range names {
		var m zarr.ArrayMetadata
		if err := remarshal(cm.Metadata[path.Join(name, zarr.ArrayKey)], &m); err != nil {
			return fmt.Errorf("romszarr: array %s: %v", name, err)
		}
		var attrs map[string]interface{}
		if err := remarshal(cm.Metadata[path.Join(name, zarr.AttrsKey)], &attrs); err != nil {
			return fmt.Errorf("romszarr: array %s: %v", name, err)
		}
		var dn []string
		if ad, ok := attrs[zarr.DimensionsAttr].([]interface{}); ok {
			for j, d := range ad {
				dn = append(dn, fmt.Sprint(d))
				if j < len(m.Shape) {
					dims[fmt.Sprint(d)] = m.Shape[j]
				}
			}
		}
		rows[i] = row{dtype: m.DType, dims: strings.Join(dn, ", "), shape: m.Shape}
	}
	fmt.Fprintf(w, "%s:\n", location)
	writeDims(w, dims)
	fmt.Fprintln(w, "arrays:")
	for i, name := range names {
		fmt.Fprintf(w, "\t%s %s(%s) %v\n", rows[i].dtype, name, rows[i].dims, rows[i].shape)
	}
	return nil
}

// remarshal converts a decoded JSON value into v.
func remarshal(in interface{}, v interface{}) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func writeDims(w io.Writer, dims map[string]int) {
	names := make([]string, 0, len(dims))
	for d := range dims {
		names = append(names, d)
	}
	sort.Strings(names)
	fmt.Fprintln(w, "dimensions:")
	for _, d := range names {
		fmt.Fprintf(w, "\t%s = %d\n", d, dims[d])
	}
}
