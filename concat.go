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
	"fmt"

	"github.com/ctessum/sparse"
)

// Concat joins datasets along dim, in the order given. Variables
// defined along dim are concatenated; every dataset must hold them.
// Other variables are taken from the first dataset and must have the
// same dimensions in all of the others.
func Concat(dim string, datasets ...*Dataset) (*Dataset, error) {
	if len(datasets) == 0 {
		return nil, fmt.Errorf("romszarr: concatenate: no datasets")
	}
	first := datasets[0]
	o := NewDataset()
	for k, v := range first.Attributes {
		o.Attributes[k] = v
	}
	for _, name := range first.VariableNames() {
		v := first.vars[name]
		ax := v.axis(dim)
		if ax < 0 {
			for i, ds := range datasets[1:] {
				ov, ok := ds.vars[name]
				if !ok {
					continue
				}
				if !equalDims(v.Dims, ov.Dims) || !equalShape(v.Data.Shape, ov.Data.Shape) {
					return nil, fmt.Errorf("romszarr: concatenate: variable %s in dataset %d has dimensions %v%v but %v%v in the first: %w",
						name, i+1, ov.Dims, ov.Data.Shape, v.Dims, v.Data.Shape, ErrDimensionMismatch)
				}
			}
			if err := o.AddVariable(name, v); err != nil {
				return nil, err
			}
			continue
		}
		parts := make([]*sparse.DenseArray, len(datasets))
		for i, ds := range datasets {
			ov, ok := ds.vars[name]
			if !ok {
				return nil, fmt.Errorf("romszarr: concatenate: variable %s not in dataset %d: %w", name, i, ErrMissingVariable)
			}
			if !equalDims(v.Dims, ov.Dims) {
				return nil, fmt.Errorf("romszarr: concatenate: variable %s in dataset %d has dimensions %v but %v in the first: %w",
					name, i, ov.Dims, v.Dims, ErrDimensionMismatch)
			}
			parts[i] = ov.Data
		}
		data, err := concatenate(parts, ax)
		if err != nil {
			return nil, fmt.Errorf("romszarr: concatenate variable %s: %w", name, err)
		}
		if err := o.AddVariable(name, v.withData(v.Dims, data)); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func equalDims(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// DropDuplicateTimes removes positions along dim whose coordinate value
// repeats an earlier one, keeping the first occurrence. The coordinate
// is the variable named dim. It returns the trimmed dataset and the
// number of positions removed.
func DropDuplicateTimes(ds *Dataset, dim string) (*Dataset, int, error) {
	t, ok := ds.vars[dim]
	if !ok {
		return nil, 0, fmt.Errorf("romszarr: dropping duplicate times: coordinate %s: %w", dim, ErrMissingVariable)
	}
	if len(t.Dims) != 1 || t.Dims[0] != dim {
		return nil, 0, fmt.Errorf("romszarr: dropping duplicate times: coordinate %s has dimensions %v: %w",
			dim, t.Dims, ErrDimensionMismatch)
	}
	seen := make(map[float64]bool)
	var keep []int
	for i, v := range t.Data.Elements {
		if seen[v] {
			continue
		}
		seen[v] = true
		keep = append(keep, i)
	}
	dropped := len(t.Data.Elements) - len(keep)
	if dropped == 0 {
		return ds, 0, nil
	}
	o, err := ds.Isel(dim, keep)
	return o, dropped, err
}

// Merge returns the union of the variables of data and grid. Where both
// hold a variable of the same name, the copy in data is kept and the
// two must have the same dimensions. Global attributes of data take
// precedence over those of grid.
func Merge(data, grid *Dataset) (*Dataset, error) {
	o := data.clone()
	for k, v := range grid.Attributes {
		if _, ok := o.Attributes[k]; !ok {
			o.Attributes[k] = v
		}
	}
	for _, name := range grid.VariableNames() {
		g := grid.vars[name]
		if d, ok := data.vars[name]; ok {
			if !equalDims(d.Dims, g.Dims) || !equalShape(d.Data.Shape, g.Data.Shape) {
				return nil, fmt.Errorf("romszarr: merge: variable %s has dimensions %v%v in the data and %v%v in the grid: %w",
					name, d.Dims, d.Data.Shape, g.Dims, g.Data.Shape, ErrDimensionMismatch)
			}
			continue
		}
		if err := o.AddVariable(name, g); err != nil {
			return nil, fmt.Errorf("romszarr: merge: %w", err)
		}
	}
	return o, nil
}
