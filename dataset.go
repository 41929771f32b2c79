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
	"sort"

	"github.com/ctessum/sparse"
)

// DType is the storage data type of a variable.
type DType string

// These are the supported storage data types.
const (
	Float32 DType = "float32"
	Float64 DType = "float64"
	Int16   DType = "int16"
	Int32   DType = "int32"
	Uint8   DType = "uint8"
)

// IsFloat returns whether d is a floating point type.
func (d DType) IsFloat() bool { return d == Float32 || d == Float64 }

// Variable is a labeled n-dimensional array.
type Variable struct {
	// Dims are the names of the array dimensions, outermost first.
	Dims []string

	// Attributes holds metadata such as units. Values are strings,
	// float64 or []float64.
	Attributes map[string]interface{}

	// DType is the type the data is stored as. Data are always held
	// in memory as float64, with missing values set to NaN.
	DType DType

	// Coord specifies whether the variable is a coordinate
	// rather than a data variable.
	Coord bool

	Data *sparse.DenseArray
}

// NewVariable returns a new float64 variable holding data.
func NewVariable(dims []string, data *sparse.DenseArray) *Variable {
	return &Variable{
		Dims:       dims,
		Attributes: make(map[string]interface{}),
		DType:      Float64,
		Data:       data,
	}
}

// axis returns the position of dimension dim in v, or -1.
func (v *Variable) axis(dim string) int {
	for i, d := range v.Dims {
		if d == dim {
			return i
		}
	}
	return -1
}

// HasDim returns whether v is defined along dim.
func (v *Variable) HasDim(dim string) bool { return v.axis(dim) >= 0 }

// withData returns a shallow copy of v holding the given data and dims.
func (v *Variable) withData(dims []string, data *sparse.DenseArray) *Variable {
	return &Variable{
		Dims:       dims,
		Attributes: v.Attributes,
		DType:      v.DType,
		Coord:      v.Coord,
		Data:       data,
	}
}

// Dataset is a collection of variables sharing a set of named
// dimensions.
type Dataset struct {
	// Attributes holds the global attributes.
	Attributes map[string]interface{}

	vars map[string]*Variable
	dims map[string]int
}

// NewDataset returns an empty dataset.
func NewDataset() *Dataset {
	return &Dataset{
		Attributes: make(map[string]interface{}),
		vars:       make(map[string]*Variable),
		dims:       make(map[string]int),
	}
}

// AddVariable adds v to the dataset under name, replacing any existing
// variable of that name. An error is returned if the dimensions of v
// conflict with those already in the dataset.
func (d *Dataset) AddVariable(name string, v *Variable) error {
	if v.Data == nil {
		return fmt.Errorf("romszarr: variable %s has no data", name)
	}
	if len(v.Dims) != len(v.Data.Shape) {
		return fmt.Errorf("romszarr: variable %s has %d dimensions but data shape %v: %w",
			name, len(v.Dims), v.Data.Shape, ErrDimensionMismatch)
	}
	for i, dim := range v.Dims {
		if l, ok := d.dims[dim]; ok && l != v.Data.Shape[i] {
			if old, ok := d.vars[name]; !ok || old.axis(dim) < 0 || d.dimUsers(dim) > 1 {
				return fmt.Errorf("romszarr: variable %s dimension %s has length %d but dataset has %d: %w",
					name, dim, v.Data.Shape[i], l, ErrDimensionMismatch)
			}
		}
	}
	d.vars[name] = v
	for i, dim := range v.Dims {
		d.dims[dim] = v.Data.Shape[i]
	}
	return nil
}

// dimUsers returns the number of variables defined along dim.
func (d *Dataset) dimUsers(dim string) int {
	n := 0
	for _, v := range d.vars {
		if v.HasDim(dim) {
			n++
		}
	}
	return n
}

// Variable returns the named variable and whether it exists.
func (d *Dataset) Variable(name string) (*Variable, bool) {
	v, ok := d.vars[name]
	return v, ok
}

// Has returns whether the named variable exists.
func (d *Dataset) Has(name string) bool {
	_, ok := d.vars[name]
	return ok
}

// VariableNames returns the sorted names of all variables.
func (d *Dataset) VariableNames() []string {
	names := make([]string, 0, len(d.vars))
	for n := range d.vars {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Dims returns the lengths of the dataset dimensions.
func (d *Dataset) Dims() map[string]int {
	o := make(map[string]int, len(d.dims))
	for k, v := range d.dims {
		o[k] = v
	}
	return o
}

// HasDim returns whether the dataset has the named dimension.
func (d *Dataset) HasDim(dim string) bool {
	_, ok := d.dims[dim]
	return ok
}

// clone returns a dataset sharing the variables of d.
func (d *Dataset) clone() *Dataset {
	o := NewDataset()
	for k, v := range d.Attributes {
		o.Attributes[k] = v
	}
	for k, v := range d.vars {
		o.vars[k] = v
	}
	for k, v := range d.dims {
		o.dims[k] = v
	}
	return o
}

// resetDims recomputes the dimension table from the variables.
func (d *Dataset) resetDims() {
	d.dims = make(map[string]int)
	for _, v := range d.vars {
		for i, dim := range v.Dims {
			d.dims[dim] = v.Data.Shape[i]
		}
	}
}

// DropVars returns a copy of d without the named variables.
// Names that are not in the dataset are ignored.
func (d *Dataset) DropVars(names ...string) *Dataset {
	o := d.clone()
	for _, n := range names {
		delete(o.vars, n)
	}
	o.resetDims()
	return o
}

// Select returns a copy of d holding only the named variables.
func (d *Dataset) Select(names ...string) (*Dataset, error) {
	o := NewDataset()
	for k, v := range d.Attributes {
		o.Attributes[k] = v
	}
	for _, n := range names {
		v, ok := d.vars[n]
		if !ok {
			return nil, fmt.Errorf("romszarr: selecting %s: %w", n, ErrMissingVariable)
		}
		o.vars[n] = v
	}
	o.resetDims()
	return o, nil
}

// SetCoords returns a copy of d where the named variables are marked as
// coordinates. Names that are not in the dataset are ignored.
func (d *Dataset) SetCoords(names ...string) *Dataset {
	o := d.clone()
	for _, n := range names {
		v, ok := o.vars[n]
		if !ok || v.Coord {
			continue
		}
		c := v.withData(v.Dims, v.Data)
		c.Coord = true
		o.vars[n] = c
	}
	return o
}

// RenameDims returns a copy of d with dimensions renamed according to
// m, where keys are old names and values are new names. Variables named
// after a renamed dimension are renamed too. Keys that are not
// dimensions of d are ignored.
func (d *Dataset) RenameDims(m map[string]string) (*Dataset, error) {
	newName := func(s string) string {
		if _, ok := d.dims[s]; !ok {
			return s
		}
		if n, ok := m[s]; ok && n != "" {
			return n
		}
		return s
	}
	o := NewDataset()
	for k, v := range d.Attributes {
		o.Attributes[k] = v
	}
	for name, v := range d.vars {
		dims := make([]string, len(v.Dims))
		for i, dim := range v.Dims {
			dims[i] = newName(dim)
		}
		vname := newName(name)
		if _, ok := o.vars[vname]; ok {
			return nil, fmt.Errorf("romszarr: renaming dimensions: more than one variable named %s", vname)
		}
		if err := o.AddVariable(vname, v.withData(dims, v.Data)); err != nil {
			return nil, fmt.Errorf("romszarr: renaming dimensions: %w", err)
		}
	}
	return o, nil
}

// Isel returns a copy of d holding the given positions along dim.
// Variables not defined along dim are shared with d.
func (d *Dataset) Isel(dim string, idx []int) (*Dataset, error) {
	n, ok := d.dims[dim]
	if !ok {
		return nil, fmt.Errorf("romszarr: selecting along dimension %s: no such dimension", dim)
	}
	for _, i := range idx {
		if i < 0 || i >= n {
			return nil, fmt.Errorf("romszarr: selecting along dimension %s: index %d out of range [0, %d)", dim, i, n)
		}
	}
	o := d.clone()
	for name, v := range d.vars {
		ax := v.axis(dim)
		if ax < 0 {
			continue
		}
		o.vars[name] = v.withData(v.Dims, take(v.Data, ax, idx))
	}
	o.dims[dim] = len(idx)
	return o, nil
}

// Slice returns a copy of d holding positions [start, end) along dim.
// Negative values count back from the end of the dimension, so
// Slice(dim, 1, -1) drops the first and last positions.
func (d *Dataset) Slice(dim string, start, end int) (*Dataset, error) {
	n, ok := d.dims[dim]
	if !ok {
		return nil, fmt.Errorf("romszarr: slicing dimension %s: no such dimension", dim)
	}
	if start < 0 {
		start += n
	}
	if end < 0 {
		end += n
	}
	if start < 0 {
		start = 0
	}
	if end > n {
		end = n
	}
	var idx []int
	for i := start; i < end; i++ {
		idx = append(idx, i)
	}
	return d.Isel(dim, idx)
}
