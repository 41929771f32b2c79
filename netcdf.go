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
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// ncReader is the part of a NetCDF file needed to build a Dataset.
type ncReader interface {
	variables() []string
	dims(v string) []string
	attributes(v string) map[string]interface{}
	read(v string) (*Variable, error)
}

// OpenNetCDF reads the named variables from a NetCDF file. Classic and
// 64-bit offset files as well as NetCDF-4 (HDF5) files are supported.
// Dimension coordinate variables and variables listed in the
// "coordinates" attribute of a selected variable are read as well.
// If no variables are named, all numeric variables are read.
// Missing values are decoded to NaN and scale_factor and add_offset are
// applied.
func OpenNetCDF(path string, vars ...string) (*Dataset, error) {
	return openNetCDF(path, vars, nil)
}

// openNetCDF reads the required variables and those of the optional
// variables that are in the file. If both lists are empty, all numeric
// variables are read.
func openNetCDF(path string, required, optional []string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("romszarr: opening netcdf file: %w", err)
	}
	defer f.Close()
	magic := make([]byte, 4)
	if _, err := io.ReadFull(f, magic); err != nil {
		return nil, fmt.Errorf("romszarr: reading netcdf file %s: %w", path, err)
	}
	var r ncReader
	switch {
	case bytes.HasPrefix(magic, []byte("CDF")):
		cr, err := newClassicReader(f)
		if err != nil {
			return nil, fmt.Errorf("romszarr: reading netcdf file %s: %w", path, err)
		}
		r = cr
	case bytes.Equal(magic, []byte("\x89HDF")):
		g, err := netcdf.Open(path)
		if err != nil {
			return nil, fmt.Errorf("romszarr: reading netcdf file %s: %w", path, err)
		}
		defer g.Close()
		r = &hdf5Reader{g: g}
	default:
		return nil, fmt.Errorf("romszarr: %s is not a netcdf file", path)
	}
	ds, err := readDataset(r, required, optional)
	if err != nil {
		return nil, fmt.Errorf("romszarr: reading netcdf file %s: %w", path, err)
	}
	return ds, nil
}

// readDataset reads the selected variables from r.
func readDataset(r ncReader, required, optional []string) (*Dataset, error) {
	names, err := widenSelection(r, required, optional)
	if err != nil {
		return nil, err
	}
	ds := NewDataset()
	for k, v := range r.attributes("") {
		ds.Attributes[k] = v
	}
	for _, name := range names {
		v, err := r.read(name)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", name, err)
		}
		if v == nil {
			continue // not numeric
		}
		decode(v)
		if err := ds.AddVariable(name, v); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

// widenSelection returns the required variables, the optional variables
// that exist, and the dimension coordinate variables and auxiliary
// coordinates of those.
func widenSelection(r ncReader, required, optional []string) ([]string, error) {
	all := r.variables()
	if len(required) == 0 && len(optional) == 0 {
		return all, nil
	}
	exists := make(map[string]bool, len(all))
	for _, v := range all {
		exists[v] = true
	}
	sel := make(map[string]bool)
	var vars []string
	for _, v := range required {
		if !exists[v] {
			return nil, fmt.Errorf("selecting %s: %w", v, ErrMissingVariable)
		}
		sel[v] = true
		vars = append(vars, v)
	}
	for _, v := range optional {
		if exists[v] && !sel[v] {
			sel[v] = true
			vars = append(vars, v)
		}
	}
	for _, v := range vars {
		for _, d := range r.dims(v) {
			if exists[d] {
				sel[d] = true
			}
		}
		if c, ok := r.attributes(v)["coordinates"].(string); ok {
			for _, cv := range strings.Fields(c) {
				if exists[cv] {
					sel[cv] = true
				}
			}
		}
	}
	o := make([]string, 0, len(sel))
	for v := range sel {
		o = append(o, v)
	}
	sort.Strings(o)
	return o, nil
}

// decode replaces fill values with NaN and applies scale_factor and
// add_offset, removing the corresponding attributes.
func decode(v *Variable) {
	var fills []float64
	for _, a := range []string{"_FillValue", "missing_value"} {
		if f, ok := v.Attributes[a]; ok {
			fills = append(fills, attrFloats(f)...)
			delete(v.Attributes, a)
		}
	}
	scale, offset := 1., 0.
	var scaled bool
	if s := attrFloats(v.Attributes["scale_factor"]); len(s) == 1 {
		scale, scaled = s[0], true
		delete(v.Attributes, "scale_factor")
	}
	if s := attrFloats(v.Attributes["add_offset"]); len(s) == 1 {
		offset, scaled = s[0], true
		delete(v.Attributes, "add_offset")
	}
	for i, e := range v.Data.Elements {
		for _, f := range fills {
			if e == f {
				e = math.NaN()
				break
			}
		}
		v.Data.Elements[i] = e*scale + offset
	}
	if scaled || (len(fills) > 0 && !v.DType.IsFloat()) {
		v.DType = Float64
	}
}

// attrFloats returns the numeric values of an attribute.
func attrFloats(a interface{}) []float64 {
	switch t := a.(type) {
	case float64:
		return []float64{t}
	case []float64:
		return t
	}
	return nil
}

// attrValue converts a raw attribute value to a string, a float64,
// or a []float64.
func attrValue(a interface{}) interface{} {
	if s, ok := a.(string); ok {
		return s
	}
	rv := reflect.ValueOf(a)
	if rv.Kind() != reflect.Slice {
		if f, ok := toFloat(rv); ok {
			return f
		}
		return nil
	}
	if rv.Type().Elem().Kind() == reflect.String {
		s := make([]string, rv.Len())
		for i := range s {
			s[i] = rv.Index(i).String()
		}
		return strings.Join(s, " ")
	}
	o := make([]float64, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		f, ok := toFloat(rv.Index(i))
		if !ok {
			return nil
		}
		o = append(o, f)
	}
	if len(o) == 1 {
		return o[0]
	}
	return o
}

// toFloat converts a numeric reflect value to float64.
func toFloat(v reflect.Value) (float64, bool) {
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint()), true
	}
	return 0, false
}

// classicReader reads classic and 64-bit offset NetCDF files.
type classicReader struct {
	ff   *cdf.File
	nrec int
}

func newClassicReader(f *os.File) (*classicReader, error) {
	ff, err := cdf.Open(f)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return &classicReader{ff: ff, nrec: int(ff.Header.NumRecs(info.Size()))}, nil
}

func (r *classicReader) variables() []string { return r.ff.Header.Variables() }

func (r *classicReader) dims(v string) []string { return r.ff.Header.Dimensions(v) }

func (r *classicReader) attributes(v string) map[string]interface{} {
	o := make(map[string]interface{})
	for _, a := range r.ff.Header.Attributes(v) {
		if val := attrValue(r.ff.Header.GetAttribute(v, a)); val != nil {
			o[a] = val
		}
	}
	return o
}

// lengths returns the dimension lengths of v, with the record
// dimension sized from the number of records in the file.
func (r *classicReader) lengths(v string) []int {
	l := append([]int(nil), r.ff.Header.Lengths(v)...)
	if r.ff.Header.IsRecordVariable(v) {
		l[0] = r.nrec
	}
	return l
}

func (r *classicReader) read(v string) (*Variable, error) {
	dims := r.lengths(v)
	var dtype DType
	switch r.ff.Header.ZeroValue(v, 0).(type) {
	case []float32:
		dtype = Float32
	case []float64:
		dtype = Float64
	case []int16:
		dtype = Int16
	case []int32:
		dtype = Int32
	case []uint8:
		dtype = Uint8
	default:
		return nil, nil // char
	}
	data := sparse.ZerosDense(dims...)
	if len(data.Elements) > 0 {
		start, end := make([]int, len(dims)), make([]int, len(dims))
		for i, d := range dims {
			end[i] = d - 1
		}
		rr := r.ff.Reader(v, start, end)
		buf := rr.Zero(len(data.Elements))
		if _, err := rr.Read(buf); err != nil {
			return nil, err
		}
		switch t := buf.(type) {
		case []float32:
			for i, val := range t {
				data.Elements[i] = float64(val)
			}
		case []float64:
			copy(data.Elements, t)
		case []int16:
			for i, val := range t {
				data.Elements[i] = float64(val)
			}
		case []int32:
			for i, val := range t {
				data.Elements[i] = float64(val)
			}
		case []uint8:
			for i, val := range t {
				data.Elements[i] = float64(val)
			}
		}
	}
	return &Variable{
		Dims:       r.dims(v),
		Attributes: r.attributes(v),
		DType:      dtype,
		Data:       data,
	}, nil
}

// hdf5Reader reads NetCDF-4 files.
type hdf5Reader struct {
	g api.Group
}

func (r *hdf5Reader) variables() []string {
	v := r.g.ListVariables()
	sort.Strings(v)
	return v
}

func (r *hdf5Reader) dims(v string) []string {
	vg, err := r.g.GetVarGetter(v)
	if err != nil {
		return nil
	}
	return vg.Dimensions()
}

func (r *hdf5Reader) attributes(v string) map[string]interface{} {
	var am api.AttributeMap
	if v == "" {
		am = r.g.Attributes()
	} else {
		vg, err := r.g.GetVarGetter(v)
		if err != nil {
			return nil
		}
		am = vg.Attributes()
	}
	return attributeMap(am)
}

// attributeMap converts the attributes in am.
func attributeMap(am api.AttributeMap) map[string]interface{} {
	o := make(map[string]interface{})
	if am == nil {
		return o
	}
	for _, k := range am.Keys() {
		raw, ok := am.Get(k)
		if !ok {
			continue
		}
		if val := attrValue(raw); val != nil {
			o[k] = val
		}
	}
	return o
}

func (r *hdf5Reader) read(v string) (*Variable, error) {
	vr, err := r.g.GetVariable(v)
	if err != nil {
		return nil, err
	}
	var shape []int
	var values []float64
	dtype, ok := flatten(reflect.ValueOf(vr.Values), 0, &shape, &values)
	if !ok {
		return nil, nil // strings or compound types
	}
	if len(shape) != len(vr.Dimensions) {
		return nil, fmt.Errorf("data has %d dimensions but %d dimension names", len(shape), len(vr.Dimensions))
	}
	data := sparse.ZerosDense(shape...)
	copy(data.Elements, values)
	return &Variable{
		Dims:       vr.Dimensions,
		Attributes: attributeMap(vr.Attributes),
		DType:      dtype,
		Data:       data,
	}, nil
}

// flatten appends the values held in the (possibly nested) slice v to
// values in row-major order, recording the length of each nesting level
// in shape. It returns the storage type of the innermost elements.
func flatten(v reflect.Value, depth int, shape *[]int, values *[]float64) (DType, bool) {
	if v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	if v.Kind() != reflect.Slice {
		f, ok := toFloat(v)
		if !ok {
			return "", false
		}
		*values = append(*values, f)
		return kindDType(v.Kind()), true
	}
	if len(*shape) == depth {
		*shape = append(*shape, v.Len())
	}
	if v.Len() == 0 {
		return kindDType(innerKind(v.Type())), innerKind(v.Type()) != reflect.String
	}
	var dtype DType
	for i := 0; i < v.Len(); i++ {
		var ok bool
		if dtype, ok = flatten(v.Index(i), depth+1, shape, values); !ok {
			return "", false
		}
	}
	return dtype, true
}

func innerKind(t reflect.Type) reflect.Kind {
	for t.Kind() == reflect.Slice {
		t = t.Elem()
	}
	return t.Kind()
}

func kindDType(k reflect.Kind) DType {
	switch k {
	case reflect.Float32:
		return Float32
	case reflect.Int16:
		return Int16
	case reflect.Int32:
		return Int32
	case reflect.Uint8, reflect.Int8:
		return Uint8
	}
	return Float64
}

// WriteNetCDF writes d to w as a classic NetCDF file. The time
// dimension, if present, is written as the record dimension.
// Variables are written as float or double according to their DType;
// NaN is stored as is.
func (d *Dataset) WriteNetCDF(w *os.File) error {
	dimNames := make([]string, 0, len(d.dims))
	for n := range d.dims {
		dimNames = append(dimNames, n)
	}
	sort.Strings(dimNames)
	lengths := make([]int, len(dimNames))
	for i, n := range dimNames {
		lengths[i] = d.dims[n]
	}
	recDim := ""
	for i, n := range dimNames {
		if n == TimeDim || n == DefaultRename[TimeDim] {
			lengths[i] = 0
			recDim = n
			break
		}
	}
	h := cdf.NewHeader(dimNames, lengths)
	for _, k := range sortedKeys(d.Attributes) {
		if val := cdfAttr(d.Attributes[k]); val != nil {
			h.AddAttribute("", k, val)
		}
	}
	// Sort the names so they write in the same order every time.
	names := d.VariableNames()
	for _, name := range names {
		v := d.vars[name]
		if i := v.axis(recDim); i > 0 {
			return fmt.Errorf("romszarr: writing netcdf: variable %s has record dimension %s in position %d",
				name, recDim, i)
		}
		if v.DType == Float32 {
			h.AddVariable(name, v.Dims, []float32{0})
		} else {
			h.AddVariable(name, v.Dims, []float64{0})
		}
		for _, k := range sortedKeys(v.Attributes) {
			if val := cdfAttr(v.Attributes[k]); val != nil {
				h.AddAttribute(name, k, val)
			}
		}
	}
	h.Define()

	f, err := cdf.Create(w, h) // writes the header to w
	if err != nil {
		return err
	}
	for _, name := range names {
		if err = writeNCF(f, name, d.vars[name]); err != nil {
			return fmt.Errorf("romszarr: writing variable %s to netcdf file: %v", name, err)
		}
	}
	return cdf.UpdateNumRecs(w)
}

// writeNCF writes the data of v to variable name in f.
func writeNCF(f *cdf.File, name string, v *Variable) error {
	if len(v.Data.Elements) == 0 {
		return nil
	}
	start, end := make([]int, len(v.Data.Shape)), make([]int, len(v.Data.Shape))
	for i, l := range v.Data.Shape {
		end[i] = l - 1
	}
	w := f.Writer(name, start, end)
	var buf interface{}
	if v.DType == Float32 {
		data32 := make([]float32, len(v.Data.Elements))
		for i, e := range v.Data.Elements {
			data32[i] = float32(e)
		}
		buf = data32
	} else {
		buf = v.Data.Elements
	}
	// The writer reports io.EOF once it reaches end.
	if _, err := w.Write(buf); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// cdfAttr converts an attribute value to a type storable by cdf.
func cdfAttr(a interface{}) interface{} {
	switch t := a.(type) {
	case string:
		return t
	case float64:
		return []float64{t}
	case []float64:
		return t
	}
	return nil
}

func sortedKeys(m map[string]interface{}) []string {
	o := make([]string, 0, len(m))
	for k := range m {
		o = append(o, k)
	}
	sort.Strings(o)
	return o
}
