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

// Package zarr writes and reads version 2 Zarr stores using the
// conventions xarray expects: dimension names in _ARRAY_DIMENSIONS
// attributes and consolidated metadata in .zmetadata.
package zarr

import (
	"fmt"
	"math"
)

// The metadata keys of a Zarr store.
const (
	ArrayKey        = ".zarray"
	GroupKey        = ".zgroup"
	AttrsKey        = ".zattrs"
	ConsolidatedKey = ".zmetadata"
)

// DimensionsAttr is the attribute xarray uses for dimension names.
const DimensionsAttr = "_ARRAY_DIMENSIONS"

// ArrayMetadata is the content of a .zarray key.
type ArrayMetadata struct {
	Chunks             []int             `json:"chunks"`
	Compressor         *CompressorConfig `json:"compressor"`
	DType              string            `json:"dtype"`
	FillValue          interface{}       `json:"fill_value"`
	Filters            []interface{}     `json:"filters"`
	Order              string            `json:"order"`
	Shape              []int             `json:"shape"`
	ZarrFormat         int               `json:"zarr_format"`
	DimensionSeparator string            `json:"dimension_separator"`
}

// CompressorConfig identifies a compressor.
type CompressorConfig struct {
	ID    string `json:"id"`
	Level int    `json:"level"`
}

// GroupMetadata is the content of a .zgroup key.
type GroupMetadata struct {
	ZarrFormat int `json:"zarr_format"`
}

// ConsolidatedMetadata is the content of a .zmetadata key.
type ConsolidatedMetadata struct {
	Metadata         map[string]interface{} `json:"metadata"`
	ZarrConsolidated int                    `json:"zarr_consolidated_format"`
}

// DType is a Zarr (numpy) data type string.
type DType string

// Supported data types.
const (
	Float32 DType = "<f4"
	Float64 DType = "<f8"
	Int16   DType = "<i2"
	Int32   DType = "<i4"
	Uint8   DType = "|u1"
)

// ParseDType returns the Zarr data type corresponding to a Go type name
// such as "float32", or to a Zarr data type string.
func ParseDType(s string) (DType, error) {
	switch s {
	case "float32", string(Float32):
		return Float32, nil
	case "float64", string(Float64):
		return Float64, nil
	case "int16", string(Int16):
		return Int16, nil
	case "int32", string(Int32):
		return Int32, nil
	case "uint8", string(Uint8):
		return Uint8, nil
	}
	return "", fmt.Errorf("zarr: unsupported data type %q", s)
}

// Size returns the number of bytes in one element.
func (d DType) Size() int {
	switch d {
	case Float32, Int32:
		return 4
	case Float64:
		return 8
	case Int16:
		return 2
	case Uint8:
		return 1
	}
	panic(fmt.Errorf("zarr: invalid data type %q", string(d)))
}

// IsFloat returns whether d is a floating point type.
func (d DType) IsFloat() bool { return d == Float32 || d == Float64 }

// fillValue returns the JSON fill value for d.
func (d DType) fillValue() interface{} {
	if d.IsFloat() {
		return "NaN"
	}
	return 0
}

// fill returns the in-memory fill value for d.
func (d DType) fill() float64 {
	if d.IsFloat() {
		return math.NaN()
	}
	return 0
}
