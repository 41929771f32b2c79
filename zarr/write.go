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

package zarr

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"path"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Array is an n-dimensional array to be stored.
type Array struct {
	Name  string
	Dims  []string
	Shape []int

	// Chunks is the chunk length along each dimension. If nil,
	// the whole array is one chunk.
	Chunks []int

	DType DType
	Attrs map[string]interface{}

	// Data holds the values in row-major order. NaN is
	// stored as zero in integer arrays.
	Data []float64
}

func (a *Array) check() error {
	if a.Name == "" || strings.HasPrefix(a.Name, ".") || strings.Contains(a.Name, "/") {
		return fmt.Errorf("zarr: invalid array name %q", a.Name)
	}
	if len(a.Dims) != len(a.Shape) {
		return fmt.Errorf("zarr: array %s has %d dimension names but %d dimensions", a.Name, len(a.Dims), len(a.Shape))
	}
	if a.Chunks != nil && len(a.Chunks) != len(a.Shape) {
		return fmt.Errorf("zarr: array %s has %d chunk lengths but %d dimensions", a.Name, len(a.Chunks), len(a.Shape))
	}
	n := 1
	for _, s := range a.Shape {
		n *= s
	}
	if n != len(a.Data) {
		return fmt.Errorf("zarr: array %s has shape %v but %d values", a.Name, a.Shape, len(a.Data))
	}
	if d, err := ParseDType(string(a.DType)); err != nil || d != a.DType {
		return fmt.Errorf("zarr: array %s has invalid data type %q", a.Name, string(a.DType))
	}
	return nil
}

// chunks returns the chunk lengths, which are at least 1.
func (a *Array) chunks() []int {
	c := make([]int, len(a.Shape))
	for i, s := range a.Shape {
		if a.Chunks != nil {
			s = a.Chunks[i]
		}
		if s > a.Shape[i] {
			s = a.Shape[i]
		}
		if s < 1 {
			s = 1
		}
		c[i] = s
	}
	return c
}

// Writer writes arrays to a Store.
type Writer struct {
	Store Store

	// Codec compresses chunks. If nil, chunks are not compressed.
	Codec Codec

	// Workers is the number of chunks of an array written at the
	// same time.
	Workers int

	// Log receives progress messages. If nil, the standard
	// logger is used.
	Log logrus.FieldLogger
}

func (w *Writer) log() logrus.FieldLogger {
	if w.Log == nil {
		return logrus.StandardLogger()
	}
	return w.Log
}

func (w *Writer) codec() Codec {
	if w.Codec == nil {
		return rawCodec{}
	}
	return w.Codec
}

// WriteGroup writes a group holding the given attributes and arrays to
// the root of the store, followed by consolidated metadata.
func (w *Writer) WriteGroup(ctx context.Context, attrs map[string]interface{}, arrays []*Array) error {
	meta := make(map[string]interface{})
	put := func(key string, v interface{}) error {
		b, err := json.MarshalIndent(v, "", "    ")
		if err != nil {
			return fmt.Errorf("zarr: encoding %s: %v", key, err)
		}
		meta[key] = json.RawMessage(b)
		return w.Store.Put(ctx, key, b)
	}

	if err := put(GroupKey, GroupMetadata{ZarrFormat: 2}); err != nil {
		return err
	}
	if err := put(AttrsKey, jsonAttrs(attrs)); err != nil {
		return err
	}
	for _, a := range arrays {
		if err := a.check(); err != nil {
			return err
		}
		m := ArrayMetadata{
			Chunks:             a.chunks(),
			Compressor:         w.codec().Config(),
			DType:              string(a.DType),
			FillValue:          a.DType.fillValue(),
			Order:              "C",
			Shape:              a.Shape,
			ZarrFormat:         2,
			DimensionSeparator: ".",
		}
		if err := put(path.Join(a.Name, ArrayKey), m); err != nil {
			return err
		}
		at := jsonAttrs(a.Attrs)
		at[DimensionsAttr] = append([]string{}, a.Dims...)
		if err := put(path.Join(a.Name, AttrsKey), at); err != nil {
			return err
		}
		if err := w.writeChunks(ctx, a); err != nil {
			return err
		}
		w.log().WithFields(logrus.Fields{
			"array": a.Name,
			"shape": a.Shape,
		}).Debug("wrote array")
	}
	b, err := json.MarshalIndent(ConsolidatedMetadata{Metadata: meta, ZarrConsolidated: 1}, "", "    ")
	if err != nil {
		return fmt.Errorf("zarr: encoding consolidated metadata: %v", err)
	}
	return w.Store.Put(ctx, ConsolidatedKey, b)
}

// writeChunks encodes and stores every chunk of a.
func (w *Writer) writeChunks(ctx context.Context, a *Array) error {
	chunks := a.chunks()
	nChunks := make([]int, len(a.Shape))
	total := 1
	for i, s := range a.Shape {
		nChunks[i] = (s + chunks[i] - 1) / chunks[i]
		total *= nChunks[i]
	}
	g, ctx := errgroup.WithContext(ctx)
	workers := w.Workers
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)
	codec := w.codec()
	for c := 0; c < total; c++ {
		idx := unravel(c, nChunks)
		g.Go(func() error {
			b, err := codec.Encode(encodeChunk(a, idx, chunks))
			if err != nil {
				return fmt.Errorf("zarr: compressing chunk %v of %s: %v", idx, a.Name, err)
			}
			return w.Store.Put(ctx, path.Join(a.Name, ChunkKey(idx)), b)
		})
	}
	return g.Wait()
}

// ChunkKey returns the key of the chunk with the given indices.
func ChunkKey(idx []int) string {
	if len(idx) == 0 {
		return "0"
	}
	s := make([]string, len(idx))
	for i, v := range idx {
		s[i] = strconv.Itoa(v)
	}
	return strings.Join(s, ".")
}

// unravel converts a row-major flat index to an index into shape.
func unravel(flat int, shape []int) []int {
	idx := make([]int, len(shape))
	for i := len(shape) - 1; i >= 0; i-- {
		idx[i] = flat % shape[i]
		flat /= shape[i]
	}
	return idx
}

// encodeChunk returns the little-endian bytes of chunk idx of a.
// Positions beyond the edge of the array hold the fill value.
func encodeChunk(a *Array, idx, chunks []int) []byte {
	size := a.DType.Size()
	n := 1
	for _, c := range chunks {
		n *= c
	}
	b := make([]byte, n*size)
	strides := make([]int, len(a.Shape))
	s := 1
	for i := len(a.Shape) - 1; i >= 0; i-- {
		strides[i] = s
		s *= a.Shape[i]
	}
	pos := make([]int, len(chunks))
	for k := 0; k < n; k++ {
		flat, inside := 0, true
		for d, p := range pos {
			g := idx[d]*chunks[d] + p
			if g >= a.Shape[d] {
				inside = false
				break
			}
			flat += g * strides[d]
		}
		v := a.DType.fill()
		if inside {
			v = a.Data[flat]
		}
		putValue(a.DType, b[k*size:(k+1)*size], v)
		for d := len(pos) - 1; d >= 0; d-- {
			pos[d]++
			if pos[d] < chunks[d] {
				break
			}
			pos[d] = 0
		}
	}
	return b
}

func putValue(d DType, b []byte, v float64) {
	if !d.IsFloat() && (math.IsNaN(v) || math.IsInf(v, 0)) {
		v = 0
	}
	switch d {
	case Float32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
	case Float64:
		binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	case Int16:
		binary.LittleEndian.PutUint16(b, uint16(int16(v)))
	case Int32:
		binary.LittleEndian.PutUint32(b, uint32(int32(v)))
	case Uint8:
		b[0] = uint8(v)
	}
}

func getValue(d DType, b []byte) float64 {
	switch d {
	case Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case Float64:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	case Int16:
		return float64(int16(binary.LittleEndian.Uint16(b)))
	case Int32:
		return float64(int32(binary.LittleEndian.Uint32(b)))
	case Uint8:
		return float64(b[0])
	}
	panic(fmt.Errorf("zarr: invalid data type %q", string(d)))
}

// jsonAttrs returns a copy of attrs in which non-finite numbers, which
// JSON cannot represent, are replaced by the strings Zarr uses for them.
func jsonAttrs(attrs map[string]interface{}) map[string]interface{} {
	o := make(map[string]interface{}, len(attrs))
	for k, v := range attrs {
		switch t := v.(type) {
		case float64:
			o[k] = jsonFloat(t)
		case []float64:
			s := make([]interface{}, len(t))
			for i, f := range t {
				s[i] = jsonFloat(f)
			}
			o[k] = s
		default:
			o[k] = v
		}
	}
	return o
}

func jsonFloat(f float64) interface{} {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return f
}
