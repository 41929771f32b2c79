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
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
)

// ReadConsolidated reads the consolidated metadata of the store and
// returns the names of the arrays it lists, sorted.
func ReadConsolidated(ctx context.Context, s Store) (*ConsolidatedMetadata, []string, error) {
	b, err := s.Get(ctx, ConsolidatedKey)
	if err != nil {
		return nil, nil, err
	}
	cm := new(ConsolidatedMetadata)
	if err := json.Unmarshal(b, cm); err != nil {
		return nil, nil, fmt.Errorf("zarr: decoding consolidated metadata: %v", err)
	}
	var names []string
	for k := range cm.Metadata {
		if strings.HasSuffix(k, "/"+ArrayKey) {
			names = append(names, strings.TrimSuffix(k, "/"+ArrayKey))
		}
	}
	sort.Strings(names)
	return cm, names, nil
}

// ReadArray reads the named array from the store. Chunks that are
// missing from the store are read as the fill value.
func ReadArray(ctx context.Context, s Store, name string) (*Array, error) {
	b, err := s.Get(ctx, path.Join(name, ArrayKey))
	if err != nil {
		return nil, err
	}
	var m ArrayMetadata
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("zarr: decoding metadata of %s: %v", name, err)
	}
	if m.ZarrFormat != 2 || m.Order != "C" {
		return nil, fmt.Errorf("zarr: array %s: unsupported format %d order %q", name, m.ZarrFormat, m.Order)
	}
	dtype, err := ParseDType(m.DType)
	if err != nil || string(dtype) != m.DType {
		return nil, fmt.Errorf("zarr: array %s: unsupported data type %q", name, m.DType)
	}
	codec := Codec(rawCodec{})
	if m.Compressor != nil {
		if codec, err = NewCodec(m.Compressor.ID, m.Compressor.Level); err != nil {
			return nil, err
		}
	}
	a := &Array{
		Name:   name,
		Shape:  m.Shape,
		Chunks: m.Chunks,
		DType:  dtype,
	}
	if b, err = s.Get(ctx, path.Join(name, AttrsKey)); err == nil {
		if err := json.Unmarshal(b, &a.Attrs); err != nil {
			return nil, fmt.Errorf("zarr: decoding attributes of %s: %v", name, err)
		}
		if dims, ok := a.Attrs[DimensionsAttr].([]interface{}); ok {
			for _, d := range dims {
				a.Dims = append(a.Dims, fmt.Sprint(d))
			}
			delete(a.Attrs, DimensionsAttr)
		}
	}

	n := 1
	nChunks := make([]int, len(m.Shape))
	total := 1
	for i, l := range m.Shape {
		n *= l
		nChunks[i] = (l + m.Chunks[i] - 1) / m.Chunks[i]
		total *= nChunks[i]
	}
	a.Data = make([]float64, n)
	strides := make([]int, len(m.Shape))
	st := 1
	for i := len(m.Shape) - 1; i >= 0; i-- {
		strides[i] = st
		st *= m.Shape[i]
	}
	size := dtype.Size()
	for c := 0; c < total; c++ {
		idx := unravel(c, nChunks)
		raw, err := s.Get(ctx, path.Join(name, ChunkKey(idx)))
		if err != nil {
			raw = nil
		} else if raw, err = codec.Decode(raw); err != nil {
			return nil, fmt.Errorf("zarr: decompressing chunk %v of %s: %v", idx, name, err)
		}
		pos := make([]int, len(m.Chunks))
		nc := 1
		for _, l := range m.Chunks {
			nc *= l
		}
		if raw != nil && len(raw) != nc*size {
			return nil, fmt.Errorf("zarr: chunk %v of %s has %d bytes but should have %d", idx, name, len(raw), nc*size)
		}
		for k := 0; k < nc; k++ {
			flat, inside := 0, true
			for d, p := range pos {
				g := idx[d]*m.Chunks[d] + p
				if g >= m.Shape[d] {
					inside = false
					break
				}
				flat += g * strides[d]
			}
			if inside {
				if raw == nil {
					a.Data[flat] = dtype.fill()
				} else {
					a.Data[flat] = getValue(dtype, raw[k*size:(k+1)*size])
				}
			}
			for d := len(pos) - 1; d >= 0; d-- {
				pos[d]++
				if pos[d] < m.Chunks[d] {
					break
				}
				pos[d] = 0
			}
		}
	}
	return a, nil
}
