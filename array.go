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

// Array operations work directly on the Elements slice because
// (*sparse.DenseArray).Set ignores zero values, which would leave stale
// data behind when overwriting.

// prod returns the product of the given lengths.
func prod(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

// splitAxis returns the number of elements before, along, and after
// the given axis of shape.
func splitAxis(shape []int, axis int) (outer, n, inner int) {
	return prod(shape[:axis]), shape[axis], prod(shape[axis+1:])
}

// take returns the elements of a at the given positions along axis.
func take(a *sparse.DenseArray, axis int, idx []int) *sparse.DenseArray {
	outer, n, inner := splitAxis(a.Shape, axis)
	shape := append([]int(nil), a.Shape...)
	shape[axis] = len(idx)
	out := sparse.ZerosDense(shape...)
	for o := 0; o < outer; o++ {
		for j, ix := range idx {
			src := (o*n + ix) * inner
			dst := (o*len(idx) + j) * inner
			copy(out.Elements[dst:dst+inner], a.Elements[src:src+inner])
		}
	}
	return out
}

// concatenate joins arrays along axis. All other lengths must match.
func concatenate(arrays []*sparse.DenseArray, axis int) (*sparse.DenseArray, error) {
	if len(arrays) == 0 {
		return nil, fmt.Errorf("romszarr: no arrays to concatenate")
	}
	shape := append([]int(nil), arrays[0].Shape...)
	shape[axis] = 0
	for i, a := range arrays {
		if len(a.Shape) != len(shape) {
			return nil, fmt.Errorf("romszarr: concatenating array %d: %d dimensions but want %d: %w",
				i, len(a.Shape), len(shape), ErrDimensionMismatch)
		}
		for d, l := range a.Shape {
			if d != axis && l != arrays[0].Shape[d] {
				return nil, fmt.Errorf("romszarr: concatenating array %d: shape %v does not match %v: %w",
					i, a.Shape, arrays[0].Shape, ErrDimensionMismatch)
			}
		}
		shape[axis] += a.Shape[axis]
	}
	out := sparse.ZerosDense(shape...)
	outer, _, inner := splitAxis(shape, axis)
	pos := 0
	for o := 0; o < outer; o++ {
		for _, a := range arrays {
			n := a.Shape[axis] * inner
			copy(out.Elements[pos:pos+n], a.Elements[o*n:(o+1)*n])
			pos += n
		}
	}
	return out, nil
}

// transpose returns a copy of a with its axes permuted so that
// axis i of the output is axis perm[i] of the input.
func transpose(a *sparse.DenseArray, perm []int) *sparse.DenseArray {
	shape := make([]int, len(perm))
	for i, p := range perm {
		shape[i] = a.Shape[p]
	}
	out := sparse.ZerosDense(shape...)
	inStrides := strides(a.Shape)
	idx := make([]int, len(shape))
	for k := range out.Elements {
		src := 0
		for i, p := range perm {
			src += idx[i] * inStrides[p]
		}
		out.Elements[k] = a.Elements[src]
		for i := len(idx) - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < shape[i] {
				break
			}
			idx[i] = 0
		}
	}
	return out
}

// strides returns the row-major element strides of shape.
func strides(shape []int) []int {
	s := make([]int, len(shape))
	n := 1
	for i := len(shape) - 1; i >= 0; i-- {
		s[i] = n
		n *= shape[i]
	}
	return s
}

// copyDense returns a deep copy of a.
func copyDense(a *sparse.DenseArray) *sparse.DenseArray {
	out := sparse.ZerosDense(append([]int(nil), a.Shape...)...)
	copy(out.Elements, a.Elements)
	return out
}

// equalShape reports whether a and b have the same shape.
func equalShape(a, b []int) bool {
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
