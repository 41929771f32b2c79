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
	"math"

	"github.com/ctessum/sparse"
)

// Boundary specifies how depths are interpolated onto u and v points
// that have a rho point on only one side.
type Boundary string

const (
	// BoundaryFill averages the single rho neighbour with DepthConfig.FillValue.
	BoundaryFill Boundary = "fill"

	// BoundaryExtend copies the single rho neighbour.
	BoundaryExtend Boundary = "extend"
)

// DepthConfig holds options for ComputeDepths.
type DepthConfig struct {
	// MinDepth replaces depths that are missing or outside
	// [-Bound, Bound].
	MinDepth float64

	// Bound is the largest plausible absolute depth.
	Bound float64

	// Boundary is the interpolation policy at the edges of the domain.
	Boundary Boundary

	// FillValue is the depth outside the domain used with
	// BoundaryFill.
	FillValue float64

	// Vtransform selects the vertical transformation equation. Zero
	// means to use the dataset's Vtransform variable, or 2 if the
	// dataset has none.
	Vtransform int

	// UDims and VDims are the (y, x) dimension names of the u and v
	// point families. Empty names take their values from
	// DefaultRename.
	UDims, VDims [2]string
}

// DefaultDepthConfig returns the default depth options.
func DefaultDepthConfig() DepthConfig {
	return DepthConfig{
		MinDepth: -0.1,
		Bound:    1.e4,
		Boundary: BoundaryFill,
	}
}

// pointDims returns the (y, x) dimension names of the u and v point
// families.
func (cfg DepthConfig) pointDims() (u, v [2]string) {
	u, v = cfg.UDims, cfg.VDims
	if u == [2]string{} {
		u = [2]string{DefaultRename["eta_u"], DefaultRename["xi_u"]}
	}
	if v == [2]string{} {
		v = [2]string{DefaultRename["eta_v"], DefaultRename["xi_v"]}
	}
	return u, v
}

// The names of the variables ComputeDepths adds.
const (
	ZRho      = "z_rho"
	ZW        = "z_w"
	ZU        = "z_u"
	ZV        = "z_v"
	Thickness = "dz"
)

// sigma holds the vertical coordinate of one set of levels.
type sigma struct {
	dim   string
	s, cs []float64
}

// ComputeDepths returns a copy of ds with the physical depths of the
// layer centres (z_rho) and interfaces (z_w) of the ROMS terrain-following
// vertical coordinate, the layer centre depths interpolated to u (z_u)
// and v (z_v) points, and the layer thicknesses (dz). The new variables
// are coordinates ordered (time, vertical, y, x). ds must hold hc,
// s_rho, s_w, Cs_r, Cs_w, h(y, x) and zeta(time, y, x). ds is not
// modified.
func ComputeDepths(ds *Dataset, cfg DepthConfig) (*Dataset, error) {
	get := func(name string) (*Variable, error) {
		v, ok := ds.vars[name]
		if !ok {
			return nil, fmt.Errorf("romszarr: computing depths: %s: %w", name, ErrMissingVariable)
		}
		return v, nil
	}
	var in = make(map[string]*Variable)
	for _, name := range []string{"hc", "s_rho", "s_w", "Cs_r", "Cs_w", "h", "zeta"} {
		v, err := get(name)
		if err != nil {
			return nil, err
		}
		in[name] = v
	}
	if len(in["hc"].Data.Elements) != 1 {
		return nil, fmt.Errorf("romszarr: computing depths: hc has shape %v but should be a scalar: %w",
			in["hc"].Data.Shape, ErrDimensionMismatch)
	}
	hc := in["hc"].Data.Elements[0]

	vtransform, err := vtransform(ds, cfg)
	if err != nil {
		return nil, err
	}

	rho, err := sigmaLevels(in["s_rho"], in["Cs_r"])
	if err != nil {
		return nil, err
	}
	w, err := sigmaLevels(in["s_w"], in["Cs_w"])
	if err != nil {
		return nil, err
	}
	if len(w.s) != len(rho.s)+1 {
		return nil, fmt.Errorf("romszarr: computing depths: %d interfaces for %d layers: %w",
			len(w.s), len(rho.s), ErrDimensionMismatch)
	}

	h := in["h"]
	if len(h.Dims) != 2 {
		return nil, fmt.Errorf("romszarr: computing depths: h has dimensions %v but should be (y, x): %w",
			h.Dims, ErrDimensionMismatch)
	}
	zeta, timeDim, err := orderZeta(in["zeta"], h.Dims)
	if err != nil {
		return nil, err
	}

	zRho := sigmaToDepth(vtransform, hc, rho, h.Data, zeta)
	zW := sigmaToDepth(vtransform, hc, w, h.Data, zeta)
	maskDepths(zRho, cfg)
	maskDepths(zW, cfg)

	uDims, vDims := cfg.pointDims()
	rhoDims := [2]string{h.Dims[0], h.Dims[1]}
	zU, err := interpDepth(zRho, ds, rhoDims, uDims, 3, cfg.Boundary, cfg.FillValue)
	if err != nil {
		return nil, fmt.Errorf("romszarr: computing depths at u points: %w", err)
	}
	zV, err := interpDepth(zRho, ds, rhoDims, vDims, 2, cfg.Boundary, cfg.FillValue)
	if err != nil {
		return nil, fmt.Errorf("romszarr: computing depths at v points: %w", err)
	}

	o := ds.clone()
	add := func(name, vdim string, ydim, xdim string, data *sparse.DenseArray, long string) error {
		v := NewVariable([]string{timeDim, vdim, ydim, xdim}, data)
		v.Coord = true
		v.Attributes["units"] = "meter"
		v.Attributes["long_name"] = long
		v.Attributes["positive"] = "up"
		return o.AddVariable(name, v)
	}
	for _, a := range []struct {
		name, vdim, ydim, xdim string
		data                   *sparse.DenseArray
		long                   string
	}{
		{ZRho, rho.dim, rhoDims[0], rhoDims[1], zRho, "depth of layer centres at rho points"},
		{ZW, w.dim, rhoDims[0], rhoDims[1], zW, "depth of layer interfaces at rho points"},
		{ZU, rho.dim, uDims[0], uDims[1], zU, "depth of layer centres at u points"},
		{ZV, rho.dim, vDims[0], vDims[1], zV, "depth of layer centres at v points"},
		{Thickness, rho.dim, rhoDims[0], rhoDims[1], layerThickness(zW), "layer thickness at rho points"},
	} {
		if err := add(a.name, a.vdim, a.ydim, a.xdim, a.data, a.long); err != nil {
			return nil, fmt.Errorf("romszarr: computing depths: %w", err)
		}
	}
	return o, nil
}

// vtransform returns the vertical transformation equation to use.
func vtransform(ds *Dataset, cfg DepthConfig) (int, error) {
	vt := cfg.Vtransform
	if vt == 0 {
		vt = 2
		if v, ok := ds.vars["Vtransform"]; ok && len(v.Data.Elements) == 1 {
			vt = int(v.Data.Elements[0])
		}
	}
	if vt != 1 && vt != 2 {
		return 0, fmt.Errorf("romszarr: computing depths: unsupported Vtransform %d", vt)
	}
	return vt, nil
}

// sigmaLevels checks that s and cs are matching one-dimensional
// coordinates.
func sigmaLevels(s, cs *Variable) (sigma, error) {
	if len(s.Dims) != 1 || !equalDims(s.Dims, cs.Dims) || !equalShape(s.Data.Shape, cs.Data.Shape) {
		return sigma{}, fmt.Errorf("romszarr: computing depths: stretching coordinate dimensions %v%v and %v%v do not match: %w",
			s.Dims, s.Data.Shape, cs.Dims, cs.Data.Shape, ErrDimensionMismatch)
	}
	return sigma{dim: s.Dims[0], s: s.Data.Elements, cs: cs.Data.Elements}, nil
}

// orderZeta returns zeta with its axes ordered (time, y, x), where y and
// x are the dimensions of h, and the name of the time dimension.
func orderZeta(zeta *Variable, hDims []string) (*sparse.DenseArray, string, error) {
	if len(zeta.Dims) != 3 {
		return nil, "", fmt.Errorf("romszarr: computing depths: zeta has dimensions %v but should be (time, y, x): %w",
			zeta.Dims, ErrDimensionMismatch)
	}
	y, x := zeta.axis(hDims[0]), zeta.axis(hDims[1])
	if y < 0 || x < 0 {
		return nil, "", fmt.Errorf("romszarr: computing depths: zeta dimensions %v do not include %v: %w",
			zeta.Dims, hDims, ErrDimensionMismatch)
	}
	t := 3 - x - y
	data := zeta.Data
	if t != 0 || y != 1 {
		data = transpose(data, []int{t, y, x})
	}
	return data, zeta.Dims[t], nil
}

// sigmaToDepth returns depths (time, level, y, x) of the levels in sig.
// With Vtransform 2,
//	S = (hc·s + Cs·h) / (hc + h)
//	z = zeta + (zeta + h)·S
// and with Vtransform 1,
//	z0 = hc·s + (h - hc)·Cs
//	z = z0 + zeta·(1 + z0/h).
func sigmaToDepth(vtransform int, hc float64, sig sigma, h, zeta *sparse.DenseArray) *sparse.DenseArray {
	nt, ny, nx := zeta.Shape[0], zeta.Shape[1], zeta.Shape[2]
	nk := len(sig.s)
	z := sparse.ZerosDense(nt, nk, ny, nx)
	nxy := ny * nx
	for t := 0; t < nt; t++ {
		for k := 0; k < nk; k++ {
			s, cs := sig.s[k], sig.cs[k]
			out := z.Elements[(t*nk+k)*nxy : (t*nk+k+1)*nxy]
			zt := zeta.Elements[t*nxy : (t+1)*nxy]
			for ij, hh := range h.Elements {
				if vtransform == 1 {
					z0 := hc*s + (hh-hc)*cs
					out[ij] = z0 + zt[ij]*(1+z0/hh)
				} else {
					S := (hc*s + cs*hh) / (hc + hh)
					out[ij] = zt[ij] + (zt[ij]+hh)*S
				}
			}
		}
	}
	return z
}

// maskDepths replaces missing depths and depths outside
// [-cfg.Bound, cfg.Bound] with cfg.MinDepth.
func maskDepths(z *sparse.DenseArray, cfg DepthConfig) {
	for i, v := range z.Elements {
		if math.IsNaN(v) || v < -cfg.Bound || v > cfg.Bound {
			z.Elements[i] = cfg.MinDepth
		}
	}
}

// interpDepth interpolates the rho-point depths z (time, level, y, x)
// onto another point family whose (y, x) dimensions are dims. The family
// is staggered along axis (2 for y, 3 for x) and co-located with the rho
// points along the other horizontal axis.
func interpDepth(z *sparse.DenseArray, ds *Dataset, rhoDims, dims [2]string, axis int, b Boundary, fill float64) (*sparse.DenseArray, error) {
	var n [2]int
	for i, d := range dims {
		l, ok := ds.dims[d]
		if !ok {
			return nil, fmt.Errorf("dimension %s not found: %w", d, ErrDimensionMismatch)
		}
		n[i] = l
	}
	other := 5 - axis // the unstaggered horizontal axis
	if n[other-2] != z.Shape[other] {
		return nil, fmt.Errorf("dimension %s has length %d but %s has length %d: %w",
			dims[other-2], n[other-2], rhoDims[other-2], z.Shape[other], ErrDimensionMismatch)
	}
	switch n[axis-2] - z.Shape[axis] {
	case 1:
		return staggerWorker(z, axis, 1, b, fill), nil
	case 0:
		return staggerWorker(z, axis, 0, b, fill), nil
	case -1:
		return staggerWorker(z, axis, -1, b, fill), nil
	default:
		return nil, fmt.Errorf("dimension %s has length %d, which cannot be staggered from %s with length %d: %w",
			dims[axis-2], n[axis-2], rhoDims[axis-2], z.Shape[axis], ErrDimensionMismatch)
	}
}

// staggerWorker averages neighbouring values of in along staggerDim.
// The output is longer than the input by grow, which is 1 when the
// staggered points enclose the input points, 0 when staggered point i
// lies between input points i-1 and i, and -1 when all staggered
// points are interior. Points with a single neighbour are treated
// according to b.
func staggerWorker(in *sparse.DenseArray, staggerDim, grow int, b Boundary, fill float64) *sparse.DenseArray {
	outer, n, inner := splitAxis(in.Shape, staggerDim)
	shape := append([]int(nil), in.Shape...)
	m := n + grow
	shape[staggerDim] = m
	out := sparse.ZerosDense(shape...)

	// left returns the input index to the left of output point i.
	left := func(i int) int { return i - 1 }
	if grow < 0 {
		left = func(i int) int { return i }
	}
	for o := 0; o < outer; o++ {
		src := in.Elements[o*n*inner : (o+1)*n*inner]
		dst := out.Elements[o*m*inner : (o+1)*m*inner]
		for i := 0; i < m; i++ {
			l := left(i)
			for e := 0; e < inner; e++ {
				var lv, rv float64
				lok, rok := l >= 0, l+1 < n
				if lok {
					lv = src[l*inner+e]
				}
				if rok {
					rv = src[(l+1)*inner+e]
				}
				switch {
				case lok && rok:
					dst[i*inner+e] = (lv + rv) / 2
				case b == BoundaryExtend && lok:
					dst[i*inner+e] = lv
				case b == BoundaryExtend && rok:
					dst[i*inner+e] = rv
				case lok:
					dst[i*inner+e] = (lv + fill) / 2
				case rok:
					dst[i*inner+e] = (rv + fill) / 2
				default:
					dst[i*inner+e] = fill
				}
			}
		}
	}
	return out
}

// layerThickness returns the difference between adjacent interface
// depths z (time, interface, y, x), ordered (time, layer, y, x).
func layerThickness(z *sparse.DenseArray) *sparse.DenseArray {
	nt, nk, ny, nx := z.Shape[0], z.Shape[1], z.Shape[2], z.Shape[3]
	dz := sparse.ZerosDense(nt, nk-1, ny, nx)
	nxy := ny * nx
	for t := 0; t < nt; t++ {
		for k := 1; k < nk; k++ {
			above := z.Elements[(t*nk+k)*nxy : (t*nk+k+1)*nxy]
			below := z.Elements[(t*nk+k-1)*nxy : (t*nk+k)*nxy]
			out := dz.Elements[(t*(nk-1)+k-1)*nxy : (t*(nk-1)+k)*nxy]
			for ij := range out {
				out[ij] = above[ij] - below[ij]
			}
		}
	}
	return dz
}
