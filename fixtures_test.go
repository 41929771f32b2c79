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
	"os"
	"path/filepath"
	"testing"

	"github.com/ctessum/sparse"
)

// Lengths of the test ROMS grid, before trimming.
const (
	testNEta = 5
	testNXi  = 6
	testN    = 3 // vertical layers
)

// denseOf returns an array of the given shape whose elements are
// f(flat index).
func denseOf(f func(i int) float64, shape ...int) *sparse.DenseArray {
	a := sparse.ZerosDense(shape...)
	for i := range a.Elements {
		a.Elements[i] = f(i)
	}
	return a
}

func constant(v float64) func(int) float64 { return func(int) float64 { return v } }

// mustAdd adds a float64 variable to ds.
func mustAdd(t testing.TB, ds *Dataset, name string, dims []string, data *sparse.DenseArray) *Variable {
	t.Helper()
	v := NewVariable(dims, data)
	if err := ds.AddVariable(name, v); err != nil {
		t.Fatal(err)
	}
	return v
}

// sigmaCoords returns evenly spaced s levels between -1 and 0 for the
// layer centres and interfaces.
func sigmaCoords(n int) (sRho, sW []float64) {
	sW = make([]float64, n+1)
	for k := range sW {
		sW[k] = -1 + float64(k)/float64(n)
	}
	sRho = make([]float64, n)
	for k := range sRho {
		sRho[k] = (sW[k] + sW[k+1]) / 2
	}
	return sRho, sW
}

// romsHistory returns a dataset laid out like a ROMS history file with
// the given output times. Cs equals s, the bottom depth increases
// along xi from 10 m, and zeta is zero.
func romsHistory(t testing.TB, times []float64) *Dataset {
	t.Helper()
	ds := NewDataset()
	ds.Attributes["title"] = "test history"
	nt := len(times)
	tv := mustAdd(t, ds, TimeDim, []string{TimeDim}, denseOf(func(i int) float64 { return times[i] }, nt))
	tv.Attributes["units"] = "seconds since 2000-01-01 00:00:00"

	sRho, sW := sigmaCoords(testN)
	mustAdd(t, ds, "s_rho", []string{"s_rho"}, denseOf(func(i int) float64 { return sRho[i] }, testN))
	mustAdd(t, ds, "s_w", []string{"s_w"}, denseOf(func(i int) float64 { return sW[i] }, testN+1))
	mustAdd(t, ds, "Cs_r", []string{"s_rho"}, denseOf(func(i int) float64 { return sRho[i] }, testN))
	mustAdd(t, ds, "Cs_w", []string{"s_w"}, denseOf(func(i int) float64 { return sW[i] }, testN+1))
	mustAdd(t, ds, "hc", []string{}, denseOf(constant(1)))
	mustAdd(t, ds, "Vtransform", []string{}, denseOf(constant(2)))
	mustAdd(t, ds, "h", []string{"eta_rho", "xi_rho"}, denseOf(func(i int) float64 {
		return 10 + float64(i%testNXi)
	}, testNEta, testNXi))
	mustAdd(t, ds, "zeta", []string{TimeDim, "eta_rho", "xi_rho"}, denseOf(constant(0), nt, testNEta, testNXi))

	temp := mustAdd(t, ds, "temp", []string{TimeDim, "s_rho", "eta_rho", "xi_rho"},
		denseOf(func(i int) float64 { return float64(i) }, nt, testN, testNEta, testNXi))
	temp.DType = Float32
	temp.Attributes["units"] = "Celsius"
	salt := mustAdd(t, ds, "salt", []string{TimeDim, "s_rho", "eta_rho", "xi_rho"},
		denseOf(constant(35), nt, testN, testNEta, testNXi))
	salt.DType = Float32
	mustAdd(t, ds, "u", []string{TimeDim, "s_rho", "eta_u", "xi_u"},
		denseOf(constant(0.1), nt, testN, testNEta, testNXi-1))
	mustAdd(t, ds, "v", []string{TimeDim, "s_rho", "eta_v", "xi_v"},
		denseOf(constant(-0.1), nt, testN, testNEta-1, testNXi))
	return ds
}

// romsGrid returns a dataset laid out like a ROMS grid file.
func romsGrid(t testing.TB) *Dataset {
	t.Helper()
	ds := NewDataset()
	ds.Attributes["type"] = "ROMS GRID file"
	ds.Attributes["title"] = "test grid"
	rho := []string{"eta_rho", "xi_rho"}
	mustAdd(t, ds, "h", rho, denseOf(func(i int) float64 { return 10 + float64(i%testNXi) }, testNEta, testNXi))
	mustAdd(t, ds, "lon_rho", rho, denseOf(func(i int) float64 { return -70 + float64(i%testNXi) }, testNEta, testNXi))
	mustAdd(t, ds, "lat_rho", rho, denseOf(func(i int) float64 { return 40 + float64(i/testNXi) }, testNEta, testNXi))
	mustAdd(t, ds, "mask_rho", rho, denseOf(constant(1), testNEta, testNXi))
	mustAdd(t, ds, "lon_u", []string{"eta_u", "xi_u"}, denseOf(constant(-70), testNEta, testNXi-1))
	mustAdd(t, ds, "lat_v", []string{"eta_v", "xi_v"}, denseOf(constant(40), testNEta-1, testNXi))
	mustAdd(t, ds, "lon_psi", []string{"eta_psi", "xi_psi"}, denseOf(constant(-70), testNEta-1, testNXi-1))
	mustAdd(t, ds, "hraw", []string{"bath", "eta_rho", "xi_rho"}, denseOf(constant(12), 1, testNEta, testNXi))
	mustAdd(t, ds, "spherical", []string{}, denseOf(constant(1)))
	return ds
}

// writeFixture writes ds to a NetCDF file named name in dir and returns
// its path.
func writeFixture(t testing.TB, dir, name string, ds *Dataset) string {
	t.Helper()
	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := ds.WriteNetCDF(f); err != nil {
		t.Fatal(err)
	}
	return p
}
