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
	"os"
	"path/filepath"
	"testing"

	"github.com/ctessum/sparse"
	"github.com/lnashier/viper"
	"github.com/spatialmodel/romszarr"
	"github.com/spf13/pflag"
)

const (
	nEta = 4
	nXi  = 5
	nLev = 2
)

type fixture struct {
	t  *testing.T
	ds *romszarr.Dataset
}

func newFixture(t *testing.T) *fixture {
	return &fixture{t: t, ds: romszarr.NewDataset()}
}

func (f *fixture) add(name string, dims []string, fill func(i int) float64, shape ...int) *romszarr.Variable {
	f.t.Helper()
	d := sparse.ZerosDense(shape...)
	for i := range d.Elements {
		d.Elements[i] = fill(i)
	}
	v := romszarr.NewVariable(dims, d)
	if err := f.ds.AddVariable(name, v); err != nil {
		f.t.Fatal(err)
	}
	return v
}

func (f *fixture) write(dir, name string) string {
	f.t.Helper()
	p := filepath.Join(dir, name)
	w, err := os.Create(p)
	if err != nil {
		f.t.Fatal(err)
	}
	defer w.Close()
	if err := f.ds.WriteNetCDF(w); err != nil {
		f.t.Fatal(err)
	}
	return p
}

func value(v float64) func(int) float64 { return func(int) float64 { return v } }

func index(i int) float64 { return float64(i) }

// writeHistory writes a small ROMS history file with the given times.
func writeHistory(t *testing.T, dir, name string, times ...float64) string {
	f := newFixture(t)
	nt := len(times)
	tv := f.add(romszarr.TimeDim, []string{romszarr.TimeDim}, func(i int) float64 { return times[i] }, nt)
	tv.Attributes["units"] = "seconds since 2000-01-01 00:00:00"
	sRho := []float64{-0.75, -0.25}
	sW := []float64{-1, -0.5, 0}
	f.add("s_rho", []string{"s_rho"}, func(i int) float64 { return sRho[i] }, nLev)
	f.add("s_w", []string{"s_w"}, func(i int) float64 { return sW[i] }, nLev+1)
	f.add("Cs_r", []string{"s_rho"}, func(i int) float64 { return sRho[i] }, nLev)
	f.add("Cs_w", []string{"s_w"}, func(i int) float64 { return sW[i] }, nLev+1)
	f.add("hc", nil, value(1))
	f.add("Vtransform", nil, value(2))
	f.add("h", []string{"eta_rho", "xi_rho"}, value(20), nEta, nXi)
	f.add("zeta", []string{romszarr.TimeDim, "eta_rho", "xi_rho"}, value(0), nt, nEta, nXi)
	temp := f.add("temp", []string{romszarr.TimeDim, "s_rho", "eta_rho", "xi_rho"}, index, nt, nLev, nEta, nXi)
	temp.DType = romszarr.Float32
	temp.Attributes["units"] = "Celsius"
	return f.write(dir, name)
}

// writeGrid writes a small ROMS grid file.
func writeGrid(t *testing.T, dir string) string {
	f := newFixture(t)
	f.add("h", []string{"eta_rho", "xi_rho"}, value(20), nEta, nXi)
	f.add("lon_rho", []string{"eta_rho", "xi_rho"}, index, nEta, nXi)
	f.add("lat_rho", []string{"eta_rho", "xi_rho"}, index, nEta, nXi)
	f.add("lon_u", []string{"eta_u", "xi_u"}, index, nEta, nXi-1)
	f.add("lat_v", []string{"eta_v", "xi_v"}, index, nEta-1, nXi)
	f.add("hraw", []string{"bath", "eta_rho", "xi_rho"}, value(20), 1, nEta, nXi)
	f.ds.Attributes["type"] = "ROMS GRID file"
	return f.write(dir, "grid.nc")
}

// newConfig returns a configuration holding the default value of
// every option.
func newConfig() *viper.Viper {
	cfg := viper.New()
	for _, o := range options {
		cfg.SetDefault(o.name, o.defaultVal)
	}
	return cfg
}

// execute runs Root with args after restoring every flag to its
// default. Slice flags append to the values of earlier executions
// unless they are given new values.
func execute(args ...string) error {
	for _, o := range options {
		for _, set := range o.flagsets {
			f := set.Lookup(o.name)
			if f == nil {
				continue
			}
			if def, ok := o.defaultVal.([]string); ok {
				fresh := pflag.NewFlagSet(o.name, pflag.ContinueOnError)
				fresh.StringSlice(o.name, append([]string(nil), def...), o.usage)
				f.Value = fresh.Lookup(o.name).Value
			} else if err := f.Value.Set(f.DefValue); err != nil {
				return err
			}
			f.Changed = false
		}
	}
	Root.SetArgs(args)
	return Root.Execute()
}
