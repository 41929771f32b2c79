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
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/romszarr"
	"github.com/spatialmodel/romszarr/zarr"
)

func TestVersion(t *testing.T) {
	out := new(bytes.Buffer)
	Root.SetOut(out)
	defer Root.SetOut(nil)
	if err := execute("version"); err != nil {
		t.Fatal(err)
	}
	if want := "romszarr v" + romszarr.Version + "\n"; out.String() != want {
		t.Errorf("version = %q; want %q", out.String(), want)
	}
}

func TestConfigCmd(t *testing.T) {
	out := new(bytes.Buffer)
	Root.SetOut(out)
	defer Root.SetOut(nil)
	if err := execute("config", "--Compressor=zlib", "--Depth.Bound=500", "--Variables=temp,salt,u"); err != nil {
		t.Fatal(err)
	}
	s := out.String()
	for _, want := range []string{
		`Compressor = "zlib"`,
		`Variables = ["temp", "salt", "u"]`,
		"[Depth]",
		"Bound = 500",
		`Boundary = "fill"`,
		"[Rename]",
		`ocean_time = "time"`,
	} {
		if !strings.Contains(s, want) {
			t.Errorf("configuration does not contain %s:\n%s", want, s)
		}
	}

	// The output can be read back as a configuration file.
	f := filepath.Join(t.TempDir(), "romszarr.toml")
	if err := os.WriteFile(f, out.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	cfg := viper.New()
	cfg.SetConfigFile(f)
	if err := cfg.ReadInConfig(); err != nil {
		t.Fatal(err)
	}
	if got := cfg.GetFloat64("Depth.Bound"); got != 500 {
		t.Errorf("Depth.Bound = %g; want 500", got)
	}
	m, err := GetStringMapString("Rename", cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(m, romszarr.DefaultRename) {
		t.Errorf("Rename = %v; want %v", m, romszarr.DefaultRename)
	}
}

func TestFlagsDoNotPersist(t *testing.T) {
	out := new(bytes.Buffer)
	Root.SetOut(out)
	defer Root.SetOut(nil)
	if err := execute("config", "--Variables=temp,salt,u", "--Overwrite"); err != nil {
		t.Fatal(err)
	}
	out.Reset()
	if err := execute("config", "--Variables=zeta"); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`Variables = ["zeta"]`, "Overwrite = false"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("configuration does not contain %s:\n%s", want, out.String())
		}
	}
	out.Reset()
	if err := execute("config"); err != nil {
		t.Fatal(err)
	}
	if want := `Variables = ["temp", "salt"]`; !strings.Contains(out.String(), want) {
		t.Errorf("configuration does not contain the default %s:\n%s", want, out.String())
	}
}

func TestConvertCmd(t *testing.T) {
	dir := t.TempDir()
	writeHistory(t, dir, "his_0002.nc", 3600, 7200)
	writeHistory(t, dir, "his_0001.nc", 0, 3600)
	grid := writeGrid(t, dir)
	out := filepath.Join(dir, "ocean.zarr")
	logFile := filepath.Join(dir, "convert.log")
	args := []string{"convert",
		"--Sources=" + filepath.Join(dir, "his_*.nc"),
		"--Grid=" + grid,
		"--Output=" + out,
		"--Variables=temp",
		"--Compressor=zstd",
		"--Workers=2",
		"--LogFile=" + logFile,
	}
	stderr := new(bytes.Buffer)
	Root.SetErr(stderr)
	defer Root.SetErr(nil)
	if err := execute(args...); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stderr.String(), "conversion complete") {
		t.Errorf("log = %s", stderr.String())
	}
	if b, err := os.ReadFile(logFile); err != nil || !bytes.Contains(b, []byte("conversion complete")) {
		t.Errorf("log file = %s, %v", b, err)
	}

	ctx := context.Background()
	s := zarr.DirStore{Dir: out}
	tv, err := zarr.ReadArray(ctx, s, "time")
	if err != nil {
		t.Fatal(err)
	}
	if want := []float64{0, 3600, 7200}; !reflect.DeepEqual(tv.Data, want) {
		t.Errorf("time = %v; want %v", tv.Data, want)
	}
	z, err := zarr.ReadArray(ctx, s, romszarr.ZRho)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"time", "s_rho", "y_rho", "x_rho"}; !reflect.DeepEqual(z.Dims, want) {
		t.Errorf("z_rho dims = %v; want %v", z.Dims, want)
	}
	// With zeta = 0 and Cs = s, z = h*s.
	if z.Data[0] != -15 {
		t.Errorf("z_rho[0] = %g; want -15", z.Data[0])
	}

	// The store is not replaced without Overwrite.
	if err := execute(args...); !errors.Is(err, romszarr.ErrDestinationExists) {
		t.Errorf("err = %v; want ErrDestinationExists", err)
	}

	inspect := new(bytes.Buffer)
	Root.SetOut(inspect)
	defer Root.SetOut(nil)
	if err := execute("inspect", out, grid); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"arrays:",
		"\ttime = 3\n",
		"<f4 temp(time, s_rho, y_rho, x_rho) [3 2 2 3]",
		"variables:",
		"lon_u(eta_u, xi_u) [4 4]",
	} {
		if !strings.Contains(inspect.String(), want) {
			t.Errorf("inspect output does not contain %q:\n%s", want, inspect.String())
		}
	}

	if err := execute(append(args, "--Overwrite")...); err != nil {
		t.Fatal(err)
	}
}

func TestExpandSources(t *testing.T) {
	dir := t.TempDir()
	for _, f := range []string{"b.nc", "a.nc", "c.txt"} {
		if err := os.WriteFile(filepath.Join(dir, f), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
	t.Setenv("ROMSZARR_TEST_DIR", dir)
	got, err := expandSources([]string{
		"$ROMSZARR_TEST_DIR/*.nc",
		"gs://bucket/his_*.nc",
		filepath.Join(dir, "c.txt"),
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		filepath.Join(dir, "a.nc"),
		filepath.Join(dir, "b.nc"),
		"gs://bucket/his_*.nc",
		filepath.Join(dir, "c.txt"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("sources = %v; want %v", got, want)
	}
	if _, err := expandSources([]string{filepath.Join(dir, "*.cdf")}); err == nil {
		t.Error("expected an error for a pattern without matches")
	}
}

func TestGetStringMapString(t *testing.T) {
	want := map[string]string{"xi_rho": "x", "eta_rho": "y"}
	for _, in := range []interface{}{
		`{"xi_rho": "x", "eta_rho": "y"}`,
		map[string]interface{}{"xi_rho": "x", "eta_rho": "y"},
		map[string]string{"xi_rho": "x", "eta_rho": "y"},
	} {
		cfg := viper.New()
		cfg.Set("Rename", in)
		got, err := GetStringMapString("Rename", cfg)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("%#v: got %v; want %v", in, got, want)
		}
	}

	cfg := viper.New()
	if got, err := GetStringMapString("Rename", cfg); err != nil || len(got) != 0 {
		t.Errorf("unset: %v, %v", got, err)
	}
	for _, in := range []interface{}{`{"xi_rho": `, 3} {
		cfg.Set("Rename", in)
		if _, err := GetStringMapString("Rename", cfg); err == nil {
			t.Errorf("%#v: expected an error", in)
		}
	}
}

func TestConvertConfig(t *testing.T) {
	dir := t.TempDir()
	his := writeHistory(t, dir, "his.nc", 0)

	cfg := newConfig()
	if _, err := ConvertConfig(cfg); err == nil {
		t.Error("expected an error without sources")
	}
	cfg.Set("Sources", []string{his})
	c, err := ConvertConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(c.Sources, []string{his}) {
		t.Errorf("sources = %v", c.Sources)
	}
	if !reflect.DeepEqual(c.Rename, romszarr.DefaultRename) {
		t.Errorf("rename = %v", c.Rename)
	}
	if c.Depth.UDims != [2]string{} || c.Depth.VDims != [2]string{} {
		t.Errorf("u and v dimensions should follow Rename: %v %v", c.Depth.UDims, c.Depth.VDims)
	}
	d := romszarr.DefaultDepthConfig()
	if !c.ComputeDepths || c.Depth.Bound != d.Bound || c.Depth.MinDepth != d.MinDepth || c.Depth.Boundary != d.Boundary {
		t.Errorf("depth settings = %+v; want %+v", c.Depth, d)
	}

	for _, bad := range []struct {
		key string
		val interface{}
	}{
		{"Depth.Boundary", "wrap"},
		{"Depth.Bound", -1.},
		{"Depth.Vtransform", 3},
		{"Rename", "not json"},
	} {
		cfg := newConfig()
		cfg.Set("Sources", []string{his})
		cfg.Set(bad.key, bad.val)
		if _, err := ConvertConfig(cfg); err == nil {
			t.Errorf("%s=%v: expected an error", bad.key, bad.val)
		}
	}
}

func TestCheckOutput(t *testing.T) {
	dir := t.TempDir()
	if _, err := checkOutput(""); err == nil {
		t.Error("expected an error for an empty location")
	}
	if _, err := checkOutput(filepath.Join(dir, "missing", "out.zarr")); err == nil {
		t.Error("expected an error for a missing directory")
	}
	for _, p := range []string{filepath.Join(dir, "out.zarr"), "gs://bucket/out.zarr"} {
		if got, err := checkOutput(p); err != nil || got != p {
			t.Errorf("checkOutput(%s) = %s, %v", p, got, err)
		}
	}
}

func TestConvertRemote(t *testing.T) {
	dir := t.TempDir()
	writeHistory(t, dir, "his_0001.nc", 0, 3600)
	writeHistory(t, dir, "his_0002.nc", 3600, 7200)
	writeGrid(t, dir)
	srv := httptest.NewServer(http.FileServer(http.Dir(dir)))
	defer srv.Close()

	log := logrus.New()
	log.SetOutput(io.Discard)
	ctx := context.Background()
	outDir := t.TempDir()
	var hashes []string
	for _, name := range []string{"a.zarr", "b.zarr"} {
		cfg := newConfig()
		cfg.Set("Sources", []string{srv.URL + "/his_0001.nc", srv.URL + "/his_0002.nc"})
		cfg.Set("Grid", srv.URL+"/grid.nc")
		cfg.Set("Variables", []string{"temp"})
		cfg.Set("Output", filepath.Join(outDir, name))
		if err := Convert(ctx, cfg, log); err != nil {
			t.Fatal(err)
		}
		c, err := ConvertConfig(cfg)
		if err != nil {
			t.Fatal(err)
		}
		cm, _, err := zarr.ReadConsolidated(ctx, zarr.DirStore{Dir: filepath.Join(outDir, name)})
		if err != nil {
			t.Fatal(err)
		}
		attrs, _ := cm.Metadata[".zattrs"].(map[string]interface{})
		h, _ := attrs["romszarr_config_hash"].(string)
		if h != c.Hash() {
			t.Errorf("%s: stored hash %q; want the hash of the given locations %q", name, h, c.Hash())
		}
		hashes = append(hashes, h)
	}
	if hashes[0] != hashes[1] {
		t.Errorf("hashes differ between runs: %v", hashes)
	}
}

func TestMaybeDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data/his.nc" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("netcdf"))
	}))
	defer srv.Close()

	ctx := context.Background()
	d := new(downloader)
	local := filepath.Join(t.TempDir(), "his.nc")
	if err := os.WriteFile(local, nil, 0644); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{local, "relative/his.nc"} {
		if got, err := d.maybeDownload(ctx, p); err != nil || got != p {
			t.Errorf("maybeDownload(%s) = %s, %v", p, got, err)
		}
	}
	if d.dir != "" {
		t.Error("local files should not create a download directory")
	}

	f, err := d.maybeDownload(ctx, srv.URL+"/data/his.nc?token=x")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(f) != "his.nc" || filepath.Dir(f) != d.dir {
		t.Errorf("downloaded to %s", f)
	}
	if b, err := os.ReadFile(f); err != nil || string(b) != "netcdf" {
		t.Errorf("content = %q, %v", b, err)
	}
	if _, err := d.maybeDownload(ctx, srv.URL+"/missing.nc"); err == nil {
		t.Error("expected an error for a missing file")
	}
	d.cleanup()
	if _, err := os.Stat(d.dir); !os.IsNotExist(err) {
		t.Error("download directory should be removed")
	}
}

func TestNewLogger(t *testing.T) {
	if _, _, err := newLogger("loud", "", new(bytes.Buffer)); err == nil {
		t.Error("expected an error for an invalid level")
	}
	b := new(bytes.Buffer)
	log, closeLog, err := newLogger("warning", "", b)
	if err != nil {
		t.Fatal(err)
	}
	defer closeLog()
	log.Info("hidden")
	log.Warn("shown")
	if strings.Contains(b.String(), "hidden") || !strings.Contains(b.String(), "shown") {
		t.Errorf("log = %s", b.String())
	}
}
