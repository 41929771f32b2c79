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

import "fmt"

// SelectInterior discards the exterior ring of rho points, and the
// exterior v points along xi and u points along eta, so that the rho,
// u, v and psi point families share one trimmed domain. Dimensions that
// are not in ds are skipped.
func SelectInterior(ds *Dataset) (*Dataset, error) {
	var err error
	for _, dim := range []string{"xi_rho", "eta_rho", "xi_v", "eta_u"} {
		if !ds.HasDim(dim) {
			continue
		}
		if ds, err = ds.Slice(dim, 1, -1); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

// LoadGrid reads a ROMS grid file, removes the variables named in drop
// and trims the grid to its interior. Names in drop that are not in
// the file are ignored.
func LoadGrid(path string, drop []string) (*Dataset, error) {
	ds, err := OpenNetCDF(path)
	if err != nil {
		return nil, err
	}
	ds, err = SelectInterior(ds.DropVars(drop...))
	if err != nil {
		return nil, fmt.Errorf("romszarr: loading grid %s: %w", path, err)
	}
	return ds, nil
}
