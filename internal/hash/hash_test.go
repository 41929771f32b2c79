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

package hash

import "testing"

type settings struct {
	Names  []string
	Rename map[string]string
	Bound  float64
}

func TestHash(t *testing.T) {
	a := settings{
		Names:  []string{"temp", "salt"},
		Rename: map[string]string{"xi_rho": "x_rho", "eta_rho": "y_rho", "ocean_time": "time"},
		Bound:  1e4,
	}
	h := Hash(a)
	if len(h) != 32 {
		t.Errorf("hash %s has length %d; want 32", h, len(h))
	}
	for i := 0; i < 20; i++ {
		// Map iteration order must not matter.
		b := settings{
			Names:  []string{"temp", "salt"},
			Rename: map[string]string{"ocean_time": "time", "eta_rho": "y_rho", "xi_rho": "x_rho"},
			Bound:  1e4,
		}
		if Hash(b) != h {
			t.Fatal("equal values gave different hashes")
		}
	}
	a.Bound = 1e3
	if Hash(a) == h {
		t.Error("different values gave the same hash")
	}
	if Hash(&a) != Hash(&settings{Names: a.Names, Rename: a.Rename, Bound: a.Bound}) {
		t.Error("pointer addresses should not affect the hash")
	}
}
