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

// Package romszarr converts output of the Regional Ocean Modeling System
// (ROMS) from NetCDF files into Zarr stores. Along the way it trims the
// grid to interior points, concatenates files along time, drops repeated
// time stamps, renames dimensions, and derives the physical depth of the
// sigma-coordinate layers.
package romszarr

import "errors"

// Version gives the version number.
const Version = "0.3.0"

// TimeDim is the name of the ROMS time dimension and time variable.
const TimeDim = "ocean_time"

var (
	// ErrMissingVariable is returned when a required variable is
	// not present in a dataset.
	ErrMissingVariable = errors.New("missing variable")

	// ErrDimensionMismatch is returned when variables or datasets
	// disagree on the length or order of their dimensions.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrDestinationExists is returned when the output store already
	// exists and overwriting has not been requested.
	ErrDestinationExists = errors.New("destination already exists")
)

// DefaultVariables are the physical variables converted when none are
// specified.
var DefaultVariables = []string{"temp", "salt"}

// DefaultGridDropVariables are grid variables that are not carried into
// the output because their dimensions do not fit the trimmed grid.
var DefaultGridDropVariables = []string{"hraw", "lon_vert", "lat_vert", "x_vert", "y_vert", "spherical"}

// DefaultRename maps ROMS dimension names to the output vocabulary.
var DefaultRename = map[string]string{
	TimeDim:   "time",
	"xi_rho":  "x_rho",
	"eta_rho": "y_rho",
	"xi_u":    "x_u",
	"eta_u":   "y_u",
	"xi_v":    "x_v",
	"eta_v":   "y_v",
	"xi_psi":  "x_psi",
	"eta_psi": "y_psi",
}

// DefaultCoordinates are the auxiliary arrays promoted to coordinates.
var DefaultCoordinates = []string{
	"lon_rho", "lat_rho", "mask_rho",
	"lon_u", "lat_u", "mask_u",
	"lon_v", "lat_v", "mask_v",
	"lon_psi", "lat_psi", "mask_psi",
	"h", "hc", "s_rho", "s_w", "Cs_r", "Cs_w",
	"angle", "f", "pm", "pn",
}
