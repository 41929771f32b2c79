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

// Command romszarr converts output of the Regional Ocean Modeling System
// from NetCDF to Zarr.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spatialmodel/romszarr/romsutil"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := romsutil.Root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
