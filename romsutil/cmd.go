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

// Package romsutil contains the romszarr command line interface.
package romsutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/romszarr"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

type option struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

var options []option

func init() {
	d := romszarr.DefaultConfig()
	// The conversion settings are shared by convert and config so that
	// config shows what convert would do with the same arguments.
	conv := []*pflag.FlagSet{convertCmd.Flags(), configCmd.Flags()}

	options = []option{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Sources",
			usage: `
              Sources lists the ROMS output files to convert, in time order.
              Glob patterns are expanded and the matches sorted by name.
              Files may also be given as http(s)://, gs://, s3:// or file://
              locations, in which case they are downloaded first.`,
			shorthand:  "i",
			defaultVal: []string{},
			flagsets:   conv,
		},
		{
			name: "Grid",
			usage: `
              Grid is the ROMS grid file. If it is empty, the output holds
              only the variables read from Sources.`,
			shorthand:  "g",
			defaultVal: "",
			flagsets:   conv,
		},
		{
			name: "Variables",
			usage: `
              Variables lists the variables to read from Sources. Dimension
              coordinates and variables named in their "coordinates"
              attributes are read as well.`,
			defaultVal: d.Variables,
			flagsets:   conv,
		},
		{
			name: "GridDropVariables",
			usage: `
              GridDropVariables lists grid variables that are not carried into
              the output.`,
			defaultVal: d.GridDropVariables,
			flagsets:   conv,
		},
		{
			name: "Rename",
			usage: `
              Rename maps ROMS dimension names to output dimension names. On
              the command line it is given as a JSON object.`,
			defaultVal: d.Rename,
			flagsets:   conv,
		},
		{
			name: "Coordinates",
			usage: `
              Coordinates lists the variables that are marked as coordinates
              in the output.`,
			defaultVal: d.Coordinates,
			flagsets:   conv,
		},
		{
			name: "Depth.Enabled",
			usage: `
              Depth.Enabled specifies whether to compute the depths of the
              rho, w, u and v points and the layer thicknesses.`,
			defaultVal: d.ComputeDepths,
			flagsets:   conv,
		},
		{
			name: "Depth.MinDepth",
			usage: `
              Depth.MinDepth is the depth in meters given to points whose
              computed depth is missing or out of bounds.`,
			defaultVal: d.Depth.MinDepth,
			flagsets:   conv,
		},
		{
			name: "Depth.Bound",
			usage: `
              Depth.Bound is the largest absolute depth in meters that is
              accepted as valid.`,
			defaultVal: d.Depth.Bound,
			flagsets:   conv,
		},
		{
			name: "Depth.Boundary",
			usage: `
              Depth.Boundary is how u and v depths are completed at the edge
              of the domain: "fill" averages with Depth.MinDepth and "extend"
              repeats the edge value.`,
			defaultVal: string(d.Depth.Boundary),
			flagsets:   conv,
		},
		{
			name: "Depth.Vtransform",
			usage: `
              Depth.Vtransform selects the ROMS vertical transformation
              equation (1 or 2). 0 uses the Vtransform variable in the input,
              or 2 if there is none.`,
			defaultVal: d.Depth.Vtransform,
			flagsets:   conv,
		},
		{
			name: "Output",
			usage: `
              Output is the location of the Zarr store to create. It can be a
              local directory or a file://, gs:// or s3:// location.`,
			shorthand:  "o",
			defaultVal: "",
			flagsets:   conv,
		},
		{
			name: "Overwrite",
			usage: `
              Overwrite specifies whether to replace an existing store at
              Output. Otherwise an existing store is an error.`,
			defaultVal: false,
			flagsets:   conv,
		},
		{
			name: "Compressor",
			usage: `
              Compressor is the chunk compressor: "zstd", "zlib" or "none".`,
			defaultVal: "zstd",
			flagsets:   conv,
		},
		{
			name: "CompressionLevel",
			usage: `
              CompressionLevel is the level passed to the compressor.`,
			defaultVal: 1,
			flagsets:   conv,
		},
		{
			name: "Workers",
			usage: `
              Workers is the number of files read, and chunks written, at
              the same time.`,
			defaultVal: d.Workers,
			flagsets:   conv,
		},
		{
			name: "LogFile",
			usage: `
              LogFile is a file to write log messages to in addition to
              standard error.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "LogLevel",
			usage: `
              LogLevel is the least severe level of log message shown:
              "debug", "info", "warning" or "error".`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("ROMSZARR")
	Cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch v := option.defaultVal.(type) {
			case string:
				set.StringP(option.name, option.shorthand, v, option.usage)
			case []string:
				set.StringSliceP(option.name, option.shorthand, v, option.usage)
			case bool:
				set.BoolP(option.name, option.shorthand, v, option.usage)
			case int:
				set.IntP(option.name, option.shorthand, v, option.usage)
			case float64:
				set.Float64P(option.name, option.shorthand, v, option.usage)
			case map[string]string:
				b := bytes.NewBuffer(nil)
				e := json.NewEncoder(b)
				e.Encode(v)
				set.StringP(option.name, option.shorthand, strings.TrimSpace(b.String()), option.usage)
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(convertCmd)
	Root.AddCommand(inspectCmd)
	Root.AddCommand(configCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("romszarr: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "romszarr",
	Short: "Convert ROMS output to Zarr.",
	Long: `romszarr converts output of the Regional Ocean Modeling System (ROMS)
from NetCDF files into a Zarr store. The files are concatenated along time,
the grid is trimmed to interior points, repeated time steps are dropped,
dimensions are renamed, and the depths of the sigma layers are computed.

Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'ROMSZARR_var' where 'var'
is the name of the variable to be set, with '.' replaced by '_'. Path options
may contain environment variables.`,
	DisableAutoGenTag: true,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of romszarr.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "romszarr v%s\n", romszarr.Version)
	},
	DisableAutoGenTag: true,
}

// convertCmd converts ROMS output to a Zarr store.
var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert ROMS output files to a Zarr store.",
	Long: `convert reads the files in Sources, and the file in Grid if one is given,
and writes the processed dataset to the Zarr store at Output. One time step
is stored per chunk.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log, closeLog, err := newLogger(Cfg.GetString("LogLevel"), Cfg.GetString("LogFile"), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer closeLog()
		return Convert(cmd.Context(), Cfg, log)
	},
	DisableAutoGenTag: true,
}

// inspectCmd prints a summary of NetCDF files or Zarr stores.
var inspectCmd = &cobra.Command{
	Use:   "inspect PATH...",
	Short: "Summarize NetCDF files or Zarr stores.",
	Long: `inspect prints the dimensions and variables of each NetCDF file or
Zarr store given as an argument.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, p := range args {
			if err := Inspect(cmd.Context(), cmd.OutOrStdout(), expandEnv(p)); err != nil {
				return err
			}
		}
		return nil
	},
	DisableAutoGenTag: true,
}

// configCmd prints the effective configuration.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the configuration.",
	Long: `config prints the configuration that convert would use with the same
arguments, in TOML format. The output can be used as a configuration file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return WriteConfig(cmd.OutOrStdout(), Cfg)
	},
	DisableAutoGenTag: true,
}
