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

package zarr

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io/ioutil"

	"github.com/klauspost/compress/zstd"
)

// Codec compresses and decompresses chunks.
type Codec interface {
	// Config returns the metadata entry for the codec, or nil
	// if chunks are stored uncompressed.
	Config() *CompressorConfig
	Encode(b []byte) ([]byte, error)
	Decode(b []byte) ([]byte, error)
}

// NewCodec returns the codec with the given id: "zstd", "zlib", or
// "none" (or "") for no compression.
func NewCodec(id string, level int) (Codec, error) {
	switch id {
	case "zstd":
		return newZstd(level)
	case "zlib":
		if level < zlib.HuffmanOnly || level > zlib.BestCompression {
			return nil, fmt.Errorf("zarr: invalid zlib level %d", level)
		}
		return zlibCodec{level: level}, nil
	case "", "none":
		return rawCodec{}, nil
	}
	return nil, fmt.Errorf("zarr: unsupported compressor %q", id)
}

type rawCodec struct{}

func (rawCodec) Config() *CompressorConfig       { return nil }
func (rawCodec) Encode(b []byte) ([]byte, error) { return b, nil }
func (rawCodec) Decode(b []byte) ([]byte, error) { return b, nil }

// zstdCodec writes single zstd frames that record the uncompressed
// size, as numcodecs requires.
type zstdCodec struct {
	level int
	enc   *zstd.Encoder
	dec   *zstd.Decoder
}

func newZstd(level int) (*zstdCodec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, fmt.Errorf("zarr: creating zstd encoder: %v", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zarr: creating zstd decoder: %v", err)
	}
	return &zstdCodec{level: level, enc: enc, dec: dec}, nil
}

func (z *zstdCodec) Config() *CompressorConfig {
	return &CompressorConfig{ID: "zstd", Level: z.level}
}

// Encode and Decode are safe for concurrent use.
func (z *zstdCodec) Encode(b []byte) ([]byte, error) { return z.enc.EncodeAll(b, nil), nil }
func (z *zstdCodec) Decode(b []byte) ([]byte, error) { return z.dec.DecodeAll(b, nil) }

type zlibCodec struct{ level int }

func (z zlibCodec) Config() *CompressorConfig {
	return &CompressorConfig{ID: "zlib", Level: z.level}
}

func (z zlibCodec) Encode(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, z.level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(b); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (z zlibCodec) Decode(b []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return ioutil.ReadAll(r)
}
