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
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
)

// Store is a key-value store holding a Zarr hierarchy. Keys are
// slash-separated paths relative to the root of the store.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)

	// Exists returns whether anything is stored.
	Exists(ctx context.Context) (bool, error)

	// Remove deletes everything in the store.
	Remove(ctx context.Context) error
}

// DirStore is a Store in a local directory.
type DirStore struct {
	Dir string
}

func (s DirStore) path(key string) string {
	return filepath.Join(s.Dir, filepath.FromSlash(key))
}

// Put implements Store.
func (s DirStore) Put(_ context.Context, key string, data []byte) error {
	p := s.path(key)
	if err := os.MkdirAll(filepath.Dir(p), os.ModePerm); err != nil {
		return fmt.Errorf("zarr: creating directory for %s: %v", key, err)
	}
	if err := ioutil.WriteFile(p, data, 0644); err != nil {
		return fmt.Errorf("zarr: writing %s: %v", key, err)
	}
	return nil
}

// Get implements Store.
func (s DirStore) Get(_ context.Context, key string) ([]byte, error) {
	b, err := ioutil.ReadFile(s.path(key))
	if err != nil {
		return nil, fmt.Errorf("zarr: reading %s: %w", key, err)
	}
	return b, nil
}

// Exists implements Store.
func (s DirStore) Exists(_ context.Context) (bool, error) {
	_, err := os.Stat(s.Dir)
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

// Remove implements Store.
func (s DirStore) Remove(_ context.Context) error {
	return os.RemoveAll(s.Dir)
}

func (s DirStore) String() string { return s.Dir }
