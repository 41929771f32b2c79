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

package cloud

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
	"gocloud.dev/blob"
)

// readBlob reads the given blob from the given bucket.
func readBlob(ctx context.Context, bucket *blob.Bucket, key string) ([]byte, error) {
	var b bytes.Buffer
	r, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		return nil, fmt.Errorf("cloud: reading blob %s: %w", key, err)
	}
	defer r.Close()
	if _, err = io.Copy(&b, r); err != nil {
		return nil, fmt.Errorf("cloud: reading blob %s: %v", key, err)
	}
	return b.Bytes(), nil
}

// writeBlob writes the given data to the given bucket.
func writeBlob(ctx context.Context, bucket *blob.Bucket, key string, data []byte) error {
	w, err := bucket.NewWriter(ctx, key, &blob.WriterOptions{})
	if err != nil {
		return fmt.Errorf("cloud: creating writer for blob %s: %v", key, err)
	}
	if _, err = io.Copy(w, bytes.NewReader(data)); err != nil {
		w.Close()
		return fmt.Errorf("cloud: copying blob %s: %v", key, err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("cloud: writing blob %s: %v", key, err)
	}
	return nil
}

// deleteBlobDir deletes all blobs under the given prefix of the bucket.
func deleteBlobDir(ctx context.Context, bucket *blob.Bucket, prefix string) error {
	iter := bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("cloud: listing blobs to delete under %s: %v", prefix, err)
		}
		if err = bucket.Delete(ctx, obj.Key); err != nil {
			return fmt.Errorf("cloud: deleting blob %s: %v", obj.Key, err)
		}
	}
	return nil
}

// Store is a Zarr store in blob storage. Writes that fail are retried
// with exponential backoff.
type Store struct {
	Bucket *blob.Bucket

	// Prefix is the path of the store within the bucket.
	Prefix string

	// MaxRetries is the number of times a failed write is retried.
	MaxRetries uint64

	// Log receives retry messages. If nil, the standard logger is used.
	Log logrus.FieldLogger
}

// NewStore returns a store at the given path in the bucket.
func NewStore(bucket *blob.Bucket, prefix string) *Store {
	return &Store{Bucket: bucket, Prefix: prefix, MaxRetries: 5}
}

// OpenStore opens the store at location, which is in the format
// accepted by OpenBucket.
func OpenStore(ctx context.Context, location string) (*Store, error) {
	b, prefix, err := OpenBucket(ctx, location)
	if err != nil {
		return nil, err
	}
	if prefix == "" {
		b.Close()
		return nil, fmt.Errorf("cloud: %s does not include a path within the bucket", location)
	}
	return NewStore(b, prefix), nil
}

func (s *Store) key(k string) string { return path.Join(s.Prefix, k) }

func (s *Store) log() logrus.FieldLogger {
	if s.Log == nil {
		return logrus.StandardLogger()
	}
	return s.Log
}

// Put implements zarr.Store.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	key = s.key(key)
	return backoff.RetryNotify(
		func() error {
			return writeBlob(ctx, s.Bucket, key, data)
		},
		backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.MaxRetries), ctx),
		func(err error, d time.Duration) {
			s.log().WithError(err).WithField("key", key).Warnf("retrying in %v", d)
		},
	)
}

// Get implements zarr.Store.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	return readBlob(ctx, s.Bucket, s.key(key))
}

// Exists implements zarr.Store.
func (s *Store) Exists(ctx context.Context) (bool, error) {
	iter := s.Bucket.List(&blob.ListOptions{Prefix: s.Prefix + "/"})
	_, err := iter.Next(ctx)
	if err == io.EOF {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cloud: checking for %s: %v", s.Prefix, err)
	}
	return true, nil
}

// Remove implements zarr.Store.
func (s *Store) Remove(ctx context.Context) error {
	return deleteBlobDir(ctx, s.Bucket, s.Prefix+"/")
}

// Close closes the bucket.
func (s *Store) Close() error { return s.Bucket.Close() }

func (s *Store) String() string { return s.Prefix }

// Download copies the blob at location, in the format accepted by
// OpenBucket, to a file in dir and returns the path to the file.
func Download(ctx context.Context, location, dir string) (string, error) {
	b, key, err := OpenBucket(ctx, location)
	if err != nil {
		return "", err
	}
	defer b.Close()
	data, err := readBlob(ctx, b, key)
	if err != nil {
		return "", err
	}
	f := filepath.Join(dir, path.Base(key))
	if err := os.WriteFile(f, data, 0644); err != nil {
		return "", fmt.Errorf("cloud: saving %s: %v", location, err)
	}
	return f, nil
}
