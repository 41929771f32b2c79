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

// Package cloud provides access to files and Zarr stores in blob
// storage.
package cloud

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/gcsblob"
	"gocloud.dev/blob/s3blob"
	"gocloud.dev/gcp"
)

// IsBlob returns whether the given location is in blob storage
// (i.e., if it starts with `gs://`, 's3://', or 'file://').
func IsBlob(location string) bool {
	return strings.HasPrefix(location, "gs://") || strings.HasPrefix(location, "s3://") ||
		strings.HasPrefix(location, "file://")
}

// OpenBucket opens the blob storage bucket holding location, which must
// be in the format 'provider://name/path' where provider is the name of
// the storage provider, name is the name of the bucket, and path is a
// location within the bucket. It returns the bucket and the path.
// The currently accepted storage providers are "file" for the local
// filesystem, where name is a directory (or empty for the file system
// root), "gs" for Google Cloud Storage, and "s3" for AWS S3.
func OpenBucket(ctx context.Context, location string) (*blob.Bucket, string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, "", fmt.Errorf("cloud.OpenBucket: %v", err)
	}
	key := strings.Trim(u.Path, "/")
	var b *blob.Bucket
	switch u.Scheme {
	case "file":
		dir := u.Host
		if dir == "" {
			dir = string(os.PathSeparator)
		}
		b, err = fileblob.OpenBucket(dir, nil)
	case "gs":
		b, err = gsBucket(ctx, u.Hostname())
	case "s3":
		b, err = s3Bucket(ctx, u.Hostname())
	default:
		return nil, "", fmt.Errorf("cloud.OpenBucket: invalid provider %s", u.Scheme)
	}
	if err != nil {
		return nil, "", fmt.Errorf("cloud.OpenBucket: %s: %v", location, err)
	}
	return b, key, nil
}

// gsBucket opens a Google Cloud Storage bucket with the application
// default credentials.
func gsBucket(ctx context.Context, name string) (*blob.Bucket, error) {
	creds, err := gcp.DefaultCredentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("finding credentials: %v", err)
	}
	client, err := gcp.NewHTTPClient(gcp.DefaultTransport(), gcp.CredentialsTokenSource(creds))
	if err != nil {
		return nil, err
	}
	return gcsblob.OpenBucket(ctx, client, name, nil)
}

// s3Bucket opens an S3 bucket using the credentials in AWS_ACCESS_KEY_ID
// and AWS_SECRET_ACCESS_KEY. The region is read from AWS_REGION and
// defaults to us-east-2. If AWS_ENDPOINT is set, requests go to that
// S3-compatible service instead of AWS.
func s3Bucket(ctx context.Context, name string) (*blob.Bucket, error) {
	cfg := aws.NewConfig().
		WithRegion("us-east-2").
		WithCredentials(credentials.NewEnvCredentials())
	if r := os.Getenv("AWS_REGION"); r != "" {
		cfg = cfg.WithRegion(r)
	}
	if e := os.Getenv("AWS_ENDPOINT"); e != "" {
		cfg = cfg.WithEndpoint(e).WithS3ForcePathStyle(true)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating AWS session: %v", err)
	}
	return s3blob.OpenBucket(ctx, sess, name, nil)
}
