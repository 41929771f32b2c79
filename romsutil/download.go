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
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/romszarr/cloud"
)

// downloader copies remote input files to a temporary directory. It is
// safe for concurrent use.
type downloader struct {
	mu  sync.Mutex
	dir string
	log logrus.FieldLogger
}

// maybeDownload checks if the input is an existing file locally.
// If not, it checks if the file is a URL or a blob location.
// If it is, it downloads the file and returns the path to the
// downloaded file.
func (d *downloader) maybeDownload(ctx context.Context, p string) (string, error) {
	// Check if local file exists. If it does, return the given path.
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		return p, nil
	}
	if !isRemote(p) {
		return p, nil
	}
	dir, err := d.tempDir()
	if err != nil {
		return p, err
	}
	if d.log != nil {
		d.log.WithField("location", p).Info("downloading")
	}
	if cloud.IsBlob(p) {
		return cloud.Download(ctx, p, dir)
	}
	return downloadHTTP(ctx, p, dir)
}

// tempDir returns the download directory, creating it on first use.
func (d *downloader) tempDir() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dir == "" {
		dir, err := os.MkdirTemp("", "romszarr")
		if err != nil {
			return "", fmt.Errorf("romszarr: creating temporary download directory: %v", err)
		}
		d.dir = dir
	}
	return d.dir, nil
}

// cleanup removes the downloaded files.
func (d *downloader) cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dir != "" {
		os.RemoveAll(d.dir)
	}
}

// downloadHTTP downloads a file from the specified URL into dir and
// returns the path to the downloaded file.
func downloadHTTP(ctx context.Context, url, dir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("romszarr: downloading %s: %v", url, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("romszarr: downloading %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("romszarr: downloading %s: %s", url, resp.Status)
	}
	name := path.Base(strings.SplitN(url, "?", 2)[0])
	f := filepath.Join(dir, name)
	w, err := os.Create(f)
	if err != nil {
		return "", fmt.Errorf("romszarr: creating file for download: %v", err)
	}
	if _, err = io.Copy(w, resp.Body); err != nil {
		w.Close()
		return "", fmt.Errorf("romszarr: downloading %s: %v", url, err)
	}
	if err = w.Close(); err != nil {
		return "", fmt.Errorf("romszarr: downloading %s: %v", url, err)
	}
	return f, nil
}
