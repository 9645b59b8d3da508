package s0_data

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/wonny/earningsedge/pkg/httputil"
	"github.com/wonny/earningsedge/pkg/logger"
)

// Downloader fetches raw price/earnings tables into the raw data directory
type Downloader struct {
	client *httputil.Client
	logger *logger.Logger
}

// NewDownloader creates a new downloader
func NewDownloader(client *httputil.Client, log *logger.Logger) *Downloader {
	if log == nil {
		log = logger.Nop()
	}
	return &Downloader{
		client: client,
		logger: log.Module("downloader"),
	}
}

// Fetch downloads url into dest. The file is replaced only after the whole
// body has been written, so a failed transfer leaves the previous copy intact.
func (d *Downloader) Fetch(ctx context.Context, url, dest string) (int64, error) {
	resp, err := d.client.Get(ctx, url)
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("create dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("write %s: %w", dest, err)
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return 0, fmt.Errorf("replace %s: %w", dest, err)
	}

	d.logger.WithFields(map[string]interface{}{
		"url":   url,
		"dest":  dest,
		"bytes": n,
	}).Info("Raw table downloaded")
	return n, nil
}
