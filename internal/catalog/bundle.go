package catalog

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	bundlePath = "/download/em_catalog.zip"

	bundleFileName = "em_catalog.zip"
	bundleDirName  = "em_catalog"
)

func (c *Client) bundlePath() string {
	return filepath.Join(c.cacheDir, bundleFileName)
}

func (c *Client) extractDir() string {
	return filepath.Join(c.cacheDir, bundleDirName)
}

// EnsureBundle makes sure the catalog bundle is downloaded and extracted
// under the cache directory. With refresh=true any cached copy is discarded
// first. The bundle holds the platform list, the component catalog and the
// quarterly patch recommendations.
func (c *Client) EnsureBundle(ctx context.Context, refresh bool) error {
	if refresh {
		if err := c.cleanBundle(); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(c.cacheDir, 0o755); err != nil {
		return fmt.Errorf("catalog: create cache dir: %w", err)
	}

	downloaded := false
	if _, err := os.Stat(c.bundlePath()); os.IsNotExist(err) {
		if err := c.downloadBundle(ctx); err != nil {
			return err
		}
		downloaded = true
	} else if err != nil {
		return fmt.Errorf("catalog: stat bundle: %w", err)
	}

	if _, err := os.Stat(c.extractDir()); downloaded || os.IsNotExist(err) {
		if err := c.extractBundle(); err != nil {
			return err
		}
	}

	return nil
}

func (c *Client) cleanBundle() error {
	log.Debug("discarding cached catalog bundle", "dir", c.cacheDir)
	if err := os.RemoveAll(c.bundlePath()); err != nil {
		return fmt.Errorf("catalog: remove bundle: %w", err)
	}
	if err := os.RemoveAll(c.extractDir()); err != nil {
		return fmt.Errorf("catalog: remove extracted bundle: %w", err)
	}
	return nil
}

func (c *Client) downloadBundle(ctx context.Context) error {
	log.Info("downloading catalog bundle", "url", c.baseURL+bundlePath)

	resp, err := c.http.Get(ctx, c.baseURL+bundlePath, nil)
	if err != nil {
		return fmt.Errorf("%w: fetch bundle: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	tmp, err := os.CreateTemp(c.cacheDir, bundleFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("catalog: create temp bundle: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: download bundle: %v", ErrUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("catalog: close temp bundle: %w", err)
	}

	if err := os.Rename(tmp.Name(), c.bundlePath()); err != nil {
		return fmt.Errorf("catalog: rename bundle: %w", err)
	}

	return nil
}

func (c *Client) extractBundle() error {
	zr, err := zip.OpenReader(c.bundlePath())
	if err != nil {
		return fmt.Errorf("catalog: open bundle: %w", err)
	}
	defer zr.Close()

	dest := c.extractDir()
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("catalog: create extract dir: %w", err)
	}

	for _, f := range zr.File {
		if err := extractOne(f, dest); err != nil {
			return err
		}
	}

	return nil
}

func extractOne(f *zip.File, dest string) error {
	// Flatten: the bundle may nest its files under a top-level directory.
	name := filepath.Base(filepath.Clean(f.Name))
	if name == "." || name == ".." || strings.HasPrefix(name, "/") {
		return fmt.Errorf("catalog: unsafe bundle entry %q", f.Name)
	}
	if f.FileInfo().IsDir() {
		return nil
	}

	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("catalog: open bundle entry %s: %w", f.Name, err)
	}
	defer src.Close()

	out, err := os.Create(filepath.Join(dest, name))
	if err != nil {
		return fmt.Errorf("catalog: create %s: %w", name, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return fmt.Errorf("catalog: extract %s: %w", name, err)
	}
	return out.Close()
}
