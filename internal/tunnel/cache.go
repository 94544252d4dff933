package tunnel

import (
	"archive/tar"
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/termgate/termgate/internal/platform"
)

// Cache materializes the frp client executable at a fixed path inside the
// work directory. The cached binary is reused across runs and never
// invalidated; deleting the work directory forces a fresh download.
type Cache struct {
	dir    string
	logger *slog.Logger

	httpClient *http.Client
	resolveURL func() (string, error)
}

// NewCache returns a cache rooted at dir. The directory is created on first
// use.
func NewCache(dir string, logger *slog.Logger) *Cache {
	return &Cache{
		dir:    dir,
		logger: logger,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		resolveURL: func() (string, error) {
			return platform.Resolve(runtime.GOOS, runtime.GOARCH)
		},
	}
}

// BinaryPath is where the cached executable lives, whether or not it exists
// yet.
func (c *Cache) BinaryPath() string {
	return filepath.Join(c.dir, platform.ClientName(runtime.GOOS))
}

// Ensure returns the path to a ready-to-run client executable, downloading and
// unpacking the release archive if the cache is empty. Repeated calls are
// idempotent: once the binary exists no network access happens.
func (c *Cache) Ensure(ctx context.Context) (string, error) {
	binPath := c.BinaryPath()
	if _, err := os.Stat(binPath); err == nil {
		c.logger.Debug("tunnel client already cached", "path", binPath)
		return binPath, nil
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}

	// Resolve before touching the network so an unsupported platform surfaces
	// immediately.
	archiveURL, err := c.resolveURL()
	if err != nil {
		return "", err
	}

	archivePath, err := c.download(ctx, archiveURL)
	if err != nil {
		return "", err
	}
	defer os.Remove(archivePath)

	extractDir := filepath.Join(c.dir, "extract")
	if err := os.RemoveAll(extractDir); err != nil {
		return "", fmt.Errorf("%w: clear extraction dir: %v", ErrExtraction, err)
	}
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create extraction dir: %v", ErrExtraction, err)
	}
	defer os.RemoveAll(extractDir)

	if err := extractArchive(archivePath, extractDir); err != nil {
		return "", err
	}

	if err := c.installBinary(extractDir, binPath); err != nil {
		return "", err
	}

	c.logger.Info("tunnel client ready", "path", binPath)
	return binPath, nil
}

func (c *Cache) download(ctx context.Context, archiveURL string) (string, error) {
	c.logger.Info("downloading tunnel client", "url", archiveURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, archiveURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownload, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownload, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: unexpected status %s for %s", ErrDownload, resp.Status, archiveURL)
	}

	archivePath := filepath.Join(c.dir, archiveName(archiveURL))
	f, err := os.Create(archivePath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownload, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(archivePath)
		return "", fmt.Errorf("%w: %v", ErrDownload, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(archivePath)
		return "", fmt.Errorf("%w: %v", ErrDownload, err)
	}
	return archivePath, nil
}

func archiveName(archiveURL string) string {
	if u, err := url.Parse(archiveURL); err == nil {
		return filepath.Base(u.Path)
	}
	return filepath.Base(archiveURL)
}

func extractArchive(archivePath, destDir string) error {
	switch {
	case strings.HasSuffix(archivePath, ".tar.gz"), strings.HasSuffix(archivePath, ".tgz"):
		return extractTarGz(archivePath, destDir)
	case strings.HasSuffix(archivePath, ".zip"):
		return extractZip(archivePath, destDir)
	default:
		return fmt.Errorf("%w: unrecognized archive %s", ErrExtraction, filepath.Base(archivePath))
	}
}

func extractTarGz(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrExtraction, err)
		}
		target, err := safeJoin(destDir, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("%w: %v", ErrExtraction, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("%w: %v", ErrExtraction, err)
			}
			if err := writeFileFrom(target, tr, hdr.FileInfo().Mode()); err != nil {
				return err
			}
		}
	}
}

func extractZip(archivePath, destDir string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	defer zr.Close()

	for _, zf := range zr.File {
		target, err := safeJoin(destDir, zf.Name)
		if err != nil {
			return err
		}
		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("%w: %v", ErrExtraction, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("%w: %v", ErrExtraction, err)
		}
		rc, err := zf.Open()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrExtraction, err)
		}
		err = writeFileFrom(target, rc, zf.FileInfo().Mode())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func safeJoin(destDir, name string) (string, error) {
	target := filepath.Join(destDir, filepath.FromSlash(name))
	if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: archive entry %q escapes extraction dir", ErrExtraction, name)
	}
	return target, nil
}

func writeFileFrom(target string, r io.Reader, mode os.FileMode) error {
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	return nil
}

// installBinary searches the extraction tree for the client executable and
// copies it to the fixed cache path.
func (c *Cache) installBinary(extractDir, binPath string) error {
	wantName := platform.ClientName(runtime.GOOS)
	var found string
	err := filepath.WalkDir(extractDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == wantName {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	if found == "" {
		return fmt.Errorf("%w: %s not found in archive", ErrExtraction, wantName)
	}

	src, err := os.Open(found)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	defer src.Close()
	if err := writeFileFrom(binPath, src, 0o755); err != nil {
		return err
	}
	if runtime.GOOS != "windows" {
		if err := os.Chmod(binPath, 0o755); err != nil {
			return fmt.Errorf("%w: %v", ErrExtraction, err)
		}
	}
	return nil
}
