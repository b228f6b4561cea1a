package subaru

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/schollz/progressbar/v3"
	"github.com/ulikunitz/xz"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
	"lukechampine.com/blake3"
)

var httpClient = &http.Client{
	Timeout: 300 * time.Second, // large indexes on slow mirrors
}

type downloadOptions struct {
	Quiet bool // Quiet suppresses the progress bar
}

// downloadFile fetches a URL into destFile. A sidecar flock serializes
// concurrent fetches of the same file; once the lock is held the destination
// is re-checked in case another goroutine finished it first.
func downloadFile(ctx context.Context, url, destFile string, opt downloadOptions) error {
	if err := os.MkdirAll(filepath.Dir(destFile), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directory for %s: %w", destFile, err)
	}

	lockPath := destFile + ".lock"
	lFile, err := os.Create(lockPath)
	if err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	defer lFile.Close()

	if err := unix.Flock(int(lFile.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("failed to acquire lock for download: %w", err)
	}
	defer unix.Flock(int(lFile.Fd()), unix.LOCK_UN)

	// Another fetch may have completed while we waited for the lock.
	if _, err := os.Stat(destFile); err == nil {
		debugf("File %s appeared after acquiring lock, skipping download.\n", destFile)
		_ = os.Remove(lockPath)
		return nil
	}

	defer func() {
		if _, err := os.Stat(destFile); err == nil {
			_ = os.Remove(lockPath)
		}
	}()

	debugf("Downloading %s -> %s\n", url, destFile)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download failed for %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed for %s: HTTP %s", url, resp.Status)
	}

	tmp := destFile + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}

	var dst io.Writer = out
	if !opt.Quiet && term.IsTerminal(int(os.Stderr.Fd())) {
		bar := progressbar.DefaultBytes(resp.ContentLength, filepath.Base(destFile))
		dst = io.MultiWriter(out, bar)
	}

	_, copyErr := io.Copy(dst, resp.Body)
	closeErr := out.Close()
	if copyErr != nil {
		os.Remove(tmp)
		return fmt.Errorf("download failed for %s: %w", url, copyErr)
	}
	if closeErr != nil {
		os.Remove(tmp)
		return closeErr
	}

	return os.Rename(tmp, destFile)
}

// verifyIndexChecksum compares data against a hex-encoded blake3 sidecar sum.
func verifyIndexChecksum(data []byte, sumHex string) error {
	h := blake3.New(32, nil)
	h.Write(data)
	got := hex.EncodeToString(h.Sum(nil))
	want := strings.TrimSpace(sumHex)
	// Sidecar files may carry "sum  filename" lines.
	if i := strings.IndexAny(want, " \t"); i > 0 {
		want = want[:i]
	}
	if got != want {
		return fmt.Errorf("index checksum mismatch: got %s, want %s", got, want)
	}
	return nil
}

// decompressIndex decodes raw index bytes according to the filename suffix.
// Plain JSON passes through untouched.
func decompressIndex(name string, data []byte) ([]byte, error) {
	switch {
	case strings.HasSuffix(name, ".gz"):
		zr, err := pgzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case strings.HasSuffix(name, ".xz"):
		xr, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		return io.ReadAll(xr)
	case strings.HasSuffix(name, ".zst"):
		zr, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	default:
		return data, nil
	}
}

// fetchRepoIndex loads one repository's package index. Local paths are read
// directly; URLs go through the flock'd download cache with an optional
// blake3 sidecar check, falling back to the configured S3 mirror when the
// plain fetch fails.
func fetchRepoIndex(ctx context.Context, repo Repo, cfg *Config) ([]RepoEntry, error) {
	var raw []byte
	var name string

	switch {
	case repo.Path != "":
		data, err := os.ReadFile(repo.Path)
		if err != nil {
			return nil, fmt.Errorf("repo %s: %w", repo.Name, err)
		}
		raw, name = data, repo.Path

	default:
		url := repo.URL
		// Relative URLs resolve against the configured mirror.
		if !strings.Contains(url, "://") && MirrorURL != "" {
			url = strings.TrimSuffix(MirrorURL, "/") + "/" + strings.TrimPrefix(url, "/")
		}
		name = filepath.Base(url)
		dest := filepath.Join(IndexCache, repo.Name, name)

		dlErr := downloadFile(ctx, url, dest, downloadOptions{Quiet: !Verbose})
		if dlErr == nil {
			// Best effort sidecar fetch; verification only runs when present.
			sumDest := dest + ".b3"
			if err := downloadFile(ctx, url+".b3", sumDest, downloadOptions{Quiet: true}); err == nil {
				data, err := os.ReadFile(dest)
				if err != nil {
					return nil, fmt.Errorf("repo %s: %w", repo.Name, err)
				}
				sum, err := os.ReadFile(sumDest)
				if err == nil {
					if err := verifyIndexChecksum(data, string(sum)); err != nil {
						os.Remove(dest)
						os.Remove(sumDest)
						return nil, fmt.Errorf("repo %s: %w", repo.Name, err)
					}
				}
				raw = data
			} else {
				data, err := os.ReadFile(dest)
				if err != nil {
					return nil, fmt.Errorf("repo %s: %w", repo.Name, err)
				}
				raw = data
			}
		} else {
			debugf("Mirror fetch failed for %s: %v, trying S3 fallback\n", repo.Name, dlErr)
			mirror, mErr := NewMirrorClient(cfg)
			if mErr != nil {
				return nil, fmt.Errorf("repo %s: %w", repo.Name, dlErr)
			}
			data, key, mErr := mirror.FetchRepoIndex(ctx, repo.Name, name)
			if mErr != nil {
				return nil, fmt.Errorf("repo %s: %w", repo.Name, dlErr)
			}
			raw, name = data, key
		}
	}

	data, err := decompressIndex(name, raw)
	if err != nil {
		return nil, fmt.Errorf("repo %s: failed to decompress index: %w", repo.Name, err)
	}

	entries, err := ParseRepoIndex(data)
	if err != nil {
		return nil, fmt.Errorf("repo %s: failed to parse index: %w", repo.Name, err)
	}
	for i := range entries {
		if entries[i].Repo == "" {
			entries[i].Repo = repo.Name
		}
	}
	return entries, nil
}
