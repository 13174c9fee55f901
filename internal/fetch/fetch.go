// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fetch downloads registry snapshot CSV exports. The registry
// publishes one full snapshot per day under a date-stamped URL; fetch
// walks candidate dates newest-first and stops at the first published
// file that is not already on disk.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/pdiddy/registry-engine/internal/httputil"
	"github.com/pdiddy/registry-engine/pkg/types"
)

const (
	dateLayout          = "20060102"
	defaultLookbackDays = 30
)

var fileNameRe = regexp.MustCompile(`^data-(\d{8})-structure-\d{8}\.csv$`)

// FileName renders the snapshot file name for a date.
func FileName(day time.Time) string {
	return fmt.Sprintf("data-%s-structure-20210405.csv", day.Format(dateLayout))
}

// Result describes the outcome of one fetch.
type Result struct {
	// Path is the local snapshot file, either freshly downloaded or the
	// newest one already present.
	Path string

	// Downloaded is false when no new snapshot was published since the
	// newest local file.
	Downloaded bool
}

// Latest locates the newest published snapshot not yet on disk,
// downloads it, and writes it atomically into cfg.FilesDir. When nothing
// newer exists it returns the newest local file with Downloaded=false.
func Latest(ctx context.Context, client *http.Client, cfg types.SnapshotConfig, w io.Writer) (Result, error) {
	if err := os.MkdirAll(cfg.FilesDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("creating files directory: %w", err)
	}

	newestLocal, localPath := newestLocalSnapshot(cfg.FilesDir)
	lookback := cfg.LookbackDays
	if lookback <= 0 {
		lookback = defaultLookbackDays
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	earliest := today.AddDate(0, 0, -lookback+1)
	if !newestLocal.IsZero() && newestLocal.AddDate(0, 0, 1).After(earliest) {
		earliest = newestLocal.AddDate(0, 0, 1)
	}

	for day := today; !day.Before(earliest); day = day.AddDate(0, 0, -1) {
		name := FileName(day)
		path := filepath.Join(cfg.FilesDir, name)
		if _, err := os.Stat(path); err == nil {
			fmt.Fprintf(w, "already downloaded: %s\n", name)
			return Result{Path: path}, nil
		}

		payload, err := tryFetch(ctx, client, cfg, day)
		if err != nil {
			fmt.Fprintf(w, "skipping %s: %v\n", day.Format(dateLayout), err)
			continue
		}
		if payload == nil {
			// Not published for this date.
			continue
		}

		if err := writeAtomic(path, payload); err != nil {
			return Result{}, err
		}
		sum := sha256.Sum256(payload)
		fmt.Fprintf(w, "downloaded %s (%d bytes, sha256 %s)\n",
			name, len(payload), hex.EncodeToString(sum[:])[:12])
		return Result{Path: path, Downloaded: true}, nil
	}

	if localPath != "" {
		fmt.Fprintf(w, "no newer snapshot published; newest local is %s\n", filepath.Base(localPath))
		return Result{Path: localPath}, nil
	}
	return Result{}, fmt.Errorf("no snapshot found within the last %d days", lookback)
}

// tryFetch downloads one candidate date. A 404 means the registry did
// not publish that day and returns (nil, nil).
func tryFetch(ctx context.Context, client *http.Client, cfg types.SnapshotConfig, day time.Time) ([]byte, error) {
	url := strings.ReplaceAll(cfg.BaseURL, "{date}", day.Format(dateLayout))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if cfg.UserAgent != "" {
		req.Header.Set("User-Agent", cfg.UserAgent)
	}

	resp, err := httputil.DoWithRetry(ctx, client, req, 0)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty response body")
	}
	return payload, nil
}

// NewestLocal returns the path of the newest snapshot already on disk.
func NewestLocal(dir string) (string, error) {
	_, path := newestLocalSnapshot(dir)
	if path == "" {
		return "", fmt.Errorf("no local snapshot found in %s", dir)
	}
	return path, nil
}

// newestLocalSnapshot scans the files directory for snapshot names and
// returns the newest embedded date and its path.
func newestLocalSnapshot(dir string) (time.Time, string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return time.Time{}, ""
	}

	type dated struct {
		day  time.Time
		path string
	}
	var found []dated
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := fileNameRe.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		day, err := time.Parse(dateLayout, m[1])
		if err != nil {
			continue
		}
		found = append(found, dated{day: day, path: filepath.Join(dir, entry.Name())})
	}
	if len(found) == 0 {
		return time.Time{}, ""
	}
	sort.Slice(found, func(i, j int) bool { return found[i].day.After(found[j].day) })
	return found[0].day, found[0].path
}

// writeAtomic writes data to a temp file and renames it into place, so a
// crash mid-download never leaves a truncated snapshot behind.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming %s: %w", tmp, err)
	}
	return nil
}
