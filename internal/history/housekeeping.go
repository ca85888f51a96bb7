package history

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Housekeeper runs the CSV archival sidecar's retention policy: files older
// than CompressAfterDays are gzipped in place, files older than
// ArchiveAfterDays are moved under an archive/ subdirectory. The relational
// store itself is never pruned.
type Housekeeper struct {
	dir                string
	cleanupInterval    time.Duration
	compressAfterDays  int
	archiveAfterDays   int
}

// NewHousekeeper builds a Housekeeper rooted at the CSV sidecar's directory.
func NewHousekeeper(dir string, cleanupIntervalHours, compressAfterDays, archiveAfterDays int) *Housekeeper {
	if cleanupIntervalHours <= 0 {
		cleanupIntervalHours = 24
	}
	if compressAfterDays <= 0 {
		compressAfterDays = 10
	}
	if archiveAfterDays <= 0 {
		archiveAfterDays = 30
	}
	return &Housekeeper{
		dir:               dir,
		cleanupInterval:   time.Duration(cleanupIntervalHours) * time.Hour,
		compressAfterDays: compressAfterDays,
		archiveAfterDays:  archiveAfterDays,
	}
}

// Run fires RunOnce on every cleanup interval until stop is closed.
func (h *Housekeeper) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(h.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := h.RunOnce(time.Now()); err != nil {
				log.Error().Err(err).Msg("history housekeeping pass failed")
			}
		}
	}
}

// RunOnce walks the archive directory once, compressing and archiving files
// whose age crosses the configured thresholds.
func (h *Housekeeper) RunOnce(now time.Time) error {
	entries, err := os.ReadDir(h.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading history archive dir %s: %w", h.dir, err)
	}

	archiveDir := filepath.Join(h.dir, "archive")

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		age := now.Sub(info.ModTime())
		path := filepath.Join(h.dir, entry.Name())

		if age >= time.Duration(h.archiveAfterDays)*24*time.Hour {
			if err := h.archive(path, archiveDir); err != nil {
				log.Error().Err(err).Str("file", path).Msg("archiving history file failed")
			}
			continue
		}
		if age >= time.Duration(h.compressAfterDays)*24*time.Hour && !strings.HasSuffix(path, ".gz") {
			if err := h.compress(path); err != nil {
				log.Error().Err(err).Str("file", path).Msg("compressing history file failed")
			}
		}
	}
	return nil
}

func (h *Housekeeper) compress(path string) error {
	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s for compression: %w", path, err)
	}
	defer in.Close()

	gzPath := path + ".gz"
	out, err := os.Create(gzPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", gzPath, err)
	}
	defer out.Close()

	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		return fmt.Errorf("gzipping %s: %w", path, err)
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("closing gzip writer for %s: %w", path, err)
	}
	return os.Remove(path)
}

func (h *Housekeeper) archive(path, archiveDir string) error {
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return fmt.Errorf("creating archive dir %s: %w", archiveDir, err)
	}
	dest := filepath.Join(archiveDir, filepath.Base(path))
	return os.Rename(path, dest)
}
