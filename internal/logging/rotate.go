package logging

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/STJr/SRB2-sub004/internal/config"
)

const backupStamp = "20060102T150405.000"

// rotatingWriter appends to one file and moves it aside once it would grow
// past maxSize. Backups are named <path>.<stamp>, optionally gzipped, and
// pruned by count and age after every rotation.
type rotatingWriter struct {
	mu       sync.Mutex
	path     string
	maxSize  int64
	keep     int
	maxAge   time.Duration
	compress bool
	now      func() time.Time

	file *os.File
	size int64
}

func newRotatingWriter(cfg config.LoggingConfig) (*rotatingWriter, error) {
	switch {
	case cfg.MaxSizeMB <= 0:
		return nil, errors.New("DEMO_LOG_MAX_SIZE_MB must be positive")
	case cfg.MaxBackups < 0:
		return nil, errors.New("DEMO_LOG_MAX_BACKUPS must be non-negative")
	case cfg.MaxAgeDays < 0:
		return nil, errors.New("DEMO_LOG_MAX_AGE_DAYS must be non-negative")
	}
	w := &rotatingWriter{
		path:     cfg.Path,
		maxSize:  int64(cfg.MaxSizeMB) << 20,
		keep:     cfg.MaxBackups,
		maxAge:   time.Duration(cfg.MaxAgeDays) * 24 * time.Hour,
		compress: cfg.Compress,
		now:      time.Now,
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}
	if err := w.open(os.O_APPEND); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *rotatingWriter) open(mode int) error {
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|mode, 0o644)
	if err != nil {
		return err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}
	w.file, w.size = file, info.Size()
	return nil
}

func (w *rotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.size > 0 && w.size+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *rotatingWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Sync()
}

func (w *rotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return err
	}
	backup := w.path + "." + w.now().UTC().Format(backupStamp)
	if err := os.Rename(w.path, backup); err != nil {
		return err
	}
	if w.compress {
		if err := gzipFile(backup); err == nil {
			_ = os.Remove(backup)
		}
	}
	w.prune()
	return w.open(os.O_TRUNC)
}

// prune removes backups beyond the newest keep and any modified before maxAge ago.
func (w *rotatingWriter) prune() {
	dir := filepath.Dir(w.path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	type backup struct {
		path string
		mod  time.Time
	}
	var found []backup
	for _, entry := range entries {
		if entry.IsDir() || !isBackupOf(w.path, entry.Name()) {
			continue
		}
		if info, err := entry.Info(); err == nil {
			found = append(found, backup{path: filepath.Join(dir, entry.Name()), mod: info.ModTime()})
		}
	}
	//1.- Stamps sort lexically, newest first.
	sort.Slice(found, func(i, j int) bool { return found[i].path > found[j].path })
	cutoff := w.now().Add(-w.maxAge)
	for i, b := range found {
		overCount := w.keep > 0 && i >= w.keep
		tooOld := w.maxAge > 0 && b.mod.Before(cutoff)
		if overCount || tooOld {
			_ = os.Remove(b.path)
		}
	}
}

func gzipFile(src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	dst := src + ".gz"
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	zw := gzip.NewWriter(out)
	_, err = io.Copy(zw, in)
	if cerr := zw.Close(); err == nil {
		err = cerr
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst)
		return err
	}
	return nil
}

func isBackupOf(path, name string) bool {
	return strings.HasPrefix(filepath.Base(name), filepath.Base(path)+".")
}
