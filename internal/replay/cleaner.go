package replay

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/STJr/SRB2-sub004/internal/logging"
)

// RetentionPolicy bounds the loose recordings kept per category. Export
// bundles only expire by age. Record slot files are never pruned.
type RetentionPolicy struct {
	MaxRecordings int
	MaxAge        time.Duration
}

// StorageStats summarises the replay tree after the last sweep.
type StorageStats struct {
	Categories int
	Recordings int
	Protected  int
	Bundles    int
	Summaries  int
	Bytes      int64
	LastSweep  time.Time
}

// Cleaner applies a RetentionPolicy to every category under root.
type Cleaner struct {
	root   string
	ext    string
	policy RetentionPolicy
	log    *logging.Logger
	now    func() time.Time

	mu    sync.RWMutex
	stats StorageStats
}

func NewCleaner(root, ext string, policy RetentionPolicy, logger *logging.Logger) *Cleaner {
	if logger == nil {
		logger = logging.L()
	}
	if ext == "" {
		ext = DefaultExtension
	}
	return &Cleaner{root: root, ext: ext, policy: policy, log: logger, now: time.Now}
}

// Run sweeps once immediately and then every interval until ctx ends.
func (c *Cleaner) Run(ctx context.Context, interval time.Duration) {
	if c == nil || ctx == nil {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	c.sweep()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Cleaner) RunOnce() {
	if c != nil {
		c.sweep()
	}
}

// Stats returns the figures gathered by the last sweep.
func (c *Cleaner) Stats() StorageStats {
	if c == nil {
		return StorageStats{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

type itemKind int

const (
	loose itemKind = iota
	slot
	bundle
)

// item is one unit of retention: a recording with its sidecar, or an
// export bundle directory.
type item struct {
	kind    itemKind
	name    string
	files   []string
	sidecar string
	size    int64
	newest  time.Time
}

func (c *Cleaner) sweep() {
	if c == nil || strings.TrimSpace(c.root) == "" {
		return
	}
	categories, err := os.ReadDir(c.root)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.log.Warn("replay retention scan failed", logging.Error(err), logging.String("directory", c.root))
		}
		return
	}
	now := c.now()
	stats := StorageStats{LastSweep: now}
	removed := 0
	for _, category := range categories {
		if !category.IsDir() {
			continue
		}
		stats.Categories++
		dir := filepath.Join(c.root, category.Name())
		items, err := c.scan(dir)
		if err != nil {
			c.log.Warn("replay retention scan failed", logging.Error(err), logging.String("directory", dir))
			continue
		}
		removed += c.apply(category.Name(), items, now, &stats)
	}
	c.mu.Lock()
	c.stats = stats
	c.mu.Unlock()
	if removed > 0 {
		c.log.Info("replay retention sweep finished", logging.Int("removed", removed), logging.Int("recordings", stats.Recordings))
	}
}

// scan groups a category directory into items, newest first.
func (c *Cleaner) scan(dir string) ([]*item, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*item, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		path := filepath.Join(dir, name)
		var key string
		var size int64
		var mod time.Time
		kind := loose
		switch {
		case entry.IsDir():
			//1.- Export bundles move as a whole.
			if _, err := os.Stat(filepath.Join(path, manifestName)); err != nil && !looksLikeBundle(path) {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if size, err = directorySize(path); err != nil {
				c.log.Warn("replay retention size failed", logging.Error(err), logging.String("path", path))
				continue
			}
			key, kind, mod = name, bundle, info.ModTime()
		case strings.HasSuffix(name, c.ext+SummarySuffix):
			key = strings.TrimSuffix(name, SummarySuffix)
		case filepath.Ext(name) == c.ext:
			key = name
		default:
			continue
		}
		if kind != bundle {
			info, err := entry.Info()
			if err != nil {
				c.log.Warn("replay retention stat failed", logging.Error(err), logging.String("path", path))
				continue
			}
			size, mod = info.Size(), info.ModTime()
			if isSlotFile(key, c.ext) {
				kind = slot
			}
		}
		it := byName[key]
		if it == nil {
			it = &item{kind: kind, name: key, newest: mod}
			byName[key] = it
		}
		if key != name && kind != bundle {
			it.sidecar = path
		} else {
			it.files = append(it.files, path)
		}
		it.size += size
		if mod.After(it.newest) {
			it.newest = mod
		}
	}
	items := make([]*item, 0, len(byName))
	for _, it := range byName {
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].newest.Equal(items[j].newest) {
			return items[i].name > items[j].name
		}
		return items[i].newest.After(items[j].newest)
	})
	return items, nil
}

// apply deletes expired items and tallies the survivors.
func (c *Cleaner) apply(category string, items []*item, now time.Time, stats *StorageStats) int {
	kept, removed := 0, 0
	for _, it := range items {
		if it.kind != slot {
			if reason := c.expiry(it, now, kept); reason != "" {
				if err := it.remove(); err != nil {
					c.log.Warn("replay retention removal failed", logging.Error(err), logging.String("replay", it.name))
				} else {
					c.log.Debug("replay retention removed", logging.String("category", category), logging.String("replay", it.name), logging.String("reason", reason))
					removed++
					continue
				}
			}
		}
		switch it.kind {
		case slot:
			stats.Protected++
		case bundle:
			stats.Bundles++
		default:
			kept++
			stats.Recordings++
		}
		if it.sidecar != "" {
			stats.Summaries++
		}
		stats.Bytes += it.size
	}
	return removed
}

func (c *Cleaner) expiry(it *item, now time.Time, kept int) string {
	var reasons []string
	if c.policy.MaxAge > 0 && now.Sub(it.newest) > c.policy.MaxAge {
		reasons = append(reasons, fmt.Sprintf("older than %s", c.policy.MaxAge))
	}
	if it.kind == loose && c.policy.MaxRecordings > 0 && kept >= c.policy.MaxRecordings {
		reasons = append(reasons, fmt.Sprintf("beyond %d recordings", c.policy.MaxRecordings))
	}
	return strings.Join(reasons, ", ")
}

func (it *item) remove() error {
	var errs error
	for _, path := range it.files {
		var err error
		if it.kind == bundle {
			err = os.RemoveAll(path)
		} else {
			err = os.Remove(path)
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = errors.Join(errs, err)
		}
	}
	if it.sidecar != "" {
		if err := os.Remove(it.sidecar); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}

// looksLikeBundle accepts bundle directories written before the manifest
// was flushed, which still hold archive parts.
func looksLikeBundle(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			return true
		}
	}
	return false
}

func directorySize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}
