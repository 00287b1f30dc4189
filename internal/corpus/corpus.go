// Package corpus stores the set of distinct visual states observed so far.
//
// Entries are PNG files in a single directory. The set only grows: an entry is
// added when a capture matched none of the existing entries, and entries are
// never rewritten or removed.
package corpus

import (
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/arcticwatch/arcticwatch/internal/compare"
	"github.com/arcticwatch/arcticwatch/internal/images"
)

// Comparer decides whether two images show the same state.
type Comparer interface {
	Compare(a, b image.Image) compare.Result
	Diff(a, b image.Image) compare.Stats
}

// Entry is one stored reference image.
type Entry struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	AddedAt time.Time `json:"added_at"`
}

// Corpus is a directory-backed reference set.
type Corpus struct {
	dir string
	cmp Comparer

	mu    sync.Mutex
	cache map[string]image.Image
}

// Open returns a corpus rooted at dir. The directory is created on first use.
func Open(dir string, cmp Comparer) (*Corpus, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("corpus directory must not be empty")
	}
	if cmp == nil {
		return nil, fmt.Errorf("corpus comparer must not be nil")
	}
	return &Corpus{
		dir:   dir,
		cmp:   cmp,
		cache: make(map[string]image.Image),
	}, nil
}

// Dir returns the storage directory.
func (c *Corpus) Dir() string {
	return c.dir
}

// ensure makes sure dir exists and is a directory. Anything else occupying
// the path is removed; entries can be regenerated from later captures.
func (c *Corpus) ensure() error {
	info, err := os.Stat(c.dir)
	switch {
	case err == nil && info.IsDir():
		return nil
	case err == nil:
		slog.Warn("Corpus path is not a directory, recreating", "path", c.dir)
		if err := os.RemoveAll(c.dir); err != nil {
			return fmt.Errorf("failed to remove unusable corpus path: %w", err)
		}
	case !os.IsNotExist(err):
		return fmt.Errorf("failed to stat corpus directory: %w", err)
	}

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("failed to create corpus directory: %w", err)
	}
	slog.Info("Created corpus directory", "path", c.dir)
	return nil
}

// Entries lists stored entries in insertion order.
func (c *Corpus) Entries() ([]Entry, error) {
	if err := c.ensure(); err != nil {
		return nil, err
	}
	return c.list()
}

// Count returns the number of entries without touching the storage
// directory. A missing directory counts as empty.
func (c *Corpus) Count() (int, error) {
	info, err := os.Stat(c.dir)
	switch {
	case os.IsNotExist(err):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("failed to stat corpus directory: %w", err)
	case !info.IsDir():
		return 0, nil
	}

	entries, err := c.list()
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (c *Corpus) list() ([]Entry, error) {
	dirEntries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list corpus: %w", err)
	}

	var entries []Entry
	for _, de := range dirEntries {
		if de.IsDir() || !strings.EqualFold(filepath.Ext(de.Name()), ".png") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			Name:    de.Name(),
			Path:    filepath.Join(c.dir, de.Name()),
			Size:    info.Size(),
			AddedAt: info.ModTime(),
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Len returns the number of entries.
func (c *Corpus) Len() (int, error) {
	entries, err := c.Entries()
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// AnyMatches reports whether any entry matches candidate. It stops at the
// first match. An empty corpus never matches.
func (c *Corpus) AnyMatches(candidate *images.Capture) (bool, error) {
	_, ok, err := c.FindMatch(candidate)
	return ok, err
}

// FindMatch is AnyMatches that also returns the matching entry.
func (c *Corpus) FindMatch(candidate *images.Capture) (Entry, bool, error) {
	entries, err := c.Entries()
	if err != nil {
		return Entry{}, false, err
	}

	for _, e := range entries {
		img, err := c.load(e)
		if err != nil {
			slog.Warn("Skipping unreadable corpus entry", "entry", e.Name, "err", err)
			continue
		}
		if c.cmp.Compare(candidate.Image, img) == compare.Match {
			slog.Debug("Capture matches corpus entry", "entry", e.Name)
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

// Add persists candidate as a new entry. Callers only add captures that
// matched no entry.
func (c *Corpus) Add(candidate *images.Capture) (Entry, error) {
	if err := c.ensure(); err != nil {
		return Entry{}, err
	}

	name := fmt.Sprintf("%019d-%s.png", time.Now().UnixNano(), candidate.Checksum()[:12])
	path := filepath.Join(c.dir, name)

	tmp, err := os.CreateTemp(c.dir, ".pending-*")
	if err != nil {
		return Entry{}, fmt.Errorf("failed to create corpus entry: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(candidate.PNG); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return Entry{}, fmt.Errorf("failed to write corpus entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return Entry{}, fmt.Errorf("failed to write corpus entry: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return Entry{}, fmt.Errorf("failed to store corpus entry: %w", err)
	}

	c.mu.Lock()
	c.cache[name] = candidate.Image
	c.mu.Unlock()

	slog.Info("Added corpus entry", "entry", name, "bytes", len(candidate.PNG))
	return Entry{Name: name, Path: path, Size: int64(len(candidate.PNG)), AddedAt: time.Now()}, nil
}

// Closest returns the same-size entry with the fewest differing pixels, or
// ok=false when no entry has the candidate's dimensions.
func (c *Corpus) Closest(candidate *images.Capture) (entry Entry, img image.Image, stats compare.Stats, ok bool, err error) {
	entries, err := c.Entries()
	if err != nil {
		return Entry{}, nil, compare.Stats{}, false, err
	}

	for _, e := range entries {
		ref, loadErr := c.load(e)
		if loadErr != nil {
			continue
		}
		s := c.cmp.Diff(ref, candidate.Image)
		if !s.SameSize {
			continue
		}
		if !ok || s.DifferentPixels < stats.DifferentPixels {
			entry, img, stats, ok = e, ref, s, true
		}
	}
	return entry, img, stats, ok, nil
}

func (c *Corpus) load(e Entry) (image.Image, error) {
	c.mu.Lock()
	img, ok := c.cache[e.Name]
	c.mu.Unlock()
	if ok {
		return img, nil
	}

	capture, err := images.Load(e.Path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[e.Name] = capture.Image
	c.mu.Unlock()
	return capture.Image, nil
}
