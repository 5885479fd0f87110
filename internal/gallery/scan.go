// Package gallery finds photos on disk: a one-shot Scan of a directory tree and
// a Watcher that reports photos as they appear.
package gallery

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/hyperjump/snapseek/internal/models"
)

// DefaultPatterns matches the image formats the client can decode.
var DefaultPatterns = []string{"**/*.{jpg,jpeg,png,webp,gif}"}

// ValidatePatterns reports the first malformed glob pattern.
func ValidatePatterns(patterns []string) error {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid pattern %q", p)
		}
	}
	return nil
}

// Match reports whether rel (a path relative to a gallery root) matches any
// pattern. Matching is case-insensitive so IMG_0001.JPG is found by *.jpg.
func Match(patterns []string, rel string) bool {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	name := strings.ToLower(filepath.ToSlash(rel))
	for _, p := range patterns {
		if ok, err := doublestar.Match(strings.ToLower(p), name); err == nil && ok {
			return true
		}
	}
	return false
}

// Scan walks root and returns photos matching patterns, newest first (ties by
// path). limit > 0 caps the result. Hidden directories are skipped.
func Scan(root string, patterns []string, limit int) ([]models.Photo, error) {
	if err := ValidatePatterns(patterns); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	type found struct {
		path    string
		modTime time.Time
	}
	var all []found
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != abs && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(abs, path)
		if err != nil || !Match(patterns, rel) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		all = append(all, found{path: path, modTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}

	sort.Slice(all, func(i, j int) bool {
		if !all[i].modTime.Equal(all[j].modTime) {
			return all[i].modTime.After(all[j].modTime)
		}
		return all[i].path < all[j].path
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	photos := make([]models.Photo, len(all))
	for i, f := range all {
		photos[i] = models.Photo{Path: f.path}
	}
	return photos, nil
}
