// Package scanner surveys the project root before indexing and prints the
// command-line summaries of index and search runs.
package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"vismatch/formats"
	"vismatch/hashcache"
	"vismatch/types"
)

// FileStats counts the image files of one project
type FileStats struct {
	Total  int
	Raw    int
	Tiff   int
	Cached int
}

// Survey holds the per-project counts of a root
type Survey struct {
	Root     string
	HashType types.HashType
	Projects map[string]FileStats
}

// Names returns the surveyed projects in name order
func (s Survey) Names() []string {
	names := make([]string, 0, len(s.Projects))
	for name := range s.Projects {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Totals sums the counts of every project
func (s Survey) Totals() FileStats {
	var sum FileStats
	for _, st := range s.Projects {
		sum.Total += st.Total
		sum.Raw += st.Raw
		sum.Tiff += st.Tiff
		sum.Cached += st.Cached
	}
	return sum
}

// CountFiles walks each project directory one level deep. Cached counts images
// that already have a cache artifact for t
func CountFiles(root string, t types.HashType) (Survey, error) {
	s := Survey{Root: root, HashType: t, Projects: make(map[string]FileStats)}

	dirs, err := os.ReadDir(root)
	if err != nil {
		return s, fmt.Errorf("read root %s: %w", root, err)
	}
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		members, err := os.ReadDir(filepath.Join(root, d.Name()))
		if err != nil {
			return s, fmt.Errorf("read project %s: %w", d.Name(), err)
		}

		var st FileStats
		for _, m := range members {
			path := filepath.Join(root, d.Name(), m.Name())
			if m.IsDir() || !formats.IsImageFile(path) {
				continue
			}
			st.Total++
			if formats.IsRawFormat(path) {
				st.Raw++
			}
			if formats.FormatOf(path) == formats.FormatTIFF {
				st.Tiff++
			}
			if _, err := os.Stat(hashcache.Path(path, t)); err == nil {
				st.Cached++
			}
		}
		s.Projects[d.Name()] = st
	}
	return s, nil
}
