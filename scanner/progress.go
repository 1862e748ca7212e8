package scanner

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/fatih/color"

	"vismatch/hashcache"
	"vismatch/registry"
	"vismatch/types"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed)
	headColor = color.New(color.Bold)
)

// PrintStartupInfo displays the survey before indexing starts
func PrintStartupInfo(w io.Writer, s Survey) {
	total := s.Totals()
	headColor.Fprintf(w, "Starting image indexing...\n")
	fmt.Fprintf(w, "Project root: %s\n", s.Root)
	fmt.Fprintf(w, "Hash type: %s\n", s.HashType)
	fmt.Fprintf(w, "Total image files to process: %d in %d projects (including %d RAW files and %d TIF files)\n",
		total.Total, len(s.Projects), total.Raw, total.Tiff)
	fmt.Fprintf(w, "Already hashed: %d/%d\n", total.Cached, total.Total)
}

// PrintCompletionStats displays the result of a registry load
func PrintCompletionStats(w io.Writer, reg *registry.Registry, report registry.LoadReport, cache hashcache.Stats) {
	fmt.Fprintln(w)
	headColor.Fprintf(w, "Indexing complete.\n")
	fmt.Fprintf(w, "Loaded %d projects in %v.\n", len(report.Loaded), report.Duration.Round(time.Millisecond))

	for _, p := range reg.Projects() {
		okColor.Fprintf(w, "  %-24s", p.Name())
		fmt.Fprintf(w, " %6d images  id %s\n", len(p.Entries), p.Descriptor.ID)
	}
	for name, err := range report.Failed {
		errColor.Fprintf(w, "  %-24s failed: %v\n", name, err)
	}

	fmt.Fprintf(w, "Cache: %d hits, %d misses, %d stored", cache.Hits, cache.Misses, cache.Stores)
	if cache.Corrupt > 0 {
		warnColor.Fprintf(w, ", %d corrupt artifacts recomputed", cache.Corrupt)
	}
	fmt.Fprintln(w)

	if len(report.Failed) > 0 {
		errColor.Fprintf(w, "Encountered %d errors during indexing.\n", len(report.Failed))
		fmt.Fprintln(w, "Check the log for details.")
	}
}

// PrintMatches lists ranked matches, closest first
func PrintMatches(w io.Writer, project string, matches []types.DistEntry, elapsed time.Duration) {
	headColor.Fprintf(w, "\nTop Matches in %s:\n", project)
	if len(matches) == 0 {
		fmt.Fprintln(w, "No matches found.")
	}
	for i, m := range matches {
		fmt.Fprintf(w, "%d. Image: %s\n", i+1, filepath.Base(m.Image))
		fmt.Fprintf(w, "   Distance: %g  Score: %.4f\n", m.Distance, m.Score)
	}
	fmt.Fprintf(w, "\nTotal search time: %v\n", elapsed.Round(time.Microsecond))
}
