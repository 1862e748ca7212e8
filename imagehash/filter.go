package imagehash

import (
	"fmt"
	"strings"
)

// ResizeFilter is the interpolation used when downscaling before hashing
type ResizeFilter int

const (
	FilterNearest ResizeFilter = iota
	FilterLinear
	FilterCubic
	FilterArea
	FilterLanczos
)

var filterNames = map[string]ResizeFilter{
	"nearest": FilterNearest,
	"linear":  FilterLinear,
	"cubic":   FilterCubic,
	"area":    FilterArea,
	"lanczos": FilterLanczos,
}

// ParseResizeFilter maps a configuration name to a filter
func ParseResizeFilter(s string) (ResizeFilter, error) {
	f, ok := filterNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unknown resize filter %q", s)
	}
	return f, nil
}

func (f ResizeFilter) String() string {
	for name, v := range filterNames {
		if v == f {
			return name
		}
	}
	return fmt.Sprintf("filter(%d)", int(f))
}

