package util

import (
	"fmt"
	"path/filepath"
)

// ExpandInputs resolves glob patterns in input paths, keeping the given
// order. A pattern with no matches is kept as-is so that opening it reports
// the missing file.
func ExpandInputs(patterns []string) ([]string, error) {
	var paths []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid input pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			paths = append(paths, pattern)
			continue
		}
		paths = append(paths, matches...)
	}
	return paths, nil
}

func Ptr[T any](v T) *T { return &v }
