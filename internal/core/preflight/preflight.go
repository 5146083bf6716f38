// Package preflight contains pure checks evaluated before a deployment starts.
// Host facts (free bytes, tool lookup results) are gathered by the shell and
// passed in as values.
package preflight

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	units "github.com/docker/go-units"
)

// DefaultMinFreeDisk is the minimum free space required on the data path.
const DefaultMinFreeDisk int64 = 10 * units.GiB

var (
	// ErrEmptySize is returned by ParseSize for blank input.
	ErrEmptySize = errors.New("empty size")

	// ErrToolMissing is returned when a required executable is not on PATH.
	ErrToolMissing = errors.New("required tool not found")

	// ErrInsufficientDisk is returned when free space does not exceed the threshold.
	ErrInsufficientDisk = errors.New("insufficient free disk space")
)

// DiskUsage describes free space on the filesystem holding a path.
type DiskUsage struct {
	Path      string
	FreeBytes int64
}

// CheckDisk fails unless free space is strictly greater than minFree.
// Exactly minFree bytes free is treated as insufficient.
func CheckDisk(usage DiskUsage, minFree int64) error {
	if usage.FreeBytes > minFree {
		return nil
	}
	return fmt.Errorf("%w: %s free on %s, need more than %s",
		ErrInsufficientDisk,
		units.BytesSize(float64(usage.FreeBytes)),
		usage.Path,
		units.BytesSize(float64(minFree)),
	)
}

// CheckTools fails if any required tool is absent from found.
// found maps tool name to whether it was located.
func CheckTools(required []string, found map[string]bool) error {
	var missing []string
	for _, tool := range required {
		if !found[tool] {
			missing = append(missing, tool)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("%w: %s", ErrToolMissing, strings.Join(missing, ", "))
}

// ParseSize parses a human size such as "10GB" or "512m" into bytes.
// Suffixes are binary (1 GB = 1024^3 bytes). Blank input is ErrEmptySize;
// callers decide what an unset size means.
func ParseSize(s string) (int64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, ErrEmptySize
	}
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid size %q: must not be negative", s)
	}
	return n, nil
}
