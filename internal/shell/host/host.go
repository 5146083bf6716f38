// Package host gathers facts about the machine the stack is deployed on.
package host

import (
	"fmt"
	"os/exec"

	"golang.org/x/sys/unix"

	"github.com/artpar/stackdeploy/internal/core/preflight"
)

// Inspector reads free disk space and locates executables.
type Inspector struct {
	statfs   func(path string, st *unix.Statfs_t) error
	lookPath func(file string) (string, error)
}

// NewInspector returns an Inspector backed by the real filesystem and PATH.
func NewInspector() *Inspector {
	return &Inspector{
		statfs:   unix.Statfs,
		lookPath: exec.LookPath,
	}
}

// FreeDisk reports the bytes available to unprivileged users on the
// filesystem holding path.
func (i *Inspector) FreeDisk(path string) (preflight.DiskUsage, error) {
	var st unix.Statfs_t
	if err := i.statfs(path, &st); err != nil {
		return preflight.DiskUsage{}, fmt.Errorf("statfs %s: %w", path, err)
	}
	return preflight.DiskUsage{
		Path:      path,
		FreeBytes: int64(st.Bavail) * int64(st.Bsize),
	}, nil
}

// FindTools reports, per name, whether an executable is on PATH.
func (i *Inspector) FindTools(names []string) map[string]bool {
	found := make(map[string]bool, len(names))
	for _, name := range names {
		_, err := i.lookPath(name)
		found[name] = err == nil
	}
	return found
}
