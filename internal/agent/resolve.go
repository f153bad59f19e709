package agent

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

var (
	// ErrExecutableNotFound is returned when no candidate location holds the agent.
	ErrExecutableNotFound = errors.New("agent executable not found")
	// ErrWorkDir is returned when a requested working directory is unusable.
	ErrWorkDir = errors.New("invalid working directory")
)

// Resolver locates the agent binary and the directory it runs in.
type Resolver struct {
	Binary         string
	SearchPaths    []string
	DefaultWorkDir string

	// lookPath and homeDir are swapped in tests.
	lookPath func(string) (string, error)
	homeDir  func() (string, error)
}

// NewResolver creates a resolver for binary, falling back to searchPaths
// when it is not on PATH.
func NewResolver(binary string, searchPaths []string, defaultWorkDir string) *Resolver {
	return &Resolver{
		Binary:         binary,
		SearchPaths:    searchPaths,
		DefaultWorkDir: defaultWorkDir,
		lookPath:       exec.LookPath,
		homeDir:        os.UserHomeDir,
	}
}

// Executable returns an absolute path to the agent.
//
// Lookup order: the configured value if it is already a path, then PATH,
// then each fallback search location in order.
func (r *Resolver) Executable() (string, error) {
	bin := r.expand(r.Binary)
	if bin == "" {
		return "", fmt.Errorf("%w: no binary configured", ErrExecutableNotFound)
	}

	if strings.ContainsRune(bin, os.PathSeparator) {
		if isExecutable(bin) {
			return filepath.Abs(bin)
		}
		return "", fmt.Errorf("%w: %s", ErrExecutableNotFound, bin)
	}

	if p, err := r.lookPath(bin); err == nil {
		return filepath.Abs(p)
	}

	for _, dir := range r.SearchPaths {
		dir = r.expand(strings.TrimSpace(dir))
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, bin)
		if isExecutable(candidate) {
			return filepath.Abs(candidate)
		}
	}

	return "", fmt.Errorf("%w: %s (searched PATH and %d fallback locations)", ErrExecutableNotFound, bin, len(r.SearchPaths))
}

// WorkDir returns the directory the child should start in. An explicit
// request must name an existing directory; otherwise the configured default,
// the user's home and finally /tmp are tried.
func (r *Resolver) WorkDir(requested string) (string, error) {
	if requested != "" {
		dir := r.expand(requested)
		info, err := os.Stat(dir)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrWorkDir, requested, err)
		}
		if !info.IsDir() {
			return "", fmt.Errorf("%w: %s is not a directory", ErrWorkDir, requested)
		}
		return filepath.Abs(dir)
	}

	if r.DefaultWorkDir != "" {
		if dir := r.expand(r.DefaultWorkDir); isDir(dir) {
			return dir, nil
		}
	}
	if home, err := r.homeDir(); err == nil && isDir(home) {
		return home, nil
	}
	return os.TempDir(), nil
}

func (r *Resolver) expand(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := r.homeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

func isExecutable(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir() && info.Mode()&0o111 != 0
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}
