// Package registry loads model artifacts from a directory of YAML files.
package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"bizlens/backend/internal/ml/model"
	"bizlens/backend/internal/platform/apierror"
)

const ext = ".yaml"

// ErrModelNotFound is returned when no artifact exists for a model name.
var ErrModelNotFound = apierror.NotFound("model not found")

// Loaded is an artifact together with where it came from.
type Loaded struct {
	*model.Artifact
	Path string
	// Version is the first 8 hex characters of the SHA-256 of the artifact file.
	Version string
}

// Info describes an artifact file in the model directory.
type Info struct {
	Name    string `json:"name"`
	Source  string `json:"source"`
	Path    string `json:"path"`
	Version string `json:"version,omitempty"`
}

// Registry caches parsed artifacts by name. A changed file is picked up on the next Load.
type Registry struct {
	dir string

	mu     sync.RWMutex
	loaded map[string]*Loaded
}

func New(dir string) *Registry {
	return &Registry{dir: dir, loaded: make(map[string]*Loaded)}
}

func (r *Registry) Dir() string { return r.dir }

func validName(name string) bool {
	return name != "" && !strings.ContainsAny(name, `/\`) && name != "." && name != ".."
}

// Load returns the named artifact, reading it when the file content changed since the last load.
func (r *Registry) Load(name string) (*Loaded, error) {
	if !validName(name) {
		return nil, ErrModelNotFound
	}
	path := filepath.Join(r.dir, name+ext)
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrModelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read model %s: %w", name, err)
	}
	version := Version(b)

	r.mu.RLock()
	cached, ok := r.loaded[name]
	r.mu.RUnlock()
	if ok && cached.Version == version {
		return cached, nil
	}

	var a model.Artifact
	if err := yaml.Unmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("parse model %s: %w", name, err)
	}
	// the file name is authoritative
	a.Name = name
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("model %s: %w", name, err)
	}
	l := &Loaded{Artifact: &a, Path: path, Version: version}
	r.mu.Lock()
	r.loaded[name] = l
	r.mu.Unlock()
	return l, nil
}

// IsLoaded reports whether name has been loaded into memory.
func (r *Registry) IsLoaded(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.loaded[name]
	return ok
}

// List describes every artifact file in the directory, sorted by name. A missing directory is empty.
func (r *Registry) List() ([]Info, error) {
	paths, err := filepath.Glob(filepath.Join(r.dir, "*"+ext))
	if err != nil {
		return nil, err
	}
	out := make([]Info, 0, len(paths))
	for _, p := range paths {
		info := Info{Name: strings.TrimSuffix(filepath.Base(p), ext), Source: "local", Path: p}
		if b, err := os.ReadFile(p); err == nil {
			info.Version = Version(b)
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Count returns the number of artifact files, or 0 when the directory cannot be read.
func (r *Registry) Count() int {
	list, err := r.List()
	if err != nil {
		return 0
	}
	return len(list)
}

// Save writes a as <dir>/<name>.yaml and returns the path and version.
func Save(dir string, a *model.Artifact) (string, string, error) {
	if err := a.Validate(); err != nil {
		return "", "", err
	}
	if !validName(a.Name) {
		return "", "", fmt.Errorf("invalid model name %q", a.Name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", err
	}
	b, err := yaml.Marshal(a)
	if err != nil {
		return "", "", err
	}
	path := filepath.Join(dir, a.Name+ext)
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", "", err
	}
	return path, Version(b), nil
}

// Version is the short content hash used as a model version.
func Version(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:8]
}
