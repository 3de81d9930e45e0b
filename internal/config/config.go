package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
)

// Registry is the persisted source registry. It is safe for use from the
// control thread and the config watcher concurrently.
type Registry struct {
	mu   sync.Mutex
	path string
	file File
}

// Load reads the registry from path. A missing file yields an empty
// registry rather than an error; the daemon can still stream synthetics.
func Load(path string) (*Registry, error) {
	r := &Registry{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.file.Sources = map[string]SourceDescriptor{}
			return r, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &r.file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if r.file.Sources == nil {
		r.file.Sources = map[string]SourceDescriptor{}
	}
	return r, nil
}

func (r *Registry) Path() string { return r.path }

func (r *Registry) Output() OutputDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Output
}

func (r *Registry) FadeMS() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.FadeMS
}

// InitialSource returns the configured startup source, if any.
func (r *Registry) InitialSource() (string, SourceDescriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file.InitialSource == "" {
		return "", SourceDescriptor{}, false
	}
	d, ok := r.file.Sources[r.file.InitialSource]
	return r.file.InitialSource, d, ok
}

func (r *Registry) Lookup(name string) (SourceDescriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.file.Sources[name]
	return d, ok
}

// Names lists configured source names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.file.Sources))
	for name := range r.file.Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Add inserts or replaces a source and persists the registry.
func (r *Registry) Add(name string, d SourceDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.file.Sources[name] = d
	return r.save()
}

// Reload re-reads the file from disk, replacing the in-memory registry.
func (r *Registry) Reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return err
	}
	var file File
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse %s: %w", r.path, err)
	}
	if file.Sources == nil {
		file.Sources = map[string]SourceDescriptor{}
	}
	r.mu.Lock()
	r.file = file
	r.mu.Unlock()
	return nil
}

// save writes the registry atomically: temp file then rename. Callers hold
// the lock.
func (r *Registry) save() error {
	data, err := json.MarshalIndent(r.file, "", "  ")
	if err != nil {
		return err
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, r.path)
}
