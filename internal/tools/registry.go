// Package tools locates tool definitions on disk and keeps recently used
// ones loaded.
package tools

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/galaxyproject/galaxy-params/internal/params"
	"github.com/galaxyproject/galaxy-params/internal/toolsource"
)

// ErrToolNotFound is returned for ids no scanned file declares.
var ErrToolNotFound = errors.New("tool not found")

// Registry maps tool ids to their source files and caches built tools.
type Registry struct {
	dir    string
	app    *params.App
	logger *slog.Logger

	mu    sync.RWMutex
	paths map[string]string
	cache *lru.Cache[string, *params.Tool]
}

// NewRegistry creates a registry over dir holding at most size built tools.
func NewRegistry(dir string, size int, app *params.App, logger *slog.Logger) (*Registry, error) {
	if size <= 0 {
		size = 128
	}
	cache, err := lru.New[string, *params.Tool](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool cache: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		dir:    dir,
		app:    app,
		logger: logger,
		paths:  map[string]string{},
		cache:  cache,
	}, nil
}

// Scan walks the tool directory and records the id of every readable tool
// source. Files that are not tool definitions are skipped. Previously built
// tools are dropped.
func (r *Registry) Scan() error {
	paths := map[string]string{}
	err := filepath.WalkDir(r.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isToolFile(path) {
			return nil
		}
		src, err := toolsource.LoadFile(path)
		if err != nil {
			r.logger.Debug("skipping file", "path", path, "error", err)
			return nil
		}
		id := src.ParseID()
		if id == "" {
			r.logger.Warn("tool source without id", "path", path)
			return nil
		}
		if prev, ok := paths[id]; ok {
			r.logger.Warn("duplicate tool id", "id", id, "path", path, "previous", prev)
		}
		paths[id] = path
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", r.dir, err)
	}

	r.mu.Lock()
	r.paths = paths
	r.mu.Unlock()
	r.cache.Purge()
	r.logger.Info("scanned tools", "dir", r.dir, "count", len(paths))
	return nil
}

// Get returns the tool with the given id, building it on a cache miss.
func (r *Registry) Get(id string) (*params.Tool, error) {
	if tool, ok := r.cache.Get(id); ok {
		return tool, nil
	}
	r.mu.RLock()
	path, ok := r.paths[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, id)
	}
	src, err := toolsource.LoadFile(path)
	if err != nil {
		return nil, err
	}
	tool, err := params.NewTool(src, r.app)
	if err != nil {
		return nil, err
	}
	r.cache.Add(id, tool)
	return tool, nil
}

// Register adds an already built tool. It stays available until evicted.
func (r *Registry) Register(tool *params.Tool) {
	r.cache.Add(tool.ID, tool)
}

// IDs returns the scanned tool ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.paths))
	for id := range r.paths {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Cached returns the number of built tools held.
func (r *Registry) Cached() int {
	return r.cache.Len()
}

func isToolFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xml", ".yml", ".yaml":
		return true
	}
	return false
}
