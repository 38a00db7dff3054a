package sourcemap

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"nubridge/internal/errs"
	"nubridge/internal/source"
	"nubridge/internal/trace"
)

// DefaultCapacity bounds the number of maps held in memory.
const DefaultCapacity = 256

// ErrNotFound is returned by Load when the map file does not exist.
var ErrNotFound = fmt.Errorf("position map not found: %w", errs.ErrMappingUnavailable)

// Options configure an Index.
type Options struct {
	Capacity int          // LRU size, DefaultCapacity when <= 0
	Disk     *DiskCache   // optional parsed-map cache keyed by content hash
	Tracer   trace.Tracer // optional
}

// Index is the process-wide cache of loaded maps keyed by absolute map
// path. Entries never change after load; Invalidate or Reload refresh them.
type Index struct {
	cache  *lru.Cache[string, *entry]
	loads  singleflight.Group
	gen    atomic.Uint64
	disk   *DiskCache
	tracer trace.Tracer
}

type entry struct {
	m     *Map
	stamp stamp
}

// stamp identifies the on-disk version a cached map was read from.
type stamp struct {
	size int64
	mod  time.Time
}

func stampOf(fi fs.FileInfo) stamp {
	return stamp{size: fi.Size(), mod: fi.ModTime()}
}

// NewIndex creates an empty index.
func NewIndex(opts Options) (*Index, error) {
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	cache, err := lru.New[string, *entry](capacity)
	if err != nil {
		return nil, err
	}
	tr := opts.Tracer
	if tr == nil {
		tr = trace.Nop
	}
	return &Index{cache: cache, disk: opts.Disk, tracer: tr}, nil
}

// Load returns the cached map for mapPath, reading and parsing it on first
// use. Concurrent loads of the same path share one read.
func (ix *Index) Load(mapPath string) (*Map, error) {
	key := source.Canonical(mapPath)
	if e, ok := ix.cache.Get(key); ok {
		return e.m, nil
	}

	gen := ix.gen.Load()
	// A caller joining a read that began before Invalidate still gets the
	// older map for this call; the generation check keeps it out of the
	// cache, so the next Load rereads.
	v, err, _ := ix.loads.Do(key, func() (any, error) {
		e, err := ix.read(key)
		if err != nil {
			return nil, err
		}
		if ix.gen.Load() == gen {
			ix.cache.Add(key, e)
		}
		return e, nil
	})
	if err != nil {
		trace.Point(ix.tracer, trace.ScopeFile, "map", "load", err.Error(), "path", key)
		return nil, err
	}
	return v.(*entry).m, nil
}

func (ix *Index) read(path string) (*entry, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, err
	}
	data, err := os.ReadFile(path) // #nosec G304 -- map paths derive from user sources
	if err != nil {
		return nil, err
	}

	span := trace.Begin(ix.tracer, trace.ScopeFile, "map", "load", 0)
	span.WithExtra("path", path)

	digest := sha256.Sum256(data)
	if ix.disk != nil {
		var cached Map
		if ok, derr := ix.disk.Get(digest, &cached); derr == nil && ok {
			span.WithExtra("cache", "disk").End(strconv.Itoa(cached.Len()))
			return &entry{m: &cached, stamp: stampOf(fi)}, nil
		}
	}

	m, err := Parse(data)
	if err != nil {
		span.End(err.Error())
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if ix.disk != nil {
		if perr := ix.disk.Put(digest, m); perr != nil {
			trace.Error(ix.tracer, "map", "disk.put", perr)
		}
	}
	span.End(strconv.Itoa(m.Len()))
	return &entry{m: m, stamp: stampOf(fi)}, nil
}

// MapForward loads the map if needed and resolves a 1-based source
// position. A missing map behaves like a lookup miss.
func (ix *Index) MapForward(mapPath string, line, col uint32) (Mapping, bool) {
	return ix.lookup(Forward, mapPath, line, col)
}

// MapBackward loads the map if needed and resolves a 1-based target
// position.
func (ix *Index) MapBackward(mapPath string, line, col uint32) (Mapping, bool) {
	return ix.lookup(Backward, mapPath, line, col)
}

func (ix *Index) lookup(dir Direction, mapPath string, line, col uint32) (Mapping, bool) {
	m, err := ix.Load(mapPath)
	if err != nil {
		return Mapping{}, false
	}
	hit, ok := m.Lookup(dir, line, col)
	if ix.tracer.Level().ShouldEmit(trace.KindPoint, trace.ScopeItem) {
		detail := "miss"
		if ok {
			detail = "hit"
		}
		trace.Point(ix.tracer, trace.ScopeItem, "map", dir.String(), detail,
			"query", source.Pos{Line: line, Col: col}.String(),
			"source", hit.Source.String(), "target", hit.Target.String())
	}
	return hit, ok
}

// Invalidate drops the given maps, or every map when called without
// arguments.
func (ix *Index) Invalidate(mapPaths ...string) {
	ix.gen.Add(1)
	if len(mapPaths) == 0 {
		ix.cache.Purge()
		return
	}
	for _, p := range mapPaths {
		ix.cache.Remove(source.Canonical(p))
	}
}

// Clear drops every cached map.
func (ix *Index) Clear() {
	ix.Invalidate()
}

// Cached reports whether mapPath is currently loaded.
func (ix *Index) Cached(mapPath string) bool {
	return ix.cache.Contains(source.Canonical(mapPath))
}

// Len returns the number of loaded maps.
func (ix *Index) Len() int {
	return ix.cache.Len()
}

// Fresh reports whether the cached copy of mapPath still matches the file
// on disk. Maps that are not cached, or whose file vanished, are not fresh.
func (ix *Index) Fresh(mapPath string) bool {
	key := source.Canonical(mapPath)
	e, ok := ix.cache.Peek(key)
	if !ok {
		return false
	}
	fi, err := os.Stat(key)
	if err != nil {
		return false
	}
	s := stampOf(fi)
	return s.size == e.stamp.size && s.mod.Equal(e.stamp.mod)
}

// Reload discards the cached copy of mapPath and loads it again.
func (ix *Index) Reload(mapPath string) (*Map, error) {
	ix.Invalidate(mapPath)
	return ix.Load(mapPath)
}
