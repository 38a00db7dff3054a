package sourcemap

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nubridge/internal/errs"
)

const sampleMap = `{"version":1,"file":"main.rs","sources":["main.nu"],"mappings":[
	{"nu_line":1,"nu_column":1,"rs_line":2,"rs_column":1},
	{"nu_line":3,"nu_column":5,"rs_line":5,"rs_column":9},
	{"nu_line":6,"nu_column":1,"rs_line":9,"rs_column":1}
]}`

func writeMap(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func newIndex(t *testing.T, opts Options) *Index {
	t.Helper()
	ix, err := NewIndex(opts)
	require.NoError(t, err)
	return ix
}

func TestIndexLoadIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	p := writeMap(t, dir, "main.rs.map", sampleMap)
	ix := newIndex(t, Options{})

	m1, err := ix.Load(p)
	require.NoError(t, err)
	m2, err := ix.Load(filepath.Join(dir, ".", "main.rs.map"))
	require.NoError(t, err)
	assert.Same(t, m1, m2)
	assert.Equal(t, 1, ix.Len())
}

func TestIndexLoadMissing(t *testing.T) {
	ix := newIndex(t, Options{})
	_, err := ix.Load(filepath.Join(t.TempDir(), "nope.rs.map"))
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, err, errs.ErrMappingUnavailable)

	_, ok := ix.MapBackward(filepath.Join(t.TempDir(), "nope.rs.map"), 3, 1)
	assert.False(t, ok)
}

func TestIndexLookupsLoadOnDemand(t *testing.T) {
	p := writeMap(t, t.TempDir(), "main.rs.map", sampleMap)
	ix := newIndex(t, Options{})

	fwd, ok := ix.MapForward(p, 3, 5)
	require.True(t, ok)
	assert.Equal(t, uint32(5), fwd.Target.Line)
	assert.True(t, ix.Cached(p))

	back, ok := ix.MapBackward(p, 7, 1)
	require.True(t, ok)
	assert.Equal(t, uint32(3), back.Source.Line)

	_, ok = ix.MapBackward(p, 1, 1)
	assert.False(t, ok)
}

func TestIndexInvalidate(t *testing.T) {
	dir := t.TempDir()
	a := writeMap(t, dir, "a.rs.map", sampleMap)
	b := writeMap(t, dir, "b.rs.map", sampleMap)
	ix := newIndex(t, Options{})

	_, err := ix.Load(a)
	require.NoError(t, err)
	_, err = ix.Load(b)
	require.NoError(t, err)

	ix.Invalidate(a)
	assert.False(t, ix.Cached(a))
	assert.True(t, ix.Cached(b))

	ix.Clear()
	assert.Equal(t, 0, ix.Len())
}

func TestIndexServesStaleUntilReload(t *testing.T) {
	p := writeMap(t, t.TempDir(), "main.rs.map", sampleMap)
	ix := newIndex(t, Options{})

	_, err := ix.Load(p)
	require.NoError(t, err)
	assert.True(t, ix.Fresh(p))

	updated := `{"mappings":[{"nu_line":40,"rs_line":2}]}`
	require.NoError(t, os.WriteFile(p, []byte(updated), 0o600))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(p, future, future))

	// the cached copy is kept until someone refreshes it
	got, ok := ix.MapBackward(p, 2, 1)
	require.True(t, ok)
	assert.Equal(t, uint32(1), got.Source.Line)
	assert.False(t, ix.Fresh(p))

	m, err := ix.Reload(p)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())
	got, ok = ix.MapBackward(p, 2, 1)
	require.True(t, ok)
	assert.Equal(t, uint32(40), got.Source.Line)
	assert.True(t, ix.Fresh(p))
}

func TestIndexConcurrentLoads(t *testing.T) {
	p := writeMap(t, t.TempDir(), "main.rs.map", sampleMap)
	ix := newIndex(t, Options{})

	var wg sync.WaitGroup
	maps := make([]*Map, 16)
	for i := range maps {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := ix.Load(p)
			assert.NoError(t, err)
			maps[i] = m
		}(i)
	}
	wg.Wait()
	for _, m := range maps {
		require.NotNil(t, m)
		assert.Equal(t, 3, m.Len())
	}
}

func TestIndexCapacityEvicts(t *testing.T) {
	dir := t.TempDir()
	ix := newIndex(t, Options{Capacity: 1})
	a := writeMap(t, dir, "a.rs.map", sampleMap)
	b := writeMap(t, dir, "b.rs.map", sampleMap)

	_, err := ix.Load(a)
	require.NoError(t, err)
	_, err = ix.Load(b)
	require.NoError(t, err)
	assert.False(t, ix.Cached(a))
	assert.True(t, ix.Cached(b))
}

func TestIndexUsesDiskCache(t *testing.T) {
	dir := t.TempDir()
	disk, err := OpenDiskCache(filepath.Join(dir, "cache"), "nubridge")
	require.NoError(t, err)
	p := writeMap(t, dir, "main.rs.map", sampleMap)

	first := newIndex(t, Options{Disk: disk})
	m1, err := first.Load(p)
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(disk.Dir(), "maps"))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	second := newIndex(t, Options{Disk: disk})
	m2, err := second.Load(p)
	require.NoError(t, err)
	assert.Equal(t, m1.Mappings, m2.Mappings)
	assert.Equal(t, m1.Sources, m2.Sources)

	require.NoError(t, disk.DropAll())
	_, err = os.Stat(filepath.Join(disk.Dir(), "maps"))
	assert.True(t, os.IsNotExist(err))
}
