package subaru

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchCacheKeysAreDistinct(t *testing.T) {
	c := NewSearchCache()
	specs := []PackageSpec{spec("bash", "5.2")}

	c.Store(SearchKey{Term: "bash"}, specs)

	_, ok := c.Lookup(SearchKey{Term: "bash", ExactMatch: true})
	assert.False(t, ok)
	_, ok = c.Lookup(SearchKey{Term: "bash", InDescription: true})
	assert.False(t, ok)

	got, ok := c.Lookup(SearchKey{Term: "bash"})
	require.True(t, ok)
	assert.Equal(t, specs, got)
}

func TestSearchCacheTermIsCaseSensitive(t *testing.T) {
	c := NewSearchCache()
	c.Store(SearchKey{Term: "bash", InDescription: true}, nil)

	// Even in description mode the key compares literally.
	_, ok := c.Lookup(SearchKey{Term: "Bash", InDescription: true})
	assert.False(t, ok)
}

func TestSearchCacheEmptyResultIsAHit(t *testing.T) {
	c := NewSearchCache()
	c.Store(SearchKey{Term: "nothing"}, nil)

	got, ok := c.Lookup(SearchKey{Term: "nothing"})
	assert.True(t, ok)
	assert.Empty(t, got)
}

func TestSearchCacheClear(t *testing.T) {
	c := NewSearchCache()
	c.Store(SearchKey{Term: "a"}, nil)
	c.Store(SearchKey{Term: "b"}, nil)
	require.Equal(t, 2, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
	_, ok := c.Lookup(SearchKey{Term: "a"})
	assert.False(t, ok)

	// The cache keeps working after a clear.
	c.Store(SearchKey{Term: "a"}, nil)
	_, ok = c.Lookup(SearchKey{Term: "a"})
	assert.True(t, ok)
}
