package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey_Deterministic(t *testing.T) {
	assert.Equal(t, Key("Save", "en", "de"), Key("Save", "en", "de"))
	assert.Equal(t, Key("Save", "", "de"), Key("Save", AutoLang, "de"))
	assert.NotEqual(t, Key("Save", "en", "de"), Key("Save", "en", "fr"))
	assert.NotEqual(t, Key("Save", "en", "de"), Key("Save", "fr", "de"))
	assert.NotEqual(t, Key("Save", "en", "de"), Key("save", "en", "de"))
}

func TestCache_GetPutClear(t *testing.T) {
	c := New()
	_, ok := c.Get("Save", "en", "de")
	assert.False(t, ok)

	c.Put("Save", "en", "de", "Speichern")
	v, ok := c.Get("Save", "en", "de")
	assert.True(t, ok)
	assert.Equal(t, "Speichern", v)

	_, ok = c.Get("Save", "en", "fr")
	assert.False(t, ok)

	assert.Equal(t, Stats{Entries: 1, Hits: 1, Misses: 2}, c.Stats())

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, Stats{}, c.Stats())
}

func TestCache_Concurrent(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			text := fmt.Sprintf("t%d", i%10)
			c.Put(text, "", "de", text+"!")
			c.Get(text, "", "de")
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 10, c.Len())
}
