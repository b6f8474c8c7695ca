package arena

import (
	"sync"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/cespare/xxhash"
	"github.com/fsnotify/fsnotify"
)

// Cache is the cache arena: a fixed-memory key/value store backed by
// fastcache, keyed by an xxhash digest of the caller's key the way the
// teacher's own asset manager hashes asset names before storing them,
// generalized here from file assets to arbitrary byte keys. Unlike the
// request and response arenas it is not reset per request; entries live
// until fastcache evicts them to make room or they are explicitly
// invalidated.
type Cache struct {
	backing *fastcache.Cache

	mutex    sync.Mutex
	watcher  *fsnotify.Watcher
	watched  map[string]bool
	pathKeys map[string][][]byte
}

// NewCache builds a Cache with maxBytes of backing memory.
func NewCache(maxBytes int) *Cache {
	return &Cache{
		backing:  fastcache.New(maxBytes),
		watched:  map[string]bool{},
		pathKeys: map[string][][]byte{},
	}
}

func cacheKey(key []byte) []byte {
	h := xxhash.Sum64(key)
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(h >> (8 * uint(i)))
	}
	return b[:]
}

// Set stores value under key, the way the teacher's coffer stores a
// rendered asset's bytes under its checksum.
func (c *Cache) Set(key, value []byte) {
	c.backing.Set(cacheKey(key), value)
}

// Get retrieves the value stored under key, if any.
func (c *Cache) Get(key []byte) (value []byte, ok bool) {
	dst := c.backing.Get(nil, cacheKey(key))
	if dst == nil {
		return nil, false
	}
	return dst, true
}

// Del removes key from the cache.
func (c *Cache) Del(key []byte) {
	c.backing.Del(cacheKey(key))
}

// Reset clears the entire cache.
func (c *Cache) Reset() {
	c.backing.Reset()
}

// WatchInvalidate invalidates key whenever the file at path is written to
// or removed, the way the teacher's coffer invalidates a cached asset on
// an fsnotify event for its source file.
func (c *Cache) WatchInvalidate(path string, key []byte) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.watcher == nil {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return err
		}
		c.watcher = w
		go c.loop()
	}

	if !c.watched[path] {
		if err := c.watcher.Add(path); err != nil {
			return err
		}
		c.watched[path] = true
	}

	c.pathKeys[path] = append(c.pathKeys[path], append([]byte(nil), key...))

	return nil
}

func (c *Cache) loop() {
	for {
		select {
		case ev, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			c.mutex.Lock()
			keys := c.pathKeys[ev.Name]
			c.mutex.Unlock()

			for _, k := range keys {
				c.Del(k)
			}
		case _, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Close stops the cache's fsnotify watcher, if one was started.
func (c *Cache) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.watcher == nil {
		return nil
	}
	return c.watcher.Close()
}
