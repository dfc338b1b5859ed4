package narration

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sonavox/voice-client/internal/audio"
)

// Cache stores decoded narration clips keyed by chunk ID.
type Cache interface {
	Get(id int) (*audio.DecodedAudio, bool)
	Add(id int, buf *audio.DecodedAudio)
}

// LRUCache is a bounded Cache that evicts the least recently used clip.
type LRUCache struct {
	inner *lru.Cache[int, *audio.DecodedAudio]
}

// NewLRUCache creates a cache holding at most size decoded clips.
func NewLRUCache(size int) (*LRUCache, error) {
	inner, err := lru.New[int, *audio.DecodedAudio](size)
	if err != nil {
		return nil, err
	}
	return &LRUCache{inner: inner}, nil
}

func (c *LRUCache) Get(id int) (*audio.DecodedAudio, bool) {
	return c.inner.Get(id)
}

func (c *LRUCache) Add(id int, buf *audio.DecodedAudio) {
	c.inner.Add(id, buf)
}

// Len returns the number of cached clips.
func (c *LRUCache) Len() int {
	return c.inner.Len()
}
