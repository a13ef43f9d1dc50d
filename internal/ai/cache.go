package ai

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"sync"
)

// Cache holds completed responses up to a fixed capacity. Inserting into a full cache
// clears every entry first.
type Cache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]Response
}

func NewCache(capacity int) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{capacity: capacity, items: make(map[string]Response, capacity)}
}

// Get returns a copy of the cached response with Cached set.
func (c *Cache) Get(key string) (*Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.items[key]
	if !ok {
		return nil, false
	}
	r.Cached = true
	return &r, true
}

// Put stores resp under key and reports whether the cache was cleared to make room.
func (c *Cache) Put(key string, resp *Response) (cleared bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[key]; !exists && len(c.items) >= c.capacity {
		c.items = make(map[string]Response, c.capacity)
		cleared = true
	}
	r := *resp
	r.Cached = false
	c.items[key] = r
	return cleared
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// CacheKey is the SHA-256 of provider|model|temperature|max_tokens|mode|messages.
func CacheKey(provider string, req Request) string {
	temp := "default"
	if req.Temperature != nil {
		temp = strconv.FormatFloat(*req.Temperature, 'g', -1, 64)
	}
	mode := "chat"
	if req.Generate {
		mode = "generate"
	}
	msgs, _ := json.Marshal(req.Messages)
	h := sha256.New()
	h.Write([]byte(provider + "|" + req.Model + "|" + temp + "|" + strconv.Itoa(req.MaxTokens) + "|" + mode + "|"))
	h.Write(msgs)
	return hex.EncodeToString(h.Sum(nil))
}
