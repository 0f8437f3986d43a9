package ordering

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/adalundhe/varelim/core/network"
)

// Cache memoises resolved heuristic orders per network. Heuristics depend
// only on static structure and networks are immutable, so a resolved order
// stays valid for the network's lifetime. Explicit orders bypass the cache.
// Cache is safe for concurrent use.
type Cache struct {
	entries *lru.Cache[cacheKey, []string]
}

type cacheKey struct {
	network *network.Network
	name    string
}

// NewCache creates a cache holding up to size resolved orders.
func NewCache(size int) (*Cache, error) {
	entries, err := lru.New[cacheKey, []string](size)
	if err != nil {
		return nil, err
	}
	return &Cache{entries: entries}, nil
}

// Resolve returns o resolved against n, computing heuristic orders at most
// once per (network, heuristic name) while they stay cached.
func (c *Cache) Resolve(n *network.Network, o Order) []string {
	if !o.IsHeuristic() {
		return o.Resolve(n)
	}

	key := cacheKey{network: n, name: o.Name()}
	if cached, ok := c.entries.Get(key); ok {
		return append([]string(nil), cached...)
	}

	resolved := o.Resolve(n)
	c.entries.Add(key, append([]string(nil), resolved...))
	return resolved
}

// Len returns the number of cached orders.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Purge drops every cached order.
func (c *Cache) Purge() {
	c.entries.Purge()
}
