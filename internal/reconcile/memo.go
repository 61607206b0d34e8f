package reconcile

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// laneMatch is the best contract for one invoice lane
type laneMatch struct {
	index      int // -1 when no usable contract exists
	similarity float64
}

// laneMemo remembers lane matches so repeated lanes in a batch are matched once.
// Entries are only valid for the contract table they were computed against.
type laneMemo struct {
	cache *gocache.Cache
}

func newLaneMemo(ttl time.Duration) *laneMemo {
	if ttl <= 0 {
		return &laneMemo{cache: gocache.New(gocache.NoExpiration, 0)}
	}
	return &laneMemo{cache: gocache.New(ttl, 2*ttl)}
}

func (m *laneMemo) get(key string) (laneMatch, bool) {
	v, ok := m.cache.Get(key)
	if !ok {
		return laneMatch{}, false
	}
	return v.(laneMatch), true
}

func (m *laneMemo) put(key string, match laneMatch) {
	m.cache.SetDefault(key, match)
}

func (m *laneMemo) len() int {
	return m.cache.ItemCount()
}
