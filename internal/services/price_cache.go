package services

import (
	"sync"
	"time"
)

const DefaultPriceCacheTTL = 5 * time.Minute

type PriceEntry struct {
	ID        string `json:"id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Interval  string `json:"interval,omitempty"`
	Recurring bool   `json:"recurring"`
}

type PriceList struct {
	BasePackage   PriceEntry `json:"basePackage"`
	LanguageAddOn PriceEntry `json:"languageAddOn"`
	FetchedAt     time.Time  `json:"fetchedAt"`
}

// PriceCache holds the current price list for a fixed TTL. It is keyed by nothing: every
// caller sees the same prices.
type PriceCache struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	value     PriceList
	expiresAt time.Time
	filled    bool
}

func NewPriceCache(ttl time.Duration, now func() time.Time) *PriceCache {
	if ttl <= 0 {
		ttl = DefaultPriceCacheTTL
	}
	if now == nil {
		now = time.Now
	}
	return &PriceCache{ttl: ttl, now: now}
}

func (cache *PriceCache) Get() (PriceList, bool) {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	if !cache.filled || !cache.now().Before(cache.expiresAt) {
		return PriceList{}, false
	}
	return cache.value, true
}

func (cache *PriceCache) Set(prices PriceList) {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	cache.value = prices
	cache.expiresAt = cache.now().Add(cache.ttl)
	cache.filled = true
}

func (cache *PriceCache) Invalidate() {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	cache.value = PriceList{}
	cache.expiresAt = time.Time{}
	cache.filled = false
}
