package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"pricememory/internal/core"
	"pricememory/internal/events"
)

// Photo is a decoded invoice image ready to serve.
type Photo struct {
	Data     []byte
	MimeType string
	Name     string
	ETag     string
}

// PhotoLoader fetches a purchase by id.
type PhotoLoader func(ctx context.Context, id string) (core.Purchase, error)

// PhotoCache keeps decoded invoice images so the detail view does not
// decode the data URL on every request. Concurrent misses for the same
// id share one load. Each delete bumps the id's generation; a load begun
// under an older generation is neither shared with later callers nor
// cached.
type PhotoCache struct {
	lru   *LRUCache[Photo]
	load  PhotoLoader
	group singleflight.Group

	mu   sync.Mutex
	gens map[string]uint64
}

func NewPhotoCache(size int, ttl time.Duration, load PhotoLoader) *PhotoCache {
	return &PhotoCache{
		lru:  NewLRUCache[Photo](size, ttl),
		load: load,
		gens: make(map[string]uint64),
	}
}

func (c *PhotoCache) generation(id string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[id]
}

func (c *PhotoCache) setIfCurrent(id string, gen uint64, photo Photo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[id] == gen {
		c.lru.Set(id, photo)
	}
}

// Get returns the photo of purchase id. ok is false when the purchase
// has no photo.
func (c *PhotoCache) Get(ctx context.Context, id string) (Photo, bool, error) {
	if p, ok := c.lru.Get(id); ok {
		return p, true, nil
	}

	gen := c.generation(id)
	key := id + "#" + strconv.FormatUint(gen, 10)
	// The load is shared, so it must not end with the first caller.
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(key, func() (any, error) {
		purchase, err := c.load(loadCtx, id)
		if err != nil {
			return nil, err
		}
		if purchase.InvoicePhoto == nil {
			return (*Photo)(nil), nil
		}
		photo, err := DecodePhoto(*purchase.InvoicePhoto)
		if err != nil {
			return nil, err
		}
		c.setIfCurrent(id, gen, photo)
		return &photo, nil
	})
	if err != nil {
		return Photo{}, false, err
	}
	photo := v.(*Photo)
	if photo == nil {
		return Photo{}, false, nil
	}
	return *photo, true, nil
}

// Observe drops the cached photo of a deleted purchase. Register it with
// events.Broker.Observe.
func (c *PhotoCache) Observe(evt events.Event) {
	if evt.Type != events.PurchaseDeleted {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[evt.PurchaseID]++
	c.lru.Delete(evt.PurchaseID)
}

func (c *PhotoCache) CleanExpired() int {
	return c.lru.CleanExpired()
}

func (c *PhotoCache) Stats() Stats {
	return c.lru.Stats()
}

// DecodePhoto turns a stored data URL into servable bytes with a content
// hash as ETag.
func DecodePhoto(ph core.InvoicePhoto) (Photo, error) {
	data, mimeType, err := ph.Decode()
	if err != nil {
		return Photo{}, err
	}
	sum := sha256.Sum256(data)
	return Photo{
		Data:     data,
		MimeType: mimeType,
		Name:     ph.Name,
		ETag:     `"` + hex.EncodeToString(sum[:8]) + `"`,
	}, nil
}
