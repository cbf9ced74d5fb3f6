package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/raiz-vertical-farms/ortus-app-sub000/internal/model"
)

// SnapshotCache keeps recent device snapshots in redis so the poll path does
// not hit postgres on every tick.
type SnapshotCache struct{ rdb *redis.Client }

func NewSnapshotCache(rdb *redis.Client) *SnapshotCache { return &SnapshotCache{rdb: rdb} }

func cacheKey(mac string) string { return "device:snapshot:" + mac }

func (c *SnapshotCache) Set(ctx context.Context, mac string, snapJSON []byte) error {
	return c.rdb.Set(ctx, cacheKey(mac), snapJSON, 24*time.Hour).Err()
}

// Get returns nil, nil on a cache miss.
func (c *SnapshotCache) Get(ctx context.Context, mac string) ([]byte, error) {
	b, err := c.rdb.Get(ctx, cacheKey(mac)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return b, err
}

func (c *SnapshotCache) Delete(ctx context.Context, mac string) error {
	return c.rdb.Del(ctx, cacheKey(mac)).Err()
}

// snapshotCache is the surface CachedSnapshots needs; it lets tests swap in a
// map-backed fake.
type snapshotCache interface {
	Get(ctx context.Context, mac string) ([]byte, error)
	Set(ctx context.Context, mac string, snapJSON []byte) error
	Delete(ctx context.Context, mac string) error
}

type snapshotReader interface {
	GetDeviceSnapshot(ctx context.Context, mac string) (model.Device, error)
}

// CachedSnapshots reads device snapshots through the cache with a DB
// fallback. Cache errors degrade to a direct read, never a failure.
type CachedSnapshots struct {
	Cache snapshotCache
	Repo  snapshotReader
}

func (c *CachedSnapshots) GetDeviceSnapshot(ctx context.Context, mac string) (model.Device, error) {
	if c.Cache != nil {
		if b, err := c.Cache.Get(ctx, mac); err == nil && b != nil {
			var dev model.Device
			if err := json.Unmarshal(b, &dev); err == nil {
				return dev, nil
			}
		}
	}
	dev, err := c.Repo.GetDeviceSnapshot(ctx, mac)
	if err != nil {
		return model.Device{}, err
	}
	if c.Cache != nil {
		if b, err := json.Marshal(dev); err == nil {
			_ = c.Cache.Set(ctx, mac, b)
		}
	}
	return dev, nil
}

// Invalidate drops the cached snapshot after a state-changing write so the
// next poll sees fresh data.
func (c *CachedSnapshots) Invalidate(ctx context.Context, mac string) {
	if c.Cache != nil {
		_ = c.Cache.Delete(ctx, mac)
	}
}
