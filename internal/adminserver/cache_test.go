package adminserver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCache implements cache.Cache with just enough behavior to verify
// invalidation, mirroring the in-memory fakes used elsewhere in the pack's
// own tests rather than spinning up a real Redis.
type fakeCache struct {
	deleted []string
}

func (f *fakeCache) Get(ctx context.Context, key string, dest interface{}) error { return nil }
func (f *fakeCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return nil
}
func (f *fakeCache) Delete(ctx context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}
func (f *fakeCache) Exists(ctx context.Context, key string) (bool, error)    { return false, nil }
func (f *fakeCache) Invalidate(ctx context.Context, pattern string) error   { return nil }
func (f *fakeCache) GetMulti(ctx context.Context, keys []string) (map[string]interface{}, error) {
	return nil, nil
}
func (f *fakeCache) SetMulti(ctx context.Context, items map[string]interface{}, ttl time.Duration) error {
	return nil
}
func (f *fakeCache) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	return 0, nil
}
func (f *fakeCache) Decrement(ctx context.Context, key string, delta int64) (int64, error) {
	return 0, nil
}
func (f *fakeCache) Expire(ctx context.Context, key string, ttl time.Duration) error { return nil }
func (f *fakeCache) TTL(ctx context.Context, key string) (time.Duration, error)      { return 0, nil }
func (f *fakeCache) Flush(ctx context.Context) error                                { return nil }
func (f *fakeCache) Close() error                                                   { return nil }
func (f *fakeCache) Ping(ctx context.Context) error                                 { return nil }

func TestCacheAdapterInvalidateOrderDeletesOrderKey(t *testing.T) {
	fc := &fakeCache{}
	adapter := NewCacheAdapter(fc, "")

	adapter.InvalidateOrder(context.Background(), 5)

	require.Len(t, fc.deleted, 1)
	assert.Equal(t, "tm2pc:order:5", fc.deleted[0])
}

func TestCacheAdapterCustomKeyPrefix(t *testing.T) {
	fc := &fakeCache{}
	adapter := NewCacheAdapter(fc, "custom")

	assert.Equal(t, "custom:5", adapter.OrderKey(5))
}
