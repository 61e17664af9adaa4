package service

import (
	"context"
	"encoding/json"
	"errors"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	appErrors "github.com/noah-isme/basic-school-api/pkg/errors"
)

// memoryCache is an in-process CacheRepository used by service tests.
type memoryCache struct {
	items   map[string][]byte
	getErr  error
	setErr  error
	deleted []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: map[string][]byte{}}
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	if m.getErr != nil {
		return m.getErr
	}
	raw, ok := m.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.setErr != nil {
		return m.setErr
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.items[key] = raw
	return nil
}

func (m *memoryCache) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.items, k)
		m.deleted = append(m.deleted, k)
	}
	return nil
}

func (m *memoryCache) DeleteByPattern(ctx context.Context, pattern string) error {
	for k := range m.items {
		if ok, _ := path.Match(pattern, k); ok {
			delete(m.items, k)
			m.deleted = append(m.deleted, k)
		}
	}
	return nil
}

func TestCacheServiceRoundTrip(t *testing.T) {
	repo := newMemoryCache()
	svc := NewCacheService(repo, NewMetricsService(), time.Minute, zap.NewNop(), true)

	var out map[string]int
	hit, err := svc.Get(context.Background(), "k", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, svc.Set(context.Background(), "k", map[string]int{"a": 1}, 0))
	hit, err = svc.Get(context.Background(), "k", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, out["a"])

	require.NoError(t, svc.Set(context.Background(), beceSummaryKey("c1", 2024), 1, 0))
	require.NoError(t, svc.Set(context.Background(), beceSummaryKey("c2", 2024), 1, 0))
	require.NoError(t, svc.Invalidate(context.Background(), beceSummaryPattern("c1")))
	assert.NotContains(t, repo.items, "bece:summary:c1:2024")
	assert.Contains(t, repo.items, "bece:summary:c2:2024")

	require.NoError(t, svc.Delete(context.Background(), "k"))
	assert.NotContains(t, repo.items, "k")
}

func TestCacheServiceDisabledIsNoop(t *testing.T) {
	repo := newMemoryCache()
	svc := NewCacheService(repo, nil, 0, nil, false)

	require.NoError(t, svc.Set(context.Background(), "k", 1, 0))
	assert.Empty(t, repo.items)
	var v int
	hit, err := svc.Get(context.Background(), "k", &v)
	require.NoError(t, err)
	assert.False(t, hit)

	var nilSvc *CacheService
	assert.False(t, nilSvc.Enabled())
}

func TestCacheServiceLogsBackendFailures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	repo := newMemoryCache()
	repo.getErr = errors.New("connection refused")
	svc := NewCacheService(repo, nil, 0, zap.New(core), true)

	var v int
	hit, err := svc.Get(context.Background(), "k", &v)
	assert.Error(t, err)
	assert.False(t, hit)
	require.Equal(t, 1, logs.FilterMessage("cache get failed").Len())
}
