package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/city-synergy/internal/cityname"
)

func TestMemory_GetSet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)

	_, ok, err := m.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, "k", "v"))
	v, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
	assert.NoError(t, m.Close())
}

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory(time.Minute)
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "k", "v"))
	now = now.Add(59 * time.Second)
	_, ok, _ := m.Get(ctx, "k")
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok, _ = m.Get(ctx, "k")
	assert.False(t, ok)
	assert.Zero(t, m.Len())
}

func TestNewRedis_BadURL(t *testing.T) {
	_, err := NewRedis(context.Background(), "not-a-url", time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache: parse redis url")
}

func newResolver(t *testing.T, c Cache) *Resolver {
	t.Helper()
	r, err := cityname.NewDefault()
	require.NoError(t, err)
	return NewResolver(c, r, "synergy:city:")
}

func TestResolver_MissThenHit(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory(time.Hour)
	r := newResolver(t, mem)

	res, hit := r.Resolve(ctx, " 서울특별시 ")
	assert.False(t, hit)
	assert.Equal(t, "Seoul", res.City)
	assert.NotEmpty(t, res.Steps)
	assert.Equal(t, 1, mem.Len())

	v, ok, err := mem.Get(ctx, "synergy:city:서울특별시")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, v, `"steps"`)

	first := res
	res, hit = r.Resolve(ctx, "서울특별시")
	assert.True(t, hit)
	assert.Equal(t, first.Steps, res.Steps)
	assert.Equal(t, "Seoul", res.City)
	assert.Equal(t, cityname.MethodDictionary, res.Method)
	assert.Equal(t, "서울특별시", res.Input)
}

func TestResolver_UnresolvedIsCached(t *testing.T) {
	ctx := context.Background()
	r := newResolver(t, NewMemory(0))

	res, _ := r.Resolve(ctx, "12345")
	assert.False(t, res.Resolved())
	res, hit := r.Resolve(ctx, "12345")
	assert.True(t, hit)
	assert.False(t, res.Resolved())
}

type failingCache struct{}

func (failingCache) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("connection reset")
}
func (failingCache) Set(context.Context, string, string) error { return errors.New("connection reset") }
func (failingCache) Close() error                               { return nil }

func TestResolver_CacheFailureFallsThrough(t *testing.T) {
	r := newResolver(t, failingCache{})
	res, hit := r.Resolve(context.Background(), "tokyo")
	assert.False(t, hit)
	assert.Equal(t, "Tokyo", res.City)
}

func TestResolver_BadEntryRecomputed(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory(0)
	require.NoError(t, mem.Set(ctx, "synergy:city:tokyo", "{broken"))

	res, hit := newResolver(t, mem).Resolve(ctx, "tokyo")
	assert.False(t, hit)
	assert.Equal(t, "Tokyo", res.City)

	v, _, _ := mem.Get(ctx, "synergy:city:tokyo")
	assert.Contains(t, v, `"city":"Tokyo"`)
}
