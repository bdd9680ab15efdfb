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

	"github.com/noah-isme/arena-booking-api/internal/models"
	appErrors "github.com/noah-isme/arena-booking-api/pkg/errors"
)

type cacheRepoStub struct {
	values  map[string][]byte
	ttls    map[string]time.Duration
	getErr  error
	deleted []string
}

func newCacheRepoStub() *cacheRepoStub {
	return &cacheRepoStub{values: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (s *cacheRepoStub) Get(ctx context.Context, key string, dest interface{}) error {
	if s.getErr != nil {
		return s.getErr
	}
	raw, ok := s.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (s *cacheRepoStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.values[key] = raw
	s.ttls[key] = ttl
	return nil
}

func (s *cacheRepoStub) DeleteByPattern(ctx context.Context, pattern string) error {
	for key := range s.values {
		if ok, _ := path.Match(pattern, key); ok {
			delete(s.values, key)
			s.deleted = append(s.deleted, key)
		}
	}
	return nil
}

func TestCacheServiceRoundTripUsesNamespace(t *testing.T) {
	repo := newCacheRepoStub()
	metrics := NewMetricsService()
	svc := NewCacheService(repo, metrics, 0, "arena", nil, true)
	ctx := context.Background()

	var miss []models.Discipline
	hit, err := svc.Get(ctx, "disciplines:3:a", &miss)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, svc.Set(ctx, "disciplines:3:a", []models.Discipline{{Code: "MAT", Name: "Matemática"}}, 0))
	assert.Equal(t, 30*time.Minute, repo.ttls["arena:disciplines:3:a"])

	var got []models.Discipline
	hit, err = svc.Get(ctx, "disciplines:3:a", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	require.Len(t, got, 1)
	assert.Equal(t, "Matemática", got[0].Name)
	assert.InDelta(t, 0.5, metrics.Snapshot().CacheHitRatio, 0.0001)

	require.NoError(t, svc.Invalidate(ctx, "disciplines:*"))
	assert.Equal(t, []string{"arena:disciplines:3:a"}, repo.deleted)
}

func TestCacheServiceDisabledSkipsRepository(t *testing.T) {
	repo := newCacheRepoStub()
	svc := NewCacheService(repo, nil, time.Minute, "", nil, false)

	require.NoError(t, svc.Set(context.Background(), "k", "v", 0))
	assert.Empty(t, repo.values)
	hit, err := svc.Get(context.Background(), "k", new(string))
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheServiceBackendFailure(t *testing.T) {
	repo := newCacheRepoStub()
	repo.getErr = errors.New("connection refused")
	svc := NewCacheService(repo, nil, time.Minute, "", nil, true)

	hit, err := svc.Get(context.Background(), "k", new(string))
	assert.Error(t, err)
	assert.False(t, hit)
}
