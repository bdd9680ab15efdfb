package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/arena-booking-api/internal/models"
	appErrors "github.com/noah-isme/arena-booking-api/pkg/errors"
)

type disciplineRepoStub struct {
	records []models.Discipline
	err     error
	calls   int
}

func (s *disciplineRepoStub) DisciplinesWithProfessors(ctx context.Context, grade, class string) ([]models.Discipline, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]models.Discipline, len(s.records))
	copy(out, s.records)
	return out, nil
}

type memoryCacheStub struct {
	values map[string][]models.Discipline
}

func (m *memoryCacheStub) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	v, ok := m.values[key]
	if !ok {
		return false, nil
	}
	*(dest.(*[]models.Discipline)) = v
	return true, nil
}

func (m *memoryCacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.values == nil {
		m.values = map[string][]models.Discipline{}
	}
	m.values[key] = value.([]models.Discipline)
	return nil
}

func (m *memoryCacheStub) Invalidate(ctx context.Context, pattern string) error {
	delete(m.values, pattern)
	return nil
}

func TestDisciplineServiceLoadKeepsFirstDuplicate(t *testing.T) {
	repo := &disciplineRepoStub{records: []models.Discipline{
		{Code: "MAT", Name: "MATEMATICA", Professors: []models.Professor{{Code: "10", Name: "JOAO SILVA"}}},
		{Code: "FIS", Name: "FISICA", Professors: []models.Professor{{Code: "20", Name: "ANA"}}},
		{Code: "MAT", Name: "MATEMATICA", Professors: []models.Professor{{Code: "11", Name: "CARLOS"}, {Code: "12", Name: "BEATRIZ"}}},
	}}
	svc := NewDisciplineService(repo, nil, time.Minute, nil)

	idx, err := svc.Load(context.Background(), "3", "A")
	require.NoError(t, err)
	require.Equal(t, 2, idx.Len())

	professors := idx.ProfessorsFor("MAT")
	require.Len(t, professors, 1)
	assert.Equal(t, "10", professors[0].Code)
	assert.Equal(t, "Joao Silva", professors[0].Name)

	disciplines := idx.Disciplines()
	assert.Equal(t, "Matemática", disciplines[0].Name)
	assert.Equal(t, "Física", disciplines[1].Name)
}

func TestDisciplineServiceLoadMissingContext(t *testing.T) {
	repo := &disciplineRepoStub{}
	svc := NewDisciplineService(repo, nil, time.Minute, nil)

	idx, err := svc.Load(context.Background(), "", "A")
	require.NoError(t, err)
	assert.Zero(t, idx.Len())
	assert.Empty(t, idx.ProfessorsFor("MAT"))
	assert.Zero(t, repo.calls)
}

func TestDisciplineServiceLoadWrapsUpstreamFailure(t *testing.T) {
	svc := NewDisciplineService(&disciplineRepoStub{err: errors.New("connection refused")}, nil, time.Minute, nil)

	_, err := svc.Load(context.Background(), "3", "A")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrUpstream))
}

func TestDisciplineServiceLoadUsesCache(t *testing.T) {
	repo := &disciplineRepoStub{records: []models.Discipline{{Code: "MAT", Name: "MATEMATICA"}}}
	cache := &memoryCacheStub{}
	svc := NewDisciplineService(repo, cache, time.Minute, nil)

	_, err := svc.Load(context.Background(), "3", "A")
	require.NoError(t, err)
	idx, err := svc.Load(context.Background(), "3", "a")
	require.NoError(t, err)

	assert.Equal(t, 1, repo.calls)
	d, ok := idx.FindByName("matemática")
	require.True(t, ok)
	assert.Equal(t, "MAT", d.Code)
}

func TestDisciplineServiceInvalidateForcesReload(t *testing.T) {
	repo := &disciplineRepoStub{records: []models.Discipline{{Code: "MAT", Name: "MATEMATICA"}}}
	cache := &memoryCacheStub{}
	svc := NewDisciplineService(repo, cache, time.Minute, nil)
	ctx := context.Background()

	_, err := svc.Load(ctx, "3", "A")
	require.NoError(t, err)
	require.NoError(t, svc.Invalidate(ctx, "3", "A"))
	_, err = svc.Load(ctx, "3", "A")
	require.NoError(t, err)

	assert.Equal(t, 2, repo.calls)
}
