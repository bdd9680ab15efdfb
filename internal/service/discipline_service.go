package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/arena-booking-api/internal/models"
	appErrors "github.com/noah-isme/arena-booking-api/pkg/errors"
)

type disciplineRepository interface {
	DisciplinesWithProfessors(ctx context.Context, grade, class string) ([]models.Discipline, error)
}

type disciplineCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
}

// DisciplineProfessorIndex maps discipline codes to their professors, in first-seen order.
type DisciplineProfessorIndex struct {
	order  []string
	byCode map[string]models.Discipline
}

// NewDisciplineProfessorIndex indexes records by code. When a code repeats, the first record wins.
func NewDisciplineProfessorIndex(records []models.Discipline) *DisciplineProfessorIndex {
	idx := &DisciplineProfessorIndex{byCode: make(map[string]models.Discipline, len(records))}
	for _, record := range records {
		code := strings.TrimSpace(record.Code)
		if code == "" {
			continue
		}
		if _, seen := idx.byCode[code]; seen {
			continue
		}
		record.Code = code
		idx.order = append(idx.order, code)
		idx.byCode[code] = record
	}
	return idx
}

// Len returns the number of disciplines.
func (i *DisciplineProfessorIndex) Len() int {
	if i == nil {
		return 0
	}
	return len(i.order)
}

// Disciplines returns the indexed disciplines in load order.
func (i *DisciplineProfessorIndex) Disciplines() []models.Discipline {
	if i == nil {
		return []models.Discipline{}
	}
	out := make([]models.Discipline, 0, len(i.order))
	for _, code := range i.order {
		out = append(out, i.byCode[code])
	}
	return out
}

// Get looks up a discipline by code.
func (i *DisciplineProfessorIndex) Get(code string) (models.Discipline, bool) {
	if i == nil {
		return models.Discipline{}, false
	}
	d, ok := i.byCode[code]
	return d, ok
}

// ProfessorsFor returns the professors assigned to the discipline, or an empty list for unknown codes.
func (i *DisciplineProfessorIndex) ProfessorsFor(code string) []models.Professor {
	d, ok := i.Get(code)
	if !ok {
		return []models.Professor{}
	}
	out := make([]models.Professor, len(d.Professors))
	copy(out, d.Professors)
	return out
}

// FindByName resolves a discipline from its display name, case-insensitively.
func (i *DisciplineProfessorIndex) FindByName(name string) (models.Discipline, bool) {
	if i == nil {
		return models.Discipline{}, false
	}
	for _, code := range i.order {
		if sameName(i.byCode[code].Name, name) {
			return i.byCode[code], true
		}
	}
	return models.Discipline{}, false
}

// Professor looks up a professor of the discipline by code.
func (i *DisciplineProfessorIndex) Professor(disciplineCode, professorCode string) (models.Professor, bool) {
	for _, p := range i.ProfessorsFor(disciplineCode) {
		if p.Code == professorCode {
			return p, true
		}
	}
	return models.Professor{}, false
}

// DisciplineService loads the discipline index of a class from the academic records.
type DisciplineService struct {
	repo   disciplineRepository
	cache  disciplineCache
	ttl    time.Duration
	logger *zap.Logger
}

// NewDisciplineService constructs the loader. cache may be nil.
func NewDisciplineService(repo disciplineRepository, cache disciplineCache, ttl time.Duration, logger *zap.Logger) *DisciplineService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DisciplineService{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

// Load fetches disciplines with their professors for grade and class. Missing grade
// or class yields an empty index without contacting the academic service.
func (s *DisciplineService) Load(ctx context.Context, grade, class string) (*DisciplineProfessorIndex, error) {
	grade, class = strings.TrimSpace(grade), strings.TrimSpace(class)
	if grade == "" || class == "" {
		return NewDisciplineProfessorIndex(nil), nil
	}

	key := disciplineCacheKey(grade, class)
	if s.cache != nil {
		var cached []models.Discipline
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return NewDisciplineProfessorIndex(cached), nil
		}
	}

	records, err := s.repo.DisciplinesWithProfessors(ctx, grade, class)
	if err != nil {
		s.logger.Warn("load disciplines failed", zap.String("grade", grade), zap.String("class", class), zap.Error(err))
		if appErrors.HasCode(err, appErrors.ErrUnauthorized) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to load disciplines")
	}

	for i := range records {
		records[i].Name = FormatDisciplineName(records[i].Name)
		for j := range records[i].Professors {
			records[i].Professors[j].Name = FormatProfessorName(records[i].Professors[j].Name)
		}
	}
	idx := NewDisciplineProfessorIndex(records)

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, idx.Disciplines(), s.ttl); err != nil {
			s.logger.Debug("cache disciplines failed", zap.String("key", key), zap.Error(err))
		}
	}
	return idx, nil
}

// Invalidate drops the cached index of a class so the next Load reads the academic service.
func (s *DisciplineService) Invalidate(ctx context.Context, grade, class string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx, disciplineCacheKey(strings.TrimSpace(grade), strings.TrimSpace(class)))
}

func disciplineCacheKey(grade, class string) string {
	return fmt.Sprintf("disciplines:%s:%s", strings.ToLower(grade), strings.ToLower(class))
}
