package repository

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/arena-booking-api/internal/models"
	"github.com/noah-isme/arena-booking-api/pkg/config"
	appErrors "github.com/noah-isme/arena-booking-api/pkg/errors"
)

func newAcademicServer(t *testing.T, handler http.HandlerFunc) *AcademicRepository {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewAcademicRepository(config.AcademicConfig{BaseURL: srv.URL + "/", Timeout: time.Second}, nil, nil)
}

func TestAcademicRepositoryDisciplines(t *testing.T) {
	var gotAuth, gotQuery string
	repo := newAcademicServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/disciplinas/com-professores", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"disciplinas":[
			{"codigo_disciplina": 101, "disciplina": " MATEMATICA ", "professores": [{"codprof": 10, "nome": "JOAO SILVA", "email": "Joao@Escola.br"}]},
			{"codigo_disciplina": "FIS", "disciplina": "FISICA", "professores": []}
		]}`))
	})

	ctx := WithBearerToken(context.Background(), "portal-token")
	disciplines, err := repo.DisciplinesWithProfessors(ctx, "3", "3A")
	require.NoError(t, err)

	assert.Equal(t, "Bearer portal-token", gotAuth)
	assert.Equal(t, "serie=3&turma=3A", gotQuery)
	require.Len(t, disciplines, 2)
	assert.Equal(t, models.Discipline{
		Code:       "101",
		Name:       "MATEMATICA",
		Professors: []models.Professor{{Code: "10", Name: "JOAO SILVA", Email: "joao@escola.br"}},
	}, disciplines[0])
	assert.Equal(t, "FIS", disciplines[1].Code)
}

func TestAcademicRepositoryDisciplinesBareList(t *testing.T) {
	repo := newAcademicServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"codigo_disciplina":"MAT","disciplina":"MATEMATICA","professores":[]}]`))
	})

	disciplines, err := repo.DisciplinesWithProfessors(context.Background(), "3", "A")
	require.NoError(t, err)
	require.Len(t, disciplines, 1)
	assert.Equal(t, "MAT", disciplines[0].Code)
}

func TestAcademicRepositoryAvailability(t *testing.T) {
	repo := newAcademicServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/agendamentos/professor/10/disponibilidade-data/2025-06-10", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"aceita_agendamentos": true,
			"dia_semana": "Terça-feira",
			"professor_nome": "JOAO SILVA",
			"horarios_disponiveis": [
				{"horario_inicio": "14:00:00", "horario_fim": "15:00:00", "disponivel": true},
				{"horario_inicio": "16:00", "horario_fim": null},
				{"horario_inicio": "bad", "horario_fim": "17:00"}
			],
			"agendamentos_existentes": [{"id": 1}, {"id": 2}]
		}`))
	})

	date := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	availability, err := repo.ProfessorAvailability(context.Background(), "10", date)
	require.NoError(t, err)

	assert.True(t, availability.AcceptsBookings)
	assert.Equal(t, "Terça-feira", availability.WeekdayName)
	assert.Equal(t, 2, availability.ExistingBookingsCount)
	assert.Equal(t, []models.AvailabilityWindow{
		{Start: "14:00", End: "15:00", Available: true},
		{Start: "16:00", Available: true},
	}, availability.Windows)
}

func TestAcademicRepositoryErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		target *appErrors.Error
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, target: appErrors.ErrUnauthorized},
		{name: "not found", status: http.StatusNotFound, target: appErrors.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newAcademicServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"message":"nope"}`))
			})
			_, err := repo.ProfessorAvailability(context.Background(), "10", time.Now())
			require.Error(t, err)
			assert.True(t, appErrors.HasCode(err, tc.target))
		})
	}

	repo := newAcademicServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"database down"}`))
	})
	_, err := repo.DisciplinesWithProfessors(context.Background(), "3", "A")
	require.Error(t, err)
	assert.False(t, appErrors.HasCode(err, appErrors.ErrUnauthorized))
	assert.Contains(t, err.Error(), "database down")
}
