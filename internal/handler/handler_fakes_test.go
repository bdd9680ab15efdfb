package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/noah-isme/arena-booking-api/internal/middleware"
	"github.com/noah-isme/arena-booking-api/internal/models"
	"github.com/noah-isme/arena-booking-api/internal/repository"
	"github.com/noah-isme/arena-booking-api/internal/service"
	appErrors "github.com/noah-isme/arena-booking-api/pkg/errors"
	"github.com/noah-isme/arena-booking-api/pkg/secure"
)

type calendarBackendFake struct {
	mu      sync.Mutex
	seq     int
	events  map[string]models.Event
	inserts int
}

func (f *calendarBackendFake) ListEvents(ctx context.Context, token *oauth2.Token, query models.EventQuery) ([]models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Event{}
	for _, e := range f.events {
		if !e.Start.Before(query.TimeMin) && e.Start.Before(query.TimeMax) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (f *calendarBackendFake) InsertEvent(ctx context.Context, token *oauth2.Token, input models.EventInput) (*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.inserts++
	event := models.Event{ID: fmt.Sprintf("evt-%d", f.seq), Title: input.Title, Description: input.Description, Start: input.Start, End: input.End, Discipline: input.Discipline, Professor: input.Professor}
	f.events[event.ID] = event
	return &event, nil
}

func (f *calendarBackendFake) UpdateEvent(ctx context.Context, token *oauth2.Token, id string, input models.EventInput) (*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.events[id]; !ok {
		return nil, appErrors.ErrNotFound
	}
	event := models.Event{ID: id, Title: input.Title, Start: input.Start, End: input.End, Discipline: input.Discipline, Professor: input.Professor}
	f.events[id] = event
	return &event, nil
}

func (f *calendarBackendFake) DeleteEvent(ctx context.Context, token *oauth2.Token, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.events[id]; !ok {
		return appErrors.ErrNotFound
	}
	delete(f.events, id)
	return nil
}

func (f *calendarBackendFake) UserInfo(ctx context.Context, token *oauth2.Token) (*models.CalendarIdentity, error) {
	return &models.CalendarIdentity{Name: "Maria Souza", Email: "maria@example.com"}, nil
}

func (f *calendarBackendFake) Revoke(ctx context.Context, token *oauth2.Token) error {
	return nil
}

type authorityFake struct {
	expiry time.Time
}

func (a *authorityFake) AuthCodeURL(state string) string {
	return "https://accounts.example.com/o/oauth2/auth?state=" + state
}

func (a *authorityFake) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if code != "good-code" {
		return nil, appErrors.Clone(appErrors.ErrCalendarAuth, "authorization code rejected")
	}
	return &oauth2.Token{AccessToken: "access", RefreshToken: "refresh", Expiry: a.expiry}, nil
}

func (a *authorityFake) Refresh(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error) {
	return token, nil
}

type schedulerFake struct{}

func (schedulerFake) Schedule(name string, interval time.Duration, task func()) (func(), error) {
	return func() {}, nil
}

type availabilityRepoFake struct{}

func (availabilityRepoFake) ProfessorAvailability(ctx context.Context, professorID string, date time.Time) (*models.Availability, error) {
	if professorID != "10" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "professor not found")
	}
	return &models.Availability{
		AcceptsBookings: true,
		WeekdayName:     "segunda-feira",
		ProfessorName:   "João Silva",
		Windows:         []models.AvailabilityWindow{{Start: "14:00", End: "16:00", Available: true}},
	}, nil
}

type disciplineLoaderFake struct {
	invalidated int
}

func (d *disciplineLoaderFake) Load(ctx context.Context, grade, class string) (*service.DisciplineProfessorIndex, error) {
	return service.NewDisciplineProfessorIndex([]models.Discipline{
		{Code: "MAT", Name: "Matemática", Professors: []models.Professor{{Code: "10", Name: "João Silva"}}},
		{Code: "FIS", Name: "Física", Professors: []models.Professor{{Code: "20", Name: "Ana Lima"}, {Code: "21", Name: "Carlos Dias"}}},
	}), nil
}

func (d *disciplineLoaderFake) Invalidate(ctx context.Context, grade, class string) error {
	d.invalidated++
	return nil
}

type apiFixture struct {
	t           *testing.T
	router      *gin.Engine
	backend     *calendarBackendFake
	disciplines *disciplineLoaderFake
	registry    *service.SessionRegistry
}

type envelope struct {
	Data  json.RawMessage  `json:"data"`
	Error *appErrors.Error `json:"error"`
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	now := time.Date(2025, 6, 9, 9, 0, 0, 0, loc)
	clock := func() time.Time { return now }

	sealer, err := secure.NewSealer("test-secret", "calendar-credentials")
	require.NoError(t, err)

	f := &apiFixture{
		t:           t,
		backend:     &calendarBackendFake{events: map[string]models.Event{}},
		disciplines: &disciplineLoaderFake{},
	}
	resolver := service.NewAvailabilityResolver(availabilityRepoFake{}, 30*time.Minute, loc, nil)
	f.registry = service.NewSessionRegistry(service.SessionDeps{
		Backend:     f.backend,
		Authority:   &authorityFake{expiry: now.Add(time.Hour)},
		Store:       repository.NewMemoryCredentialStore(sealer),
		Scheduler:   schedulerFake{},
		Resolver:    resolver,
		Disciplines: f.disciplines,
		Slots:       service.NewTimeSlotGenerator(service.SlotConfig{OpenHour: 7, CloseHour: 19, Step: 30 * time.Minute}, loc, clock),
		Now:         clock,
	}, service.GatewayConfig{Location: loc, TimeZone: "America/Sao_Paulo", Marker: "ARENA"}, service.OrchestratorConfig{})

	bookings := NewBookingHandler(f.registry, service.NewExportService(nil, nil, "ARENA", loc, clock, nil), resolver, f.disciplines)
	calendar := NewCalendarHandler(f.registry)
	calendar.now = clock

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if id := c.GetHeader("X-Student"); id != "" {
			c.Set(middleware.ContextUserKey, &models.StudentClaims{UserID: id, Grade: "3", Class: "A"})
		}
	})
	api := r.Group("/api/v1")
	cal := api.Group("/calendar")
	cal.GET("/auth-url", calendar.AuthURL)
	cal.POST("/connect", calendar.Connect)
	cal.POST("/disconnect", calendar.Disconnect)
	cal.GET("/status", calendar.Status)
	b := api.Group("/bookings")
	b.GET("/view", bookings.View)
	b.PUT("/filters", bookings.UpdateFilters)
	b.GET("/disciplines", bookings.Disciplines)
	b.GET("/availability", bookings.Availability)
	b.POST("/slots/:time/select", bookings.SelectSlot)
	b.POST("/new", bookings.NewBooking)
	b.POST("/events/:id/edit", bookings.EditEvent)
	b.PATCH("/form", bookings.UpdateForm)
	b.POST("/form/save", bookings.SaveForm)
	b.POST("/form/cancel", bookings.CancelForm)
	b.DELETE("/events/:id", bookings.DeleteEvent)
	b.GET("/export", bookings.Export)
	f.router = r
	return f
}

func (f *apiFixture) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	f.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(f.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Student", "42")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *apiFixture) decode(w *httptest.ResponseRecorder, dest interface{}) *appErrors.Error {
	f.t.Helper()
	var env envelope
	require.NoError(f.t, json.Unmarshal(w.Body.Bytes(), &env))
	if dest != nil && len(env.Data) > 0 {
		require.NoError(f.t, json.Unmarshal(env.Data, dest))
	}
	return env.Error
}

func (f *apiFixture) connect() {
	f.t.Helper()
	var auth struct {
		URL   string `json:"url"`
		State string `json:"state"`
	}
	w := f.do(http.MethodGet, "/api/v1/calendar/auth-url", nil)
	require.Equal(f.t, http.StatusOK, w.Code)
	f.decode(w, &auth)

	w = f.do(http.MethodPost, "/api/v1/calendar/connect", ConnectRequest{Code: "good-code", State: auth.State})
	require.Equal(f.t, http.StatusOK, w.Code, w.Body.String())
}
