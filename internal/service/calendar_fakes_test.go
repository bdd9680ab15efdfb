package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/noah-isme/arena-booking-api/internal/models"
	appErrors "github.com/noah-isme/arena-booking-api/pkg/errors"
)

type fakeCalendarBackend struct {
	mu       sync.Mutex
	events   map[string]models.Event
	seq      int
	listErr  error
	writeErr error

	listCalls   int
	insertCalls int
	updateCalls int
	deleteCalls int
	revokeCalls int
	inserted    []models.EventInput
	identity    models.CalendarIdentity
}

func newFakeCalendarBackend() *fakeCalendarBackend {
	return &fakeCalendarBackend{events: map[string]models.Event{}, identity: models.CalendarIdentity{Name: "Aluno Teste", Email: "aluno@example.com"}}
}

func (f *fakeCalendarBackend) seed(title string, start time.Time, d time.Duration) models.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	event := models.Event{ID: fmt.Sprintf("evt-%d", f.seq), Title: title, Start: start, End: start.Add(d)}
	f.events[event.ID] = event
	return event
}

func (f *fakeCalendarBackend) ListEvents(ctx context.Context, token *oauth2.Token, query models.EventQuery) ([]models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := []models.Event{}
	for _, e := range f.events {
		if e.Start.Before(query.TimeMin) || !e.Start.Before(query.TimeMax) {
			continue
		}
		if query.Text != "" && !strings.Contains(e.Title, query.Text) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (f *fakeCalendarBackend) InsertEvent(ctx context.Context, token *oauth2.Token, input models.EventInput) (*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insertCalls++
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	f.seq++
	f.inserted = append(f.inserted, input)
	event := models.Event{
		ID:          fmt.Sprintf("evt-%d", f.seq),
		Title:       input.Title,
		Description: input.Description,
		Start:       input.Start,
		End:         input.End,
		TimeZone:    input.TimeZone,
		ColorID:     input.ColorID,
		Discipline:  input.Discipline,
		Professor:   input.Professor,
	}
	f.events[event.ID] = event
	return &event, nil
}

func (f *fakeCalendarBackend) UpdateEvent(ctx context.Context, token *oauth2.Token, id string, input models.EventInput) (*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	if _, ok := f.events[id]; !ok {
		return nil, appErrors.ErrNotFound
	}
	event := models.Event{ID: id, Title: input.Title, Description: input.Description, Start: input.Start, End: input.End, Discipline: input.Discipline, Professor: input.Professor}
	f.events[id] = event
	return &event, nil
}

func (f *fakeCalendarBackend) DeleteEvent(ctx context.Context, token *oauth2.Token, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	if f.writeErr != nil {
		return f.writeErr
	}
	if _, ok := f.events[id]; !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "event not found")
	}
	delete(f.events, id)
	return nil
}

func (f *fakeCalendarBackend) UserInfo(ctx context.Context, token *oauth2.Token) (*models.CalendarIdentity, error) {
	identity := f.identity
	return &identity, nil
}

func (f *fakeCalendarBackend) Revoke(ctx context.Context, token *oauth2.Token) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokeCalls++
	return nil
}

func (f *fakeCalendarBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls + f.insertCalls + f.updateCalls + f.deleteCalls
}

type fakeAuthority struct {
	token        *oauth2.Token
	exchangeErr  error
	refreshed    *oauth2.Token
	refreshErr   error
	refreshCalls int
}

func (f *fakeAuthority) AuthCodeURL(state string) string {
	return "https://accounts.example.com/auth?state=" + state
}

func (f *fakeAuthority) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return f.token, nil
}

func (f *fakeAuthority) Refresh(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error) {
	f.refreshCalls++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.refreshed, nil
}

type memoryCredentialStub struct {
	mu     sync.Mutex
	values map[string]models.CalendarCredential
	clears int
}

func newMemoryCredentialStub() *memoryCredentialStub {
	return &memoryCredentialStub{values: map[string]models.CalendarCredential{}}
}

func (m *memoryCredentialStub) Get(ctx context.Context, key string) (*models.CalendarCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return nil, appErrors.ErrNotFound
	}
	return &v, nil
}

func (m *memoryCredentialStub) Set(ctx context.Context, key string, credential models.CalendarCredential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = credential
	return nil
}

func (m *memoryCredentialStub) Clear(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears++
	delete(m.values, key)
	return nil
}

type fakeScheduler struct {
	tasks     map[string]func()
	intervals map[string]time.Duration
	cancels   int
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{tasks: map[string]func(){}, intervals: map[string]time.Duration{}}
}

func (f *fakeScheduler) Schedule(name string, interval time.Duration, task func()) (func(), error) {
	f.tasks[name] = task
	f.intervals[name] = interval
	return func() {
		if _, ok := f.tasks[name]; ok {
			f.cancels++
			delete(f.tasks, name)
		}
	}, nil
}

func (f *fakeScheduler) fire(name string) bool {
	task, ok := f.tasks[name]
	if ok {
		task()
	}
	return ok
}

type gatewayFixture struct {
	gateway   *CalendarGateway
	backend   *fakeCalendarBackend
	authority *fakeAuthority
	store     *memoryCredentialStub
	scheduler *fakeScheduler
	loc       *time.Location
	now       time.Time
}

func newGatewayFixture(loc *time.Location, now time.Time) *gatewayFixture {
	f := &gatewayFixture{
		backend:   newFakeCalendarBackend(),
		authority: &fakeAuthority{token: &oauth2.Token{AccessToken: "access-1", RefreshToken: "refresh-1", Expiry: now.Add(time.Hour)}},
		store:     newMemoryCredentialStub(),
		scheduler: newFakeScheduler(),
		loc:       loc,
		now:       now,
	}
	f.gateway = NewCalendarGateway("student-1", GatewayDeps{
		Backend:   f.backend,
		Authority: f.authority,
		Store:     f.store,
		Scheduler: f.scheduler,
		Now:       func() time.Time { return f.now },
	}, GatewayConfig{Location: loc, TimeZone: "America/Sao_Paulo", Marker: "ARENA"})
	return f
}
