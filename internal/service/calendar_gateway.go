package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/noah-isme/arena-booking-api/internal/models"
	appErrors "github.com/noah-isme/arena-booking-api/pkg/errors"
)

// CalendarBackend is the external calendar service. Every call carries the session token explicitly.
type CalendarBackend interface {
	ListEvents(ctx context.Context, token *oauth2.Token, query models.EventQuery) ([]models.Event, error)
	InsertEvent(ctx context.Context, token *oauth2.Token, input models.EventInput) (*models.Event, error)
	UpdateEvent(ctx context.Context, token *oauth2.Token, id string, input models.EventInput) (*models.Event, error)
	DeleteEvent(ctx context.Context, token *oauth2.Token, id string) error
	UserInfo(ctx context.Context, token *oauth2.Token) (*models.CalendarIdentity, error)
	Revoke(ctx context.Context, token *oauth2.Token) error
}

// TokenAuthority runs the OAuth authorization-code grant and token refresh.
type TokenAuthority interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Refresh(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error)
}

// CredentialStore persists calendar sessions. Get returns ErrNotFound when nothing is stored.
type CredentialStore interface {
	Get(ctx context.Context, key string) (*models.CalendarCredential, error)
	Set(ctx context.Context, key string, credential models.CalendarCredential) error
	Clear(ctx context.Context, key string) error
}

// RenewalScheduler runs a task periodically until the returned cancel func is called.
type RenewalScheduler interface {
	Schedule(name string, interval time.Duration, task func()) (cancel func(), err error)
}

type calendarMetrics interface {
	ObserveCalendarCall(operation, outcome string, duration time.Duration)
	IncBookingConflict()
	ObserveTokenRenewal(outcome string)
}

// GatewayConfig tunes how bookings are written and how the session is renewed.
type GatewayConfig struct {
	// Location takes precedence over TimeZone when set.
	Location        *time.Location
	TimeZone        string
	ColorID         string
	Marker          string
	ConflictWindow  time.Duration
	DefaultDuration time.Duration
	ListHorizon     time.Duration
	RenewInterval   time.Duration
	RenewThreshold  time.Duration
}

// CalendarGateway owns one student's calendar session and performs conflict-checked mutations.
type CalendarGateway struct {
	key       string
	backend   CalendarBackend
	authority TokenAuthority
	store     CredentialStore
	scheduler RenewalScheduler
	metrics   calendarMetrics
	logger    *zap.Logger
	cfg       GatewayConfig
	loc       *time.Location
	now       func() time.Time

	mu        sync.RWMutex
	token     *oauth2.Token
	identity  *models.CalendarIdentity
	stopRenew func()
}

// GatewayDeps groups the collaborators of a CalendarGateway.
type GatewayDeps struct {
	Backend   CalendarBackend
	Authority TokenAuthority
	Store     CredentialStore
	Scheduler RenewalScheduler
	Metrics   calendarMetrics
	Logger    *zap.Logger
	Now       func() time.Time
}

// NewCalendarGateway builds a signed-out gateway for the given student key.
func NewCalendarGateway(key string, deps GatewayDeps, cfg GatewayConfig) *CalendarGateway {
	if cfg.Marker == "" {
		cfg.Marker = "ARENA"
	}
	if cfg.ColorID == "" {
		cfg.ColorID = "9"
	}
	if cfg.ConflictWindow <= 0 {
		cfg.ConflictWindow = time.Minute
	}
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = time.Hour
	}
	if cfg.ListHorizon <= 0 {
		cfg.ListHorizon = 30 * 24 * time.Hour
	}
	if cfg.RenewInterval <= 0 {
		cfg.RenewInterval = 2 * time.Minute
	}
	if cfg.RenewThreshold <= 0 {
		cfg.RenewThreshold = 5 * time.Minute
	}
	loc := cfg.Location
	if loc == nil {
		var err error
		if loc, err = time.LoadLocation(cfg.TimeZone); err != nil || cfg.TimeZone == "" {
			loc = time.Local
		}
	}
	if cfg.TimeZone == "" {
		cfg.TimeZone = loc.String()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &CalendarGateway{
		key:       key,
		backend:   deps.Backend,
		authority: deps.Authority,
		store:     deps.Store,
		scheduler: deps.Scheduler,
		metrics:   deps.Metrics,
		logger:    logger.With(zap.String("student_id", key)),
		cfg:       cfg,
		loc:       loc,
		now:       now,
	}
}

// Location returns the booking time zone.
func (g *CalendarGateway) Location() *time.Location {
	return g.loc
}

// Marker returns the title prefix identifying bookings made here.
func (g *CalendarGateway) Marker() string {
	return g.cfg.Marker
}

// AuthURL returns the consent page URL for the authorization-code grant.
func (g *CalendarGateway) AuthURL(state string) string {
	return g.authority.AuthCodeURL(state)
}

// Connect exchanges an authorization code for a session, stores it and starts silent renewal.
func (g *CalendarGateway) Connect(ctx context.Context, code string) (*models.CalendarIdentity, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "authorization code is required")
	}

	token, err := g.authority.Exchange(ctx, code)
	if err != nil {
		g.logger.Warn("calendar authorization failed", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrCalendarAuth.Code, appErrors.ErrCalendarAuth.Status, "calendar authorization failed")
	}

	identity, err := g.backend.UserInfo(ctx, token)
	if err != nil {
		g.logger.Warn("fetch calendar identity failed", zap.Error(err))
		identity = &models.CalendarIdentity{}
	}

	if err := g.store.Set(ctx, g.key, credentialFromToken(token, *identity)); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store calendar session")
	}

	g.mu.Lock()
	g.token = token
	g.identity = identity
	g.mu.Unlock()
	g.startRenewer()

	g.logger.Info("calendar connected", zap.String("email", identity.Email))
	return identity, nil
}

// Restore resumes a stored session. It reports whether the gateway ended up connected.
func (g *CalendarGateway) Restore(ctx context.Context) (bool, error) {
	if g.Connected() {
		return true, nil
	}
	credential, err := g.store.Get(ctx, g.key)
	if err != nil {
		if appErrors.HasCode(err, appErrors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	identity := credential.Identity
	g.mu.Lock()
	g.token = tokenFromCredential(*credential)
	g.identity = &identity
	g.mu.Unlock()

	if err := g.RenewIfExpiring(ctx); err != nil {
		return false, nil
	}
	g.startRenewer()
	return true, nil
}

// Connected reports whether a session is held.
func (g *CalendarGateway) Connected() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.token != nil
}

// Identity returns the account of the connected calendar, or nil when signed out.
func (g *CalendarGateway) Identity() *models.CalendarIdentity {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.identity == nil {
		return nil
	}
	identity := *g.identity
	return &identity
}

// Status summarises the session.
func (g *CalendarGateway) Status() models.CalendarStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()
	status := models.CalendarStatus{Connected: g.token != nil}
	if g.token != nil {
		if g.identity != nil {
			identity := *g.identity
			status.Identity = &identity
		}
		if !g.token.Expiry.IsZero() {
			expiry := g.token.Expiry
			status.ExpiresAt = &expiry
		}
	}
	return status
}

// SignOut revokes the held credential, clears the store and stops renewal.
func (g *CalendarGateway) SignOut(ctx context.Context) error {
	token := g.dropSession()
	if token != nil {
		if err := g.backend.Revoke(ctx, token); err != nil {
			g.logger.Warn("revoke calendar token failed", zap.Error(err))
		}
	}
	if err := g.store.Clear(ctx, g.key); err != nil {
		g.logger.Warn("clear calendar credential failed", zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear calendar session")
	}
	g.logger.Info("calendar signed out")
	return nil
}

// RenewIfExpiring refreshes the token when it expires within the renew threshold.
// A failed refresh signs the gateway out and is not retried.
func (g *CalendarGateway) RenewIfExpiring(ctx context.Context) error {
	g.mu.RLock()
	token := g.token
	identity := g.identity
	g.mu.RUnlock()
	if token == nil {
		return appErrors.ErrCalendarAuth
	}
	if token.Expiry.IsZero() || token.Expiry.Sub(g.now()) > g.cfg.RenewThreshold {
		return nil
	}

	renewed, err := g.authority.Refresh(ctx, token)
	if err != nil || renewed == nil || renewed.AccessToken == "" {
		g.observeRenewal("failure")
		g.logger.Warn("calendar token renewal failed, signing out", zap.Error(err))
		g.signOutLocal(ctx)
		return appErrors.Wrap(err, appErrors.ErrCalendarAuth.Code, appErrors.ErrCalendarAuth.Status, "calendar session expired")
	}
	if renewed.RefreshToken == "" {
		renewed.RefreshToken = token.RefreshToken
	}

	g.mu.Lock()
	if g.token == nil {
		g.mu.Unlock()
		return appErrors.ErrCalendarAuth
	}
	g.token = renewed
	g.mu.Unlock()

	var id models.CalendarIdentity
	if identity != nil {
		id = *identity
	}
	if err := g.store.Set(ctx, g.key, credentialFromToken(renewed, id)); err != nil {
		g.logger.Warn("persist renewed calendar token failed", zap.Error(err))
	}
	g.observeRenewal("success")
	g.logger.Debug("calendar token renewed", zap.Time("expiry", renewed.Expiry))
	return nil
}

// ListEvents returns this system's bookings in the 24h of date, or from now over the list horizon when date is nil.
func (g *CalendarGateway) ListEvents(ctx context.Context, date *time.Time) ([]models.Event, error) {
	token, err := g.session()
	if err != nil {
		return nil, err
	}

	query := models.EventQuery{Text: g.cfg.Marker}
	if date != nil {
		d := date.In(g.loc)
		query.TimeMin = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, g.loc)
		query.TimeMax = query.TimeMin.Add(24 * time.Hour)
	} else {
		query.TimeMin = g.now().In(g.loc)
		query.TimeMax = query.TimeMin.Add(g.cfg.ListHorizon)
	}

	start := time.Now()
	events, err := g.backend.ListEvents(ctx, token, query)
	g.observeCall("list", start, err)
	if err != nil {
		return nil, g.backendError(ctx, "list events", err)
	}

	out := make([]models.Event, 0, len(events))
	for _, event := range events {
		if !strings.Contains(event.Title, g.cfg.Marker) {
			continue
		}
		if event.Discipline == "" {
			if disc, prof, ok := parseBookingTitle(g.cfg.Marker, event.Title); ok {
				event.Discipline, event.Professor = disc, prof
			}
		}
		out = append(out, event)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// CreateEvent books the form after checking the day for an event starting within the conflict window.
// The check is best effort: nothing prevents another writer between the listing and the insert.
func (g *CalendarGateway) CreateEvent(ctx context.Context, form models.BookingForm) (*models.Event, error) {
	input, err := g.EventInput(form)
	if err != nil {
		return nil, err
	}
	return g.CreateEventInput(ctx, input)
}

// CreateEventInput is CreateEvent for an already derived payload.
func (g *CalendarGateway) CreateEventInput(ctx context.Context, input models.EventInput) (*models.Event, error) {
	existing, err := g.ListEvents(ctx, &input.Start)
	if err != nil {
		return nil, err
	}
	for _, event := range existing {
		diff := event.Start.Sub(input.Start)
		if diff < 0 {
			diff = -diff
		}
		if diff < g.cfg.ConflictWindow {
			if g.metrics != nil {
				g.metrics.IncBookingConflict()
			}
			g.logger.Info("booking conflict", zap.String("event_id", event.ID), zap.Time("start", input.Start))
			return nil, appErrors.Clone(appErrors.ErrConflict, "a booking already exists at this time")
		}
	}

	token, err := g.session()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	created, err := g.backend.InsertEvent(ctx, token, input)
	g.observeCall("insert", start, err)
	if err != nil {
		return nil, g.backendError(ctx, "create event", err)
	}
	g.logger.Info("booking created", zap.String("event_id", created.ID), zap.String("title", created.Title))
	return created, nil
}

// UpdateEvent replaces the event with the form content. No conflict check is made.
func (g *CalendarGateway) UpdateEvent(ctx context.Context, id string, form models.BookingForm) (*models.Event, error) {
	if strings.TrimSpace(id) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "event id is required")
	}
	input, err := g.EventInput(form)
	if err != nil {
		return nil, err
	}
	token, err := g.session()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	updated, err := g.backend.UpdateEvent(ctx, token, id, input)
	g.observeCall("update", start, err)
	if err != nil {
		return nil, g.backendError(ctx, "update event", err)
	}
	g.logger.Info("booking updated", zap.String("event_id", id))
	return updated, nil
}

// DeleteEvent removes the event. A missing event surfaces as ErrNotFound.
func (g *CalendarGateway) DeleteEvent(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "event id is required")
	}
	token, err := g.session()
	if err != nil {
		return err
	}

	start := time.Now()
	err = g.backend.DeleteEvent(ctx, token, id)
	g.observeCall("delete", start, err)
	if err != nil {
		return g.backendError(ctx, "delete event", err)
	}
	g.logger.Info("booking deleted", zap.String("event_id", id))
	return nil
}

// EventInput derives the calendar payload from the form.
func (g *CalendarGateway) EventInput(form models.BookingForm) (models.EventInput, error) {
	discipline := strings.TrimSpace(form.Discipline)
	professor := strings.TrimSpace(form.Professor)
	if discipline == "" {
		return models.EventInput{}, appErrors.Clone(appErrors.ErrValidation, "discipline is required")
	}
	day, err := models.ParseDate(form.Date, g.loc)
	if err != nil {
		return models.EventInput{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking date")
	}
	slot, err := models.ParseTimeSlot(string(form.Time))
	if err != nil {
		return models.EventInput{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking time")
	}

	duration := time.Duration(form.DurationMinutes) * time.Minute
	if duration <= 0 {
		duration = g.cfg.DefaultDuration
	}
	description := strings.TrimSpace(form.Description)
	if description == "" {
		description = bookingDescription(discipline, professor)
	}

	start := slot.On(day)
	return models.EventInput{
		Title:       bookingTitle(g.cfg.Marker, discipline, professor),
		Description: description,
		Start:       start,
		End:         start.Add(duration),
		TimeZone:    g.cfg.TimeZone,
		ColorID:     g.cfg.ColorID,
		Discipline:  discipline,
		Professor:   professor,
	}, nil
}

// Close stops renewal without touching the stored credential.
func (g *CalendarGateway) Close() {
	g.mu.Lock()
	stop := g.stopRenew
	g.stopRenew = nil
	g.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (g *CalendarGateway) session() (*oauth2.Token, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.token == nil {
		return nil, appErrors.ErrCalendarAuth
	}
	return g.token, nil
}

func (g *CalendarGateway) backendError(ctx context.Context, op string, err error) error {
	if appErrors.HasCode(err, appErrors.ErrCalendarAuth) {
		g.logger.Warn("calendar rejected session, signing out", zap.String("operation", op), zap.Error(err))
		g.signOutLocal(ctx)
		return err
	}
	if appErrors.HasCode(err, appErrors.ErrNotFound) || appErrors.HasCode(err, appErrors.ErrValidation) || appErrors.HasCode(err, appErrors.ErrConflict) {
		return err
	}
	g.logger.Error("calendar call failed", zap.String("operation", op), zap.Error(err))
	return appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "calendar service unavailable")
}

// dropSession forgets the session in memory and stops renewal, returning the dropped token.
func (g *CalendarGateway) dropSession() *oauth2.Token {
	g.mu.Lock()
	token := g.token
	stop := g.stopRenew
	g.token = nil
	g.identity = nil
	g.stopRenew = nil
	g.mu.Unlock()
	if stop != nil {
		stop()
	}
	return token
}

func (g *CalendarGateway) signOutLocal(ctx context.Context) {
	g.dropSession()
	if err := g.store.Clear(ctx, g.key); err != nil {
		g.logger.Warn("clear calendar credential failed", zap.Error(err))
	}
}

func (g *CalendarGateway) startRenewer() {
	if g.scheduler == nil {
		return
	}
	g.Close()

	cancel, err := g.scheduler.Schedule("calendar-renew:"+g.key, g.cfg.RenewInterval, func() {
		ctx, done := context.WithTimeout(context.Background(), 30*time.Second)
		defer done()
		_ = g.RenewIfExpiring(ctx)
	})
	if err != nil {
		g.logger.Error("schedule calendar token renewal failed", zap.Error(err))
		return
	}

	g.mu.Lock()
	if g.token == nil {
		g.mu.Unlock()
		cancel()
		return
	}
	g.stopRenew = cancel
	g.mu.Unlock()
}

func (g *CalendarGateway) observeCall(op string, start time.Time, err error) {
	if g.metrics == nil {
		return
	}
	outcome := "success"
	switch {
	case err == nil:
	case appErrors.HasCode(err, appErrors.ErrNotFound):
		outcome = "not_found"
	case appErrors.HasCode(err, appErrors.ErrCalendarAuth):
		outcome = "unauthorized"
	default:
		outcome = "error"
	}
	g.metrics.ObserveCalendarCall(op, outcome, time.Since(start))
}

func (g *CalendarGateway) observeRenewal(outcome string) {
	if g.metrics != nil {
		g.metrics.ObserveTokenRenewal(outcome)
	}
}

func credentialFromToken(token *oauth2.Token, identity models.CalendarIdentity) models.CalendarCredential {
	return models.CalendarCredential{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		Expiry:       token.Expiry,
		Identity:     identity,
	}
}

func tokenFromCredential(credential models.CalendarCredential) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  credential.AccessToken,
		RefreshToken: credential.RefreshToken,
		TokenType:    credential.TokenType,
		Expiry:       credential.Expiry,
	}
}
