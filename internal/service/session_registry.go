package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/arena-booking-api/internal/models"
	appErrors "github.com/noah-isme/arena-booking-api/pkg/errors"
)

// BookingSession is the live booking state of one student.
type BookingSession struct {
	Gateway      *CalendarGateway
	Orchestrator *BookingOrchestrator

	lastSeen time.Time
}

// SessionDeps groups the collaborators shared by every session.
type SessionDeps struct {
	Backend     CalendarBackend
	Authority   TokenAuthority
	Store       CredentialStore
	Scheduler   RenewalScheduler
	Resolver    SlotAvailability
	Disciplines DisciplineLoader
	Slots       *TimeSlotGenerator
	Validator   *validator.Validate
	Metrics     *MetricsService
	Logger      *zap.Logger
	Now         func() time.Time
}

// SessionRegistry keeps one calendar gateway and booking orchestrator per authenticated student.
type SessionRegistry struct {
	deps       SessionDeps
	gatewayCfg GatewayConfig
	orchCfg    OrchestratorConfig
	logger     *zap.Logger

	mu       sync.Mutex
	sessions map[string]*BookingSession
}

// NewSessionRegistry constructs an empty registry.
func NewSessionRegistry(deps SessionDeps, gatewayCfg GatewayConfig, orchCfg OrchestratorConfig) *SessionRegistry {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &SessionRegistry{
		deps:       deps,
		gatewayCfg: gatewayCfg,
		orchCfg:    orchCfg,
		logger:     deps.Logger,
		sessions:   make(map[string]*BookingSession),
	}
}

// Session returns the student's session, creating it on first use. A new session restores any stored
// calendar credential and loads the discipline index; failures there are shown on the view, not returned.
func (r *SessionRegistry) Session(ctx context.Context, claims *models.StudentClaims) (*BookingSession, error) {
	id := strings.TrimSpace(claims.StudentID())
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "student identity missing from token")
	}

	if session, ok := r.touch(id); ok {
		return session, nil
	}

	gateway := NewCalendarGateway(id, GatewayDeps{
		Backend:   r.deps.Backend,
		Authority: r.deps.Authority,
		Store:     r.deps.Store,
		Scheduler: r.deps.Scheduler,
		Metrics:   r.deps.Metrics,
		Logger:    r.logger,
		Now:       r.deps.Now,
	}, r.gatewayCfg)
	if _, err := gateway.Restore(ctx); err != nil {
		r.logger.Warn("restore calendar session failed", zap.String("student_id", id), zap.Error(err))
	}

	orchestrator := NewBookingOrchestrator(
		Student{ID: id, Grade: claims.Grade, Class: claims.Class},
		gateway,
		r.deps.Resolver,
		r.deps.Disciplines,
		r.deps.Slots,
		r.deps.Validator,
		r.logger,
		r.orchCfg,
	)
	if err := orchestrator.Init(ctx); err != nil {
		r.logger.Warn("initialise booking session failed", zap.String("student_id", id), zap.Error(err))
	}

	r.mu.Lock()
	if existing, ok := r.sessions[id]; ok {
		existing.lastSeen = r.deps.Now()
		r.mu.Unlock()
		gateway.Close()
		return existing, nil
	}
	session := &BookingSession{Gateway: gateway, Orchestrator: orchestrator, lastSeen: r.deps.Now()}
	r.sessions[id] = session
	count := len(r.sessions)
	r.mu.Unlock()

	r.deps.Metrics.SetActiveSessions(count)
	r.logger.Info("booking session opened", zap.String("student_id", id), zap.Bool("calendar_connected", gateway.Connected()))
	return session, nil
}

// Lookup returns an existing session without creating one.
func (r *SessionRegistry) Lookup(studentID string) (*BookingSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[studentID]
	return session, ok
}

// Evict drops the student's session and stops its token renewal. The stored credential is kept.
func (r *SessionRegistry) Evict(studentID string) bool {
	r.mu.Lock()
	session, ok := r.sessions[studentID]
	delete(r.sessions, studentID)
	count := len(r.sessions)
	r.mu.Unlock()
	if !ok {
		return false
	}
	session.Gateway.Close()
	r.deps.Metrics.SetActiveSessions(count)
	return true
}

// EvictIdle drops sessions unused for longer than maxIdle and returns how many were removed.
func (r *SessionRegistry) EvictIdle(maxIdle time.Duration) int {
	cutoff := r.deps.Now().Add(-maxIdle)

	r.mu.Lock()
	var idle []*BookingSession
	for id, session := range r.sessions {
		if session.lastSeen.Before(cutoff) {
			idle = append(idle, session)
			delete(r.sessions, id)
		}
	}
	count := len(r.sessions)
	r.mu.Unlock()

	for _, session := range idle {
		session.Gateway.Close()
	}
	if len(idle) > 0 {
		r.deps.Metrics.SetActiveSessions(count)
		r.logger.Info("evicted idle booking sessions", zap.Int("count", len(idle)))
	}
	return len(idle)
}

// Len returns the number of live sessions.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Shutdown stops every session's renewal job.
func (r *SessionRegistry) Shutdown() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*BookingSession)
	r.mu.Unlock()

	for _, session := range sessions {
		session.Gateway.Close()
	}
	r.deps.Metrics.SetActiveSessions(0)
}

func (r *SessionRegistry) touch(id string) (*BookingSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if ok {
		session.lastSeen = r.deps.Now()
	}
	return session, ok
}
