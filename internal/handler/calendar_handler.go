package handler

import (
	"crypto/subtle"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/noah-isme/arena-booking-api/internal/service"
	appErrors "github.com/noah-isme/arena-booking-api/pkg/errors"
	"github.com/noah-isme/arena-booking-api/pkg/response"
)

const oauthStateTTL = 10 * time.Minute

// CalendarHandler runs the calendar authorization flow of the authenticated student.
type CalendarHandler struct {
	sessions bookingSessions
	now      func() time.Time

	mu     sync.Mutex
	states map[string]pendingState
}

type pendingState struct {
	value     string
	expiresAt time.Time
}

// NewCalendarHandler constructs the handler.
func NewCalendarHandler(sessions bookingSessions) *CalendarHandler {
	return &CalendarHandler{sessions: sessions, now: time.Now, states: make(map[string]pendingState)}
}

// ConnectRequest completes the authorization-code grant.
type ConnectRequest struct {
	Code  string `json:"code" binding:"required"`
	State string `json:"state" binding:"required"`
}

// AuthURL godoc
// @Summary Calendar consent URL
// @Description Returns the consent screen URL and the state value the callback must echo back.
// @Tags Calendar
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /calendar/auth-url [get]
func (h *CalendarHandler) AuthURL(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	state := uuid.NewString()

	h.mu.Lock()
	h.states[session.Orchestrator.Student().ID] = pendingState{value: state, expiresAt: h.now().Add(oauthStateTTL)}
	h.mu.Unlock()

	response.JSON(c, http.StatusOK, gin.H{"url": session.Gateway.AuthURL(state), "state": state})
}

// Connect godoc
// @Summary Connect the calendar
// @Tags Calendar
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body ConnectRequest true "Authorization code and state"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /calendar/connect [post]
func (h *CalendarHandler) Connect(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	var req ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "code and state are required"))
		return
	}
	if !h.consumeState(session.Orchestrator.Student().ID, req.State) {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "authorization state is invalid or expired"))
		return
	}

	orch := session.Orchestrator
	if err := orch.Connect(c.Request.Context(), req.Code); err != nil {
		response.Error(c, err, orch.View())
		return
	}
	response.JSON(c, http.StatusOK, orch.View())
}

// Disconnect godoc
// @Summary Disconnect the calendar
// @Description Revokes the calendar token and forgets the stored session.
// @Tags Calendar
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /calendar/disconnect [post]
func (h *CalendarHandler) Disconnect(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	orch := session.Orchestrator
	if err := orch.Disconnect(c.Request.Context()); err != nil {
		response.Error(c, err, orch.View())
		return
	}
	response.JSON(c, http.StatusOK, orch.View())
}

// Status godoc
// @Summary Calendar connection status
// @Tags Calendar
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /calendar/status [get]
func (h *CalendarHandler) Status(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	response.JSON(c, http.StatusOK, session.Gateway.Status())
}

func (h *CalendarHandler) consumeState(studentID, state string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	for id, pending := range h.states {
		if now.After(pending.expiresAt) {
			delete(h.states, id)
		}
	}
	pending, ok := h.states[studentID]
	if !ok || subtle.ConstantTimeCompare([]byte(pending.value), []byte(state)) != 1 {
		return false
	}
	delete(h.states, studentID)
	return true
}

func (h *CalendarHandler) session(c *gin.Context) (*service.BookingSession, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	session, err := h.sessions.Session(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	return session, true
}
