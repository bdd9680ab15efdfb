package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/arena-booking-api/internal/models"
	"github.com/noah-isme/arena-booking-api/internal/service"
	appErrors "github.com/noah-isme/arena-booking-api/pkg/errors"
	"github.com/noah-isme/arena-booking-api/pkg/response"
)

type bookingSessions interface {
	Session(ctx context.Context, claims *models.StudentClaims) (*service.BookingSession, error)
}

type agendaExporter interface {
	Day(ctx context.Context, source service.AgendaSource, studentID, format string) (*service.AgendaExport, error)
	Upcoming(ctx context.Context, gateway service.UpcomingLister, studentID, format string) (*service.AgendaExport, error)
}

type availabilityLookup interface {
	Resolve(ctx context.Context, professorID string, date time.Time, events service.BookedEventLister) (*service.AvailabilityResolution, error)
}

type disciplineInvalidator interface {
	Invalidate(ctx context.Context, grade, class string) error
}

// BookingHandler exposes the booking screen of the authenticated student.
type BookingHandler struct {
	sessions     bookingSessions
	exporter     agendaExporter
	availability availabilityLookup
	disciplines  disciplineInvalidator
}

// NewBookingHandler constructs the handler.
func NewBookingHandler(sessions bookingSessions, exporter agendaExporter, availability availabilityLookup, disciplines disciplineInvalidator) *BookingHandler {
	return &BookingHandler{sessions: sessions, exporter: exporter, availability: availability, disciplines: disciplines}
}

// FilterRequest changes the filter cascade. Omitted fields are left untouched; fields apply in declaration order.
type FilterRequest struct {
	Date       *string `json:"date"`
	ViewMode   *string `json:"view_mode"`
	Discipline *string `json:"discipline"`
	Professor  *string `json:"professor"`
}

// View godoc
// @Summary Booking screen state
// @Description Returns slots, events and filters for the selected date. Pass date to move the view, refresh to re-read the calendar.
// @Tags Bookings
// @Produce json
// @Security BearerAuth
// @Param date query string false "Date (YYYY-MM-DD)"
// @Param refresh query bool false "Re-read events and availability"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /bookings/view [get]
func (h *BookingHandler) View(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	orch := session.Orchestrator

	var err error
	if raw := strings.TrimSpace(c.Query("date")); raw != "" {
		date, parseErr := models.ParseDate(raw, session.Gateway.Location())
		if parseErr != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid date, expected YYYY-MM-DD"))
			return
		}
		err = orch.SetDate(ctx, date)
	} else if queryBool(c, "refresh") {
		err = orch.Refresh(ctx)
	}
	h.respond(c, orch, err)
}

// UpdateFilters godoc
// @Summary Change the booking filters
// @Tags Bookings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body FilterRequest true "Filter changes"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /bookings/filters [put]
func (h *BookingHandler) UpdateFilters(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	var req FilterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid filter payload"))
		return
	}

	ctx := c.Request.Context()
	orch := session.Orchestrator
	steps := make([]func() error, 0, 4)
	if req.Date != nil {
		date, err := models.ParseDate(*req.Date, session.Gateway.Location())
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid date, expected YYYY-MM-DD"))
			return
		}
		steps = append(steps, func() error { return orch.SetDate(ctx, date) })
	}
	if req.ViewMode != nil {
		mode := models.ViewMode(strings.TrimSpace(*req.ViewMode))
		steps = append(steps, func() error { return orch.SetViewMode(ctx, mode) })
	}
	if req.Discipline != nil {
		code := *req.Discipline
		steps = append(steps, func() error { return orch.SelectDiscipline(ctx, code) })
	}
	if req.Professor != nil {
		code := *req.Professor
		steps = append(steps, func() error { return orch.SelectProfessor(ctx, code) })
	}

	for _, step := range steps {
		if err := step(); err != nil {
			h.respond(c, orch, err)
			return
		}
	}
	h.respond(c, orch, nil)
}

// Disciplines godoc
// @Summary Disciplines and professors of the student's class
// @Tags Bookings
// @Produce json
// @Security BearerAuth
// @Param reload query bool false "Bypass the cache and reload from the academic-records service"
// @Success 200 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /bookings/disciplines [get]
func (h *BookingHandler) Disciplines(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	orch := session.Orchestrator

	if queryBool(c, "reload") {
		student := orch.Student()
		if h.disciplines != nil {
			if err := h.disciplines.Invalidate(ctx, student.Grade, student.Class); err != nil {
				response.Error(c, err)
				return
			}
		}
		if err := orch.LoadDisciplines(ctx); err != nil {
			response.Error(c, err)
			return
		}
	}
	disciplines := orch.View().Disciplines
	response.JSON(c, http.StatusOK, disciplines, map[string]interface{}{"total": len(disciplines)})
}

// Availability godoc
// @Summary Open slots of a professor
// @Description Defaults to the professor and date selected on the booking screen. Slots already booked on the connected calendar are removed.
// @Tags Bookings
// @Produce json
// @Security BearerAuth
// @Param professor query string false "Professor code"
// @Param date query string false "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /bookings/availability [get]
func (h *BookingHandler) Availability(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	filter := session.Orchestrator.Filter()

	professor := strings.TrimSpace(c.Query("professor"))
	if professor == "" {
		professor = filter.Professor
	}
	date := filter.Date
	if raw := strings.TrimSpace(c.Query("date")); raw != "" {
		parsed, err := models.ParseDate(raw, session.Gateway.Location())
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid date, expected YYYY-MM-DD"))
			return
		}
		date = parsed
	}

	resolution, err := h.availability.Resolve(c.Request.Context(), professor, date, session.Gateway)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resolution)
}

// SelectSlot godoc
// @Summary Click a time slot
// @Description Opens the create form when the slot is clickable. Past, booked and unavailable slots leave the view unchanged.
// @Tags Bookings
// @Produce json
// @Security BearerAuth
// @Param time path string true "Slot (HH:MM)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /bookings/slots/{time}/select [post]
func (h *BookingHandler) SelectSlot(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	orch := session.Orchestrator
	h.respond(c, orch, orch.ClickSlot(c.Request.Context(), c.Param("time")))
}

// NewBooking godoc
// @Summary Open an empty booking form
// @Tags Bookings
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /bookings/new [post]
func (h *BookingHandler) NewBooking(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	orch := session.Orchestrator
	h.respond(c, orch, orch.NewBooking(c.Request.Context()))
}

// EditEvent godoc
// @Summary Open the edit form of a booking
// @Tags Bookings
// @Produce json
// @Security BearerAuth
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /bookings/events/{id}/edit [post]
func (h *BookingHandler) EditEvent(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	orch := session.Orchestrator
	h.respond(c, orch, orch.EditEvent(c.Request.Context(), c.Param("id")))
}

// UpdateForm godoc
// @Summary Change the open booking form
// @Tags Bookings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.FormPatch true "Form changes"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /bookings/form [patch]
func (h *BookingHandler) UpdateForm(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	var patch models.FormPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid booking form payload"))
		return
	}
	orch := session.Orchestrator
	h.respond(c, orch, orch.UpdateForm(c.Request.Context(), patch))
}

// SaveForm godoc
// @Summary Save the open booking form
// @Description Creates or updates the booking on the connected calendar after checking for a conflicting booking at the same time.
// @Tags Bookings
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /bookings/form/save [post]
func (h *BookingHandler) SaveForm(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	orch := session.Orchestrator
	h.respond(c, orch, orch.Save(c.Request.Context()))
}

// CancelForm godoc
// @Summary Discard the open booking form
// @Tags Bookings
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /bookings/form/cancel [post]
func (h *BookingHandler) CancelForm(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	orch := session.Orchestrator
	h.respond(c, orch, orch.Cancel(c.Request.Context()))
}

// DeleteEvent godoc
// @Summary Delete a booking
// @Description A booking that no longer exists counts as deleted.
// @Tags Bookings
// @Produce json
// @Security BearerAuth
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /bookings/events/{id} [delete]
func (h *BookingHandler) DeleteEvent(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	orch := session.Orchestrator
	h.respond(c, orch, orch.DeleteEvent(c.Request.Context(), c.Param("id")))
}

// Export godoc
// @Summary Download the agenda
// @Tags Bookings
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param format query string false "csv or pdf" default(csv)
// @Param range query string false "day or upcoming" default(day)
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /bookings/export [get]
func (h *BookingHandler) Export(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	format := strings.ToLower(c.DefaultQuery("format", service.AgendaFormatCSV))
	studentID := session.Orchestrator.Student().ID

	var (
		agenda *service.AgendaExport
		err    error
	)
	switch strings.ToLower(c.DefaultQuery("range", service.AgendaRangeDay)) {
	case service.AgendaRangeDay:
		agenda, err = h.exporter.Day(c.Request.Context(), session.Orchestrator, studentID, format)
	case service.AgendaRangeUpcoming:
		agenda, err = h.exporter.Upcoming(c.Request.Context(), session.Gateway, studentID, format)
	default:
		err = appErrors.Clone(appErrors.ErrValidation, "range must be day or upcoming")
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, agenda.ContentType, agenda.Filename, agenda.Payload)
}

func (h *BookingHandler) session(c *gin.Context) (*service.BookingSession, bool) {
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

// respond renders the booking view, with the failure alongside it when the action did not go through.
func (h *BookingHandler) respond(c *gin.Context, orch *service.BookingOrchestrator, err error) {
	view := orch.View()
	if err != nil {
		response.Error(c, err, view)
		return
	}
	response.JSON(c, http.StatusOK, view)
}
