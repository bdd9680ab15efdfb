package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/arena-booking-api/internal/models"
	"github.com/noah-isme/arena-booking-api/internal/service"
	appErrors "github.com/noah-isme/arena-booking-api/pkg/errors"
)

func TestBookingHandlerRequiresAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewBookingHandler(nil, nil, nil, nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/bookings/view", nil)

	handler.View(c)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBookingHandlerViewStartsDisconnected(t *testing.T) {
	f := newAPIFixture(t)

	var view service.BookingView
	w := f.do(http.MethodGet, "/api/v1/bookings/view", nil)
	require.Equal(t, http.StatusOK, w.Code)
	f.decode(w, &view)

	assert.Equal(t, service.StateDisconnected, view.State)
	assert.False(t, view.Connected)
	require.Len(t, view.Slots, 21)
	assert.Equal(t, models.TimeSlot("09:00"), view.Slots[0].Time)
	assert.Equal(t, models.TimeSlot("19:00"), view.Slots[20].Time)
	assert.Equal(t, "2025-06-09", view.Filter.Date)
	assert.Len(t, view.Disciplines, 2)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestBookingHandlerViewRejectsBadDate(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(http.MethodGet, "/api/v1/bookings/view?date=09/06/2025", nil)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBookingHandlerCreateExportAndDelete(t *testing.T) {
	f := newAPIFixture(t)
	f.connect()

	var view service.BookingView
	w := f.do(http.MethodPut, "/api/v1/bookings/filters", FilterRequest{Discipline: strPtr("MAT")})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	f.decode(w, &view)
	assert.Equal(t, models.ViewModeProfessor, view.Filter.ViewMode)
	assert.Equal(t, "10", view.Filter.Professor)
	require.NotNil(t, view.Availability)
	assert.Contains(t, view.Availability.OpenSlots, models.TimeSlot("14:00"))

	w = f.do(http.MethodPost, "/api/v1/bookings/slots/14:00/select", nil)
	require.Equal(t, http.StatusOK, w.Code)
	view = service.BookingView{}
	f.decode(w, &view)
	require.NotNil(t, view.Modal)
	assert.Equal(t, service.StateModalCreate, view.State)
	assert.Equal(t, "Matemática", view.Modal.Form.Discipline)
	assert.Equal(t, "João Silva", view.Modal.Form.Professor)

	w = f.do(http.MethodPost, "/api/v1/bookings/form/save", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	view = service.BookingView{}
	f.decode(w, &view)
	assert.Nil(t, view.Modal)
	require.Len(t, view.Events, 1)
	assert.Equal(t, "ARENA - Matemática - João Silva", view.Events[0].Title)
	require.NotNil(t, view.Success)
	assert.Equal(t, "booking created", view.Success.Text)
	assert.Equal(t, 1, f.backend.inserts)

	w = f.do(http.MethodGet, "/api/v1/bookings/export?format=csv", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "agenda_42_day_2025-06-09")
	assert.Contains(t, w.Body.String(), "Matemática")

	eventID := view.Events[0].ID
	w = f.do(http.MethodDelete, "/api/v1/bookings/events/"+eventID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	view = service.BookingView{}
	f.decode(w, &view)
	assert.Empty(t, view.Events)
	require.NotNil(t, view.Success)
	assert.Equal(t, "booking deleted", view.Success.Text)

	w = f.do(http.MethodDelete, "/api/v1/bookings/events/"+eventID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBookingHandlerSaveValidationKeepsForm(t *testing.T) {
	f := newAPIFixture(t)
	f.connect()

	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/v1/bookings/new", nil).Code)

	var view service.BookingView
	w := f.do(http.MethodPost, "/api/v1/bookings/form/save", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	appErr := f.decode(w, &view)
	require.NotNil(t, appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	require.NotNil(t, view.Modal)
	assert.NotNil(t, view.Modal.Error)
	assert.Zero(t, f.backend.inserts)

	w = f.do(http.MethodPost, "/api/v1/bookings/form/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	view = service.BookingView{}
	f.decode(w, &view)
	assert.Nil(t, view.Modal)
}

func TestBookingHandlerUpdateFormResetsProfessor(t *testing.T) {
	f := newAPIFixture(t)
	f.connect()
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/v1/bookings/new", nil).Code)

	var view service.BookingView
	w := f.do(http.MethodPatch, "/api/v1/bookings/form", models.FormPatch{Discipline: strPtr("Matemática")})
	require.Equal(t, http.StatusOK, w.Code)
	f.decode(w, &view)
	require.NotNil(t, view.Modal)
	assert.Equal(t, "João Silva", view.Modal.Form.Professor)

	view = service.BookingView{}
	w = f.do(http.MethodPatch, "/api/v1/bookings/form", models.FormPatch{Discipline: strPtr("Física")})
	require.Equal(t, http.StatusOK, w.Code)
	f.decode(w, &view)
	assert.Empty(t, view.Modal.Form.Professor)
}

func TestBookingHandlerAvailability(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(http.MethodGet, "/api/v1/bookings/availability", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resolution service.AvailabilityResolution
	w = f.do(http.MethodGet, "/api/v1/bookings/availability?professor=10&date=2025-06-10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	f.decode(w, &resolution)
	assert.Equal(t, "2025-06-10", resolution.Date)
	assert.Equal(t, []models.TimeSlot{"14:00", "14:30", "15:00", "15:30"}, resolution.OpenSlots)

	w = f.do(http.MethodGet, "/api/v1/bookings/availability?professor=99", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBookingHandlerDisciplinesReload(t *testing.T) {
	f := newAPIFixture(t)

	var disciplines []models.Discipline
	w := f.do(http.MethodGet, "/api/v1/bookings/disciplines?reload=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	f.decode(w, &disciplines)
	assert.Len(t, disciplines, 2)
	assert.Equal(t, 1, f.disciplines.invalidated)
}

func TestBookingHandlerExportRequiresCalendar(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(http.MethodGet, "/api/v1/bookings/export?format=pdf", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	f.connect()
	w = f.do(http.MethodGet, "/api/v1/bookings/export?range=week", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodGet, "/api/v1/bookings/export?format=pdf&range=upcoming", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "%PDF"))
}

func strPtr(v string) *string {
	return &v
}
