package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/arena-booking-api/internal/models"
	"github.com/noah-isme/arena-booking-api/internal/service"
)

func TestCalendarHandlerConnectRequiresIssuedState(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(http.MethodPost, "/api/v1/calendar/connect", ConnectRequest{Code: "good-code", State: "forged"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/api/v1/calendar/connect", map[string]string{"code": "good-code"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCalendarHandlerConnectStatusDisconnect(t *testing.T) {
	f := newAPIFixture(t)

	var auth struct {
		URL   string `json:"url"`
		State string `json:"state"`
	}
	w := f.do(http.MethodGet, "/api/v1/calendar/auth-url", nil)
	require.Equal(t, http.StatusOK, w.Code)
	f.decode(w, &auth)
	require.NotEmpty(t, auth.State)
	assert.Contains(t, auth.URL, auth.State)

	var view service.BookingView
	w = f.do(http.MethodPost, "/api/v1/calendar/connect", ConnectRequest{Code: "good-code", State: auth.State})
	require.Equal(t, http.StatusOK, w.Code)
	f.decode(w, &view)
	assert.True(t, view.Connected)
	require.NotNil(t, view.Identity)
	assert.Equal(t, "maria@example.com", view.Identity.Email)

	w = f.do(http.MethodPost, "/api/v1/calendar/connect", ConnectRequest{Code: "good-code", State: auth.State})
	assert.Equal(t, http.StatusBadRequest, w.Code, "state is single use")

	var status models.CalendarStatus
	w = f.do(http.MethodGet, "/api/v1/calendar/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	f.decode(w, &status)
	assert.True(t, status.Connected)

	view = service.BookingView{}
	w = f.do(http.MethodPost, "/api/v1/calendar/disconnect", nil)
	require.Equal(t, http.StatusOK, w.Code)
	f.decode(w, &view)
	assert.False(t, view.Connected)
	assert.Equal(t, "calendar disconnected", view.Success.Text)
}

func TestCalendarHandlerRejectedCodeKeepsDisconnected(t *testing.T) {
	f := newAPIFixture(t)

	var auth struct {
		State string `json:"state"`
	}
	f.decode(f.do(http.MethodGet, "/api/v1/calendar/auth-url", nil), &auth)

	var view service.BookingView
	w := f.do(http.MethodPost, "/api/v1/calendar/connect", ConnectRequest{Code: "bad-code", State: auth.State})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	f.decode(w, &view)
	assert.False(t, view.Connected)
	assert.Equal(t, service.StateError, view.State)
}
