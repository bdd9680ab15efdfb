package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBookingTitleRoundTrip(t *testing.T) {
	title := bookingTitle("ARENA", "Matemática", "João Silva")
	assert.Equal(t, "ARENA - Matemática - João Silva", title)

	disc, prof, ok := parseBookingTitle("ARENA", title)
	assert.True(t, ok)
	assert.Equal(t, "Matemática", disc)
	assert.Equal(t, "João Silva", prof)
}

func TestBookingTitleWithoutProfessor(t *testing.T) {
	assert.Equal(t, "ARENA - Física", bookingTitle("ARENA", "Física", ""))
	assert.Equal(t, "Aula de Física", bookingDescription("Física", ""))
	assert.Equal(t, "Aula de Física com Ana", bookingDescription("Física", "Ana"))

	disc, prof, ok := parseBookingTitle("ARENA", "ARENA - Física")
	assert.True(t, ok)
	assert.Equal(t, "Física", disc)
	assert.Empty(t, prof)
}

func TestParseBookingTitleRejectsForeignEvents(t *testing.T) {
	_, _, ok := parseBookingTitle("ARENA", "Dentista")
	assert.False(t, ok)
}
