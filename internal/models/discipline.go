package models

// Professor is a teacher assigned to a discipline.
type Professor struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Discipline is a subject offered to a class with its professors.
type Discipline struct {
	Code       string      `json:"code"`
	Name       string      `json:"name"`
	Professors []Professor `json:"professors"`
}

// AvailabilityWindow is a professor-declared interval on a weekday. End may be empty for single-slot windows.
type AvailabilityWindow struct {
	Start     TimeSlot `json:"start"`
	End       TimeSlot `json:"end,omitempty"`
	Available bool     `json:"available"`
}

// Availability is the professor configuration for one date.
type Availability struct {
	AcceptsBookings       bool                 `json:"accepts_bookings"`
	WeekdayName           string               `json:"weekday_name"`
	ProfessorName         string               `json:"professor_name"`
	Windows               []AvailabilityWindow `json:"windows"`
	ExistingBookingsCount int                  `json:"existing_bookings_count"`
}
