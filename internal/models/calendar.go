package models

import "time"

// CalendarIdentity is the account owning the connected calendar.
type CalendarIdentity struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// CalendarCredential is the persisted OAuth session of a student.
type CalendarCredential struct {
	AccessToken  string           `json:"access_token"`
	RefreshToken string           `json:"refresh_token,omitempty"`
	TokenType    string           `json:"token_type,omitempty"`
	Expiry       time.Time        `json:"expiry"`
	Identity     CalendarIdentity `json:"identity"`
}

// CalendarStatus summarises the gateway session for the presentation layer.
type CalendarStatus struct {
	Connected bool              `json:"connected"`
	Identity  *CalendarIdentity `json:"identity,omitempty"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
}
