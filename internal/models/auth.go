package models

import "github.com/golang-jwt/jwt/v5"

// StudentClaims is the payload of the access token issued by the student portal.
type StudentClaims struct {
	UserID string `json:"user_id"`
	Name   string `json:"nome"`
	Email  string `json:"email"`
	Grade  string `json:"serie"`
	Class  string `json:"turma"`
	jwt.RegisteredClaims
}

// StudentID returns the stable identifier of the student, falling back to the subject claim.
func (c *StudentClaims) StudentID() string {
	if c == nil {
		return ""
	}
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}
