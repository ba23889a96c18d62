package events

import (
	"time"

	"github.com/quickbites/identity-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventPrincipalRegistered  EventType = "principal_registered"
	EventPrincipalProvisioned EventType = "principal_provisioned"
	EventLoginSucceeded       EventType = "login_succeeded"
	EventPasswordReset        EventType = "password_reset"
)

// Actor identifies the principal an event concerns.
type Actor struct {
	Role        domain.Role `json:"role"`
	PrincipalID string      `json:"principal_id"`
	Email       string      `json:"email"`
	Name        string      `json:"name"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// LoginSucceededPayload records which protocol completed the login.
type LoginSucceededPayload struct {
	Method string `json:"method"`
}

// PasswordResetPayload records which confirmation strategy was used.
type PasswordResetPayload struct {
	Method string `json:"method"`
}
