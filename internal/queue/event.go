// Package queue defines message payloads exchanged over the message broker
// together with the publisher and the background consumer.
package queue

// Lifecycle event types published to the user.lifecycle queue.
const (
	EventUserRegistered  = "user.registered"
	EventUserEnabled     = "user.enabled"
	EventUserBanned      = "user.banned"
	EventUserUnbanned    = "user.unbanned"
	EventRoleChanged     = "user.role_changed"
	EventPasswordChanged = "user.password_changed"
	EventUserDeleted     = "user.deleted"
)

// UserLifecycleEvent is published whenever a user record completes a state
// transition.  It carries enough information for downstream consumers to
// log or trigger notifications without querying the primary database.
type UserLifecycleEvent struct {
	Type       string `json:"type"`
	UserID     int64  `json:"user_id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	OccurredAt string `json:"occurred_at"`
}
