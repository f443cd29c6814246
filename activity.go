package auth

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventSignUp         ActivityEventType = "auth.signup"
	ActivityEventLoginSuccess   ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure   ActivityEventType = "auth.login.failure"
	ActivityEventSignOut        ActivityEventType = "auth.signout"
	ActivityEventEmailVerified  ActivityEventType = "auth.email.verified"
	ActivityEventMagicLink      ActivityEventType = "auth.magic_link.login"
	ActivityEventPasswordReset  ActivityEventType = "auth.password.reset"
	ActivityEventRoleChanged    ActivityEventType = "user.role.changed"
	ActivityEventSessionBridged ActivityEventType = "auth.session.bridged"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	UserID     string
	Email      string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

// LogActivitySink writes every event to Logger at info level
type LogActivitySink struct {
	Logger Logger
}

func (s LogActivitySink) Record(_ context.Context, event ActivityEvent) error {
	logger := s.Logger
	if logger == nil {
		logger = defLogger{}
	}
	args := []any{"event", string(event.EventType), "user_id", event.UserID, "at", event.OccurredAt.UTC().Format(time.RFC3339)}
	for k, v := range event.Metadata {
		args = append(args, k, v)
	}
	logger.Info("auth activity", args...)
	return nil
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// NewActivityEvent fills the user fields of an event from user, which may
// be nil for anonymous actions
func NewActivityEvent(eventType ActivityEventType, user *User, now time.Time, metadata map[string]any) ActivityEvent {
	event := ActivityEvent{
		EventType:  eventType,
		Metadata:   metadata,
		OccurredAt: now,
	}
	if user != nil {
		event.UserID = user.ID.String()
		event.Email = user.Email
	}
	return event
}

// RecordActivity hands event to sink. Sink failures are logged, never
// returned.
func RecordActivity(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent) {
	if err := normalizeActivitySink(sink).Record(ctx, event); err != nil && logger != nil {
		logger.Warn("failed to record activity", "event", string(event.EventType), "error", err)
	}
}
