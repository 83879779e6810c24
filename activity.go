package content

import (
	"context"
	"time"
)

// ActivityEventType names an auditable event.
type ActivityEventType string

const (
	ActivityLoginSuccess   ActivityEventType = "auth.login.success"
	ActivityLoginFailure   ActivityEventType = "auth.login.failure"
	ActivityUserRegistered ActivityEventType = "user.registered"
	ActivityEmailVerified  ActivityEventType = "auth.email.verified"
	ActivityPasswordReset  ActivityEventType = "auth.password.reset"
	ActivityOrderPaid      ActivityEventType = "order.paid"
)

// ActorRef identifies who triggered an event. Email may be set without an id
// for failed logins against unknown accounts.
type ActorRef struct {
	ID    string `json:"id,omitempty"`
	Email string `json:"email,omitempty"`
}

// ActivityEvent is a single audit record.
type ActivityEvent struct {
	EventType  ActivityEventType `json:"event_type"`
	Actor      ActorRef          `json:"actor"`
	UserID     string            `json:"user_id,omitempty"`
	Success    bool              `json:"success"`
	Metadata   map[string]any    `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// ActivitySink receives audit events. Implementations must not block the
// request path; slow transports should buffer internally.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent)
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent)

func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) {
	f(ctx, event)
}

type noopSink struct{}

func (noopSink) Record(context.Context, ActivityEvent) {}

func normalizeSink(sink ActivitySink) ActivitySink {
	if sink == nil {
		return noopSink{}
	}
	return sink
}

// NewLoggerActivitySink records events as structured log lines. Useful as a
// default until a real audit pipeline is wired.
func NewLoggerActivitySink(logger Logger) ActivitySink {
	logger = normalizeLogger(logger)
	return ActivitySinkFunc(func(_ context.Context, event ActivityEvent) {
		logger.Info("activity",
			"event_type", string(event.EventType),
			"actor_id", event.Actor.ID,
			"actor_email", event.Actor.Email,
			"user_id", event.UserID,
			"success", event.Success,
			"occurred_at", event.OccurredAt.Format(time.RFC3339),
		)
	})
}

func newActivityEvent(eventType ActivityEventType, actor ActorRef, success bool) ActivityEvent {
	return ActivityEvent{
		EventType:  eventType,
		Actor:      actor,
		UserID:     actor.ID,
		Success:    success,
		OccurredAt: time.Now(),
	}
}
