// Package queue defines the account lifecycle events exchanged over the
// message broker and the consumer that turns them into an audit log.
package queue

import (
    "time"

    "github.com/google/uuid"
)

// AccountEventsQueue is the durable queue account events are routed to.
const AccountEventsQueue = "account.events"

// Account event types.
const (
    EventAccountRegistered = "account.registered"
    EventAccountUpdated    = "account.updated"
    EventAccountDeleted    = "account.deleted"
)

// AccountEvent is published after a successful account mutation.  It carries
// enough information for downstream consumers to audit the change without
// querying the primary store.  Credentials are never included.
type AccountEvent struct {
    ID         string `json:"id"`
    Type       string `json:"type"`
    UserID     string `json:"user_id"`
    Username   string `json:"username"`
    ActorID    string `json:"actor_id,omitempty"` // who performed the change; empty for self-registration
    OccurredAt string `json:"occurred_at"`        // RFC3339 UTC
}

// NewAccountEvent stamps an event with a fresh id and the current time.
func NewAccountEvent(eventType, userID, username, actorID string) AccountEvent {
    return AccountEvent{
        ID:         uuid.NewString(),
        Type:       eventType,
        UserID:     userID,
        Username:   username,
        ActorID:    actorID,
        OccurredAt: time.Now().UTC().Format(time.RFC3339),
    }
}
