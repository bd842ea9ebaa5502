// Package event defines the internal domain events that trigger notifications.
package event

import (
	"chat-relay/domain"
	"time"
)

type Type string

const (
	MessageCreatedType Type = "message_created"
	StatusChangedType  Type = "status_changed"
)

type DomainEvent interface {
	Type() Type
	OccurredAt() time.Time
}

// MessageCreated is emitted by the router once a message is durable and pushed.
type MessageCreated struct {
	Message domain.Message
}

func (e MessageCreated) Type() Type            { return MessageCreatedType }
func (e MessageCreated) OccurredAt() time.Time { return e.Message.CreatedAt }

// StatusChanged comes from other parts of the platform (an application
// moved to "interview", a job got closed...) through the relay channel.
type StatusChanged struct {
	Owner   domain.Identity
	Subject string
	Status  string
	Link    *string
	At      time.Time
}

func (e StatusChanged) Type() Type            { return StatusChangedType }
func (e StatusChanged) OccurredAt() time.Time { return e.At }
