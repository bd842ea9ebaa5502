//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"context"
	"reflect"

	"github.com/google/uuid"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Session is the registry's view of one live connection.
// Enqueue must never block: a full queue closes the session.
type Session interface {
	ID() uuid.UUID
	Identity() domain.Identity
	Enqueue(env domain.Envelope) error
	Close()
}

type IRegistry interface {
	Register(session Session)
	Unregister(session Session)
	ConnectionsFor(identity domain.Identity) []Session
	Count() int
}

// IStore is the durable source of truth for conversations, messages and notifications.
type IStore interface {
	CreateConversation(a, b domain.Identity) (domain.Conversation, error)
	GetConversation(conversationID string) (domain.Conversation, error)
	ListConversations(identity domain.Identity) ([]domain.Conversation, error)
	CreateMessage(conversationID string, sender, recipient domain.Identity, content string) (domain.Message, error)
	ListMessages(conversationID string, page, limit int) ([]domain.Message, int, error)
	MarkConversationRead(conversationID string, identity domain.Identity) error
	CreateNotification(owner domain.Identity, text string, link *string) (domain.Notification, error)
	ListNotifications(owner domain.Identity, page, limit int) ([]domain.Notification, int, int, error)
	MarkNotificationsRead(owner domain.Identity, ids []uuid.UUID) error
	MarkAllNotificationsRead(owner domain.Identity) error
}

type IRouter interface {
	HandleInboundChat(ctx context.Context, sender domain.Identity, payload domain.ChatSendPayload) (domain.Message, error)
	PublishNotification(ctx context.Context, owner domain.Identity, text string, link *string) (domain.Notification, error)
}
