package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/moderation"
	"chat-relay/observability"
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"
)

const conversationStripes = 64

var _ contract.IRouter = (*Router)(nil)

// Reviewer rewrites message content before it is stored.
type Reviewer interface {
	Review(content string) moderation.Verdict
}

// Router persists inbound chat and notifications, then pushes them to every
// live connection of the identities involved.
//
// A conversation's persist-then-push section runs under one lock, so two
// messages of the same conversation reach every connection in id order.
// Pushes are best effort: a failing connection is logged and skipped, and
// never undoes what was stored.
type Router struct {
	store            contract.IStore
	registry         contract.IRegistry
	reviewer         Reviewer
	events           chan<- event.DomainEvent
	monitor          *observability.MonitoringManager
	maxContentLength int
	log              *slog.Logger
	locks            [conversationStripes]sync.Mutex
}

func NewRouter(store contract.IStore, registry contract.IRegistry, reviewer Reviewer,
	events chan<- event.DomainEvent, monitor *observability.MonitoringManager,
	maxContentLength int, log *slog.Logger) *Router {
	return &Router{
		store:            store,
		registry:         registry,
		reviewer:         reviewer,
		events:           events,
		monitor:          monitor,
		maxContentLength: maxContentLength,
		log:              log,
	}
}

func (r *Router) lock(conversationID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(conversationID))
	m := &r.locks[h.Sum32()%conversationStripes]
	m.Lock()
	return m.Unlock
}

// HandleInboundChat validates, moderates and stores a message, then delivers
// it to both participants. The sender receives its own message back so that
// the originating connection learns the server assigned id.
func (r *Router) HandleInboundChat(ctx context.Context, sender domain.Identity, payload domain.ChatSendPayload) (domain.Message, error) {
	if err := domain.ValidateChatSend(payload, r.maxContentLength); err != nil {
		return domain.Message{}, err
	}
	recipient := payload.Recipient()

	message, err := r.persistAndPush(sender, recipient, payload)
	if err != nil {
		return domain.Message{}, err
	}

	r.emit(ctx, event.MessageCreated{Message: message})
	return message, nil
}

func (r *Router) persistAndPush(sender, recipient domain.Identity, payload domain.ChatSendPayload) (domain.Message, error) {
	unlock := r.lock(payload.ConversationID)
	defer unlock()

	conversation, err := r.store.GetConversation(payload.ConversationID)
	if errors.Is(err, errors.ErrConversationNotFound) {
		return domain.Message{}, fmt.Errorf("%w: %s", errors.ErrPermissionDenied, payload.ConversationID)
	}
	if err != nil {
		return domain.Message{}, err
	}
	if counterpart, ok := conversation.Counterpart(sender); !ok || counterpart != recipient {
		return domain.Message{}, fmt.Errorf("%w: %s", errors.ErrPermissionDenied, payload.ConversationID)
	}

	content := payload.Content
	if r.reviewer != nil {
		verdict := r.reviewer.Review(content)
		if len(verdict.CensoredWords) > 0 {
			r.log.Info("Message censored",
				"conversation_id", payload.ConversationID,
				"sender", sender.String(),
				"words", len(verdict.CensoredWords),
				"lang", verdict.Lang)
		}
		content = verdict.Content
	}

	start := time.Now()
	message, err := r.store.CreateMessage(payload.ConversationID, sender, recipient, content)
	observability.PersistDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		r.log.Error("Unable to persist message, send aborted",
			"conversation_id", payload.ConversationID, "error", err)
		return domain.Message{}, err
	}
	observability.Persisted.WithLabelValues("message").Inc()

	envelope := domain.ChatEnvelope(message)
	delivered := r.deliver(recipient, envelope)
	delivered += r.deliver(sender, envelope)
	if r.monitor != nil {
		r.monitor.IncrMessagesSent()
	}
	r.log.Debug("Message dispatched",
		"conversation_id", message.ConversationID,
		"message_id", message.ID,
		"connections", delivered)
	return message, nil
}

// PublishNotification stores a notification for owner and pushes it to all
// of owner's live connections.
func (r *Router) PublishNotification(_ context.Context, owner domain.Identity, text string, link *string) (domain.Notification, error) {
	notification, err := r.store.CreateNotification(owner, text, link)
	if err != nil {
		r.log.Error("Unable to persist notification", "owner", owner.String(), "error", err)
		return domain.Notification{}, err
	}
	observability.Persisted.WithLabelValues("notification").Inc()

	delivered := r.deliver(owner, domain.NotificationEnvelope(notification))
	if r.monitor != nil {
		r.monitor.IncrNotificationsSent()
	}
	r.log.Debug("Notification dispatched",
		"owner", owner.String(),
		"notification_id", notification.ID.String(),
		"connections", delivered)
	return notification, nil
}

// deliver enqueues env on every connection of identity and returns how many accepted it.
func (r *Router) deliver(identity domain.Identity, env domain.Envelope) int {
	delivered := 0
	for _, session := range r.registry.ConnectionsFor(identity) {
		if err := session.Enqueue(env); err != nil {
			// overflow is counted by the connection itself
			if !errors.Is(err, errors.ErrQueueOverflow) {
				observability.DeliveryFailures.WithLabelValues("closed").Inc()
			}
			r.log.Warn("Delivery failed",
				"identity", identity.String(),
				"connection_id", session.ID().String(),
				"error", err)
			continue
		}
		observability.EnvelopesDelivered.WithLabelValues(string(env.Type)).Inc()
		delivered++
	}
	return delivered
}

func (r *Router) emit(ctx context.Context, evt event.DomainEvent) {
	if r.events == nil {
		return
	}
	select {
	case r.events <- evt:
	case <-ctx.Done():
		r.log.Warn("Context done, domain event lost", "type", evt.Type())
	}
}
