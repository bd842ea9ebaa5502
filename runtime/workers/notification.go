package workers

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"context"
	"fmt"
	"log/slog"
)

// NotificationWorker turns domain events into persisted, pushed notifications.
type NotificationWorker struct {
	router contract.IRouter
	events <-chan event.DomainEvent
	log    *slog.Logger
}

func NewNotificationWorker(router contract.IRouter, events <-chan event.DomainEvent, log *slog.Logger) *NotificationWorker {
	return &NotificationWorker{router: router, events: events, log: log}
}

func (w NotificationWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping notification worker")
			return nil
		case evt, ok := <-w.events:
			if !ok {
				w.log.Debug("Event channel is closed")
				return nil
			}
			w.handle(ctx, evt)
		}
	}
}

func (w NotificationWorker) handle(ctx context.Context, e event.DomainEvent) {
	var err error
	switch evt := e.(type) {
	case event.MessageCreated:
		link := fmt.Sprintf("/messages/%s", evt.Message.ConversationID)
		text := fmt.Sprintf("New message from %s", evt.Message.Sender.ID)
		_, err = w.router.PublishNotification(ctx, evt.Message.Recipient, text, &link)
	case event.StatusChanged:
		text := fmt.Sprintf("%s: %s", evt.Subject, evt.Status)
		_, err = w.router.PublishNotification(ctx, evt.Owner, text, evt.Link)
	default:
		w.log.Debug("Ignoring event", "type", e.Type())
		return
	}
	if err != nil {
		w.log.Error("Unable to publish notification", "type", e.Type(), "error", err)
	}
}
