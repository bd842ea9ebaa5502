package workers

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/observability"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
)

// StatusChangedMessage is published on the relay channel by other services.
type StatusChangedMessage struct {
	Type      string      `json:"type"`
	OwnerID   string      `json:"owner_id"`
	OwnerType domain.Kind `json:"owner_type"`
	Subject   string      `json:"subject"`
	Status    string      `json:"status"`
	Link      *string     `json:"link,omitempty"`
}

// RedisRelayWorker ingests external domain events from a Redis channel.
// A broken subscription makes Run fail so that the supervisor reconnects.
type RedisRelayWorker struct {
	client  redis.UniversalClient
	channel string
	events  chan<- event.DomainEvent
	log     *slog.Logger
	now     func() time.Time
}

func NewRedisRelayWorker(client redis.UniversalClient, channel string,
	events chan<- event.DomainEvent, log *slog.Logger) *RedisRelayWorker {
	return &RedisRelayWorker{client: client, channel: channel, events: events, log: log, now: time.Now}
}

func (w *RedisRelayWorker) Run(ctx context.Context) error {
	pubsub := w.client.Subscribe(ctx, w.channel)
	defer func() {
		if err := pubsub.Close(); err != nil {
			w.log.Debug("Closing redis subscription", "error", err)
		}
	}()

	// Receive the subscription confirmation so that connection errors surface here
	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe %s: %w", w.channel, err)
	}
	w.log.Info("Relay subscribed", "channel", w.channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping relay")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("relay channel %s closed", w.channel)
			}
			w.handle(ctx, msg.Payload)
		}
	}
}

func (w *RedisRelayWorker) handle(ctx context.Context, payload string) {
	evt, err := w.decode(payload)
	if err != nil {
		observability.RelayEvents.WithLabelValues("rejected").Inc()
		w.log.Warn("Dropping external event", "error", err)
		return
	}
	select {
	case w.events <- evt:
		observability.RelayEvents.WithLabelValues("accepted").Inc()
	case <-ctx.Done():
	}
}

func (w *RedisRelayWorker) decode(payload string) (event.StatusChanged, error) {
	var msg StatusChangedMessage
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.UnmarshalFromString(payload, &msg); err != nil {
		return event.StatusChanged{}, fmt.Errorf("%w: %v", errors.ErrMalformedEnvelope, err)
	}
	if msg.Type != string(event.StatusChangedType) {
		return event.StatusChanged{}, fmt.Errorf("%w: unrecognized type %q", errors.ErrMalformedEnvelope, msg.Type)
	}
	owner := domain.NewIdentity(msg.OwnerType, msg.OwnerID)
	if err := owner.Validate(); err != nil {
		return event.StatusChanged{}, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	if strings.TrimSpace(msg.Subject) == "" || strings.TrimSpace(msg.Status) == "" {
		return event.StatusChanged{}, fmt.Errorf("%w: subject and status are required", errors.ErrInvalidPayload)
	}
	return event.StatusChanged{
		Owner:   owner,
		Subject: msg.Subject,
		Status:  msg.Status,
		Link:    msg.Link,
		At:      w.now().UTC(),
	}, nil
}
