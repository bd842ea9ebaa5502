package workers

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/mocks"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var (
	alice = domain.NewIdentity(domain.KindUser, "alice")
	acme  = domain.NewIdentity(domain.KindEmployer, "acme")
)

func TestNotificationWorker_Publishes_For_Each_Event(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	router := mocks.NewMockIRouter(ctrl)
	events := make(chan event.DomainEvent, 2)
	worker := NewNotificationWorker(router, events, logs.GetLoggerFromLevel(slog.LevelDebug))

	published := make(chan struct{}, 2)
	router.EXPECT().
		PublishNotification(gomock.Any(), acme, "New message from alice", lo.ToPtr("/messages/conv-1")).
		DoAndReturn(func(context.Context, domain.Identity, string, *string) (domain.Notification, error) {
			published <- struct{}{}
			return domain.Notification{}, nil
		})
	router.EXPECT().
		PublishNotification(gomock.Any(), alice, "Application for Backend Engineer: interview", lo.ToPtr("/applications/9")).
		DoAndReturn(func(context.Context, domain.Identity, string, *string) (domain.Notification, error) {
			published <- struct{}{}
			return domain.Notification{}, errors.ErrPersistence
		})

	events <- event.MessageCreated{Message: domain.Message{ID: 1, ConversationID: "conv-1", Sender: alice, Recipient: acme}}
	events <- event.StatusChanged{Owner: alice, Subject: "Application for Backend Engineer", Status: "interview", Link: lo.ToPtr("/applications/9")}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- worker.Run(ctx) }()

	for range 2 {
		select {
		case <-published:
		case <-time.After(time.Second):
			req.Fail("notification not published")
		}
	}
	cancel()
	req.NoError(<-done)
}

func TestNotificationWorker_Stops_When_Channel_Closed(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	events := make(chan event.DomainEvent)
	close(events)

	worker := NewNotificationWorker(mocks.NewMockIRouter(ctrl), events, logs.GetLoggerFromLevel(slog.LevelDebug))
	req.NoError(worker.Run(context.Background()))
}
