package workers

import (
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func TestRedisRelayWorker_Decode(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	worker := NewRedisRelayWorker(nil, "events", nil, logs.GetLoggerFromLevel(slog.LevelDebug))
	worker.now = func() time.Time { return at }

	tests := []struct {
		name     string
		payload  string
		expected event.StatusChanged
		err      error
	}{
		{
			name:    "Status change with link",
			payload: `{"type":"status_changed","owner_id":"alice","owner_type":"user","subject":"Application for Backend Engineer","status":"interview","link":"/applications/9"}`,
			expected: event.StatusChanged{
				Owner:   alice,
				Subject: "Application for Backend Engineer",
				Status:  "interview",
				Link:    lo.ToPtr("/applications/9"),
				At:      at,
			},
		},
		{
			name:     "Status change without link",
			payload:  `{"type":"status_changed","owner_id":"acme","owner_type":"employer","subject":"Job Go developer","status":"closed"}`,
			expected: event.StatusChanged{Owner: acme, Subject: "Job Go developer", Status: "closed", At: at},
		},
		{name: "Not json", payload: `status_changed`, err: errors.ErrMalformedEnvelope},
		{name: "Unknown type", payload: `{"type":"typing","owner_id":"alice","owner_type":"user"}`, err: errors.ErrMalformedEnvelope},
		{name: "Unknown owner kind", payload: `{"type":"status_changed","owner_id":"x","owner_type":"robot","subject":"s","status":"s"}`, err: errors.ErrInvalidPayload},
		{name: "Missing status", payload: `{"type":"status_changed","owner_id":"alice","owner_type":"user","subject":"s"}`, err: errors.ErrInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			evt, err := worker.decode(tt.payload)
			if tt.err != nil {
				req.ErrorIs(err, tt.err)
				return
			}
			req.NoError(err)
			req.Equal(tt.expected, evt)
		})
	}
}

func TestRedisRelayWorker_Handle_Forwards_Valid_Events(t *testing.T) {
	req := require.New(t)
	events := make(chan event.DomainEvent, 1)
	worker := NewRedisRelayWorker(nil, "events", events, logs.GetLoggerFromLevel(slog.LevelDebug))

	worker.handle(context.Background(), `{"type":"oops"}`)
	req.Empty(events)

	worker.handle(context.Background(), `{"type":"status_changed","owner_id":"alice","owner_type":"user","subject":"Offer","status":"accepted"}`)
	evt := <-events
	req.Equal(event.StatusChangedType, evt.Type())
}
