package e2e

import (
	"chat-relay/client"
	"chat-relay/domain"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type testChatSuite struct {
	BaseRelaySuite
}

func TestChatSuite(t *testing.T) {
	suite.Run(t, &testChatSuite{})
}

func (s *testChatSuite) TestConversationFlow() {
	candidate := domain.NewIdentity(domain.KindUser, "candidate-"+uuid.NewString()[:8])
	recruiter := domain.NewIdentity(domain.KindEmployer, "recruiter-"+uuid.NewString()[:8])
	var conversation domain.Conversation

	// --- STEP 1: START CONVERSATION ---
	s.Run("Step 1: Start a conversation over REST", func() {
		api := client.NewAPI(s.Config.RelayURL, s.Tokens(candidate), s.HTTPClient(s.T()))
		var err error
		conversation, err = api.StartConversation(context.Background(), recruiter)
		s.Require().NoError(err)
		s.Require().True(conversation.HasParticipant(candidate))
		s.Require().True(conversation.HasParticipant(recruiter))

		again, err := api.StartConversation(context.Background(), recruiter)
		s.Require().NoError(err)
		s.Require().Equal(conversation.ID, again.ID, "a pair must map to one conversation")
	})

	// --- STEP 2: LIVE DELIVERY ---
	s.Run("Step 2: Message is pushed to the recipient", func() {
		s.WithClient("Recruiter online", recruiter, func(ctx context.Context, recruiterClient *client.Client) {
			received := make(chan domain.Message, 1)
			recruiterClient.OnMessage(func(m domain.Message) { received <- m })

			s.WithClient("Candidate sends", candidate, func(ctx context.Context, candidateClient *client.Client) {
				s.Require().NoError(candidateClient.Send(domain.ChatSendPayload{
					ConversationID: conversation.ID,
					RecipientID:    recruiter.ID,
					RecipientType:  recruiter.Kind,
					Content:        "Hello, is the position still open?",
				}))
				s.Require().Eventually(func() bool {
					return candidateClient.Cache().LastMessageID(conversation.ID) == 1
				}, 5*time.Second, 50*time.Millisecond, "sender never got its echo")
			})

			select {
			case m := <-received:
				s.Require().Equal(int64(1), m.ID)
				s.Require().Equal(candidate, m.Sender)
			case <-time.After(5 * time.Second):
				s.FailNow("recipient never received the message")
			}
		})
	})

	// --- STEP 3: READ STATE ---
	s.Run("Step 3: Unread counter and read watermark", func() {
		api := client.NewAPI(s.Config.RelayURL, s.Tokens(recruiter), s.HTTPClient(s.T()))
		ctx := context.Background()
		conversations, err := api.ListConversations(ctx)
		s.Require().NoError(err)
		s.Require().Len(conversations, 1)
		s.Require().Equal(1, conversations[0].UnreadFor(recruiter))

		s.Require().NoError(api.MarkConversationRead(ctx, conversation.ID))
		page, err := api.ListMessages(ctx, conversation.ID, 1, 10)
		s.Require().NoError(err)
		s.Require().Len(page.Messages, 1)
		s.Require().True(page.Messages[0].Read)
	})

	// --- STEP 4: NOTIFICATIONS ---
	s.Run("Step 4: Message produced a notification", func() {
		api := client.NewAPI(s.Config.RelayURL, s.Tokens(recruiter), s.HTTPClient(s.T()))
		ctx := context.Background()
		s.Require().Eventually(func() bool {
			page, err := api.ListNotifications(ctx, 1, 10)
			return err == nil && page.Unread == 1
		}, 5*time.Second, 100*time.Millisecond, "notification not found within timeout")

		s.Require().NoError(api.MarkAllNotificationsRead(ctx))
		page, err := api.ListNotifications(ctx, 1, 10)
		s.Require().NoError(err)
		s.Require().Zero(page.Unread)
		s.Require().Equal("/messages/"+conversation.ID, *page.Notifications[0].Link)
	})
}
