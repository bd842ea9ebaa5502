package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"fmt"
	"log/slog"
)

type IChatService interface {
	ListConversations(identity domain.Identity) ([]domain.Conversation, error)
	StartConversation(identity, participant domain.Identity) (domain.Conversation, error)
	ListMessages(cmd domain.ListMessagesCommand) (MessagePage, error)
	MarkConversationRead(conversationID string, identity domain.Identity) error
}

// MessagePage is one page of history, newest first.
type MessagePage struct {
	Messages []domain.Message `json:"messages"`
	Page     int              `json:"page"`
	Limit    int              `json:"limit"`
	Total    int              `json:"total"`
}

type ChatService struct {
	store  contract.IStore
	paging domain.Paging
	log    *slog.Logger
}

func NewChatService(store contract.IStore, paging domain.Paging, log *slog.Logger) *ChatService {
	return &ChatService{store: store, paging: paging, log: log}
}

func (s *ChatService) ListConversations(identity domain.Identity) ([]domain.Conversation, error) {
	return s.store.ListConversations(identity)
}

// StartConversation returns the conversation between identity and participant,
// creating it the first time.
func (s *ChatService) StartConversation(identity, participant domain.Identity) (domain.Conversation, error) {
	if err := domain.ValidateIdentity(participant); err != nil {
		return domain.Conversation{}, err
	}
	return s.store.CreateConversation(identity, participant)
}

func (s *ChatService) ListMessages(cmd domain.ListMessagesCommand) (MessagePage, error) {
	if err := s.checkParticipant(cmd.ConversationID, cmd.Actor); err != nil {
		return MessagePage{}, err
	}
	page, limit := s.paging.Normalize(cmd.Page, cmd.Limit)
	messages, total, err := s.store.ListMessages(cmd.ConversationID, page, limit)
	if err != nil {
		return MessagePage{}, err
	}
	return MessagePage{Messages: messages, Page: page, Limit: limit, Total: total}, nil
}

func (s *ChatService) MarkConversationRead(conversationID string, identity domain.Identity) error {
	return s.store.MarkConversationRead(conversationID, identity)
}

func (s *ChatService) checkParticipant(conversationID string, identity domain.Identity) error {
	conversation, err := s.store.GetConversation(conversationID)
	if err != nil {
		return err
	}
	if !conversation.HasParticipant(identity) {
		s.log.Debug("History refused", "conversation_id", conversationID, "identity", identity.String())
		return fmt.Errorf("%w: %s", errors.ErrPermissionDenied, conversationID)
	}
	return nil
}

var _ IChatService = (*ChatService)(nil)
