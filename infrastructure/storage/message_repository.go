package storage

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

func messagePrefix(conversationID string) []byte {
	return []byte(fmt.Sprintf("msg:%s:", conversationID))
}

// messageKey pads the id to 20 digits so that keys sort in id order.
func messageKey(conversationID string, id int64) []byte {
	return []byte(fmt.Sprintf("msg:%s:%020d", conversationID, id))
}

// CreateMessage persists a message and bumps the recipient's unread counter
// in one transaction. The message id is the conversation's next sequence number.
func (s *Store) CreateMessage(conversationID string, sender, recipient domain.Identity, content string) (domain.Message, error) {
	unlock := s.lock(conversationID)
	defer unlock()

	var message domain.Message
	err := s.update(func(txn *badger.Txn) error {
		var conversation domain.Conversation
		if err := readConversation(txn, conversationID, &conversation); err != nil {
			return err
		}
		counterpart, ok := conversation.Counterpart(sender)
		if !ok || counterpart != recipient {
			return errors.ErrPermissionDenied
		}

		message = domain.Message{
			ID:             conversation.Sequence + 1,
			ConversationID: conversationID,
			Sender:         sender,
			Recipient:      recipient,
			Content:        content,
			CreatedAt:      s.now().UTC(),
		}
		if err := setJSON(txn, messageKey(conversationID, message.ID), message); err != nil {
			return err
		}

		if conversation.Unread == nil {
			conversation.Unread = map[string]int{}
		}
		conversation.Sequence = message.ID
		conversation.Unread[recipient.String()]++
		conversation.UpdatedAt = message.CreatedAt
		conversation.LastMessage = message.Preview()
		return setJSON(txn, conversationKey(conversationID), conversation)
	})
	if err != nil {
		return domain.Message{}, persistenceError(err)
	}
	return message, nil
}

// ListMessages returns one page of a conversation, most recent first, and the
// total number of messages. Pages start at 1. Since ids are dense, the page
// window is located with a single seek instead of skipping records.
func (s *Store) ListMessages(conversationID string, page, limit int) ([]domain.Message, int, error) {
	if page < 1 {
		page = 1
	}
	messages := make([]domain.Message, 0, limit)
	var total int
	err := s.db.View(func(txn *badger.Txn) error {
		var conversation domain.Conversation
		if err := readConversation(txn, conversationID, &conversation); err != nil {
			return err
		}
		total = int(conversation.Sequence)
		top := conversation.Sequence - int64((page-1)*limit)
		if top < 1 || limit <= 0 {
			return nil
		}

		prefix := messagePrefix(conversationID)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.PrefetchSize = limit
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(messageKey(conversationID, top)); it.ValidForPrefix(prefix) && len(messages) < limit; it.Next() {
			var message domain.Message
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &message)
			})
			if err != nil {
				return err
			}
			message.Read = message.ID <= conversation.ReadThrough[message.Recipient.String()]
			messages = append(messages, message)
		}
		return nil
	})
	if err != nil {
		return nil, 0, persistenceError(err)
	}
	return messages, total, nil
}
