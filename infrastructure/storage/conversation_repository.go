package storage

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

func conversationKey(id string) []byte {
	return []byte("conv:" + id)
}

func pairKey(a, b domain.Identity) []byte {
	return []byte("conv-pair:" + domain.PairKey(a, b))
}

func memberPrefix(identity domain.Identity) []byte {
	return []byte(fmt.Sprintf("conv-member:%s:", identity))
}

func memberKey(identity domain.Identity, conversationID string) []byte {
	return append(memberPrefix(identity), conversationID...)
}

// canonicalPair orders participants as [user, employer].
func canonicalPair(a, b domain.Identity) [2]domain.Identity {
	if a.Kind == domain.KindEmployer {
		return [2]domain.Identity{b, a}
	}
	return [2]domain.Identity{a, b}
}

// CreateConversation returns the conversation of the unordered pair (a, b),
// creating it on first use.
func (s *Store) CreateConversation(a, b domain.Identity) (domain.Conversation, error) {
	if !domain.ValidPair(a, b) {
		return domain.Conversation{}, errors.ErrInvalidParticipants
	}
	pair := pairKey(a, b)
	unlock := s.lock(string(pair))
	defer unlock()

	var conversation domain.Conversation
	err := s.update(func(txn *badger.Txn) error {
		item, err := txn.Get(pair)
		switch {
		case err == nil:
			return item.Value(func(val []byte) error {
				return getJSON(txn, conversationKey(string(val)), &conversation)
			})
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		now := s.now().UTC()
		participants := canonicalPair(a, b)
		conversation = domain.Conversation{
			ID:           uuid.NewString(),
			Participants: participants,
			CreatedAt:    now,
			UpdatedAt:    now,
			Unread: map[string]int{
				participants[0].String(): 0,
				participants[1].String(): 0,
			},
			ReadThrough: map[string]int64{},
		}
		if err = setJSON(txn, conversationKey(conversation.ID), conversation); err != nil {
			return err
		}
		if err = txn.Set(pair, []byte(conversation.ID)); err != nil {
			return err
		}
		for _, participant := range participants {
			if err = txn.Set(memberKey(participant, conversation.ID), nil); err != nil {
				return err
			}
		}
		s.log.Debug("Conversation created", "conversation_id", conversation.ID)
		return nil
	})
	if err != nil {
		return domain.Conversation{}, persistenceError(err)
	}
	return conversation, nil
}

func (s *Store) GetConversation(conversationID string) (domain.Conversation, error) {
	var conversation domain.Conversation
	err := s.db.View(func(txn *badger.Txn) error {
		return readConversation(txn, conversationID, &conversation)
	})
	if err != nil {
		return domain.Conversation{}, persistenceError(err)
	}
	return conversation, nil
}

func readConversation(txn *badger.Txn, conversationID string, conversation *domain.Conversation) error {
	err := getJSON(txn, conversationKey(conversationID), conversation)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", errors.ErrConversationNotFound, conversationID)
	}
	return err
}

// ListConversations returns every conversation of identity, most recently updated first.
func (s *Store) ListConversations(identity domain.Identity) ([]domain.Conversation, error) {
	conversations := make([]domain.Conversation, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := memberPrefix(identity)
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			conversationID := string(it.Item().Key()[len(prefix):])
			var conversation domain.Conversation
			if err := readConversation(txn, conversationID, &conversation); err != nil {
				return err
			}
			conversations = append(conversations, conversation)
		}
		return nil
	})
	if err != nil {
		return nil, persistenceError(err)
	}
	sort.SliceStable(conversations, func(i, j int) bool {
		return conversations[i].UpdatedAt.After(conversations[j].UpdatedAt)
	})
	return conversations, nil
}

// MarkConversationRead zeroes the unread counter of identity and moves its
// read watermark to the latest message. The other participant is untouched.
func (s *Store) MarkConversationRead(conversationID string, identity domain.Identity) error {
	unlock := s.lock(conversationID)
	defer unlock()

	err := s.update(func(txn *badger.Txn) error {
		var conversation domain.Conversation
		if err := readConversation(txn, conversationID, &conversation); err != nil {
			return err
		}
		if !conversation.HasParticipant(identity) {
			return errors.ErrPermissionDenied
		}
		key := identity.String()
		if conversation.Unread[key] == 0 && conversation.ReadThrough[key] == conversation.Sequence {
			return nil
		}
		if conversation.Unread == nil {
			conversation.Unread = map[string]int{}
		}
		if conversation.ReadThrough == nil {
			conversation.ReadThrough = map[string]int64{}
		}
		conversation.Unread[key] = 0
		conversation.ReadThrough[key] = conversation.Sequence
		return setJSON(txn, conversationKey(conversationID), conversation)
	})
	return persistenceError(err)
}
