package storage

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// markReadChunk bounds the number of writes per transaction so that
// marking a large inbox as read never hits badger.ErrTxnTooBig.
const markReadChunk = 500

func notificationPrefix(owner domain.Identity) []byte {
	return []byte(fmt.Sprintf("ntf:%s:", owner))
}

// notificationKey is "ntf:{owner}:{timestamp_padded}:{uuid}" so that an owner's
// notifications sort chronologically; the uuid breaks ties.
func notificationKey(notification domain.Notification) []byte {
	return []byte(fmt.Sprintf("ntf:%s:%019d:%s",
		notification.Owner,
		notification.CreatedAt.UnixNano(),
		notification.ID,
	))
}

func notificationIndexKey(id uuid.UUID) []byte {
	return []byte("ntf-id:" + id.String())
}

func (s *Store) CreateNotification(owner domain.Identity, text string, link *string) (domain.Notification, error) {
	notification := domain.Notification{
		ID:        uuid.New(),
		Owner:     owner,
		Text:      text,
		Link:      link,
		CreatedAt: s.now().UTC(),
	}
	err := s.update(func(txn *badger.Txn) error {
		key := notificationKey(notification)
		if err := setJSON(txn, key, notification); err != nil {
			return err
		}
		return txn.Set(notificationIndexKey(notification.ID), key)
	})
	if err != nil {
		return domain.Notification{}, persistenceError(err)
	}
	return notification, nil
}

// ListNotifications returns one page of owner's notifications, newest first,
// along with the total and unread counts over the whole inbox.
func (s *Store) ListNotifications(owner domain.Identity, page, limit int) ([]domain.Notification, int, int, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit
	notifications := make([]domain.Notification, 0, max(limit, 0))
	var total, unread int
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := notificationPrefix(owner)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		seek := append(prefix, 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			var notification domain.Notification
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &notification)
			})
			if err != nil {
				return err
			}
			if !notification.Read {
				unread++
			}
			if total >= offset && len(notifications) < limit {
				notifications = append(notifications, notification)
			}
			total++
		}
		return nil
	})
	if err != nil {
		return nil, 0, 0, persistenceError(err)
	}
	return notifications, total, unread, nil
}

// MarkNotificationsRead flags ids as read. Ids that are unknown, already read
// or owned by someone else are skipped, so the call is idempotent. Large
// batches are written in several transactions.
func (s *Store) MarkNotificationsRead(owner domain.Identity, ids []uuid.UUID) error {
	for _, chunk := range lo.Chunk(lo.Uniq(ids), markReadChunk) {
		err := s.update(func(txn *badger.Txn) error {
			for _, id := range chunk {
				item, err := txn.Get(notificationIndexKey(id))
				if errors.Is(err, badger.ErrKeyNotFound) {
					continue
				}
				if err != nil {
					return err
				}
				key, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				if err = s.markRead(txn, owner, key); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return persistenceError(err)
		}
	}
	return nil
}

func (s *Store) MarkAllNotificationsRead(owner domain.Identity) error {
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := notificationPrefix(owner)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var notification domain.Notification
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &notification)
			})
			if err != nil {
				return err
			}
			if !notification.Read {
				keys = append(keys, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return persistenceError(err)
	}

	for _, chunk := range lo.Chunk(keys, markReadChunk) {
		err = s.update(func(txn *badger.Txn) error {
			for _, key := range chunk {
				if err := s.markRead(txn, owner, key); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return persistenceError(err)
		}
	}
	s.log.Debug("Notifications marked as read", "owner", owner.String(), "count", len(keys))
	return nil
}

func (s *Store) markRead(txn *badger.Txn, owner domain.Identity, key []byte) error {
	var notification domain.Notification
	err := getJSON(txn, key, &notification)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if notification.Owner != owner || notification.Read {
		return nil
	}
	notification.Read = true
	return setJSON(txn, key, notification)
}
