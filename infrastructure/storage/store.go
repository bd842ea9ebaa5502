package storage

import (
	"chat-relay/contract"
	"chat-relay/errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	jsoniter "github.com/json-iterator/go"
)

const (
	maxConflictRetries = 5
	lockStripes        = 64
)

var (
	_    contract.IStore = (*Store)(nil)
	json                 = jsoniter.ConfigCompatibleWithStandardLibrary
)

// Store persists conversations, messages and notifications in BadgerDB.
//
// Key layout:
//
//	conv:{conversation_id}                       -> Conversation
//	conv-pair:{identity}|{identity}              -> conversation_id
//	conv-member:{identity}:{conversation_id}     -> empty
//	msg:{conversation_id}:{id_padded}            -> Message
//	ntf:{owner}:{timestamp_padded}:{uuid}        -> Notification
//	ntf-id:{uuid}                                -> ntf key
//
// Message ids are zero padded to 20 digits so that lexicographical order
// equals id order. Writes touching a conversation are serialized on a
// striped lock; Badger's optimistic conflict detection is kept as a backstop.
type Store struct {
	db    *badger.DB
	log   *slog.Logger
	locks [lockStripes]sync.Mutex
	now   func() time.Time
}

func NewStore(db *badger.DB, log *slog.Logger) *Store {
	return &Store{db: db, log: log, now: time.Now}
}

func (s *Store) lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	m := &s.locks[h.Sum32()%lockStripes]
	m.Lock()
	return m.Unlock
}

// update runs fn in a read-write transaction, retrying on write conflicts.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 1; attempt <= maxConflictRetries; attempt++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debug("Transaction conflict, retrying", "attempt", attempt)
	}
	return err
}

func getJSON(txn *badger.Txn, key []byte, target any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, target)
	})
}

func setJSON(txn *badger.Txn, key []byte, value any) error {
	bytes, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return txn.Set(key, bytes)
}

// persistenceError wraps infrastructure failures; domain errors pass through.
func persistenceError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errors.ErrConversationNotFound),
		errors.Is(err, errors.ErrPermissionDenied),
		errors.Is(err, errors.ErrInvalidParticipants):
		return err
	default:
		return fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}
}
