package client

import (
	"chat-relay/domain"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Cache holds what the client has seen so far. Every apply is keyed by id,
// so a message received both live and through backfill is stored once.
type Cache struct {
	mu            sync.RWMutex
	messages      map[string]map[int64]domain.Message
	notifications map[uuid.UUID]domain.Notification
}

func NewCache() *Cache {
	return &Cache{
		messages:      make(map[string]map[int64]domain.Message),
		notifications: make(map[uuid.UUID]domain.Notification),
	}
}

// ApplyMessage stores m and reports whether it was new.
func (c *Cache) ApplyMessage(m domain.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	conversation, ok := c.messages[m.ConversationID]
	if !ok {
		conversation = make(map[int64]domain.Message)
		c.messages[m.ConversationID] = conversation
	}
	if _, seen := conversation[m.ID]; seen {
		return false
	}
	conversation[m.ID] = m
	return true
}

// ApplyNotification stores n and reports whether it was new. A known
// notification only has its read flag refreshed.
func (c *Cache) ApplyNotification(n domain.Notification) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if known, seen := c.notifications[n.ID]; seen {
		known.Read = known.Read || n.Read
		c.notifications[n.ID] = known
		return false
	}
	c.notifications[n.ID] = n
	return true
}

// Messages returns the cached history of a conversation, oldest first.
func (c *Cache) Messages(conversationID string) []domain.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	messages := lo.Values(c.messages[conversationID])
	sort.Slice(messages, func(i, j int) bool { return messages[i].ID < messages[j].ID })
	return messages
}

// LastMessageID is 0 when nothing is known about the conversation.
func (c *Cache) LastMessageID(conversationID string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return lo.Max(lo.Keys(c.messages[conversationID]))
}

// Cursors returns the last known message id of every cached conversation.
func (c *Cache) Cursors() map[string]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return lo.MapValues(c.messages, func(messages map[int64]domain.Message, _ string) int64 {
		return lo.Max(lo.Keys(messages))
	})
}

// Notifications returns every cached notification, newest first.
func (c *Cache) Notifications() []domain.Notification {
	c.mu.RLock()
	defer c.mu.RUnlock()
	notifications := lo.Values(c.notifications)
	sort.Slice(notifications, func(i, j int) bool {
		return notifications[i].CreatedAt.After(notifications[j].CreatedAt)
	})
	return notifications
}

func (c *Cache) Unread() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return lo.CountBy(lo.Values(c.notifications), func(n domain.Notification) bool { return !n.Read })
}
