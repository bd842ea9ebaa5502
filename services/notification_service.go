package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"fmt"

	"github.com/google/uuid"
)

type INotificationService interface {
	List(cmd domain.ListNotificationsCommand) (NotificationPage, error)
	MarkRead(owner domain.Identity, ids []uuid.UUID) error
	MarkAllRead(owner domain.Identity) error
}

type NotificationPage struct {
	Notifications []domain.Notification `json:"notifications"`
	Page          int                   `json:"page"`
	Limit         int                   `json:"limit"`
	Total         int                   `json:"total"`
	Unread        int                   `json:"unread"`
}

type NotificationService struct {
	store  contract.IStore
	paging domain.Paging
}

func NewNotificationService(store contract.IStore, paging domain.Paging) *NotificationService {
	return &NotificationService{store: store, paging: paging}
}

func (s *NotificationService) List(cmd domain.ListNotificationsCommand) (NotificationPage, error) {
	page, limit := s.paging.Normalize(cmd.Page, cmd.Limit)
	notifications, total, unread, err := s.store.ListNotifications(cmd.Owner, page, limit)
	if err != nil {
		return NotificationPage{}, err
	}
	return NotificationPage{
		Notifications: notifications,
		Page:          page,
		Limit:         limit,
		Total:         total,
		Unread:        unread,
	}, nil
}

func (s *NotificationService) MarkRead(owner domain.Identity, ids []uuid.UUID) error {
	return s.store.MarkNotificationsRead(owner, ids)
}

func (s *NotificationService) MarkAllRead(owner domain.Identity) error {
	return s.store.MarkAllNotificationsRead(owner)
}

var _ INotificationService = (*NotificationService)(nil)

// ParseIDs converts notification ids received as strings.
func ParseIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		id, err := uuid.Parse(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
