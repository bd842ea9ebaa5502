package domain

// ListMessagesCommand asks for one page of a conversation history, newest first.
// Page starts at 1.
type ListMessagesCommand struct {
	ConversationID string
	Actor          Identity
	Page           int
	Limit          int
}

type ListNotificationsCommand struct {
	Owner Identity
	Page  int
	Limit int
}

// Paging clamps page and limit to sane bounds.
type Paging struct {
	DefaultLimit int
	MaxLimit     int
}

func (p Paging) Normalize(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = p.DefaultLimit
	}
	if p.MaxLimit > 0 && limit > p.MaxLimit {
		limit = p.MaxLimit
	}
	return page, limit
}
