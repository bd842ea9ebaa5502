package domain

import "time"

// Conversation pairs exactly one user with one employer.
// Unread counters are keyed by Identity.String().
type Conversation struct {
	ID           string         `json:"id"`
	Participants [2]Identity    `json:"participants"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	Unread       map[string]int `json:"unread"`
	// ReadThrough is the highest message id each participant has marked read.
	ReadThrough map[string]int64 `json:"read_through"`
	LastMessage *MessagePreview  `json:"last_message,omitempty"`
	// Sequence is the id of the latest message; ids start at 1.
	Sequence int64 `json:"sequence"`
}

type MessagePreview struct {
	ID        int64     `json:"id"`
	Sender    Identity  `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidPair reports whether a and b may share a conversation.
func ValidPair(a, b Identity) bool {
	if a.Validate() != nil || b.Validate() != nil {
		return false
	}
	return (a.Kind == KindUser && b.Kind == KindEmployer) ||
		(a.Kind == KindEmployer && b.Kind == KindUser)
}

// PairKey is the same for (a, b) and (b, a).
func PairKey(a, b Identity) string {
	x, y := a.String(), b.String()
	if x > y {
		x, y = y, x
	}
	return x + "|" + y
}

func (c Conversation) HasParticipant(identity Identity) bool {
	return c.Participants[0] == identity || c.Participants[1] == identity
}

// Counterpart returns the other participant.
func (c Conversation) Counterpart(identity Identity) (Identity, bool) {
	switch identity {
	case c.Participants[0]:
		return c.Participants[1], true
	case c.Participants[1]:
		return c.Participants[0], true
	default:
		return Identity{}, false
	}
}

func (c Conversation) UnreadFor(identity Identity) int {
	return c.Unread[identity.String()]
}
