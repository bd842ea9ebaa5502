package domain

import "time"

// Message is immutable once persisted. ID is strictly increasing within
// its conversation; sequences of different conversations are independent.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Sender         Identity  `json:"sender"`
	Recipient      Identity  `json:"recipient"`
	Content        string    `json:"content"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"created_at"`
}

func (m Message) Preview() *MessagePreview {
	return &MessagePreview{ID: m.ID, Sender: m.Sender, Content: m.Content, CreatedAt: m.CreatedAt}
}
