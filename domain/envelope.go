package domain

type EnvelopeType string

const (
	EnvelopeChat         EnvelopeType = "chat"
	EnvelopeNotification EnvelopeType = "notification"
	// EnvelopeError is only ever sent to the connection that caused it.
	EnvelopeError EnvelopeType = "error"
)

// Envelope multiplexes chat and notification streams over one connection.
// Payload is a Message, a Notification or an ErrorPayload.
type Envelope struct {
	Type    EnvelopeType `json:"type"`
	Payload any          `json:"payload"`
}

func ChatEnvelope(m Message) Envelope {
	return Envelope{Type: EnvelopeChat, Payload: m}
}

func NotificationEnvelope(n Notification) Envelope {
	return Envelope{Type: EnvelopeNotification, Payload: n}
}

func ErrorEnvelope(code, message string) Envelope {
	return Envelope{Type: EnvelopeError, Payload: ErrorPayload{Code: code, Message: message}}
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ChatSendPayload is what a client sends inside a chat envelope.
type ChatSendPayload struct {
	ConversationID string `json:"conversation_id" validate:"required"`
	RecipientID    string `json:"recipient_id" validate:"required"`
	RecipientType  Kind   `json:"recipient_type" validate:"required,oneof=user employer admin"`
	Content        string `json:"content" validate:"required"`
}

func (p ChatSendPayload) Recipient() Identity {
	return Identity{ID: p.RecipientID, Kind: p.RecipientType}
}
