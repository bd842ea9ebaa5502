// Package protocol encodes and decodes envelopes exchanged on the socket.
package protocol

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

// JSON is the codec used for every frame.
var JSON = jsoniter.ConfigCompatibleWithStandardLibrary

type rawEnvelope struct {
	Type    domain.EnvelopeType `json:"type"`
	Payload jsoniter.RawMessage `json:"payload"`
}

func Encode(env domain.Envelope) ([]byte, error) {
	return JSON.Marshal(env)
}

// DecodeInbound parses a client frame. Clients only ever send chat envelopes,
// anything else is reported as ErrMalformedEnvelope.
func DecodeInbound(frame []byte) (domain.ChatSendPayload, error) {
	var raw rawEnvelope
	if err := JSON.Unmarshal(frame, &raw); err != nil {
		return domain.ChatSendPayload{}, fmt.Errorf("%w: %v", errors.ErrMalformedEnvelope, err)
	}
	if raw.Type != domain.EnvelopeChat {
		return domain.ChatSendPayload{}, fmt.Errorf("%w: unrecognized type %q", errors.ErrMalformedEnvelope, raw.Type)
	}
	if len(raw.Payload) == 0 {
		return domain.ChatSendPayload{}, fmt.Errorf("%w: empty payload", errors.ErrMalformedEnvelope)
	}
	var payload domain.ChatSendPayload
	if err := JSON.Unmarshal(raw.Payload, &payload); err != nil {
		return domain.ChatSendPayload{}, fmt.Errorf("%w: %v", errors.ErrMalformedEnvelope, err)
	}
	return payload, nil
}

// DecodeOutbound parses a server frame into a typed envelope whose payload is
// a domain.Message, a domain.Notification or a domain.ErrorPayload.
func DecodeOutbound(frame []byte) (domain.Envelope, error) {
	var raw rawEnvelope
	if err := JSON.Unmarshal(frame, &raw); err != nil {
		return domain.Envelope{}, fmt.Errorf("%w: %v", errors.ErrMalformedEnvelope, err)
	}
	var payload any
	switch raw.Type {
	case domain.EnvelopeChat:
		var m domain.Message
		if err := JSON.Unmarshal(raw.Payload, &m); err != nil {
			return domain.Envelope{}, fmt.Errorf("%w: %v", errors.ErrMalformedEnvelope, err)
		}
		payload = m
	case domain.EnvelopeNotification:
		var n domain.Notification
		if err := JSON.Unmarshal(raw.Payload, &n); err != nil {
			return domain.Envelope{}, fmt.Errorf("%w: %v", errors.ErrMalformedEnvelope, err)
		}
		payload = n
	case domain.EnvelopeError:
		var e domain.ErrorPayload
		if err := JSON.Unmarshal(raw.Payload, &e); err != nil {
			return domain.Envelope{}, fmt.Errorf("%w: %v", errors.ErrMalformedEnvelope, err)
		}
		payload = e
	default:
		return domain.Envelope{}, fmt.Errorf("%w: unrecognized type %q", errors.ErrMalformedEnvelope, raw.Type)
	}
	return domain.Envelope{Type: raw.Type, Payload: payload}, nil
}
