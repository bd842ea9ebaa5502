package domain

import (
	"chat-relay/errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateChatSend checks shape and size of an inbound chat payload.
// Participation is checked later against the stored conversation.
func ValidateChatSend(p ChatSendPayload, maxContentLength int) error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	if strings.TrimSpace(p.Content) == "" {
		return fmt.Errorf("%w: content is blank", errors.ErrInvalidPayload)
	}
	if maxContentLength > 0 && utf8.RuneCountInString(p.Content) > maxContentLength {
		return fmt.Errorf("%w: content exceeds %d characters", errors.ErrInvalidPayload, maxContentLength)
	}
	return nil
}

func ValidateIdentity(i Identity) error {
	if err := validate.Struct(i); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	return nil
}
