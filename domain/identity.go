// Package domain contains core concepts of the relay.
// No runtime, network, or storage logic should be added here.
package domain

import (
	"fmt"
	"strings"
)

type Kind string

const (
	KindUser     Kind = "user"
	KindEmployer Kind = "employer"
	KindAdmin    Kind = "admin"
)

func (k Kind) Valid() bool {
	switch k {
	case KindUser, KindEmployer, KindAdmin:
		return true
	default:
		return false
	}
}

// Identity is the addressing key for delivery. It is created by the
// authentication collaborator and never changes for a connection's lifetime.
type Identity struct {
	ID   string `json:"id" validate:"required,excludes=:"`
	Kind Kind   `json:"type" validate:"required,oneof=user employer admin"`
}

func NewIdentity(kind Kind, id string) Identity {
	return Identity{ID: id, Kind: kind}
}

// String returns the canonical "kind:id" form used as registry and storage key.
func (i Identity) String() string {
	return string(i.Kind) + ":" + i.ID
}

func (i Identity) IsZero() bool {
	return i.ID == "" && i.Kind == ""
}

func (i Identity) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("identity id is empty")
	}
	if strings.Contains(i.ID, ":") {
		return fmt.Errorf("identity id %q contains ':'", i.ID)
	}
	if !i.Kind.Valid() {
		return fmt.Errorf("unknown identity kind %q", i.Kind)
	}
	return nil
}

// ParseIdentity is the inverse of Identity.String.
func ParseIdentity(s string) (Identity, error) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok {
		return Identity{}, fmt.Errorf("identity %q has no kind prefix", s)
	}
	identity := Identity{ID: id, Kind: Kind(kind)}
	return identity, identity.Validate()
}
