// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"github.com/google/uuid"

	dErrors "paperroom/pkg/domain-errors"
)

// Distinct ID types - compiler prevents passing UserID where TenantID is expected.
type (
	TenantID    uuid.UUID
	UserID      uuid.UUID
	WorkspaceID uuid.UUID
	InviteID    uuid.UUID
)

// Parse functions - use at trust boundaries (handlers, API inputs).

func ParseTenantID(s string) (TenantID, error) {
	id, err := parseUUID(s, "tenant ID")
	return TenantID(id), err
}

func ParseUserID(s string) (UserID, error) {
	id, err := parseUUID(s, "user ID")
	return UserID(id), err
}

func ParseWorkspaceID(s string) (WorkspaceID, error) {
	id, err := parseUUID(s, "workspace ID")
	return WorkspaceID(id), err
}

func ParseInviteID(s string) (InviteID, error) {
	id, err := parseUUID(s, "invite ID")
	return InviteID(id), err
}

// String methods - for logging and debugging.

func (id TenantID) String() string    { return uuid.UUID(id).String() }
func (id UserID) String() string      { return uuid.UUID(id).String() }
func (id WorkspaceID) String() string { return uuid.UUID(id).String() }
func (id InviteID) String() string    { return uuid.UUID(id).String() }

// IsNil checks - used for service-layer validation.

func (id TenantID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id WorkspaceID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id InviteID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// parseUUID is the shared validation logic.
// Nil UUIDs are allowed here; use IsNil() at the service layer for business
// validation so store lookups can still return proper "not found" errors.
func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	return parsed, nil
}
