package models

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	id "paperroom/pkg/domain"
	dErrors "paperroom/pkg/domain-errors"
)

// InviteStatus tracks the lifecycle of an invitation created before the
// tenant's database exists.
type InviteStatus string

const (
	InviteStatusPending  InviteStatus = "pending"
	InviteStatusMigrated InviteStatus = "migrated"
)

// PendingInvite is an invitation recorded ahead of provisioning. Once the
// tenant database exists the invite is marked migrated; per-user account
// creation happens lazily on first sign-in, outside this core.
type PendingInvite struct {
	ID        id.InviteID  `json:"id"`
	TenantID  id.TenantID  `json:"tenant_id"`
	Email     string       `json:"email"`
	Role      string       `json:"role"`
	Status    InviteStatus `json:"status"`
	Token     string       `json:"-"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// NewPendingInvite validates and constructs a pending invitation.
func NewPendingInvite(inviteID id.InviteID, tenantID id.TenantID, email, role string, now time.Time) (*PendingInvite, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invite email is invalid")
	}
	if role == "" {
		role = "member"
	}
	return &PendingInvite{
		ID:        inviteID,
		TenantID:  tenantID,
		Email:     email,
		Role:      role,
		Status:    InviteStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// MarkMigrated flips the invite to migrated once the tenant database exists.
// Idempotent: re-marking a migrated invite is a no-op.
func (i *PendingInvite) MarkMigrated(now time.Time) {
	if i.Status == InviteStatusMigrated {
		return
	}
	i.Status = InviteStatusMigrated
	i.UpdatedAt = now
}

// InviteClaims are the JWT claims embedded in an invite acceptance token.
type InviteClaims struct {
	TenantID string `json:"tenant_id"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// SignInviteToken mints the acceptance token for an invite. The token is the
// artifact mailed to the invitee; it is verified on first sign-in.
func SignInviteToken(invite *PendingInvite, signingKey []byte, ttl time.Duration, now time.Time) (string, error) {
	claims := InviteClaims{
		TenantID: invite.TenantID.String(),
		Email:    invite.Email,
		Role:     invite.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   invite.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign invite token")
	}
	return signed, nil
}

// ParseInviteToken verifies an invite token and returns its claims.
func ParseInviteToken(tokenString string, signingKey []byte) (*InviteClaims, error) {
	claims := &InviteClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "unexpected signing method")
		}
		return signingKey, nil
	})
	if err != nil || !token.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid invite token")
	}
	return claims, nil
}
