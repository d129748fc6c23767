package handler

import (
	"strings"

	dErrors "paperroom/pkg/domain-errors"
)

// InviteRequest is the body accepted by the invite creation endpoint.
type InviteRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Normalize implements httputil.Normalizable.
func (r *InviteRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Role = strings.ToLower(strings.TrimSpace(r.Role))
}

// Validate implements httputil.Validatable.
func (r *InviteRequest) Validate() error {
	if r.Email == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	if !strings.Contains(r.Email, "@") {
		return dErrors.New(dErrors.CodeValidation, "email is invalid")
	}
	return nil
}
