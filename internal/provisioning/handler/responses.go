package handler

import (
	"paperroom/internal/provisioning/service"
	"paperroom/internal/tenant/models"
)

// ProvisionResponse is the body returned by the provision trigger.
type ProvisionResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	TenantSlug string `json:"tenant_slug"`
	Warning    string `json:"warning,omitempty"`
}

func toProvisionResponse(outcome *service.Outcome) ProvisionResponse {
	return ProvisionResponse{
		Success:    outcome.Success,
		Message:    outcome.Message,
		TenantSlug: outcome.TenantSlug,
		Warning:    outcome.Warning,
	}
}

// InviteResponse is the body returned when a pending invite is recorded.
// The token is only minted when invite signing is configured.
type InviteResponse struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Status string `json:"status"`
	Token  string `json:"token,omitempty"`
}

func toInviteResponse(inv *models.PendingInvite) InviteResponse {
	return InviteResponse{
		ID:     inv.ID.String(),
		Email:  inv.Email,
		Role:   inv.Role,
		Status: string(inv.Status),
		Token:  inv.Token,
	}
}

// OnboardingResponse is the body returned by the onboarding resume endpoint.
type OnboardingResponse struct {
	TenantSlug string `json:"tenant_slug"`
	Stage      string `json:"stage"`
	Redirect   string `json:"redirect"`
}

func toOnboardingResponse(status *service.OnboardingStatus) OnboardingResponse {
	return OnboardingResponse{
		TenantSlug: status.TenantSlug,
		Stage:      string(status.Stage),
		Redirect:   status.Redirect,
	}
}
