// Package handler exposes the provisioning trigger and onboarding resume
// endpoints over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	id "paperroom/pkg/domain"
	"paperroom/pkg/platform/httputil"
	"paperroom/pkg/requestcontext"

	"paperroom/internal/provisioning/service"
	"paperroom/internal/tenant/models"
)

// Service defines the interface for provisioning operations.
type Service interface {
	Provision(ctx context.Context, tenantID id.TenantID) (*service.Outcome, error)
	Invite(ctx context.Context, tenantID id.TenantID, email, role string) (*models.PendingInvite, error)
	Onboarding(ctx context.Context, slug string) (*service.OnboardingStatus, error)
}

// Handler handles provisioning endpoints.
type Handler struct {
	logger       *slog.Logger
	provisioning Service
}

// New creates a provisioning Handler.
func New(provisioning Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:       logger,
		provisioning: provisioning,
	}
}

// Register registers the provisioning routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/admin/tenants/{tenantID}/provision", h.handleProvision)
	r.Post("/admin/tenants/{tenantID}/invites", h.handleInvite)
	r.Get("/onboarding/{slug}", h.handleOnboarding)
}

// handleProvision triggers provisioning for a tenant. The response is 200 for
// every successful outcome, including an idempotent no-op and a mock
// fallback; the fallback is distinguished by the warning field.
func (h *Handler) handleProvision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	tenantID, err := id.ParseTenantID(chi.URLParam(r, "tenantID"))
	if err != nil {
		h.logger.WarnContext(ctx, "invalid tenant ID in provision request",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	outcome, err := h.provisioning.Provision(ctx, tenantID)
	if err != nil {
		h.logger.ErrorContext(ctx, "provisioning request failed",
			"request_id", requestID,
			"tenant_id", tenantID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toProvisionResponse(outcome))
}

// handleInvite records a pending invite for a tenant ahead of provisioning.
func (h *Handler) handleInvite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	tenantID, err := id.ParseTenantID(chi.URLParam(r, "tenantID"))
	if err != nil {
		h.logger.WarnContext(ctx, "invalid tenant ID in invite request",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[InviteRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	invite, err := h.provisioning.Invite(ctx, tenantID, req.Email, req.Role)
	if err != nil {
		h.logger.WarnContext(ctx, "invite request failed",
			"request_id", requestID,
			"tenant_id", tenantID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, toInviteResponse(invite))
}

// handleOnboarding resolves where a tenant's signup flow should resume.
func (h *Handler) handleOnboarding(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status, err := h.provisioning.Onboarding(ctx, chi.URLParam(r, "slug"))
	if err != nil {
		h.logger.WarnContext(ctx, "onboarding lookup failed",
			"request_id", requestcontext.RequestID(ctx),
			"slug", chi.URLParam(r, "slug"),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toOnboardingResponse(status))
}
