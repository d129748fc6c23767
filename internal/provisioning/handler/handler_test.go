package handler

//go:generate mockgen -source=handler.go -destination=mocks/handler_mock.go -package=mocks Service

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	id "paperroom/pkg/domain"
	dErrors "paperroom/pkg/domain-errors"

	"paperroom/internal/onboarding"
	"paperroom/internal/provisioning/handler/mocks"
	"paperroom/internal/provisioning/service"
	"paperroom/internal/tenant/models"
)

type HandlerSuite struct {
	suite.Suite
	router      http.Handler
	ctrl        *gomock.Controller
	mockService *mocks.MockService
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockService = mocks.NewMockService(s.ctrl)
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	h := New(s.mockService, logger)

	r := chi.NewRouter()
	h.Register(r)
	s.router = r
}

func (s *HandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) TestProvision_Success() {
	tenantID := id.TenantID(uuid.New())
	s.mockService.EXPECT().
		Provision(gomock.Any(), tenantID).
		Return(&service.Outcome{Success: true, Message: "tenant provisioned", TenantSlug: "acme"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/admin/tenants/"+tenantID.String()+"/provision", nil)
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	assert.Equal(s.T(), http.StatusOK, rec.Code)
	var body ProvisionResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(s.T(), body.Success)
	assert.Equal(s.T(), "acme", body.TenantSlug)
	assert.Empty(s.T(), body.Warning)
}

func (s *HandlerSuite) TestProvision_FallbackCarriesWarning() {
	tenantID := id.TenantID(uuid.New())
	s.mockService.EXPECT().
		Provision(gomock.Any(), tenantID).
		Return(&service.Outcome{
			Success:    true,
			Message:    "tenant provisioned with mock fallback",
			TenantSlug: "acme",
			Warning:    "provider managed failed",
		}, nil)

	req := httptest.NewRequest(http.MethodPost, "/admin/tenants/"+tenantID.String()+"/provision", nil)
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	assert.Equal(s.T(), http.StatusOK, rec.Code, "fallback success is still a 200")
	var body ProvisionResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(s.T(), body.Warning, "provider managed failed")
}

func (s *HandlerSuite) TestProvision_InvalidID() {
	req := httptest.NewRequest(http.MethodPost, "/admin/tenants/not-a-uuid/provision", nil)
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	assert.Equal(s.T(), http.StatusBadRequest, rec.Code,
		"expected 400 for malformed tenant ID")
}

func (s *HandlerSuite) TestProvision_NotFound() {
	tenantID := id.TenantID(uuid.New())
	s.mockService.EXPECT().
		Provision(gomock.Any(), tenantID).
		Return(nil, dErrors.New(dErrors.CodeNotFound, "tenant not found"))

	req := httptest.NewRequest(http.MethodPost, "/admin/tenants/"+tenantID.String()+"/provision", nil)
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	assert.Equal(s.T(), http.StatusNotFound, rec.Code)
}

func (s *HandlerSuite) TestProvision_FatalFailureIsBadGateway() {
	tenantID := id.TenantID(uuid.New())
	s.mockService.EXPECT().
		Provision(gomock.Any(), tenantID).
		Return(nil, dErrors.New(dErrors.CodeProvisioningFailed, "mock fallback failed after provider failure"))

	req := httptest.NewRequest(http.MethodPost, "/admin/tenants/"+tenantID.String()+"/provision", nil)
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	assert.Equal(s.T(), http.StatusBadGateway, rec.Code)
}

func (s *HandlerSuite) TestInvite_Success() {
	tenantID := id.TenantID(uuid.New())
	s.mockService.EXPECT().
		Invite(gomock.Any(), tenantID, "jo@acme.test", "admin").
		Return(&models.PendingInvite{
			ID:       id.InviteID(uuid.New()),
			TenantID: tenantID,
			Email:    "jo@acme.test",
			Role:     "admin",
			Status:   models.InviteStatusPending,
			Token:    "signed-token",
		}, nil)

	body := bytes.NewBufferString(`{"email": "  Jo@Acme.Test ", "role": "ADMIN"}`)
	req := httptest.NewRequest(http.MethodPost, "/admin/tenants/"+tenantID.String()+"/invites", body)
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	assert.Equal(s.T(), http.StatusCreated, rec.Code)
	var resp InviteResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(s.T(), "jo@acme.test", resp.Email)
	assert.Equal(s.T(), "pending", resp.Status)
	assert.Equal(s.T(), "signed-token", resp.Token)
}

func (s *HandlerSuite) TestInvite_MalformedBody() {
	tenantID := id.TenantID(uuid.New())

	req := httptest.NewRequest(http.MethodPost, "/admin/tenants/"+tenantID.String()+"/invites",
		bytes.NewBufferString(`{not json`))
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	assert.Equal(s.T(), http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestInvite_InvalidEmail() {
	tenantID := id.TenantID(uuid.New())

	req := httptest.NewRequest(http.MethodPost, "/admin/tenants/"+tenantID.String()+"/invites",
		bytes.NewBufferString(`{"email": "not-an-email"}`))
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	assert.Equal(s.T(), http.StatusBadRequest, rec.Code,
		"validation rejects the request before the service is called")
}

func (s *HandlerSuite) TestInvite_UnknownTenant() {
	tenantID := id.TenantID(uuid.New())
	s.mockService.EXPECT().
		Invite(gomock.Any(), tenantID, "jo@acme.test", "").
		Return(nil, dErrors.New(dErrors.CodeNotFound, "tenant not found"))

	req := httptest.NewRequest(http.MethodPost, "/admin/tenants/"+tenantID.String()+"/invites",
		bytes.NewBufferString(`{"email": "jo@acme.test"}`))
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	assert.Equal(s.T(), http.StatusNotFound, rec.Code)
}

func (s *HandlerSuite) TestOnboarding_Success() {
	s.mockService.EXPECT().
		Onboarding(gomock.Any(), "acme").
		Return(&service.OnboardingStatus{
			TenantSlug: "acme",
			Stage:      onboarding.StagePaymentCompleted,
			Redirect:   "/onboarding/provisioning",
		}, nil)

	req := httptest.NewRequest(http.MethodGet, "/onboarding/acme", nil)
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	assert.Equal(s.T(), http.StatusOK, rec.Code)
	var body OnboardingResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(s.T(), "payment_completed", body.Stage)
	assert.Equal(s.T(), "/onboarding/provisioning", body.Redirect)
}

func (s *HandlerSuite) TestOnboarding_UnknownSlug() {
	s.mockService.EXPECT().
		Onboarding(gomock.Any(), "nope").
		Return(nil, dErrors.New(dErrors.CodeNotFound, "tenant not found"))

	req := httptest.NewRequest(http.MethodGet, "/onboarding/nope", nil)
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	assert.Equal(s.T(), http.StatusNotFound, rec.Code)
}
