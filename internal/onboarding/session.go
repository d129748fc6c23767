package onboarding

import (
	"time"

	id "paperroom/pkg/domain"
	dErrors "paperroom/pkg/domain-errors"
)

// Session is the 1:1 onboarding record for a tenant. Stage timestamps are
// append-only; they are never cleared once written.
type Session struct {
	TenantID     id.TenantID         `json:"tenant_id"`
	CurrentStage Stage               `json:"current_stage"`
	StageTimes   map[Stage]time.Time `json:"stage_times"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// NewSession starts a session at the first stage.
func NewSession(tenantID id.TenantID, now time.Time) *Session {
	return &Session{
		TenantID:     tenantID,
		CurrentStage: StageSignupStarted,
		StageTimes:   map[Stage]time.Time{StageSignupStarted: now},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Advance moves the session to the given stage, recording the transition
// time. Moving backwards is rejected; advancing to the current stage is a
// no-op so milestone callbacks can fire more than once.
func (s *Session) Advance(stage Stage, now time.Time) error {
	if !Valid(stage) {
		return dErrors.New(dErrors.CodeInvalidInput, "unknown onboarding stage")
	}
	if stage == s.CurrentStage {
		return nil
	}
	if AtOrBefore(stage, s.CurrentStage) {
		return dErrors.New(dErrors.CodeInvariantViolation, "onboarding stage cannot move backwards")
	}
	s.CurrentStage = stage
	if s.StageTimes == nil {
		s.StageTimes = map[Stage]time.Time{}
	}
	// Append-only: keep the first time a stage was reached.
	if _, seen := s.StageTimes[stage]; !seen {
		s.StageTimes[stage] = now
	}
	s.UpdatedAt = now
	return nil
}

// Redirect resolves where the UI should resume this session.
func (s *Session) Redirect(slug string) string {
	return RedirectFor(s.CurrentStage, slug)
}
