// Package onboarding tracks a tenant's resumable signup progress. The stage
// machine is advisory: it drives UI routing and resume behavior, never
// provisioning correctness.
package onboarding

// Stage is an ordered checkpoint in the signup flow.
type Stage string

const (
	StageSignupStarted    Stage = "signup_started"
	StageEmailVerified    Stage = "email_verified"
	StageWorkspaceCreated Stage = "workspace_created"
	StageUseCaseSelected  Stage = "use_case_selected"
	StageWorkflowSetUp    Stage = "workflow_set_up"
	StageTeamInvited      Stage = "team_invited"
	StagePlanSelected     Stage = "plan_selected"
	StagePaymentPending   Stage = "payment_pending"
	StagePaymentCompleted Stage = "payment_completed"
	StageProvisioning     Stage = "provisioning"
	StageActive           Stage = "active"
)

// order defines the canonical stage sequence.
var order = []Stage{
	StageSignupStarted,
	StageEmailVerified,
	StageWorkspaceCreated,
	StageUseCaseSelected,
	StageWorkflowSetUp,
	StageTeamInvited,
	StagePlanSelected,
	StagePaymentPending,
	StagePaymentCompleted,
	StageProvisioning,
	StageActive,
}

func index(s Stage) int {
	for i, stage := range order {
		if stage == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known stage.
func Valid(s Stage) bool {
	return index(s) >= 0
}

// Next returns the stage after s, or false when s is terminal or unknown.
func Next(s Stage) (Stage, bool) {
	i := index(s)
	if i < 0 || i == len(order)-1 {
		return "", false
	}
	return order[i+1], true
}

// AtOrBefore reports whether a comes at or before b in the stage order.
// Unknown stages compare as before everything so interrupted flows restart.
func AtOrBefore(a, b Stage) bool {
	return index(a) <= index(b)
}

// RedirectFor resolves a stage to the UI path where the flow resumes.
func RedirectFor(s Stage, slug string) string {
	switch s {
	case StageSignupStarted:
		return "/signup/verify"
	case StageEmailVerified:
		return "/onboarding/workspace"
	case StageWorkspaceCreated:
		return "/onboarding/use-case"
	case StageUseCaseSelected:
		return "/onboarding/workflow"
	case StageWorkflowSetUp:
		return "/onboarding/team"
	case StageTeamInvited:
		return "/onboarding/plan"
	case StagePlanSelected, StagePaymentPending:
		return "/onboarding/checkout"
	case StagePaymentCompleted, StageProvisioning:
		return "/onboarding/provisioning"
	case StageActive:
		return "/" + slug + "/dashboard"
	default:
		return "/signup"
	}
}
