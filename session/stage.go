package session

import "github.com/Jai-Dhiman/capture-sub001/internal/utils"

// Stage is the authentication lifecycle position. It advances through
// onboarding (security setup, then profile creation) and falls back to
// unauthenticated from anywhere.
type Stage string

const (
	StageUnauthenticated       Stage = "unauthenticated"
	StageSecuritySetupRequired Stage = "securitySetupRequired"
	StageProfileRequired       Stage = "profileRequired"
	StageAuthenticated         Stage = "authenticated"
)

// Status reports the health of the last store action
type Status string

const (
	StatusIdle    Status = "idle"
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// setStageTransitions enumerates the moves SetStage may make. Leaving
// unauthenticated requires credentials, so only SetAuthData does that;
// every stage may drop back to unauthenticated.
var setStageTransitions = map[Stage][]Stage{
	StageUnauthenticated:       {},
	StageSecuritySetupRequired: {StageProfileRequired, StageAuthenticated, StageUnauthenticated},
	StageProfileRequired:       {StageAuthenticated, StageUnauthenticated},
	StageAuthenticated:         {StageUnauthenticated},
}

func (s Stage) valid() bool {
	switch s {
	case StageUnauthenticated, StageSecuritySetupRequired, StageProfileRequired, StageAuthenticated:
		return true
	}
	return false
}

// CanTransitionTo reports whether SetStage may move from s to next.
// Staying put is always allowed.
func (s Stage) CanTransitionTo(next Stage) bool {
	if s == next {
		return true
	}
	for _, allowed := range setStageTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// DeriveStage maps the backend's onboarding flags to a stage. Pending
// security setup wins over a missing profile; an absent
// securitySetupRequired means none needed, and an absent profileExists
// means the profile exists.
func DeriveStage(securitySetupRequired, profileExists *bool) Stage {
	if utils.ValueOr(securitySetupRequired, false) {
		return StageSecuritySetupRequired
	}
	if !utils.ValueOr(profileExists, true) {
		return StageProfileRequired
	}
	return StageAuthenticated
}
