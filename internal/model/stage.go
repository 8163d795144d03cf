package model

import (
	"fmt"
	"strings"
)

// Stage is one value of the closed hiring-progress enumeration
type Stage string

const (
	StageApplied   Stage = "Applied"
	StageScreening Stage = "Screening"
	StageInterview Stage = "Interview"
	StageOffer     Stage = "Offer"
	StageHired     Stage = "Hired"
	StageRejected  Stage = "Rejected"
)

// InitialStage is the stage every application starts in
const InitialStage = StageApplied

// Stages lists the closed set in progression order, Rejected last
var Stages = []Stage{
	StageApplied,
	StageScreening,
	StageInterview,
	StageOffer,
	StageHired,
	StageRejected,
}

// progression rank; Rejected sits outside the forward chain
var stageRank = map[Stage]int{
	StageApplied:   1,
	StageScreening: 2,
	StageInterview: 3,
	StageOffer:     4,
	StageHired:     5,
}

// IsValid reports whether s belongs to the closed stage set
func (s Stage) IsValid() bool {
	switch s {
	case StageApplied, StageScreening, StageInterview, StageOffer, StageHired, StageRejected:
		return true
	}
	return false
}

// IsTerminal reports whether no further progression is possible
func (s Stage) IsTerminal() bool {
	return s == StageHired || s == StageRejected
}

// ParseStage accepts any casing of a stage name
func ParseStage(raw string) (Stage, error) {
	trimmed := strings.TrimSpace(raw)
	for _, s := range Stages {
		if strings.EqualFold(string(s), trimmed) {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q", raw)
}

// TransitionPolicy selects which stage moves are legal
type TransitionPolicy string

const (
	// TransitionPolicyStrict allows forward progression (skips included),
	// Rejected from any non-terminal stage, and nothing out of Hired or Rejected.
	TransitionPolicyStrict TransitionPolicy = "strict"

	// TransitionPolicyPermissive allows any stage to move to any other stage.
	TransitionPolicyPermissive TransitionPolicy = "permissive"
)

// IsValid reports whether p is a known policy
func (p TransitionPolicy) IsValid() bool {
	return p == TransitionPolicyStrict || p == TransitionPolicyPermissive
}

// CanTransition reports whether from -> to is legal under the policy.
// A move to the same stage is never a transition.
func (p TransitionPolicy) CanTransition(from, to Stage) bool {
	if !from.IsValid() || !to.IsValid() || from == to {
		return false
	}
	if p == TransitionPolicyPermissive {
		return true
	}

	if from.IsTerminal() {
		return false
	}
	if to == StageRejected {
		return true
	}
	return stageRank[to] > stageRank[from]
}

// AllowedTransitions lists the legal targets from a stage, in progression order
func (p TransitionPolicy) AllowedTransitions(from Stage) []Stage {
	var out []Stage
	for _, s := range Stages {
		if p.CanTransition(from, s) {
			out = append(out, s)
		}
	}
	return out
}
