package models

import (
	"slices"

	"loanmanager/internal/policy"
	"loanmanager/pkg/domain"
	dErrors "loanmanager/pkg/domain-errors"
)

// Action is a workflow command on an application.
type Action string

const (
	ActionVerify  Action = "verify"
	ActionReject  Action = "reject"
	ActionApprove Action = "approve"
)

// ParseAction parses a transition action from request input.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	switch a {
	case ActionVerify, ActionReject, ActionApprove:
		return a, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "action must be one of verify, reject, approve")
}

func (a Action) String() string {
	return string(a)
}

// Stage is the review step an action belongs to. Reject exists in both.
type Stage string

const (
	// StageReview is the verifier screening step.
	StageReview Stage = "review"
	// StageDecision is the administrator's final decision.
	StageDecision Stage = "decision"
)

// Rule is one row of the transition table.
type Rule struct {
	Action Action
	Stage  Stage
	From   []Status
	To     Status
	Roles  []domain.Role
}

// Permits reports whether role may fire the rule.
func (r Rule) Permits(role domain.Role) bool {
	return slices.Contains(r.Roles, role)
}

// Accepts reports whether the rule applies to an application in status.
func (r Rule) Accepts(status Status) bool {
	return slices.Contains(r.From, status)
}

// transitionTable is the complete set of legal transitions. Anything not
// listed is rejected. Role sets come from the authorization gate: the review
// stage uses the verify/reject grants, the decision stage the approve grant.
var transitionTable = []Rule{
	{Action: ActionVerify, Stage: StageReview, From: []Status{StatusPending}, To: StatusVerified, Roles: policy.RolesFor(policy.ActionVerify)},
	{Action: ActionReject, Stage: StageReview, From: []Status{StatusPending}, To: StatusRejected, Roles: policy.RolesFor(policy.ActionReject)},
	{Action: ActionApprove, Stage: StageDecision, From: []Status{StatusPending, StatusVerified}, To: StatusApproved, Roles: policy.RolesFor(policy.ActionApprove)},
	{Action: ActionReject, Stage: StageDecision, From: []Status{StatusPending, StatusVerified}, To: StatusRejected, Roles: policy.RolesFor(policy.ActionApprove)},
}

// GateAction maps a workflow action to its authorization gate capability.
func (a Action) GateAction() policy.Action {
	switch a {
	case ActionVerify:
		return policy.ActionVerify
	case ActionReject:
		return policy.ActionReject
	case ActionApprove:
		return policy.ActionApprove
	}
	return policy.Action("")
}

// Rules returns a copy of the transition table.
func Rules() []Rule {
	return slices.Clone(transitionTable)
}

// ResolveTransition picks the rule for action from status under role.
//
// When stage is empty the stage is derived: the first rule whose From
// accepts status and whose Roles include role wins, so a verifier rejecting
// a pending application gets the review rule and an administrator rejecting
// a verified one gets the decision rule.
//
// Errors: CodeForbidden when no rule for action (and stage) admits role;
// CodeInvalidTransition when role is admitted but status is not a From state.
func ResolveTransition(status Status, action Action, role domain.Role, stage Stage) (Rule, error) {
	roleAllowed := false
	for _, rule := range transitionTable {
		if rule.Action != action {
			continue
		}
		if stage != "" && rule.Stage != stage {
			continue
		}
		if !rule.Permits(role) {
			continue
		}
		roleAllowed = true
		if rule.Accepts(status) {
			return rule, nil
		}
	}
	if !roleAllowed {
		return Rule{}, dErrors.New(dErrors.CodeForbidden, "role "+role.String()+" may not "+action.String()+" applications")
	}
	return Rule{}, dErrors.New(dErrors.CodeInvalidTransition, "cannot "+action.String()+" an application that is "+status.String())
}
