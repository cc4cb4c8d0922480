package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanmanager/pkg/domain"
	dErrors "loanmanager/pkg/domain-errors"
)

var (
	allStatuses = []Status{StatusPending, StatusVerified, StatusApproved, StatusRejected}
	allActions  = []Action{ActionVerify, ActionReject, ActionApprove}
	allRoles    = []domain.Role{domain.RoleApplicant, domain.RoleVerifier, domain.RoleAdministrator}
)

func TestResolveTransition_Table(t *testing.T) {
	cases := []struct {
		from   Status
		action Action
		role   domain.Role
		to     Status
		stage  Stage
	}{
		{StatusPending, ActionVerify, domain.RoleVerifier, StatusVerified, StageReview},
		{StatusPending, ActionVerify, domain.RoleAdministrator, StatusVerified, StageReview},
		{StatusPending, ActionReject, domain.RoleVerifier, StatusRejected, StageReview},
		{StatusPending, ActionReject, domain.RoleAdministrator, StatusRejected, StageReview},
		{StatusPending, ActionApprove, domain.RoleAdministrator, StatusApproved, StageDecision},
		{StatusVerified, ActionApprove, domain.RoleAdministrator, StatusApproved, StageDecision},
		{StatusVerified, ActionReject, domain.RoleAdministrator, StatusRejected, StageDecision},
	}
	for _, tc := range cases {
		rule, err := ResolveTransition(tc.from, tc.action, tc.role, "")
		require.NoError(t, err, "%s %s by %s", tc.from, tc.action, tc.role)
		assert.Equal(t, tc.to, rule.To)
		assert.Equal(t, tc.stage, rule.Stage)
	}
}

func TestResolveTransition_Errors(t *testing.T) {
	t.Run("applicant is forbidden every action", func(t *testing.T) {
		for _, action := range allActions {
			_, err := ResolveTransition(StatusPending, action, domain.RoleApplicant, "")
			assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden), action)
		}
	})

	t.Run("verifier may not approve", func(t *testing.T) {
		_, err := ResolveTransition(StatusVerified, ActionApprove, domain.RoleVerifier, "")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("verifier rejecting a verified application is an invalid transition", func(t *testing.T) {
		_, err := ResolveTransition(StatusVerified, ActionReject, domain.RoleVerifier, "")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	t.Run("verify on approved is an invalid transition", func(t *testing.T) {
		_, err := ResolveTransition(StatusApproved, ActionVerify, domain.RoleAdministrator, "")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	t.Run("explicit decision stage restricts reject to administrators", func(t *testing.T) {
		_, err := ResolveTransition(StatusPending, ActionReject, domain.RoleVerifier, StageDecision)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("explicit review stage forbids approve", func(t *testing.T) {
		_, err := ResolveTransition(StatusPending, ActionApprove, domain.RoleAdministrator, StageReview)
		assert.Error(t, err)
	})
}

func TestResolveTransition_ForwardOnly(t *testing.T) {
	for _, from := range allStatuses {
		for _, action := range allActions {
			for _, role := range allRoles {
				rule, err := ResolveTransition(from, action, role, "")
				if err != nil {
					continue
				}
				assert.True(t, from.CanMoveTo(rule.To), "%s -> %s", from, rule.To)
			}
		}
	}
}

func TestResolveTransition_TerminalStatesAreTerminal(t *testing.T) {
	for _, from := range []Status{StatusApproved, StatusRejected} {
		for _, action := range allActions {
			for _, role := range allRoles {
				_, err := ResolveTransition(from, action, role, "")
				assert.Error(t, err)
			}
		}
	}
}

func TestStatus(t *testing.T) {
	assert.True(t, StatusPending.CanMoveTo(StatusVerified))
	assert.True(t, StatusPending.CanMoveTo(StatusApproved))
	assert.True(t, StatusVerified.CanMoveTo(StatusRejected))
	assert.False(t, StatusVerified.CanMoveTo(StatusPending))
	assert.False(t, StatusVerified.CanMoveTo(StatusVerified))
	assert.False(t, StatusRejected.CanMoveTo(StatusApproved))

	_, err := ParseStatus("archived")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = ParseAction("delete")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
