package e2e

import (
	"github.com/cucumber/godog"

	"loanmanager/e2e/steps/auth"
	"loanmanager/e2e/steps/common"
	"loanmanager/e2e/steps/loan"
)

// RegisterSteps wires every step package to tc.
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	auth.RegisterSteps(ctx, tc)
	loan.RegisterSteps(ctx, tc)
}
