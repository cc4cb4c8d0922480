package loan

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/cucumber/godog"
)

// TestContext is the slice of the scenario context these steps use.
type TestContext interface {
	Do(ctx context.Context, method, path string, body any) error
	DoAs(ctx context.Context, alias, method, path string, body any) (int, error)
	Status() (int, error)
	Field(path string) (any, error)
	StringField(path string) (string, error)
	SetApplicationID(id string)
	ApplicationID() string
	SetParallel(statuses []int)
	Parallel() []int
}

// RegisterSteps registers loan workflow steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &loanSteps{tc: tc}

	ctx.Step(`^I submit a loan application for "([^"]*)"$`, steps.submit)
	ctx.Step(`^I (verify|reject) the application at review$`, steps.review)
	ctx.Step(`^I (approve|reject) the application at decision$`, steps.decide)
	ctx.Step(`^I request "([^"]*)" on the application$`, steps.requestAction)
	ctx.Step(`^I view the application$`, steps.view)
	ctx.Step(`^I view the application history$`, steps.history)
	ctx.Step(`^"([^"]*)" and "([^"]*)" approve the application at the same time$`, steps.concurrentApprove)

	ctx.Step(`^the history should list actions "([^"]*)"$`, steps.historyShouldList)
	ctx.Step(`^exactly one of them should succeed$`, steps.exactlyOneSucceeded)
}

type loanSteps struct {
	tc TestContext
}

func (s *loanSteps) submit(ctx context.Context, amount string) error {
	err := s.tc.Do(ctx, http.MethodPost, "/loans", map[string]any{
		"applicant_first_name": "Jane",
		"applicant_last_name":  "Doe",
		"employment_status":    "employed",
		"employment_address":   "12 Market Street, Springfield",
		"reason_for_loan":      "Home renovation and repairs",
		"requested_amount":     amount,
	})
	if err != nil {
		return err
	}
	if status, _ := s.tc.Status(); status != http.StatusCreated {
		return nil
	}
	id, err := s.tc.StringField("id")
	if err != nil {
		return err
	}
	s.tc.SetApplicationID(id)
	return nil
}

func (s *loanSteps) path(suffix string) (string, error) {
	id := s.tc.ApplicationID()
	if id == "" {
		return "", fmt.Errorf("no application has been submitted in this scenario")
	}
	return "/loans/" + id + suffix, nil
}

func (s *loanSteps) review(ctx context.Context, action string) error {
	p, err := s.path("/verify")
	if err != nil {
		return err
	}
	return s.tc.Do(ctx, http.MethodPut, p, map[string]string{"action": action, "comments": "e2e " + action})
}

func (s *loanSteps) decide(ctx context.Context, action string) error {
	p, err := s.path("/approve")
	if err != nil {
		return err
	}
	return s.tc.Do(ctx, http.MethodPut, p, map[string]string{"action": action})
}

func (s *loanSteps) requestAction(ctx context.Context, action string) error {
	p, err := s.path("/transitions")
	if err != nil {
		return err
	}
	return s.tc.Do(ctx, http.MethodPost, p, map[string]string{"action": action})
}

func (s *loanSteps) view(ctx context.Context) error {
	p, err := s.path("")
	if err != nil {
		return err
	}
	return s.tc.Do(ctx, http.MethodGet, p, nil)
}

func (s *loanSteps) history(ctx context.Context) error {
	p, err := s.path("/history")
	if err != nil {
		return err
	}
	return s.tc.Do(ctx, http.MethodGet, p, nil)
}

func (s *loanSteps) concurrentApprove(ctx context.Context, first, second string) error {
	p, err := s.path("/approve")
	if err != nil {
		return err
	}
	aliases := []string{first, second}
	statuses := make([]int, len(aliases))
	errs := make([]error, len(aliases))

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i, alias := range aliases {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			statuses[i], errs[i] = s.tc.DoAs(ctx, alias, http.MethodPut, p, map[string]string{"action": "approve"})
		}()
	}
	close(start)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	s.tc.SetParallel(statuses)
	return nil
}

func (s *loanSteps) historyShouldList(_ context.Context, want string) error {
	v, err := s.tc.Field("transitions")
	if err != nil {
		return err
	}
	records, ok := v.([]any)
	if !ok {
		return fmt.Errorf("transitions is %T, not a list", v)
	}
	got := ""
	for i, r := range records {
		rec, ok := r.(map[string]any)
		if !ok {
			return fmt.Errorf("transition %d is %T", i, r)
		}
		if i > 0 {
			got += ","
		}
		got += fmt.Sprint(rec["action"])
	}
	if got != want {
		return fmt.Errorf("expected actions %q, got %q", want, got)
	}
	return nil
}

// exactlyOneSucceeded accepts 409 or 400 for the loser: depending on timing
// it either lost the conditional update or read the already-approved state.
func (s *loanSteps) exactlyOneSucceeded(_ context.Context) error {
	statuses := s.tc.Parallel()
	ok, refused := 0, 0
	for _, st := range statuses {
		switch st {
		case http.StatusOK:
			ok++
		case http.StatusConflict, http.StatusBadRequest:
			refused++
		}
	}
	if ok != 1 || refused != len(statuses)-1 {
		return fmt.Errorf("expected one success and %d refusals, got statuses %v", len(statuses)-1, statuses)
	}
	return nil
}
