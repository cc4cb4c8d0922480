package auth

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/cucumber/godog"
)

// TestContext is the slice of the scenario context these steps use.
type TestContext interface {
	Do(ctx context.Context, method, path string, body any) error
	Status() (int, error)
	StringField(path string) (string, error)
	SetToken(alias, token, userID string)
	ActAs(alias string) error
	UserID(alias string) string
	RunID() string
}

const defaultPassword = "Passw0rd"

// RegisterSteps registers account and session steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &authSteps{tc: tc}

	ctx.Step(`^I am logged in as the administrator$`, steps.loginAdministrator)
	ctx.Step(`^a verifier "([^"]*)" exists$`, steps.verifierExists)
	ctx.Step(`^an administrator "([^"]*)" exists$`, steps.administratorExists)
	ctx.Step(`^an applicant "([^"]*)" is registered$`, steps.applicantRegistered)
	ctx.Step(`^I act as "([^"]*)"$`, steps.actAs)
	ctx.Step(`^I am not authenticated$`, steps.anonymous)
	ctx.Step(`^the administrator deactivates "([^"]*)"$`, steps.deactivate)
	ctx.Step(`^I register with email "([^"]*)" and password "([^"]*)"$`, steps.registerWith)
}

type authSteps struct {
	tc TestContext
}

// loginAdministrator logs in with the bootstrap account the server was
// started with.
func (s *authSteps) loginAdministrator(ctx context.Context) error {
	email := os.Getenv("E2E_ADMIN_EMAIL")
	pw := os.Getenv("E2E_ADMIN_PASSWORD")
	if email == "" || pw == "" {
		return fmt.Errorf("E2E_ADMIN_EMAIL and E2E_ADMIN_PASSWORD must be set")
	}
	if err := s.login(ctx, "administrator", email, pw); err != nil {
		return err
	}
	return s.tc.ActAs("administrator")
}

func (s *authSteps) verifierExists(ctx context.Context, alias string) error {
	return s.createStaff(ctx, "/admin/verifiers", alias)
}

func (s *authSteps) administratorExists(ctx context.Context, alias string) error {
	return s.createStaff(ctx, "/admin/administrators", alias)
}

func (s *authSteps) createStaff(ctx context.Context, path, alias string) error {
	if err := s.tc.ActAs("administrator"); err != nil {
		return fmt.Errorf("log in as the administrator first: %w", err)
	}
	email := s.email(alias)
	if err := s.tc.Do(ctx, http.MethodPost, path, s.profile(email, alias)); err != nil {
		return err
	}
	if err := s.expect(http.StatusCreated); err != nil {
		return err
	}
	return s.login(ctx, alias, email, defaultPassword)
}

func (s *authSteps) applicantRegistered(ctx context.Context, alias string) error {
	if err := s.tc.ActAs(""); err != nil {
		return err
	}
	if err := s.tc.Do(ctx, http.MethodPost, "/auth/register", s.profile(s.email(alias), alias)); err != nil {
		return err
	}
	if err := s.expect(http.StatusCreated); err != nil {
		return err
	}
	return s.remember(alias)
}

func (s *authSteps) registerWith(ctx context.Context, email, pw string) error {
	if err := s.tc.ActAs(""); err != nil {
		return err
	}
	return s.tc.Do(ctx, http.MethodPost, "/auth/register", map[string]string{
		"email":      email,
		"password":   pw,
		"first_name": "Eve",
		"last_name":  "Example",
	})
}

func (s *authSteps) actAs(_ context.Context, alias string) error {
	return s.tc.ActAs(alias)
}

func (s *authSteps) anonymous(_ context.Context) error {
	return s.tc.ActAs("")
}

func (s *authSteps) deactivate(ctx context.Context, alias string) error {
	id := s.tc.UserID(alias)
	if id == "" {
		return fmt.Errorf("no account known as %q", alias)
	}
	if err := s.tc.ActAs("administrator"); err != nil {
		return err
	}
	if err := s.tc.Do(ctx, http.MethodDelete, "/admin/users/"+id, nil); err != nil {
		return err
	}
	return s.expect(http.StatusOK)
}

func (s *authSteps) login(ctx context.Context, alias, email, pw string) error {
	if err := s.tc.ActAs(""); err != nil {
		return err
	}
	if err := s.tc.Do(ctx, http.MethodPost, "/auth/login", map[string]string{"email": email, "password": pw}); err != nil {
		return err
	}
	if err := s.expect(http.StatusOK); err != nil {
		return err
	}
	return s.remember(alias)
}

func (s *authSteps) remember(alias string) error {
	token, err := s.tc.StringField("access_token")
	if err != nil {
		return err
	}
	id, err := s.tc.StringField("user.id")
	if err != nil {
		return err
	}
	s.tc.SetToken(alias, token, id)
	return nil
}

func (s *authSteps) expect(want int) error {
	got, err := s.tc.Status()
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("expected status %d, got %d", want, got)
	}
	return nil
}

func (s *authSteps) email(alias string) string {
	return fmt.Sprintf("%s.%s@e2e.example.com", alias, s.tc.RunID())
}

// profile builds a registration body. Aliases double as first names, so they
// must be letters only.
func (s *authSteps) profile(email, alias string) map[string]string {
	return map[string]string{
		"email":      email,
		"password":   defaultPassword,
		"first_name": alias,
		"last_name":  "Tester",
	}
}
