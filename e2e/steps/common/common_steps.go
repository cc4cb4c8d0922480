package common

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext is the slice of the scenario context these steps use.
type TestContext interface {
	Do(ctx context.Context, method, path string, body any) error
	Status() (int, error)
	Body() (string, error)
	Field(path string) (any, error)
}

// RegisterSteps registers health, raw request and response assertion steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	ctx.Step(`^the loan service is running$`, steps.serviceIsRunning)
	ctx.Step(`^I GET "([^"]*)"$`, steps.get)

	ctx.Step(`^the response status should be (\d+)$`, steps.statusShouldBe)
	ctx.Step(`^the error should be "([^"]*)"$`, steps.errorShouldBe)
	ctx.Step(`^the response field "([^"]*)" should equal "([^"]*)"$`, steps.fieldShouldEqual)
	ctx.Step(`^the response field "([^"]*)" should be set$`, steps.fieldShouldBeSet)
	ctx.Step(`^the response field "([^"]*)" should not be set$`, steps.fieldShouldNotBeSet)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) serviceIsRunning(ctx context.Context) error {
	if err := s.tc.Do(ctx, http.MethodGet, "/healthz", nil); err != nil {
		return err
	}
	return s.statusShouldBe(ctx, http.StatusOK)
}

func (s *commonSteps) get(ctx context.Context, path string) error {
	return s.tc.Do(ctx, http.MethodGet, path, nil)
}

func (s *commonSteps) statusShouldBe(_ context.Context, want int) error {
	got, err := s.tc.Status()
	if err != nil {
		return err
	}
	if got != want {
		body, _ := s.tc.Body()
		return fmt.Errorf("expected status %d, got %d: %s", want, got, body)
	}
	return nil
}

func (s *commonSteps) errorShouldBe(ctx context.Context, code string) error {
	return s.fieldShouldEqual(ctx, "error", code)
}

func (s *commonSteps) fieldShouldEqual(_ context.Context, path, want string) error {
	v, err := s.tc.Field(path)
	if err != nil {
		return err
	}
	got := render(v)
	if got != want {
		return fmt.Errorf("field %q: expected %q, got %q", path, want, got)
	}
	return nil
}

func (s *commonSteps) fieldShouldBeSet(_ context.Context, path string) error {
	v, err := s.tc.Field(path)
	if err != nil {
		return err
	}
	if v == nil || v == "" {
		return fmt.Errorf("field %q is empty", path)
	}
	return nil
}

func (s *commonSteps) fieldShouldNotBeSet(_ context.Context, path string) error {
	v, err := s.tc.Field(path)
	if err != nil && strings.Contains(err.Error(), "not found") {
		return nil
	}
	if err != nil {
		return err
	}
	if v != nil {
		return fmt.Errorf("field %q should be absent, got %v", path, v)
	}
	return nil
}

func render(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
