package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Response is one captured HTTP exchange.
type Response struct {
	Status int
	Body   []byte
}

// TestContext carries per-scenario state against a running server. Accounts
// are remembered by alias so steps can switch the acting user.
type TestContext struct {
	BaseURL string
	client  *http.Client

	mu       sync.Mutex
	last     *Response
	tokens   map[string]string
	userIDs  map[string]string
	actor    string
	appID    string
	parallel []int
	runID    string
}

// NewTestContext returns a context bound to baseURL.
func NewTestContext(baseURL string) *TestContext {
	return &TestContext{
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Reset clears scenario state. Each scenario gets a fresh run id so accounts
// it registers never collide with earlier runs.
func (tc *TestContext) Reset() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.last = nil
	tc.tokens = map[string]string{}
	tc.userIDs = map[string]string{}
	tc.actor = ""
	tc.appID = ""
	tc.parallel = nil
	tc.runID = fmt.Sprintf("%d", time.Now().UnixNano())
}

func (tc *TestContext) RunID() string { return tc.runID }

// Do sends a JSON request as the current actor and records the response.
func (tc *TestContext) Do(ctx context.Context, method, path string, body any) error {
	res, err := tc.send(ctx, method, path, tc.Token(tc.actor), body)
	if err != nil {
		return err
	}
	tc.mu.Lock()
	tc.last = res
	tc.mu.Unlock()
	return nil
}

// DoAs is Do for an explicit alias. It returns the status and leaves the
// last response alone, so it is safe to call from several goroutines.
func (tc *TestContext) DoAs(ctx context.Context, alias, method, path string, body any) (int, error) {
	res, err := tc.send(ctx, method, path, tc.Token(alias), body)
	if err != nil {
		return 0, err
	}
	return res.Status, nil
}

// Status returns the last response's status code.
func (tc *TestContext) Status() (int, error) {
	res, err := tc.Last()
	if err != nil {
		return 0, err
	}
	return res.Status, nil
}

// Body returns the last response body.
func (tc *TestContext) Body() (string, error) {
	res, err := tc.Last()
	if err != nil {
		return "", err
	}
	return string(res.Body), nil
}

func (tc *TestContext) send(ctx context.Context, method, path, token string, body any) (*Response, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, tc.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := tc.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Response{Status: resp.StatusCode, Body: raw}, nil
}

// Last returns the most recent response recorded by Do.
func (tc *TestContext) Last() (*Response, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.last == nil {
		return nil, fmt.Errorf("no request has been made")
	}
	return tc.last, nil
}

// Field reads a dotted path such as "user.id" from the last JSON response.
func (tc *TestContext) Field(path string) (any, error) {
	res, err := tc.Last()
	if err != nil {
		return nil, err
	}
	return res.Field(path)
}

// Field reads a dotted path from the response body.
func (r *Response) Field(path string) (any, error) {
	var doc any
	if err := json.Unmarshal(r.Body, &doc); err != nil {
		return nil, fmt.Errorf("response is not JSON: %w", err)
	}
	cur := doc
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field %q: %q is not an object", path, part)
		}
		if cur, ok = obj[part]; !ok {
			return nil, fmt.Errorf("field %q not found in %s", path, r.Body)
		}
	}
	return cur, nil
}

// StringField is Field for string values.
func (tc *TestContext) StringField(path string) (string, error) {
	v, err := tc.Field(path)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q is %T, not a string", path, v)
	}
	return s, nil
}

func (tc *TestContext) SetToken(alias, token, userID string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.tokens[alias] = token
	tc.userIDs[alias] = userID
}

func (tc *TestContext) Token(alias string) string {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.tokens[alias]
}

func (tc *TestContext) UserID(alias string) string {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.userIDs[alias]
}

// ActAs switches the account used by Do. An empty alias sends no token.
func (tc *TestContext) ActAs(alias string) error {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if alias != "" {
		if _, ok := tc.tokens[alias]; !ok {
			return fmt.Errorf("no account known as %q", alias)
		}
	}
	tc.actor = alias
	return nil
}

func (tc *TestContext) SetApplicationID(id string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.appID = id
}

func (tc *TestContext) ApplicationID() string {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.appID
}

// SetParallel records the statuses of a concurrent burst.
func (tc *TestContext) SetParallel(statuses []int) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.parallel = statuses
}

func (tc *TestContext) Parallel() []int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.parallel
}
