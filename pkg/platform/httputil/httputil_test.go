package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "loanmanager/pkg/domain-errors"
)

func TestWriteError(t *testing.T) {
	t.Run("internal error omits description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.Wrap(errors.New("db down"), dErrors.CodeInternal, "failed to load application"))

		require.Equal(t, http.StatusInternalServerError, w.Code)
		var body map[string]string
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "internal_error", body["error"])
		_, ok := body["error_description"]
		assert.False(t, ok, "expected error_description to be omitted for internal errors")
	})

	t.Run("uncoded error is internal", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, errors.New("raw"))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("workflow codes map to client statuses", func(t *testing.T) {
		cases := map[dErrors.Code]int{
			dErrors.CodeNotFound:          http.StatusNotFound,
			dErrors.CodeForbidden:         http.StatusForbidden,
			dErrors.CodeInvalidTransition: http.StatusBadRequest,
			dErrors.CodeConflict:          http.StatusConflict,
			dErrors.CodeValidation:        http.StatusBadRequest,
			dErrors.CodeUnauthorized:      http.StatusUnauthorized,
		}
		for code, status := range cases {
			w := httptest.NewRecorder()
			WriteError(w, dErrors.New(code, "message"))
			assert.Equal(t, status, w.Code, code)

			var body map[string]string
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, string(code), body["error"])
			assert.Equal(t, "message", body["error_description"])
		}
	})
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Action string `json:"action"`
	}

	t.Run("decodes known fields", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"action":"verify"}`))
		var p payload
		require.NoError(t, DecodeJSON(r, &p))
		assert.Equal(t, "verify", p.Action)
	})

	t.Run("rejects unknown fields as bad request", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"action":"verify","status":"approved"}`))
		var p payload
		err := DecodeJSON(r, &p)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

type commentRequest struct {
	Comment string `json:"comment"`
}

func (r *commentRequest) Validate() error {
	if r.Comment == "" {
		return dErrors.New(dErrors.CodeValidation, "comment is required")
	}
	return nil
}

func TestDecodeAndPrepare(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	t.Run("returns validated request", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"comment":"ok"}`))
		w := httptest.NewRecorder()
		req, ok := DecodeAndPrepare[commentRequest](w, r, logger, context.Background(), "req-1")
		require.True(t, ok)
		assert.Equal(t, "ok", req.Comment)
	})

	t.Run("writes validation error", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
		w := httptest.NewRecorder()
		_, ok := DecodeAndPrepare[commentRequest](w, r, logger, context.Background(), "req-1")
		require.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
