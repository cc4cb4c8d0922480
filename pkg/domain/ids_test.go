package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "loanmanager/pkg/domain-errors"
)

// TestParseUUID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs"
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseApplicationID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseApplicationID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseUserID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseUserID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, UserID(validUUID), id)
	})
}

// TestParseID_SecurityInvariants covers hostile input at API entry points.
func TestParseID_SecurityInvariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE loan_applications;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Unicode zero-width space", "550e8400\u200B-e29b-41d4-a716-446655440000", true},
		{"Empty string", "", true},
		{"Nil UUID", uuid.Nil.String(), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseApplicationID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestIDs_JSONRoundTrip(t *testing.T) {
	type envelope struct {
		ApplicationID ApplicationID `json:"application_id"`
		VerifiedBy    *UserID       `json:"verified_by,omitempty"`
	}
	appID := NewApplicationID()
	verifier := NewUserID()

	raw, err := json.Marshal(envelope{ApplicationID: appID, VerifiedBy: &verifier})
	require.NoError(t, err)
	assert.Contains(t, string(raw), appID.String())

	var decoded envelope
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, appID, decoded.ApplicationID)
	require.NotNil(t, decoded.VerifiedBy)
	assert.Equal(t, verifier, *decoded.VerifiedBy)
}

func TestParseRole(t *testing.T) {
	for _, valid := range []string{"applicant", "verifier", "administrator"} {
		role, err := ParseRole(valid)
		require.NoError(t, err)
		assert.Equal(t, Role(valid), role)
	}

	for _, invalid := range []string{"", "admin", "user", "ADMINISTRATOR"} {
		_, err := ParseRole(invalid)
		require.Error(t, err, invalid)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	}

	assert.True(t, RoleVerifier.IsReviewer())
	assert.True(t, RoleAdministrator.IsReviewer())
	assert.False(t, RoleApplicant.IsReviewer())
	assert.False(t, Role("auditor").IsReviewer())
}

func TestIDs_SQLValueAndScan(t *testing.T) {
	id := NewApplicationID()

	v, err := id.Value()
	require.NoError(t, err)
	assert.Equal(t, id.String(), v)

	var scanned ApplicationID
	require.NoError(t, scanned.Scan(id.String()))
	assert.Equal(t, id, scanned)

	nilValue, err := UserID{}.Value()
	require.NoError(t, err)
	assert.Nil(t, nilValue)

	var fromNull UserID
	require.NoError(t, fromNull.Scan(nil))
	assert.True(t, fromNull.IsNil())
}
