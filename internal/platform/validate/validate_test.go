// Copyright (c) 2026 Tempora. All rights reserved.
// Author: dev@tempora.app

package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temporahq/tempora/internal/platform/apperr"
)

func TestValidator_PassingChain(t *testing.T) {
	err := New().
		Required("email", "dev@tempora.app").
		Email("email", "dev@tempora.app").
		MaxLen("name", "Ada", 50).
		Slug("slug", "acme-corp").
		UUID("id", "0191e5a0-5c5e-7b9a-b1c2-123456789abc").
		OneOf("role", "team_lead", "team_lead", "regular_user").
		Err()

	assert.NoError(t, err)
}

func TestValidator_CollectsAllFailures(t *testing.T) {
	err := New().
		Required("email", "  ").
		Email("email", "not-an-email").
		Slug("slug", "Not A Slug").
		UUID("id", "nope").
		Err()

	require.Error(t, err)
	appError := apperr.As(err)
	require.NotNil(t, appError)

	assert.Equal(t, "VALIDATION_ERROR", appError.Code)
	assert.Len(t, appError.Details, 4)
}

func TestValidator_Custom(t *testing.T) {
	err := New().
		Custom("end_time", true, "Must not precede the start time").
		Err()

	require.Error(t, err)
	details := apperr.As(err).Details
	require.Len(t, details, 1)
	assert.Equal(t, "end_time", details[0].Field)
}

func TestPassword_AcceptsStrongPassword(t *testing.T) {
	err := New().Password("password", "Tr4ck-my-H0urs!").PasswordError()
	assert.NoError(t, err)
}

func TestPassword_PolicyFailures(t *testing.T) {
	tests := []struct {
		name     string
		password string
	}{
		{"too short", "Ab1!"},
		{"no uppercase", "lowercase-only-123!"},
		{"no lowercase", "UPPERCASE-ONLY-123!"},
		{"no digit", "No-Digits-Here!!"},
		{"no symbol", "NoSymbolsHere123"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := New().Password("password", test.password).PasswordError()
			require.Error(t, err)
			assert.Equal(t, "WEAK_PASSWORD", apperr.As(err).Code)
		})
	}
}

func TestPassword_DenylistIsCaseInsensitive(t *testing.T) {
	// Satisfies every character-class rule but sits in the denylist.
	err := New().Password("password", "P@ssw0rd1234").PasswordError()

	require.Error(t, err)
	found := false
	for _, detail := range apperr.As(err).Details {
		if detail.Message == "This password is too common" {
			found = true
		}
	}
	assert.True(t, found, "expected denylist rejection")
}
