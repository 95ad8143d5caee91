package service

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/usp/internal/errors"
	policyDomain "github.com/allisson/usp/internal/policy/domain"
)

func evalInput() policyDomain.EvalInput {
	return policyDomain.EvalInput{
		Resource: "pam/safe/prod/db1",
		Action:   "checkout",
		IP:       netip.MustParseAddr("203.0.113.10"),
		Now:      time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
		Tags:     map[string]string{"env": "prod"},
	}
}

func TestCompile(t *testing.T) {
	t.Run("Success_FullDocument", func(t *testing.T) {
		policy, err := Compile("office-hours", `
			# prod checkouts only from the office network during the day
			effect deny
			resource pam/safe/prod/*
			action checkout
			when hour not between 8 and 18
		`)
		require.NoError(t, err)

		assert.Equal(t, "office-hours", policy.Name())
		assert.Equal(t, policyDomain.EffectDeny, policy.Effect())

		input := evalInput()
		assert.False(t, policy.Matches(input), "noon is inside office hours")

		input.Now = time.Date(2025, 6, 15, 22, 0, 0, 0, time.UTC)
		assert.True(t, policy.Matches(input))
	})

	t.Run("Success_DefaultsMatchEverything", func(t *testing.T) {
		policy, err := Compile("deny-all", "effect deny")
		require.NoError(t, err)

		assert.True(t, policy.Matches(evalInput()))
	})

	t.Run("Error_MissingEffect", func(t *testing.T) {
		_, err := Compile("broken", "resource pam/*")

		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("Error_UnknownDirective", func(t *testing.T) {
		_, err := Compile("broken", "effect allow\ngrant everything")

		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})
}

func TestCompile_Conditions(t *testing.T) {
	t.Run("Success_IPRange", func(t *testing.T) {
		policy, err := Compile("office-net", `
			effect allow
			when ip in 203.0.113.0/24
		`)
		require.NoError(t, err)

		input := evalInput()
		assert.True(t, policy.Matches(input))

		input.IP = netip.MustParseAddr("198.51.100.7")
		assert.False(t, policy.Matches(input))
	})

	t.Run("Success_IPNotIn", func(t *testing.T) {
		policy, err := Compile("outside", `
			effect deny
			when ip not in 203.0.113.0/24
		`)
		require.NoError(t, err)

		input := evalInput()
		assert.False(t, policy.Matches(input))

		input.IP = netip.MustParseAddr("198.51.100.7")
		assert.True(t, policy.Matches(input))
	})

	t.Run("Success_HourWrapsMidnight", func(t *testing.T) {
		policy, err := Compile("night-shift", `
			effect allow
			when hour between 22 and 6
		`)
		require.NoError(t, err)

		input := evalInput()
		input.Now = time.Date(2025, 6, 15, 23, 0, 0, 0, time.UTC)
		assert.True(t, policy.Matches(input))

		input.Now = time.Date(2025, 6, 15, 3, 0, 0, 0, time.UTC)
		assert.True(t, policy.Matches(input))

		input.Now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
		assert.False(t, policy.Matches(input))
	})

	t.Run("Success_Tags", func(t *testing.T) {
		policy, err := Compile("prod-only", `
			effect deny
			when tag env == prod
			when tag tier != free
		`)
		require.NoError(t, err)

		input := evalInput()
		assert.True(t, policy.Matches(input))

		input.Tags = map[string]string{"env": "staging"}
		assert.False(t, policy.Matches(input))
	})

	t.Run("Error_BadCidr", func(t *testing.T) {
		_, err := Compile("broken", "effect allow\nwhen ip in not-a-cidr")

		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("Error_BadHour", func(t *testing.T) {
		_, err := Compile("broken", "effect allow\nwhen hour between 8 and 26")

		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})
}

func TestMatchResource(t *testing.T) {
	tests := []struct {
		pattern  string
		resource string
		want     bool
	}{
		{"*", "anything/at/all", true},
		{"pam/safe/prod/*", "pam/safe/prod/db1", true},
		{"pam/safe/prod/*", "pam/safe/prod/a/b", true},
		{"pam/safe/prod/*", "pam/safe/staging/db1", false},
		{"pam/safe/prod", "pam/safe/prod", true},
		{"pam/safe/prod", "pam/safe/prod/db1", false},
		{"pam/*/prod", "pam/safe/prod", true},
		{"pam/*/prod", "pam/safe/staging", false},
	}

	for _, test := range tests {
		assert.Equal(
			t, test.want,
			policyDomain.MatchResource(test.pattern, test.resource),
			"pattern=%s resource=%s", test.pattern, test.resource,
		)
	}
}
