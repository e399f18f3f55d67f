/*
Copyright 2024 EscherCloud.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package identity_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "github.com/eschercloudai/site-agent/pkg/errors"
	"github.com/eschercloudai/site-agent/pkg/identity"
	"github.com/eschercloudai/site-agent/pkg/marketplace"
)

func member() *marketplace.TeamMember {
	return &marketplace.TeamMember{
		UUID:     "user-1",
		Username: "jdoe@marketplace",
		FullName: "Jane Doe",
		Email:    "jane.doe@example.com",
	}
}

// countingGenerator counts calls so tests can assert cache behaviour.
type countingGenerator struct {
	existing  string
	generated int
	looked    int
}

func (g *countingGenerator) GetUsername(_ context.Context, _ *marketplace.TeamMember) (string, error) {
	g.looked++

	return g.existing, nil
}

func (g *countingGenerator) GenerateUsername(_ context.Context, _ *marketplace.TeamMember) (*identity.Result, error) {
	g.generated++

	return &identity.Result{Outcome: identity.OutcomeOK, Username: "minted"}, nil
}

// TestManagerBindingShortCircuit expects a known binding to bypass the
// generator entirely.
func TestManagerBindingShortCircuit(t *testing.T) {
	t.Parallel()

	generator := &countingGenerator{}
	manager := identity.NewManager(generator, time.Minute)

	binding := &marketplace.OfferingUser{Username: "existing", State: marketplace.OfferingUserStateOK}

	result, err := manager.GetOrCreateUsername(context.Background(), member(), binding)
	require.NoError(t, err)

	assert.Equal(t, identity.OutcomeOK, result.Outcome)
	assert.Equal(t, "existing", result.Username)
	assert.Zero(t, generator.looked)
	assert.Zero(t, generator.generated)
}

// TestManagerCachesResolution expects repeated resolution of the same
// user to hit the generator once.
func TestManagerCachesResolution(t *testing.T) {
	t.Parallel()

	generator := &countingGenerator{}
	manager := identity.NewManager(generator, time.Minute)

	for i := 0; i < 3; i++ {
		result, err := manager.GetOrCreateUsername(context.Background(), member(), nil)
		require.NoError(t, err)
		assert.Equal(t, "minted", result.Username)
	}

	assert.Equal(t, 1, generator.generated)

	// Invalidation forces a fresh resolution.
	manager.Invalidate("user-1")

	_, err := manager.GetOrCreateUsername(context.Background(), member(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, generator.generated)
}

// TestManagerPrefersExistingAccount expects lookup to win over
// generation.
func TestManagerPrefersExistingAccount(t *testing.T) {
	t.Parallel()

	generator := &countingGenerator{existing: "site-jane"}
	manager := identity.NewManager(generator, time.Minute)

	result, err := manager.GetOrCreateUsername(context.Background(), member(), nil)
	require.NoError(t, err)

	assert.Equal(t, "site-jane", result.Username)
	assert.Zero(t, generator.generated)
}

// TestFullNamePolicy expects a readable, stable, collision resistant
// username.
func TestFullNamePolicy(t *testing.T) {
	t.Parallel()

	generator, err := identity.NewGenerator(identity.PolicyFullName, nil)
	require.NoError(t, err)

	first, err := generator.GenerateUsername(context.Background(), member())
	require.NoError(t, err)

	second, err := generator.GenerateUsername(context.Background(), member())
	require.NoError(t, err)

	assert.Equal(t, identity.OutcomeOK, first.Outcome)
	assert.Equal(t, first.Username, second.Username)
	assert.Regexp(t, `^janedoe-[0-9a-f]{4}$`, first.Username)

	// Same display name, different user, different username.
	other := member()
	other.UUID = "user-2"

	third, err := generator.GenerateUsername(context.Background(), other)
	require.NoError(t, err)
	assert.NotEqual(t, first.Username, third.Username)
}

// TestFullNamePolicyFallsBackToEmail expects the email local part when
// the display name is unusable.
func TestFullNamePolicyFallsBackToEmail(t *testing.T) {
	t.Parallel()

	generator, err := identity.NewGenerator(identity.PolicyFullName, nil)
	require.NoError(t, err)

	m := member()
	m.FullName = "---"

	result, err := generator.GenerateUsername(context.Background(), m)
	require.NoError(t, err)
	assert.Regexp(t, `^janedoe-[0-9a-f]{4}$`, result.Username)
}

// TestAnonymizedPolicy expects opaque usernames with the configured
// prefix and no name material.
func TestAnonymizedPolicy(t *testing.T) {
	t.Parallel()

	generator, err := identity.NewGenerator(identity.PolicyAnonymized, map[string]string{"prefix": "hpc"})
	require.NoError(t, err)

	result, err := generator.GenerateUsername(context.Background(), member())
	require.NoError(t, err)

	assert.Regexp(t, `^hpc[0-9a-f]{12}$`, result.Username)
	assert.NotContains(t, result.Username, "jane")
}

// TestDeferringPolicies expects linking and manual policies to defer
// with instructions rather than mint usernames.
func TestDeferringPolicies(t *testing.T) {
	t.Parallel()

	options := map[string]string{
		"message": "visit the portal",
		"url":     "https://portal.example.com/link",
	}

	linking, err := identity.NewGenerator(identity.PolicyAccountLinking, options)
	require.NoError(t, err)

	result, err := linking.GenerateUsername(context.Background(), member())
	require.NoError(t, err)

	assert.Equal(t, identity.OutcomeNeedsLinking, result.Outcome)
	assert.Empty(t, result.Username)
	assert.Equal(t, "visit the portal", result.Message)
	assert.Equal(t, "https://portal.example.com/link", result.URL)

	manual, err := identity.NewGenerator(identity.PolicyManual, nil)
	require.NoError(t, err)

	result, err = manual.GenerateUsername(context.Background(), member())
	require.NoError(t, err)
	assert.Equal(t, identity.OutcomeNeedsValidation, result.Outcome)
}

// TestUnknownPolicy expects a configuration error.
func TestUnknownPolicy(t *testing.T) {
	t.Parallel()

	_, err := identity.NewGenerator("telepathy", nil)
	assert.ErrorIs(t, err, coreerrors.ErrConfiguration)
}
