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

// Package identity resolves site local usernames for marketplace users.
// Resolution is policy driven: a site may mint usernames itself, or it
// may require the user to link an existing account or pass an out of
// band validation step first.
package identity

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/eschercloudai/site-agent/pkg/marketplace"
)

// Outcome classifies a username resolution attempt.
type Outcome string

const (
	// OutcomeOK means a username is available and may be used.
	OutcomeOK Outcome = "ok"

	// OutcomeNeedsLinking means the user must link an existing site
	// account before a username can be issued.
	OutcomeNeedsLinking Outcome = "needs_account_linking"

	// OutcomeNeedsValidation means site staff must validate the user
	// before a username can be issued.
	OutcomeNeedsValidation Outcome = "needs_additional_validation"
)

// Result is the outcome of a username resolution.  Username is set
// exactly when Outcome is OutcomeOK; Message and URL carry user facing
// instructions otherwise.
type Result struct {
	Outcome  Outcome
	Username string
	Message  string
	URL      string
}

// Generator implements one username issuing policy.
type Generator interface {
	// GetUsername returns the existing site username for the user, or
	// empty when none exists yet.
	GetUsername(ctx context.Context, member *marketplace.TeamMember) (string, error)

	// GenerateUsername issues a username for the user, or reports what
	// must happen before one can be issued.
	GenerateUsername(ctx context.Context, member *marketplace.TeamMember) (*Result, error)
}

// Manager resolves usernames, caching successful resolutions so repeated
// membership passes don't hammer the identity source.
type Manager struct {
	generator Generator
	cache     *expirable.LRU[string, string]
}

// cacheSize bounds the resolution cache, sized for the largest team we
// expect to see across all offerings of one agent.
const cacheSize = 4096

// NewManager returns a manager around the given policy.  Cached entries
// expire after ttl so renames eventually propagate.
func NewManager(generator Generator, ttl time.Duration) *Manager {
	return &Manager{
		generator: generator,
		cache:     expirable.NewLRU[string, string](cacheSize, nil, ttl),
	}
}

// GetOrCreateUsername resolves the site username for a team member.  The
// binding, if already known, short circuits resolution; otherwise the
// generator is consulted, first for an existing account and then to
// issue a new one.
func (m *Manager) GetOrCreateUsername(ctx context.Context, member *marketplace.TeamMember, binding *marketplace.OfferingUser) (*Result, error) {
	if binding != nil && binding.Username != "" {
		return &Result{Outcome: OutcomeOK, Username: binding.Username}, nil
	}

	if username, ok := m.cache.Get(member.UUID); ok {
		return &Result{Outcome: OutcomeOK, Username: username}, nil
	}

	username, err := m.generator.GetUsername(ctx, member)
	if err != nil {
		return nil, err
	}

	if username != "" {
		m.cache.Add(member.UUID, username)

		return &Result{Outcome: OutcomeOK, Username: username}, nil
	}

	result, err := m.generator.GenerateUsername(ctx, member)
	if err != nil {
		return nil, err
	}

	if result.Outcome == OutcomeOK {
		m.cache.Add(member.UUID, result.Username)
	}

	return result, nil
}

// Invalidate drops the cached resolution for one user, e.g. after the
// marketplace reports the binding deleted.
func (m *Manager) Invalidate(userUUID string) {
	m.cache.Remove(userUUID)
}
