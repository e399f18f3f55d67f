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

package identity

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	coreerrors "github.com/eschercloudai/site-agent/pkg/errors"
	"github.com/eschercloudai/site-agent/pkg/marketplace"
)

// Username issuing policies selectable per offering.
const (
	// PolicyFullName derives a username from the user's full name,
	// disambiguated with a stable hash of their marketplace UUID.
	PolicyFullName = "full_name"

	// PolicyAnonymized issues opaque usernames carrying no personal
	// information.
	PolicyAnonymized = "anonymized"

	// PolicyAccountLinking never issues usernames; users must link an
	// existing site account through an external flow.
	PolicyAccountLinking = "account_linking"

	// PolicyManual never issues usernames; site staff validate each
	// user and fill the username in by hand.
	PolicyManual = "manual"
)

// NewGenerator constructs the generator for a policy name.  Options are
// policy specific: "prefix" for anonymized usernames, "message" and
// "url" for the linking and manual flows.
func NewGenerator(policy string, options map[string]string) (Generator, error) {
	switch policy {
	case PolicyFullName:
		return &fullNameGenerator{}, nil
	case PolicyAnonymized:
		prefix := options["prefix"]
		if prefix == "" {
			prefix = "u"
		}

		return &anonymizedGenerator{prefix: prefix}, nil
	case PolicyAccountLinking:
		return &deferringGenerator{
			outcome: OutcomeNeedsLinking,
			message: options["message"],
			url:     options["url"],
		}, nil
	case PolicyManual:
		return &deferringGenerator{
			outcome: OutcomeNeedsValidation,
			message: options["message"],
			url:     options["url"],
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown username policy %q", coreerrors.ErrConfiguration, policy)
	}
}

// shortHash yields a stable 4 hex digit disambiguator for a user UUID.
func shortHash(s string) string {
	h := fnv.New32a()
	h.Write([]byte(s))

	return fmt.Sprintf("%04x", h.Sum32()&0xffff)
}

// slugify reduces a display name to lowercase ASCII letters and digits.
func slugify(s string) string {
	var b strings.Builder

	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', unicode.IsDigit(r):
			b.WriteRune(r)
		}
	}

	return b.String()
}

type fullNameGenerator struct{}

func (g *fullNameGenerator) GetUsername(_ context.Context, _ *marketplace.TeamMember) (string, error) {
	return "", nil
}

func (g *fullNameGenerator) GenerateUsername(_ context.Context, member *marketplace.TeamMember) (*Result, error) {
	base := slugify(member.FullName)

	if base == "" {
		if at := strings.IndexByte(member.Email, '@'); at > 0 {
			base = slugify(member.Email[:at])
		}
	}

	if base == "" {
		base = "user"
	}

	// 12 characters of name keeps usernames within common backend
	// length limits once the hash suffix is appended.
	if len(base) > 12 {
		base = base[:12]
	}

	return &Result{
		Outcome:  OutcomeOK,
		Username: base + "-" + shortHash(member.UUID),
	}, nil
}

type anonymizedGenerator struct {
	prefix string
}

func (g *anonymizedGenerator) GetUsername(_ context.Context, _ *marketplace.TeamMember) (string, error) {
	return "", nil
}

func (g *anonymizedGenerator) GenerateUsername(_ context.Context, member *marketplace.TeamMember) (*Result, error) {
	h := fnv.New64a()
	h.Write([]byte(member.UUID))

	return &Result{
		Outcome:  OutcomeOK,
		Username: fmt.Sprintf("%s%012x", g.prefix, h.Sum64()&0xffffffffffff),
	}, nil
}

// deferringGenerator implements the policies that never mint usernames
// locally and instead hand the user an instruction.
type deferringGenerator struct {
	outcome Outcome
	message string
	url     string
}

func (g *deferringGenerator) GetUsername(_ context.Context, _ *marketplace.TeamMember) (string, error) {
	return "", nil
}

func (g *deferringGenerator) GenerateUsername(_ context.Context, _ *marketplace.TeamMember) (*Result, error) {
	return &Result{
		Outcome: g.outcome,
		Message: g.message,
		URL:     g.url,
	}, nil
}
