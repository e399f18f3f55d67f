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

package backend

//go:generate mockgen -source=interfaces.go -destination=mock/interfaces.go -package=mock

import (
	"context"

	"github.com/eschercloudai/site-agent/pkg/marketplace"
)

// TotalAccountUsage is the reserved username key under which a backend
// reports resource wide usage totals.
const TotalAccountUsage = "TOTAL_ACCOUNT_USAGE"

// ResourceUsage maps username onto component onto amount, in backend
// units.  The TotalAccountUsage key is reserved for the resource total.
type ResourceUsage map[string]map[string]float64

// ResourceInfo is the core's view of what the backend currently reports
// for one resource.  It is produced only by driver reads and never
// mutated by the core.
type ResourceInfo struct {
	// BackendID is the site local identifier, e.g. an account name.
	BackendID string

	// Description is the backend side annotation, carrying the
	// marketplace resource UUID so ownership survives restarts.
	Description string

	// Users is the set of authorized usernames.
	Users []string

	// Usage is the reported consumption; the TotalAccountUsage key is
	// always present on driver pulls, zero valued if the backend has no
	// data yet.
	Usage ResourceUsage

	// Limits are the current backend side limits.
	Limits map[string]int64

	// ParentID optionally identifies a containing object, e.g. a batch
	// system parent account.
	ParentID string
}

// TotalUsage returns the resource wide totals, never nil.
func (i *ResourceInfo) TotalUsage() map[string]float64 {
	if total, ok := i.Usage[TotalAccountUsage]; ok {
		return total
	}

	return map[string]float64{}
}

// Verdict is a driver's judgement of a pending-provider order.
type Verdict string

const (
	// VerdictAccept approves the order for execution.
	VerdictAccept Verdict = "accept"

	// VerdictReject terminally rejects the order.
	VerdictReject Verdict = "reject"

	// VerdictPending leaves the order untouched for a later pass.
	VerdictPending Verdict = "pending"
)

// Client is the low level per-protocol capability set.  Implementations
// must not raise for idempotent no-ops: creating an existing resource,
// deleting a missing one and adding an existing association all succeed.
type Client interface {
	// ListResources returns all backend resource identifiers.
	ListResources(ctx context.Context) ([]string, error)

	// GetResource returns the backend's view of one resource, or a
	// not-found error.
	GetResource(ctx context.Context, id string) (*ResourceInfo, error)

	// CreateResource creates a resource, returning its identifier.
	CreateResource(ctx context.Context, name, description, organization, parentID string) (string, error)

	// DeleteResource removes a resource.
	DeleteResource(ctx context.Context, id string) error

	// SetResourceLimits applies limits in backend units.
	SetResourceLimits(ctx context.Context, id string, limits map[string]int64) error

	// GetResourceLimits reads current limits in backend units.
	GetResourceLimits(ctx context.Context, id string) (map[string]int64, error)

	// GetResourceUserLimits reads per-user limit overrides.
	GetResourceUserLimits(ctx context.Context, id string) (map[string]map[string]int64, error)

	// SetResourceUserLimits applies per-user limit overrides.  An empty
	// map clears the user's overrides.
	SetResourceUserLimits(ctx context.Context, id, username string, limits map[string]int64) error

	// GetAssociation reports whether the user is authorized on the
	// resource.
	GetAssociation(ctx context.Context, username, id string) (bool, error)

	// CreateAssociation authorizes the user on the resource, optionally
	// making it their default account.
	CreateAssociation(ctx context.Context, username, id, defaultAccount string) error

	// DeleteAssociation removes the user's authorization.
	DeleteAssociation(ctx context.Context, username, id string) error

	// GetUsageReport returns consumption for the given resources.
	GetUsageReport(ctx context.Context, ids []string) (map[string]ResourceUsage, error)

	// ListResourceUsers returns usernames authorized on the resource.
	ListResourceUsers(ctx context.Context, id string) ([]string, error)
}

// UserContext carries the identity material a driver needs to provision
// accounts during resource creation.
type UserContext struct {
	// Team is the resource's project team.
	Team []marketplace.TeamMember

	// OfferingUsers maps marketplace user UUID onto the offering user
	// binding.
	OfferingUsers map[string]marketplace.OfferingUser
}

// Usernames returns the site local usernames that may be materialized,
// i.e. team members whose offering user binding is active.
func (c *UserContext) Usernames() []string {
	if c == nil {
		return nil
	}

	var out []string

	for _, member := range c.Team {
		user, ok := c.OfferingUsers[member.UUID]
		if !ok {
			continue
		}

		if user.Active() {
			out = append(out, user.Username)
		}
	}

	return out
}

// Driver is the high level orchestration surface the processors program
// against.  Drivers must be safe for concurrent calls from different
// lanes; any shared mutable state, notably cached credentials, must be
// refreshed atomically.
type Driver interface {
	// Ping verifies backend connectivity.
	Ping(ctx context.Context) error

	// Diagnostics returns a human readable health report.
	Diagnostics(ctx context.Context) (string, error)

	// ListComponents returns the backend side component names.
	ListComponents() []string

	// CreateResource provisions a resource for the marketplace resource,
	// returning the backend's view of it.  Implementations must be
	// idempotent: a second application yields the same backend id and
	// state.
	CreateResource(ctx context.Context, resource *marketplace.Resource, users *UserContext) (*ResourceInfo, error)

	// DeleteResource removes the resource and any dependent objects.
	// Deleting a missing resource is a no-op.
	DeleteResource(ctx context.Context, resource *marketplace.Resource) error

	// PullResource returns the current backend state, or nil if the
	// resource does not exist in the backend.
	PullResource(ctx context.Context, resource *marketplace.Resource) (*ResourceInfo, error)

	// PullResources bulk pulls state for many resources, keyed by
	// marketplace resource UUID.  Missing resources are omitted.
	PullResources(ctx context.Context, resources []marketplace.Resource) (map[string]*ResourceInfo, error)

	// GetUsageReport returns consumption for the given backend ids.
	GetUsageReport(ctx context.Context, backendIDs []string) (map[string]ResourceUsage, error)

	// SetResourceLimits applies limits in backend units.
	SetResourceLimits(ctx context.Context, backendID string, limits map[string]int64) error

	// AddUsersToResource authorizes the users, returning the subset
	// actually added.  Partial failure is tolerated and logged per-user.
	AddUsersToResource(ctx context.Context, backendID string, usernames []string) ([]string, error)

	// RemoveUsersFromResource revokes the users' authorizations.
	RemoveUsersFromResource(ctx context.Context, backendID string, usernames []string) error

	// DownscaleResource reduces the resource's priority or size while
	// the marketplace flags it downscaled.
	DownscaleResource(ctx context.Context, backendID string) error

	// PauseResource suspends the resource.
	PauseResource(ctx context.Context, backendID string) error

	// RestoreResource reverts any downscale or pause.
	RestoreResource(ctx context.Context, backendID string) error

	// GetResourceMetadata returns backend specific metadata to mirror
	// onto the marketplace.
	GetResourceMetadata(ctx context.Context, backendID string) (map[string]any, error)

	// GetResourceUserLimits reads per-user limit overrides.
	GetResourceUserLimits(ctx context.Context, backendID string) (map[string]map[string]int64, error)

	// SetResourceUserLimits applies per-user limit overrides.
	SetResourceUserLimits(ctx context.Context, backendID, username string, limits map[string]int64) error

	// EvaluatePendingOrder may veto a pending-provider order.  The
	// default is to accept.
	EvaluatePendingOrder(ctx context.Context, order *marketplace.Order, client marketplace.Client) (Verdict, error)
}
