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

// Package membership implements the membership lane: it reconciles team
// composition, operational status, limits and per-user limit overrides
// of existing resources against the backend, and drives the offering
// user state machine for users awaiting an account.
package membership

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-logr/logr"
	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/hashstructure/v2"

	coreerrors "github.com/eschercloudai/site-agent/pkg/errors"
	"github.com/eschercloudai/site-agent/pkg/identity"
	"github.com/eschercloudai/site-agent/pkg/marketplace"
	"github.com/eschercloudai/site-agent/pkg/processor"
)

// Processor is the membership lane for one offering.
type Processor struct {
	offering *processor.Offering
}

var _ processor.Processor = &Processor{}

// New returns a membership processor.
func New(offering *processor.Offering) *Processor {
	return &Processor{
		offering: offering,
	}
}

// ProcessOffering implements the Processor interface.  A failing
// resource is marked erred and does not block the rest of the batch; a
// clean pass recovers previously erred resources.
func (p *Processor) ProcessOffering(ctx context.Context) error {
	cycle := processor.NewCycle(p.offering)

	resources, err := p.offering.Marketplace.ListResources(ctx, &marketplace.ResourceFilter{
		OfferingUUID: p.offering.UUID,
		States: []marketplace.ResourceState{
			marketplace.ResourceStateOK,
			marketplace.ResourceStateErred,
		},
	})
	if err != nil {
		return fmt.Errorf("listing resources: %w", err)
	}

	var result *multierror.Error

	for i := range resources {
		if err := ctx.Err(); err != nil {
			return multierror.Append(result, err).ErrorOrNil()
		}

		if err := p.reconcile(ctx, cycle, &resources[i]); err != nil {
			result = multierror.Append(result, fmt.Errorf("resource %s: %w", resources[i].UUID, err))
		}
	}

	return result.ErrorOrNil()
}

// ProcessResourceByUUID reconciles a single resource, e.g. off a
// resource-updated event.
func (p *Processor) ProcessResourceByUUID(ctx context.Context, uuid string) error {
	resource, err := p.offering.Marketplace.GetResource(ctx, uuid)
	if err != nil {
		return err
	}

	return p.reconcile(ctx, processor.NewCycle(p.offering), resource)
}

// ProcessUserRoleChanged reconciles all of a project's resources after a
// role grant or revocation.  The full reconcile subsumes the delta: the
// user appears in, or disappears from, the team listing.
func (p *Processor) ProcessUserRoleChanged(ctx context.Context, userUUID, projectUUID string, granted bool) error {
	log := logr.FromContextOrDiscard(ctx)
	log.Info("user role changed", "user", userUUID, "project", projectUUID, "granted", granted)

	return p.ProcessProjectUserSync(ctx, projectUUID)
}

// ProcessProjectUserSync reconciles all of a project's resources.
func (p *Processor) ProcessProjectUserSync(ctx context.Context, projectUUID string) error {
	cycle := processor.NewCycle(p.offering)

	resources, err := p.offering.Marketplace.ListResources(ctx, &marketplace.ResourceFilter{
		OfferingUUID: p.offering.UUID,
		States: []marketplace.ResourceState{
			marketplace.ResourceStateOK,
			marketplace.ResourceStateErred,
		},
	})
	if err != nil {
		return fmt.Errorf("listing resources: %w", err)
	}

	var result *multierror.Error

	for i := range resources {
		if resources[i].ProjectUUID != projectUUID {
			continue
		}

		if err := p.reconcile(ctx, cycle, &resources[i]); err != nil {
			result = multierror.Append(result, fmt.Errorf("resource %s: %w", resources[i].UUID, err))
		}
	}

	return result.ErrorOrNil()
}

// reconcile wraps processResource with the erred bookkeeping: a failure
// marks the resource erred, success refreshes last sync and recovers an
// erred resource.
func (p *Processor) reconcile(ctx context.Context, cycle *processor.Cycle, resource *marketplace.Resource) error {
	if resource.BackendID == "" {
		return nil
	}

	log := logr.FromContextOrDiscard(ctx).WithValues("resource", resource.UUID, "backend_id", resource.BackendID)
	ctx = logr.NewContext(ctx, log)

	if err := p.processResource(ctx, cycle, resource); err != nil {
		log.Error(err, "membership sync failed")

		if erredErr := p.offering.Marketplace.SetResourceAsErred(ctx, resource.UUID, err.Error(), fmt.Sprintf("%+v", err)); erredErr != nil {
			return multierror.Append(err, erredErr)
		}

		return err
	}

	if err := p.offering.Marketplace.RefreshResourceLastSync(ctx, resource.UUID); err != nil {
		return fmt.Errorf("refreshing last sync: %w", err)
	}

	if resource.State == marketplace.ResourceStateErred {
		log.Info("resource recovered")

		if err := p.offering.Marketplace.SetResourceAsOK(ctx, resource.UUID); err != nil {
			return fmt.Errorf("recovering resource: %w", err)
		}
	}

	return nil
}

func (p *Processor) processResource(ctx context.Context, cycle *processor.Cycle, resource *marketplace.Resource) error {
	info, err := p.offering.Driver.PullResource(ctx, resource)
	if err != nil {
		return fmt.Errorf("pulling backend state: %w", err)
	}

	if info == nil {
		return fmt.Errorf("%w: backend resource %s", coreerrors.ErrNotFound, resource.BackendID)
	}

	desired, err := p.desiredUsernames(ctx, cycle, resource)
	if err != nil {
		return err
	}

	existing := map[string]bool{}
	for _, username := range info.Users {
		existing[username] = true
	}

	if resource.RestrictMemberAccess {
		if len(info.Users) != 0 {
			if err := p.offering.Driver.RemoveUsersFromResource(ctx, info.BackendID, info.Users); err != nil {
				return fmt.Errorf("revoking restricted resource users: %w", err)
			}
		}

		return nil
	}

	active, err := p.syncUsers(ctx, info.BackendID, desired, existing)
	if err != nil {
		return err
	}

	if err := p.syncStatus(ctx, resource, info.BackendID); err != nil {
		return err
	}

	if err := p.syncLimits(ctx, resource, info.Limits); err != nil {
		return err
	}

	return p.syncUserLimits(ctx, resource, info.BackendID, active)
}

// desiredUsernames computes the set of usernames that should be
// authorized on the resource: active team bindings plus the project's
// service and course accounts.  Bindings still awaiting a username are
// provisioned on the way through.
func (p *Processor) desiredUsernames(ctx context.Context, cycle *processor.Cycle, resource *marketplace.Resource) (map[string]bool, error) {
	team, err := cycle.Team(ctx, resource.ProjectUUID, resource.UUID)
	if err != nil {
		return nil, fmt.Errorf("fetching team: %w", err)
	}

	users, err := cycle.OfferingUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching offering users: %w", err)
	}

	provisioned := false

	for i := range team {
		binding, ok := users[team[i].UUID]
		if !ok || binding.Username != "" || !provisionable(binding.State) {
			continue
		}

		if err := p.provisionBinding(ctx, &team[i], &binding); err != nil {
			return nil, fmt.Errorf("provisioning user %s: %w", team[i].UUID, err)
		}

		provisioned = true
	}

	if provisioned {
		cycle.InvalidateOfferingUsers()

		if users, err = cycle.OfferingUsers(ctx); err != nil {
			return nil, fmt.Errorf("re-fetching offering users: %w", err)
		}
	}

	desired := map[string]bool{}

	for _, member := range team {
		if binding, ok := users[member.UUID]; ok && binding.Active() {
			desired[binding.Username] = true
		}
	}

	serviceAccounts, err := cycle.ServiceAccounts(ctx, resource.ProjectUUID)
	if err != nil {
		return nil, fmt.Errorf("fetching service accounts: %w", err)
	}

	for _, account := range serviceAccounts {
		if account.Username != "" {
			desired[account.Username] = true
		}
	}

	courseAccounts, err := cycle.CourseAccounts(ctx, resource.ProjectUUID)
	if err != nil {
		return nil, fmt.Errorf("fetching course accounts: %w", err)
	}

	for _, account := range courseAccounts {
		if account.Username != "" {
			desired[account.Username] = true
		}
	}

	return desired, nil
}

// provisionable reports whether a binding without a username should be
// driven through the username manager: fresh requests, bindings
// stranded in creating by an interrupted pass, and parked linking
// requests the user may have completed since.
func provisionable(state marketplace.OfferingUserState) bool {
	switch state {
	case marketplace.OfferingUserStateRequested,
		marketplace.OfferingUserStateCreating,
		marketplace.OfferingUserStatePendingLinking:
		return true
	default:
		return false
	}
}

// provisionBinding resolves a username for a binding awaiting one and
// advances its state machine.  A successful resolution claims a
// requested binding before the username is recorded; a binding found in
// creating was claimed by an interrupted pass and goes straight to its
// terminal state.  Resolutions that defer transition the binding to the
// matching pending state directly.
func (p *Processor) provisionBinding(ctx context.Context, member *marketplace.TeamMember, binding *marketplace.OfferingUser) error {
	log := logr.FromContextOrDiscard(ctx)
	control := p.offering.Marketplace

	result, err := p.offering.Usernames.GetOrCreateUsername(ctx, member, binding)
	if err != nil {
		return fmt.Errorf("resolving username: %w", err)
	}

	switch result.Outcome {
	case identity.OutcomeOK:
		if binding.State == marketplace.OfferingUserStateRequested {
			if err := control.BeginCreatingOfferingUser(ctx, binding.UUID); err != nil {
				return fmt.Errorf("claiming binding: %w", err)
			}
		}

		log.Info("username provisioned", "user", member.UUID, "username", result.Username)

		return control.SetOfferingUserOK(ctx, binding.UUID, result.Username)
	case identity.OutcomeNeedsLinking:
		// Already parked, nothing new to tell the user.
		if binding.State == marketplace.OfferingUserStatePendingLinking {
			return nil
		}

		log.Info("user parked pending account linking", "user", member.UUID)

		return control.SetOfferingUserPendingAccountLinking(ctx, binding.UUID, result.Message, result.URL)
	case identity.OutcomeNeedsValidation:
		log.Info("user parked pending additional validation", "user", member.UUID)

		return control.SetOfferingUserPendingAdditionalValidation(ctx, binding.UUID, result.Message, result.URL)
	}

	return fmt.Errorf("%w: unknown username outcome %q", coreerrors.ErrPermanent, result.Outcome)
}

// syncUsers converges backend authorizations on the desired set and
// returns the users authorized after the pass.
func (p *Processor) syncUsers(ctx context.Context, backendID string, desired, existing map[string]bool) ([]string, error) {
	log := logr.FromContextOrDiscard(ctx)

	var toAdd, toRemove []string

	for username := range desired {
		if !existing[username] {
			toAdd = append(toAdd, username)
		}
	}

	for username := range existing {
		if !desired[username] {
			toRemove = append(toRemove, username)
		}
	}

	sort.Strings(toAdd)
	sort.Strings(toRemove)

	if len(toAdd) != 0 {
		added, err := p.offering.Driver.AddUsersToResource(ctx, backendID, toAdd)
		if err != nil {
			return nil, fmt.Errorf("adding users: %w", err)
		}

		if len(added) != 0 {
			log.Info("users added", "usernames", added)
		}
	}

	if len(toRemove) != 0 {
		if err := p.offering.Driver.RemoveUsersFromResource(ctx, backendID, toRemove); err != nil {
			return nil, fmt.Errorf("removing users: %w", err)
		}

		log.Info("users removed", "usernames", toRemove)
	}

	var active []string

	for username := range desired {
		active = append(active, username)
	}

	sort.Strings(active)

	return active, nil
}

// syncStatus applies exactly one operational state and mirrors backend
// metadata onto the control plane.
func (p *Processor) syncStatus(ctx context.Context, resource *marketplace.Resource, backendID string) error {
	var err error

	switch {
	case resource.Paused:
		err = p.offering.Driver.PauseResource(ctx, backendID)
	case resource.Downscaled:
		err = p.offering.Driver.DownscaleResource(ctx, backendID)
	default:
		err = p.offering.Driver.RestoreResource(ctx, backendID)
	}

	if err != nil {
		return fmt.Errorf("applying operational state: %w", err)
	}

	metadata, err := p.offering.Driver.GetResourceMetadata(ctx, backendID)
	if err != nil {
		return fmt.Errorf("fetching backend metadata: %w", err)
	}

	if len(metadata) == 0 {
		return nil
	}

	if err := p.offering.Marketplace.SetResourceBackendMetadata(ctx, resource.UUID, metadata); err != nil {
		return fmt.Errorf("mirroring backend metadata: %w", err)
	}

	return nil
}

// syncLimits writes backend limits back to the control plane when they
// drift.  The backend is authoritative in this direction; the order lane
// owns the opposite flow.
func (p *Processor) syncLimits(ctx context.Context, resource *marketplace.Resource, backendLimits map[string]int64) error {
	if len(backendLimits) == 0 {
		return nil
	}

	log := logr.FromContextOrDiscard(ctx)

	expected := p.offering.Mapper.ConvertLimitsToBackend(resource.Limits)

	same, err := hashEqual(expected, backendLimits)
	if err != nil {
		return err
	}

	if same {
		return nil
	}

	writeback := p.offering.Mapper.ConvertLimitsToControl(backendLimits)

	log.Info("limit drift detected", "control_limits", resource.Limits, "backend_limits", backendLimits)

	if err := p.offering.Marketplace.SetResourceLimits(ctx, resource.UUID, writeback); err != nil {
		return fmt.Errorf("writing limits back: %w", err)
	}

	return nil
}

// syncUserLimits converges per-user limit overrides for the active
// users.  A user without a control plane override gets any backend
// override cleared.
func (p *Processor) syncUserLimits(ctx context.Context, resource *marketplace.Resource, backendID string, active []string) error {
	current, err := p.offering.Driver.GetResourceUserLimits(ctx, backendID)
	if err != nil {
		return fmt.Errorf("fetching user limits: %w", err)
	}

	for _, username := range active {
		desired := p.offering.Mapper.ConvertLimitsToBackend(resource.UserLimits[username])

		if len(desired) == 0 && len(current[username]) == 0 {
			continue
		}

		same, err := hashEqual(desired, current[username])
		if err != nil {
			return err
		}

		if same {
			continue
		}

		if err := p.offering.Driver.SetResourceUserLimits(ctx, backendID, username, desired); err != nil {
			return fmt.Errorf("applying user limits for %s: %w", username, err)
		}
	}

	return nil
}

// hashEqual compares two limit maps structurally, independent of map
// iteration order.
func hashEqual(a, b map[string]int64) (bool, error) {
	ah, err := hashstructure.Hash(a, hashstructure.FormatV2, nil)
	if err != nil {
		return false, fmt.Errorf("hashing limits: %w", err)
	}

	bh, err := hashstructure.Hash(b, hashstructure.FormatV2, nil)
	if err != nil {
		return false, fmt.Errorf("hashing limits: %w", err)
	}

	return ah == bh, nil
}
