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

package processor

import (
	"context"
	"sync"

	"github.com/eschercloudai/site-agent/pkg/backend"
	"github.com/eschercloudai/site-agent/pkg/marketplace"
)

// Cycle caches control plane reads for the duration of one pass, so a
// pass touching many resources of the same project reads each endpoint
// at most once.  A cycle must not outlive its pass: the data is a
// snapshot and mutations made through the marketplace client do not
// update it unless explicitly invalidated.
type Cycle struct {
	offering *Offering

	mu sync.Mutex

	offeringUsers       map[string]marketplace.OfferingUser
	offeringUsersLoaded bool

	// teams is keyed by project UUID; the API serves teams per resource
	// so the first resource of a project pays for the fetch.
	teams map[string][]marketplace.TeamMember

	serviceAccounts map[string][]marketplace.ServiceAccount
	courseAccounts  map[string][]marketplace.CourseAccount
}

// NewCycle returns an empty cache bound to the offering.
func NewCycle(offering *Offering) *Cycle {
	return &Cycle{
		offering:        offering,
		teams:           map[string][]marketplace.TeamMember{},
		serviceAccounts: map[string][]marketplace.ServiceAccount{},
		courseAccounts:  map[string][]marketplace.CourseAccount{},
	}
}

// OfferingUsers returns the offering's user bindings keyed by
// marketplace user UUID: the materializable ok and requested states,
// plus creating and pending-linking bindings so a pass can recover
// those stranded by an interrupted predecessor.  Bindings parked for
// additional validation are resolved by site staff, not the agent.
func (c *Cycle) OfferingUsers(ctx context.Context) (map[string]marketplace.OfferingUser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.offeringUsersLoaded {
		return c.offeringUsers, nil
	}

	users, err := c.offering.Marketplace.ListOfferingUsers(ctx, &marketplace.OfferingUserFilter{
		OfferingUUID: c.offering.UUID,
		States: []marketplace.OfferingUserState{
			marketplace.OfferingUserStateOK,
			marketplace.OfferingUserStateRequested,
			marketplace.OfferingUserStateCreating,
			marketplace.OfferingUserStatePendingLinking,
		},
	})
	if err != nil {
		return nil, err
	}

	c.offeringUsers = make(map[string]marketplace.OfferingUser, len(users))

	for _, user := range users {
		c.offeringUsers[user.UserUUID] = user
	}

	c.offeringUsersLoaded = true

	return c.offeringUsers, nil
}

// InvalidateOfferingUsers drops the binding snapshot, forcing a re-read
// on next access.  Call after mutating binding state mid-pass.
func (c *Cycle) InvalidateOfferingUsers() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.offeringUsers = nil
	c.offeringUsersLoaded = false
}

// Team returns the project team.  The control plane serves teams per
// resource, so any resource UUID belonging to the project works; the
// result is cached under the project UUID.
func (c *Cycle) Team(ctx context.Context, projectUUID, resourceUUID string) ([]marketplace.TeamMember, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if team, ok := c.teams[projectUUID]; ok {
		return team, nil
	}

	team, err := c.offering.Marketplace.ResourceTeam(ctx, resourceUUID)
	if err != nil {
		return nil, err
	}

	c.teams[projectUUID] = team

	return team, nil
}

// InvalidateTeam drops one project's cached team.
func (c *Cycle) InvalidateTeam(projectUUID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.teams, projectUUID)
}

// ServiceAccounts returns the project's service accounts, or nothing
// when the offering has service account sync disabled.
func (c *Cycle) ServiceAccounts(ctx context.Context, projectUUID string) ([]marketplace.ServiceAccount, error) {
	if !c.offering.SyncServiceAccounts {
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if accounts, ok := c.serviceAccounts[projectUUID]; ok {
		return accounts, nil
	}

	accounts, err := c.offering.Marketplace.ListServiceAccounts(ctx, projectUUID)
	if err != nil {
		return nil, err
	}

	c.serviceAccounts[projectUUID] = accounts

	return accounts, nil
}

// CourseAccounts returns the project's course accounts, or nothing when
// the offering has course account sync disabled.
func (c *Cycle) CourseAccounts(ctx context.Context, projectUUID string) ([]marketplace.CourseAccount, error) {
	if !c.offering.SyncCourseAccounts {
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if accounts, ok := c.courseAccounts[projectUUID]; ok {
		return accounts, nil
	}

	accounts, err := c.offering.Marketplace.ListCourseAccounts(ctx, projectUUID)
	if err != nil {
		return nil, err
	}

	c.courseAccounts[projectUUID] = accounts

	return accounts, nil
}

// UserContext assembles the identity material a driver needs when
// provisioning a resource for the given project.
func (c *Cycle) UserContext(ctx context.Context, projectUUID, resourceUUID string) (*backend.UserContext, error) {
	team, err := c.Team(ctx, projectUUID, resourceUUID)
	if err != nil {
		return nil, err
	}

	users, err := c.OfferingUsers(ctx)
	if err != nil {
		return nil, err
	}

	return &backend.UserContext{
		Team:          team,
		OfferingUsers: users,
	}, nil
}
