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

package membership_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/eschercloudai/site-agent/pkg/backend"
	"github.com/eschercloudai/site-agent/pkg/backend/memory"
	"github.com/eschercloudai/site-agent/pkg/backend/mock"
	"github.com/eschercloudai/site-agent/pkg/components"
	"github.com/eschercloudai/site-agent/pkg/identity"
	"github.com/eschercloudai/site-agent/pkg/marketplace"
	"github.com/eschercloudai/site-agent/pkg/marketplace/fake"
	"github.com/eschercloudai/site-agent/pkg/processor"
	"github.com/eschercloudai/site-agent/pkg/processor/membership"
)

type fixture struct {
	control  *fake.Client
	backend  *memory.Client
	offering *processor.Offering
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	control := fake.New()
	client := memory.NewClient()

	mapper := components.NewMapper([]components.Component{
		{Name: "cpu", AccountingType: components.AccountingTypeUsage, UnitFactor: 60},
	})

	generator, err := identity.NewGenerator(identity.PolicyFullName, nil)
	require.NoError(t, err)

	return &fixture{
		control: control,
		backend: client,
		offering: &processor.Offering{
			Name:                "hpc",
			UUID:                "offering-1",
			Location:            time.UTC,
			Marketplace:         control,
			Driver:              backend.NewGenericDriver("memory", client, mapper, backend.Settings{Prefix: "alloc_"}),
			Mapper:              mapper,
			Usernames:           identity.NewManager(generator, time.Minute),
			SyncServiceAccounts: true,
			SyncCourseAccounts:  true,
		},
	}
}

// addResource seeds a converged OK resource with alice on the backend.
func (f *fixture) addResource(t *testing.T) {
	t.Helper()

	ctx := context.Background()

	f.control.Resources["res-1"] = &marketplace.Resource{
		UUID:        "res-1",
		Name:        "Fusion simulations",
		BackendID:   "alloc_fusion-sims",
		State:       marketplace.ResourceStateOK,
		ProjectUUID: "project-a",
		Limits:      map[string]int64{"cpu": 10},
	}

	f.control.Teams["res-1"] = []marketplace.TeamMember{{UUID: "user-1", Username: "alice", FullName: "Alice Arkwright"}}
	f.control.OfferingUsers["ou-1"] = &marketplace.OfferingUser{
		UUID:     "ou-1",
		UserUUID: "user-1",
		Username: "alice-site",
		State:    marketplace.OfferingUserStateOK,
	}

	_, err := f.backend.CreateResource(ctx, "alloc_fusion-sims", "Fusion simulations (res-1)", "", "")
	require.NoError(t, err)
	require.NoError(t, f.backend.SetResourceLimits(ctx, "alloc_fusion-sims", map[string]int64{"cpu": 600}))
	require.NoError(t, f.backend.CreateAssociation(ctx, "alice-site", "alloc_fusion-sims", ""))
}

// TestTeamAddition expects a new team member to be authorized on the
// backend and the last sync timestamp refreshed.
func TestTeamAddition(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addResource(t)

	f.control.Teams["res-1"] = append(f.control.Teams["res-1"], marketplace.TeamMember{UUID: "user-2", Username: "bob"})
	f.control.OfferingUsers["ou-2"] = &marketplace.OfferingUser{
		UUID:     "ou-2",
		UserUUID: "user-2",
		Username: "bob-site",
		State:    marketplace.OfferingUserStateOK,
	}

	require.NoError(t, membership.New(f.offering).ProcessOffering(context.Background()))

	assert.Equal(t, []string{"alice-site", "bob-site"}, f.backend.Users("alloc_fusion-sims"))
	assert.Equal(t, 1, f.control.LastSync["res-1"])
}

// TestStaleUserRemoved expects a user who left the team to lose backend
// access.
func TestStaleUserRemoved(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addResource(t)

	require.NoError(t, f.backend.CreateAssociation(context.Background(), "ghost", "alloc_fusion-sims", ""))

	require.NoError(t, membership.New(f.offering).ProcessOffering(context.Background()))

	assert.Equal(t, []string{"alice-site"}, f.backend.Users("alloc_fusion-sims"))
}

// TestRestrictMemberAccess expects all users revoked and no additions
// attempted.
func TestRestrictMemberAccess(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)

	f := newFixture(t)
	f.addResource(t)
	f.control.Resources["res-1"].RestrictMemberAccess = true

	driver := mock.NewMockDriver(ctrl)
	f.offering.Driver = driver

	info := &backend.ResourceInfo{
		BackendID: "alloc_fusion-sims",
		Users:     []string{"alice-site"},
		Limits:    map[string]int64{"cpu": 600},
		Usage:     backend.ResourceUsage{backend.TotalAccountUsage: map[string]float64{}},
	}

	driver.EXPECT().PullResource(gomock.Any(), gomock.Any()).Return(info, nil)
	driver.EXPECT().RemoveUsersFromResource(gomock.Any(), "alloc_fusion-sims", []string{"alice-site"}).Return(nil)

	require.NoError(t, membership.New(f.offering).ProcessOffering(context.Background()))

	assert.Equal(t, 1, f.control.LastSync["res-1"])
}

// TestConvergedResourceNoMutations expects a pass over converged state
// to perform no mutating backend or control plane writes beyond the
// last sync refresh.  The strict mock fails the test on any unexpected
// driver call.
func TestConvergedResourceNoMutations(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)

	f := newFixture(t)
	f.addResource(t)

	driver := mock.NewMockDriver(ctrl)
	f.offering.Driver = driver

	info := &backend.ResourceInfo{
		BackendID: "alloc_fusion-sims",
		Users:     []string{"alice-site"},
		Limits:    map[string]int64{"cpu": 600},
		Usage:     backend.ResourceUsage{backend.TotalAccountUsage: map[string]float64{}},
	}

	driver.EXPECT().PullResource(gomock.Any(), gomock.Any()).Return(info, nil)
	driver.EXPECT().RestoreResource(gomock.Any(), "alloc_fusion-sims").Return(nil)
	driver.EXPECT().GetResourceMetadata(gomock.Any(), "alloc_fusion-sims").Return(map[string]any{}, nil)
	driver.EXPECT().GetResourceUserLimits(gomock.Any(), "alloc_fusion-sims").Return(nil, nil)

	require.NoError(t, membership.New(f.offering).ProcessOffering(context.Background()))

	assert.Zero(t, f.control.Calls("SetResourceLimits"))
	assert.Zero(t, f.control.Calls("SetResourceBackendMetadata"))
	assert.Equal(t, 1, f.control.LastSync["res-1"])
}

// TestRequestedUserProvisioned expects a requested binding to be driven
// to ok with a generated username, and the user authorized in the same
// pass.
func TestRequestedUserProvisioned(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addResource(t)

	f.control.Teams["res-1"] = append(f.control.Teams["res-1"], marketplace.TeamMember{UUID: "user-2", Username: "bob", FullName: "Bob Babbage"})
	f.control.OfferingUsers["ou-2"] = &marketplace.OfferingUser{
		UUID:     "ou-2",
		UserUUID: "user-2",
		State:    marketplace.OfferingUserStateRequested,
	}

	require.NoError(t, membership.New(f.offering).ProcessOffering(context.Background()))

	binding := f.control.OfferingUsers["ou-2"]
	assert.Equal(t, marketplace.OfferingUserStateOK, binding.State)
	assert.Regexp(t, `^bobbabbage-[0-9a-f]{4}$`, binding.Username)

	users := f.backend.Users("alloc_fusion-sims")
	assert.Contains(t, users, binding.Username)
}

// TestAccountLinkingParksUser expects the linking policy to park the
// binding with operator facing instructions and leave the backend
// untouched.
func TestAccountLinkingParksUser(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addResource(t)

	generator, err := identity.NewGenerator(identity.PolicyAccountLinking, map[string]string{
		"message": "Please link",
		"url":     "https://portal.example.com/link",
	})
	require.NoError(t, err)

	f.offering.Usernames = identity.NewManager(generator, time.Minute)

	f.control.Teams["res-1"] = append(f.control.Teams["res-1"], marketplace.TeamMember{UUID: "user-3", Username: "carol"})
	f.control.OfferingUsers["ou-3"] = &marketplace.OfferingUser{
		UUID:     "ou-3",
		UserUUID: "user-3",
		State:    marketplace.OfferingUserStateRequested,
	}

	require.NoError(t, membership.New(f.offering).ProcessOffering(context.Background()))

	binding := f.control.OfferingUsers["ou-3"]
	assert.Equal(t, marketplace.OfferingUserStatePendingLinking, binding.State)
	assert.Equal(t, "Please link", binding.Comment)
	assert.Equal(t, "https://portal.example.com/link", binding.CommentURL)
	assert.Empty(t, binding.Username)

	assert.Equal(t, []string{"alice-site"}, f.backend.Users("alloc_fusion-sims"))

	// Parking is a direct transition; the binding is never claimed.
	assert.Zero(t, f.control.Calls("BeginCreatingOfferingUser"))
}

// TestCreatingUserRecovered expects a binding stranded in creating by an
// interrupted pass to be driven to ok on the next pass and authorized on
// the backend, without being claimed a second time.
func TestCreatingUserRecovered(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addResource(t)

	f.control.Teams["res-1"] = append(f.control.Teams["res-1"], marketplace.TeamMember{UUID: "user-2", Username: "bob", FullName: "Bob Babbage"})
	f.control.OfferingUsers["ou-2"] = &marketplace.OfferingUser{
		UUID:     "ou-2",
		UserUUID: "user-2",
		State:    marketplace.OfferingUserStateCreating,
	}

	require.NoError(t, membership.New(f.offering).ProcessOffering(context.Background()))

	binding := f.control.OfferingUsers["ou-2"]
	assert.Equal(t, marketplace.OfferingUserStateOK, binding.State)
	assert.Regexp(t, `^bobbabbage-[0-9a-f]{4}$`, binding.Username)
	assert.Contains(t, f.backend.Users("alloc_fusion-sims"), binding.Username)

	assert.Zero(t, f.control.Calls("BeginCreatingOfferingUser"))
}

// TestPendingLinkingUserLeftParked expects a binding already parked for
// account linking to stay parked without the comment being rewritten on
// every pass.
func TestPendingLinkingUserLeftParked(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addResource(t)

	generator, err := identity.NewGenerator(identity.PolicyAccountLinking, map[string]string{
		"message": "Please link",
		"url":     "https://portal.example.com/link",
	})
	require.NoError(t, err)

	f.offering.Usernames = identity.NewManager(generator, time.Minute)

	f.control.Teams["res-1"] = append(f.control.Teams["res-1"], marketplace.TeamMember{UUID: "user-3", Username: "carol"})
	f.control.OfferingUsers["ou-3"] = &marketplace.OfferingUser{
		UUID:     "ou-3",
		UserUUID: "user-3",
		State:    marketplace.OfferingUserStatePendingLinking,
		Comment:  "Please link",
	}

	require.NoError(t, membership.New(f.offering).ProcessOffering(context.Background()))

	assert.Equal(t, marketplace.OfferingUserStatePendingLinking, f.control.OfferingUsers["ou-3"].State)
	assert.Zero(t, f.control.Calls("SetOfferingUserPendingAccountLinking"))
	assert.Equal(t, []string{"alice-site"}, f.backend.Users("alloc_fusion-sims"))
}

// TestLimitDriftWriteback expects backend authoritative limits to be
// written back to the control plane in marketplace units.
func TestLimitDriftWriteback(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addResource(t)

	// Site operator bumped the backend quota out of band.
	require.NoError(t, f.backend.SetResourceLimits(context.Background(), "alloc_fusion-sims", map[string]int64{"cpu": 1200}))

	require.NoError(t, membership.New(f.offering).ProcessOffering(context.Background()))

	assert.Equal(t, map[string]int64{"cpu": 20}, f.control.Resources["res-1"].Limits)
}

// TestUserLimitOverrides expects overrides applied in backend units and
// cleared for users without a control plane override.
func TestUserLimitOverrides(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addResource(t)

	ctx := context.Background()

	f.control.Resources["res-1"].UserLimits = map[string]map[string]int64{
		"alice-site": {"cpu": 5},
	}

	f.control.Teams["res-1"] = append(f.control.Teams["res-1"], marketplace.TeamMember{UUID: "user-2", Username: "bob"})
	f.control.OfferingUsers["ou-2"] = &marketplace.OfferingUser{
		UUID:     "ou-2",
		UserUUID: "user-2",
		Username: "bob-site",
		State:    marketplace.OfferingUserStateOK,
	}

	require.NoError(t, f.backend.CreateAssociation(ctx, "bob-site", "alloc_fusion-sims", ""))
	require.NoError(t, f.backend.SetResourceUserLimits(ctx, "alloc_fusion-sims", "bob-site", map[string]int64{"cpu": 60}))

	require.NoError(t, membership.New(f.offering).ProcessOffering(ctx))

	limits, err := f.backend.GetResourceUserLimits(ctx, "alloc_fusion-sims")
	require.NoError(t, err)

	assert.Equal(t, map[string]int64{"cpu": 300}, limits["alice-site"])
	assert.NotContains(t, limits, "bob-site")
}

// TestServiceAndCourseAccountsSynced expects project accounts to be
// authorized alongside team members.
func TestServiceAndCourseAccountsSynced(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addResource(t)

	f.control.ServiceAccounts["project-a"] = []marketplace.ServiceAccount{{UUID: "svc-1", Username: "beamline"}}
	f.control.CourseAccounts["project-a"] = []marketplace.CourseAccount{{UUID: "course-1", Username: "phys101"}}

	require.NoError(t, membership.New(f.offering).ProcessOffering(context.Background()))

	assert.Equal(t, []string{"alice-site", "beamline", "phys101"}, f.backend.Users("alloc_fusion-sims"))
}

// TestErredResourceRecovers expects a clean pass to transition an erred
// resource back to OK.
func TestErredResourceRecovers(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addResource(t)
	f.control.Resources["res-1"].State = marketplace.ResourceStateErred

	require.NoError(t, membership.New(f.offering).ProcessOffering(context.Background()))

	assert.Equal(t, marketplace.ResourceStateOK, f.control.Resources["res-1"].State)
}

// TestBackendResourceMissing expects the resource marked erred when the
// backend has no trace of it.
func TestBackendResourceMissing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addResource(t)

	require.NoError(t, f.backend.DeleteResource(context.Background(), "alloc_fusion-sims"))

	err := membership.New(f.offering).ProcessOffering(context.Background())
	require.Error(t, err)

	assert.Equal(t, marketplace.ResourceStateErred, f.control.Resources["res-1"].State)
}

// TestProcessResourceByUUID expects targeted reconciliation to touch
// only the named resource.
func TestProcessResourceByUUID(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addResource(t)

	f.control.Teams["res-1"] = append(f.control.Teams["res-1"], marketplace.TeamMember{UUID: "user-2", Username: "bob"})
	f.control.OfferingUsers["ou-2"] = &marketplace.OfferingUser{
		UUID:     "ou-2",
		UserUUID: "user-2",
		Username: "bob-site",
		State:    marketplace.OfferingUserStateOK,
	}

	require.NoError(t, membership.New(f.offering).ProcessResourceByUUID(context.Background(), "res-1"))

	assert.Equal(t, []string{"alice-site", "bob-site"}, f.backend.Users("alloc_fusion-sims"))
	assert.Zero(t, f.control.Calls("ListResources"))
}

// TestProcessProjectUserSync expects only the project's resources to be
// reconciled.
func TestProcessProjectUserSync(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addResource(t)

	f.control.Resources["res-2"] = &marketplace.Resource{
		UUID:        "res-2",
		Name:        "Other",
		BackendID:   "alloc_other",
		State:       marketplace.ResourceStateOK,
		ProjectUUID: "project-b",
	}

	require.NoError(t, membership.New(f.offering).ProcessProjectUserSync(context.Background(), "project-a"))

	// res-2 belongs to another project and was skipped, so its missing
	// backend resource never surfaced as an error.
	assert.Equal(t, 1, f.control.LastSync["res-1"])
	assert.Zero(t, f.control.LastSync["res-2"])
}
