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

package backend_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eschercloudai/site-agent/pkg/backend"
	"github.com/eschercloudai/site-agent/pkg/backend/memory"
	"github.com/eschercloudai/site-agent/pkg/components"
	coreerrors "github.com/eschercloudai/site-agent/pkg/errors"
	"github.com/eschercloudai/site-agent/pkg/marketplace"
)

func newDriver(client backend.Client) *backend.GenericDriver {
	mapper := components.NewMapper([]components.Component{
		{Name: "cpu", AccountingType: components.AccountingTypeUsage, UnitFactor: 60},
	})

	return backend.NewGenericDriver("memory", client, mapper, backend.Settings{
		Prefix: "alloc_",
	})
}

func testResource() *marketplace.Resource {
	return &marketplace.Resource{
		UUID:   "res-1",
		Name:   "Fusion simulations",
		Slug:   "fusion-sims",
		Limits: map[string]int64{"cpu": 10},
	}
}

// TestCreateResource expects the backend id to derive from the prefix
// and slug, and the limits to be applied in backend units.
func TestCreateResource(t *testing.T) {
	t.Parallel()

	client := memory.NewClient()
	driver := newDriver(client)

	info, err := driver.CreateResource(context.Background(), testResource(), nil)
	require.NoError(t, err)
	require.NotNil(t, info)

	assert.Equal(t, "alloc_fusion-sims", info.BackendID)
	assert.Equal(t, map[string]int64{"cpu": 600}, info.Limits)

	// The usage total key is always present.
	assert.NotNil(t, info.TotalUsage())
}

// TestCreateResourceIdempotent expects a second application to yield the
// same backend id and leave the backend unchanged.
func TestCreateResourceIdempotent(t *testing.T) {
	t.Parallel()

	client := memory.NewClient()
	driver := newDriver(client)

	first, err := driver.CreateResource(context.Background(), testResource(), nil)
	require.NoError(t, err)

	second, err := driver.CreateResource(context.Background(), testResource(), nil)
	require.NoError(t, err)

	assert.Equal(t, first.BackendID, second.BackendID)
	assert.Equal(t, first.Limits, second.Limits)

	ids, err := client.ListResources(context.Background())
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

// TestCreateResourceCollision expects a numeric suffix when a foreign
// resource occupies the generated name.
func TestCreateResourceCollision(t *testing.T) {
	t.Parallel()

	client := memory.NewClient()

	_, err := client.CreateResource(context.Background(), "alloc_fusion-sims", "someone else (res-other)", "", "")
	require.NoError(t, err)

	info, err := newDriver(client).CreateResource(context.Background(), testResource(), nil)
	require.NoError(t, err)

	assert.Equal(t, "alloc_fusion-sims-1", info.BackendID)
}

// TestCreateResourceCollisionExhausted expects a collision error once
// the suffix budget is spent.
func TestCreateResourceCollisionExhausted(t *testing.T) {
	t.Parallel()

	client := memory.NewClient()

	_, err := client.CreateResource(context.Background(), "alloc_fusion-sims", "foreign (res-f)", "", "")
	require.NoError(t, err)

	for i := 1; i <= 10; i++ {
		name := fmt.Sprintf("alloc_fusion-sims-%d", i)

		_, err := client.CreateResource(context.Background(), name, "foreign (res-f)", "", "")
		require.NoError(t, err)
	}

	_, err = newDriver(client).CreateResource(context.Background(), testResource(), nil)
	assert.ErrorIs(t, err, coreerrors.ErrCollision)
}

// TestCreateResourceRollback expects external side effects and the
// backend resource to be released when limit setup fails.
func TestCreateResourceRollback(t *testing.T) {
	t.Parallel()

	client := memory.NewClient()

	var rolledBack bool

	driver := newDriver(client).WithPipeline(backend.CreatePipeline{
		PreCreate: func(_ context.Context, _ *marketplace.Resource, _ *backend.UserContext) (backend.Rollback, error) {
			return func(_ context.Context) error {
				rolledBack = true
				return nil
			}, nil
		},
		SetupLimits: func(_ context.Context, _ string, _ map[string]int64) error {
			return errors.New("quota system down")
		},
	})

	_, err := driver.CreateResource(context.Background(), testResource(), nil)
	require.Error(t, err)

	assert.True(t, rolledBack)

	// The half created resource must not linger.
	ids, err := client.ListResources(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

// TestDeleteResourceMissing expects deletion of an absent resource to be
// a no-op.
func TestDeleteResourceMissing(t *testing.T) {
	t.Parallel()

	driver := newDriver(memory.NewClient())

	resource := testResource()
	resource.BackendID = "alloc_gone"

	assert.NoError(t, driver.DeleteResource(context.Background(), resource))
}

// TestPullResourceMissing expects a nil info rather than an error.
func TestPullResourceMissing(t *testing.T) {
	t.Parallel()

	driver := newDriver(memory.NewClient())

	resource := testResource()
	resource.BackendID = "alloc_gone"

	info, err := driver.PullResource(context.Background(), resource)
	require.NoError(t, err)
	assert.Nil(t, info)
}

// TestAddUsersToResource expects only genuinely new users in the added
// set.
func TestAddUsersToResource(t *testing.T) {
	t.Parallel()

	client := memory.NewClient()
	driver := newDriver(client)

	info, err := driver.CreateResource(context.Background(), testResource(), nil)
	require.NoError(t, err)

	added, err := driver.AddUsersToResource(context.Background(), info.BackendID, []string{"alice", "bob"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, added)

	added, err = driver.AddUsersToResource(context.Background(), info.BackendID, []string{"alice", "carol"})
	require.NoError(t, err)
	assert.Equal(t, []string{"carol"}, added)

	assert.Equal(t, []string{"alice", "bob", "carol"}, client.Users(info.BackendID))
}

// TestRemoveUsersFromResource expects removal of absent users to be a
// no-op.
func TestRemoveUsersFromResource(t *testing.T) {
	t.Parallel()

	client := memory.NewClient()
	driver := newDriver(client)

	info, err := driver.CreateResource(context.Background(), testResource(), nil)
	require.NoError(t, err)

	_, err = driver.AddUsersToResource(context.Background(), info.BackendID, []string{"alice"})
	require.NoError(t, err)

	require.NoError(t, driver.RemoveUsersFromResource(context.Background(), info.BackendID, []string{"alice", "ghost"}))

	assert.Empty(t, client.Users(info.BackendID))
}

// TestEvaluatePendingOrderDefault expects acceptance when no hook is
// installed.
func TestEvaluatePendingOrderDefault(t *testing.T) {
	t.Parallel()

	verdict, err := newDriver(memory.NewClient()).EvaluatePendingOrder(context.Background(), &marketplace.Order{}, nil)
	require.NoError(t, err)
	assert.Equal(t, backend.VerdictAccept, verdict)
}

// TestUnknownClientDefaults expects the null client to produce safe
// values for every capability.
func TestUnknownClientDefaults(t *testing.T) {
	t.Parallel()

	client := &backend.UnknownClient{}

	ids, err := client.ListResources(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)

	id, err := client.CreateResource(context.Background(), "name", "", "", "")
	require.NoError(t, err)
	assert.Equal(t, "name", id)

	assert.NoError(t, client.DeleteResource(context.Background(), "anything"))
	assert.NoError(t, client.CreateAssociation(context.Background(), "user", "id", ""))

	report, err := client.GetUsageReport(context.Background(), []string{"id"})
	require.NoError(t, err)
	assert.Empty(t, report)
}
