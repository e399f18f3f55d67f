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

package report_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eschercloudai/site-agent/pkg/backend"
	"github.com/eschercloudai/site-agent/pkg/backend/memory"
	"github.com/eschercloudai/site-agent/pkg/components"
	coreerrors "github.com/eschercloudai/site-agent/pkg/errors"
	"github.com/eschercloudai/site-agent/pkg/marketplace"
	"github.com/eschercloudai/site-agent/pkg/marketplace/fake"
	"github.com/eschercloudai/site-agent/pkg/processor"
	"github.com/eschercloudai/site-agent/pkg/processor/report"
)

var (
	frozenNow = time.Date(2024, time.May, 15, 12, 0, 0, 0, time.UTC)
	period    = time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)
)

func fastOptions() *report.Options {
	return &report.Options{
		Attempts: 2,
		Delay:    time.Millisecond,
	}
}

type fixture struct {
	control  *fake.Client
	backend  *memory.Client
	offering *processor.Offering
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	control := fake.New()
	control.Period = period

	client := memory.NewClient()

	mapper := components.NewMapper([]components.Component{
		{Name: "cpu", AccountingType: components.AccountingTypeUsage, UnitFactor: 60},
	})

	control.Resources["res-1"] = &marketplace.Resource{
		UUID:        "res-1",
		Name:        "Fusion simulations",
		BackendID:   "alloc_fusion-sims",
		State:       marketplace.ResourceStateOK,
		ProjectUUID: "project-a",
	}

	control.OfferingUsers["ou-1"] = &marketplace.OfferingUser{
		UUID:     "ou-1",
		UserUUID: "user-1",
		Username: "alice-site",
		State:    marketplace.OfferingUserStateOK,
	}

	_, err := client.CreateResource(context.Background(), "alloc_fusion-sims", "Fusion simulations (res-1)", "", "")
	require.NoError(t, err)

	client.SetUsage("alloc_fusion-sims", backend.ResourceUsage{
		backend.TotalAccountUsage: {"cpu": 6000},
		"alice-site":              {"cpu": 3600},
	})

	return &fixture{
		control: control,
		backend: client,
		offering: &processor.Offering{
			Name:        "hpc",
			UUID:        "offering-1",
			Location:    time.UTC,
			Marketplace: control,
			Driver:      backend.NewGenericDriver("memory", client, mapper, backend.Settings{Prefix: "alloc_"}),
			Mapper:      mapper,
		},
	}
}

func (f *fixture) run(t *testing.T) error {
	t.Helper()

	return report.New(f.offering, fastOptions()).WithClock(func() time.Time { return frozenNow }).ProcessOffering(context.Background())
}

// TestUsageSubmission expects totals in marketplace units and per-user
// shares attributed against the created usage records.
func TestUsageSubmission(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	require.NoError(t, f.run(t))

	records := f.control.Usages["res-1"]
	require.Len(t, records, 1)
	assert.Equal(t, "cpu", records[0].Type)
	assert.Equal(t, marketplace.Amount(100), records[0].Usage)

	shares := f.control.UserUsages[records[0].UUID]
	require.Len(t, shares, 1)
	assert.Equal(t, "alice-site", shares[0].Username)
	assert.Equal(t, "user-1", shares[0].UserUUID)
	assert.Equal(t, marketplace.Amount(60), shares[0].Usage)
}

// TestUsageIncreases expects a higher total to replace the period's
// record.
func TestUsageIncreases(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	f.control.Usages["res-1"] = []marketplace.ComponentUsage{{
		UUID:         "usage-res-1-cpu",
		ResourceUUID: "res-1",
		Type:         "cpu",
		Usage:        50,
		PeriodStart:  period,
	}}

	require.NoError(t, f.run(t))

	records := f.control.Usages["res-1"]
	require.Len(t, records, 1)
	assert.Equal(t, marketplace.Amount(100), records[0].Usage)
}

// TestAnomalyRejected expects a submission that would move the total
// backwards to be rejected without a write and without retry.
func TestAnomalyRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	f.control.Usages["res-1"] = []marketplace.ComponentUsage{{
		UUID:         "usage-res-1-cpu",
		ResourceUUID: "res-1",
		Type:         "cpu",
		Usage:        150,
		PeriodStart:  period,
	}}

	err := f.run(t)
	require.Error(t, err)
	assert.ErrorIs(t, err, coreerrors.ErrUsageAnomaly)

	assert.Zero(t, f.control.Calls("SetUsage"))
	assert.Zero(t, f.control.Calls("SetUserUsage"))

	// Anomalies are terminal for the pass, not retried.
	assert.Equal(t, 1, f.control.Calls("ListComponentUsages"))
}

// TestDuplicateRecordsAnomaly expects corrupt duplicate records to abort
// the resource.
func TestDuplicateRecordsAnomaly(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	f.control.Usages["res-1"] = []marketplace.ComponentUsage{
		{UUID: "a", ResourceUUID: "res-1", Type: "cpu", Usage: 10, PeriodStart: period},
		{UUID: "b", ResourceUUID: "res-1", Type: "cpu", Usage: 20, PeriodStart: period},
	}

	err := f.run(t)
	require.Error(t, err)
	assert.ErrorIs(t, err, coreerrors.ErrUsageAnomaly)
	assert.Zero(t, f.control.Calls("SetUsage"))
}

// TestTransientFailureRetried expects the retry budget spent on
// transient control plane failures.
func TestTransientFailureRetried(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	f.control.FailWith("ListComponentUsages", coreerrors.Transient(context.DeadlineExceeded))

	err := f.run(t)
	require.Error(t, err)

	assert.Equal(t, 2, f.control.Calls("ListComponentUsages"))
	assert.Zero(t, f.control.Calls("SetUsage"))
}

// TestBackendMissingErredOnce expects a missing backend resource to err
// the resource exactly once.
func TestBackendMissingErredOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	require.NoError(t, f.backend.DeleteResource(context.Background(), "alloc_fusion-sims"))

	require.NoError(t, f.run(t))
	assert.Equal(t, marketplace.ResourceStateErred, f.control.Resources["res-1"].State)
	assert.Equal(t, 1, f.control.Calls("SetResourceAsErred"))

	// A second pass over the already erred resource stays quiet.
	require.NoError(t, f.run(t))
	assert.Equal(t, 1, f.control.Calls("SetResourceAsErred"))
}

// TestUnknownBackendUsernameSkipped expects usage of usernames without a
// marketplace binding to be skipped, not fatal.
func TestUnknownBackendUsernameSkipped(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	f.backend.SetUsage("alloc_fusion-sims", backend.ResourceUsage{
		backend.TotalAccountUsage: {"cpu": 6000},
		"alice-site":              {"cpu": 3600},
		"ghost":                   {"cpu": 2400},
	})

	require.NoError(t, f.run(t))

	records := f.control.Usages["res-1"]
	require.Len(t, records, 1)

	shares := f.control.UserUsages[records[0].UUID]
	require.Len(t, shares, 1)
	assert.Equal(t, "alice-site", shares[0].Username)
}
