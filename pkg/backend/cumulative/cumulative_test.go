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

package cumulative_test

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eschercloudai/site-agent/pkg/backend"
	"github.com/eschercloudai/site-agent/pkg/backend/cumulative"
	"github.com/eschercloudai/site-agent/pkg/backend/memory"
	"github.com/eschercloudai/site-agent/pkg/components"
	"github.com/eschercloudai/site-agent/pkg/marketplace"
	"github.com/eschercloudai/site-agent/pkg/statestore"
)

type fixture struct {
	client  *memory.Client
	store   *statestore.Store
	driver  *cumulative.Driver
	now     time.Time
	backend string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	client := memory.NewClient()

	mapper := components.NewMapper([]components.Component{
		{Name: "cpu", AccountingType: components.AccountingTypeUsage, UnitFactor: 60},
	})

	inner := backend.NewGenericDriver("memory", client, mapper, backend.Settings{Prefix: "alloc_"})

	id, err := client.CreateResource(context.Background(), "alloc_fusion-sims", "Fusion simulations (res-1)", "", "")
	require.NoError(t, err)

	f := &fixture{
		client:  client,
		store:   statestore.NewWithFs(afero.NewMemMapFs(), "/var/lib/site-agent"),
		now:     time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC),
		backend: id,
	}

	f.driver = cumulative.Wrap(inner, f.store, "offering-1", time.UTC).WithClock(func() time.Time {
		return f.now
	})

	return f
}

func (f *fixture) report(t *testing.T) map[string]float64 {
	t.Helper()

	report, err := f.driver.GetUsageReport(context.Background(), []string{f.backend})
	require.NoError(t, err)

	return report[f.backend][backend.TotalAccountUsage]
}

// TestBaselineAtFirstObservation expects the first read of a period to
// report zero and subsequent reads to report growth since then.
func TestBaselineAtFirstObservation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	f.client.SetUsage(f.backend, backend.ResourceUsage{
		backend.TotalAccountUsage: {"cpu": 6000},
	})

	assert.Equal(t, map[string]float64{"cpu": 0}, f.report(t))

	f.client.SetUsage(f.backend, backend.ResourceUsage{
		backend.TotalAccountUsage: {"cpu": 9600},
	})

	assert.Equal(t, map[string]float64{"cpu": 3600}, f.report(t))
}

// TestBaselinePersistsAcrossRestart expects a rebuilt driver sharing the
// state directory to keep accounting from the stored baseline.
func TestBaselinePersistsAcrossRestart(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	f.client.SetUsage(f.backend, backend.ResourceUsage{
		backend.TotalAccountUsage: {"cpu": 6000},
	})

	f.report(t)

	mapper := components.NewMapper([]components.Component{
		{Name: "cpu", AccountingType: components.AccountingTypeUsage, UnitFactor: 60},
	})

	inner := backend.NewGenericDriver("memory", f.client, mapper, backend.Settings{Prefix: "alloc_"})

	rebuilt := cumulative.Wrap(inner, f.store, "offering-1", time.UTC).WithClock(func() time.Time {
		return f.now
	})

	f.client.SetUsage(f.backend, backend.ResourceUsage{
		backend.TotalAccountUsage: {"cpu": 7200},
	})

	report, err := rebuilt.GetUsageReport(context.Background(), []string{f.backend})
	require.NoError(t, err)

	assert.Equal(t, map[string]float64{"cpu": 1200}, report[f.backend][backend.TotalAccountUsage])
}

// TestNewPeriodRebaselines expects the month rollover to start a fresh
// baseline.
func TestNewPeriodRebaselines(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	f.client.SetUsage(f.backend, backend.ResourceUsage{
		backend.TotalAccountUsage: {"cpu": 6000},
	})

	f.report(t)

	f.client.SetUsage(f.backend, backend.ResourceUsage{
		backend.TotalAccountUsage: {"cpu": 9600},
	})

	assert.Equal(t, map[string]float64{"cpu": 3600}, f.report(t))

	f.now = time.Date(2024, 6, 1, 0, 30, 0, 0, time.UTC)

	assert.Equal(t, map[string]float64{"cpu": 0}, f.report(t))

	f.client.SetUsage(f.backend, backend.ResourceUsage{
		backend.TotalAccountUsage: {"cpu": 10200},
	})

	assert.Equal(t, map[string]float64{"cpu": 600}, f.report(t))
}

// TestCounterResetRebaselinesAtZero expects a backend counter reset to
// keep accounting forward rather than reporting negative usage.
func TestCounterResetRebaselinesAtZero(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	f.client.SetUsage(f.backend, backend.ResourceUsage{
		backend.TotalAccountUsage: {"cpu": 6000},
	})

	f.report(t)

	f.client.SetUsage(f.backend, backend.ResourceUsage{
		backend.TotalAccountUsage: {"cpu": 300},
	})

	assert.Equal(t, map[string]float64{"cpu": 300}, f.report(t))
}

// TestPullResourceAdjusted expects per-user series to be baselined
// independently through the pull path.
func TestPullResourceAdjusted(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	f.client.SetUsage(f.backend, backend.ResourceUsage{
		backend.TotalAccountUsage: {"cpu": 6000},
		"alice-site":              {"cpu": 3600},
	})

	resource := &marketplace.Resource{
		UUID:      "res-1",
		BackendID: f.backend,
	}

	info, err := f.driver.PullResource(context.Background(), resource)
	require.NoError(t, err)
	require.NotNil(t, info)

	assert.Equal(t, float64(0), info.Usage["alice-site"]["cpu"])

	f.client.SetUsage(f.backend, backend.ResourceUsage{
		backend.TotalAccountUsage: {"cpu": 7200},
		"alice-site":              {"cpu": 4800},
	})

	info, err = f.driver.PullResource(context.Background(), resource)
	require.NoError(t, err)
	require.NotNil(t, info)

	assert.Equal(t, float64(1200), info.Usage[backend.TotalAccountUsage]["cpu"])
	assert.Equal(t, float64(1200), info.Usage["alice-site"]["cpu"])
}
