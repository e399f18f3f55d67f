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

// Package cumulative converts lifetime usage counters into per billing
// period figures.  Some backends only report consumption since resource
// creation; the wrapper snapshots a baseline at the first observation
// of each period and reports the delta, persisting baselines across
// restarts.  A lost baseline file reinitializes on the next pass and
// under-reports that period rather than failing it.
package cumulative

import (
	"context"
	"sync"
	"time"

	"github.com/eschercloudai/site-agent/pkg/backend"
	"github.com/eschercloudai/site-agent/pkg/marketplace"
	"github.com/eschercloudai/site-agent/pkg/statestore"
)

// baselines is keyed backend id, then username, then component.
type baselines map[string]map[string]map[string]float64

// Driver decorates another driver's usage reads.  All other operations
// pass through.
type Driver struct {
	backend.Driver

	store    *statestore.Store
	offering string
	location *time.Location
	now      func() time.Time

	mu sync.Mutex
}

var _ backend.Driver = &Driver{}

// Wrap decorates the driver.  Baselines are stored per offering and
// billing period.
func Wrap(driver backend.Driver, store *statestore.Store, offeringUUID string, location *time.Location) *Driver {
	return &Driver{
		Driver:   driver,
		store:    store,
		offering: offeringUUID,
		location: location,
		now:      time.Now,
	}
}

// WithClock overrides the time source.
func (d *Driver) WithClock(now func() time.Time) *Driver {
	d.now = now
	return d
}

func (d *Driver) stateName() string {
	return d.offering + "-" + d.now().In(d.location).Format("2006-01")
}

// adjust rewrites lifetime counters into period deltas, baselining each
// series at its first observation.  A counter running backwards means
// the backend reset; the series re-baselines at zero so the remainder
// of the period is still accounted.
func (d *Driver) adjust(usage map[string]backend.ResourceUsage) (map[string]backend.ResourceUsage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	name := d.stateName()

	state := baselines{}
	if err := d.store.Load(name, &state); err != nil {
		return nil, err
	}

	out := map[string]backend.ResourceUsage{}

	for id, resourceUsage := range usage {
		out[id] = backend.ResourceUsage{}

		if state[id] == nil {
			state[id] = map[string]map[string]float64{}
		}

		for username, amounts := range resourceUsage {
			out[id][username] = map[string]float64{}

			if state[id][username] == nil {
				state[id][username] = map[string]float64{}
			}

			for component, counter := range amounts {
				baseline, ok := state[id][username][component]
				if !ok || counter < baseline {
					if !ok {
						baseline = counter
					} else {
						baseline = 0
					}

					state[id][username][component] = baseline
				}

				out[id][username][component] = counter - baseline
			}
		}
	}

	if err := d.store.Save(name, state); err != nil {
		return nil, err
	}

	return out, nil
}

// PullResource implements the Driver interface.
func (d *Driver) PullResource(ctx context.Context, resource *marketplace.Resource) (*backend.ResourceInfo, error) {
	info, err := d.Driver.PullResource(ctx, resource)
	if err != nil || info == nil {
		return info, err
	}

	adjusted, err := d.adjust(map[string]backend.ResourceUsage{info.BackendID: info.Usage})
	if err != nil {
		return nil, err
	}

	info.Usage = adjusted[info.BackendID]

	return info, nil
}

// PullResources implements the Driver interface.
func (d *Driver) PullResources(ctx context.Context, resources []marketplace.Resource) (map[string]*backend.ResourceInfo, error) {
	out := map[string]*backend.ResourceInfo{}

	for i := range resources {
		info, err := d.PullResource(ctx, &resources[i])
		if err != nil {
			return nil, err
		}

		if info == nil {
			continue
		}

		out[resources[i].UUID] = info
	}

	return out, nil
}

// GetUsageReport implements the Driver interface.
func (d *Driver) GetUsageReport(ctx context.Context, backendIDs []string) (map[string]backend.ResourceUsage, error) {
	report, err := d.Driver.GetUsageReport(ctx, backendIDs)
	if err != nil {
		return nil, err
	}

	return d.adjust(report)
}
