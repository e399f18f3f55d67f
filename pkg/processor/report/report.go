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

// Package report implements the usage lane: it pulls consumption from
// the backend, converts it to marketplace units and submits total and
// per-user usage for the current billing period.
package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-logr/logr"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/exp/maps"

	"github.com/eschercloudai/site-agent/pkg/backend"
	coreerrors "github.com/eschercloudai/site-agent/pkg/errors"
	"github.com/eschercloudai/site-agent/pkg/marketplace"
	"github.com/eschercloudai/site-agent/pkg/processor"
)

// Options tune the per-resource retry budget.
type Options struct {
	// Attempts is how many times a resource's reporting pipeline is
	// tried on transient failures.
	Attempts uint

	// Delay is the fixed delay between attempts.
	Delay time.Duration
}

func (o *Options) defaults() {
	if o.Attempts == 0 {
		o.Attempts = 3
	}

	if o.Delay == 0 {
		o.Delay = 5 * time.Second
	}
}

// Processor is the usage lane for one offering.
type Processor struct {
	offering *processor.Offering
	options  Options

	// now is injectable for billing period tests.
	now func() time.Time
}

var _ processor.Processor = &Processor{}

// New returns a report processor.  A nil options applies the defaults.
func New(offering *processor.Offering, options *Options) *Processor {
	p := &Processor{
		offering: offering,
		now:      time.Now,
	}

	if options != nil {
		p.options = *options
	}

	p.options.defaults()

	return p
}

// WithClock overrides the time source.
func (p *Processor) WithClock(now func() time.Time) *Processor {
	p.now = now
	return p
}

// ProcessOffering implements the Processor interface.  Each resource's
// pipeline is retried on transient failures; usage anomalies abort the
// resource without retry and without blocking the rest of the batch.
func (p *Processor) ProcessOffering(ctx context.Context) error {
	cycle := processor.NewCycle(p.offering)
	period := p.offering.BillingPeriod(p.now())

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

		resource := &resources[i]

		if resource.BackendID == "" {
			continue
		}

		err := retry.Do(
			func() error {
				return p.reportResource(ctx, cycle, resource, period)
			},
			retry.Context(ctx),
			retry.Attempts(p.options.Attempts),
			retry.Delay(p.options.Delay),
			retry.DelayType(retry.FixedDelay),
			retry.LastErrorOnly(true),
			retry.RetryIf(coreerrors.IsTransient),
		)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("resource %s: %w", resource.UUID, err))
		}
	}

	return result.ErrorOrNil()
}

func (p *Processor) reportResource(ctx context.Context, cycle *processor.Cycle, resource *marketplace.Resource, period time.Time) error {
	log := logr.FromContextOrDiscard(ctx).WithValues("resource", resource.UUID, "backend_id", resource.BackendID)
	ctx = logr.NewContext(ctx, log)

	info, err := p.offering.Driver.PullResource(ctx, resource)
	if err != nil {
		return fmt.Errorf("pulling backend state: %w", err)
	}

	if info == nil {
		// Erring an already erred resource would just churn the control
		// plane.
		if resource.State != marketplace.ResourceStateErred {
			message := fmt.Sprintf("backend resource %s missing", resource.BackendID)

			if err := p.offering.Marketplace.SetResourceAsErred(ctx, resource.UUID, message, ""); err != nil {
				return fmt.Errorf("erring resource: %w", err)
			}
		}

		return nil
	}

	converted := p.offering.Mapper.ConvertUsageToControl(info.TotalUsage())
	if len(converted) == 0 {
		return nil
	}

	if err := p.guardAnomalies(ctx, resource, converted, period); err != nil {
		return err
	}

	items := make([]marketplace.UsageItem, 0, len(converted))

	for _, component := range sortedKeys(converted) {
		items = append(items, marketplace.UsageItem{
			Type:   component,
			Amount: marketplace.Amount(converted[component]),
		})
	}

	if err := p.offering.Marketplace.SetUsage(ctx, resource.UUID, items); err != nil {
		return fmt.Errorf("submitting usage: %w", err)
	}

	log.Info("usage submitted", "components", len(items))

	return p.reportUserUsage(ctx, cycle, resource, info, period)
}

// guardAnomalies rejects submissions that would move a component total
// backwards within a billing period, or that land on corrupt duplicate
// records.  Either case points at operator intervention, so the whole
// resource is abandoned without retry.
func (p *Processor) guardAnomalies(ctx context.Context, resource *marketplace.Resource, converted map[string]float64, period time.Time) error {
	existing, err := p.offering.Marketplace.ListComponentUsages(ctx, resource.UUID, period)
	if err != nil {
		return fmt.Errorf("listing usage records: %w", err)
	}

	counts := map[string]int{}
	previous := map[string]float64{}

	for _, record := range existing {
		counts[record.Type]++
		previous[record.Type] = float64(record.Usage)
	}

	for _, component := range sortedKeys(converted) {
		if counts[component] > 1 {
			return fmt.Errorf("%w: %d usage records for component %s in one period", coreerrors.ErrUsageAnomaly, counts[component], component)
		}

		if counts[component] == 1 && converted[component] < previous[component] {
			return fmt.Errorf("%w: component %s total fell from %v to %v", coreerrors.ErrUsageAnomaly, component, previous[component], converted[component])
		}
	}

	return nil
}

// reportUserUsage attributes per-user shares against the period's usage
// records.  Backend usernames without a marketplace binding are logged
// and skipped.
func (p *Processor) reportUserUsage(ctx context.Context, cycle *processor.Cycle, resource *marketplace.Resource, info *backend.ResourceInfo, period time.Time) error {
	log := logr.FromContextOrDiscard(ctx)

	records, err := p.offering.Marketplace.ListComponentUsages(ctx, resource.UUID, period)
	if err != nil {
		return fmt.Errorf("listing usage records: %w", err)
	}

	recordByType := map[string]marketplace.ComponentUsage{}

	for _, record := range records {
		recordByType[record.Type] = record
	}

	users, err := cycle.OfferingUsers(ctx)
	if err != nil {
		return fmt.Errorf("fetching offering users: %w", err)
	}

	byUsername := map[string]marketplace.OfferingUser{}

	for _, user := range users {
		if user.Username != "" {
			byUsername[user.Username] = user
		}
	}

	usernames := make([]string, 0, len(info.Usage))

	for username := range info.Usage {
		if username != backend.TotalAccountUsage {
			usernames = append(usernames, username)
		}
	}

	sort.Strings(usernames)

	for _, username := range usernames {
		user, ok := byUsername[username]
		if !ok {
			log.Info("no offering user for backend username", "username", username)
			continue
		}

		converted := p.offering.Mapper.ConvertUsageToControl(info.Usage[username])

		for _, component := range sortedKeys(converted) {
			record, ok := recordByType[component]
			if !ok {
				continue
			}

			if err := p.offering.Marketplace.SetUserUsage(ctx, record.UUID, username, user.UserUUID, marketplace.Amount(converted[component])); err != nil {
				return fmt.Errorf("submitting user usage for %s: %w", username, err)
			}
		}
	}

	return nil
}

func sortedKeys(m map[string]float64) []string {
	out := maps.Keys(m)

	sort.Strings(out)

	return out
}
