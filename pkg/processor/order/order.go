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

// Package order implements the order lane: it screens pending-provider
// orders, executes approved ones against the backend and reports the
// outcome to the control plane.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-logr/logr"
	"github.com/hashicorp/go-multierror"

	"github.com/eschercloudai/site-agent/pkg/backend"
	coreerrors "github.com/eschercloudai/site-agent/pkg/errors"
	"github.com/eschercloudai/site-agent/pkg/marketplace"
	"github.com/eschercloudai/site-agent/pkg/metrics"
	"github.com/eschercloudai/site-agent/pkg/processor"
	utilretry "github.com/eschercloudai/site-agent/pkg/util/retry"
)

// errAbandoned marks an order that cannot make progress yet and should
// be left untouched for a later pass rather than marked erred.
var errAbandoned = errors.New("order abandoned")

// Options tune the per-order retry budgets.
type Options struct {
	// Attempts is how many times an order execution is tried before the
	// order is marked erred.
	Attempts uint

	// Delay is the fixed delay between attempts.
	Delay time.Duration

	// UUIDPollPeriod is how often to re-read a freshly approved create
	// order waiting for the marketplace to mint its resource.
	UUIDPollPeriod time.Duration

	// UUIDPollAttempts bounds that polling before the order is abandoned
	// until the next pass.
	UUIDPollAttempts int
}

func (o *Options) defaults() {
	if o.Attempts == 0 {
		o.Attempts = 3
	}

	if o.Delay == 0 {
		o.Delay = 5 * time.Second
	}

	if o.UUIDPollPeriod == 0 {
		o.UUIDPollPeriod = 5 * time.Second
	}

	if o.UUIDPollAttempts == 0 {
		o.UUIDPollAttempts = 4
	}
}

// Processor is the order lane for one offering.
type Processor struct {
	offering *processor.Offering
	options  Options
}

var _ processor.Processor = &Processor{}

// New returns an order processor.  A nil options applies the defaults.
func New(offering *processor.Offering, options *Options) *Processor {
	p := &Processor{
		offering: offering,
	}

	if options != nil {
		p.options = *options
	}

	p.options.defaults()

	return p
}

// ProcessOffering implements the Processor interface.  Orders are
// handled one at a time; a failing order is marked erred and does not
// block the rest of the batch.
func (p *Processor) ProcessOffering(ctx context.Context) error {
	cycle := processor.NewCycle(p.offering)

	orders, err := p.offering.Marketplace.ListOrders(ctx, &marketplace.OrderFilter{
		OfferingUUID: p.offering.UUID,
		States: []marketplace.OrderState{
			marketplace.OrderStatePendingProvider,
			marketplace.OrderStateExecuting,
		},
	})
	if err != nil {
		return fmt.Errorf("listing orders: %w", err)
	}

	var result *multierror.Error

	for i := range orders {
		if err := ctx.Err(); err != nil {
			return multierror.Append(result, err).ErrorOrNil()
		}

		if err := p.processOrder(ctx, cycle, &orders[i]); err != nil {
			result = multierror.Append(result, fmt.Errorf("order %s: %w", orders[i].UUID, err))
		}
	}

	return result.ErrorOrNil()
}

// ProcessOrderByUUID handles a single order, e.g. off an event bus
// notification.  Orders in a terminal state are ignored.
func (p *Processor) ProcessOrderByUUID(ctx context.Context, uuid string) error {
	order, err := p.offering.Marketplace.GetOrder(ctx, uuid)
	if err != nil {
		return err
	}

	if order.State != marketplace.OrderStatePendingProvider && order.State != marketplace.OrderStateExecuting {
		return nil
	}

	return p.processOrder(ctx, processor.NewCycle(p.offering), order)
}

func (p *Processor) processOrder(ctx context.Context, cycle *processor.Cycle, order *marketplace.Order) error {
	log := logr.FromContextOrDiscard(ctx).WithValues("order", order.UUID, "order_type", order.Type)
	ctx = logr.NewContext(ctx, log)

	if order.State == marketplace.OrderStatePendingProvider {
		proceed, err := p.screen(ctx, order)
		if err != nil || !proceed {
			return err
		}
	}

	err := retry.Do(
		func() error {
			return p.execute(ctx, cycle, order)
		},
		retry.Context(ctx),
		retry.Attempts(p.options.Attempts),
		retry.Delay(p.options.Delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, errAbandoned) && !coreerrors.IsPermanent(err)
		}),
	)
	if err != nil {
		if errors.Is(err, errAbandoned) {
			log.Info("leaving order for a later pass", "reason", err.Error())

			return nil
		}

		log.Error(err, "order failed")

		metrics.OrdersProcessed.WithLabelValues(p.offering.Name, string(order.Type), "erred").Inc()

		if erredErr := p.offering.Marketplace.SetOrderStateErred(ctx, order.UUID, err.Error(), fmt.Sprintf("%+v", err)); erredErr != nil {
			return multierror.Append(err, erredErr)
		}

		return err
	}

	if err := p.offering.Marketplace.SetOrderStateDone(ctx, order.UUID); err != nil {
		return fmt.Errorf("completing order: %w", err)
	}

	metrics.OrdersProcessed.WithLabelValues(p.offering.Name, string(order.Type), "done").Inc()

	log.Info("order done")

	return nil
}

// screen gives the backend a veto over pending-provider orders.  On
// acceptance the order is approved and re-read, as approval populates
// fields server side.
func (p *Processor) screen(ctx context.Context, order *marketplace.Order) (bool, error) {
	log := logr.FromContextOrDiscard(ctx)

	verdict, err := p.offering.Driver.EvaluatePendingOrder(ctx, order, p.offering.Marketplace)
	if err != nil {
		return false, fmt.Errorf("evaluating order: %w", err)
	}

	switch verdict {
	case backend.VerdictReject:
		log.Info("order rejected by backend")

		return false, p.offering.Marketplace.RejectOrderByProvider(ctx, order.UUID)
	case backend.VerdictPending:
		log.Info("order held pending")

		return false, nil
	case backend.VerdictAccept:
	}

	if err := p.offering.Marketplace.ApproveOrderByProvider(ctx, order.UUID); err != nil {
		return false, fmt.Errorf("approving order: %w", err)
	}

	refreshed, err := p.offering.Marketplace.GetOrder(ctx, order.UUID)
	if err != nil {
		return false, fmt.Errorf("re-reading approved order: %w", err)
	}

	*order = *refreshed

	return true, nil
}

func (p *Processor) execute(ctx context.Context, cycle *processor.Cycle, order *marketplace.Order) error {
	switch order.Type {
	case marketplace.OrderTypeCreate:
		return p.executeCreate(ctx, cycle, order)
	case marketplace.OrderTypeUpdate:
		return p.executeUpdate(ctx, order)
	case marketplace.OrderTypeTerminate:
		return p.executeTerminate(ctx, order)
	default:
		return fmt.Errorf("%w: unknown order type %q", coreerrors.ErrPermanent, order.Type)
	}
}

// waitForResourceUUID polls a freshly approved create order until the
// marketplace has minted its resource.  If the UUID never appears within
// the budget the order is abandoned, not erred: the marketplace is
// likely lagging and a later pass will pick the order up again.
func (p *Processor) waitForResourceUUID(ctx context.Context, order *marketplace.Order) error {
	callback := func() error {
		refreshed, err := p.offering.Marketplace.GetOrder(ctx, order.UUID)
		if err != nil {
			return err
		}

		if refreshed.ResourceUUID == "" {
			return fmt.Errorf("resource uuid not yet populated")
		}

		*order = *refreshed

		return nil
	}

	retrier := utilretry.WithContext(ctx).WithPeriod(p.options.UUIDPollPeriod).WithAttempts(p.options.UUIDPollAttempts)

	if err := retrier.Do(callback); err != nil {
		return fmt.Errorf("%w: %s", errAbandoned, err)
	}

	return nil
}

func (p *Processor) executeCreate(ctx context.Context, cycle *processor.Cycle, order *marketplace.Order) error {
	log := logr.FromContextOrDiscard(ctx)

	if order.ResourceUUID == "" {
		if err := p.waitForResourceUUID(ctx, order); err != nil {
			return err
		}
	}

	resource, err := p.offering.Marketplace.GetResource(ctx, order.ResourceUUID)
	if err != nil {
		return fmt.Errorf("fetching resource: %w", err)
	}

	users, err := cycle.UserContext(ctx, resource.ProjectUUID, resource.UUID)
	if err != nil {
		return fmt.Errorf("assembling user context: %w", err)
	}

	// A recorded backend id the backend confirms means an earlier attempt
	// already created the resource, possibly under a name the current
	// naming scheme would not regenerate.  Creating again would allocate
	// a second backend resource and orphan the first.
	var info *backend.ResourceInfo

	if resource.BackendID != "" {
		existing, err := p.offering.Driver.PullResource(ctx, resource)
		if err != nil {
			return fmt.Errorf("checking recorded backend id: %w", err)
		}

		if existing != nil {
			log.Info("backend resource already present, skipping creation", "backend_id", existing.BackendID)

			info = existing
		}
	}

	if info == nil {
		created, err := p.offering.Driver.CreateResource(ctx, resource, users)
		if err != nil {
			return fmt.Errorf("creating backend resource: %w", err)
		}

		info = created
	}

	if resource.BackendID != info.BackendID {
		if err := p.offering.Marketplace.SetResourceBackendID(ctx, resource.UUID, info.BackendID); err != nil {
			return fmt.Errorf("recording backend id: %w", err)
		}
	}

	if usernames := users.Usernames(); len(usernames) != 0 {
		added, err := p.offering.Driver.AddUsersToResource(ctx, info.BackendID, usernames)
		if err != nil {
			return fmt.Errorf("authorizing users: %w", err)
		}

		if len(added) != 0 {
			log.Info("users authorized", "backend_id", info.BackendID, "usernames", added)
		}
	}

	return nil
}

func (p *Processor) executeUpdate(ctx context.Context, order *marketplace.Order) error {
	log := logr.FromContextOrDiscard(ctx)

	resource, err := p.offering.Marketplace.GetResource(ctx, order.ResourceUUID)
	if err != nil {
		return fmt.Errorf("fetching resource: %w", err)
	}

	if resource.BackendID == "" {
		return fmt.Errorf("%w: resource %s has no backend id", coreerrors.ErrPermanent, resource.UUID)
	}

	// The previous limits only inform operators reading the logs, the
	// backend write is absolute.
	log.Info("updating limits", "backend_id", resource.BackendID, "old_limits", order.Attributes["old_limits"], "new_limits", order.Limits)

	converted := p.offering.Mapper.ConvertLimitsToBackend(order.Limits)

	if err := p.offering.Driver.SetResourceLimits(ctx, resource.BackendID, converted); err != nil {
		return fmt.Errorf("applying limits: %w", err)
	}

	return nil
}

func (p *Processor) executeTerminate(ctx context.Context, order *marketplace.Order) error {
	log := logr.FromContextOrDiscard(ctx)

	resource, err := p.offering.Marketplace.GetResource(ctx, order.ResourceUUID)
	if err != nil {
		// The resource being gone means there is nothing left to tear
		// down.
		if coreerrors.IsNotFound(err) {
			return nil
		}

		return fmt.Errorf("fetching resource: %w", err)
	}

	if err := p.offering.Driver.DeleteResource(ctx, resource); err != nil {
		return fmt.Errorf("deleting backend resource: %w", err)
	}

	log.Info("backend resource deleted", "backend_id", resource.BackendID)

	return nil
}
