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

// Package supervisor drives the processing lanes for each offering.  In
// polling mode every lane runs on its own period; in event mode the
// marketplace pushes notifications and lanes run targeted
// reconciliations, backed by a periodic safety sweep for anything a
// dropped message missed.  Lanes of one offering never run two passes
// concurrently, different offerings and different lanes are
// independent.
package supervisor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/robfig/cron"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/eschercloudai/site-agent/pkg/constants"
	coreerrors "github.com/eschercloudai/site-agent/pkg/errors"
	"github.com/eschercloudai/site-agent/pkg/events"
	"github.com/eschercloudai/site-agent/pkg/metrics"
	"github.com/eschercloudai/site-agent/pkg/processor"
	"github.com/eschercloudai/site-agent/pkg/processor/membership"
	"github.com/eschercloudai/site-agent/pkg/processor/order"
	"github.com/eschercloudai/site-agent/pkg/processor/report"
)

// Lane names as they appear in logs and metric labels.
const (
	LaneOrders     = "orders"
	LaneMembership = "membership"
	LaneReports    = "reports"
)

// OrderLane is the order processing surface the supervisor drives.
type OrderLane interface {
	ProcessOffering(ctx context.Context) error
	ProcessOrderByUUID(ctx context.Context, uuid string) error
}

// MembershipLane is the membership processing surface the supervisor
// drives.
type MembershipLane interface {
	ProcessOffering(ctx context.Context) error
	ProcessResourceByUUID(ctx context.Context, uuid string) error
	ProcessUserRoleChanged(ctx context.Context, userUUID, projectUUID string, granted bool) error
	ProcessProjectUserSync(ctx context.Context, projectUUID string) error
}

// ReportLane is the usage reporting surface the supervisor drives.
type ReportLane interface {
	ProcessOffering(ctx context.Context) error
}

// Options tune one offering's scheduling.
type Options struct {
	// OrderPeriod is the polling interval for the order lane.
	OrderPeriod time.Duration

	// MembershipPeriod is the polling interval for the membership lane.
	MembershipPeriod time.Duration

	// ReportPeriod is the polling interval for the report lane.
	ReportPeriod time.Duration

	// SweepSchedule runs full passes of all lanes in event mode to catch
	// dropped messages.  Ignored in polling mode.
	SweepSchedule cron.Schedule

	// OrderOptions tune order retry behaviour.
	OrderOptions *order.Options

	// ReportOptions tune report retry behaviour.
	ReportOptions *report.Options
}

func (o *Options) defaults() {
	if o.OrderPeriod == 0 {
		o.OrderPeriod = 5 * time.Minute
	}

	if o.MembershipPeriod == 0 {
		o.MembershipPeriod = 5 * time.Minute
	}

	if o.ReportPeriod == 0 {
		o.ReportPeriod = 30 * time.Minute
	}

	if o.SweepSchedule == nil {
		// The parse cannot fail on a constant expression.
		o.SweepSchedule, _ = cron.Parse("@every 1h")
	}
}

// Entry is one offering under supervision.
type Entry struct {
	// Name and UUID identify the offering in logs and metrics.
	Name string
	UUID string

	// Orders, Membership and Reports are the lane processors.
	Orders     OrderLane
	Membership MembershipLane
	Reports    ReportLane

	// Subscriber, when set, switches the offering to event mode.
	Subscriber events.Subscriber

	// Options are the scheduling options.
	Options Options
}

// NewEntry assembles an entry with the standard lane processors.
func NewEntry(offering *processor.Offering, options *Options) *Entry {
	if options == nil {
		options = &Options{}
	}

	return &Entry{
		Name:       offering.Name,
		UUID:       offering.UUID,
		Orders:     order.New(offering, options.OrderOptions),
		Membership: membership.New(offering),
		Reports:    report.New(offering, options.ReportOptions),
		Options:    *options,
	}
}

// WithSubscriber switches the entry to event mode.
func (e *Entry) WithSubscriber(subscriber events.Subscriber) *Entry {
	e.Subscriber = subscriber

	return e
}

// lane serializes all passes, polled, pushed or swept, for one lane of
// one offering.
type lane struct {
	offering string
	name     string
	period   time.Duration

	mu sync.Mutex
}

// run executes one pass under the lane lock, recording metrics and a
// trace span.  Pass errors are reported but never terminate the
// supervisor, the next tick retries from scratch.
func (l *lane) run(ctx context.Context, process func(context.Context) error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	log := logr.FromContextOrDiscard(ctx).WithValues("offering", l.offering, "lane", l.name)
	ctx = logr.NewContext(ctx, log)

	tracer := otel.GetTracerProvider().Tracer(constants.Application)

	ctx, span := tracer.Start(ctx, l.name,
		trace.WithAttributes(
			attribute.String("offering", l.offering),
			attribute.String("lane", l.name),
		),
	)
	defer span.End()

	start := time.Now()
	err := process(ctx)

	metrics.PassDuration.WithLabelValues(l.offering, l.name).Observe(time.Since(start).Seconds())
	metrics.Passes.WithLabelValues(l.offering, l.name).Inc()

	if err == nil {
		return
	}

	metrics.PassErrors.WithLabelValues(l.offering, l.name).Inc()

	if errors.Is(err, coreerrors.ErrUsageAnomaly) {
		metrics.UsageAnomalies.WithLabelValues(l.offering).Inc()
	}

	span.SetStatus(codes.Error, err.Error())
	log.Error(err, "processing pass failed")
}

// Supervisor runs the lanes of all configured offerings until its
// context is cancelled.
type Supervisor struct {
	entries []*Entry
}

// New returns a supervisor over the entries.
func New(entries ...*Entry) *Supervisor {
	return &Supervisor{
		entries: entries,
	}
}

// Run blocks until the context is cancelled, then returns nil after all
// lanes have drained.  Any other return is a subscription failure.
func (s *Supervisor) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	for _, entry := range s.entries {
		entry := entry
		entry.Options.defaults()

		lanes := map[string]*lane{
			LaneOrders:     {offering: entry.Name, name: LaneOrders, period: entry.Options.OrderPeriod},
			LaneMembership: {offering: entry.Name, name: LaneMembership, period: entry.Options.MembershipPeriod},
			LaneReports:    {offering: entry.Name, name: LaneReports, period: entry.Options.ReportPeriod},
		}

		if entry.Subscriber == nil {
			group.Go(func() error {
				return poll(ctx, lanes[LaneOrders], entry.Orders.ProcessOffering)
			})

			group.Go(func() error {
				return poll(ctx, lanes[LaneMembership], entry.Membership.ProcessOffering)
			})

			group.Go(func() error {
				return poll(ctx, lanes[LaneReports], entry.Reports.ProcessOffering)
			})

			continue
		}

		group.Go(func() error {
			return entry.Subscriber.Subscribe(ctx, entry.UUID, entry.handler(lanes))
		})

		group.Go(func() error {
			return sweep(ctx, entry, lanes)
		})
	}

	err := group.Wait()

	// Cancellation is the one orderly way out.
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

// poll runs a full pass immediately and then on every tick.
func poll(ctx context.Context, l *lane, process func(context.Context) error) error {
	ticker := time.NewTicker(l.period)
	defer ticker.Stop()

	for {
		l.run(ctx, process)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// sweep runs full passes of every lane on the safety schedule, catching
// anything a dropped event missed.
func sweep(ctx context.Context, entry *Entry, lanes map[string]*lane) error {
	for {
		timer := time.NewTimer(time.Until(entry.Options.SweepSchedule.Next(time.Now())))

		select {
		case <-ctx.Done():
			timer.Stop()

			return nil
		case <-timer.C:
		}

		lanes[LaneOrders].run(ctx, entry.Orders.ProcessOffering)
		lanes[LaneMembership].run(ctx, entry.Membership.ProcessOffering)
		lanes[LaneReports].run(ctx, entry.Reports.ProcessOffering)
	}
}

// handler dispatches one marketplace event to a targeted
// reconciliation on the matching lane.
func (e *Entry) handler(lanes map[string]*lane) events.Handler {
	return func(ctx context.Context, event *events.Event) {
		metrics.EventsReceived.WithLabelValues(e.Name, event.Type).Inc()

		switch event.Type {
		case events.TypeOrderCreated:
			lanes[LaneOrders].run(ctx, func(ctx context.Context) error {
				return e.Orders.ProcessOrderByUUID(ctx, event.OrderUUID)
			})
		case events.TypeResourceUpdated:
			lanes[LaneMembership].run(ctx, func(ctx context.Context) error {
				return e.Membership.ProcessResourceByUUID(ctx, event.ResourceUUID)
			})
		case events.TypeUserRoleChanged:
			lanes[LaneMembership].run(ctx, func(ctx context.Context) error {
				return e.Membership.ProcessUserRoleChanged(ctx, event.UserUUID, event.ProjectUUID, event.Granted)
			})
		case events.TypeProjectUserSync:
			lanes[LaneMembership].run(ctx, func(ctx context.Context) error {
				return e.Membership.ProcessProjectUserSync(ctx, event.ProjectUUID)
			})
		default:
			logr.FromContextOrDiscard(ctx).Info("ignoring unknown event type", "event_type", event.Type)
		}
	}
}
