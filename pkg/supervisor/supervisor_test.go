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

package supervisor_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robfig/cron"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eschercloudai/site-agent/pkg/events"
	"github.com/eschercloudai/site-agent/pkg/supervisor"
)

// recorder implements every lane interface, recording calls and
// detecting overlapping passes.
type recorder struct {
	mu           sync.Mutex
	passes       int
	orders       []string
	resources    []string
	roleChanges  []string
	projectSyncs []string

	inFlight atomic.Int32
	overlap  atomic.Bool
	delay    time.Duration
}

func (r *recorder) enter() {
	if r.inFlight.Add(1) > 1 {
		r.overlap.Store(true)
	}

	if r.delay != 0 {
		time.Sleep(r.delay)
	}
}

func (r *recorder) exit() {
	r.inFlight.Add(-1)
}

func (r *recorder) ProcessOffering(_ context.Context) error {
	r.enter()
	defer r.exit()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.passes++

	return nil
}

func (r *recorder) ProcessOrderByUUID(_ context.Context, uuid string) error {
	r.enter()
	defer r.exit()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.orders = append(r.orders, uuid)

	return nil
}

func (r *recorder) ProcessResourceByUUID(_ context.Context, uuid string) error {
	r.enter()
	defer r.exit()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.resources = append(r.resources, uuid)

	return nil
}

func (r *recorder) ProcessUserRoleChanged(_ context.Context, userUUID, projectUUID string, _ bool) error {
	r.enter()
	defer r.exit()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.roleChanges = append(r.roleChanges, userUUID+"/"+projectUUID)

	return nil
}

func (r *recorder) ProcessProjectUserSync(_ context.Context, projectUUID string) error {
	r.enter()
	defer r.exit()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.projectSyncs = append(r.projectSyncs, projectUUID)

	return nil
}

func (r *recorder) passCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.passes
}

// chanSubscriber delivers scripted events to the handler.
type chanSubscriber struct {
	events chan *events.Event

	// concurrent delivers each event on its own goroutine to exercise
	// the supervisor's serialization.
	concurrent bool
}

func newChanSubscriber() *chanSubscriber {
	return &chanSubscriber{
		events: make(chan *events.Event, 16),
	}
}

func (s *chanSubscriber) Subscribe(ctx context.Context, _ string, handler events.Handler) error {
	var group sync.WaitGroup
	defer group.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-s.events:
			if !s.concurrent {
				handler(ctx, event)

				continue
			}

			group.Add(1)

			go func() {
				defer group.Done()

				handler(ctx, event)
			}()
		}
	}
}

func (s *chanSubscriber) Close() {
}

func eventually(t *testing.T, condition func() bool) {
	t.Helper()

	assert.Eventually(t, condition, 5*time.Second, 5*time.Millisecond)
}

// TestPollingRunsAllLanes expects every lane of a polled offering to
// pass repeatedly, and cancellation to return cleanly.
func TestPollingRunsAllLanes(t *testing.T) {
	t.Parallel()

	orders := &recorder{}
	members := &recorder{}
	reports := &recorder{}

	entry := &supervisor.Entry{
		Name:       "fusion",
		UUID:       "offering-1",
		Orders:     orders,
		Membership: members,
		Reports:    reports,
		Options: supervisor.Options{
			OrderPeriod:      10 * time.Millisecond,
			MembershipPeriod: 10 * time.Millisecond,
			ReportPeriod:     10 * time.Millisecond,
		},
	}

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)

	go func() {
		done <- supervisor.New(entry).Run(ctx)
	}()

	eventually(t, func() bool {
		return orders.passCount() >= 2 && members.passCount() >= 2 && reports.passCount() >= 2
	})

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not stop on cancellation")
	}
}

// TestEventDispatch expects each event type to reach its targeted
// reconciliation.
func TestEventDispatch(t *testing.T) {
	t.Parallel()

	orders := &recorder{}
	members := &recorder{}
	reports := &recorder{}

	subscriber := newChanSubscriber()

	sweepless, err := cron.Parse("@yearly")
	require.NoError(t, err)

	entry := &supervisor.Entry{
		Name:       "fusion",
		UUID:       "offering-1",
		Orders:     orders,
		Membership: members,
		Reports:    reports,
		Subscriber: subscriber,
		Options: supervisor.Options{
			SweepSchedule: sweepless,
		},
	}

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)

	go func() {
		done <- supervisor.New(entry).Run(ctx)
	}()

	subscriber.events <- &events.Event{Type: events.TypeOrderCreated, OrderUUID: "order-1"}
	subscriber.events <- &events.Event{Type: events.TypeResourceUpdated, ResourceUUID: "res-1"}
	subscriber.events <- &events.Event{Type: events.TypeUserRoleChanged, UserUUID: "user-1", ProjectUUID: "proj-1", Granted: true}
	subscriber.events <- &events.Event{Type: events.TypeProjectUserSync, ProjectUUID: "proj-1"}
	subscriber.events <- &events.Event{Type: "unheard-of"}

	eventually(t, func() bool {
		members.mu.Lock()
		defer members.mu.Unlock()

		return len(members.resources) == 1 && len(members.roleChanges) == 1 && len(members.projectSyncs) == 1
	})

	orders.mu.Lock()
	assert.Equal(t, []string{"order-1"}, orders.orders)
	orders.mu.Unlock()

	members.mu.Lock()
	assert.Equal(t, []string{"res-1"}, members.resources)
	assert.Equal(t, []string{"user-1/proj-1"}, members.roleChanges)
	assert.Equal(t, []string{"proj-1"}, members.projectSyncs)
	members.mu.Unlock()

	assert.Zero(t, reports.passCount())

	cancel()
	require.NoError(t, <-done)
}

// TestLanePassesSerialized expects concurrent event deliveries for one
// lane to never overlap a pass.
func TestLanePassesSerialized(t *testing.T) {
	t.Parallel()

	members := &recorder{delay: 5 * time.Millisecond}

	subscriber := newChanSubscriber()
	subscriber.concurrent = true

	sweepless, err := cron.Parse("@yearly")
	require.NoError(t, err)

	entry := &supervisor.Entry{
		Name:       "fusion",
		UUID:       "offering-1",
		Orders:     &recorder{},
		Membership: members,
		Reports:    &recorder{},
		Subscriber: subscriber,
		Options: supervisor.Options{
			SweepSchedule: sweepless,
		},
	}

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)

	go func() {
		done <- supervisor.New(entry).Run(ctx)
	}()

	for i := 0; i < 8; i++ {
		subscriber.events <- &events.Event{Type: events.TypeResourceUpdated, ResourceUUID: "res-1"}
	}

	eventually(t, func() bool {
		members.mu.Lock()
		defer members.mu.Unlock()

		return len(members.resources) == 8
	})

	assert.False(t, members.overlap.Load(), "membership passes overlapped")

	cancel()
	require.NoError(t, <-done)
}

// TestSafetySweep expects event mode to run full passes of every lane
// on the sweep schedule.
func TestSafetySweep(t *testing.T) {
	t.Parallel()

	orders := &recorder{}
	members := &recorder{}
	reports := &recorder{}

	sweep, err := cron.Parse("@every 20ms")
	require.NoError(t, err)

	entry := &supervisor.Entry{
		Name:       "fusion",
		UUID:       "offering-1",
		Orders:     orders,
		Membership: members,
		Reports:    reports,
		Subscriber: newChanSubscriber(),
		Options: supervisor.Options{
			SweepSchedule: sweep,
		},
	}

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)

	go func() {
		done <- supervisor.New(entry).Run(ctx)
	}()

	eventually(t, func() bool {
		return orders.passCount() >= 1 && members.passCount() >= 1 && reports.passCount() >= 1
	})

	cancel()
	require.NoError(t, <-done)
}
