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

package cmd

import (
	"time"

	"github.com/robfig/cron"

	"github.com/eschercloudai/site-agent/pkg/backend"
	"github.com/eschercloudai/site-agent/pkg/backend/cumulative"
	"github.com/eschercloudai/site-agent/pkg/components"
	"github.com/eschercloudai/site-agent/pkg/config"
	"github.com/eschercloudai/site-agent/pkg/events"
	"github.com/eschercloudai/site-agent/pkg/identity"
	"github.com/eschercloudai/site-agent/pkg/marketplace"
	"github.com/eschercloudai/site-agent/pkg/processor"
	"github.com/eschercloudai/site-agent/pkg/statestore"
	"github.com/eschercloudai/site-agent/pkg/supervisor"
)

// usernameTTL bounds how long a resolved username is trusted before the
// marketplace is consulted again.
const usernameTTL = 10 * time.Minute

// runtime is one offering wired up and ready to supervise.
type runtime struct {
	offering   *processor.Offering
	entry      *supervisor.Entry
	subscriber events.Subscriber
}

// assembly is everything built from the configuration file.
type assembly struct {
	marketplace marketplace.Client
	runtimes    []*runtime
}

// Close releases broker connections.
func (a *assembly) Close() {
	for _, r := range a.runtimes {
		if r.subscriber != nil {
			r.subscriber.Close()
		}
	}
}

// Entries returns the supervisor entries.
func (a *assembly) Entries() []*supervisor.Entry {
	out := make([]*supervisor.Entry, len(a.runtimes))

	for i, r := range a.runtimes {
		out[i] = r.entry
	}

	return out
}

// assemble builds all offerings from the configuration.  Every
// construction error here is fatal, a half-wired agent must not start.
func assemble(file *config.File) (*assembly, error) {
	token, err := file.Marketplace.ResolveToken()
	if err != nil {
		return nil, err
	}

	client, err := marketplace.NewClient(&marketplace.Options{
		BaseURL:               file.Marketplace.URL,
		Token:                 token,
		InsecureSkipTLSVerify: file.Marketplace.InsecureSkipTLSVerify,
		Timeout:               file.Marketplace.Timeout.Duration,
	})
	if err != nil {
		return nil, err
	}

	out := &assembly{
		marketplace: client,
	}

	for i := range file.Offerings {
		r, err := assembleOffering(client, file, &file.Offerings[i])
		if err != nil {
			out.Close()

			return nil, err
		}

		out.runtimes = append(out.runtimes, r)
	}

	return out, nil
}

func assembleOffering(client marketplace.Client, file *config.File, o *config.Offering) (*runtime, error) {
	location, err := o.Location()
	if err != nil {
		return nil, err
	}

	mapper := components.NewMapper(o.Components)

	driver, err := backend.New(o.Backend, o.BackendSettings, mapper)
	if err != nil {
		return nil, err
	}

	if o.CumulativeUsage {
		driver = cumulative.Wrap(driver, statestore.New(file.StateDir), o.UUID, location)
	}

	generator, err := identity.NewGenerator(o.UsernamePolicy, o.UsernameOptions)
	if err != nil {
		return nil, err
	}

	offering := &processor.Offering{
		Name:                o.Name,
		UUID:                o.UUID,
		Location:            location,
		Marketplace:         client,
		Driver:              driver,
		Mapper:              mapper,
		Usernames:           identity.NewManager(generator, usernameTTL),
		SyncServiceAccounts: o.SyncServiceAccounts,
		SyncCourseAccounts:  o.SyncCourseAccounts,
	}

	options := &supervisor.Options{
		OrderPeriod:      o.Periods.Orders.Duration,
		MembershipPeriod: o.Periods.Membership.Duration,
		ReportPeriod:     o.Periods.Reports.Duration,
	}

	if o.SweepSchedule != "" {
		schedule, err := cron.Parse(o.SweepSchedule)
		if err != nil {
			return nil, err
		}

		options.SweepSchedule = schedule
	}

	r := &runtime{
		offering: offering,
		entry:    supervisor.NewEntry(offering, options),
	}

	if o.Mode == config.ModeEvents {
		subscriber, err := events.NewMQTTSubscriber(events.MQTTOptions{
			BrokerURL:   o.Messaging.BrokerURL,
			ClientID:    o.Messaging.ClientID,
			Username:    o.Messaging.Username,
			Password:    o.Messaging.Password,
			TopicPrefix: o.Messaging.TopicPrefix,
		})
		if err != nil {
			return nil, err
		}

		r.subscriber = subscriber
		r.entry.WithSubscriber(subscriber)
	}

	return r, nil
}
