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

// Package processor defines the per-offering reconciliation lanes and
// the state they share within a single pass.
package processor

import (
	"context"
	"time"

	"github.com/eschercloudai/site-agent/pkg/backend"
	"github.com/eschercloudai/site-agent/pkg/components"
	"github.com/eschercloudai/site-agent/pkg/identity"
	"github.com/eschercloudai/site-agent/pkg/marketplace"
)

// Offering is the runtime binding of one marketplace offering to a site
// backend.  It is assembled once at startup and shared read-only by the
// offering's lanes.
type Offering struct {
	// Name is the operator facing offering name, used in logs and
	// metrics labels.
	Name string

	// UUID is the marketplace offering identifier.
	UUID string

	// Location is the offering's billing timezone.
	Location *time.Location

	// Marketplace is the control plane client.
	Marketplace marketplace.Client

	// Driver is the site backend.
	Driver backend.Driver

	// Mapper converts component amounts between marketplace and backend
	// units.
	Mapper *components.Mapper

	// Usernames resolves site local usernames.
	Usernames *identity.Manager

	// SyncServiceAccounts enables provisioning of project service
	// accounts alongside team members.
	SyncServiceAccounts bool

	// SyncCourseAccounts enables provisioning of project course
	// accounts alongside team members.
	SyncCourseAccounts bool
}

// BillingPeriod returns the start of the billing period containing now,
// i.e. the first of the month in the offering's timezone.
func (o *Offering) BillingPeriod(now time.Time) time.Time {
	local := now.In(o.Location)

	return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, o.Location)
}

// Processor is one reconciliation lane for one offering.  Passes of the
// same processor are serialized by the supervisor; distinct lanes run
// concurrently.
type Processor interface {
	// ProcessOffering runs a single reconciliation pass.
	ProcessOffering(ctx context.Context) error
}
