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

package marketplace

//go:generate mockgen -source=client.go -destination=mock/client.go -package=mock

import (
	"context"
	"time"
)

// Client is the typed control plane surface the agent consumes.  All
// mutating operations are idempotent or guarded by pre-reads by the
// callers; every call carries a per-operation deadline.
type Client interface {
	// ListOrders returns orders matching the filter in listing order.
	ListOrders(ctx context.Context, filter *OrderFilter) ([]Order, error)

	// GetOrder retrieves a single order.
	GetOrder(ctx context.Context, uuid string) (*Order, error)

	// ApproveOrderByProvider moves a pending-provider order to executing.
	ApproveOrderByProvider(ctx context.Context, uuid string) error

	// RejectOrderByProvider terminally rejects a pending-provider order.
	RejectOrderByProvider(ctx context.Context, uuid string) error

	// SetOrderStateDone marks an order complete.
	SetOrderStateDone(ctx context.Context, uuid string) error

	// SetOrderStateErred marks an order failed with diagnostics.
	SetOrderStateErred(ctx context.Context, uuid, message, traceback string) error

	// ListResources returns resources matching the filter.
	ListResources(ctx context.Context, filter *ResourceFilter) ([]Resource, error)

	// GetResource retrieves a single resource.
	GetResource(ctx context.Context, uuid string) (*Resource, error)

	// SetResourceBackendID persists the site local identifier.
	SetResourceBackendID(ctx context.Context, uuid, backendID string) error

	// SetResourceBackendMetadata persists opaque backend metadata.
	SetResourceBackendMetadata(ctx context.Context, uuid string, metadata map[string]any) error

	// SetResourceLimits writes backend-authoritative limits back.
	SetResourceLimits(ctx context.Context, uuid string, limits map[string]int64) error

	// SetResourceAsOK transitions the resource to OK and clears errors.
	SetResourceAsOK(ctx context.Context, uuid string) error

	// SetResourceAsErred transitions the resource to Erred with diagnostics.
	SetResourceAsErred(ctx context.Context, uuid, message, traceback string) error

	// RefreshResourceLastSync bumps the last reconciliation timestamp.
	RefreshResourceLastSync(ctx context.Context, uuid string) error

	// ResourceTeam returns the project team for the resource's project.
	ResourceTeam(ctx context.Context, uuid string) ([]TeamMember, error)

	// ListOfferingUsers returns offering users matching the filter.
	ListOfferingUsers(ctx context.Context, filter *OfferingUserFilter) ([]OfferingUser, error)

	// PatchOfferingUser partially updates an offering user.
	PatchOfferingUser(ctx context.Context, uuid string, patch *OfferingUserPatch) error

	// BeginCreatingOfferingUser transitions requested to creating.
	BeginCreatingOfferingUser(ctx context.Context, uuid string) error

	// SetOfferingUserOK confirms account creation, recording the username.
	SetOfferingUserOK(ctx context.Context, uuid, username string) error

	// SetOfferingUserPendingAccountLinking parks the user pending a
	// manual account link, with an operator facing comment.
	SetOfferingUserPendingAccountLinking(ctx context.Context, uuid, comment, commentURL string) error

	// SetOfferingUserPendingAdditionalValidation parks the user pending
	// out of band validation, with an operator facing comment.
	SetOfferingUserPendingAdditionalValidation(ctx context.Context, uuid, comment, commentURL string) error

	// ListComponentUsages returns usage records for a resource in the
	// given billing period.
	ListComponentUsages(ctx context.Context, resourceUUID string, period time.Time) ([]ComponentUsage, error)

	// SetUsage submits a batch of component totals for a resource.
	SetUsage(ctx context.Context, resourceUUID string, items []UsageItem) error

	// SetUserUsage submits one user's share of a component usage record.
	SetUserUsage(ctx context.Context, componentUsageUUID, username, userUUID string, amount Amount) error

	// ListUserUsages returns per-user shares of a component usage record.
	ListUserUsages(ctx context.Context, componentUsageUUID string) ([]UserUsage, error)

	// ListServiceAccounts returns a project's service accounts.
	ListServiceAccounts(ctx context.Context, projectUUID string) ([]ServiceAccount, error)

	// ListCourseAccounts returns a project's course accounts.
	ListCourseAccounts(ctx context.Context, projectUUID string) ([]CourseAccount, error)

	// GetOffering retrieves the offering's component schema and plugin
	// options.
	GetOffering(ctx context.Context, uuid string) (*OfferingDetails, error)
}
