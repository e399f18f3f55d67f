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

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// OrderType is the kind of mutation an order requests.
type OrderType string

const (
	OrderTypeCreate    OrderType = "Create"
	OrderTypeUpdate    OrderType = "Update"
	OrderTypeTerminate OrderType = "Terminate"
)

// OrderState is the order lifecycle state.
type OrderState string

const (
	OrderStatePendingProvider OrderState = "pending-provider"
	OrderStateExecuting       OrderState = "executing"
	OrderStateDone            OrderState = "done"
	OrderStateErred           OrderState = "erred"
	OrderStateRejected        OrderState = "rejected"
)

// ResourceState is the marketplace resource lifecycle state.
type ResourceState string

const (
	ResourceStateCreating    ResourceState = "Creating"
	ResourceStateOK          ResourceState = "OK"
	ResourceStateUpdating    ResourceState = "Updating"
	ResourceStateErred       ResourceState = "Erred"
	ResourceStateTerminating ResourceState = "Terminating"
	ResourceStateTerminated  ResourceState = "Terminated"
)

// OfferingUserState is the lifecycle state of a marketplace user's binding
// to an offering.  The username is empty exactly while the state is one of
// the requested/pending/creating states.
type OfferingUserState string

const (
	OfferingUserStateRequested         OfferingUserState = "requested"
	OfferingUserStatePendingLinking    OfferingUserState = "pending_account_linking"
	OfferingUserStatePendingValidation OfferingUserState = "pending_additional_validation"
	OfferingUserStateCreating          OfferingUserState = "creating"
	OfferingUserStateOK                OfferingUserState = "ok"
	OfferingUserStateDeleted           OfferingUserState = "deleted"
)

// Amount is a usage quantity.  The marketplace encodes these as decimal
// strings on the wire but tolerates raw numbers, so decoding accepts both.
type Amount float64

// MarshalJSON implements json.Marshaler.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatFloat(float64(a), 'f', 2, 64))
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var raw any

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch t := raw.(type) {
	case string:
		value, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return fmt.Errorf("malformed amount %q: %w", t, err)
		}

		*a = Amount(value)
	case float64:
		*a = Amount(t)
	default:
		return fmt.Errorf("malformed amount of type %T", raw)
	}

	return nil
}

// Order is a control plane work item mutating a resource.
type Order struct {
	UUID         string     `json:"uuid"`
	Type         OrderType  `json:"type"`
	State        OrderState `json:"state"`
	OfferingUUID string     `json:"offering_uuid"`

	// ResourceUUID may be transiently blank on freshly approved create
	// orders and must be polled until populated.
	ResourceUUID string `json:"marketplace_resource_uuid"`

	ProjectUUID  string `json:"project_uuid"`
	CustomerUUID string `json:"customer_uuid"`

	// Limits carries the requested limits for create and update orders.
	Limits map[string]int64 `json:"limits,omitempty"`

	// Attributes is an opaque bag; old_limits appears here on updates
	// and is only ever read for logging.
	Attributes map[string]any `json:"attributes,omitempty"`

	ErrorMessage   string `json:"error_message,omitempty"`
	ErrorTraceback string `json:"error_traceback,omitempty"`
}

// Resource is the marketplace's view of a provisioned allocation.
type Resource struct {
	UUID      string        `json:"uuid"`
	Name      string        `json:"name"`
	BackendID string        `json:"backend_id"`
	State     ResourceState `json:"state"`

	Limits map[string]int64 `json:"limits,omitempty"`

	// UserLimits holds per-user limit overrides keyed by site username.
	// An absent entry means the user follows the resource limits.
	UserLimits map[string]map[string]int64 `json:"user_limits,omitempty"`

	Downscaled           bool `json:"downscaled"`
	Paused               bool `json:"paused"`
	RestrictMemberAccess bool `json:"restrict_member_access"`

	ProjectUUID  string `json:"project_uuid"`
	CustomerUUID string `json:"customer_uuid"`

	// Slugs are used for backend id generation.
	Slug         string `json:"slug,omitempty"`
	ProjectSlug  string `json:"project_slug,omitempty"`
	CustomerSlug string `json:"customer_slug,omitempty"`

	BackendMetadata map[string]any `json:"backend_metadata,omitempty"`
}

// OfferingUser binds a marketplace user to a site local username for one
// offering.
type OfferingUser struct {
	UUID     string            `json:"uuid"`
	UserUUID string            `json:"user_uuid"`
	Username string            `json:"username"`
	State    OfferingUserState `json:"state"`

	Comment    string `json:"comment,omitempty"`
	CommentURL string `json:"comment_url,omitempty"`
}

// Active reports whether this binding may be materialized on a backend.
func (u *OfferingUser) Active() bool {
	return u.Username != "" && (u.State == OfferingUserStateOK || u.State == OfferingUserStateRequested)
}

// TeamMember is a project team membership entry.
type TeamMember struct {
	UUID     string `json:"uuid"`
	Username string `json:"username"`
	FullName string `json:"full_name,omitempty"`
	Email    string `json:"email,omitempty"`
}

// ComponentUsage is one submitted usage record for a (resource, component,
// billing period) tuple.
type ComponentUsage struct {
	UUID         string    `json:"uuid"`
	ResourceUUID string    `json:"resource_uuid"`
	Type         string    `json:"type"`
	Usage        Amount    `json:"usage"`
	PeriodStart  time.Time `json:"billing_period"`
}

// UsageItem is one component amount within a batched usage submission.
type UsageItem struct {
	Type   string `json:"type"`
	Amount Amount `json:"amount"`
}

// UserUsage is a per-user share of a component usage record.
type UserUsage struct {
	UUID     string `json:"uuid"`
	Username string `json:"username"`
	UserUUID string `json:"user_uuid,omitempty"`
	Usage    Amount `json:"usage"`
}

// ServiceAccount is a non-human project account, e.g. an instrument feed.
type ServiceAccount struct {
	UUID     string `json:"uuid"`
	Username string `json:"username"`
	State    string `json:"state,omitempty"`
}

// CourseAccount is a teaching account provisioned for a project.
type CourseAccount struct {
	UUID     string `json:"uuid"`
	Username string `json:"username"`
}

// OfferingDetails is the offering's component schema and plugin options,
// notably the username generation policy.
type OfferingDetails struct {
	UUID          string         `json:"uuid"`
	Name          string         `json:"name"`
	Components    []ComponentDef `json:"components,omitempty"`
	PluginOptions map[string]any `json:"plugin_options,omitempty"`
}

// ComponentDef is the marketplace side component declaration.
type ComponentDef struct {
	Type         string `json:"type"`
	Name         string `json:"name"`
	MeasuredUnit string `json:"measured_unit,omitempty"`
}

// OrderFilter selects orders when listing.
type OrderFilter struct {
	OfferingUUID string
	States       []OrderState
}

// ResourceFilter selects resources when listing.
type ResourceFilter struct {
	OfferingUUID string
	States       []ResourceState
}

// OfferingUserFilter selects offering users when listing.
type OfferingUserFilter struct {
	OfferingUUID string
	Username     string
	UserUUID     string
	States       []OfferingUserState
}

// OfferingUserPatch is a partial update of an offering user.  Nil fields
// are left untouched.
type OfferingUserPatch struct {
	Username   *string            `json:"username,omitempty"`
	State      *OfferingUserState `json:"state,omitempty"`
	Comment    *string            `json:"comment,omitempty"`
	CommentURL *string            `json:"comment_url,omitempty"`
}
