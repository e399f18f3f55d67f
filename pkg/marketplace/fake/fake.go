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

// Package fake provides an in-memory marketplace client for tests.  It
// counts calls per operation so tests can assert the per-cycle cache
// invariants, and can inject one-shot failures per operation.
package fake

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	coreerrors "github.com/eschercloudai/site-agent/pkg/errors"
	"github.com/eschercloudai/site-agent/pkg/marketplace"
)

// Client is an in-memory implementation of marketplace.Client.
type Client struct {
	mu sync.Mutex

	Orders        map[string]*marketplace.Order
	Resources     map[string]*marketplace.Resource
	OfferingUsers map[string]*marketplace.OfferingUser

	// Teams is keyed by resource UUID as that's what the API serves.
	Teams map[string][]marketplace.TeamMember

	// Usages is keyed by resource UUID.
	Usages map[string][]marketplace.ComponentUsage

	// UserUsages is keyed by component usage UUID.
	UserUsages map[string][]marketplace.UserUsage

	ServiceAccounts map[string][]marketplace.ServiceAccount
	CourseAccounts  map[string][]marketplace.CourseAccount

	Offering *marketplace.OfferingDetails

	// Period is stamped onto usage records created via SetUsage.
	Period time.Time

	// LastSync records RefreshResourceLastSync calls per resource.
	LastSync map[string]int

	calls  map[string]int
	errors map[string]error
}

var _ marketplace.Client = &Client{}

// New returns an empty fake.
func New() *Client {
	return &Client{
		Orders:          map[string]*marketplace.Order{},
		Resources:       map[string]*marketplace.Resource{},
		OfferingUsers:   map[string]*marketplace.OfferingUser{},
		Teams:           map[string][]marketplace.TeamMember{},
		Usages:          map[string][]marketplace.ComponentUsage{},
		UserUsages:      map[string][]marketplace.UserUsage{},
		ServiceAccounts: map[string][]marketplace.ServiceAccount{},
		CourseAccounts:  map[string][]marketplace.CourseAccount{},
		LastSync:        map[string]int{},
		calls:           map[string]int{},
		errors:          map[string]error{},
	}
}

// Calls returns how many times the named operation ran.
func (c *Client) Calls(operation string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.calls[operation]
}

// FailWith makes the named operation return the error until cleared.
func (c *Client) FailWith(operation string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.errors[operation] = err
}

// ClearFailure removes an injected failure.
func (c *Client) ClearFailure(operation string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.errors, operation)
}

// record must be called with the lock held.
func (c *Client) record(operation string) error {
	c.calls[operation]++

	if err := c.errors[operation]; err != nil {
		return err
	}

	return nil
}

func (c *Client) ListOrders(_ context.Context, filter *marketplace.OrderFilter) ([]marketplace.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.record("ListOrders"); err != nil {
		return nil, err
	}

	var out []marketplace.Order

	for _, order := range c.Orders {
		if filter != nil {
			if filter.OfferingUUID != "" && order.OfferingUUID != filter.OfferingUUID {
				continue
			}

			if len(filter.States) != 0 && !containsOrderState(filter.States, order.State) {
				continue
			}
		}

		out = append(out, *order)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].UUID < out[j].UUID })

	return out, nil
}

func containsOrderState(states []marketplace.OrderState, state marketplace.OrderState) bool {
	for _, s := range states {
		if s == state {
			return true
		}
	}

	return false
}

func (c *Client) GetOrder(_ context.Context, uuid string) (*marketplace.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.record("GetOrder"); err != nil {
		return nil, err
	}

	order, ok := c.Orders[uuid]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", coreerrors.ErrNotFound, uuid)
	}

	out := *order

	return &out, nil
}

func (c *Client) ApproveOrderByProvider(_ context.Context, uuid string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.record("ApproveOrderByProvider"); err != nil {
		return err
	}

	if order, ok := c.Orders[uuid]; ok {
		order.State = marketplace.OrderStateExecuting
	}

	return nil
}

func (c *Client) RejectOrderByProvider(_ context.Context, uuid string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.record("RejectOrderByProvider"); err != nil {
		return err
	}

	if order, ok := c.Orders[uuid]; ok {
		order.State = marketplace.OrderStateRejected
	}

	return nil
}

func (c *Client) SetOrderStateDone(_ context.Context, uuid string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.record("SetOrderStateDone"); err != nil {
		return err
	}

	if order, ok := c.Orders[uuid]; ok {
		order.State = marketplace.OrderStateDone
	}

	return nil
}

func (c *Client) SetOrderStateErred(_ context.Context, uuid, message, traceback string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.record("SetOrderStateErred"); err != nil {
		return err
	}

	if order, ok := c.Orders[uuid]; ok {
		order.State = marketplace.OrderStateErred
		order.ErrorMessage = message
		order.ErrorTraceback = traceback
	}

	return nil
}

func (c *Client) ListResources(_ context.Context, filter *marketplace.ResourceFilter) ([]marketplace.Resource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.record("ListResources"); err != nil {
		return nil, err
	}

	var out []marketplace.Resource

	for _, resource := range c.Resources {
		if filter != nil && len(filter.States) != 0 && !containsResourceState(filter.States, resource.State) {
			continue
		}

		out = append(out, *resource)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].UUID < out[j].UUID })

	return out, nil
}

func containsResourceState(states []marketplace.ResourceState, state marketplace.ResourceState) bool {
	for _, s := range states {
		if s == state {
			return true
		}
	}

	return false
}

func (c *Client) GetResource(_ context.Context, uuid string) (*marketplace.Resource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.record("GetResource"); err != nil {
		return nil, err
	}

	resource, ok := c.Resources[uuid]
	if !ok {
		return nil, fmt.Errorf("%w: resource %s", coreerrors.ErrNotFound, uuid)
	}

	out := *resource

	return &out, nil
}

func (c *Client) SetResourceBackendID(_ context.Context, uuid, backendID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.record("SetResourceBackendID"); err != nil {
		return err
	}

	if resource, ok := c.Resources[uuid]; ok {
		resource.BackendID = backendID
	}

	return nil
}

func (c *Client) SetResourceBackendMetadata(_ context.Context, uuid string, metadata map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.record("SetResourceBackendMetadata"); err != nil {
		return err
	}

	if resource, ok := c.Resources[uuid]; ok {
		resource.BackendMetadata = metadata
	}

	return nil
}

func (c *Client) SetResourceLimits(_ context.Context, uuid string, limits map[string]int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.record("SetResourceLimits"); err != nil {
		return err
	}

	if resource, ok := c.Resources[uuid]; ok {
		resource.Limits = limits
	}

	return nil
}

func (c *Client) SetResourceAsOK(_ context.Context, uuid string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.record("SetResourceAsOK"); err != nil {
		return err
	}

	if resource, ok := c.Resources[uuid]; ok {
		resource.State = marketplace.ResourceStateOK
	}

	return nil
}

func (c *Client) SetResourceAsErred(_ context.Context, uuid, message, traceback string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.record("SetResourceAsErred"); err != nil {
		return err
	}

	if resource, ok := c.Resources[uuid]; ok {
		resource.State = marketplace.ResourceStateErred
	}

	return nil
}

func (c *Client) RefreshResourceLastSync(_ context.Context, uuid string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.record("RefreshResourceLastSync"); err != nil {
		return err
	}

	c.LastSync[uuid]++

	return nil
}

func (c *Client) ResourceTeam(_ context.Context, uuid string) ([]marketplace.TeamMember, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.record("ResourceTeam"); err != nil {
		return nil, err
	}

	return append([]marketplace.TeamMember{}, c.Teams[uuid]...), nil
}

func (c *Client) ListOfferingUsers(_ context.Context, filter *marketplace.OfferingUserFilter) ([]marketplace.OfferingUser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.record("ListOfferingUsers"); err != nil {
		return nil, err
	}

	var out []marketplace.OfferingUser

	for _, user := range c.OfferingUsers {
		if filter != nil {
			if filter.Username != "" && user.Username != filter.Username {
				continue
			}

			if filter.UserUUID != "" && user.UserUUID != filter.UserUUID {
				continue
			}

			if len(filter.States) != 0 && !containsUserState(filter.States, user.State) {
				continue
			}
		}

		out = append(out, *user)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].UUID < out[j].UUID })

	return out, nil
}

func containsUserState(states []marketplace.OfferingUserState, state marketplace.OfferingUserState) bool {
	for _, s := range states {
		if s == state {
			return true
		}
	}

	return false
}

func (c *Client) PatchOfferingUser(_ context.Context, uuid string, patch *marketplace.OfferingUserPatch) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.record("PatchOfferingUser"); err != nil {
		return err
	}

	user, ok := c.OfferingUsers[uuid]
	if !ok {
		return fmt.Errorf("%w: offering user %s", coreerrors.ErrNotFound, uuid)
	}

	if patch.Username != nil {
		user.Username = *patch.Username
	}

	if patch.State != nil {
		user.State = *patch.State
	}

	if patch.Comment != nil {
		user.Comment = *patch.Comment
	}

	if patch.CommentURL != nil {
		user.CommentURL = *patch.CommentURL
	}

	return nil
}

func (c *Client) BeginCreatingOfferingUser(_ context.Context, uuid string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.record("BeginCreatingOfferingUser"); err != nil {
		return err
	}

	if user, ok := c.OfferingUsers[uuid]; ok {
		user.State = marketplace.OfferingUserStateCreating
	}

	return nil
}

func (c *Client) SetOfferingUserOK(_ context.Context, uuid, username string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.record("SetOfferingUserOK"); err != nil {
		return err
	}

	if user, ok := c.OfferingUsers[uuid]; ok {
		user.State = marketplace.OfferingUserStateOK
		user.Username = username
	}

	return nil
}

func (c *Client) SetOfferingUserPendingAccountLinking(_ context.Context, uuid, comment, commentURL string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.record("SetOfferingUserPendingAccountLinking"); err != nil {
		return err
	}

	if user, ok := c.OfferingUsers[uuid]; ok {
		user.State = marketplace.OfferingUserStatePendingLinking
		user.Comment = comment
		user.CommentURL = commentURL
	}

	return nil
}

func (c *Client) SetOfferingUserPendingAdditionalValidation(_ context.Context, uuid, comment, commentURL string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.record("SetOfferingUserPendingAdditionalValidation"); err != nil {
		return err
	}

	if user, ok := c.OfferingUsers[uuid]; ok {
		user.State = marketplace.OfferingUserStatePendingValidation
		user.Comment = comment
		user.CommentURL = commentURL
	}

	return nil
}

func (c *Client) ListComponentUsages(_ context.Context, resourceUUID string, period time.Time) ([]marketplace.ComponentUsage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.record("ListComponentUsages"); err != nil {
		return nil, err
	}

	var out []marketplace.ComponentUsage

	for _, usage := range c.Usages[resourceUUID] {
		if usage.PeriodStart.Year() == period.Year() && usage.PeriodStart.Month() == period.Month() {
			out = append(out, usage)
		}
	}

	return out, nil
}

func (c *Client) SetUsage(_ context.Context, resourceUUID string, items []marketplace.UsageItem) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.record("SetUsage"); err != nil {
		return err
	}

	for _, item := range items {
		replaced := false

		for i := range c.Usages[resourceUUID] {
			usage := &c.Usages[resourceUUID][i]

			if usage.Type == item.Type && usage.PeriodStart.Equal(c.Period) {
				usage.Usage = item.Amount
				replaced = true

				break
			}
		}

		if !replaced {
			c.Usages[resourceUUID] = append(c.Usages[resourceUUID], marketplace.ComponentUsage{
				UUID:         fmt.Sprintf("usage-%s-%s", resourceUUID, item.Type),
				ResourceUUID: resourceUUID,
				Type:         item.Type,
				Usage:        item.Amount,
				PeriodStart:  c.Period,
			})
		}
	}

	return nil
}

func (c *Client) SetUserUsage(_ context.Context, componentUsageUUID, username, userUUID string, amount marketplace.Amount) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.record("SetUserUsage"); err != nil {
		return err
	}

	c.UserUsages[componentUsageUUID] = append(c.UserUsages[componentUsageUUID], marketplace.UserUsage{
		UUID:     fmt.Sprintf("user-usage-%s-%s", componentUsageUUID, username),
		Username: username,
		UserUUID: userUUID,
		Usage:    amount,
	})

	return nil
}

func (c *Client) ListUserUsages(_ context.Context, componentUsageUUID string) ([]marketplace.UserUsage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.record("ListUserUsages"); err != nil {
		return nil, err
	}

	return append([]marketplace.UserUsage{}, c.UserUsages[componentUsageUUID]...), nil
}

func (c *Client) ListServiceAccounts(_ context.Context, projectUUID string) ([]marketplace.ServiceAccount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.record("ListServiceAccounts"); err != nil {
		return nil, err
	}

	return append([]marketplace.ServiceAccount{}, c.ServiceAccounts[projectUUID]...), nil
}

func (c *Client) ListCourseAccounts(_ context.Context, projectUUID string) ([]marketplace.CourseAccount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.record("ListCourseAccounts"); err != nil {
		return nil, err
	}

	return append([]marketplace.CourseAccount{}, c.CourseAccounts[projectUUID]...), nil
}

func (c *Client) GetOffering(_ context.Context, uuid string) (*marketplace.OfferingDetails, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.record("GetOffering"); err != nil {
		return nil, err
	}

	if c.Offering == nil {
		return nil, fmt.Errorf("%w: offering %s", coreerrors.ErrNotFound, uuid)
	}

	out := *c.Offering

	return &out, nil
}
