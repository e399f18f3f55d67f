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

// Package memory provides an in-memory backend client.  It backs the
// "memory" backend type for smoke testing agent deployments without a
// real resource manager, and doubles as the scriptable backend for the
// processor test suites.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/eschercloudai/site-agent/pkg/backend"
	"github.com/eschercloudai/site-agent/pkg/components"
	coreerrors "github.com/eschercloudai/site-agent/pkg/errors"
)

// resource is the mutable backend side state for one resource.
type resource struct {
	description  string
	organization string
	parentID     string
	limits       map[string]int64
	users        map[string]bool
	userLimits   map[string]map[string]int64
	usage        backend.ResourceUsage
}

// Client is a thread safe in-memory implementation of backend.Client.
type Client struct {
	mu        sync.Mutex
	resources map[string]*resource
}

var _ backend.Client = &Client{}

// NewClient returns an empty in-memory backend.
func NewClient() *Client {
	return &Client{
		resources: map[string]*resource{},
	}
}

// Register wires the memory backend type into the driver registry.
func Register() {
	backend.Register("memory", func(settings map[string]string, mapper *components.Mapper) (backend.Driver, error) {
		return backend.NewGenericDriver("memory", NewClient(), mapper, backend.Settings{
			Prefix:         settings["prefix"],
			UseProjectSlug: settings["use_project_slug"] == "true",
		}), nil
	})
}

// SetUsage overrides the reported usage for a resource.  Test and smoke
// tooling only.
func (c *Client) SetUsage(id string, usage backend.ResourceUsage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r, ok := c.resources[id]; ok {
		r.usage = usage
	}
}

// Users returns the authorized usernames for assertions.
func (c *Client) Users(id string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.resources[id]
	if !ok {
		return nil
	}

	return sortedKeys(r.users)
}

func sortedKeys(set map[string]bool) []string {
	var out []string

	for k := range set {
		out = append(out, k)
	}

	sort.Strings(out)

	return out
}

func (c *Client) ListResources(_ context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []string

	for id := range c.resources {
		out = append(out, id)
	}

	sort.Strings(out)

	return out, nil
}

func (c *Client) GetResource(_ context.Context, id string) (*backend.ResourceInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.resources[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", coreerrors.ErrNotFound, id)
	}

	return c.info(id, r), nil
}

// info must be called with the lock held.
func (c *Client) info(id string, r *resource) *backend.ResourceInfo {
	usage := backend.ResourceUsage{}

	for user, amounts := range r.usage {
		usage[user] = map[string]float64{}

		for component, amount := range amounts {
			usage[user][component] = amount
		}
	}

	limits := map[string]int64{}

	for component, amount := range r.limits {
		limits[component] = amount
	}

	return &backend.ResourceInfo{
		BackendID:   id,
		Description: r.description,
		Users:       sortedKeys(r.users),
		Usage:       usage,
		Limits:      limits,
		ParentID:    r.parentID,
	}
}

func (c *Client) CreateResource(_ context.Context, name, description, organization, parentID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.resources[name]; ok {
		return "", fmt.Errorf("%w: %s", coreerrors.ErrAlreadyExists, name)
	}

	c.resources[name] = &resource{
		description:  description,
		organization: organization,
		parentID:     parentID,
		limits:       map[string]int64{},
		users:        map[string]bool{},
		userLimits:   map[string]map[string]int64{},
		usage:        backend.ResourceUsage{},
	}

	return name, nil
}

func (c *Client) DeleteResource(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Deleting a missing resource is an idempotent no-op.
	delete(c.resources, id)

	return nil
}

func (c *Client) SetResourceLimits(_ context.Context, id string, limits map[string]int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.resources[id]
	if !ok {
		return fmt.Errorf("%w: %s", coreerrors.ErrNotFound, id)
	}

	r.limits = map[string]int64{}

	for component, amount := range limits {
		r.limits[component] = amount
	}

	return nil
}

func (c *Client) GetResourceLimits(_ context.Context, id string) (map[string]int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.resources[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", coreerrors.ErrNotFound, id)
	}

	out := map[string]int64{}

	for component, amount := range r.limits {
		out[component] = amount
	}

	return out, nil
}

func (c *Client) GetResourceUserLimits(_ context.Context, id string) (map[string]map[string]int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.resources[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", coreerrors.ErrNotFound, id)
	}

	out := map[string]map[string]int64{}

	for user, limits := range r.userLimits {
		out[user] = map[string]int64{}

		for component, amount := range limits {
			out[user][component] = amount
		}
	}

	return out, nil
}

func (c *Client) SetResourceUserLimits(_ context.Context, id, username string, limits map[string]int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.resources[id]
	if !ok {
		return fmt.Errorf("%w: %s", coreerrors.ErrNotFound, id)
	}

	if len(limits) == 0 {
		delete(r.userLimits, username)

		return nil
	}

	r.userLimits[username] = map[string]int64{}

	for component, amount := range limits {
		r.userLimits[username][component] = amount
	}

	return nil
}

func (c *Client) GetAssociation(_ context.Context, username, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.resources[id]
	if !ok {
		return false, nil
	}

	return r.users[username], nil
}

func (c *Client) CreateAssociation(_ context.Context, username, id, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.resources[id]
	if !ok {
		return fmt.Errorf("%w: %s", coreerrors.ErrNotFound, id)
	}

	// Adding an existing association is an idempotent no-op.
	r.users[username] = true

	return nil
}

func (c *Client) DeleteAssociation(_ context.Context, username, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.resources[id]
	if !ok {
		return nil
	}

	delete(r.users, username)

	return nil
}

func (c *Client) GetUsageReport(_ context.Context, ids []string) (map[string]backend.ResourceUsage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := map[string]backend.ResourceUsage{}

	for _, id := range ids {
		r, ok := c.resources[id]
		if !ok {
			continue
		}

		out[id] = c.info(id, r).Usage
	}

	return out, nil
}

func (c *Client) ListResourceUsers(_ context.Context, id string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.resources[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", coreerrors.ErrNotFound, id)
	}

	return sortedKeys(r.users), nil
}
