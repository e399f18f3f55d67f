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

// Package events delivers marketplace push notifications to the
// supervisor.  The control plane publishes one topic per offering; each
// message names the object that changed so the supervisor can dispatch
// a targeted reconciliation instead of a full pass.
package events

import (
	"context"
)

// Marketplace event types.
const (
	TypeOrderCreated    = "order-created"
	TypeResourceUpdated = "resource-updated"
	TypeUserRoleChanged = "user-role-changed"
	TypeProjectUserSync = "project-user-sync"
)

// Event is one marketplace notification.
type Event struct {
	// Type discriminates the payload.
	Type string `json:"event_type"`

	// OrderUUID accompanies order-created.
	OrderUUID string `json:"order_uuid,omitempty"`

	// ResourceUUID accompanies resource-updated.
	ResourceUUID string `json:"resource_uuid,omitempty"`

	// ProjectUUID accompanies user-role-changed and project-user-sync.
	ProjectUUID string `json:"project_uuid,omitempty"`

	// UserUUID accompanies user-role-changed.
	UserUUID string `json:"user_uuid,omitempty"`

	// Granted is true for a role grant, false for a revocation.
	Granted bool `json:"granted,omitempty"`
}

// Handler consumes events for one offering.  Handlers are invoked
// sequentially per subscription and must honor the context.
type Handler func(ctx context.Context, event *Event)

// Subscriber is a source of marketplace events.
type Subscriber interface {
	// Subscribe starts delivering the offering's events to the handler
	// until the context is cancelled.
	Subscribe(ctx context.Context, offeringUUID string, handler Handler) error

	// Close tears down the underlying connection.
	Close()
}
