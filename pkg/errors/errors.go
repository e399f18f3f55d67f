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

// Package errors defines the failure taxonomy shared by the marketplace
// client and backend drivers.  Processors branch on the kind, never on
// concrete driver or transport errors.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrTransient is raised for network failures, 5xx responses and
	// timeouts.  Callers retry these within their per-operation budget.
	ErrTransient = errors.New("transient failure")

	// ErrPermanent is raised for 4xx class failures that aren't not-found.
	// The affected order or resource is marked erred.
	ErrPermanent = errors.New("permanent failure")

	// ErrNotFound is raised when a resource, user or order is absent.
	// Deletes and removals treat this as a no-op, reads as a pull miss.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is raised on create conflicts.  Creation treats
	// this as success and recovers the existing identifier.
	ErrAlreadyExists = errors.New("already exists")

	// ErrCollision is raised when backend id generation exhausts its
	// suffix budget.
	ErrCollision = errors.New("backend id collision")

	// ErrConfiguration is raised for missing or malformed settings and
	// is fatal at construction time.
	ErrConfiguration = errors.New("configuration error")

	// ErrUsageAnomaly is raised when a new usage total undercuts the
	// total already recorded for the billing period.  Never retried.
	ErrUsageAnomaly = errors.New("usage anomaly")
)

// Transient wraps an error as retryable.
func Transient(err error) error {
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// Permanent wraps an error as non-retryable.
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// IsTransient reports whether the error is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsPermanent reports whether the error will never succeed on retry.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

// IsNotFound reports whether the error is an absence.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists reports whether the error is a create conflict.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}
