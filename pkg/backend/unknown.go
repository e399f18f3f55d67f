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

package backend

import (
	"context"
)

// UnknownClient is a null Client for drivers that don't need every
// capability, e.g. reporting-only backends.  Every operation succeeds
// with a safe zero value rather than an error so callers don't need to
// special case unsupported capabilities.
type UnknownClient struct{}

var _ Client = &UnknownClient{}

func (c *UnknownClient) ListResources(_ context.Context) ([]string, error) {
	return nil, nil
}

func (c *UnknownClient) GetResource(_ context.Context, _ string) (*ResourceInfo, error) {
	return nil, nil
}

func (c *UnknownClient) CreateResource(_ context.Context, name, _, _, _ string) (string, error) {
	return name, nil
}

func (c *UnknownClient) DeleteResource(_ context.Context, _ string) error {
	return nil
}

func (c *UnknownClient) SetResourceLimits(_ context.Context, _ string, _ map[string]int64) error {
	return nil
}

func (c *UnknownClient) GetResourceLimits(_ context.Context, _ string) (map[string]int64, error) {
	return map[string]int64{}, nil
}

func (c *UnknownClient) GetResourceUserLimits(_ context.Context, _ string) (map[string]map[string]int64, error) {
	return map[string]map[string]int64{}, nil
}

func (c *UnknownClient) SetResourceUserLimits(_ context.Context, _, _ string, _ map[string]int64) error {
	return nil
}

func (c *UnknownClient) GetAssociation(_ context.Context, _, _ string) (bool, error) {
	return false, nil
}

func (c *UnknownClient) CreateAssociation(_ context.Context, _, _, _ string) error {
	return nil
}

func (c *UnknownClient) DeleteAssociation(_ context.Context, _, _ string) error {
	return nil
}

func (c *UnknownClient) GetUsageReport(_ context.Context, _ []string) (map[string]ResourceUsage, error) {
	return map[string]ResourceUsage{}, nil
}

func (c *UnknownClient) ListResourceUsers(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}
