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
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	"github.com/hashicorp/go-multierror"

	"github.com/eschercloudai/site-agent/pkg/components"
	coreerrors "github.com/eschercloudai/site-agent/pkg/errors"
	"github.com/eschercloudai/site-agent/pkg/marketplace"
)

// collisionBudget is how many numeric suffixes to try before giving up
// on backend id generation.
const collisionBudget = 10

// Rollback undoes an external side effect after a later pipeline phase
// fails.
type Rollback func(ctx context.Context) error

// CreatePipeline decomposes resource creation into three phases.  Drivers
// supply whichever phases they need; unset phases fall back to sensible
// defaults driven by the Client.  Side effects of earlier phases are
// rolled back when a later phase fails.
type CreatePipeline struct {
	// PreCreate performs external side effects before the resource
	// exists, e.g. creating a parent account or provisioning an IAM
	// group.  It returns a rollback for those side effects.
	PreCreate func(ctx context.Context, resource *marketplace.Resource, users *UserContext) (Rollback, error)

	// CreateInBackend creates the resource under the generated name.
	// It must be idempotent given that name and return the backend id.
	CreateInBackend func(ctx context.Context, name, description string, resource *marketplace.Resource) (string, error)

	// SetupLimits applies the initial limits, already converted to
	// backend units.
	SetupLimits func(ctx context.Context, backendID string, limits map[string]int64) error
}

// Hooks are optional driver behaviours with safe defaults: operational
// state changes default to no-ops, pending order evaluation defaults to
// acceptance.
type Hooks struct {
	Downscale            func(ctx context.Context, backendID string) error
	Pause                func(ctx context.Context, backendID string) error
	Restore              func(ctx context.Context, backendID string) error
	Metadata             func(ctx context.Context, backendID string) (map[string]any, error)
	EvaluatePendingOrder func(ctx context.Context, order *marketplace.Order, client marketplace.Client) (Verdict, error)

	// PostDelete runs after resource deletion, e.g. to remove a parent
	// object once its last child is gone.
	PostDelete func(ctx context.Context, resource *marketplace.Resource) error
}

// Settings is the generic driver configuration shared by all backends.
type Settings struct {
	// Prefix is prepended to generated backend ids, e.g. "alloc_".
	Prefix string

	// UseProjectSlug selects the project slug over the resource slug
	// for backend id generation.
	UseProjectSlug bool

	// DefaultAccount optionally marks new associations as the user's
	// default account.
	DefaultAccount string
}

// GenericDriver implements Driver on top of a Client, a component mapper
// and the optional pipeline and hooks.  Concrete drivers are expected to
// compose this rather than implement Driver from scratch.
type GenericDriver struct {
	name     string
	client   Client
	mapper   *components.Mapper
	settings Settings
	pipeline CreatePipeline
	hooks    Hooks
}

var _ Driver = &GenericDriver{}

// NewGenericDriver returns a driver over the client.  The name is the
// backend type, used for logging and diagnostics only.
func NewGenericDriver(name string, client Client, mapper *components.Mapper, settings Settings) *GenericDriver {
	return &GenericDriver{
		name:     name,
		client:   client,
		mapper:   mapper,
		settings: settings,
	}
}

// WithPipeline overrides creation phases.
func (d *GenericDriver) WithPipeline(pipeline CreatePipeline) *GenericDriver {
	d.pipeline = pipeline
	return d
}

// WithHooks overrides optional behaviours.
func (d *GenericDriver) WithHooks(hooks Hooks) *GenericDriver {
	d.hooks = hooks
	return d
}

// Client exposes the low level client, e.g. for diagnostics commands.
func (d *GenericDriver) Client() Client {
	return d.client
}

// Ping implements the Driver interface.
func (d *GenericDriver) Ping(ctx context.Context) error {
	if _, err := d.client.ListResources(ctx); err != nil {
		return fmt.Errorf("backend %s unreachable: %w", d.name, err)
	}

	return nil
}

// Diagnostics implements the Driver interface.
func (d *GenericDriver) Diagnostics(ctx context.Context) (string, error) {
	ids, err := d.client.ListResources(ctx)
	if err != nil {
		return "", err
	}

	report := &strings.Builder{}

	fmt.Fprintf(report, "backend: %s\n", d.name)
	fmt.Fprintf(report, "prefix: %s\n", d.settings.Prefix)
	fmt.Fprintf(report, "components: %s\n", strings.Join(d.ListComponents(), ", "))
	fmt.Fprintf(report, "resources: %d\n", len(ids))

	return report.String(), nil
}

// ListComponents implements the Driver interface.
func (d *GenericDriver) ListComponents() []string {
	var out []string

	for _, component := range d.mapper.Components() {
		if len(component.Targets) == 0 {
			out = append(out, component.Name)
			continue
		}

		for _, target := range component.Targets {
			out = append(out, target.Name)
		}
	}

	return out
}

// sanitizeBackendID reduces a slug to the character class backends
// commonly accept.
func sanitizeBackendID(s string) string {
	var out strings.Builder

	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			out.WriteRune(r)
		default:
			out.WriteRune('-')
		}
	}

	return out.String()
}

// slug picks the name generation source for a resource.
func (d *GenericDriver) slug(resource *marketplace.Resource) string {
	if d.settings.UseProjectSlug && resource.ProjectSlug != "" {
		return resource.ProjectSlug
	}

	if resource.Slug != "" {
		return resource.Slug
	}

	return resource.UUID
}

// description annotates backend resources with their marketplace
// identity so ownership can be recovered.
func description(resource *marketplace.Resource) string {
	return fmt.Sprintf("%s (%s)", resource.Name, resource.UUID)
}

// owns reports whether the existing backend resource belongs to the
// marketplace resource.
func owns(info *ResourceInfo, resource *marketplace.Resource) bool {
	return strings.Contains(info.Description, resource.UUID)
}

// generateBackendID finds a free, or already owned, backend id.  On
// collision with a foreign resource a numeric suffix is appended, up to
// the collision budget.
func (d *GenericDriver) generateBackendID(ctx context.Context, resource *marketplace.Resource) (string, bool, error) {
	base := d.settings.Prefix + sanitizeBackendID(d.slug(resource))

	for i := 0; i <= collisionBudget; i++ {
		candidate := base

		if i > 0 {
			candidate = fmt.Sprintf("%s-%d", base, i)
		}

		existing, err := d.client.GetResource(ctx, candidate)
		if err != nil {
			if coreerrors.IsNotFound(err) {
				return candidate, false, nil
			}

			return "", false, err
		}

		if existing == nil {
			return candidate, false, nil
		}

		if owns(existing, resource) {
			return candidate, true, nil
		}
	}

	return "", false, fmt.Errorf("%w: no free name derived from %s", coreerrors.ErrCollision, base)
}

// CreateResource implements the Driver interface.  Creation runs the
// three phase pipeline; side effects of completed phases are rolled back
// if a later phase fails.
func (d *GenericDriver) CreateResource(ctx context.Context, resource *marketplace.Resource, users *UserContext) (*ResourceInfo, error) {
	log := logr.FromContextOrDiscard(ctx)

	name, exists, err := d.generateBackendID(ctx, resource)
	if err != nil {
		return nil, err
	}

	if exists {
		log.Info("backend resource already present", "backend_id", name)

		return d.pull(ctx, name)
	}

	var rollback Rollback

	if d.pipeline.PreCreate != nil {
		rollback, err = d.pipeline.PreCreate(ctx, resource, users)
		if err != nil {
			return nil, fmt.Errorf("pre-create failed: %w", err)
		}
	}

	undo := func(ctx context.Context, cause error) error {
		if rollback == nil {
			return cause
		}

		if err := rollback(ctx); err != nil {
			log.Error(err, "rollback failed", "backend_id", name)
		}

		return cause
	}

	backendID, err := d.createInBackend(ctx, name, resource)
	if err != nil {
		return nil, undo(ctx, fmt.Errorf("create failed: %w", err))
	}

	if err := d.setupLimits(ctx, backendID, resource.Limits); err != nil {
		// The backend resource itself is part of the transaction.
		if deleteErr := d.client.DeleteResource(ctx, backendID); deleteErr != nil && !coreerrors.IsNotFound(deleteErr) {
			log.Error(deleteErr, "orphaned backend resource", "backend_id", backendID)
		}

		return nil, undo(ctx, fmt.Errorf("limit setup failed: %w", err))
	}

	log.Info("backend resource created", "backend_id", backendID)

	info, err := d.pull(ctx, backendID)
	if err != nil {
		return nil, err
	}

	if info == nil {
		// Clients without a read capability still yield the identifier.
		info = &ResourceInfo{
			BackendID: backendID,
			Usage:     ResourceUsage{TotalAccountUsage: map[string]float64{}},
		}
	}

	return info, nil
}

func (d *GenericDriver) createInBackend(ctx context.Context, name string, resource *marketplace.Resource) (string, error) {
	if d.pipeline.CreateInBackend != nil {
		return d.pipeline.CreateInBackend(ctx, name, description(resource), resource)
	}

	backendID, err := d.client.CreateResource(ctx, name, description(resource), resource.CustomerSlug, "")
	if err != nil {
		if coreerrors.IsAlreadyExists(err) {
			return name, nil
		}

		return "", err
	}

	return backendID, nil
}

func (d *GenericDriver) setupLimits(ctx context.Context, backendID string, limits map[string]int64) error {
	converted := d.mapper.ConvertLimitsToBackend(limits)

	if len(converted) == 0 {
		return nil
	}

	if d.pipeline.SetupLimits != nil {
		return d.pipeline.SetupLimits(ctx, backendID, converted)
	}

	return d.client.SetResourceLimits(ctx, backendID, converted)
}

// DeleteResource implements the Driver interface.
func (d *GenericDriver) DeleteResource(ctx context.Context, resource *marketplace.Resource) error {
	if resource.BackendID == "" {
		return nil
	}

	if err := d.client.DeleteResource(ctx, resource.BackendID); err != nil && !coreerrors.IsNotFound(err) {
		return err
	}

	if d.hooks.PostDelete != nil {
		return d.hooks.PostDelete(ctx, resource)
	}

	return nil
}

// pull assembles the complete view of a backend resource, guaranteeing
// the usage total key is present.
func (d *GenericDriver) pull(ctx context.Context, backendID string) (*ResourceInfo, error) {
	info, err := d.client.GetResource(ctx, backendID)
	if err != nil {
		if coreerrors.IsNotFound(err) {
			return nil, nil
		}

		return nil, err
	}

	if info == nil {
		return nil, nil
	}

	if users, err := d.client.ListResourceUsers(ctx, backendID); err == nil && users != nil {
		info.Users = users
	}

	if limits, err := d.client.GetResourceLimits(ctx, backendID); err == nil && len(limits) != 0 {
		info.Limits = limits
	}

	if info.Usage == nil {
		info.Usage = ResourceUsage{}
	}

	if _, ok := info.Usage[TotalAccountUsage]; !ok {
		report, err := d.client.GetUsageReport(ctx, []string{backendID})
		if err == nil {
			if usage, ok := report[backendID]; ok {
				info.Usage = usage
			}
		}
	}

	if _, ok := info.Usage[TotalAccountUsage]; !ok {
		info.Usage[TotalAccountUsage] = map[string]float64{}
	}

	return info, nil
}

// PullResource implements the Driver interface.
func (d *GenericDriver) PullResource(ctx context.Context, resource *marketplace.Resource) (*ResourceInfo, error) {
	if resource.BackendID == "" {
		return nil, nil
	}

	return d.pull(ctx, resource.BackendID)
}

// PullResources implements the Driver interface.
func (d *GenericDriver) PullResources(ctx context.Context, resources []marketplace.Resource) (map[string]*ResourceInfo, error) {
	out := map[string]*ResourceInfo{}

	for i := range resources {
		resource := &resources[i]

		info, err := d.PullResource(ctx, resource)
		if err != nil {
			return nil, err
		}

		if info == nil {
			continue
		}

		out[resource.UUID] = info
	}

	return out, nil
}

// GetUsageReport implements the Driver interface.
func (d *GenericDriver) GetUsageReport(ctx context.Context, backendIDs []string) (map[string]ResourceUsage, error) {
	report, err := d.client.GetUsageReport(ctx, backendIDs)
	if err != nil {
		return nil, err
	}

	for _, id := range backendIDs {
		usage, ok := report[id]
		if !ok {
			usage = ResourceUsage{}
			report[id] = usage
		}

		if _, ok := usage[TotalAccountUsage]; !ok {
			usage[TotalAccountUsage] = map[string]float64{}
		}
	}

	return report, nil
}

// SetResourceLimits implements the Driver interface.
func (d *GenericDriver) SetResourceLimits(ctx context.Context, backendID string, limits map[string]int64) error {
	return d.client.SetResourceLimits(ctx, backendID, limits)
}

// AddUsersToResource implements the Driver interface.  Per-user failures
// are logged and skipped; the returned slice holds the users actually
// added.
func (d *GenericDriver) AddUsersToResource(ctx context.Context, backendID string, usernames []string) ([]string, error) {
	log := logr.FromContextOrDiscard(ctx)

	var added []string

	for _, username := range usernames {
		associated, err := d.client.GetAssociation(ctx, username, backendID)
		if err != nil && !coreerrors.IsNotFound(err) {
			log.Error(err, "association lookup failed", "backend_id", backendID, "username", username)
			continue
		}

		if associated {
			continue
		}

		if err := d.client.CreateAssociation(ctx, username, backendID, d.settings.DefaultAccount); err != nil {
			if coreerrors.IsAlreadyExists(err) {
				continue
			}

			log.Error(err, "association create failed", "backend_id", backendID, "username", username)

			continue
		}

		added = append(added, username)
	}

	return added, nil
}

// RemoveUsersFromResource implements the Driver interface.
func (d *GenericDriver) RemoveUsersFromResource(ctx context.Context, backendID string, usernames []string) error {
	var result *multierror.Error

	for _, username := range usernames {
		if err := d.client.DeleteAssociation(ctx, username, backendID); err != nil && !coreerrors.IsNotFound(err) {
			result = multierror.Append(result, fmt.Errorf("removing %s: %w", username, err))
		}
	}

	return result.ErrorOrNil()
}

// DownscaleResource implements the Driver interface.
func (d *GenericDriver) DownscaleResource(ctx context.Context, backendID string) error {
	if d.hooks.Downscale != nil {
		return d.hooks.Downscale(ctx, backendID)
	}

	return nil
}

// PauseResource implements the Driver interface.
func (d *GenericDriver) PauseResource(ctx context.Context, backendID string) error {
	if d.hooks.Pause != nil {
		return d.hooks.Pause(ctx, backendID)
	}

	return nil
}

// RestoreResource implements the Driver interface.
func (d *GenericDriver) RestoreResource(ctx context.Context, backendID string) error {
	if d.hooks.Restore != nil {
		return d.hooks.Restore(ctx, backendID)
	}

	return nil
}

// GetResourceMetadata implements the Driver interface.
func (d *GenericDriver) GetResourceMetadata(ctx context.Context, backendID string) (map[string]any, error) {
	if d.hooks.Metadata != nil {
		return d.hooks.Metadata(ctx, backendID)
	}

	return map[string]any{}, nil
}

// GetResourceUserLimits implements the Driver interface.
func (d *GenericDriver) GetResourceUserLimits(ctx context.Context, backendID string) (map[string]map[string]int64, error) {
	return d.client.GetResourceUserLimits(ctx, backendID)
}

// SetResourceUserLimits implements the Driver interface.
func (d *GenericDriver) SetResourceUserLimits(ctx context.Context, backendID, username string, limits map[string]int64) error {
	return d.client.SetResourceUserLimits(ctx, backendID, username, limits)
}

// EvaluatePendingOrder implements the Driver interface.
func (d *GenericDriver) EvaluatePendingOrder(ctx context.Context, order *marketplace.Order, client marketplace.Client) (Verdict, error) {
	if d.hooks.EvaluatePendingOrder != nil {
		return d.hooks.EvaluatePendingOrder(ctx, order, client)
	}

	return VerdictAccept, nil
}
